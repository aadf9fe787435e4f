package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"accountsvc/internal/apperrors"
	"accountsvc/internal/models"
	"accountsvc/internal/repository"
)

type UserRepo struct {
	DB DBTX
}

const userColumns = `id, created_at, username, email, full_name, password_hash, COALESCE(refresh_token, ''), avatar_url, cover_image_url`

const createUser = `-- name: CreateUser
INSERT INTO users (id, username, email, full_name, password_hash, avatar_url, cover_image_url)
VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING ` + userColumns

func (r *UserRepo) CreateUser(ctx context.Context, params repository.CreateUserParams) (models.User, error) {
	rows, _ := r.DB.Query(ctx, createUser,
		uuid.New(),
		params.Username,
		params.Email,
		params.FullName,
		params.HashedPassword,
		params.AvatarURL,
		params.CoverImageURL,
	)
	user, err := pgx.CollectOneRow(rows, rowToUser)

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return user, apperrors.ErrUserAlreadyExists
		}

		return user, fmt.Errorf("db error: %w", err)
	}

	return user, nil
}

const getUserByID = `-- name: GetUserByID
SELECT ` + userColumns + `
FROM users
WHERE id = $1
`

func (r *UserRepo) GetUserByID(ctx context.Context, userID uuid.UUID) (models.User, error) {
	rows, _ := r.DB.Query(ctx, getUserByID, userID)
	return collectUser(rows)
}

const getUserByLogin = `-- name: GetUserByLogin
SELECT ` + userColumns + `
FROM users
WHERE username = $1 OR email = $1
`

// GetUserByLogin accepts either username or email
func (r *UserRepo) GetUserByLogin(ctx context.Context, login string) (models.User, error) {
	rows, _ := r.DB.Query(ctx, getUserByLogin, login)
	return collectUser(rows)
}

const setRefreshToken = `-- name: SetRefreshToken
UPDATE users
SET refresh_token = $2
WHERE id = $1
RETURNING id
`

func (r *UserRepo) SetRefreshToken(ctx context.Context, userID uuid.UUID, token string) error {
	rows, _ := r.DB.Query(ctx, setRefreshToken, userID, token)
	_, err := pgx.CollectOneRow(rows, pgx.RowTo[uuid.UUID])

	switch {
	case err == nil:
		return nil
	case errors.Is(err, pgx.ErrNoRows):
		return apperrors.ErrUserNotFound
	default:
		return fmt.Errorf("db error: %w", err)
	}
}

const swapRefreshToken = `-- name: SwapRefreshToken
UPDATE users
SET refresh_token = $3
WHERE id = $1 AND refresh_token = $2
RETURNING id
`

// Swap the stored refresh token in a single conditional update.
// The WHERE clause is the single-use guard: once any rotation (or logout)
// replaces the stored value, every other rotation with the old value
// matches zero rows and fails.
func (r *UserRepo) SwapRefreshToken(ctx context.Context, userID uuid.UUID, old string, next string) error {
	rows, _ := r.DB.Query(ctx, swapRefreshToken, userID, old, next)
	_, err := pgx.CollectOneRow(rows, pgx.RowTo[uuid.UUID])

	switch {
	case err == nil:
		return nil
	case errors.Is(err, pgx.ErrNoRows):
		return apperrors.ErrRefreshTokenExpired
	default:
		return fmt.Errorf("db error: %w", err)
	}
}

const clearRefreshToken = `-- name: ClearRefreshToken
UPDATE users
SET refresh_token = NULL
WHERE id = $1
RETURNING id
`

func (r *UserRepo) ClearRefreshToken(ctx context.Context, userID uuid.UUID) error {
	rows, _ := r.DB.Query(ctx, clearRefreshToken, userID)
	_, err := pgx.CollectOneRow(rows, pgx.RowTo[uuid.UUID])

	switch {
	case err == nil:
		return nil
	case errors.Is(err, pgx.ErrNoRows):
		return apperrors.ErrUserNotFound
	default:
		return fmt.Errorf("db error: %w", err)
	}
}

const updatePassword = `-- name: UpdatePassword
UPDATE users
SET password_hash = $2
WHERE id = $1
RETURNING id
`

func (r *UserRepo) UpdatePassword(ctx context.Context, userID uuid.UUID, hashedPassword string) error {
	rows, _ := r.DB.Query(ctx, updatePassword, userID, hashedPassword)
	_, err := pgx.CollectOneRow(rows, pgx.RowTo[uuid.UUID])

	switch {
	case err == nil:
		return nil
	case errors.Is(err, pgx.ErrNoRows):
		return apperrors.ErrUserNotFound
	default:
		return fmt.Errorf("db error: %w", err)
	}
}

const updateAccount = `-- name: UpdateAccount
UPDATE users
SET full_name = $2, email = $3
WHERE id = $1
RETURNING ` + userColumns

func (r *UserRepo) UpdateAccount(ctx context.Context, userID uuid.UUID, fullName string, email string) (models.User, error) {
	rows, _ := r.DB.Query(ctx, updateAccount, userID, fullName, email)
	return collectUser(rows)
}

const updateAvatar = `-- name: UpdateAvatar
UPDATE users
SET avatar_url = $2
WHERE id = $1
RETURNING ` + userColumns

func (r *UserRepo) UpdateAvatar(ctx context.Context, userID uuid.UUID, url string) (models.User, error) {
	rows, _ := r.DB.Query(ctx, updateAvatar, userID, url)
	return collectUser(rows)
}

const updateCoverImage = `-- name: UpdateCoverImage
UPDATE users
SET cover_image_url = $2
WHERE id = $1
RETURNING ` + userColumns

func (r *UserRepo) UpdateCoverImage(ctx context.Context, userID uuid.UUID, url string) (models.User, error) {
	rows, _ := r.DB.Query(ctx, updateCoverImage, userID, url)
	return collectUser(rows)
}

func collectUser(rows pgx.Rows) (models.User, error) {
	user, err := pgx.CollectOneRow(rows, rowToUser)

	var pgErr *pgconn.PgError
	switch {
	case err == nil:
		return user, nil
	case errors.Is(err, pgx.ErrNoRows):
		return user, apperrors.ErrUserNotFound
	case errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation:
		// UpdateAccount may hit the unique email index
		return user, apperrors.ErrUserAlreadyExists
	default:
		return user, fmt.Errorf("db error: %w", err)
	}
}

func rowToUser(row pgx.CollectableRow) (models.User, error) {
	var u models.User
	err := row.Scan(
		&u.ID,
		&u.CreatedAt,
		&u.Username,
		&u.Email,
		&u.FullName,
		&u.HashedPassword,
		&u.RefreshToken,
		&u.AvatarURL,
		&u.CoverImageURL,
	)
	return u, err
}
