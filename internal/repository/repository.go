package repository

import (
	"context"

	"github.com/google/uuid"

	"accountsvc/internal/models"
)

type CreateUserParams struct {
	Username       string
	Email          string
	FullName       string
	HashedPassword string
	AvatarURL      string
	CoverImageURL  string
}

// User repository interface
//
// Every update method touches only its own column, so writing a refresh
// token never re-validates or rewrites unrelated user fields.
type UserRepo interface {
	// Create user
	// If username or email is taken has to return apperrors.ErrUserAlreadyExists
	CreateUser(ctx context.Context, params CreateUserParams) (models.User, error)

	// Get user by id, or by username or email (login)
	// If user not found must return apperrors.ErrUserNotFound
	GetUserByID(ctx context.Context, userID uuid.UUID) (models.User, error)
	GetUserByLogin(ctx context.Context, login string) (models.User, error)

	// Overwrite the stored refresh token unconditionally (login path)
	SetRefreshToken(ctx context.Context, userID uuid.UUID, token string) error

	// Replace the stored refresh token only if it still equals 'old'.
	// This is the compare-and-swap that makes rotation single-use: of two
	// concurrent rotations with the same stale token at most one may win.
	// On mismatch must return apperrors.ErrRefreshTokenExpired
	SwapRefreshToken(ctx context.Context, userID uuid.UUID, old string, next string) error

	// Drop the stored refresh token whatever its value is (logout path)
	// Must be idempotent
	ClearRefreshToken(ctx context.Context, userID uuid.UUID) error

	UpdatePassword(ctx context.Context, userID uuid.UUID, hashedPassword string) error
	UpdateAccount(ctx context.Context, userID uuid.UUID, fullName string, email string) (models.User, error)
	UpdateAvatar(ctx context.Context, userID uuid.UUID, url string) (models.User, error)
	UpdateCoverImage(ctx context.Context, userID uuid.UUID, url string) (models.User, error)
}
