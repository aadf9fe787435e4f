package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"accountsvc/internal/apperrors"
	"accountsvc/internal/models"
	"accountsvc/internal/repository"
	"accountsvc/internal/service/auth/tokenmanager"
)

const (
	defaultAccessCookieName  = "accessToken"
	defaultRefreshCookieName = "refreshToken"
	authScheme               = "Bearer"
)

// Interface to create or compare user password hashes
type PasswordHasher interface {
	// Generate Hash from password
	Hash(password string) (string, error)

	// Compare known hashedPassword and user provided password
	// Must be protected against timing attacks
	Compare(hashedPassword string, password string) error
}

type Config struct {
	// Hasher to use during user registration or login process
	// BcryptHasher is used if not set
	Hasher PasswordHasher

	// Cookie names for both tokens
	// Defaults are used if not set
	AccessCookieName  string
	RefreshCookieName string

	// Whether auth cookies are marked Secure
	CookieSecure bool
}

// Auth service: the owner of the token lifecycle.
// Issues pairs, guards requests, rotates refresh tokens and drops them on logout.
type AuthService struct {
	// Manager to sign and verify token pairs (access and refresh)
	token *tokenmanager.TokenManager

	// hasher to hash or compare user passwords
	hasher PasswordHasher

	// Repository to access long term data
	userRepo repository.UserRepo

	accessCookieName  string
	refreshCookieName string
	cookieSecure      bool
}

func NewService(cfg Config, token *tokenmanager.TokenManager, userRepo repository.UserRepo) (*AuthService, error) {
	if token == nil || userRepo == nil {
		return nil, errors.New("token manager and user repo must not be nil")
	}

	hasher := cfg.Hasher
	if hasher == nil {
		hasher = BcryptHasher{}
	}

	if cfg.AccessCookieName == "" {
		cfg.AccessCookieName = defaultAccessCookieName
	}
	if cfg.RefreshCookieName == "" {
		cfg.RefreshCookieName = defaultRefreshCookieName
	}

	return &AuthService{
		token:             token,
		hasher:            hasher,
		userRepo:          userRepo,
		accessCookieName:  cfg.AccessCookieName,
		refreshCookieName: cfg.RefreshCookieName,
		cookieSecure:      cfg.CookieSecure,
	}, nil
}

type RegisterParams struct {
	Username      string
	Email         string
	FullName      string
	Password      string
	AvatarURL     string
	CoverImageURL string
}

func (s *AuthService) Register(ctx context.Context, params RegisterParams) (models.User, error) {
	var user models.User

	hash, err := s.hasher.Hash(params.Password)
	if err != nil {
		return user, fmt.Errorf("can't use this as password. Err: %w", err)
	}

	user, err = s.userRepo.CreateUser(ctx, repository.CreateUserParams{
		Username:       params.Username,
		Email:          params.Email,
		FullName:       params.FullName,
		HashedPassword: hash,
		AvatarURL:      params.AvatarURL,
		CoverImageURL:  params.CoverImageURL,
	})
	if err != nil {
		return user, err
	}

	return user, nil
}

// Login verifies credentials and issues a fresh token pair.
// Unknown user and wrong password are distinct errors: the HTTP layer
// maps them to 404 and 401 respectively.
func (s *AuthService) Login(ctx context.Context, login string, password string) (models.User, models.TokenPair, error) {
	user, err := s.userRepo.GetUserByLogin(ctx, login)
	if err != nil {
		return user, models.TokenPair{}, err
	}

	if err := s.hasher.Compare(user.HashedPassword, password); err != nil {
		return user, models.TokenPair{}, apperrors.ErrWrongPassword
	}

	pair, err := s.IssuePair(ctx, user.ID)
	if err != nil {
		return user, pair, err
	}

	return user, pair, nil
}

// IssuePair signs a new access/refresh pair and persists the refresh token
// against the user record, overwriting whatever was stored before.
// Only the refresh-token field is written.
func (s *AuthService) IssuePair(ctx context.Context, userID uuid.UUID) (models.TokenPair, error) {
	pair, err := s.token.GeneratePair(userID)
	if err != nil {
		return pair, fmt.Errorf("error while generating token pair. Err: %w", err)
	}

	if err := s.userRepo.SetRefreshToken(ctx, userID, pair.Refresh.Value); err != nil {
		return pair, fmt.Errorf("error while saving refresh token. Err: %w", err)
	}

	return pair, nil
}

// Refresh exchanges a presented refresh token for a brand-new pair.
// The literal-equality check against the stored token and the write of the
// new one happen in one conditional update, so of two concurrent rotations
// with the same stale token at most one succeeds.
func (s *AuthService) Refresh(ctx context.Context, refresh string) (models.TokenPair, error) {
	var pair models.TokenPair

	if refresh == "" {
		return pair, apperrors.ErrNoToken
	}

	userID, err := s.token.ParseRefresh(refresh)
	if err != nil {
		return pair, fmt.Errorf("%w: %w", apperrors.ErrInvalidRefreshToken, err)
	}

	user, err := s.userRepo.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, apperrors.ErrUserNotFound) {
			return pair, apperrors.ErrInvalidRefreshToken
		}
		return pair, err
	}

	pair, err = s.token.GeneratePair(user.ID)
	if err != nil {
		return pair, fmt.Errorf("error while generating token pair. Err: %w", err)
	}

	if err := s.userRepo.SwapRefreshToken(ctx, user.ID, refresh, pair.Refresh.Value); err != nil {
		return models.TokenPair{}, err
	}

	return pair, nil
}

// Logout drops the stored refresh token whatever its value is.
// Safe to call repeatedly: second logout is a no-op that still succeeds.
// Already issued access tokens stay valid until their own expiry.
func (s *AuthService) Logout(ctx context.Context, userID uuid.UUID) error {
	if err := s.userRepo.ClearRefreshToken(ctx, userID); err != nil {
		return fmt.Errorf("error while clearing refresh token. Err: %w", err)
	}

	return nil
}

func (s *AuthService) ChangePassword(ctx context.Context, userID uuid.UUID, oldPassword string, newPassword string) error {
	user, err := s.userRepo.GetUserByID(ctx, userID)
	if err != nil {
		return err
	}

	if err := s.hasher.Compare(user.HashedPassword, oldPassword); err != nil {
		return apperrors.ErrWrongPassword
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return fmt.Errorf("can't use this as password. Err: %w", err)
	}

	return s.userRepo.UpdatePassword(ctx, userID, hash)
}

// Auth resolves the request to a user: access token from the named cookie
// first, then from the Authorization header. Any verification failure is
// reported as an error and never reveals which token part was wrong.
func (s *AuthService) Auth(ctx context.Context, r *http.Request) (models.User, error) {
	var user models.User

	access := s.readAccess(r)
	if access == "" {
		return user, apperrors.ErrNoToken
	}

	userID, err := s.token.ParseAccess(access)
	if err != nil {
		return user, fmt.Errorf("%w: %w", apperrors.ErrInvalidAccessToken, err)
	}

	// The user may be deleted after the token was issued
	user, err = s.userRepo.GetUserByID(ctx, userID)
	if err != nil {
		return user, apperrors.ErrInvalidAccessToken
	}

	return user, nil
}

// SetTokens writes both tokens as HttpOnly cookies
func (s *AuthService) SetTokens(w http.ResponseWriter, pair models.TokenPair) {
	http.SetCookie(w, s.cookie(s.accessCookieName, pair.Access.Value, pair.Access.ExpiresAt))
	http.SetCookie(w, s.cookie(s.refreshCookieName, pair.Refresh.Value, pair.Refresh.ExpiresAt))
}

// ClearTokens expires both auth cookies
func (s *AuthService) ClearTokens(w http.ResponseWriter) {
	for _, name := range []string{s.accessCookieName, s.refreshCookieName} {
		cookie := s.cookie(name, "", time.Time{})
		cookie.MaxAge = -1
		http.SetCookie(w, cookie)
	}
}

// GetRefresh extracts a refresh token from the request:
// the named cookie first, then the 'refreshToken' body field as fallback
func (s *AuthService) GetRefresh(r *http.Request) (string, error) {
	if cookie, err := r.Cookie(s.refreshCookieName); err == nil && cookie.Value != "" {
		return cookie.Value, nil
	}

	var body struct {
		RefreshToken string `json:"refreshToken"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err == nil && body.RefreshToken != "" {
		return body.RefreshToken, nil
	}

	return "", apperrors.ErrNoToken
}

func (s *AuthService) readAccess(r *http.Request) string {
	if cookie, err := r.Cookie(s.accessCookieName); err == nil && cookie.Value != "" {
		return cookie.Value
	}

	header := r.Header.Get("Authorization")
	if value, found := strings.CutPrefix(header, authScheme+" "); found {
		return value
	}

	return ""
}

func (s *AuthService) cookie(name string, value string, expiresAt time.Time) *http.Cookie {
	cookie := &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		Secure:   s.cookieSecure,
		SameSite: http.SameSiteStrictMode,
	}

	if !expiresAt.IsZero() {
		cookie.MaxAge = int(time.Until(expiresAt).Seconds())
	}

	return cookie
}
