package user

import (
	"context"
	"fmt"
	"io"

	"github.com/google/uuid"

	"accountsvc/internal/models"
	"accountsvc/internal/repository"
)

// Object storage prefixes for profile images
const (
	AvatarPrefix     = "avatars"
	CoverImagePrefix = "covers"
)

// Uploader stores an object and returns its public URL
type Uploader interface {
	Upload(ctx context.Context, prefix string, filename string, contentType string, body io.Reader) (string, error)
}

type UserService struct {
	userRepo repository.UserRepo
	media    Uploader
}

func NewService(userRepo repository.UserRepo, media Uploader) *UserService {
	return &UserService{
		userRepo: userRepo,
		media:    media,
	}
}

func (s *UserService) GetByID(ctx context.Context, userID uuid.UUID) (models.User, error) {
	return s.userRepo.GetUserByID(ctx, userID)
}

func (s *UserService) UpdateAccount(ctx context.Context, userID uuid.UUID, fullName string, email string) (models.User, error) {
	user, err := s.userRepo.UpdateAccount(ctx, userID, fullName, email)
	if err != nil {
		return user, fmt.Errorf("can't update account. Err: %w", err)
	}

	return user, nil
}

// UploadImage stores a profile image without touching the user record.
// Used on registration when the user does not exist yet.
func (s *UserService) UploadImage(ctx context.Context, prefix string, filename string, contentType string, body io.Reader) (string, error) {
	return s.media.Upload(ctx, prefix, filename, contentType, body)
}

func (s *UserService) UpdateAvatar(ctx context.Context, userID uuid.UUID, filename string, contentType string, body io.Reader) (models.User, error) {
	var user models.User

	url, err := s.media.Upload(ctx, AvatarPrefix, filename, contentType, body)
	if err != nil {
		return user, fmt.Errorf("can't upload avatar. Err: %w", err)
	}

	return s.userRepo.UpdateAvatar(ctx, userID, url)
}

func (s *UserService) UpdateCoverImage(ctx context.Context, userID uuid.UUID, filename string, contentType string, body io.Reader) (models.User, error) {
	var user models.User

	url, err := s.media.Upload(ctx, CoverImagePrefix, filename, contentType, body)
	if err != nil {
		return user, fmt.Errorf("can't upload cover image. Err: %w", err)
	}

	return s.userRepo.UpdateCoverImage(ctx, userID, url)
}
