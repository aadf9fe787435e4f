package models

import (
	"time"

	"github.com/google/uuid"
)

type User struct {
	ID             uuid.UUID
	CreatedAt      time.Time
	Username       string
	Email          string
	FullName       string
	HashedPassword string

	// Single active refresh token for the user
	// Empty string means the user has no refresh capability (logged out)
	RefreshToken string

	AvatarURL     string
	CoverImageURL string
}
