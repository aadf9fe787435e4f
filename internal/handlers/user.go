package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/google/uuid"

	"accountsvc/internal/apperrors"
	"accountsvc/internal/handlers/render"
	"accountsvc/internal/handlers/userctx"
	"accountsvc/internal/logger"
	"accountsvc/internal/models"
)

type userService interface {
	UpdateAccount(ctx context.Context, userID uuid.UUID, fullName string, email string) (models.User, error)
	UploadImage(ctx context.Context, prefix string, filename string, contentType string, body io.Reader) (string, error)
	UpdateAvatar(ctx context.Context, userID uuid.UUID, filename string, contentType string, body io.Reader) (models.User, error)
	UpdateCoverImage(ctx context.Context, userID uuid.UUID, filename string, contentType string, body io.Reader) (models.User, error)
}

type UserHandler struct {
	users  userService
	logger logger.Logger
}

func NewUser(users userService, l logger.Logger) *UserHandler {
	return &UserHandler{users: users, logger: l}
}

func (h *UserHandler) currentUser(w http.ResponseWriter, r *http.Request) {
	current, _ := userctx.FromContext(r.Context())
	render.JSON(w, http.StatusOK, newUserResponse(current), "Current user fetched successfully")
}

// updateAccount changes full name and email of the authenticated user.
// The id always comes from the auth context, never from the client.
func (h *UserHandler) updateAccount(w http.ResponseWriter, r *http.Request) {
	type updateAccountRequest struct {
		FullName string `json:"fullName" validate:"required"`
		Email    string `json:"email" validate:"required,email"`
	}

	data, err := render.BindAndValidate[updateAccountRequest](w, r)
	if err != nil {
		return
	}

	current, _ := userctx.FromContext(r.Context())

	updated, err := h.users.UpdateAccount(r.Context(), current.ID, data.FullName, data.Email)
	if err != nil {
		switch {
		case errors.Is(err, apperrors.ErrUserAlreadyExists):
			render.Error(w, "Email already taken", http.StatusConflict)
		default:
			h.logger.Error("update account failed", "error", err.Error())
			render.Error(w, "Internal server error", http.StatusInternalServerError)
		}
		return
	}

	render.JSON(w, http.StatusOK, newUserResponse(updated), "Account details updated successfully")
}

func (h *UserHandler) updateAvatar(w http.ResponseWriter, r *http.Request) {
	h.updateImage(w, r, "avatar", h.users.UpdateAvatar, "Avatar updated successfully")
}

func (h *UserHandler) updateCoverImage(w http.ResponseWriter, r *http.Request) {
	h.updateImage(w, r, "coverImage", h.users.UpdateCoverImage, "Cover image updated successfully")
}

type updateImageFunc func(ctx context.Context, userID uuid.UUID, filename string, contentType string, body io.Reader) (models.User, error)

func (h *UserHandler) updateImage(w http.ResponseWriter, r *http.Request, field string, update updateImageFunc, message string) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		render.DecodeError(w, err)
		return
	}

	file, header, err := r.FormFile(field)
	if err != nil {
		render.Error(w, "File '"+field+"' is missing", http.StatusBadRequest)
		return
	}
	defer file.Close() // nolint:errcheck

	current, _ := userctx.FromContext(r.Context())

	updated, err := update(r.Context(), current.ID, header.Filename, header.Header.Get("Content-Type"), file)
	if err != nil {
		h.logger.Error("image update failed", "field", field, "error", err.Error())
		render.Error(w, "Could not store image", http.StatusInternalServerError)
		return
	}

	render.JSON(w, http.StatusOK, newUserResponse(updated), message)
}
