package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"accountsvc/internal/apperrors"
	"accountsvc/internal/handlers/render"
	"accountsvc/internal/handlers/userctx"
	"accountsvc/internal/logger"
	"accountsvc/internal/models"
	"accountsvc/internal/service/auth"
	"accountsvc/internal/service/user"
)

// Uploads bigger than this are rejected while parsing the form
const maxUploadBytes = 16 << 20

type authService interface {
	Register(ctx context.Context, params auth.RegisterParams) (models.User, error)
	Login(ctx context.Context, login string, password string) (models.User, models.TokenPair, error)
	Refresh(ctx context.Context, refresh string) (models.TokenPair, error)
	Logout(ctx context.Context, userID uuid.UUID) error
	ChangePassword(ctx context.Context, userID uuid.UUID, oldPassword string, newPassword string) error

	// Resolve the request to an authenticated user
	Auth(ctx context.Context, r *http.Request) (models.User, error)

	// Transport: cookies in responses, cookie-or-body in requests
	SetTokens(w http.ResponseWriter, pair models.TokenPair)
	ClearTokens(w http.ResponseWriter)
	GetRefresh(r *http.Request) (string, error)
}

type AuthHandler struct {
	auth   authService
	users  userService
	logger logger.Logger
}

func NewAuth(auth authService, users userService, l logger.Logger) *AuthHandler {
	return &AuthHandler{auth: auth, users: users, logger: l}
}

// register consumes a multipart form: text fields plus optional
// 'avatar' and 'coverImage' files which go to object storage first
func (h *AuthHandler) register(w http.ResponseWriter, r *http.Request) {
	type registerRequest struct {
		Username string `json:"username" validate:"required,min=2,max=50"`
		Email    string `json:"email" validate:"required,email"`
		FullName string `json:"fullName" validate:"required"`
		Password string `json:"password" validate:"required,min=8"`
	}

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		render.DecodeError(w, err)
		return
	}

	data := registerRequest{
		Username: r.FormValue("username"),
		Email:    r.FormValue("email"),
		FullName: r.FormValue("fullName"),
		Password: r.FormValue("password"),
	}
	if err := render.Validate(w, data); err != nil {
		return
	}

	avatarURL, err := h.uploadFormFile(r, "avatar", user.AvatarPrefix)
	if err != nil {
		h.logger.Error("avatar upload failed", "error", err.Error())
		render.Error(w, "Could not store avatar", http.StatusInternalServerError)
		return
	}

	coverURL, err := h.uploadFormFile(r, "coverImage", user.CoverImagePrefix)
	if err != nil {
		h.logger.Error("cover image upload failed", "error", err.Error())
		render.Error(w, "Could not store cover image", http.StatusInternalServerError)
		return
	}

	created, err := h.auth.Register(r.Context(), auth.RegisterParams{
		Username:      data.Username,
		Email:         data.Email,
		FullName:      data.FullName,
		Password:      data.Password,
		AvatarURL:     avatarURL,
		CoverImageURL: coverURL,
	})
	if err != nil {
		switch {
		case errors.Is(err, apperrors.ErrUserAlreadyExists):
			render.Error(w, "User with this username or email already exists", http.StatusConflict)
		default:
			h.logger.Error("register failed", "error", err.Error())
			render.Error(w, "Internal server error", http.StatusInternalServerError)
		}
		return
	}

	render.JSON(w, http.StatusCreated, newUserResponse(created), "User registered successfully")
}

func (h *AuthHandler) login(w http.ResponseWriter, r *http.Request) {
	type loginRequest struct {
		Identifier string `json:"identifier" validate:"required"`
		Password   string `json:"password" validate:"required"`
	}
	type loginResponse struct {
		User         userResponse `json:"user"`
		AccessToken  string       `json:"accessToken"`
		RefreshToken string       `json:"refreshToken"`
	}

	data, err := render.BindAndValidate[loginRequest](w, r)
	if err != nil {
		return
	}

	// Identifier may be a username or an email; reject only broken emails
	if strings.Contains(data.Identifier, "@") {
		if err := render.ValidateVar(data.Identifier, "email"); err != nil {
			render.Error(w, "Malformed email", http.StatusBadRequest)
			return
		}
	}

	loggedIn, pair, err := h.auth.Login(r.Context(), data.Identifier, data.Password)
	if err != nil {
		switch {
		case errors.Is(err, apperrors.ErrUserNotFound):
			render.Error(w, "User does not exist", http.StatusNotFound)
		case errors.Is(err, apperrors.ErrWrongPassword):
			render.Error(w, "Invalid user credentials", http.StatusUnauthorized)
		default:
			h.logger.Error("login failed", "error", err.Error())
			render.Error(w, "Internal server error", http.StatusInternalServerError)
		}
		return
	}

	h.auth.SetTokens(w, pair)
	render.JSON(w, http.StatusOK, loginResponse{
		User:         newUserResponse(loggedIn),
		AccessToken:  pair.Access.Value,
		RefreshToken: pair.Refresh.Value,
	}, "User logged in successfully")
}

func (h *AuthHandler) refresh(w http.ResponseWriter, r *http.Request) {
	type refreshResponse struct {
		AccessToken  string `json:"accessToken"`
		RefreshToken string `json:"refreshToken"`
	}

	refresh, err := h.auth.GetRefresh(r)
	if err != nil {
		render.Error(w, "Unauthorized request", http.StatusUnauthorized)
		return
	}

	pair, err := h.auth.Refresh(r.Context(), refresh)
	if err != nil {
		h.logger.Debug("refresh rejected", "error", err.Error())

		switch {
		case errors.Is(err, apperrors.ErrRefreshTokenExpired):
			render.Error(w, "Refresh token expired", http.StatusUnauthorized)
		case errors.Is(err, apperrors.ErrNoToken), errors.Is(err, apperrors.ErrInvalidRefreshToken):
			render.Error(w, "Invalid refresh token", http.StatusUnauthorized)
		default:
			h.logger.Error("refresh failed", "error", err.Error())
			render.Error(w, "Internal server error", http.StatusInternalServerError)
		}
		return
	}

	h.auth.SetTokens(w, pair)
	render.JSON(w, http.StatusOK, refreshResponse{
		AccessToken:  pair.Access.Value,
		RefreshToken: pair.Refresh.Value,
	}, "Access token refreshed")
}

func (h *AuthHandler) logout(w http.ResponseWriter, r *http.Request) {
	current, _ := userctx.FromContext(r.Context())

	if err := h.auth.Logout(r.Context(), current.ID); err != nil {
		h.logger.Error("logout failed", "error", err.Error())
		render.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	h.auth.ClearTokens(w)
	render.JSON(w, http.StatusOK, nil, "User logged out")
}

func (h *AuthHandler) changePassword(w http.ResponseWriter, r *http.Request) {
	type changePasswordRequest struct {
		OldPassword string `json:"oldPassword" validate:"required"`
		NewPassword string `json:"newPassword" validate:"required,min=8"`
	}

	data, err := render.BindAndValidate[changePasswordRequest](w, r)
	if err != nil {
		return
	}

	current, _ := userctx.FromContext(r.Context())

	if err := h.auth.ChangePassword(r.Context(), current.ID, data.OldPassword, data.NewPassword); err != nil {
		switch {
		case errors.Is(err, apperrors.ErrWrongPassword):
			render.Error(w, "Invalid old password", http.StatusBadRequest)
		default:
			h.logger.Error("change password failed", "error", err.Error())
			render.Error(w, "Internal server error", http.StatusInternalServerError)
		}
		return
	}

	render.JSON(w, http.StatusOK, nil, "Password changed successfully")
}

// uploadFormFile stores an optional multipart file and returns its URL.
// Missing file is not an error: both register images are optional.
func (h *AuthHandler) uploadFormFile(r *http.Request, field string, prefix string) (string, error) {
	file, header, err := r.FormFile(field)
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			return "", nil
		}
		return "", err
	}
	defer file.Close() // nolint:errcheck

	return h.users.UploadImage(r.Context(), prefix, header.Filename, header.Header.Get("Content-Type"), file)
}
