package middleware

import (
	"context"
	"errors"
	"net/http"

	"accountsvc/internal/apperrors"
	"accountsvc/internal/handlers/render"
	"accountsvc/internal/handlers/userctx"
	logpkg "accountsvc/internal/logger"
	"accountsvc/internal/models"
)

type authService interface {
	Auth(ctx context.Context, r *http.Request) (models.User, error)
}

// AuthMiddleware rejects requests without a valid access token and puts the
// resolved user into the request context for downstream handlers.
// Every failure maps to 401; the verification detail goes to the log only.
func AuthMiddleware(as authService, l logpkg.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, err := as.Auth(r.Context(), r)
			if err != nil {
				l.Debug("request not authenticated", "uri", r.RequestURI, "error", err.Error())

				switch {
				case errors.Is(err, apperrors.ErrNoToken):
					render.Error(w, "Unauthorized request", http.StatusUnauthorized)
				default:
					render.Error(w, "Invalid access token", http.StatusUnauthorized)
				}
				return
			}

			ctx := userctx.New(r.Context(), user)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
