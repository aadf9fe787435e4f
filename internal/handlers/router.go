package handlers

import (
	"net/http"

	"accountsvc/internal/handlers/middleware"
	"accountsvc/internal/logger"
)

// chain applies middlewares in the given order: m1(m2(...(h)))
func chain(h http.Handler, mds ...func(next http.Handler) http.Handler) http.Handler {
	for i := len(mds) - 1; i >= 0; i-- {
		h = mds[i](h)
	}
	return h
}

func NewRouter(auth authService, users userService, l logger.Logger) http.Handler {
	authHandler := NewAuth(auth, users, l)
	userHandler := NewUser(users, l)

	withAuth := middleware.AuthMiddleware(auth, l)

	apiusers := http.NewServeMux()

	apiusers.Handle("POST /register", http.HandlerFunc(authHandler.register))
	apiusers.Handle("POST /login", http.HandlerFunc(authHandler.login))
	apiusers.Handle("POST /refresh-token", http.HandlerFunc(authHandler.refresh))

	apiusers.Handle("POST /logout", withAuth(http.HandlerFunc(authHandler.logout)))
	apiusers.Handle("POST /change-password", withAuth(http.HandlerFunc(authHandler.changePassword)))
	apiusers.Handle("GET /current-user", withAuth(http.HandlerFunc(userHandler.currentUser)))
	apiusers.Handle("PATCH /update-account", withAuth(http.HandlerFunc(userHandler.updateAccount)))
	apiusers.Handle("PATCH /avatar", withAuth(http.HandlerFunc(userHandler.updateAvatar)))
	apiusers.Handle("PATCH /cover-image", withAuth(http.HandlerFunc(userHandler.updateCoverImage)))

	root := http.NewServeMux()
	root.Handle("/api/v1/users/", http.StripPrefix("/api/v1/users", apiusers))

	return chain(root,
		middleware.LoggerMiddleware(l),
	)
}
