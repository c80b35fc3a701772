package http

import (
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/agrisetu/platform/internal/auth"
	"github.com/agrisetu/platform/internal/http/handlers"
	"github.com/agrisetu/platform/internal/middleware"
	"github.com/agrisetu/platform/internal/model"
)

// NewRouter creates the auth service router with all routes configured
func NewRouter(authHandler *handlers.AuthHandler, wellKnown *handlers.WellKnownHandler, issuer *auth.Issuer) *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)

	healthHandler := handlers.NewHealthHandler()
	r.Get("/health", healthHandler.ServeHTTP)

	r.Get("/.well-known/jwks.json", wellKnown.HandleJWKS)
	r.Get("/.well-known/openid-configuration", wellKnown.HandleDiscovery)

	r.Route("/auth", func(r chi.Router) {
		r.Post("/register", authHandler.HandleRegister)
		r.Post("/verify-otp", authHandler.HandleVerifyOTP)
		r.Post("/login", authHandler.HandleLogin)
		r.Post("/request-login-otp", authHandler.HandleRequestLoginOTP)
		r.Post("/refresh", authHandler.HandleRefresh)
		r.Post("/logout", authHandler.HandleLogout)
	})

	// Protected routes (require a valid bearer token)
	r.Group(func(r chi.Router) {
		r.Use(middleware.AuthMiddleware(issuer))
		r.Get("/me", authHandler.HandleMe)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireRole(model.RoleAdmin))
			r.Post("/admin/users", authHandler.HandleAdminCreate)
		})
	})

	return r
}
