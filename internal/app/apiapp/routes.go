package apiapp

import (
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	authsvc "github.com/pr-poehali-dev/dice-chess-website/internal/services/auth"
	paymentsvc "github.com/pr-poehali-dev/dice-chess-website/internal/services/payments"
	profilesvc "github.com/pr-poehali-dev/dice-chess-website/internal/services/profiles"
	ratesvc "github.com/pr-poehali-dev/dice-chess-website/internal/services/rate"
	"github.com/pr-poehali-dev/dice-chess-website/internal/transport/http/handlers"
)

type Dependencies struct {
	AuthService    *authsvc.Service
	PaymentService *paymentsvc.Service
	ProfileService *profilesvc.Service
	LoginLimiter   *ratesvc.Limiter
	Logger         *zap.Logger
}

func RegisterRoutes(r chi.Router, deps Dependencies) {
	healthHandler := handlers.NewHealthHandler()
	authHandler := handlers.NewAuthHandler(deps.AuthService, deps.LoginLimiter)
	profileHandler := handlers.NewProfileHandler(deps.ProfileService)
	paymentHandler := handlers.NewPaymentHandler(deps.PaymentService, deps.Logger)

	authMW := AuthMiddleware(deps.AuthService, deps.Logger)

	r.Get("/healthz", healthHandler.Get)

	r.Route("/auth", func(r chi.Router) {
		r.Post("/register", authHandler.Register)
		r.Post("/login", authHandler.Login)
		r.With(authMW).Post("/logout", authHandler.Logout)
	})

	r.Route("/profile", func(r chi.Router) {
		r.Use(authMW)
		r.Get("/", profileHandler.Get)
		r.Put("/username", profileHandler.UpdateUsername)
	})

	r.Route("/payments", func(r chi.Router) {
		r.With(authMW).Post("/", paymentHandler.Create)
		// The gateway authenticates by metadata correlation, not a session.
		r.Post("/webhook", paymentHandler.Webhook)
	})
}
