package apiapp

import (
	"context"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/storycraft/billing/internal/config"
	pgrepo "github.com/storycraft/billing/internal/repo/postgres"
	redrepo "github.com/storycraft/billing/internal/repo/redis"
	"github.com/storycraft/billing/internal/transport/http/handlers"
)

type Dependencies struct {
	Components *Components
	Logger     *zap.Logger
	Config     config.Config
}

func RegisterRoutes(r chi.Router, deps Dependencies) {
	c := deps.Components

	healthHandler := handlers.NewHealthHandler(
		handlers.ReadinessCheck{Name: "postgres", Check: func(ctx context.Context) error { return pgrepo.Ping(ctx, c.Postgres) }},
		handlers.ReadinessCheck{Name: "redis", Check: func(ctx context.Context) error { return redrepo.Ping(ctx, c.Redis) }},
	)
	plansHandler := handlers.NewPlansHandler()
	ordersHandler := handlers.NewOrdersHandler(c.OrderService, c.PaymentService)
	paymentsHandler := handlers.NewPaymentsHandler(c.PaymentService)
	subscriptionHandler := handlers.NewSubscriptionHandler(c.SubscriptionService, c.EntitlementService)

	authMW := AuthMiddleware(c.Auth, deps.Logger)
	publicLimiter := NewIPRateLimiter(deps.Config.HTTP.PublicRatePerSecond, deps.Config.HTTP.PublicRateBurst)
	callbackMW := CallbackSecretMiddleware(deps.Config.Payments.CallbackSecret, deps.Logger)

	r.Get("/healthz", healthHandler.Get)
	r.Get("/readyz", healthHandler.Ready)

	r.Route("/v1", func(r chi.Router) {
		r.Get("/plans", plansHandler.List)

		r.With(authMW).Post("/orders", ordersHandler.Create)
		r.With(authMW).Get("/orders", ordersHandler.List)
		r.With(authMW).Get("/orders/{orderId}", ordersHandler.Get)
		r.With(authMW).Post("/orders/{orderId}/checkout", ordersHandler.Checkout)

		r.With(authMW).Post("/payments/gateway/confirm", paymentsHandler.GatewayConfirm)
		r.With(publicLimiter.Middleware(), callbackMW).Post("/payments/callback", paymentsHandler.Callback)
		r.With(publicLimiter.Middleware(), authMW).Post("/payments/simulate", paymentsHandler.Simulate)

		r.With(authMW).Get("/subscription", subscriptionHandler.Get)
		r.With(authMW).Post("/subscription/cancel", subscriptionHandler.Cancel)
		r.With(authMW).Get("/me/entitlements", subscriptionHandler.Entitlements)
	})
}
