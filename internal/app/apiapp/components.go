package apiapp

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/storycraft/billing/internal/config"
	"github.com/storycraft/billing/internal/infra/gateway"
	"github.com/storycraft/billing/internal/infra/httpclient"
	pgrepo "github.com/storycraft/billing/internal/repo/postgres"
	redrepo "github.com/storycraft/billing/internal/repo/redis"
	activationsvc "github.com/storycraft/billing/internal/services/activation"
	authsvc "github.com/storycraft/billing/internal/services/auth"
	entsvc "github.com/storycraft/billing/internal/services/entitlements"
	orderssvc "github.com/storycraft/billing/internal/services/orders"
	paymentsvc "github.com/storycraft/billing/internal/services/payments"
	ratesvc "github.com/storycraft/billing/internal/services/rate"
	subscriptionssvc "github.com/storycraft/billing/internal/services/subscriptions"
)

// Components is the wired billing stack shared by the API server and billingctl.
type Components struct {
	Postgres *pgxpool.Pool
	Redis    *goredis.Client

	Orders        *pgrepo.OrderRepo
	Subscriptions *pgrepo.SubscriptionRepo
	Users         *pgrepo.UserRepo

	JWT                 *authsvc.JWTManager
	Auth                *authsvc.Resolver
	OrderService        *orderssvc.Service
	ActivationService   *activationsvc.Service
	PaymentService      *paymentsvc.Service
	SubscriptionService *subscriptionssvc.Service
	EntitlementService  *entsvc.Service
}

// BuildComponents connects the stores and wires every service. A postgres
// outage at startup is tolerated; requests then fail with STORE_UNAVAILABLE.
func BuildComponents(ctx context.Context, cfg config.Config, log *zap.Logger) (*Components, error) {
	if log == nil {
		return nil, fmt.Errorf("logger is nil")
	}

	var pool *pgxpool.Pool
	if p, err := pgrepo.NewPool(ctx, cfg.Postgres.DSN); err != nil {
		log.Warn("postgres init failed, continuing in degraded mode", zap.Error(err))
	} else {
		pool = p
		if cfg.Postgres.AutoMigrate {
			if err := pgrepo.Migrate(ctx, pool); err != nil {
				log.Warn("postgres migration failed", zap.Error(err))
			}
		}
	}

	redisClient := redrepo.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	rateRepo := redrepo.NewRateRepo(redisClient)
	lockRepo := redrepo.NewLockRepo(redisClient, cfg.Payments.ActivationLockTTL)

	orderRepo := pgrepo.NewOrderRepo(pool)
	subscriptionRepo := pgrepo.NewSubscriptionRepo(pool)
	userRepo := pgrepo.NewUserRepo(pool)

	jwtManager := authsvc.NewJWTManager(cfg.Auth.JWTSecret, cfg.Auth.JWTAccessTTL)
	orderService := orderssvc.NewService(orderRepo, orderssvc.Config{HoldWindow: cfg.Payments.OrderHoldWindow})
	activationService := activationsvc.NewService(activationsvc.Dependencies{
		Orders:        orderRepo,
		Subscriptions: subscriptionRepo,
		Projections:   userRepo,
		Locker:        lockRepo,
		RenewalPolicy: cfg.Payments.RenewalPolicy,
		Logger:        log.Named("activation"),
	})
	paymentService := paymentsvc.NewService(paymentsvc.Dependencies{
		Orders:     orderService,
		Activation: activationService,
		Gateway:    newGateway(cfg, log),
		Limiter:    ratesvc.NewLimiter(rateRepo, cfg.Payments.ConfirmRatePerMinute),
		Config: paymentsvc.Config{
			AllowSimulated: cfg.Payments.AllowSimulated,
			GatewayTimeout: cfg.Payments.Gateway.Timeout,
		},
		Logger: log.Named("payments"),
	})

	return &Components{
		Postgres:            pool,
		Redis:               redisClient,
		Orders:              orderRepo,
		Subscriptions:       subscriptionRepo,
		Users:               userRepo,
		JWT:                 jwtManager,
		Auth:                authsvc.NewResolver(jwtManager),
		OrderService:        orderService,
		ActivationService:   activationService,
		PaymentService:      paymentService,
		SubscriptionService: subscriptionssvc.NewService(subscriptionRepo, userRepo, log.Named("subscriptions")),
		EntitlementService:  entsvc.NewService(userRepo, log.Named("entitlements")),
	}, nil
}

// Close releases the store connections.
func (c *Components) Close() error {
	if c.Postgres != nil {
		c.Postgres.Close()
	}
	if c.Redis != nil {
		return c.Redis.Close()
	}
	return nil
}

// newGateway falls back to the in-process checkout outside production when
// no provider is configured.
func newGateway(cfg config.Config, log *zap.Logger) paymentsvc.Gateway {
	gw := cfg.Payments.Gateway
	if gw.BaseURL == "" && !cfg.IsProduction() {
		log.Warn("payments.gateway.base_url is empty, using in-process checkout")
		return gateway.NewFake("")
	}
	return gateway.NewClient(gateway.Config{
		BaseURL:    gw.BaseURL,
		SecretKey:  gw.SecretKey,
		SuccessURL: gw.SuccessURL,
		CancelURL:  gw.CancelURL,
		Currency:   gw.Currency,
	}, httpclient.New(gw.Timeout))
}
