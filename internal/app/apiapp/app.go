package apiapp

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/pr-poehali-dev/dice-chess-website/internal/config"
	"github.com/pr-poehali-dev/dice-chess-website/internal/infra/yookassa"
	"github.com/pr-poehali-dev/dice-chess-website/internal/jobs/cleanup"
	pgrepo "github.com/pr-poehali-dev/dice-chess-website/internal/repo/postgres"
	redrepo "github.com/pr-poehali-dev/dice-chess-website/internal/repo/redis"
	authsvc "github.com/pr-poehali-dev/dice-chess-website/internal/services/auth"
	paymentsvc "github.com/pr-poehali-dev/dice-chess-website/internal/services/payments"
	profilesvc "github.com/pr-poehali-dev/dice-chess-website/internal/services/profiles"
	ratesvc "github.com/pr-poehali-dev/dice-chess-website/internal/services/rate"
)

type App struct {
	cfg        config.Config
	logger     *zap.Logger
	server     *http.Server
	postgres   *pgxpool.Pool
	redis      *goredis.Client
	cleanupJob *cleanup.Job
	httpRouter http.Handler
}

func New(ctx context.Context, cfg config.Config, log *zap.Logger) (*App, error) {
	if log == nil {
		return nil, fmt.Errorf("logger is nil")
	}

	r := chi.NewRouter()
	ApplyMiddlewares(r, log)

	pool, err := pgrepo.NewPool(ctx, cfg.Postgres.DSN)
	if err != nil {
		return nil, fmt.Errorf("init postgres: %w", err)
	}

	redisClient := redrepo.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)

	playerRepo := pgrepo.NewPlayerRepo(pool)
	sessionRepo := pgrepo.NewSessionRepo(pool)
	purchaseRepo := pgrepo.NewPurchaseRepo(pool)
	rateRepo := redrepo.NewRateRepo(redisClient)

	gateway := yookassa.NewClient(yookassa.Config{
		APIURL:    cfg.YooKassa.APIURL,
		ShopID:    cfg.YooKassa.ShopID,
		SecretKey: cfg.YooKassa.SecretKey,
		ReturnURL: cfg.YooKassa.ReturnURL,
		Timeout:   cfg.YooKassa.Timeout,
	})

	authService := authsvc.NewService(sessionRepo, playerRepo, cfg.Auth.SessionTTL)
	paymentService := paymentsvc.NewService(purchaseRepo, gateway)
	profileService := profilesvc.NewService(playerRepo)
	loginLimiter := ratesvc.NewLimiter(rateRepo, cfg.Auth.LoginPerMinute)

	RegisterRoutes(r, Dependencies{
		AuthService:    authService,
		PaymentService: paymentService,
		ProfileService: profileService,
		LoginLimiter:   loginLimiter,
		Logger:         log,
	})

	server := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      r,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	return &App{
		cfg:        cfg,
		logger:     log,
		server:     server,
		postgres:   pool,
		redis:      redisClient,
		cleanupJob: cleanup.New(sessionRepo, purchaseRepo, cfg.Cleanup.IntentRetention, log),
		httpRouter: r,
	}, nil
}

func (a *App) Run(ctx context.Context) error {
	go a.cleanupJob.Start(ctx, a.cfg.Cleanup.Interval)

	a.logger.Info("api server started", zap.String("addr", a.cfg.HTTP.Addr))
	err := a.server.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error

	if err := a.server.Shutdown(ctx); err != nil {
		shutdownErr = err
	}
	if a.postgres != nil {
		a.postgres.Close()
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil && shutdownErr == nil {
			shutdownErr = err
		}
	}

	return shutdownErr
}

func (a *App) Handler() http.Handler {
	return a.httpRouter
}
