package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/payflow/payflow/internal/app"
	"github.com/payflow/payflow/internal/auth"
	"github.com/payflow/payflow/internal/authz"
	"github.com/payflow/payflow/internal/gateway"
	"github.com/payflow/payflow/internal/gateway/paystack"
	"github.com/payflow/payflow/internal/gateway/stratus"
	"github.com/payflow/payflow/internal/observability"
	"github.com/payflow/payflow/internal/payments"
	"github.com/payflow/payflow/internal/permissions"
	"github.com/payflow/payflow/internal/rbac"
	"github.com/payflow/payflow/internal/resilience"
	"github.com/payflow/payflow/internal/routing"
	"github.com/payflow/payflow/internal/shared"
	"github.com/payflow/payflow/internal/webhooks"
	"github.com/payflow/payflow/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	dbpool, err := pgxpool.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Warn("redis ping", slog.Any("error", err))
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()

	hierarchy := rbac.MustDefaultHierarchy()
	limits := rbac.DefaultMonetaryLimits()
	permStore := permissions.NewStore(permissions.NewRepository(dbpool), cfg.PermissionCacheTTL)
	classifier := authz.NewDomainClassifier(domainPrefixes(cfg), rbac.DomainSocialCommerce)
	auditLogger := shared.NewAuditLogger(dbpool)
	evaluator := authz.NewEvaluator(hierarchy, limits, permStore, classifier, auditLogger, logger)

	registry := gateway.NewRegistry()
	registry.Register(stratus.New(stratus.Config{
		BaseURL:       cfg.StratusBaseURL,
		SecretKey:     cfg.StratusSecretKey,
		WebhookSecret: cfg.StratusWebhookSecret,
	}))
	registry.Register(paystack.New(paystack.Config{
		BaseURL:   cfg.PaystackBaseURL,
		SecretKey: cfg.PaystackSecretKey,
	}))

	router := routing.NewDefault()
	if len(cfg.RoutingCountries) > 0 || len(cfg.RoutingCurrencies) > 0 {
		countries, currencies := cfg.RoutingCountries, cfg.RoutingCurrencies
		if len(countries) == 0 {
			countries = routing.DefaultCountries()
		}
		if len(currencies) == 0 {
			currencies = routing.DefaultCurrencies()
		}
		router = routing.New(countries, currencies, gateway.ProviderPaystack, gateway.ProviderStratus)
	}

	transitionPublisher := resilience.NewRedisPublisher(redisClient, logger)
	guard := resilience.NewManager(resilienceConfig(cfg), nil, logger,
		resilience.LogListener(logger),
		transitionPublisher.Listener(),
		func(downstream string, from, to resilience.State) {
			metrics.BreakerTransition(downstream, from.String(), to.String())
		},
	)

	statusCache := payments.NewStatusCache(redisClient, cfg.StatusCacheTTL)
	idempotency := shared.NewIdempotencyStore(redisClient, cfg.IdempotencyTTL)

	paymentService := payments.NewService(logger, evaluator, router, registry, guard, statusCache, idempotency, metrics)
	paymentHandler := payments.NewHandler(logger, paymentService)

	authService := auth.NewService(auth.NewRepository(dbpool), logger)

	jobClient, err := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	if err != nil {
		logger.Error("init job client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()
	webhookHandler := webhooks.NewHandler(logger, registry, jobClient)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger)

	handler := app.NewRouter(app.RouterParams{
		Logger:          logger,
		Config:          cfg,
		AuthService:     authService,
		PaymentsHandler: paymentHandler,
		WebhooksHandler: webhookHandler,
		JobHandler:      jobHandler,
		Resilience:      guard,
		Metrics:         metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      handler,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}

func domainPrefixes(cfg *app.Config) map[string]rbac.Domain {
	if len(cfg.DomainPrefixes) == 0 {
		return authz.DefaultPrefixes()
	}
	prefixes := make(map[string]rbac.Domain, len(cfg.DomainPrefixes))
	for prefix, domain := range cfg.DomainPrefixes {
		prefixes[prefix] = rbac.Domain(domain)
	}
	return prefixes
}

func resilienceConfig(cfg *app.Config) resilience.Config {
	return resilience.Config{
		Breaker: resilience.BreakerConfig{
			WindowSize:           cfg.BreakerWindowSize,
			MinimumCalls:         cfg.BreakerMinimumCalls,
			FailureRateThreshold: cfg.BreakerFailureRate,
			WaitDuration:         cfg.BreakerWaitDuration,
			TrialCalls:           cfg.BreakerTrialCalls,
		},
		Retry: resilience.RetryPolicy{
			MaxAttempts:    cfg.RetryMaxAttempts,
			InitialBackoff: cfg.RetryInitialBackoff,
			Multiplier:     cfg.RetryBackoffMultiplier,
			MaxBackoff:     cfg.RetryMaxBackoff,
		},
		BulkheadLimit:  cfg.BulkheadLimit,
		AttemptTimeout: cfg.AttemptTimeout,
	}
}
