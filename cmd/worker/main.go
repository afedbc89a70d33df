package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/payflow/payflow/internal/app"
	"github.com/payflow/payflow/internal/gateway"
	"github.com/payflow/payflow/internal/gateway/paystack"
	"github.com/payflow/payflow/internal/gateway/stratus"
	"github.com/payflow/payflow/internal/payments"
	"github.com/payflow/payflow/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
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

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Warn("redis ping", slog.Any("error", err))
	}

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

	statusCache := payments.NewStatusCache(redisClient, cfg.StatusCacheTTL)
	processor := jobs.NewProcessor(registry, statusCache, logger)

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Processor: processor,
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
