package main

import (
	"context"
	"os/signal"
	"syscall"

	"schoolrecords/internal/config"
	"schoolrecords/internal/logger"
	"schoolrecords/internal/notify"
	"schoolrecords/internal/queue"
	"schoolrecords/internal/store"
)

// Worker consumes announcement broadcasts from Redis and posts them to the
// configured webhook.
func main() {
	cfg := config.Load()
	logger.Configure(logger.Config{Level: cfg.LogLevel, Pretty: cfg.LogPretty})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.QueueBackend != queue.BackendRedis {
		logger.Fatal().Str("backend", cfg.QueueBackend).Msg("worker needs QUEUE_BACKEND=redis; the memory queue is consumed inside the api")
	}

	redisClient := store.NewRedis(cfg.Redis)
	defer redisClient.Close()
	if !redisClient.Healthy(ctx) {
		logger.Warn().Str("addr", cfg.Redis.Addr).Msg("redis not reachable yet, will keep retrying")
	}

	q, err := queue.New(queue.BackendRedis, redisClient.Client, cfg.QueueKey, 0)
	if err != nil {
		logger.Fatal().Err(err).Msg("queue init failed")
	}
	b := notify.New(cfg.NotifyWebhookURL, cfg.NotifySkip)
	if b.Skip {
		logger.Info().Msg("webhook delivery disabled, broadcasts will only be logged")
	}

	logger.Info().Str("key", cfg.QueueKey).Msg("worker started, waiting for messages")
	if err := notify.Run(ctx, q, b); err != nil {
		logger.Fatal().Err(err).Msg("consume failed")
	}
	logger.Info().Msg("worker stopped")
}
