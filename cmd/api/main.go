package main

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"schoolrecords/internal/auth"
	"schoolrecords/internal/backup"
	"schoolrecords/internal/config"
	"schoolrecords/internal/handler"
	"schoolrecords/internal/httpmiddleware"
	"schoolrecords/internal/logger"
	"schoolrecords/internal/media"
	"schoolrecords/internal/metrics"
	"schoolrecords/internal/notify"
	"schoolrecords/internal/queue"
	"schoolrecords/internal/records"
	"schoolrecords/internal/seed"
	"schoolrecords/internal/store"
)

func main() {
	cfg := config.Load()
	logger.Configure(logger.Config{Level: cfg.LogLevel, Pretty: cfg.LogPretty})

	if cfg.Production() {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := runHTTP(cfg); err != nil {
		logger.Fatal().Err(err).Msg("http server failed")
	}
}

func runHTTP(cfg config.App) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st := records.New(
		records.WithEstimatedPresence(cfg.PresentTodayMode == records.PresenceSourceEstimate),
		records.WithSystemLabels(cfg.SystemHealthLabel, cfg.PlaceholderLastBackup),
	)
	if !cfg.SeedDisabled {
		if err := bootstrap(st, cfg); err != nil {
			logger.Warn().Err(err).Msg("seed fixture not loaded")
		}
	}

	m := metrics.New()
	if err := m.WatchStore(st); err != nil {
		return err
	}

	var redisClient *store.Redis
	if cfg.QueueBackend == queue.BackendRedis || cfg.RateLimitBackend == "redis" {
		redisClient = store.NewRedis(cfg.Redis)
		defer redisClient.Close()
	}

	q, err := newQueue(cfg, redisClient)
	if err != nil {
		return err
	}
	// the in-memory queue is process local, so deliver from here
	if cfg.QueueBackend != queue.BackendRedis {
		b := notify.New(cfg.NotifyWebhookURL, cfg.NotifySkip)
		b.Observe = m.ObserveBroadcast
		go func() {
			if err := notify.Run(ctx, q, b); err != nil {
				logger.Error().Err(err).Msg("broadcast consumer stopped")
			}
		}()
	}

	sink, err := backup.Open(ctx, cfg.Backup)
	if err != nil {
		return err
	}
	if c, ok := sink.(io.Closer); ok {
		defer c.Close()
	}
	// backup entries land in the same activity log as every other mutation
	backups := backup.NewManager(st, sink,
		backup.WithAuditor(records.NewService(st)),
		backup.WithObserver(m.ObserveBackup),
	)
	if err := backups.Refresh(ctx); err != nil {
		logger.Warn().Err(err).Str("driver", sink.Driver()).Msg("could not list existing backups")
	}
	svc := records.NewService(st, records.WithPublisher(queue.Topic{Queue: q}), records.WithBackups(backups))
	go backups.Run(ctx, cfg.Backup.Interval)

	uploader := media.New(cfg.CloudinaryCloudName, cfg.CloudinaryAPIKey, cfg.CloudinaryAPISecret, cfg.CloudinaryFolder)
	if uploader.Enabled() {
		logger.Info().Str("cloud", cfg.CloudinaryCloudName).Msg("cloudinary configured")
	} else {
		logger.Info().Msg("cloudinary not configured, uploads disabled")
	}

	var limiter httpmiddleware.Limiter = httpmiddleware.NewTokenBucket(cfg.RateLimitPerMin, cfg.RateLimitPerMin)
	if cfg.RateLimitBackend == "redis" {
		limiter = httpmiddleware.NewRedisWindow(redisClient.Client, cfg.RateLimitPerMin)
	}

	tokens := auth.NewIssuer(cfg.JWTIssuer, cfg.JWTSigningKey, cfg.AccessTTL)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(httpmiddleware.RequestID())
	r.Use(httpmiddleware.AccessLog("/healthz", "/metrics"))
	r.Use(httpmiddleware.Instrument(m))
	r.Use(cors.New(cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:    []string{"Origin", "Content-Type", "Accept", "Authorization", httpmiddleware.RequestIDHeader},
		ExposeHeaders:   []string{httpmiddleware.RequestIDHeader},
		MaxAge:          24 * time.Hour,
	}))
	r.Use(httpmiddleware.SecurityHeaders())
	r.Use(httpmiddleware.RateLimit(limiter))
	r.Use(auth.Identify(tokens))

	r.GET("/metrics", gin.WrapH(m.Handler()))
	r.GET("/healthz", func(c *gin.Context) {
		body := gin.H{"status": "ok", "backupDriver": sink.Driver()}
		status := http.StatusOK
		if redisClient != nil {
			healthy := redisClient.Healthy(c.Request.Context())
			body["redis"] = healthy
			if !healthy {
				body["status"] = "degraded"
				status = http.StatusServiceUnavailable
			}
		}
		c.JSON(status, body)
	})

	handler.New(svc, tokens, handler.WithBackups(backups), handler.WithUploader(uploader)).Routes(r)

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("port", cfg.HTTPPort).Msg("starting server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	logger.Info().Msg("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server forced shutdown")
	}
	logger.Info().Msg("server exited")
	return nil
}

func bootstrap(st *records.Store, cfg config.App) error {
	fixture, err := seed.Load(cfg.SeedFile)
	if err != nil {
		return err
	}
	seed.Apply(st, fixture, seed.Options{Rand: seed.NewRand(cfg.SeedRandom)})
	return nil
}

func newQueue(cfg config.App, redisClient *store.Redis) (queue.Queue, error) {
	if cfg.QueueBackend == queue.BackendRedis {
		return queue.New(queue.BackendRedis, redisClient.Client, cfg.QueueKey, 0)
	}
	return queue.New(cfg.QueueBackend, nil, cfg.QueueKey, 64)
}
