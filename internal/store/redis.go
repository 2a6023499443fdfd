package store

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"schoolrecords/internal/config"
)

// Redis is the client behind the broadcast queue, the shared rate limiter
// and the /healthz probe.
type Redis struct {
	Client *redis.Client
	probe  time.Duration
}

// NewRedis builds a client from cfg. The connection is lazy; use Ping to
// check reachability.
func NewRedis(cfg config.Redis) *Redis {
	probe := cfg.ProbeTimeout
	if probe <= 0 {
		probe = time.Second
	}
	return &Redis{
		Client: redis.NewClient(&redis.Options{
			Addr:         cfg.Addr,
			Password:     cfg.Password,
			DB:           cfg.DB,
			PoolSize:     cfg.PoolSize,
			DialTimeout:  cfg.DialTimeout,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
		}),
		probe: probe,
	}
}

// Ping checks connectivity within the probe timeout.
func (r *Redis) Ping(ctx context.Context) error {
	if r == nil || r.Client == nil {
		return errors.New("redis not configured")
	}
	ctx, cancel := context.WithTimeout(ctx, r.probe)
	defer cancel()
	return r.Client.Ping(ctx).Err()
}

// Healthy reports whether Ping succeeds.
func (r *Redis) Healthy(ctx context.Context) bool {
	return r.Ping(ctx) == nil
}

// Close releases the client.
func (r *Redis) Close() error {
	if r == nil || r.Client == nil {
		return nil
	}
	return r.Client.Close()
}
