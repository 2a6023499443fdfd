package backup

import (
	"context"
	"fmt"
	"strings"

	"schoolrecords/internal/config"
	"schoolrecords/internal/store"
)

// Open builds the sink selected by cfg.Driver.
func Open(ctx context.Context, cfg config.Backup) (Sink, error) {
	switch strings.ToLower(cfg.Driver) {
	case "", DriverMemory:
		return NewMemorySink(), nil
	case DriverFS:
		return NewFSSink(cfg.Dir)
	case DriverS3:
		return NewS3Sink(ctx, S3Config{
			Bucket:    cfg.S3Bucket,
			Region:    cfg.S3Region,
			Endpoint:  cfg.S3Endpoint,
			PathStyle: cfg.S3PathStyle,

			AccessKeyID:     cfg.S3AccessKeyID,
			SecretAccessKey: cfg.S3SecretAccessKey,
		})
	case DriverPostgres:
		db, err := store.NewDB(ctx, cfg.DatabaseURL)
		if err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		return NewPostgresSink(ctx, db)
	case DriverSQLite:
		return NewSQLiteSink(ctx, cfg.SQLitePath)
	default:
		return nil, fmt.Errorf("unknown backup driver %q", cfg.Driver)
	}
}
