package store

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// Config selects and configures a store
type Config struct {
	Kind     string         `yaml:"kind" json:"kind"` // memory, dir, postgres or s3
	Dir      string         `yaml:"dir" json:"dir"`
	Watch    bool           `yaml:"watch" json:"watch"`
	Postgres PostgresConfig `yaml:"postgres" json:"postgres"`
	S3       S3Config       `yaml:"s3" json:"s3"`
}

// Open creates the store named by cfg.Kind
func Open(ctx context.Context, cfg Config, logger *zap.Logger) (Store, error) {
	switch cfg.Kind {
	case "", "memory":
		return NewMemory(), nil
	case "dir":
		return NewDir(cfg.Dir, logger)
	case "postgres":
		return NewPostgres(ctx, cfg.Postgres)
	case "s3":
		return NewS3(ctx, cfg.S3)
	default:
		return nil, fmt.Errorf("unknown store kind: %s", cfg.Kind)
	}
}
