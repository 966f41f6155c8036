package storage

import (
	"context"
	"fmt"
)

// Drivers
const (
	DriverMemory   = "memory"
	DriverFile     = "file"
	DriverRedis    = "redis"
	DriverPostgres = "postgres"
)

// Config selects and configures a KV implementation
type Config struct {
	Driver   string
	Path     string
	Redis    RedisConfig
	Postgres PostgresConfig
}

// Open creates the store named by cfg.Driver
func Open(ctx context.Context, cfg Config) (KV, error) {
	switch cfg.Driver {
	case DriverMemory:
		return NewMemoryStore(), nil
	case DriverFile, "":
		store, err := NewFileStore(cfg.Path)
		if err != nil {
			return nil, err
		}
		return store, nil
	case DriverRedis:
		store, err := NewRedisStore(ctx, cfg.Redis)
		if err != nil {
			return nil, err
		}
		return store, nil
	case DriverPostgres:
		store, err := NewPostgresStore(ctx, cfg.Postgres)
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown storage driver: %q", cfg.Driver)
	}
}
