package redis

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	goredis "github.com/go-redis/redis/v8"
)

// Config configures the Redis connection.
type Config struct {
	Addr     string // e.g. "localhost:6379"
	Password string
	DB       int
}

// Connect creates a client and pings the server.
func Connect(ctx context.Context, cfg Config, log *slog.Logger) (*goredis.Client, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	log.Info("redis connected", "component", "redis", "addr", cfg.Addr)
	return client, nil
}
