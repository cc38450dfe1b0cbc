package store

import (
	"context"
	"fmt"

	redis "github.com/redis/go-redis/v9"
)

// NewClient parses redisURL without contacting the server.
func NewClient(redisURL string) (*redis.Client, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return redis.NewClient(opt), nil
}

// Connect parses redisURL and pings the server.
func Connect(ctx context.Context, redisURL string) (*redis.Client, error) {
	c, err := NewClient(redisURL)
	if err != nil {
		return nil, err
	}
	if err := c.Ping(ctx).Err(); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return c, nil
}

func runKey(runID, suffix string) string { return fmt.Sprintf("run:%s:%s", runID, suffix) }
