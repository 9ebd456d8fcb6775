package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// RedisMirrorKey is the hash holding the shared state.
const RedisMirrorKey = "focustimer:state"

// RedisMirror keeps the shared key-value state in a Redis hash.
type RedisMirror struct {
	client *redis.Client
	key    string
}

// NewRedisMirror connects to addr and verifies the connection.
func NewRedisMirror(ctx context.Context, addr string, logger zerolog.Logger) (*RedisMirror, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	logger.Info().Str("addr", addr).Msg("connected to redis mirror")
	return &RedisMirror{client: client, key: RedisMirrorKey}, nil
}

// Write stores value as JSON under field key.
func (mirror *RedisMirror) Write(ctx context.Context, key string, value any) error {
	encoded, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal mirror value %s: %w", key, err)
	}
	if err := mirror.client.HSet(ctx, mirror.key, key, encoded).Err(); err != nil {
		return fmt.Errorf("redis hset %s: %w", key, err)
	}
	return nil
}

// Read returns the raw JSON value stored under field key.
func (mirror *RedisMirror) Read(ctx context.Context, key string) (string, error) {
	value, err := mirror.client.HGet(ctx, mirror.key, key).Result()
	if err != nil {
		return "", fmt.Errorf("redis hget %s: %w", key, err)
	}
	return value, nil
}

// Close closes the connection.
func (mirror *RedisMirror) Close() error {
	return mirror.client.Close()
}
