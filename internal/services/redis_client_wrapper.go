package services

import (
	"context"

	"github.com/go-redis/redis/v8"

	"github.com/pulsekeep/pulsekeep/internal/app_interfaces"
)

// RedisClientWrapper wraps a *redis.Client to implement app_interfaces.RedisService.
type RedisClientWrapper struct {
	Client *redis.Client
}

func (w *RedisClientWrapper) Ping(ctx context.Context) *redis.StatusCmd {
	return w.Client.Ping(ctx)
}

var _ app_interfaces.RedisService = (*RedisClientWrapper)(nil)
