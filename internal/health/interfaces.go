package health

import (
	"context"

	"github.com/go-redis/redis/v8"
)

// DBHealthChecker is satisfied by both store handles (the GORM metadata
// store and the pgx event store) so boot readiness can probe them uniformly.
type DBHealthChecker interface {
	Health(ctx context.Context) error
}

// RedisHealthChecker probes the key-cache connection.
type RedisHealthChecker interface {
	Ping(ctx context.Context) *redis.StatusCmd
}
