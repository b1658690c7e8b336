package app_interfaces

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"

	"github.com/pulsekeep/pulsekeep/internal/models"
)

// PostgresService is the GORM-backed metadata store (API keys, settings)
// as consumed by the API server.
type PostgresService interface {
	Health(ctx context.Context) error
	GetPostgresDB() *gorm.DB
}

// EventStoreService is the bucket/event store consumed by the API server.
// Implementations must keep batch inserts atomic and translate storage
// constraint violations into the db sentinel errors.
type EventStoreService interface {
	Health(ctx context.Context) error
	CreateBucket(ctx context.Context, b *models.Bucket) error
	GetBucket(ctx context.Context, bucketID string) (*models.Bucket, error)
	GetBuckets(ctx context.Context) (map[string]models.Bucket, error)
	DeleteBucket(ctx context.Context, bucketID string) (bool, error)
	InsertEvents(ctx context.Context, bucketID string, events []models.Event) ([]models.Event, error)
	GetEvents(ctx context.Context, bucketID string, start, end *time.Time, limit int) ([]models.Event, error)
	CountEvents(ctx context.Context, bucketID string, start, end *time.Time) (int64, error)
	Heartbeat(ctx context.Context, bucketID string, ev models.Event, pulsetime float64) (models.Event, error)
}

// KeyStoreService issues, authenticates, revokes and lists API keys.
type KeyStoreService interface {
	CreateKey(ctx context.Context, clientID string, description *string, scopes []string) (string, *models.APIKey, error)
	Authenticate(ctx context.Context, presented string) (*models.APIKey, error)
	Revoke(ctx context.Context, keyID uint) (bool, error)
	ListKeys(ctx context.Context) ([]models.APIKey, error)
}

// SettingsService is the opaque key/value passthrough.
type SettingsService interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

// RedisService defines the Redis operations used by the API server.
type RedisService interface {
	Ping(ctx context.Context) *redis.StatusCmd
}
