package models

import (
	"reflect"
	"time"

	"github.com/lib/pq"
	"gorm.io/datatypes"
)

// Bucket is a named, typed container of events belonging to one client.
// Buckets and their events live in the pgx-backed event store, not GORM.
type Bucket struct {
	ID       string         `json:"id"`
	Name     *string        `json:"name"`
	Type     string         `json:"type"`
	Client   string         `json:"client"`
	Hostname string         `json:"hostname"`
	Created  time.Time      `json:"created"`
	Data     map[string]any `json:"data"`
}

// Event is a single timestamped record with a duration and an arbitrary
// JSON payload. Duration is seconds on the wire; the store keeps integer
// microseconds.
type Event struct {
	ID        int64          `json:"id,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
	Duration  float64        `json:"duration"`
	Data      map[string]any `json:"data"`
}

// End returns the instant at which the event ends.
func (e Event) End() time.Time {
	return e.Timestamp.Add(time.Duration(e.Duration * float64(time.Second)))
}

// DataEquals reports whether two events carry the same payload.
func (e Event) DataEquals(other Event) bool {
	if len(e.Data) == 0 && len(other.Data) == 0 {
		return true
	}
	return reflect.DeepEqual(e.Data, other.Data)
}

// APIKey is a bearer credential. Only the HMAC-SHA256 hash of the secret is
// stored; the plaintext is returned exactly once at creation time and the
// hash is never serialized in responses.
type APIKey struct {
	ID          uint           `gorm:"primaryKey" json:"id"`
	KeyHash     string         `gorm:"uniqueIndex;size:64;not null" json:"-"`
	ClientID    string         `gorm:"index;not null" json:"client_id"`
	Description *string        `json:"description"`
	Scopes      pq.StringArray `gorm:"type:text[]" json:"scopes,omitempty"`
	CreatedAt   time.Time      `gorm:"not null" json:"created_at"`
	LastUsedAt  *time.Time     `json:"last_used_at"`
	IsActive    bool           `gorm:"index;not null;default:true" json:"is_active"`
}

func (APIKey) TableName() string { return "api_keys" }

// Setting is an opaque key/value row backing the settings passthrough API.
type Setting struct {
	Key       string         `gorm:"primaryKey;size:255"`
	Value     datatypes.JSON `gorm:"type:jsonb"`
	UpdatedAt time.Time
}
