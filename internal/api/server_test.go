package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/pulsekeep/pulsekeep/internal/api_types"
	"github.com/pulsekeep/pulsekeep/internal/app_interfaces"
	"github.com/pulsekeep/pulsekeep/internal/config"
	"github.com/pulsekeep/pulsekeep/internal/db"
	"github.com/pulsekeep/pulsekeep/internal/models"
	"github.com/pulsekeep/pulsekeep/internal/services"
	"github.com/pulsekeep/pulsekeep/internal/transform"
)

// Mock implementations for dependencies

type mockPostgresDB struct {
	healthErr error
}

var _ app_interfaces.PostgresService = (*mockPostgresDB)(nil)

func (m *mockPostgresDB) Health(ctx context.Context) error { return m.healthErr }
func (m *mockPostgresDB) GetPostgresDB() *gorm.DB          { return nil }

type mockEventStore struct {
	healthErr error

	mu      sync.Mutex
	buckets map[string]models.Bucket
	events  map[string][]models.Event
	nextID  int64
}

var _ app_interfaces.EventStoreService = (*mockEventStore)(nil)

func newMockEventStore() *mockEventStore {
	return &mockEventStore{
		buckets: make(map[string]models.Bucket),
		events:  make(map[string][]models.Event),
	}
}

func (m *mockEventStore) Health(ctx context.Context) error { return m.healthErr }

func (m *mockEventStore) CreateBucket(ctx context.Context, b *models.Bucket) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.buckets[b.ID]; exists {
		return db.ErrBucketExists
	}
	if b.Created.IsZero() {
		b.Created = time.Now().UTC()
	}
	if b.Data == nil {
		b.Data = map[string]any{}
	}
	m.buckets[b.ID] = *b
	return nil
}

func (m *mockEventStore) GetBucket(ctx context.Context, bucketID string) (*models.Bucket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.buckets[bucketID]
	if !ok {
		return nil, db.ErrNoSuchBucket
	}
	return &b, nil
}

func (m *mockEventStore) GetBuckets(ctx context.Context) (map[string]models.Bucket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]models.Bucket, len(m.buckets))
	for id, b := range m.buckets {
		out[id] = b
	}
	return out, nil
}

func (m *mockEventStore) DeleteBucket(ctx context.Context, bucketID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.buckets[bucketID]
	delete(m.buckets, bucketID)
	delete(m.events, bucketID)
	return ok, nil
}

func (m *mockEventStore) InsertEvents(ctx context.Context, bucketID string, events []models.Event) ([]models.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.insertLocked(bucketID, events)
}

func (m *mockEventStore) insertLocked(bucketID string, events []models.Event) ([]models.Event, error) {
	if len(events) == 0 {
		return []models.Event{}, nil
	}
	if _, ok := m.buckets[bucketID]; !ok {
		return nil, db.ErrNoSuchBucket
	}
	inserted := make([]models.Event, 0, len(events))
	for _, ev := range events {
		m.nextID++
		ev.ID = m.nextID
		if ev.Data == nil {
			ev.Data = map[string]any{}
		}
		m.events[bucketID] = append(m.events[bucketID], ev)
		inserted = append(inserted, ev)
	}
	return inserted, nil
}

func (m *mockEventStore) GetEvents(ctx context.Context, bucketID string, start, end *time.Time, limit int) ([]models.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.buckets[bucketID]; !ok {
		return nil, db.ErrNoSuchBucket
	}
	filtered := []models.Event{}
	for _, ev := range m.events[bucketID] {
		if start != nil && ev.Timestamp.Before(*start) {
			continue
		}
		if end != nil && !ev.Timestamp.Before(*end) {
			continue
		}
		filtered = append(filtered, ev)
	}
	sort.Slice(filtered, func(i, j int) bool {
		if filtered[i].Timestamp.Equal(filtered[j].Timestamp) {
			return filtered[i].ID > filtered[j].ID
		}
		return filtered[i].Timestamp.After(filtered[j].Timestamp)
	})
	if limit > 0 && len(filtered) > limit {
		filtered = filtered[:limit]
	}
	return filtered, nil
}

func (m *mockEventStore) CountEvents(ctx context.Context, bucketID string, start, end *time.Time) (int64, error) {
	events, err := m.GetEvents(ctx, bucketID, start, end, 0)
	if err != nil {
		return 0, err
	}
	return int64(len(events)), nil
}

func (m *mockEventStore) Heartbeat(ctx context.Context, bucketID string, ev models.Event, pulsetime float64) (models.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.buckets[bucketID]; !ok {
		return models.Event{}, db.ErrNoSuchBucket
	}
	bucketEvents := m.events[bucketID]
	if len(bucketEvents) > 0 {
		lastIdx := 0
		for i := range bucketEvents {
			last := bucketEvents[lastIdx]
			cur := bucketEvents[i]
			if cur.Timestamp.After(last.Timestamp) ||
				(cur.Timestamp.Equal(last.Timestamp) && cur.ID > last.ID) {
				lastIdx = i
			}
		}
		if merged, ok := transform.Heartbeat(bucketEvents[lastIdx], ev, pulsetime); ok {
			m.events[bucketID][lastIdx] = merged
			return merged, nil
		}
	}
	inserted, err := m.insertLocked(bucketID, []models.Event{ev})
	if err != nil {
		return models.Event{}, err
	}
	return inserted[0], nil
}

type mockKeyStore struct {
	mu      sync.Mutex
	keys    map[uint]*models.APIKey
	secrets map[string]uint
	nextID  uint
}

var _ app_interfaces.KeyStoreService = (*mockKeyStore)(nil)

func newMockKeyStore() *mockKeyStore {
	return &mockKeyStore{
		keys:    make(map[uint]*models.APIKey),
		secrets: make(map[string]uint),
	}
}

func (m *mockKeyStore) CreateKey(ctx context.Context, clientID string, description *string, scopes []string) (string, *models.APIKey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	secret := fmt.Sprintf("secret-%d", m.nextID)
	ak := &models.APIKey{
		ID:          m.nextID,
		ClientID:    clientID,
		Description: description,
		Scopes:      pq.StringArray(scopes),
		CreatedAt:   time.Now().UTC(),
		IsActive:    true,
	}
	m.keys[ak.ID] = ak
	m.secrets[secret] = ak.ID
	return secret, ak, nil
}

func (m *mockKeyStore) Authenticate(ctx context.Context, presented string) (*models.APIKey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.secrets[presented]
	if !ok {
		return nil, services.ErrInvalidKey
	}
	ak := m.keys[id]
	if !ak.IsActive {
		return nil, services.ErrKeyRevoked
	}
	now := time.Now().UTC()
	ak.LastUsedAt = &now
	return ak, nil
}

func (m *mockKeyStore) Revoke(ctx context.Context, keyID uint) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ak, ok := m.keys[keyID]
	if !ok {
		return false, nil
	}
	ak.IsActive = false
	return true, nil
}

func (m *mockKeyStore) ListKeys(ctx context.Context) ([]models.APIKey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.APIKey, 0, len(m.keys))
	for _, ak := range m.keys {
		out = append(out, *ak)
	}
	return out, nil
}

type mockSettings struct {
	mu     sync.Mutex
	values map[string][]byte
}

var _ app_interfaces.SettingsService = (*mockSettings)(nil)

func newMockSettings() *mockSettings {
	return &mockSettings{values: make(map[string][]byte)}
}

func (m *mockSettings) Get(ctx context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.values[key]
	if !ok {
		return nil, services.ErrNoSuchSetting
	}
	return v, nil
}

func (m *mockSettings) Set(ctx context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
	return nil
}

func (m *mockSettings) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.values, key)
	return nil
}

type mockRedisClient struct {
	pingErr error
}

var _ app_interfaces.RedisService = (*mockRedisClient)(nil)

func (m *mockRedisClient) Ping(ctx context.Context) *redis.StatusCmd {
	cmd := redis.NewStatusCmd(ctx, "PING")
	if m.pingErr != nil {
		cmd.SetErr(m.pingErr)
	} else {
		cmd.SetVal("PONG")
	}
	return cmd
}

type testDeps struct {
	pg       *mockPostgresDB
	store    *mockEventStore
	rdb      *mockRedisClient
	keys     *mockKeyStore
	settings *mockSettings
}

func newTestDeps() *testDeps {
	return &testDeps{
		pg:       &mockPostgresDB{},
		store:    newMockEventStore(),
		rdb:      &mockRedisClient{},
		keys:     newMockKeyStore(),
		settings: newMockSettings(),
	}
}

func newTestServer(cfg *config.Config, d *testDeps) *Server {
	gin.SetMode(gin.TestMode)
	if cfg == nil {
		cfg = &config.Config{}
		cfg.Ingest.MaxBucketIDLen = config.DefaultMaxBucketIDLen
	}
	return NewServer(cfg, d.pg, d.store, d.rdb, d.keys, d.settings)
}

func performRequest(s *Server, method, path string, body any) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		raw, _ := json.Marshal(body)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)
	return w
}

func TestHealthCheckHandler_AllHealthy(t *testing.T) {
	d := newTestDeps()
	s := newTestServer(nil, d)

	w := performRequest(s, http.MethodGet, "/health", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	var resp api_types.HealthCheckResponse
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "healthy", resp.OverallStatus)
	assert.Equal(t, "healthy", resp.PostgreSQL)
	assert.Equal(t, "healthy", resp.EventStore)
	assert.Equal(t, "healthy", resp.Redis)
}

func TestHealthCheckHandler_PostgresUnhealthy(t *testing.T) {
	d := newTestDeps()
	d.pg.healthErr = errors.New("pg error")
	s := newTestServer(nil, d)

	w := performRequest(s, http.MethodGet, "/health", nil)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	var resp api_types.HealthCheckResponse
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "unhealthy", resp.OverallStatus)
	assert.Equal(t, "unhealthy", resp.PostgreSQL)
	assert.Equal(t, "healthy", resp.EventStore)
	assert.Contains(t, resp.Message, "pg error")
}

func TestHealthCheckHandler_EventStoreUnhealthy(t *testing.T) {
	d := newTestDeps()
	d.store.healthErr = errors.New("store error")
	s := newTestServer(nil, d)

	w := performRequest(s, http.MethodGet, "/health", nil)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	var resp api_types.HealthCheckResponse
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "unhealthy", resp.EventStore)
	assert.Equal(t, "healthy", resp.PostgreSQL)
}

func TestHealthCheckHandler_RedisUnhealthy(t *testing.T) {
	d := newTestDeps()
	d.rdb.pingErr = errors.New("redis error")
	s := newTestServer(nil, d)

	w := performRequest(s, http.MethodGet, "/health", nil)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	var resp api_types.HealthCheckResponse
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "unhealthy", resp.Redis)
	assert.Contains(t, resp.Message, "redis error")
}

func TestRun_ShutdownReturnsServerClosed(t *testing.T) {
	d := newTestDeps()
	cfg := &config.Config{}
	cfg.Ingest.MaxBucketIDLen = config.DefaultMaxBucketIDLen
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = "0"
	s := newTestServer(cfg, d)

	errCh := make(chan error, 1)
	go func() { errCh <- s.Run() }()

	// Give ListenAndServe a moment to install the listener.
	time.Sleep(50 * time.Millisecond)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, s.Shutdown(ctx))

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, http.ErrServerClosed)
	case <-time.After(2 * time.Second):
		t.Fatal("server did not stop after Shutdown")
	}
}

func TestInfoHandler(t *testing.T) {
	d := newTestDeps()
	cfg := &config.Config{Testing: true}
	cfg.Ingest.MaxBucketIDLen = config.DefaultMaxBucketIDLen
	s := newTestServer(cfg, d)

	w := performRequest(s, http.MethodGet, "/api/0/info", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	var resp api_types.InfoResponse
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.Hostname)
	assert.Equal(t, Version, resp.Version)
	assert.True(t, resp.Testing)
}
