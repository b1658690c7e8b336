package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pulsekeep/pulsekeep/internal/app_interfaces"
	"github.com/pulsekeep/pulsekeep/internal/models"
	"github.com/pulsekeep/pulsekeep/internal/transform"
)

// Sentinel errors the HTTP layer maps onto status codes. Raw constraint
// violations never escape this package.
var (
	ErrBucketExists = errors.New("bucket already exists")
	ErrNoSuchBucket = errors.New("no such bucket")
)

// Ensure EventStore implements app_interfaces.EventStoreService.
var _ app_interfaces.EventStoreService = (*EventStore)(nil)

// EventStore is the pgx-backed store for buckets and their events. Raw SQL
// on a pgxpool keeps the append/read hot path off the ORM; every mutating
// operation runs in a single transaction.
type EventStore struct {
	pool *pgxpool.Pool
}

const eventStoreSchema = `
CREATE TABLE IF NOT EXISTS buckets (
	id         SERIAL PRIMARY KEY,
	bucket_id  TEXT UNIQUE NOT NULL,
	name       TEXT,
	type       TEXT NOT NULL,
	client     TEXT NOT NULL,
	hostname   TEXT NOT NULL,
	created    TIMESTAMPTZ NOT NULL,
	data       JSONB NOT NULL DEFAULT '{}'
);
CREATE TABLE IF NOT EXISTS events (
	id         BIGSERIAL PRIMARY KEY,
	bucket_id  TEXT NOT NULL REFERENCES buckets(bucket_id) ON DELETE CASCADE,
	timestamp  TIMESTAMPTZ NOT NULL,
	duration   BIGINT NOT NULL,
	data       JSONB NOT NULL DEFAULT '{}'
);
CREATE INDEX IF NOT EXISTS idx_events_bucket_timestamp ON events (bucket_id, timestamp);
CREATE INDEX IF NOT EXISTS idx_events_timestamp ON events (timestamp);
`

func InitEventStore(dsn string) (*EventStore, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	cfg.MaxConns = 20
	cfg.MinConns = 1
	pool, err := pgxpool.NewWithConfig(context.Background(), cfg)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to database: %v", err)
	}
	if _, err := pool.Exec(context.Background(), eventStoreSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("event store schema setup failed: %w", err)
	}
	return &EventStore{pool: pool}, nil
}

func (s *EventStore) CloseDB() {
	if s.pool != nil {
		s.pool.Close()
	}
}

func (s *EventStore) Health(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// CreateBucket inserts a bucket row. Duplicate bucket IDs return
// ErrBucketExists; the losing side of a concurrent create gets the same
// error from the unique constraint.
func (s *EventStore) CreateBucket(ctx context.Context, b *models.Bucket) error {
	if b.Created.IsZero() {
		b.Created = time.Now().UTC()
	}
	if b.Data == nil {
		b.Data = map[string]any{}
	}
	dataJSON, err := json.Marshal(b.Data)
	if err != nil {
		return fmt.Errorf("failed to serialize bucket data: %w", err)
	}

	q := `INSERT INTO buckets (bucket_id, name, type, client, hostname, created, data)
	      VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err = s.pool.Exec(ctx, q, b.ID, b.Name, b.Type, b.Client, b.Hostname, b.Created, dataJSON)
	if isPgError(err, "23505") {
		return ErrBucketExists
	}
	return err
}

func (s *EventStore) GetBucket(ctx context.Context, bucketID string) (*models.Bucket, error) {
	q := `SELECT bucket_id, name, type, client, hostname, created, data
	      FROM buckets WHERE bucket_id = $1`
	b, err := scanBucket(s.pool.QueryRow(ctx, q, bucketID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNoSuchBucket
	}
	if err != nil {
		return nil, err
	}
	return b, nil
}

// GetBuckets returns all buckets keyed by bucket ID.
func (s *EventStore) GetBuckets(ctx context.Context) (map[string]models.Bucket, error) {
	q := `SELECT bucket_id, name, type, client, hostname, created, data FROM buckets`
	rows, err := s.pool.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	buckets := make(map[string]models.Bucket)
	for rows.Next() {
		b, err := scanBucket(rows)
		if err != nil {
			return nil, err
		}
		buckets[b.ID] = *b
	}
	return buckets, rows.Err()
}

// DeleteBucket removes a bucket together with all of its events in one
// transaction. It reports whether a bucket row was actually removed; the
// events delete is explicit even though the FK cascade would also cover it.
func (s *EventStore) DeleteBucket(ctx context.Context, bucketID string) (bool, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return false, err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM events WHERE bucket_id = $1`, bucketID); err != nil {
		return false, err
	}
	tag, err := tx.Exec(ctx, `DELETE FROM buckets WHERE bucket_id = $1`, bucketID)
	if err != nil {
		return false, err
	}
	if err := tx.Commit(ctx); err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// InsertEvents appends a batch of events atomically. Either the whole batch
// commits or none of it does. An empty batch is a successful no-op.
// Appending to a missing (or concurrently deleted) bucket returns
// ErrNoSuchBucket via the foreign key.
func (s *EventStore) InsertEvents(ctx context.Context, bucketID string, events []models.Event) ([]models.Event, error) {
	if len(events) == 0 {
		return []models.Event{}, nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	inserted, err := insertEventsTx(ctx, tx, bucketID, events)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return inserted, nil
}

func insertEventsTx(ctx context.Context, tx pgx.Tx, bucketID string, events []models.Event) ([]models.Event, error) {
	q := `INSERT INTO events (bucket_id, timestamp, duration, data)
	      VALUES ($1, $2, $3, $4) RETURNING id`
	inserted := make([]models.Event, 0, len(events))
	for _, ev := range events {
		dataJSON, err := json.Marshal(normalizeData(ev.Data))
		if err != nil {
			return nil, fmt.Errorf("failed to serialize event data: %w", err)
		}
		var id int64
		err = tx.QueryRow(ctx, q, bucketID, ev.Timestamp, durationMicros(ev.Duration), dataJSON).Scan(&id)
		if isPgError(err, "23503") {
			return nil, ErrNoSuchBucket
		}
		if err != nil {
			return nil, err
		}
		ev.ID = id
		inserted = append(inserted, ev)
	}
	return inserted, nil
}

// GetEvents returns events of a bucket, newest first, filtered by the
// half-open range [start, end) and truncated by limit (0 = no limit).
func (s *EventStore) GetEvents(ctx context.Context, bucketID string, start, end *time.Time, limit int) ([]models.Event, error) {
	if _, err := s.GetBucket(ctx, bucketID); err != nil {
		return nil, err
	}

	q := `SELECT id, timestamp, duration, data FROM events WHERE bucket_id = $1`
	args := []any{bucketID}
	if start != nil {
		args = append(args, *start)
		q += fmt.Sprintf(" AND timestamp >= $%d", len(args))
	}
	if end != nil {
		args = append(args, *end)
		q += fmt.Sprintf(" AND timestamp < $%d", len(args))
	}
	q += " ORDER BY timestamp DESC, id DESC"
	if limit > 0 {
		args = append(args, limit)
		q += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	events := []models.Event{}
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

// CountEvents counts events of a bucket inside the half-open range
// [start, end), with nil bounds meaning unbounded.
func (s *EventStore) CountEvents(ctx context.Context, bucketID string, start, end *time.Time) (int64, error) {
	if _, err := s.GetBucket(ctx, bucketID); err != nil {
		return 0, err
	}

	q := `SELECT COUNT(*) FROM events WHERE bucket_id = $1`
	args := []any{bucketID}
	if start != nil {
		args = append(args, *start)
		q += fmt.Sprintf(" AND timestamp >= $%d", len(args))
	}
	if end != nil {
		args = append(args, *end)
		q += fmt.Sprintf(" AND timestamp < $%d", len(args))
	}

	var count int64
	if err := s.pool.QueryRow(ctx, q, args...).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

// Heartbeat merges the event into the most recent event of the bucket when
// the transform allows it, otherwise inserts it as a new row. The most
// recent event is locked for the duration of the transaction so concurrent
// heartbeats on one bucket serialize instead of double-merging.
func (s *EventStore) Heartbeat(ctx context.Context, bucketID string, ev models.Event, pulsetime float64) (models.Event, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return models.Event{}, err
	}
	defer tx.Rollback(ctx)

	last, err := scanEvent(tx.QueryRow(ctx,
		`SELECT id, timestamp, duration, data FROM events
		 WHERE bucket_id = $1 ORDER BY timestamp DESC, id DESC LIMIT 1 FOR UPDATE`, bucketID))

	var result models.Event
	switch {
	case err == nil:
		if merged, ok := transform.Heartbeat(last, ev, pulsetime); ok {
			dataJSON, merr := json.Marshal(normalizeData(merged.Data))
			if merr != nil {
				return models.Event{}, fmt.Errorf("failed to serialize event data: %w", merr)
			}
			if _, uerr := tx.Exec(ctx,
				`UPDATE events SET timestamp = $1, duration = $2, data = $3 WHERE id = $4`,
				merged.Timestamp, durationMicros(merged.Duration), dataJSON, merged.ID); uerr != nil {
				return models.Event{}, uerr
			}
			result = merged
			break
		}
		fallthrough
	case errors.Is(err, pgx.ErrNoRows):
		inserted, ierr := insertEventsTx(ctx, tx, bucketID, []models.Event{ev})
		if ierr != nil {
			return models.Event{}, ierr
		}
		result = inserted[0]
	default:
		return models.Event{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return models.Event{}, err
	}
	return result, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBucket(row rowScanner) (*models.Bucket, error) {
	var b models.Bucket
	var dataJSON []byte
	if err := row.Scan(&b.ID, &b.Name, &b.Type, &b.Client, &b.Hostname, &b.Created, &dataJSON); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(dataJSON, &b.Data); err != nil {
		return nil, fmt.Errorf("failed to decode bucket data: %w", err)
	}
	return &b, nil
}

func scanEvent(row rowScanner) (models.Event, error) {
	var ev models.Event
	var micros int64
	var dataJSON []byte
	if err := row.Scan(&ev.ID, &ev.Timestamp, &micros, &dataJSON); err != nil {
		return models.Event{}, err
	}
	ev.Duration = float64(micros) / 1e6
	if err := json.Unmarshal(dataJSON, &ev.Data); err != nil {
		return models.Event{}, fmt.Errorf("failed to decode event data: %w", err)
	}
	return ev, nil
}

func durationMicros(seconds float64) int64 {
	return int64(math.Round(seconds * 1e6))
}

func normalizeData(data map[string]any) map[string]any {
	if data == nil {
		return map[string]any{}
	}
	return data
}

func isPgError(err error, code string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == code
}
