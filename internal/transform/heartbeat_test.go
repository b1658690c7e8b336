package transform

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/pulsekeep/pulsekeep/internal/models"
)

func makeEvent(ts time.Time, duration float64, data map[string]any) models.Event {
	return models.Event{Timestamp: ts, Duration: duration, Data: data}
}

func TestHeartbeat_MergesAdjacentIdenticalPayload(t *testing.T) {
	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	data := map[string]any{"app": "editor", "title": "main.go"}

	last := makeEvent(start, 10, data)
	next := makeEvent(start.Add(12*time.Second), 5, data)

	merged, ok := Heartbeat(last, next, 5.0)
	assert.True(t, ok)
	assert.Equal(t, start, merged.Timestamp)
	assert.InDelta(t, 17.0, merged.Duration, 1e-9)
}

func TestHeartbeat_DurationNeverShrinks(t *testing.T) {
	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	data := map[string]any{"app": "editor"}

	last := makeEvent(start, 60, data)
	// Next event starts inside the last one and ends before it does.
	next := makeEvent(start.Add(5*time.Second), 1, data)

	merged, ok := Heartbeat(last, next, 10.0)
	assert.True(t, ok)
	assert.InDelta(t, 60.0, merged.Duration, 1e-9)
}

func TestHeartbeat_RejectsDifferentPayload(t *testing.T) {
	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	last := makeEvent(start, 10, map[string]any{"app": "editor"})
	next := makeEvent(start.Add(time.Second), 10, map[string]any{"app": "browser"})

	_, ok := Heartbeat(last, next, 60.0)
	assert.False(t, ok)
}

func TestHeartbeat_RejectsOutsidePulseWindow(t *testing.T) {
	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	data := map[string]any{"app": "editor"}

	last := makeEvent(start, 10, data)
	// Last event ends at +10s; pulsetime 5 gives a window ending at +15s.
	next := makeEvent(start.Add(16*time.Second), 1, data)

	_, ok := Heartbeat(last, next, 5.0)
	assert.False(t, ok)
}

func TestHeartbeat_WindowBoundaryMerges(t *testing.T) {
	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	data := map[string]any{"app": "editor"}

	last := makeEvent(start, 10, data)
	next := makeEvent(start.Add(15*time.Second), 2, data)

	merged, ok := Heartbeat(last, next, 5.0)
	assert.True(t, ok)
	assert.InDelta(t, 17.0, merged.Duration, 1e-9)
}

func TestHeartbeat_RejectsEventBeforeLastStart(t *testing.T) {
	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	data := map[string]any{"app": "editor"}

	last := makeEvent(start, 10, data)
	next := makeEvent(start.Add(-time.Second), 1, data)

	_, ok := Heartbeat(last, next, 60.0)
	assert.False(t, ok)
}

func TestHeartbeat_EmptyPayloadsAreEqual(t *testing.T) {
	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	last := makeEvent(start, 1, nil)
	next := makeEvent(start.Add(time.Second), 1, map[string]any{})

	_, ok := Heartbeat(last, next, 10.0)
	assert.True(t, ok)
}
