package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestEventEnd(t *testing.T) {
	ts := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	ev := Event{Timestamp: ts, Duration: 2.5}

	assert.Equal(t, ts.Add(2500*time.Millisecond), ev.End())
}

func TestEventEnd_ZeroDuration(t *testing.T) {
	ts := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	ev := Event{Timestamp: ts}

	assert.Equal(t, ts, ev.End())
}

func TestDataEquals(t *testing.T) {
	a := Event{Data: map[string]any{"app": "editor", "tags": []any{"work"}}}
	b := Event{Data: map[string]any{"app": "editor", "tags": []any{"work"}}}
	c := Event{Data: map[string]any{"app": "browser"}}

	assert.True(t, a.DataEquals(b))
	assert.True(t, b.DataEquals(a))
	assert.False(t, a.DataEquals(c))
}

func TestDataEquals_EmptyAndNilAreEqual(t *testing.T) {
	withNil := Event{Data: nil}
	withEmpty := Event{Data: map[string]any{}}

	assert.True(t, withNil.DataEquals(withEmpty))
	assert.True(t, withEmpty.DataEquals(withNil))
}
