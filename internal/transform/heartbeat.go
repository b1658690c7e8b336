package transform

import (
	"time"

	"github.com/pulsekeep/pulsekeep/internal/models"
)

// Heartbeat decides whether a new heartbeat event should be merged into the
// most recent event of a bucket or inserted as a new row.
//
// The two events merge when they carry an identical payload and the new
// event starts inside the pulse window, which runs from the start of the
// last event to its end plus pulsetime seconds. On a merge the last event
// absorbs the new one: its duration grows so that it covers the later of
// the two end points (it never shrinks).
//
// The decision depends only on the last event, the new event and the
// pulsetime; it never looks at older history.
func Heartbeat(last, next models.Event, pulsetime float64) (models.Event, bool) {
	if !last.DataEquals(next) {
		return models.Event{}, false
	}

	windowEnd := last.End().Add(time.Duration(pulsetime * float64(time.Second)))
	if next.Timestamp.Before(last.Timestamp) || next.Timestamp.After(windowEnd) {
		return models.Event{}, false
	}

	merged := last
	if extended := next.End().Sub(last.Timestamp).Seconds(); extended > merged.Duration {
		merged.Duration = extended
	}
	return merged, true
}
