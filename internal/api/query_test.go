package api

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pulsekeep/pulsekeep/internal/models"
)

func TestQuery_OneResultPerTimeperiod(t *testing.T) {
	d := newTestDeps()
	s := newTestServer(nil, d)
	setupBucket(t, s, "window")

	performRequest(s, http.MethodPost, "/api/0/buckets/window/events", []map[string]any{
		{"timestamp": "2024-05-01T10:00:00Z", "duration": 1, "data": map[string]any{"app": "editor"}},
		{"timestamp": "2024-05-02T10:00:00Z", "duration": 1, "data": map[string]any{"app": "browser"}},
	})

	body := map[string]any{
		"timeperiods": []any{
			[]string{"2024-05-01T00:00:00Z", "2024-05-02T00:00:00Z"},
			[]string{"2024-05-02T00:00:00Z", "2024-05-03T00:00:00Z"},
		},
		"query": []map[string]string{{"type": "bucket", "name": "window"}},
	}
	w := performRequest(s, http.MethodPost, "/api/0/query", body)

	assert.Equal(t, http.StatusOK, w.Code)
	var results [][]models.Event
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &results))
	require.Len(t, results, 2)
	require.Len(t, results[0], 1)
	assert.Equal(t, "editor", results[0][0].Data["app"])
	require.Len(t, results[1], 1)
	assert.Equal(t, "browser", results[1][0].Data["app"])
}

func TestQuery_AcceptsSlashSeparatedPeriodAndBareDates(t *testing.T) {
	d := newTestDeps()
	s := newTestServer(nil, d)
	setupBucket(t, s, "dated")

	performRequest(s, http.MethodPost, "/api/0/buckets/dated/events", []map[string]any{
		{"timestamp": "2024-05-01T12:00:00Z", "duration": 1},
	})

	body := map[string]any{
		"timeperiods": []any{"2024-05-01/2024-05-02"},
		"query":       []map[string]string{{"type": "bucket", "name": "dated"}},
	}
	w := performRequest(s, http.MethodPost, "/api/0/query", body)

	assert.Equal(t, http.StatusOK, w.Code)
	var results [][]models.Event
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &results))
	require.Len(t, results, 1)
	assert.Len(t, results[0], 1)
}

func TestQuery_EmptyBodyRejected(t *testing.T) {
	d := newTestDeps()
	s := newTestServer(nil, d)

	w := performRequest(s, http.MethodPost, "/api/0/query", map[string]any{
		"timeperiods": []any{},
		"query":       []map[string]string{},
	})

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestQuery_UnsupportedStepType(t *testing.T) {
	d := newTestDeps()
	s := newTestServer(nil, d)
	setupBucket(t, s, "steps")

	body := map[string]any{
		"timeperiods": []any{"2024-05-01/2024-05-02"},
		"query":       []map[string]string{{"type": "flood", "name": "steps"}},
	}
	w := performRequest(s, http.MethodPost, "/api/0/query", body)

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestQuery_UnknownBucket(t *testing.T) {
	d := newTestDeps()
	s := newTestServer(nil, d)

	body := map[string]any{
		"timeperiods": []any{"2024-05-01/2024-05-02"},
		"query":       []map[string]string{{"type": "bucket", "name": "missing"}},
	}
	w := performRequest(s, http.MethodPost, "/api/0/query", body)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestQuery_BackwardsPeriodRejected(t *testing.T) {
	d := newTestDeps()
	s := newTestServer(nil, d)
	setupBucket(t, s, "rev")

	body := map[string]any{
		"timeperiods": []any{"2024-05-02/2024-05-01"},
		"query":       []map[string]string{{"type": "bucket", "name": "rev"}},
	}
	w := performRequest(s, http.MethodPost, "/api/0/query", body)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}
