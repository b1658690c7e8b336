package api

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/pulsekeep/pulsekeep/internal/models"
)

// eventIn is the wire form of an event. The timestamp stays a string until
// it has been validated: a single malformed timestamp rejects the whole
// batch before anything touches storage.
type eventIn struct {
	Timestamp string         `json:"timestamp"`
	Duration  float64        `json:"duration"`
	Data      map[string]any `json:"data"`
}

func (s *Server) parseEvent(in eventIn, idx int) (models.Event, error) {
	ts, err := parseTimestamp(in.Timestamp)
	if err != nil {
		return models.Event{}, fmt.Errorf("event %d: invalid timestamp %q", idx, in.Timestamp)
	}
	if s.cfg.Ingest.RejectNegativeDuration && in.Duration < 0 {
		return models.Event{}, fmt.Errorf("event %d: negative duration not allowed", idx)
	}
	return models.Event{Timestamp: ts, Duration: in.Duration, Data: in.Data}, nil
}

// insertEventsHandler appends a batch of events to a bucket. The batch is
// all-or-nothing; an empty array is accepted as a no-op.
func (s *Server) insertEventsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var batch []eventIn
		if err := c.ShouldBindJSON(&batch); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload", "details": err.Error()})
			return
		}

		events := make([]models.Event, 0, len(batch))
		for i, in := range batch {
			ev, err := s.parseEvent(in, i)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			events = append(events, ev)
		}

		inserted, err := s.eventStore.InsertEvents(c.Request.Context(), c.Param("bucket_id"), events)
		if err != nil {
			storeError(c, err)
			return
		}
		c.JSON(http.StatusOK, inserted)
	}
}

// eventRange reads the optional start/end/limit query parameters. The range
// convention is half-open: start <= timestamp < end. A limit of 0 (or an
// absent limit) means unbounded; negative limits are rejected.
func eventRange(c *gin.Context) (start, end *time.Time, limit int, err error) {
	if v := c.Query("start"); v != "" {
		t, perr := parseTimestamp(v)
		if perr != nil {
			return nil, nil, 0, fmt.Errorf("invalid start timestamp %q", v)
		}
		start = &t
	}
	if v := c.Query("end"); v != "" {
		t, perr := parseTimestamp(v)
		if perr != nil {
			return nil, nil, 0, fmt.Errorf("invalid end timestamp %q", v)
		}
		end = &t
	}
	if v := c.Query("limit"); v != "" {
		n, perr := strconv.Atoi(v)
		if perr != nil || n < 0 {
			return nil, nil, 0, fmt.Errorf("invalid limit %q", v)
		}
		limit = n
	}
	return start, end, limit, nil
}

func (s *Server) getEventsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		start, end, limit, err := eventRange(c)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		events, err := s.eventStore.GetEvents(c.Request.Context(), c.Param("bucket_id"), start, end, limit)
		if err != nil {
			storeError(c, err)
			return
		}
		c.JSON(http.StatusOK, events)
	}
}

func (s *Server) countEventsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		start, end, _, err := eventRange(c)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		count, err := s.eventStore.CountEvents(c.Request.Context(), c.Param("bucket_id"), start, end)
		if err != nil {
			storeError(c, err)
			return
		}
		c.JSON(http.StatusOK, count)
	}
}

// heartbeatHandler appends a single event, merging it into the most recent
// event of the bucket when both are adjacent within pulsetime and carry an
// equal payload.
func (s *Server) heartbeatHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		pulsetimeRaw := c.Query("pulsetime")
		if pulsetimeRaw == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "pulsetime query parameter is required"})
			return
		}
		pulsetime, err := strconv.ParseFloat(pulsetimeRaw, 64)
		if err != nil || pulsetime < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("invalid pulsetime %q", pulsetimeRaw)})
			return
		}

		var in eventIn
		if err := c.ShouldBindJSON(&in); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload", "details": err.Error()})
			return
		}
		ev, err := s.parseEvent(in, 0)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		result, err := s.eventStore.Heartbeat(c.Request.Context(), c.Param("bucket_id"), ev, pulsetime)
		if err != nil {
			storeError(c, err)
			return
		}
		c.JSON(http.StatusOK, result)
	}
}
