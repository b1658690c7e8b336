package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/pulsekeep/pulsekeep/internal/db"
	"github.com/pulsekeep/pulsekeep/internal/models"
)

type queryReq struct {
	Timeperiods []any       `json:"timeperiods" binding:"required"`
	Query       []queryStep `json:"query" binding:"required"`
}

// queryStep retrieves the events of one bucket. Richer query languages are
// the business of the separate aggregation service; the server only serves
// raw per-bucket retrieval over the requested timeperiods.
type queryStep struct {
	Type string `json:"type"`
	Name string `json:"name"`
}

type timeperiod struct {
	Start time.Time
	End   time.Time
}

// parseTimeperiod accepts either a ["start", "end"] pair or a single
// "start/end" string.
func parseTimeperiod(raw any) (timeperiod, error) {
	var startRaw, endRaw string
	switch v := raw.(type) {
	case []any:
		if len(v) != 2 {
			return timeperiod{}, fmt.Errorf("timeperiod must have exactly two elements")
		}
		var ok1, ok2 bool
		startRaw, ok1 = v[0].(string)
		endRaw, ok2 = v[1].(string)
		if !ok1 || !ok2 {
			return timeperiod{}, fmt.Errorf("timeperiod elements must be strings")
		}
	case string:
		parts := strings.SplitN(v, "/", 2)
		if len(parts) != 2 {
			return timeperiod{}, fmt.Errorf("timeperiod string must be start/end")
		}
		startRaw, endRaw = parts[0], parts[1]
	default:
		return timeperiod{}, fmt.Errorf("unsupported timeperiod form")
	}

	start, err := parseFlexibleTime(startRaw)
	if err != nil {
		return timeperiod{}, fmt.Errorf("invalid timeperiod start %q", startRaw)
	}
	end, err := parseFlexibleTime(endRaw)
	if err != nil {
		return timeperiod{}, fmt.Errorf("invalid timeperiod end %q", endRaw)
	}
	if !end.After(start) {
		return timeperiod{}, fmt.Errorf("timeperiod end must be after start")
	}
	return timeperiod{Start: start, End: end}, nil
}

// parseFlexibleTime accepts RFC3339 or a bare date.
func parseFlexibleTime(value string) (time.Time, error) {
	if t, err := parseTimestamp(value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", value)
}

func (s *Server) queryHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req queryReq
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload", "details": err.Error()})
			return
		}
		if len(req.Timeperiods) == 0 || len(req.Query) == 0 {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "timeperiods and query must be non-empty"})
			return
		}

		periods := make([]timeperiod, 0, len(req.Timeperiods))
		for _, raw := range req.Timeperiods {
			tp, err := parseTimeperiod(raw)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			periods = append(periods, tp)
		}

		for _, step := range req.Query {
			if step.Type != "bucket" || step.Name == "" {
				c.JSON(http.StatusUnprocessableEntity, gin.H{"error": fmt.Sprintf("unsupported query step type %q", step.Type)})
				return
			}
		}

		// One result per timeperiod: the events of every queried bucket
		// inside that period, newest first.
		results := make([][]models.Event, 0, len(periods))
		for _, tp := range periods {
			events := []models.Event{}
			for _, step := range req.Query {
				start, end := tp.Start, tp.End
				stepEvents, err := s.eventStore.GetEvents(c.Request.Context(), step.Name, &start, &end, 0)
				if errors.Is(err, db.ErrNoSuchBucket) {
					c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("no such bucket %q", step.Name)})
					return
				}
				if err != nil {
					storeError(c, err)
					return
				}
				events = append(events, stepEvents...)
			}
			results = append(results, events)
		}

		c.JSON(http.StatusOK, results)
	}
}
