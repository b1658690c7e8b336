package api

import (
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/pulsekeep/pulsekeep/internal/db"
)

// storeError maps event store sentinel errors onto response codes. Anything
// unclassified is a 500 and gets logged; raw storage errors never reach the
// client.
func storeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, db.ErrNoSuchBucket):
		c.JSON(http.StatusNotFound, gin.H{"error": "no such bucket"})
	case errors.Is(err, db.ErrBucketExists):
		c.Status(http.StatusNotModified)
	default:
		log.Printf("storage error: %v rid=%s", err, c.GetString("request_id"))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal storage error"})
	}
}

// parseTimestamp accepts RFC3339 with or without sub-second precision.
func parseTimestamp(value string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, value)
}
