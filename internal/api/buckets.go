package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/pulsekeep/pulsekeep/internal/db"
	"github.com/pulsekeep/pulsekeep/internal/models"
)

type createBucketReq struct {
	Type     string         `json:"type" binding:"required"`
	Client   string         `json:"client" binding:"required"`
	Hostname string         `json:"hostname" binding:"required"`
	Name     *string        `json:"name"`
	Data     map[string]any `json:"data"`
}

// createBucketHandler creates a bucket. A duplicate create of the same id
// answers 304 Not Modified: the registry enforces uniqueness, the gateway
// treats the duplicate as a non-error.
func (s *Server) createBucketHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		bucketID := c.Param("bucket_id")
		if len(bucketID) > s.cfg.Ingest.MaxBucketIDLen {
			c.JSON(http.StatusBadRequest, gin.H{"error": "bucket id too long"})
			return
		}

		var req createBucketReq
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload", "details": err.Error()})
			return
		}

		bucket := models.Bucket{
			ID:       bucketID,
			Name:     req.Name,
			Type:     req.Type,
			Client:   req.Client,
			Hostname: req.Hostname,
			Data:     req.Data,
		}
		if err := s.eventStore.CreateBucket(c.Request.Context(), &bucket); err != nil {
			storeError(c, err)
			return
		}
		c.JSON(http.StatusOK, bucket)
	}
}

func (s *Server) getBucketHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		bucket, err := s.eventStore.GetBucket(c.Request.Context(), c.Param("bucket_id"))
		if err != nil {
			storeError(c, err)
			return
		}
		c.JSON(http.StatusOK, bucket)
	}
}

// listBucketsHandler returns all buckets as an object keyed by bucket id.
func (s *Server) listBucketsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		buckets, err := s.eventStore.GetBuckets(c.Request.Context())
		if err != nil {
			storeError(c, err)
			return
		}
		c.JSON(http.StatusOK, buckets)
	}
}

// deleteBucketHandler removes the bucket and all of its events. Deleting a
// bucket that does not exist is not an error.
func (s *Server) deleteBucketHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		bucketID := c.Param("bucket_id")
		deleted, err := s.eventStore.DeleteBucket(c.Request.Context(), bucketID)
		if err != nil && !errors.Is(err, db.ErrNoSuchBucket) {
			storeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"bucket_id": bucketID, "deleted": deleted})
	}
}
