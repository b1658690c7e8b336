package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/pulsekeep/pulsekeep/internal/api_types"
)

func (s *Server) healthCheckHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		response := api_types.HealthCheckResponse{
			OverallStatus: "unhealthy",
			PostgreSQL:    "unhealthy",
			EventStore:    "unhealthy",
			Redis:         "unhealthy",
		}

		overallHealthy := true

		pgCtx, pgCancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer pgCancel()
		if err := s.postgresDB.Health(pgCtx); err == nil {
			response.PostgreSQL = "healthy"
		} else {
			overallHealthy = false
			response.Message = fmt.Sprintf("PostgreSQL unhealthy: %v", err)
		}

		esCtx, esCancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer esCancel()
		if err := s.eventStore.Health(esCtx); err == nil {
			response.EventStore = "healthy"
		} else {
			overallHealthy = false
			if response.Message != "" {
				response.Message += "; "
			}
			response.Message += fmt.Sprintf("EventStore unhealthy: %v", err)
		}

		redisCtx, redisCancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer redisCancel()
		if err := s.redisClient.Ping(redisCtx).Err(); err == nil {
			response.Redis = "healthy"
		} else {
			overallHealthy = false
			if response.Message != "" {
				response.Message += "; "
			}
			response.Message += fmt.Sprintf("Redis unhealthy: %v", err)
		}

		if overallHealthy {
			response.OverallStatus = "healthy"
			c.JSON(http.StatusOK, response)
		} else {
			c.JSON(http.StatusServiceUnavailable, response)
		}
	}
}
