package api

import (
	"net/http"
	"os"

	"github.com/gin-gonic/gin"

	"github.com/pulsekeep/pulsekeep/internal/api_types"
)

func (s *Server) infoHandler() gin.HandlerFunc {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}

	return func(c *gin.Context) {
		c.JSON(http.StatusOK, api_types.InfoResponse{
			Hostname: hostname,
			Version:  Version,
			Testing:  s.cfg.Testing,
		})
	}
}
