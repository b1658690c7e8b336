package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/pulsekeep/pulsekeep/internal/services"
)

func (s *Server) getSettingHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		value, err := s.settingsSvc.Get(c.Request.Context(), c.Param("key"))
		if errors.Is(err, services.ErrNoSuchSetting) {
			c.JSON(http.StatusNotFound, gin.H{"error": "no such setting"})
			return
		}
		if err != nil {
			storeError(c, err)
			return
		}
		c.Data(http.StatusOK, "application/json", value)
	}
}

func (s *Server) setSettingHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read body"})
			return
		}
		if !json.Valid(body) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "setting value must be valid JSON"})
			return
		}
		if err := s.settingsSvc.Set(c.Request.Context(), c.Param("key"), body); err != nil {
			storeError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

func (s *Server) deleteSettingHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := s.settingsSvc.Delete(c.Request.Context(), c.Param("key")); err != nil {
			storeError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}
