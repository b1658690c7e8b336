package middleware

import (
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/pulsekeep/pulsekeep/internal/app_interfaces"
	"github.com/pulsekeep/pulsekeep/internal/services"
)

// Error codes for client handling
const (
	ErrCodeMissingKey = "api_key_missing"
	ErrCodeInvalidKey = "api_key_invalid"
	ErrCodeRevokedKey = "api_key_revoked"
)

// HeaderAPIKey is the credential header checked on protected routes.
const HeaderAPIKey = "X-API-Key"

// ContextKeyAPIKey is the gin context key holding the authenticated key record.
const ContextKeyAPIKey = "api_key"

// NewAPIKeyMiddleware enforces API key authentication. enabled mirrors the
// system-wide auth policy flag: when false, every request passes through
// without touching the key store.
func NewAPIKeyMiddleware(svc app_interfaces.KeyStoreService, enabled bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !enabled {
			c.Next()
			return
		}

		presented := c.GetHeader(HeaderAPIKey)
		if presented == "" {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error":   ErrCodeMissingKey,
				"message": "API key is required. Provide it via the 'X-API-Key' header.",
			})
			c.Abort()
			return
		}

		ak, err := svc.Authenticate(c.Request.Context(), presented)
		if err != nil {
			switch {
			case errors.Is(err, services.ErrKeyRevoked):
				c.JSON(http.StatusUnauthorized, gin.H{
					"error":   ErrCodeRevokedKey,
					"message": "API key has been revoked. Please generate a new key.",
				})
			case errors.Is(err, services.ErrInvalidKey):
				c.JSON(http.StatusUnauthorized, gin.H{
					"error":   ErrCodeInvalidKey,
					"message": "Invalid API key. Please check your key or generate a new one.",
				})
			default:
				log.Printf("API key validation failed: %v", err)
				c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			}
			c.Abort()
			return
		}

		c.Set(ContextKeyAPIKey, ak)
		c.Next()
	}
}
