package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

type createKeyReq struct {
	ClientID    string   `json:"client_id" binding:"required"`
	Description *string  `json:"description"`
	Scopes      []string `json:"scopes"`
}

// createAPIKeyHandler issues a new key. The plaintext secret appears in
// this response and nowhere else, ever.
func (s *Server) createAPIKeyHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req createKeyReq
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload", "details": err.Error()})
			return
		}

		secret, record, err := s.keySvc.CreateKey(c.Request.Context(), req.ClientID, req.Description, req.Scopes)
		if err != nil {
			storeError(c, err)
			return
		}

		c.JSON(http.StatusCreated, gin.H{
			"id":          record.ID,
			"api_key":     secret,
			"client_id":   record.ClientID,
			"description": record.Description,
			"created_at":  record.CreatedAt,
		})
	}
}

// listAPIKeysHandler returns key records. models.APIKey omits the hash
// from its JSON form and the plaintext was never stored.
func (s *Server) listAPIKeysHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		keys, err := s.keySvc.ListKeys(c.Request.Context())
		if err != nil {
			storeError(c, err)
			return
		}
		c.JSON(http.StatusOK, keys)
	}
}

// revokeAPIKeyHandler marks a key inactive. Revoking an already revoked
// key succeeds again; only an unknown id is a 404.
func (s *Server) revokeAPIKeyHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		keyID, err := strconv.ParseUint(c.Param("key_id"), 10, 32)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid key id"})
			return
		}

		found, err := s.keySvc.Revoke(c.Request.Context(), uint(keyID))
		if err != nil {
			storeError(c, err)
			return
		}
		if !found {
			c.JSON(http.StatusNotFound, gin.H{"error": "API key not found"})
			return
		}
		c.Status(http.StatusNoContent)
	}
}
