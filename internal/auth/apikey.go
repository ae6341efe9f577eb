package auth

import (
	"crypto/subtle"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/your-org/mpr/internal/models"
)

const (
	headerName    = "X-API-Key"
	OfficerHeader = "X-Officer-ID"
)

// APIKeyMiddleware validates the API key from the X-API-Key header.
// If apiKey is empty, authentication is disabled.
func APIKeyMiddleware(apiKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if apiKey == "" {
			c.Next()
			return
		}

		provided := c.GetHeader(headerName)
		if provided == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "missing API key",
			})
			return
		}

		if subtle.ConstantTimeCompare([]byte(provided), []byte(apiKey)) != 1 {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error": "invalid API key",
			})
			return
		}

		c.Next()
	}
}

// Initiator reads the acting officer from the X-Officer-ID header. Requests
// without the header act as the system.
func Initiator(c *gin.Context) (models.Initiator, error) {
	raw := c.GetHeader(OfficerHeader)
	if raw == "" {
		return models.System(), nil
	}
	id, err := uuid.Parse(raw)
	if err != nil || id == uuid.Nil {
		return models.Initiator{}, fmt.Errorf("invalid %s header", OfficerHeader)
	}
	return models.Human(id), nil
}

// Officer is like Initiator but requires a human.
func Officer(c *gin.Context) (models.Initiator, error) {
	if c.GetHeader(OfficerHeader) == "" {
		return models.Initiator{}, fmt.Errorf("%s header is required", OfficerHeader)
	}
	return Initiator(c)
}
