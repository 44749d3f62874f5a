package middleware

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

var errNoIdentity = errors.New("no authenticated identity on context")

// GetUserID returns the authenticated caller's ID from the request context.
func GetUserID(c *gin.Context) (uuid.UUID, error) {
	raw := c.GetString("user_id")
	if raw == "" {
		return uuid.Nil, errNoIdentity
	}
	return uuid.Parse(raw)
}

// GetRole returns the authenticated caller's role, empty when anonymous.
func GetRole(c *gin.Context) string {
	return c.GetString("role")
}
