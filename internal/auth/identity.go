// Package auth reads the caller identity forwarded by the identity provider.
//
// The API sits behind an authorizer that validates the session and forwards
// the user as headers. Nothing here verifies credentials.
package auth

import (
	"errors"
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	HeaderUserID    = "X-User-Id"
	HeaderUserEmail = "X-User-Email"
	HeaderUserName  = "X-User-Name"

	identityKey = "identity"
	userIDKey   = "user_id"
)

var ErrUnauthenticated = errors.New("authentication required")

// Identity is the authenticated caller.
type Identity struct {
	UserID string
	Email  string
	Name   string
}

// DisplayName falls back to the email when no name was forwarded.
func (i Identity) DisplayName() string {
	if i.Name != "" {
		return i.Name
	}
	return i.Email
}

// Middleware stores the forwarded identity on the gin context when present.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := strings.TrimSpace(c.GetHeader(HeaderUserID))
		if userID != "" {
			c.Set(identityKey, Identity{
				UserID: userID,
				Email:  strings.TrimSpace(c.GetHeader(HeaderUserEmail)),
				Name:   strings.TrimSpace(c.GetHeader(HeaderUserName)),
			})
			c.Set(userIDKey, userID)
		}
		c.Next()
	}
}

// FromContext returns the caller or ErrUnauthenticated.
func FromContext(c *gin.Context) (Identity, error) {
	v, ok := c.Get(identityKey)
	if !ok {
		return Identity{}, ErrUnauthenticated
	}
	id, ok := v.(Identity)
	if !ok || id.UserID == "" {
		return Identity{}, ErrUnauthenticated
	}
	return id, nil
}
