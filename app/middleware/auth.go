package middleware

import (
	"net/http"
	"strconv"

	"intelliscale/pkg/logger"

	"github.com/gin-gonic/gin"
)

const (
	// UserIDHeader carries the caller identity. It is trusted as-is.
	UserIDHeader = "X-User-ID"
	userIDKey    = "user_id"
	defaultUser  = int64(1)
)

// Identity resolves the calling user from the X-User-ID header, defaulting to user 1
func Identity() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := defaultUser
		if raw := c.GetHeader(UserIDHeader); raw != "" {
			id, err := strconv.ParseInt(raw, 10, 64)
			if err != nil || id <= 0 {
				logger.WarnCtx(c.Request.Context(), "rejected request with invalid %s %q", UserIDHeader, raw)
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + UserIDHeader})
				c.Abort()
				return
			}
			userID = id
		}

		c.Set(userIDKey, userID)
		c.Next()
	}
}

// UserID returns the identity set by Identity, or the default user
func UserID(c *gin.Context) int64 {
	if v, ok := c.Get(userIDKey); ok {
		if id, ok := v.(int64); ok {
			return id
		}
	}
	return defaultUser
}
