package http

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
)

// UserIDHeader carries the authenticated caller, set by the upstream gateway
const UserIDHeader = "X-User-ID"

const actorKey = "actor_id"

// identityMiddleware reads the caller id from UserIDHeader
func identityMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := strings.TrimSpace(c.GetHeader(UserIDHeader))
		id, err := strconv.ParseInt(raw, 10, 64)
		if raw == "" || err != nil || id <= 0 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, Response{
				Success: false,
				Error:   "missing or invalid " + UserIDHeader + " header",
			})
			return
		}
		c.Set(actorKey, id)
		c.Next()
	}
}

func actorID(c *gin.Context) int64 {
	return c.GetInt64(actorKey)
}
