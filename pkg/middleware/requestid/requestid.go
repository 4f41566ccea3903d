package requestid

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/maap-api/pkg/requestinfo"
)

const (
	headerKey        = "X-Request-ID"
	sessionHeaderKey = "X-Session-ID"
	sessionCookieKey = "session_id"
	contextKey       = "request_id"
)

// Middleware assigns a unique request ID to each incoming HTTP request and
// records the caller's request metadata on the request context.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		reqID := c.GetHeader(headerKey)
		if reqID == "" {
			reqID = generateID()
		}

		c.Set(contextKey, reqID)
		c.Writer.Header().Set(headerKey, reqID)

		info := requestinfo.Info{
			IPAddress: c.ClientIP(),
			UserAgent: c.GetHeader("User-Agent"),
			SessionID: sessionID(c),
			RequestID: reqID,
		}
		c.Request = c.Request.WithContext(requestinfo.WithInfo(c.Request.Context(), info))

		c.Next()
	}
}

// Value returns the request ID stored in the Gin context.
func Value(c *gin.Context) string {
	if v, exists := c.Get(contextKey); exists {
		if id, ok := v.(string); ok {
			return id
		}
	}
	return ""
}

func sessionID(c *gin.Context) string {
	if id := c.GetHeader(sessionHeaderKey); id != "" {
		return id
	}
	if cookie, err := c.Cookie(sessionCookieKey); err == nil {
		return cookie
	}
	return ""
}

func generateID() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err == nil {
		return hex.EncodeToString(buf)
	}

	return fmt.Sprintf("fallback-%d", time.Now().UnixNano())
}
