package requestid

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/maap-api/pkg/requestinfo"
)

func TestMiddlewareRecordsRequestInfo(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Middleware())

	var captured requestinfo.Info
	r.GET("/ping", func(c *gin.Context) {
		info, ok := requestinfo.FromContext(c.Request.Context())
		require.True(t, ok)
		captured = info
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("X-Request-ID", "req-42")
	req.Header.Set("X-Session-ID", "sess-1")
	req.Header.Set("User-Agent", "tests/1.0")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, "req-42", w.Header().Get("X-Request-ID"))
	assert.Equal(t, "req-42", captured.RequestID)
	assert.Equal(t, "sess-1", captured.SessionID)
	assert.Equal(t, "tests/1.0", captured.UserAgent)
	assert.NotEmpty(t, captured.IPAddress)
}

func TestMiddlewareGeneratesID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Middleware())
	r.GET("/ping", func(c *gin.Context) {
		c.String(http.StatusOK, Value(c))
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))

	assert.Len(t, w.Body.String(), 32)
	assert.Equal(t, w.Body.String(), w.Header().Get("X-Request-ID"))
}
