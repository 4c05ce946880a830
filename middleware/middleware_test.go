package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRouter(mw ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(mw...)
	r.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"request_id": c.GetString("request_id")})
	})
	return r
}

func get(r *gin.Engine, path string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRequestIDGenerated(t *testing.T) {
	r := testRouter(RequestID())

	w := get(r, "/ping", nil)
	require.Equal(t, http.StatusOK, w.Code)
	id := w.Header().Get("X-Request-Id")
	assert.Len(t, id, 36)
	assert.Contains(t, w.Body.String(), id)
}

func TestRequestIDPropagated(t *testing.T) {
	r := testRouter(RequestID())

	w := get(r, "/ping", map[string]string{"X-Request-Id": "upstream-id"})
	assert.Equal(t, "upstream-id", w.Header().Get("X-Request-Id"))
}

func TestSecurityHeaders(t *testing.T) {
	r := testRouter(SecurityHeaders(false))

	w := get(r, "/ping", nil)
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
	assert.Equal(t, "max-age=31536000; includeSubDomains", w.Header().Get("Strict-Transport-Security"))
}

func TestSecurityHeadersDebugSkipsHSTS(t *testing.T) {
	r := testRouter(SecurityHeaders(true))

	w := get(r, "/ping", nil)
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.Empty(t, w.Header().Get("Strict-Transport-Security"))
}

func TestIPRateLimit(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	rejections := 0
	r := testRouter(IPRateLimit(rdb, 3, nil, func() { rejections++ }))

	for i := 0; i < 3; i++ {
		w := get(r, "/ping", nil)
		require.Equal(t, http.StatusOK, w.Code, "request %d", i)
	}
	w := get(r, "/ping", nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Contains(t, w.Body.String(), "rate limit exceeded")
	assert.Equal(t, 1, rejections)
}

func TestIPRateLimitSkipsAdmissionGatedPaths(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(IPRateLimit(rdb, 1, nil, nil))
	r.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.POST("/mcp/:project", func(c *gin.Context) { c.Status(http.StatusOK) })

	for i := 0; i < 5; i++ {
		w := get(r, "/health", nil)
		require.Equal(t, http.StatusOK, w.Code)
	}
	for i := 0; i < 5; i++ {
		req := httptest.NewRequest(http.MethodPost, "/mcp/docs", nil)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		require.Equal(t, http.StatusOK, w.Code)
	}
}

func TestIPRateLimitDegradesOpen(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	mr.Close()
	defer rdb.Close()

	r := testRouter(IPRateLimit(rdb, 1, nil, nil))
	for i := 0; i < 3; i++ {
		w := get(r, "/ping", nil)
		require.Equal(t, http.StatusOK, w.Code)
	}
}
