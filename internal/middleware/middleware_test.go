package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"catalog-search/internal/redis"
	"catalog-search/pkg/logger"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func serve(r *gin.Engine, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRequestIDMiddleware(t *testing.T) {
	r := gin.New()
	r.Use(RequestIDMiddleware())
	var seen string
	r.GET("/", func(c *gin.Context) {
		seen, _ = c.Request.Context().Value(logger.RequestIdKey).(string)
	})

	w := serve(r, httptest.NewRequest(http.MethodGet, "/", nil))
	minted := w.Header().Get(RequestIDHeader)
	assert.Len(t, minted, 32)
	assert.Equal(t, minted, seen)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "upstream-42")
	w = serve(r, req)
	assert.Equal(t, "upstream-42", w.Header().Get(RequestIDHeader))

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "has space")
	w = serve(r, req)
	assert.Len(t, w.Header().Get(RequestIDHeader), 32)
}

func TestUserIDMiddleware(t *testing.T) {
	r := gin.New()
	r.Use(UserIDMiddleware())
	var id int64
	var ok bool
	r.GET("/", func(c *gin.Context) {
		id, ok = UserIDFromContext(c.Request.Context())
	})

	cases := []struct {
		header string
		want   int64
		ok     bool
	}{
		{"7", 7, true},
		{" 12 ", 12, true},
		{"0", 0, false},
		{"-3", 0, false},
		{"abc", 0, false},
		{"", 0, false},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if tc.header != "" {
			req.Header.Set(UserHeader, tc.header)
		}
		serve(r, req)
		assert.Equal(t, tc.ok, ok, tc.header)
		if tc.ok {
			assert.Equal(t, tc.want, id, tc.header)
		}
	}
}

func TestSearchRateLimitMiddleware(t *testing.T) {
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	cfg := redis.DefaultRateLimitConfig()
	cfg.SearchLimit = 2
	r := gin.New()
	r.Use(SearchRateLimitMiddleware(redis.NewRateLimiter(client, cfg)))
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	for i := 0; i < 2; i++ {
		w := serve(r, httptest.NewRequest(http.MethodGet, "/", nil))
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "2", w.Header().Get("X-RateLimit-Limit"))
	}
	w := serve(r, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Contains(t, w.Body.String(), "RATE_LIMITED")

	// Redis outage lets traffic through.
	mr.Close()
	w = serve(r, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRateLimitMiddleware_NilLimiterPassesThrough(t *testing.T) {
	r := gin.New()
	r.Use(AdminRateLimitMiddleware(nil))
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusNoContent) })
	assert.Equal(t, http.StatusNoContent, serve(r, httptest.NewRequest(http.MethodGet, "/", nil)).Code)
}
