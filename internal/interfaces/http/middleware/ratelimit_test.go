package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLimiter struct {
	allow    bool
	gotLimit int
	gotKey   string
}

func (f *fakeLimiter) Allow(_ context.Context, key string, limit int, _ time.Duration) (bool, error) {
	f.gotKey = key
	f.gotLimit = limit
	return f.allow, nil
}

func (f *fakeLimiter) Remaining(_ context.Context, _ string, limit int, _ time.Duration) (int, error) {
	return limit - 1, nil
}

func rateLimitedRouter(cfg RateLimitConfig, limiter RateLimiter) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RateLimit(cfg, limiter))
	r.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })
	return r
}

func doGet(r *gin.Engine) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	r.ServeHTTP(w, req)
	return w
}

func TestRateLimitWindowIncludesBurst(t *testing.T) {
	limiter := &fakeLimiter{allow: true}
	r := rateLimitedRouter(RateLimitConfig{
		Enabled:           true,
		RequestsPerSecond: 10,
		Burst:             5,
	}, limiter)

	w := doGet(r)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 15, limiter.gotLimit)
	assert.Equal(t, "15", w.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "14", w.Header().Get("X-RateLimit-Remaining"))
}

func TestRateLimitRejectsWhenExhausted(t *testing.T) {
	limiter := &fakeLimiter{allow: false}
	r := rateLimitedRouter(RateLimitConfig{
		Enabled:           true,
		RequestsPerSecond: 1,
	}, limiter)

	w := doGet(r)

	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Contains(t, w.Body.String(), "rate limit exceeded")
}

func TestRateLimitDisabledPassesThrough(t *testing.T) {
	r := rateLimitedRouter(RateLimitConfig{Enabled: false}, nil)
	w := doGet(r)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRateLimitKeyIsClientScoped(t *testing.T) {
	limiter := &fakeLimiter{allow: true}
	r := rateLimitedRouter(RateLimitConfig{
		Enabled:           true,
		RequestsPerSecond: 10,
	}, limiter)

	doGet(r)

	assert.Contains(t, limiter.gotKey, "ratelimit:")
	assert.Contains(t, limiter.gotKey, "/ping")
}
