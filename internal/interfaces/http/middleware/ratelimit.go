// Package middleware 提供 HTTP 中间件
package middleware

import (
	"context"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"dragons-codex/pkg/errors"
)

// RateLimitConfig 限流配置
type RateLimitConfig struct {
	// Enabled 是否启用限流
	Enabled bool
	// RequestsPerSecond 每秒请求数
	RequestsPerSecond int
	// Burst 突发容量
	Burst int
	// KeyPrefix Redis Key 前缀
	KeyPrefix string
}

// RateLimiter 限流器接口
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
	Remaining(ctx context.Context, key string, limit int, window time.Duration) (int, error)
}

// RateLimit 限流中间件
func RateLimit(cfg RateLimitConfig, limiter RateLimiter) gin.HandlerFunc {
	// 如果未启用限流，返回空中间件
	if !cfg.Enabled || limiter == nil {
		return func(c *gin.Context) {
			c.Next()
		}
	}

	// 设置默认值
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 100
	}
	if cfg.Burst < 0 {
		cfg.Burst = 0
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = "ratelimit"
	}

	// 窗口容量 = 每秒配额 + 突发容量
	limit := cfg.RequestsPerSecond + cfg.Burst

	return func(c *gin.Context) {
		// 构建限流 Key：prefix:client_ip:path
		clientIP := c.ClientIP()
		if clientIP == "" {
			clientIP = "unknown"
		}

		key := cfg.KeyPrefix + ":" + clientIP + ":" + c.Request.URL.Path

		// 检查限流
		allowed, err := limiter.Allow(c.Request.Context(), key, limit, time.Second)
		if err != nil {
			// 限流器故障时放行，避免影响业务
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(limit))
		if remaining, err := limiter.Remaining(c.Request.Context(), key, limit, time.Second); err == nil {
			c.Header("X-RateLimit-Remaining", strconv.Itoa(remaining))
		}

		if !allowed {
			appErr := errors.ErrTooManyRequests
			c.AbortWithStatusJSON(appErr.HTTPStatus, gin.H{
				"code":     appErr.Code,
				"message":  appErr.Message,
				"trace_id": c.GetString("trace_id"),
			})
			return
		}

		c.Next()
	}
}
