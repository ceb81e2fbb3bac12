package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func rateLimitedApp(rdb *redis.Client, config RateLimitConfig) *fiber.App {
	app := fiber.New()
	app.Use(RateLimit(rdb, config, zap.NewNop()))
	app.Get("/:id", func(c *fiber.Ctx) error { return c.SendString("ok") })
	return app
}

func TestRateLimit_FailsOpen(t *testing.T) {
	rdb := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 20 * time.Millisecond,
		MaxRetries:  -1,
	})
	t.Cleanup(func() { _ = rdb.Close() })

	app := rateLimitedApp(rdb, RateLimitConfig{MaxRequests: 1, Window: time.Minute})

	for range 3 {
		resp, body := send(t, app, httptest.NewRequest(http.MethodGet, "/abc", nil))
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "ok", body)
		assert.Empty(t, resp.Header.Get("X-RateLimit-Limit"))
	}
}

func TestDefaultRateLimitConfig(t *testing.T) {
	cfg := DefaultRateLimitConfig()

	assert.Equal(t, 100, cfg.MaxRequests)
	assert.Equal(t, time.Minute, cfg.Window)
	assert.Equal(t, "ratelimit", cfg.KeyPrefix)
	assert.Positive(t, cfg.Timeout)
}
