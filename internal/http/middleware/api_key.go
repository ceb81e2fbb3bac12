package middleware

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/sifan077/shortener/internal/app/repository"
	"github.com/sifan077/shortener/internal/app/service"
	infraprom "github.com/sifan077/shortener/internal/infra/prometheus"
	"go.uber.org/zap"
)

// APIKeyHeader carries the key for protected routes. Lookup is case-insensitive.
const APIKeyHeader = "x-api-key"

// RequireAPIKey rejects requests whose API key is missing or wrong with 401.
// When the key cannot be checked the request fails with 500 instead.
func RequireAPIKey(auth service.Authenticator, metrics *infraprom.Metrics, logger *zap.Logger) fiber.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(c *fiber.Ctx) error {
		err := auth.Authenticate(c.UserContext(), c.Get(APIKeyHeader))
		if err == nil {
			return c.Next()
		}

		if errors.Is(err, service.ErrMissingAPIKey) || errors.Is(err, service.ErrInvalidAPIKey) {
			logger.Error("unauthorized call",
				zap.String("path", c.Path()),
				zap.String("reason", err.Error()),
			)
			if metrics != nil {
				metrics.UnauthenticatedCalls.WithLabelValues(c.Route().Path).Inc()
			}
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "unauthorized",
			})
		}

		kind := repository.ErrorKind(err)
		logger.Error("failed to check api key", zap.String("kind", kind), zap.Error(err))
		if metrics != nil {
			metrics.RequestErrors.WithLabelValues("authenticate", kind).Inc()
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "internal server error",
		})
	}
}
