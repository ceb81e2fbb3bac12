package handler

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/sifan077/shortener/internal/app/repository"
	infraprom "github.com/sifan077/shortener/internal/infra/prometheus"
	"go.uber.org/zap"
)

// Malformed targets are answered with 409.
var errURLMalformed = fiber.NewError(fiber.StatusConflict, "url malformed")

// ErrorHandler renders errors that reach Fiber as {"error": message}. Only
// *fiber.Error messages are shown to clients.
func ErrorHandler(logger *zap.Logger) fiber.ErrorHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(c *fiber.Ctx, err error) error {
		code := fiber.StatusInternalServerError
		message := "internal server error"

		var fe *fiber.Error
		if errors.As(err, &fe) {
			code = fe.Code
			message = fe.Message
		} else {
			logger.Error("unhandled error", zap.String("path", c.Path()), zap.Error(err))
		}

		return c.Status(code).JSON(fiber.Map{"error": message})
	}
}

// internalError logs err in full, counts it and answers with a generic 500.
func internalError(c *fiber.Ctx, logger *zap.Logger, metrics *infraprom.Metrics, operation string, err error) error {
	kind := repository.ErrorKind(err)
	logger.Error("request failed",
		zap.String("operation", operation),
		zap.String("kind", kind),
		zap.String("path", c.Path()),
		zap.Error(err),
	)
	if metrics != nil {
		metrics.RequestErrors.WithLabelValues(operation, kind).Inc()
	}

	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"error": "internal server error",
	})
}
