package middleware

import (
	"github.com/gofiber/fiber/v2"
)

// CORS lets browser clients call the API with an API key and read redirect targets.
func CORS() fiber.Handler {
	return func(c *fiber.Ctx) error {
		c.Set(fiber.HeaderAccessControlAllowOrigin, "*")
		c.Set(fiber.HeaderAccessControlAllowMethods, "GET, POST, PATCH, OPTIONS")
		c.Set(fiber.HeaderAccessControlAllowHeaders, "Origin, Content-Type, Accept, "+APIKeyHeader)
		c.Set(fiber.HeaderAccessControlExposeHeaders, "Location, Content-Length, Content-Type, "+RequestIDHeader)
		c.Set(fiber.HeaderAccessControlMaxAge, "86400")

		if c.Method() == fiber.MethodOptions {
			return c.SendStatus(fiber.StatusNoContent)
		}

		return c.Next()
	}
}
