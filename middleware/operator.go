// middleware/operator.go
package middleware

import (
	"log"
	"os"
	"strings"

	"github.com/gofiber/fiber/v2"
)

// OperatorAuthMiddleware guards operator-only routes (round reset). When
// OPERATOR_TOKEN is unset the route stays open, matching the public-reset
// behavior of the standalone deployment.
func OperatorAuthMiddleware() fiber.Handler {
	expectedToken := os.Getenv("OPERATOR_TOKEN")
	if expectedToken == "" {
		log.Println("⚠️  OPERATOR_TOKEN not set — reset endpoint is open")
		return func(c *fiber.Ctx) error {
			return c.Next()
		}
	}

	return func(c *fiber.Ctx) error {
		authHeader := c.Get("Authorization")
		if authHeader == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "operator token missing",
			})
		}

		// Parse "Bearer <token>"
		token := strings.TrimPrefix(authHeader, "Bearer ")
		if token == authHeader {
			// no "Bearer " prefix — try raw value
			token = authHeader
		}

		if token != expectedToken {
			log.Printf("❌ [OPERATOR_AUTH] Invalid token for %s", c.Path())
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "invalid operator token",
			})
		}

		return c.Next()
	}
}
