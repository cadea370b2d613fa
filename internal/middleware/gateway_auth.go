package middleware

import (
	"github.com/gofiber/fiber/v2"

	"github.com/songgift/api/pkg/response"
)

// GatewayAuthMiddleware trusts the user identity headers stamped by the edge
// proxy's ForwardAuth step. The song routes key rate limits and record
// ownership on the user id, so a request without one is rejected here rather
// than deeper in a handler.
func GatewayAuthMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID := c.Get("X-User-Id")
		if userID == "" {
			return response.Unauthorized(c, "Missing user identity headers")
		}

		c.Locals("userId", userID)
		c.Locals("email", c.Get("X-User-Email"))

		return c.Next()
	}
}
