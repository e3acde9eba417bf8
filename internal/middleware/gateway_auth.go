package middleware

import (
	"crypto/subtle"

	"github.com/gofiber/fiber/v2"
	"github.com/makeasinger/jobctl/pkg/response"
)

// HeaderGatewaySecret carries the secret shared between the gateway and
// this service.
const HeaderGatewaySecret = "X-Gateway-Secret"

// GatewayAuthMiddleware trusts the operator identity in the X-User-* headers
// set by a ForwardAuth gateway. With a non-empty secret, requests that do not
// carry it in X-Gateway-Secret did not come through the gateway and are
// refused before the identity headers are read.
func GatewayAuthMiddleware(secret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if secret != "" {
			got := c.Get(HeaderGatewaySecret)
			if subtle.ConstantTimeCompare([]byte(got), []byte(secret)) != 1 {
				return response.Unauthorized(c, "Request did not come through the gateway")
			}
		}

		userID := c.Get("X-User-Id")
		if userID == "" {
			return response.Unauthorized(c, "Missing operator identity headers")
		}

		c.Locals("userId", userID)
		c.Locals("email", c.Get("X-User-Email"))

		return c.Next()
	}
}
