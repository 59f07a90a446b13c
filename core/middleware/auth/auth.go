package auth

import (
	"crypto/subtle"
	"strings"

	"github.com/gofiber/fiber/v2"
)

// Config holds the credentials the middleware accepts.
type Config struct {
	// ApiKey is accepted as a bearer token or in the X-API-Key header.
	// An empty key disables the check.
	ApiKey string
}

// New returns a middleware rejecting requests without the configured key.
func New(cfg Config) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if cfg.ApiKey == "" {
			return c.Next()
		}

		key := c.Get("X-API-Key")
		if bearer, ok := strings.CutPrefix(c.Get(fiber.HeaderAuthorization), "Bearer "); ok {
			key = bearer
		}
		if subtle.ConstantTimeCompare([]byte(key), []byte(cfg.ApiKey)) != 1 {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"errors": []fiber.Map{{
					"status": "401",
					"code":   "NOT_AUTHORIZED",
					"title":  "Authentication credentials are missing or invalid.",
				}},
			})
		}
		return c.Next()
	}
}
