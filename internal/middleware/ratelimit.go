package middleware

import (
	"github.com/gofiber/fiber/v2"

	"github.com/homenest/homenest/internal/httpx"
	"github.com/homenest/homenest/internal/ratelimit"
)

// RateLimit charges one hit to class for the client IP. Behind BearerAuth
// the bucket is further scoped to the principal.
func RateLimit(limiter *ratelimit.Limiter, class ratelimit.Class) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if limiter == nil {
			return c.Next()
		}
		subject := ""
		if ident, ok := httpx.Principal(c); ok {
			subject = ident.Email
		}
		if err := limiter.Allow(c.UserContext(), class, c.IP(), subject); err != nil {
			return err
		}
		return c.Next()
	}
}
