package middleware

import (
	"context"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/homenest/homenest/internal/apperr"
	"github.com/homenest/homenest/internal/httpx"
	"github.com/homenest/homenest/internal/identity"
	"github.com/homenest/homenest/internal/security"
)

// Authenticator resolves an access token to the current identity.
type Authenticator interface {
	Authenticate(ctx context.Context, raw string) (identity.Identity, *security.Claims, error)
}

// BearerAuth validates the access token and checks its version against the
// stored identity before exposing the principal to handlers.
func BearerAuth(auth Authenticator) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authz := c.Get(fiber.HeaderAuthorization)
		if len(authz) < 7 || !strings.EqualFold(authz[:7], "bearer ") {
			return apperr.New(apperr.KindAuthentication, apperr.CodeTokenMalformed, "missing bearer token")
		}
		ident, claims, err := auth.Authenticate(c.UserContext(), strings.TrimSpace(authz[7:]))
		if err != nil {
			return err
		}
		httpx.SetPrincipal(c, ident, claims)
		return c.Next()
	}
}

// RequireRole admits principals holding one of roles whose status is active.
func RequireRole(roles ...identity.Role) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ident, ok := httpx.Principal(c)
		if !ok {
			return apperr.ErrTokenMalformed
		}
		allowed := false
		for _, r := range roles {
			if ident.Role == r {
				allowed = true
				break
			}
		}
		if !allowed || ident.Status != identity.StatusActive {
			return apperr.ErrForbidden
		}
		return c.Next()
	}
}
