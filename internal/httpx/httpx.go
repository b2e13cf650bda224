package httpx

import (
	"errors"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/utils"

	"github.com/homenest/homenest/internal/apperr"
	"github.com/homenest/homenest/internal/identity"
	"github.com/homenest/homenest/internal/security"
)

// Envelope is the body shape of every response.
type Envelope struct {
	Success     bool              `json:"success"`
	Message     string            `json:"message,omitempty"`
	Data        any               `json:"data,omitempty"`
	Error       string            `json:"error,omitempty"`
	Fields      map[string]string `json:"fields,omitempty"`
	RetryAfter  string            `json:"retryAfter,omitempty"`
	LockedUntil string            `json:"lockedUntil,omitempty"`
}

// OK writes a success envelope.
func OK(c *fiber.Ctx, status int, message string, data any) error {
	return c.Status(status).JSON(Envelope{Success: true, Message: message, Data: data})
}

// ErrorHandler renders errors into the envelope. apperr errors map by kind;
// *fiber.Error keeps its own status; anything else is a 500 with a generic message.
func ErrorHandler(logger *slog.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		if e, ok := apperr.As(err); ok {
			status := apperr.HTTPStatus(e)
			body := Envelope{Error: e.Code, Message: e.Message, Fields: e.Fields}
			if e.Kind == apperr.KindInternal {
				logger.Error("request failed", slog.String("path", c.Path()), slog.Any("error", err))
				body.Message = "internal error"
			}
			if e.RetryAfter > 0 {
				secs := strconv.Itoa(int((e.RetryAfter + time.Second - 1) / time.Second))
				c.Set(fiber.HeaderRetryAfter, secs)
				body.RetryAfter = secs
			}
			if e.LockedUntil != nil {
				body.LockedUntil = e.LockedUntil.Format(time.RFC3339)
			}
			return c.Status(status).JSON(body)
		}

		var fe *fiber.Error
		if errors.As(err, &fe) {
			return c.Status(fe.Code).JSON(Envelope{Error: codeForStatus(fe.Code), Message: fe.Message})
		}

		logger.Error("unhandled error", slog.String("path", c.Path()), slog.Any("error", err))
		return c.Status(fiber.StatusInternalServerError).JSON(Envelope{Error: apperr.CodeInternal, Message: "internal error"})
	}
}

func codeForStatus(status int) string {
	switch status {
	case fiber.StatusBadRequest, fiber.StatusUnprocessableEntity:
		return apperr.CodeValidation
	case fiber.StatusUnauthorized:
		return apperr.CodeInvalidCreds
	case fiber.StatusForbidden:
		return apperr.CodeForbidden
	case fiber.StatusNotFound:
		return apperr.CodeNotFound
	case fiber.StatusTooManyRequests:
		return apperr.CodeRateLimited
	default:
		return strings.ReplaceAll(strings.ToLower(utils.StatusMessage(status)), " ", "_")
	}
}

// NoStore marks a response carrying credentials so neither HTTP caches nor
// the idempotency replay store keep it.
func NoStore(c *fiber.Ctx) {
	c.Set(fiber.HeaderCacheControl, "no-store")
	c.Set(fiber.HeaderPragma, "no-cache")
}

// BadBody is returned when the request body cannot be decoded.
func BadBody(err error) error {
	return apperr.Wrap(err, apperr.KindValidation, apperr.CodeValidation, "request body is not valid JSON")
}

const (
	localIdentity = "identity"
	localClaims   = "claims"
)

// SetPrincipal stores the authenticated identity for downstream handlers.
func SetPrincipal(c *fiber.Ctx, ident identity.Identity, claims *security.Claims) {
	c.Locals(localIdentity, ident)
	c.Locals(localClaims, claims)
}

// Principal returns the identity stored by SetPrincipal.
func Principal(c *fiber.Ctx) (identity.Identity, bool) {
	ident, ok := c.Locals(localIdentity).(identity.Identity)
	return ident, ok
}

// MustPrincipal is Principal for routes behind bearer authentication.
func MustPrincipal(c *fiber.Ctx) (identity.Identity, error) {
	ident, ok := Principal(c)
	if !ok {
		return identity.Identity{}, apperr.ErrTokenMalformed
	}
	return ident, nil
}
