package middleware

import (
	"errors"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/homenest/homenest/internal/apperr"
	"github.com/homenest/homenest/internal/audit"
	"github.com/homenest/homenest/internal/httpx"
)

// Audit logs each request and records an audit event for responses that
// signal abuse or breakage: 401, 403, 429 and every 5xx.
func Audit(logger *slog.Logger, recorder *audit.Recorder) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		status := c.Response().StatusCode()
		if err != nil {
			status = statusOf(err)
		}
		duration := time.Since(start)

		attrs := []any{
			slog.String("method", c.Method()),
			slog.String("path", c.Path()),
			slog.Int("status", status),
			slog.Duration("duration", duration),
		}
		if requestID := RequestIDFrom(c); requestID != "" {
			attrs = append(attrs, slog.String("request_id", requestID))
		}

		if status == fiber.StatusUnauthorized || status == fiber.StatusForbidden ||
			status == fiber.StatusTooManyRequests || status >= fiber.StatusInternalServerError {
			var userID int64
			if ident, ok := httpx.Principal(c); ok {
				userID = ident.ID
			}
			details := map[string]any{"method": c.Method(), "path": c.Path()}
			if e, ok := apperr.As(err); ok {
				details["code"] = e.Code
			}
			recorder.RecordStatus(c.UserContext(), "request_failed", userID, status, details)
		}

		if err != nil {
			attrs = append(attrs, slog.Any("error", err))
			if status >= fiber.StatusInternalServerError {
				logger.Error("request completed", attrs...)
			} else {
				logger.Info("request completed", attrs...)
			}
			return err
		}

		logger.Info("request completed", attrs...)
		return nil
	}
}

func statusOf(err error) int {
	if _, ok := apperr.As(err); ok {
		return apperr.HTTPStatus(err)
	}
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return fe.Code
	}
	return fiber.StatusInternalServerError
}
