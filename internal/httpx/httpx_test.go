package httpx

import (
	"encoding/json"
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"

	"github.com/homenest/homenest/internal/apperr"
	"github.com/homenest/homenest/internal/logging"
)

func render(t *testing.T, err error) (int, Envelope, string) {
	t.Helper()
	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler(logging.Discard())})
	app.Get("/", func(c *fiber.Ctx) error { return err })

	resp, testErr := app.Test(httptest.NewRequest(fiber.MethodGet, "/", nil))
	require.NoError(t, testErr)
	defer resp.Body.Close()

	var body Envelope
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return resp.StatusCode, body, resp.Header.Get(fiber.HeaderRetryAfter)
}

func TestErrorHandlerMapsKinds(t *testing.T) {
	cases := []struct {
		name string
		err  error
		code int
		want string
	}{
		{"validation", apperr.Validation("validation failed", map[string]string{"email": "email is invalid"}), fiber.StatusBadRequest, apperr.CodeValidation},
		{"credentials", apperr.ErrInvalidCredentials, fiber.StatusUnauthorized, apperr.CodeInvalidCreds},
		{"forbidden", apperr.ErrForbidden, fiber.StatusForbidden, apperr.CodeForbidden},
		{"duplicate", apperr.ErrDuplicateEmail, fiber.StatusConflict, apperr.CodeDuplicateEmail},
		{"not found", apperr.ErrNotFound, fiber.StatusNotFound, apperr.CodeNotFound},
		{"fiber error", fiber.ErrMethodNotAllowed, fiber.StatusMethodNotAllowed, "method_not_allowed"},
		{"fiber not found", fiber.ErrNotFound, fiber.StatusNotFound, apperr.CodeNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			status, body, _ := render(t, tc.err)
			require.Equal(t, tc.code, status)
			require.False(t, body.Success)
			require.Equal(t, tc.want, body.Error)
		})
	}
}

func TestErrorHandlerHidesInternalDetail(t *testing.T) {
	status, body, _ := render(t, apperr.Internal(errors.New("pq: connection refused"), "load identity"))
	require.Equal(t, fiber.StatusInternalServerError, status)
	require.Equal(t, "internal error", body.Message)

	status, body, _ = render(t, errors.New("boom"))
	require.Equal(t, fiber.StatusInternalServerError, status)
	require.Equal(t, apperr.CodeInternal, body.Error)
	require.Equal(t, "internal error", body.Message)
}

func TestErrorHandlerRoundsRetryAfterUp(t *testing.T) {
	status, body, header := render(t, apperr.RateLimited(1500*time.Millisecond))
	require.Equal(t, fiber.StatusTooManyRequests, status)
	require.Equal(t, "2", header)
	require.Equal(t, "2", body.RetryAfter)
}

func TestErrorHandlerReportsLockout(t *testing.T) {
	until := time.Date(2026, 3, 1, 12, 30, 0, 0, time.UTC)
	status, body, _ := render(t, apperr.Locked(until))
	require.Equal(t, fiber.StatusLocked, status)
	require.Equal(t, apperr.CodeAccountLocked, body.Error)
	require.Equal(t, "2026-03-01T12:30:00Z", body.LockedUntil)
}

func TestMustPrincipalWithoutBearer(t *testing.T) {
	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler(logging.Discard())})
	app.Get("/", func(c *fiber.Ctx) error {
		_, err := MustPrincipal(c)
		return err
	})
	resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}
