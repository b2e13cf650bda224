package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"

	"github.com/homenest/homenest/internal/security"
)

const (
	idempotencyKeyHeader = "Idempotency-Key"
	replayedHeader       = "Idempotent-Replayed"
	maxIdempotencyKeyLen = 255
	replayCacheTimeout   = 2 * time.Second
)

// pending marks a reserved key whose first request is still running.
const pending = "pending"

var errReplayPending = errors.New("idempotent request still running")

type replayedResponse struct {
	Fingerprint string `json:"fingerprint"`
	Status      int    `json:"status"`
	ContentType string `json:"content_type"`
	Body        []byte `json:"body"`
}

// replayCache keeps one response per (method, path, credentials, key) in Redis.
type replayCache struct {
	client *redis.Client
	ttl    time.Duration
}

// replayKey scopes a client key to the route and the caller's credentials,
// so one principal can never receive another's stored response.
func replayKey(method, path, authorization, raw string) string {
	return "idempotency:v2:" + security.HashToken(method+"\n"+path+"\n"+authorization+"\n"+raw)
}

// lookup returns the stored response, nil when the key is unseen, or
// errReplayPending while the first request holds the reservation.
func (r replayCache) lookup(ctx context.Context, key string) (*replayedResponse, error) {
	raw, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if string(raw) == pending {
		return nil, errReplayPending
	}
	var resp replayedResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (r replayCache) reserve(ctx context.Context, key string) (bool, error) {
	return r.client.SetNX(ctx, key, pending, r.ttl).Result()
}

func (r replayCache) save(ctx context.Context, key string, resp replayedResponse) error {
	payload, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, key, payload, r.ttl).Err()
}

func (r replayCache) release(key string) {
	ctx, cancel := context.WithTimeout(context.Background(), replayCacheTimeout)
	defer cancel()
	r.client.Del(ctx, key)
}

// Idempotency replays the stored response for a repeated Idempotency-Key on
// unsafe methods. The header is optional. A key reused with a different body
// is rejected with 422. Failed requests (handler error or 5xx) and responses
// marked Cache-Control: no-store release their reservation and are never
// persisted, so credentials do not reach the replay store.
func Idempotency(cache *redis.Client, ttl time.Duration, logger *slog.Logger) fiber.Handler {
	store := replayCache{client: cache, ttl: ttl}
	return func(c *fiber.Ctx) error {
		if cache == nil || c.Method() == fiber.MethodGet || c.Method() == fiber.MethodHead || c.Method() == fiber.MethodOptions {
			return c.Next()
		}
		raw := c.Get(idempotencyKeyHeader)
		if raw == "" {
			return c.Next()
		}
		if len(raw) > maxIdempotencyKeyLen {
			return fiber.NewError(fiber.StatusBadRequest, "Idempotency-Key too long")
		}

		key := replayKey(c.Method(), c.Path(), c.Get(fiber.HeaderAuthorization), raw)
		fingerprint := security.HashToken(string(c.BodyRaw()))
		ctx, cancel := context.WithTimeout(c.UserContext(), replayCacheTimeout)
		defer cancel()

		prior, err := store.lookup(ctx, key)
		switch {
		case errors.Is(err, errReplayPending):
			return fiber.NewError(fiber.StatusConflict, "duplicate request currently processing")
		case err != nil:
			logger.Error("idempotency lookup failed", slog.Any("error", err))
			return fiber.NewError(fiber.StatusServiceUnavailable, "idempotency store unavailable")
		case prior != nil && prior.Fingerprint != fingerprint:
			return fiber.NewError(fiber.StatusUnprocessableEntity, "Idempotency-Key reused with a different request body")
		case prior != nil:
			if prior.ContentType != "" {
				c.Set(fiber.HeaderContentType, prior.ContentType)
			}
			c.Set(replayedHeader, "true")
			return c.Status(prior.Status).Send(prior.Body)
		}

		ok, err := store.reserve(ctx, key)
		if err != nil {
			logger.Error("idempotency reservation failed", slog.Any("error", err))
			return fiber.NewError(fiber.StatusServiceUnavailable, "idempotency store unavailable")
		}
		if !ok {
			return fiber.NewError(fiber.StatusConflict, "duplicate request currently processing")
		}

		if err := c.Next(); err != nil {
			store.release(key)
			return err
		}
		status := c.Response().StatusCode()
		noStore := strings.Contains(string(c.Response().Header.Peek(fiber.HeaderCacheControl)), "no-store")
		if status >= fiber.StatusInternalServerError || noStore {
			store.release(key)
			return nil
		}

		resp := replayedResponse{
			Fingerprint: fingerprint,
			Status:      status,
			ContentType: string(c.Response().Header.ContentType()),
			Body:        append([]byte(nil), c.Response().Body()...),
		}
		saveCtx, saveCancel := context.WithTimeout(context.WithoutCancel(c.UserContext()), replayCacheTimeout)
		defer saveCancel()
		if err := store.save(saveCtx, key, resp); err != nil {
			logger.Error("idempotency save failed", slog.Any("error", err))
			store.release(key)
		}
		return nil
	}
}
