package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/homenest/homenest/internal/apperr"
)

// Class names a group of routes sharing one bucket.
type Class string

const (
	ClassAuth           Class = "auth"
	ClassVerify         Class = "verify"
	ClassPasswordChange Class = "password-change"
	ClassProfileUpdate  Class = "profile-update"
)

// Classes lists every known class in a stable order.
func Classes() []Class {
	return []Class{ClassAuth, ClassVerify, ClassPasswordChange, ClassProfileUpdate}
}

// Rule is a sliding-window allowance.
type Rule struct {
	Limit  int
	Window time.Duration
}

// DefaultRules returns the stock bucket table.
func DefaultRules() map[Class]Rule {
	return map[Class]Rule{
		ClassAuth:           {Limit: 10, Window: 15 * time.Minute},
		ClassVerify:         {Limit: 3, Window: 5 * time.Minute},
		ClassPasswordChange: {Limit: 5, Window: time.Hour},
		ClassProfileUpdate:  {Limit: 20, Window: 15 * time.Minute},
	}
}

// ParseRule reads the "limit/window" form, e.g. "10/15m".
func ParseRule(raw string) (Rule, error) {
	limitPart, windowPart, ok := strings.Cut(strings.TrimSpace(raw), "/")
	if !ok {
		return Rule{}, fmt.Errorf("rate limit %q: expected limit/window", raw)
	}
	limit, err := strconv.Atoi(limitPart)
	if err != nil || limit <= 0 {
		return Rule{}, fmt.Errorf("rate limit %q: invalid limit", raw)
	}
	window, err := time.ParseDuration(windowPart)
	if err != nil || window <= 0 {
		return Rule{}, fmt.Errorf("rate limit %q: invalid window", raw)
	}
	return Rule{Limit: limit, Window: window}, nil
}

// Store records hits for a key and reports whether the newest hit fits the rule.
// A rejected hit is not recorded.
type Store interface {
	Hit(ctx context.Context, key string, rule Rule, now time.Time) (allowed bool, retryAfter time.Duration, err error)
}

// Limiter applies the bucket table over a Store. Counters are best-effort:
// a failing store lets the request through and logs a warning.
type Limiter struct {
	store  Store
	rules  map[Class]Rule
	logger *slog.Logger
	now    func() time.Time
}

// New builds a limiter. Classes missing from rules fall back to the defaults.
func New(store Store, rules map[Class]Rule, logger *slog.Logger) *Limiter {
	merged := DefaultRules()
	for class, rule := range rules {
		if rule.Limit > 0 && rule.Window > 0 {
			merged[class] = rule
		}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Limiter{store: store, rules: merged, logger: logger, now: time.Now}
}

// WithClock overrides the time source.
func (l *Limiter) WithClock(now func() time.Time) *Limiter {
	if now != nil {
		l.now = now
	}
	return l
}

// Allow counts one request for (class, ip, subject). It returns an
// apperr rate-limited error carrying retry_after once the bucket is spent.
func (l *Limiter) Allow(ctx context.Context, class Class, ip, subject string) error {
	rule, ok := l.rules[class]
	if !ok || l.store == nil {
		return nil
	}
	key := Key(class, ip, subject)
	allowed, retryAfter, err := l.store.Hit(ctx, key, rule, l.now())
	if err != nil {
		l.logger.Warn("rate limit check failed", slog.String("class", string(class)), slog.Any("error", err))
		return nil
	}
	if allowed {
		return nil
	}
	if retryAfter < time.Second {
		retryAfter = time.Second
	}
	return apperr.RateLimited(retryAfter)
}

// Key builds the storage key for a bucket.
func Key(class Class, ip, subject string) string {
	if subject == "" {
		return fmt.Sprintf("%s:%s", class, ip)
	}
	return fmt.Sprintf("%s:%s:%s", class, ip, strings.ToLower(subject))
}
