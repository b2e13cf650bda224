package auth

import (
	"context"
	"errors"
	"strings"

	"github.com/homenest/homenest/internal/apperr"
	"github.com/homenest/homenest/internal/security"
	"github.com/homenest/homenest/internal/validation"
)

// RequestReset issues a reset token when email belongs to a live identity.
// The outcome is invisible to the caller: it returns nil for known and
// unknown addresses alike, and delivery happens in the background so
// latency does not depend on it.
func (s *Service) RequestReset(ctx context.Context, email string) error {
	normalized, msg := validation.Email(email)
	if msg != "" {
		return apperr.Validation("validation failed", map[string]string{"email": msg})
	}

	token, err := security.RandomToken(resetTokenBytes)
	if err != nil {
		return apperr.Internal(err, "mint reset token")
	}

	ident, err := s.store.FindByEmail(ctx, normalized)
	if err != nil {
		if !errors.Is(err, apperr.ErrNotFound) {
			s.logger.Error("reset lookup failed", "error", err)
		}
		s.record(ctx, "password_reset_requested", 0, map[string]any{"known": false})
		return nil
	}

	expires := s.now().Add(s.opts.ResetTTL)
	if err := s.store.IssueResetToken(ctx, ident.ID, token, expires); err != nil {
		s.logger.Error("issue reset token failed", "user_id", ident.ID, "error", err)
		s.record(ctx, "password_reset_requested", ident.ID, map[string]any{"known": true, "issued": false})
		return nil
	}

	msgOut := s.resetMessage(ident.Email, token)
	deliveryCtx := context.WithoutCancel(ctx)
	s.background(func() {
		s.notifier.Dispatch(deliveryCtx, msgOut)
	})

	s.record(ctx, "password_reset_requested", ident.ID, map[string]any{"known": true, "issued": true})
	return nil
}

// ConfirmReset redeems token and sets the new password. The token version
// is bumped so every session minted before the reset is revoked.
func (s *Service) ConfirmReset(ctx context.Context, token, password string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return apperr.ErrTokenInvalid
	}
	if err := s.policy.Validate(password); err != nil {
		return err
	}
	hash, err := s.hasher.Hash(ctx, password)
	if err != nil {
		return apperr.Internal(err, "hash password")
	}
	ident, err := s.store.RedeemResetToken(ctx, token, hash, s.now())
	if err != nil {
		s.record(ctx, "password_reset_failed", 0, map[string]any{"reason": errorCode(err)})
		return storeError(err, "redeem reset token")
	}
	s.record(ctx, "password_reset", ident.ID, map[string]any{"token_version": ident.TokenVersion})
	return nil
}
