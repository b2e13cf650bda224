package auth

import (
	"context"
	"errors"

	"github.com/homenest/homenest/internal/apperr"
	"github.com/homenest/homenest/internal/identity"
	"github.com/homenest/homenest/internal/security"
	"github.com/homenest/homenest/internal/validation"
)

// Advisories attached to a successful login of a not yet active identity.
const (
	AdvisoryVerifyEmail     = "verify_email"
	AdvisoryVerifyPhone     = "verify_phone"
	AdvisoryPendingApproval = "pending_approval"
)

// LoginResult is returned on a successful credential check.
type LoginResult struct {
	Identity   identity.Identity
	Tokens     security.TokenPair
	Advisories []string
}

// Login runs the lockout state machine. Unknown email and wrong password
// produce the same error and roughly the same latency; audit events carry
// the actual reason.
func (s *Service) Login(ctx context.Context, email, password string) (LoginResult, error) {
	now := s.now()

	normalized, msg := validation.Email(email)
	if msg != "" || password == "" {
		s.hasher.VerifyDummy(ctx, password)
		s.record(ctx, "login_failed", 0, map[string]any{"reason": "malformed"})
		return LoginResult{}, apperr.ErrInvalidCredentials
	}

	ident, err := s.store.FindByEmail(ctx, normalized)
	if errors.Is(err, apperr.ErrNotFound) {
		s.hasher.VerifyDummy(ctx, password)
		s.record(ctx, "login_failed", 0, map[string]any{"reason": "unknown_email"})
		return LoginResult{}, apperr.ErrInvalidCredentials
	}
	if err != nil {
		return LoginResult{}, apperr.Internal(err, "find identity")
	}

	if ident.LockedAt(now) {
		s.hasher.VerifyDummy(ctx, password)
		s.record(ctx, "login_blocked", ident.ID, map[string]any{"locked_until": ident.LockedUntil})
		return LoginResult{}, apperr.Locked(*ident.LockedUntil)
	}

	if ident.Status == identity.StatusSuspended || ident.Deleted() {
		s.hasher.VerifyDummy(ctx, password)
		s.record(ctx, "login_failed", ident.ID, map[string]any{"reason": string(ident.Status)})
		return LoginResult{}, apperr.ErrInvalidCredentials
	}

	ok, err := s.hasher.Verify(ctx, password, ident.PasswordHash)
	if err != nil {
		return LoginResult{}, apperr.Internal(err, "verify password")
	}
	if !ok {
		failure, err := s.store.BumpFailedLogins(ctx, ident.ID, now)
		if err != nil {
			return LoginResult{}, apperr.Internal(err, "record failed login")
		}
		details := map[string]any{"reason": "bad_password", "attempts": failure.Attempts}
		if failure.LockedUntil != nil {
			details["locked_until"] = failure.LockedUntil
		}
		s.record(ctx, "login_failed", ident.ID, details)
		return LoginResult{}, apperr.ErrInvalidCredentials
	}

	advisories := advisoriesFor(ident)
	if s.opts.RequireVerification && ident.Status != identity.StatusActive {
		s.record(ctx, "login_denied_inactive", ident.ID, map[string]any{"status": string(ident.Status)})
		return LoginResult{}, apperr.ErrAccountInactive
	}

	if err := s.store.ResetFailedLogins(ctx, ident.ID, now); err != nil {
		return LoginResult{}, apperr.Internal(err, "reset failed logins")
	}
	at := now.UTC()
	ident.LastLoginAt = &at
	ident.FailedLoginAttempts = 0
	ident.LockedUntil = nil

	if s.hasher.NeedsRehash(ident.PasswordHash) {
		s.rehash(ctx, ident.ID, ident.PasswordHash, password)
	}

	tokens, err := s.signer.Mint(s.principal(ident))
	if err != nil {
		return LoginResult{}, apperr.Internal(err, "mint tokens")
	}

	s.record(ctx, "login", ident.ID, map[string]any{"advisories": advisories})
	return LoginResult{Identity: ident, Tokens: tokens, Advisories: advisories}, nil
}

// rehash upgrades the hash Login verified to the current parameters. A
// password set in the meantime is left alone. Failures only delay the
// upgrade to a later login.
func (s *Service) rehash(ctx context.Context, id int64, verified, password string) {
	upgraded, err := s.hasher.Hash(ctx, password)
	if err != nil {
		s.logger.Warn("password rehash failed", "user_id", id, "error", err)
		return
	}
	swapped, err := s.store.RehashPassword(ctx, id, verified, upgraded)
	if err != nil {
		s.logger.Warn("password rehash failed", "user_id", id, "error", err)
		return
	}
	if swapped {
		s.record(ctx, "password_rehash", id, nil)
	}
}

func advisoriesFor(ident identity.Identity) []string {
	out := make([]string, 0, 3)
	if !ident.EmailVerified() {
		out = append(out, AdvisoryVerifyEmail)
	}
	if !ident.PhoneVerified() {
		out = append(out, AdvisoryVerifyPhone)
	}
	if ident.Status == identity.StatusPendingApproval {
		out = append(out, AdvisoryPendingApproval)
	}
	return out
}
