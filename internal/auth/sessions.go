package auth

import (
	"context"
	"errors"

	"github.com/homenest/homenest/internal/apperr"
	"github.com/homenest/homenest/internal/identity"
	"github.com/homenest/homenest/internal/security"
)

// Authenticate validates an access token against the stored identity.
// A token whose version no longer matches, or whose identity is gone or
// suspended, is revoked.
func (s *Service) Authenticate(ctx context.Context, raw string) (identity.Identity, *security.Claims, error) {
	claims, err := s.signer.Verify(raw, security.TokenAccess)
	if err != nil {
		return identity.Identity{}, nil, err
	}
	ident, err := s.current(ctx, claims)
	if err != nil {
		return identity.Identity{}, nil, err
	}
	return ident, claims, nil
}

func (s *Service) current(ctx context.Context, claims *security.Claims) (identity.Identity, error) {
	id, err := claims.UserID()
	if err != nil {
		return identity.Identity{}, err
	}
	ident, err := s.store.FindByID(ctx, id)
	if errors.Is(err, apperr.ErrNotFound) {
		return identity.Identity{}, apperr.ErrTokenRevoked
	}
	if err != nil {
		return identity.Identity{}, apperr.Internal(err, "load identity")
	}
	if ident.Deleted() || ident.Status == identity.StatusSuspended || ident.TokenVersion != claims.Version {
		return identity.Identity{}, apperr.ErrTokenRevoked
	}
	return ident, nil
}

// Refresh exchanges a refresh token for a new pair. In single-use rotation
// mode a refresh token is accepted once; a replay is treated as revoked.
func (s *Service) Refresh(ctx context.Context, raw string) (security.TokenPair, error) {
	claims, err := s.signer.Verify(raw, security.TokenRefresh)
	if err != nil {
		return security.TokenPair{}, err
	}
	ident, err := s.current(ctx, claims)
	if err != nil {
		s.record(ctx, "token_refresh_failed", 0, map[string]any{"reason": errorCode(err)})
		return security.TokenPair{}, err
	}

	if s.opts.Rotation == RotationSingleUse {
		if claims.ID == "" {
			return security.TokenPair{}, apperr.ErrTokenMalformed
		}
		ttl := claims.ExpiresAt.Time.Sub(s.now())
		first, err := s.ledger.Consume(ctx, claims.ID, ttl)
		if err != nil {
			return security.TokenPair{}, apperr.Internal(err, "consume refresh token")
		}
		if !first {
			s.record(ctx, "refresh_reuse_breach", ident.ID, map[string]any{"jti": claims.ID})
			return security.TokenPair{}, apperr.ErrTokenRevoked
		}
	}

	pair, err := s.signer.Mint(s.principal(ident))
	if err != nil {
		return security.TokenPair{}, apperr.Internal(err, "mint tokens")
	}
	s.record(ctx, "token_refresh", ident.ID, nil)
	return pair, nil
}

// Logout is best-effort by default: clients discard their tokens. With
// strict logout the token version is bumped, revoking every session.
func (s *Service) Logout(ctx context.Context, ident identity.Identity) error {
	if s.opts.StrictLogout {
		if _, err := s.store.BumpTokenVersion(ctx, ident.ID); err != nil {
			return storeError(err, "bump token version")
		}
	}
	s.record(ctx, "logout", ident.ID, map[string]any{"strict": s.opts.StrictLogout})
	return nil
}

// ForceLogoutAll revokes every outstanding token of id and returns the new version.
func (s *Service) ForceLogoutAll(ctx context.Context, id int64) (int, error) {
	version, err := s.store.BumpTokenVersion(ctx, id)
	if err != nil {
		return 0, storeError(err, "bump token version")
	}
	return version, nil
}
