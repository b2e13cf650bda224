package auth

import (
	"context"
	"errors"

	"github.com/homenest/homenest/internal/apperr"
	"github.com/homenest/homenest/internal/identity"
	"github.com/homenest/homenest/internal/security"
	"github.com/homenest/homenest/internal/validation"
)

// ChangePassword replaces the password of an authenticated identity after
// re-checking the current one. All earlier sessions are revoked and a fresh
// pair is returned for the caller.
func (s *Service) ChangePassword(ctx context.Context, ident identity.Identity, current, next string) (security.TokenPair, error) {
	ok, err := s.hasher.Verify(ctx, current, ident.PasswordHash)
	if err != nil {
		return security.TokenPair{}, apperr.Internal(err, "verify password")
	}
	if !ok {
		s.record(ctx, "password_change_failed", ident.ID, map[string]any{"reason": "bad_password"})
		return security.TokenPair{}, apperr.ErrInvalidCredentials
	}
	if current == next {
		return security.TokenPair{}, apperr.Validation("validation failed", map[string]string{
			"new_password": "new password must differ from the current one",
		})
	}
	if err := s.policy.Validate(next, ident.Email, ident.Name, ident.Phone); err != nil {
		return security.TokenPair{}, err
	}
	hash, err := s.hasher.Hash(ctx, next)
	if err != nil {
		return security.TokenPair{}, apperr.Internal(err, "hash password")
	}
	version, err := s.store.SetPassword(ctx, ident.ID, hash)
	if err != nil {
		return security.TokenPair{}, storeError(err, "set password")
	}
	ident.TokenVersion = version

	pair, err := s.signer.Mint(s.principal(ident))
	if err != nil {
		return security.TokenPair{}, apperr.Internal(err, "mint tokens")
	}
	s.record(ctx, "password_change", ident.ID, map[string]any{"token_version": version})
	return pair, nil
}

// ProfileInput carries optional profile changes.
type ProfileInput struct {
	Name  *string
	Agent *identity.AgentProfile
}

// UpdateProfile validates and applies profile changes. Agent fields are
// only accepted for agents.
func (s *Service) UpdateProfile(ctx context.Context, ident identity.Identity, in ProfileInput) (identity.Identity, error) {
	errs := validation.Errors{}
	var update identity.ProfileUpdate
	if in.Name != nil {
		name, msg := validation.Name(*in.Name)
		if msg != "" {
			errs.Add("name", msg)
		}
		update.Name = &name
	}
	if in.Agent != nil {
		if ident.Role != identity.RoleAgent {
			return identity.Identity{}, apperr.ErrForbidden
		}
		profile := *in.Agent
		errs.Merge(validation.AgentProfile(&profile))
		update.Agent = &profile
	}
	if err := errs.Err(); err != nil {
		return identity.Identity{}, err
	}
	if update.Name == nil && update.Agent == nil {
		return ident, nil
	}

	updated, err := s.store.UpdateProfile(ctx, ident.ID, update)
	if err != nil {
		return identity.Identity{}, storeError(err, "update profile")
	}
	s.record(ctx, "profile_update", ident.ID, nil)
	return updated, nil
}

// EmailAvailable reports whether email is free for registration.
func (s *Service) EmailAvailable(ctx context.Context, email string) (bool, error) {
	normalized, msg := validation.Email(email)
	if msg != "" {
		return false, apperr.Validation("validation failed", map[string]string{"email": msg})
	}
	_, err := s.store.FindByEmail(ctx, normalized)
	if errors.Is(err, apperr.ErrNotFound) {
		return true, nil
	}
	if err != nil {
		return false, apperr.Internal(err, "find identity")
	}
	return false, nil
}
