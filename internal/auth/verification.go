package auth

import (
	"context"
	"errors"
	"strings"

	"github.com/homenest/homenest/internal/apperr"
	"github.com/homenest/homenest/internal/identity"
	"github.com/homenest/homenest/internal/notification"
	"github.com/homenest/homenest/internal/security"
	"github.com/homenest/homenest/internal/validation"
)

// VerifyEmail redeems an email token. Spent, unknown and mismatched tokens
// all yield ErrTokenInvalid.
func (s *Service) VerifyEmail(ctx context.Context, token string) (identity.Identity, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return identity.Identity{}, apperr.ErrTokenInvalid
	}
	found, err := s.store.FindByEmailToken(ctx, token)
	if err != nil {
		return identity.Identity{}, s.redemptionError(ctx, "email_verification_failed", 0, err)
	}
	updated, err := s.store.MarkEmailVerified(ctx, found.ID, token, s.now())
	if err != nil {
		return identity.Identity{}, s.redemptionError(ctx, "email_verification_failed", found.ID, err)
	}
	s.record(ctx, "email_verified", updated.ID, map[string]any{"status": string(updated.Status)})
	return updated, nil
}

// VerifyPhone redeems a phone code for phone. The code must match exactly.
func (s *Service) VerifyPhone(ctx context.Context, phone, code string) (identity.Identity, error) {
	normalized, msg := validation.Phone(phone)
	if msg != "" {
		return identity.Identity{}, apperr.Validation("validation failed", map[string]string{"phone": msg})
	}
	code = strings.TrimSpace(code)
	if !isDigits(code, phoneCodeDigits) {
		return identity.Identity{}, apperr.ErrTokenInvalid
	}
	found, err := s.store.FindByPhoneAndCode(ctx, normalized, code)
	if err != nil {
		return identity.Identity{}, s.redemptionError(ctx, "phone_verification_failed", 0, err)
	}
	updated, err := s.store.MarkPhoneVerified(ctx, found.ID, normalized, code, s.now())
	if err != nil {
		return identity.Identity{}, s.redemptionError(ctx, "phone_verification_failed", found.ID, err)
	}
	s.record(ctx, "phone_verified", updated.ID, map[string]any{"status": string(updated.Status)})
	return updated, nil
}

func (s *Service) redemptionError(ctx context.Context, event string, userID int64, err error) error {
	if errors.Is(err, apperr.ErrNotFound) {
		err = apperr.ErrTokenInvalid
	}
	s.record(ctx, event, userID, map[string]any{"reason": errorCode(err)})
	if _, ok := apperr.As(err); ok {
		return err
	}
	return apperr.Internal(err, "redeem verification secret")
}

// ResendEmailVerification replaces the outstanding email token and sends it.
func (s *Service) ResendEmailVerification(ctx context.Context, email string) (notification.Result, error) {
	normalized, msg := validation.Email(email)
	if msg != "" {
		return notification.Result{}, apperr.Validation("validation failed", map[string]string{"email": msg})
	}
	found, err := s.store.FindByEmail(ctx, normalized)
	if err != nil {
		return notification.Result{}, storeError(err, "find identity")
	}
	if found.EmailVerified() {
		return notification.Result{}, apperr.ErrAlreadyVerified
	}
	token, err := security.RandomToken(emailTokenBytes)
	if err != nil {
		return notification.Result{}, apperr.Internal(err, "mint email token")
	}
	if err := s.store.SetEmailToken(ctx, found.ID, token); err != nil {
		return notification.Result{}, storeError(err, "store email token")
	}
	results := s.notifier.Dispatch(ctx, s.emailVerificationMessage(found.Email, token))
	s.record(ctx, "email_verification_resent", found.ID, map[string]any{"sent": results[notification.ChannelEmail].Sent})
	return results[notification.ChannelEmail], nil
}

// ResendPhoneVerification replaces the outstanding phone code and sends it.
func (s *Service) ResendPhoneVerification(ctx context.Context, phone string) (notification.Result, error) {
	normalized, msg := validation.Phone(phone)
	if msg != "" {
		return notification.Result{}, apperr.Validation("validation failed", map[string]string{"phone": msg})
	}
	found, err := s.store.FindByPhone(ctx, normalized)
	if err != nil {
		return notification.Result{}, storeError(err, "find identity")
	}
	if found.PhoneVerified() {
		return notification.Result{}, apperr.ErrAlreadyVerified
	}
	code, err := security.NumericCode(phoneCodeDigits)
	if err != nil {
		return notification.Result{}, apperr.Internal(err, "mint phone code")
	}
	if err := s.store.SetPhoneCode(ctx, found.ID, code); err != nil {
		return notification.Result{}, storeError(err, "store phone code")
	}
	results := s.notifier.Dispatch(ctx, phoneVerificationMessage(found.Phone, code))
	s.record(ctx, "phone_verification_resent", found.ID, map[string]any{"sent": results[notification.ChannelSMS].Sent})
	return results[notification.ChannelSMS], nil
}

func storeError(err error, msg string) error {
	if _, ok := apperr.As(err); ok {
		return err
	}
	return apperr.Internal(err, msg)
}

func isDigits(s string, n int) bool {
	if len(s) != n {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
