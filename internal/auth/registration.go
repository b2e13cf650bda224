package auth

import (
	"context"
	"errors"

	"github.com/homenest/homenest/internal/apperr"
	"github.com/homenest/homenest/internal/identity"
	"github.com/homenest/homenest/internal/notification"
	"github.com/homenest/homenest/internal/security"
	"github.com/homenest/homenest/internal/validation"
)

// Next steps reported after registration.
const (
	StepVerifyEmail   = "verify_email"
	StepVerifyPhone   = "verify_phone"
	StepAwaitApproval = "await_approval"
)

// RegisterInput is the self-service sign-up request.
type RegisterInput struct {
	Name     string
	Email    string
	Phone    string
	Password string
	Role     string
	Agent    *identity.AgentProfile
}

// RegisterResult carries the created identity and delivery outcomes.
type RegisterResult struct {
	Identity      identity.Identity
	Notifications map[notification.Channel]notification.Result
	NextSteps     []string
}

// Register validates, hashes and stores a new identity, then sends the
// email token and phone code. Delivery failures are reported in the result
// and never undo the registration.
func (s *Service) Register(ctx context.Context, in RegisterInput) (RegisterResult, error) {
	candidate, err := s.validateRegistration(in)
	if err != nil {
		s.record(ctx, "user_registration_failed", 0, map[string]any{"reason": errorCode(err)})
		return RegisterResult{}, err
	}

	hash, err := s.hasher.Hash(ctx, in.Password)
	if err != nil {
		return RegisterResult{}, apperr.Internal(err, "hash password")
	}
	emailToken, err := security.RandomToken(emailTokenBytes)
	if err != nil {
		return RegisterResult{}, apperr.Internal(err, "mint email token")
	}
	phoneCode, err := security.NumericCode(phoneCodeDigits)
	if err != nil {
		return RegisterResult{}, apperr.Internal(err, "mint phone code")
	}

	candidate.PasswordHash = hash
	candidate.EmailToken = emailToken
	candidate.PhoneCode = phoneCode
	candidate.Status = identity.StatusPendingVerification
	if candidate.Role == identity.RoleAgent {
		candidate.Status = identity.StatusPendingApproval
	}

	created, err := s.store.InsertIdentity(ctx, candidate)
	if err != nil {
		s.record(ctx, "user_registration_failed", 0, map[string]any{
			"reason": errorCode(err),
			"role":   string(candidate.Role),
		})
		if _, ok := apperr.As(err); ok {
			return RegisterResult{}, err
		}
		return RegisterResult{}, apperr.Internal(err, "create identity")
	}

	results := s.notifier.Dispatch(ctx,
		s.emailVerificationMessage(created.Email, emailToken),
		phoneVerificationMessage(created.Phone, phoneCode),
	)

	steps := []string{StepVerifyEmail, StepVerifyPhone}
	if created.Role == identity.RoleAgent {
		steps = append(steps, StepAwaitApproval)
	}

	s.record(ctx, "user_registration", created.ID, map[string]any{
		"role":       string(created.Role),
		"email_sent": results[notification.ChannelEmail].Sent,
		"sms_sent":   results[notification.ChannelSMS].Sent,
	})

	return RegisterResult{Identity: created, Notifications: results, NextSteps: steps}, nil
}

func (s *Service) validateRegistration(in RegisterInput) (identity.NewIdentity, error) {
	errs := validation.Errors{}

	name, msg := validation.Name(in.Name)
	if msg != "" {
		errs.Add("name", msg)
	}
	email, msg := validation.Email(in.Email)
	if msg != "" {
		errs.Add("email", msg)
	}
	phone, msg := validation.Phone(in.Phone)
	if msg != "" {
		errs.Add("phone", msg)
	}
	role, msg := validation.Role(in.Role)
	if msg != "" {
		errs.Add("role", msg)
	}

	var agent *identity.AgentProfile
	if role == identity.RoleAgent {
		if in.Agent != nil {
			profile := *in.Agent
			agent = &profile
		}
		errs.Merge(validation.AgentProfile(agent))
	}

	pwErr := s.policy.Validate(in.Password, email, name, phone)
	if len(errs) > 0 {
		if e, ok := apperr.As(pwErr); ok {
			errs.Merge(validation.Errors(e.Fields))
		}
		return identity.NewIdentity{}, errs.Err()
	}
	if pwErr != nil {
		return identity.NewIdentity{}, pwErr
	}

	return identity.NewIdentity{
		Name:  name,
		Email: email,
		Phone: phone,
		Role:  role,
		Agent: agent,
	}, nil
}

func errorCode(err error) string {
	if e, ok := apperr.As(err); ok {
		return e.Code
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return "canceled"
	}
	return apperr.CodeInternal
}
