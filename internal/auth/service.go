package auth

import (
	"context"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/homenest/homenest/internal/audit"
	"github.com/homenest/homenest/internal/identity"
	"github.com/homenest/homenest/internal/notification"
	"github.com/homenest/homenest/internal/security"
	"github.com/homenest/homenest/internal/validation"
)

const (
	emailTokenBytes = 32
	resetTokenBytes = 32
	phoneCodeDigits = 6

	maxResetTTL = time.Hour
)

// RotationMode selects how refresh tokens behave after use.
type RotationMode string

const (
	// RotationReusable keeps a refresh token valid until expiry or version bump.
	RotationReusable RotationMode = "reusable"
	// RotationSingleUse accepts each refresh token once.
	RotationSingleUse RotationMode = "single_use"
)

// Options are the policy switches of the service.
type Options struct {
	ResetTTL            time.Duration
	RequireVerification bool
	StrictLogout        bool
	Rotation            RotationMode
	PublicBaseURL       string
}

// Deps are the collaborators of the service.
type Deps struct {
	Store    identity.Store
	Hasher   *security.Hasher
	Signer   *security.ClaimSigner
	Notifier *notification.Dispatcher
	Audit    *audit.Recorder
	Ledger   RefreshLedger
	Policy   validation.PasswordPolicy
	Logger   *slog.Logger
}

// Service implements registration, verification, login, password reset and
// session management over an identity.Store. Audit events are recorded after
// the store operation commits.
type Service struct {
	store    identity.Store
	hasher   *security.Hasher
	signer   *security.ClaimSigner
	notifier *notification.Dispatcher
	audit    *audit.Recorder
	ledger   RefreshLedger
	policy   validation.PasswordPolicy
	logger   *slog.Logger
	opts     Options

	now        func() time.Time
	background func(func())
}

// NewService wires a Service.
func NewService(d Deps, opts Options) *Service {
	if opts.ResetTTL <= 0 || opts.ResetTTL > maxResetTTL {
		opts.ResetTTL = maxResetTTL
	}
	if opts.Rotation == "" {
		opts.Rotation = RotationReusable
	}
	opts.PublicBaseURL = strings.TrimRight(opts.PublicBaseURL, "/")

	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	ledger := d.Ledger
	if ledger == nil {
		ledger = NewMemoryRefreshLedger()
	}
	return &Service{
		store:      d.Store,
		hasher:     d.Hasher,
		signer:     d.Signer,
		notifier:   d.Notifier,
		audit:      d.Audit,
		ledger:     ledger,
		policy:     d.Policy,
		logger:     logger,
		opts:       opts,
		now:        time.Now,
		background: func(fn func()) { go fn() },
	}
}

// WithClock overrides the time source.
func (s *Service) WithClock(now func() time.Time) *Service {
	if now != nil {
		s.now = now
	}
	return s
}

func (s *Service) link(path, token string) string {
	return s.opts.PublicBaseURL + path + "?token=" + url.QueryEscape(token)
}

func (s *Service) emailVerificationMessage(to, token string) notification.Message {
	return notification.Message{
		Kind:        notification.KindEmailVerification,
		Channel:     notification.ChannelEmail,
		Destination: to,
		Subject:     "Confirm your email address",
		Body:        "Confirm your email address by opening this link:\n\n" + s.link("/verify-email", token) + "\n",
	}
}

func phoneVerificationMessage(to, code string) notification.Message {
	return notification.Message{
		Kind:        notification.KindPhoneVerification,
		Channel:     notification.ChannelSMS,
		Destination: to,
		Body:        "Your verification code is " + code,
	}
}

func (s *Service) resetMessage(to, token string) notification.Message {
	return notification.Message{
		Kind:        notification.KindPasswordReset,
		Channel:     notification.ChannelEmail,
		Destination: to,
		Subject:     "Reset your password",
		Body: "Someone asked to reset the password for this account. The link below is valid for " +
			s.opts.ResetTTL.String() + ":\n\n" + s.link("/reset-password", token) +
			"\n\nIf it was not you, ignore this email.\n",
	}
}

func (s *Service) principal(ident identity.Identity) security.Principal {
	return security.Principal{ID: ident.ID, Role: string(ident.Role), TokenVersion: ident.TokenVersion}
}

func (s *Service) record(ctx context.Context, event string, userID int64, details map[string]any) {
	s.audit.Record(ctx, event, userID, details)
}
