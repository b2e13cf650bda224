package auth

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/homenest/homenest/internal/apperr"
	"github.com/homenest/homenest/internal/audit"
	"github.com/homenest/homenest/internal/identity"
	"github.com/homenest/homenest/internal/logging"
	"github.com/homenest/homenest/internal/notification"
	"github.com/homenest/homenest/internal/security"
	"github.com/homenest/homenest/internal/validation"
)

const testPassword = "Str0ng!Pass"

type testClock struct{ t time.Time }

func (c *testClock) Now() time.Time          { return c.t }
func (c *testClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

type fixture struct {
	svc      *Service
	store    identity.Store
	notifier *notification.MemoryNotifier
	sink     *audit.MemorySink
	clock    *testClock
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()
	logger := logging.Discard()

	hasher, err := security.NewHasher(security.Argon2Params{
		MemoryKiB: 8 * 1024, Iterations: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32,
	}, 4)
	if err != nil {
		t.Fatalf("new hasher: %v", err)
	}
	keys, err := security.NewKeyRing(security.SigningKey{ID: "test", Secret: []byte(strings.Repeat("k", 32))}, nil, time.Hour)
	if err != nil {
		t.Fatalf("new key ring: %v", err)
	}

	clock := &testClock{t: time.Now().UTC()}
	store := identity.NewMemoryStore(identity.DefaultLockoutPolicy())
	notifier := &notification.MemoryNotifier{}
	sink := &audit.MemorySink{}

	if opts.PublicBaseURL == "" {
		opts.PublicBaseURL = "https://homenest.test"
	}
	svc := NewService(Deps{
		Store:    store,
		Hasher:   hasher,
		Signer:   security.NewClaimSigner(keys, security.ClaimSignerConfig{Issuer: "test"}),
		Notifier: notification.NewDispatcher(notifier, time.Second, logger),
		Audit:    audit.NewRecorder(sink, logger),
		Policy:   validation.PasswordPolicy{},
		Logger:   logger,
	}, opts).WithClock(clock.Now)
	svc.background = func(fn func()) { fn() }

	return &fixture{svc: svc, store: store, notifier: notifier, sink: sink, clock: clock}
}

func userInput(email, phone string) RegisterInput {
	return RegisterInput{Name: "Ada Lovelace", Email: email, Phone: phone, Password: testPassword, Role: "user"}
}

func agentInput(email, phone, license string) RegisterInput {
	in := userInput(email, phone)
	in.Role = "agent"
	in.Agent = &identity.AgentProfile{LicenseNumber: license, AgencyName: "Nest Realty", ExperienceYears: 4}
	return in
}

func tokenFrom(t *testing.T, n *notification.MemoryNotifier, kind string) string {
	t.Helper()
	msg, ok := n.Last(kind)
	if !ok {
		t.Fatalf("no %s message delivered", kind)
	}
	_, rest, found := strings.Cut(msg.Body, "token=")
	if !found {
		t.Fatalf("%s message carries no token: %q", kind, msg.Body)
	}
	token, _, _ := strings.Cut(rest, "\n")
	return token
}

func codeFrom(t *testing.T, n *notification.MemoryNotifier) string {
	t.Helper()
	msg, ok := n.Last(notification.KindPhoneVerification)
	if !ok {
		t.Fatal("no phone verification message delivered")
	}
	return msg.Body[len(msg.Body)-phoneCodeDigits:]
}

func (f *fixture) registerVerified(t *testing.T, email, phone string) identity.Identity {
	t.Helper()
	ctx := context.Background()
	if _, err := f.svc.Register(ctx, userInput(email, phone)); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := f.svc.VerifyEmail(ctx, tokenFrom(t, f.notifier, notification.KindEmailVerification)); err != nil {
		t.Fatalf("verify email: %v", err)
	}
	ident, err := f.svc.VerifyPhone(ctx, phone, codeFrom(t, f.notifier))
	if err != nil {
		t.Fatalf("verify phone: %v", err)
	}
	return ident
}

func requireCode(t *testing.T, err error, code string) {
	t.Helper()
	e, ok := apperr.As(err)
	if !ok {
		t.Fatalf("expected apperr with code %s, got %v", code, err)
	}
	if e.Code != code {
		t.Fatalf("expected code %s, got %s (%v)", code, e.Code, err)
	}
}

func TestRegisterUserSendsBothSecrets(t *testing.T) {
	f := newFixture(t, Options{})

	res, err := f.svc.Register(context.Background(), userInput(" Ada@Example.COM ", "+15551234567"))
	require.NoError(t, err)

	require.Equal(t, "ada@example.com", res.Identity.Email)
	require.Equal(t, identity.StatusPendingVerification, res.Identity.Status)
	require.Equal(t, []string{StepVerifyEmail, StepVerifyPhone}, res.NextSteps)
	require.True(t, res.Notifications[notification.ChannelEmail].Sent)
	require.True(t, res.Notifications[notification.ChannelSMS].Sent)

	email, ok := f.notifier.Last(notification.KindEmailVerification)
	require.True(t, ok)
	require.Equal(t, "ada@example.com", email.Destination)
	require.Contains(t, email.Body, "https://homenest.test/verify-email?token=")

	require.Len(t, codeFrom(t, f.notifier), phoneCodeDigits)
	require.Contains(t, f.sink.Types(), "user_registration")

	stored, err := f.store.FindByID(context.Background(), res.Identity.ID)
	require.NoError(t, err)
	require.NotContains(t, stored.PasswordHash, testPassword)
	require.NotEqual(t, tokenFrom(t, f.notifier, notification.KindEmailVerification), stored.EmailTokenHash)
}

func TestRegisterAgentAwaitsApproval(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	res, err := f.svc.Register(ctx, agentInput("agent@example.com", "+15550000001", "LIC-12345"))
	require.NoError(t, err)
	require.Equal(t, identity.StatusPendingApproval, res.Identity.Status)
	require.Equal(t, []string{StepVerifyEmail, StepVerifyPhone, StepAwaitApproval}, res.NextSteps)

	approvals, err := f.store.ListApprovals(ctx, identity.ApprovalPending)
	require.NoError(t, err)
	require.Len(t, approvals, 1)
	require.Equal(t, res.Identity.ID, approvals[0].IdentityID)

	_, err = f.svc.Register(ctx, agentInput("other@example.com", "+15550000002", "LIC-12345"))
	require.True(t, errors.Is(err, apperr.ErrDuplicateLicense), "got %v", err)
}

func TestRegisterValidationCollectsFields(t *testing.T) {
	f := newFixture(t, Options{})

	in := RegisterInput{Name: "A", Email: "not-an-email", Phone: "abc", Password: "short", Role: "admin"}
	_, err := f.svc.Register(context.Background(), in)
	requireCode(t, err, apperr.CodeValidation)

	e, _ := apperr.As(err)
	for _, field := range []string{"name", "email", "phone", "password", "role"} {
		if _, ok := e.Fields[field]; !ok {
			t.Fatalf("expected field error for %s, got %v", field, e.Fields)
		}
	}
	require.Empty(t, f.notifier.Messages())
	require.Contains(t, f.sink.Types(), "user_registration_failed")
}

func TestRegisterWeakPasswordAlone(t *testing.T) {
	f := newFixture(t, Options{})

	in := userInput("weak@example.com", "+15550000003")
	in.Password = "alllowercase"
	_, err := f.svc.Register(context.Background(), in)
	requireCode(t, err, apperr.CodeWeakPassword)
}

func TestRegisterRejectsAgentWithoutProfile(t *testing.T) {
	f := newFixture(t, Options{})

	in := userInput("agent@example.com", "+15550000004")
	in.Role = "agent"
	_, err := f.svc.Register(context.Background(), in)
	requireCode(t, err, apperr.CodeValidation)
}

func TestRegisterDuplicateEmail(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	_, err := f.svc.Register(ctx, userInput("dup@example.com", "+15550000005"))
	require.NoError(t, err)
	_, err = f.svc.Register(ctx, userInput("DUP@example.com", "+15550000006"))
	require.True(t, errors.Is(err, apperr.ErrDuplicateEmail), "got %v", err)
	_, err = f.svc.Register(ctx, userInput("fresh@example.com", "+15550000005"))
	require.True(t, errors.Is(err, apperr.ErrDuplicatePhone), "got %v", err)
}

func TestRegisterSurvivesDeliveryFailure(t *testing.T) {
	f := newFixture(t, Options{})
	f.notifier.FailChannel(notification.ChannelSMS, errors.New("gateway down"))

	res, err := f.svc.Register(context.Background(), userInput("sms@example.com", "+15550000007"))
	require.NoError(t, err)
	require.True(t, res.Notifications[notification.ChannelEmail].Sent)
	require.False(t, res.Notifications[notification.ChannelSMS].Sent)
	require.Equal(t, "gateway down", res.Notifications[notification.ChannelSMS].Error)

	_, err = f.store.FindByEmail(context.Background(), "sms@example.com")
	require.NoError(t, err)
}

func TestVerificationActivatesUserOnce(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	_, err := f.svc.Register(ctx, userInput("v@example.com", "+15550000008"))
	require.NoError(t, err)
	token := tokenFrom(t, f.notifier, notification.KindEmailVerification)
	code := codeFrom(t, f.notifier)

	ident, err := f.svc.VerifyEmail(ctx, token)
	require.NoError(t, err)
	require.True(t, ident.EmailVerified())
	require.Equal(t, identity.StatusPendingVerification, ident.Status)

	_, err = f.svc.VerifyEmail(ctx, token)
	require.True(t, errors.Is(err, apperr.ErrTokenInvalid), "got %v", err)

	ident, err = f.svc.VerifyPhone(ctx, "+15550000008", code)
	require.NoError(t, err)
	require.Equal(t, identity.StatusActive, ident.Status)

	_, err = f.svc.VerifyPhone(ctx, "+15550000008", code)
	require.True(t, errors.Is(err, apperr.ErrTokenInvalid), "got %v", err)
}

func TestVerifyPhoneRejectsMalformedAndWrongCodes(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	_, err := f.svc.Register(ctx, userInput("p@example.com", "+15550000009"))
	require.NoError(t, err)
	code := codeFrom(t, f.notifier)

	wrong := "000000"
	if code == wrong {
		wrong = "111111"
	}
	for _, c := range []string{"12345", "abcdef", wrong} {
		_, err := f.svc.VerifyPhone(ctx, "+15550000009", c)
		require.True(t, errors.Is(err, apperr.ErrTokenInvalid), "code %q: got %v", c, err)
	}
	require.Contains(t, f.sink.Types(), "phone_verification_failed")
}

func TestResendReplacesOutstandingSecret(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	_, err := f.svc.Register(ctx, userInput("r@example.com", "+15550000010"))
	require.NoError(t, err)
	first := tokenFrom(t, f.notifier, notification.KindEmailVerification)

	res, err := f.svc.ResendEmailVerification(ctx, "r@example.com")
	require.NoError(t, err)
	require.True(t, res.Sent)
	second := tokenFrom(t, f.notifier, notification.KindEmailVerification)
	require.NotEqual(t, first, second)

	_, err = f.svc.VerifyEmail(ctx, first)
	require.True(t, errors.Is(err, apperr.ErrTokenInvalid), "got %v", err)
	_, err = f.svc.VerifyEmail(ctx, second)
	require.NoError(t, err)

	_, err = f.svc.ResendEmailVerification(ctx, "r@example.com")
	require.True(t, errors.Is(err, apperr.ErrAlreadyVerified), "got %v", err)

	res, err = f.svc.ResendPhoneVerification(ctx, "+15550000010")
	require.NoError(t, err)
	require.True(t, res.Sent)
}

func TestLoginLockoutStateMachine(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	f.registerVerified(t, "lock@example.com", "+15550000011")

	for i := 0; i < 5; i++ {
		_, err := f.svc.Login(ctx, "lock@example.com", "Wrong!Pass1")
		require.True(t, errors.Is(err, apperr.ErrInvalidCredentials), "attempt %d: got %v", i+1, err)
	}

	_, err := f.svc.Login(ctx, "lock@example.com", testPassword)
	requireCode(t, err, apperr.CodeAccountLocked)
	e, _ := apperr.As(err)
	require.NotNil(t, e.LockedUntil)
	require.Equal(t, 423, apperr.HTTPStatus(err))

	f.clock.Advance(31 * time.Minute)
	res, err := f.svc.Login(ctx, "lock@example.com", testPassword)
	require.NoError(t, err)
	require.Empty(t, res.Advisories)

	stored, err := f.store.FindByID(ctx, res.Identity.ID)
	require.NoError(t, err)
	require.Zero(t, stored.FailedLoginAttempts)
	require.NotNil(t, stored.LastLoginAt)
}

func TestLoginUnknownEmailLooksLikeBadPassword(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	f.registerVerified(t, "known@example.com", "+15550000012")

	_, unknown := f.svc.Login(ctx, "nobody@example.com", testPassword)
	_, wrong := f.svc.Login(ctx, "known@example.com", "Wrong!Pass1")
	_, malformed := f.svc.Login(ctx, "not-an-email", testPassword)

	for _, err := range []error{unknown, wrong, malformed} {
		require.True(t, errors.Is(err, apperr.ErrInvalidCredentials), "got %v", err)
		require.Equal(t, unknown.Error(), err.Error())
	}
}

func TestLoginBeforeVerificationCarriesAdvisories(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	_, err := f.svc.Register(ctx, agentInput("adv@example.com", "+15550000013", "LIC-99999"))
	require.NoError(t, err)

	res, err := f.svc.Login(ctx, "adv@example.com", testPassword)
	require.NoError(t, err)
	require.Equal(t, []string{AdvisoryVerifyEmail, AdvisoryVerifyPhone, AdvisoryPendingApproval}, res.Advisories)
	require.NotEmpty(t, res.Tokens.AccessToken)
}

func TestLoginRequireVerificationDeniesInactive(t *testing.T) {
	f := newFixture(t, Options{RequireVerification: true})
	ctx := context.Background()

	_, err := f.svc.Register(ctx, userInput("strict@example.com", "+15550000014"))
	require.NoError(t, err)

	_, err = f.svc.Login(ctx, "strict@example.com", testPassword)
	require.True(t, errors.Is(err, apperr.ErrAccountInactive), "got %v", err)
}

func TestLoginRefusesSuspended(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	ident := f.registerVerified(t, "sus@example.com", "+15550000015")

	_, err := f.store.SetStatus(ctx, ident.ID, identity.StatusSuspended)
	require.NoError(t, err)

	_, err = f.svc.Login(ctx, "sus@example.com", testPassword)
	require.True(t, errors.Is(err, apperr.ErrInvalidCredentials), "got %v", err)
}

func TestResetRevokesOutstandingSessions(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	f.registerVerified(t, "reset@example.com", "+15550000016")

	before, err := f.svc.Login(ctx, "reset@example.com", testPassword)
	require.NoError(t, err)

	require.NoError(t, f.svc.RequestReset(ctx, "reset@example.com"))
	token := tokenFrom(t, f.notifier, notification.KindPasswordReset)

	require.NoError(t, f.svc.ConfirmReset(ctx, token, "N3w!Password"))

	_, _, err = f.svc.Authenticate(ctx, before.Tokens.AccessToken)
	require.True(t, errors.Is(err, apperr.ErrTokenRevoked), "got %v", err)
	_, err = f.svc.Refresh(ctx, before.Tokens.RefreshToken)
	require.True(t, errors.Is(err, apperr.ErrTokenRevoked), "got %v", err)

	_, err = f.svc.Login(ctx, "reset@example.com", testPassword)
	require.True(t, errors.Is(err, apperr.ErrInvalidCredentials), "got %v", err)
	_, err = f.svc.Login(ctx, "reset@example.com", "N3w!Password")
	require.NoError(t, err)

	err = f.svc.ConfirmReset(ctx, token, "An0ther!Pass")
	require.True(t, errors.Is(err, apperr.ErrTokenInvalid), "got %v", err)
}

// storeLegacyHash swaps the stored hash for a bcrypt hash of password, as
// left behind by an older deployment.
func (f *fixture) storeLegacyHash(t *testing.T, id int64, password string) string {
	t.Helper()
	legacy, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	_, err = f.store.SetPassword(context.Background(), id, string(legacy))
	require.NoError(t, err)
	return string(legacy)
}

func TestLoginUpgradesLegacyHash(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	user := f.registerVerified(t, "legacy@example.com", "+15550000019")
	legacy := f.storeLegacyHash(t, user.ID, testPassword)

	_, err := f.svc.Login(ctx, "legacy@example.com", testPassword)
	require.NoError(t, err)

	stored, err := f.store.FindByID(ctx, user.ID)
	require.NoError(t, err)
	require.NotEqual(t, legacy, stored.PasswordHash)
	require.True(t, strings.HasPrefix(stored.PasswordHash, "argon2id$"), "got %q", stored.PasswordHash)
	require.False(t, f.svc.hasher.NeedsRehash(stored.PasswordHash))
	require.Contains(t, f.sink.Types(), "password_rehash")

	_, err = f.svc.Login(ctx, "legacy@example.com", testPassword)
	require.NoError(t, err)
}

// resetDuringLogin sets a new password between the credential check and the
// rehash of a login, as a concurrent reset would.
type resetDuringLogin struct {
	identity.Store
	hash string
	done bool
}

func (s *resetDuringLogin) ResetFailedLogins(ctx context.Context, id int64, at time.Time) error {
	if !s.done {
		s.done = true
		if _, err := s.Store.SetPassword(ctx, id, s.hash); err != nil {
			return err
		}
	}
	return s.Store.ResetFailedLogins(ctx, id, at)
}

func TestLoginRehashKeepsConcurrentReset(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	user := f.registerVerified(t, "race@example.com", "+15550000020")
	f.storeLegacyHash(t, user.ID, testPassword)

	next, err := f.svc.hasher.Hash(ctx, "N3w!Password")
	require.NoError(t, err)
	f.svc.store = &resetDuringLogin{Store: f.store, hash: next}

	_, err = f.svc.Login(ctx, "race@example.com", testPassword)
	require.NoError(t, err)

	_, err = f.svc.Login(ctx, "race@example.com", testPassword)
	require.True(t, errors.Is(err, apperr.ErrInvalidCredentials), "old password must stay revoked, got %v", err)
	_, err = f.svc.Login(ctx, "race@example.com", "N3w!Password")
	require.NoError(t, err)
	require.NotContains(t, f.sink.Types(), "password_rehash")
}

func TestResetUnknownEmailIsSilent(t *testing.T) {
	f := newFixture(t, Options{})

	require.NoError(t, f.svc.RequestReset(context.Background(), "ghost@example.com"))
	_, ok := f.notifier.Last(notification.KindPasswordReset)
	require.False(t, ok)

	err := f.svc.RequestReset(context.Background(), "not-an-email")
	requireCode(t, err, apperr.CodeValidation)
}

func TestResetTokenExpires(t *testing.T) {
	f := newFixture(t, Options{ResetTTL: 2 * time.Hour})
	ctx := context.Background()
	f.registerVerified(t, "exp@example.com", "+15550000017")

	require.NoError(t, f.svc.RequestReset(ctx, "exp@example.com"))
	token := tokenFrom(t, f.notifier, notification.KindPasswordReset)

	// The TTL is capped at one hour.
	f.clock.Advance(61 * time.Minute)
	err := f.svc.ConfirmReset(ctx, token, "N3w!Password")
	require.True(t, errors.Is(err, apperr.ErrResetExpired), "got %v", err)
}

func TestRefreshReusableByDefault(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	f.registerVerified(t, "re@example.com", "+15550000018")

	res, err := f.svc.Login(ctx, "re@example.com", testPassword)
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		pair, err := f.svc.Refresh(ctx, res.Tokens.RefreshToken)
		require.NoError(t, err)
		require.NotEmpty(t, pair.AccessToken)
	}

	_, err = f.svc.Refresh(ctx, res.Tokens.AccessToken)
	require.True(t, errors.Is(err, apperr.ErrTokenWrongType), "got %v", err)
}

func TestRefreshSingleUseDetectsReplay(t *testing.T) {
	f := newFixture(t, Options{Rotation: RotationSingleUse})
	ctx := context.Background()
	f.registerVerified(t, "once@example.com", "+15550000019")

	res, err := f.svc.Login(ctx, "once@example.com", testPassword)
	require.NoError(t, err)

	next, err := f.svc.Refresh(ctx, res.Tokens.RefreshToken)
	require.NoError(t, err)

	_, err = f.svc.Refresh(ctx, res.Tokens.RefreshToken)
	require.True(t, errors.Is(err, apperr.ErrTokenRevoked), "got %v", err)
	require.Contains(t, f.sink.Types(), "refresh_reuse_breach")

	_, err = f.svc.Refresh(ctx, next.RefreshToken)
	require.NoError(t, err)
}

func TestLogoutModes(t *testing.T) {
	ctx := context.Background()

	lenient := newFixture(t, Options{})
	ident := lenient.registerVerified(t, "soft@example.com", "+15550000020")
	res, err := lenient.svc.Login(ctx, "soft@example.com", testPassword)
	require.NoError(t, err)
	require.NoError(t, lenient.svc.Logout(ctx, ident))
	_, _, err = lenient.svc.Authenticate(ctx, res.Tokens.AccessToken)
	require.NoError(t, err)

	strict := newFixture(t, Options{StrictLogout: true})
	ident = strict.registerVerified(t, "hard@example.com", "+15550000021")
	res, err = strict.svc.Login(ctx, "hard@example.com", testPassword)
	require.NoError(t, err)
	require.NoError(t, strict.svc.Logout(ctx, ident))
	_, _, err = strict.svc.Authenticate(ctx, res.Tokens.AccessToken)
	require.True(t, errors.Is(err, apperr.ErrTokenRevoked), "got %v", err)
}

func TestForceLogoutAllBumpsVersion(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	ident := f.registerVerified(t, "force@example.com", "+15550000022")

	res, err := f.svc.Login(ctx, "force@example.com", testPassword)
	require.NoError(t, err)

	version, err := f.svc.ForceLogoutAll(ctx, ident.ID)
	require.NoError(t, err)
	require.Equal(t, ident.TokenVersion+1, version)

	_, _, err = f.svc.Authenticate(ctx, res.Tokens.AccessToken)
	require.True(t, errors.Is(err, apperr.ErrTokenRevoked), "got %v", err)

	_, err = f.svc.ForceLogoutAll(ctx, 9999)
	require.True(t, errors.Is(err, apperr.ErrNotFound), "got %v", err)
}

func TestChangePasswordReissuesTokens(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	f.registerVerified(t, "cp@example.com", "+15550000023")

	res, err := f.svc.Login(ctx, "cp@example.com", testPassword)
	require.NoError(t, err)

	_, err = f.svc.ChangePassword(ctx, res.Identity, "Wrong!Pass1", "N3w!Password")
	require.True(t, errors.Is(err, apperr.ErrInvalidCredentials), "got %v", err)

	pair, err := f.svc.ChangePassword(ctx, res.Identity, testPassword, "N3w!Password")
	require.NoError(t, err)

	_, _, err = f.svc.Authenticate(ctx, res.Tokens.AccessToken)
	require.True(t, errors.Is(err, apperr.ErrTokenRevoked), "got %v", err)
	_, _, err = f.svc.Authenticate(ctx, pair.AccessToken)
	require.NoError(t, err)
}

func TestUpdateProfile(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	ident := f.registerVerified(t, "prof@example.com", "+15550000024")

	name := "  Grace Hopper "
	updated, err := f.svc.UpdateProfile(ctx, ident, ProfileInput{Name: &name})
	require.NoError(t, err)
	require.Equal(t, "Grace Hopper", updated.Name)

	_, err = f.svc.UpdateProfile(ctx, ident, ProfileInput{Agent: &identity.AgentProfile{LicenseNumber: "LIC-00001", AgencyName: "Nest"}})
	require.True(t, errors.Is(err, apperr.ErrForbidden), "got %v", err)

	short := "x"
	_, err = f.svc.UpdateProfile(ctx, ident, ProfileInput{Name: &short})
	requireCode(t, err, apperr.CodeValidation)
}

func TestEmailAvailable(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	_, err := f.svc.Register(ctx, userInput("taken@example.com", "+15550000025"))
	require.NoError(t, err)

	free, err := f.svc.EmailAvailable(ctx, "TAKEN@example.com")
	require.NoError(t, err)
	require.False(t, free)

	free, err = f.svc.EmailAvailable(ctx, "free@example.com")
	require.NoError(t, err)
	require.True(t, free)
}
