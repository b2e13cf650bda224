package identity

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/homenest/homenest/internal/apperr"
)

func newAgentCandidate(email, phone, license string) NewIdentity {
	return NewIdentity{
		Name:         "Agent Smith",
		Email:        email,
		Phone:        phone,
		PasswordHash: "hash",
		Role:         RoleAgent,
		Status:       StatusPendingApproval,
		EmailToken:   "email-token-" + email,
		PhoneCode:    "123456",
		Agent:        &AgentProfile{LicenseNumber: license, AgencyName: "Acme", ExperienceYears: 3},
	}
}

func newUserCandidate(email, phone string) NewIdentity {
	return NewIdentity{
		Name:         "Jane Doe",
		Email:        email,
		Phone:        phone,
		PasswordHash: "hash",
		Role:         RoleUser,
		Status:       StatusPendingVerification,
		EmailToken:   "email-token-" + email,
		PhoneCode:    "654321",
	}
}

func TestInsertIdentityUniqueness(t *testing.T) {
	store := NewMemoryStore(DefaultLockoutPolicy())
	ctx := context.Background()

	if _, err := store.InsertIdentity(ctx, newAgentCandidate("a@x.io", "+15550001", "LIC-1")); err != nil {
		t.Fatalf("insert: %v", err)
	}

	cases := []struct {
		name string
		in   NewIdentity
		want error
	}{
		{"email", newUserCandidate("a@x.io", "+15550002"), apperr.ErrDuplicateEmail},
		{"phone", newUserCandidate("b@x.io", "+15550001"), apperr.ErrDuplicatePhone},
		{"license", newAgentCandidate("c@x.io", "+15550003", "LIC-1"), apperr.ErrDuplicateLicense},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := store.InsertIdentity(ctx, tc.in); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestInsertIdentityConcurrentDuplicates(t *testing.T) {
	store := NewMemoryStore(DefaultLockoutPolicy())
	ctx := context.Background()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		success int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := store.InsertIdentity(ctx, newUserCandidate("race@x.io", "+15559999")); err == nil {
				mu.Lock()
				success++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if success != 1 {
		t.Fatalf("expected exactly one insert to win, got %d", success)
	}
}

func TestAgentInsertCreatesPendingApproval(t *testing.T) {
	store := NewMemoryStore(DefaultLockoutPolicy())
	ctx := context.Background()

	agent, err := store.InsertIdentity(ctx, newAgentCandidate("agent@x.io", "+15550010", "LIC-9"))
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	pending, err := store.ListApprovals(ctx, ApprovalPending)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(pending) != 1 || pending[0].IdentityID != agent.ID {
		t.Fatalf("expected one pending approval for agent, got %+v", pending)
	}
	if agent.TokenVersion != 1 {
		t.Fatalf("expected token version 1, got %d", agent.TokenVersion)
	}
}

func TestVerificationIsSingleUse(t *testing.T) {
	store := NewMemoryStore(DefaultLockoutPolicy())
	ctx := context.Background()
	now := time.Now()

	c := newUserCandidate("v@x.io", "+15550020")
	user, err := store.InsertIdentity(ctx, c)
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if user.EmailTokenHash == c.EmailToken {
		t.Fatalf("token stored in plaintext")
	}

	found, err := store.FindByEmailToken(ctx, c.EmailToken)
	if err != nil || found.ID != user.ID {
		t.Fatalf("find by token: %v", err)
	}
	if _, err := store.MarkEmailVerified(ctx, user.ID, c.EmailToken, now); err != nil {
		t.Fatalf("verify email: %v", err)
	}
	if _, err := store.MarkEmailVerified(ctx, user.ID, c.EmailToken, now); !errors.Is(err, apperr.ErrTokenInvalid) {
		t.Fatalf("expected token invalid on reuse, got %v", err)
	}
	if _, err := store.FindByEmailToken(ctx, c.EmailToken); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected spent token to be gone, got %v", err)
	}

	got, err := store.MarkPhoneVerified(ctx, user.ID, c.Phone, c.PhoneCode, now)
	if err != nil {
		t.Fatalf("verify phone: %v", err)
	}
	if got.Status != StatusActive {
		t.Fatalf("expected active after both channels, got %s", got.Status)
	}
	if err := store.SetPhoneCode(ctx, user.ID, "111111"); !errors.Is(err, apperr.ErrAlreadyVerified) {
		t.Fatalf("expected already verified, got %v", err)
	}
	if err := store.SetEmailToken(ctx, user.ID, "fresh"); !errors.Is(err, apperr.ErrAlreadyVerified) {
		t.Fatalf("expected already verified on email resend, got %v", err)
	}
	if _, err := store.MarkPhoneVerified(ctx, user.ID, c.Phone, c.PhoneCode, now); !errors.Is(err, apperr.ErrTokenInvalid) {
		t.Fatalf("expected replayed code to be invalid, got %v", err)
	}
}

func TestAgentActivationNeedsApproval(t *testing.T) {
	store := NewMemoryStore(DefaultLockoutPolicy())
	ctx := context.Background()
	now := time.Now()

	c := newAgentCandidate("ag@x.io", "+15550030", "LIC-30")
	agent, err := store.InsertIdentity(ctx, c)
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if _, err := store.MarkEmailVerified(ctx, agent.ID, c.EmailToken, now); err != nil {
		t.Fatalf("verify email: %v", err)
	}
	got, err := store.MarkPhoneVerified(ctx, agent.ID, c.Phone, c.PhoneCode, now)
	if err != nil {
		t.Fatalf("verify phone: %v", err)
	}
	if got.Status != StatusPendingApproval {
		t.Fatalf("expected pending_approval, got %s", got.Status)
	}

	pending, _ := store.ListApprovals(ctx, ApprovalPending)
	_, decided, err := store.DecideApproval(ctx, pending[0].ID, ApprovalApproved, 99, now)
	if err != nil {
		t.Fatalf("decide: %v", err)
	}
	if decided.Status != StatusActive {
		t.Fatalf("expected active after approval, got %s", decided.Status)
	}
	if _, _, err := store.DecideApproval(ctx, pending[0].ID, ApprovalRejected, 99, now); err == nil {
		t.Fatalf("expected second decision to fail")
	}
}

func TestRejectedAgentIsSuspended(t *testing.T) {
	store := NewMemoryStore(DefaultLockoutPolicy())
	ctx := context.Background()

	agent, err := store.InsertIdentity(ctx, newAgentCandidate("rej@x.io", "+15550031", "LIC-31"))
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	pending, _ := store.ListApprovals(ctx, ApprovalPending)
	_, decided, err := store.DecideApproval(ctx, pending[0].ID, ApprovalRejected, 1, time.Now())
	if err != nil {
		t.Fatalf("decide: %v", err)
	}
	if decided.ID != agent.ID || decided.Status != StatusSuspended {
		t.Fatalf("expected suspended agent, got %+v", decided)
	}
	if ok, _ := store.Approved(ctx, agent.ID); ok {
		t.Fatalf("rejected agent must not be approved")
	}
}

func TestLockoutThreshold(t *testing.T) {
	store := NewMemoryStore(LockoutPolicy{Threshold: 3, Duration: time.Minute})
	ctx := context.Background()
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	user, err := store.InsertIdentity(ctx, newUserCandidate("l@x.io", "+15550040"))
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	for i := 1; i <= 2; i++ {
		failure, err := store.BumpFailedLogins(ctx, user.ID, now)
		if err != nil {
			t.Fatalf("bump: %v", err)
		}
		if failure.Attempts != i || failure.LockedUntil != nil {
			t.Fatalf("unexpected failure state %+v", failure)
		}
	}
	failure, err := store.BumpFailedLogins(ctx, user.ID, now)
	if err != nil {
		t.Fatalf("bump: %v", err)
	}
	if failure.LockedUntil == nil || !failure.LockedUntil.Equal(now.Add(time.Minute)) {
		t.Fatalf("expected lock until %v, got %+v", now.Add(time.Minute), failure)
	}
	got, _ := store.FindByID(ctx, user.ID)
	if got.FailedLoginAttempts != 0 || !got.LockedAt(now) {
		t.Fatalf("expected counter reset and lock in force, got %+v", got)
	}

	if err := store.ResetFailedLogins(ctx, user.ID, now); err != nil {
		t.Fatalf("reset: %v", err)
	}
	got, _ = store.FindByID(ctx, user.ID)
	if got.LockedUntil != nil || got.LastLoginAt == nil {
		t.Fatalf("expected cleared lock and last login, got %+v", got)
	}
}

func TestResetTokenRedemption(t *testing.T) {
	store := NewMemoryStore(DefaultLockoutPolicy())
	ctx := context.Background()
	now := time.Now()

	user, err := store.InsertIdentity(ctx, newUserCandidate("r@x.io", "+15550050"))
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := store.IssueResetToken(ctx, user.ID, "first", now.Add(time.Hour)); err != nil {
		t.Fatalf("issue: %v", err)
	}
	if err := store.IssueResetToken(ctx, user.ID, "second", now.Add(time.Hour)); err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := store.RedeemResetToken(ctx, "first", "new-hash", now); !errors.Is(err, apperr.ErrTokenInvalid) {
		t.Fatalf("expected superseded token invalid, got %v", err)
	}

	got, err := store.RedeemResetToken(ctx, "second", "new-hash", now)
	if err != nil {
		t.Fatalf("redeem: %v", err)
	}
	if got.PasswordHash != "new-hash" || got.TokenVersion != user.TokenVersion+1 {
		t.Fatalf("expected new hash and bumped version, got %+v", got)
	}
	if _, err := store.RedeemResetToken(ctx, "second", "other", now); !errors.Is(err, apperr.ErrTokenInvalid) {
		t.Fatalf("expected reuse to fail, got %v", err)
	}
}

func TestResetTokenExpiry(t *testing.T) {
	store := NewMemoryStore(DefaultLockoutPolicy())
	ctx := context.Background()
	now := time.Now()

	user, err := store.InsertIdentity(ctx, newUserCandidate("e@x.io", "+15550060"))
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := store.IssueResetToken(ctx, user.ID, "tok", now.Add(-time.Second)); err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := store.RedeemResetToken(ctx, "tok", "h", now); !errors.Is(err, apperr.ErrResetExpired) {
		t.Fatalf("expected expired, got %v", err)
	}
	if _, err := store.FindByResetToken(ctx, "tok"); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected expired token cleared, got %v", err)
	}
}

func TestResetTokenExpiresAtDeadline(t *testing.T) {
	store := NewMemoryStore(DefaultLockoutPolicy())
	ctx := context.Background()
	deadline := time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)

	user, err := store.InsertIdentity(ctx, newUserCandidate("edge@x.io", "+15550061"))
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := store.IssueResetToken(ctx, user.ID, "edge", deadline); err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := store.RedeemResetToken(ctx, "edge", "h", deadline); !errors.Is(err, apperr.ErrResetExpired) {
		t.Fatalf("expected token to be expired at its deadline, got %v", err)
	}

	if err := store.IssueResetToken(ctx, user.ID, "early", deadline); err != nil {
		t.Fatalf("reissue: %v", err)
	}
	if _, err := store.RedeemResetToken(ctx, "early", "h", deadline.Add(-time.Nanosecond)); err != nil {
		t.Fatalf("expected redemption just before the deadline, got %v", err)
	}
}

func TestRehashPasswordComparesStoredHash(t *testing.T) {
	store := NewMemoryStore(DefaultLockoutPolicy())
	ctx := context.Background()

	user, err := store.InsertIdentity(ctx, newUserCandidate("rh@x.io", "+15550065"))
	if err != nil {
		t.Fatalf("insert: %v", err)
	}

	swapped, err := store.RehashPassword(ctx, user.ID, "hash", "upgraded")
	if err != nil || !swapped {
		t.Fatalf("expected rehash to apply, swapped=%v err=%v", swapped, err)
	}

	if _, err := store.SetPassword(ctx, user.ID, "after-reset"); err != nil {
		t.Fatalf("set password: %v", err)
	}
	swapped, err = store.RehashPassword(ctx, user.ID, "upgraded", "stale-upgrade")
	if err != nil || swapped {
		t.Fatalf("expected stale rehash to be a no-op, swapped=%v err=%v", swapped, err)
	}

	got, err := store.FindByID(ctx, user.ID)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if got.PasswordHash != "after-reset" {
		t.Fatalf("expected reset hash to survive, got %q", got.PasswordHash)
	}
	if got.TokenVersion != user.TokenVersion+1 {
		t.Fatalf("rehash must not touch token_version, got %d", got.TokenVersion)
	}
}

func TestInsertPendingApproval(t *testing.T) {
	store := NewMemoryStore(DefaultLockoutPolicy())
	ctx := context.Background()

	user, err := store.InsertIdentity(ctx, newUserCandidate("p@x.io", "+15550066"))
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	approval, err := store.InsertPendingApproval(ctx, user.ID, "listing_review")
	if err != nil {
		t.Fatalf("insert approval: %v", err)
	}
	if approval.IdentityID != user.ID || approval.Status != ApprovalPending || approval.ApprovalType != "listing_review" {
		t.Fatalf("unexpected approval %+v", approval)
	}
	if approval.ReviewerID != nil || approval.DecidedAt != nil {
		t.Fatalf("new approval must be undecided, got %+v", approval)
	}

	pending, err := store.ListApprovals(ctx, ApprovalPending)
	if err != nil || len(pending) != 1 || pending[0].ID != approval.ID {
		t.Fatalf("expected the approval to be listed, got %v (%v)", pending, err)
	}
	if _, err := store.InsertPendingApproval(ctx, 9999, ApprovalTypeAgentOnboarding); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected not found for unknown identity, got %v", err)
	}
}

func TestSoftDeleteFreesUniqueKeys(t *testing.T) {
	store := NewMemoryStore(DefaultLockoutPolicy())
	ctx := context.Background()

	user, err := store.InsertIdentity(ctx, newUserCandidate("d@x.io", "+15550070"))
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := store.SoftDelete(ctx, user.ID, time.Now()); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := store.FindByEmail(ctx, "d@x.io"); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected deleted identity hidden, got %v", err)
	}
	if _, err := store.InsertIdentity(ctx, newUserCandidate("d@x.io", "+15550070")); err != nil {
		t.Fatalf("expected re-registration after delete, got %v", err)
	}
	deleted, err := store.FindByID(ctx, user.ID)
	if err != nil {
		t.Fatalf("find deleted: %v", err)
	}
	if deleted.Status != StatusDeleted || deleted.TokenVersion != user.TokenVersion+1 {
		t.Fatalf("unexpected deleted state %+v", deleted)
	}
}

func TestUpdateProfileAgentFields(t *testing.T) {
	store := NewMemoryStore(DefaultLockoutPolicy())
	ctx := context.Background()

	user, _ := store.InsertIdentity(ctx, newUserCandidate("u@x.io", "+15550080"))
	agent, _ := store.InsertIdentity(ctx, newAgentCandidate("ag1@x.io", "+15550081", "LIC-81"))
	if _, err := store.InsertIdentity(ctx, newAgentCandidate("ag2@x.io", "+15550082", "LIC-82")); err != nil {
		t.Fatalf("insert: %v", err)
	}

	if _, err := store.UpdateProfile(ctx, user.ID, ProfileUpdate{Agent: &AgentProfile{LicenseNumber: "X"}}); !errors.Is(err, apperr.ErrForbidden) {
		t.Fatalf("expected forbidden for non-agent, got %v", err)
	}
	if _, err := store.UpdateProfile(ctx, agent.ID, ProfileUpdate{Agent: &AgentProfile{LicenseNumber: "LIC-82"}}); !errors.Is(err, apperr.ErrDuplicateLicense) {
		t.Fatalf("expected duplicate license, got %v", err)
	}
	name := "Renamed"
	got, err := store.UpdateProfile(ctx, agent.ID, ProfileUpdate{Name: &name})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if got.Name != name || got.Agent == nil || got.Agent.LicenseNumber != "LIC-81" {
		t.Fatalf("unexpected profile %+v", got)
	}
}

func TestDeriveStatus(t *testing.T) {
	at := time.Now()
	verified := Identity{Role: RoleUser, EmailVerifiedAt: &at, PhoneVerifiedAt: &at}
	if got := DeriveStatus(verified, false); got != StatusActive {
		t.Fatalf("expected active, got %s", got)
	}
	halfway := Identity{Role: RoleUser, EmailVerifiedAt: &at}
	if got := DeriveStatus(halfway, false); got != StatusPendingVerification {
		t.Fatalf("expected pending_verification, got %s", got)
	}
	suspended := verified
	suspended.Status = StatusSuspended
	if got := DeriveStatus(suspended, true); got != StatusSuspended {
		t.Fatalf("expected suspended preserved, got %s", got)
	}
}
