package identity

import (
	"context"
	"time"

	"github.com/homenest/homenest/internal/apperr"
)

var (
	errInvalidDecision = apperr.Validation("decision must be approved or rejected", map[string]string{"decision": "must be approved or rejected"})
	errAlreadyDecided  = apperr.New(apperr.KindValidation, "approval_decided", "approval has already been decided")
)

// Store persists identities, pending approvals and reset tokens. It is the
// single point of truth for uniqueness, single-use verification secrets,
// lockout, reset-token lifetime and token_version monotonicity; every
// mutating method is atomic.
//
// Errors are drawn from package apperr: ErrNotFound, ErrDuplicateEmail,
// ErrDuplicatePhone, ErrDuplicateLicense, ErrTokenInvalid, ErrAlreadyVerified,
// ErrResetExpired. Anything else is an infrastructure failure.
type Store interface {
	// InsertIdentity checks all uniqueness predicates and inserts; agents get a
	// pending approval in the same transaction.
	InsertIdentity(ctx context.Context, candidate NewIdentity) (Identity, error)

	FindByID(ctx context.Context, id int64) (Identity, error)
	FindByEmail(ctx context.Context, email string) (Identity, error)
	FindByPhone(ctx context.Context, phone string) (Identity, error)
	// FindByEmailToken only matches identities whose email is still unverified.
	FindByEmailToken(ctx context.Context, token string) (Identity, error)
	// FindByPhoneAndCode only matches identities whose phone is still unverified.
	FindByPhoneAndCode(ctx context.Context, phone, code string) (Identity, error)
	FindByResetToken(ctx context.Context, token string) (Identity, error)

	// MarkEmailVerified compares and clears the token, sets email_verified_at
	// and re-derives status. A spent or mismatched token yields ErrTokenInvalid,
	// including on an already verified channel: the digest is cleared on use,
	// so a replayed secret cannot be told apart from a wrong one.
	// ErrAlreadyVerified is reserved for SetEmailToken and SetPhoneCode.
	MarkEmailVerified(ctx context.Context, id int64, token string, at time.Time) (Identity, error)
	// MarkPhoneVerified is MarkEmailVerified for the phone channel; phone must
	// still be the identity's number.
	MarkPhoneVerified(ctx context.Context, id int64, phone, code string, at time.Time) (Identity, error)
	// SetEmailToken replaces any outstanding email token; ErrAlreadyVerified when verified.
	SetEmailToken(ctx context.Context, id int64, token string) error
	SetPhoneCode(ctx context.Context, id int64, code string) error

	// BumpFailedLogins increments the counter; reaching the threshold sets
	// locked_until and resets the counter in the same transaction.
	BumpFailedLogins(ctx context.Context, id int64, at time.Time) (LoginFailure, error)
	// ResetFailedLogins clears lockout state and records last_login_at.
	ResetFailedLogins(ctx context.Context, id int64, at time.Time) error

	// SetPassword stores hash, bumps token_version, clears reset and lockout state.
	SetPassword(ctx context.Context, id int64, hash string) (int, error)
	// RehashPassword swaps oldHash for an upgraded hash of the same password
	// without touching sessions. It reports false, and changes nothing, when
	// the stored hash is no longer oldHash (a reset or change won the race).
	RehashPassword(ctx context.Context, id int64, oldHash, newHash string) (bool, error)
	// IssueResetToken atomically replaces any prior outstanding reset token.
	IssueResetToken(ctx context.Context, id int64, token string, expires time.Time) error
	// RedeemResetToken requires expires > at, then applies SetPassword semantics.
	RedeemResetToken(ctx context.Context, token, hash string, at time.Time) (Identity, error)
	BumpTokenVersion(ctx context.Context, id int64) (int, error)

	UpdateProfile(ctx context.Context, id int64, update ProfileUpdate) (Identity, error)
	SetStatus(ctx context.Context, id int64, status Status) (Identity, error)
	// SoftDelete marks the identity deleted and frees its unique keys.
	SoftDelete(ctx context.Context, id int64, at time.Time) error

	InsertPendingApproval(ctx context.Context, identityID int64, approvalType string) (PendingApproval, error)
	// DecideApproval resolves a pending approval and re-derives the identity status.
	DecideApproval(ctx context.Context, approvalID int64, decision ApprovalStatus, reviewerID int64, at time.Time) (PendingApproval, Identity, error)
	ListApprovals(ctx context.Context, status ApprovalStatus) ([]PendingApproval, error)
	// Approved reports whether the identity holds an approved PendingApproval.
	Approved(ctx context.Context, identityID int64) (bool, error)
}
