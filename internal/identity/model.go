package identity

import "time"

// Role governs permissions and activation prerequisites.
type Role string

const (
	RoleUser  Role = "user"
	RoleAgent Role = "agent"
	RoleAdmin Role = "admin"
)

// Status is the lifecycle position of an identity.
type Status string

const (
	StatusPendingVerification Status = "pending_verification"
	StatusPendingApproval     Status = "pending_approval"
	StatusActive              Status = "active"
	StatusSuspended           Status = "suspended"
	StatusDeleted             Status = "deleted"
	StatusLocked              Status = "locked"
)

// ApprovalStatus is the state of a PendingApproval.
type ApprovalStatus string

const (
	ApprovalPending  ApprovalStatus = "pending"
	ApprovalApproved ApprovalStatus = "approved"
	ApprovalRejected ApprovalStatus = "rejected"
)

// ApprovalTypeAgentOnboarding is recorded for new agent registrations.
const ApprovalTypeAgentOnboarding = "agent_onboarding"

// AgentProfile holds the agent-only fields.
type AgentProfile struct {
	LicenseNumber   string   `json:"license_number"`
	AgencyName      string   `json:"agency_name"`
	ExperienceYears int      `json:"experience_years"`
	CommissionRate  *float64 `json:"commission_rate,omitempty"`
	Specialization  string   `json:"specialization,omitempty"`
	Bio             string   `json:"bio,omitempty"`
}

// Identity is the principal record for users, agents and admins.
// Verification and reset secrets are held as digests; plaintext never reaches storage.
type Identity struct {
	ID           int64
	Name         string
	Email        string
	Phone        string
	PasswordHash string
	Role         Role
	Status       Status

	EmailVerifiedAt *time.Time
	PhoneVerifiedAt *time.Time
	EmailTokenHash  string
	PhoneCodeHash   string
	ResetTokenHash  string
	ResetExpiresAt  *time.Time

	FailedLoginAttempts int
	LockedUntil         *time.Time
	TokenVersion        int

	Agent *AgentProfile

	CreatedAt   time.Time
	UpdatedAt   time.Time
	LastLoginAt *time.Time
	DeletedAt   *time.Time
}

// EmailVerified reports whether the email channel has been proven.
func (i Identity) EmailVerified() bool { return i.EmailVerifiedAt != nil }

// PhoneVerified reports whether the phone channel has been proven.
func (i Identity) PhoneVerified() bool { return i.PhoneVerifiedAt != nil }

// LockedAt reports whether a lockout is in force at now.
func (i Identity) LockedAt(now time.Time) bool {
	return i.LockedUntil != nil && i.LockedUntil.After(now)
}

// Deleted reports whether the identity has been removed.
func (i Identity) Deleted() bool {
	return i.Status == StatusDeleted || i.DeletedAt != nil
}

// PendingApproval is created when an agent registers and resolved by an admin.
type PendingApproval struct {
	ID           int64          `json:"id"`
	IdentityID   int64          `json:"identity_id"`
	ApprovalType string         `json:"approval_type"`
	SubmittedAt  time.Time      `json:"submitted_at"`
	Status       ApprovalStatus `json:"status"`
	ReviewerID   *int64         `json:"reviewer_id,omitempty"`
	DecidedAt    *time.Time     `json:"decided_at,omitempty"`
}

// DeriveStatus computes the lifecycle status from role prerequisites.
// Suspended and deleted identities keep their status.
func DeriveStatus(i Identity, approved bool) Status {
	switch i.Status {
	case StatusSuspended, StatusDeleted:
		return i.Status
	}
	if i.Role == RoleAgent && !approved {
		return StatusPendingApproval
	}
	if !i.EmailVerified() || !i.PhoneVerified() {
		return StatusPendingVerification
	}
	return StatusActive
}

// NewIdentity is the candidate handed to Store.InsertIdentity. EmailToken and
// PhoneCode are plaintext; the store keeps only their digests.
type NewIdentity struct {
	Name         string
	Email        string
	Phone        string
	PasswordHash string
	Role         Role
	Status       Status
	EmailToken   string
	PhoneCode    string
	Agent        *AgentProfile
}

// LoginFailure reports the lockout state after a failed credential check.
type LoginFailure struct {
	Attempts    int
	LockedUntil *time.Time
}

// ProfileUpdate carries optional profile changes; nil fields are left untouched.
type ProfileUpdate struct {
	Name  *string
	Agent *AgentProfile
}

// LockoutPolicy configures the failed-login threshold enforced by the store.
type LockoutPolicy struct {
	Threshold int
	Duration  time.Duration
}

// DefaultLockoutPolicy locks for 30 minutes after 5 consecutive failures.
func DefaultLockoutPolicy() LockoutPolicy {
	return LockoutPolicy{Threshold: 5, Duration: 30 * time.Minute}
}

func (p LockoutPolicy) normalized() LockoutPolicy {
	d := DefaultLockoutPolicy()
	if p.Threshold <= 0 {
		p.Threshold = d.Threshold
	}
	if p.Duration <= 0 {
		p.Duration = d.Duration
	}
	return p
}
