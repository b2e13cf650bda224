package identity

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/homenest/homenest/internal/apperr"
	"github.com/homenest/homenest/internal/security"
)

type memoryStore struct {
	mu        sync.Mutex
	policy    LockoutPolicy
	now       func() time.Time
	nextID    int64
	nextAppID int64
	byID      map[int64]*Identity
	approvals map[int64]*PendingApproval
}

// NewMemoryStore builds an in-memory store for development and tests. A
// single mutex serializes every operation, which gives the same atomicity as
// the serializable transactions of the Postgres store.
func NewMemoryStore(policy LockoutPolicy) Store {
	return &memoryStore{
		policy:    policy.normalized(),
		now:       time.Now,
		byID:      make(map[int64]*Identity),
		approvals: make(map[int64]*PendingApproval),
	}
}

func (s *memoryStore) conflict(email, phone string, agent *AgentProfile, role Role, except int64) error {
	for id, existing := range s.byID {
		if id == except || existing.Deleted() {
			continue
		}
		if existing.Email == email {
			return apperr.ErrDuplicateEmail
		}
		if existing.Phone == phone {
			return apperr.ErrDuplicatePhone
		}
		if role == RoleAgent && agent != nil && existing.Role == RoleAgent && existing.Agent != nil &&
			existing.Agent.LicenseNumber == agent.LicenseNumber {
			return apperr.ErrDuplicateLicense
		}
	}
	return nil
}

func (s *memoryStore) InsertIdentity(_ context.Context, c NewIdentity) (Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.conflict(c.Email, c.Phone, c.Agent, c.Role, 0); err != nil {
		return Identity{}, err
	}

	now := s.now().UTC()
	s.nextID++
	ident := &Identity{
		ID:           s.nextID,
		Name:         c.Name,
		Email:        c.Email,
		Phone:        c.Phone,
		PasswordHash: c.PasswordHash,
		Role:         c.Role,
		Status:       c.Status,
		TokenVersion: 1,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if c.EmailToken != "" {
		ident.EmailTokenHash = security.HashToken(c.EmailToken)
	}
	if c.PhoneCode != "" {
		ident.PhoneCodeHash = security.HashToken(c.PhoneCode)
	}
	if c.Agent != nil {
		profile := *c.Agent
		ident.Agent = &profile
	}
	s.byID[ident.ID] = ident

	if c.Role == RoleAgent {
		s.insertApprovalLocked(ident.ID, ApprovalTypeAgentOnboarding, now)
	}
	return copyIdentity(ident), nil
}

func (s *memoryStore) FindByID(_ context.Context, id int64) (Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ident, ok := s.byID[id]
	if !ok {
		return Identity{}, apperr.ErrNotFound
	}
	return copyIdentity(ident), nil
}

func (s *memoryStore) findLocked(match func(*Identity) bool) (*Identity, error) {
	for _, ident := range s.byID {
		if ident.Deleted() {
			continue
		}
		if match(ident) {
			return ident, nil
		}
	}
	return nil, apperr.ErrNotFound
}

func (s *memoryStore) find(match func(*Identity) bool) (Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ident, err := s.findLocked(match)
	if err != nil {
		return Identity{}, err
	}
	return copyIdentity(ident), nil
}

func (s *memoryStore) FindByEmail(_ context.Context, email string) (Identity, error) {
	return s.find(func(i *Identity) bool { return i.Email == email })
}

func (s *memoryStore) FindByPhone(_ context.Context, phone string) (Identity, error) {
	return s.find(func(i *Identity) bool { return i.Phone == phone })
}

func (s *memoryStore) FindByEmailToken(_ context.Context, token string) (Identity, error) {
	digest := security.HashToken(token)
	return s.find(func(i *Identity) bool {
		return i.EmailVerifiedAt == nil && i.EmailTokenHash != "" && i.EmailTokenHash == digest
	})
}

func (s *memoryStore) FindByPhoneAndCode(_ context.Context, phone, code string) (Identity, error) {
	digest := security.HashToken(code)
	return s.find(func(i *Identity) bool {
		return i.Phone == phone && i.PhoneVerifiedAt == nil && i.PhoneCodeHash != "" && i.PhoneCodeHash == digest
	})
}

func (s *memoryStore) FindByResetToken(_ context.Context, token string) (Identity, error) {
	digest := security.HashToken(token)
	return s.find(func(i *Identity) bool { return i.ResetTokenHash != "" && i.ResetTokenHash == digest })
}

func (s *memoryStore) live(id int64) (*Identity, error) {
	ident, ok := s.byID[id]
	if !ok || ident.Deleted() {
		return nil, apperr.ErrNotFound
	}
	return ident, nil
}

func (s *memoryStore) MarkEmailVerified(_ context.Context, id int64, token string, at time.Time) (Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ident, err := s.live(id)
	if err != nil {
		return Identity{}, err
	}
	if ident.EmailVerifiedAt != nil || ident.EmailTokenHash == "" || ident.EmailTokenHash != security.HashToken(token) {
		return Identity{}, apperr.ErrTokenInvalid
	}
	t := at.UTC()
	ident.EmailVerifiedAt = &t
	ident.EmailTokenHash = ""
	s.rederiveLocked(ident, t)
	return copyIdentity(ident), nil
}

func (s *memoryStore) MarkPhoneVerified(_ context.Context, id int64, phone, code string, at time.Time) (Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ident, err := s.live(id)
	if err != nil {
		return Identity{}, err
	}
	if ident.Phone != phone || ident.PhoneVerifiedAt != nil || ident.PhoneCodeHash == "" || ident.PhoneCodeHash != security.HashToken(code) {
		return Identity{}, apperr.ErrTokenInvalid
	}
	t := at.UTC()
	ident.PhoneVerifiedAt = &t
	ident.PhoneCodeHash = ""
	s.rederiveLocked(ident, t)
	return copyIdentity(ident), nil
}

func (s *memoryStore) SetEmailToken(_ context.Context, id int64, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ident, err := s.live(id)
	if err != nil {
		return err
	}
	if ident.EmailVerifiedAt != nil {
		return apperr.ErrAlreadyVerified
	}
	ident.EmailTokenHash = security.HashToken(token)
	ident.UpdatedAt = s.now().UTC()
	return nil
}

func (s *memoryStore) SetPhoneCode(_ context.Context, id int64, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ident, err := s.live(id)
	if err != nil {
		return err
	}
	if ident.PhoneVerifiedAt != nil {
		return apperr.ErrAlreadyVerified
	}
	ident.PhoneCodeHash = security.HashToken(code)
	ident.UpdatedAt = s.now().UTC()
	return nil
}

func (s *memoryStore) BumpFailedLogins(_ context.Context, id int64, at time.Time) (LoginFailure, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ident, err := s.live(id)
	if err != nil {
		return LoginFailure{}, err
	}
	attempts := ident.FailedLoginAttempts + 1
	result := LoginFailure{Attempts: attempts}
	if attempts >= s.policy.Threshold {
		until := at.UTC().Add(s.policy.Duration)
		ident.LockedUntil = &until
		ident.FailedLoginAttempts = 0
		result.LockedUntil = &until
	} else {
		ident.FailedLoginAttempts = attempts
	}
	ident.UpdatedAt = at.UTC()
	return result, nil
}

func (s *memoryStore) ResetFailedLogins(_ context.Context, id int64, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ident, err := s.live(id)
	if err != nil {
		return err
	}
	t := at.UTC()
	ident.FailedLoginAttempts = 0
	ident.LockedUntil = nil
	ident.LastLoginAt = &t
	ident.UpdatedAt = t
	return nil
}

func (s *memoryStore) setPasswordLocked(ident *Identity, hash string) int {
	ident.PasswordHash = hash
	ident.TokenVersion++
	ident.ResetTokenHash = ""
	ident.ResetExpiresAt = nil
	ident.FailedLoginAttempts = 0
	ident.LockedUntil = nil
	ident.UpdatedAt = s.now().UTC()
	return ident.TokenVersion
}

func (s *memoryStore) SetPassword(_ context.Context, id int64, hash string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ident, err := s.live(id)
	if err != nil {
		return 0, err
	}
	return s.setPasswordLocked(ident, hash), nil
}

func (s *memoryStore) RehashPassword(_ context.Context, id int64, oldHash, newHash string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ident, ok := s.byID[id]
	if !ok || ident.Deleted() || ident.PasswordHash != oldHash {
		return false, nil
	}
	ident.PasswordHash = newHash
	ident.UpdatedAt = s.now().UTC()
	return true, nil
}

func (s *memoryStore) IssueResetToken(_ context.Context, id int64, token string, expires time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ident, err := s.live(id)
	if err != nil {
		return err
	}
	exp := expires.UTC()
	ident.ResetTokenHash = security.HashToken(token)
	ident.ResetExpiresAt = &exp
	ident.UpdatedAt = s.now().UTC()
	return nil
}

func (s *memoryStore) RedeemResetToken(_ context.Context, token, hash string, at time.Time) (Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	digest := security.HashToken(token)
	ident, err := s.findLocked(func(i *Identity) bool { return i.ResetTokenHash != "" && i.ResetTokenHash == digest })
	if err != nil {
		return Identity{}, apperr.ErrTokenInvalid
	}
	if ident.ResetExpiresAt == nil || !ident.ResetExpiresAt.After(at) {
		ident.ResetTokenHash = ""
		ident.ResetExpiresAt = nil
		return Identity{}, apperr.ErrResetExpired
	}
	s.setPasswordLocked(ident, hash)
	return copyIdentity(ident), nil
}

func (s *memoryStore) BumpTokenVersion(_ context.Context, id int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ident, ok := s.byID[id]
	if !ok {
		return 0, apperr.ErrNotFound
	}
	ident.TokenVersion++
	ident.UpdatedAt = s.now().UTC()
	return ident.TokenVersion, nil
}

func (s *memoryStore) UpdateProfile(_ context.Context, id int64, update ProfileUpdate) (Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ident, err := s.live(id)
	if err != nil {
		return Identity{}, err
	}
	if update.Agent != nil {
		if ident.Role != RoleAgent {
			return Identity{}, apperr.ErrForbidden
		}
		if err := s.conflict("", "", update.Agent, RoleAgent, id); err != nil {
			return Identity{}, err
		}
		profile := *update.Agent
		ident.Agent = &profile
	}
	if update.Name != nil {
		ident.Name = *update.Name
	}
	ident.UpdatedAt = s.now().UTC()
	return copyIdentity(ident), nil
}

func (s *memoryStore) SetStatus(_ context.Context, id int64, status Status) (Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ident, err := s.live(id)
	if err != nil {
		return Identity{}, err
	}
	ident.Status = status
	ident.UpdatedAt = s.now().UTC()
	return copyIdentity(ident), nil
}

func (s *memoryStore) SoftDelete(_ context.Context, id int64, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ident, err := s.live(id)
	if err != nil {
		return err
	}
	t := at.UTC()
	ident.Status = StatusDeleted
	ident.DeletedAt = &t
	ident.TokenVersion++
	ident.EmailTokenHash = ""
	ident.PhoneCodeHash = ""
	ident.ResetTokenHash = ""
	ident.ResetExpiresAt = nil
	ident.UpdatedAt = t
	return nil
}

func (s *memoryStore) insertApprovalLocked(identityID int64, approvalType string, at time.Time) PendingApproval {
	s.nextAppID++
	a := &PendingApproval{
		ID:           s.nextAppID,
		IdentityID:   identityID,
		ApprovalType: approvalType,
		SubmittedAt:  at,
		Status:       ApprovalPending,
	}
	s.approvals[a.ID] = a
	return *a
}

func (s *memoryStore) InsertPendingApproval(_ context.Context, identityID int64, approvalType string) (PendingApproval, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.live(identityID); err != nil {
		return PendingApproval{}, err
	}
	return s.insertApprovalLocked(identityID, approvalType, s.now().UTC()), nil
}

func (s *memoryStore) DecideApproval(_ context.Context, approvalID int64, decision ApprovalStatus, reviewerID int64, at time.Time) (PendingApproval, Identity, error) {
	if decision != ApprovalApproved && decision != ApprovalRejected {
		return PendingApproval{}, Identity{}, errInvalidDecision
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.approvals[approvalID]
	if !ok {
		return PendingApproval{}, Identity{}, apperr.ErrNotFound
	}
	if a.Status != ApprovalPending {
		return PendingApproval{}, Identity{}, errAlreadyDecided
	}
	ident, err := s.live(a.IdentityID)
	if err != nil {
		return PendingApproval{}, Identity{}, err
	}
	t := at.UTC()
	reviewer := reviewerID
	a.Status = decision
	a.ReviewerID = &reviewer
	a.DecidedAt = &t

	if decision == ApprovalApproved {
		ident.Status = DeriveStatus(*ident, true)
	} else {
		ident.Status = StatusSuspended
	}
	ident.UpdatedAt = t
	return *a, copyIdentity(ident), nil
}

func (s *memoryStore) ListApprovals(_ context.Context, status ApprovalStatus) ([]PendingApproval, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]PendingApproval, 0)
	for _, a := range s.approvals {
		if status == "" || a.Status == status {
			out = append(out, *a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *memoryStore) Approved(_ context.Context, identityID int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.approvedLocked(identityID), nil
}

func (s *memoryStore) approvedLocked(identityID int64) bool {
	for _, a := range s.approvals {
		if a.IdentityID == identityID && a.Status == ApprovalApproved {
			return true
		}
	}
	return false
}

func (s *memoryStore) rederiveLocked(ident *Identity, at time.Time) {
	ident.Status = DeriveStatus(*ident, s.approvedLocked(ident.ID))
	ident.UpdatedAt = at
}

func copyIdentity(src *Identity) Identity {
	out := *src
	if src.Agent != nil {
		profile := *src.Agent
		if src.Agent.CommissionRate != nil {
			rate := *src.Agent.CommissionRate
			profile.CommissionRate = &rate
		}
		out.Agent = &profile
	}
	return out
}
