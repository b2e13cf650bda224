package admin

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/homenest/homenest/internal/apperr"
	"github.com/homenest/homenest/internal/audit"
	"github.com/homenest/homenest/internal/identity"
)

// SessionRevoker bumps an identity's token version.
type SessionRevoker interface {
	ForceLogoutAll(ctx context.Context, id int64) (int, error)
}

// Service resolves agent approvals and applies account controls on behalf
// of an administrator.
type Service struct {
	store    identity.Store
	sessions SessionRevoker
	audit    *audit.Recorder
	now      func() time.Time
}

func NewService(store identity.Store, sessions SessionRevoker, recorder *audit.Recorder) *Service {
	return &Service{store: store, sessions: sessions, audit: recorder, now: time.Now}
}

// WithClock overrides the time source.
func (s *Service) WithClock(now func() time.Time) *Service {
	if now != nil {
		s.now = now
	}
	return s
}

// ListApprovals returns approvals in status; an empty status lists all.
func (s *Service) ListApprovals(ctx context.Context, status string) ([]identity.PendingApproval, error) {
	st := identity.ApprovalStatus(strings.ToLower(strings.TrimSpace(status)))
	switch st {
	case "", identity.ApprovalPending, identity.ApprovalApproved, identity.ApprovalRejected:
	default:
		return nil, apperr.Validation("unknown approval status", map[string]string{"status": "must be pending, approved or rejected"})
	}
	approvals, err := s.store.ListApprovals(ctx, st)
	if err != nil {
		return nil, apperr.Internal(err, "list approvals")
	}
	return approvals, nil
}

// Decide approves or rejects a pending approval. Approval re-derives the
// agent's status; rejection suspends the agent.
func (s *Service) Decide(ctx context.Context, reviewer identity.Identity, approvalID int64, decision string) (identity.PendingApproval, identity.Identity, error) {
	d := identity.ApprovalStatus(strings.ToLower(strings.TrimSpace(decision)))
	approval, ident, err := s.store.DecideApproval(ctx, approvalID, d, reviewer.ID, s.now())
	if err != nil {
		return identity.PendingApproval{}, identity.Identity{}, storeError(err, "decide approval")
	}

	event := "agent_approve"
	if d == identity.ApprovalRejected {
		event = "agent_reject"
	}
	s.audit.Record(ctx, event, ident.ID, map[string]any{
		"approval_id": approval.ID,
		"reviewer_id": reviewer.ID,
		"status":      string(ident.Status),
	})
	return approval, ident, nil
}

// ForceLogout revokes every outstanding token of id.
func (s *Service) ForceLogout(ctx context.Context, actor identity.Identity, id int64) (int, error) {
	version, err := s.sessions.ForceLogoutAll(ctx, id)
	if err != nil {
		return 0, err
	}
	s.audit.Record(ctx, "forced_logout", id, map[string]any{"actor_id": actor.ID, "token_version": version})
	return version, nil
}

// Suspend blocks the identity and revokes its sessions.
func (s *Service) Suspend(ctx context.Context, actor identity.Identity, id int64) (identity.Identity, error) {
	if actor.ID == id {
		return identity.Identity{}, apperr.Validation("administrators cannot suspend themselves", nil)
	}
	ident, err := s.store.SetStatus(ctx, id, identity.StatusSuspended)
	if err != nil {
		return identity.Identity{}, storeError(err, "suspend identity")
	}
	version, err := s.store.BumpTokenVersion(ctx, id)
	if err != nil {
		return identity.Identity{}, storeError(err, "bump token version")
	}
	ident.TokenVersion = version
	s.audit.Record(ctx, "user_suspend", id, map[string]any{"actor_id": actor.ID})
	return ident, nil
}

// Delete soft-deletes the identity, freeing its email, phone and license.
func (s *Service) Delete(ctx context.Context, actor identity.Identity, id int64) error {
	if actor.ID == id {
		return apperr.Validation("administrators cannot delete themselves", nil)
	}
	if err := s.store.SoftDelete(ctx, id, s.now()); err != nil {
		return storeError(err, "delete identity")
	}
	s.audit.Record(ctx, "user_delete", id, map[string]any{"actor_id": actor.ID})
	return nil
}

func storeError(err error, msg string) error {
	var e *apperr.Error
	if errors.As(err, &e) {
		return err
	}
	return apperr.Internal(err, msg)
}
