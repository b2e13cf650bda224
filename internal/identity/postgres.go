package identity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/homenest/homenest/internal/apperr"
	"github.com/homenest/homenest/internal/security"
)

const (
	pgUniqueViolation      = "23505"
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"

	maxTxAttempts = 3
)

// Unique index names from the embedded schema.
const (
	constraintEmail   = "identities_email_live_idx"
	constraintPhone   = "identities_phone_live_idx"
	constraintLicense = "identities_license_live_idx"
)

const identityColumns = `id, name, email, phone, password_hash, role, status,
	email_verified_at, phone_verified_at, email_token_hash, phone_code_hash,
	reset_token_hash, reset_expires_at, failed_login_attempts, locked_until,
	token_version, license_number, agency_name, experience_years, commission_rate,
	specialization, bio, created_at, updated_at, last_login_at, deleted_at`

const approvalColumns = `id, identity_id, approval_type, submitted_at, status, reviewer_id, decided_at`

// PostgresStore implements Store using PostgreSQL. Mutations run in
// serializable transactions and are retried on serialization failures.
type PostgresStore struct {
	db     *pgxpool.Pool
	policy LockoutPolicy
}

// NewPostgresStore builds a Postgres-backed identity store.
func NewPostgresStore(db *pgxpool.Pool, policy LockoutPolicy) *PostgresStore {
	return &PostgresStore{db: db, policy: policy.normalized()}
}

func (s *PostgresStore) inTx(ctx context.Context, fn func(pgx.Tx) error) error {
	var err error
	for attempt := 0; attempt < maxTxAttempts; attempt++ {
		err = s.runTx(ctx, fn)
		if !retryable(err) {
			return err
		}
	}
	return err
}

func (s *PostgresStore) runTx(ctx context.Context, fn func(pgx.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func retryable(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == pgSerializationFailure || pgErr.Code == pgDeadlockDetected
}

// mapError turns driver errors into store errors.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := apperr.As(err); ok {
		return err
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return apperr.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		switch pgErr.ConstraintName {
		case constraintEmail:
			return apperr.ErrDuplicateEmail
		case constraintPhone:
			return apperr.ErrDuplicatePhone
		case constraintLicense:
			return apperr.ErrDuplicateLicense
		}
	}
	return fmt.Errorf("identity store: %w", err)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanIdentity(row rowScanner) (Identity, error) {
	var (
		ident                                Identity
		role, status                         string
		emailToken, phoneCode, resetToken    *string
		license, agency, specialization, bio *string
		experience                           *int
		commission                           *float64
		emailAt, phoneAt, resetAt, lockedAt  *time.Time
		lastLoginAt, deletedAt               *time.Time
	)
	err := row.Scan(
		&ident.ID, &ident.Name, &ident.Email, &ident.Phone, &ident.PasswordHash, &role, &status,
		&emailAt, &phoneAt, &emailToken, &phoneCode,
		&resetToken, &resetAt, &ident.FailedLoginAttempts, &lockedAt,
		&ident.TokenVersion, &license, &agency, &experience, &commission,
		&specialization, &bio, &ident.CreatedAt, &ident.UpdatedAt, &lastLoginAt, &deletedAt,
	)
	if err != nil {
		return Identity{}, err
	}
	ident.Role = Role(role)
	ident.Status = Status(status)
	ident.EmailVerifiedAt = utcPtr(emailAt)
	ident.PhoneVerifiedAt = utcPtr(phoneAt)
	ident.EmailTokenHash = deref(emailToken)
	ident.PhoneCodeHash = deref(phoneCode)
	ident.ResetTokenHash = deref(resetToken)
	ident.ResetExpiresAt = utcPtr(resetAt)
	ident.LockedUntil = utcPtr(lockedAt)
	ident.LastLoginAt = utcPtr(lastLoginAt)
	ident.DeletedAt = utcPtr(deletedAt)
	ident.CreatedAt = ident.CreatedAt.UTC()
	ident.UpdatedAt = ident.UpdatedAt.UTC()
	if license != nil {
		ident.Agent = &AgentProfile{
			LicenseNumber:  *license,
			AgencyName:     deref(agency),
			CommissionRate: commission,
			Specialization: deref(specialization),
			Bio:            deref(bio),
		}
		if experience != nil {
			ident.Agent.ExperienceYears = *experience
		}
	}
	return ident, nil
}

func scanApproval(row rowScanner) (PendingApproval, error) {
	var (
		a      PendingApproval
		status string
	)
	if err := row.Scan(&a.ID, &a.IdentityID, &a.ApprovalType, &a.SubmittedAt, &status, &a.ReviewerID, &a.DecidedAt); err != nil {
		return PendingApproval{}, err
	}
	a.Status = ApprovalStatus(status)
	a.SubmittedAt = a.SubmittedAt.UTC()
	a.DecidedAt = utcPtr(a.DecidedAt)
	return a, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}

// InsertIdentity creates the identity and, for agents, its onboarding approval.
func (s *PostgresStore) InsertIdentity(ctx context.Context, c NewIdentity) (Identity, error) {
	var (
		license, agency, specialization, bio *string
		experience                           *int
		commission                           *float64
	)
	if c.Agent != nil {
		license = &c.Agent.LicenseNumber
		agency = &c.Agent.AgencyName
		years := c.Agent.ExperienceYears
		experience = &years
		commission = c.Agent.CommissionRate
		specialization = nullable(c.Agent.Specialization)
		bio = nullable(c.Agent.Bio)
	}
	var emailDigest, phoneDigest *string
	if c.EmailToken != "" {
		emailDigest = nullable(security.HashToken(c.EmailToken))
	}
	if c.PhoneCode != "" {
		phoneDigest = nullable(security.HashToken(c.PhoneCode))
	}

	var out Identity
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		if err := checkUnique(ctx, tx, c.Email, c.Phone, license, c.Role); err != nil {
			return err
		}
		row := tx.QueryRow(ctx, `INSERT INTO identities
			(name, email, phone, password_hash, role, status, email_token_hash, phone_code_hash,
			 license_number, agency_name, experience_years, commission_rate, specialization, bio)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
			RETURNING `+identityColumns,
			c.Name, c.Email, c.Phone, c.PasswordHash, string(c.Role), string(c.Status), emailDigest, phoneDigest,
			license, agency, experience, commission, specialization, bio)
		ident, err := scanIdentity(row)
		if err != nil {
			return err
		}
		if c.Role == RoleAgent {
			if _, err := tx.Exec(ctx, `INSERT INTO pending_approvals (identity_id, approval_type, status)
				VALUES ($1, $2, $3)`, ident.ID, ApprovalTypeAgentOnboarding, string(ApprovalPending)); err != nil {
				return err
			}
		}
		out = ident
		return nil
	})
	return out, mapError(err)
}

func checkUnique(ctx context.Context, tx pgx.Tx, email, phone string, license *string, role Role) error {
	var taken bool
	if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM identities WHERE email = $1 AND deleted_at IS NULL)`, email).Scan(&taken); err != nil {
		return err
	}
	if taken {
		return apperr.ErrDuplicateEmail
	}
	if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM identities WHERE phone = $1 AND deleted_at IS NULL)`, phone).Scan(&taken); err != nil {
		return err
	}
	if taken {
		return apperr.ErrDuplicatePhone
	}
	if role == RoleAgent && license != nil {
		if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM identities
			WHERE role = 'agent' AND license_number = $1 AND deleted_at IS NULL)`, *license).Scan(&taken); err != nil {
			return err
		}
		if taken {
			return apperr.ErrDuplicateLicense
		}
	}
	return nil
}

func (s *PostgresStore) findOne(ctx context.Context, where string, args ...any) (Identity, error) {
	row := s.db.QueryRow(ctx, `SELECT `+identityColumns+` FROM identities WHERE `+where, args...)
	ident, err := scanIdentity(row)
	return ident, mapError(err)
}

func (s *PostgresStore) FindByID(ctx context.Context, id int64) (Identity, error) {
	return s.findOne(ctx, `id = $1`, id)
}

func (s *PostgresStore) FindByEmail(ctx context.Context, email string) (Identity, error) {
	return s.findOne(ctx, `email = $1 AND deleted_at IS NULL`, email)
}

func (s *PostgresStore) FindByPhone(ctx context.Context, phone string) (Identity, error) {
	return s.findOne(ctx, `phone = $1 AND deleted_at IS NULL`, phone)
}

func (s *PostgresStore) FindByEmailToken(ctx context.Context, token string) (Identity, error) {
	return s.findOne(ctx, `email_token_hash = $1 AND email_verified_at IS NULL AND deleted_at IS NULL`,
		security.HashToken(token))
}

func (s *PostgresStore) FindByPhoneAndCode(ctx context.Context, phone, code string) (Identity, error) {
	return s.findOne(ctx, `phone = $1 AND phone_code_hash = $2 AND phone_verified_at IS NULL AND deleted_at IS NULL`,
		phone, security.HashToken(code))
}

func (s *PostgresStore) FindByResetToken(ctx context.Context, token string) (Identity, error) {
	return s.findOne(ctx, `reset_token_hash = $1 AND deleted_at IS NULL`, security.HashToken(token))
}

func lockLive(ctx context.Context, tx pgx.Tx, id int64) (Identity, error) {
	row := tx.QueryRow(ctx, `SELECT `+identityColumns+` FROM identities
		WHERE id = $1 AND deleted_at IS NULL FOR UPDATE`, id)
	return scanIdentity(row)
}

func approvedTx(ctx context.Context, q interface {
	QueryRow(context.Context, string, ...any) pgx.Row
}, identityID int64) (bool, error) {
	var ok bool
	err := q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM pending_approvals
		WHERE identity_id = $1 AND status = $2)`, identityID, string(ApprovalApproved)).Scan(&ok)
	return ok, err
}

func (s *PostgresStore) markVerified(ctx context.Context, id int64, at time.Time, check func(Identity) bool, set string) (Identity, error) {
	var out Identity
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		ident, err := lockLive(ctx, tx, id)
		if err != nil {
			return err
		}
		if !check(ident) {
			return apperr.ErrTokenInvalid
		}
		approved, err := approvedTx(ctx, tx, id)
		if err != nil {
			return err
		}
		t := at.UTC()
		if set == "email" {
			ident.EmailVerifiedAt = &t
		} else {
			ident.PhoneVerifiedAt = &t
		}
		status := DeriveStatus(ident, approved)
		row := tx.QueryRow(ctx, `UPDATE identities SET `+set+`_verified_at = $2, `+verifySecretColumn(set)+` = NULL,
			status = $3, updated_at = $2 WHERE id = $1 RETURNING `+identityColumns, id, t, string(status))
		out, err = scanIdentity(row)
		return err
	})
	return out, mapError(err)
}

func verifySecretColumn(channel string) string {
	if channel == "email" {
		return "email_token_hash"
	}
	return "phone_code_hash"
}

func (s *PostgresStore) MarkEmailVerified(ctx context.Context, id int64, token string, at time.Time) (Identity, error) {
	digest := security.HashToken(token)
	return s.markVerified(ctx, id, at, func(i Identity) bool {
		return i.EmailVerifiedAt == nil && i.EmailTokenHash != "" && i.EmailTokenHash == digest
	}, "email")
}

func (s *PostgresStore) MarkPhoneVerified(ctx context.Context, id int64, phone, code string, at time.Time) (Identity, error) {
	digest := security.HashToken(code)
	return s.markVerified(ctx, id, at, func(i Identity) bool {
		return i.Phone == phone && i.PhoneVerifiedAt == nil && i.PhoneCodeHash != "" && i.PhoneCodeHash == digest
	}, "phone")
}

func (s *PostgresStore) setSecret(ctx context.Context, id int64, column, verifiedColumn, value string) error {
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		var verified bool
		if err := tx.QueryRow(ctx, `SELECT `+verifiedColumn+` IS NOT NULL FROM identities
			WHERE id = $1 AND deleted_at IS NULL FOR UPDATE`, id).Scan(&verified); err != nil {
			return err
		}
		if verified {
			return apperr.ErrAlreadyVerified
		}
		_, err := tx.Exec(ctx, `UPDATE identities SET `+column+` = $2, updated_at = now() WHERE id = $1`,
			id, security.HashToken(value))
		return err
	})
	return mapError(err)
}

func (s *PostgresStore) SetEmailToken(ctx context.Context, id int64, token string) error {
	return s.setSecret(ctx, id, "email_token_hash", "email_verified_at", token)
}

func (s *PostgresStore) SetPhoneCode(ctx context.Context, id int64, code string) error {
	return s.setSecret(ctx, id, "phone_code_hash", "phone_verified_at", code)
}

func (s *PostgresStore) BumpFailedLogins(ctx context.Context, id int64, at time.Time) (LoginFailure, error) {
	var out LoginFailure
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		var attempts int
		if err := tx.QueryRow(ctx, `SELECT failed_login_attempts FROM identities
			WHERE id = $1 AND deleted_at IS NULL FOR UPDATE`, id).Scan(&attempts); err != nil {
			return err
		}
		attempts++
		out = LoginFailure{Attempts: attempts}
		t := at.UTC()
		if attempts >= s.policy.Threshold {
			until := t.Add(s.policy.Duration)
			out.LockedUntil = &until
			_, err := tx.Exec(ctx, `UPDATE identities SET failed_login_attempts = 0, locked_until = $2,
				updated_at = $3 WHERE id = $1`, id, until, t)
			return err
		}
		_, err := tx.Exec(ctx, `UPDATE identities SET failed_login_attempts = $2, updated_at = $3 WHERE id = $1`,
			id, attempts, t)
		return err
	})
	return out, mapError(err)
}

func (s *PostgresStore) exec(ctx context.Context, query string, args ...any) error {
	cmd, err := s.db.Exec(ctx, query, args...)
	if err != nil {
		return mapError(err)
	}
	if cmd.RowsAffected() == 0 {
		return apperr.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) ResetFailedLogins(ctx context.Context, id int64, at time.Time) error {
	return s.exec(ctx, `UPDATE identities SET failed_login_attempts = 0, locked_until = NULL,
		last_login_at = $2, updated_at = $2 WHERE id = $1 AND deleted_at IS NULL`, id, at.UTC())
}

const setPasswordSQL = `UPDATE identities SET password_hash = $2, token_version = token_version + 1,
	reset_token_hash = NULL, reset_expires_at = NULL, failed_login_attempts = 0, locked_until = NULL,
	updated_at = now() WHERE id = $1 AND deleted_at IS NULL RETURNING token_version`

func (s *PostgresStore) SetPassword(ctx context.Context, id int64, hash string) (int, error) {
	var version int
	err := s.db.QueryRow(ctx, setPasswordSQL, id, hash).Scan(&version)
	return version, mapError(err)
}

func (s *PostgresStore) RehashPassword(ctx context.Context, id int64, oldHash, newHash string) (bool, error) {
	cmd, err := s.db.Exec(ctx, `UPDATE identities SET password_hash = $3, updated_at = now()
		WHERE id = $1 AND password_hash = $2 AND deleted_at IS NULL`, id, oldHash, newHash)
	if err != nil {
		return false, mapError(err)
	}
	return cmd.RowsAffected() == 1, nil
}

func (s *PostgresStore) IssueResetToken(ctx context.Context, id int64, token string, expires time.Time) error {
	return s.exec(ctx, `UPDATE identities SET reset_token_hash = $2, reset_expires_at = $3, updated_at = now()
		WHERE id = $1 AND deleted_at IS NULL`, id, security.HashToken(token), expires.UTC())
}

// RedeemResetToken consumes the token. An expired token is cleared and
// reported as ErrResetExpired.
func (s *PostgresStore) RedeemResetToken(ctx context.Context, token, hash string, at time.Time) (Identity, error) {
	digest := security.HashToken(token)
	var (
		out     Identity
		expired bool
	)
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		expired = false
		row := tx.QueryRow(ctx, `SELECT `+identityColumns+` FROM identities
			WHERE reset_token_hash = $1 AND deleted_at IS NULL FOR UPDATE`, digest)
		ident, err := scanIdentity(row)
		if errors.Is(err, pgx.ErrNoRows) {
			return apperr.ErrTokenInvalid
		}
		if err != nil {
			return err
		}
		if ident.ResetExpiresAt == nil || !ident.ResetExpiresAt.After(at) {
			expired = true
			_, err := tx.Exec(ctx, `UPDATE identities SET reset_token_hash = NULL, reset_expires_at = NULL
				WHERE id = $1`, ident.ID)
			return err
		}
		var version int
		if err := tx.QueryRow(ctx, setPasswordSQL, ident.ID, hash).Scan(&version); err != nil {
			return err
		}
		row = tx.QueryRow(ctx, `SELECT `+identityColumns+` FROM identities WHERE id = $1`, ident.ID)
		out, err = scanIdentity(row)
		return err
	})
	if err != nil {
		return Identity{}, mapError(err)
	}
	if expired {
		return Identity{}, apperr.ErrResetExpired
	}
	return out, nil
}

// BumpTokenVersion also applies to deleted identities so their sessions stay dead.
func (s *PostgresStore) BumpTokenVersion(ctx context.Context, id int64) (int, error) {
	var version int
	err := s.db.QueryRow(ctx, `UPDATE identities SET token_version = token_version + 1, updated_at = now()
		WHERE id = $1 RETURNING token_version`, id).Scan(&version)
	return version, mapError(err)
}

func (s *PostgresStore) UpdateProfile(ctx context.Context, id int64, update ProfileUpdate) (Identity, error) {
	var out Identity
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		ident, err := lockLive(ctx, tx, id)
		if err != nil {
			return err
		}
		name := ident.Name
		if update.Name != nil {
			name = *update.Name
		}
		agent := ident.Agent
		if update.Agent != nil {
			if ident.Role != RoleAgent {
				return apperr.ErrForbidden
			}
			var taken bool
			if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM identities
				WHERE role = 'agent' AND license_number = $1 AND id <> $2 AND deleted_at IS NULL)`,
				update.Agent.LicenseNumber, id).Scan(&taken); err != nil {
				return err
			}
			if taken {
				return apperr.ErrDuplicateLicense
			}
			agent = update.Agent
		}
		var (
			license, agency, specialization, bio *string
			experience                           *int
			commission                           *float64
		)
		if agent != nil {
			license = &agent.LicenseNumber
			agency = &agent.AgencyName
			years := agent.ExperienceYears
			experience = &years
			commission = agent.CommissionRate
			specialization = nullable(agent.Specialization)
			bio = nullable(agent.Bio)
		}
		row := tx.QueryRow(ctx, `UPDATE identities SET name = $2, license_number = $3, agency_name = $4,
			experience_years = $5, commission_rate = $6, specialization = $7, bio = $8, updated_at = now()
			WHERE id = $1 RETURNING `+identityColumns,
			id, name, license, agency, experience, commission, specialization, bio)
		out, err = scanIdentity(row)
		return err
	})
	return out, mapError(err)
}

func (s *PostgresStore) SetStatus(ctx context.Context, id int64, status Status) (Identity, error) {
	row := s.db.QueryRow(ctx, `UPDATE identities SET status = $2, updated_at = now()
		WHERE id = $1 AND deleted_at IS NULL RETURNING `+identityColumns, id, string(status))
	ident, err := scanIdentity(row)
	return ident, mapError(err)
}

// SoftDelete keeps the row for audit history; the partial unique indexes
// release its email, phone and license.
func (s *PostgresStore) SoftDelete(ctx context.Context, id int64, at time.Time) error {
	return s.exec(ctx, `UPDATE identities SET status = $2, deleted_at = $3, token_version = token_version + 1,
		email_token_hash = NULL, phone_code_hash = NULL, reset_token_hash = NULL, reset_expires_at = NULL,
		updated_at = $3 WHERE id = $1 AND deleted_at IS NULL`, id, string(StatusDeleted), at.UTC())
}

func (s *PostgresStore) InsertPendingApproval(ctx context.Context, identityID int64, approvalType string) (PendingApproval, error) {
	row := s.db.QueryRow(ctx, `INSERT INTO pending_approvals (identity_id, approval_type, status)
		SELECT id, $2, $3 FROM identities WHERE id = $1 AND deleted_at IS NULL
		RETURNING `+approvalColumns, identityID, approvalType, string(ApprovalPending))
	a, err := scanApproval(row)
	return a, mapError(err)
}

func (s *PostgresStore) DecideApproval(ctx context.Context, approvalID int64, decision ApprovalStatus, reviewerID int64, at time.Time) (PendingApproval, Identity, error) {
	if decision != ApprovalApproved && decision != ApprovalRejected {
		return PendingApproval{}, Identity{}, errInvalidDecision
	}
	var (
		approval PendingApproval
		ident    Identity
	)
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `SELECT `+approvalColumns+` FROM pending_approvals WHERE id = $1 FOR UPDATE`, approvalID)
		a, err := scanApproval(row)
		if err != nil {
			return err
		}
		if a.Status != ApprovalPending {
			return errAlreadyDecided
		}
		current, err := lockLive(ctx, tx, a.IdentityID)
		if err != nil {
			return err
		}
		t := at.UTC()
		row = tx.QueryRow(ctx, `UPDATE pending_approvals SET status = $2, reviewer_id = $3, decided_at = $4
			WHERE id = $1 RETURNING `+approvalColumns, approvalID, string(decision), reviewerID, t)
		if approval, err = scanApproval(row); err != nil {
			return err
		}
		status := StatusSuspended
		if decision == ApprovalApproved {
			status = DeriveStatus(current, true)
		}
		row = tx.QueryRow(ctx, `UPDATE identities SET status = $2, updated_at = $3
			WHERE id = $1 RETURNING `+identityColumns, current.ID, string(status), t)
		ident, err = scanIdentity(row)
		return err
	})
	if err != nil {
		return PendingApproval{}, Identity{}, mapError(err)
	}
	return approval, ident, nil
}

func (s *PostgresStore) ListApprovals(ctx context.Context, status ApprovalStatus) ([]PendingApproval, error) {
	rows, err := s.db.Query(ctx, `SELECT `+approvalColumns+` FROM pending_approvals
		WHERE $1 = '' OR status = $1 ORDER BY id`, string(status))
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	out := make([]PendingApproval, 0)
	for rows.Next() {
		a, err := scanApproval(rows)
		if err != nil {
			return nil, mapError(err)
		}
		out = append(out, a)
	}
	return out, mapError(rows.Err())
}

func (s *PostgresStore) Approved(ctx context.Context, identityID int64) (bool, error) {
	ok, err := approvedTx(ctx, s.db, identityID)
	return ok, mapError(err)
}
