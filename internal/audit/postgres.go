package audit

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresSink appends events to the audit_logs table.
type PostgresSink struct {
	db *pgxpool.Pool
}

func NewPostgresSink(db *pgxpool.Pool) *PostgresSink {
	return &PostgresSink{db: db}
}

func (s *PostgresSink) Emit(ctx context.Context, e Event) error {
	details, err := json.Marshal(e.Details)
	if err != nil {
		return fmt.Errorf("encode audit details: %w", err)
	}
	_, err = s.db.Exec(ctx, `INSERT INTO audit_logs (event_type, user_id, ip_address, user_agent, severity, details, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		e.EventType, e.UserID, e.IP, e.UserAgent, string(e.Severity), details, e.Timestamp)
	if err != nil {
		return fmt.Errorf("insert audit log: %w", err)
	}
	return nil
}
