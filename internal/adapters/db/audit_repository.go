package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"procurex-bidding-engine/internal/domain/audit"
	"procurex-bidding-engine/internal/domain/shared"

	"github.com/google/uuid"
)

// AuditRepository implements the audit trail read interface. Writes go
// through insertAuditTx inside the owning business transaction so that an
// un-audited mutation can never commit.
type AuditRepository struct {
	conn *Connection
}

// NewAuditRepository creates a new audit repository
func NewAuditRepository(conn *Connection) *AuditRepository {
	return &AuditRepository{conn: conn}
}

// insertAuditTx appends one audit entry within the given transaction. Any
// failure is wrapped as ErrAuditWriteFailed, which rolls the whole business
// operation back.
func insertAuditTx(ctx context.Context, tx *sql.Tx, entry *audit.Entry) error {
	details, err := json.Marshal(entry.Details)
	if err != nil {
		return fmt.Errorf("%w: marshal details: %v", shared.ErrAuditWriteFailed, err)
	}

	query := `
		INSERT INTO audit_log (actor_id, action, target_type, target_id, details, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	if _, err := tx.ExecContext(ctx, query,
		entry.ActorID,
		entry.Action,
		entry.TargetType,
		entry.TargetID,
		details,
		time.Now(),
	); err != nil {
		return fmt.Errorf("%w: %v", shared.ErrAuditWriteFailed, err)
	}

	return nil
}

// GetTrail retrieves the append-only history for a target, oldest first
func (r *AuditRepository) GetTrail(ctx context.Context, targetType audit.TargetType, targetID string) ([]*audit.Entry, error) {
	builder := r.conn.Builder().
		Select("id", "actor_id", "action", "target_type", "target_id", "details", "created_at").
		From("audit_log").
		Where("target_type = ?", targetType).
		OrderBy("id ASC")

	if targetID != "" {
		builder = builder.Where("target_id = ?", targetID)
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build audit query: %w", err)
	}

	rows, err := r.conn.GetDB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get audit trail: %w", err)
	}
	defer rows.Close()

	var entries []*audit.Entry
	for rows.Next() {
		var entry audit.Entry
		var actorID uuid.NullUUID
		var details []byte
		if err := rows.Scan(
			&entry.ID,
			&actorID,
			&entry.Action,
			&entry.TargetType,
			&entry.TargetID,
			&details,
			&entry.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		if actorID.Valid {
			entry.ActorID = &actorID.UUID
		}
		if len(details) > 0 {
			if err := json.Unmarshal(details, &entry.Details); err != nil {
				return nil, fmt.Errorf("failed to decode audit details: %w", err)
			}
		}
		entries = append(entries, &entry)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating audit entries: %w", err)
	}

	return entries, nil
}
