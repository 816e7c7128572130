package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/atelier-ops/link-engine/pkg/models"
)

// AuditRepository records classification failures and reconciliation runs.
type AuditRepository interface {
	// RecordClassificationFailure bumps the failure counter for a message.
	RecordClassificationFailure(ctx context.Context, messageID string, cause error) error
	// ClearClassificationFailure removes the failure record after a message
	// finally classifies (or links by rule).
	ClearClassificationFailure(ctx context.Context, messageID string) error
	// CountClassificationFailures returns the number of messages with a
	// recorded failure.
	CountClassificationFailures(ctx context.Context) (int64, error)
	// InsertReconciliationRun stores the audit record for one reconciler pass.
	InsertReconciliationRun(ctx context.Context, run *models.ReconciliationRun) error
}

type auditRepository struct {
	db *sql.DB
}

// NewAuditRepository creates a new audit repository.
func NewAuditRepository(db *sql.DB) AuditRepository {
	return &auditRepository{db: db}
}

// RecordClassificationFailure upserts the failure row, incrementing attempts.
func (r *auditRepository) RecordClassificationFailure(ctx context.Context, messageID string, cause error) error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO classification_failures (message_id, attempts, last_error, last_attempt_at)
		VALUES (?, 1, ?, ?)
		ON CONFLICT(message_id) DO UPDATE
		SET attempts = attempts + 1,
		    last_error = excluded.last_error,
		    last_attempt_at = excluded.last_attempt_at`,
		messageID, msg, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to record classification failure: %w", err)
	}
	return nil
}

// ClearClassificationFailure removes the failure record for a message.
func (r *auditRepository) ClearClassificationFailure(ctx context.Context, messageID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM classification_failures WHERE message_id = ?`, messageID)
	if err != nil {
		return fmt.Errorf("failed to clear classification failure: %w", err)
	}
	return nil
}

// CountClassificationFailures returns the number of recorded failures.
func (r *auditRepository) CountClassificationFailures(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM classification_failures`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count classification failures: %w", err)
	}
	return n, nil
}

// InsertReconciliationRun stores a reconciliation audit record.
func (r *auditRepository) InsertReconciliationRun(ctx context.Context, run *models.ReconciliationRun) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO reconciliation_runs
			(id, started_at, finished_at, orphans_found, relinked, deleted, patterns_reapplied)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.StartedAt, run.FinishedAt,
		run.OrphansFound, run.Relinked, run.Deleted, run.PatternsReapplied)
	if err != nil {
		return fmt.Errorf("failed to insert reconciliation run: %w", err)
	}
	return nil
}

var _ AuditRepository = (*auditRepository)(nil)
