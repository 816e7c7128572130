package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/atelier-ops/link-engine/pkg/models"
)

// ReviewRepository defines the interface for the pending review queue.
type ReviewRepository interface {
	// InsertIgnore queues a candidate for review unless a row for the same
	// (message, project) pair already exists. Returns true if inserted.
	InsertIgnore(ctx context.Context, pending *models.PendingLink) (bool, error)
	// ListPending returns pending entries, newest first, capped at limit.
	ListPending(ctx context.Context, limit int) ([]models.PendingLink, error)
	// CountPending returns the number of entries still awaiting review.
	CountPending(ctx context.Context) (int64, error)
}

type reviewRepository struct {
	db *sql.DB
}

// NewReviewRepository creates a new review repository.
func NewReviewRepository(db *sql.DB) ReviewRepository {
	return &reviewRepository{db: db}
}

// InsertIgnore queues a candidate for human review.
func (r *reviewRepository) InsertIgnore(ctx context.Context, pending *models.PendingLink) (bool, error) {
	if pending.ReviewID == "" {
		pending.ReviewID = uuid.NewString()
	}
	if pending.Status == "" {
		pending.Status = models.PendingStatusPending
	}

	res, err := r.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO pending_links
			(review_id, message_id, project_code, confidence, method, evidence, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		pending.ReviewID, pending.MessageID, pending.ProjectCode,
		pending.Confidence, string(pending.Method), pending.Evidence, pending.Status, time.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("failed to insert pending link: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return n > 0, nil
}

// ListPending returns entries awaiting review.
func (r *reviewRepository) ListPending(ctx context.Context, limit int) ([]models.PendingLink, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, review_id, message_id, project_code, confidence, method, evidence, status, created_at
		FROM pending_links
		WHERE status = ?
		ORDER BY created_at DESC
		LIMIT ?`,
		models.PendingStatusPending, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query pending links: %w", err)
	}
	defer rows.Close()

	var pendings []models.PendingLink
	for rows.Next() {
		var p models.PendingLink
		var method string
		if err := rows.Scan(&p.ID, &p.ReviewID, &p.MessageID, &p.ProjectCode,
			&p.Confidence, &method, &p.Evidence, &p.Status, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan pending link: %w", err)
		}
		p.Method = models.LinkMethod(method)
		pendings = append(pendings, p)
	}
	return pendings, rows.Err()
}

// CountPending returns the number of entries awaiting review.
func (r *reviewRepository) CountPending(ctx context.Context) (int64, error) {
	var n int64
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM pending_links WHERE status = ?`, models.PendingStatusPending).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count pending links: %w", err)
	}
	return n, nil
}

var _ ReviewRepository = (*reviewRepository)(nil)
