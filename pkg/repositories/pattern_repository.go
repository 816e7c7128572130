package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/atelier-ops/link-engine/pkg/models"
)

// PatternRepository defines the interface for learned pattern data access.
type PatternRepository interface {
	// ReplaceAll swaps the entire pattern set inside one transaction.
	// The maintainer recomputes patterns wholesale; there is no incremental path.
	ReplaceAll(ctx context.Context, patterns []models.LearnedPattern) error
	// GetBySender returns all patterns for a sender email.
	GetBySender(ctx context.Context, sender string) ([]models.LearnedPattern, error)
	// Qualifying returns patterns that clear both the occurrence and
	// confidence gates, for the reconciler's reapply pass.
	Qualifying(ctx context.Context, minOccurrences int, minConfidence float64) ([]models.LearnedPattern, error)
	// Count returns the number of learned patterns.
	Count(ctx context.Context) (int64, error)
}

type patternRepository struct {
	db *sql.DB
}

// NewPatternRepository creates a new pattern repository.
func NewPatternRepository(db *sql.DB) PatternRepository {
	return &patternRepository{db: db}
}

// ReplaceAll replaces the learned pattern set atomically.
func (r *patternRepository) ReplaceAll(ctx context.Context, patterns []models.LearnedPattern) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM learned_patterns`); err != nil {
		return fmt.Errorf("failed to clear learned patterns: %w", err)
	}

	now := time.Now().UTC()
	for _, p := range patterns {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO learned_patterns (sender_email, project_code, occurrences, confidence, updated_at)
			VALUES (?, ?, ?, ?, ?)`,
			p.SenderEmail, p.ProjectCode, p.Occurrences, p.Confidence, now); err != nil {
			return fmt.Errorf("failed to insert learned pattern: %w", err)
		}
	}

	return tx.Commit()
}

// GetBySender returns the patterns for one sender, strongest first.
func (r *patternRepository) GetBySender(ctx context.Context, sender string) ([]models.LearnedPattern, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, sender_email, project_code, occurrences, confidence, updated_at
		FROM learned_patterns
		WHERE sender_email = ?
		ORDER BY confidence DESC, occurrences DESC`,
		models.NormalizeEmail(sender))
	if err != nil {
		return nil, fmt.Errorf("failed to query patterns: %w", err)
	}
	defer rows.Close()
	return collectPatterns(rows)
}

// Qualifying returns patterns usable for automatic relinking.
func (r *patternRepository) Qualifying(ctx context.Context, minOccurrences int, minConfidence float64) ([]models.LearnedPattern, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, sender_email, project_code, occurrences, confidence, updated_at
		FROM learned_patterns
		WHERE occurrences >= ? AND confidence >= ?
		ORDER BY sender_email, project_code`,
		minOccurrences, minConfidence)
	if err != nil {
		return nil, fmt.Errorf("failed to query qualifying patterns: %w", err)
	}
	defer rows.Close()
	return collectPatterns(rows)
}

// Count returns the number of learned patterns.
func (r *patternRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM learned_patterns`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count patterns: %w", err)
	}
	return n, nil
}

func collectPatterns(rows *sql.Rows) ([]models.LearnedPattern, error) {
	var patterns []models.LearnedPattern
	for rows.Next() {
		var p models.LearnedPattern
		if err := rows.Scan(&p.ID, &p.SenderEmail, &p.ProjectCode, &p.Occurrences, &p.Confidence, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan pattern: %w", err)
		}
		patterns = append(patterns, p)
	}
	return patterns, rows.Err()
}

var _ PatternRepository = (*patternRepository)(nil)
