// Package repositories provides data access over the operations database.
package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/atelier-ops/link-engine/pkg/apperrors"
	"github.com/atelier-ops/link-engine/pkg/models"
)

// ProjectRepository defines the interface for project data access.
type ProjectRepository interface {
	// Upsert inserts or updates a project keyed by its code.
	Upsert(ctx context.Context, project *models.Project) error
	// GetByCode retrieves a project by its durable code.
	GetByCode(ctx context.Context, code string) (*models.Project, error)
	// List returns all known projects ordered by code.
	List(ctx context.Context) ([]models.Project, error)
	// ResolvePK resolves a project code to its current surrogate row id.
	ResolvePK(ctx context.Context, code string) (int64, error)
	// Count returns the number of projects.
	Count(ctx context.Context) (int64, error)
}

// projectRepository implements ProjectRepository using SQLite.
type projectRepository struct {
	db *sql.DB
}

// NewProjectRepository creates a new project repository.
func NewProjectRepository(db *sql.DB) ProjectRepository {
	return &projectRepository{db: db}
}

// Upsert inserts a new project or updates the existing row with the same code.
// The surrogate id is left alone on update; external syncs own it.
func (r *projectRepository) Upsert(ctx context.Context, project *models.Project) error {
	now := time.Now().UTC()
	if project.Status == "" {
		project.Status = models.ProjectStatusActive
	}

	query := `
		INSERT INTO projects (project_code, name, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(project_code) DO UPDATE
		SET name = excluded.name,
		    status = excluded.status,
		    updated_at = excluded.updated_at`

	if _, err := r.db.ExecContext(ctx, query, project.Code, project.Name, project.Status, now, now); err != nil {
		return fmt.Errorf("failed to upsert project: %w", err)
	}
	return nil
}

// GetByCode retrieves a project by code.
func (r *projectRepository) GetByCode(ctx context.Context, code string) (*models.Project, error) {
	query := `
		SELECT id, project_code, name, status, created_at, updated_at
		FROM projects
		WHERE project_code = ?`

	var p models.Project
	err := r.db.QueryRowContext(ctx, query, code).Scan(
		&p.ID, &p.Code, &p.Name, &p.Status, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get project: %w", err)
	}
	return &p, nil
}

// List returns all projects ordered by code.
func (r *projectRepository) List(ctx context.Context) ([]models.Project, error) {
	query := `
		SELECT id, project_code, name, status, created_at, updated_at
		FROM projects
		ORDER BY project_code`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	defer rows.Close()

	var projects []models.Project
	for rows.Next() {
		var p models.Project
		if err := rows.Scan(&p.ID, &p.Code, &p.Name, &p.Status, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan project: %w", err)
		}
		projects = append(projects, p)
	}
	return projects, rows.Err()
}

// ResolvePK resolves a project code to its current surrogate id.
func (r *projectRepository) ResolvePK(ctx context.Context, code string) (int64, error) {
	var pk int64
	err := r.db.QueryRowContext(ctx, `SELECT id FROM projects WHERE project_code = ?`, code).Scan(&pk)
	if err != nil {
		if err == sql.ErrNoRows {
			return 0, apperrors.ErrNotFound
		}
		return 0, fmt.Errorf("failed to resolve project pk: %w", err)
	}
	return pk, nil
}

// Count returns the number of projects.
func (r *projectRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM projects`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count projects: %w", err)
	}
	return n, nil
}

// Ensure projectRepository implements ProjectRepository at compile time.
var _ ProjectRepository = (*projectRepository)(nil)
