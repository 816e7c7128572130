package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/atelier-ops/link-engine/pkg/models"
)

// ContactRepository defines the interface for contact data access.
type ContactRepository interface {
	// Upsert inserts or updates a contact keyed by email, replacing its
	// project associations with the given set.
	Upsert(ctx context.Context, contact *models.Contact) error
	// ProjectCodesForEmail returns the project codes a sender is associated
	// with. Empty means the sender is not a known contact (or has no projects).
	ProjectCodesForEmail(ctx context.Context, email string) ([]string, error)
	// Count returns the number of contacts.
	Count(ctx context.Context) (int64, error)
}

type contactRepository struct {
	db *sql.DB
}

// NewContactRepository creates a new contact repository.
func NewContactRepository(db *sql.DB) ContactRepository {
	return &contactRepository{db: db}
}

// Upsert writes the contact and replaces its project associations in one
// transaction.
func (r *contactRepository) Upsert(ctx context.Context, contact *models.Contact) error {
	email := models.NormalizeEmail(contact.Email)
	if email == "" {
		return fmt.Errorf("contact email is required")
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO contacts (email, name, company, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(email) DO UPDATE
		SET name = excluded.name,
		    company = excluded.company`,
		email, contact.Name, contact.Company, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to upsert contact: %w", err)
	}

	var contactID int64
	if err := tx.QueryRowContext(ctx, `SELECT id FROM contacts WHERE email = ?`, email).Scan(&contactID); err != nil {
		return fmt.Errorf("failed to read contact id: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM contact_projects WHERE contact_id = ?`, contactID); err != nil {
		return fmt.Errorf("failed to clear contact projects: %w", err)
	}
	for _, code := range contact.ProjectCodes {
		if _, err := tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO contact_projects (contact_id, project_code) VALUES (?, ?)`,
			contactID, code); err != nil {
			return fmt.Errorf("failed to insert contact project: %w", err)
		}
	}

	return tx.Commit()
}

// ProjectCodesForEmail returns the project codes associated with a sender.
func (r *contactRepository) ProjectCodesForEmail(ctx context.Context, email string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT cp.project_code
		FROM contacts c
		JOIN contact_projects cp ON cp.contact_id = c.id
		WHERE c.email = ?
		ORDER BY cp.project_code`,
		models.NormalizeEmail(email))
	if err != nil {
		return nil, fmt.Errorf("failed to query contact projects: %w", err)
	}
	defer rows.Close()

	var codes []string
	for rows.Next() {
		var code string
		if err := rows.Scan(&code); err != nil {
			return nil, fmt.Errorf("failed to scan project code: %w", err)
		}
		codes = append(codes, code)
	}
	return codes, rows.Err()
}

// Count returns the number of contacts.
func (r *contactRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM contacts`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count contacts: %w", err)
	}
	return n, nil
}

var _ ContactRepository = (*contactRepository)(nil)
