package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/atelier-ops/link-engine/pkg/models"
)

// SenderProjectCount is one row of the pattern-mining aggregation: how many of
// a sender's linked messages landed on a project, and how many linked messages
// the sender has in total.
type SenderProjectCount struct {
	Sender      string
	ProjectCode string
	Count       int
	SenderTotal int
}

// LinkRepository defines the interface for link data access.
//
// Every write goes through INSERT OR IGNORE on the (message_id, project_code)
// business-key pair, which is what makes the whole pipeline idempotent.
type LinkRepository interface {
	// InsertIgnore writes a link if no link for the same (message, project)
	// pair exists. Returns true if a row was actually inserted.
	InsertIgnore(ctx context.Context, link *models.Link) (bool, error)
	// ForMessage returns all links for a message id.
	ForMessage(ctx context.Context, messageID string) ([]models.Link, error)
	// ThreadLinks returns links attached to other messages in the given
	// thread with confidence >= minConfidence.
	ThreadLinks(ctx context.Context, threadID, excludeMessageID string, minConfidence float64) ([]models.Link, error)
	// DomainProjects returns the distinct project codes historically linked to
	// senders of the given email domain.
	DomainProjects(ctx context.Context, domain string) ([]string, error)
	// AggregateBySenderProject returns the pattern-mining aggregation over all
	// current links.
	AggregateBySenderProject(ctx context.Context) ([]SenderProjectCount, error)
	// Orphans returns links whose surrogate message or project reference no
	// longer resolves.
	Orphans(ctx context.Context) ([]models.Link, error)
	// Reanchor rewrites a link's surrogate key columns.
	Reanchor(ctx context.Context, linkID, messagePK, projectPK int64) error
	// Delete removes a link by id.
	Delete(ctx context.Context, linkID int64) error
	// Count returns the number of links.
	Count(ctx context.Context) (int64, error)
}

type linkRepository struct {
	db *sql.DB
}

// NewLinkRepository creates a new link repository.
func NewLinkRepository(db *sql.DB) LinkRepository {
	return &linkRepository{db: db}
}

const linkColumns = `id, message_pk, project_pk, message_id, project_code, confidence, method, evidence, created_at`

// InsertIgnore writes the link unless the (message_id, project_code) pair
// already exists. Duplicate inserts are an expected, silent no-op.
func (r *linkRepository) InsertIgnore(ctx context.Context, link *models.Link) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO email_project_links
			(message_pk, project_pk, message_id, project_code, confidence, method, evidence, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		link.MessagePK, link.ProjectPK, link.MessageID, link.ProjectCode,
		link.Confidence, string(link.Method), link.Evidence, time.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("failed to insert link: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}
	if n > 0 {
		if id, err := res.LastInsertId(); err == nil {
			link.ID = id
		}
	}
	return n > 0, nil
}

// ForMessage returns all links for a message.
func (r *linkRepository) ForMessage(ctx context.Context, messageID string) ([]models.Link, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+linkColumns+` FROM email_project_links WHERE message_id = ? ORDER BY project_code`,
		messageID)
	if err != nil {
		return nil, fmt.Errorf("failed to query links for message: %w", err)
	}
	defer rows.Close()
	return collectLinks(rows)
}

// ThreadLinks returns high-confidence links on sibling messages in a thread.
// Inheritance never crosses threads, so an empty threadID matches nothing.
func (r *linkRepository) ThreadLinks(ctx context.Context, threadID, excludeMessageID string, minConfidence float64) ([]models.Link, error) {
	if threadID == "" {
		return nil, nil
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT l.id, l.message_pk, l.project_pk, l.message_id, l.project_code,
		       l.confidence, l.method, l.evidence, l.created_at
		FROM email_project_links l
		JOIN messages m ON m.message_id = l.message_id
		WHERE m.thread_id = ?
		  AND l.message_id != ?
		  AND l.confidence >= ?
		ORDER BY l.confidence DESC`,
		threadID, excludeMessageID, minConfidence)
	if err != nil {
		return nil, fmt.Errorf("failed to query thread links: %w", err)
	}
	defer rows.Close()
	return collectLinks(rows)
}

// DomainProjects returns the distinct project codes linked from a sender domain.
func (r *linkRepository) DomainProjects(ctx context.Context, domain string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT DISTINCT l.project_code
		FROM email_project_links l
		JOIN messages m ON m.message_id = l.message_id
		WHERE m.sender LIKE '%@' || ?
		ORDER BY l.project_code`,
		domain)
	if err != nil {
		return nil, fmt.Errorf("failed to query domain projects: %w", err)
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

// AggregateBySenderProject groups current links by (sender, project) with
// per-sender totals, the raw material for pattern mining.
func (r *linkRepository) AggregateBySenderProject(ctx context.Context) ([]SenderProjectCount, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT m.sender,
		       l.project_code,
		       COUNT(*) AS occurrences,
		       (SELECT COUNT(*)
		        FROM email_project_links l2
		        JOIN messages m2 ON m2.message_id = l2.message_id
		        WHERE m2.sender = m.sender) AS sender_total
		FROM email_project_links l
		JOIN messages m ON m.message_id = l.message_id
		GROUP BY m.sender, l.project_code
		ORDER BY m.sender, l.project_code`)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate links: %w", err)
	}
	defer rows.Close()

	var counts []SenderProjectCount
	for rows.Next() {
		var c SenderProjectCount
		if err := rows.Scan(&c.Sender, &c.ProjectCode, &c.Count, &c.SenderTotal); err != nil {
			return nil, fmt.Errorf("failed to scan aggregation row: %w", err)
		}
		counts = append(counts, c)
	}
	return counts, rows.Err()
}

// Orphans returns links whose message_pk or project_pk no longer resolves.
func (r *linkRepository) Orphans(ctx context.Context) ([]models.Link, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT l.id, l.message_pk, l.project_pk, l.message_id, l.project_code,
		       l.confidence, l.method, l.evidence, l.created_at
		FROM email_project_links l
		LEFT JOIN messages m ON m.id = l.message_pk
		LEFT JOIN projects p ON p.id = l.project_pk
		WHERE m.id IS NULL OR p.id IS NULL
		ORDER BY l.id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query orphaned links: %w", err)
	}
	defer rows.Close()
	return collectLinks(rows)
}

// Reanchor rewrites the surrogate key columns of a link.
func (r *linkRepository) Reanchor(ctx context.Context, linkID, messagePK, projectPK int64) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE email_project_links SET message_pk = ?, project_pk = ? WHERE id = ?`,
		messagePK, projectPK, linkID)
	if err != nil {
		return fmt.Errorf("failed to reanchor link: %w", err)
	}
	return nil
}

// Delete removes a link.
func (r *linkRepository) Delete(ctx context.Context, linkID int64) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM email_project_links WHERE id = ?`, linkID)
	if err != nil {
		return fmt.Errorf("failed to delete link: %w", err)
	}
	return nil
}

// Count returns the number of links.
func (r *linkRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM email_project_links`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count links: %w", err)
	}
	return n, nil
}

func collectLinks(rows *sql.Rows) ([]models.Link, error) {
	var links []models.Link
	for rows.Next() {
		var l models.Link
		var method string
		if err := rows.Scan(&l.ID, &l.MessagePK, &l.ProjectPK, &l.MessageID, &l.ProjectCode,
			&l.Confidence, &method, &l.Evidence, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan link: %w", err)
		}
		l.Method = models.LinkMethod(method)
		links = append(links, l)
	}
	return links, rows.Err()
}

var _ LinkRepository = (*linkRepository)(nil)
