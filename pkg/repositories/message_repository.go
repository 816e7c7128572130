package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/atelier-ops/link-engine/pkg/apperrors"
	"github.com/atelier-ops/link-engine/pkg/models"
)

// MessageRepository defines the interface for message data access.
// Messages are created by the external mailbox sync; this service only reads
// them, except for test seeding.
type MessageRepository interface {
	// Insert stores a message. Used by tests and backfill tooling; the mailbox
	// sync normally owns writes.
	Insert(ctx context.Context, msg *models.Message) error
	// GetByMessageID retrieves a message by its durable provider id.
	GetByMessageID(ctx context.Context, messageID string) (*models.Message, error)
	// Unlinked returns messages that have neither a link nor a pending review
	// entry, oldest first, capped at limit.
	Unlinked(ctx context.Context, limit int) ([]models.Message, error)
	// BySender returns all messages from a sender address.
	BySender(ctx context.Context, sender string) ([]models.Message, error)
	// ResolvePK resolves a message id to its current surrogate row id.
	ResolvePK(ctx context.Context, messageID string) (int64, error)
	// Count returns the number of messages.
	Count(ctx context.Context) (int64, error)
	// CountUnlinked returns the number of messages with no links.
	CountUnlinked(ctx context.Context) (int64, error)
}

type messageRepository struct {
	db *sql.DB
}

// NewMessageRepository creates a new message repository.
func NewMessageRepository(db *sql.DB) MessageRepository {
	return &messageRepository{db: db}
}

const messageColumns = `id, message_id, thread_id, sender, subject, body, sent_at, created_at`

// scanMessage reads a message row. sent_at is nullable and must be selected as
// a plain column: the sqlite3 driver only converts DATETIME values for declared
// columns, so expressions like COALESCE come back as strings. The fallback to
// created_at happens here instead.
func scanMessage(row interface{ Scan(...any) error }) (*models.Message, error) {
	var m models.Message
	var sentAt sql.NullTime
	if err := row.Scan(&m.ID, &m.MessageID, &m.ThreadID, &m.Sender, &m.Subject, &m.Body, &sentAt, &m.CreatedAt); err != nil {
		return nil, err
	}
	if sentAt.Valid {
		m.SentAt = sentAt.Time
	} else {
		m.SentAt = m.CreatedAt
	}
	return &m, nil
}

// Insert stores a message keyed by its provider message id.
func (r *messageRepository) Insert(ctx context.Context, msg *models.Message) error {
	sentAt := msg.SentAt
	if sentAt.IsZero() {
		sentAt = time.Now().UTC()
	}
	res, err := r.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO messages (message_id, thread_id, sender, subject, body, sent_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		msg.MessageID, msg.ThreadID, models.NormalizeEmail(msg.Sender), msg.Subject, msg.Body, sentAt, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to insert message: %w", err)
	}
	if id, err := res.LastInsertId(); err == nil && id > 0 {
		msg.ID = id
	}
	return nil
}

// GetByMessageID retrieves a message by its durable id.
func (r *messageRepository) GetByMessageID(ctx context.Context, messageID string) (*models.Message, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+messageColumns+` FROM messages WHERE message_id = ?`, messageID)
	m, err := scanMessage(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get message: %w", err)
	}
	return m, nil
}

// Unlinked returns messages with no link and no pending review entry.
// Messages with a recorded classification failure are still returned: they are
// retried on every batch until they succeed or an operator intervenes.
func (r *messageRepository) Unlinked(ctx context.Context, limit int) ([]models.Message, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+messageColumns+`
		FROM messages m
		WHERE NOT EXISTS (SELECT 1 FROM email_project_links l WHERE l.message_id = m.message_id)
		  AND NOT EXISTS (SELECT 1 FROM pending_links p WHERE p.message_id = m.message_id)
		ORDER BY COALESCE(m.sent_at, m.created_at)
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query unlinked messages: %w", err)
	}
	defer rows.Close()
	return collectMessages(rows)
}

// BySender returns all messages from a sender, oldest first.
func (r *messageRepository) BySender(ctx context.Context, sender string) ([]models.Message, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+messageColumns+`
		FROM messages
		WHERE sender = ?
		ORDER BY COALESCE(sent_at, created_at)`,
		models.NormalizeEmail(sender))
	if err != nil {
		return nil, fmt.Errorf("failed to query messages by sender: %w", err)
	}
	defer rows.Close()
	return collectMessages(rows)
}

func collectMessages(rows *sql.Rows) ([]models.Message, error) {
	var msgs []models.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		msgs = append(msgs, *m)
	}
	return msgs, rows.Err()
}

// ResolvePK resolves a message id to its current surrogate id.
func (r *messageRepository) ResolvePK(ctx context.Context, messageID string) (int64, error) {
	var pk int64
	err := r.db.QueryRowContext(ctx, `SELECT id FROM messages WHERE message_id = ?`, messageID).Scan(&pk)
	if err != nil {
		if err == sql.ErrNoRows {
			return 0, apperrors.ErrNotFound
		}
		return 0, fmt.Errorf("failed to resolve message pk: %w", err)
	}
	return pk, nil
}

// Count returns the number of messages.
func (r *messageRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM messages`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count messages: %w", err)
	}
	return n, nil
}

// CountUnlinked returns the number of messages with no links.
func (r *messageRepository) CountUnlinked(ctx context.Context) (int64, error) {
	var n int64
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM messages m
		WHERE NOT EXISTS (SELECT 1 FROM email_project_links l WHERE l.message_id = m.message_id)`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count unlinked messages: %w", err)
	}
	return n, nil
}

var _ MessageRepository = (*messageRepository)(nil)
