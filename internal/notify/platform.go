package notify

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

// Message is an in-platform notification stored for a user.
type Message struct {
	ID        string     `json:"id"`
	Recipient string     `json:"recipient"`
	Subject   string     `json:"subject"`
	Body      string     `json:"body"`
	CreatedAt time.Time  `json:"created_at"`
	ReadAt    *time.Time `json:"read_at,omitempty"`
}

// MessageStore persists platform messages in the platform_messages table.
type MessageStore struct {
	db *sql.DB
}

// NewMessageStore creates a platform message store.
func NewMessageStore(db *sql.DB) *MessageStore {
	return &MessageStore{db: db}
}

// Create inserts a message. ID and CreatedAt are generated if empty.
func (s *MessageStore) Create(ctx context.Context, m *Message) error {
	if m.Recipient == "" {
		return fmt.Errorf("%w: platform message needs a recipient", ErrInvalidRecipient)
	}
	if m.ID == "" {
		m.ID = "msg-" + uuid.NewString()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC().Truncate(time.Second)
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO platform_messages (id, recipient, subject, body, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		m.ID, m.Recipient, m.Subject, m.Body, m.CreatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("inserting platform message: %w", err)
	}
	return nil
}

// ListForRecipient returns a recipient's messages, newest first.
// limit defaults to 50 and is capped at 200.
func (s *MessageStore) ListForRecipient(ctx context.Context, recipient string, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, recipient, subject, body, created_at, read_at
		 FROM platform_messages
		 WHERE recipient = ?
		 ORDER BY created_at DESC, rowid DESC
		 LIMIT ?`, recipient, limit)
	if err != nil {
		return nil, fmt.Errorf("querying platform messages: %w", err)
	}
	defer rows.Close()

	var messages []Message
	for rows.Next() {
		var (
			m         Message
			createdAt string
			readAt    sql.NullString
		)
		if err := rows.Scan(&m.ID, &m.Recipient, &m.Subject, &m.Body, &createdAt, &readAt); err != nil {
			return nil, fmt.Errorf("scanning platform message: %w", err)
		}
		m.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		if readAt.Valid {
			if t, err := time.Parse(time.RFC3339, readAt.String); err == nil {
				m.ReadAt = &t
			}
		}
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating platform messages: %w", err)
	}
	return messages, nil
}

// MarkRead sets read_at on a message. Marking an already-read message keeps
// the first read time.
func (s *MessageStore) MarkRead(ctx context.Context, id string, at time.Time) error {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		"SELECT 1 FROM platform_messages WHERE id = ?", id).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrMessageNotFound
	}
	if err != nil {
		return fmt.Errorf("querying platform message: %w", err)
	}

	if _, err := s.db.ExecContext(ctx,
		"UPDATE platform_messages SET read_at = COALESCE(read_at, ?) WHERE id = ?",
		at.UTC().Format(time.RFC3339), id,
	); err != nil {
		return fmt.Errorf("marking platform message read: %w", err)
	}
	return nil
}
