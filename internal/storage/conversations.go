package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// ErrNotFound is returned when a conversation does not exist.
var ErrNotFound = errors.New("not found")

// CreateConversation starts a new conversation.
func (db *DB) CreateConversation(ctx context.Context, title string, userID *int64) (Conversation, error) {
	c := Conversation{Title: title, UserID: userID}
	err := db.pool.QueryRow(ctx,
		`INSERT INTO conversations (title, user_id) VALUES (NULLIF($1, ''), $2) RETURNING id, created_at`,
		title, userID).Scan(&c.ID, &c.CreatedAt)
	if err != nil {
		return Conversation{}, fmt.Errorf("creating conversation: %w", err)
	}
	return c, nil
}

// SaveMessage appends a message. content must be valid JSON.
func (db *DB) SaveMessage(ctx context.Context, conversationID int64, role string, content json.RawMessage) error {
	if !json.Valid(content) {
		return fmt.Errorf("message content is not valid JSON")
	}
	_, err := db.pool.Exec(ctx,
		`INSERT INTO messages (conversation_id, role, content) VALUES ($1, $2, $3::jsonb)`,
		conversationID, role, string(content))
	if err != nil {
		return fmt.Errorf("saving %s message: %w", role, err)
	}
	return nil
}

// ListMessages returns the messages of a conversation, oldest first.
func (db *DB) ListMessages(ctx context.Context, conversationID int64) ([]Message, error) {
	var exists bool
	if err := db.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM conversations WHERE id = $1)`, conversationID).Scan(&exists); err != nil {
		return nil, err
	}
	if !exists {
		return nil, fmt.Errorf("conversation %d: %w", conversationID, ErrNotFound)
	}

	rows, err := db.pool.Query(ctx,
		`SELECT id, conversation_id, role, content::text, created_at FROM messages WHERE conversation_id = $1 ORDER BY id`,
		conversationID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (Message, error) {
		var (
			m       Message
			content string
		)
		err := row.Scan(&m.ID, &m.ConversationID, &m.Role, &content, &m.CreatedAt)
		m.Content = json.RawMessage(content)
		return m, err
	})
}

// ListDataSources returns uploaded datasets, newest first.
func (db *DB) ListDataSources(ctx context.Context) ([]DataSource, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT id, name, table_name, COALESCE(rows, 0), user_id, created_at FROM data_sources ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (DataSource, error) {
		var d DataSource
		err := row.Scan(&d.ID, &d.Name, &d.TableName, &d.Rows, &d.UserID, &d.CreatedAt)
		return d, err
	})
}
