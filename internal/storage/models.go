package storage

import (
	"encoding/json"
	"time"
)

// TableSchema describes one table. The column list is serialized as "schema".
type TableSchema struct {
	TableName string   `json:"table_name"`
	Columns   []Column `json:"schema"`
}

type Column struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Nullable bool   `json:"nullable"`
}

type Conversation struct {
	ID        int64     `json:"id"`
	Title     string    `json:"title,omitempty"`
	UserID    *int64    `json:"user_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type Message struct {
	ID             int64           `json:"id"`
	ConversationID int64           `json:"conversation_id"`
	Role           string          `json:"role"`
	Content        json.RawMessage `json:"content"`
	CreatedAt      time.Time       `json:"created_at"`
}

type DataSource struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	TableName string    `json:"table_name"`
	Rows      int64     `json:"rows"`
	UserID    *int64    `json:"user_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Document is a stored chunk returned by a similarity search.
type Document struct {
	ID         int64          `json:"id"`
	Collection string         `json:"collection"`
	Filename   string         `json:"filename"`
	Source     string         `json:"source"`
	Content    string         `json:"page_content"`
	Metadata   map[string]any `json:"metadata"`
	Distance   float64        `json:"distance"`
}
