// Package conversation provides persistence for conversations and their
// ordered message history.
//
// Messages are append-only; created_at ascending ordering is the
// contract history reconstruction depends on.
package conversation

import (
	"time"

	"github.com/google/uuid"
)

// Role constants define valid message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Conversation represents a conversation record (application-level type).
type Conversation struct {
	ID           uuid.UUID `json:"id"`
	UserID       string    `json:"user_id"`
	ClientID     uuid.UUID `json:"client_id"`
	Titre        string    `json:"titre,omitempty"`
	MessageCount int       `json:"message_count"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Message represents a single persisted conversation message.
// Metadata is a free-form bag (chunk counts, model name, citation list).
type Message struct {
	ID             uuid.UUID      `json:"id"`
	ConversationID uuid.UUID      `json:"conversation_id"`
	Role           string         `json:"role"`
	Content        string         `json:"content"`
	Metadata       map[string]any `json:"metadata"`
	CreatedAt      time.Time      `json:"created_at"`
}

// NewMessage is an unsaved message passed to AppendTurn.
type NewMessage struct {
	Role     string
	Content  string
	Metadata map[string]any
}
