package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound indicates the requested conversation does not exist.
var ErrNotFound = errors.New("conversation not found")

// maxTitreRunes bounds the lazily derived conversation title.
const maxTitreRunes = 80

// Store manages conversation persistence with a PostgreSQL backend.
//
// Store is safe for concurrent use by multiple goroutines. AppendTurn
// locks the conversation row (SELECT ... FOR UPDATE) so concurrent
// turns for the same conversation serialize their appends.
type Store struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// New creates a new Store instance.
func New(pool *pgxpool.Pool, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{pool: pool, logger: logger}
}

// Create creates a new conversation scoped to the given client.
// The title is left null; it is derived from the first question on the
// first AppendTurn.
func (s *Store) Create(ctx context.Context, userID string, clientID uuid.UUID) (uuid.UUID, error) {
	var id uuid.UUID
	err := s.pool.QueryRow(ctx,
		`INSERT INTO conversations (user_id, client_id) VALUES ($1, $2) RETURNING id`,
		userID, clientID,
	).Scan(&id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to create conversation: %w", err)
	}

	s.logger.Debug("created conversation", "id", id, "client_id", clientID)
	return id, nil
}

// Get retrieves a conversation by id. Returns ErrNotFound when absent.
func (s *Store) Get(ctx context.Context, id uuid.UUID) (*Conversation, error) {
	var c Conversation
	var titre *string
	err := s.pool.QueryRow(ctx,
		`SELECT id, user_id, client_id, titre, message_count, created_at, updated_at
		 FROM conversations WHERE id = $1`,
		id,
	).Scan(&c.ID, &c.UserID, &c.ClientID, &titre, &c.MessageCount, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("failed to get conversation %s: %w", id, err)
	}
	if titre != nil {
		c.Titre = *titre
	}
	return &c, nil
}

// ListByUser lists a user's conversations, most recently active first.
func (s *Store) ListByUser(ctx context.Context, userID string, limit, offset int32) ([]*Conversation, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, user_id, client_id, titre, message_count, created_at, updated_at
		 FROM conversations
		 WHERE user_id = $1
		 ORDER BY updated_at DESC
		 LIMIT $2 OFFSET $3`,
		userID, limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations for user %q: %w", userID, err)
	}
	defer rows.Close()

	var conversations []*Conversation
	for rows.Next() {
		var c Conversation
		var titre *string
		if err := rows.Scan(&c.ID, &c.UserID, &c.ClientID, &titre, &c.MessageCount, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan conversation: %w", err)
		}
		if titre != nil {
			c.Titre = *titre
		}
		conversations = append(conversations, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read conversations: %w", err)
	}

	s.logger.Debug("listed conversations", "user_id", userID, "count", len(conversations))
	return conversations, nil
}

// RecentMessages returns the last limit messages of a conversation,
// oldest first. This is the history window the pipeline feeds back to
// the models.
func (s *Store) RecentMessages(ctx context.Context, conversationID uuid.UUID, limit int32) ([]Message, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, conversation_id, role, content, metadata, created_at FROM (
		     SELECT id, conversation_id, role, content, metadata, created_at
		     FROM conversation_messages
		     WHERE conversation_id = $1
		     ORDER BY created_at DESC
		     LIMIT $2
		 ) latest
		 ORDER BY created_at ASC`,
		conversationID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get messages for conversation %s: %w", conversationID, err)
	}
	defer rows.Close()

	return s.scanMessages(rows)
}

// Messages returns up to limit messages of a conversation from the
// beginning, oldest first. Used by the conversation read API.
func (s *Store) Messages(ctx context.Context, conversationID uuid.UUID, limit int32) ([]Message, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, conversation_id, role, content, metadata, created_at
		 FROM conversation_messages
		 WHERE conversation_id = $1
		 ORDER BY created_at ASC
		 LIMIT $2`,
		conversationID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get messages for conversation %s: %w", conversationID, err)
	}
	defer rows.Close()

	return s.scanMessages(rows)
}

func (s *Store) scanMessages(rows pgx.Rows) ([]Message, error) {
	var messages []Message
	for rows.Next() {
		var m Message
		var metadataJSON []byte
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.Role, &m.Content, &metadataJSON, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		if err := json.Unmarshal(metadataJSON, &m.Metadata); err != nil {
			s.logger.Warn("failed to unmarshal message metadata", "message_id", m.ID, "error", err)
			m.Metadata = map[string]any{}
		}
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read messages: %w", err)
	}
	return messages, nil
}

// AppendTurn appends the user question and the assistant answer as one
// atomic unit and updates the conversation counters. Either both
// messages are written or neither is.
//
// The conversation row is locked for the duration of the transaction,
// serializing concurrent appends to the same conversation. The user
// message is inserted first; clock_timestamp() defaults guarantee
// distinct, increasing created_at values within the transaction.
//
// titreIfEmpty, when non-empty, becomes the conversation title if none
// is set yet (lazily derived from the first question).
func (s *Store) AppendTurn(ctx context.Context, conversationID uuid.UUID, user, assistant NewMessage, titreIfEmpty string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err := tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
			s.logger.Debug("transaction rollback", "error", err)
		}
	}()

	var locked uuid.UUID
	err = tx.QueryRow(ctx,
		`SELECT id FROM conversations WHERE id = $1 FOR UPDATE`,
		conversationID,
	).Scan(&locked)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("%w: %s", ErrNotFound, conversationID)
		}
		return fmt.Errorf("failed to lock conversation: %w", err)
	}

	for _, msg := range []NewMessage{user, assistant} {
		metadataJSON, err := json.Marshal(orEmpty(msg.Metadata))
		if err != nil {
			return fmt.Errorf("failed to marshal message metadata: %w", err)
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO conversation_messages (conversation_id, role, content, metadata)
			 VALUES ($1, $2, $3, $4)`,
			conversationID, msg.Role, msg.Content, metadataJSON,
		); err != nil {
			return fmt.Errorf("failed to insert %s message: %w", msg.Role, err)
		}
	}

	var titre *string
	if t := truncateTitre(titreIfEmpty); t != "" {
		titre = &t
	}
	if _, err := tx.Exec(ctx,
		`UPDATE conversations
		 SET message_count = message_count + 2,
		     updated_at = now(),
		     titre = COALESCE(titre, $2)
		 WHERE id = $1`,
		conversationID, titre,
	); err != nil {
		return fmt.Errorf("failed to update conversation: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.logger.Debug("appended turn", "conversation_id", conversationID)
	return nil
}

func orEmpty(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}

// truncateTitre bounds a derived title to maxTitreRunes runes.
func truncateTitre(s string) string {
	if utf8.RuneCountInString(s) <= maxTitreRunes {
		return s
	}
	runes := []rune(s)
	return string(runes[:maxTitreRunes])
}
