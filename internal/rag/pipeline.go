package rag

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/badreddinehallia/veille/internal/client"
	"github.com/badreddinehallia/veille/internal/conversation"
	"github.com/badreddinehallia/veille/internal/llm"
	"github.com/badreddinehallia/veille/internal/rapport"
)

// ClientDirectory resolves the client profile a user queries on behalf of.
type ClientDirectory interface {
	ByUserID(ctx context.Context, userID string) (*client.Client, error)
}

// ConversationStore is the slice of conversation persistence the
// pipeline needs: create, read recent history, append one full turn.
type ConversationStore interface {
	Create(ctx context.Context, userID string, clientID uuid.UUID) (uuid.UUID, error)
	RecentMessages(ctx context.Context, conversationID uuid.UUID, limit int32) ([]conversation.Message, error)
	AppendTurn(ctx context.Context, conversationID uuid.UUID, user, assistant conversation.NewMessage, titreIfEmpty string) error
}

// ChunkSearcher performs client-scoped vector search over report chunks.
type ChunkSearcher interface {
	Search(ctx context.Context, embedding []float32, clientID uuid.UUID, floor float64, limit int32) ([]rapport.Candidate, error)
}

// Options tune retrieval breadth and history depth. Zero values are
// replaced by the defaults the product shipped with.
type Options struct {
	MatchThreshold float64
	MatchCount     int32
	MaxSources     int
	HistoryLimit   int32
	ModelName      string
}

func (o *Options) applyDefaults() {
	if o.MatchThreshold == 0 {
		o.MatchThreshold = 0.2
	}
	if o.MatchCount == 0 {
		o.MatchCount = 30
	}
	if o.MaxSources == 0 {
		o.MaxSources = 5
	}
	if o.HistoryLimit == 0 {
		o.HistoryLimit = 10
	}
	if o.ModelName == "" {
		o.ModelName = "gpt-4o-mini"
	}
}

// Request is one question against a user's report corpus.
// ConversationID is uuid.Nil for a fresh conversation.
type Request struct {
	Question       string
	UserID         string
	ConversationID uuid.UUID
}

// Response is the completed turn.
type Response struct {
	Answer         string           `json:"answer"`
	ConversationID uuid.UUID        `json:"conversation_id"`
	Sources        []SourceCitation `json:"sources"`
	HasHistory     bool             `json:"has_history"`
}

// Pipeline executes query turns end to end.
type Pipeline struct {
	chat          llm.ChatModel
	embedder      llm.Embedder
	clients       ClientDirectory
	conversations ConversationStore
	chunks        ChunkSearcher
	opts          Options
	locks         *lockRegistry
	logger        *slog.Logger
}

// New wires a Pipeline. opts fields left zero take product defaults.
func New(chat llm.ChatModel, embedder llm.Embedder, clients ClientDirectory, conversations ConversationStore, chunks ChunkSearcher, opts Options, logger *slog.Logger) *Pipeline {
	opts.applyDefaults()
	return &Pipeline{
		chat:          chat,
		embedder:      embedder,
		clients:       clients,
		conversations: conversations,
		chunks:        chunks,
		opts:          opts,
		locks:         newLockRegistry(),
		logger:        logger,
	}
}

// turnTimeout bounds one whole turn. Retrying instead would risk
// duplicate persisted messages.
const turnTimeout = 90 * time.Second

// Query runs one full turn: resolve, recall, reformulate, retrieve,
// filter, generate, reconcile, persist. On success both messages of the
// turn are durably stored; on error nothing is.
func (p *Pipeline) Query(ctx context.Context, req Request) (*Response, error) {
	ctx, cancel := context.WithTimeout(ctx, turnTimeout)
	defer cancel()

	question := strings.TrimSpace(req.Question)
	if question == "" {
		return nil, fmt.Errorf("%w: question is required", ErrInvalidInput)
	}
	if strings.TrimSpace(req.UserID) == "" {
		return nil, fmt.Errorf("%w: user_id is required", ErrInvalidInput)
	}

	cl, err := p.clients.ByUserID(ctx, req.UserID)
	if err != nil {
		if errors.Is(err, client.ErrNotFound) {
			return nil, fmt.Errorf("%w: user %s", ErrClientNotFound, req.UserID)
		}
		return nil, fmt.Errorf("%w: resolving client: %v", ErrUpstream, err)
	}

	conversationID := req.ConversationID
	var history []conversation.Message
	if conversationID != uuid.Nil {
		release := p.locks.acquire(conversationID)
		defer release()

		history, err = p.conversations.RecentMessages(ctx, conversationID, p.opts.HistoryLimit)
		if err != nil {
			// Degrade like a first turn; a bad conversation id still
			// fails fast at append time.
			p.logger.Warn("history load failed, continuing without",
				"conversation_id", conversationID, "error", err)
			history = nil
		}
	} else {
		conversationID, err = p.conversations.Create(ctx, req.UserID, cl.ID)
		if err != nil {
			return nil, fmt.Errorf("%w: creating conversation: %v", ErrUpstream, err)
		}
		release := p.locks.acquire(conversationID)
		defer release()
	}
	hasHistory := len(history) > 0

	// The reformulated question drives retrieval only; the answer
	// prompt keeps the user's own wording.
	effective := Reformulate(ctx, p.chat, question, history)
	if effective != question {
		p.logger.Debug("question reformulated", "original", question, "reformulated", effective)
	}

	embedding, err := p.embedder.Embed(ctx, effective)
	if err != nil {
		return nil, fmt.Errorf("%w: embedding question: %v", ErrUpstream, err)
	}

	candidates, err := p.chunks.Search(ctx, embedding, cl.ID, p.opts.MatchThreshold, p.opts.MatchCount)
	if err != nil {
		return nil, fmt.Errorf("%w: searching chunks: %v", ErrUpstream, err)
	}
	p.logger.Debug("retrieved candidates", "count", len(candidates), "client_id", cl.ID)

	outcome := Filter(ctx, p.chat, effective, candidates, p.opts.MaxSources)
	switch outcome.Verdict {
	case VerdictEmpty:
		p.logger.Info("relevance filter kept no sources", "candidates", len(candidates))
	case VerdictUnparseable:
		p.logger.Warn("relevance filter degraded to similarity ranking", "kept", len(outcome.Kept))
	}

	answer, err := Generate(ctx, p.chat, question, history, outcome.Kept)
	if err != nil {
		return nil, err
	}

	citations := CiteUsed(answer, outcome.Kept)

	// The turn is complete; a dropped connection must not leave a
	// question without its answer.
	persistCtx := context.WithoutCancel(ctx)
	now := time.Now().UTC().Format(time.RFC3339)
	userMsg := conversation.NewMessage{
		Role:    conversation.RoleUser,
		Content: question,
		Metadata: map[string]any{
			"chunks_found": len(candidates),
			"timestamp":    now,
		},
	}
	assistantMsg := conversation.NewMessage{
		Role:    conversation.RoleAssistant,
		Content: answer,
		Metadata: map[string]any{
			"model":                   p.opts.ModelName,
			"sources_count":           len(citations),
			"total_sources_available": len(outcome.Kept),
			"total_chunks_found":      len(candidates),
			"timestamp":               now,
			"sources":                 citations,
		},
	}
	if err := p.conversations.AppendTurn(persistCtx, conversationID, userMsg, assistantMsg, question); err != nil {
		if errors.Is(err, conversation.ErrNotFound) {
			return nil, fmt.Errorf("%w: unknown conversation %s", ErrInvalidInput, conversationID)
		}
		return nil, fmt.Errorf("%w: persisting turn: %v", ErrUpstream, err)
	}

	p.logger.Info("turn completed",
		"conversation_id", conversationID,
		"chunks_found", len(candidates),
		"sources_used", len(citations),
		"has_history", hasHistory)

	return &Response{
		Answer:         answer,
		ConversationID: conversationID,
		Sources:        citations,
		HasHistory:     hasHistory,
	}, nil
}
