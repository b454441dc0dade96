package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/badreddinehallia/veille/internal/conversation"
)

const (
	defaultListLimit     = 20
	maxListLimit         = 100
	defaultMessagesLimit = 50
	maxMessagesLimit     = 500
)

// ConversationReader is the read-only slice of the conversation store
// the HTTP surface needs.
type ConversationReader interface {
	ListByUser(ctx context.Context, userID string, limit, offset int32) ([]*conversation.Conversation, error)
	Messages(ctx context.Context, conversationID uuid.UUID, limit int32) ([]conversation.Message, error)
}

type conversationHandler struct {
	store  ConversationReader
	logger *slog.Logger
}

func (h *conversationHandler) list(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}
	limit := queryInt(r, "limit", defaultListLimit, maxListLimit)
	offset := queryInt(r, "offset", 0, 1<<30)

	conversations, err := h.store.ListByUser(r.Context(), userID, limit, offset)
	if err != nil {
		h.logger.Error("listing conversations failed", "error", err, "user_id", userID)
		writeError(w, http.StatusInternalServerError, "listing conversations failed")
		return
	}
	if conversations == nil {
		conversations = []*conversation.Conversation{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"conversations": conversations})
}

func (h *conversationHandler) messages(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "conversation id must be a UUID")
		return
	}
	limit := queryInt(r, "limit", defaultMessagesLimit, maxMessagesLimit)

	messages, err := h.store.Messages(r.Context(), id, limit)
	if err != nil {
		if errors.Is(err, conversation.ErrNotFound) {
			writeError(w, http.StatusNotFound, "conversation not found")
			return
		}
		h.logger.Error("loading messages failed", "error", err, "conversation_id", id)
		writeError(w, http.StatusInternalServerError, "loading messages failed")
		return
	}
	if messages == nil {
		messages = []conversation.Message{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": messages})
}

// queryInt parses a positive integer query parameter, falling back to
// def when absent or malformed and clamping to ceiling.
func queryInt(r *http.Request, name string, def, ceiling int32) int32 {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def
	}
	n, err := strconv.ParseInt(raw, 10, 32)
	if err != nil || n < 0 {
		return def
	}
	if int32(n) > ceiling {
		return ceiling
	}
	return int32(n)
}
