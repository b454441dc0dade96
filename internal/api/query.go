package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/badreddinehallia/veille/internal/rag"
)

type queryHandler struct {
	pipeline QueryRunner
	logger   *slog.Logger
}

type queryRequest struct {
	Question       string `json:"question"`
	UserID         string `json:"user_id"`
	ConversationID string `json:"conversation_id,omitempty"`
}

func (h *queryHandler) query(w http.ResponseWriter, r *http.Request) {
	var body queryRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	req := rag.Request{
		Question: body.Question,
		UserID:   body.UserID,
	}
	if id := strings.TrimSpace(body.ConversationID); id != "" {
		parsed, err := uuid.Parse(id)
		if err != nil {
			writeError(w, http.StatusBadRequest, "conversation_id must be a UUID")
			return
		}
		req.ConversationID = parsed
	}

	resp, err := h.pipeline.Query(r.Context(), req)
	if err != nil {
		h.writeQueryError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *queryHandler) writeQueryError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, rag.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, rag.ErrClientNotFound):
		writeError(w, http.StatusNotFound, "client not found")
	default:
		h.logger.Error("query failed", "error", err)
		writeError(w, http.StatusInternalServerError, "query failed")
	}
}
