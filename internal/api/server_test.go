package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/badreddinehallia/veille/internal/conversation"
	"github.com/badreddinehallia/veille/internal/log"
	"github.com/badreddinehallia/veille/internal/rag"
)

type fakePipeline struct {
	resp *rag.Response
	err  error
	got  rag.Request
}

func (f *fakePipeline) Query(_ context.Context, req rag.Request) (*rag.Response, error) {
	f.got = req
	if f.err != nil {
		return nil, f.err
	}
	return f.resp, nil
}

type fakeConversationReader struct {
	conversations []*conversation.Conversation
	messages      []conversation.Message
	err           error
}

func (f *fakeConversationReader) ListByUser(_ context.Context, _ string, _, _ int32) ([]*conversation.Conversation, error) {
	return f.conversations, f.err
}

func (f *fakeConversationReader) Messages(_ context.Context, _ uuid.UUID, _ int32) ([]conversation.Message, error) {
	return f.messages, f.err
}

type fakePinger struct{ err error }

func (f *fakePinger) Ping(context.Context) error { return f.err }

func newTestServer(t *testing.T, pipeline QueryRunner, reader ConversationReader, db Pinger) *Server {
	t.Helper()
	if pipeline == nil {
		pipeline = &fakePipeline{resp: &rag.Response{}}
	}
	if reader == nil {
		reader = &fakeConversationReader{}
	}
	srv, err := NewServer(ServerConfig{
		Pipeline:      pipeline,
		Conversations: reader,
		DB:            db,
		Logger:        log.NewNop(),
	})
	require.NoError(t, err)
	return srv
}

func doJSON(t *testing.T, srv *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	return rec
}

func TestQueryEndpoint(t *testing.T) {
	convID := uuid.New()
	pipeline := &fakePipeline{resp: &rag.Response{
		Answer:         "Réponse [1].",
		ConversationID: convID,
		Sources:        []rag.SourceCitation{{SourceNumber: 1, Titre: "Rapport"}},
		HasHistory:     true,
	}}
	srv := newTestServer(t, pipeline, nil, nil)

	rec := doJSON(t, srv, http.MethodPost, "/api/query",
		fmt.Sprintf(`{"question":"et pour le 17 ?","user_id":"user-1","conversation_id":%q}`, convID))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var resp struct {
		Answer         string           `json:"answer"`
		ConversationID uuid.UUID        `json:"conversation_id"`
		Sources        []map[string]any `json:"sources"`
		HasHistory     bool             `json:"has_history"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "Réponse [1].", resp.Answer)
	assert.Equal(t, convID, resp.ConversationID)
	assert.True(t, resp.HasHistory)
	require.Len(t, resp.Sources, 1)
	assert.Equal(t, float64(1), resp.Sources[0]["source_number"])

	assert.Equal(t, "et pour le 17 ?", pipeline.got.Question)
	assert.Equal(t, "user-1", pipeline.got.UserID)
	assert.Equal(t, convID, pipeline.got.ConversationID)
}

func TestQueryEndpointErrors(t *testing.T) {
	tests := []struct {
		name        string
		body        string
		pipelineErr error
		wantStatus  int
	}{
		{
			name:       "malformed JSON",
			body:       `{"question":`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "non-UUID conversation id",
			body:       `{"question":"q","user_id":"u","conversation_id":"not-a-uuid"}`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:        "missing question",
			body:        `{"user_id":"u"}`,
			pipelineErr: fmt.Errorf("%w: question is required", rag.ErrInvalidInput),
			wantStatus:  http.StatusBadRequest,
		},
		{
			name:        "unknown user",
			body:        `{"question":"q","user_id":"nobody"}`,
			pipelineErr: fmt.Errorf("%w: user nobody", rag.ErrClientNotFound),
			wantStatus:  http.StatusNotFound,
		},
		{
			name:        "upstream failure",
			body:        `{"question":"q","user_id":"u"}`,
			pipelineErr: fmt.Errorf("%w: embedding question: quota", rag.ErrUpstream),
			wantStatus:  http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(t, &fakePipeline{err: tt.pipelineErr}, nil, nil)
			rec := doJSON(t, srv, http.MethodPost, "/api/query", tt.body)

			assert.Equal(t, tt.wantStatus, rec.Code)
			var body map[string]string
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.NotEmpty(t, body["error"])
		})
	}
}

func TestListConversations(t *testing.T) {
	reader := &fakeConversationReader{conversations: []*conversation.Conversation{
		{ID: uuid.New(), UserID: "user-1", Titre: "Quelles tendances ?"},
	}}
	srv := newTestServer(t, nil, reader, nil)

	rec := doJSON(t, srv, http.MethodGet, "/api/conversations?user_id=user-1", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Conversations []map[string]any `json:"conversations"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Conversations, 1)
	assert.Equal(t, "Quelles tendances ?", resp.Conversations[0]["titre"])
}

func TestListConversationsRequiresUserID(t *testing.T) {
	srv := newTestServer(t, nil, nil, nil)
	rec := doJSON(t, srv, http.MethodGet, "/api/conversations", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListConversationsEmptyIsArray(t *testing.T) {
	srv := newTestServer(t, nil, &fakeConversationReader{}, nil)
	rec := doJSON(t, srv, http.MethodGet, "/api/conversations?user_id=user-1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"conversations":[]`)
}

func TestConversationMessages(t *testing.T) {
	id := uuid.New()
	reader := &fakeConversationReader{messages: []conversation.Message{
		{ID: uuid.New(), ConversationID: id, Role: "user", Content: "q"},
		{ID: uuid.New(), ConversationID: id, Role: "assistant", Content: "a", Metadata: map[string]any{"model": "gpt-4o-mini"}},
	}}
	srv := newTestServer(t, nil, reader, nil)

	rec := doJSON(t, srv, http.MethodGet, "/api/conversations/"+id.String()+"/messages", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Messages []map[string]any `json:"messages"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Messages, 2)
	assert.Equal(t, "user", resp.Messages[0]["role"])
	metadata, ok := resp.Messages[1]["metadata"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "gpt-4o-mini", metadata["model"])
}

func TestConversationMessagesBadID(t *testing.T) {
	srv := newTestServer(t, nil, nil, nil)
	rec := doJSON(t, srv, http.MethodGet, "/api/conversations/not-a-uuid/messages", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestConversationMessagesNotFound(t *testing.T) {
	srv := newTestServer(t, nil, &fakeConversationReader{err: conversation.ErrNotFound}, nil)
	rec := doJSON(t, srv, http.MethodGet, "/api/conversations/"+uuid.NewString()+"/messages", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHealthEndpoints(t *testing.T) {
	srv := newTestServer(t, nil, nil, &fakePinger{})
	rec := doJSON(t, srv, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, srv, http.MethodGet, "/ready", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestReadyFailsWhenDBDown(t *testing.T) {
	srv := newTestServer(t, nil, nil, &fakePinger{err: errors.New("down")})
	rec := doJSON(t, srv, http.MethodGet, "/ready", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestRecoveryMiddleware(t *testing.T) {
	srv := newTestServer(t, panicQuery{}, nil, nil)

	rec := doJSON(t, srv, http.MethodPost, "/api/query", `{"question":"q","user_id":"u"}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "internal server error"))
}

type panicQuery struct{}

func (panicQuery) Query(context.Context, rag.Request) (*rag.Response, error) {
	panic("boom")
}

func TestNewServerValidation(t *testing.T) {
	_, err := NewServer(ServerConfig{Conversations: &fakeConversationReader{}, Logger: log.NewNop()})
	assert.Error(t, err)

	_, err = NewServer(ServerConfig{Pipeline: &fakePipeline{}, Logger: log.NewNop()})
	assert.Error(t, err)

	_, err = NewServer(ServerConfig{Pipeline: &fakePipeline{}, Conversations: &fakeConversationReader{}})
	assert.Error(t, err)
}
