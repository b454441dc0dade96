package rag

import (
	"context"
	"sync"

	"github.com/badreddinehallia/veille/internal/llm"
)

// fakeChat records every request and delegates to a per-test handler.
type fakeChat struct {
	mu       sync.Mutex
	requests []llm.ChatRequest
	handler  func(req llm.ChatRequest) (string, error)
}

func (f *fakeChat) Chat(_ context.Context, req llm.ChatRequest) (string, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()
	return f.handler(req)
}

func (f *fakeChat) recorded() []llm.ChatRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]llm.ChatRequest(nil), f.requests...)
}

// lastUserContent returns the user message of the most recent request.
func (f *fakeChat) lastUserContent() string {
	reqs := f.recorded()
	if len(reqs) == 0 {
		return ""
	}
	msgs := reqs[len(reqs)-1].Messages
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == llm.RoleUser {
			return msgs[i].Content
		}
	}
	return ""
}

type fakeEmbedder struct {
	mu     sync.Mutex
	inputs []string
	vector []float32
	err    error
}

func (f *fakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	f.mu.Lock()
	f.inputs = append(f.inputs, text)
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	if f.vector != nil {
		return f.vector, nil
	}
	return []float32{0.1, 0.2, 0.3}, nil
}
