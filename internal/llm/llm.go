// Package llm provides access to the chat-completion and embedding
// models behind the query pipeline.
//
// The package exposes two small interfaces, ChatModel and Embedder,
// implemented by the OpenAI-backed Client. Consumers depend on the
// interfaces so tests can substitute scripted fakes.
package llm

import "context"

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is a single chat message sent to the model.
type Message struct {
	Role    string
	Content string
}

// ChatRequest carries one chat-completion call.
type ChatRequest struct {
	Messages    []Message
	Temperature float32
	MaxTokens   int
}

// ChatModel generates a text completion for a conversation.
type ChatModel interface {
	Chat(ctx context.Context, req ChatRequest) (string, error)
}

// Embedder turns text into a fixed-length dense vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}
