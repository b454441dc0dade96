package rag

import (
	"context"
	"fmt"
	"strings"

	"github.com/badreddinehallia/veille/internal/conversation"
	"github.com/badreddinehallia/veille/internal/llm"
)

const (
	reformulateTemperature = 0.3
	reformulateMaxTokens   = 150

	// Three user/assistant pairs give the model enough context to
	// resolve references like "et pour le 17 ?".
	reformulateHistoryWindow = 6
)

const reformulateSystemPrompt = "Tu es un assistant qui reformule des questions pour les rendre autonomes et complètes."

// Reformulate rewrites a follow-up question into a standalone one using
// recent conversation history. It is best-effort: on any model failure
// or blank reply it returns the original question, never an error. With
// no history there is nothing to resolve and the question passes
// through.
func Reformulate(ctx context.Context, model llm.ChatModel, question string, history []conversation.Message) string {
	if len(history) == 0 {
		return question
	}

	recent := history
	if len(recent) > reformulateHistoryWindow {
		recent = recent[len(recent)-reformulateHistoryWindow:]
	}
	var lines []string
	for _, msg := range recent {
		lines = append(lines, fmt.Sprintf("%s: %s", msg.Role, msg.Content))
	}

	prompt := fmt.Sprintf(`Tu es un assistant qui reformule des questions en utilisant le contexte d'une conversation.

Historique de la conversation :
%s

Nouvelle question de l'utilisateur : %q

Instructions :
1. Si la question fait référence à quelque chose dans l'historique (ex: "et pour le 17?", "détaille le point 2"), reformule-la pour qu'elle soit autonome et complète
2. Si la question est déjà complète et autonome, retourne-la telle quelle
3. Garde le même sens et la même intention
4. Retourne UNIQUEMENT la question reformulée, sans texte supplémentaire

Exemples :
- Historique: "user: Quelles sont les tendances du 14 novembre?" → Question: "et pour le 17?" → Reformulation: "Quelles sont les dernières tendances pour le 17 novembre?"
- Question complète: "Quelles sont les nouvelles de l'IA?" → Reformulation: "Quelles sont les nouvelles de l'IA?"`,
		strings.Join(lines, "\n"), question)

	reply, err := model.Chat(ctx, llm.ChatRequest{
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: reformulateSystemPrompt},
			{Role: llm.RoleUser, Content: prompt},
		},
		Temperature: reformulateTemperature,
		MaxTokens:   reformulateMaxTokens,
	})
	if err != nil {
		return question
	}
	reformulated := strings.TrimSpace(reply)
	if reformulated == "" {
		return question
	}
	return reformulated
}
