package rag

import (
	"context"
	"fmt"
	"strings"

	"github.com/badreddinehallia/veille/internal/conversation"
	"github.com/badreddinehallia/veille/internal/llm"
	"github.com/badreddinehallia/veille/internal/rapport"
)

const (
	answerTemperature = 0.7
	answerMaxTokens   = 1500
)

// Generate produces the cited answer for one turn. The prompt regime
// depends on what the turn has to work with:
//
//   - Sources present: the system prompt mandates [n] citations and the
//     user message carries the numbered context blocks.
//   - No sources, but history: follow-up regime, citations forbidden,
//     the model answers from the prior exchange.
//   - Neither: the model is told plainly that no relevant context
//     exists.
//
// The question passed here is the user's original wording; the
// reformulated variant only drives retrieval.
func Generate(ctx context.Context, model llm.ChatModel, question string, history []conversation.Message, sources []rapport.Candidate) (string, error) {
	messages := []llm.Message{{Role: llm.RoleSystem, Content: answerSystemPrompt(sources)}}
	for _, msg := range history {
		messages = append(messages, llm.Message{Role: msg.Role, Content: msg.Content})
	}
	messages = append(messages, llm.Message{Role: llm.RoleUser, Content: answerUserMessage(question, sources, len(history) > 0)})

	answer, err := model.Chat(ctx, llm.ChatRequest{
		Messages:    messages,
		Temperature: answerTemperature,
		MaxTokens:   answerMaxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("%w: answer generation: %v", ErrUpstream, err)
	}
	return answer, nil
}

func answerSystemPrompt(sources []rapport.Candidate) string {
	if len(sources) == 0 {
		return `Tu es un assistant spécialisé dans l'analyse de veilles concurrentielles et technologiques.

**Contexte** :
Cette question est une question de suivi dans une conversation en cours. Aucune nouvelle source n'est disponible.

**Instructions** :
- Base-toi sur l'historique de notre conversation ci-dessus pour répondre
- NE METS AUCUNE RÉFÉRENCE [1], [2], etc. car il n'y a pas de nouvelles sources
- Réponds en te basant sur ce que tu as déjà expliqué précédemment
- Clarifie, détaille ou approfondit tes réponses précédentes selon la question
- Réponds de manière claire, structurée et professionnelle
- Utilise des bullet points pour les listes
- Sois concis mais complet`
	}

	var legend strings.Builder
	legend.WriteString("\n\n**Sources disponibles pour citation** :\n")
	for i, s := range sources {
		if i > 0 {
			legend.WriteByte('\n')
		}
		fmt.Fprintf(&legend, "[%d] %s (%s)", i+1, s.Chunk.Metadata.Titre, frenchDate(s.Chunk.Metadata.DateRapport))
	}

	return fmt.Sprintf(`Tu es un assistant spécialisé dans l'analyse de veilles concurrentielles et technologiques.

**Sources d'information** :
Tu disposes de %d sources pré-sélectionnées. Utilise UNIQUEMENT les sources pertinentes pour répondre à la question.

**Instructions CRITIQUES pour les citations** :
- OBLIGATOIRE : Cite les sources pertinentes en utilisant des références numérotées [1], [2], etc.
- Chaque source dans le contexte est marquée **SOURCE [X]**
- Place la référence [numéro] IMMÉDIATEMENT après chaque information citée
- Exemple : "OpenAI a amélioré ChatGPT [1]" ou "Les entreprises investissent massivement [2]"
- JAMAIS écrire : "selon le rapport" ou "(Rapport, 18 novembre)" - TOUJOURS utiliser [1], [2], [3], etc.
- N'utilise QUE les sources qui répondent réellement à la question
- Si une seule source suffit pour répondre complètement, utilise seulement celle-ci

**Autres instructions** :
- Réponds de manière claire, structurée et professionnelle
- Utilise des bullet points pour les listes
- Sois concis mais complet
- Si tu ne peux pas répondre avec les informations disponibles, dis-le clairement%s`,
		len(sources), legend.String())
}

func answerUserMessage(question string, sources []rapport.Candidate, hasHistory bool) string {
	if len(sources) > 0 {
		blocks := make([]string, len(sources))
		for i, s := range sources {
			blocks[i] = fmt.Sprintf("**SOURCE [%d]** - %s (%s)\n%s",
				i+1, s.Chunk.Metadata.Titre, frenchDate(s.Chunk.Metadata.DateRapport), s.Chunk.Text)
		}
		return fmt.Sprintf("Contexte (extraits de rapports de veille) :\n\n%s\n\n---\n\nQuestion : %s",
			strings.Join(blocks, "\n\n---\n\n"), question)
	}
	if hasHistory {
		return fmt.Sprintf("Question : %s\n\n(Note : Cette question semble être une question de suivi. Aucun nouveau contexte trouvé dans les rapports. Réfère-toi à l'historique de notre conversation ci-dessus pour répondre.)", question)
	}
	return fmt.Sprintf("Question : %s\n\n(Note : Aucun contexte pertinent trouvé dans les rapports pour cette question.)", question)
}
