package rag

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/badreddinehallia/veille/internal/llm"
	"github.com/badreddinehallia/veille/internal/rapport"
)

const (
	filterTemperature = 0.2
	filterMaxTokens   = 300
	excerptRunes      = 300
)

// FilterVerdict classifies what the relevance filter decided.
type FilterVerdict int

const (
	// VerdictSelected means the model returned a non-empty ranked
	// selection of source indices.
	VerdictSelected FilterVerdict = iota

	// VerdictEmpty means the model deliberately selected nothing,
	// typically because no source matches a date named in the
	// question. The pipeline honors it and answers without sources.
	VerdictEmpty

	// VerdictUnparseable means the model call failed or its reply was
	// not usable JSON. The pipeline degrades to ranking by similarity.
	VerdictUnparseable
)

// FilterOutcome is the result of one relevance evaluation: the verdict
// plus the candidates kept, already reordered by the model's ranking
// and capped at the source limit.
type FilterOutcome struct {
	Verdict FilterVerdict
	Kept    []rapport.Candidate
}

const filterSystemPrompt = "Tu es un assistant expert qui évalue la pertinence de documents. Tu réponds uniquement en JSON."

// Filter asks the chat model which candidates are relevant to the
// question and returns them in the model's preferred order, at most
// maxSources of them. It never returns an error: every failure mode
// degrades to the top maxSources candidates by similarity.
func Filter(ctx context.Context, model llm.ChatModel, question string, candidates []rapport.Candidate, maxSources int) FilterOutcome {
	if len(candidates) == 0 {
		return FilterOutcome{Verdict: VerdictEmpty}
	}

	raw, err := model.Chat(ctx, llm.ChatRequest{
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: filterSystemPrompt},
			{Role: llm.RoleUser, Content: buildFilterPrompt(question, candidates, maxSources)},
		},
		Temperature: filterTemperature,
		MaxTokens:   filterMaxTokens,
	})
	if err != nil {
		return FilterOutcome{Verdict: VerdictUnparseable, Kept: topBySimilarity(candidates, maxSources)}
	}

	indices, ok := parseRelevantIndices(raw)
	if !ok {
		return FilterOutcome{Verdict: VerdictUnparseable, Kept: topBySimilarity(candidates, maxSources)}
	}
	if len(indices) == 0 {
		return FilterOutcome{Verdict: VerdictEmpty}
	}

	kept := make([]rapport.Candidate, 0, maxSources)
	for _, idx := range indices {
		if idx < 0 || idx >= len(candidates) {
			continue
		}
		kept = append(kept, candidates[idx])
		if len(kept) == maxSources {
			break
		}
	}
	if len(kept) == 0 {
		// Every index was out of range, which is as unusable as bad JSON.
		return FilterOutcome{Verdict: VerdictUnparseable, Kept: topBySimilarity(candidates, maxSources)}
	}
	return FilterOutcome{Verdict: VerdictSelected, Kept: kept}
}

func buildFilterPrompt(question string, candidates []rapport.Candidate, maxSources int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Tu es un assistant expert qui évalue la pertinence de sources documentaires par rapport à une question.\n\n")
	fmt.Fprintf(&b, "Question de l'utilisateur : %q\n\n", question)
	b.WriteString("Sources disponibles :\n")
	for i, c := range candidates {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "[%d] Titre: %s | Date: %s\nExtrait: %s",
			i, c.Chunk.Metadata.Titre, frenchDate(c.Chunk.Metadata.DateRapport), excerpt(c.Chunk.Text))
	}
	fmt.Fprintf(&b, `

Instructions CRITIQUES :
1. Si la question mentionne une date spécifique (ex: "14 novembre", "17 novembre"), tu DOIS sélectionner UNIQUEMENT les sources dont la date correspond EXACTEMENT
   - "14 novembre" → Sélectionne SEULEMENT les sources du "14 novembre" (ou "14/11" ou "2025-11-14")
   - "17 novembre" → Sélectionne SEULEMENT les sources du "17 novembre"
   - Si AUCUNE source ne correspond à la date demandée, retourne un tableau vide []

2. Si la question ne mentionne PAS de date spécifique, évalue la pertinence thématique du contenu

3. Retourne UNIQUEMENT un tableau JSON avec les indices des sources pertinentes (maximum %d sources)

4. Classe-les par ordre de pertinence (le plus pertinent en premier)

Format de réponse (JSON uniquement, sans texte supplémentaire) :
{"relevant_indices": [2, 5, 1]}`, maxSources)
	return b.String()
}

// parseRelevantIndices extracts the selection from the model's reply,
// tolerating markdown code fences around the JSON object.
func parseRelevantIndices(raw string) ([]int, bool) {
	cleaned := strings.ReplaceAll(raw, "```json", "")
	cleaned = strings.ReplaceAll(cleaned, "```", "")
	cleaned = strings.TrimSpace(cleaned)

	var parsed struct {
		RelevantIndices []int `json:"relevant_indices"`
	}
	if err := json.Unmarshal([]byte(cleaned), &parsed); err != nil {
		return nil, false
	}
	return parsed.RelevantIndices, true
}

func topBySimilarity(candidates []rapport.Candidate, maxSources int) []rapport.Candidate {
	// Retrieval already orders by distance, so the head is the top.
	if len(candidates) > maxSources {
		candidates = candidates[:maxSources]
	}
	return candidates
}

// frenchDate renders an ISO date as dd/mm/yyyy. Values that do not
// parse are passed through untouched.
func frenchDate(iso string) string {
	for _, layout := range []string{"2006-01-02", time.RFC3339} {
		if t, err := time.Parse(layout, iso); err == nil {
			return t.Format("02/01/2006")
		}
	}
	return iso
}

func excerpt(text string) string {
	if utf8.RuneCountInString(text) <= excerptRunes {
		return text
	}
	runes := []rune(text)
	return string(runes[:excerptRunes]) + "..."
}
