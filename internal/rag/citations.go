package rag

import (
	"fmt"
	"strings"

	"github.com/badreddinehallia/veille/internal/rapport"
)

// SourceCitation describes one report chunk the generated answer cited.
// SourceNumber is the ordinal used in the answer text ([1], [2], ...),
// kept stable even when earlier sources went uncited.
type SourceCitation struct {
	SourceNumber int     `json:"source_number"`
	Titre        string  `json:"titre"`
	Date         string  `json:"date"`
	Excerpt      string  `json:"excerpt"`
	RapportID    string  `json:"rapport_id"`
	PDFURL       *string `json:"url_pdf"`
	Similarity   float64 `json:"similarity"`
}

// UsedMarkers reports which of the 1-based markers [1]..[n] appear
// literally in the answer text, in ascending order.
func UsedMarkers(answer string, n int) []int {
	var used []int
	for i := 1; i <= n; i++ {
		if strings.Contains(answer, fmt.Sprintf("[%d]", i)) {
			used = append(used, i)
		}
	}
	return used
}

// CiteUsed builds citations for the candidates whose markers the answer
// actually references. Ordinals match the numbering the answer saw, so
// a reply citing only [3] yields a single citation numbered 3.
func CiteUsed(answer string, candidates []rapport.Candidate) []SourceCitation {
	used := UsedMarkers(answer, len(candidates))
	citations := make([]SourceCitation, 0, len(used))
	for _, num := range used {
		c := candidates[num-1]
		citations = append(citations, SourceCitation{
			SourceNumber: num,
			Titre:        c.Chunk.Metadata.Titre,
			Date:         c.Chunk.Metadata.DateRapport,
			Excerpt:      c.Chunk.Text,
			RapportID:    c.Chunk.Metadata.RapportID,
			PDFURL:       c.Chunk.Metadata.PDFURL,
			Similarity:   c.Similarity,
		})
	}
	return citations
}
