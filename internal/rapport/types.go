// Package rapport provides read access to indexed report passages
// ("chunks") and their embeddings.
//
// Chunks are produced by the upstream indexing function; the query
// pipeline treats them as read-only and searches them by vector
// similarity, always scoped to one client.
package rapport

import "github.com/google/uuid"

// ChunkMetadata is the metadata bag attached to every chunk at indexing
// time. Field names match the JSONB keys written by the indexer.
type ChunkMetadata struct {
	Titre       string  `json:"titre"`
	DateRapport string  `json:"date_rapport"`
	RapportID   string  `json:"rapport_id"`
	PDFURL      *string `json:"pdf_url,omitempty"`
}

// Chunk is a fixed-size slice of an indexed report.
type Chunk struct {
	ID        uuid.UUID
	RapportID uuid.UUID
	ClientID  uuid.UUID
	Text      string
	Metadata  ChunkMetadata
}

// Candidate is a chunk plus its similarity to a query vector, produced
// fresh per search. It has no persistent identity.
type Candidate struct {
	Chunk      Chunk
	Similarity float64
}
