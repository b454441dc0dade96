package rapport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

// searchTimeout bounds a single vector search so a slow query cannot
// hold the whole pipeline.
const searchTimeout = 10 * time.Second

// Store searches report chunks by vector similarity using
// PostgreSQL + pgvector.
//
// Store is safe for concurrent use by multiple goroutines.
type Store struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// New creates a new Store instance.
func New(pool *pgxpool.Pool, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{pool: pool, logger: logger}
}

// Search returns the chunks of the given client most similar to the
// query embedding, best first. Similarity is cosine-derived in [0,1];
// only candidates strictly above floor are returned, at most limit.
func (s *Store) Search(ctx context.Context, embedding []float32, clientID uuid.UUID, floor float64, limit int32) ([]Candidate, error) {
	queryCtx, cancel := context.WithTimeout(ctx, searchTimeout)
	defer cancel()

	vec := pgvector.NewVector(embedding)
	rows, err := s.pool.Query(queryCtx,
		`SELECT id, rapport_id, client_id, chunk_text, metadata,
		        1 - (embedding <=> $1) AS similarity
		 FROM rapport_chunks
		 WHERE client_id = $2
		   AND embedding IS NOT NULL
		   AND 1 - (embedding <=> $1) > $3
		 ORDER BY embedding <=> $1
		 LIMIT $4`,
		vec, clientID, floor, limit,
	)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("vector search timeout: %w", err)
		}
		return nil, fmt.Errorf("vector search failed: %w", err)
	}
	defer rows.Close()

	var candidates []Candidate
	for rows.Next() {
		var c Candidate
		var metadataJSON []byte
		if err := rows.Scan(&c.Chunk.ID, &c.Chunk.RapportID, &c.Chunk.ClientID,
			&c.Chunk.Text, &metadataJSON, &c.Similarity); err != nil {
			return nil, fmt.Errorf("failed to scan chunk: %w", err)
		}
		if err := json.Unmarshal(metadataJSON, &c.Chunk.Metadata); err != nil {
			s.logger.Warn("failed to parse chunk metadata", "chunk_id", c.Chunk.ID, "error", err)
		}
		candidates = append(candidates, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read search results: %w", err)
	}

	s.logger.Debug("vector search",
		"client_id", clientID, "floor", floor, "limit", limit, "found", len(candidates))
	return candidates, nil
}

// Insert stores a chunk with its embedding. The indexing path owns
// chunk production; Insert exists for that path and for tests.
func (s *Store) Insert(ctx context.Context, chunk Chunk, embedding []float32) error {
	metadataJSON, err := json.Marshal(chunk.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal chunk metadata: %w", err)
	}

	vec := pgvector.NewVector(embedding)
	if _, err := s.pool.Exec(ctx,
		`INSERT INTO rapport_chunks (rapport_id, client_id, chunk_text, metadata, embedding)
		 VALUES ($1, $2, $3, $4, $5)`,
		chunk.RapportID, chunk.ClientID, chunk.Text, metadataJSON, vec,
	); err != nil {
		return fmt.Errorf("failed to insert chunk: %w", err)
	}

	return nil
}
