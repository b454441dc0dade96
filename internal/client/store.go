// Package client resolves the tenant ("client") owning a user's report
// corpus. Every query is scoped to one client.
package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound indicates no client record exists for the given user id.
var ErrNotFound = errors.New("client not found")

// Client is the tenant record scoping conversations and report chunks.
type Client struct {
	ID        uuid.UUID
	UserID    string
	Nom       string
	CreatedAt time.Time
}

// Store looks up client records in PostgreSQL.
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

// ByUserID returns the client owning the given user id.
// Returns ErrNotFound when no record exists.
func (s *Store) ByUserID(ctx context.Context, userID string) (*Client, error) {
	var c Client
	var nom *string
	err := s.pool.QueryRow(ctx,
		`SELECT id, user_id, nom, created_at FROM clients WHERE user_id = $1`,
		userID,
	).Scan(&c.ID, &c.UserID, &nom, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: user %q", ErrNotFound, userID)
		}
		return nil, fmt.Errorf("failed to look up client for user %q: %w", userID, err)
	}
	if nom != nil {
		c.Nom = *nom
	}

	s.logger.Debug("resolved client", "user_id", userID, "client_id", c.ID)
	return &c, nil
}

// Create inserts a client record. Used by provisioning and tests; the
// query pipeline itself only reads.
func (s *Store) Create(ctx context.Context, userID, nom string) (*Client, error) {
	var c Client
	var nomPtr *string
	if nom != "" {
		nomPtr = &nom
	}
	err := s.pool.QueryRow(ctx,
		`INSERT INTO clients (user_id, nom) VALUES ($1, $2)
		 RETURNING id, user_id, created_at`,
		userID, nomPtr,
	).Scan(&c.ID, &c.UserID, &c.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create client for user %q: %w", userID, err)
	}
	c.Nom = nom
	return &c, nil
}
