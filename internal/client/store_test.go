package client

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/badreddinehallia/veille/internal/log"
	"github.com/badreddinehallia/veille/internal/testutil"
)

func TestStoreIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container-backed test in short mode")
	}
	db := testutil.SetupTestDB(t)
	store := New(db.Pool, log.NewNop())
	ctx := context.Background()

	t.Run("create and lookup", func(t *testing.T) {
		created, err := store.Create(ctx, "auth0|user-1", "Acme SA")
		require.NoError(t, err)
		assert.NotEqual(t, created.ID.String(), "00000000-0000-0000-0000-000000000000")

		found, err := store.ByUserID(ctx, "auth0|user-1")
		require.NoError(t, err)
		assert.Equal(t, created.ID, found.ID)
		assert.Equal(t, "Acme SA", found.Nom)
		assert.False(t, found.CreatedAt.IsZero())
	})

	t.Run("unknown user", func(t *testing.T) {
		_, err := store.ByUserID(ctx, "auth0|nobody")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("duplicate user id rejected", func(t *testing.T) {
		_, err := store.Create(ctx, "auth0|user-1", "Other")
		assert.Error(t, err)
	})
}
