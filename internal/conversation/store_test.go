package conversation

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/badreddinehallia/veille/internal/log"
	"github.com/badreddinehallia/veille/internal/testutil"
)

func insertClient(t *testing.T, db *testutil.TestDB, userID string) uuid.UUID {
	t.Helper()
	var id uuid.UUID
	err := db.Pool.QueryRow(context.Background(),
		`INSERT INTO clients (user_id, nom) VALUES ($1, $2) RETURNING id`,
		userID, "Client "+userID,
	).Scan(&id)
	require.NoError(t, err)
	return id
}

func turn(question, answer string) (NewMessage, NewMessage) {
	return NewMessage{Role: RoleUser, Content: question, Metadata: map[string]any{"chunks_found": 3}},
		NewMessage{Role: RoleAssistant, Content: answer, Metadata: map[string]any{"model": "gpt-4o-mini"}}
}

func TestStoreIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container-backed test in short mode")
	}
	db := testutil.SetupTestDB(t)
	store := New(db.Pool, log.NewNop())
	ctx := context.Background()
	clientID := insertClient(t, db, "user-conv")

	t.Run("create and get", func(t *testing.T) {
		id, err := store.Create(ctx, "user-conv", clientID)
		require.NoError(t, err)

		c, err := store.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, "user-conv", c.UserID)
		assert.Equal(t, clientID, c.ClientID)
		assert.Empty(t, c.Titre)
		assert.Zero(t, c.MessageCount)
	})

	t.Run("get unknown", func(t *testing.T) {
		_, err := store.Get(ctx, uuid.New())
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("append turn round-trip", func(t *testing.T) {
		id, err := store.Create(ctx, "user-conv", clientID)
		require.NoError(t, err)

		user, assistant := turn("Quelles tendances ?", "Trois tendances [1].")
		require.NoError(t, store.AppendTurn(ctx, id, user, assistant, "Quelles tendances ?"))

		messages, err := store.Messages(ctx, id, 50)
		require.NoError(t, err)
		require.Len(t, messages, 2)
		assert.Equal(t, RoleUser, messages[0].Role)
		assert.Equal(t, "Quelles tendances ?", messages[0].Content)
		assert.Equal(t, RoleAssistant, messages[1].Role)
		// clock_timestamp defaults keep in-transaction inserts ordered.
		assert.True(t, messages[0].CreatedAt.Before(messages[1].CreatedAt))
		assert.Equal(t, float64(3), messages[0].Metadata["chunks_found"])
		assert.Equal(t, "gpt-4o-mini", messages[1].Metadata["model"])

		c, err := store.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, 2, c.MessageCount)
		assert.Equal(t, "Quelles tendances ?", c.Titre)

		// Reads do not mutate anything.
		again, err := store.Messages(ctx, id, 50)
		require.NoError(t, err)
		assert.Equal(t, messages, again)
	})

	t.Run("titre set once and truncated", func(t *testing.T) {
		id, err := store.Create(ctx, "user-conv", clientID)
		require.NoError(t, err)

		long := strings.Repeat("é", 100)
		user, assistant := turn(long, "Réponse.")
		require.NoError(t, store.AppendTurn(ctx, id, user, assistant, long))

		c, err := store.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, strings.Repeat("é", 80), c.Titre)

		user2, assistant2 := turn("suite ?", "Suite.")
		require.NoError(t, store.AppendTurn(ctx, id, user2, assistant2, "suite ?"))

		c, err = store.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, strings.Repeat("é", 80), c.Titre, "titre must not change after the first turn")
		assert.Equal(t, 4, c.MessageCount)
	})

	t.Run("recent messages windows from the tail", func(t *testing.T) {
		id, err := store.Create(ctx, "user-conv", clientID)
		require.NoError(t, err)

		for i := 1; i <= 4; i++ {
			user, assistant := turn(fmt.Sprintf("q%d", i), fmt.Sprintf("a%d", i))
			require.NoError(t, store.AppendTurn(ctx, id, user, assistant, "q1"))
		}

		recent, err := store.RecentMessages(ctx, id, 4)
		require.NoError(t, err)
		require.Len(t, recent, 4)
		assert.Equal(t, "q3", recent[0].Content)
		assert.Equal(t, "a3", recent[1].Content)
		assert.Equal(t, "q4", recent[2].Content)
		assert.Equal(t, "a4", recent[3].Content)
	})

	t.Run("append to unknown conversation", func(t *testing.T) {
		user, assistant := turn("q", "a")
		err := store.AppendTurn(ctx, uuid.New(), user, assistant, "q")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("list by user newest activity first", func(t *testing.T) {
		otherClient := insertClient(t, db, "user-list")

		first, err := store.Create(ctx, "user-list", otherClient)
		require.NoError(t, err)
		second, err := store.Create(ctx, "user-list", otherClient)
		require.NoError(t, err)

		// Touch the older conversation so it becomes the most recent.
		user, assistant := turn("q", "a")
		require.NoError(t, store.AppendTurn(ctx, first, user, assistant, "q"))

		list, err := store.ListByUser(ctx, "user-list", 10, 0)
		require.NoError(t, err)
		require.Len(t, list, 2)
		assert.Equal(t, first, list[0].ID)
		assert.Equal(t, second, list[1].ID)
	})
}
