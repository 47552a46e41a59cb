//go:build integration

package audit

import (
	"context"
	"database/sql"
	"testing"
	"time"

	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"duffel/pkg/model"
	"duffel/pkg/testutil/containers"
)

func TestPostgresStore(t *testing.T) {
	pg := containers.NewPostgresContainer(t)

	db, err := sql.Open("postgres", pg.DSN)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	store := NewPostgresStore(db)
	ctx := context.Background()
	require.NoError(t, store.EnsureSchema(ctx))

	listID := model.NewListID()
	other := model.NewListID()

	var entries []Entry
	for i := range 5 {
		entry, err := EntryOf(testEvent(listID, uint64(i+1)))
		require.NoError(t, err)
		entries = append(entries, entry)
		require.NoError(t, store.Append(ctx, entry))
	}
	otherEntry, err := EntryOf(testEvent(other, 1))
	require.NoError(t, err)
	require.NoError(t, store.Append(ctx, otherEntry))

	t.Run("newest first with limit", func(t *testing.T) {
		got, err := store.ListByList(ctx, listID, 3)
		require.NoError(t, err)
		require.Len(t, got, 3)
		assert.Equal(t, uint64(5), got[0].Seq)
		assert.Equal(t, uint64(4), got[1].Seq)
		assert.Equal(t, uint64(3), got[2].Seq)
	})

	t.Run("round trips fields", func(t *testing.T) {
		got, err := store.ListByList(ctx, listID, 10)
		require.NoError(t, err)
		require.Len(t, got, 5)

		last := got[0]
		want := entries[4]
		assert.Equal(t, want.ID, last.ID)
		assert.Equal(t, want.ListID, last.ListID)
		assert.Equal(t, want.ActorID, last.ActorID)
		assert.Equal(t, want.Action, last.Action)
		assert.Equal(t, want.EntityID, last.EntityID)
		assert.JSONEq(t, string(want.Payload), string(last.Payload))
		// timestamptz keeps microseconds
		assert.WithinDuration(t, want.At, last.At, time.Microsecond)
	})

	t.Run("append is idempotent", func(t *testing.T) {
		require.NoError(t, store.Append(ctx, entries[0]))

		got, err := store.ListByList(ctx, listID, 10)
		require.NoError(t, err)
		assert.Len(t, got, 5)
	})

	t.Run("scoped to list", func(t *testing.T) {
		got, err := store.ListByList(ctx, other, 10)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, otherEntry.ID, got[0].ID)
	})
}
