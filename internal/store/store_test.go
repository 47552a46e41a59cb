package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"duffel/pkg/fault"
	"duffel/pkg/model"
)

func TestMemoryStore(t *testing.T) {
	testStoreConformance(t, NewMemory())
}

// testStoreConformance exercises the Store contract. The postgres
// implementation runs the same assertions under the integration tag.
func testStoreConformance(t *testing.T, s Store) {
	ctx := context.Background()

	listID := model.NewListID()
	require.NoError(t, s.CreateList(ctx, model.List{ID: listID, Name: "alps trip"}))

	t.Run("lists", func(t *testing.T) {
		got, err := s.GetList(ctx, listID)
		require.NoError(t, err)
		assert.Equal(t, "alps trip", got.Name)
		assert.Equal(t, uint64(0), got.LastSeq)

		exists, err := s.ListExists(ctx, listID)
		require.NoError(t, err)
		assert.True(t, exists)

		exists, err = s.ListExists(ctx, model.NewListID())
		require.NoError(t, err)
		assert.False(t, exists)

		err = s.CreateList(ctx, model.List{ID: listID, Name: "dup"})
		require.ErrorIs(t, err, fault.ErrConflict)

		_, err = s.GetList(ctx, model.NewListID())
		require.ErrorIs(t, err, fault.ErrNotFound)
	})

	bag := model.Container{ID: model.NewContainerID(), ListID: listID, Kind: model.KindBag, Name: "duffel", Seq: 1}
	cat := model.Container{ID: model.NewContainerID(), ListID: listID, Kind: model.KindCategory, Name: "clothes", Seq: 2}
	require.NoError(t, s.PutContainer(ctx, bag))
	require.NoError(t, s.PutContainer(ctx, cat))

	t.Run("containers", func(t *testing.T) {
		got, err := s.GetContainer(ctx, bag.ID)
		require.NoError(t, err)
		assert.Equal(t, bag, got)

		_, err = s.GetContainer(ctx, model.NewContainerID())
		require.ErrorIs(t, err, fault.ErrContainerNotFound)

		// Renames are allowed, kind changes are not.
		renamed := bag
		renamed.Name = "big duffel"
		renamed.Seq = 3
		require.NoError(t, s.PutContainer(ctx, renamed))

		mutated := renamed
		mutated.Kind = model.KindTraveler
		require.ErrorIs(t, s.PutContainer(ctx, mutated), fault.ErrConflict)

		all, err := s.ContainersByList(ctx, listID)
		require.NoError(t, err)
		require.Len(t, all, 2)
		assert.Equal(t, model.KindBag, all[0].Kind)
		assert.Equal(t, "big duffel", all[0].Name)
	})

	t.Run("items", func(t *testing.T) {
		it := model.Item{
			ID:       model.NewItemID(),
			ListID:   listID,
			Name:     "socks",
			Quantity: 3,
			Bag:      model.RefTo(bag.ID),
			Seq:      4,
		}
		require.NoError(t, s.PutItem(ctx, it))

		got, err := s.GetItem(ctx, it.ID)
		require.NoError(t, err)
		assert.Equal(t, it, got)

		maxSeq, err := s.MaxSeq(ctx, listID)
		require.NoError(t, err)
		assert.Equal(t, uint64(4), maxSeq)

		// Replacing the item moves its state and seq.
		it.Packed = true
		it.Bag = model.Unassigned()
		it.Category = model.RefTo(cat.ID)
		it.Seq = 5
		require.NoError(t, s.PutItem(ctx, it))

		got, err = s.GetItem(ctx, it.ID)
		require.NoError(t, err)
		assert.Equal(t, it, got)

		_, err = s.GetItem(ctx, model.NewItemID())
		require.ErrorIs(t, err, fault.ErrNotFound)

		foreign := it
		foreign.ListID = model.NewListID()
		require.Error(t, s.PutItem(ctx, foreign))

		require.NoError(t, s.DeleteItem(ctx, it.ID, 6))
		_, err = s.GetItem(ctx, it.ID)
		require.ErrorIs(t, err, fault.ErrNotFound)
		require.ErrorIs(t, s.DeleteItem(ctx, it.ID, 7), fault.ErrNotFound)

		// The high-water mark survives deletion of the row that carried it.
		maxSeq, err = s.MaxSeq(ctx, listID)
		require.NoError(t, err)
		assert.Equal(t, uint64(6), maxSeq)
	})

	t.Run("item queries", func(t *testing.T) {
		mk := func(name string, seq uint64, mut func(*model.Item)) model.Item {
			it := model.Item{ID: model.NewItemID(), ListID: listID, Name: name, Quantity: 1, Seq: seq}
			if mut != nil {
				mut(&it)
			}
			require.NoError(t, s.PutItem(ctx, it))
			return it
		}
		axe := mk("axe", 10, func(it *model.Item) { it.Bag = model.RefTo(bag.ID) })
		boots := mk("boots", 11, func(it *model.Item) {
			it.Bag = model.RefTo(bag.ID)
			it.Category = model.RefTo(cat.ID)
		})
		tent := mk("tent", 12, nil)

		all, err := s.ItemsByList(ctx, listID)
		require.NoError(t, err)
		require.Len(t, all, 3)
		assert.Equal(t, []string{"axe", "boots", "tent"}, []string{all[0].Name, all[1].Name, all[2].Name})

		unbagged, err := s.ItemsUnassigned(ctx, listID, model.KindBag)
		require.NoError(t, err)
		require.Len(t, unbagged, 1)
		assert.Equal(t, tent.ID, unbagged[0].ID)

		uncategorized, err := s.ItemsUnassigned(ctx, listID, model.KindCategory)
		require.NoError(t, err)
		require.Len(t, uncategorized, 2)
		assert.Equal(t, axe.ID, uncategorized[0].ID)
		assert.Equal(t, tent.ID, uncategorized[1].ID)

		inBag, err := s.ItemsInContainer(ctx, listID, bag.ID)
		require.NoError(t, err)
		require.Len(t, inBag, 2)
		assert.Equal(t, axe.ID, inBag[0].ID)
		assert.Equal(t, boots.ID, inBag[1].ID)

		other, err := s.ItemsByList(ctx, model.NewListID())
		require.NoError(t, err)
		assert.Empty(t, other)
	})

	t.Run("container delete keeps seq", func(t *testing.T) {
		trav := model.Container{ID: model.NewContainerID(), ListID: listID, Kind: model.KindTraveler, Name: "ida", Seq: 20}
		require.NoError(t, s.PutContainer(ctx, trav))
		require.NoError(t, s.DeleteContainer(ctx, trav.ID, 21))
		require.ErrorIs(t, s.DeleteContainer(ctx, trav.ID, 22), fault.ErrContainerNotFound)

		maxSeq, err := s.MaxSeq(ctx, listID)
		require.NoError(t, err)
		assert.Equal(t, uint64(21), maxSeq)
	})

	t.Run("container delete detaches referencing items", func(t *testing.T) {
		trav := model.Container{ID: model.NewContainerID(), ListID: listID, Kind: model.KindTraveler, Name: "noa", Seq: 30}
		require.NoError(t, s.PutContainer(ctx, trav))

		packed := model.Item{ID: model.NewItemID(), ListID: listID, Name: "parka", Quantity: 1, Seq: 31, Traveler: model.RefTo(trav.ID)}
		require.NoError(t, s.PutItem(ctx, packed))
		require.NoError(t, s.DeleteContainer(ctx, trav.ID, 32))

		got, err := s.GetItem(ctx, packed.ID)
		require.NoError(t, err)
		assert.Equal(t, model.Unassigned(), got.Traveler, "deleting a container clears its refs")
		assert.Equal(t, packed.Seq, got.Seq, "detach by delete does not restamp the item")
	})

	t.Run("writes against unknown list fail", func(t *testing.T) {
		ghost := model.Item{ID: model.NewItemID(), ListID: model.NewListID(), Name: "ghost", Quantity: 1, Seq: 1}
		require.ErrorIs(t, s.PutItem(ctx, ghost), fault.ErrNotFound)
	})
}
