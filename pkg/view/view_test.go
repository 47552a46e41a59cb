package view

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"duffel/pkg/model"
)

type fixture struct {
	listID model.ListID
	catA   model.ContainerID
	bagA   model.ContainerID
	bagB   model.ContainerID
	trav   model.ContainerID
}

func newFixture() fixture {
	return fixture{
		listID: model.NewListID(),
		catA:   model.NewContainerID(),
		bagA:   model.NewContainerID(),
		bagB:   model.NewContainerID(),
		trav:   model.NewContainerID(),
	}
}

func (f fixture) item(name string, seq uint64) model.Item {
	return model.Item{
		ID:       model.NewItemID(),
		ListID:   f.listID,
		Name:     name,
		Quantity: 1,
		Seq:      seq,
	}
}

// fingerprint captures everything observable about an index.
type fingerprint struct {
	items []model.Item
	views []View
}

func fp(x *Index) fingerprint {
	return fingerprint{items: x.Items(), views: x.Views()}
}

func TestApplyCreatePlacesItemInOneBucketPerKind(t *testing.T) {
	f := newFixture()
	x := NewIndex(f.listID)

	it := f.item("socks", 1)
	it.Category = model.RefTo(f.catA)
	require.True(t, x.ApplyCreate(it))

	assert.Equal(t, []model.ItemID{it.ID}, x.Get(model.KindCategory, model.RefTo(f.catA)).ItemIDs)
	assert.Empty(t, x.Get(model.KindCategory, model.Unassigned()).ItemIDs)
	assert.Equal(t, []model.ItemID{it.ID}, x.Get(model.KindBag, model.Unassigned()).ItemIDs)
	assert.Equal(t, []model.ItemID{it.ID}, x.Get(model.KindTraveler, model.Unassigned()).ItemIDs)
	require.NoError(t, x.Verify())
}

func TestAssignmentMovesBetweenBuckets(t *testing.T) {
	f := newFixture()
	x := NewIndex(f.listID)

	it := f.item("socks", 1)
	require.True(t, x.ApplyCreate(it))

	// Unassigned -> bagA.
	moved := it
	moved.Bag = model.RefTo(f.bagA)
	moved.Seq = 2
	require.True(t, x.ApplyUpdate(it, moved))

	assert.Empty(t, x.Get(model.KindBag, model.Unassigned()).ItemIDs, "item left the unassigned bucket")
	assert.Equal(t, 1, x.Get(model.KindBag, model.RefTo(f.bagA)).Total)

	// bagA -> bagB. Category and traveler buckets must be untouched.
	catBefore := x.Get(model.KindCategory, model.Unassigned())
	moved2 := moved
	moved2.Bag = model.RefTo(f.bagB)
	moved2.Seq = 3
	require.True(t, x.ApplyUpdate(moved, moved2))

	assert.Equal(t, 0, x.Get(model.KindBag, model.RefTo(f.bagA)).Total)
	assert.Equal(t, 1, x.Get(model.KindBag, model.RefTo(f.bagB)).Total)
	assert.Equal(t, catBefore, x.Get(model.KindCategory, model.Unassigned()))

	// bagB -> unassigned again.
	moved3 := moved2
	moved3.Bag = model.Unassigned()
	moved3.Seq = 4
	require.True(t, x.ApplyUpdate(moved2, moved3))
	assert.Equal(t, []model.ItemID{it.ID}, x.Get(model.KindBag, model.Unassigned()).ItemIDs)
	require.NoError(t, x.Verify())
}

func TestPackedCountsFollowItems(t *testing.T) {
	f := newFixture()
	x := NewIndex(f.listID)

	a := f.item("axe", 1)
	a.Bag = model.RefTo(f.bagA)
	a.Packed = true
	b := f.item("boots", 2)
	b.Bag = model.RefTo(f.bagA)
	require.True(t, x.ApplyCreate(a))
	require.True(t, x.ApplyCreate(b))

	v := x.Get(model.KindBag, model.RefTo(f.bagA))
	assert.Equal(t, 2, v.Total)
	assert.Equal(t, 1, v.Packed)

	// Packing b bumps the count without touching membership.
	packed := b
	packed.Packed = true
	packed.Seq = 3
	require.True(t, x.ApplyUpdate(b, packed))
	v = x.Get(model.KindBag, model.RefTo(f.bagA))
	assert.Equal(t, 2, v.Total)
	assert.Equal(t, 2, v.Packed)

	// Moving the packed item carries its packed contribution along.
	moved := packed
	moved.Bag = model.RefTo(f.bagB)
	moved.Seq = 4
	require.True(t, x.ApplyUpdate(packed, moved))
	assert.Equal(t, 1, x.Get(model.KindBag, model.RefTo(f.bagA)).Packed)
	assert.Equal(t, 1, x.Get(model.KindBag, model.RefTo(f.bagB)).Packed)

	// Deleting the packed item removes its contribution everywhere.
	require.True(t, x.ApplyDelete(a.ID, 5))
	assert.Equal(t, 0, x.Get(model.KindBag, model.RefTo(f.bagA)).Packed)
	require.NoError(t, x.Verify())
}

func TestRenameReordersWithinBuckets(t *testing.T) {
	f := newFixture()
	x := NewIndex(f.listID)

	a := f.item("axe", 1)
	b := f.item("boots", 2)
	c := f.item("compass", 3)
	for _, it := range []model.Item{a, b, c} {
		require.True(t, x.ApplyCreate(it))
	}
	require.Equal(t, []model.ItemID{a.ID, b.ID, c.ID}, x.Get(model.KindBag, model.Unassigned()).ItemIDs)

	renamed := a
	renamed.Name = "zipline"
	renamed.Seq = 4
	require.True(t, x.ApplyUpdate(a, renamed))

	assert.Equal(t, []model.ItemID{b.ID, c.ID, a.ID}, x.Get(model.KindBag, model.Unassigned()).ItemIDs)
	require.NoError(t, x.Verify())
}

func TestEqualNamesOrderByID(t *testing.T) {
	f := newFixture()
	x := NewIndex(f.listID)

	a := f.item("socks", 1)
	b := f.item("socks", 2)
	require.True(t, x.ApplyCreate(a))
	require.True(t, x.ApplyCreate(b))

	got := x.Get(model.KindCategory, model.Unassigned()).ItemIDs
	require.Len(t, got, 2)
	assert.True(t, lessItem("socks", got[0], "socks", got[1]))
	require.NoError(t, x.Verify())
}

func TestSeqIdempotence(t *testing.T) {
	f := newFixture()
	x := NewIndex(f.listID)

	it := f.item("socks", 1)
	require.True(t, x.ApplyCreate(it))

	t.Run("same event twice", func(t *testing.T) {
		upd := it
		upd.Packed = true
		upd.Seq = 2
		require.True(t, x.ApplyUpdate(it, upd))
		before := fp(x)
		assert.False(t, x.ApplyUpdate(it, upd))
		assert.Equal(t, before, fp(x))
	})

	t.Run("stale event after newer one", func(t *testing.T) {
		stale := it
		stale.Name = "old socks"
		stale.Seq = 1
		before := fp(x)
		assert.False(t, x.ApplyUpdate(it, stale))
		assert.Equal(t, before, fp(x))
	})

	t.Run("stale delete", func(t *testing.T) {
		before := fp(x)
		assert.False(t, x.ApplyDelete(it.ID, 1))
		assert.Equal(t, before, fp(x))
	})
}

func TestOptimisticApplyKeepsConfirmedSeq(t *testing.T) {
	f := newFixture()
	x := NewIndex(f.listID)

	it := f.item("socks", 5)
	require.True(t, x.ApplyCreate(it))

	// Local optimistic change: seq zero always applies and retains seq 5.
	local := it
	local.Packed = true
	local.Seq = 0
	require.True(t, x.ApplyUpdate(it, local))
	got, ok := x.Item(it.ID)
	require.True(t, ok)
	assert.True(t, got.Packed)
	assert.Equal(t, uint64(5), got.Seq)

	// The confirming server event still applies.
	confirmed := local
	confirmed.Seq = 6
	assert.True(t, x.ApplyUpdate(it, confirmed))
	got, _ = x.Item(it.ID)
	assert.Equal(t, uint64(6), got.Seq)
}

func TestDeleteTombstoneBlocksResurrection(t *testing.T) {
	f := newFixture()
	x := NewIndex(f.listID)

	it := f.item("socks", 3)
	require.True(t, x.ApplyCreate(it))
	require.True(t, x.ApplyDelete(it.ID, 7))

	t.Run("stale update cannot resurrect", func(t *testing.T) {
		stale := it
		stale.Seq = 5
		assert.False(t, x.ApplyUpdate(it, stale))
		assert.Equal(t, 0, x.Len())
	})

	t.Run("stale create cannot resurrect", func(t *testing.T) {
		stale := it
		stale.Seq = 6
		assert.False(t, x.ApplyCreate(stale))
		assert.Equal(t, 0, x.Len())
	})

	t.Run("delete of unknown item raises tombstone only", func(t *testing.T) {
		ghost := model.NewItemID()
		assert.False(t, x.ApplyDelete(ghost, 9))
		late := f.item("ghost", 8)
		late.ID = ghost
		assert.False(t, x.ApplyCreate(late))
	})

	require.NoError(t, x.Verify())
}

func TestLocalDeleteOfProvisionalItemLeavesNoTombstone(t *testing.T) {
	f := newFixture()
	x := NewIndex(f.listID)

	// Provisional items carry seq zero until a create confirms; swapping
	// them out must not accumulate tombstones.
	for range 100 {
		temp := f.item("draft", 0)
		require.True(t, x.ApplyCreate(temp))
		require.True(t, x.ApplyDelete(temp.ID, 0))
	}
	assert.Empty(t, x.tombs)

	// A confirmed item deleted locally still leaves its guard.
	it := f.item("tent", 7)
	require.True(t, x.ApplyCreate(it))
	require.True(t, x.ApplyDelete(it.ID, 0))
	assert.Equal(t, uint64(7), x.tombs[it.ID])
	require.NoError(t, x.Verify())
}

func TestUpdateForUnknownItemUpserts(t *testing.T) {
	f := newFixture()
	x := NewIndex(f.listID)

	after := f.item("socks", 4)
	after.Bag = model.RefTo(f.bagA)
	before := after
	before.Seq = 3
	before.Bag = model.Unassigned()

	require.True(t, x.ApplyUpdate(before, after))
	got, ok := x.Item(after.ID)
	require.True(t, ok)
	assert.Equal(t, after, got)
	assert.Equal(t, 1, x.Get(model.KindBag, model.RefTo(f.bagA)).Total)
	require.NoError(t, x.Verify())
}

func TestSnapshotRestore(t *testing.T) {
	f := newFixture()

	t.Run("reverses an update", func(t *testing.T) {
		x := NewIndex(f.listID)
		it := f.item("socks", 1)
		it.Bag = model.RefTo(f.bagA)
		require.True(t, x.ApplyCreate(it))
		before := fp(x)

		snap := x.Snapshot(it.ID)
		moved := it
		moved.Bag = model.RefTo(f.bagB)
		moved.Name = "wool socks"
		moved.Seq = 0
		require.True(t, x.ApplyUpdate(it, moved))

		x.Restore(snap)
		assert.Equal(t, before, fp(x))
		require.NoError(t, x.Verify())
	})

	t.Run("reverses a create", func(t *testing.T) {
		x := NewIndex(f.listID)
		existing := f.item("axe", 1)
		require.True(t, x.ApplyCreate(existing))
		before := fp(x)

		draft := f.item("tent", 0)
		snap := x.Snapshot(draft.ID)
		require.True(t, x.ApplyCreate(draft))
		require.Equal(t, 2, x.Len())

		x.Restore(snap)
		assert.Equal(t, before, fp(x))
		require.NoError(t, x.Verify())
	})

	t.Run("reverses a delete including tombstone", func(t *testing.T) {
		x := NewIndex(f.listID)
		it := f.item("socks", 4)
		require.True(t, x.ApplyCreate(it))
		before := fp(x)

		snap := x.Snapshot(it.ID)
		require.True(t, x.ApplyDelete(it.ID, 0))

		x.Restore(snap)
		assert.Equal(t, before, fp(x))

		// The restored item must accept the next server event: the
		// optimistic delete's tombstone may not linger.
		upd := it
		upd.Seq = 5
		assert.True(t, x.ApplyUpdate(it, upd))
		require.NoError(t, x.Verify())
	})
}

func TestRebuildReplacesEverything(t *testing.T) {
	f := newFixture()
	x := NewIndex(f.listID)

	stale := f.item("socks", 9)
	require.True(t, x.ApplyCreate(stale))
	require.True(t, x.ApplyDelete(stale.ID, 10))

	fresh := f.item("tent", 2)
	fresh.Traveler = model.RefTo(f.trav)
	x.Rebuild([]model.Item{fresh})

	assert.Equal(t, 1, x.Len())
	assert.Equal(t, 1, x.Get(model.KindTraveler, model.RefTo(f.trav)).Total)

	// Tombstones are gone: the authoritative set wins.
	back := stale
	back.Seq = 1
	assert.True(t, x.ApplyCreate(back))
	require.NoError(t, x.Verify())
}

// simulated server history: a valid sequence of events over a small item
// pool, replayed in order and shuffled. Both replicas must converge to the
// authoritative final state.
func TestConvergenceUnderShuffledDelivery(t *testing.T) {
	f := newFixture()
	r := rand.New(rand.NewSource(42))
	refs := []model.Ref{model.Unassigned(), model.RefTo(f.catA), model.RefTo(f.bagA), model.RefTo(f.bagB), model.RefTo(f.trav)}
	names := []string{"axe", "boots", "compass", "duffel", "etna", "flask"}

	type ev struct {
		kind   string
		before model.Item
		after  model.Item
		id     model.ItemID
		seq    uint64
	}

	live := map[model.ItemID]model.Item{}
	var history []ev
	var seq uint64

	randomState := func(base model.Item) model.Item {
		base.Name = names[r.Intn(len(names))]
		base.Quantity = 1 + r.Intn(5)
		base.Packed = r.Intn(2) == 0
		base.Category = refs[r.Intn(len(refs))]
		base.Bag = refs[r.Intn(len(refs))]
		base.Traveler = refs[r.Intn(len(refs))]
		return base
	}

	for i := 0; i < 300; i++ {
		seq++
		switch {
		case len(live) == 0 || r.Intn(10) < 3:
			it := randomState(model.Item{ID: model.NewItemID(), ListID: f.listID})
			it.Seq = seq
			live[it.ID] = it
			history = append(history, ev{kind: "create", after: it, seq: seq})
		case r.Intn(10) < 2:
			var victim model.Item
			for _, it := range live {
				victim = it
				break
			}
			delete(live, victim.ID)
			history = append(history, ev{kind: "delete", before: victim, id: victim.ID, seq: seq})
		default:
			var target model.Item
			for _, it := range live {
				target = it
				break
			}
			after := randomState(target)
			after.Seq = seq
			live[after.ID] = after
			history = append(history, ev{kind: "update", before: target, after: after, seq: seq})
		}
	}

	apply := func(x *Index, e ev) {
		switch e.kind {
		case "create":
			x.ApplyCreate(e.after)
		case "update":
			x.ApplyUpdate(e.before, e.after)
		case "delete":
			x.ApplyDelete(e.id, e.seq)
		}
	}

	ordered := NewIndex(f.listID)
	for _, e := range history {
		apply(ordered, e)
		require.NoError(t, ordered.Verify(), "after seq %d", e.seq)
	}

	shuffled := NewIndex(f.listID)
	for _, i := range r.Perm(len(history)) {
		apply(shuffled, history[i])
	}
	require.NoError(t, shuffled.Verify())

	authoritative := NewIndex(f.listID)
	finalItems := make([]model.Item, 0, len(live))
	for _, it := range live {
		finalItems = append(finalItems, it)
	}
	authoritative.Rebuild(finalItems)

	assert.Equal(t, fp(authoritative).items, fp(ordered).items)
	assert.Equal(t, fp(authoritative).views, fp(ordered).views)
	assert.Equal(t, fp(authoritative).items, fp(shuffled).items)
	assert.Equal(t, fp(authoritative).views, fp(shuffled).views)
}

func TestGetUnknownBucketIsEmpty(t *testing.T) {
	x := NewIndex(model.NewListID())
	v := x.Get(model.KindBag, model.RefTo(model.NewContainerID()))
	assert.Equal(t, 0, v.Total)
	assert.Equal(t, 0, v.Packed)
	assert.Empty(t, v.ItemIDs)
}
