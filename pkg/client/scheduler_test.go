package client

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"duffel/pkg/event"
	"duffel/pkg/fault"
	"duffel/pkg/model"
	"duffel/pkg/view"
)

// stubStorage answers snapshot and view fetches from test-provided
// functions. Mutations are never called by the scheduler.
type stubStorage struct {
	snapshotFn func() (Snapshot, error)
	fetchFn    func(kind model.ContainerKind, ref model.Ref) ([]model.Item, error)

	snapshots atomic.Int64
	fetches   atomic.Int64

	mu         sync.Mutex
	fetchCalls []view.Key
}

func (s *stubStorage) GetSnapshot(ctx context.Context, listID model.ListID) (Snapshot, error) {
	s.snapshots.Add(1)
	if s.snapshotFn == nil {
		return Snapshot{}, nil
	}
	return s.snapshotFn()
}

func (s *stubStorage) FetchView(ctx context.Context, listID model.ListID, kind model.ContainerKind, ref model.Ref) ([]model.Item, error) {
	s.fetches.Add(1)
	s.mu.Lock()
	s.fetchCalls = append(s.fetchCalls, view.KeyOf(kind, ref))
	s.mu.Unlock()
	if s.fetchFn == nil {
		return nil, nil
	}
	return s.fetchFn(kind, ref)
}

func (s *stubStorage) CreateItem(context.Context, model.ListID, ItemDraft) (model.Item, error) {
	return model.Item{}, fault.New(fault.CodeInternal, "not wired in this test")
}

func (s *stubStorage) UpdateItem(context.Context, model.ListID, model.ItemID, model.Patch) (model.Item, error) {
	return model.Item{}, fault.New(fault.CodeInternal, "not wired in this test")
}

func (s *stubStorage) DeleteItem(context.Context, model.ListID, model.ItemID) error {
	return fault.New(fault.CodeInternal, "not wired in this test")
}

func (s *stubStorage) BulkUpdateItems(context.Context, model.ListID, []model.ItemID, model.Patch) (BulkResult, error) {
	return BulkResult{}, fault.New(fault.CodeInternal, "not wired in this test")
}

func (s *stubStorage) Containers(context.Context, model.ListID) ([]model.Container, error) {
	return nil, nil
}

func (s *stubStorage) CreateContainer(context.Context, model.ListID, model.ContainerKind, string) (model.Container, error) {
	return model.Container{}, fault.New(fault.CodeInternal, "not wired in this test")
}

func (s *stubStorage) RenameContainer(context.Context, model.ListID, model.ContainerID, string) (model.Container, error) {
	return model.Container{}, fault.New(fault.CodeInternal, "not wired in this test")
}

func (s *stubStorage) DeleteContainer(context.Context, model.ListID, model.ContainerID) error {
	return fault.New(fault.CodeInternal, "not wired in this test")
}

func (s *stubStorage) SetOrigin(uuid.UUID) {}

func newTestScheduler(t *testing.T, st *stubStorage, window time.Duration) (*scheduler, *engine, model.ListID) {
	t.Helper()
	listID := model.NewListID()
	e := newEngine(discardLogger(), listID)
	s := newScheduler(discardLogger(), e, st, listID, window)
	e.onCorrupt = s.Resync
	t.Cleanup(func() {
		s.close()
		e.close()
	})
	return s, e, listID
}

func TestSchedulerAppliesCompleteItemEvents(t *testing.T) {
	st := &stubStorage{}
	s, e, listID := newTestScheduler(t, st, 30*time.Millisecond)
	actor := model.NewActorID()

	it := testItem(listID, "socks", 3)
	s.OnEvent(event.ItemCreated(actor, it))
	require.Eventually(t, func() bool {
		_, ok := e.Item(it.ID)
		return ok
	}, 2*time.Second, 10*time.Millisecond)

	packed := it
	packed.Packed = true
	packed.Seq = 4
	s.OnEvent(event.ItemUpdated(actor, it, packed))
	require.Eventually(t, func() bool {
		got, ok := e.Item(it.ID)
		return ok && got.Packed && got.Seq == 4
	}, 2*time.Second, 10*time.Millisecond)

	s.OnEvent(event.ItemDeleted(actor, 5, packed))
	require.Eventually(t, func() bool {
		_, ok := e.Item(it.ID)
		return !ok
	}, 2*time.Second, 10*time.Millisecond)

	// Complete events never trigger a refetch.
	assert.Zero(t, st.snapshots.Load())
	assert.Zero(t, st.fetches.Load())
}

func TestSchedulerCoalescesScopedInvalidations(t *testing.T) {
	var canonical model.Item
	st := &stubStorage{
		fetchFn: func(kind model.ContainerKind, ref model.Ref) ([]model.Item, error) {
			return []model.Item{canonical}, nil
		},
	}
	s, e, listID := newTestScheduler(t, st, 40*time.Millisecond)
	canonical = testItem(listID, "flashlight", 10)
	actor := model.NewActorID()

	for seq := uint64(1); seq <= 8; seq++ {
		s.OnEvent(event.Invalidated(actor, listID, seq, model.KindBag))
	}

	require.Eventually(t, func() bool {
		_, ok := e.Item(canonical.ID)
		return ok
	}, 2*time.Second, 10*time.Millisecond)

	// The burst collapses into a single fetch of the bag unassigned view.
	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, int64(1), st.fetches.Load())
	assert.Zero(t, st.snapshots.Load())
	st.mu.Lock()
	require.Len(t, st.fetchCalls, 1)
	assert.Equal(t, view.UnassignedKey(model.KindBag), st.fetchCalls[0])
	st.mu.Unlock()
}

func TestSchedulerUnscopedInvalidationRefetchesSnapshot(t *testing.T) {
	var a, b model.Item
	st := &stubStorage{}
	st.snapshotFn = func() (Snapshot, error) {
		return Snapshot{Seq: 2, Items: []model.Item{a, b}}, nil
	}
	s, e, listID := newTestScheduler(t, st, 30*time.Millisecond)
	a = testItem(listID, "boots", 1)
	b = testItem(listID, "parka", 2)
	actor := model.NewActorID()

	s.OnEvent(event.Invalidated(actor, listID, 3))

	require.Eventually(t, func() bool {
		return e.Len() == 2
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, int64(1), st.snapshots.Load())
}

func TestSchedulerBuffersEventsDuringResync(t *testing.T) {
	release := make(chan struct{})
	st := &stubStorage{
		snapshotFn: func() (Snapshot, error) {
			<-release
			return Snapshot{}, nil
		},
	}
	s, e, listID := newTestScheduler(t, st, 30*time.Millisecond)
	actor := model.NewActorID()

	s.Resync()

	it := testItem(listID, "stove", 7)
	s.OnEvent(event.ItemCreated(actor, it))
	assert.Zero(t, e.Len(), "events must not apply while the snapshot is in flight")

	close(release)
	require.Eventually(t, func() bool {
		_, ok := e.Item(it.ID)
		return ok
	}, 2*time.Second, 10*time.Millisecond)
}

func TestSchedulerEscalatesWhenServerDisagrees(t *testing.T) {
	var resident, other model.Item
	st := &stubStorage{}
	st.fetchFn = func(kind model.ContainerKind, ref model.Ref) ([]model.Item, error) {
		return []model.Item{other}, nil
	}
	st.snapshotFn = func() (Snapshot, error) {
		return Snapshot{Seq: 5, Items: []model.Item{other}}, nil
	}
	s, e, listID := newTestScheduler(t, st, 30*time.Millisecond)
	resident = testItem(listID, "lantern", 1)
	other = testItem(listID, "compass", 5)
	actor := model.NewActorID()

	require.NoError(t, e.do(func(x *view.Index) bool {
		return x.ApplyCreate(resident)
	}))

	// The fetched bag view no longer contains the resident: the scheduler
	// must fall back to a full snapshot, which drops it.
	s.OnEvent(event.Invalidated(actor, listID, 6, model.KindBag))

	require.Eventually(t, func() bool {
		_, residentThere := e.Item(resident.ID)
		_, otherThere := e.Item(other.ID)
		return !residentThere && otherThere
	}, 3*time.Second, 10*time.Millisecond)
	assert.GreaterOrEqual(t, st.snapshots.Load(), int64(1))
}

func TestSchedulerForcesUnbumpedDetaches(t *testing.T) {
	// A container delete past the cascade limit detaches items in storage
	// without assigning new seqs. The refetched view must still replace
	// the stale bucket placement even though the seq gate blocks it.
	var detached model.Item
	st := &stubStorage{}
	st.fetchFn = func(kind model.ContainerKind, ref model.Ref) ([]model.Item, error) {
		return []model.Item{detached}, nil
	}
	s, e, listID := newTestScheduler(t, st, 30*time.Millisecond)

	bag := model.NewContainerID()
	inBag := testItem(listID, "tarp", 4)
	inBag.Bag = model.RefTo(bag)
	require.NoError(t, e.do(func(x *view.Index) bool {
		return x.ApplyCreate(inBag)
	}))

	detached = inBag
	detached.Bag = model.Unassigned()

	s.OnEvent(event.Invalidated(model.NewActorID(), listID, 5, model.KindBag))

	require.Eventually(t, func() bool {
		got, ok := e.Item(inBag.ID)
		return ok && !got.Bag.Valid
	}, 2*time.Second, 10*time.Millisecond)
	assert.Zero(t, st.snapshots.Load(), "the per-view patch is enough, no full rebuild")
}

func TestSchedulerInitialLoadMergesPrefetches(t *testing.T) {
	var stale, fresh model.Item
	st := &stubStorage{}
	st.snapshotFn = func() (Snapshot, error) {
		return Snapshot{Seq: 1, Items: []model.Item{stale}}, nil
	}
	st.fetchFn = func(kind model.ContainerKind, ref model.Ref) ([]model.Item, error) {
		if kind == model.KindBag {
			return []model.Item{fresh}, nil
		}
		return nil, nil
	}
	s, e, listID := newTestScheduler(t, st, 30*time.Millisecond)
	stale = testItem(listID, "mattress", 1)
	fresh = stale
	fresh.Name = "sleeping pad"
	fresh.Seq = 2

	require.NoError(t, s.initialLoad(context.Background()))

	require.Equal(t, 1, e.Len())
	got, ok := e.Item(stale.ID)
	require.True(t, ok)
	assert.Equal(t, "sleeping pad", got.Name, "the higher seq from the view prefetch wins")
	assert.Equal(t, int64(1), st.snapshots.Load())
	assert.Equal(t, int64(3), st.fetches.Load(), "one prefetch per container kind")
}
