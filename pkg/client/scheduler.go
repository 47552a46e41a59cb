package client

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"duffel/pkg/event"
	"duffel/pkg/model"
	"duffel/pkg/view"
)

const (
	defaultCoalesceWindow = 250 * time.Millisecond
	flushRetryDelay       = 2 * time.Second
)

// scheduler turns the server's event stream into view updates. Events that
// fully describe a change apply to the index directly. Coarse invalidations
// only mark scopes dirty; a coalesce window batches bursts into one refetch,
// and flushes run one at a time so a slow fetch cannot pile up duplicates.
type scheduler struct {
	log     *slog.Logger
	engine  *engine
	storage Storage
	listID  model.ListID
	window  time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu        sync.Mutex
	dirty     map[view.Key]struct{}
	dirtyAll  bool
	armed     bool
	timer     *time.Timer
	flushing  bool
	resyncing bool
	buffer    []event.ChangeEvent
	closed    bool
}

func newScheduler(log *slog.Logger, e *engine, st Storage, listID model.ListID, window time.Duration) *scheduler {
	if window <= 0 {
		window = defaultCoalesceWindow
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &scheduler{
		log:     log,
		engine:  e,
		storage: st,
		listID:  listID,
		window:  window,
		ctx:     ctx,
		cancel:  cancel,
		dirty:   make(map[view.Key]struct{}),
	}
}

// OnEvent feeds one change event from the connection. During a resync the
// event is buffered and replayed afterwards; the index's seq gates drop
// whatever the fresh snapshot already covers.
func (s *scheduler) OnEvent(ev event.ChangeEvent) {
	s.mu.Lock()
	if s.resyncing {
		s.buffer = append(s.buffer, ev)
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()
	s.apply(ev)
}

func (s *scheduler) apply(ev event.ChangeEvent) {
	switch {
	case ev.Kind == event.KindInvalidated:
		s.markDirty(ev.Scopes)
	case ev.Entity == event.EntityItem:
		if !ev.Complete() {
			s.markDirty(nil)
			return
		}
		s.applyItem(ev)
	default:
		// Container creates and renames do not move items between buckets.
		// A container delete is followed by item detach events, or by an
		// invalidated event when the cascade was too large to enumerate.
	}
}

func (s *scheduler) applyItem(ev event.ChangeEvent) {
	switch ev.Kind {
	case event.KindCreated:
		after := *ev.After
		s.engine.post(func(x *view.Index) bool { return x.ApplyCreate(after) })
	case event.KindUpdated:
		var before model.Item
		if ev.Before != nil {
			before = *ev.Before
		}
		after := *ev.After
		s.engine.post(func(x *view.Index) bool { return x.ApplyUpdate(before, after) })
	case event.KindDeleted:
		id := model.ItemID(ev.EntityID)
		seq := ev.Seq
		s.engine.post(func(x *view.Index) bool { return x.ApplyDelete(id, seq) })
	}
}

// markDirty records scopes for the next flush. Scoped invalidations cover
// containers that vanished with their items detaching, so the kind's
// unassigned bucket is what needs refetching; an unscoped invalidation
// dirties the whole list.
func (s *scheduler) markDirty(scopes []model.ContainerKind) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(scopes) == 0 {
		s.dirtyAll = true
	} else {
		for _, kind := range scopes {
			s.dirty[view.UnassignedKey(kind)] = struct{}{}
		}
	}
	s.armLocked(s.window)
}

func (s *scheduler) markAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dirtyAll = true
	s.armLocked(s.window)
}

func (s *scheduler) armLocked(d time.Duration) {
	if s.armed || s.closed {
		return
	}
	s.armed = true
	s.timer = time.AfterFunc(d, s.flushNow)
}

// flushNow drains the dirty set into one flush. Only one flush runs at a
// time; marks that arrive mid-flight are picked up by the completion
// recheck instead of spawning a second fetch for the same data.
func (s *scheduler) flushNow() {
	s.mu.Lock()
	s.armed = false
	if s.closed || s.flushing || s.resyncing {
		s.mu.Unlock()
		return
	}
	if !s.dirtyAll && len(s.dirty) == 0 {
		s.mu.Unlock()
		return
	}
	all := s.dirtyAll
	keys := s.dirty
	s.dirtyAll = false
	s.dirty = make(map[view.Key]struct{})
	s.flushing = true
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		err := s.flush(all, keys)

		s.mu.Lock()
		s.flushing = false
		delay := s.window
		if err != nil {
			delay = flushRetryDelay
		}
		if s.dirtyAll || len(s.dirty) > 0 {
			s.armLocked(delay)
		}
		s.mu.Unlock()
	}()
}

func (s *scheduler) flush(all bool, keys map[view.Key]struct{}) error {
	if all {
		if err := s.refetchAll(); err != nil {
			s.log.WarnContext(s.ctx, "list refetch failed", "list_id", s.listID, "error", err)
			s.mu.Lock()
			s.dirtyAll = true
			s.mu.Unlock()
			return err
		}
		return nil
	}

	var firstErr error
	for key := range keys {
		if err := s.refetchBucket(key); err != nil {
			s.log.WarnContext(s.ctx, "view refetch failed", "list_id", s.listID, "view", key.String(), "error", err)
			s.mu.Lock()
			s.dirty[key] = struct{}{}
			s.mu.Unlock()
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

func (s *scheduler) refetchAll() error {
	snap, err := s.storage.GetSnapshot(s.ctx, s.listID)
	if err != nil {
		return err
	}
	return s.engine.do(func(x *view.Index) bool {
		x.Rebuild(snap.Items)
		return true
	})
}

// refetchBucket patches one bucket with the server's membership. Fetched
// items apply through the usual seq gates first, so a pending optimistic
// state is not clobbered. A cascade detach rewrites items without bumping
// their seq; equal-seq state whose bucket moved is forced in. If the bucket
// still holds items the server did not return, events were missed somewhere
// else too and the whole list goes dirty.
func (s *scheduler) refetchBucket(key view.Key) error {
	items, err := s.storage.FetchView(s.ctx, s.listID, key.Kind, key.Container)
	if err != nil {
		return err
	}
	return s.engine.do(func(x *view.Index) bool {
		changed := false
		present := make(map[model.ItemID]struct{}, len(items))
		for _, it := range items {
			present[it.ID] = struct{}{}
			if x.ApplyUpdate(model.Item{}, it) {
				changed = true
				continue
			}
			cur, ok := x.Item(it.ID)
			if ok && cur.Seq == it.Seq && cur.Container(key.Kind) != it.Container(key.Kind) {
				x.Restore(view.Snapshot{ID: it.ID, Exists: true, Item: it, TombSeq: x.Snapshot(it.ID).TombSeq})
				changed = true
			}
		}
		for _, id := range x.Get(key.Kind, key.Container).ItemIDs {
			if _, ok := present[id]; !ok {
				s.log.DebugContext(s.ctx, "view holds items the server no longer places there", "view", key.String())
				s.markAll()
				break
			}
		}
		return changed
	})
}

// Resync rebuilds the index from scratch: the full snapshot plus the three
// unassigned views fetched in parallel, merged by highest seq. Live events
// arriving meanwhile are buffered and replayed after the rebuild.
func (s *scheduler) Resync() {
	s.mu.Lock()
	if s.resyncing || s.closed {
		s.mu.Unlock()
		return
	}
	s.resyncing = true
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		err := s.resync(s.ctx)

		s.mu.Lock()
		s.resyncing = false
		buffered := s.buffer
		s.buffer = nil
		if err != nil {
			s.log.WarnContext(s.ctx, "resync failed", "list_id", s.listID, "error", err)
			s.dirtyAll = true
		} else {
			s.dirtyAll = false
			s.dirty = make(map[view.Key]struct{})
		}
		s.mu.Unlock()

		for _, ev := range buffered {
			s.apply(ev)
		}

		s.mu.Lock()
		if s.dirtyAll || len(s.dirty) > 0 {
			delay := s.window
			if err != nil {
				delay = flushRetryDelay
			}
			s.armLocked(delay)
		}
		s.mu.Unlock()
	}()
}

// initialLoad fills the index before the live connection starts. Unlike
// Resync it runs on the caller's context and reports the error directly.
func (s *scheduler) initialLoad(ctx context.Context) error {
	s.mu.Lock()
	s.resyncing = true
	s.mu.Unlock()

	err := s.resync(ctx)

	s.mu.Lock()
	s.resyncing = false
	buffered := s.buffer
	s.buffer = nil
	s.mu.Unlock()
	for _, ev := range buffered {
		s.apply(ev)
	}
	return err
}

func (s *scheduler) resync(ctx context.Context) error {
	snap, err := s.storage.GetSnapshot(ctx, s.listID)
	if err != nil {
		return err
	}

	merged := make(map[model.ItemID]model.Item, len(snap.Items))
	keep := func(items []model.Item) {
		for _, it := range items {
			if prev, ok := merged[it.ID]; ok && prev.Seq >= it.Seq {
				continue
			}
			merged[it.ID] = it
		}
	}
	keep(snap.Items)

	// The unassigned views are fetched after the snapshot, so merging by
	// seq folds in anything that moved between the two reads.
	var mergeMu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	for _, kind := range model.Kinds() {
		g.Go(func() error {
			items, err := s.storage.FetchView(gctx, s.listID, kind, model.Unassigned())
			if err != nil {
				return err
			}
			mergeMu.Lock()
			keep(items)
			mergeMu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	items := make([]model.Item, 0, len(merged))
	for _, it := range merged {
		items = append(items, it)
	}
	if err := s.engine.do(func(x *view.Index) bool {
		x.Rebuild(items)
		return true
	}); err != nil {
		return err
	}
	s.log.InfoContext(ctx, "view resynchronized", "list_id", s.listID, "items", len(items), "seq", snap.Seq)
	return nil
}

// close stops timers and waits for in-flight flushes. Fetches abort through
// the scheduler context.
func (s *scheduler) close() {
	s.mu.Lock()
	s.closed = true
	if s.timer != nil {
		s.timer.Stop()
	}
	s.mu.Unlock()
	s.cancel()
	s.wg.Wait()
}
