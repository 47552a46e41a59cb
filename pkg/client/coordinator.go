package client

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"duffel/pkg/fault"
	"duffel/pkg/model"
	"duffel/pkg/view"
)

// MutationState tracks one optimistic mutation through its lifecycle.
type MutationState int32

const (
	// MutationPending means the optimistic state is visible locally and
	// the server has not answered yet.
	MutationPending MutationState = iota
	// MutationCommitted means the server confirmed; the view holds server
	// truth. Bulk mutations commit even when some items were rejected;
	// Result names the rejected ones.
	MutationCommitted
	// MutationRolledBack means the server rejected or never answered; the
	// optimistic state was reverted.
	MutationRolledBack
)

func (s MutationState) String() string {
	switch s {
	case MutationPending:
		return "pending"
	case MutationCommitted:
		return "committed"
	case MutationRolledBack:
		return "rolled_back"
	}
	return "unknown"
}

// Mutation is the handle of one optimistic mutation. The view reflects the
// mutation immediately; the handle resolves when the server confirms or the
// optimistic state is rolled back.
type Mutation struct {
	state atomic.Int32
	done  chan struct{}

	// Written once before done closes.
	err  error
	item model.Item
	bulk BulkResult
}

func newMutation() *Mutation {
	return &Mutation{done: make(chan struct{})}
}

func (m *Mutation) State() MutationState { return MutationState(m.state.Load()) }

// Done closes when the mutation resolved either way.
func (m *Mutation) Done() <-chan struct{} { return m.done }

// Wait blocks until the mutation resolves or ctx ends. An expired ctx does
// not cancel the in-flight request; the mutation still resolves on its own
// bounded timeout.
func (m *Mutation) Wait(ctx context.Context) error {
	select {
	case <-m.done:
		return m.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Err returns the resolution error. Valid after Done.
func (m *Mutation) Err() error { return m.err }

// Item returns the server-confirmed state. Valid after a committed
// single-item mutation.
func (m *Mutation) Item() model.Item { return m.item }

// Result returns the bulk outcome. Valid after a bulk mutation resolved.
func (m *Mutation) Result() BulkResult { return m.bulk }

func (m *Mutation) resolve(state MutationState, err error) {
	m.err = err
	m.state.Store(int32(state))
	close(m.done)
}

const defaultMutationTimeout = 10 * time.Second

// coordinator runs optimistic item mutations: apply locally first, confirm
// against storage on a detached bounded context, then reconcile the view
// with server truth or roll back.
type coordinator struct {
	log     *slog.Logger
	engine  *engine
	storage Storage
	listID  model.ListID
	timeout time.Duration
	wg      sync.WaitGroup
}

func newCoordinator(log *slog.Logger, e *engine, st Storage, listID model.ListID, timeout time.Duration) *coordinator {
	if timeout <= 0 {
		timeout = defaultMutationTimeout
	}
	return &coordinator{log: log, engine: e, storage: st, listID: listID, timeout: timeout}
}

// detach bounds the storage call without inheriting the caller's cancel:
// a torn-down UI must not leave the view and the server disagreeing.
func (c *coordinator) detach(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
}

func failed(err error) *Mutation {
	m := newMutation()
	m.resolve(MutationRolledBack, err)
	return m
}

// restoreUnlessSuperseded undoes an optimistic apply, unless newer server
// state landed while the mutation was in flight; server truth wins over the
// snapshot.
func restoreUnlessSuperseded(x *view.Index, snap view.Snapshot) bool {
	now := x.Snapshot(snap.ID)
	snapSeq := snap.TombSeq
	if snap.Exists && snap.Item.Seq > snapSeq {
		snapSeq = snap.Item.Seq
	}
	if now.Exists && now.Item.Seq > snapSeq {
		return false
	}
	if now.TombSeq > snapSeq {
		return false
	}
	x.Restore(snap)
	return true
}

// CreateItem shows the item immediately under a provisional ID and swaps in
// the server's item when the create confirms.
func (c *coordinator) CreateItem(ctx context.Context, draft ItemDraft) *Mutation {
	if draft.Quantity == 0 {
		draft.Quantity = 1
	}
	if err := model.ValidateName(draft.Name); err != nil {
		return failed(err)
	}
	if err := model.ValidateQuantity(draft.Quantity); err != nil {
		return failed(err)
	}

	temp := model.Item{
		ID:       model.NewItemID(),
		ListID:   c.listID,
		Name:     draft.Name,
		Quantity: draft.Quantity,
		Packed:   draft.Packed,
		Category: draft.Category,
		Bag:      draft.Bag,
		Traveler: draft.Traveler,
	}

	m := newMutation()
	if err := c.engine.do(func(x *view.Index) bool {
		return x.ApplyCreate(temp)
	}); err != nil {
		m.resolve(MutationRolledBack, err)
		return m
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		callCtx, cancel := c.detach(ctx)
		defer cancel()

		truth, err := c.storage.CreateItem(callCtx, c.listID, draft)
		if err != nil {
			_ = c.engine.do(func(x *view.Index) bool {
				return x.ApplyDelete(temp.ID, 0)
			})
			m.resolve(MutationRolledBack, err)
			return
		}

		_ = c.engine.do(func(x *view.Index) bool {
			x.ApplyDelete(temp.ID, 0)
			return x.ApplyCreate(truth)
		})
		m.item = truth
		m.resolve(MutationCommitted, nil)
	}()
	return m
}

// UpdateItem applies the patch to the local item immediately and reconciles
// with the server's answer.
func (c *coordinator) UpdateItem(ctx context.Context, itemID model.ItemID, patch model.Patch) *Mutation {
	if err := patch.Validate(); err != nil {
		return failed(err)
	}

	m := newMutation()
	var snap view.Snapshot
	if err := c.engine.do(func(x *view.Index) bool {
		snap = x.Snapshot(itemID)
		if !snap.Exists {
			return false
		}
		after := snap.Item
		patch.Apply(&after)
		after.Seq = 0
		return x.ApplyUpdate(snap.Item, after)
	}); err != nil {
		m.resolve(MutationRolledBack, err)
		return m
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		callCtx, cancel := c.detach(ctx)
		defer cancel()

		truth, err := c.storage.UpdateItem(callCtx, c.listID, itemID, patch)
		if err != nil {
			_ = c.engine.do(func(x *view.Index) bool {
				return restoreUnlessSuperseded(x, snap)
			})
			m.resolve(MutationRolledBack, err)
			return
		}

		_ = c.engine.do(func(x *view.Index) bool {
			return x.ApplyUpdate(model.Item{}, truth)
		})
		m.item = truth
		m.resolve(MutationCommitted, nil)
	}()
	return m
}

// DeleteItem removes the item locally immediately. Deletes are idempotent
// server-side, so a missing item still commits.
func (c *coordinator) DeleteItem(ctx context.Context, itemID model.ItemID) *Mutation {
	m := newMutation()
	var snap view.Snapshot
	if err := c.engine.do(func(x *view.Index) bool {
		snap = x.Snapshot(itemID)
		return x.ApplyDelete(itemID, 0)
	}); err != nil {
		m.resolve(MutationRolledBack, err)
		return m
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		callCtx, cancel := c.detach(ctx)
		defer cancel()

		if err := c.storage.DeleteItem(callCtx, c.listID, itemID); err != nil {
			_ = c.engine.do(func(x *view.Index) bool {
				return restoreUnlessSuperseded(x, snap)
			})
			m.resolve(MutationRolledBack, err)
			return
		}
		m.resolve(MutationCommitted, nil)
	}()
	return m
}

// BulkUpdateItems applies one patch to many items optimistically. Rejected
// items are rolled back individually; the rest keep server truth. A partial
// outcome commits and carries a fault.BulkError.
func (c *coordinator) BulkUpdateItems(ctx context.Context, ids []model.ItemID, patch model.Patch) *Mutation {
	if len(ids) == 0 {
		return failed(fault.New(fault.CodeValidation, "bulk update needs at least one item id"))
	}
	if err := patch.Validate(); err != nil {
		return failed(err)
	}

	m := newMutation()
	snaps := make(map[model.ItemID]view.Snapshot, len(ids))
	if err := c.engine.do(func(x *view.Index) bool {
		changed := false
		for _, id := range ids {
			snap := x.Snapshot(id)
			snaps[id] = snap
			if !snap.Exists {
				continue
			}
			after := snap.Item
			patch.Apply(&after)
			after.Seq = 0
			if x.ApplyUpdate(snap.Item, after) {
				changed = true
			}
		}
		return changed
	}); err != nil {
		m.resolve(MutationRolledBack, err)
		return m
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		callCtx, cancel := c.detach(ctx)
		defer cancel()

		result, err := c.storage.BulkUpdateItems(callCtx, c.listID, ids, patch)
		if err != nil {
			_ = c.engine.do(func(x *view.Index) bool {
				changed := false
				for _, id := range ids {
					if restoreUnlessSuperseded(x, snaps[id]) {
						changed = true
					}
				}
				return changed
			})
			m.resolve(MutationRolledBack, err)
			return
		}

		_ = c.engine.do(func(x *view.Index) bool {
			changed := false
			for _, truth := range result.Items {
				if x.ApplyUpdate(model.Item{}, truth) {
					changed = true
				}
			}
			for _, rejection := range result.Rejected {
				if restoreUnlessSuperseded(x, snaps[model.ItemID(rejection.ID)]) {
					changed = true
				}
			}
			return changed
		})

		m.bulk = result
		if len(result.Rejected) > 0 {
			m.resolve(MutationCommitted, &fault.BulkError{
				Succeeded: result.Succeeded,
				Total:     result.Total,
				Rejected:  result.Rejected,
			})
			return
		}
		m.resolve(MutationCommitted, nil)
	}()
	return m
}

// close waits for in-flight mutations to resolve.
func (c *coordinator) close() {
	c.wg.Wait()
}
