package client

import (
	"log/slog"
	"sync"

	"duffel/pkg/fault"
	"duffel/pkg/model"
	"duffel/pkg/view"
)

// task is one unit of work for the engine loop. fn reports whether it
// changed view state; done, when non-nil, is closed after the task ran.
type task struct {
	fn   func(x *view.Index) bool
	done chan struct{}
}

// engine owns the view index. Every read and write goes through its loop
// goroutine, so the index itself never locks. A panic inside a task marks
// the index corrupt and asks for a full resync instead of crashing the
// process.
type engine struct {
	log     *slog.Logger
	tasks   chan task
	quit    chan struct{}
	stopped chan struct{}
	updates chan struct{}

	// onCorrupt is called after a task panic, from the loop goroutine.
	onCorrupt func()

	closeOnce sync.Once
}

func newEngine(log *slog.Logger, listID model.ListID) *engine {
	e := &engine{
		log:     log,
		tasks:   make(chan task, 64),
		quit:    make(chan struct{}),
		stopped: make(chan struct{}),
		updates: make(chan struct{}, 1),
	}
	go e.loop(view.NewIndex(listID))
	return e
}

func (e *engine) loop(x *view.Index) {
	defer close(e.stopped)
	for {
		select {
		case t := <-e.tasks:
			e.runTask(x, t)
		case <-e.quit:
			return
		}
	}
}

func (e *engine) runTask(x *view.Index, t task) {
	defer func() {
		if t.done != nil {
			close(t.done)
		}
	}()
	defer func() {
		if rec := recover(); rec != nil {
			e.log.Error("view apply panicked, requesting full resync", "panic", rec)
			if e.onCorrupt != nil {
				e.onCorrupt()
			}
		}
	}()
	if t.fn(x) {
		e.notify()
	}
}

// notify signals Updates without ever blocking the loop.
func (e *engine) notify() {
	select {
	case e.updates <- struct{}{}:
	default:
	}
}

// Updates delivers one signal per burst of view changes. Consumers reread
// whatever views they render; the channel carries no payload.
func (e *engine) Updates() <-chan struct{} { return e.updates }

// do runs fn on the loop and waits for it to finish.
func (e *engine) do(fn func(x *view.Index) bool) error {
	t := task{fn: fn, done: make(chan struct{})}
	select {
	case e.tasks <- t:
	case <-e.stopped:
		return fault.New(fault.CodeInternal, "client engine is closed")
	}
	select {
	case <-t.done:
		return nil
	case <-e.stopped:
		return fault.New(fault.CodeInternal, "client engine is closed")
	}
}

// post queues fn without waiting. Dropped silently once the engine closed.
func (e *engine) post(fn func(x *view.Index) bool) {
	select {
	case e.tasks <- task{fn: fn}:
	case <-e.stopped:
	}
}

func (e *engine) close() {
	e.closeOnce.Do(func() { close(e.quit) })
	<-e.stopped
}

// View returns the current state of one bucket.
func (e *engine) View(kind model.ContainerKind, ref model.Ref) view.View {
	var v view.View
	_ = e.do(func(x *view.Index) bool {
		v = x.Get(kind, ref)
		return false
	})
	return v
}

// Item returns a copy of one item.
func (e *engine) Item(id model.ItemID) (model.Item, bool) {
	var (
		it model.Item
		ok bool
	)
	_ = e.do(func(x *view.Index) bool {
		it, ok = x.Item(id)
		return false
	})
	return it, ok
}

// Items returns copies of every item ordered by (name, id).
func (e *engine) Items() []model.Item {
	var items []model.Item
	_ = e.do(func(x *view.Index) bool {
		items = x.Items()
		return false
	})
	return items
}

// Len returns the number of items in the index.
func (e *engine) Len() int {
	var n int
	_ = e.do(func(x *view.Index) bool {
		n = x.Len()
		return false
	})
	return n
}
