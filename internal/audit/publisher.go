package audit

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"duffel/internal/platform/metrics"
	"duffel/pkg/event"
	"duffel/pkg/model"
)

// ErrBufferFull is returned by async emits when the journal worker cannot
// keep up. The change itself is already committed; only the journal entry
// is lost.
var ErrBufferFull = errors.New("journal buffer full")

const appendTimeout = 5 * time.Second

// Emitter is the sink surface the mutation service writes committed events
// to. Implementations must tolerate at-least-once delivery.
type Emitter interface {
	Emit(ctx context.Context, ev event.ChangeEvent) error
	Close()
}

// Publisher journals change events through a Store. By default appends run
// synchronously on the caller's goroutine; WithAsyncBuffer moves them to a
// worker so publishing never blocks the hub's critical section.
type Publisher struct {
	log   *slog.Logger
	store Store
	m     *metrics.Metrics

	inbox chan Entry
	done  chan struct{}
	once  sync.Once
}

type PublisherOption func(*Publisher)

// WithAsyncBuffer enables asynchronous appends with the given buffer size.
func WithAsyncBuffer(size int) PublisherOption {
	return func(p *Publisher) {
		p.inbox = make(chan Entry, size)
	}
}

func NewPublisher(log *slog.Logger, store Store, m *metrics.Metrics, opts ...PublisherOption) *Publisher {
	p := &Publisher{log: log, store: store, m: m}
	for _, opt := range opts {
		opt(p)
	}
	if p.inbox != nil {
		p.done = make(chan struct{})
		go p.run()
	}
	return p
}

func (p *Publisher) Emit(ctx context.Context, ev event.ChangeEvent) error {
	entry, err := EntryOf(ev)
	if err != nil {
		return err
	}
	if entry.At.IsZero() {
		entry.At = time.Now()
	}

	if p.inbox == nil {
		return p.store.Append(ctx, entry)
	}

	select {
	case p.inbox <- entry:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		p.m.AuditDropped.Inc()
		p.log.WarnContext(ctx, "journal entry dropped",
			"list_id", entry.ListID,
			"seq", entry.Seq,
			"action", entry.Action)
		return ErrBufferFull
	}
}

// List returns the newest journal entries of a list, highest seq first.
func (p *Publisher) List(ctx context.Context, listID model.ListID, limit int) ([]Entry, error) {
	return p.store.ListByList(ctx, listID, limit)
}

// Close stops the async worker after draining buffered entries. Safe to
// call in sync mode and more than once.
func (p *Publisher) Close() {
	if p.inbox == nil {
		return
	}
	p.once.Do(func() {
		close(p.inbox)
		<-p.done
	})
}

func (p *Publisher) run() {
	defer close(p.done)
	for entry := range p.inbox {
		ctx, cancel := context.WithTimeout(context.Background(), appendTimeout)
		if err := p.store.Append(ctx, entry); err != nil {
			p.log.Error("journal append failed",
				"error", err,
				"list_id", entry.ListID,
				"seq", entry.Seq)
		}
		cancel()
	}
}
