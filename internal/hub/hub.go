// Package hub manages per-list rooms. A room assigns every mutation its
// sequence number and fans the resulting change events out to subscribers.
// Sequence assignment and persistence happen inside one critical section per
// list, so storage order always matches sequence order.
package hub

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"duffel/internal/platform/metrics"
	"duffel/pkg/event"
	"duffel/pkg/fault"
	"duffel/pkg/model"
)

// defaultQueueSize bounds each subscription's event queue. A subscriber that
// falls this far behind is shed rather than allowed to stall the room.
const defaultQueueSize = 64

// Authorizer decides whether an actor may join a list's room.
type Authorizer interface {
	CanAccess(ctx context.Context, actor model.ActorID, list model.ListID) (bool, error)
}

// Catalog is the slice of the store the hub needs: list existence and the
// persisted sequence high-water mark rooms initialize their counters from.
type Catalog interface {
	ListExists(ctx context.Context, id model.ListID) (bool, error)
	MaxSeq(ctx context.Context, id model.ListID) (uint64, error)
}

// Member describes one live subscription for presence listings.
type Member struct {
	ConnID   uuid.UUID     `json:"connId"`
	ActorID  model.ActorID `json:"actorId"`
	Device   string        `json:"device"`
	JoinedAt time.Time     `json:"joinedAt"`
}

// Subscription is one reader attached to a room. Events arrive on Events
// until the subscriber leaves or is shed; either way the channel is closed
// by the hub, never by the subscriber.
type Subscription struct {
	connID  uuid.UUID
	listID  model.ListID
	actor   model.ActorID
	device  string
	joined  time.Time
	joinSeq uint64
	events  chan event.ChangeEvent
	shed    atomic.Bool
}

func (s *Subscription) ConnID() uuid.UUID                { return s.connID }
func (s *Subscription) ListID() model.ListID             { return s.listID }
func (s *Subscription) ActorID() model.ActorID           { return s.actor }
func (s *Subscription) Events() <-chan event.ChangeEvent { return s.events }

// JoinSeq is the list's sequence number at the moment of the join. Anything
// published after it reaches the subscription's channel.
func (s *Subscription) JoinSeq() uint64 { return s.joinSeq }

// Shed reports whether the hub dropped this subscription for falling
// behind. Checked by transports after Events closes.
func (s *Subscription) Shed() bool { return s.shed.Load() }

type room struct {
	mu   sync.Mutex
	seq  uint64
	subs map[uuid.UUID]*Subscription
	// gone marks a reaped room; holders must re-resolve through the hub.
	gone bool
}

// Hub owns all rooms of one process.
type Hub struct {
	log     *slog.Logger
	auth    Authorizer
	catalog Catalog
	queue   int
	m       *metrics.Metrics

	mu    sync.RWMutex
	rooms map[model.ListID]*room
}

// Option configures a Hub.
type Option func(*Hub)

// WithQueueSize overrides the per-subscription queue bound.
func WithQueueSize(n int) Option {
	return func(h *Hub) {
		if n > 0 {
			h.queue = n
		}
	}
}

// New builds a hub.
func New(log *slog.Logger, auth Authorizer, catalog Catalog, m *metrics.Metrics, opts ...Option) *Hub {
	h := &Hub{
		log:     log,
		auth:    auth,
		catalog: catalog,
		queue:   defaultQueueSize,
		m:       m,
		rooms:   make(map[model.ListID]*room),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// liveRoom resolves the list's room, creating it with a counter initialized
// from the store's high-water mark, and returns it with r.mu held. It
// retries when it loses a race with a reap.
func (h *Hub) liveRoom(ctx context.Context, listID model.ListID) (*room, error) {
	for {
		h.mu.RLock()
		r, ok := h.rooms[listID]
		h.mu.RUnlock()

		if !ok {
			seq, err := h.catalog.MaxSeq(ctx, listID)
			if err != nil {
				return nil, fmt.Errorf("room seq for list %s: %w", listID, err)
			}
			h.mu.Lock()
			if existing, ok := h.rooms[listID]; ok {
				r = existing
			} else {
				r = &room{seq: seq, subs: make(map[uuid.UUID]*Subscription)}
				h.rooms[listID] = r
				h.m.RoomsActive.Inc()
			}
			h.mu.Unlock()
		}

		r.mu.Lock()
		if r.gone {
			r.mu.Unlock()
			continue
		}
		return r, nil
	}
}

// Join authorizes the actor, attaches a subscription to the list's room and
// returns it. The caller must Leave it when done.
func (h *Hub) Join(ctx context.Context, listID model.ListID, actor model.ActorID, device string) (*Subscription, error) {
	ok, err := h.auth.CanAccess(ctx, actor, listID)
	if err != nil {
		return nil, fault.Wrap(fault.CodeInternal, "authorize join", err)
	}
	if !ok {
		return nil, fault.New(fault.CodeUnauthorized, "actor is not a member of this list")
	}

	exists, err := h.catalog.ListExists(ctx, listID)
	if err != nil {
		return nil, fault.Wrap(fault.CodeInternal, "resolve list", err)
	}
	if !exists {
		return nil, fault.Newf(fault.CodeRoomUnavailable, "list %s does not exist", listID)
	}

	r, err := h.liveRoom(ctx, listID)
	if err != nil {
		return nil, fault.Wrap(fault.CodeInternal, "open room", err)
	}
	defer r.mu.Unlock()

	sub := &Subscription{
		connID:  uuid.New(),
		listID:  listID,
		actor:   actor,
		device:  device,
		joined:  time.Now().UTC(),
		joinSeq: r.seq,
		events:  make(chan event.ChangeEvent, h.queue),
	}
	r.subs[sub.connID] = sub
	h.m.SubscribersActive.Inc()

	h.log.InfoContext(ctx, "subscriber joined",
		"list_id", listID.String(),
		"actor_id", actor.String(),
		"conn_id", sub.connID.String(),
		"device", sub.device,
		"join_seq", sub.joinSeq,
	)
	return sub, nil
}

// Leave detaches the subscription and closes its channel. Leaving twice, or
// leaving after being shed, is a no-op. Empty rooms are reaped; their
// counters are safe in the store's high-water mark.
func (h *Hub) Leave(sub *Subscription) {
	h.mu.RLock()
	r, ok := h.rooms[sub.listID]
	h.mu.RUnlock()
	if !ok {
		return
	}

	r.mu.Lock()
	if _, present := r.subs[sub.connID]; present {
		delete(r.subs, sub.connID)
		close(sub.events)
		h.m.SubscribersActive.Dec()
	}
	empty := len(r.subs) == 0
	r.mu.Unlock()

	if !empty {
		return
	}

	// Reap under the write lock, rechecking: a join may have raced in.
	h.mu.Lock()
	if cur, ok := h.rooms[sub.listID]; ok && cur == r {
		r.mu.Lock()
		if len(r.subs) == 0 && !r.gone {
			r.gone = true
			delete(h.rooms, sub.listID)
			h.m.RoomsActive.Dec()
		}
		r.mu.Unlock()
	}
	h.mu.Unlock()
}

// Publish runs build inside the list's critical section. build receives a
// sequencer handing out consecutive sequence numbers and must persist each
// entity it stamps before returning; the returned events fan out to every
// subscriber except origin. A build error discards the staged numbers.
// Partially applied bulk builds return their successes and nil, which may
// leave gaps; gaps are harmless because subscribers never replay by range.
func (h *Hub) Publish(ctx context.Context, listID model.ListID, origin uuid.UUID, build func(next func() uint64) ([]event.ChangeEvent, error)) ([]event.ChangeEvent, error) {
	r, err := h.liveRoom(ctx, listID)
	if err != nil {
		return nil, fault.Wrap(fault.CodeInternal, "open room", err)
	}
	defer r.mu.Unlock()

	start := time.Now()
	staged := r.seq
	next := func() uint64 {
		staged++
		return staged
	}

	events, err := build(next)
	if err != nil {
		return nil, err
	}
	r.seq = staged

	for _, ev := range events {
		h.m.EventsPublished.Inc()
		for connID, sub := range r.subs {
			if connID == origin {
				continue
			}
			select {
			case sub.events <- ev:
				h.m.EventsDelivered.Inc()
			default:
				h.shedLocked(ctx, r, sub)
			}
		}
	}
	h.m.ObservePublish(time.Since(start))
	return events, nil
}

// shedLocked drops a subscription whose queue is full. Callers hold r.mu.
func (h *Hub) shedLocked(ctx context.Context, r *room, sub *Subscription) {
	delete(r.subs, sub.connID)
	sub.shed.Store(true)
	close(sub.events)
	h.m.SubscribersActive.Dec()
	h.m.SubscribersShed.Inc()
	h.log.WarnContext(ctx, "subscriber shed for backpressure",
		"list_id", sub.listID.String(),
		"actor_id", sub.actor.String(),
		"conn_id", sub.connID.String(),
		"queue", h.queue,
	)
}

// Seq returns the list's current sequence number.
func (h *Hub) Seq(ctx context.Context, listID model.ListID) (uint64, error) {
	r, err := h.liveRoom(ctx, listID)
	if err != nil {
		return 0, err
	}
	defer r.mu.Unlock()
	return r.seq, nil
}

// Presence lists the room's live subscriptions.
func (h *Hub) Presence(ctx context.Context, listID model.ListID) ([]Member, error) {
	r, err := h.liveRoom(ctx, listID)
	if err != nil {
		return nil, err
	}
	defer r.mu.Unlock()

	members := make([]Member, 0, len(r.subs))
	for _, sub := range r.subs {
		members = append(members, Member{
			ConnID:   sub.connID,
			ActorID:  sub.actor,
			Device:   sub.device,
			JoinedAt: sub.joined,
		})
	}
	return members, nil
}
