package hub

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"duffel/internal/platform/metrics"
	"duffel/internal/store"
	"duffel/pkg/event"
	"duffel/pkg/fault"
	"duffel/pkg/model"
)

// memberOf allows the actors it was built with and rejects everyone else.
type memberOf map[model.ActorID]bool

func (m memberOf) CanAccess(_ context.Context, actor model.ActorID, _ model.ListID) (bool, error) {
	return m[actor], nil
}

type fixture struct {
	hub    *Hub
	store  *store.Memory
	listID model.ListID
	actor  model.ActorID
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	ctx := context.Background()

	st := store.NewMemory()
	listID := model.NewListID()
	require.NoError(t, st.CreateList(ctx, model.List{ID: listID, Name: "trip"}))

	actor := model.NewActorID()
	h := New(
		slog.New(slog.DiscardHandler),
		memberOf{actor: true},
		st,
		metrics.New(prometheus.NewRegistry()),
		opts...,
	)
	return &fixture{hub: h, store: st, listID: listID, actor: actor}
}

func publishOne(t *testing.T, f *fixture, origin uuid.UUID, name string) event.ChangeEvent {
	t.Helper()
	events, err := f.hub.Publish(context.Background(), f.listID, origin, func(next func() uint64) ([]event.ChangeEvent, error) {
		it := model.Item{ID: model.NewItemID(), ListID: f.listID, Name: name, Quantity: 1, Seq: next()}
		if err := f.store.PutItem(context.Background(), it); err != nil {
			return nil, err
		}
		return []event.ChangeEvent{event.ItemCreated(f.actor, it)}, nil
	})
	require.NoError(t, err)
	require.Len(t, events, 1)
	return events[0]
}

func TestJoinRejectsNonMembers(t *testing.T) {
	f := newFixture(t)

	_, err := f.hub.Join(context.Background(), f.listID, model.NewActorID(), "cli")
	require.Error(t, err)
	assert.True(t, fault.HasCode(err, fault.CodeUnauthorized))
}

func TestJoinRejectsUnknownList(t *testing.T) {
	f := newFixture(t)

	_, err := f.hub.Join(context.Background(), model.NewListID(), f.actor, "cli")
	require.Error(t, err)
	assert.True(t, fault.HasCode(err, fault.CodeRoomUnavailable))
}

func TestPublishFansOutExceptOrigin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	mine, err := f.hub.Join(ctx, f.listID, f.actor, "phone")
	require.NoError(t, err)
	defer f.hub.Leave(mine)

	other, err := f.hub.Join(ctx, f.listID, f.actor, "laptop")
	require.NoError(t, err)
	defer f.hub.Leave(other)

	published := publishOne(t, f, mine.ConnID(), "socks")

	select {
	case got := <-other.Events():
		assert.Equal(t, published.Seq, got.Seq)
		assert.Equal(t, published.EntityID, got.EntityID)
	case <-time.After(time.Second):
		t.Fatal("other subscriber never received the event")
	}

	select {
	case ev := <-mine.Events():
		t.Fatalf("origin received its own event seq %d", ev.Seq)
	default:
	}
}

func TestSeqResumesFromStore(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	seeded := model.Item{ID: model.NewItemID(), ListID: f.listID, Name: "old", Quantity: 1, Seq: 7}
	require.NoError(t, f.store.PutItem(ctx, seeded))

	sub, err := f.hub.Join(ctx, f.listID, f.actor, "cli")
	require.NoError(t, err)
	defer f.hub.Leave(sub)
	assert.Equal(t, uint64(7), sub.JoinSeq())

	ev := publishOne(t, f, uuid.Nil, "new")
	assert.Equal(t, uint64(8), ev.Seq)
}

func TestLeaveReapsRoomAndCounterSurvives(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	sub, err := f.hub.Join(ctx, f.listID, f.actor, "cli")
	require.NoError(t, err)
	publishOne(t, f, uuid.Nil, "socks")
	f.hub.Leave(sub)

	// The room was reaped with the counter at 1; a fresh room must resume
	// from the store, not restart at zero.
	seq, err := f.hub.Seq(ctx, f.listID)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), seq)

	ev := publishOne(t, f, uuid.Nil, "tent")
	assert.Equal(t, uint64(2), ev.Seq)
}

func TestLeaveTwiceIsANoOp(t *testing.T) {
	f := newFixture(t)

	sub, err := f.hub.Join(context.Background(), f.listID, f.actor, "cli")
	require.NoError(t, err)
	f.hub.Leave(sub)
	f.hub.Leave(sub)
}

func TestBuildErrorDiscardsStagedSeqs(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.hub.Publish(ctx, f.listID, uuid.Nil, func(next func() uint64) ([]event.ChangeEvent, error) {
		next()
		next()
		return nil, errors.New("storage down")
	})
	require.Error(t, err)

	ev := publishOne(t, f, uuid.Nil, "socks")
	assert.Equal(t, uint64(1), ev.Seq, "failed build must not burn sequence numbers")
}

func TestSlowSubscriberIsShed(t *testing.T) {
	f := newFixture(t, WithQueueSize(1))
	ctx := context.Background()

	slow, err := f.hub.Join(ctx, f.listID, f.actor, "cli")
	require.NoError(t, err)
	healthy, err := f.hub.Join(ctx, f.listID, f.actor, "phone")
	require.NoError(t, err)
	defer f.hub.Leave(healthy)

	// First event fills slow's queue, second overflows it.
	publishOne(t, f, uuid.Nil, "one")
	publishOne(t, f, uuid.Nil, "two")

	drained := 0
	for range slow.Events() {
		drained++
	}
	assert.Equal(t, 1, drained)
	assert.True(t, slow.Shed())

	// The healthy subscriber and the room itself are unaffected.
	publishOne(t, f, uuid.Nil, "three")
	got := 0
	for len(healthy.Events()) > 0 {
		<-healthy.Events()
		got++
	}
	assert.Equal(t, 3, got)
	assert.False(t, healthy.Shed())
}

func TestConcurrentPublishesStayOrdered(t *testing.T) {
	f := newFixture(t, WithQueueSize(512))
	ctx := context.Background()

	sub, err := f.hub.Join(ctx, f.listID, f.actor, "cli")
	require.NoError(t, err)
	defer f.hub.Leave(sub)

	const writers, perWriter = 4, 25
	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				publishOne(t, f, uuid.Nil, "item")
			}
		}()
	}
	wg.Wait()

	var last uint64
	for i := 0; i < writers*perWriter; i++ {
		select {
		case ev := <-sub.Events():
			assert.Greater(t, ev.Seq, last, "delivery order must follow seq order")
			last = ev.Seq
		case <-time.After(time.Second):
			t.Fatalf("only %d of %d events delivered", i, writers*perWriter)
		}
	}
	assert.Equal(t, uint64(writers*perWriter), last)

	maxSeq, err := f.store.MaxSeq(ctx, f.listID)
	require.NoError(t, err)
	assert.Equal(t, last, maxSeq, "store high-water mark tracks the room counter")
}

func TestPresence(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a, err := f.hub.Join(ctx, f.listID, f.actor, "phone")
	require.NoError(t, err)
	defer f.hub.Leave(a)
	b, err := f.hub.Join(ctx, f.listID, f.actor, "laptop")
	require.NoError(t, err)
	defer f.hub.Leave(b)

	members, err := f.hub.Presence(ctx, f.listID)
	require.NoError(t, err)
	require.Len(t, members, 2)

	devices := map[string]bool{}
	for _, m := range members {
		devices[m.Device] = true
		assert.Equal(t, f.actor, m.ActorID)
	}
	assert.True(t, devices["phone"])
	assert.True(t, devices["laptop"])
}
