package ws

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"duffel/internal/auth"
	"duffel/internal/auth/device"
	"duffel/internal/hub"
	"duffel/internal/platform/metrics"
	"duffel/internal/service"
	"duffel/internal/store"
	"duffel/pkg/event"
	"duffel/pkg/model"
)

type wsFixture struct {
	srv    *httptest.Server
	svc    *service.Service
	tokens *auth.TokenManager
	actor  model.ActorID
	token  string
	listID model.ListID
}

func newWSFixture(t *testing.T) *wsFixture {
	t.Helper()
	log := slog.New(slog.DiscardHandler)
	m := metrics.New(prometheus.NewRegistry())

	st := store.NewMemory()
	acl := auth.NewMemoryACL()
	h := hub.New(log, acl, st, m)
	svc := service.New(log, st, h, acl)
	tokens := auth.NewTokenManager("test-secret", "duffel-test", time.Hour)

	r := chi.NewRouter()
	r.Handle("/v1/lists/{listID}/ws", NewHandler(log, h, tokens, device.NewService(true)))
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	actor := model.NewActorID()
	token, err := tokens.Mint(actor)
	require.NoError(t, err)

	list, err := svc.CreateList(context.Background(), actor, "sweden trip")
	require.NoError(t, err)

	return &wsFixture{
		srv:    srv,
		svc:    svc,
		tokens: tokens,
		actor:  actor,
		token:  token,
		listID: list.ID,
	}
}

func (f *wsFixture) wsURL(listID model.ListID) string {
	return "ws" + strings.TrimPrefix(f.srv.URL, "http") + "/v1/lists/" + listID.String() + "/ws"
}

// dial connects and completes the join handshake, returning the connection
// and the welcome.
func (f *wsFixture) dial(t *testing.T) (*websocket.Conn, event.Welcome) {
	t.Helper()
	conn := f.dialRaw(t, f.token)

	joinFrame, err := event.EncodeJoin(f.listID, f.actor)
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, joinFrame))

	msg := readFrame(t, conn)
	require.Equal(t, event.MessageWelcome, msg.Kind, "expected a welcome frame")
	return conn, msg.Welcome
}

func (f *wsFixture) dialRaw(t *testing.T, token string) *websocket.Conn {
	t.Helper()
	header := http.Header{}
	if token != "" {
		header.Set("Authorization", "Bearer "+token)
	}
	conn, resp, err := websocket.DefaultDialer.Dial(f.wsURL(f.listID), header)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) event.Message {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)
	msg, err := event.DecodeMessage(raw)
	require.NoError(t, err)
	return msg
}

func TestJoinHandshake(t *testing.T) {
	f := newWSFixture(t)
	_, welcome := f.dial(t)

	assert.NotEqual(t, uuid.Nil, welcome.ConnID)
	assert.Zero(t, welcome.Seq, "fresh list starts at sequence zero")
}

func TestChangeFramesReachSubscribers(t *testing.T) {
	f := newWSFixture(t)
	conn, _ := f.dial(t)

	item, err := f.svc.CreateItem(context.Background(), f.actor, uuid.Nil, f.listID, service.CreateItemParams{Name: "wool socks"})
	require.NoError(t, err)

	msg := readFrame(t, conn)
	require.Equal(t, event.MessageChange, msg.Kind)
	assert.Equal(t, "item_created", msg.Change.WireType())
	assert.Equal(t, item.Seq, msg.Change.Seq)
	require.NotNil(t, msg.Change.After)
	assert.Equal(t, "wool socks", msg.Change.After.Name)
}

func TestOriginConnectionIsNotEchoed(t *testing.T) {
	f := newWSFixture(t)
	origin, welcome := f.dial(t)
	other, _ := f.dial(t)

	_, err := f.svc.CreateItem(context.Background(), f.actor, welcome.ConnID, f.listID, service.CreateItemParams{Name: "headlamp"})
	require.NoError(t, err)

	msg := readFrame(t, other)
	require.Equal(t, event.MessageChange, msg.Kind)
	assert.Equal(t, "item_created", msg.Change.WireType())

	// The originating connection stays silent.
	require.NoError(t, origin.SetReadDeadline(time.Now().Add(300*time.Millisecond)))
	_, _, err = origin.ReadMessage()
	assert.Error(t, err, "origin must not receive its own mutation")
}

func TestJoinFrameMustMatchConnection(t *testing.T) {
	f := newWSFixture(t)
	conn := f.dialRaw(t, f.token)

	// Join naming a different actor than the token authenticated.
	joinFrame, err := event.EncodeJoin(f.listID, model.NewActorID())
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, joinFrame))

	msg := readFrame(t, conn)
	require.Equal(t, event.MessageProblem, msg.Kind)
	assert.Equal(t, "validation_rejected", msg.Problem.Code)
}

func TestFirstFrameMustBeJoin(t *testing.T) {
	f := newWSFixture(t)
	conn := f.dialRaw(t, f.token)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"welcome"}`)))

	msg := readFrame(t, conn)
	require.Equal(t, event.MessageProblem, msg.Kind)
	assert.Equal(t, "validation_rejected", msg.Problem.Code)
}

func TestDialWithoutTokenIsRejected(t *testing.T) {
	f := newWSFixture(t)

	_, resp, err := websocket.DefaultDialer.Dial(f.wsURL(f.listID), nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestTokenViaQueryParameter(t *testing.T) {
	f := newWSFixture(t)

	conn, resp, err := websocket.DefaultDialer.Dial(f.wsURL(f.listID)+"?token="+f.token, nil)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	defer conn.Close()

	joinFrame, err := event.EncodeJoin(f.listID, f.actor)
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, joinFrame))

	msg := readFrame(t, conn)
	assert.Equal(t, event.MessageWelcome, msg.Kind)
}

func TestStrangerCannotJoin(t *testing.T) {
	f := newWSFixture(t)
	stranger := model.NewActorID()
	strangerToken, err := f.tokens.Mint(stranger)
	require.NoError(t, err)

	// The handshake only authenticates; membership is checked at join.
	conn := f.dialRaw(t, strangerToken)

	joinFrame, err := event.EncodeJoin(f.listID, stranger)
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, joinFrame))

	msg := readFrame(t, conn)
	require.Equal(t, event.MessageProblem, msg.Kind)
	assert.Equal(t, "unauthorized", msg.Problem.Code)
}
