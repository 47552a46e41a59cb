package client

import (
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"duffel/pkg/event"
	"duffel/pkg/model"
)

const (
	handshakeTimeout = 10 * time.Second
	welcomeWait      = 10 * time.Second
	writeWait        = 10 * time.Second
	// The server pings every 30 seconds; three missed pings mean the
	// connection is gone.
	readIdleWait = 90 * time.Second

	maxFrameBytes = 64 * 1024

	backoffInitial = time.Second
	backoffMax     = 30 * time.Second
)

// conn keeps one websocket subscription to a list's room alive. It dials,
// joins, hands every change frame to the scheduler and reconnects with
// jittered backoff when the connection drops. Mutations never travel here;
// the socket is server to client only.
type conn struct {
	log       *slog.Logger
	url       string
	token     string
	listID    model.ListID
	actorID   model.ActorID
	scheduler *scheduler
	onConnect func(event.Welcome)

	quit      chan struct{}
	done      chan struct{}
	started   atomic.Bool
	closeOnce sync.Once

	mu     sync.Mutex
	socket *websocket.Conn
}

func newConn(log *slog.Logger, url, token string, listID model.ListID, actorID model.ActorID, sched *scheduler, onConnect func(event.Welcome)) *conn {
	return &conn{
		log:       log,
		url:       url,
		token:     token,
		listID:    listID,
		actorID:   actorID,
		scheduler: sched,
		onConnect: onConnect,
		quit:      make(chan struct{}),
		done:      make(chan struct{}),
	}
}

func (c *conn) start() {
	if c.started.CompareAndSwap(false, true) {
		go c.run()
	}
}

func (c *conn) run() {
	defer close(c.done)
	backoff := backoffInitial
	for {
		if c.closing() {
			return
		}
		ws, welcome, err := c.dial()
		if err != nil {
			c.log.Warn("room connection failed", "list_id", c.listID, "error", err)
			if !c.sleep(backoff) {
				return
			}
			backoff = nextBackoff(backoff)
			continue
		}
		backoff = backoffInitial

		c.setSocket(ws)
		c.onConnect(welcome)
		err = c.read(ws)
		c.setSocket(nil)
		_ = ws.Close()

		if c.closing() {
			return
		}
		c.log.Info("room connection lost", "list_id", c.listID, "error", err)
		if !c.sleep(backoff) {
			return
		}
		backoff = nextBackoff(backoff)
	}
}

// dial connects, sends the join frame and waits for the welcome.
func (c *conn) dial() (*websocket.Conn, event.Welcome, error) {
	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	header := http.Header{}
	header.Set("Authorization", "Bearer "+c.token)

	ws, resp, err := dialer.Dial(c.url, header)
	if err != nil {
		if resp != nil {
			_ = resp.Body.Close()
			return nil, event.Welcome{}, fmt.Errorf("dial %s: %s: %w", c.url, resp.Status, err)
		}
		return nil, event.Welcome{}, fmt.Errorf("dial %s: %w", c.url, err)
	}

	join, err := event.EncodeJoin(c.listID, c.actorID)
	if err != nil {
		_ = ws.Close()
		return nil, event.Welcome{}, err
	}
	_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
	if err := ws.WriteMessage(websocket.TextMessage, join); err != nil {
		_ = ws.Close()
		return nil, event.Welcome{}, fmt.Errorf("send join: %w", err)
	}

	_ = ws.SetReadDeadline(time.Now().Add(welcomeWait))
	_, raw, err := ws.ReadMessage()
	if err != nil {
		_ = ws.Close()
		return nil, event.Welcome{}, fmt.Errorf("read welcome: %w", err)
	}
	msg, err := event.DecodeMessage(raw)
	if err != nil {
		_ = ws.Close()
		return nil, event.Welcome{}, err
	}
	switch msg.Kind {
	case event.MessageWelcome:
		return ws, msg.Welcome, nil
	case event.MessageProblem:
		_ = ws.Close()
		return nil, event.Welcome{}, fmt.Errorf("join rejected: %s: %s", msg.Problem.Code, msg.Problem.Message)
	default:
		_ = ws.Close()
		return nil, event.Welcome{}, fmt.Errorf("expected welcome, got frame kind %d", msg.Kind)
	}
}

// read pumps frames into the scheduler until the socket dies.
func (c *conn) read(ws *websocket.Conn) error {
	ws.SetReadLimit(maxFrameBytes)
	_ = ws.SetReadDeadline(time.Now().Add(readIdleWait))
	ws.SetPingHandler(func(string) error {
		_ = ws.SetReadDeadline(time.Now().Add(readIdleWait))
		return ws.WriteControl(websocket.PongMessage, nil, time.Now().Add(writeWait))
	})

	for {
		_, raw, err := ws.ReadMessage()
		if err != nil {
			return err
		}
		_ = ws.SetReadDeadline(time.Now().Add(readIdleWait))

		msg, err := event.DecodeMessage(raw)
		if err != nil {
			c.log.Warn("dropping undecodable frame", "list_id", c.listID, "error", err)
			continue
		}
		switch msg.Kind {
		case event.MessageChange:
			c.scheduler.OnEvent(msg.Change)
		case event.MessageProblem:
			// The server closes right after a problem frame; the close
			// error surfaces on the next read. A shed connection means
			// events were dropped, so the reconnect's resync is what
			// restores correctness.
			c.log.Warn("server reported a problem", "list_id", c.listID,
				"code", msg.Problem.Code, "message", msg.Problem.Message)
		case event.MessageUnknown:
			// Newer servers may send frame types this build does not know.
		}
	}
}

func (c *conn) setSocket(ws *websocket.Conn) {
	c.mu.Lock()
	c.socket = ws
	c.mu.Unlock()
}

func (c *conn) closing() bool {
	select {
	case <-c.quit:
		return true
	default:
		return false
	}
}

// sleep waits the jittered backoff, returning false when the conn closed.
func (c *conn) sleep(d time.Duration) bool {
	t := time.NewTimer(jitter(d))
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-c.quit:
		return false
	}
}

// jitter spreads reconnect attempts across half to one and a half times the
// base delay so clients dropped together do not dial together.
func jitter(d time.Duration) time.Duration {
	return time.Duration(float64(d) * (0.5 + rand.Float64()))
}

func nextBackoff(d time.Duration) time.Duration {
	d *= 2
	if d > backoffMax {
		d = backoffMax
	}
	return d
}

// Close tears the connection down and waits for the run loop to exit.
func (c *conn) Close() {
	c.closeOnce.Do(func() { close(c.quit) })
	c.mu.Lock()
	if c.socket != nil {
		_ = c.socket.Close()
	}
	c.mu.Unlock()
	if c.started.Load() {
		<-c.done
	}
}
