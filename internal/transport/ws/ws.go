// Package ws carries the live change feed. A client upgrades at
// /v1/lists/{listID}/ws, sends a join frame, receives a welcome with its
// connection ID and the list's sequence number, and from then on gets every
// change frame published to the room. Mutations travel over plain HTTP; the
// socket is server-to-client only.
package ws

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"duffel/internal/auth"
	"duffel/internal/auth/device"
	"duffel/internal/hub"
	"duffel/pkg/event"
	"duffel/pkg/fault"
	"duffel/pkg/model"
)

const (
	// joinWait bounds how long a fresh connection may sit silent before
	// its join frame arrives.
	joinWait   = 10 * time.Second
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second

	// Client frames after the join are control traffic only.
	maxFrameBytes = 4096
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// Handler upgrades requests and bridges room subscriptions onto sockets.
type Handler struct {
	log          *slog.Logger
	hub          *hub.Hub
	tokens       *auth.TokenManager
	fingerprints *device.Service
}

func NewHandler(log *slog.Logger, h *hub.Hub, tokens *auth.TokenManager, fingerprints *device.Service) *Handler {
	return &Handler{log: log, hub: h, tokens: tokens, fingerprints: fingerprints}
}

// bearerToken reads the credential from the Authorization header or, for
// browser websocket clients that cannot set headers, the token query
// parameter.
func bearerToken(r *http.Request) string {
	if header := r.Header.Get("Authorization"); header != "" {
		if raw, ok := strings.CutPrefix(header, "Bearer "); ok {
			return raw
		}
		return ""
	}
	return r.URL.Query().Get("token")
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	listID, err := model.ParseListID(chi.URLParam(r, "listID"))
	if err != nil {
		http.Error(w, "invalid list id", http.StatusBadRequest)
		return
	}

	actor, err := h.tokens.Verify(bearerToken(r))
	if err != nil {
		http.Error(w, "missing or invalid credentials", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.WarnContext(ctx, "websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	join, err := readJoin(conn)
	if err != nil {
		h.closeWith(conn, string(fault.CodeOf(err)), fault.Message(err), websocket.ClosePolicyViolation)
		return
	}
	if join.ListID != listID || join.ActorID != actor {
		h.closeWith(conn, string(fault.CodeValidation), "join frame does not match the connection", websocket.ClosePolicyViolation)
		return
	}

	userAgent := r.Header.Get("User-Agent")
	sub, err := h.hub.Join(ctx, listID, actor, device.ParseUserAgent(userAgent))
	if err != nil {
		h.closeWith(conn, string(fault.CodeOf(err)), fault.Message(err), websocket.ClosePolicyViolation)
		return
	}

	welcome, err := event.EncodeWelcome(listID, sub.ConnID(), sub.JoinSeq())
	if err != nil {
		h.hub.Leave(sub)
		h.log.ErrorContext(ctx, "encode welcome", "error", err)
		return
	}
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteMessage(websocket.TextMessage, welcome); err != nil {
		h.hub.Leave(sub)
		return
	}

	h.log.InfoContext(ctx, "websocket joined",
		"list_id", listID.String(),
		"actor_id", actor.String(),
		"conn_id", sub.ConnID().String(),
		"device", device.ParseUserAgent(userAgent),
		"device_fingerprint", h.fingerprints.ComputeFingerprint(userAgent),
	)

	done := make(chan struct{})
	go h.writePump(conn, sub, done)

	h.readPump(conn)
	h.hub.Leave(sub)
	<-done

	h.log.InfoContext(ctx, "websocket left",
		"list_id", listID.String(),
		"conn_id", sub.ConnID().String(),
		"shed", sub.Shed(),
	)
}

// readJoin waits for the first frame and requires it to be a join.
func readJoin(conn *websocket.Conn) (event.Join, error) {
	_ = conn.SetReadDeadline(time.Now().Add(joinWait))
	_, raw, err := conn.ReadMessage()
	if err != nil {
		return event.Join{}, fault.Wrap(fault.CodeTimeout, "no join frame before the deadline", err)
	}

	msg, err := event.DecodeMessage(raw)
	if err != nil {
		return event.Join{}, fault.Wrap(fault.CodeValidation, "malformed join frame", err)
	}
	if msg.Kind != event.MessageJoin {
		return event.Join{}, fault.New(fault.CodeValidation, "first frame must be a join")
	}
	return msg.Join, nil
}

// readPump drains the connection until it dies. Clients mutate over HTTP,
// so inbound frames past the join are ignored; the read keeps pong handling
// alive and detects the close.
func (h *Handler) readPump(conn *websocket.Conn) {
	conn.SetReadLimit(maxFrameBytes)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// writePump is the sole writer after the welcome. It forwards change frames
// and pings until the subscription channel closes or a write fails.
func (h *Handler) writePump(conn *websocket.Conn, sub *hub.Subscription, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case ev, ok := <-sub.Events():
			if !ok {
				if sub.Shed() {
					h.closeWith(conn, event.ProblemSlowConsumer, "connection fell behind the event stream", websocket.CloseTryAgainLater)
				} else {
					_ = conn.WriteControl(websocket.CloseMessage,
						websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
				}
				conn.Close()
				return
			}

			frame, err := event.EncodeChange(ev)
			if err != nil {
				h.log.Error("encode change frame", "error", err, "seq", ev.Seq)
				continue
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				conn.Close()
				return
			}

		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				conn.Close()
				return
			}
		}
	}
}

// closeWith sends a problem frame followed by a close frame.
func (h *Handler) closeWith(conn *websocket.Conn, code, message string, closeCode int) {
	if frame, err := event.EncodeProblem(code, message); err == nil {
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		_ = conn.WriteMessage(websocket.TextMessage, frame)
	}
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(closeCode, code), time.Now().Add(writeWait))
}
