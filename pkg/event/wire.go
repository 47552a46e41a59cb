package event

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"duffel/pkg/model"
)

// Frame is the envelope every websocket message travels in. Type selects
// the payload shape carried in Data.
type Frame struct {
	Type    string          `json:"type"`
	ListID  model.ListID    `json:"listId,omitzero"`
	ActorID model.ActorID   `json:"actorId,omitzero"`
	Seq     uint64          `json:"seq,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

const (
	frameJoin    = "join"
	frameWelcome = "welcome"
	frameError   = "error"
)

// ProblemSlowConsumer is the problem code a server closes with after
// shedding a subscriber that fell behind the event stream. Clients respond
// by resyncing from a snapshot before reconnecting.
const ProblemSlowConsumer = "slow_consumer"

// Join is the first frame a client sends after the upgrade.
type Join struct {
	ListID  model.ListID  `json:"listId"`
	ActorID model.ActorID `json:"actorId"`
}

// Welcome is the server's acknowledgement of a join. ConnID identifies the
// connection; mutations carrying it are not echoed back on it. Seq is the
// list's sequence number at join time.
type Welcome struct {
	ConnID uuid.UUID `json:"connId"`
	Seq    uint64    `json:"seq"`
}

// Problem is the server's terminal error frame, sent before closing.
type Problem struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func encode(typ string, listID model.ListID, actorID model.ActorID, seq uint64, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("encode %s data: %w", typ, err)
	}
	return json.Marshal(Frame{Type: typ, ListID: listID, ActorID: actorID, Seq: seq, Data: raw})
}

func EncodeJoin(listID model.ListID, actorID model.ActorID) ([]byte, error) {
	return encode(frameJoin, listID, actorID, 0, Join{ListID: listID, ActorID: actorID})
}

func EncodeWelcome(listID model.ListID, connID uuid.UUID, seq uint64) ([]byte, error) {
	return encode(frameWelcome, listID, model.ActorID{}, seq, Welcome{ConnID: connID, Seq: seq})
}

func EncodeProblem(code, message string) ([]byte, error) {
	return encode(frameError, model.ListID{}, model.ActorID{}, 0, Problem{Code: code, Message: message})
}

// changePayload is the Data shape of change frames. The envelope already
// carries seq, list and actor.
type changePayload struct {
	EntityID uuid.UUID `json:"entityId"`
	BatchID  uuid.UUID `json:"batchId,omitzero"`
	At       time.Time `json:"at"`

	Before *model.Item `json:"before,omitempty"`
	After  *model.Item `json:"after,omitempty"`

	ContainerBefore *model.Container `json:"containerBefore,omitempty"`
	ContainerAfter  *model.Container `json:"containerAfter,omitempty"`

	Scopes []model.ContainerKind `json:"scopes,omitempty"`
}

// WireType returns the frame type string for a change event, for example
// "item_updated" or "bag_deleted".
func (ev ChangeEvent) WireType() string {
	return string(ev.Entity) + "_" + string(ev.Kind)
}

// EncodeChange encodes a change event into its wire frame.
func EncodeChange(ev ChangeEvent) ([]byte, error) {
	return encode(ev.WireType(), ev.ListID, ev.ActorID, ev.Seq, changePayload{
		EntityID:        ev.EntityID,
		BatchID:         ev.BatchID,
		At:              ev.At,
		Before:          ev.Before,
		After:           ev.After,
		ContainerBefore: ev.ContainerBefore,
		ContainerAfter:  ev.ContainerAfter,
		Scopes:          ev.Scopes,
	})
}

// MessageKind discriminates decoded frames.
type MessageKind int

const (
	// MessageUnknown marks frame types this build does not understand.
	// Receivers skip them, so the protocol can grow without lockstep
	// upgrades.
	MessageUnknown MessageKind = iota
	MessageJoin
	MessageWelcome
	MessageProblem
	MessageChange
)

// Message is one decoded frame. Exactly the field matching Kind is set.
type Message struct {
	Kind    MessageKind
	Join    Join
	Welcome Welcome
	Problem Problem
	Change  ChangeEvent
}

// DecodeMessage decodes a raw websocket frame. Unknown frame types decode
// to MessageUnknown without error.
func DecodeMessage(b []byte) (Message, error) {
	var f Frame
	if err := json.Unmarshal(b, &f); err != nil {
		return Message{}, fmt.Errorf("decode frame: %w", err)
	}

	switch f.Type {
	case frameJoin:
		var j Join
		if err := json.Unmarshal(f.Data, &j); err != nil {
			return Message{}, fmt.Errorf("decode join: %w", err)
		}
		return Message{Kind: MessageJoin, Join: j}, nil
	case frameWelcome:
		var w Welcome
		if err := json.Unmarshal(f.Data, &w); err != nil {
			return Message{}, fmt.Errorf("decode welcome: %w", err)
		}
		return Message{Kind: MessageWelcome, Welcome: w}, nil
	case frameError:
		var p Problem
		if err := json.Unmarshal(f.Data, &p); err != nil {
			return Message{}, fmt.Errorf("decode error frame: %w", err)
		}
		return Message{Kind: MessageProblem, Problem: p}, nil
	}

	entity, kind, ok := splitWireType(f.Type)
	if !ok {
		return Message{Kind: MessageUnknown}, nil
	}

	var p changePayload
	if len(f.Data) > 0 {
		if err := json.Unmarshal(f.Data, &p); err != nil {
			return Message{}, fmt.Errorf("decode %s: %w", f.Type, err)
		}
	}
	return Message{Kind: MessageChange, Change: ChangeEvent{
		Seq:             f.Seq,
		ListID:          f.ListID,
		ActorID:         f.ActorID,
		Kind:            kind,
		Entity:          entity,
		EntityID:        p.EntityID,
		BatchID:         p.BatchID,
		At:              p.At,
		Before:          p.Before,
		After:           p.After,
		ContainerBefore: p.ContainerBefore,
		ContainerAfter:  p.ContainerAfter,
		Scopes:          p.Scopes,
	}}, nil
}

func splitWireType(typ string) (EntityType, Kind, bool) {
	i := strings.LastIndexByte(typ, '_')
	if i <= 0 || i == len(typ)-1 {
		return "", "", false
	}
	entity, verb := EntityType(typ[:i]), Kind(typ[i+1:])

	switch entity {
	case EntityItem, EntityCategory, EntityBag, EntityTraveler, EntityList:
	default:
		return "", "", false
	}
	switch verb {
	case KindCreated, KindUpdated, KindDeleted, KindInvalidated:
	default:
		return "", "", false
	}
	return entity, verb, true
}
