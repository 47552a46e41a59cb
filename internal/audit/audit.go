// Package audit journals every committed change event. The journal is an
// append-only record for debugging sync disputes ("my socks vanished") and
// feeds the Kafka export consumed by analytics.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"duffel/pkg/event"
	"duffel/pkg/model"
)

// Entry is one journaled change.
type Entry struct {
	ID       uuid.UUID       `json:"id"`
	Seq      uint64          `json:"seq"`
	ListID   model.ListID    `json:"listId"`
	ActorID  model.ActorID   `json:"actorId"`
	Action   string          `json:"action"`
	EntityID uuid.UUID       `json:"entityId"`
	BatchID  uuid.UUID       `json:"batchId,omitzero"`
	At       time.Time       `json:"at"`
	Payload  json.RawMessage `json:"payload"`
}

// EntryOf flattens a change event into a journal entry. Payload keeps the
// full wire frame so consumers can replay exactly what subscribers saw.
func EntryOf(ev event.ChangeEvent) (Entry, error) {
	payload, err := event.EncodeChange(ev)
	if err != nil {
		return Entry{}, fmt.Errorf("encode journal payload: %w", err)
	}
	return Entry{
		ID:       uuid.New(),
		Seq:      ev.Seq,
		ListID:   ev.ListID,
		ActorID:  ev.ActorID,
		Action:   ev.WireType(),
		EntityID: ev.EntityID,
		BatchID:  ev.BatchID,
		At:       ev.At,
		Payload:  payload,
	}, nil
}

// Store persists journal entries.
type Store interface {
	Append(ctx context.Context, entry Entry) error
	// ListByList returns the newest entries of a list, highest seq first.
	ListByList(ctx context.Context, listID model.ListID, limit int) ([]Entry, error)
}
