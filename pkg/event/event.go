// Package event defines the change events that fan out to room subscribers
// and their wire encoding. Every committed mutation is described by one
// event per touched entity; events carry enough state for subscribers to
// update their views without a refetch.
package event

import (
	"time"

	"github.com/google/uuid"

	"duffel/pkg/model"
)

// Kind is the verb of a change event.
type Kind string

const (
	KindCreated Kind = "created"
	KindUpdated Kind = "updated"
	KindDeleted Kind = "deleted"
	// KindInvalidated marks a coarse trigger: the named scopes changed in
	// ways the event does not describe and must be refetched.
	KindInvalidated Kind = "invalidated"
)

// EntityType names what a change event is about.
type EntityType string

const (
	EntityItem     EntityType = "item"
	EntityCategory EntityType = "category"
	EntityBag      EntityType = "bag"
	EntityTraveler EntityType = "traveler"
	EntityList     EntityType = "list"
)

// EntityFor maps a container kind to its entity type.
func EntityFor(kind model.ContainerKind) EntityType {
	switch kind {
	case model.KindCategory:
		return EntityCategory
	case model.KindBag:
		return EntityBag
	case model.KindTraveler:
		return EntityTraveler
	}
	return ""
}

// KindOfEntity is the inverse of EntityFor. ok is false for entity types
// that are not containers.
func KindOfEntity(e EntityType) (model.ContainerKind, bool) {
	switch e {
	case EntityCategory:
		return model.KindCategory, true
	case EntityBag:
		return model.KindBag, true
	case EntityTraveler:
		return model.KindTraveler, true
	}
	return "", false
}

// ChangeEvent describes one committed change within a list. Seq is assigned
// by the list's room at publish time and is unique and monotonically
// increasing per list.
//
// For item events Before/After snapshot the full states around the change;
// for container events ContainerBefore/ContainerAfter do. Created events
// carry only the after state, deleted events only the before state.
// Events that belong to one bulk operation share a BatchID.
type ChangeEvent struct {
	Seq      uint64        `json:"seq"`
	ListID   model.ListID  `json:"listId"`
	ActorID  model.ActorID `json:"actorId"`
	Kind     Kind          `json:"kind"`
	Entity   EntityType    `json:"entity"`
	EntityID uuid.UUID     `json:"entityId"`
	BatchID  uuid.UUID     `json:"batchId,omitzero"`
	At       time.Time     `json:"at"`

	Before *model.Item `json:"before,omitempty"`
	After  *model.Item `json:"after,omitempty"`

	ContainerBefore *model.Container `json:"containerBefore,omitempty"`
	ContainerAfter  *model.Container `json:"containerAfter,omitempty"`

	// Scopes names the container kinds an invalidated event covers.
	Scopes []model.ContainerKind `json:"scopes,omitempty"`
}

// ItemCreated builds the event for a newly created item. The item must
// already carry its assigned seq.
func ItemCreated(actor model.ActorID, after model.Item) ChangeEvent {
	return ChangeEvent{
		Seq:      after.Seq,
		ListID:   after.ListID,
		ActorID:  actor,
		Kind:     KindCreated,
		Entity:   EntityItem,
		EntityID: uuid.UUID(after.ID),
		At:       time.Now().UTC(),
		After:    &after,
	}
}

// ItemUpdated builds the event for an item change. after must carry the
// assigned seq; before holds the state it replaced.
func ItemUpdated(actor model.ActorID, before, after model.Item) ChangeEvent {
	return ChangeEvent{
		Seq:      after.Seq,
		ListID:   after.ListID,
		ActorID:  actor,
		Kind:     KindUpdated,
		Entity:   EntityItem,
		EntityID: uuid.UUID(after.ID),
		At:       time.Now().UTC(),
		Before:   &before,
		After:    &after,
	}
}

// ItemDeleted builds the event for a removed item. seq is the sequence
// number of the deletion itself; before snapshots the item as it was.
func ItemDeleted(actor model.ActorID, seq uint64, before model.Item) ChangeEvent {
	return ChangeEvent{
		Seq:      seq,
		ListID:   before.ListID,
		ActorID:  actor,
		Kind:     KindDeleted,
		Entity:   EntityItem,
		EntityID: uuid.UUID(before.ID),
		At:       time.Now().UTC(),
		Before:   &before,
	}
}

// ContainerCreated builds the event for a new container.
func ContainerCreated(actor model.ActorID, after model.Container) ChangeEvent {
	return ChangeEvent{
		Seq:            after.Seq,
		ListID:         after.ListID,
		ActorID:        actor,
		Kind:           KindCreated,
		Entity:         EntityFor(after.Kind),
		EntityID:       uuid.UUID(after.ID),
		At:             time.Now().UTC(),
		ContainerAfter: &after,
	}
}

// ContainerUpdated builds the event for a container rename.
func ContainerUpdated(actor model.ActorID, before, after model.Container) ChangeEvent {
	return ChangeEvent{
		Seq:             after.Seq,
		ListID:          after.ListID,
		ActorID:         actor,
		Kind:            KindUpdated,
		Entity:          EntityFor(after.Kind),
		EntityID:        uuid.UUID(after.ID),
		At:              time.Now().UTC(),
		ContainerBefore: &before,
		ContainerAfter:  &after,
	}
}

// ContainerDeleted builds the event for a removed container. Items that
// referenced it are detached by separate item events or, past the cascade
// frame limit, by an invalidated event.
func ContainerDeleted(actor model.ActorID, seq uint64, before model.Container) ChangeEvent {
	return ChangeEvent{
		Seq:             seq,
		ListID:          before.ListID,
		ActorID:         actor,
		Kind:            KindDeleted,
		Entity:          EntityFor(before.Kind),
		EntityID:        uuid.UUID(before.ID),
		At:              time.Now().UTC(),
		ContainerBefore: &before,
	}
}

// Invalidated builds a coarse trigger covering the given container kinds.
func Invalidated(actor model.ActorID, listID model.ListID, seq uint64, scopes ...model.ContainerKind) ChangeEvent {
	return ChangeEvent{
		Seq:      seq,
		ListID:   listID,
		ActorID:  actor,
		Kind:     KindInvalidated,
		Entity:   EntityList,
		EntityID: uuid.UUID(listID),
		At:       time.Now().UTC(),
		Scopes:   scopes,
	}
}

// InBatch stamps the event with a shared batch id and returns it.
func (ev ChangeEvent) InBatch(batch uuid.UUID) ChangeEvent {
	ev.BatchID = batch
	return ev
}

// Complete reports whether the event fully describes the change, so a view
// can apply it directly instead of scheduling a refetch.
func (ev ChangeEvent) Complete() bool {
	switch ev.Kind {
	case KindCreated, KindUpdated:
		if ev.Entity == EntityItem {
			return ev.After != nil
		}
		return ev.ContainerAfter != nil
	case KindDeleted:
		return true
	}
	return false
}
