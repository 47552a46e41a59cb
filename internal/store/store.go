// Package store persists lists, containers and items. Storage is the
// authority for entity state and for each list's high-water sequence
// number; rooms derive their counters from it at creation so sequence
// numbers stay monotonic across process restarts.
//
// Implementations return the fault sentinels for missing and conflicting
// rows; services translate them into coded errors.
package store

import (
	"context"

	"duffel/pkg/model"
)

// Store is the persistence contract. Writes carry the sequence number the
// mutation was assigned; implementations record it on the entity and raise
// the list's last_seq in the same operation.
type Store interface {
	CreateList(ctx context.Context, list model.List) error
	GetList(ctx context.Context, id model.ListID) (model.List, error)
	ListExists(ctx context.Context, id model.ListID) (bool, error)
	// MaxSeq returns the highest sequence number the list has issued. It
	// never decreases, even when the entities that carried it are gone.
	MaxSeq(ctx context.Context, id model.ListID) (uint64, error)

	GetItem(ctx context.Context, id model.ItemID) (model.Item, error)
	// PutItem inserts or replaces an item and raises the list's last_seq
	// to the item's seq.
	PutItem(ctx context.Context, item model.Item) error
	// DeleteItem removes an item. seq is the sequence number of the
	// deletion and raises last_seq like a write.
	DeleteItem(ctx context.Context, id model.ItemID, seq uint64) error
	ItemsByList(ctx context.Context, listID model.ListID) ([]model.Item, error)
	// ItemsUnassigned returns the items of a list with no container of the
	// given kind, in (name, id) order like every other item query.
	ItemsUnassigned(ctx context.Context, listID model.ListID, kind model.ContainerKind) ([]model.Item, error)
	ItemsInContainer(ctx context.Context, listID model.ListID, containerID model.ContainerID) ([]model.Item, error)

	GetContainer(ctx context.Context, id model.ContainerID) (model.Container, error)
	PutContainer(ctx context.Context, c model.Container) error
	DeleteContainer(ctx context.Context, id model.ContainerID, seq uint64) error
	ContainersByList(ctx context.Context, listID model.ListID) ([]model.Container, error)
}
