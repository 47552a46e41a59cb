package client

//go:generate mockgen -source=storage.go -destination=mocks/storage.go -package=mocks Storage

import (
	"context"

	"github.com/google/uuid"

	"duffel/pkg/fault"
	"duffel/pkg/model"
)

// ItemDraft carries the fields of an item about to be created.
type ItemDraft struct {
	Name     string    `json:"name"`
	Quantity int       `json:"quantity"`
	Packed   bool      `json:"packed"`
	Category model.Ref `json:"categoryId"`
	Bag      model.Ref `json:"bagId"`
	Traveler model.Ref `json:"travelerId"`
}

// Snapshot is the full list state as served by GET /v1/lists/{listID}.
type Snapshot struct {
	List       model.List        `json:"list"`
	Seq        uint64            `json:"seq"`
	Containers []model.Container `json:"containers"`
	Items      []model.Item      `json:"items"`
}

// BulkResult reports a bulk mutation. Rejected entries name the items the
// server refused; Items are the committed states of the rest.
type BulkResult struct {
	Succeeded int               `json:"succeeded"`
	Total     int               `json:"total"`
	Rejected  []fault.Rejection `json:"rejected"`
	Items     []model.Item      `json:"items"`
}

// Storage is the narrow contract to the authoritative item store. The HTTP
// implementation talks to a duffel server; tests substitute a mock.
//
// SetOrigin pins the live connection's ID onto subsequent mutations so the
// server does not echo them back on that connection.
type Storage interface {
	GetSnapshot(ctx context.Context, listID model.ListID) (Snapshot, error)
	FetchView(ctx context.Context, listID model.ListID, kind model.ContainerKind, ref model.Ref) ([]model.Item, error)

	CreateItem(ctx context.Context, listID model.ListID, draft ItemDraft) (model.Item, error)
	UpdateItem(ctx context.Context, listID model.ListID, itemID model.ItemID, patch model.Patch) (model.Item, error)
	DeleteItem(ctx context.Context, listID model.ListID, itemID model.ItemID) error
	BulkUpdateItems(ctx context.Context, listID model.ListID, ids []model.ItemID, patch model.Patch) (BulkResult, error)

	Containers(ctx context.Context, listID model.ListID) ([]model.Container, error)
	CreateContainer(ctx context.Context, listID model.ListID, kind model.ContainerKind, name string) (model.Container, error)
	RenameContainer(ctx context.Context, listID model.ListID, containerID model.ContainerID, name string) (model.Container, error)
	DeleteContainer(ctx context.Context, listID model.ListID, containerID model.ContainerID) error

	SetOrigin(connID uuid.UUID)
}
