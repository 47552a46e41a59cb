// Package model holds the domain entities shared by the server, the client
// engine and the wire protocol: packing lists, their items, the three
// container kinds an item can be assigned to, and the patch types mutations
// are expressed in.
package model

import (
	"fmt"

	"github.com/google/uuid"
)

// Typed identifiers. Distinct types keep a ListID from ever being passed
// where an ItemID is expected.
type (
	ListID      uuid.UUID
	ItemID      uuid.UUID
	ActorID     uuid.UUID
	ContainerID uuid.UUID
)

func NewListID() ListID           { return ListID(uuid.New()) }
func NewItemID() ItemID           { return ItemID(uuid.New()) }
func NewActorID() ActorID         { return ActorID(uuid.New()) }
func NewContainerID() ContainerID { return ContainerID(uuid.New()) }

func parseID(kind, s string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, fmt.Errorf("%s must not be empty", kind)
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid %s %q: %w", kind, s, err)
	}
	if u == uuid.Nil {
		return uuid.Nil, fmt.Errorf("%s must not be the nil uuid", kind)
	}
	return u, nil
}

func ParseListID(s string) (ListID, error) {
	u, err := parseID("list id", s)
	return ListID(u), err
}

func ParseItemID(s string) (ItemID, error) {
	u, err := parseID("item id", s)
	return ItemID(u), err
}

func ParseActorID(s string) (ActorID, error) {
	u, err := parseID("actor id", s)
	return ActorID(u), err
}

func ParseContainerID(s string) (ContainerID, error) {
	u, err := parseID("container id", s)
	return ContainerID(u), err
}

func (id ListID) String() string      { return uuid.UUID(id).String() }
func (id ItemID) String() string      { return uuid.UUID(id).String() }
func (id ActorID) String() string     { return uuid.UUID(id).String() }
func (id ContainerID) String() string { return uuid.UUID(id).String() }

func (id ListID) IsNil() bool      { return uuid.UUID(id) == uuid.Nil }
func (id ItemID) IsNil() bool      { return uuid.UUID(id) == uuid.Nil }
func (id ActorID) IsNil() bool     { return uuid.UUID(id) == uuid.Nil }
func (id ContainerID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }

// Text marshalling keeps the uuid string form in JSON and map keys. Defined
// types do not inherit methods, so each id carries its own pair.

func (id ListID) MarshalText() ([]byte, error) { return []byte(id.String()), nil }
func (id *ListID) UnmarshalText(b []byte) error {
	u, err := parseID("list id", string(b))
	*id = ListID(u)
	return err
}

func (id ItemID) MarshalText() ([]byte, error) { return []byte(id.String()), nil }
func (id *ItemID) UnmarshalText(b []byte) error {
	u, err := parseID("item id", string(b))
	*id = ItemID(u)
	return err
}

func (id ActorID) MarshalText() ([]byte, error) { return []byte(id.String()), nil }
func (id *ActorID) UnmarshalText(b []byte) error {
	u, err := parseID("actor id", string(b))
	*id = ActorID(u)
	return err
}

func (id ContainerID) MarshalText() ([]byte, error) { return []byte(id.String()), nil }
func (id *ContainerID) UnmarshalText(b []byte) error {
	u, err := parseID("container id", string(b))
	*id = ContainerID(u)
	return err
}
