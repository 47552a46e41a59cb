package model

import (
	"bytes"
	"encoding/json"
)

// RefPatch optionally rewrites one container reference. The zero value
// leaves the reference unchanged; Set with an invalid Ref moves the item to
// unassigned. In JSON the three states are: key absent, key null, key id.
type RefPatch struct {
	Set bool
	Ref Ref
}

// Assign returns a patch moving the reference to the given container.
func Assign(id ContainerID) RefPatch { return RefPatch{Set: true, Ref: RefTo(id)} }

// ClearRef returns a patch moving the reference to unassigned.
func ClearRef() RefPatch { return RefPatch{Set: true} }

// IsZero reports whether the patch leaves the reference unchanged. The
// encoder uses it for omitzero.
func (p RefPatch) IsZero() bool { return !p.Set }

func (p RefPatch) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.Ref)
}

func (p *RefPatch) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) {
		*p = ClearRef()
		return nil
	}
	var id ContainerID
	if err := json.Unmarshal(b, &id); err != nil {
		return err
	}
	*p = Assign(id)
	return nil
}

// Patch describes a partial update to an item. Nil scalar fields and zero
// ref patches are left untouched.
type Patch struct {
	Name     *string  `json:"name,omitempty"`
	Quantity *int     `json:"quantity,omitempty"`
	Packed   *bool    `json:"packed,omitempty"`
	Category RefPatch `json:"categoryId,omitzero"`
	Bag      RefPatch `json:"bagId,omitzero"`
	Traveler RefPatch `json:"travelerId,omitzero"`
}

// IsZero reports whether the patch changes nothing.
func (p Patch) IsZero() bool {
	return p.Name == nil && p.Quantity == nil && p.Packed == nil &&
		!p.Category.Set && !p.Bag.Set && !p.Traveler.Set
}

// RefFor returns the patch's ref change for the given kind.
func (p Patch) RefFor(kind ContainerKind) RefPatch {
	switch kind {
	case KindCategory:
		return p.Category
	case KindBag:
		return p.Bag
	case KindTraveler:
		return p.Traveler
	}
	return RefPatch{}
}

// Apply rewrites the item in place. It does not touch ID, ListID or Seq.
func (p Patch) Apply(it *Item) {
	if p.Name != nil {
		it.Name = *p.Name
	}
	if p.Quantity != nil {
		it.Quantity = *p.Quantity
	}
	if p.Packed != nil {
		it.Packed = *p.Packed
	}
	for _, kind := range Kinds() {
		if rp := p.RefFor(kind); rp.Set {
			it.SetContainer(kind, rp.Ref)
		}
	}
}
