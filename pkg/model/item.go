package model

// Item is one row of a packing list. The three container references are
// orthogonal: each may be assigned or unassigned independently of the others.
//
// Seq is the sequence number of the last change applied to the item within
// its list. A Seq of zero marks a local, not yet confirmed state; confirmed
// and replicated states always carry the positive seq assigned by the
// server.
type Item struct {
	ID       ItemID `json:"id"`
	ListID   ListID `json:"listId"`
	Name     string `json:"name"`
	Quantity int    `json:"quantity"`
	Packed   bool   `json:"packed"`
	Category Ref    `json:"categoryId"`
	Bag      Ref    `json:"bagId"`
	Traveler Ref    `json:"travelerId"`
	Seq      uint64 `json:"seq"`
}

// Container returns the item's reference for the given kind.
func (it Item) Container(kind ContainerKind) Ref {
	switch kind {
	case KindCategory:
		return it.Category
	case KindBag:
		return it.Bag
	case KindTraveler:
		return it.Traveler
	}
	return Ref{}
}

// SetContainer rewrites the item's reference for the given kind.
func (it *Item) SetContainer(kind ContainerKind, r Ref) {
	switch kind {
	case KindCategory:
		it.Category = r
	case KindBag:
		it.Bag = r
	case KindTraveler:
		it.Traveler = r
	}
}
