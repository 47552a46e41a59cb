// Package view maintains the per-list bucket index that backs every
// rendered view of a packing list: one bucket per (kind, container) pair
// plus one unassigned bucket per kind. Buckets are updated incrementally
// from change events, never recomputed per read.
//
// An Index is not safe for concurrent use. The client engine owns one per
// list and serializes all access through its apply loop.
package view

import (
	"bytes"
	"fmt"
	"sort"

	"duffel/pkg/model"
)

// Key addresses one bucket: a container of some kind, or the unassigned
// bucket of that kind when Container is the null ref.
type Key struct {
	Kind      model.ContainerKind
	Container model.Ref
}

// KeyOf returns the bucket key for a kind and a container ref.
func KeyOf(kind model.ContainerKind, ref model.Ref) Key {
	return Key{Kind: kind, Container: ref}
}

// Assigned returns the key of a container's bucket.
func Assigned(kind model.ContainerKind, id model.ContainerID) Key {
	return Key{Kind: kind, Container: model.RefTo(id)}
}

// UnassignedKey returns the key of a kind's unassigned bucket.
func UnassignedKey(kind model.ContainerKind) Key {
	return Key{Kind: kind}
}

func (k Key) String() string {
	return fmt.Sprintf("%s/%s", k.Kind, k.Container)
}

// View is a read-only snapshot of one bucket. ItemIDs is ordered by item
// name with the id as tie break, so equal states render identically on
// every device.
type View struct {
	Key     Key
	ItemIDs []model.ItemID
	Total   int
	Packed  int
}

type bucket struct {
	ids    []model.ItemID
	packed int
}

// Index is the bucket index of one list.
type Index struct {
	listID  model.ListID
	items   map[model.ItemID]*model.Item
	buckets map[Key]*bucket

	// tombs remembers the last seq observed for deleted items so a late,
	// stale update cannot resurrect them.
	tombs map[model.ItemID]uint64
}

// NewIndex returns an empty index for the given list.
func NewIndex(listID model.ListID) *Index {
	return &Index{
		listID:  listID,
		items:   make(map[model.ItemID]*model.Item),
		buckets: make(map[Key]*bucket),
		tombs:   make(map[model.ItemID]uint64),
	}
}

func (x *Index) ListID() model.ListID { return x.listID }

// Len returns the number of items in the index.
func (x *Index) Len() int { return len(x.items) }

// Item returns a copy of the item, if present.
func (x *Index) Item(id model.ItemID) (model.Item, bool) {
	it, ok := x.items[id]
	if !ok {
		return model.Item{}, false
	}
	return *it, true
}

// Items returns copies of all items ordered by (name, id).
func (x *Index) Items() []model.Item {
	out := make([]model.Item, 0, len(x.items))
	for _, it := range x.items {
		out = append(out, *it)
	}
	sort.Slice(out, func(i, j int) bool {
		return lessItem(out[i].Name, out[i].ID, out[j].Name, out[j].ID)
	})
	return out
}

// Get returns the current view of one bucket. A bucket nothing is assigned
// to is an empty view, indistinguishable from one that never existed.
func (x *Index) Get(kind model.ContainerKind, ref model.Ref) View {
	key := KeyOf(kind, ref)
	b, ok := x.buckets[key]
	if !ok {
		return View{Key: key}
	}
	ids := make([]model.ItemID, len(b.ids))
	copy(ids, b.ids)
	return View{Key: key, ItemIDs: ids, Total: len(b.ids), Packed: b.packed}
}

// Views returns all non-empty buckets. Intended for diagnostics and tests.
func (x *Index) Views() []View {
	out := make([]View, 0, len(x.buckets))
	for key := range x.buckets {
		out = append(out, x.Get(key.Kind, key.Container))
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].Key, out[j].Key
		if a.Kind != b.Kind {
			return a.Kind < b.Kind
		}
		return a.Container.String() < b.Container.String()
	})
	return out
}

func lessItem(nameA string, idA model.ItemID, nameB string, idB model.ItemID) bool {
	if nameA != nameB {
		return nameA < nameB
	}
	ua, ub := [16]byte(idA), [16]byte(idB)
	return bytes.Compare(ua[:], ub[:]) < 0
}

// searchIn returns the position of (name, id) in the bucket's order, which
// is the insertion point when the id is absent. The (name, id) pair must be
// the ordering the bucket currently holds for that id.
func (x *Index) searchIn(b *bucket, name string, id model.ItemID) int {
	return sort.Search(len(b.ids), func(i int) bool {
		other := x.items[b.ids[i]]
		return !lessItem(other.Name, b.ids[i], name, id)
	})
}

func (x *Index) insert(key Key, it *model.Item) {
	b, ok := x.buckets[key]
	if !ok {
		b = &bucket{}
		x.buckets[key] = b
	}
	pos := x.searchIn(b, it.Name, it.ID)
	if pos < len(b.ids) && b.ids[pos] == it.ID {
		panic(fmt.Sprintf("view: item %s already in bucket %s", it.ID, key))
	}
	b.ids = append(b.ids, model.ItemID{})
	copy(b.ids[pos+1:], b.ids[pos:])
	b.ids[pos] = it.ID
	if it.Packed {
		b.packed++
	}
}

func (x *Index) remove(key Key, name string, id model.ItemID, packed bool) {
	b, ok := x.buckets[key]
	if !ok {
		panic(fmt.Sprintf("view: bucket %s missing for item %s", key, id))
	}
	pos := x.searchIn(b, name, id)
	if pos >= len(b.ids) || b.ids[pos] != id {
		panic(fmt.Sprintf("view: item %s not in bucket %s", id, key))
	}
	b.ids = append(b.ids[:pos], b.ids[pos+1:]...)
	if packed {
		b.packed--
	}
	if len(b.ids) == 0 {
		delete(x.buckets, key)
	}
}

func (x *Index) insertAll(it *model.Item) {
	for _, kind := range model.Kinds() {
		x.insert(KeyOf(kind, it.Container(kind)), it)
	}
}

func (x *Index) removeAll(it *model.Item) {
	for _, kind := range model.Kinds() {
		x.remove(KeyOf(kind, it.Container(kind)), it.Name, it.ID, it.Packed)
	}
}

// blockedByTomb reports whether a state with the given seq is older than a
// recorded deletion of the id. Local states (seq zero) are never blocked.
func (x *Index) blockedByTomb(id model.ItemID, seq uint64) bool {
	ts, ok := x.tombs[id]
	return ok && seq != 0 && seq <= ts
}

// ApplyCreate adds an item to the index and its three buckets. It reports
// whether the index changed: stale or duplicate events are no-ops.
func (x *Index) ApplyCreate(after model.Item) bool {
	if x.blockedByTomb(after.ID, after.Seq) {
		return false
	}
	if cur, ok := x.items[after.ID]; ok {
		return x.applyReplace(cur, after)
	}
	it := after
	x.items[it.ID] = &it
	x.insertAll(&it)
	delete(x.tombs, it.ID)
	return true
}

// ApplyUpdate moves an item to its new state, repositioning it in every
// bucket whose ordering or membership the change affects. An update for an
// id the index does not hold is applied as a create, so replicas converge
// regardless of delivery order. before is unused when the index holds a
// current state; it exists for symmetry with the event payload.
func (x *Index) ApplyUpdate(before, after model.Item) bool {
	_ = before
	cur, ok := x.items[after.ID]
	if !ok {
		return x.ApplyCreate(after)
	}
	return x.applyReplace(cur, after)
}

func (x *Index) applyReplace(cur *model.Item, after model.Item) bool {
	if after.Seq != 0 && after.Seq <= cur.Seq {
		return false
	}
	prevSeq := cur.Seq
	x.removeAll(cur)
	*cur = after
	if after.Seq == 0 {
		// A local optimistic state keeps the last confirmed seq so the
		// eventual server event still applies.
		cur.Seq = prevSeq
	}
	x.insertAll(cur)
	return true
}

// ApplyDelete removes an item. seq is the sequence number of the deletion
// event, zero for a local optimistic delete. Deletes of unknown items only
// raise the tombstone.
func (x *Index) ApplyDelete(id model.ItemID, seq uint64) bool {
	cur, ok := x.items[id]
	if !ok {
		if seq > x.tombs[id] {
			x.tombs[id] = seq
		}
		return false
	}
	if seq != 0 && seq <= cur.Seq {
		return false
	}
	x.removeAll(cur)
	delete(x.items, id)
	ts := seq
	if cur.Seq > ts {
		ts = cur.Seq
	}
	// A zero tombstone guards nothing; a provisional item deleted before
	// any server seq reached it leaves no residue behind.
	if ts != 0 {
		x.tombs[id] = ts
	}
	return true
}

// Snapshot captures everything needed to undo a later apply for the item:
// its full state or its absence, plus its tombstone.
type Snapshot struct {
	ID      model.ItemID
	Exists  bool
	Item    model.Item
	TombSeq uint64
}

// Snapshot captures the item's current state for a later Restore.
func (x *Index) Snapshot(id model.ItemID) Snapshot {
	s := Snapshot{ID: id, TombSeq: x.tombs[id]}
	if cur, ok := x.items[id]; ok {
		s.Exists = true
		s.Item = *cur
	}
	return s
}

// Restore puts the item back into the captured state, reversing exactly the
// bucket changes any applies since the snapshot made. Restore is forced: it
// ignores seq gates.
func (x *Index) Restore(s Snapshot) {
	cur, ok := x.items[s.ID]
	switch {
	case s.Exists && ok:
		x.removeAll(cur)
		*cur = s.Item
		x.insertAll(cur)
	case s.Exists && !ok:
		it := s.Item
		x.items[it.ID] = &it
		x.insertAll(&it)
	case !s.Exists && ok:
		x.removeAll(cur)
		delete(x.items, s.ID)
	}
	if s.TombSeq == 0 {
		delete(x.tombs, s.ID)
	} else {
		x.tombs[s.ID] = s.TombSeq
	}
}

// Rebuild replaces the whole index with the given authoritative item set.
// Tombstones are cleared: the set is newer than anything they guard.
func (x *Index) Rebuild(items []model.Item) {
	byID := make(map[model.ItemID]model.Item, len(items))
	for _, it := range items {
		if prev, ok := byID[it.ID]; ok && prev.Seq >= it.Seq {
			continue
		}
		byID[it.ID] = it
	}
	x.items = make(map[model.ItemID]*model.Item, len(byID))
	x.buckets = make(map[Key]*bucket)
	x.tombs = make(map[model.ItemID]uint64)
	for _, it := range byID {
		cp := it
		x.items[cp.ID] = &cp
		x.insertAll(&cp)
	}
}
