package view

import (
	"fmt"

	"duffel/pkg/model"
)

// Verify recomputes the expected bucket layout from the item records and
// compares it with the incrementally maintained one. It returns the first
// discrepancy found. Used by tests and by the engine's consistency check
// after a resync.
func (x *Index) Verify() error {
	type tally struct {
		members map[string]struct{}
		packed  int
	}
	expected := make(map[Key]*tally)
	for _, it := range x.items {
		for _, kind := range model.Kinds() {
			key := KeyOf(kind, it.Container(kind))
			tl, ok := expected[key]
			if !ok {
				tl = &tally{members: make(map[string]struct{})}
				expected[key] = tl
			}
			tl.members[it.ID.String()] = struct{}{}
			if it.Packed {
				tl.packed++
			}
		}
	}

	if len(expected) != len(x.buckets) {
		return fmt.Errorf("view: %d buckets held, %d expected", len(x.buckets), len(expected))
	}

	for key, b := range x.buckets {
		tl, ok := expected[key]
		if !ok {
			return fmt.Errorf("view: bucket %s should not exist", key)
		}
		if len(b.ids) != len(tl.members) {
			return fmt.Errorf("view: bucket %s holds %d items, %d expected", key, len(b.ids), len(tl.members))
		}
		if b.packed != tl.packed {
			return fmt.Errorf("view: bucket %s packed count %d, %d expected", key, b.packed, tl.packed)
		}
		for i, id := range b.ids {
			if _, ok := tl.members[id.String()]; !ok {
				return fmt.Errorf("view: bucket %s holds stray item %s", key, id)
			}
			if i == 0 {
				continue
			}
			prev, cur := b.ids[i-1], id
			if !lessItem(x.items[prev].Name, prev, x.items[cur].Name, cur) {
				return fmt.Errorf("view: bucket %s out of order at position %d", key, i)
			}
		}
	}

	// Per kind, bucket totals must sum to the item count: every item sits
	// in exactly one bucket of each kind.
	for _, kind := range model.Kinds() {
		sum := 0
		for key, b := range x.buckets {
			if key.Kind == kind {
				sum += len(b.ids)
			}
		}
		if sum != len(x.items) {
			return fmt.Errorf("view: kind %s buckets hold %d items, %d expected", kind, sum, len(x.items))
		}
	}

	for id := range x.tombs {
		if _, ok := x.items[id]; ok {
			return fmt.Errorf("view: live item %s still has a tombstone", id)
		}
	}
	return nil
}
