package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"duffel/pkg/fault"
	"duffel/pkg/model"
)

// Memory is an in-process Store for tests and single-node development runs.
type Memory struct {
	mu         sync.RWMutex
	lists      map[model.ListID]model.List
	items      map[model.ItemID]model.Item
	containers map[model.ContainerID]model.Container
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		lists:      make(map[model.ListID]model.List),
		items:      make(map[model.ItemID]model.Item),
		containers: make(map[model.ContainerID]model.Container),
	}
}

var _ Store = (*Memory)(nil)

func (m *Memory) CreateList(_ context.Context, list model.List) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.lists[list.ID]; ok {
		return fmt.Errorf("list %s: %w", list.ID, fault.ErrConflict)
	}
	m.lists[list.ID] = list
	return nil
}

func (m *Memory) GetList(_ context.Context, id model.ListID) (model.List, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	list, ok := m.lists[id]
	if !ok {
		return model.List{}, fmt.Errorf("list %s: %w", id, fault.ErrNotFound)
	}
	return list, nil
}

func (m *Memory) ListExists(_ context.Context, id model.ListID) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.lists[id]
	return ok, nil
}

func (m *Memory) MaxSeq(_ context.Context, id model.ListID) (uint64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	list, ok := m.lists[id]
	if !ok {
		return 0, fmt.Errorf("list %s: %w", id, fault.ErrNotFound)
	}
	return list.LastSeq, nil
}

// bumpSeq raises the list's high-water mark. Callers hold m.mu.
func (m *Memory) bumpSeq(id model.ListID, seq uint64) error {
	list, ok := m.lists[id]
	if !ok {
		return fmt.Errorf("list %s: %w", id, fault.ErrNotFound)
	}
	if seq > list.LastSeq {
		list.LastSeq = seq
		m.lists[id] = list
	}
	return nil
}

func (m *Memory) GetItem(_ context.Context, id model.ItemID) (model.Item, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	it, ok := m.items[id]
	if !ok {
		return model.Item{}, fmt.Errorf("item %s: %w", id, fault.ErrNotFound)
	}
	return it, nil
}

func (m *Memory) PutItem(_ context.Context, item model.Item) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if prev, ok := m.items[item.ID]; ok && prev.ListID != item.ListID {
		return fmt.Errorf("item %s belongs to list %s: %w", item.ID, prev.ListID, fault.ErrConflict)
	}
	if err := m.bumpSeq(item.ListID, item.Seq); err != nil {
		return err
	}
	m.items[item.ID] = item
	return nil
}

func (m *Memory) DeleteItem(_ context.Context, id model.ItemID, seq uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	it, ok := m.items[id]
	if !ok {
		return fmt.Errorf("item %s: %w", id, fault.ErrNotFound)
	}
	if err := m.bumpSeq(it.ListID, seq); err != nil {
		return err
	}
	delete(m.items, id)
	return nil
}

func (m *Memory) ItemsByList(_ context.Context, listID model.ListID) ([]model.Item, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.collect(func(it model.Item) bool { return it.ListID == listID }), nil
}

func (m *Memory) ItemsUnassigned(_ context.Context, listID model.ListID, kind model.ContainerKind) ([]model.Item, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.collect(func(it model.Item) bool {
		return it.ListID == listID && !it.Container(kind).Valid
	}), nil
}

func (m *Memory) ItemsInContainer(_ context.Context, listID model.ListID, containerID model.ContainerID) ([]model.Item, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ref := model.RefTo(containerID)
	return m.collect(func(it model.Item) bool {
		if it.ListID != listID {
			return false
		}
		return it.Category == ref || it.Bag == ref || it.Traveler == ref
	}), nil
}

// collect filters and orders items by (name, id). Callers hold m.mu.
func (m *Memory) collect(keep func(model.Item) bool) []model.Item {
	out := make([]model.Item, 0)
	for _, it := range m.items {
		if keep(it) {
			out = append(out, it)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out
}

func (m *Memory) GetContainer(_ context.Context, id model.ContainerID) (model.Container, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.containers[id]
	if !ok {
		return model.Container{}, fmt.Errorf("container %s: %w", id, fault.ErrContainerNotFound)
	}
	return c, nil
}

func (m *Memory) PutContainer(_ context.Context, c model.Container) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if prev, ok := m.containers[c.ID]; ok && (prev.ListID != c.ListID || prev.Kind != c.Kind) {
		return fmt.Errorf("container %s is a %s of list %s: %w", c.ID, prev.Kind, prev.ListID, fault.ErrConflict)
	}
	if err := m.bumpSeq(c.ListID, c.Seq); err != nil {
		return err
	}
	m.containers[c.ID] = c
	return nil
}

func (m *Memory) DeleteContainer(_ context.Context, id model.ContainerID, seq uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.containers[id]
	if !ok {
		return fmt.Errorf("container %s: %w", id, fault.ErrContainerNotFound)
	}
	if err := m.bumpSeq(c.ListID, seq); err != nil {
		return err
	}
	delete(m.containers, id)
	// Mirror the postgres FK ON DELETE SET NULL: referencing items detach.
	for itemID, it := range m.items {
		if it.ListID == c.ListID && it.Container(c.Kind) == model.RefTo(id) {
			it.SetContainer(c.Kind, model.Unassigned())
			m.items[itemID] = it
		}
	}
	return nil
}

func (m *Memory) ContainersByList(_ context.Context, listID model.ListID) ([]model.Container, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]model.Container, 0)
	for _, c := range m.containers {
		if c.ListID == listID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Kind != out[j].Kind {
			return out[i].Kind < out[j].Kind
		}
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out, nil
}
