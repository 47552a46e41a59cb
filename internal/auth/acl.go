package auth

import (
	"context"
	"sync"

	"duffel/pkg/model"
)

// ACL answers and edits list membership. CanAccess is the hot path: the hub
// consults it on every join.
type ACL interface {
	CanAccess(ctx context.Context, actor model.ActorID, list model.ListID) (bool, error)
	Grant(ctx context.Context, list model.ListID, actor model.ActorID) error
	Revoke(ctx context.Context, list model.ListID, actor model.ActorID) error
}

// Open admits every actor to every list. For development and tests.
type Open struct{}

func (Open) CanAccess(context.Context, model.ActorID, model.ListID) (bool, error) { return true, nil }
func (Open) Grant(context.Context, model.ListID, model.ActorID) error             { return nil }
func (Open) Revoke(context.Context, model.ListID, model.ActorID) error            { return nil }

// MemoryACL is an in-process ACL for tests and single-node runs.
type MemoryACL struct {
	mu     sync.RWMutex
	grants map[model.ListID]map[model.ActorID]struct{}
}

func NewMemoryACL() *MemoryACL {
	return &MemoryACL{grants: make(map[model.ListID]map[model.ActorID]struct{})}
}

var _ ACL = (*MemoryACL)(nil)

func (m *MemoryACL) CanAccess(_ context.Context, actor model.ActorID, list model.ListID) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.grants[list][actor]
	return ok, nil
}

func (m *MemoryACL) Grant(_ context.Context, list model.ListID, actor model.ActorID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	members, ok := m.grants[list]
	if !ok {
		members = make(map[model.ActorID]struct{})
		m.grants[list] = members
	}
	members[actor] = struct{}{}
	return nil
}

func (m *MemoryACL) Revoke(_ context.Context, list model.ListID, actor model.ActorID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.grants[list], actor)
	return nil
}
