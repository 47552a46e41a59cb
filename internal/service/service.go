// Package service orchestrates list mutations. Every change runs inside the
// hub's per-list critical section, so sequence assignment, persistence and
// fan-out stay in one order. Handlers stay thin; this package owns
// validation, authorization and the change cascade rules.
package service

import (
	"context"
	"errors"
	"log/slog"

	"duffel/internal/audit"
	"duffel/internal/auth"
	"duffel/internal/hub"
	"duffel/internal/store"
	"duffel/pkg/event"
	"duffel/pkg/fault"
	"duffel/pkg/model"
)

// cascadeFrameLimit caps the per-item detach events a container delete may
// emit. Above it the delete collapses into a single invalidation frame and
// subscribers refetch the affected scope instead.
const cascadeFrameLimit = 32

// Service coordinates mutations across the store, the hub and the journal.
type Service struct {
	log     *slog.Logger
	store   store.Store
	hub     *hub.Hub
	acl     auth.ACL
	journal audit.Emitter
}

type Option func(*Service)

// WithJournal routes committed change events into the given sink.
func WithJournal(sink audit.Emitter) Option {
	return func(s *Service) {
		s.journal = sink
	}
}

func New(log *slog.Logger, st store.Store, h *hub.Hub, acl auth.ACL, opts ...Option) *Service {
	s := &Service{
		log:     log,
		store:   st,
		hub:     h,
		acl:     acl,
		journal: audit.Nop{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) authorize(ctx context.Context, actor model.ActorID, listID model.ListID) error {
	ok, err := s.acl.CanAccess(ctx, actor, listID)
	if err != nil {
		return fault.Wrap(fault.CodeInternal, "authorize", err)
	}
	if !ok {
		return fault.New(fault.CodeUnauthorized, "actor is not a member of this list")
	}
	return nil
}

// CreateList creates a list and grants the creator access. Lists are born
// outside any room; their first mutation opens one.
func (s *Service) CreateList(ctx context.Context, actor model.ActorID, name string) (model.List, error) {
	if err := model.ValidateName(name); err != nil {
		return model.List{}, err
	}

	list := model.List{ID: model.NewListID(), Name: name}
	if err := s.store.CreateList(ctx, list); err != nil {
		if errors.Is(err, fault.ErrConflict) {
			return model.List{}, fault.New(fault.CodeConflict, "list already exists")
		}
		return model.List{}, fault.Wrap(fault.CodeInternal, "create list", err)
	}
	if err := s.acl.Grant(ctx, list.ID, actor); err != nil {
		return model.List{}, fault.Wrap(fault.CodeInternal, "grant list access", err)
	}

	s.log.InfoContext(ctx, "list created",
		"list_id", list.ID.String(),
		"actor_id", actor.String(),
	)
	return list, nil
}

func (s *Service) GetList(ctx context.Context, actor model.ActorID, listID model.ListID) (model.List, error) {
	if err := s.authorize(ctx, actor, listID); err != nil {
		return model.List{}, err
	}
	list, err := s.store.GetList(ctx, listID)
	if errors.Is(err, fault.ErrNotFound) {
		return model.List{}, fault.New(fault.CodeNotFound, "list not found")
	}
	if err != nil {
		return model.List{}, fault.Wrap(fault.CodeInternal, "load list", err)
	}
	return list, nil
}

// Share grants another actor access to the list.
func (s *Service) Share(ctx context.Context, actor model.ActorID, listID model.ListID, invitee model.ActorID) error {
	if err := s.authorize(ctx, actor, listID); err != nil {
		return err
	}
	if _, err := s.GetList(ctx, actor, listID); err != nil {
		return err
	}
	if err := s.acl.Grant(ctx, listID, invitee); err != nil {
		return fault.Wrap(fault.CodeInternal, "grant list access", err)
	}
	s.log.InfoContext(ctx, "list shared",
		"list_id", listID.String(),
		"actor_id", actor.String(),
		"invitee_id", invitee.String(),
	)
	return nil
}

// Snapshot is the full list state a client rebuilds its views from.
type Snapshot struct {
	List       model.List        `json:"list"`
	Seq        uint64            `json:"seq"`
	Containers []model.Container `json:"containers"`
	Items      []model.Item      `json:"items"`
}

// GetSnapshot loads the list with all containers and items. Seq is read
// before the entities, so a concurrent mutation can surface in the entities
// already; readers reconcile through per-item sequence numbers either way.
func (s *Service) GetSnapshot(ctx context.Context, actor model.ActorID, listID model.ListID) (Snapshot, error) {
	list, err := s.GetList(ctx, actor, listID)
	if err != nil {
		return Snapshot{}, err
	}
	seq, err := s.hub.Seq(ctx, listID)
	if err != nil {
		return Snapshot{}, fault.Wrap(fault.CodeInternal, "read list seq", err)
	}
	containers, err := s.store.ContainersByList(ctx, listID)
	if err != nil {
		return Snapshot{}, fault.Wrap(fault.CodeInternal, "load containers", err)
	}
	items, err := s.store.ItemsByList(ctx, listID)
	if err != nil {
		return Snapshot{}, fault.Wrap(fault.CodeInternal, "load items", err)
	}
	return Snapshot{List: list, Seq: seq, Containers: containers, Items: items}, nil
}

// Items returns all items of the list.
func (s *Service) Items(ctx context.Context, actor model.ActorID, listID model.ListID) ([]model.Item, error) {
	if err := s.authorize(ctx, actor, listID); err != nil {
		return nil, err
	}
	items, err := s.store.ItemsByList(ctx, listID)
	if err != nil {
		return nil, fault.Wrap(fault.CodeInternal, "load items", err)
	}
	return items, nil
}

// ItemsUnassigned returns the list's items with no container of the kind.
func (s *Service) ItemsUnassigned(ctx context.Context, actor model.ActorID, listID model.ListID, kind model.ContainerKind) ([]model.Item, error) {
	if err := s.authorize(ctx, actor, listID); err != nil {
		return nil, err
	}
	items, err := s.store.ItemsUnassigned(ctx, listID, kind)
	if err != nil {
		return nil, fault.Wrap(fault.CodeInternal, "load unassigned items", err)
	}
	return items, nil
}

// ItemsInContainer returns the items referencing the container.
func (s *Service) ItemsInContainer(ctx context.Context, actor model.ActorID, listID model.ListID, containerID model.ContainerID) ([]model.Item, error) {
	if err := s.authorize(ctx, actor, listID); err != nil {
		return nil, err
	}
	items, err := s.store.ItemsInContainer(ctx, listID, containerID)
	if err != nil {
		return nil, fault.Wrap(fault.CodeInternal, "load container items", err)
	}
	return items, nil
}

// Containers returns the list's containers.
func (s *Service) Containers(ctx context.Context, actor model.ActorID, listID model.ListID) ([]model.Container, error) {
	if err := s.authorize(ctx, actor, listID); err != nil {
		return nil, err
	}
	containers, err := s.store.ContainersByList(ctx, listID)
	if err != nil {
		return nil, fault.Wrap(fault.CodeInternal, "load containers", err)
	}
	return containers, nil
}

// Presence lists the live subscribers of the list's room.
func (s *Service) Presence(ctx context.Context, actor model.ActorID, listID model.ListID) ([]hub.Member, error) {
	if err := s.authorize(ctx, actor, listID); err != nil {
		return nil, err
	}
	members, err := s.hub.Presence(ctx, listID)
	if err != nil {
		return nil, fault.Wrap(fault.CodeInternal, "read presence", err)
	}
	return members, nil
}

// record journals committed events. Journaling is best effort; a full
// buffer is already logged by the sink.
func (s *Service) record(ctx context.Context, events []event.ChangeEvent) {
	for _, ev := range events {
		if err := s.journal.Emit(ctx, ev); err != nil && !errors.Is(err, audit.ErrBufferFull) {
			s.log.ErrorContext(ctx, "journal emit failed",
				"error", err,
				"list_id", ev.ListID.String(),
				"seq", ev.Seq,
			)
		}
	}
}

// checkRef verifies that a reference points at a live container of the
// right kind in the right list.
func (s *Service) checkRef(ctx context.Context, listID model.ListID, kind model.ContainerKind, ref model.Ref) error {
	if !ref.Valid {
		return nil
	}
	c, err := s.store.GetContainer(ctx, ref.ID)
	if errors.Is(err, fault.ErrContainerNotFound) || errors.Is(err, fault.ErrNotFound) {
		return fault.Newf(fault.CodeValidation, "%s %s does not exist", kind, ref.ID)
	}
	if err != nil {
		return fault.Wrap(fault.CodeInternal, "resolve container", err)
	}
	if c.ListID != listID {
		return fault.Newf(fault.CodeValidation, "%s %s does not exist", kind, ref.ID)
	}
	if c.Kind != kind {
		return fault.Newf(fault.CodeValidation, "container %s is a %s, not a %s", ref.ID, c.Kind, kind)
	}
	return nil
}
