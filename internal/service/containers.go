package service

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"duffel/pkg/event"
	"duffel/pkg/fault"
	"duffel/pkg/model"
)

// CreateContainer adds a category, bag or traveler to the list.
func (s *Service) CreateContainer(ctx context.Context, actor model.ActorID, origin uuid.UUID, listID model.ListID, kind model.ContainerKind, name string) (model.Container, error) {
	if err := s.authorize(ctx, actor, listID); err != nil {
		return model.Container{}, err
	}
	if err := model.ValidateName(name); err != nil {
		return model.Container{}, err
	}

	var created model.Container
	events, err := s.hub.Publish(ctx, listID, origin, func(next func() uint64) ([]event.ChangeEvent, error) {
		c := model.Container{
			ID:     model.NewContainerID(),
			ListID: listID,
			Kind:   kind,
			Name:   name,
			Seq:    next(),
		}
		if err := s.store.PutContainer(ctx, c); err != nil {
			return nil, fault.Wrap(fault.CodeInternal, "persist container", err)
		}
		created = c
		return []event.ChangeEvent{event.ContainerCreated(actor, c)}, nil
	})
	if err != nil {
		return model.Container{}, err
	}

	s.record(ctx, events)
	return created, nil
}

// RenameContainer changes a container's name. Renaming to the same name is
// a no-op that consumes no sequence number.
func (s *Service) RenameContainer(ctx context.Context, actor model.ActorID, origin uuid.UUID, listID model.ListID, containerID model.ContainerID, name string) (model.Container, error) {
	if err := s.authorize(ctx, actor, listID); err != nil {
		return model.Container{}, err
	}
	if err := model.ValidateName(name); err != nil {
		return model.Container{}, err
	}

	var renamed model.Container
	events, err := s.hub.Publish(ctx, listID, origin, func(next func() uint64) ([]event.ChangeEvent, error) {
		cur, err := s.loadContainer(ctx, listID, containerID)
		if err != nil {
			return nil, err
		}
		if cur.Name == name {
			renamed = cur
			return nil, nil
		}

		after := cur
		after.Name = name
		after.Seq = next()
		if err := s.store.PutContainer(ctx, after); err != nil {
			return nil, fault.Wrap(fault.CodeInternal, "persist container", err)
		}
		renamed = after
		return []event.ChangeEvent{event.ContainerUpdated(actor, cur, after)}, nil
	})
	if err != nil {
		return model.Container{}, err
	}

	s.record(ctx, events)
	return renamed, nil
}

// DeleteContainer removes a container and detaches its items. Up to
// cascadeFrameLimit members the detaches fan out as individual item updates;
// past it subscribers get one invalidation frame for the affected scope and
// refetch instead. Deleting a container that is already gone is a success.
func (s *Service) DeleteContainer(ctx context.Context, actor model.ActorID, origin uuid.UUID, listID model.ListID, containerID model.ContainerID) error {
	if err := s.authorize(ctx, actor, listID); err != nil {
		return err
	}

	// A failure in the middle of the cascade must not discard the staged
	// numbers already written to detached items, so committed detaches are
	// returned as events either way and the failure surfaces separately.
	var failed error
	events, err := s.hub.Publish(ctx, listID, origin, func(next func() uint64) ([]event.ChangeEvent, error) {
		cur, err := s.loadContainer(ctx, listID, containerID)
		if fault.HasCode(err, fault.CodeNotFound) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}

		members, err := s.store.ItemsInContainer(ctx, listID, containerID)
		if err != nil {
			return nil, fault.Wrap(fault.CodeInternal, "load container items", err)
		}

		if len(members) > cascadeFrameLimit {
			// The store detaches members itself; one coarse frame tells
			// subscribers to refetch the scope. The delete is recorded
			// under the invalidation's number so last_seq covers both
			// frames and a rebuilt room never reissues either.
			seq := next()
			invSeq := next()
			if err := s.store.DeleteContainer(ctx, containerID, invSeq); err != nil {
				return nil, fault.Wrap(fault.CodeInternal, "delete container", err)
			}
			return []event.ChangeEvent{
				event.ContainerDeleted(actor, seq, cur),
				event.Invalidated(actor, listID, invSeq, cur.Kind),
			}, nil
		}

		batchID := uuid.New()
		out := make([]event.ChangeEvent, 0, len(members)+1)
		for _, it := range members {
			detached := it
			detached.SetContainer(cur.Kind, model.Unassigned())
			detached.Seq = next()
			if err := s.store.PutItem(ctx, detached); err != nil {
				failed = fault.Wrap(fault.CodeInternal, "detach item", err)
				return out, nil
			}
			out = append(out, event.ItemUpdated(actor, it, detached).InBatch(batchID))
		}
		seq := next()
		if err := s.store.DeleteContainer(ctx, containerID, seq); err != nil {
			failed = fault.Wrap(fault.CodeInternal, "delete container", err)
			return out, nil
		}
		return append(out, event.ContainerDeleted(actor, seq, cur).InBatch(batchID)), nil
	})
	if err != nil {
		return err
	}

	s.record(ctx, events)
	return failed
}

func (s *Service) loadContainer(ctx context.Context, listID model.ListID, containerID model.ContainerID) (model.Container, error) {
	cur, err := s.store.GetContainer(ctx, containerID)
	if errors.Is(err, fault.ErrContainerNotFound) || errors.Is(err, fault.ErrNotFound) {
		return model.Container{}, fault.New(fault.CodeNotFound, "container not found")
	}
	if err != nil {
		return model.Container{}, fault.Wrap(fault.CodeInternal, "load container", err)
	}
	if cur.ListID != listID {
		return model.Container{}, fault.New(fault.CodeNotFound, "container not found")
	}
	return cur, nil
}
