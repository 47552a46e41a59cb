package service

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"duffel/pkg/event"
	"duffel/pkg/fault"
	"duffel/pkg/model"
)

// CreateItemParams carries the client-supplied fields of a new item.
type CreateItemParams struct {
	Name     string
	Quantity int
	Packed   bool
	Category model.Ref
	Bag      model.Ref
	Traveler model.Ref
}

// CreateItem validates the params, persists the item under a fresh sequence
// number and fans the creation out. origin is the connection the mutation
// arrived from; it does not receive the echo.
func (s *Service) CreateItem(ctx context.Context, actor model.ActorID, origin uuid.UUID, listID model.ListID, p CreateItemParams) (model.Item, error) {
	if err := s.authorize(ctx, actor, listID); err != nil {
		return model.Item{}, err
	}
	if p.Quantity == 0 {
		p.Quantity = 1
	}
	if err := model.ValidateName(p.Name); err != nil {
		return model.Item{}, err
	}
	if err := model.ValidateQuantity(p.Quantity); err != nil {
		return model.Item{}, err
	}

	var created model.Item
	events, err := s.hub.Publish(ctx, listID, origin, func(next func() uint64) ([]event.ChangeEvent, error) {
		for _, kind := range model.Kinds() {
			if err := s.checkRef(ctx, listID, kind, refOf(p, kind)); err != nil {
				return nil, err
			}
		}
		item := model.Item{
			ID:       model.NewItemID(),
			ListID:   listID,
			Name:     p.Name,
			Quantity: p.Quantity,
			Packed:   p.Packed,
			Category: p.Category,
			Bag:      p.Bag,
			Traveler: p.Traveler,
			Seq:      next(),
		}
		if err := s.store.PutItem(ctx, item); err != nil {
			return nil, fault.Wrap(fault.CodeInternal, "persist item", err)
		}
		created = item
		return []event.ChangeEvent{event.ItemCreated(actor, item)}, nil
	})
	if err != nil {
		return model.Item{}, err
	}

	s.record(ctx, events)
	return created, nil
}

// UpdateItem applies a patch to one item. A patch that changes nothing
// returns the current state without consuming a sequence number or emitting
// an event.
func (s *Service) UpdateItem(ctx context.Context, actor model.ActorID, origin uuid.UUID, listID model.ListID, itemID model.ItemID, patch model.Patch) (model.Item, error) {
	if err := s.authorize(ctx, actor, listID); err != nil {
		return model.Item{}, err
	}
	if err := patch.Validate(); err != nil {
		return model.Item{}, err
	}

	var updated model.Item
	events, err := s.hub.Publish(ctx, listID, origin, func(next func() uint64) ([]event.ChangeEvent, error) {
		cur, err := s.loadItem(ctx, listID, itemID)
		if err != nil {
			return nil, err
		}
		for _, kind := range model.Kinds() {
			if rp := patch.RefFor(kind); rp.Set {
				if err := s.checkRef(ctx, listID, kind, rp.Ref); err != nil {
					return nil, err
				}
			}
		}

		after := cur
		patch.Apply(&after)
		if after == cur {
			updated = cur
			return nil, nil
		}

		after.Seq = next()
		if err := s.store.PutItem(ctx, after); err != nil {
			return nil, fault.Wrap(fault.CodeInternal, "persist item", err)
		}
		updated = after
		return []event.ChangeEvent{event.ItemUpdated(actor, cur, after)}, nil
	})
	if err != nil {
		return model.Item{}, err
	}

	s.record(ctx, events)
	return updated, nil
}

// DeleteItem removes an item. Deleting an item that is already gone is a
// success without an event, so racing deletes both settle cleanly.
func (s *Service) DeleteItem(ctx context.Context, actor model.ActorID, origin uuid.UUID, listID model.ListID, itemID model.ItemID) error {
	if err := s.authorize(ctx, actor, listID); err != nil {
		return err
	}

	events, err := s.hub.Publish(ctx, listID, origin, func(next func() uint64) ([]event.ChangeEvent, error) {
		cur, err := s.loadItem(ctx, listID, itemID)
		if fault.HasCode(err, fault.CodeNotFound) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}

		seq := next()
		if err := s.store.DeleteItem(ctx, itemID, seq); err != nil {
			return nil, fault.Wrap(fault.CodeInternal, "delete item", err)
		}
		return []event.ChangeEvent{event.ItemDeleted(actor, seq, cur)}, nil
	})
	if err != nil {
		return err
	}

	s.record(ctx, events)
	return nil
}

// BulkUpdateItems applies one patch to many items inside a single critical
// section. Items that fail are rejected individually; the rest commit. All
// events of the batch share a batch id so subscribers can group them.
func (s *Service) BulkUpdateItems(ctx context.Context, actor model.ActorID, origin uuid.UUID, listID model.ListID, ids []model.ItemID, patch model.Patch) ([]model.Item, error) {
	if err := s.authorize(ctx, actor, listID); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, fault.New(fault.CodeValidation, "bulk update needs at least one item id")
	}
	if err := patch.Validate(); err != nil {
		return nil, err
	}

	batchID := uuid.New()
	var (
		updated  []model.Item
		rejected []fault.Rejection
	)
	events, err := s.hub.Publish(ctx, listID, origin, func(next func() uint64) ([]event.ChangeEvent, error) {
		// One bad reference fails the whole batch before anything commits.
		for _, kind := range model.Kinds() {
			if rp := patch.RefFor(kind); rp.Set {
				if err := s.checkRef(ctx, listID, kind, rp.Ref); err != nil {
					return nil, err
				}
			}
		}

		var out []event.ChangeEvent
		for _, itemID := range ids {
			cur, err := s.loadItem(ctx, listID, itemID)
			if err != nil {
				rejected = append(rejected, fault.Rejection{ID: uuid.UUID(itemID), Reason: fault.Message(err)})
				continue
			}

			after := cur
			patch.Apply(&after)
			if after == cur {
				updated = append(updated, cur)
				continue
			}

			after.Seq = next()
			if err := s.store.PutItem(ctx, after); err != nil {
				// The staged number stays consumed; gaps are harmless.
				s.log.ErrorContext(ctx, "bulk item write failed",
					"error", err,
					"list_id", listID.String(),
					"item_id", itemID.String(),
				)
				rejected = append(rejected, fault.Rejection{ID: uuid.UUID(itemID), Reason: "storage failure"})
				continue
			}
			updated = append(updated, after)
			out = append(out, event.ItemUpdated(actor, cur, after).InBatch(batchID))
		}
		return out, nil
	})
	if err != nil {
		return nil, err
	}

	s.record(ctx, events)
	if len(rejected) > 0 {
		return updated, &fault.BulkError{
			Succeeded: len(updated),
			Total:     len(ids),
			Rejected:  rejected,
		}
	}
	return updated, nil
}

// loadItem fetches an item and pins it to the list.
func (s *Service) loadItem(ctx context.Context, listID model.ListID, itemID model.ItemID) (model.Item, error) {
	cur, err := s.store.GetItem(ctx, itemID)
	if errors.Is(err, fault.ErrNotFound) {
		return model.Item{}, fault.New(fault.CodeNotFound, "item not found")
	}
	if err != nil {
		return model.Item{}, fault.Wrap(fault.CodeInternal, "load item", err)
	}
	if cur.ListID != listID {
		return model.Item{}, fault.New(fault.CodeNotFound, "item not found")
	}
	return cur, nil
}

func refOf(p CreateItemParams, kind model.ContainerKind) model.Ref {
	switch kind {
	case model.KindCategory:
		return p.Category
	case model.KindBag:
		return p.Bag
	case model.KindTraveler:
		return p.Traveler
	}
	return model.Ref{}
}
