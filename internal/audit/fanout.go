package audit

import (
	"context"
	"errors"

	"duffel/pkg/event"
)

// Fanout emits to every sink in order. Emit returns the joined errors so a
// failing export never hides a journal failure.
type Fanout []Emitter

func (f Fanout) Emit(ctx context.Context, ev event.ChangeEvent) error {
	var errs []error
	for _, e := range f {
		if err := e.Emit(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (f Fanout) Close() {
	for _, e := range f {
		e.Close()
	}
}

// Nop discards events. Used when journaling is disabled.
type Nop struct{}

func (Nop) Emit(context.Context, event.ChangeEvent) error { return nil }
func (Nop) Close()                                        {}
