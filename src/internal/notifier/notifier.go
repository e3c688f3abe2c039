// Package notifier fans accepted attendance and session changes out to
// observers. Delivery is best-effort and never gates the caller.
package notifier

import (
	"context"
	"errors"

	"qr-attendance-svc/src/internal/models"
)

// Notifier receives events after they are committed.
type Notifier interface {
	Notify(ctx context.Context, event models.Event) error
}

// Func adapts a function to Notifier.
type Func func(ctx context.Context, event models.Event) error

func (f Func) Notify(ctx context.Context, event models.Event) error {
	return f(ctx, event)
}

// Nop discards every event.
var Nop Notifier = Func(func(context.Context, models.Event) error { return nil })

// Multi notifies every target in order. A failing target does not stop the
// rest; the errors are joined.
func Multi(targets ...Notifier) Notifier {
	return Func(func(ctx context.Context, event models.Event) error {
		var errs []error
		for _, target := range targets {
			if err := target.Notify(ctx, event); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	})
}
