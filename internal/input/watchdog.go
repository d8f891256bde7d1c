package input

import (
	"context"
	"log/slog"
	"time"
)

// Pointer reports the current pointer position.
type Pointer interface {
	Position(ctx context.Context) (int, int, error)
}

// DefaultWatchInterval is how often the watchdog samples the pointer.
const DefaultWatchInterval = 250 * time.Millisecond

// Watchdog samples the pointer for the lifetime of a run so the guarded corner
// is honored while the agent waits on the model, sleeps, or prompts.
type Watchdog struct {
	pointer  Pointer
	guard    SafetyGuard
	interval time.Duration
	logger   *slog.Logger
}

// NewWatchdog creates a watchdog. A non-positive interval uses DefaultWatchInterval.
func NewWatchdog(pointer Pointer, guard SafetyGuard, interval time.Duration, logger *slog.Logger) *Watchdog {
	if interval <= 0 {
		interval = DefaultWatchInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Watchdog{
		pointer:  pointer,
		guard:    guard,
		interval: interval,
		logger:   logger.With("component", "watchdog"),
	}
}

// Watch blocks until ctx is done (returning nil) or the guard trips
// (returning an error wrapping ErrSafetyTrip).
func (w *Watchdog) Watch(ctx context.Context) error {
	if w.guard.Disabled {
		<-ctx.Done()
		return nil
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	failures := 0
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		x, y, err := w.pointer.Position(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			failures++
			if failures == 1 {
				w.logger.Warn("pointer sampling failed", "error", err)
			}
			continue
		}
		failures = 0
		if err := w.guard.Check(x, y); err != nil {
			w.logger.Warn("safety corner reached, aborting run", "x", x, "y", y)
			return err
		}
	}
}
