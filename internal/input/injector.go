// Package input drives the pointer and keyboard of the real display.
package input

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrSafetyTrip is returned when the operator parks the pointer in the guarded
// corner. It aborts the run immediately.
var ErrSafetyTrip = errors.New("safety trip: pointer in guarded corner")

// ErrGuardedTarget is returned when an action would drive the pointer into the
// guarded corner. Unlike ErrSafetyTrip it only fails the single action.
var ErrGuardedTarget = errors.New("target inside guarded corner")

// Button identifies a mouse button.
type Button string

const (
	ButtonLeft   Button = "left"
	ButtonRight  Button = "right"
	ButtonMiddle Button = "middle"
)

// Valid reports whether b names a known button.
func (b Button) Valid() bool {
	switch b {
	case ButtonLeft, ButtonRight, ButtonMiddle:
		return true
	}
	return false
}

// Injector performs primitive input actions in real display coordinates.
// Every method checks the safety guard before acting and returns
// ErrSafetyTrip when it is tripped, including between the sub-steps of a
// single primitive.
type Injector interface {
	Move(ctx context.Context, x, y int, duration time.Duration) error
	Click(ctx context.Context, x, y int, button Button, clicks int) error
	MouseDown(ctx context.Context, x, y int, button Button) error
	MouseUp(ctx context.Context, x, y int, button Button) error
	// Release lets go of button wherever the pointer is, without consulting
	// the guard, so a held button is never left behind.
	Release(ctx context.Context, button Button) error
	KeyPress(ctx context.Context, key string) error
	KeyCombo(ctx context.Context, keys []string) error
	// Scroll turns the wheel at (x, y); positive clicks scroll up.
	Scroll(ctx context.Context, x, y, clicks int) error
	Type(ctx context.Context, text string) error

	Position(ctx context.Context) (int, int, error)
	ScreenSize(ctx context.Context) (int, int, error)
}

// SafetyGuard defines the top-left corner region that trips the fail-safe.
type SafetyGuard struct {
	// Margin is the size of the guarded square in pixels; 0 guards (0, 0) only.
	Margin int
	// Disabled turns the guard off.
	Disabled bool
}

// Contains reports whether (x, y) lies in the guarded corner.
func (g SafetyGuard) Contains(x, y int) bool {
	if g.Disabled {
		return false
	}
	return x <= g.Margin && y <= g.Margin
}

// Check returns ErrSafetyTrip if the pointer position is guarded.
func (g SafetyGuard) Check(x, y int) error {
	if g.Contains(x, y) {
		return fmt.Errorf("%w at (%d, %d)", ErrSafetyTrip, x, y)
	}
	return nil
}

// Target returns ErrGuardedTarget if an action aims at the guarded corner.
func (g SafetyGuard) Target(x, y int) error {
	if g.Contains(x, y) {
		return fmt.Errorf("%w: (%d, %d)", ErrGuardedTarget, x, y)
	}
	return nil
}
