package input

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// Runner executes an external command and returns its combined output.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct{}

// Run implements Runner.
func (ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	output, err := exec.CommandContext(ctx, name, args...).CombinedOutput()
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		sub := ""
		if len(args) > 0 {
			sub = " " + args[0]
		}
		return nil, fmt.Errorf("%s%s failed: %w: %s", name, sub, err, bytes.TrimSpace(output))
	}
	return output, nil
}

// XdoConfig configures an XdoInjector.
type XdoConfig struct {
	Guard SafetyGuard

	// GlideSteps is the number of intermediate moves used when a move has a
	// duration. Default: 10.
	GlideSteps int

	// ClickDelay separates repeated clicks. Default: 80ms.
	ClickDelay time.Duration

	Runner Runner
	Logger *slog.Logger
}

// XdoInjector drives X11 input through the xdotool command.
type XdoInjector struct {
	runner     Runner
	guard      SafetyGuard
	glideSteps int
	clickDelay time.Duration
	logger     *slog.Logger
	sleep      func(ctx context.Context, d time.Duration) error
}

// NewXdoInjector creates an injector. A nil Runner uses ExecRunner.
func NewXdoInjector(config XdoConfig) *XdoInjector {
	if config.Runner == nil {
		config.Runner = ExecRunner{}
	}
	if config.GlideSteps <= 0 {
		config.GlideSteps = 10
	}
	if config.ClickDelay <= 0 {
		config.ClickDelay = 80 * time.Millisecond
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &XdoInjector{
		runner:     config.Runner,
		guard:      config.Guard,
		glideSteps: config.GlideSteps,
		clickDelay: config.ClickDelay,
		logger:     logger.With("component", "xdotool"),
		sleep:      sleepContext,
	}
}

// CheckAvailable reports whether xdotool is installed.
func CheckAvailable() error {
	if _, err := exec.LookPath("xdotool"); err != nil {
		return fmt.Errorf("xdotool not found (apt install xdotool): %w", err)
	}
	return nil
}

func (x *XdoInjector) xdo(ctx context.Context, args ...string) ([]byte, error) {
	return x.runner.Run(ctx, "xdotool", args...)
}

// Position returns the pointer location in real display coordinates.
func (x *XdoInjector) Position(ctx context.Context) (int, int, error) {
	output, err := x.xdo(ctx, "getmouselocation", "--shell")
	if err != nil {
		return 0, 0, err
	}
	values := parseShellVars(output)
	px, okX := values["x"]
	py, okY := values["y"]
	if !okX || !okY {
		return 0, 0, fmt.Errorf("unexpected getmouselocation output %q", bytes.TrimSpace(output))
	}
	return px, py, nil
}

// ScreenSize returns the real display resolution.
func (x *XdoInjector) ScreenSize(ctx context.Context) (int, int, error) {
	output, err := x.xdo(ctx, "getdisplaygeometry")
	if err != nil {
		return 0, 0, err
	}
	fields := strings.Fields(string(output))
	if len(fields) != 2 {
		return 0, 0, fmt.Errorf("unexpected getdisplaygeometry output %q", bytes.TrimSpace(output))
	}
	w, errW := strconv.Atoi(fields[0])
	h, errH := strconv.Atoi(fields[1])
	if err := errors.Join(errW, errH); err != nil {
		return 0, 0, fmt.Errorf("parse display geometry: %w", err)
	}
	return w, h, nil
}

// check trips the guard when the pointer sits in the corner.
func (x *XdoInjector) check(ctx context.Context) (int, int, error) {
	if err := ctx.Err(); err != nil {
		return 0, 0, err
	}
	if x.guard.Disabled {
		return 0, 0, nil
	}
	px, py, err := x.Position(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("read pointer: %w", err)
	}
	return px, py, x.guard.Check(px, py)
}

// prepare runs the guard check and rejects guarded targets.
func (x *XdoInjector) prepare(ctx context.Context, tx, ty int) error {
	if _, _, err := x.check(ctx); err != nil {
		return err
	}
	return x.guard.Target(tx, ty)
}

// Move glides the pointer to (tx, ty) over duration. The guard is consulted
// before every step; a pointer that has left the glide path and landed in the
// corner means the operator intervened.
func (x *XdoInjector) Move(ctx context.Context, tx, ty int, duration time.Duration) error {
	sx, sy, err := x.check(ctx)
	if err != nil {
		return err
	}
	if err := x.guard.Target(tx, ty); err != nil {
		return err
	}
	if duration <= 0 {
		return x.moveTo(ctx, tx, ty)
	}
	if x.guard.Disabled {
		if sx, sy, err = x.Position(ctx); err != nil {
			return x.moveTo(ctx, tx, ty)
		}
	}

	stepDelay := duration / time.Duration(x.glideSteps)
	lastX, lastY := sx, sy
	for i := 1; i <= x.glideSteps; i++ {
		if i > 1 {
			px, py, err := x.Position(ctx)
			if err != nil {
				return fmt.Errorf("read pointer: %w", err)
			}
			if (px != lastX || py != lastY) && x.guard.Contains(px, py) {
				return x.guard.Check(px, py)
			}
		}
		ix := sx + (tx-sx)*i/x.glideSteps
		iy := sy + (ty-sy)*i/x.glideSteps
		if x.guard.Contains(ix, iy) {
			continue
		}
		if err := x.moveTo(ctx, ix, iy); err != nil {
			return err
		}
		lastX, lastY = ix, iy
		if i < x.glideSteps {
			if err := x.sleep(ctx, stepDelay); err != nil {
				return err
			}
		}
	}
	return nil
}

func (x *XdoInjector) moveTo(ctx context.Context, px, py int) error {
	_, err := x.xdo(ctx, "mousemove", "--sync", strconv.Itoa(px), strconv.Itoa(py))
	return err
}

// Click moves to (tx, ty) and clicks button clicks times.
func (x *XdoInjector) Click(ctx context.Context, tx, ty int, button Button, clicks int) error {
	btn, err := buttonNumber(button)
	if err != nil {
		return err
	}
	if clicks < 1 {
		clicks = 1
	}
	if err := x.prepare(ctx, tx, ty); err != nil {
		return err
	}
	if err := x.moveTo(ctx, tx, ty); err != nil {
		return err
	}
	delay := strconv.Itoa(int(x.clickDelay / time.Millisecond))
	_, err = x.xdo(ctx, "click", "--repeat", strconv.Itoa(clicks), "--delay", delay, btn)
	return err
}

// MouseDown presses button at (tx, ty) without releasing it.
func (x *XdoInjector) MouseDown(ctx context.Context, tx, ty int, button Button) error {
	return x.press(ctx, "mousedown", tx, ty, button)
}

// MouseUp releases button at (tx, ty).
func (x *XdoInjector) MouseUp(ctx context.Context, tx, ty int, button Button) error {
	return x.press(ctx, "mouseup", tx, ty, button)
}

// Release lifts button in place. It skips the guard check so it still works
// after a safety trip.
func (x *XdoInjector) Release(ctx context.Context, button Button) error {
	btn, err := buttonNumber(button)
	if err != nil {
		return err
	}
	_, err = x.xdo(ctx, "mouseup", btn)
	return err
}

func (x *XdoInjector) press(ctx context.Context, verb string, tx, ty int, button Button) error {
	btn, err := buttonNumber(button)
	if err != nil {
		return err
	}
	if err := x.prepare(ctx, tx, ty); err != nil {
		return err
	}
	if err := x.moveTo(ctx, tx, ty); err != nil {
		return err
	}
	_, err = x.xdo(ctx, verb, btn)
	return err
}

// KeyPress taps a single key.
func (x *XdoInjector) KeyPress(ctx context.Context, key string) error {
	if key == "" {
		return errors.New("empty key")
	}
	if _, _, err := x.check(ctx); err != nil {
		return err
	}
	_, err := x.xdo(ctx, "key", "--clearmodifiers", Keysym(key))
	return err
}

// KeyCombo holds every key in order and releases them in reverse.
func (x *XdoInjector) KeyCombo(ctx context.Context, keys []string) error {
	if len(keys) == 0 {
		return errors.New("empty key combination")
	}
	if _, _, err := x.check(ctx); err != nil {
		return err
	}
	syms := make([]string, len(keys))
	for i, key := range keys {
		syms[i] = Keysym(key)
	}
	_, err := x.xdo(ctx, "key", "--clearmodifiers", strings.Join(syms, "+"))
	return err
}

// Scroll turns the wheel one notch at a time, re-checking the guard between
// notches.
func (x *XdoInjector) Scroll(ctx context.Context, tx, ty, clicks int) error {
	if err := x.prepare(ctx, tx, ty); err != nil {
		return err
	}
	if err := x.moveTo(ctx, tx, ty); err != nil {
		return err
	}
	btn := "4"
	if clicks < 0 {
		btn = "5"
		clicks = -clicks
	}
	for i := 0; i < clicks; i++ {
		if i > 0 {
			if _, _, err := x.check(ctx); err != nil {
				return err
			}
		}
		if _, err := x.xdo(ctx, "click", btn); err != nil {
			return err
		}
	}
	return nil
}

// Type enters text through synthesized key events.
func (x *XdoInjector) Type(ctx context.Context, text string) error {
	if text == "" {
		return nil
	}
	if _, _, err := x.check(ctx); err != nil {
		return err
	}
	_, err := x.xdo(ctx, "type", "--delay", "10", "--", text)
	return err
}

func buttonNumber(b Button) (string, error) {
	switch b {
	case ButtonLeft, "":
		return "1", nil
	case ButtonMiddle:
		return "2", nil
	case ButtonRight:
		return "3", nil
	default:
		return "", fmt.Errorf("unknown mouse button %q", b)
	}
}

// parseShellVars reads KEY=value lines as printed by "xdotool ... --shell".
func parseShellVars(output []byte) map[string]int {
	values := make(map[string]int)
	for _, line := range strings.Split(string(output), "\n") {
		key, raw, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		val, err := strconv.Atoi(strings.TrimSpace(raw))
		if err == nil {
			values[strings.ToLower(strings.TrimSpace(key))] = val
		}
	}
	return values
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
