package computeruse

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/haasonsaas/deskpilot/internal/agent"
	"github.com/haasonsaas/deskpilot/internal/clipboard"
	"github.com/haasonsaas/deskpilot/internal/input"
	"github.com/haasonsaas/deskpilot/internal/observability"
)

// Dispatch outcomes, used as metric labels.
const (
	outcomeExecuted = "executed"
	outcomeObserved = "observed"
	outcomeDenied   = "denied"
	outcomeFailed   = "failed"
	outcomeUnknown  = "unknown"
)

// Clipboard is the subset of the system clipboard used for typing.
type Clipboard interface {
	Copy(ctx context.Context, text string) error
	Read(ctx context.Context) (string, error)
}

// DispatcherConfig tunes action timing.
type DispatcherConfig struct {
	// SettleDelay is the pause after an action before capturing. Default: 400ms
	SettleDelay time.Duration

	// MoveDuration is the glide time for mouse_move. Default: 200ms
	MoveDuration time.Duration

	// DragHold is the pause after pressing the button. Default: 100ms
	DragHold time.Duration

	// DragDuration is the glide time while dragging. Default: 300ms
	DragDuration time.Duration

	// MaxWait caps the wait tool. Default: 60s
	MaxWait time.Duration

	// PasteKeys is the paste shortcut used by type_text. Default: "ctrl+v"
	PasteKeys string

	// RestoreClipboard puts the previous clipboard text back after typing.
	RestoreClipboard bool
}

// DefaultDispatcherConfig returns the default timings.
func DefaultDispatcherConfig() DispatcherConfig {
	return DispatcherConfig{
		SettleDelay:  400 * time.Millisecond,
		MoveDuration: 200 * time.Millisecond,
		DragHold:     100 * time.Millisecond,
		DragDuration: 300 * time.Millisecond,
		MaxWait:      60 * time.Second,
		PasteKeys:    "ctrl+v",
	}
}

func sanitizeDispatcherConfig(config DispatcherConfig) DispatcherConfig {
	defaults := DefaultDispatcherConfig()
	if config.SettleDelay < 0 {
		config.SettleDelay = 0
	}
	if config.MoveDuration < 0 {
		config.MoveDuration = 0
	}
	if config.DragHold < 0 {
		config.DragHold = 0
	}
	if config.DragDuration < 0 {
		config.DragDuration = 0
	}
	if config.MaxWait <= 0 {
		config.MaxWait = defaults.MaxWait
	}
	if strings.TrimSpace(config.PasteKeys) == "" {
		config.PasteKeys = defaults.PasteKeys
	}
	return config
}

// DispatcherDeps are the collaborators of a Dispatcher.
type DispatcherDeps struct {
	Catalog  *Catalog
	Injector input.Injector
	Observer agent.Observer
	Gate     *Gate

	// Clipboard is optional; without it type_text types key by key.
	Clipboard Clipboard

	Logger  *slog.Logger
	Metrics *observability.Metrics
}

// Dispatcher executes tool calls against the desktop.
type Dispatcher struct {
	catalog   *Catalog
	injector  input.Injector
	observer  agent.Observer
	gate      *Gate
	clipboard Clipboard
	config    DispatcherConfig
	pasteKeys []string
	logger    *slog.Logger
	metrics   *observability.Metrics
	sleep     func(context.Context, time.Duration) error
}

// NewDispatcher wires a dispatcher. Catalog, Injector and Observer are required.
func NewDispatcher(deps DispatcherDeps, config DispatcherConfig) (*Dispatcher, error) {
	switch {
	case deps.Catalog == nil:
		return nil, errors.New("dispatcher: catalog is required")
	case deps.Injector == nil:
		return nil, errors.New("dispatcher: injector is required")
	case deps.Observer == nil:
		return nil, errors.New("dispatcher: observer is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	gate := deps.Gate
	if gate == nil {
		gate = NewGate(false, nil, logger)
	}
	config = sanitizeDispatcherConfig(config)
	return &Dispatcher{
		catalog:   deps.Catalog,
		injector:  deps.Injector,
		observer:  deps.Observer,
		gate:      gate,
		clipboard: deps.Clipboard,
		config:    config,
		pasteKeys: NormalizeKeys(config.PasteKeys),
		logger:    logger.With("component", "dispatcher"),
		metrics:   deps.Metrics,
		sleep:     sleepContext,
	}, nil
}

// Dispatch performs call and returns a note plus a fresh observation. It
// fails only on a safety trip, cancellation, or a capture failure.
func (d *Dispatcher) Dispatch(ctx context.Context, call agent.ToolCall) (*agent.ToolOutcome, error) {
	started := time.Now()

	note, outcome, err := d.perform(ctx, call)
	if err != nil {
		return nil, err
	}

	obs, err := d.observer.Observe(ctx)
	if err != nil {
		return nil, fmt.Errorf("capture after %s: %w", call.Name, err)
	}

	label := call.Name
	if outcome == outcomeUnknown {
		label = outcomeUnknown
	}
	d.metrics.RecordDispatch(label, outcome, time.Since(started))
	d.logger.Debug("tool dispatched", "tool", call.Name, "call_id", call.ID, "outcome", outcome, "frame_bytes", obs.Size)

	return &agent.ToolOutcome{Note: note, Observation: obs}, nil
}

// action is a side-effecting tool call ready to run.
type action struct {
	detail  string
	summary string
	run     func(ctx context.Context) error
}

func (d *Dispatcher) perform(ctx context.Context, call agent.ToolCall) (string, string, error) {
	if _, ok := d.catalog.Lookup(call.Name); !ok {
		d.logger.Warn("unknown tool requested", "tool", call.Name, "call_id", call.ID)
		return fmt.Sprintf("Unknown tool %q, nothing was done. Here is the current screen.", call.Name), outcomeUnknown, nil
	}

	args, err := d.catalog.Arguments(call.Name, call.Arguments)
	if err != nil {
		d.logger.Warn("invalid tool arguments, defaulting bad fields",
			"tool", call.Name, "call_id", call.ID, "arguments", string(call.Arguments), "error", err)
	}

	switch call.Name {
	case ToolScreenshot:
		return "Screenshot taken.", outcomeObserved, nil
	case ToolWait:
		return d.wait(ctx, decodeWait(args))
	}

	act := d.plan(call.Name, args)
	d.logger.Info("executing action", "tool", call.Name, "detail", act.detail)

	if !d.gate.Allow(ctx, call.Name, act.detail) {
		if err := ctx.Err(); err != nil {
			return "", "", err
		}
		return fmt.Sprintf("The operator declined %s %s. Nothing was done. Here is the current screen.", call.Name, act.detail),
			outcomeDenied, nil
	}

	if err := act.run(ctx); err != nil {
		if errors.Is(err, input.ErrSafetyTrip) {
			return "", "", err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", "", ctxErr
		}
		d.logger.Warn("action failed", "tool", call.Name, "detail", act.detail, "error", err)
		return fmt.Sprintf("%s failed: %v. Here is the current screen.", call.Name, err), outcomeFailed, nil
	}

	if err := d.sleep(ctx, d.config.SettleDelay); err != nil {
		return "", "", err
	}
	return act.summary + " Here is the current screen.", outcomeExecuted, nil
}

func (d *Dispatcher) wait(ctx context.Context, args WaitArgs) (string, string, error) {
	wait := time.Duration(args.Seconds * float64(time.Second))
	if wait > d.config.MaxWait {
		wait = d.config.MaxWait
	}
	if err := d.sleep(ctx, wait); err != nil {
		return "", "", err
	}
	return fmt.Sprintf("Waited %.1f seconds.", wait.Seconds()), outcomeObserved, nil
}

// plan translates a call into an injector action in real coordinates.
func (d *Dispatcher) plan(name string, args Args) action {
	geo := d.catalog.Geometry()

	switch name {
	case ToolClick:
		a := decodeClick(args)
		rx, ry := geo.ToReal(a.X, a.Y)
		return action{
			detail:  fmt.Sprintf("(%d, %d) button=%s clicks=%d", a.X, a.Y, a.Button, a.Clicks),
			summary: fmt.Sprintf("Clicked %s %d time(s) at (%d, %d).", a.Button, a.Clicks, a.X, a.Y),
			run: func(ctx context.Context) error {
				return d.injector.Click(ctx, rx, ry, a.Button, a.Clicks)
			},
		}

	case ToolTypeText:
		a := decodeTypeText(args)
		return action{
			detail:  fmt.Sprintf("%q", preview(a.Text, 60)),
			summary: fmt.Sprintf("Typed %d characters.", utf8.RuneCountInString(a.Text)),
			run: func(ctx context.Context) error {
				return d.typeText(ctx, a.Text)
			},
		}

	case ToolPressKey:
		a := decodePressKey(args)
		combo := strings.Join(a.Keys, "+")
		return action{
			detail:  combo,
			summary: fmt.Sprintf("Pressed %s.", combo),
			run: func(ctx context.Context) error {
				if len(a.Keys) == 0 {
					return errors.New("no keys given")
				}
				if len(a.Keys) == 1 {
					return d.injector.KeyPress(ctx, a.Keys[0])
				}
				return d.injector.KeyCombo(ctx, a.Keys)
			},
		}

	case ToolScroll:
		a := decodeScroll(args, geo)
		rx, ry := geo.ToReal(a.X, a.Y)
		return action{
			detail:  fmt.Sprintf("%s %d at (%d, %d)", a.Direction, a.Amount, a.X, a.Y),
			summary: fmt.Sprintf("Scrolled %s %d at (%d, %d).", a.Direction, a.Amount, a.X, a.Y),
			run: func(ctx context.Context) error {
				return d.injector.Scroll(ctx, rx, ry, a.Clicks())
			},
		}

	case ToolMouseMove:
		a := decodeMove(args)
		rx, ry := geo.ToReal(a.X, a.Y)
		return action{
			detail:  fmt.Sprintf("(%d, %d)", a.X, a.Y),
			summary: fmt.Sprintf("Moved the pointer to (%d, %d).", a.X, a.Y),
			run: func(ctx context.Context) error {
				return d.injector.Move(ctx, rx, ry, d.config.MoveDuration)
			},
		}

	case ToolDrag:
		a := decodeDrag(args)
		sx, sy := geo.ToReal(a.StartX, a.StartY)
		ex, ey := geo.ToReal(a.EndX, a.EndY)
		return action{
			detail:  fmt.Sprintf("(%d, %d) -> (%d, %d)", a.StartX, a.StartY, a.EndX, a.EndY),
			summary: fmt.Sprintf("Dragged from (%d, %d) to (%d, %d).", a.StartX, a.StartY, a.EndX, a.EndY),
			run: func(ctx context.Context) error {
				return d.drag(ctx, sx, sy, ex, ey)
			},
		}
	}

	return action{
		run: func(context.Context) error {
			return fmt.Errorf("tool %q has no handler", name)
		},
	}
}

// drag holds the left button from start to end. Once the button is down it
// is always released, even when the run is being cancelled.
func (d *Dispatcher) drag(ctx context.Context, sx, sy, ex, ey int) error {
	if err := d.injector.MouseDown(ctx, sx, sy, input.ButtonLeft); err != nil {
		return err
	}
	if err := d.sleep(ctx, d.config.DragHold); err != nil {
		return d.release(ctx, err)
	}
	if err := d.injector.Move(ctx, ex, ey, d.config.DragDuration); err != nil {
		return d.release(ctx, err)
	}
	return d.injector.MouseUp(ctx, ex, ey, input.ButtonLeft)
}

// release lifts a held button after cause interrupted a drag and returns cause.
func (d *Dispatcher) release(ctx context.Context, cause error) error {
	if err := d.injector.Release(context.WithoutCancel(ctx), input.ButtonLeft); err != nil {
		d.logger.Error("failed to release mouse button after drag", "error", err, "cause", cause)
	}
	return cause
}

const clipboardRestoreDelay = 150 * time.Millisecond

// typeText pastes through the clipboard so any character survives keyboard
// layouts, and falls back to synthesized typing without a clipboard tool.
func (d *Dispatcher) typeText(ctx context.Context, text string) error {
	if d.clipboard == nil {
		return d.injector.Type(ctx, text)
	}

	previous, restore := "", false
	if d.config.RestoreClipboard {
		if prev, err := d.clipboard.Read(ctx); err == nil {
			previous, restore = prev, true
		}
	}

	if err := d.clipboard.Copy(ctx, text); err != nil {
		if errors.Is(err, clipboard.ErrNoClipboardTool) {
			d.logger.Debug("clipboard unavailable, typing directly", "error", err)
			return d.injector.Type(ctx, text)
		}
		return err
	}
	if err := d.injector.KeyCombo(ctx, d.pasteKeys); err != nil {
		return err
	}

	if restore {
		if err := d.sleep(ctx, clipboardRestoreDelay); err != nil {
			return err
		}
		if err := d.clipboard.Copy(ctx, previous); err != nil {
			d.logger.Warn("failed to restore clipboard", "error", err)
		}
	}
	return nil
}

func preview(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return string(runes[:limit]) + "..."
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
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
