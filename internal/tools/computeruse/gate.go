package computeruse

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
)

// Confirmer asks the operator whether an action may run.
type Confirmer interface {
	Confirm(ctx context.Context, action, detail string) (bool, error)
}

// Gate decides whether side-effecting actions run. Outside interactive mode
// everything is allowed.
type Gate struct {
	interactive bool
	confirmer   Confirmer
	logger      *slog.Logger
}

// NewGate creates a gate. In interactive mode every action except screenshot
// is put to confirmer.
func NewGate(interactive bool, confirmer Confirmer, logger *slog.Logger) *Gate {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gate{interactive: interactive, confirmer: confirmer, logger: logger.With("component", "gate")}
}

// Interactive reports whether the gate asks before acting.
func (g *Gate) Interactive() bool {
	return g != nil && g.interactive
}

// Allow returns true when the action may run. Errors from the confirmer,
// including cancellation, count as a refusal.
func (g *Gate) Allow(ctx context.Context, action, detail string) bool {
	if !g.Interactive() || action == ToolScreenshot {
		return true
	}
	if g.confirmer == nil {
		g.logger.Warn("interactive gate without confirmer, refusing", "action", action)
		return false
	}
	ok, err := g.confirmer.Confirm(ctx, action, detail)
	if err != nil {
		g.logger.Warn("confirmation failed, refusing", "action", action, "error", err)
		return false
	}
	if !ok {
		g.logger.Info("action declined by operator", "action", action, "detail", detail)
	}
	return ok
}

// ParseConfirmation treats an empty answer, "y" and "yes" as consent.
func ParseConfirmation(answer string) bool {
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "", "y", "yes":
		return true
	default:
		return false
	}
}

// ConsoleConfirmer prompts on a terminal. At most one read is outstanding on
// in: a read abandoned by a cancelled prompt answers the next prompt.
type ConsoleConfirmer struct {
	mu      sync.Mutex
	in      *bufio.Reader
	out     io.Writer
	pending chan answer
}

// NewConsoleConfirmer reads answers from in and writes prompts to out.
func NewConsoleConfirmer(in io.Reader, out io.Writer) *ConsoleConfirmer {
	return &ConsoleConfirmer{in: bufio.NewReader(in), out: out}
}

type answer struct {
	line string
	err  error
}

// Confirm implements Confirmer. The prompt is abandoned when ctx is done.
func (c *ConsoleConfirmer) Confirm(ctx context.Context, action, detail string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	fmt.Fprintf(c.out, "  ? About to run %s %s, continue? [Y/n] ", action, detail)

	answers := c.readLine()
	select {
	case <-ctx.Done():
		fmt.Fprintln(c.out)
		return false, ctx.Err()
	case a := <-answers:
		c.pending = nil
		if a.err != nil && a.line == "" {
			return false, fmt.Errorf("read confirmation: %w", a.err)
		}
		return ParseConfirmation(a.line), nil
	}
}

// readLine returns the outstanding read, starting one if none is in flight.
// Callers hold c.mu.
func (c *ConsoleConfirmer) readLine() chan answer {
	if c.pending != nil {
		return c.pending
	}
	answers := make(chan answer, 1)
	go func() {
		line, err := c.in.ReadString('\n')
		answers <- answer{line: line, err: err}
	}()
	c.pending = answers
	return answers
}

// AutoApprove allows everything.
type AutoApprove struct{}

// Confirm implements Confirmer.
func (AutoApprove) Confirm(context.Context, string, string) (bool, error) {
	return true, nil
}
