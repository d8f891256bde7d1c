// Package clipboard reads and writes the system clipboard through the
// platform's command line tools.
package clipboard

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"runtime"
	"strings"
	"time"
)

// DefaultTimeout bounds each clipboard tool attempt.
const DefaultTimeout = 3 * time.Second

// ErrNoClipboardTool is returned when no clipboard tool is available.
var ErrNoClipboardTool = errors.New("no clipboard tool available")

// Tool is a clipboard command with its arguments.
type Tool struct {
	Name     string
	Args     []string
	Platform string // "darwin", "linux", "windows", or "" for any
}

// copyTools are tried in order when writing.
var copyTools = []Tool{
	{Name: "pbcopy", Platform: "darwin"},
	{Name: "xclip", Args: []string{"-selection", "clipboard"}, Platform: "linux"},
	{Name: "xsel", Args: []string{"--clipboard", "--input"}, Platform: "linux"},
	{Name: "wl-copy", Platform: "linux"},
	{Name: "clip.exe"},
	{Name: "powershell", Args: []string{"-NoProfile", "-Command", "Set-Clipboard"}, Platform: "windows"},
}

// pasteTools are tried in order when reading.
var pasteTools = []Tool{
	{Name: "pbpaste", Platform: "darwin"},
	{Name: "xclip", Args: []string{"-selection", "clipboard", "-o"}, Platform: "linux"},
	{Name: "xsel", Args: []string{"--clipboard", "--output"}, Platform: "linux"},
	{Name: "wl-paste", Args: []string{"--no-newline"}, Platform: "linux"},
	{Name: "powershell", Args: []string{"-NoProfile", "-Command", "Get-Clipboard"}, Platform: "windows"},
}

// runFunc executes tool with stdin and returns stdout.
type runFunc func(ctx context.Context, tool Tool, stdin io.Reader) ([]byte, error)

// Clipboard talks to the system clipboard.
type Clipboard struct {
	timeout  time.Duration
	platform string
	run      runFunc
}

// New returns a clipboard for the current platform.
func New() *Clipboard {
	return &Clipboard{
		timeout:  DefaultTimeout,
		platform: runtime.GOOS,
		run:      runTool,
	}
}

// Copy writes text to the clipboard using the first tool that succeeds.
func (c *Clipboard) Copy(ctx context.Context, text string) error {
	tools := Applicable(copyTools, c.platform)
	if len(tools) == 0 {
		return ErrNoClipboardTool
	}
	var errs []error
	for _, tool := range tools {
		attemptCtx, cancel := context.WithTimeout(ctx, c.timeout)
		_, err := c.run(attemptCtx, tool, strings.NewReader(text))
		cancel()
		if err == nil {
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		errs = append(errs, fmt.Errorf("%s: %w", tool.Name, err))
	}
	return fmt.Errorf("%w: %w", ErrNoClipboardTool, errors.Join(errs...))
}

// Read returns the current clipboard text.
func (c *Clipboard) Read(ctx context.Context) (string, error) {
	tools := Applicable(pasteTools, c.platform)
	if len(tools) == 0 {
		return "", ErrNoClipboardTool
	}
	for _, tool := range tools {
		attemptCtx, cancel := context.WithTimeout(ctx, c.timeout)
		out, err := c.run(attemptCtx, tool, nil)
		cancel()
		if err == nil {
			return strings.TrimSuffix(string(out), "\n"), nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
	}
	return "", ErrNoClipboardTool
}

// Applicable filters tools down to those usable on platform.
func Applicable(tools []Tool, platform string) []Tool {
	var applicable []Tool
	for _, tool := range tools {
		if tool.Platform == "" || tool.Platform == platform {
			applicable = append(applicable, tool)
		}
	}
	return applicable
}

func runTool(ctx context.Context, tool Tool, stdin io.Reader) ([]byte, error) {
	cmd := exec.CommandContext(ctx, tool.Name, tool.Args...)
	cmd.Stdin = stdin
	var stdout bytes.Buffer
	cmd.Stdout = &stdout
	if err := cmd.Run(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return stdout.Bytes(), nil
}
