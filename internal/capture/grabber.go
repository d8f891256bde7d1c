package capture

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/png" // screenshot tools write PNG
	"os"
	"os/exec"
	"path/filepath"
	"runtime"

	"github.com/google/uuid"
)

// ErrNoScreenshotTool is returned when no supported screenshot command is installed.
var ErrNoScreenshotTool = errors.New("no screenshot tool available")

// Grabber captures the full real-resolution display.
type Grabber interface {
	Grab(ctx context.Context) (image.Image, error)
}

// screenshotTool is a command that writes a full-screen PNG to a path.
type screenshotTool struct {
	Name     string
	Args     func(path string) []string
	Platform string
}

var screenshotTools = []screenshotTool{
	{Name: "screencapture", Args: func(p string) []string { return []string{"-x", p} }, Platform: "darwin"},
	{Name: "scrot", Args: func(p string) []string { return []string{"--overwrite", p} }, Platform: "linux"},
	{Name: "gnome-screenshot", Args: func(p string) []string { return []string{"-f", p} }, Platform: "linux"},
	{Name: "import", Args: func(p string) []string { return []string{"-window", "root", p} }, Platform: "linux"},
}

// ExecGrabber shells out to the first screenshot command found on PATH.
type ExecGrabber struct {
	// TempDir holds the intermediate PNG. Defaults to os.TempDir().
	TempDir string

	lookPath func(string) (string, error)
	command  func(ctx context.Context, name string, args ...string) *exec.Cmd
}

// NewExecGrabber returns a grabber for the current platform.
func NewExecGrabber() *ExecGrabber {
	return &ExecGrabber{
		lookPath: exec.LookPath,
		command:  exec.CommandContext,
	}
}

// Grab writes a screenshot to a temp file, decodes it, and removes the file.
func (g *ExecGrabber) Grab(ctx context.Context) (image.Image, error) {
	tool, err := g.pick()
	if err != nil {
		return nil, err
	}

	dir := g.TempDir
	if dir == "" {
		dir = os.TempDir()
	}
	tmpFile := filepath.Join(dir, fmt.Sprintf("deskpilot_frame_%s.png", uuid.NewString()[:8]))
	defer os.Remove(tmpFile)

	command := g.command
	if command == nil {
		command = exec.CommandContext
	}
	cmd := command(ctx, tool.Name, tool.Args(tmpFile)...)
	if output, err := cmd.CombinedOutput(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("%s failed: %w: %s", tool.Name, err, bytes.TrimSpace(output))
	}

	data, err := os.ReadFile(tmpFile)
	if err != nil {
		return nil, fmt.Errorf("read screenshot: %w", err)
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode screenshot: %w", err)
	}
	return img, nil
}

func (g *ExecGrabber) pick() (screenshotTool, error) {
	lookPath := g.lookPath
	if lookPath == nil {
		lookPath = exec.LookPath
	}
	for _, tool := range screenshotTools {
		if tool.Platform != runtime.GOOS {
			continue
		}
		if _, err := lookPath(tool.Name); err == nil {
			return tool, nil
		}
	}
	if runtime.GOOS == "linux" {
		return screenshotTool{}, fmt.Errorf("%w: install scrot, gnome-screenshot or imagemagick", ErrNoScreenshotTool)
	}
	return screenshotTool{}, fmt.Errorf("%w on %s", ErrNoScreenshotTool, runtime.GOOS)
}
