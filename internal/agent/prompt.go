package agent

import (
	"fmt"
	"strings"

	"github.com/haasonsaas/deskpilot/internal/screen"
)

var osHints = map[string][]string{
	"linux": {
		"Open the application launcher with the win key, type the program name, then press enter.",
		"Terminal emulators usually open with ctrl+alt+t.",
	},
	"darwin": {
		"Open Spotlight with cmd+space, type the application name, then press enter.",
		"Most shortcuts use cmd instead of ctrl.",
	},
	"windows": {
		"Open the run dialog with win+r, or press win and type to search.",
		"Paths use backslashes, for example C:\\Users.",
	},
}

// BuildSystemPrompt describes the screen and the working rules to the model.
func BuildSystemPrompt(geo screen.Geometry, goos string) string {
	var b strings.Builder
	b.WriteString("You are an autonomous agent operating a real desktop computer through mouse and keyboard tools.\n\n")

	fmt.Fprintf(&b, "Screen: %dx%d pixels. Screenshots you receive are scaled to %dx%d.\n",
		geo.RealWidth, geo.RealHeight, geo.ScaledWidth, geo.ScaledHeight)
	fmt.Fprintf(&b, "All coordinates you send must be in screenshot space: x in [0, %d), y in [0, %d). "+
		"They are converted to the real screen automatically.\n\n", geo.ScaledWidth, geo.ScaledHeight)

	b.WriteString("Working rules:\n")
	b.WriteString("- Every tool returns a fresh screenshot. Study it before the next action.\n")
	b.WriteString("- Take one small step at a time and verify its effect.\n")
	b.WriteString("- Click the center of buttons and fields, not their edges.\n")
	b.WriteString("- Use type_text for text entry and press_key for shortcuts such as ctrl+s.\n")
	b.WriteString("- If something is loading, call wait instead of acting again.\n")
	b.WriteString("- If an action had no visible effect, try a different approach instead of repeating it.\n")
	b.WriteString("- Never move the pointer to the top-left corner; that aborts the session.\n")

	if hints, ok := osHints[goos]; ok {
		b.WriteString("\nPlatform notes:\n")
		for _, hint := range hints {
			b.WriteString("- " + hint + "\n")
		}
	}

	b.WriteString("\nWhen the task is complete, reply with a short summary and do not call any tool.")
	return b.String()
}
