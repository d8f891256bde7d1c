// Command deskpilot lets a vision-capable model operate the local desktop.
//
// Every iteration sends the conversation and a fresh screenshot to the model,
// performs the actions it requests with synthesized mouse and keyboard input,
// and answers each action with a new screenshot until the model replies
// without asking for anything.
//
// # Basic Usage
//
//	deskpilot --task "open notepad and type hello"
//	deskpilot --confirm --max-iter 10
//	deskpilot tools --size 1920x1080
//
// # Environment Variables
//
//   - ANTHROPIC_API_KEY, ANTHROPIC_AUTH_TOKEN, OPENROUTER_API_KEY: API key,
//     first one set wins
//   - ANTHROPIC_BASE_URL: API root (default https://openrouter.ai/api)
//   - DESKPILOT_MODEL, DESKPILOT_PROVIDER: model and wire protocol
//   - DESKPILOT_CONFIG: config file (default ~/.deskpilot/config.yaml)
//
// Move the pointer into the top-left corner of the screen to abort a run.
package main

import (
	"fmt"
	"os"
)

// Build information, populated by ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	rootCmd := buildRootCmd(os.Stdin, os.Stdout)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
