package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/haasonsaas/deskpilot/internal/agent"
	"github.com/haasonsaas/deskpilot/internal/config"
	"github.com/haasonsaas/deskpilot/internal/input"
	"github.com/haasonsaas/deskpilot/internal/screen"
	"github.com/haasonsaas/deskpilot/internal/tools/computeruse"
)

// runOptions holds the command line flags.
type runOptions struct {
	configPath  string
	task        string
	confirm     bool
	provider    string
	baseURL     string
	model       string
	scale       float64
	maxIter     int
	debugDir    string
	noDebug     bool
	logLevel    string
	metricsAddr string
}

// buildRootCmd creates the root command with all subcommands attached.
func buildRootCmd(stdin io.Reader, stdout io.Writer) *cobra.Command {
	opts := &runOptions{}

	rootCmd := &cobra.Command{
		Use:   "deskpilot",
		Short: "Let a vision model operate this desktop",
		Long: `deskpilot sends screenshots to a vision model and performs the mouse and
keyboard actions it asks for until the task is done.

Move the pointer into the top-left corner of the screen to abort.`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTask(cmd.Context(), cmd, opts, stdin, stdout)
		},
	}
	rootCmd.SetIn(stdin)
	rootCmd.SetOut(stdout)

	rootCmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "Config file (default ~/.deskpilot/config.yaml, or $DESKPILOT_CONFIG)")

	registerRunFlags(rootCmd, opts)

	rootCmd.AddCommand(
		buildToolsCmd(opts),
		buildConfigCmd(opts),
		buildVersionCmd(),
	)
	return rootCmd
}

// registerRunFlags binds the flags of a task run to opts.
func registerRunFlags(cmd *cobra.Command, opts *runOptions) {
	defaults := config.Default()
	flags := cmd.Flags()
	flags.StringVarP(&opts.task, "task", "t", "", "Task description; prompted for when empty")
	flags.BoolVar(&opts.confirm, "confirm", false, "Ask before every action")
	flags.StringVar(&opts.provider, "provider", defaults.Provider, "Wire protocol: openai or anthropic")
	flags.StringVar(&opts.baseURL, "base-url", "", "API root without /v1 (default https://openrouter.ai/api)")
	flags.StringVar(&opts.model, "model", defaults.Model, "Model name")
	flags.Float64Var(&opts.scale, "scale", defaults.Scale, "Screenshot scale factor in (0, 1]")
	flags.IntVar(&opts.maxIter, "max-iter", defaults.MaxIterations, "Maximum model round trips")
	flags.StringVar(&opts.debugDir, "debug-dir", defaults.Debug.Dir, "Directory for debug frames")
	flags.BoolVar(&opts.noDebug, "no-debug", false, "Do not save debug frames")
	flags.StringVar(&opts.logLevel, "log-level", defaults.Logging.Level, "Log level: debug, info, warn, error")
	flags.StringVar(&opts.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address, e.g. :9464")
}

func flagChanged(cmd *cobra.Command, name string) bool {
	if cmd == nil {
		return false
	}
	if flag := cmd.Flags().Lookup(name); flag != nil {
		return flag.Changed
	}
	return false
}

// applyFlags overlays the flags the user actually set.
func applyFlags(cmd *cobra.Command, cfg config.Config, opts *runOptions) config.Config {
	if flagChanged(cmd, "provider") {
		cfg.Provider = strings.ToLower(strings.TrimSpace(opts.provider))
	}
	if flagChanged(cmd, "base-url") {
		cfg.BaseURL = opts.baseURL
	}
	if flagChanged(cmd, "model") {
		cfg.Model = opts.model
	}
	if flagChanged(cmd, "scale") {
		cfg.Scale = opts.scale
	}
	if flagChanged(cmd, "max-iter") {
		cfg.MaxIterations = opts.maxIter
	}
	if flagChanged(cmd, "confirm") {
		cfg.Confirm = opts.confirm
	}
	if flagChanged(cmd, "debug-dir") {
		cfg.Debug.Dir = opts.debugDir
	}
	if flagChanged(cmd, "no-debug") && opts.noDebug {
		cfg.Debug.SaveFrames = false
	}
	if flagChanged(cmd, "log-level") {
		cfg.Logging.Level = opts.logLevel
	}
	if flagChanged(cmd, "metrics-addr") {
		cfg.Observability.MetricsAddr = opts.metricsAddr
	}
	return cfg
}

// loadConfig resolves the config file and environment, then the flags.
func loadConfig(cmd *cobra.Command, opts *runOptions) (config.Config, string, error) {
	cfg, path, err := config.Resolve(opts.configPath)
	if err != nil {
		return config.Config{}, path, err
	}
	return applyFlags(cmd, cfg, opts), path, nil
}

func buildToolsCmd(opts *runOptions) *cobra.Command {
	var size string
	var scale float64
	cmd := &cobra.Command{
		Use:   "tools",
		Short: "Print the tool catalog offered to the model",
		Long: `Print the tools, with their JSON schemas, as the model would see them for
the current screen. Use --size to describe a screen other than this one.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := config.Resolve(opts.configPath)
			if err != nil {
				return err
			}
			if flagChanged(cmd, "scale") {
				cfg.Scale = scale
			}
			width, height, err := screenSize(cmd.Context(), size)
			if err != nil {
				return err
			}
			geo, err := screen.NewGeometry(width, height, cfg.Scale)
			if err != nil {
				return err
			}
			catalog, err := computeruse.NewCatalog(geo)
			if err != nil {
				return err
			}
			return printCatalog(cmd.OutOrStdout(), catalog.Specs())
		},
	}
	cmd.Flags().StringVar(&size, "size", "", "Screen size as WIDTHxHEIGHT instead of querying the display")
	cmd.Flags().Float64Var(&scale, "scale", config.Default().Scale, "Screenshot scale factor in (0, 1]")
	return cmd
}

func screenSize(ctx context.Context, size string) (int, int, error) {
	if strings.TrimSpace(size) != "" {
		return parseSize(size)
	}
	if err := input.CheckAvailable(); err != nil {
		return 0, 0, err
	}
	if ctx == nil {
		ctx = context.Background()
	}
	return input.NewXdoInjector(input.XdoConfig{}).ScreenSize(ctx)
}

func parseSize(size string) (int, int, error) {
	w, h, ok := strings.Cut(strings.ToLower(strings.TrimSpace(size)), "x")
	if !ok {
		return 0, 0, fmt.Errorf("invalid size %q, want WIDTHxHEIGHT", size)
	}
	width, err := strconv.Atoi(strings.TrimSpace(w))
	if err != nil {
		return 0, 0, fmt.Errorf("invalid width in %q: %w", size, err)
	}
	height, err := strconv.Atoi(strings.TrimSpace(h))
	if err != nil {
		return 0, 0, fmt.Errorf("invalid height in %q: %w", size, err)
	}
	return width, height, nil
}

type catalogEntry struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"`
}

func printCatalog(out io.Writer, specs []agent.ToolSpec) error {
	entries := make([]catalogEntry, len(specs))
	for i, spec := range specs {
		entries[i] = catalogEntry{Name: spec.Name, Description: spec.Description, Parameters: spec.Schema()}
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(entries)
}

func buildConfigCmd(opts *runOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect configuration",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "schema",
		Short: "Print the JSON schema of the config file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := config.JSONSchema()
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return err
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Load and validate the configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, path, err := config.Resolve(opts.configPath)
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			if path == "" {
				path = "built-in defaults"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "config ok (%s)\n", path)
			return nil
		},
	})
	return cmd
}

func buildVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "deskpilot %s (commit: %s, built: %s)\n", version, commit, date)
		},
	}
}

// newStdinReader shares one buffered reader between all prompts.
func newStdinReader(stdin io.Reader) *bufio.Reader {
	if r, ok := stdin.(*bufio.Reader); ok {
		return r
	}
	return bufio.NewReader(stdin)
}
