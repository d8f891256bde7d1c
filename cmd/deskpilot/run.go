package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"
	"time"
	"unicode/utf8"

	"github.com/spf13/cobra"

	"github.com/haasonsaas/deskpilot/internal/agent"
	"github.com/haasonsaas/deskpilot/internal/agent/providers"
	"github.com/haasonsaas/deskpilot/internal/capture"
	"github.com/haasonsaas/deskpilot/internal/clipboard"
	"github.com/haasonsaas/deskpilot/internal/config"
	"github.com/haasonsaas/deskpilot/internal/input"
	"github.com/haasonsaas/deskpilot/internal/observability"
	"github.com/haasonsaas/deskpilot/internal/screen"
	"github.com/haasonsaas/deskpilot/internal/tools/computeruse"
)

const rule = "════════════════════════════════════════════════════════════"

// runTask gathers input, wires the components and runs one task. Any run
// outcome returns nil; only missing input and setup failures are errors.
func runTask(ctx context.Context, cmd *cobra.Command, opts *runOptions, stdin io.Reader, stdout io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	in := newStdinReader(stdin)

	cfg, path, err := loadConfig(cmd, opts)
	if err != nil {
		return err
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		cfg.APIKey = promptSecret(stdin, in, stdout, "API key: ")
		if cfg.APIKey == "" {
			return errNoAPIKey
		}
	}
	task := strings.TrimSpace(opts.task)
	if task == "" {
		task = promptLine(in, stdout, "Task: ")
		if task == "" {
			return errNoTask
		}
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, closer := observability.NewLogger(observability.LogConfig{
		Level:   cfg.Logging.Level,
		Format:  cfg.Logging.Format,
		File:    cfg.Logging.File,
		Secrets: []string{cfg.APIKey},
	})
	defer closer.Close()
	slog.SetDefault(logger)
	if path != "" {
		logger.Debug("config loaded", "path", path)
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	tracer, shutdown, err := observability.NewTracer(ctx, observability.TraceConfig{
		ServiceName:    "deskpilot",
		ServiceVersion: version,
		Endpoint:       cfg.Observability.OTLPEndpoint,
		SamplingRate:   cfg.Observability.SampleRate,
		Insecure:       cfg.Observability.OTLPInsecure,
	})
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(shutdownCtx); err != nil {
			logger.Warn("tracer shutdown failed", "error", err)
		}
	}()

	metrics := observability.NewMetrics()
	if addr := cfg.Observability.MetricsAddr; addr != "" {
		go func() {
			if err := metrics.Serve(ctx, addr, logger); err != nil {
				logger.Error("metrics server failed", "addr", addr, "error", err)
			}
		}()
	}

	pilot, err := wire(ctx, cfg, in, stdout, logger, metrics, tracer)
	if err != nil {
		return err
	}

	printBanner(stdout, cfg, pilot, task)
	result := pilot.loop.Run(ctx, task)
	printSummary(stdout, result)
	return nil
}

// app is the wired object graph for one run.
type app struct {
	loop     *agent.Loop
	geometry screen.Geometry
	endpoint string
}

func wire(ctx context.Context, cfg config.Config, in io.Reader, stdout io.Writer, logger *slog.Logger, metrics *observability.Metrics, tracer *observability.Tracer) (*app, error) {
	if err := input.CheckAvailable(); err != nil {
		return nil, err
	}
	guard := input.SafetyGuard{Margin: cfg.Safety.CornerMargin, Disabled: cfg.Safety.Disabled}
	injector := input.NewXdoInjector(input.XdoConfig{Guard: guard, Logger: logger})

	width, height, err := injector.ScreenSize(ctx)
	if err != nil {
		return nil, fmt.Errorf("query screen size: %w", err)
	}
	geo, err := screen.NewGeometry(width, height, cfg.Scale)
	if err != nil {
		return nil, err
	}

	capturer := capture.NewCapturer(capture.NewExecGrabber(), geo, capture.Config{
		Quality:      cfg.JPEGQuality,
		SaveFrames:   cfg.Debug.SaveFrames,
		DebugDir:     cfg.Debug.Dir,
		DebugQuality: cfg.Debug.Quality,
		Logger:       logger,
		Metrics:      metrics,
	})

	catalog, err := computeruse.NewCatalog(geo)
	if err != nil {
		return nil, err
	}
	gate := computeruse.NewGate(cfg.Confirm, computeruse.NewConsoleConfirmer(in, stdout), logger)
	dispatcher, err := computeruse.NewDispatcher(computeruse.DispatcherDeps{
		Catalog:   catalog,
		Injector:  injector,
		Observer:  capturer,
		Gate:      gate,
		Clipboard: clipboard.New(),
		Logger:    logger,
		Metrics:   metrics,
	}, computeruse.DispatcherConfig{
		SettleDelay:      cfg.Dispatch.SettleDelay,
		MoveDuration:     cfg.Dispatch.MoveDuration,
		DragHold:         cfg.Dispatch.DragHold,
		DragDuration:     cfg.Dispatch.DragDuration,
		MaxWait:          cfg.Dispatch.MaxWait,
		PasteKeys:        cfg.Dispatch.PasteKeys,
		RestoreClipboard: cfg.Dispatch.RestoreClipboard,
	})
	if err != nil {
		return nil, err
	}

	httpClient := providers.NewHTTPClient(providers.HTTPConfig{
		Timeout:           cfg.Transport.Timeout,
		ConnectTimeout:    cfg.Transport.ConnectTimeout,
		RequestsPerMinute: cfg.Transport.RequestsPerMinute,
		Headers: map[string]string{
			"HTTP-Referer": cfg.Transport.Referer,
			"X-Title":      cfg.Transport.AppName,
		},
	})
	transport, endpoint, err := buildTransport(cfg, httpClient)
	if err != nil {
		return nil, err
	}

	var watchdog agent.Watchdog
	if !guard.Disabled {
		watchdog = input.NewWatchdog(injector, guard, cfg.Safety.WatchInterval, logger)
	}

	printer := &progressPrinter{out: stdout, maxIterations: cfg.MaxIterations}
	loop, err := agent.NewLoop(agent.LoopDeps{
		Transport:  transport,
		Dispatcher: dispatcher,
		Observer:   capturer,
		Watchdog:   watchdog,
		Logger:     logger,
		Metrics:    metrics,
		Tracer:     tracer,
	}, agent.LoopConfig{
		Model:         cfg.Model,
		MaxTokens:     cfg.MaxTokens,
		MaxIterations: cfg.MaxIterations,
		MaxRetries:    cfg.Transport.MaxRetries,
		RetryDelay:    cfg.Transport.RetryDelay,
		SystemPrompt:  agent.BuildSystemPrompt(geo, runtime.GOOS),
		Tools:         catalog.Specs(),
		OnEvent:       printer.handle,
	})
	if err != nil {
		return nil, err
	}
	return &app{loop: loop, geometry: geo, endpoint: endpoint}, nil
}

// buildTransport picks the wire protocol and returns a display endpoint.
func buildTransport(cfg config.Config, client *http.Client) (agent.Transport, string, error) {
	switch cfg.Provider {
	case config.ProviderAnthropic:
		p, err := providers.NewAnthropicProvider(providers.AnthropicConfig{
			APIKey:     cfg.APIKey,
			BaseURL:    cfg.BaseURL,
			HTTPClient: client,
		})
		if err != nil {
			return nil, "", err
		}
		endpoint := cfg.BaseURL
		if endpoint == "" {
			endpoint = "https://api.anthropic.com"
		}
		return p, strings.TrimRight(endpoint, "/") + "/v1/messages", nil
	case config.ProviderOpenAI:
		p, err := providers.NewOpenAIProvider(providers.OpenAIConfig{
			APIKey:     cfg.APIKey,
			BaseURL:    cfg.BaseURL,
			HTTPClient: client,
		})
		if err != nil {
			return nil, "", err
		}
		return p, p.Endpoint(), nil
	default:
		return nil, "", fmt.Errorf("unknown provider %q", cfg.Provider)
	}
}

func printBanner(out io.Writer, cfg config.Config, a *app, task string) {
	geo := a.geometry
	fmt.Fprintf(out, "\n%s\n", rule)
	fmt.Fprintf(out, "  deskpilot %s\n", version)
	fmt.Fprintf(out, "  screen:   %dx%d -> %dx%d (x%g)\n", geo.RealWidth, geo.RealHeight, geo.ScaledWidth, geo.ScaledHeight, geo.Scale)
	fmt.Fprintf(out, "  endpoint: %s\n", a.endpoint)
	fmt.Fprintf(out, "  model:    %s\n", cfg.Model)
	fmt.Fprintf(out, "  budget:   %d iterations\n", cfg.MaxIterations)
	if cfg.Confirm {
		fmt.Fprintln(out, "  confirm:  every action")
	}
	fmt.Fprintf(out, "  task:     %s\n", task)
	fmt.Fprintf(out, "%s\n\n", rule)
}

// progressPrinter renders loop events for the operator.
type progressPrinter struct {
	out           io.Writer
	maxIterations int
}

func (p *progressPrinter) handle(ev agent.Event) {
	switch ev.Kind {
	case agent.EventRequest:
		if ev.Attempt <= 1 {
			fmt.Fprintf(p.out, "── iteration %d/%d ──\n", ev.Iteration, p.maxIterations)
		}
		fmt.Fprintf(p.out, "  requesting model (attempt %d)\n", ev.Attempt)
	case agent.EventRetry:
		fmt.Fprintf(p.out, "  request failed: %v\n  retrying in %s\n", ev.Err, ev.Delay)
	case agent.EventAssistantText:
		fmt.Fprintf(p.out, "\n  model: %s\n\n", ev.Text)
	case agent.EventToolCall:
		if ev.Call != nil {
			fmt.Fprintf(p.out, "  tool: %s(%s)\n", ev.Call.Name, truncate(string(ev.Call.Arguments), 100))
		}
	case agent.EventToolResult:
		fmt.Fprintf(p.out, "  result: %s [%.1f KB]\n", ev.Text, float64(ev.ObservationBytes)/1024)
	}
}

func printSummary(out io.Writer, result *agent.Result) {
	fmt.Fprintf(out, "\n%s\n", rule)
	fmt.Fprintf(out, "  %s after %d iteration(s) in %s\n", result.Reason.Description(), result.Iterations, result.Duration.Round(time.Millisecond))
	if result.Err != nil {
		fmt.Fprintf(out, "  error: %v\n", result.Err)
	}
	if hint := diagnose(result); hint != "" {
		fmt.Fprintf(out, "  hint:  %s\n", hint)
	}
	fmt.Fprintf(out, "%s\n", rule)
}

func diagnose(result *agent.Result) string {
	switch result.Reason {
	case agent.ReasonBudgetExhausted:
		return "the task needed more steps; raise --max-iter or split the task"
	case agent.ReasonTransportError:
		var pe *providers.ProviderError
		if errors.As(result.Err, &pe) {
			switch pe.Kind {
			case providers.KindAuth:
				return "the API key was rejected"
			case providers.KindBilling:
				return "the account has no credit left"
			case providers.KindRateLimit:
				return "the endpoint is rate limiting; wait or lower transport.requests_per_minute"
			case providers.KindNotFound:
				return "the model or endpoint does not exist; check --model and --base-url"
			case providers.KindTimeout, providers.KindNetwork, providers.KindServerError:
				return "the endpoint is unreachable or failing; check the network and --base-url"
			}
		}
		return "check the API key, --base-url and --model"
	case agent.ReasonSafetyAbort:
		return "the pointer reached the top-left corner"
	case agent.ReasonUserInterrupt:
		return "stopped by the operator"
	case agent.ReasonDispatchError:
		if errors.Is(result.Err, agent.ErrInvalidSequence) {
			return "the model reply did not fit the conversation; rerun with --log-level debug"
		}
		return "no screenshot could be taken; install scrot, gnome-screenshot or ImageMagick"
	default:
		return ""
	}
}

func truncate(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	return string([]rune(s)[:limit]) + "..."
}
