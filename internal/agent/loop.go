package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/haasonsaas/deskpilot/internal/capture"
	"github.com/haasonsaas/deskpilot/internal/input"
	"github.com/haasonsaas/deskpilot/internal/observability"
)

// Observer produces the current screen observation.
type Observer interface {
	Observe(ctx context.Context) (capture.Observation, error)
}

// ToolOutcome is the result of dispatching one tool call.
type ToolOutcome struct {
	// Note is a short text description of what happened.
	Note string

	// Observation is the frame captured after the call.
	Observation capture.Observation
}

// Dispatcher executes model-issued tool calls.
//
// Dispatch returns an error only when the run cannot continue: a safety trip,
// cancellation, or a failed capture. Every other problem is reported in the
// outcome note.
type Dispatcher interface {
	Dispatch(ctx context.Context, call ToolCall) (*ToolOutcome, error)
}

// Watchdog runs alongside a run and returns a non-nil error to abort it.
type Watchdog interface {
	Watch(ctx context.Context) error
}

// LoopConfig configures the orchestration loop.
type LoopConfig struct {
	// Model is sent with every request.
	Model string

	// MaxTokens caps each response. Default: 4096
	MaxTokens int

	// MaxIterations bounds model round trips per run. Default: 30
	MaxIterations int

	// MaxRetries is the total number of attempts per request. Default: 3
	MaxRetries int

	// RetryDelay is the linear backoff unit. Default: 5s
	RetryDelay time.Duration

	// SystemPrompt seeds the conversation.
	SystemPrompt string

	// Tools is the catalog sent with every request.
	Tools []ToolSpec

	// OnEvent receives progress events. Optional.
	OnEvent EventHandler
}

// DefaultLoopConfig returns the defaults.
func DefaultLoopConfig() LoopConfig {
	return LoopConfig{
		MaxTokens:     4096,
		MaxIterations: 30,
		MaxRetries:    3,
		RetryDelay:    5 * time.Second,
	}
}

func sanitizeLoopConfig(config LoopConfig) LoopConfig {
	defaults := DefaultLoopConfig()
	if config.MaxTokens <= 0 {
		config.MaxTokens = defaults.MaxTokens
	}
	if config.MaxIterations <= 0 {
		config.MaxIterations = defaults.MaxIterations
	}
	if config.MaxRetries <= 0 {
		config.MaxRetries = defaults.MaxRetries
	}
	if config.RetryDelay < 0 {
		config.RetryDelay = 0
	}
	return config
}

// LoopDeps are the collaborators of a loop.
type LoopDeps struct {
	Transport  Transport
	Dispatcher Dispatcher
	Observer   Observer

	// Watchdog is optional.
	Watchdog Watchdog

	Logger  *slog.Logger
	Metrics *observability.Metrics
	Tracer  *observability.Tracer
}

// Phase is the loop state.
type Phase string

const (
	PhaseInit         Phase = "init"
	PhaseRequesting   Phase = "requesting"
	PhaseInterpreting Phase = "interpreting"
	PhaseDispatching  Phase = "dispatching"
	PhaseTerminated   Phase = "terminated"
)

// LoopState is the mutable bookkeeping of one run.
type LoopState struct {
	Phase         Phase
	Iteration     int
	MaxIterations int
	Reason        TerminationReason
}

// Result summarizes a finished run.
type Result struct {
	RunID      string
	Reason     TerminationReason
	Iterations int

	// FinalText is the model's closing message when the run completed.
	FinalText string

	// Err holds the failure for every reason except completed.
	Err error

	Transcript []Message
	Duration   time.Duration
}

// Loop drives the model through observe, request, and dispatch steps.
//
//	        ┌──────────────────────────────────────────────┐
//	        ▼                                              │
//	┌────────────┐    ┌──────────────┐    ┌─────────────┐  │
//	│ Requesting │───▶│ Interpreting │───▶│ Dispatching │──┘
//	└────────────┘    └──────────────┘    └─────────────┘
//	      │                  │                   │
//	      ▼                  ▼                   ▼
//	transport error      completed        budget exhausted
//
// Cancellation and safety trips end the run from any state.
type Loop struct {
	transport  Transport
	dispatcher Dispatcher
	observer   Observer
	watchdog   Watchdog
	config     LoopConfig
	logger     *slog.Logger
	metrics    *observability.Metrics
	tracer     *observability.Tracer
	sleep      func(context.Context, time.Duration) error
}

// NewLoop validates deps and applies config defaults.
func NewLoop(deps LoopDeps, config LoopConfig) (*Loop, error) {
	if deps.Transport == nil {
		return nil, ErrNoTransport
	}
	if deps.Dispatcher == nil {
		return nil, ErrNoDispatcher
	}
	if deps.Observer == nil {
		return nil, ErrNoObserver
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Loop{
		transport:  deps.Transport,
		dispatcher: deps.Dispatcher,
		observer:   deps.Observer,
		watchdog:   deps.Watchdog,
		config:     sanitizeLoopConfig(config),
		logger:     logger.With("component", "loop"),
		metrics:    deps.Metrics,
		tracer:     deps.Tracer,
		sleep:      sleepContext,
	}, nil
}

// Run executes task until the model stops calling tools or a terminal
// condition is reached. It never panics on collaborator failures; the reason
// is reported in the Result.
func (l *Loop) Run(ctx context.Context, task string) *Result {
	start := time.Now()
	runID := uuid.NewString()
	logger := l.logger.With("run_id", runID)

	ctx, span := l.tracer.Start(ctx, "agent.run",
		attribute.String("run.id", runID),
		attribute.Int("run.max_iterations", l.config.MaxIterations),
	)
	defer span.End()

	runCtx, cancel := context.WithCancelCause(ctx)
	var wg sync.WaitGroup
	if l.watchdog != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := l.watchdog.Watch(runCtx); err != nil {
				cancel(err)
			}
		}()
	}

	state := &LoopState{Phase: PhaseInit, MaxIterations: l.config.MaxIterations}
	result := l.run(runCtx, state, task, logger)

	cancel(errRunFinished)
	wg.Wait()

	result.RunID = runID
	result.Iterations = state.Iteration
	result.Duration = time.Since(start)
	state.Phase = PhaseTerminated
	state.Reason = result.Reason

	span.SetAttributes(
		attribute.String("run.reason", string(result.Reason)),
		attribute.Int("run.iterations", result.Iterations),
	)
	observability.RecordError(span, result.Err)
	l.metrics.RecordRun(string(result.Reason))
	l.emit(Event{Kind: EventDone, Iteration: state.Iteration, Reason: result.Reason, Err: result.Err, Text: result.FinalText})

	attrs := []any{"reason", result.Reason, "iterations", result.Iterations, "duration", result.Duration.Round(time.Millisecond)}
	if result.Err != nil {
		logger.Warn("run finished", append(attrs, "error", result.Err)...)
	} else {
		logger.Info("run finished", attrs...)
	}
	return result
}

func (l *Loop) run(ctx context.Context, state *LoopState, task string, logger *slog.Logger) *Result {
	obs, err := l.observer.Observe(ctx)
	if err != nil {
		return l.fail(ctx, state, nil, ReasonDispatchError, fmt.Errorf("initial observation: %w", err))
	}
	conv := NewConversation(l.config.SystemPrompt, task, obs)
	logger.Info("run started", "task", task, "frame_bytes", obs.Size)

	for {
		if state.Iteration >= state.MaxIterations {
			return l.fail(ctx, state, conv, ReasonBudgetExhausted,
				fmt.Errorf("%w after %d iterations", ErrBudgetExhausted, state.Iteration))
		}
		if ctx.Err() != nil {
			return l.fail(ctx, state, conv, ReasonUserInterrupt, ctx.Err())
		}

		state.Iteration++
		state.Phase = PhaseRequesting
		l.metrics.RecordIteration()
		logger.Debug("requesting completion", "iteration", state.Iteration, "messages", conv.Len())

		completion, err := l.request(ctx, state, conv)
		if err != nil {
			return l.fail(ctx, state, conv, ReasonTransportError, err)
		}

		state.Phase = PhaseInterpreting
		if completion.Text != "" {
			l.emit(Event{Kind: EventAssistantText, Iteration: state.Iteration, Text: completion.Text})
		}
		if len(completion.ToolCalls) == 0 {
			if completion.Text != "" {
				if err := conv.Append(AssistantTextMessage(completion.Text)); err != nil {
					return l.fail(ctx, state, conv, ReasonDispatchError, fmt.Errorf("record reply: %w", err))
				}
			}
			return &Result{Reason: ReasonCompleted, FinalText: completion.Text, Transcript: conv.Snapshot()}
		}
		if err := conv.Append(AssistantToolCallsMessage(completion.Text, completion.ToolCalls)); err != nil {
			return l.fail(ctx, state, conv, ReasonDispatchError, fmt.Errorf("record tool calls: %w", err))
		}

		state.Phase = PhaseDispatching
		for i := range completion.ToolCalls {
			call := completion.ToolCalls[i]
			if ctx.Err() != nil {
				return l.fail(ctx, state, conv, ReasonUserInterrupt, ctx.Err())
			}
			l.emit(Event{Kind: EventToolCall, Iteration: state.Iteration, Call: &call})

			outcome, err := l.dispatch(ctx, call)
			if err != nil {
				return l.fail(ctx, state, conv, ReasonDispatchError, err)
			}
			if err := conv.Append(ToolResultMessage(call.ID, outcome.Note, outcome.Observation)); err != nil {
				return l.fail(ctx, state, conv, ReasonDispatchError, fmt.Errorf("record tool result: %w", err))
			}
			l.emit(Event{
				Kind:             EventToolResult,
				Iteration:        state.Iteration,
				Call:             &call,
				Text:             outcome.Note,
				ObservationBytes: outcome.Observation.Size,
			})
		}
	}
}

func (l *Loop) request(ctx context.Context, state *LoopState, conv *Conversation) (*Completion, error) {
	ctx, span := l.tracer.Start(ctx, "agent.request", attribute.Int("iteration", state.Iteration))
	defer span.End()

	req := &CompletionRequest{
		Model:      l.config.Model,
		MaxTokens:  l.config.MaxTokens,
		Messages:   conv.Snapshot(),
		Tools:      l.config.Tools,
		ToolChoice: ToolChoiceAuto,
	}
	provider := l.transport.Name()
	policy := RetryPolicy{MaxAttempts: l.config.MaxRetries, Delay: l.config.RetryDelay}

	var completion *Completion
	onRetry := func(attempt int, wait time.Duration, err error) {
		l.metrics.RecordRetry(provider)
		l.logger.Warn("model request failed, retrying",
			"provider", provider, "attempt", attempt, "wait", wait, "error", err)
		l.emit(Event{Kind: EventRetry, Iteration: state.Iteration, Attempt: attempt, Delay: wait, Err: err})
	}
	err := policy.Do(ctx, IsRetryable, onRetry, l.sleep, func(attempt int) error {
		l.emit(Event{Kind: EventRequest, Iteration: state.Iteration, Attempt: attempt})
		started := time.Now()
		c, err := l.transport.Complete(ctx, req)
		status := "success"
		switch {
		case err != nil && IsRetryable(err):
			status = "retryable"
		case err != nil:
			status = "error"
		}
		l.metrics.RecordRequest(provider, status, time.Since(started))
		if err != nil {
			return err
		}
		completion = c
		return nil
	})
	if err != nil {
		observability.RecordError(span, err)
		return nil, err
	}
	if completion == nil {
		completion = &Completion{}
	}
	span.SetAttributes(attribute.Int("tool_calls", len(completion.ToolCalls)))
	return completion, nil
}

func (l *Loop) dispatch(ctx context.Context, call ToolCall) (*ToolOutcome, error) {
	ctx, span := l.tracer.Start(ctx, "tool.dispatch",
		attribute.String("tool.name", call.Name),
		attribute.String("tool.call_id", call.ID),
	)
	defer span.End()

	outcome, err := l.dispatcher.Dispatch(ctx, call)
	if err != nil {
		observability.RecordError(span, err)
		return nil, err
	}
	return outcome, nil
}

// fail builds the terminal result. Cancellation and safety trips take
// precedence over the reason suggested by the failing step.
func (l *Loop) fail(ctx context.Context, state *LoopState, conv *Conversation, reason TerminationReason, err error) *Result {
	if ctx.Err() != nil {
		reason = ReasonUserInterrupt
		if cause := context.Cause(ctx); cause != nil && !errors.Is(cause, context.Canceled) {
			err = cause
		}
	}
	if errors.Is(err, input.ErrSafetyTrip) {
		reason = ReasonSafetyAbort
	}

	result := &Result{
		Reason: reason,
		Err:    &LoopError{Phase: state.Phase, Iteration: state.Iteration, Reason: reason, Cause: err},
	}
	if conv != nil {
		result.Transcript = conv.Snapshot()
	}
	return result
}

func (l *Loop) emit(ev Event) {
	if l.config.OnEvent != nil {
		l.config.OnEvent(ev)
	}
}
