package agent

import "time"

// EventKind identifies a progress event emitted during a run.
type EventKind string

const (
	EventRequest       EventKind = "request"
	EventRetry         EventKind = "retry"
	EventAssistantText EventKind = "assistant_text"
	EventToolCall      EventKind = "tool_call"
	EventToolResult    EventKind = "tool_result"
	EventDone          EventKind = "done"
)

// Event reports loop progress to an observer such as the CLI.
type Event struct {
	Kind      EventKind
	Iteration int

	// Attempt and Delay are set for EventRequest and EventRetry.
	Attempt int
	Delay   time.Duration

	// Text is assistant prose or a tool result note.
	Text string

	// Call is set for EventToolCall and EventToolResult.
	Call *ToolCall

	// ObservationBytes is the encoded size of a tool result frame.
	ObservationBytes int

	Reason TerminationReason
	Err    error
}

// EventHandler receives events synchronously on the loop goroutine.
type EventHandler func(Event)
