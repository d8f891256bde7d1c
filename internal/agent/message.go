package agent

import (
	"fmt"

	"github.com/haasonsaas/deskpilot/internal/capture"
)

// MessageKind tags the variant held by a Message.
type MessageKind int

const (
	KindSystem MessageKind = iota
	KindUserTask
	KindAssistantText
	KindAssistantToolCalls
	KindToolResult
)

func (k MessageKind) String() string {
	switch k {
	case KindSystem:
		return "system"
	case KindUserTask:
		return "user_task"
	case KindAssistantText:
		return "assistant_text"
	case KindAssistantToolCalls:
		return "assistant_tool_calls"
	case KindToolResult:
		return "tool_result"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Message is one entry of the conversation. Which fields are set depends on
// Kind; use the constructors below.
type Message struct {
	Kind MessageKind

	// Text is the system prompt, the task, assistant prose, or the tool
	// result note.
	Text string

	// ToolCalls is set for KindAssistantToolCalls.
	ToolCalls []ToolCall

	// ToolCallID links a KindToolResult to its call.
	ToolCallID string

	// Observation is set for KindUserTask and KindToolResult.
	Observation *capture.Observation
}

// SystemMessage holds the behavioral instructions.
func SystemMessage(text string) Message {
	return Message{Kind: KindSystem, Text: text}
}

// UserTaskMessage holds the task and the initial observation.
func UserTaskMessage(task string, obs capture.Observation) Message {
	return Message{Kind: KindUserTask, Text: task, Observation: &obs}
}

// AssistantTextMessage holds a final assistant reply.
func AssistantTextMessage(text string) Message {
	return Message{Kind: KindAssistantText, Text: text}
}

// AssistantToolCallsMessage holds tool requests plus any accompanying prose.
func AssistantToolCallsMessage(text string, calls []ToolCall) Message {
	return Message{Kind: KindAssistantToolCalls, Text: text, ToolCalls: append([]ToolCall(nil), calls...)}
}

// ToolResultMessage answers one tool call with a note and a fresh observation.
func ToolResultMessage(callID, note string, obs capture.Observation) Message {
	return Message{Kind: KindToolResult, ToolCallID: callID, Text: note, Observation: &obs}
}

// Conversation is the append-only message history of one run.
//
// The first two messages are always System and UserTask. Every
// AssistantToolCalls message must be answered by one ToolResult per call, in
// call order, before anything else is appended.
type Conversation struct {
	messages []Message
	pending  []string
}

// NewConversation seeds the history with the system prompt, the task, and the
// initial observation.
func NewConversation(system, task string, obs capture.Observation) *Conversation {
	return &Conversation{
		messages: []Message{SystemMessage(system), UserTaskMessage(task, obs)},
	}
}

// Append adds m, rejecting anything that would break the ordering rules.
func (c *Conversation) Append(m Message) error {
	switch m.Kind {
	case KindSystem, KindUserTask:
		return fmt.Errorf("%w: %s only allowed at the start", ErrInvalidSequence, m.Kind)
	case KindToolResult:
		if len(c.pending) == 0 {
			return fmt.Errorf("%w: tool result %q without a pending call", ErrInvalidSequence, m.ToolCallID)
		}
		if m.ToolCallID != c.pending[0] {
			return fmt.Errorf("%w: tool result %q, expected %q", ErrInvalidSequence, m.ToolCallID, c.pending[0])
		}
		if m.Observation == nil {
			return fmt.Errorf("%w: tool result %q has no observation", ErrInvalidSequence, m.ToolCallID)
		}
		c.pending = c.pending[1:]
	case KindAssistantText, KindAssistantToolCalls:
		if len(c.pending) > 0 {
			return fmt.Errorf("%w: %d tool results outstanding", ErrInvalidSequence, len(c.pending))
		}
		if m.Kind == KindAssistantToolCalls {
			if len(m.ToolCalls) == 0 {
				return fmt.Errorf("%w: tool call message without calls", ErrInvalidSequence)
			}
			for _, call := range m.ToolCalls {
				c.pending = append(c.pending, call.ID)
			}
		}
	default:
		return fmt.Errorf("%w: unknown message kind %s", ErrInvalidSequence, m.Kind)
	}
	c.messages = append(c.messages, m)
	return nil
}

// Snapshot returns a copy of the history, safe to hand to a transport.
func (c *Conversation) Snapshot() []Message {
	return append([]Message(nil), c.messages...)
}

// Len returns the number of messages.
func (c *Conversation) Len() int {
	return len(c.messages)
}

// Pending returns the ids of tool calls still awaiting a result.
func (c *Conversation) Pending() []string {
	return append([]string(nil), c.pending...)
}
