package agent

import (
	"errors"
	"testing"

	"github.com/haasonsaas/deskpilot/internal/capture"
)

func frame(tag string) capture.Observation {
	return capture.Observation{Data: []byte(tag), Size: len(tag)}
}

func TestConversationSeed(t *testing.T) {
	c := NewConversation("system", "open notepad", frame("initial"))
	msgs := c.Snapshot()
	if len(msgs) != 2 {
		t.Fatalf("Len() = %d, want 2", len(msgs))
	}
	if msgs[0].Kind != KindSystem || msgs[0].Text != "system" {
		t.Errorf("first message = %+v", msgs[0])
	}
	if msgs[1].Kind != KindUserTask || msgs[1].Text != "open notepad" || msgs[1].Observation == nil {
		t.Errorf("second message = %+v", msgs[1])
	}
}

func TestConversationToolResultOrdering(t *testing.T) {
	c := NewConversation("s", "t", frame("0"))
	calls := []ToolCall{{ID: "a", Name: "click"}, {ID: "b", Name: "wait"}}

	if err := c.Append(AssistantToolCallsMessage("", calls)); err != nil {
		t.Fatal(err)
	}
	if got := c.Pending(); len(got) != 2 || got[0] != "a" {
		t.Fatalf("Pending() = %v", got)
	}

	tests := []struct {
		name string
		msg  Message
	}{
		{name: "out of order", msg: ToolResultMessage("b", "note", frame("1"))},
		{name: "assistant while pending", msg: AssistantTextMessage("done")},
		{name: "without observation", msg: Message{Kind: KindToolResult, ToolCallID: "a"}},
	}
	for _, tt := range tests {
		if err := c.Append(tt.msg); !errors.Is(err, ErrInvalidSequence) {
			t.Errorf("%s: Append() error = %v, want ErrInvalidSequence", tt.name, err)
		}
	}

	for _, id := range []string{"a", "b"} {
		if err := c.Append(ToolResultMessage(id, "ok", frame(id))); err != nil {
			t.Fatalf("Append(result %s) error = %v", id, err)
		}
	}
	if len(c.Pending()) != 0 {
		t.Errorf("Pending() = %v after all results", c.Pending())
	}
	if err := c.Append(AssistantTextMessage("done")); err != nil {
		t.Errorf("Append(final) error = %v", err)
	}
	if c.Len() != 6 {
		t.Errorf("Len() = %d, want 6", c.Len())
	}
}

func TestConversationRejects(t *testing.T) {
	tests := []struct {
		name string
		msg  Message
	}{
		{name: "second system", msg: SystemMessage("again")},
		{name: "second task", msg: UserTaskMessage("again", frame("x"))},
		{name: "orphan result", msg: ToolResultMessage("z", "note", frame("x"))},
		{name: "empty tool calls", msg: AssistantToolCallsMessage("", nil)},
		{name: "unknown kind", msg: Message{Kind: MessageKind(42)}},
	}
	for _, tt := range tests {
		c := NewConversation("s", "t", frame("0"))
		if err := c.Append(tt.msg); !errors.Is(err, ErrInvalidSequence) {
			t.Errorf("%s: Append() error = %v, want ErrInvalidSequence", tt.name, err)
		}
		if c.Len() != 2 {
			t.Errorf("%s: Len() = %d after rejected append", tt.name, c.Len())
		}
	}
}

func TestSnapshotIsACopy(t *testing.T) {
	c := NewConversation("s", "t", frame("0"))
	snap := c.Snapshot()
	snap[0].Text = "mutated"
	if c.Snapshot()[0].Text != "s" {
		t.Error("Snapshot() shares storage with the conversation")
	}
}

func TestAssistantToolCallsCopiesCalls(t *testing.T) {
	calls := []ToolCall{{ID: "a"}}
	m := AssistantToolCallsMessage("", calls)
	calls[0].ID = "changed"
	if m.ToolCalls[0].ID != "a" {
		t.Error("message aliases the caller's slice")
	}
}
