package providers

import (
	"encoding/json"

	"github.com/haasonsaas/deskpilot/internal/agent"
	"github.com/haasonsaas/deskpilot/internal/capture"
)

func testObservation() capture.Observation {
	return capture.Observation{Data: []byte("frame"), Size: 5, Width: 4, Height: 3}
}

// testHistory is a conversation with two tool calls answered, then one more.
func testHistory() []agent.Message {
	obs := testObservation()
	return []agent.Message{
		agent.SystemMessage("be careful"),
		agent.UserTaskMessage("open notepad", obs),
		agent.AssistantToolCallsMessage("Opening the start menu.", []agent.ToolCall{
			{ID: "call_1", Name: "press_key", Arguments: json.RawMessage(`{"keys":"win"}`)},
			{ID: "call_2", Name: "type_text", Arguments: json.RawMessage(`{"text":"notepad"`)},
		}),
		agent.ToolResultMessage("call_1", "Pressed win.", obs),
		agent.ToolResultMessage("call_2", "Typed 7 characters.", obs),
		agent.AssistantToolCallsMessage("", []agent.ToolCall{
			{ID: "call_3", Name: "press_key", Arguments: json.RawMessage(`{"keys":"enter"}`)},
		}),
		agent.ToolResultMessage("call_3", "Pressed enter.", obs),
	}
}

func testTools() []agent.ToolSpec {
	return []agent.ToolSpec{
		{Name: "screenshot", Description: "Capture the screen."},
		{Name: "click", Description: "Click.", Params: []agent.Param{
			{Name: "x", Type: agent.ParamInteger, Required: true},
			{Name: "y", Type: agent.ParamInteger, Required: true},
		}},
	}
}
