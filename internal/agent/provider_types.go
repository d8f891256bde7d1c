package agent

import (
	"bytes"
	"context"
	"encoding/json"
)

// Transport sends one completion request to a model endpoint.
//
// Implementations must not retry on their own; the loop owns the retry policy
// and needs to see every failure. Errors that may succeed on a later attempt
// should implement Retryable() bool.
type Transport interface {
	// Complete performs one non-streaming request.
	Complete(ctx context.Context, req *CompletionRequest) (*Completion, error)

	// Name identifies the provider in logs and metrics.
	Name() string
}

// ToolChoiceAuto lets the model decide whether to call tools.
const ToolChoiceAuto = "auto"

// CompletionRequest is the full context sent on every iteration.
type CompletionRequest struct {
	Model      string
	MaxTokens  int
	Messages   []Message
	Tools      []ToolSpec
	ToolChoice string
}

// Completion is the model's reply to one request.
type Completion struct {
	// Text is the assistant's prose, possibly empty when tools are called.
	Text string

	// ToolCalls are the requested actions in the order the model issued them.
	ToolCalls []ToolCall

	FinishReason string
}

// ToolCall is one model-issued action request.
type ToolCall struct {
	ID        string
	Name      string
	Arguments json.RawMessage
}

// ParamType is the JSON type of a tool parameter.
type ParamType string

const (
	ParamInteger ParamType = "integer"
	ParamNumber  ParamType = "number"
	ParamString  ParamType = "string"
)

// Param describes one tool parameter.
type Param struct {
	Name        string
	Type        ParamType
	Description string
	Required    bool
	Enum        []string
	Default     any
}

// ToolSpec is the contract for one tool advertised to the model.
type ToolSpec struct {
	Name        string
	Description string
	Params      []Param
}

// Schema renders the parameters as a JSON-schema object. Properties keep
// their declaration order.
func (s ToolSpec) Schema() json.RawMessage {
	var buf bytes.Buffer
	buf.WriteString(`{"type":"object","properties":{`)
	var required []string
	for i, p := range s.Params {
		if i > 0 {
			buf.WriteByte(',')
		}
		writeJSON(&buf, p.Name)
		buf.WriteString(`:{"type":`)
		writeJSON(&buf, string(p.Type))
		if p.Description != "" {
			buf.WriteString(`,"description":`)
			writeJSON(&buf, p.Description)
		}
		if len(p.Enum) > 0 {
			buf.WriteString(`,"enum":`)
			writeJSON(&buf, p.Enum)
		}
		if p.Default != nil {
			buf.WriteString(`,"default":`)
			writeJSON(&buf, p.Default)
		}
		buf.WriteByte('}')
		if p.Required {
			required = append(required, p.Name)
		}
	}
	buf.WriteByte('}')
	if len(required) > 0 {
		buf.WriteString(`,"required":`)
		writeJSON(&buf, required)
	}
	buf.WriteByte('}')
	return json.RawMessage(buf.Bytes())
}

// Required lists the names of required parameters.
func (s ToolSpec) Required() []string {
	var names []string
	for _, p := range s.Params {
		if p.Required {
			names = append(names, p.Name)
		}
	}
	return names
}

func writeJSON(buf *bytes.Buffer, v any) {
	// values are strings, string slices and numeric defaults; none can fail
	data, _ := json.Marshal(v)
	buf.Write(data)
}
