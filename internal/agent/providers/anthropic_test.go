package providers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/haasonsaas/deskpilot/internal/agent"
)

func newAnthropicServer(t *testing.T, status int, body string, captured *map[string]any, calls *int32) *AnthropicProvider {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls != nil {
			atomic.AddInt32(calls, 1)
		}
		if !strings.HasSuffix(r.URL.Path, "/v1/messages") {
			t.Errorf("path = %q", r.URL.Path)
		}
		if got := r.Header.Get("X-Api-Key"); got != "sk-ant-test" {
			t.Errorf("X-Api-Key = %q", got)
		}
		if captured != nil {
			data, _ := io.ReadAll(r.Body)
			if err := json.Unmarshal(data, captured); err != nil {
				t.Errorf("request body: %v", err)
			}
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)

	p, err := NewAnthropicProvider(AnthropicConfig{
		APIKey:     "sk-ant-test",
		BaseURL:    srv.URL,
		HTTPClient: NewHTTPClient(HTTPConfig{}),
	})
	if err != nil {
		t.Fatalf("NewAnthropicProvider() error = %v", err)
	}
	return p
}

func TestAnthropicComplete(t *testing.T) {
	var captured map[string]any
	p := newAnthropicServer(t, http.StatusOK, `{
		"id": "msg_1",
		"type": "message",
		"role": "assistant",
		"model": "claude-sonnet-4-5",
		"content": [
			{"type": "text", "text": "The editor is open."},
			{"type": "tool_use", "id": "toolu_1", "name": "type_text", "input": {"text": "hello"}}
		],
		"stop_reason": "tool_use",
		"stop_sequence": null,
		"usage": {"input_tokens": 10, "output_tokens": 5}
	}`, &captured, nil)

	got, err := p.Complete(context.Background(), &agent.CompletionRequest{
		Model:      "claude-sonnet-4-5",
		MaxTokens:  4096,
		Messages:   testHistory(),
		Tools:      testTools(),
		ToolChoice: agent.ToolChoiceAuto,
	})
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if got.Text != "The editor is open." || got.FinishReason != "tool_use" {
		t.Errorf("Complete() = %+v", got)
	}
	if len(got.ToolCalls) != 1 || got.ToolCalls[0].ID != "toolu_1" || got.ToolCalls[0].Name != "type_text" {
		t.Fatalf("ToolCalls = %+v", got.ToolCalls)
	}
	var args map[string]string
	if err := json.Unmarshal(got.ToolCalls[0].Arguments, &args); err != nil || args["text"] != "hello" {
		t.Errorf("Arguments = %s", got.ToolCalls[0].Arguments)
	}

	system, _ := captured["system"].([]any)
	if len(system) != 1 {
		t.Errorf("system = %v", captured["system"])
	}
	choice, _ := captured["tool_choice"].(map[string]any)
	if choice["type"] != "auto" {
		t.Errorf("tool_choice = %v", captured["tool_choice"])
	}
	messages, _ := captured["messages"].([]any)
	if len(messages) != 5 {
		t.Fatalf("messages = %d, want 5", len(messages))
	}
	grouped, _ := messages[2].(map[string]any)
	content, _ := grouped["content"].([]any)
	if grouped["role"] != "user" || len(content) != 2 {
		t.Fatalf("grouped tool results = %v", grouped)
	}
	first, _ := content[0].(map[string]any)
	if first["type"] != "tool_result" || first["tool_use_id"] != "call_1" {
		t.Errorf("first result = %v", first)
	}
}

func TestAnthropicToolSchemaKeepsParameterOrder(t *testing.T) {
	var body []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ = io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"id":"msg_1","type":"message","role":"assistant","model":"m",
			"content":[{"type":"text","text":"done"}],"stop_reason":"end_turn","stop_sequence":null,
			"usage":{"input_tokens":1,"output_tokens":1}}`)
	}))
	t.Cleanup(srv.Close)

	p, err := NewAnthropicProvider(AnthropicConfig{APIKey: "sk-ant-test", BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("NewAnthropicProvider() error = %v", err)
	}
	tools := []agent.ToolSpec{{Name: "scroll", Description: "Scroll.", Params: []agent.Param{
		{Name: "y", Type: agent.ParamInteger, Required: true},
		{Name: "x", Type: agent.ParamInteger, Required: true},
		{Name: "direction", Type: agent.ParamString, Enum: []string{"up", "down"}},
	}}}
	if _, err := p.Complete(context.Background(), &agent.CompletionRequest{
		Model:      "m",
		MaxTokens:  16,
		Messages:   testHistory(),
		Tools:      tools,
		ToolChoice: agent.ToolChoiceAuto,
	}); err != nil {
		t.Fatalf("Complete() error = %v", err)
	}

	raw := string(body)
	start := strings.Index(raw, `"input_schema"`)
	if start < 0 {
		t.Fatalf("no input_schema in request: %s", raw)
	}
	schema := raw[start:]
	y, x, dir := strings.Index(schema, `"y"`), strings.Index(schema, `"x"`), strings.Index(schema, `"direction"`)
	if y < 0 || x < 0 || dir < 0 || !(y < x && x < dir) {
		t.Errorf("properties out of declared order: %s", schema)
	}
	if !strings.Contains(schema, `"required":["y","x"]`) {
		t.Errorf("required = %s", schema)
	}
}

func TestConvertAnthropicMessages(t *testing.T) {
	system, msgs := convertAnthropicMessages(testHistory())
	if system != "be careful" {
		t.Errorf("system = %q", system)
	}

	wantRoles := []string{"user", "assistant", "user", "assistant", "user"}
	wantBlocks := []int{2, 3, 2, 1, 1}
	if len(msgs) != len(wantRoles) {
		t.Fatalf("len = %d, want %d", len(msgs), len(wantRoles))
	}
	for i := range msgs {
		if string(msgs[i].Role) != wantRoles[i] {
			t.Errorf("msgs[%d].Role = %q, want %q", i, msgs[i].Role, wantRoles[i])
		}
		if len(msgs[i].Content) != wantBlocks[i] {
			t.Errorf("msgs[%d] blocks = %d, want %d", i, len(msgs[i].Content), wantBlocks[i])
		}
	}

	use := msgs[1].Content[2].OfToolUse
	if use == nil {
		t.Fatal("expected a tool_use block")
	}
	if raw, _ := json.Marshal(use.Input); string(raw) != "{}" {
		t.Errorf("malformed input echoed as %s, want {}", raw)
	}
}

func TestAnthropicErrors(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		wantKind  ErrorKind
		retryable bool
	}{
		{
			name:      "overloaded",
			status:    529,
			body:      `{"type":"error","error":{"type":"overloaded_error","message":"Overloaded"}}`,
			wantKind:  KindServerError,
			retryable: true,
		},
		{
			name:     "invalid request",
			status:   http.StatusBadRequest,
			body:     `{"type":"error","error":{"type":"invalid_request_error","message":"max_tokens too large"}}`,
			wantKind: KindInvalidRequest,
		},
		{
			name:     "auth",
			status:   http.StatusUnauthorized,
			body:     `{"type":"error","error":{"type":"authentication_error","message":"invalid x-api-key"}}`,
			wantKind: KindAuth,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls int32
			p := newAnthropicServer(t, tt.status, tt.body, nil, &calls)

			_, err := p.Complete(context.Background(), &agent.CompletionRequest{Model: "m", MaxTokens: 16, Messages: testHistory()[:2]})
			pe, ok := GetProviderError(err)
			if !ok {
				t.Fatalf("error %T is not a ProviderError: %v", err, err)
			}
			if pe.Kind != tt.wantKind {
				t.Errorf("Kind = %s, want %s", pe.Kind, tt.wantKind)
			}
			if pe.Message == "" || pe.Status != tt.status {
				t.Errorf("ProviderError = %+v", pe)
			}
			if agent.IsRetryable(err) != tt.retryable {
				t.Errorf("IsRetryable() = %v, want %v", agent.IsRetryable(err), tt.retryable)
			}
			if n := atomic.LoadInt32(&calls); n != 1 {
				t.Errorf("server saw %d requests, SDK retries must be off", n)
			}
		})
	}
}
