package providers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/haasonsaas/deskpilot/internal/agent"
)

// AnthropicConfig configures the Anthropic Messages transport.
type AnthropicConfig struct {
	APIKey string

	// BaseURL overrides the SDK default endpoint.
	BaseURL string

	// HTTPClient carries timeouts, headers and rate limiting. Optional.
	HTTPClient *http.Client
}

// AnthropicProvider talks to the Anthropic Messages API.
//
// The system prompt goes in the dedicated system field. Consecutive tool
// results are grouped into one user turn, each result carrying its note and
// the screenshot as a base64 image block. SDK retries are disabled because
// the agent loop owns retrying.
type AnthropicProvider struct {
	client anthropic.Client
}

// NewAnthropicProvider creates the transport. An API key is required.
func NewAnthropicProvider(config AnthropicConfig) (*AnthropicProvider, error) {
	if strings.TrimSpace(config.APIKey) == "" {
		return nil, errors.New("anthropic: API key is required")
	}
	options := []option.RequestOption{
		option.WithAPIKey(config.APIKey),
		option.WithMaxRetries(0),
	}
	if base := strings.TrimSpace(config.BaseURL); base != "" {
		options = append(options, option.WithBaseURL(base))
	}
	if config.HTTPClient != nil {
		options = append(options, option.WithHTTPClient(config.HTTPClient))
	}
	return &AnthropicProvider{client: anthropic.NewClient(options...)}, nil
}

// Name implements agent.Transport.
func (p *AnthropicProvider) Name() string {
	return "anthropic"
}

// Complete implements agent.Transport.
func (p *AnthropicProvider) Complete(ctx context.Context, req *agent.CompletionRequest) (*agent.Completion, error) {
	if req == nil {
		return nil, errors.New("anthropic: nil request")
	}

	system, messages := convertAnthropicMessages(req.Messages)
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(req.Model),
		MaxTokens: int64(req.MaxTokens),
		Messages:  messages,
		Tools:     convertAnthropicTools(req.Tools),
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}
	if len(params.Tools) > 0 && req.ToolChoice == agent.ToolChoiceAuto {
		params.ToolChoice = anthropic.ToolChoiceUnionParam{OfAuto: &anthropic.ToolChoiceAutoParam{}}
	}

	msg, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return nil, p.wrapError(err, req.Model)
	}

	completion := &agent.Completion{FinishReason: string(msg.StopReason)}
	var text []string
	for _, block := range msg.Content {
		switch b := block.AsAny().(type) {
		case anthropic.TextBlock:
			if b.Text != "" {
				text = append(text, b.Text)
			}
		case anthropic.ToolUseBlock:
			completion.ToolCalls = append(completion.ToolCalls, agent.ToolCall{
				ID:        b.ID,
				Name:      b.Name,
				Arguments: b.Input,
			})
		}
	}
	completion.Text = strings.Join(text, "\n")
	return completion, nil
}

// convertAnthropicMessages splits out the system prompt and maps the rest.
func convertAnthropicMessages(messages []agent.Message) (string, []anthropic.MessageParam) {
	var system string
	var result []anthropic.MessageParam
	groupingResults := false

	for _, msg := range messages {
		switch msg.Kind {
		case agent.KindSystem:
			system = msg.Text
			continue

		case agent.KindUserTask:
			blocks := []anthropic.ContentBlockParamUnion{anthropic.NewTextBlock(msg.Text)}
			if msg.Observation != nil {
				blocks = append(blocks, anthropic.NewImageBlockBase64(msg.Observation.MediaType(), msg.Observation.Base64()))
			}
			result = append(result, anthropic.NewUserMessage(blocks...))

		case agent.KindAssistantText:
			if msg.Text == "" {
				continue
			}
			result = append(result, anthropic.NewAssistantMessage(anthropic.NewTextBlock(msg.Text)))

		case agent.KindAssistantToolCalls:
			var blocks []anthropic.ContentBlockParamUnion
			if msg.Text != "" {
				blocks = append(blocks, anthropic.NewTextBlock(msg.Text))
			}
			for _, call := range msg.ToolCalls {
				blocks = append(blocks, anthropic.NewToolUseBlock(call.ID, toolInput(call.Arguments), call.Name))
			}
			result = append(result, anthropic.NewAssistantMessage(blocks...))

		case agent.KindToolResult:
			block := toolResultBlock(msg)
			if groupingResults {
				last := &result[len(result)-1]
				last.Content = append(last.Content, block)
				continue
			}
			result = append(result, anthropic.NewUserMessage(block))
			groupingResults = true
			continue
		}
		groupingResults = false
	}
	return system, result
}

func toolResultBlock(msg agent.Message) anthropic.ContentBlockParamUnion {
	content := []anthropic.ToolResultBlockParamContentUnion{
		{OfText: &anthropic.TextBlockParam{Text: msg.Text}},
	}
	if msg.Observation != nil {
		content = append(content, anthropic.ToolResultBlockParamContentUnion{
			OfImage: &anthropic.ImageBlockParam{
				Source: anthropic.ImageBlockParamSourceUnion{
					OfBase64: &anthropic.Base64ImageSourceParam{
						Data:      msg.Observation.Base64(),
						MediaType: anthropic.Base64ImageSourceMediaTypeImageJPEG,
					},
				},
			},
		})
	}
	return anthropic.ContentBlockParamUnion{
		OfToolResult: &anthropic.ToolResultBlockParam{
			ToolUseID: msg.ToolCallID,
			Content:   content,
		},
	}
}

// toolInput echoes the model's arguments back; malformed ones become {}.
func toolInput(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 || !json.Valid(raw) {
		return json.RawMessage("{}")
	}
	return raw
}

func convertAnthropicTools(specs []agent.ToolSpec) []anthropic.ToolUnionParam {
	if len(specs) == 0 {
		return nil
	}
	tools := make([]anthropic.ToolUnionParam, 0, len(specs))
	for _, spec := range specs {
		// Raw properties keep the declared parameter order.
		var schema struct {
			Properties json.RawMessage `json:"properties"`
		}
		// Schema() always renders a valid object
		_ = json.Unmarshal(spec.Schema(), &schema)
		if len(schema.Properties) == 0 {
			schema.Properties = json.RawMessage(`{}`)
		}
		tools = append(tools, anthropic.ToolUnionParam{OfTool: &anthropic.ToolParam{
			Name:        spec.Name,
			Description: anthropic.String(spec.Description),
			InputSchema: anthropic.ToolInputSchemaParam{
				Properties: schema.Properties,
				Required:   spec.Required(),
			},
		}})
	}
	return tools
}

type anthropicErrorPayload struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
	RequestID string `json:"request_id"`
}

func (p *AnthropicProvider) wrapError(err error, model string) error {
	if _, ok := GetProviderError(err); ok {
		return err
	}

	var apiErr *anthropic.Error
	if !errors.As(err, &apiErr) {
		return NewProviderError(p.Name(), model, err)
	}

	providerErr := &ProviderError{
		Provider:  p.Name(),
		Model:     model,
		Cause:     err,
		Kind:      KindUnknown,
		RequestID: apiErr.RequestID,
	}
	providerErr = providerErr.WithStatus(apiErr.StatusCode)

	if raw := apiErr.RawJSON(); raw != "" {
		var payload anthropicErrorPayload
		if json.Unmarshal([]byte(raw), &payload) == nil {
			providerErr.Message = payload.Error.Message
			if payload.Error.Type != "" {
				providerErr = providerErr.WithCode(payload.Error.Type)
			}
			if payload.RequestID != "" {
				providerErr.RequestID = payload.RequestID
			}
		}
	}
	if providerErr.Message == "" {
		providerErr.Message = "anthropic request failed"
	}
	return providerErr
}
