package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"
	openai "github.com/sashabaranov/go-openai"

	"github.com/haasonsaas/deskpilot/internal/agent"
)

// DefaultOpenAIBaseURL is the OpenAI-compatible endpoint used when none is
// configured. The client appends /v1.
const DefaultOpenAIBaseURL = "https://openrouter.ai/api"

// OpenAIConfig configures an OpenAI-compatible transport.
type OpenAIConfig struct {
	APIKey string

	// BaseURL is the API root without the /v1 suffix.
	// Default: https://openrouter.ai/api
	BaseURL string

	// HTTPClient carries timeouts, headers and rate limiting. Optional.
	HTTPClient *http.Client
}

// OpenAIProvider talks to any OpenAI-compatible chat completions endpoint.
//
// Images travel as data URIs in image_url content parts, both in the first
// user message and in every tool result. Each tool result is its own "tool"
// message.
type OpenAIProvider struct {
	client  *openai.Client
	baseURL string
}

// NewOpenAIProvider creates the transport. An API key is required.
func NewOpenAIProvider(config OpenAIConfig) (*OpenAIProvider, error) {
	if strings.TrimSpace(config.APIKey) == "" {
		return nil, errors.New("openai: API key is required")
	}
	base := strings.TrimRight(strings.TrimSpace(config.BaseURL), "/")
	if base == "" {
		base = DefaultOpenAIBaseURL
	}
	base = strings.TrimSuffix(base, "/v1")

	clientConfig := openai.DefaultConfig(config.APIKey)
	clientConfig.BaseURL = base + "/v1"
	if config.HTTPClient != nil {
		clientConfig.HTTPClient = config.HTTPClient
	}
	return &OpenAIProvider{
		client:  openai.NewClientWithConfig(clientConfig),
		baseURL: clientConfig.BaseURL,
	}, nil
}

// Name implements agent.Transport.
func (p *OpenAIProvider) Name() string {
	return "openai"
}

// Endpoint returns the chat completions URL, for display.
func (p *OpenAIProvider) Endpoint() string {
	return p.baseURL + "/chat/completions"
}

// Complete implements agent.Transport with a single non-streaming request.
func (p *OpenAIProvider) Complete(ctx context.Context, req *agent.CompletionRequest) (*agent.Completion, error) {
	if req == nil {
		return nil, errors.New("openai: nil request")
	}

	request := openai.ChatCompletionRequest{
		Model:     req.Model,
		MaxTokens: req.MaxTokens,
		Messages:  convertOpenAIMessages(req.Messages),
		Tools:     convertOpenAITools(req.Tools),
	}
	if len(request.Tools) > 0 && req.ToolChoice != "" {
		request.ToolChoice = req.ToolChoice
	}

	resp, err := p.client.CreateChatCompletion(ctx, request)
	if err != nil {
		return nil, p.wrapError(err, req.Model)
	}
	if len(resp.Choices) == 0 {
		return nil, &ProviderError{
			Kind:     KindApplication,
			Provider: p.Name(),
			Model:    req.Model,
			Message:  "response has no choices",
		}
	}

	choice := resp.Choices[0]
	completion := &agent.Completion{
		Text:         choice.Message.Content,
		FinishReason: string(choice.FinishReason),
	}
	for _, tc := range choice.Message.ToolCalls {
		id := tc.ID
		if id == "" {
			id = "call_" + uuid.NewString()
		}
		completion.ToolCalls = append(completion.ToolCalls, agent.ToolCall{
			ID:        id,
			Name:      tc.Function.Name,
			Arguments: json.RawMessage(tc.Function.Arguments),
		})
	}
	return completion, nil
}

func convertOpenAIMessages(messages []agent.Message) []openai.ChatCompletionMessage {
	result := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, msg := range messages {
		switch msg.Kind {
		case agent.KindSystem:
			result = append(result, openai.ChatCompletionMessage{
				Role:    openai.ChatMessageRoleSystem,
				Content: msg.Text,
			})

		case agent.KindUserTask:
			result = append(result, openai.ChatCompletionMessage{
				Role:         openai.ChatMessageRoleUser,
				MultiContent: textWithImage(msg),
			})

		case agent.KindAssistantText:
			result = append(result, openai.ChatCompletionMessage{
				Role:    openai.ChatMessageRoleAssistant,
				Content: msg.Text,
			})

		case agent.KindAssistantToolCalls:
			calls := make([]openai.ToolCall, len(msg.ToolCalls))
			for i, tc := range msg.ToolCalls {
				calls[i] = openai.ToolCall{
					ID:   tc.ID,
					Type: openai.ToolTypeFunction,
					Function: openai.FunctionCall{
						Name:      tc.Name,
						Arguments: string(tc.Arguments),
					},
				}
			}
			result = append(result, openai.ChatCompletionMessage{
				Role:      openai.ChatMessageRoleAssistant,
				Content:   msg.Text,
				ToolCalls: calls,
			})

		case agent.KindToolResult:
			result = append(result, openai.ChatCompletionMessage{
				Role:         openai.ChatMessageRoleTool,
				ToolCallID:   msg.ToolCallID,
				MultiContent: textWithImage(msg),
			})
		}
	}
	return result
}

func textWithImage(msg agent.Message) []openai.ChatMessagePart {
	parts := []openai.ChatMessagePart{{Type: openai.ChatMessagePartTypeText, Text: msg.Text}}
	if msg.Observation != nil {
		parts = append(parts, openai.ChatMessagePart{
			Type: openai.ChatMessagePartTypeImageURL,
			ImageURL: &openai.ChatMessageImageURL{
				URL:    msg.Observation.DataURI(),
				Detail: openai.ImageURLDetailAuto,
			},
		})
	}
	return parts
}

func convertOpenAITools(specs []agent.ToolSpec) []openai.Tool {
	if len(specs) == 0 {
		return nil
	}
	tools := make([]openai.Tool, len(specs))
	for i, spec := range specs {
		tools[i] = openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        spec.Name,
				Description: spec.Description,
				Parameters:  spec.Schema(),
			},
		}
	}
	return tools
}

func (p *OpenAIProvider) wrapError(err error, model string) error {
	if _, ok := GetProviderError(err); ok {
		return err
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		providerErr := &ProviderError{
			Provider: p.Name(),
			Model:    model,
			Cause:    err,
			Kind:     KindUnknown,
			Message:  apiErr.Message,
		}
		providerErr = providerErr.WithStatus(apiErr.HTTPStatusCode)
		if apiErr.Type != "" {
			providerErr = providerErr.WithCode(apiErr.Type)
		} else if code, ok := apiErr.Code.(string); ok {
			providerErr = providerErr.WithCode(code)
		}
		if providerErr.Message == "" {
			providerErr.Message = fmt.Sprintf("%s request failed", p.Name())
		}
		return providerErr
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		providerErr := NewProviderError(p.Name(), model, err)
		return providerErr.WithStatus(reqErr.HTTPStatusCode)
	}

	return NewProviderError(p.Name(), model, err)
}
