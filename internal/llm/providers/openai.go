// Package providers implements the concrete model adapters behind the
// transport pipeline and the router that dispatches a request to the
// adapter owning its model.
package providers

import (
	"context"
	"errors"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	llmerrors "github.com/ahrav/go-taxa/internal/llm/errors"
	"github.com/ahrav/go-taxa/internal/llm/transport"
)

// OpenAIConfig configures the OpenAI-compatible adapter. BaseURL may point
// at any OpenAI-compatible endpoint (a proxy, a local runtime).
type OpenAIConfig struct {
	APIKey  string
	BaseURL string
}

// OpenAIAdapter handles chat-completion requests against an
// OpenAI-compatible API.
type OpenAIAdapter struct {
	client *openai.Client
}

// NewOpenAIAdapter creates the adapter.
func NewOpenAIAdapter(cfg OpenAIConfig) (*OpenAIAdapter, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("openai api key is required")
	}
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}
	return &OpenAIAdapter{client: openai.NewClientWithConfig(clientConfig)}, nil
}

// Name returns the adapter name.
func (a *OpenAIAdapter) Name() string { return "openai" }

// Handle implements transport.Handler against the chat completions API.
func (a *OpenAIAdapter) Handle(ctx context.Context, req *transport.Request) (*transport.Response, error) {
	messages := make([]openai.ChatCompletionMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    m.Role,
			Content: m.Content,
		})
	}

	chatReq := openai.ChatCompletionRequest{
		Model:       req.Model,
		Messages:    messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}
	if req.JSONOutput {
		chatReq.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	resp, err := a.client.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		return nil, classifyOpenAIError(req.Model, err)
	}
	if len(resp.Choices) == 0 {
		return nil, llmerrors.New(llmerrors.ErrorTypeTransient, req.Model,
			"no choices in response", llmerrors.ErrEmptyResponse)
	}

	return &transport.Response{
		Model:      resp.Model,
		Content:    strings.TrimSpace(resp.Choices[0].Message.Content),
		TokensUsed: resp.Usage.TotalTokens,
	}, nil
}

// classifyOpenAIError maps go-openai failures into the invocation taxonomy.
func classifyOpenAIError(model string, err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return llmerrors.FromStatusCode(model, apiErr.HTTPStatusCode, err)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return llmerrors.FromStatusCode(model, reqErr.HTTPStatusCode, err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return llmerrors.New(llmerrors.ErrorTypeTransient, model, "request deadline exceeded", err)
	}
	return llmerrors.New(llmerrors.ErrorTypeTransient, model,
		fmt.Sprintf("request failed: %v", err), err)
}
