package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	llmerrors "github.com/ahrav/go-taxa/internal/llm/errors"
	"github.com/ahrav/go-taxa/internal/llm/transport"
)

const anthropicVersion = "2023-06-01"

// AnthropicConfig configures the Anthropic Messages API adapter.
type AnthropicConfig struct {
	APIKey  string
	BaseURL string
	// MaxTokens is the default output budget when a request leaves it unset.
	MaxTokens int
	Timeout   time.Duration
}

// AnthropicAdapter handles requests against the Anthropic Messages API.
// Anthropic has no JSON response format switch, so JSON output relies on the
// schema instructions already present in the prompt; the invoker's repair
// loop covers the remainder.
type AnthropicAdapter struct {
	apiKey     string
	baseURL    string
	maxTokens  int
	httpClient *http.Client
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicRequest struct {
	Model       string             `json:"model"`
	MaxTokens   int                `json:"max_tokens"`
	System      string             `json:"system,omitempty"`
	Messages    []anthropicMessage `json:"messages"`
	Temperature float32            `json:"temperature,omitempty"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Model string `json:"model"`
	Usage struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

// NewAnthropicAdapter creates the adapter.
func NewAnthropicAdapter(cfg AnthropicConfig) (*AnthropicAdapter, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("anthropic api key is required")
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://api.anthropic.com"
	}
	maxTokens := cfg.MaxTokens
	if maxTokens == 0 {
		maxTokens = 8192
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	return &AnthropicAdapter{
		apiKey:     cfg.APIKey,
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		maxTokens:  maxTokens,
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

// Name returns the adapter name.
func (a *AnthropicAdapter) Name() string { return "anthropic" }

// Handle implements transport.Handler against the Messages API.
func (a *AnthropicAdapter) Handle(ctx context.Context, req *transport.Request) (*transport.Response, error) {
	body := anthropicRequest{
		Model:       req.Model,
		MaxTokens:   a.maxTokens,
		Temperature: req.Temperature,
	}
	if req.MaxTokens > 0 {
		body.MaxTokens = req.MaxTokens
	}
	for _, m := range req.Messages {
		if m.Role == transport.RoleSystem {
			if body.System != "" {
				body.System += "\n\n"
			}
			body.System += m.Content
			continue
		}
		body.Messages = append(body.Messages, anthropicMessage{Role: m.Role, Content: m.Content})
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, llmerrors.New(llmerrors.ErrorTypeInvalidInput, req.Model,
			"failed to encode request", err)
	}

	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		a.baseURL+"/v1/messages", bytes.NewReader(payload))
	if err != nil {
		return nil, llmerrors.New(llmerrors.ErrorTypeInvalidInput, req.Model,
			"failed to build request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", a.apiKey)
	httpReq.Header.Set("anthropic-version", anthropicVersion)

	httpResp, err := a.httpClient.Do(httpReq)
	if err != nil {
		return nil, llmerrors.New(llmerrors.ErrorTypeTransient, req.Model,
			fmt.Sprintf("request failed: %v", err), err)
	}
	defer httpResp.Body.Close()

	raw, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, llmerrors.New(llmerrors.ErrorTypeTransient, req.Model,
			"failed to read response body", err)
	}

	if httpResp.StatusCode != http.StatusOK {
		ie := llmerrors.FromStatusCode(req.Model, httpResp.StatusCode,
			fmt.Errorf("anthropic: %s", strings.TrimSpace(string(raw))))
		if ra := httpResp.Header.Get("retry-after"); ra != "" {
			if d, perr := time.ParseDuration(ra + "s"); perr == nil {
				ie.RetryAfter = d
			}
		}
		return nil, ie
	}

	var parsed anthropicResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, llmerrors.New(llmerrors.ErrorTypeTransient, req.Model,
			"failed to decode response", err)
	}

	var text strings.Builder
	for _, block := range parsed.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	if text.Len() == 0 {
		return nil, llmerrors.New(llmerrors.ErrorTypeTransient, req.Model,
			"no text content in response", llmerrors.ErrEmptyResponse)
	}

	return &transport.Response{
		Model:      parsed.Model,
		Content:    strings.TrimSpace(text.String()),
		TokensUsed: parsed.Usage.InputTokens + parsed.Usage.OutputTokens,
	}, nil
}
