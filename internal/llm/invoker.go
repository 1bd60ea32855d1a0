// Package llm exposes the resilient model invocation facade used by every
// agent in the engine: schema-validated structured output, corrective-retry
// repair, fallback models, and the middleware pipeline (retry, rate limit,
// cache) assembled around a provider router.
package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ahrav/go-taxa/internal/llm/cache"
	llmerrors "github.com/ahrav/go-taxa/internal/llm/errors"
	"github.com/ahrav/go-taxa/internal/llm/ratelimit"
	"github.com/ahrav/go-taxa/internal/llm/retry"
	"github.com/ahrav/go-taxa/internal/llm/transport"
)

// Validator lets structured-output types verify themselves after decoding.
// A Validate failure counts as a schema violation and triggers the
// corrective-retry repair loop.
type Validator interface {
	Validate() error
}

// Config assembles the middleware pipeline.
type Config struct {
	Retry     retry.Config
	RateLimit ratelimit.Config
	Cache     cache.Config
}

// DefaultConfig mirrors production defaults: three retries at one second
// base delay, no local rate limit, caching enabled.
func DefaultConfig() Config {
	return Config{
		Retry: retry.DefaultConfig(),
		Cache: cache.DefaultConfig(),
	}
}

// Invoker is the single entry point for model calls.
type Invoker struct {
	handler transport.Handler
	logger  *slog.Logger
}

// NewInvoker wraps a core handler (normally a providers.Router) with the
// configured middleware pipeline. Middleware order: cache outermost, then
// rate limiting, then retry closest to the provider.
func NewInvoker(core transport.Handler, cfg Config) (*Invoker, error) {
	retryMW, err := retry.NewMiddleware(cfg.Retry)
	if err != nil {
		return nil, fmt.Errorf("configuring retry middleware: %w", err)
	}
	h := transport.Chain(core,
		cache.NewMiddleware(cfg.Cache),
		ratelimit.NewMiddleware(cfg.RateLimit),
		retryMW,
	)
	return &Invoker{
		handler: h,
		logger:  slog.Default().With("component", "invoker"),
	}, nil
}

// NewInvokerWithHandler builds an invoker over a bare handler with no
// middleware. Test seam.
func NewInvokerWithHandler(h transport.Handler) *Invoker {
	return &Invoker{handler: h, logger: slog.Default().With("component", "invoker")}
}

// Request describes one structured invocation. Fallbacks are tried in order
// after the primary model; the first model to succeed wins.
type Request struct {
	Model       string
	Fallbacks   []string
	Messages    []transport.Message
	Temperature float32
	MaxTokens   int
	// MaxRetries bounds the corrective schema-repair loop per model.
	MaxRetries int
	// SchemaHint is the JSON schema description appended to corrective
	// messages when decoded output fails validation.
	SchemaHint string
	Timeout    time.Duration
}

// Result carries a structured invocation outcome. When every repair attempt
// is exhausted the last raw content is returned with Degraded set instead of
// failing outright; callers decide how to treat the data-quality loss.
type Result[T any] struct {
	Parsed     *T
	Raw        string
	Degraded   bool
	Model      string
	TokensUsed int
}

// InvokeJSON runs a structured invocation: the model is asked for a JSON
// object, the content is decoded into T and validated, and schema failures
// are retried with a corrective message (error plus schema) appended to the
// conversation, each consuming a retry slot.
func InvokeJSON[T any](ctx context.Context, inv *Invoker, req Request) (*Result[T], error) {
	models := make([]string, 0, 1+len(req.Fallbacks))
	if req.Model != "" {
		models = append(models, req.Model)
	}
	models = append(models, req.Fallbacks...)
	if len(models) == 0 {
		return nil, llmerrors.New(llmerrors.ErrorTypeInvalidInput, "", "no model specified", llmerrors.ErrNoModels)
	}

	var lastErr error
	var lastRaw string
	var lastModel string
	var lastTokens int

	for _, model := range models {
		res, raw, tokens, err := invokeModel[T](ctx, inv, model, req)
		if err == nil && res != nil {
			return &Result[T]{Parsed: res, Raw: raw, Model: model, TokensUsed: tokens}, nil
		}
		if raw != "" {
			lastRaw, lastModel, lastTokens = raw, model, tokens
		}
		if err != nil {
			lastErr = err
			inv.logger.Warn("model invocation failed",
				"model", model,
				"error", err)
		}
	}

	// Schema repair exhausted everywhere but a provider did answer: degrade
	// to the raw content rather than failing the call. Flagged for
	// data-quality follow-up.
	if lastRaw != "" {
		inv.logger.Error("structured output unparseable after retries, degrading to raw content",
			"model", lastModel)
		return &Result[T]{Raw: lastRaw, Degraded: true, Model: lastModel, TokensUsed: lastTokens}, nil
	}

	return nil, lastErr
}

// invokeModel runs the schema-repair loop against one model. It returns the
// decoded value on success, or the last raw content when decoding never
// succeeded but the provider answered.
func invokeModel[T any](ctx context.Context, inv *Invoker, model string, req Request) (*T, string, int, error) {
	// Clone detaches the conversation from the caller's slice; corrective
	// messages append to the copy only.
	treq := (&transport.Request{
		Model:       model,
		Messages:    req.Messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
		JSONOutput:  true,
		SchemaHint:  req.SchemaHint,
		Timeout:     req.Timeout,
	}).Clone()

	var lastRaw string
	var lastTokens int

	for attempt := 0; attempt <= req.MaxRetries; attempt++ {
		resp, err := inv.handler.Handle(ctx, treq.Clone())
		if err != nil {
			return nil, lastRaw, lastTokens, err
		}

		lastRaw = resp.Content
		lastTokens += resp.TokensUsed

		parsed, decodeErr := decodeJSON[T](resp.Content)
		if decodeErr == nil {
			return parsed, lastRaw, lastTokens, nil
		}

		if attempt == req.MaxRetries {
			break
		}

		inv.logger.Warn("schema validation failed, retrying with corrective message",
			"model", model,
			"attempt", attempt+1,
			"error", decodeErr)

		treq.Messages = append(treq.Messages,
			transport.Message{Role: transport.RoleAssistant, Content: resp.Content},
			transport.Message{
				Role: transport.RoleUser,
				Content: fmt.Sprintf(
					"Your last response was invalid causing the following error:\n\n%v\n\n"+
						"Please fix the error and try again. Here is the correct json output schema:\n\n%s",
					decodeErr, req.SchemaHint),
			},
		)
	}

	return nil, lastRaw, lastTokens,
		llmerrors.New(llmerrors.ErrorTypeSchemaInvalid, model,
			"structured output failed schema validation", llmerrors.ErrMaxRetriesExceeded)
}

func decodeJSON[T any](content string) (*T, error) {
	cleaned := stripCodeFence(content)
	var out T
	if err := json.Unmarshal([]byte(cleaned), &out); err != nil {
		return nil, fmt.Errorf("decoding structured output: %w", err)
	}
	if v, ok := any(&out).(Validator); ok {
		if err := v.Validate(); err != nil {
			return nil, fmt.Errorf("validating structured output: %w", err)
		}
	}
	return &out, nil
}

// stripCodeFence removes a surrounding markdown code fence, which models
// without a native JSON response format tend to add.
func stripCodeFence(s string) string {
	trimmed := strings.TrimSpace(s)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	if idx := strings.LastIndex(trimmed, "```"); idx >= 0 {
		trimmed = trimmed[:idx]
	}
	return strings.TrimSpace(trimmed)
}
