package providers

import (
	"context"
	"fmt"
	"strings"

	llmerrors "github.com/ahrav/go-taxa/internal/llm/errors"
	"github.com/ahrav/go-taxa/internal/llm/transport"
)

// Router dispatches a request to the adapter that owns its model, by model
// name prefix. It implements transport.Handler so the middleware chain wraps
// all providers uniformly.
type Router struct {
	adapters map[string]transport.Handler
	fallback transport.Handler
}

// NewRouter creates an empty router.
func NewRouter() *Router {
	return &Router{adapters: make(map[string]transport.Handler)}
}

// Register maps a model-name prefix (e.g. "gpt", "o4", "claude") to an
// adapter. Registering the empty prefix sets the default adapter.
func (r *Router) Register(prefix string, h transport.Handler) {
	if prefix == "" {
		r.fallback = h
		return
	}
	r.adapters[prefix] = h
}

// Pick returns the adapter for a model name.
func (r *Router) Pick(model string) (transport.Handler, error) {
	best, bestLen := r.fallback, -1
	for prefix, h := range r.adapters {
		if strings.HasPrefix(model, prefix) && len(prefix) > bestLen {
			best, bestLen = h, len(prefix)
		}
	}
	if best == nil {
		return nil, llmerrors.New(llmerrors.ErrorTypeNotFound, model,
			fmt.Sprintf("no adapter registered for model %q", model), nil)
	}
	return best, nil
}

// Handle implements transport.Handler.
func (r *Router) Handle(ctx context.Context, req *transport.Request) (*transport.Response, error) {
	h, err := r.Pick(req.Model)
	if err != nil {
		return nil, err
	}
	return h.Handle(ctx, req)
}
