// Package ratelimit provides a local token-bucket middleware that smooths
// ensemble fan-out bursts against provider quotas. Limiters are per model;
// waiting respects context cancellation.
package ratelimit

import (
	"context"
	"log/slog"
	"sync"

	"golang.org/x/time/rate"

	"github.com/ahrav/go-taxa/internal/llm/transport"
)

// Config controls the per-model token bucket.
type Config struct {
	// RequestsPerSecond is the sustained rate per model. Zero disables
	// limiting entirely.
	RequestsPerSecond float64
	// Burst is the bucket capacity; defaults to 1 when unset.
	Burst int
}

type limiterPool struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	cfg      Config
}

func (p *limiterPool) get(model string) *rate.Limiter {
	p.mu.Lock()
	defer p.mu.Unlock()
	if l, ok := p.limiters[model]; ok {
		return l
	}
	burst := p.cfg.Burst
	if burst < 1 {
		burst = 1
	}
	l := rate.NewLimiter(rate.Limit(p.cfg.RequestsPerSecond), burst)
	p.limiters[model] = l
	return l
}

// NewMiddleware creates the rate limiting middleware. Each distinct model
// gets its own bucket so a slow provider does not starve the others.
func NewMiddleware(cfg Config) transport.Middleware {
	if cfg.RequestsPerSecond <= 0 {
		// Disabled: pass through.
		return func(next transport.Handler) transport.Handler { return next }
	}

	pool := &limiterPool{limiters: make(map[string]*rate.Limiter), cfg: cfg}
	logger := slog.Default().With("component", "ratelimit")

	return func(next transport.Handler) transport.Handler {
		return transport.HandlerFunc(func(ctx context.Context, req *transport.Request) (*transport.Response, error) {
			limiter := pool.get(req.Model)
			if limiter.Tokens() < 1 {
				logger.Debug("throttling invocation", "model", req.Model)
			}
			if err := limiter.Wait(ctx); err != nil {
				return nil, err
			}
			return next.Handle(ctx, req)
		})
	}
}
