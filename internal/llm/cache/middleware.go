// Package cache provides an in-process response cache middleware. Ensemble
// voting deliberately repeats the same prompt at non-zero temperature, so
// caching is keyed on the full conversation, model, and temperature; only
// identical deterministic requests (temperature zero) are served from cache.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/ahrav/go-taxa/internal/llm/transport"
)

// Config controls cache behavior.
type Config struct {
	// TTL is how long a cached response stays valid.
	TTL time.Duration
	// CleanupInterval is how often expired entries are purged.
	CleanupInterval time.Duration
	// Enabled gates the middleware entirely.
	Enabled bool
}

// DefaultConfig enables a five-minute cache.
func DefaultConfig() Config {
	return Config{TTL: 5 * time.Minute, CleanupInterval: 10 * time.Minute, Enabled: true}
}

// NewMiddleware creates the caching middleware.
func NewMiddleware(cfg Config) transport.Middleware {
	if !cfg.Enabled {
		return func(next transport.Handler) transport.Handler { return next }
	}

	store := gocache.New(cfg.TTL, cfg.CleanupInterval)
	logger := slog.Default().With("component", "cache")

	return func(next transport.Handler) transport.Handler {
		return transport.HandlerFunc(func(ctx context.Context, req *transport.Request) (*transport.Response, error) {
			// Sampled generations are not cacheable: repeated ensemble votes
			// must stay independent.
			if req.Temperature != 0 {
				return next.Handle(ctx, req)
			}

			key := cacheKey(req)
			if v, ok := store.Get(key); ok {
				resp := v.(transport.Response)
				resp.FromCache = true
				logger.Debug("cache hit", "model", req.Model)
				return &resp, nil
			}

			resp, err := next.Handle(ctx, req)
			if err != nil {
				return nil, err
			}
			store.Set(key, *resp, gocache.DefaultExpiration)
			return resp, nil
		})
	}
}

func cacheKey(req *transport.Request) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s|%v|%t|", req.Model, req.Temperature, req.JSONOutput)
	for _, m := range req.Messages {
		fmt.Fprintf(h, "%s:%s|", m.Role, m.Content)
	}
	return hex.EncodeToString(h.Sum(nil))
}
