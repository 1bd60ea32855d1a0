// Package retry provides the backoff middleware for transient model
// invocation failures. Retries are scoped to a single invocation boundary;
// a failed batch is never implicitly retried by the orchestrator.
package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"net"
	"time"

	llmerrors "github.com/ahrav/go-taxa/internal/llm/errors"
	"github.com/ahrav/go-taxa/internal/llm/transport"
)

// Configuration validation errors.
var (
	errMaxRetriesInvalid = errors.New("maxRetries must be >= 0")
	errBaseDelayInvalid  = errors.New("baseDelay must be greater than 0")

	errContextCancelled = errors.New("context cancelled during retry")
)

// Config controls the retry policy.
type Config struct {
	// MaxRetries is the number of retries after the first attempt.
	MaxRetries int
	// BaseDelay seeds the exponential backoff:
	// delay = BaseDelay * 2^attempt + rand(0, 1s).
	BaseDelay time.Duration
	// MaxDelay caps a single backoff interval. Zero means uncapped.
	MaxDelay time.Duration
}

// DefaultConfig mirrors the classifier's production defaults.
func DefaultConfig() Config {
	return Config{MaxRetries: 3, BaseDelay: time.Second, MaxDelay: 2 * time.Minute}
}

type retryMiddleware struct {
	cfg    Config
	logger *slog.Logger
}

// NewMiddleware creates retry middleware with the given policy. Rate-limit
// and transient provider failures are retried with exponential backoff and
// full second jitter; fatal classifications pass through untouched.
func NewMiddleware(cfg Config) (transport.Middleware, error) {
	if cfg.MaxRetries < 0 {
		return nil, fmt.Errorf("%w, got %d", errMaxRetriesInvalid, cfg.MaxRetries)
	}
	if cfg.BaseDelay <= 0 {
		return nil, fmt.Errorf("%w, got %v", errBaseDelayInvalid, cfg.BaseDelay)
	}
	rm := &retryMiddleware{
		cfg:    cfg,
		logger: slog.Default().With("component", "retry"),
	}
	return rm.middleware(), nil
}

func (r *retryMiddleware) middleware() transport.Middleware {
	return func(next transport.Handler) transport.Handler {
		return transport.HandlerFunc(func(ctx context.Context, req *transport.Request) (*transport.Response, error) {
			var lastErr error

			for attempt := 0; attempt <= r.cfg.MaxRetries; attempt++ {
				if err := ctx.Err(); err != nil {
					return nil, fmt.Errorf("%w: %w", errContextCancelled, err)
				}

				resp, err := next.Handle(ctx, req)
				if err == nil {
					if attempt > 0 {
						r.logger.Info("invocation succeeded after retry",
							"attempt", attempt+1,
							"model", req.Model)
					}
					return resp, nil
				}

				if !r.isRetryable(err) {
					r.logger.Debug("non-retryable invocation error",
						"error", err,
						"attempt", attempt+1,
						"model", req.Model)
					return nil, err
				}

				lastErr = err
				if attempt == r.cfg.MaxRetries {
					break
				}

				backoff := r.backoff(attempt, err)
				r.logger.Warn("retrying after backoff",
					"attempt", attempt+1,
					"backoff", backoff,
					"model", req.Model,
					"error", err)

				select {
				case <-time.After(backoff):
				case <-ctx.Done():
					return nil, fmt.Errorf("%w: %w", errContextCancelled, ctx.Err())
				}
			}

			return nil, fmt.Errorf("%w after %d attempts: %w",
				llmerrors.ErrMaxRetriesExceeded, r.cfg.MaxRetries+1, lastErr)
		})
	}
}

// backoff computes base*2^attempt plus up to one second of jitter,
// preferring provider Retry-After guidance when it is longer.
func (r *retryMiddleware) backoff(attempt int, err error) time.Duration {
	d := time.Duration(float64(r.cfg.BaseDelay) * math.Pow(2, float64(attempt)))
	d += time.Duration(rand.Float64() * float64(time.Second))
	if r.cfg.MaxDelay > 0 && d > r.cfg.MaxDelay {
		d = r.cfg.MaxDelay
	}

	var ie *llmerrors.InvocationError
	if errors.As(err, &ie) && ie.RetryAfter > d {
		d = ie.RetryAfter
		if r.cfg.MaxDelay > 0 && d > r.cfg.MaxDelay {
			d = r.cfg.MaxDelay
		}
	}
	return d
}

func (r *retryMiddleware) isRetryable(err error) bool {
	if err == nil {
		return false
	}
	if llmerrors.IsRetryable(err) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	return isNetworkError(err)
}

// isNetworkError detects connection-level failures by type assertion.
func isNetworkError(err error) bool {
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}
	return false
}
