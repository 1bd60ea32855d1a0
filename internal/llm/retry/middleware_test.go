package retry_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	llmerrors "github.com/ahrav/go-taxa/internal/llm/errors"
	"github.com/ahrav/go-taxa/internal/llm/retry"
	"github.com/ahrav/go-taxa/internal/llm/transport"
)

func fastConfig(maxRetries int) retry.Config {
	return retry.Config{
		MaxRetries: maxRetries,
		BaseDelay:  time.Millisecond,
		MaxDelay:   5 * time.Millisecond,
	}
}

func countingHandler(calls *atomic.Int32, failures int, failWith error) transport.Handler {
	return transport.HandlerFunc(func(_ context.Context, req *transport.Request) (*transport.Response, error) {
		n := calls.Add(1)
		if int(n) <= failures {
			return nil, failWith
		}
		return &transport.Response{Model: req.Model, Content: "ok"}, nil
	})
}

func TestRetry_TransientFailureEventuallySucceeds(t *testing.T) {
	mw, err := retry.NewMiddleware(fastConfig(3))
	require.NoError(t, err)

	var calls atomic.Int32
	transient := llmerrors.FromStatusCode("m1", 503, errors.New("unavailable"))
	h := transport.Chain(countingHandler(&calls, 2, transient), mw)

	resp, err := h.Handle(context.Background(), &transport.Request{Model: "m1"})
	require.NoError(t, err)

	assert.Equal(t, "ok", resp.Content)
	assert.Equal(t, int32(3), calls.Load())
}

func TestRetry_FatalErrorNotRetried(t *testing.T) {
	mw, err := retry.NewMiddleware(fastConfig(3))
	require.NoError(t, err)

	var calls atomic.Int32
	unauthorized := llmerrors.FromStatusCode("m1", 401, errors.New("bad key"))
	h := transport.Chain(countingHandler(&calls, 10, unauthorized), mw)

	_, err = h.Handle(context.Background(), &transport.Request{Model: "m1"})
	require.Error(t, err)

	assert.Equal(t, int32(1), calls.Load(), "auth failures must not burn retries")
	var ie *llmerrors.InvocationError
	require.True(t, errors.As(err, &ie))
	assert.Equal(t, llmerrors.ErrorTypeUnauthorized, ie.Type)
}

func TestRetry_BudgetExhausted(t *testing.T) {
	mw, err := retry.NewMiddleware(fastConfig(2))
	require.NoError(t, err)

	var calls atomic.Int32
	rateLimited := llmerrors.FromStatusCode("m1", 429, errors.New("slow down"))
	h := transport.Chain(countingHandler(&calls, 10, rateLimited), mw)

	_, err = h.Handle(context.Background(), &transport.Request{Model: "m1"})
	require.Error(t, err)

	assert.ErrorIs(t, err, llmerrors.ErrMaxRetriesExceeded)
	assert.Equal(t, int32(3), calls.Load(), "first attempt plus two retries")
}

func TestRetry_ContextCancelledDuringBackoff(t *testing.T) {
	mw, err := retry.NewMiddleware(retry.Config{
		MaxRetries: 3,
		BaseDelay:  time.Minute,
	})
	require.NoError(t, err)

	var calls atomic.Int32
	transient := llmerrors.FromStatusCode("m1", 500, errors.New("boom"))
	h := transport.Chain(countingHandler(&calls, 10, transient), mw)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err = h.Handle(ctx, &transport.Request{Model: "m1"})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, int32(1), calls.Load())
}

func TestNewMiddleware_Validation(t *testing.T) {
	_, err := retry.NewMiddleware(retry.Config{MaxRetries: -1, BaseDelay: time.Second})
	assert.Error(t, err)

	_, err = retry.NewMiddleware(retry.Config{MaxRetries: 1})
	assert.Error(t, err, "zero base delay rejected")
}
