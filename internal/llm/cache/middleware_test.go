package cache_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-taxa/internal/llm/cache"
	"github.com/ahrav/go-taxa/internal/llm/transport"
)

func testConfig() cache.Config {
	return cache.Config{TTL: time.Minute, CleanupInterval: time.Minute, Enabled: true}
}

func echoHandler(calls *atomic.Int32) transport.Handler {
	return transport.HandlerFunc(func(_ context.Context, req *transport.Request) (*transport.Response, error) {
		calls.Add(1)
		return &transport.Response{Model: req.Model, Content: "answer"}, nil
	})
}

func deterministicRequest() *transport.Request {
	return &transport.Request{
		Model:    "m1",
		Messages: []transport.Message{{Role: transport.RoleUser, Content: "question"}},
	}
}

func TestCache_HitOnRepeatedDeterministicRequest(t *testing.T) {
	var calls atomic.Int32
	h := transport.Chain(echoHandler(&calls), cache.NewMiddleware(testConfig()))

	first, err := h.Handle(context.Background(), deterministicRequest())
	require.NoError(t, err)
	assert.False(t, first.FromCache)

	second, err := h.Handle(context.Background(), deterministicRequest())
	require.NoError(t, err)

	assert.True(t, second.FromCache)
	assert.Equal(t, first.Content, second.Content)
	assert.Equal(t, int32(1), calls.Load())
}

func TestCache_SampledRequestsBypass(t *testing.T) {
	var calls atomic.Int32
	h := transport.Chain(echoHandler(&calls), cache.NewMiddleware(testConfig()))

	req := deterministicRequest()
	req.Temperature = 0.7

	for i := 0; i < 3; i++ {
		resp, err := h.Handle(context.Background(), req)
		require.NoError(t, err)
		assert.False(t, resp.FromCache, "ensemble votes must stay independent")
	}
	assert.Equal(t, int32(3), calls.Load())
}

func TestCache_DistinctConversationsMiss(t *testing.T) {
	var calls atomic.Int32
	h := transport.Chain(echoHandler(&calls), cache.NewMiddleware(testConfig()))

	_, err := h.Handle(context.Background(), deterministicRequest())
	require.NoError(t, err)

	other := deterministicRequest()
	other.Messages[0].Content = "different question"
	_, err = h.Handle(context.Background(), other)
	require.NoError(t, err)

	assert.Equal(t, int32(2), calls.Load())
}

func TestCache_Disabled(t *testing.T) {
	var calls atomic.Int32
	h := transport.Chain(echoHandler(&calls), cache.NewMiddleware(cache.Config{Enabled: false}))

	for i := 0; i < 2; i++ {
		_, err := h.Handle(context.Background(), deterministicRequest())
		require.NoError(t, err)
	}
	assert.Equal(t, int32(2), calls.Load())
}
