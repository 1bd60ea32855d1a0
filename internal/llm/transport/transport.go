// Package transport defines the composable middleware pipeline that model
// invocations flow through. Middleware layers (retry, rate limiting,
// caching, logging) wrap a core provider handler without knowing anything
// about each other.
package transport

import (
	"context"
	"time"
)

// Role names for conversation messages.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one turn in a model conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request is a single model invocation. When JSONOutput is set the provider
// is asked for a JSON object response; SchemaHint is the human-readable
// schema description appended to corrective retry messages.
type Request struct {
	Model       string
	Messages    []Message
	Temperature float32
	MaxTokens   int
	JSONOutput  bool
	SchemaHint  string
	Timeout     time.Duration
}

// Clone returns a deep copy of the request; middleware and repair loops
// append messages without aliasing the caller's slice.
func (r *Request) Clone() *Request {
	out := *r
	out.Messages = make([]Message, len(r.Messages))
	copy(out.Messages, r.Messages)
	return &out
}

// Response is the raw provider result of one invocation.
type Response struct {
	Model      string
	Content    string
	TokensUsed int
	// FromCache marks responses served by the cache middleware.
	FromCache bool
}

// Handler processes one model request.
type Handler interface {
	Handle(ctx context.Context, req *Request) (*Response, error)
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(context.Context, *Request) (*Response, error)

// Handle implements Handler.
func (f HandlerFunc) Handle(ctx context.Context, req *Request) (*Response, error) {
	return f(ctx, req)
}

// Middleware transforms a Handler into an enhanced Handler.
type Middleware func(Handler) Handler

// Chain builds a middleware pipeline around a core handler. Middleware
// executes in the order provided, first middleware outermost.
func Chain(h Handler, middlewares ...Middleware) Handler {
	for i := len(middlewares) - 1; i >= 0; i-- {
		h = middlewares[i](h)
	}
	return h
}
