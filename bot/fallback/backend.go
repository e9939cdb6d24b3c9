// Package fallback dispatches a request to a generative backend when
// the routing cascade falls through to its terminal layer, relaying
// buffered or token-streamed answers and folding the pipeline trace
// into the response envelope.
package fallback

import (
	"context"

	"github.com/warintorn/shoptalk/bot/routing"
)

// Prompt is the generative request assembled from the conversation.
type Prompt struct {
	System  string
	History []routing.Message
	Message string
}

// Backend is one generative provider. Implementations must honor ctx
// cancellation on both entry points: when the downstream consumer goes
// away, the upstream call is released.
type Backend interface {
	// Name identifies the backend in traces and metrics.
	Name() string

	// Complete returns the full answer in one shot.
	Complete(ctx context.Context, p *Prompt) (string, error)

	// Stream starts a token stream. A non-nil error means the stream
	// could not be established (the dispatcher may substitute another
	// backend). After a successful start, tokens arrive on the content
	// channel in upstream order; errCh delivers at most one mid-stream
	// error; both channels close when the stream ends.
	Stream(ctx context.Context, p *Prompt) (content <-chan string, errCh <-chan error, err error)
}

// Event is one element of the streamed response envelope. Exactly one
// of the fields is meaningful: a trace event (always first), a content
// delta, or the terminal sentinel.
type Event struct {
	Trace   *routing.PipelineTrace `json:"trace,omitempty"`
	Content string                 `json:"content,omitempty"`
	Done    bool                   `json:"done,omitempty"`
}
