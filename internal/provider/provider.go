// Package provider implements the upstream language-model boundary: a
// blocking completion call and an incremental SSE stream, both speaking the
// chat-completions wire contract.
package provider

import (
	"context"
	"errors"
)

// ErrUnavailable is returned when the provider cannot produce a usable
// response: connection failures, non-2xx statuses, deadline expiry and
// malformed response envelopes all map here. Callers treat these uniformly
// (persist a placeholder message, report the cause), so the distinction lives
// in the wrapped error text, not in separate sentinels.
var ErrUnavailable = errors.New("upstream provider unavailable")

// ChatMessage is the wire shape of one context-window entry.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest is the input to a completion, streaming or not.
type ChatRequest struct {
	Model    string
	Messages []ChatMessage
}

// Usage is the provider's token accounting for a completed request.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// ChatResponse is a normalized non-streaming response.
type ChatResponse struct {
	Content string
	Model   string
	Usage   Usage
}

// ChatStream yields incremental content fragments from a streaming response.
// Recv returns io.EOF exactly once, after the completion sentinel; any other
// error means the stream failed and no further fragments will arrive. Close
// tears the underlying connection down and is safe to call at any point.
type ChatStream interface {
	Recv() (string, error)
	Close() error
}

// Provider is the interface the conversation layer depends on.
type Provider interface {
	Complete(ctx context.Context, req ChatRequest) (*ChatResponse, error)
	Stream(ctx context.Context, req ChatRequest) (ChatStream, error)
}
