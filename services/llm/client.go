package llm

import (
	"context"

	"github.com/AleutianAI/AleutianChat/services/orchestrator/datatypes"
)

type GenerationParams struct {
	Temperature *float32 `json:"temperature"`
	TopK        *int     `json:"top_k"`
	TopP        *float32 `json:"top_p"`
	MaxTokens   *int     `json:"max_tokens"`
	Stop        []string `json:"stop"`
}

// StreamEventType discriminates events delivered to a StreamCallback.
type StreamEventType string

const (
	// StreamEventToken carries one generated content chunk.
	StreamEventToken StreamEventType = "token"

	// StreamEventDone signals normal exhaustion of the stream.
	StreamEventDone StreamEventType = "done"

	// StreamEventError signals a failed stream; Err holds the cause.
	StreamEventError StreamEventType = "error"
)

// StreamEvent is one event from a model backend's token stream.
type StreamEvent struct {
	Type    StreamEventType
	Content string
	Err     error
}

// StreamCallback receives stream events in arrival order. Returning a
// non-nil error aborts the stream; the backend call is released.
type StreamCallback func(event StreamEvent) error

// LLMClient is the standard interface for any chat model backend.
//
// Implementations must be safe for concurrent use: clients are
// process-wide singletons constructed once at startup and shared by
// all request-handling goroutines.
type LLMClient interface {
	// Chat performs one synchronous chat completion.
	Chat(ctx context.Context, messages []datatypes.ChatMessage,
		params GenerationParams) (string, error)

	// ChatStream performs a streaming chat completion, invoking
	// callback once per event. Chunks are delivered in the exact order
	// received from the backend. Returns a *StreamTimeoutError when
	// the backend times out mid-stream.
	ChatStream(ctx context.Context, messages []datatypes.ChatMessage,
		params GenerationParams, callback StreamCallback) error

	// Model returns the model name this client generates with.
	Model() string
}

// ModelLister is implemented by backends that can enumerate their
// available models. Used by the startup validator and health checks.
type ModelLister interface {
	ListModels(ctx context.Context) ([]string, error)
}
