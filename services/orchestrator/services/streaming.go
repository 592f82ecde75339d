// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package services provides business logic for the orchestrator.
//
// Services encapsulate the chat pipeline behind injectable
// dependencies so handlers stay thin and tests can swap the LLM,
// store, and retriever for fakes.
package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/AleutianAI/AleutianChat/services/llm"
	"github.com/AleutianAI/AleutianChat/services/orchestrator/datatypes"
	"github.com/AleutianAI/AleutianChat/services/orchestrator/store"
	"github.com/AleutianAI/AleutianChat/services/vectorstore"
)

var streamTracer = otel.Tracer("aleutian.orchestrator.services.streaming")

// =============================================================================
// Stream states
// =============================================================================

// StreamState tracks where a chat turn is in its lifecycle. The
// transitions are:
//
//	Initializing -> Streaming   (first token arrives)
//	Initializing -> Failing     (upstream fails before any token)
//	Streaming    -> Completing  (upstream reports done)
//	Streaming    -> Failing     (timeout or failure mid-stream)
//
// Persistence happens only on the transition into Completing, so a
// failed or timed-out turn never leaves a partial assistant reply in
// the store.
type StreamState int

const (
	StateInitializing StreamState = iota
	StateStreaming
	StateCompleting
	StateFailing
)

func (s StreamState) String() string {
	switch s {
	case StateInitializing:
		return "initializing"
	case StateStreaming:
		return "streaming"
	case StateCompleting:
		return "completing"
	case StateFailing:
		return "failing"
	default:
		return "unknown"
	}
}

// =============================================================================
// Retry hints
// =============================================================================

// maxRetryHintMillis caps the reconnect delay a client is told to use.
const maxRetryHintMillis = 20000

// RetryHint computes the reconnect delay embedded in each SSE payload.
//
// The hint starts at the configured request timeout in milliseconds,
// doubles on each advance up to the cap, and snaps back to baseline
// whenever a chunk is delivered successfully.
type RetryHint struct {
	baseline int64
	current  int64
}

// NewRetryHint builds a hint with baseline derived from the request
// timeout.
func NewRetryHint(requestTimeout time.Duration) *RetryHint {
	baseline := requestTimeout.Milliseconds()
	if baseline <= 0 {
		baseline = 1
	}
	return &RetryHint{baseline: baseline, current: baseline}
}

// Current returns the hint to embed in the next event.
func (r *RetryHint) Current() int64 { return r.current }

// Advance doubles the hint, capped, and returns the new value.
func (r *RetryHint) Advance() int64 {
	next := r.current * 2
	if next > maxRetryHintMillis {
		next = maxRetryHintMillis
	}
	r.current = next
	return r.current
}

// Reset snaps the hint back to baseline after a successful chunk.
func (r *RetryHint) Reset() { r.current = r.baseline }

// =============================================================================
// Sink and errors
// =============================================================================

// EventSink receives stream events in order. The SSE writer is the
// production implementation; tests use an in-memory recorder.
type EventSink interface {
	// Send formats and delivers one event with the reconnect hint
	// embedded in its payload. A non-nil error means the client is
	// gone and the stream must terminate silently.
	Send(event datatypes.StreamEvent, retryMillis int64) error
}

// StreamConnectionError marks a failed write to the client. The stream
// terminates without a wire error event because there is nobody left
// to read it.
type StreamConnectionError struct {
	Err error
}

func (e *StreamConnectionError) Error() string {
	return fmt.Sprintf("client connection lost: %v", e.Err)
}

func (e *StreamConnectionError) Unwrap() error { return e.Err }

// =============================================================================
// StreamingService
// =============================================================================

// ContextRetriever supplies conversation-scoped context snippets.
// *vectorstore.Manager is the production implementation.
type ContextRetriever interface {
	RelevantContext(ctx context.Context, query, conversationID string, k int) []vectorstore.ContextSnippet
	Connected() bool
}

// StreamingService runs one chat turn end to end: history merge,
// context retrieval, upstream streaming, and persistence.
type StreamingService struct {
	llm            llm.LLMClient
	store          store.ConversationStore
	retriever      ContextRetriever
	retrievalK     int
	requestTimeout time.Duration
}

// NewStreamingService wires the chat pipeline. retriever may be nil
// when no vector store is configured.
func NewStreamingService(llmClient llm.LLMClient, convStore store.ConversationStore,
	retriever ContextRetriever, retrievalK int, requestTimeout time.Duration) *StreamingService {

	if retrievalK <= 0 {
		retrievalK = 4
	}
	return &StreamingService{
		llm:            llmClient,
		store:          convStore,
		retriever:      retriever,
		retrievalK:     retrievalK,
		requestTimeout: requestTimeout,
	}
}

// GenerateStream executes one streamed chat turn.
//
// The request must already be validated and have its ids populated.
// Events are delivered to sink in order, ending with exactly one
// terminal event (end or error) unless the client disconnects first.
//
// The store is written exactly once, on successful completion, with
// the new user messages plus the assembled assistant reply. A timeout
// or failure leaves the store untouched and the partial reply is
// discarded.
func (s *StreamingService) GenerateStream(ctx context.Context, req *datatypes.ChatRequest,
	sink EventSink) error {

	ctx, span := streamTracer.Start(ctx, "StreamingService.GenerateStream")
	defer span.End()
	span.SetAttributes(
		attribute.String("conversation_id", req.ConversationID),
		attribute.String("model", s.llm.Model()),
	)

	newMessages := filterKnownRoles(req.Messages)
	if len(newMessages) == 0 {
		// Filtering can leave nothing for the model. The stream still
		// runs so the outcome surfaces on the wire instead of as a
		// request rejection.
		slog.Warn("All messages dropped by role filtering, streaming anyway",
			"conversation_id", req.ConversationID)
	}

	upstream, err := s.buildUpstreamMessages(ctx, req, newMessages)
	if err != nil {
		return err
	}

	acc, err := NewTokenAccumulator()
	if err != nil {
		return fmt.Errorf("failed to create token accumulator: %w", err)
	}
	defer acc.Destroy()

	hint := NewRetryHint(s.requestTimeout)
	state := StateInitializing
	model := s.llm.Model()
	if req.Model != "" {
		model = req.Model
	}

	streamErr := s.llm.ChatStream(ctx, upstream, llm.SafetyParams(), func(ev llm.StreamEvent) error {
		switch ev.Type {
		case llm.StreamEventToken:
			if state == StateInitializing {
				state = StateStreaming
				slog.Debug("Stream state transition",
					"conversation_id", req.ConversationID,
					"from", StateInitializing.String(), "to", StateStreaming.String())
			}
			if err := acc.Write(ev.Content); err != nil {
				return err
			}
			event := datatypes.MessagePayload(ev.Content, req.ConversationID, model)
			if err := sink.Send(event, hint.Current()); err != nil {
				return &StreamConnectionError{Err: err}
			}
			hint.Reset()
			return nil
		case llm.StreamEventDone, llm.StreamEventError:
			// Terminal handling happens on ChatStream's return value.
			return nil
		default:
			return nil
		}
	})

	if streamErr == nil {
		return s.complete(ctx, req, newMessages, acc, sink, hint, &state)
	}
	return s.fail(ctx, req, streamErr, sink, hint, &state)
}

// complete runs the Completing transition: persist the turn, then
// emit the end event.
func (s *StreamingService) complete(ctx context.Context, req *datatypes.ChatRequest,
	newMessages []datatypes.ChatMessage, acc TokenAccumulator, sink EventSink,
	hint *RetryHint, state *StreamState) error {

	*state = StateCompleting

	answer, answerHash, err := acc.Finalize()
	if err != nil {
		return fmt.Errorf("failed to finalize assistant reply: %w", err)
	}

	turn := append(append([]datatypes.ChatMessage{}, newMessages...),
		datatypes.ChatMessage{Role: datatypes.RoleAssistant, Content: answer})
	if err := s.store.Append(ctx, req.ConversationID, req.UserID, turn...); err != nil {
		// The reply was already delivered; losing persistence is worth
		// surfacing but not worth failing the stream over.
		slog.Error("Failed to persist completed turn",
			"conversation_id", req.ConversationID, "error", err)
	}

	slog.Info("Stream completed",
		"conversation_id", req.ConversationID,
		"answer_len", len(answer),
		"answer_hash", answerHash,
	)

	endEvent := datatypes.EndPayload(req.ConversationID, req.UserID)
	if err := sink.Send(endEvent, hint.Current()); err != nil {
		return &StreamConnectionError{Err: err}
	}
	return nil
}

// fail runs the Failing transition: classify the upstream error and
// emit a sanitized wire error. Internal detail stays in the logs.
func (s *StreamingService) fail(ctx context.Context, req *datatypes.ChatRequest,
	streamErr error, sink EventSink, hint *RetryHint, state *StreamState) error {

	var connErr *StreamConnectionError
	if errors.As(streamErr, &connErr) {
		slog.Info("Client disconnected mid-stream",
			"conversation_id", req.ConversationID)
		return streamErr
	}
	if ctx.Err() != nil {
		slog.Info("Stream canceled",
			"conversation_id", req.ConversationID, "cause", ctx.Err())
		return streamErr
	}

	*state = StateFailing

	code := datatypes.ErrCodeStreamFailure
	var timeoutErr *llm.StreamTimeoutError
	if errors.As(streamErr, &timeoutErr) {
		code = datatypes.ErrCodeStreamTimeout
	}

	slog.Error("Stream failed",
		"conversation_id", req.ConversationID,
		"code", code,
		"error", streamErr,
	)

	errEvent := datatypes.ErrorPayload(code)
	if sendErr := sink.Send(errEvent, hint.Advance()); sendErr != nil {
		return &StreamConnectionError{Err: sendErr}
	}
	return streamErr
}

// buildUpstreamMessages merges stored history with the new request
// messages and injects retrieved context as a leading system message.
func (s *StreamingService) buildUpstreamMessages(ctx context.Context, req *datatypes.ChatRequest,
	newMessages []datatypes.ChatMessage) ([]datatypes.ChatMessage, error) {

	history, err := s.store.History(ctx, req.ConversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to load conversation history: %w", err)
	}

	var upstream []datatypes.ChatMessage
	if snippet := s.contextMessage(ctx, req, newMessages); snippet != nil {
		upstream = append(upstream, *snippet)
	}
	upstream = append(upstream, history...)
	upstream = append(upstream, newMessages...)
	return upstream, nil
}

// contextMessage retrieves snippets for the latest user message and
// folds them into one system message. Nil when retrieval is off,
// finds nothing, or fails.
func (s *StreamingService) contextMessage(ctx context.Context, req *datatypes.ChatRequest,
	newMessages []datatypes.ChatMessage) *datatypes.ChatMessage {

	if s.retriever == nil || !s.retriever.Connected() {
		return nil
	}

	query := lastUserContent(newMessages)
	if query == "" {
		return nil
	}

	snippets := s.retriever.RelevantContext(ctx, query, req.ConversationID, s.retrievalK)
	if len(snippets) == 0 {
		return nil
	}

	var b strings.Builder
	b.WriteString("Use the following context to answer the user's question. " +
		"If the context is not relevant, answer from your own knowledge.\n")
	for i, snippet := range snippets {
		fmt.Fprintf(&b, "\n[Context %d]\n%s\n", i+1, snippet.Text)
	}
	return &datatypes.ChatMessage{Role: datatypes.RoleSystem, Content: b.String()}
}

// filterKnownRoles drops messages whose role is not part of the chat
// vocabulary instead of rejecting the whole request.
func filterKnownRoles(messages []datatypes.ChatMessage) []datatypes.ChatMessage {
	out := make([]datatypes.ChatMessage, 0, len(messages))
	for _, msg := range messages {
		if !datatypes.IsKnownRole(msg.Role) {
			slog.Warn("Dropping message with unknown role", "role", msg.Role)
			continue
		}
		out = append(out, msg)
	}
	return out
}

func lastUserContent(messages []datatypes.ChatMessage) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == datatypes.RoleUser {
			return messages[i].Content
		}
	}
	return ""
}
