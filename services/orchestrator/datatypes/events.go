// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package datatypes

// =============================================================================
// SSE Event Vocabulary
// =============================================================================

// SSE event types emitted by the streaming pipeline. A stream is a
// sequence of EventMessage events closed by exactly one terminal
// event: EventEnd on success or EventError on failure. Nothing is
// emitted after the terminal event.
const (
	// EventMessage carries one model-generated chunk.
	EventMessage = "message"

	// EventError is the terminal event of a failed stream.
	EventError = "error"

	// EventEnd is the terminal event of a successful stream.
	EventEnd = "end"
)

// Wire error codes. Internal errors are never leaked verbatim to the
// client (SEC-005); mid-stream failures map onto this fixed vocabulary.
const (
	// ErrCodeStreamTimeout reports a model backend timeout mid-stream.
	ErrCodeStreamTimeout = "stream_timeout"

	// ErrCodeStreamFailure reports any other mid-stream failure.
	ErrCodeStreamFailure = "stream_failure"
)

// StatusCompleted is the status carried by the EventEnd payload.
const StatusCompleted = "completed"

// =============================================================================
// Event Payloads
// =============================================================================

// StreamEvent is one event of an SSE chat stream, before wire framing.
//
// # Description
//
// Event selects the SSE event type (message, error, end) and Data is
// the JSON payload. The client reconnect hint is embedded inside the
// payload as a "retry" field by the SSE writer, so Data must not
// define that key itself.
//
// # Fields
//
//   - Event: One of EventMessage, EventError, EventEnd.
//   - Data: Event-specific payload. See MessagePayload, ErrorPayload,
//     EndPayload for the shapes produced by the orchestrator.
type StreamEvent struct {
	Event string
	Data  map[string]any
}

// MessagePayload builds one EventMessage chunk.
func MessagePayload(content, conversationID, model string) StreamEvent {
	return StreamEvent{
		Event: EventMessage,
		Data: map[string]any{
			"content":         content,
			"conversation_id": conversationID,
			"model":           model,
		},
	}
}

// ErrorPayload builds a terminal EventError.
func ErrorPayload(code string) StreamEvent {
	return StreamEvent{
		Event: EventError,
		Data: map[string]any{
			"error": code,
		},
	}
}

// EndPayload builds a terminal EventEnd, echoing the identifiers so a
// headerless SSE consumer can still track the conversation.
func EndPayload(conversationID, userID string) StreamEvent {
	return StreamEvent{
		Event: EventEnd,
		Data: map[string]any{
			"status":          StatusCompleted,
			"conversation_id": conversationID,
			"user_id":         userID,
		},
	}
}
