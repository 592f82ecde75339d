// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package datatypes provides the request, response, and event types for
// the chat orchestrator service.
//
// This file contains the chat request types. For SSE event types see
// events.go, for document upsert types see documents.go.
package datatypes

import (
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// =============================================================================
// Constants for Security Compliance
// =============================================================================

const (
	// MaxMessageContentBytes is the maximum size of a single message content.
	// Per SEC-003: Unbounded message input mitigation.
	MaxMessageContentBytes = 32 * 1024 // 32KB

	// MaxMessagesPerRequest is the maximum number of messages in a request.
	// Per SEC-004: Unbounded message history mitigation.
	MaxMessagesPerRequest = 100
)

// =============================================================================
// Message Roles
// =============================================================================

const (
	// RoleSystem marks instructions that steer model behavior.
	RoleSystem = "system"

	// RoleUser marks a message authored by the end user.
	RoleUser = "user"

	// RoleAssistant marks a message produced by the model.
	RoleAssistant = "assistant"
)

// IsKnownRole reports whether role is one of system, user, assistant.
//
// # Description
//
// Messages with unknown roles are dropped with a warning before the
// model call; they never abort a request. This predicate is the single
// source of truth for that filter.
//
// # Inputs
//
//   - role: Role string from a client message.
//
// # Outputs
//
//   - bool: true if the role is accepted by the model backends.
func IsKnownRole(role string) bool {
	switch role {
	case RoleSystem, RoleUser, RoleAssistant:
		return true
	default:
		return false
	}
}

// =============================================================================
// Shared Validator Instance
// =============================================================================

// chatValidate is the validator instance for chat datatypes.
// Initialized in init() with custom validators.
var chatValidate *validator.Validate

func init() {
	chatValidate = validator.New()

	// Register custom validator for message content size (SEC-003)
	_ = chatValidate.RegisterValidation("maxbytes", validateMaxBytes)
}

// validateMaxBytes validates that a string field does not exceed
// MaxMessageContentBytes. Checks byte length (not rune count) to
// prevent memory exhaustion with large payloads (SEC-003).
func validateMaxBytes(fl validator.FieldLevel) bool {
	content := fl.Field().String()
	return len(content) <= MaxMessageContentBytes
}

// =============================================================================
// Chat Types
// =============================================================================

// ChatMessage is one turn of a conversation.
//
// # Description
//
// ChatMessage is immutable once constructed. It is produced by the
// client in a ChatRequest or reconstructed from stored history.
//
// # Fields
//
//   - Role: One of "system", "user", "assistant". Unknown roles are
//     filtered before the model call, not rejected.
//   - Content: Message text, limited to 32KB (SEC-003).
type ChatMessage struct {
	Role    string `json:"role" validate:"required"`
	Content string `json:"content" validate:"maxbytes"`
}

// ChatRequest is the body of POST /message.
//
// # Description
//
// Carries the conversation turns to answer plus optional identity and
// model overrides. UserID and ConversationID, once generated, are
// stable for the lifetime of the request/response pair and echoed back
// via both the X-User-ID / X-Conversation-ID headers and the terminal
// SSE event.
//
// # Fields
//
//   - Messages: Required, 1-100 turns in chronological order.
//   - Model: Optional model override for this request.
//   - Stream: Optional; defaults to true. Explicit false is rejected
//     because non-streaming responses are not supported.
//   - UserID: Optional UUID; generated server-side when absent.
//   - ConversationID: Optional UUID; generated server-side when absent.
//
// # Validation
//
//   - Messages: required, 1-100 elements, each content <= 32KB
//   - UserID/ConversationID: canonical UUID text form when present
//
// # Examples
//
//	req := ChatRequest{
//	    Messages: []ChatMessage{{Role: "user", Content: "hi"}},
//	}
//	req.EnsureDefaults()
type ChatRequest struct {
	Messages       []ChatMessage `json:"messages" validate:"required,min=1,max=100,dive"`
	Model          string        `json:"model,omitempty"`
	Stream         *bool         `json:"stream,omitempty"`
	UserID         string        `json:"user_id,omitempty" validate:"omitempty,uuid4"`
	ConversationID string        `json:"conversation_id,omitempty" validate:"omitempty,uuid4"`
}

// Validate validates the ChatRequest fields.
//
// Malformed identifiers reject the whole request (never silently
// corrupt history); call this after binding the JSON body and before
// EnsureDefaults.
func (r *ChatRequest) Validate() error {
	return chatValidate.Struct(r)
}

// EnsureDefaults generates UserID and ConversationID when absent.
//
// The generated values are RFC-4122 v4 UUIDs in canonical text form.
// Call after Validate so client-supplied malformed ids are rejected
// rather than replaced.
func (r *ChatRequest) EnsureDefaults() {
	if r.UserID == "" {
		r.UserID = uuid.New().String()
	}
	if r.ConversationID == "" {
		r.ConversationID = uuid.New().String()
	}
}

// WantsStream reports whether the client asked for a streamed
// response. Absent means true.
func (r *ChatRequest) WantsStream() bool {
	return r.Stream == nil || *r.Stream
}
