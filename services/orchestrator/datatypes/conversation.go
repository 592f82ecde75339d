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
// Conversation Types
// =============================================================================

// Conversation is one persisted chat thread, keyed by conversation id
// in the conversation store.
//
// Created lazily on the first message to an unseen id; mutated only by
// appending the new user turn(s) plus the assembled assistant turn
// after a stream completes. Never explicitly destroyed by the
// streaming path (no TTL or eviction; DELETE /v1/conversations/:id is
// the only removal path).
type Conversation struct {
	ConversationID string        `json:"conversation_id"`
	UserID         string        `json:"user_id"`
	Messages       []ChatMessage `json:"messages"`
}

// ConversationSummary is one row of GET /v1/conversations.
type ConversationSummary struct {
	ConversationID string `json:"conversation_id"`
	UserID         string `json:"user_id"`
	MessageCount   int    `json:"message_count"`
	UpdatedAt      int64  `json:"updated_at,omitempty"`
}
