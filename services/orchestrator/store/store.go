// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package store persists conversation transcripts. Two
// implementations exist: an in-memory store for development and a
// SQLite store for durable deployments.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/AleutianAI/AleutianChat/services/orchestrator/datatypes"
)

// ConversationStore is the persistence contract for chat transcripts.
//
// Append is the only write on the chat path and it runs exactly once
// per successful turn, with both the user message and the assistant
// reply in a single call.
type ConversationStore interface {
	// History returns the full ordered transcript, oldest first.
	// An unknown conversation yields an empty slice, not an error.
	History(ctx context.Context, conversationID string) ([]datatypes.ChatMessage, error)

	// Append atomically adds messages to the end of a conversation,
	// creating it on first use.
	Append(ctx context.Context, conversationID, userID string,
		messages ...datatypes.ChatMessage) error

	// List returns summaries for all conversations, most recently
	// updated first.
	List(ctx context.Context) ([]datatypes.ConversationSummary, error)

	// Delete removes a conversation and its messages. Deleting an
	// unknown conversation is a no-op.
	Delete(ctx context.Context, conversationID string) error

	Close() error
}

// =============================================================================
// In-memory store
// =============================================================================

type memoryConversation struct {
	userID    string
	messages  []datatypes.ChatMessage
	updatedAt time.Time
}

// MemoryStore keeps conversations in process memory. Transcripts do
// not survive a restart; use the SQLite store when durability matters.
type MemoryStore struct {
	mu            sync.RWMutex
	conversations map[string]*memoryConversation
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{conversations: make(map[string]*memoryConversation)}
}

func (m *MemoryStore) History(_ context.Context, conversationID string) ([]datatypes.ChatMessage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	conv, ok := m.conversations[conversationID]
	if !ok {
		return nil, nil
	}
	out := make([]datatypes.ChatMessage, len(conv.messages))
	copy(out, conv.messages)
	return out, nil
}

func (m *MemoryStore) Append(_ context.Context, conversationID, userID string,
	messages ...datatypes.ChatMessage) error {

	m.mu.Lock()
	defer m.mu.Unlock()

	conv, ok := m.conversations[conversationID]
	if !ok {
		conv = &memoryConversation{userID: userID}
		m.conversations[conversationID] = conv
	}
	conv.messages = append(conv.messages, messages...)
	conv.updatedAt = time.Now()
	return nil
}

func (m *MemoryStore) List(_ context.Context) ([]datatypes.ConversationSummary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	summaries := make([]datatypes.ConversationSummary, 0, len(m.conversations))
	for id, conv := range m.conversations {
		summaries = append(summaries, datatypes.ConversationSummary{
			ConversationID: id,
			UserID:         conv.userID,
			MessageCount:   len(conv.messages),
			UpdatedAt:      conv.updatedAt.Unix(),
		})
	}
	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].UpdatedAt > summaries[j].UpdatedAt
	})
	return summaries, nil
}

func (m *MemoryStore) Delete(_ context.Context, conversationID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.conversations, conversationID)
	return nil
}

func (m *MemoryStore) Close() error {
	return nil
}

var _ ConversationStore = (*MemoryStore)(nil)
