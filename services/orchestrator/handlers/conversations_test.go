// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianChat/services/orchestrator/datatypes"
	"github.com/AleutianAI/AleutianChat/services/orchestrator/store"
)

func newConversationRouter(t *testing.T) (*gin.Engine, *store.MemoryStore) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	memStore := store.NewMemoryStore()
	router := gin.New()
	router.GET("/v1/conversations", HandleListConversations(memStore))
	router.GET("/v1/conversations/:id/messages", HandleGetConversationMessages(memStore))
	router.DELETE("/v1/conversations/:id", HandleDeleteConversation(memStore))
	return router, memStore
}

func TestConversations_ListAndGet(t *testing.T) {
	router, memStore := newConversationRouter(t)
	convID := "9b1deb4d-3b7d-4bad-9bdd-2b0d7b3dcb6d"

	err := memStore.Append(context.Background(), convID, "user-1",
		datatypes.ChatMessage{Role: datatypes.RoleUser, Content: "hi"},
		datatypes.ChatMessage{Role: datatypes.RoleAssistant, Content: "hello"},
	)
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/conversations", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var listBody struct {
		Conversations []datatypes.ConversationSummary `json:"conversations"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listBody))
	require.Len(t, listBody.Conversations, 1)
	assert.Equal(t, convID, listBody.Conversations[0].ConversationID)
	assert.Equal(t, 2, listBody.Conversations[0].MessageCount)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet,
		"/v1/conversations/"+convID+"/messages", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var getBody struct {
		ConversationID string                  `json:"conversation_id"`
		Messages       []datatypes.ChatMessage `json:"messages"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &getBody))
	assert.Equal(t, convID, getBody.ConversationID)
	require.Len(t, getBody.Messages, 2)
	assert.Equal(t, "hello", getBody.Messages[1].Content)
}

func TestConversations_UnknownIDReturnsEmptyTranscript(t *testing.T) {
	router, _ := newConversationRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet,
		"/v1/conversations/1b671a64-40d5-443a-8c19-c449c4067f3e/messages", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"messages":[]`)
}

func TestConversations_InvalidIDRejected(t *testing.T) {
	router, _ := newConversationRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet,
		"/v1/conversations/not-a-uuid/messages", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete,
		"/v1/conversations/not-a-uuid", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestConversations_Delete(t *testing.T) {
	router, memStore := newConversationRouter(t)
	convID := "9b1deb4d-3b7d-4bad-9bdd-2b0d7b3dcb6d"

	err := memStore.Append(context.Background(), convID, "user-1",
		datatypes.ChatMessage{Role: datatypes.RoleUser, Content: "bye"})
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete,
		"/v1/conversations/"+convID, nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)

	history, err := memStore.History(context.Background(), convID)
	require.NoError(t, err)
	assert.Empty(t, history)
}
