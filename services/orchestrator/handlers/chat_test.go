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
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianChat/services/llm"
	"github.com/AleutianAI/AleutianChat/services/orchestrator/datatypes"
	"github.com/AleutianAI/AleutianChat/services/orchestrator/observability"
	"github.com/AleutianAI/AleutianChat/services/orchestrator/services"
	"github.com/AleutianAI/AleutianChat/services/orchestrator/store"
)

var metricsOnce sync.Once

func testMetrics() *observability.ChatMetrics {
	metricsOnce.Do(func() { observability.InitMetrics() })
	return observability.DefaultMetrics
}

// scriptedLLM streams a fixed token sequence, or fails.
type scriptedLLM struct {
	tokens   []string
	failWith error
}

func (s *scriptedLLM) Chat(context.Context, []datatypes.ChatMessage, llm.GenerationParams) (string, error) {
	return strings.Join(s.tokens, ""), nil
}

func (s *scriptedLLM) ChatStream(_ context.Context, _ []datatypes.ChatMessage,
	_ llm.GenerationParams, callback llm.StreamCallback) error {

	for _, tok := range s.tokens {
		if err := callback(llm.StreamEvent{Type: llm.StreamEventToken, Content: tok}); err != nil {
			return err
		}
	}
	if s.failWith != nil {
		return s.failWith
	}
	callback(llm.StreamEvent{Type: llm.StreamEventDone})
	return nil
}

func (s *scriptedLLM) Model() string { return "test-model" }

func newChatRouter(t *testing.T, backend llm.LLMClient) *gin.Engine {
	t.Helper()
	t.Setenv("ALEUTIAN_INSECURE_MEMORY", "true")
	gin.SetMode(gin.TestMode)

	svc := services.NewStreamingService(backend, store.NewMemoryStore(), nil, 4, 10*time.Second)
	router := gin.New()
	router.POST("/message", HandleChatMessage(svc, testMetrics()))
	return router
}

// sseEvent is one parsed frame from a test response body.
type sseEvent struct {
	event string
	data  map[string]any
}

func parseSSE(t *testing.T, body string) []sseEvent {
	t.Helper()
	var events []sseEvent
	for _, frame := range strings.Split(body, "\n\n") {
		if strings.TrimSpace(frame) == "" {
			continue
		}
		var ev sseEvent
		var dataLines []string
		for _, line := range strings.Split(frame, "\n") {
			switch {
			case strings.HasPrefix(line, "event: "):
				ev.event = strings.TrimPrefix(line, "event: ")
			case strings.HasPrefix(line, "data: "):
				dataLines = append(dataLines, strings.TrimPrefix(line, "data: "))
			}
		}
		require.NoError(t, json.Unmarshal([]byte(strings.Join(dataLines, "\n")), &ev.data))
		events = append(events, ev)
	}
	return events
}

func postChat(router *gin.Engine, body string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/message",
		strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(rec, req)
	return rec
}

func TestHandleChatMessage_StreamsAndEnds(t *testing.T) {
	router := newChatRouter(t, &scriptedLLM{tokens: []string{"Hi", " there"}})

	rec := postChat(router, `{"messages":[{"role":"user","content":"hello"}]}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	assert.NotEmpty(t, rec.Header().Get("X-User-ID"))
	assert.NotEmpty(t, rec.Header().Get("X-Conversation-ID"))

	events := parseSSE(t, rec.Body.String())
	require.Len(t, events, 3)
	assert.Equal(t, "message", events[0].event)
	assert.Equal(t, "Hi", events[0].data["content"])
	assert.NotZero(t, events[0].data["retry"])
	assert.Equal(t, "message", events[1].event)

	end := events[2]
	assert.Equal(t, "end", end.event)
	assert.Equal(t, "completed", end.data["status"])
	assert.Equal(t, rec.Header().Get("X-Conversation-ID"), end.data["conversation_id"])
	assert.Equal(t, rec.Header().Get("X-User-ID"), end.data["user_id"])
}

func TestHandleChatMessage_MalformedBody(t *testing.T) {
	router := newChatRouter(t, &scriptedLLM{})

	rec := postChat(router, `{"messages": [`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleChatMessage_EmptyMessages(t *testing.T) {
	router := newChatRouter(t, &scriptedLLM{})

	rec := postChat(router, `{"messages":[]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleChatMessage_NonStreamingRejected(t *testing.T) {
	router := newChatRouter(t, &scriptedLLM{})

	rec := postChat(router, `{"messages":[{"role":"user","content":"hi"}],"stream":false}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "stream")
}

func TestHandleChatMessage_UpstreamFailureEmitsErrorEvent(t *testing.T) {
	router := newChatRouter(t, &scriptedLLM{
		tokens:   []string{"partial"},
		failWith: errors.New("backend exploded"),
	})

	rec := postChat(router, `{"messages":[{"role":"user","content":"hi"}]}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	events := parseSSE(t, rec.Body.String())
	require.NotEmpty(t, events)

	last := events[len(events)-1]
	assert.Equal(t, "error", last.event)
	assert.Equal(t, "stream_failure", last.data["error"])
	// Internal error text never reaches the wire.
	assert.NotContains(t, rec.Body.String(), "backend exploded")
}

func TestHandleChatMessage_TimeoutEmitsStreamTimeout(t *testing.T) {
	router := newChatRouter(t, &scriptedLLM{
		failWith: &llm.StreamTimeoutError{Err: errors.New("deadline")},
	})

	rec := postChat(router, `{"messages":[{"role":"user","content":"hi"}]}`)

	events := parseSSE(t, rec.Body.String())
	require.NotEmpty(t, events)
	last := events[len(events)-1]
	assert.Equal(t, "error", last.event)
	assert.Equal(t, "stream_timeout", last.data["error"])
}

func TestHandleChatMessage_ProvidedIDsEchoed(t *testing.T) {
	router := newChatRouter(t, &scriptedLLM{tokens: []string{"ok"}})

	convID := "9b1deb4d-3b7d-4bad-9bdd-2b0d7b3dcb6d"
	userID := "1b671a64-40d5-443a-8c19-c449c4067f3e"
	rec := postChat(router, `{"messages":[{"role":"user","content":"hi"}],`+
		`"conversation_id":"`+convID+`","user_id":"`+userID+`"}`)

	assert.Equal(t, convID, rec.Header().Get("X-Conversation-ID"))
	assert.Equal(t, userID, rec.Header().Get("X-User-ID"))
}

func TestHandleChatMessage_InvalidUUIDRejected(t *testing.T) {
	router := newChatRouter(t, &scriptedLLM{})

	rec := postChat(router, `{"messages":[{"role":"user","content":"hi"}],`+
		`"conversation_id":"not-a-uuid"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
