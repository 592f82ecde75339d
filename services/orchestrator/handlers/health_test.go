// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianChat/services/orchestrator/config"
	"github.com/AleutianAI/AleutianChat/services/vectorstore"
)

func newHealthRouter(t *testing.T, manager *vectorstore.Manager) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := &config.Settings{AppEnv: "test", RequestTimeout: 5 * time.Second}
	router := gin.New()
	// scriptedLLM does not implement ModelLister, so the backend
	// counts as available once constructed.
	router.GET("/health", HandleHealth(cfg, manager, &scriptedLLM{}))
	return router
}

func getHealth(t *testing.T, router *gin.Engine) (int, map[string]any) {
	t.Helper()
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return rec.Code, body
}

func TestHandleHealth_DegradedWithoutVectorStore(t *testing.T) {
	// No URL: the manager stays disconnected.
	manager := vectorstore.NewManager("", "ConversationChunk", nil)
	router := newHealthRouter(t, manager)

	code, body := getHealth(t, router)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "degraded", body["status"])
	assert.Equal(t, "test", body["environment"])
	assert.Equal(t, false, body["weaviate_connected"])
	assert.Equal(t, true, body["ollama_available"])
	assert.Equal(t, "test-model", body["model"])
}
