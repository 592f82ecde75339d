// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/AleutianAI/AleutianChat/services/vectorstore"
)

func newUpsertRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	// Disconnected manager: requests that pass validation get 503.
	manager := vectorstore.NewManager("", "ConversationChunk", nil)
	router := gin.New()
	router.POST("/upsert", HandleUpsertDocuments(manager, testMetrics()))
	return router
}

func postUpsert(router *gin.Engine, body string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/upsert",
		strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(rec, req)
	return rec
}

func TestHandleUpsertDocuments_MalformedBody(t *testing.T) {
	rec := postUpsert(newUpsertRouter(t), `{"documents": [`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleUpsertDocuments_MissingConversationID(t *testing.T) {
	rec := postUpsert(newUpsertRouter(t),
		`{"documents":[{"text":"some content"}]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleUpsertDocuments_OversizedDocument(t *testing.T) {
	big := strings.Repeat("x", 256*1024+1)
	rec := postUpsert(newUpsertRouter(t),
		`{"conversation_id":"9b1deb4d-3b7d-4bad-9bdd-2b0d7b3dcb6d",`+
			`"documents":[{"text":"`+big+`"}]}`)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestHandleUpsertDocuments_VectorStoreUnavailable(t *testing.T) {
	rec := postUpsert(newUpsertRouter(t),
		`{"conversation_id":"9b1deb4d-3b7d-4bad-9bdd-2b0d7b3dcb6d",`+
			`"documents":[{"text":"a short document"}]}`)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
