// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/codes"

	"github.com/AleutianAI/AleutianChat/services/orchestrator/datatypes"
	"github.com/AleutianAI/AleutianChat/services/orchestrator/observability"
	"github.com/AleutianAI/AleutianChat/services/vectorstore"
)

// HandleUpsertDocuments serves POST /upsert.
//
// # Description
//
// Chunks, embeds, and stores the submitted documents in the vector
// store, scoped to one conversation so later chat turns in that
// conversation can retrieve them.
//
// # Inputs
//
//   - Request body: datatypes.UpsertRequest (JSON)
//
// # Outputs
//
//   - 200 with datatypes.UpsertResponse on success
//   - 400 for malformed or invalid requests
//   - 413 when a document exceeds the size limit
//   - 503 when the vector store is not connected
func HandleUpsertDocuments(manager *vectorstore.Manager,
	metrics *observability.ChatMetrics) gin.HandlerFunc {

	return func(c *gin.Context) {
		ctx, span := handlerTracer.Start(c.Request.Context(), "HandleUpsertDocuments")
		defer span.End()

		var req datatypes.UpsertRequest
		if err := c.BindJSON(&req); err != nil {
			span.RecordError(err)
			slog.Error("Failed to parse upsert request", "error", err)
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}

		if err := req.Validate(); err != nil {
			span.RecordError(err)
			metrics.RequestsTotal.WithLabelValues("upsert", "error").Inc()

			var tooLarge *datatypes.DocumentTooLargeError
			if errors.As(err, &tooLarge) {
				c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": err.Error()})
				return
			}
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		if !manager.Connected() {
			metrics.RequestsTotal.WithLabelValues("upsert", "error").Inc()
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "vector store unavailable"})
			return
		}

		chunks, err := manager.UpsertDocuments(ctx, req.Documents, req.ConversationID)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			slog.Error("Document upsert failed",
				"conversation_id", req.ConversationID, "error", err)
			metrics.RequestsTotal.WithLabelValues("upsert", "error").Inc()
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store documents"})
			return
		}

		metrics.RequestsTotal.WithLabelValues("upsert", "success").Inc()
		metrics.ChunksUpsertedTotal.Add(float64(chunks))
		c.JSON(http.StatusOK, datatypes.UpsertResponse{Status: "success", Chunks: chunks})
	}
}
