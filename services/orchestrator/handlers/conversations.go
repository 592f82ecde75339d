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
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/AleutianAI/AleutianChat/services/orchestrator/datatypes"
	"github.com/AleutianAI/AleutianChat/services/orchestrator/store"
)

// HandleListConversations serves GET /v1/conversations.
func HandleListConversations(convStore store.ConversationStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := handlerTracer.Start(c.Request.Context(), "HandleListConversations")
		defer span.End()

		summaries, err := convStore.List(ctx)
		if err != nil {
			span.RecordError(err)
			slog.Error("Failed to list conversations", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list conversations"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"conversations": summaries})
	}
}

// HandleGetConversationMessages serves GET /v1/conversations/:id/messages.
//
// An unknown conversation id returns an empty transcript rather than
// 404: ids are client-generated and a conversation exists from the
// client's perspective before its first completed turn.
func HandleGetConversationMessages(convStore store.ConversationStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := handlerTracer.Start(c.Request.Context(), "HandleGetConversationMessages")
		defer span.End()

		conversationID := c.Param("id")
		if _, err := uuid.Parse(conversationID); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "conversation id must be a UUID"})
			return
		}

		messages, err := convStore.History(ctx, conversationID)
		if err != nil {
			span.RecordError(err)
			slog.Error("Failed to load conversation",
				"conversation_id", conversationID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load conversation"})
			return
		}
		if messages == nil {
			messages = []datatypes.ChatMessage{}
		}
		c.JSON(http.StatusOK, gin.H{
			"conversation_id": conversationID,
			"messages":        messages,
		})
	}
}

// HandleDeleteConversation serves DELETE /v1/conversations/:id.
func HandleDeleteConversation(convStore store.ConversationStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := handlerTracer.Start(c.Request.Context(), "HandleDeleteConversation")
		defer span.End()

		conversationID := c.Param("id")
		if _, err := uuid.Parse(conversationID); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "conversation id must be a UUID"})
			return
		}

		if err := convStore.Delete(ctx, conversationID); err != nil {
			span.RecordError(err)
			slog.Error("Failed to delete conversation",
				"conversation_id", conversationID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete conversation"})
			return
		}
		c.Status(http.StatusNoContent)
	}
}
