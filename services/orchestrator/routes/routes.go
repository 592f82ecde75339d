// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/AleutianAI/AleutianChat/services/llm"
	"github.com/AleutianAI/AleutianChat/services/orchestrator/config"
	"github.com/AleutianAI/AleutianChat/services/orchestrator/handlers"
	"github.com/AleutianAI/AleutianChat/services/orchestrator/observability"
	"github.com/AleutianAI/AleutianChat/services/orchestrator/services"
	"github.com/AleutianAI/AleutianChat/services/orchestrator/store"
	"github.com/AleutianAI/AleutianChat/services/vectorstore"
)

// SetupRoutes registers the orchestrator's HTTP surface on router.
func SetupRoutes(router *gin.Engine, cfg *config.Settings, llmClient llm.LLMClient,
	convStore store.ConversationStore, manager *vectorstore.Manager,
	streamSvc *services.StreamingService, metrics *observability.ChatMetrics) {

	router.GET("/health", handlers.HandleHealth(cfg, manager, llmClient))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	router.POST("/message", handlers.HandleChatMessage(streamSvc, metrics))
	router.POST("/upsert", handlers.HandleUpsertDocuments(manager, metrics))

	v1 := router.Group("/v1")
	{
		conversations := v1.Group("/conversations")
		{
			conversations.GET("", handlers.HandleListConversations(convStore))
			conversations.GET("/:id/messages", handlers.HandleGetConversationMessages(convStore))
			conversations.DELETE("/:id", handlers.HandleDeleteConversation(convStore))
		}
	}
}
