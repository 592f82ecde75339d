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
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/AleutianChat/services/llm"
	"github.com/AleutianAI/AleutianChat/services/orchestrator/config"
	"github.com/AleutianAI/AleutianChat/services/vectorstore"
)

const healthProbeTimeout = 2 * time.Second

// HandleHealth serves GET /health.
//
// Reports overall status plus per-dependency availability. A
// disconnected vector store degrades the status but keeps the service
// serving: chat works without retrieval.
func HandleHealth(cfg *config.Settings, manager *vectorstore.Manager,
	llmClient llm.LLMClient) gin.HandlerFunc {

	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), healthProbeTimeout)
		defer cancel()

		ollamaAvailable := probeLLM(ctx, llmClient)
		weaviateConnected := manager != nil && manager.Connected()

		status := "ok"
		httpStatus := http.StatusOK
		if !ollamaAvailable {
			status = "unavailable"
			httpStatus = http.StatusServiceUnavailable
		} else if !weaviateConnected {
			status = "degraded"
		}

		c.JSON(httpStatus, gin.H{
			"status":             status,
			"environment":        cfg.AppEnv,
			"model":              llmClient.Model(),
			"weaviate_connected": weaviateConnected,
			"ollama_available":   ollamaAvailable,
		})
	}
}

// probeLLM checks backend reachability. Backends without a model
// listing endpoint are assumed available once constructed.
func probeLLM(ctx context.Context, llmClient llm.LLMClient) bool {
	lister, ok := llmClient.(llm.ModelLister)
	if !ok {
		return llmClient != nil
	}
	_, err := lister.ListModels(ctx)
	return err == nil
}
