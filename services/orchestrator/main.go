// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"

	"github.com/AleutianAI/AleutianChat/pkg/logging"
	"github.com/AleutianAI/AleutianChat/services/llm"
	"github.com/AleutianAI/AleutianChat/services/orchestrator/config"
	"github.com/AleutianAI/AleutianChat/services/orchestrator/middleware"
	"github.com/AleutianAI/AleutianChat/services/orchestrator/observability"
	"github.com/AleutianAI/AleutianChat/services/orchestrator/routes"
	"github.com/AleutianAI/AleutianChat/services/orchestrator/services"
	"github.com/AleutianAI/AleutianChat/services/orchestrator/store"
	"github.com/AleutianAI/AleutianChat/services/vectorstore"
)

const serviceName = "chat-orchestrator"

func initTracer() (func(context.Context), error) {
	ctx := context.Background()

	otelEndpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	if otelEndpoint == "" {
		otelEndpoint = "localhost:4317"
	}
	conn, err := grpc.NewClient(otelEndpoint,
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, err
	}
	traceExporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
	if err != nil {
		return nil, err
	}
	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceNameKey.String(serviceName)))
	if err != nil {
		return nil, err
	}
	bsp := sdktrace.NewBatchSpanProcessor(traceExporter)
	traceProvider := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithResource(res),
		sdktrace.WithSpanProcessor(bsp))
	otel.SetTracerProvider(traceProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{}))

	return func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, time.Second*5)
		defer cancel()
		if err := traceExporter.Shutdown(ctx); err != nil {
			slog.Error("failed to shutdown OTLP exporter", "error", err)
		}
	}, nil
}

func buildLLMClient(ctx context.Context, cfg *config.Settings) (llm.LLMClient, error) {
	switch cfg.LLMBackendType {
	case config.BackendOpenAI:
		slog.Info("Using OpenAI LLM backend", "model", cfg.LLMModel)
		return llm.NewOpenAIClient(cfg.OpenAIAPIKey, cfg.LLMModel)
	case config.BackendOllama:
		slog.Info("Validating Ollama LLM backend",
			"host", cfg.OllamaHost, "model", cfg.LLMModel)
		return llm.ValidateBackend(ctx, cfg.OllamaHost, cfg.LLMModel, cfg.RequestTimeout)
	default:
		return nil, fmt.Errorf("unknown LLM backend type %q", cfg.LLMBackendType)
	}
}

func buildStore(cfg *config.Settings) (store.ConversationStore, error) {
	if cfg.ConversationDBPath == "" {
		slog.Info("Using in-memory conversation store")
		return store.NewMemoryStore(), nil
	}
	slog.Info("Using SQLite conversation store", "path", cfg.ConversationDBPath)
	return store.NewSQLite(cfg.ConversationDBPath)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("FATAL: invalid configuration: %v", err)
	}

	logger := logging.New(logging.Config{
		Level:   cfg.LogLevel,
		LogDir:  cfg.LogDir,
		Service: serviceName,
		JSON:    cfg.IsProduction(),
	})
	logger.Install()
	defer logger.Close()

	cleanup, err := initTracer()
	if err != nil {
		log.Fatalf("FATAL: failed to set up the OTLP tracer: %v", err)
	}
	defer cleanup(context.Background())

	metrics := observability.InitMetrics()

	// Vector store comes up best-effort: a missing Weaviate degrades
	// retrieval, it does not block chat.
	embedder := vectorstore.Embedder(nil)
	if ollamaEmbedder, err := vectorstore.NewOllamaEmbedder(cfg.OllamaHost, cfg.EmbeddingModel); err != nil {
		slog.Warn("Embedder unavailable, retrieval disabled", "error", err)
	} else {
		embedder = vectorstore.NewCachedEmbedder(ollamaEmbedder, cfg.EmbeddingCacheSize)
	}

	manager := vectorstore.NewManager(cfg.WeaviateURL, cfg.WeaviateClass, embedder)
	initCtx, cancelInit := context.WithTimeout(context.Background(), 30*time.Second)
	if err := manager.Initialize(initCtx); err != nil {
		slog.Warn("Vector store unavailable, running without retrieval", "error", err)
	}
	cancelInit()

	llmCtx, cancelLLM := context.WithTimeout(context.Background(), 2*time.Minute)
	llmClient, err := buildLLMClient(llmCtx, cfg)
	cancelLLM()
	if err != nil {
		log.Fatalf("FATAL: failed to initialize LLM client: %v", err)
	}

	convStore, err := buildStore(cfg)
	if err != nil {
		log.Fatalf("FATAL: failed to initialize conversation store: %v", err)
	}
	defer func() {
		if err := convStore.Close(); err != nil {
			slog.Error("Failed to close conversation store", "error", err)
		}
	}()

	var retriever services.ContextRetriever
	if manager.Connected() {
		retriever = manager
	}
	streamSvc := services.NewStreamingService(
		llmClient, convStore, retriever, cfg.RetrievalK, cfg.RequestTimeout)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.Default()
	router.Use(otelgin.Middleware(serviceName))
	router.Use(middleware.CORS(cfg.CORSOrigins))

	routes.SetupRoutes(router, cfg, llmClient, convStore, manager, streamSvc, metrics)

	slog.Info("Starting chat orchestrator",
		"port", cfg.Port,
		"environment", cfg.AppEnv,
		"backend", cfg.LLMBackendType,
		"model", llmClient.Model(),
		"vector_store_connected", manager.Connected(),
	)
	if err := router.Run(":" + cfg.Port); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
