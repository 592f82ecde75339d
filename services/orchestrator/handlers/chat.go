// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package handlers implements the orchestrator's HTTP surface: the
// streaming chat endpoint, document upsert, conversation management,
// and health.
package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"

	"github.com/AleutianAI/AleutianChat/services/llm"
	"github.com/AleutianAI/AleutianChat/services/orchestrator/datatypes"
	"github.com/AleutianAI/AleutianChat/services/orchestrator/observability"
	"github.com/AleutianAI/AleutianChat/services/orchestrator/services"
)

var handlerTracer = otel.Tracer("aleutian.orchestrator.handlers")

// HandleChatMessage serves POST /message.
//
// # Description
//
// Validates the chat request, commits to an SSE response, and hands
// the stream to the streaming service. The conversation and user ids
// are echoed as response headers before the stream starts so clients
// learn server-generated ids even if the stream later fails.
//
// # Inputs
//
//   - Request body: datatypes.ChatRequest (JSON)
//
// # Outputs
//
//   - 200 with a text/event-stream body on success
//   - 400 for malformed bodies, validation failures, or stream=false
//   - 500 when the response writer cannot stream
//
// # Limitations
//
//   - Only streamed responses are supported; clients wanting a single
//     JSON reply must consume the stream.
func HandleChatMessage(svc *services.StreamingService,
	metrics *observability.ChatMetrics) gin.HandlerFunc {

	return func(c *gin.Context) {
		ctx, span := handlerTracer.Start(c.Request.Context(), "HandleChatMessage")
		defer span.End()

		var req datatypes.ChatRequest
		if err := c.BindJSON(&req); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			slog.Error("Failed to parse chat request", "error", err)
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}

		if err := req.Validate(); err != nil {
			span.RecordError(err)
			slog.Warn("Rejected invalid chat request", "error", err)
			metrics.RequestsTotal.WithLabelValues("message", "error").Inc()
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		if !req.WantsStream() {
			metrics.RequestsTotal.WithLabelValues("message", "error").Inc()
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "non-streaming responses are not supported; set stream to true",
			})
			return
		}

		req.EnsureDefaults()

		// Ids go out as headers before the stream commits, so clients
		// can correlate even an immediately failing stream.
		c.Header("X-User-ID", req.UserID)
		c.Header("X-Conversation-ID", req.ConversationID)

		writer, err := setupSSE(c.Writer)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			slog.Error("Response writer cannot stream", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "streaming unsupported"})
			return
		}
		c.Status(http.StatusOK)

		metrics.ActiveStreams.Inc()
		defer metrics.ActiveStreams.Dec()

		start := time.Now()
		sink := &instrumentedSink{writer: writer, metrics: metrics, start: start}

		streamErr := svc.GenerateStream(ctx, &req, sink)
		recordStreamOutcome(metrics, streamErr, time.Since(start))
	}
}

// instrumentedSink forwards to the SSE writer while recording time to
// first token.
type instrumentedSink struct {
	writer    SSEWriter
	metrics   *observability.ChatMetrics
	start     time.Time
	gotFirst  bool
	lastModel string
}

func (s *instrumentedSink) Send(event datatypes.StreamEvent, retryMillis int64) error {
	if !s.gotFirst && event.Event == datatypes.EventMessage {
		s.gotFirst = true
		if model, ok := event.Data["model"].(string); ok {
			s.lastModel = model
		}
		s.metrics.TimeToFirstTokenSeconds.
			WithLabelValues(s.lastModel).
			Observe(time.Since(s.start).Seconds())
	}
	return s.writer.Send(event, retryMillis)
}

func recordStreamOutcome(metrics *observability.ChatMetrics, streamErr error,
	elapsed time.Duration) {

	switch {
	case streamErr == nil:
		metrics.RequestsTotal.WithLabelValues("message", "success").Inc()
		metrics.StreamDurationSeconds.WithLabelValues("completed").Observe(elapsed.Seconds())
	case isConnectionError(streamErr):
		metrics.ClientDisconnectsTotal.Inc()
		metrics.StreamDurationSeconds.WithLabelValues("disconnect").Observe(elapsed.Seconds())
	default:
		code := wireCodeFor(streamErr)
		metrics.RequestsTotal.WithLabelValues("message", "error").Inc()
		metrics.StreamErrorsTotal.WithLabelValues(code).Inc()
		metrics.StreamDurationSeconds.WithLabelValues(code).Observe(elapsed.Seconds())
	}
}

func isConnectionError(err error) bool {
	var connErr *services.StreamConnectionError
	return errors.As(err, &connErr)
}

func wireCodeFor(err error) string {
	var timeoutErr *llm.StreamTimeoutError
	if errors.As(err, &timeoutErr) {
		return datatypes.ErrCodeStreamTimeout
	}
	return datatypes.ErrCodeStreamFailure
}
