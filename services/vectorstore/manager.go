// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package vectorstore wraps the Weaviate vector database behind the
// two operations the chat pipeline needs: conversation-scoped
// similarity retrieval and document upsert.
package vectorstore

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/go-openapi/strfmt"
	"github.com/google/uuid"
	"github.com/tmc/langchaingo/textsplitter"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/filters"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	"github.com/weaviate/weaviate/entities/models"
	"go.opentelemetry.io/otel"

	"github.com/AleutianAI/AleutianChat/services/orchestrator/datatypes"
)

var tracer = otel.Tracer("aleutian.vectorstore")

// Chunking policy for upserted documents.
var (
	chunkSize         = 1000
	chunkOverlap      = chunkSize / 10
	defaultSeparators = []string{"\n\n", "\n", " ", ""}
)

// ContextSnippet is one ranked retrieval result.
//
// Score is 1 - cosine distance, so it falls in [-1, 1] with 1 meaning
// an identical direction.
type ContextSnippet struct {
	Text     string            `json:"text"`
	Metadata map[string]string `json:"metadata,omitempty"`
	Score    float64           `json:"score"`
}

// Manager wraps a Weaviate client plus an embedder.
//
// Construct once at startup; all methods are safe for concurrent use
// and the struct is never mutated after Initialize.
type Manager struct {
	client    *weaviate.Client
	embedder  Embedder
	class     string
	connected bool
}

// NewManager builds a Manager for the Weaviate instance at rawURL.
//
// A missing or unparseable URL is not fatal: the manager comes up
// disconnected, health reports degraded, and retrieval returns no
// context. Only upsert refuses to work while disconnected.
func NewManager(rawURL, class string, embedder Embedder) *Manager {
	m := &Manager{embedder: embedder, class: class}
	if class == "" {
		m.class = "ConversationChunk"
	}

	rawURL = strings.Trim(rawURL, "\"' ")
	if rawURL == "" || !strings.Contains(rawURL, "http") {
		slog.Info("Vector store URL not set, running without retrieval")
		return m
	}

	parsedURL, err := url.Parse(rawURL)
	if err != nil || parsedURL.Scheme == "" || parsedURL.Host == "" {
		slog.Warn("Vector store URL is invalid, running without retrieval",
			"url", rawURL, "error", err)
		return m
	}

	client, err := weaviate.NewClient(weaviate.Config{
		Host:   parsedURL.Host,
		Scheme: parsedURL.Scheme,
	})
	if err != nil {
		slog.Error("Failed to create Weaviate client", "error", err)
		return m
	}
	m.client = client
	return m
}

// Initialize checks connectivity and ensures the chunk class exists.
//
// Failure leaves the manager disconnected (degraded health) rather
// than aborting startup: the chat path works without retrieval.
func (m *Manager) Initialize(ctx context.Context) error {
	if m.client == nil {
		return fmt.Errorf("vector store not configured")
	}

	ready, err := m.client.Misc().ReadyChecker().Do(ctx)
	if err != nil || !ready {
		slog.Warn("Vector store not ready", "error", err)
		return fmt.Errorf("vector store not ready: %w", err)
	}

	if err := m.ensureSchema(ctx); err != nil {
		slog.Error("Failed to ensure vector store schema", "error", err)
		return err
	}

	m.connected = true
	slog.Info("Vector store connected", "class", m.class)
	return nil
}

// Connected reports whether the vector store was reachable at startup.
func (m *Manager) Connected() bool {
	return m.connected
}

// ensureSchema creates the chunk class when it does not exist yet.
func (m *Manager) ensureSchema(ctx context.Context) error {
	class := datatypes.GetConversationChunkSchema()
	class.Class = m.class

	_, err := m.client.Schema().ClassGetter().WithClassName(m.class).Do(ctx)
	if err == nil {
		slog.Info("Vector store schema already exists", "class", m.class)
		return nil
	}

	slog.Info("Creating vector store schema", "class", m.class)
	if err := m.client.Schema().ClassCreator().WithClass(class).Do(ctx); err != nil {
		return fmt.Errorf("failed to create class %s: %w", m.class, err)
	}
	return nil
}

// =============================================================================
// Retrieval
// =============================================================================

// chunkQueryResponse mirrors the GraphQL Get response shape for the
// chunk class.
type chunkQueryResponse struct {
	Get map[string][]struct {
		Content    string `json:"content"`
		Metadata   string `json:"metadata"`
		Additional struct {
			Distance float64 `json:"distance"`
		} `json:"_additional"`
	} `json:"Get"`
}

// RelevantContext retrieves up to k snippets similar to query, scoped
// to one conversation.
//
// Errors are downgraded to an empty result with a warning: retrieval
// is an enrichment, and a broken vector store must not fail the chat
// stream.
func (m *Manager) RelevantContext(ctx context.Context, query, conversationID string,
	k int) []ContextSnippet {

	ctx, span := tracer.Start(ctx, "Manager.RelevantContext")
	defer span.End()

	if !m.connected || m.embedder == nil {
		return nil
	}
	if k <= 0 {
		k = 4
	}

	vector, err := m.embedder.Embed(ctx, query)
	if err != nil {
		slog.Warn("Failed to embed retrieval query", "error", err)
		return nil
	}

	where := filters.Where().
		WithPath([]string{"conversation_id"}).
		WithOperator(filters.Equal).
		WithValueString(conversationID)

	nearVector := m.client.GraphQL().NearVectorArgBuilder().
		WithVector(vector)

	fields := []graphql.Field{
		{Name: "content"},
		{Name: "metadata"},
		{Name: "_additional", Fields: []graphql.Field{
			{Name: "distance"},
		}},
	}

	result, err := m.client.GraphQL().Get().
		WithClassName(m.class).
		WithFields(fields...).
		WithWhere(where).
		WithNearVector(nearVector).
		WithLimit(k).
		Do(ctx)
	if err != nil {
		slog.Warn("Vector store query failed", "error", err,
			"conversation_id", conversationID)
		return nil
	}

	parsed, err := parseGraphQLResponse[chunkQueryResponse](result)
	if err != nil {
		slog.Warn("Failed to parse vector store response", "error", err)
		return nil
	}

	rows := parsed.Get[m.class]
	snippets := make([]ContextSnippet, 0, len(rows))
	for _, row := range rows {
		snippet := ContextSnippet{
			Text:  row.Content,
			Score: 1 - row.Additional.Distance,
		}
		if row.Metadata != "" {
			var meta map[string]string
			if err := json.Unmarshal([]byte(row.Metadata), &meta); err == nil {
				snippet.Metadata = meta
			}
		}
		snippets = append(snippets, snippet)
	}
	slog.Debug("Retrieved context snippets",
		"conversation_id", conversationID, "count", len(snippets))
	return snippets
}

// parseGraphQLResponse converts Weaviate's dynamic response into a
// typed struct via a JSON round trip.
func parseGraphQLResponse[T any](resp *models.GraphQLResponse) (*T, error) {
	if resp == nil {
		return nil, fmt.Errorf("nil GraphQL response")
	}
	respBytes, err := json.Marshal(resp.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal GraphQL response data: %w", err)
	}
	var result T
	if err := json.Unmarshal(respBytes, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal into target type: %w", err)
	}
	return &result, nil
}

// =============================================================================
// Upsert
// =============================================================================

// UpsertDocuments chunks, embeds, and batch-inserts documents scoped
// to a conversation. Returns the number of chunks stored.
//
// Chunk ids are deterministic (derived from document id, chunk index,
// and content hash) so re-upserting the same document replaces its
// chunks instead of duplicating them.
func (m *Manager) UpsertDocuments(ctx context.Context, docs []datatypes.UpsertDocument,
	conversationID string) (int, error) {

	ctx, span := tracer.Start(ctx, "Manager.UpsertDocuments")
	defer span.End()

	if !m.connected {
		return 0, fmt.Errorf("vector store not connected")
	}
	if m.embedder == nil {
		return 0, fmt.Errorf("no embedder configured")
	}

	splitter := textsplitter.NewRecursiveCharacter(
		textsplitter.WithChunkSize(chunkSize),
		textsplitter.WithChunkOverlap(chunkOverlap),
		textsplitter.WithSeparators(defaultSeparators),
	)

	var objects []*models.Object
	for _, doc := range docs {
		chunks, err := splitter.SplitText(doc.Text)
		if err != nil {
			return 0, fmt.Errorf("failed to split document: %w", err)
		}

		docID := doc.ID
		if docID == "" {
			docID = deterministicID(doc.Text, 0)
		}

		metadataJSON := ""
		if len(doc.Metadata) > 0 {
			if data, err := json.Marshal(doc.Metadata); err == nil {
				metadataJSON = string(data)
			}
		}

		for i, chunk := range chunks {
			vector, err := m.embedder.Embed(ctx, chunk)
			if err != nil {
				return 0, fmt.Errorf("failed to embed chunk %d: %w", i, err)
			}

			objects = append(objects, &models.Object{
				Class:  m.class,
				ID:     strfmt.UUID(deterministicID(docID+chunk, i)),
				Vector: vector,
				Properties: map[string]interface{}{
					"content":         chunk,
					"conversation_id": conversationID,
					"document_id":     docID,
					"chunk_index":     i,
					"metadata":        metadataJSON,
					"ingested_at":     time.Now().UnixMilli(),
				},
			})
		}
	}

	if len(objects) == 0 {
		slog.Warn("No chunks produced for upsert", "conversation_id", conversationID)
		return 0, nil
	}

	resp, err := m.client.Batch().ObjectsBatcher().
		WithObjects(objects...).
		Do(ctx)
	if err != nil {
		slog.Error("Failed to batch import to vector store", "error", err)
		return 0, fmt.Errorf("failed to save objects to vector store: %w", err)
	}

	stored := 0
	for _, item := range resp {
		if item.Result != nil && item.Result.Status != nil && *item.Result.Status == "SUCCESS" {
			stored++
			continue
		}
		if item.Result != nil && item.Result.Errors != nil {
			for _, errItem := range item.Result.Errors.Error {
				slog.Warn("Vector store batch item failed", "error", errItem.Message)
			}
		}
	}

	slog.Info("Upserted document chunks",
		"conversation_id", conversationID, "chunks", stored)
	return stored, nil
}

// deterministicID derives a stable UUID from content.
func deterministicID(content string, index int) string {
	hash := sha256.Sum256([]byte(fmt.Sprintf("%s|%d", content, index)))
	id, _ := uuid.FromBytes(hash[:16])
	return id.String()
}
