// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package vectorstore

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newEmbeddingServer(t *testing.T, calls *atomic.Int64) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls != nil {
			calls.Add(1)
		}
		assert.Equal(t, "/api/embeddings", r.URL.Path)

		var req map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.NotEmpty(t, req["model"])
		assert.NotEmpty(t, req["prompt"])

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"embedding": []float32{0.1, 0.2, 0.3},
		})
	}))
}

func TestOllamaEmbedder_Embed(t *testing.T) {
	server := newEmbeddingServer(t, nil)
	defer server.Close()

	embedder, err := NewOllamaEmbedder(server.URL, "nomic-embed-text")
	require.NoError(t, err)

	vector, err := embedder.Embed(context.Background(), "hello world")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, vector)
}

func TestOllamaEmbedder_EmptyVector(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"embedding": []float32{}})
	}))
	defer server.Close()

	embedder, err := NewOllamaEmbedder(server.URL, "nomic-embed-text")
	require.NoError(t, err)

	_, err = embedder.Embed(context.Background(), "hello")
	assert.Error(t, err)
}

func TestOllamaEmbedder_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusInternalServerError)
	}))
	defer server.Close()

	embedder, err := NewOllamaEmbedder(server.URL, "nomic-embed-text")
	require.NoError(t, err)

	_, err = embedder.Embed(context.Background(), "hello")
	assert.Error(t, err)
}

func TestNewOllamaEmbedder_RequiresArgs(t *testing.T) {
	_, err := NewOllamaEmbedder("", "nomic-embed-text")
	assert.Error(t, err)

	_, err = NewOllamaEmbedder("http://localhost:11434", "")
	assert.Error(t, err)
}

func TestCachedEmbedder_MemoizesCalls(t *testing.T) {
	var calls atomic.Int64
	server := newEmbeddingServer(t, &calls)
	defer server.Close()

	inner, err := NewOllamaEmbedder(server.URL, "nomic-embed-text")
	require.NoError(t, err)
	cached := NewCachedEmbedder(inner, 16)

	ctx := context.Background()
	first, err := cached.Embed(ctx, "repeat me")
	require.NoError(t, err)
	second, err := cached.Embed(ctx, "repeat me")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, int64(1), calls.Load(), "second call should hit the cache")

	_, err = cached.Embed(ctx, "different text")
	require.NoError(t, err)
	assert.Equal(t, int64(2), calls.Load())

	hits, misses := cached.CacheStats()
	assert.Equal(t, int64(1), hits)
	assert.Equal(t, int64(2), misses)
}

func TestCachedEmbedder_ErrorsNotCached(t *testing.T) {
	var calls atomic.Int64
	failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer failing.Close()

	inner, err := NewOllamaEmbedder(failing.URL, "nomic-embed-text")
	require.NoError(t, err)
	cached := NewCachedEmbedder(inner, 16)

	ctx := context.Background()
	_, err = cached.Embed(ctx, "flaky")
	assert.Error(t, err)
	_, err = cached.Embed(ctx, "flaky")
	assert.Error(t, err)

	assert.Equal(t, int64(2), calls.Load(), "failed embeds must not be cached")
}

func TestDeterministicID_Stable(t *testing.T) {
	a := deterministicID("same content", 3)
	b := deterministicID("same content", 3)
	c := deterministicID("same content", 4)

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 36)
}
