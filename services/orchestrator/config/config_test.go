// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianChat/pkg/logging"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8000", cfg.Port)
	assert.Equal(t, "development", cfg.AppEnv)
	assert.Equal(t, logging.LevelInfo, cfg.LogLevel)
	assert.Equal(t, 300*time.Second, cfg.RequestTimeout)
	assert.Equal(t, BackendOllama, cfg.LLMBackendType)
	assert.Equal(t, "ConversationChunk", cfg.WeaviateClass)
	assert.Equal(t, []string{"http://localhost:3000"}, cfg.CORSOrigins)
	assert.False(t, cfg.IsProduction())
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("APP_ENV", "Production")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("REQUEST_TIMEOUT", "30s")
	t.Setenv("LLM_MODEL", "qwen2.5-coder")
	t.Setenv("CORS_ORIGINS", "https://a.example , https://b.example")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Port)
	assert.True(t, cfg.IsProduction())
	assert.Equal(t, logging.LevelDebug, cfg.LogLevel)
	assert.Equal(t, 30*time.Second, cfg.RequestTimeout)
	assert.Equal(t, "qwen2.5-coder", cfg.LLMModel)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSOrigins)
}

func TestLoad_BareSecondsTimeout(t *testing.T) {
	t.Setenv("REQUEST_TIMEOUT", "45")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 45*time.Second, cfg.RequestTimeout)
}

func TestLoad_InvalidLogLevelFatal(t *testing.T) {
	t.Setenv("LOG_LEVEL", "chatty")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "LOG_LEVEL")
}

func TestLoad_InvalidPortFatal(t *testing.T) {
	t.Setenv("PORT", "not-a-port")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "PORT")
}

func TestLoad_UnknownBackendFatal(t *testing.T) {
	t.Setenv("LLM_BACKEND_TYPE", "anthropic")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "LLM_BACKEND_TYPE")
}

func TestLoad_OpenAIRequiresKey(t *testing.T) {
	t.Setenv("LLM_BACKEND_TYPE", "openai")
	t.Setenv("OPENAI_API_KEY", "")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "OPENAI_API_KEY")

	t.Setenv("OPENAI_API_KEY", "sk-test")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, BackendOpenAI, cfg.LLMBackendType)
}

func TestLoad_NegativeCacheSizeFatal(t *testing.T) {
	t.Setenv("EMBEDDING_CACHE_SIZE", "-1")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "EMBEDDING_CACHE_SIZE")
}

func TestValidate_TimeoutMustBePositive(t *testing.T) {
	t.Setenv("REQUEST_TIMEOUT", "0s")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "REQUEST_TIMEOUT")
}
