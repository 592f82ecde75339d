// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package config provides application configuration for the
// orchestrator service. All settings come from environment variables,
// optionally seeded from a .env file.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/AleutianAI/AleutianChat/pkg/logging"
)

// Backend type selectors for LLM_BACKEND_TYPE.
const (
	BackendOllama = "ollama"
	BackendOpenAI = "openai"
)

// Settings holds all orchestrator configuration.
type Settings struct {
	AppEnv   string
	Port     string
	LogLevel logging.Level
	LogDir   string

	// RequestTimeout bounds each upstream LLM call. Its millisecond
	// value is also the baseline SSE reconnect hint.
	RequestTimeout time.Duration

	WeaviateURL        string
	WeaviateClass      string
	EmbeddingCacheSize int

	LLMBackendType string
	OllamaHost     string
	LLMModel       string
	EmbeddingModel string
	OpenAIAPIKey   string
	MaxRetries     int

	// ConversationDBPath selects the sqlite store; empty keeps
	// conversations in memory.
	ConversationDBPath string

	CORSOrigins []string
	RetrievalK  int
}

// Load reads configuration from the environment.
//
// A .env file in the working directory is loaded first when present.
// Invalid values are fatal: a service that cannot parse its own
// configuration should not come up half-configured.
func Load() (*Settings, error) {
	if err := godotenv.Load(); err != nil {
		// Absence of a .env file is the normal production case.
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to load .env file: %w", err)
		}
	}

	level, err := logging.ParseLevel(getEnv("LOG_LEVEL", "info"))
	if err != nil {
		return nil, fmt.Errorf("invalid LOG_LEVEL: %w", err)
	}

	timeout, err := getEnvDuration("REQUEST_TIMEOUT", 300*time.Second)
	if err != nil {
		return nil, err
	}

	cacheSize, err := getEnvInt("EMBEDDING_CACHE_SIZE", 512)
	if err != nil {
		return nil, err
	}

	maxRetries, err := getEnvInt("LLM_MAX_RETRIES", 2)
	if err != nil {
		return nil, err
	}

	retrievalK, err := getEnvInt("RETRIEVAL_TOP_K", 4)
	if err != nil {
		return nil, err
	}

	cfg := &Settings{
		AppEnv:             getEnv("APP_ENV", "development"),
		Port:               getEnv("PORT", "8000"),
		LogLevel:           level,
		LogDir:             getEnv("LOG_DIR", ""),
		RequestTimeout:     timeout,
		WeaviateURL:        getEnv("WEAVIATE_SERVICE_URL", ""),
		WeaviateClass:      getEnv("WEAVIATE_CLASS", "ConversationChunk"),
		EmbeddingCacheSize: cacheSize,
		LLMBackendType:     strings.ToLower(getEnv("LLM_BACKEND_TYPE", BackendOllama)),
		OllamaHost:         getEnv("OLLAMA_HOST", "http://localhost:11434"),
		LLMModel:           getEnv("LLM_MODEL", "gpt-oss"),
		EmbeddingModel:     getEnv("EMBEDDING_MODEL", "nomic-embed-text"),
		OpenAIAPIKey:       getEnv("OPENAI_API_KEY", ""),
		MaxRetries:         maxRetries,
		ConversationDBPath: getEnv("CONVERSATION_DB_PATH", ""),
		CORSOrigins:        splitList(getEnv("CORS_ORIGINS", "http://localhost:3000")),
		RetrievalK:         retrievalK,
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks field constraints that getters cannot express.
func (s *Settings) Validate() error {
	if s.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	if _, err := strconv.Atoi(s.Port); err != nil {
		return fmt.Errorf("PORT must be numeric, got %q", s.Port)
	}
	if s.RequestTimeout <= 0 {
		return fmt.Errorf("REQUEST_TIMEOUT must be positive, got %s", s.RequestTimeout)
	}
	if s.EmbeddingCacheSize < 0 {
		return fmt.Errorf("EMBEDDING_CACHE_SIZE cannot be negative")
	}
	if s.MaxRetries < 0 {
		return fmt.Errorf("LLM_MAX_RETRIES cannot be negative")
	}
	if s.RetrievalK <= 0 {
		return fmt.Errorf("RETRIEVAL_TOP_K must be positive")
	}
	switch s.LLMBackendType {
	case BackendOllama:
		if s.OllamaHost == "" {
			return fmt.Errorf("OLLAMA_HOST cannot be empty for the ollama backend")
		}
	case BackendOpenAI:
		if s.OpenAIAPIKey == "" {
			return fmt.Errorf("OPENAI_API_KEY is required for the openai backend")
		}
	default:
		return fmt.Errorf("unknown LLM_BACKEND_TYPE %q (want %q or %q)",
			s.LLMBackendType, BackendOllama, BackendOpenAI)
	}
	return nil
}

// IsProduction reports whether the service runs with production
// hardening (stricter CORS, quieter gin).
func (s *Settings) IsProduction() bool {
	return strings.EqualFold(s.AppEnv, "production")
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && strings.TrimSpace(value) != "" {
		return strings.TrimSpace(value)
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	value, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(value) == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer, got %q", key, value)
	}
	return n, nil
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	value, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(value) == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		// Accept bare seconds for compatibility with older deploys.
		if secs, convErr := strconv.Atoi(strings.TrimSpace(value)); convErr == nil {
			return time.Duration(secs) * time.Second, nil
		}
		return 0, fmt.Errorf("%s must be a duration, got %q", key, value)
	}
	return d, nil
}

func splitList(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
