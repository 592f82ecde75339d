package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/AleutianAI/AleutianChat/services/orchestrator/datatypes"
)

// Startup validation policy. The whole sequence is retried only on
// connectivity failures; a missing model or an empty probe answer is a
// configuration problem no amount of retrying fixes.
const (
	validateAttempts   = 5
	validateRetryDelay = 2 * time.Second
	probeMaxRetries    = 2
)

// probeStopTokens are the stop sequences fixed into the validated
// client. They terminate generation at common chat-template sentinels.
var probeStopTokens = []string{"<|im_end|>", "<|endoftext|>"}

// SafetyParams returns the fixed generation parameters the validated
// backend is operated with: zero sampling temperature and the
// chat-template stop sequences. The startup probe and every
// production stream use these same parameters; per-request overrides
// are not supported.
func SafetyParams() GenerationParams {
	zero := float32(0)
	return GenerationParams{
		Temperature: &zero,
		Stop:        append([]string(nil), probeStopTokens...),
	}
}

// ValidateBackend performs the one-time startup check of the Ollama
// backend and returns a ready streaming client.
//
// The sequence, per attempt:
//  1. Probe /api/tags; connection failure is BackendUnreachableError.
//  2. Confirm the configured model is served; absence is
//     ModelNotFoundError naming the alternatives.
//  3. Construct the client with zero sampling temperature, fixed stop
//     sequences, bounded per-call retries, and the configured request
//     timeout.
//  4. Issue one synchronous "ping" inference; an empty answer is a
//     fatal EmptyProbeResponseError.
//
// Only BackendUnreachableError triggers another attempt, up to 5 with
// a fixed 2s delay. Exhausting the budget propagates the last failure.
//
// This call gates the streaming orchestrator: it must complete
// successfully exactly once per process lifetime before any stream is
// served.
func ValidateBackend(ctx context.Context, baseURL, model string,
	requestTimeout time.Duration) (*OllamaClient, error) {

	var lastErr error
	for attempt := 1; attempt <= validateAttempts; attempt++ {
		if attempt > 1 {
			slog.Warn("Model backend validation retry",
				"attempt", attempt, "max_attempts", validateAttempts, "error", lastErr)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(validateRetryDelay):
			}
		}

		client, err := validateOnce(ctx, baseURL, model, requestTimeout)
		if err == nil {
			slog.Info("Model backend validated", "model", model, "base_url", baseURL)
			return client, nil
		}

		var unreachable *BackendUnreachableError
		if !errors.As(err, &unreachable) {
			// Model-not-found and empty-probe are fatal immediately.
			return nil, err
		}
		lastErr = err
	}
	return nil, fmt.Errorf("model backend validation failed after %d attempts: %w",
		validateAttempts, lastErr)
}

// validateOnce runs one pass of the validation sequence.
func validateOnce(ctx context.Context, baseURL, model string,
	requestTimeout time.Duration) (*OllamaClient, error) {

	client, err := NewOllamaClient(baseURL, model, requestTimeout, probeMaxRetries)
	if err != nil {
		return nil, err
	}

	available, err := client.ListModels(ctx)
	if err != nil {
		return nil, err
	}

	if !modelAvailable(model, available) {
		return nil, &ModelNotFoundError{Model: model, Available: available}
	}

	answer, err := client.Chat(ctx, []datatypes.ChatMessage{
		{Role: datatypes.RoleUser, Content: "ping"},
	}, SafetyParams())
	if err != nil {
		return nil, fmt.Errorf("probe inference failed: %w", err)
	}
	if strings.TrimSpace(answer) == "" {
		return nil, &EmptyProbeResponseError{Model: model}
	}

	return client, nil
}

// modelAvailable matches the configured name against the served list.
// Ollama tags carry a ":latest" suffix the configuration usually
// omits, so both exact and tag-stripped names count.
func modelAvailable(model string, available []string) bool {
	for _, name := range available {
		if name == model {
			return true
		}
		if base, _, found := strings.Cut(name, ":"); found && base == model {
			return true
		}
	}
	return false
}
