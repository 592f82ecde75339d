package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/AleutianAI/AleutianChat/services/orchestrator/datatypes"
)

var tracer = otel.Tracer("aleutian.llm.ollama") // Specific tracer name

// scanBufferSize bounds one NDJSON line from Ollama. Chunks are small
// but a pathological line must not abort the stream parser early.
const scanBufferSize = 1024 * 1024

type OllamaClient struct {
	httpClient *http.Client
	baseURL    string
	model      string
	maxRetries int
}

// Ollama API request/response structures
type ollamaChatRequest struct {
	Model    string                  `json:"model"`
	Messages []datatypes.ChatMessage `json:"messages"`
	Stream   bool                    `json:"stream"`
	Options  map[string]interface{}  `json:"options,omitempty"`
}

type ollamaStreamChunk struct {
	Message    datatypes.ChatMessage `json:"message"`
	CreatedAt  string                `json:"created_at"`
	Done       bool                  `json:"done"`
	DoneReason string                `json:"done_reason,omitempty"`
	Error      string                `json:"error,omitempty"`
}

type ollamaTagsResponse struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}

// NewOllamaClient creates a client for the Ollama chat API.
//
// baseURL must be set; model falls back to a logged default. The
// request timeout applies to every HTTP call including the full
// duration of a streaming response, so it doubles as the mid-stream
// timeout. maxRetries bounds retries of non-streaming calls on
// connection failures; streaming calls are never retried.
func NewOllamaClient(baseURL, model string, requestTimeout time.Duration,
	maxRetries int) (*OllamaClient, error) {

	if baseURL == "" {
		return nil, fmt.Errorf("ollama base URL not set")
	}
	if model == "" {
		slog.Warn("Ollama model not set, defaulting to gpt-oss")
		model = "gpt-oss"
	}
	if requestTimeout <= 0 {
		requestTimeout = 5 * time.Minute
	}
	if maxRetries < 0 {
		maxRetries = 0
	}
	baseURL = strings.TrimSuffix(baseURL, "/")
	slog.Info("Initializing Ollama client",
		"base_url", baseURL, "model", model, "timeout", requestTimeout)
	return &OllamaClient{
		httpClient: &http.Client{Timeout: requestTimeout},
		baseURL:    baseURL,
		model:      model,
		maxRetries: maxRetries,
	}, nil
}

// Model implements the LLMClient interface.
func (o *OllamaClient) Model() string { return o.model }

// buildOptions translates GenerationParams into Ollama's options map,
// applying conservative defaults for anything unset.
func buildOptions(params GenerationParams) map[string]interface{} {
	options := make(map[string]interface{})
	if params.Temperature != nil {
		options["temperature"] = *params.Temperature
	} else {
		options["temperature"] = float32(0.2)
	}
	if params.TopK != nil {
		options["top_k"] = *params.TopK
	} else {
		options["top_k"] = 20
	}
	if params.TopP != nil {
		options["top_p"] = *params.TopP
	} else {
		options["top_p"] = float32(0.9)
	}
	if params.MaxTokens != nil {
		options["num_predict"] = *params.MaxTokens
	} else {
		options["num_predict"] = 8192
	}
	if len(params.Stop) > 0 {
		options["stop"] = params.Stop
	}
	return options
}

// Chat implements the LLMClient interface with a non-streaming call.
func (o *OllamaClient) Chat(ctx context.Context, messages []datatypes.ChatMessage,
	params GenerationParams) (string, error) {

	ctx, span := tracer.Start(ctx, "OllamaClient.Chat")
	defer span.End()
	span.SetAttributes(attribute.String("llm.model", o.model))
	span.SetAttributes(attribute.Int("llm.num_messages", len(messages)))

	slog.Debug("Generating text via Ollama", "model", o.model)
	payload := ollamaChatRequest{
		Model:    o.model,
		Messages: messages,
		Stream:   false,
		Options:  buildOptions(params),
	}
	reqBody, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal chat request to Ollama: %w", err)
	}

	resp, err := o.doWithRetry(ctx, http.MethodPost, o.baseURL+"/api/chat", reqBody)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", fmt.Errorf("failed to read chat response from Ollama: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		slog.Error("Ollama chat returned an error", "status_code", resp.StatusCode,
			"response", string(respBody))
		if resp.StatusCode == http.StatusNotFound && bytes.Contains(respBody, []byte("not found")) {
			return "", &ModelNotFoundError{Model: o.model}
		}
		return "", fmt.Errorf("ollama chat failed with status %d: %s", resp.StatusCode,
			string(respBody))
	}

	var chatResp ollamaStreamChunk
	if err = json.Unmarshal(respBody, &chatResp); err != nil {
		slog.Error("Failed to parse JSON chat response from Ollama", "error", err,
			"response", string(respBody))
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", fmt.Errorf("failed to parse the response from the ollama chat: %w", err)
	}
	if chatResp.Message.Role != "" && chatResp.Message.Role != datatypes.RoleAssistant {
		slog.Warn("Ollama chat response message role was not 'assistant'",
			"role", chatResp.Message.Role)
	}
	return chatResp.Message.Content, nil
}

// ChatStream implements the LLMClient interface with an NDJSON
// streaming call against /api/chat.
//
// Events are delivered to callback in arrival order: zero or more
// token events, then exactly one done event on normal exhaustion. On
// failure the callback receives one error event and ChatStream returns
// the cause; a backend timeout is returned as *StreamTimeoutError.
func (o *OllamaClient) ChatStream(ctx context.Context, messages []datatypes.ChatMessage,
	params GenerationParams, callback StreamCallback) error {

	ctx, span := tracer.Start(ctx, "OllamaClient.ChatStream")
	defer span.End()
	span.SetAttributes(attribute.String("llm.model", o.model))
	span.SetAttributes(attribute.Int("llm.num_messages", len(messages)))

	payload := ollamaChatRequest{
		Model:    o.model,
		Messages: messages,
		Stream:   true,
		Options:  buildOptions(params),
	}
	reqBody, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal stream request to Ollama: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		o.baseURL+"/api/chat", bytes.NewBuffer(reqBody))
	if err != nil {
		return fmt.Errorf("failed to create stream request to Ollama: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/x-ndjson")

	resp, err := o.httpClient.Do(req)
	if err != nil {
		err = o.classifyStreamError(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return o.failStream(callback, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		err = fmt.Errorf("ollama stream failed with status %d: %s",
			resp.StatusCode, string(body))
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return o.failStream(callback, err)
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 64*1024), scanBufferSize)

	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		var chunk ollamaStreamChunk
		if err := json.Unmarshal(line, &chunk); err != nil {
			err = fmt.Errorf("failed to parse stream chunk: %w", err)
			span.RecordError(err)
			return o.failStream(callback, err)
		}

		if chunk.Error != "" {
			err = fmt.Errorf("ollama reported a stream error: %s", chunk.Error)
			span.RecordError(err)
			return o.failStream(callback, err)
		}

		if chunk.Message.Content != "" {
			if err := callback(StreamEvent{
				Type:    StreamEventToken,
				Content: chunk.Message.Content,
			}); err != nil {
				return fmt.Errorf("stream callback failed: %w", err)
			}
		}

		if chunk.Done {
			slog.Debug("Ollama stream complete",
				"model", o.model, "reason", chunk.DoneReason)
			return callback(StreamEvent{Type: StreamEventDone})
		}
	}

	if err := scanner.Err(); err != nil {
		err = o.classifyStreamError(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return o.failStream(callback, err)
	}

	// Body ended without a done chunk. Treat as a failure so the
	// caller never mistakes a truncated stream for completion.
	err = fmt.Errorf("ollama stream ended without a done chunk")
	span.RecordError(err)
	return o.failStream(callback, err)
}

// ListModels queries /api/tags for the models the backend serves.
// Connection failures are returned as *BackendUnreachableError.
func (o *OllamaClient) ListModels(ctx context.Context) ([]string, error) {
	ctx, span := tracer.Start(ctx, "OllamaClient.ListModels")
	defer span.End()

	resp, err := o.doWithRetry(ctx, http.MethodGet, o.baseURL+"/api/tags", nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read tags response from Ollama: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ollama tags failed with status %d: %s",
			resp.StatusCode, string(body))
	}

	var tags ollamaTagsResponse
	if err := json.Unmarshal(body, &tags); err != nil {
		return nil, fmt.Errorf("failed to parse tags response from Ollama: %w", err)
	}

	names := make([]string, 0, len(tags.Models))
	for _, m := range tags.Models {
		names = append(names, m.Name)
	}
	return names, nil
}

// doWithRetry issues a non-streaming request, retrying connection
// failures up to maxRetries with a short linear delay. HTTP error
// statuses are returned to the caller, not retried.
func (o *OllamaClient) doWithRetry(ctx context.Context, method, url string,
	body []byte) (*http.Response, error) {

	var lastErr error
	for attempt := 0; attempt <= o.maxRetries; attempt++ {
		if attempt > 0 {
			slog.Warn("Retrying Ollama request",
				"url", url, "attempt", attempt, "error", lastErr)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(500 * time.Millisecond):
			}
		}

		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, url, reader)
		if err != nil {
			return nil, fmt.Errorf("failed to create request to Ollama: %w", err)
		}
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := o.httpClient.Do(req)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}
	return nil, &BackendUnreachableError{Endpoint: o.baseURL, Err: lastErr}
}

// failStream delivers the terminal error event, then returns err so
// the caller sees both the event and the cause.
func (o *OllamaClient) failStream(callback StreamCallback, err error) error {
	if cbErr := callback(StreamEvent{Type: StreamEventError, Err: err}); cbErr != nil {
		slog.Warn("Stream error callback failed", "error", cbErr)
	}
	return err
}

// classifyStreamError wraps timeout-shaped transport errors in
// StreamTimeoutError so the orchestrator can map them to the
// stream_timeout wire code.
func (o *OllamaClient) classifyStreamError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return &StreamTimeoutError{Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &StreamTimeoutError{Err: err}
	}
	return err
}

var _ LLMClient = (*OllamaClient)(nil)
var _ ModelLister = (*OllamaClient)(nil)
