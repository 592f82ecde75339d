package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"

	"github.com/sashabaranov/go-openai"

	"github.com/AleutianAI/AleutianChat/services/orchestrator/datatypes"
)

// OpenAIClient is the OpenAI-compatible alternate backend, selected
// with LLM_BACKEND_TYPE=openai.
type OpenAIClient struct {
	client *openai.Client
	model  string
}

func NewOpenAIClient(apiKey, model string) (*OpenAIClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("OpenAI API key not set")
	}
	if model == "" {
		model = "gpt-4o-mini"
		slog.Warn("OpenAI model not set, defaulting to gpt-4o-mini")
	}
	slog.Info("Initializing OpenAI client", "model", model)
	return &OpenAIClient{
		client: openai.NewClient(apiKey),
		model:  model,
	}, nil
}

// Model implements the LLMClient interface.
func (o *OpenAIClient) Model() string { return o.model }

// toOpenAIMessages converts chat messages to the SDK representation.
func toOpenAIMessages(messages []datatypes.ChatMessage) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, m := range messages {
		out = append(out, openai.ChatCompletionMessage{
			Role:    m.Role,
			Content: m.Content,
		})
	}
	return out
}

func (o *OpenAIClient) buildRequest(messages []datatypes.ChatMessage,
	params GenerationParams, stream bool) openai.ChatCompletionRequest {

	req := openai.ChatCompletionRequest{
		Model:    o.model,
		Messages: toOpenAIMessages(messages),
		Stream:   stream,
	}
	if params.Temperature != nil {
		req.Temperature = *params.Temperature
	}
	if params.MaxTokens != nil {
		req.MaxCompletionTokens = *params.MaxTokens
	}
	if params.TopP != nil {
		req.TopP = *params.TopP
	}
	if len(params.Stop) > 0 {
		req.Stop = params.Stop
	}
	return req
}

// Chat implements the LLMClient interface.
func (o *OpenAIClient) Chat(ctx context.Context, messages []datatypes.ChatMessage,
	params GenerationParams) (string, error) {

	slog.Debug("Generating text via OpenAI", "model", o.model)
	resp, err := o.client.CreateChatCompletion(ctx, o.buildRequest(messages, params, false))
	if err != nil {
		slog.Error("OpenAI API call failed", "error", err)
		return "", fmt.Errorf("OpenAI API call failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		slog.Warn("OpenAI returned no choices")
		return "", fmt.Errorf("OpenAI returned no choices")
	}
	slog.Debug("Received response from OpenAI", "finish_reason", resp.Choices[0].FinishReason)
	return resp.Choices[0].Message.Content, nil
}

// ChatStream implements the LLMClient interface.
func (o *OpenAIClient) ChatStream(ctx context.Context, messages []datatypes.ChatMessage,
	params GenerationParams, callback StreamCallback) error {

	stream, err := o.client.CreateChatCompletionStream(ctx,
		o.buildRequest(messages, params, true))
	if err != nil {
		err = classifyOpenAIStreamError(err)
		if cbErr := callback(StreamEvent{Type: StreamEventError, Err: err}); cbErr != nil {
			slog.Warn("Stream error callback failed", "error", cbErr)
		}
		return err
	}
	defer stream.Close()

	for {
		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return callback(StreamEvent{Type: StreamEventDone})
		}
		if err != nil {
			err = classifyOpenAIStreamError(err)
			if cbErr := callback(StreamEvent{Type: StreamEventError, Err: err}); cbErr != nil {
				slog.Warn("Stream error callback failed", "error", cbErr)
			}
			return err
		}
		if len(resp.Choices) == 0 {
			continue
		}
		if content := resp.Choices[0].Delta.Content; content != "" {
			if err := callback(StreamEvent{
				Type:    StreamEventToken,
				Content: content,
			}); err != nil {
				return fmt.Errorf("stream callback failed: %w", err)
			}
		}
	}
}

// ListModels implements the ModelLister interface.
func (o *OpenAIClient) ListModels(ctx context.Context) ([]string, error) {
	resp, err := o.client.ListModels(ctx)
	if err != nil {
		return nil, &BackendUnreachableError{Endpoint: "api.openai.com", Err: err}
	}
	names := make([]string, 0, len(resp.Models))
	for _, m := range resp.Models {
		names = append(names, m.ID)
	}
	return names, nil
}

func classifyOpenAIStreamError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return &StreamTimeoutError{Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &StreamTimeoutError{Err: err}
	}
	return err
}

var _ LLMClient = (*OpenAIClient)(nil)
var _ ModelLister = (*OpenAIClient)(nil)
