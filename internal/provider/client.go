package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"relaychat-backend/internal/config"
)

// Compile-time check to ensure Client implements Provider
var _ Provider = (*Client)(nil)

// Client talks to a chat-completions compatible endpoint.
type Client struct {
	baseURL    string
	apiKey     string
	timeout    time.Duration
	httpClient *http.Client
}

func NewClient(cfg *config.Config) *Client {
	return &Client{
		baseURL: cfg.ProviderBaseURL,
		apiKey:  cfg.ProviderAPIKey,
		timeout: cfg.ProviderTimeout,
		// No client-level timeout: the per-call deadline below bounds both
		// the blocking call and the full lifetime of a stream.
		httpClient: &http.Client{},
	}
}

type chatCompletionRequest struct {
	Model    string        `json:"model"`
	Messages []ChatMessage `json:"messages"`
	Stream   bool          `json:"stream,omitempty"`
}

type chatCompletionResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message ChatMessage `json:"message"`
	} `json:"choices"`
	Usage Usage `json:"usage"`
}

// Complete performs the single blocking round trip. Transport failures,
// non-2xx statuses, deadline expiry and malformed envelopes all surface as
// ErrUnavailable so the caller applies one recovery policy.
func (c *Client) Complete(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.post(ctx, chatCompletionRequest{Model: req.Model, Messages: req.Messages})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		log.Warn().Int("status", resp.StatusCode).Str("model", req.Model).Msg("provider returned error status")
		return nil, fmt.Errorf("%w: status %d: %s", ErrUnavailable, resp.StatusCode, bytes.TrimSpace(body))
	}

	var envelope chatCompletionResponse
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, fmt.Errorf("%w: malformed response envelope: %v", ErrUnavailable, err)
	}
	if len(envelope.Choices) == 0 {
		return nil, fmt.Errorf("%w: response contained no choices", ErrUnavailable)
	}

	model := envelope.Model
	if model == "" {
		model = req.Model
	}

	return &ChatResponse{
		Content: envelope.Choices[0].Message.Content,
		Model:   model,
		Usage:   envelope.Usage,
	}, nil
}

// Stream opens the chunked event stream. The returned ChatStream owns the
// response body and the per-call deadline; Close releases both.
func (c *Client) Stream(ctx context.Context, req ChatRequest) (ChatStream, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)

	resp, err := c.post(ctx, chatCompletionRequest{Model: req.Model, Messages: req.Messages, Stream: true})
	if err != nil {
		cancel()
		return nil, err
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		resp.Body.Close()
		cancel()
		log.Warn().Int("status", resp.StatusCode).Str("model", req.Model).Msg("provider refused stream")
		return nil, fmt.Errorf("%w: status %d: %s", ErrUnavailable, resp.StatusCode, bytes.TrimSpace(body))
	}

	return newSSEStream(resp.Body, cancel), nil
}

func (c *Client) post(ctx context.Context, payload chatCompletionRequest) (*http.Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal provider request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build provider request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return resp, nil
}
