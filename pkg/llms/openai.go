package llms

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/eduprompt/eduprompt/pkg/config"
)

// ModelAlias is the logical model name exposed to clients.
type ModelAlias string

const (
	ModelBase  ModelAlias = "base"
	ModelFlash ModelAlias = "flash"
)

// Valid reports whether the alias is one of the configured logical names.
func (a ModelAlias) Valid() bool {
	return a == ModelBase || a == ModelFlash
}

// Options tunes a single Execute call. Zero values fall back to the
// gateway configuration.
type Options struct {
	Model        ModelAlias
	MaxTokens    int
	Temperature  *float64
	SystemPrompt string
}

// Usage reports upstream token accounting.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Result is a successful gateway response.
type Result struct {
	Text  string `json:"text"`
	Model string `json:"model"`
	Usage Usage  `json:"usage"`
}

// chatRequest is the request payload for the chat-completions endpoint.
type chatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Temperature float64   `json:"temperature"`
}

// Message represents a message in the conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// chatResponse is the response from the chat-completions endpoint.
type chatResponse struct {
	Choices []choice  `json:"choices"`
	Usage   Usage     `json:"usage"`
	Error   *apiError `json:"error,omitempty"`
}

type choice struct {
	Message      Message `json:"message"`
	FinishReason string  `json:"finish_reason"`
}

type apiError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    string `json:"code"`
}

// errorResponse is the error envelope on non-200 upstream responses.
type errorResponse struct {
	Error *apiError `json:"error"`
}

// Gateway is a thin client for an OpenAI-compatible chat-completions
// endpoint. It maps model aliases to upstream identifiers and classifies
// failures as upstream, timeout, or network errors.
type Gateway struct {
	cfg    *config.LLMConfig
	client *http.Client
}

// NewGateway creates a gateway from config.
func NewGateway(cfg *config.LLMConfig) (*Gateway, error) {
	if cfg.BaseURL == "" || cfg.APIKey == "" {
		return nil, fmt.Errorf("llm base URL and API key are required")
	}
	return &Gateway{
		cfg: cfg,
		client: &http.Client{
			Timeout: time.Duration(cfg.Timeout) * time.Second,
		},
	}, nil
}

// ResolveModel maps a model alias to its upstream identifier. Unknown
// aliases resolve to the base model.
func (g *Gateway) ResolveModel(alias ModelAlias) string {
	if alias == ModelFlash {
		return g.cfg.ModelFlash
	}
	return g.cfg.ModelBase
}

// Models returns the alias-to-identifier mapping.
func (g *Gateway) Models() map[string]string {
	return map[string]string{
		string(ModelBase):  g.cfg.ModelBase,
		string(ModelFlash): g.cfg.ModelFlash,
	}
}

// Execute sends one prompt to the upstream model and returns the first
// choice's content. Failures are always a *Error carrying the
// classification.
func (g *Gateway) Execute(ctx context.Context, prompt string, opts Options) (*Result, error) {
	request := g.buildRequest(prompt, opts)

	response, err := g.makeRequest(ctx, request)
	if err != nil {
		return nil, err
	}

	if response.Error != nil {
		return nil, newUpstreamError(0, response.Error.Message, response.Error.Code)
	}

	if len(response.Choices) == 0 {
		return nil, newUpstreamError(0, "no response choices returned", "")
	}

	return &Result{
		Text:  response.Choices[0].Message.Content,
		Model: request.Model,
		Usage: response.Usage,
	}, nil
}

// buildRequest assembles the upstream payload, applying config defaults
// for anything the options leave unset.
func (g *Gateway) buildRequest(prompt string, opts Options) chatRequest {
	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = g.cfg.MaxTokens
	}

	temperature := *g.cfg.Temperature
	if opts.Temperature != nil {
		temperature = *opts.Temperature
	}

	systemPrompt := opts.SystemPrompt
	if systemPrompt == "" {
		systemPrompt = g.cfg.SystemPrompt
	}

	return chatRequest{
		Model: g.ResolveModel(opts.Model),
		Messages: []Message{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: prompt},
		},
		MaxTokens:   maxTokens,
		Temperature: temperature,
	}
}

// makeRequest performs the HTTP call and classifies every failure path.
func (g *Gateway) makeRequest(ctx context.Context, request chatRequest) (*chatResponse, error) {
	jsonData, err := json.Marshal(request)
	if err != nil {
		return nil, newNetworkError(fmt.Errorf("failed to marshal request: %w", err))
	}

	url := strings.TrimSuffix(g.cfg.BaseURL, "/") + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, newNetworkError(fmt.Errorf("failed to create request: %w", err))
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+g.cfg.APIKey)

	resp, err := g.client.Do(req)
	if err != nil {
		if isTimeout(ctx, err) {
			slog.Warn("LLM request timed out", "model", request.Model)
			return nil, newTimeoutError(err)
		}
		slog.Warn("LLM request failed", "model", request.Model, "error", err)
		return nil, newNetworkError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)

		// Surface the upstream message verbatim when the body carries one.
		var upstream errorResponse
		if err := json.Unmarshal(body, &upstream); err == nil && upstream.Error != nil {
			return nil, newUpstreamError(resp.StatusCode, upstream.Error.Message, upstream.Error.Code)
		}
		return nil, newUpstreamError(resp.StatusCode, strings.TrimSpace(string(body)), "")
	}

	var response chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, newUpstreamError(resp.StatusCode, "failed to decode response", "")
	}

	return &response, nil
}

// isTimeout distinguishes a deadline from other transport failures.
func isTimeout(ctx context.Context, err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return true
	}
	var timeoutErr interface{ Timeout() bool }
	return errors.As(err, &timeoutErr) && timeoutErr.Timeout()
}
