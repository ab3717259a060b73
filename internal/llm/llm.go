package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// Provider is the interface for LLM providers.
type Provider interface {
	Generate(ctx context.Context, prompt string, maxTokens int) (string, error)
	IsConfigured() bool
}

// Embedder is the interface for generating embeddings.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float64, error)
}

// StatusError reports a non-2xx answer from the API.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("LLM API returned %d: %s", e.StatusCode, e.Message)
}

// OpenAIProvider talks to any OpenAI-compatible chat completions endpoint
// (OpenAI, Groq, Ollama's /v1).
type OpenAIProvider struct {
	Model       string
	BaseURL     string
	Temperature float32
	apiKey      string
	client      *openai.Client
}

// NewOpenAIProvider creates a provider for baseURL. An empty baseURL uses
// the OpenAI default.
func NewOpenAIProvider(baseURL, model, apiKey string, temperature float32) *OpenAIProvider {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = strings.TrimRight(baseURL, "/")
	}
	return &OpenAIProvider{
		Model:       model,
		BaseURL:     cfg.BaseURL,
		Temperature: temperature,
		apiKey:      apiKey,
		client:      openai.NewClientWithConfig(cfg),
	}
}

// IsConfigured reports whether requests can be sent. Local endpoints need no key.
func (o *OpenAIProvider) IsConfigured() bool {
	return o.apiKey != "" || isLocal(o.BaseURL)
}

// Generate sends a prompt and returns the first choice's content.
func (o *OpenAIProvider) Generate(ctx context.Context, prompt string, maxTokens int) (string, error) {
	if !o.IsConfigured() {
		return "", fmt.Errorf("LLM API key not configured")
	}

	slog.Debug("generating via chat completions", "model", o.Model, "base_url", o.BaseURL)
	req := openai.ChatCompletionRequest{
		Model: o.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		MaxTokens:   maxTokens,
		Temperature: o.Temperature,
	}

	resp, err := o.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", wrapAPIError(err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no choices in LLM response")
	}
	slog.Debug("received chat completion", "finish_reason", resp.Choices[0].FinishReason)
	return resp.Choices[0].Message.Content, nil
}

const systemPrompt = "You are an expert media analyst. Respond with a single JSON object and nothing else."

// OpenAIEmbedder generates embeddings via an OpenAI-compatible endpoint.
type OpenAIEmbedder struct {
	Model  string
	client *openai.Client
}

// NewOpenAIEmbedder creates an embedder for baseURL.
func NewOpenAIEmbedder(baseURL, model, apiKey string) *OpenAIEmbedder {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = strings.TrimRight(baseURL, "/")
	}
	return &OpenAIEmbedder{Model: model, client: openai.NewClientWithConfig(cfg)}
}

// Embed generates embeddings for the given texts, in input order.
func (e *OpenAIEmbedder) Embed(ctx context.Context, texts []string) ([][]float64, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: texts,
		Model: openai.EmbeddingModel(e.Model),
	})
	if err != nil {
		return nil, wrapAPIError(err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("expected %d embeddings, got %d", len(texts), len(resp.Data))
	}

	out := make([][]float64, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(out) {
			return nil, fmt.Errorf("embedding index %d out of range", d.Index)
		}
		vec := make([]float64, len(d.Embedding))
		for i, v := range d.Embedding {
			vec[i] = float64(v)
		}
		out[d.Index] = vec
	}
	return out, nil
}

// CreateProvider creates the analysis provider, or nil when it cannot be used.
func CreateProvider(baseURL, model, apiKey string, temperature float32) Provider {
	p := NewOpenAIProvider(baseURL, model, apiKey, temperature)
	if !p.IsConfigured() {
		slog.Warn("no LLM API key set; analysis is unavailable", "base_url", p.BaseURL)
		return nil
	}
	slog.Info("using LLM", "model", model, "base_url", p.BaseURL)
	return p
}

func wrapAPIError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode != 0 {
		return &StatusError{StatusCode: apiErr.HTTPStatusCode, Message: apiErr.Message}
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return &StatusError{StatusCode: reqErr.HTTPStatusCode, Message: reqErr.Error()}
	}
	return fmt.Errorf("LLM API error: %w", err)
}

func isLocal(baseURL string) bool {
	u, err := url.Parse(baseURL)
	if err != nil {
		return false
	}
	switch u.Hostname() {
	case "localhost", "127.0.0.1", "::1":
		return true
	}
	return false
}
