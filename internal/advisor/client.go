// Package advisor is the LLM advisor gateway: it assembles the
// prompt, calls the configured provider, and parses/validates the reply
// into a domain.Analysis.
package advisor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// Provider selects which LLM backend Transport talks to.
type Provider string

const (
	ProviderClaude   Provider = "claude"
	ProviderOpenAI   Provider = "openai"
	ProviderDeepSeek Provider = "deepseek"
)

// TransportConfig configures a Transport.
type TransportConfig struct {
	Provider    Provider
	APIKey      string
	Model       string
	MaxTokens   int
	Temperature float64
}

// DefaultTransportConfig returns conservative completion settings.
func DefaultTransportConfig() TransportConfig {
	return TransportConfig{
		Provider:    ProviderClaude,
		Model:       "claude-sonnet-4-20250514",
		MaxTokens:   1024,
		Temperature: 0.2,
	}
}

// Transport turns a prompt into a raw completion string. The deadline
// is carried as a context so callers (the Gateway) control cancellation
// and retries.
type Transport struct {
	config     TransportConfig
	httpClient *http.Client
}

// NewTransport builds a provider-specific HTTP transport.
func NewTransport(cfg TransportConfig) *Transport {
	return &Transport{config: cfg, httpClient: &http.Client{}}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type claudeRequest struct {
	Model       string        `json:"model"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature,omitempty"`
	System      string        `json:"system,omitempty"`
	Messages    []chatMessage `json:"messages"`
}

type claudeResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

type openAIRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature,omitempty"`
}

type openAIResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// Complete sends systemPrompt+userPrompt to the configured provider and
// returns the raw reply text. ctx's deadline governs the HTTP call;
// a context deadline exceeded surfaces as a wrapped context.DeadlineExceeded
// so the Gateway can classify it as TransientAdvisorError.
func (t *Transport) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	switch t.config.Provider {
	case ProviderClaude:
		return t.completeClaude(ctx, systemPrompt, userPrompt)
	case ProviderOpenAI:
		return t.completeOpenAICompatible(ctx, "https://api.openai.com/v1/chat/completions", systemPrompt, userPrompt)
	case ProviderDeepSeek:
		return t.completeOpenAICompatible(ctx, "https://api.deepseek.com/v1/chat/completions", systemPrompt, userPrompt)
	default:
		return "", fmt.Errorf("advisor: unsupported provider %q", t.config.Provider)
	}
}

func (t *Transport) completeClaude(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	req := claudeRequest{
		Model:       t.config.Model,
		MaxTokens:   t.config.MaxTokens,
		Temperature: t.config.Temperature,
		System:      systemPrompt,
		Messages:    []chatMessage{{Role: "user", Content: userPrompt}},
	}

	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("advisor: marshal claude request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, "https://api.anthropic.com/v1/messages", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("advisor: build claude request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", t.config.APIKey)
	httpReq.Header.Set("anthropic-version", "2023-06-01")

	respBody, err := t.do(httpReq)
	if err != nil {
		return "", err
	}

	var resp claudeResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return "", fmt.Errorf("advisor: unmarshal claude response: %w", err)
	}
	if resp.Error != nil {
		return "", fmt.Errorf("advisor: claude API error: %s - %s", resp.Error.Type, resp.Error.Message)
	}
	if len(resp.Content) == 0 {
		return "", fmt.Errorf("advisor: empty claude response")
	}
	return resp.Content[0].Text, nil
}

func (t *Transport) completeOpenAICompatible(ctx context.Context, url, systemPrompt, userPrompt string) (string, error) {
	req := openAIRequest{
		Model:       t.config.Model,
		MaxTokens:   t.config.MaxTokens,
		Temperature: t.config.Temperature,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
	}

	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("advisor: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("advisor: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+t.config.APIKey)

	respBody, err := t.do(httpReq)
	if err != nil {
		return "", err
	}

	var resp openAIResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return "", fmt.Errorf("advisor: unmarshal response: %w", err)
	}
	if resp.Error != nil {
		return "", fmt.Errorf("advisor: API error: %s - %s", resp.Error.Type, resp.Error.Message)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("advisor: empty response")
	}
	return resp.Choices[0].Message.Content, nil
}

func (t *Transport) do(req *http.Request) ([]byte, error) {
	resp, err := t.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("advisor: send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("advisor: read response: %w", err)
	}
	return body, nil
}
