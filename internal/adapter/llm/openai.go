// Package llm provides chat-completion clients backing the LLM judge.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"rageval/internal/domain"
)

// OpenAIClient talks to an OpenAI-compatible chat completions endpoint
// (OpenAI, Ollama, vLLM, ...). Failures surface as domain.ProviderError
// or domain.ProviderTimeoutError; this layer never retries.
type OpenAIClient struct {
	apiKey  string
	model   string
	baseURL string
	timeout time.Duration
	client  *http.Client
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []chatChoice `json:"choices"`
	Error   *apiError    `json:"error,omitempty"`
}

type chatChoice struct {
	Message chatMessage `json:"message"`
}

type apiError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

func NewOpenAIClient(apiKeyEnv, model string, timeout time.Duration) (*OpenAIClient, error) {
	return NewOpenAICompatibleClient(apiKeyEnv, model, "https://api.openai.com/v1", timeout)
}

func NewOllamaClient(model, baseURL string, timeout time.Duration) (*OpenAIClient, error) {
	if baseURL == "" {
		baseURL = "http://localhost:11434/v1"
	}
	return &OpenAIClient{
		apiKey:  "ollama",
		model:   model,
		baseURL: baseURL,
		timeout: timeout,
		client:  &http.Client{},
	}, nil
}

func NewOpenAICompatibleClient(apiKeyEnv, model, baseURL string, timeout time.Duration) (*OpenAIClient, error) {
	apiKey := os.Getenv(apiKeyEnv)
	if apiKey == "" {
		return nil, fmt.Errorf("API key not found in environment variable: %s", apiKeyEnv)
	}
	return &OpenAIClient{
		apiKey:  apiKey,
		model:   model,
		baseURL: baseURL,
		timeout: timeout,
		client:  &http.Client{},
	}, nil
}

func (c *OpenAIClient) Generate(ctx context.Context, prompt string) (string, error) {
	start := time.Now()

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	// Temperature 0 keeps repeated judgments as stable as the provider
	// allows.
	reqBody := chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "user", Content: prompt},
		},
		Temperature: 0,
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return "", &domain.ProviderError{Provider: c.model, Err: fmt.Errorf("failed to marshal request: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/chat/completions", bytes.NewBuffer(jsonData))
	if err != nil {
		return "", &domain.ProviderError{Provider: c.model, Err: fmt.Errorf("failed to create request: %w", err)}
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return "", &domain.ProviderTimeoutError{Provider: c.model, Elapsed: time.Since(start)}
		}
		return "", &domain.ProviderError{Provider: c.model, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &domain.ProviderError{Provider: c.model, Err: fmt.Errorf("failed to read response: %w", err)}
	}

	if resp.StatusCode != http.StatusOK {
		return "", &domain.ProviderError{Provider: c.model, Err: fmt.Errorf("API returned status %d: %s", resp.StatusCode, string(body))}
	}

	var chatResp chatResponse
	if err := json.Unmarshal(body, &chatResp); err != nil {
		return "", &domain.ProviderError{Provider: c.model, Err: fmt.Errorf("failed to parse response: %w", err)}
	}

	if chatResp.Error != nil {
		return "", &domain.ProviderError{Provider: c.model, Err: fmt.Errorf("API error: %s", chatResp.Error.Message)}
	}

	if len(chatResp.Choices) == 0 {
		return "", &domain.ProviderError{Provider: c.model, Err: fmt.Errorf("API returned no choices")}
	}

	return chatResp.Choices[0].Message.Content, nil
}

func (c *OpenAIClient) ModelName() string {
	return c.model
}
