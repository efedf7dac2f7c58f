// Package llm provides the production text-intelligence adapters. Both
// implementations satisfy ports.LLMProvider: structured calls return typed
// JSON parsed into caller-supplied result structs, text calls return the
// raw completion.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"threadlens/ports"
)

const defaultOpenAIBaseURL = "https://api.openai.com/v1"

// OpenAIClient calls the OpenAI chat completions API directly over HTTP.
type OpenAIClient struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float64
	MaxTokens   int

	httpClient *http.Client
}

// NewOpenAIClient creates an OpenAI-backed provider.
func NewOpenAIClient(apiKey, model string, temperature float64, maxTokens int) *OpenAIClient {
	return &OpenAIClient{
		APIKey:      apiKey,
		BaseURL:     defaultOpenAIBaseURL,
		Model:       model,
		Temperature: temperature,
		MaxTokens:   maxTokens,
		httpClient:  &http.Client{},
	}
}

var _ ports.LLMProvider = (*OpenAIClient)(nil)

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatRequest struct {
	Model               string          `json:"model"`
	Messages            []chatMessage   `json:"messages"`
	Temperature         float64         `json:"temperature"`
	MaxCompletionTokens int             `json:"max_completion_tokens,omitempty"`
	ResponseFormat      *responseFormat `json:"response_format,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// CompleteStructured makes a JSON-mode call and unmarshals the reply into
// result. Markdown fences and conversational chatter around the JSON are
// stripped before parsing; a reply that still fails to parse is a
// recoverable error for the caller, not a crash.
func (c *OpenAIClient) CompleteStructured(ctx context.Context, systemPrompt, userPrompt string, result interface{}) error {
	content, err := c.complete(ctx, systemPrompt, userPrompt, true)
	if err != nil {
		return err
	}

	content = cleanJSONContent(content)
	if err := json.Unmarshal([]byte(content), result); err != nil {
		log.Printf("[OpenAI] Failed to unmarshal structured response: %v", err)
		return fmt.Errorf("failed to parse structured response: %w", err)
	}
	return nil
}

// CompleteText makes a plain chat completion call.
func (c *OpenAIClient) CompleteText(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	return c.complete(ctx, systemPrompt, userPrompt, false)
}

func (c *OpenAIClient) complete(ctx context.Context, systemPrompt, userPrompt string, jsonMode bool) (string, error) {
	reqBody := chatRequest{
		Model: c.Model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
		Temperature:         c.Temperature,
		MaxCompletionTokens: c.MaxTokens,
	}
	if jsonMode {
		reqBody.ResponseFormat = &responseFormat{Type: "json_object"}
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/chat/completions", bytes.NewBuffer(jsonData))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.APIKey)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return "", fmt.Errorf("request timed out after %v: %w", time.Since(start), err)
		}
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("OpenAI API error (status %d): %s", resp.StatusCode, string(body))
	}

	var parsed chatResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("failed to parse OpenAI response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("no choices in OpenAI response")
	}

	log.Printf("[OpenAI] Completion finished in %.2fs (%d bytes)", time.Since(start).Seconds(), len(parsed.Choices[0].Message.Content))
	return parsed.Choices[0].Message.Content, nil
}
