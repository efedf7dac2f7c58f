package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"threadlens/ports"
)

// AnthropicClient implements the provider port on top of the official
// Anthropic SDK. Selected with LLM_PROVIDER=anthropic.
type AnthropicClient struct {
	client    anthropic.Client
	model     string
	maxTokens int
}

// NewAnthropicClient creates an Anthropic-backed provider.
func NewAnthropicClient(apiKey, model string, maxTokens int) *AnthropicClient {
	return &AnthropicClient{
		client:    anthropic.NewClient(option.WithAPIKey(apiKey), option.WithMaxRetries(0)),
		model:     model,
		maxTokens: maxTokens,
	}
}

var _ ports.LLMProvider = (*AnthropicClient)(nil)

// CompleteStructured asks for JSON output and unmarshals it into result.
// Anthropic has no enforced JSON mode, so the system prompt is extended with
// a JSON directive and the reply is cleaned before parsing.
func (c *AnthropicClient) CompleteStructured(ctx context.Context, systemPrompt, userPrompt string, result interface{}) error {
	system := systemPrompt + "\n\nRespond with a single valid JSON object and nothing else."
	content, err := c.complete(ctx, system, userPrompt)
	if err != nil {
		return err
	}

	content = cleanJSONContent(content)
	if err := json.Unmarshal([]byte(content), result); err != nil {
		log.Printf("[Anthropic] Failed to unmarshal structured response: %v", err)
		return fmt.Errorf("failed to parse structured response: %w", err)
	}
	return nil
}

// CompleteText makes a plain message call.
func (c *AnthropicClient) CompleteText(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	return c.complete(ctx, systemPrompt, userPrompt)
}

func (c *AnthropicClient) complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	msg, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: int64(c.maxTokens),
		System: []anthropic.TextBlockParam{
			{Text: systemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(userPrompt)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("anthropic request failed: %w", err)
	}

	var content string
	for _, block := range msg.Content {
		if block.Type == "text" {
			content += block.Text
		}
	}
	if content == "" {
		return "", fmt.Errorf("no text content in anthropic response")
	}
	return content, nil
}
