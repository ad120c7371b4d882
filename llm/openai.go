package llm

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/sashabaranov/go-openai"
)

// Client speaks the OpenAI compatible chat completions API (Groq by
// default).
type Client struct {
	client      *openai.Client
	model       string
	temperature float32
	maxTokens   int
}

func NewClient(cfg Config, apiKey string) (*Client, error) {
	if apiKey == "" {
		return nil, ErrMissingAPIKey
	}

	defaults := DefaultConfig()

	if cfg.BaseURL == "" {
		cfg.BaseURL = defaults.BaseURL
	}

	if cfg.Model == "" {
		cfg.Model = defaults.Model
	}

	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = defaults.MaxTokens
	}

	if cfg.Timeout <= 0 {
		cfg.Timeout = defaults.Timeout
	}

	config := openai.DefaultConfig(apiKey)
	config.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	config.HTTPClient = &http.Client{Timeout: cfg.Timeout}

	return &Client{
		client:      openai.NewClientWithConfig(config),
		model:       cfg.Model,
		temperature: float32(cfg.Temperature),
		maxTokens:   cfg.MaxTokens,
	}, nil
}

func (c *Client) Complete(ctx context.Context, req Request) (string, error) {
	messages := make([]openai.ChatCompletionMessage, 0, len(req.Messages)+1)
	if req.System != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.System,
		})
	}

	for _, m := range req.Messages {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    string(m.Role),
			Content: m.Content,
		})
	}

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    messages,
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
		TopP:        1,
		Stream:      false,
	})
	if err != nil {
		return "", fmt.Errorf("chat completion failed: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", ErrNoChoices
	}

	return resp.Choices[0].Message.Content, nil
}
