package llm

import (
	"context"
	"errors"
	"time"
)

var (
	ErrMissingAPIKey = errors.New("llm: api key is required")
	ErrNoChoices     = errors.New("llm: response has no choices")
)

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

type Request struct {
	System   string
	Messages []Message
}

// Completer is the external completion endpoint: one blocking call per
// query, batch response only.
type Completer interface {
	Complete(ctx context.Context, req Request) (string, error)
}

type Config struct {
	BaseURL     string        `yaml:"baseURL"`
	APIKeyEnv   string        `yaml:"apiKeyEnv"`
	Model       string        `yaml:"model"`
	Temperature float64       `yaml:"temperature"`
	MaxTokens   int           `yaml:"maxTokens"`
	Timeout     time.Duration `yaml:"timeout"`
}

func DefaultConfig() Config {
	return Config{
		BaseURL:     "https://api.groq.com/openai/v1",
		APIKeyEnv:   "GROQ_API_KEY",
		Model:       "llama-3.1-8b-instant",
		Temperature: 0.7,
		MaxTokens:   1000,
		Timeout:     60 * time.Second,
	}
}
