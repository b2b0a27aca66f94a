package processor

import (
	"context"
	"errors"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

const defaultSystemPrompt = "You are a helpful AI agent. Provide concise, accurate, and useful responses."

// OpenAIConfig holds settings for the OpenAI-backed processor.
type OpenAIConfig struct {
	APIKey       string
	Model        string
	MaxTokens    int
	Temperature  float32
	SystemPrompt string
}

// OpenAIProcessor runs job inputs through a chat completion.
type OpenAIProcessor struct {
	client *openai.Client
	cfg    OpenAIConfig
}

// NewOpenAI creates an OpenAI-backed processor with sane defaults.
func NewOpenAI(cfg OpenAIConfig) *OpenAIProcessor {
	if cfg.Model == "" {
		cfg.Model = openai.GPT4oMini
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 500
	}
	if cfg.Temperature == 0 {
		cfg.Temperature = 0.7
	}
	if cfg.SystemPrompt == "" {
		cfg.SystemPrompt = defaultSystemPrompt
	}

	return &OpenAIProcessor{
		client: openai.NewClient(cfg.APIKey),
		cfg:    cfg,
	}
}

// Execute implements Processor.
func (p *OpenAIProcessor) Execute(ctx context.Context, input string) (string, error) {
	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: p.cfg.Model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: p.cfg.SystemPrompt,
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: input,
			},
		},
		MaxTokens:   p.cfg.MaxTokens,
		Temperature: p.cfg.Temperature,
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", errors.New("empty completion response")
	}

	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}
