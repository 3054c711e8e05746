package gateway

import (
	"context"
	"errors"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

const scriptSystemPrompt = "You write narration scripts for short vertical videos. " +
	"Reply with the spoken script only: no title, no stage directions, no emojis. " +
	"Keep it under 90 words and make the first sentence a hook."

// OpenAIScriptWriter generates scripts with a chat completion model.
type OpenAIScriptWriter struct {
	client *openai.Client
	model  string
}

// NewOpenAIScriptWriter builds a writer. baseURL may be empty for the public API.
func NewOpenAIScriptWriter(apiKey, baseURL, model string) *OpenAIScriptWriter {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = strings.TrimRight(baseURL, "/")
	}
	if model == "" {
		model = openai.GPT4oMini
	}
	return &OpenAIScriptWriter{client: openai.NewClientWithConfig(cfg), model: model}
}

// GenerateScript implements ScriptWriter.
func (w *OpenAIScriptWriter) GenerateScript(ctx context.Context, topic string) (string, error) {
	resp, err := w.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: w.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: scriptSystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: "Topic: " + topic},
		},
		Temperature: 0.8,
	})
	if err != nil {
		return "", fmt.Errorf("script completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("script completion: no choices in response")
	}
	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return "", errors.New("script completion: empty content")
	}
	return text, nil
}

var _ ScriptWriter = (*OpenAIScriptWriter)(nil)
