package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

// OpenAICompatible talks to OpenAI or any OpenAI-compatible endpoint (Groq).
type OpenAICompatible struct {
	model model.BaseChatModel
}

// NewOpenAICompatible creates a chat model. An empty baseURL targets OpenAI.
func NewOpenAICompatible(ctx context.Context, apiKey, baseURL, modelName string, timeout time.Duration) (*OpenAICompatible, error) {
	temperature := float32(defaultTemperature)
	maxTokens := defaultMaxTokens
	cm, err := openai.NewChatModel(ctx, &openai.ChatModelConfig{
		APIKey:      apiKey,
		BaseURL:     baseURL,
		Model:       modelName,
		Timeout:     timeout,
		Temperature: &temperature,
		MaxTokens:   &maxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create chat model %s: %w", modelName, err)
	}
	return &OpenAICompatible{model: cm}, nil
}

func (c *OpenAICompatible) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	var msgs []*schema.Message
	if systemPrompt != "" {
		msgs = append(msgs, schema.SystemMessage(systemPrompt))
	}
	msgs = append(msgs, schema.UserMessage(userPrompt))

	resp, err := c.model.Generate(ctx, msgs)
	if err != nil {
		return "", err
	}
	return resp.Content, nil
}
