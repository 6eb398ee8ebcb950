package rag

import (
	"context"
	"strings"

	"github.com/sashabaranov/go-openai"
)

// OpenAIProvider OpenAI 文本生成实现,使用单一固定模型
type OpenAIProvider struct {
	client      *openai.Client
	model       string
	temperature float32
	maxTokens   int
}

// NewOpenAIProvider 创建 OpenAI 生成客户端
// 温度固定为 0 以获得最大确定性,降低幻觉概率
func NewOpenAIProvider(apiKey, model string) (*OpenAIProvider, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, NewConfigurationError("OpenAI API Key 未配置")
	}
	if model == "" {
		model = openai.GPT3Dot5Turbo
	}

	return &OpenAIProvider{
		client:      openai.NewClient(apiKey),
		model:       model,
		temperature: 0,
		maxTokens:   1024,
	}, nil
}

// GenerateWithUsage 生成文本并返回 Token 消耗
func (p *OpenAIProvider) GenerateWithUsage(ctx context.Context, systemPrompt, userPrompt string) (string, *Usage, error) {
	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: p.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: userPrompt},
		},
		Temperature: p.temperature,
		MaxTokens:   p.maxTokens,
	})
	if err != nil {
		return "", nil, &ProviderError{Provider: "openai", Model: p.model, Err: err}
	}
	if len(resp.Choices) == 0 {
		return "", nil, &ProviderError{Provider: "openai", Model: p.model, Err: errEmptyCompletion}
	}

	usage := &Usage{
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
		TotalTokens:      resp.Usage.TotalTokens,
		ModelUsed:        p.model,
	}

	return resp.Choices[0].Message.Content, usage, nil
}

// Name 返回提供商名称
func (p *OpenAIProvider) Name() string {
	return "openai"
}
