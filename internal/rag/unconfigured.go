package rag

import "context"

// UnconfiguredEmbeddingProvider 缺少配置时的占位实现
// 所有调用返回同一个 ConfigurationError,由回答流水线转换为拒答
type UnconfiguredEmbeddingProvider struct {
	err *ConfigurationError
}

// NewUnconfiguredEmbeddingProvider 创建占位向量提供者
func NewUnconfiguredEmbeddingProvider(message string) *UnconfiguredEmbeddingProvider {
	return &UnconfiguredEmbeddingProvider{err: NewConfigurationError(message)}
}

func (p *UnconfiguredEmbeddingProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	return nil, p.err
}

func (p *UnconfiguredEmbeddingProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return nil, p.err
}

func (p *UnconfiguredEmbeddingProvider) EmbedQuery(ctx context.Context, query string) ([]float32, error) {
	return nil, p.err
}

func (p *UnconfiguredEmbeddingProvider) GetModel() string { return "unconfigured" }

func (p *UnconfiguredEmbeddingProvider) GetProviderName() string { return "unconfigured" }

// UnconfiguredLLMProvider 缺少配置时的 LLM 占位实现
type UnconfiguredLLMProvider struct {
	err *ConfigurationError
}

// NewUnconfiguredLLMProvider 创建占位 LLM 提供者
func NewUnconfiguredLLMProvider(message string) *UnconfiguredLLMProvider {
	return &UnconfiguredLLMProvider{err: NewConfigurationError(message)}
}

func (p *UnconfiguredLLMProvider) GenerateWithUsage(ctx context.Context, systemPrompt, userPrompt string) (string, *Usage, error) {
	return "", nil, p.err
}

func (p *UnconfiguredLLMProvider) Name() string { return "unconfigured" }
