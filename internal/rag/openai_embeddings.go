package rag

import (
	"context"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"
)

// OpenAIEmbeddingProvider OpenAI 向量化服务提供者
type OpenAIEmbeddingProvider struct {
	client *openai.Client
	model  string // 默认使用 text-embedding-3-small
}

// NewOpenAIEmbeddingProvider 创建 OpenAI 向量化提供者
func NewOpenAIEmbeddingProvider(apiKey, model string) (*OpenAIEmbeddingProvider, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, NewConfigurationError("OpenAI API Key 未配置")
	}
	if model == "" {
		model = string(openai.SmallEmbedding3)
	}

	return &OpenAIEmbeddingProvider{
		client: openai.NewClient(apiKey),
		model:  model,
	}, nil
}

// Embed 将单条文本转换为向量
func (p *OpenAIEmbeddingProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, NewValidationError("text", "不能向量化空文本")
	}

	resp, err := p.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: []string{text},
		Model: openai.EmbeddingModel(p.model),
	})
	if err != nil {
		return nil, fmt.Errorf("调用 OpenAI Embeddings API 失败: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("OpenAI API 返回空向量")
	}

	return resp.Data[0].Embedding, nil
}

// EmbedBatch 批量向量化文本
// OpenAI 单次请求最多 2048 条输入,超过时分批处理
func (p *OpenAIEmbeddingProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, NewValidationError("texts", "不能向量化空列表")
	}
	for i, t := range texts {
		if strings.TrimSpace(t) == "" {
			return nil, NewValidationError("texts", fmt.Sprintf("第 %d 条文本为空", i))
		}
	}

	const batchSize = 2048
	allEmbeddings := make([][]float32, 0, len(texts))

	for i := 0; i < len(texts); i += batchSize {
		end := i + batchSize
		if end > len(texts) {
			end = len(texts)
		}

		embeddings, err := p.embedBatchInternal(ctx, texts[i:end])
		if err != nil {
			return nil, fmt.Errorf("批量向量化失败 (batch %d-%d): %w", i, end, err)
		}
		allEmbeddings = append(allEmbeddings, embeddings...)
	}

	return allEmbeddings, nil
}

// EmbedQuery 向量化检索查询
// 当前模型查询与文档共用同一编码,保留独立入口便于替换非对称模型
func (p *OpenAIEmbeddingProvider) EmbedQuery(ctx context.Context, query string) ([]float32, error) {
	return p.Embed(ctx, query)
}

func (p *OpenAIEmbeddingProvider) embedBatchInternal(ctx context.Context, texts []string) ([][]float32, error) {
	resp, err := p.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: texts,
		Model: openai.EmbeddingModel(p.model),
	})
	if err != nil {
		return nil, fmt.Errorf("调用 OpenAI Embeddings API 失败: %w", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("OpenAI API 返回向量数量不匹配: 期望 %d 实际 %d", len(texts), len(resp.Data))
	}

	embeddings := make([][]float32, len(resp.Data))
	for i, data := range resp.Data {
		embeddings[i] = data.Embedding
	}
	return embeddings, nil
}

// GetDimension 获取向量维度
func (p *OpenAIEmbeddingProvider) GetDimension() int {
	switch p.model {
	case string(openai.LargeEmbedding3):
		return 3072
	case string(openai.SmallEmbedding3), string(openai.AdaEmbeddingV2):
		return 1536
	default:
		return 1536
	}
}

// GetModel 获取当前使用的模型
func (p *OpenAIEmbeddingProvider) GetModel() string {
	return p.model
}

// GetProviderName 获取提供商名称
func (p *OpenAIEmbeddingProvider) GetProviderName() string {
	return "openai"
}
