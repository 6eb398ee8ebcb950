package rag

import (
	"context"
	"math"
)

// EmbeddingProvider 抽象不同向量模型/服务的统一接口
// 同一模型版本下结果必须可复现,检索层依赖这一前提
type EmbeddingProvider interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, query string) ([]float32, error)
	GetModel() string
	GetProviderName() string
}

// CosineSimilarity 计算余弦相似度,结果截断到 [0,1]
func CosineSimilarity(v1, v2 []float32) float64 {
	if len(v1) == 0 || len(v2) == 0 || len(v1) != len(v2) {
		return 0
	}

	var dot, norm1, norm2 float64
	for i := range v1 {
		dot += float64(v1[i]) * float64(v2[i])
		norm1 += float64(v1[i]) * float64(v1[i])
		norm2 += float64(v2[i]) * float64(v2[i])
	}

	if norm1 == 0 || norm2 == 0 {
		return 0
	}

	sim := dot / (math.Sqrt(norm1) * math.Sqrt(norm2))
	return math.Max(0, math.Min(1, sim))
}
