package rag

import "context"

// Vector 描述一条需要写入向量存储的知识片段
type Vector struct {
	ChunkID   string
	Content   string
	Embedding []float32
	Metadata  *ChunkMetadata
}

// ChunkFilter 元数据过滤条件,多个字段之间为 AND 关系
// TenantID 是强制隔离字段:检索与删除都必须携带,向量存储层拒绝空值
type ChunkFilter struct {
	TenantID   string
	KBID       string
	UserID     string
	DocumentID string
	FileName   string
}

// Conditions 展开为字段名到值的精确匹配条件,空值字段不参与过滤
func (f *ChunkFilter) Conditions() map[string]string {
	conds := make(map[string]string, 5)
	if f.TenantID != "" {
		conds["tenant_id"] = f.TenantID
	}
	if f.KBID != "" {
		conds["kb_id"] = f.KBID
	}
	if f.UserID != "" {
		conds["user_id"] = f.UserID
	}
	if f.DocumentID != "" {
		conds["document_id"] = f.DocumentID
	}
	if f.FileName != "" {
		conds["file_name"] = f.FileName
	}
	return conds
}

// RetrievalResult 描述一次相似度检索的返回结果,仅在查询期间存在,不落盘
type RetrievalResult struct {
	ChunkID         string         `json:"chunk_id"`
	Content         string         `json:"content"`
	Metadata        *ChunkMetadata `json:"metadata"`
	SimilarityScore float64        `json:"similarity_score"`
}

// VectorStoreStats 向量存储的统计信息
type VectorStoreStats struct {
	TotalChunks int64
	FileNames   []string
}

// VectorStore 抽象向量写入、过滤检索与过滤删除,可由不同后端实现(Qdrant、pgvector 等)
// 相似度分数归一化到 [0,1],跨调用可比;结果按相似度降序,长度不超过 topK
type VectorStore interface {
	Upsert(ctx context.Context, vectors []*Vector) error
	Search(ctx context.Context, queryVector []float32, topK int, filter *ChunkFilter) ([]*RetrievalResult, error)
	DeleteByFilter(ctx context.Context, filter *ChunkFilter) (int64, error)
	Stats(ctx context.Context, filter *ChunkFilter) (*VectorStoreStats, error)
	Clear(ctx context.Context) error
}
