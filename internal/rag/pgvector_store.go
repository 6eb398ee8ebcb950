package rag

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/pgvector/pgvector-go"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// PGVectorStore 基于 PostgreSQL pgvector 扩展的向量存储实现
type PGVectorStore struct {
	db *gorm.DB
}

// NewPGVectorStore 创建 pgvector 存储实例
func NewPGVectorStore(db *gorm.DB) (*PGVectorStore, error) {
	store := &PGVectorStore{db: db}

	if err := db.Exec("CREATE EXTENSION IF NOT EXISTS vector").Error; err != nil {
		return nil, fmt.Errorf("确保 pgvector 扩展失败: %w", err)
	}

	return store, nil
}

// Upsert 批量写入向量,同一事务内完成,主键冲突时覆盖旧记录
func (s *PGVectorStore) Upsert(ctx context.Context, vectors []*Vector) error {
	if len(vectors) == 0 {
		return nil
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, vec := range vectors {
			if vec == nil || vec.Metadata == nil {
				continue
			}
			if vec.Metadata.TenantID == "" {
				return NewValidationError("tenant_id", "向量元数据缺少租户标识")
			}

			metaRaw, err := json.Marshal(vec.Metadata)
			if err != nil {
				return fmt.Errorf("序列化分块元数据失败: %w", err)
			}

			chunk := &KnowledgeChunk{
				ID:          vec.ChunkID,
				TenantID:    vec.Metadata.TenantID,
				KBID:        vec.Metadata.KBID,
				UserID:      vec.Metadata.UserID,
				DocumentID:  vec.Metadata.DocumentID,
				FileName:    vec.Metadata.FileName,
				Content:     vec.Content,
				ChunkIndex:  vec.Metadata.ChunkIndex,
				TokenCount:  vec.Metadata.TokenCount,
				Embedding:   pgvector.NewVector(vec.Embedding),
				MetadataRaw: metaRaw,
			}

			if err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "id"}},
				UpdateAll: true,
			}).Create(chunk).Error; err != nil {
				return fmt.Errorf("写入知识片段失败: %w", err)
			}
		}
		return nil
	})
}

// Search 执行余弦相似度检索
// 1 - (embedding <=> query) 即余弦相似度,<=> 是 pgvector 的余弦距离操作符
func (s *PGVectorStore) Search(ctx context.Context, queryVector []float32, topK int, filter *ChunkFilter) ([]*RetrievalResult, error) {
	if len(queryVector) == 0 {
		return nil, NewValidationError("query_vector", "查询向量不能为空")
	}
	if filter == nil || filter.TenantID == "" {
		return nil, NewValidationError("tenant_id", "检索必须携带租户标识")
	}
	if topK <= 0 {
		topK = 10
	}

	query := s.db.WithContext(ctx).
		Model(&KnowledgeChunk{}).
		Select("id, content, metadata, 1 - (embedding <=> ?) AS similarity", pgvector.NewVector(queryVector)).
		Where("deleted_at IS NULL")
	query = applyChunkFilter(query, filter)

	var rows []struct {
		ID         string  `gorm:"column:id"`
		Content    string  `gorm:"column:content"`
		Metadata   []byte  `gorm:"column:metadata"`
		Similarity float64 `gorm:"column:similarity"`
	}

	if err := query.
		Clauses(clause.OrderBy{Expression: clause.Expr{
			SQL:  "embedding <=> ?",
			Vars: []interface{}{pgvector.NewVector(queryVector)},
		}}).
		Limit(topK).
		Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("向量搜索失败: %w", err)
	}

	results := make([]*RetrievalResult, 0, len(rows))
	for _, r := range rows {
		var meta ChunkMetadata
		if err := json.Unmarshal(r.Metadata, &meta); err != nil {
			return nil, fmt.Errorf("解析分块元数据失败: %w", err)
		}

		score := r.Similarity
		if score < 0 {
			score = 0
		}
		if score > 1 {
			score = 1
		}

		results = append(results, &RetrievalResult{
			ChunkID:         r.ID,
			Content:         r.Content,
			Metadata:        &meta,
			SimilarityScore: score,
		})
	}

	return results, nil
}

// DeleteByFilter 软删除匹配过滤条件的向量,返回删除数量
func (s *PGVectorStore) DeleteByFilter(ctx context.Context, filter *ChunkFilter) (int64, error) {
	if filter == nil || filter.TenantID == "" {
		return 0, NewValidationError("tenant_id", "删除必须携带租户标识")
	}

	query := applyChunkFilter(
		s.db.WithContext(ctx).Model(&KnowledgeChunk{}).Where("deleted_at IS NULL"),
		filter,
	)

	result := query.Update("deleted_at", gorm.Expr("CURRENT_TIMESTAMP"))
	if result.Error != nil {
		return 0, fmt.Errorf("删除向量失败: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// Stats 统计匹配过滤条件的向量数量与涉及的文件
func (s *PGVectorStore) Stats(ctx context.Context, filter *ChunkFilter) (*VectorStoreStats, error) {
	query := s.db.WithContext(ctx).Model(&KnowledgeChunk{}).Where("deleted_at IS NULL")
	if filter != nil {
		query = applyChunkFilter(query, filter)
	}

	var stats VectorStoreStats
	if err := query.Count(&stats.TotalChunks).Error; err != nil {
		return nil, fmt.Errorf("统计向量数量失败: %w", err)
	}

	fileQuery := s.db.WithContext(ctx).Model(&KnowledgeChunk{}).Where("deleted_at IS NULL")
	if filter != nil {
		fileQuery = applyChunkFilter(fileQuery, filter)
	}
	if err := fileQuery.Distinct("file_name").Pluck("file_name", &stats.FileNames).Error; err != nil {
		return nil, fmt.Errorf("统计文件列表失败: %w", err)
	}

	return &stats, nil
}

// Clear 清空全部向量
func (s *PGVectorStore) Clear(ctx context.Context) error {
	if err := s.db.WithContext(ctx).Exec("DELETE FROM knowledge_chunks").Error; err != nil {
		return fmt.Errorf("清空向量存储失败: %w", err)
	}
	return nil
}

// applyChunkFilter 将过滤条件展开为 AND 连接的精确匹配
func applyChunkFilter(query *gorm.DB, filter *ChunkFilter) *gorm.DB {
	for field, value := range filter.Conditions() {
		query = query.Where(field+" = ?", value)
	}
	return query
}
