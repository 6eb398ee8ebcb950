package rag

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"backend/internal/infra/queue"
	"backend/internal/metrics"
	"backend/internal/rag/parsers"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// IngestionService 知识库文档摄入服务:上传 -> 解析 -> 分块 -> 向量化 -> 入库
type IngestionService struct {
	db             *gorm.DB
	vectorStore    VectorStore
	embedding      EmbeddingProvider
	chunker        *Chunker
	parserRegistry *parsers.ParserRegistry
	queueClient    queue.Client
	logger         *zap.Logger
}

// NewIngestionService 创建摄入服务实例
// queueClient 为 nil 时文档在上传请求内同步处理
func NewIngestionService(
	db *gorm.DB,
	vectorStore VectorStore,
	embedding EmbeddingProvider,
	chunker *Chunker,
	queueClient queue.Client,
	logger *zap.Logger,
) *IngestionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &IngestionService{
		db:             db,
		vectorStore:    vectorStore,
		embedding:      embedding,
		chunker:        chunker,
		parserRegistry: parsers.NewParserRegistry(),
		queueClient:    queueClient,
		logger:         logger,
	}
}

// UploadDocumentRequest 上传文档请求
type UploadDocumentRequest struct {
	TenantID string
	KBID     string
	UserID   string
	FileName string
	FileSize int64
	Reader   io.Reader
}

// UploadDocumentResponse 上传文档响应
type UploadDocumentResponse struct {
	DocumentID string `json:"document_id"`
	FileName   string `json:"file_name"`
	Status     string `json:"status"`
	ChunkCount int    `json:"chunk_count"`
	Message    string `json:"message"`
}

// UploadDocument 上传并处理文档
func (s *IngestionService) UploadDocument(ctx context.Context, req *UploadDocumentRequest) (*UploadDocumentResponse, error) {
	if req.TenantID == "" {
		return nil, NewValidationError("tenant_id", "租户 ID 不能为空")
	}
	if req.FileName == "" {
		return nil, NewValidationError("file_name", "文件名不能为空")
	}
	if !s.parserRegistry.Supported(req.FileName) {
		return nil, NewValidationError("file_name", fmt.Sprintf("不支持的文件类型: %s", filepath.Ext(req.FileName)))
	}

	// 1. 解析文档内容
	parsed, err := s.parserRegistry.Parse(req.FileName, req.Reader)
	if err != nil {
		return nil, fmt.Errorf("解析文档失败: %w", err)
	}

	boundariesJSON, err := json.Marshal(parsed.PageBoundaries)
	if err != nil {
		return nil, fmt.Errorf("序列化页边界失败: %w", err)
	}

	// 2. 创建文档记录
	doc := &KnowledgeDocument{
		ID:             uuid.New().String(),
		TenantID:       req.TenantID,
		KBID:           req.KBID,
		UserID:         req.UserID,
		FileName:       req.FileName,
		FileType:       strings.TrimPrefix(strings.ToLower(filepath.Ext(req.FileName)), "."),
		FileSize:       req.FileSize,
		Content:        parsed.Text,
		PageBoundaries: boundariesJSON,
		Status:         "pending",
	}

	if err := s.db.WithContext(ctx).Create(doc).Error; err != nil {
		return nil, fmt.Errorf("创建文档记录失败: %w", err)
	}

	// 3. 无队列时同步处理,否则入队异步处理
	if s.queueClient == nil {
		if err := s.ProcessDocument(ctx, doc.ID); err != nil {
			return nil, fmt.Errorf("处理文档失败: %w", err)
		}
		var updated KnowledgeDocument
		if err := s.db.WithContext(ctx).Where("id = ?", doc.ID).First(&updated).Error; err != nil {
			return nil, fmt.Errorf("查询文档失败: %w", err)
		}
		return &UploadDocumentResponse{
			DocumentID: updated.ID,
			FileName:   updated.FileName,
			Status:     updated.Status,
			ChunkCount: updated.ChunkCount,
			Message:    "文档处理完成",
		}, nil
	}

	if err := s.queueClient.EnqueueProcessDocument(doc.ID); err != nil {
		_ = s.updateDocumentStatus(ctx, doc.ID, "failed", fmt.Sprintf("任务入队失败: %v", err), 0)
		return nil, fmt.Errorf("任务入队失败: %w", err)
	}

	return &UploadDocumentResponse{
		DocumentID: doc.ID,
		FileName:   doc.FileName,
		Status:     "processing",
		Message:    "文档上传成功,正在处理中",
	}, nil
}

// ProcessDocument 处理文档(分块 + 向量化 + 入库)
func (s *IngestionService) ProcessDocument(ctx context.Context, documentID string) error {
	// 1. 查询文档
	var doc KnowledgeDocument
	if err := s.db.WithContext(ctx).
		Where("id = ? AND deleted_at IS NULL", documentID).
		First(&doc).Error; err != nil {
		return fmt.Errorf("查询文档失败: %w", err)
	}

	if err := s.updateDocumentStatus(ctx, doc.ID, "processing", "", 0); err != nil {
		return fmt.Errorf("更新文档状态失败: %w", err)
	}

	if err := s.indexDocument(ctx, &doc); err != nil {
		metrics.DocumentsProcessedTotal.WithLabelValues("failed").Inc()
		_ = s.updateDocumentStatus(ctx, doc.ID, "failed", err.Error(), 0)
		return err
	}

	metrics.DocumentsProcessedTotal.WithLabelValues("indexed").Inc()
	return nil
}

// indexDocument 执行分块到入库的主流程,失败由调用方统一记录状态
func (s *IngestionService) indexDocument(ctx context.Context, doc *KnowledgeDocument) error {
	var boundaries map[int]int
	if len(doc.PageBoundaries) > 0 {
		if err := json.Unmarshal(doc.PageBoundaries, &boundaries); err != nil {
			return fmt.Errorf("解析页边界失败: %w", err)
		}
	}

	// 2. 分块
	chunks, err := s.chunker.ChunkText(doc.Content, boundaries)
	if err != nil {
		return fmt.Errorf("文档分块失败: %w", err)
	}
	if len(chunks) == 0 {
		return fmt.Errorf("文档分块结果为空")
	}

	// 3. 批量向量化
	texts := make([]string, len(chunks))
	for i, chunk := range chunks {
		texts[i] = chunk.Content
	}

	embeddings, err := s.embedding.EmbedBatch(ctx, texts)
	if err != nil {
		return fmt.Errorf("向量化失败: %w", err)
	}
	if len(embeddings) != len(chunks) {
		return fmt.Errorf("向量数量与分块数量不一致: %d != %d", len(embeddings), len(chunks))
	}

	// 4. 组装向量数据
	vectors := make([]*Vector, len(chunks))
	for i, chunk := range chunks {
		meta := NewChunkMetadata(chunk, doc.TenantID, doc.KBID, doc.UserID, doc.FileName, doc.FileType, len(chunks), doc.ID)
		vectors[i] = &Vector{
			ChunkID:   meta.ChunkID,
			Content:   chunk.Content,
			Embedding: embeddings[i],
			Metadata:  meta,
		}
	}

	// 5. 存储向量
	if err := s.vectorStore.Upsert(ctx, vectors); err != nil {
		return fmt.Errorf("存储向量失败: %w", err)
	}
	metrics.ChunksIndexedTotal.Add(float64(len(chunks)))

	// 6. 更新文档状态与统计
	if err := s.updateDocumentStatus(ctx, doc.ID, "indexed", "", len(chunks)); err != nil {
		return fmt.Errorf("更新文档状态失败: %w", err)
	}

	s.logger.Info("文档索引完成",
		zap.String("document_id", doc.ID),
		zap.String("tenant_id", doc.TenantID),
		zap.String("file_name", doc.FileName),
		zap.Int("chunk_count", len(chunks)),
	)
	return nil
}

// DeleteDocument 删除文档及其全部向量
func (s *IngestionService) DeleteDocument(ctx context.Context, documentID, tenantID string) (int64, error) {
	if tenantID == "" {
		return 0, NewValidationError("tenant_id", "租户 ID 不能为空")
	}

	// 1. 验证文档归属
	var doc KnowledgeDocument
	if err := s.db.WithContext(ctx).
		Where("id = ? AND tenant_id = ? AND deleted_at IS NULL", documentID, tenantID).
		First(&doc).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return 0, NewValidationError("document_id", "文档不存在")
		}
		return 0, fmt.Errorf("查询文档失败: %w", err)
	}

	// 2. 删除向量
	deleted, err := s.vectorStore.DeleteByFilter(ctx, &ChunkFilter{
		TenantID:   doc.TenantID,
		KBID:       doc.KBID,
		DocumentID: doc.ID,
	})
	if err != nil {
		return 0, fmt.Errorf("删除向量失败: %w", err)
	}

	// 3. 软删除文档记录
	if err := s.db.WithContext(ctx).
		Model(&KnowledgeDocument{}).
		Where("id = ?", doc.ID).
		Update("deleted_at", time.Now()).Error; err != nil {
		return 0, fmt.Errorf("删除文档失败: %w", err)
	}

	return deleted, nil
}

// ListDocuments 列出租户在指定知识库下的文档
func (s *IngestionService) ListDocuments(ctx context.Context, tenantID, kbID string) ([]*KnowledgeDocument, error) {
	if tenantID == "" {
		return nil, NewValidationError("tenant_id", "租户 ID 不能为空")
	}

	query := s.db.WithContext(ctx).
		Where("tenant_id = ? AND deleted_at IS NULL", tenantID)
	if kbID != "" {
		query = query.Where("kb_id = ?", kbID)
	}

	var docs []*KnowledgeDocument
	if err := query.Order("created_at DESC").Find(&docs).Error; err != nil {
		return nil, fmt.Errorf("查询文档列表失败: %w", err)
	}
	return docs, nil
}

// Stats 返回指定范围内的向量库统计
func (s *IngestionService) Stats(ctx context.Context, filter *ChunkFilter) (*VectorStoreStats, error) {
	return s.vectorStore.Stats(ctx, filter)
}

// updateDocumentStatus 更新文档状态与分块统计
func (s *IngestionService) updateDocumentStatus(ctx context.Context, documentID, status, errorMsg string, chunkCount int) error {
	updates := map[string]interface{}{
		"status":     status,
		"updated_at": time.Now(),
	}
	if errorMsg != "" {
		updates["error_message"] = errorMsg
	}
	if chunkCount > 0 {
		updates["chunk_count"] = chunkCount
	}

	return s.db.WithContext(ctx).
		Model(&KnowledgeDocument{}).
		Where("id = ?", documentID).
		Updates(updates).Error
}
