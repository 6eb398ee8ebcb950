package handlers

import (
	"context"
	"encoding/json"
	"fmt"

	"backend/internal/rag"
	"backend/internal/worker/tasks"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

// KBHandler 知识库文档索引任务处理器
type KBHandler struct {
	ingestion *rag.IngestionService
	logger    *zap.Logger
}

func NewKBHandler(ingestion *rag.IngestionService, logger *zap.Logger) *KBHandler {
	return &KBHandler{
		ingestion: ingestion,
		logger:    logger,
	}
}

func (h *KBHandler) HandleProcessDocument(ctx context.Context, t *asynq.Task) error {
	var p tasks.ProcessDocumentPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("json unmarshal failed: %w", err)
	}

	h.logger.Info("开始处理文档任务", zap.String("document_id", p.DocumentID))

	if err := h.ingestion.ProcessDocument(ctx, p.DocumentID); err != nil {
		h.logger.Error("文档处理失败", zap.String("document_id", p.DocumentID), zap.Error(err))
		return err
	}

	h.logger.Info("文档处理完成", zap.String("document_id", p.DocumentID))
	return nil
}
