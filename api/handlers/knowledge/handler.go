package knowledge

import (
	"net/http"

	response "backend/api/handlers/common"
	"backend/internal/rag"

	"github.com/gin-gonic/gin"
)

// Handler 知识库文档与检索处理器
type Handler struct {
	ingestion *rag.IngestionService
	retrieval *rag.RetrievalEngine
}

// NewHandler 创建知识库处理器
func NewHandler(ingestion *rag.IngestionService, retrieval *rag.RetrievalEngine) *Handler {
	return &Handler{
		ingestion: ingestion,
		retrieval: retrieval,
	}
}

// Upload 上传文档 (multipart/form-data, 字段名 file)
// POST /api/knowledge/documents
func (h *Handler) Upload(c *gin.Context) {
	file, header, err := c.Request.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, response.ErrorResponse{Success: false, Message: "未找到上传文件: " + err.Error()})
		return
	}
	defer file.Close()

	result, err := h.ingestion.UploadDocument(c.Request.Context(), &rag.UploadDocumentRequest{
		TenantID: c.GetString("tenant_id"),
		KBID:     c.GetString("kb_id"),
		UserID:   c.GetString("user_id"),
		FileName: header.Filename,
		FileSize: header.Size,
		Reader:   file,
	})
	if err != nil {
		if rag.IsValidationError(err) {
			c.JSON(http.StatusBadRequest, response.ErrorResponse{Success: false, Message: err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, response.ErrorResponse{Success: false, Message: "文档上传失败: " + err.Error()})
		return
	}

	c.JSON(http.StatusAccepted, response.APIResponse{Success: true, Data: result})
}

// List 列出当前租户指定知识库下的文档
// GET /api/knowledge/documents
func (h *Handler) List(c *gin.Context) {
	docs, err := h.ingestion.ListDocuments(c.Request.Context(), c.GetString("tenant_id"), c.GetString("kb_id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, response.ErrorResponse{Success: false, Message: "查询文档列表失败"})
		return
	}

	c.JSON(http.StatusOK, response.APIResponse{Success: true, Data: docs})
}

// Delete 删除文档及其全部向量
// DELETE /api/knowledge/documents/:id
func (h *Handler) Delete(c *gin.Context) {
	documentID := c.Param("id")
	if documentID == "" {
		c.JSON(http.StatusBadRequest, response.ErrorResponse{Success: false, Message: "缺少文档 ID"})
		return
	}

	deleted, err := h.ingestion.DeleteDocument(c.Request.Context(), documentID, c.GetString("tenant_id"))
	if err != nil {
		if rag.IsValidationError(err) {
			c.JSON(http.StatusNotFound, response.ErrorResponse{Success: false, Message: err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, response.ErrorResponse{Success: false, Message: "删除文档失败"})
		return
	}

	c.JSON(http.StatusOK, response.APIResponse{Success: true, Data: DeleteResponse{
		DocumentID:    documentID,
		DeletedChunks: deleted,
	}})
}

// Search 知识库原始检索,返回命中分块与置信度,不经过生成与校验
// POST /api/knowledge/search
func (h *Handler) Search(c *gin.Context) {
	var req SearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.ErrorResponse{Success: false, Message: "请求参数错误: " + err.Error()})
		return
	}

	result, err := h.retrieval.Retrieve(c.Request.Context(),
		req.Query, c.GetString("tenant_id"), c.GetString("kb_id"), c.GetString("user_id"), req.TopK)
	if err != nil {
		if rag.IsValidationError(err) {
			c.JSON(http.StatusBadRequest, response.ErrorResponse{Success: false, Message: err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, response.ErrorResponse{Success: false, Message: "检索失败"})
		return
	}

	c.JSON(http.StatusOK, response.APIResponse{Success: true, Data: SearchResponse{
		Results:     result.Results,
		Confidence:  result.Confidence,
		HasRelevant: result.HasRelevant,
	}})
}

// Stats 当前租户知识库统计
// GET /api/knowledge/stats
func (h *Handler) Stats(c *gin.Context) {
	stats, err := h.ingestion.Stats(c.Request.Context(), &rag.ChunkFilter{
		TenantID: c.GetString("tenant_id"),
		KBID:     c.GetString("kb_id"),
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, response.ErrorResponse{Success: false, Message: "查询统计失败"})
		return
	}

	c.JSON(http.StatusOK, response.APIResponse{Success: true, Data: StatsResponse{
		TotalChunks: stats.TotalChunks,
		FileNames:   stats.FileNames,
	}})
}
