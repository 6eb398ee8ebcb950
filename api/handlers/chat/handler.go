package chat

import (
	"net/http"

	response "backend/api/handlers/common"
	"backend/internal/rag"

	"github.com/gin-gonic/gin"
)

// Handler 问答处理器
type Handler struct {
	pipeline *rag.AnswerPipeline
}

// NewHandler 创建问答处理器
func NewHandler(pipeline *rag.AnswerPipeline) *Handler {
	return &Handler{pipeline: pipeline}
}

// Ask 单次问答
// POST /api/chat/ask
func (h *Handler) Ask(c *gin.Context) {
	var req AskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.ErrorResponse{Success: false, Message: "请求参数错误: " + err.Error()})
		return
	}

	result, err := h.pipeline.Answer(c.Request.Context(), &rag.AnswerRequest{
		Query:    req.Query,
		TenantID: c.GetString("tenant_id"),
		KBID:     c.GetString("kb_id"),
		UserID:   c.GetString("user_id"),
		TopK:     req.TopK,
	})
	if err != nil {
		if rag.IsValidationError(err) {
			c.JSON(http.StatusBadRequest, response.ErrorResponse{Success: false, Message: err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, response.ErrorResponse{Success: false, Message: "问答处理失败"})
		return
	}

	c.JSON(http.StatusOK, response.APIResponse{Success: true, Data: result})
}

// AskBatch 批量问答,单条失败不影响其余条目
// POST /api/chat/ask/batch
func (h *Handler) AskBatch(c *gin.Context) {
	var req BatchAskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.ErrorResponse{Success: false, Message: "请求参数错误: " + err.Error()})
		return
	}

	reqs := make([]*rag.AnswerRequest, len(req.Queries))
	for i, q := range req.Queries {
		reqs[i] = &rag.AnswerRequest{
			Query:    q.Query,
			TenantID: c.GetString("tenant_id"),
			KBID:     c.GetString("kb_id"),
			UserID:   c.GetString("user_id"),
			TopK:     q.TopK,
		}
	}

	items := h.pipeline.AnswerBatch(c.Request.Context(), reqs)
	c.JSON(http.StatusOK, response.APIResponse{Success: true, Data: items})
}
