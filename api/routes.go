package api

import (
	"backend/api/handlers/chat"
	"backend/api/handlers/knowledge"
	"backend/internal/rag"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"
)

// RegisterRoutes 注册全部路由
func RegisterRoutes(
	router *gin.Engine,
	db *gorm.DB,
	pipeline *rag.AnswerPipeline,
	ingestion *rag.IngestionService,
	retrieval *rag.RetrievalEngine,
) {
	router.GET("/health", HealthCheck())
	router.GET("/ready", ReadinessCheck(db))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	chatHandler := chat.NewHandler(pipeline)
	knowledgeHandler := knowledge.NewHandler(ingestion, retrieval)

	apiGroup := router.Group("/api")
	apiGroup.Use(TenantContext())
	{
		chatGroup := apiGroup.Group("/chat")
		{
			chatGroup.POST("/ask", chatHandler.Ask)
			chatGroup.POST("/ask/batch", chatHandler.AskBatch)
		}

		kbGroup := apiGroup.Group("/knowledge")
		{
			kbGroup.POST("/documents", knowledgeHandler.Upload)
			kbGroup.GET("/documents", knowledgeHandler.List)
			kbGroup.DELETE("/documents/:id", knowledgeHandler.Delete)
			kbGroup.POST("/search", knowledgeHandler.Search)
			kbGroup.GET("/stats", knowledgeHandler.Stats)
		}
	}
}
