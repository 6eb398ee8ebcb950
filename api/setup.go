package api

import (
	"fmt"
	"time"

	"backend/internal/config"
	"backend/internal/infra"
	"backend/internal/infra/queue"
	"backend/internal/logger"
	"backend/internal/rag"
	"backend/internal/worker"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// SetupRouter 组装路由与 Worker 服务器
// Redis 不可用时退化为同步文档处理,返回的 worker 为 nil
func SetupRouter(db *gorm.DB, cfg *config.Config) (*gin.Engine, *worker.Server, error) {
	gin.SetMode(cfg.Server.Mode)
	log := logger.Get()

	router := gin.New()
	router.Use(gin.Recovery(), RequestID(), RequestLogger(), CORS())

	redisClient, err := infra.InitRedis(&cfg.Redis)
	if err != nil {
		log.Warn("Redis 不可用,向量缓存与异步队列退化为同步处理", zap.Error(err))
		redisClient = nil
	}

	embedding := buildEmbeddingProvider(cfg, redisClient, log)

	store, err := buildVectorStore(cfg, db)
	if err != nil {
		return nil, nil, fmt.Errorf("初始化向量存储失败: %w", err)
	}

	chunker, err := rag.NewChunker(cfg.RAG.Chunking.ChunkSize, cfg.RAG.Chunking.ChunkOverlap, cfg.RAG.Chunking.MinChunkSize)
	if err != nil {
		return nil, nil, fmt.Errorf("初始化分块器失败: %w", err)
	}

	intents := rag.NewIntentClassifier()
	retrieval := rag.NewRetrievalEngine(embedding, store, intents, rag.RetrievalOptions{
		TopK:                cfg.RAG.Retrieval.TopK,
		SimilarityThreshold: cfg.RAG.Retrieval.SimilarityThreshold,
		RelevanceThreshold:  cfg.RAG.Retrieval.RelevanceThreshold,
		MaxContextTokens:    cfg.RAG.Retrieval.MaxContextTokens,
	}, log)

	llm := buildLLMProvider(cfg, log)
	verifier := rag.NewVerifierEngine(llm, log)
	pipeline := rag.NewAnswerPipeline(retrieval, verifier, llm, intents, log)

	var queueClient queue.Client
	var workerSrv *worker.Server
	if redisClient != nil {
		queueClient = queue.NewClient(cfg.Redis)
	}

	ingestion := rag.NewIngestionService(db, store, embedding, chunker, queueClient, log)
	if queueClient != nil {
		workerSrv = worker.NewServer(cfg.Redis, cfg.Worker, ingestion, log)
	}

	if cfg.Database.AutoMigrate {
		if err := db.AutoMigrate(&rag.KnowledgeDocument{}, &rag.KnowledgeChunk{}); err != nil {
			return nil, nil, fmt.Errorf("数据库迁移失败: %w", err)
		}
	}

	RegisterRoutes(router, db, pipeline, ingestion, retrieval)
	return router, workerSrv, nil
}

// buildEmbeddingProvider 构建向量提供者,缺少 API Key 时用占位实现延迟到调用时报错
func buildEmbeddingProvider(cfg *config.Config, redisClient *redis.Client, log *zap.Logger) rag.EmbeddingProvider {
	provider, err := rag.NewOpenAIEmbeddingProvider(cfg.AI.OpenAI.APIKey, cfg.AI.OpenAI.EmbeddingModel)
	if err != nil {
		log.Warn("向量提供者未配置,相关请求将被拒答", zap.Error(err))
		return rag.NewUnconfiguredEmbeddingProvider("OpenAI API Key 未配置")
	}

	if cfg.RAG.Cache.Enabled && redisClient != nil {
		ttl, err := time.ParseDuration(cfg.RAG.Cache.TTL)
		if err != nil {
			ttl = 0
		}
		cache := rag.NewEmbeddingCache(redisClient, cfg.RAG.Cache.Prefix, ttl)
		return rag.NewCachedEmbeddingProvider(provider, cache)
	}
	return provider
}

// buildVectorStore 按配置选择向量存储后端
func buildVectorStore(cfg *config.Config, db *gorm.DB) (rag.VectorStore, error) {
	switch cfg.RAG.VectorStore.Type {
	case "qdrant":
		q := cfg.RAG.VectorStore.Qdrant
		return rag.NewQdrantStore(rag.QdrantOptions{
			Endpoint:        q.Endpoint,
			APIKey:          q.APIKey,
			Collection:      q.Collection,
			VectorDimension: q.VectorDimension,
			TimeoutSeconds:  q.TimeoutSeconds,
		})
	case "pgvector", "":
		return rag.NewPGVectorStore(db)
	default:
		return nil, fmt.Errorf("不支持的向量存储类型: %s", cfg.RAG.VectorStore.Type)
	}
}

// buildLLMProvider 按配置选择生成模型提供商
func buildLLMProvider(cfg *config.Config, log *zap.Logger) rag.LLMProvider {
	switch cfg.RAG.LLMProvider {
	case "gemini":
		provider, err := rag.NewGeminiProvider(cfg.AI.Gemini.APIKey, cfg.AI.Gemini.Model, cfg.AI.Gemini.BaseURL, log)
		if err != nil {
			log.Warn("Gemini 未配置,问答请求将被拒答", zap.Error(err))
			return rag.NewUnconfiguredLLMProvider("Gemini API Key 未配置")
		}
		return provider
	default:
		provider, err := rag.NewOpenAIProvider(cfg.AI.OpenAI.APIKey, cfg.AI.OpenAI.ChatModel)
		if err != nil {
			log.Warn("OpenAI 未配置,问答请求将被拒答", zap.Error(err))
			return rag.NewUnconfiguredLLMProvider("OpenAI API Key 未配置")
		}
		return provider
	}
}
