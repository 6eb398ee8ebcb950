package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config 应用配置结构
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Log      LogConfig      `mapstructure:"log"`
	AI       AIConfig       `mapstructure:"ai"`
	RAG      RagConfig      `mapstructure:"rag"`
	Worker   WorkerConfig   `mapstructure:"worker"`
}

// ServerConfig HTTP 服务器配置
type ServerConfig struct {
	Port         int    `mapstructure:"port"`
	Mode         string `mapstructure:"mode"` // debug, release, test
	ReadTimeout  int    `mapstructure:"read_timeout"`
	WriteTimeout int    `mapstructure:"write_timeout"`
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	User            string `mapstructure:"user"`
	Password        string `mapstructure:"password"`
	DBName          string `mapstructure:"dbname"`
	SSLMode         string `mapstructure:"sslmode"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime"` // 秒
	AutoMigrate     bool   `mapstructure:"auto_migrate"`
}

// RedisConfig Redis 配置
type RedisConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	Password     string `mapstructure:"password"`
	DB           int    `mapstructure:"db"`
	PoolSize     int    `mapstructure:"pool_size"`
	MinIdleConns int    `mapstructure:"min_idle_conns"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level      string `mapstructure:"level"`       // debug, info, warn, error
	Format     string `mapstructure:"format"`      // json, console
	OutputPath string `mapstructure:"output_path"` // stdout, stderr, /path/to/log
}

// AIConfig 模型提供商配置
type AIConfig struct {
	OpenAI OpenAIConfig `mapstructure:"openai"`
	Gemini GeminiConfig `mapstructure:"gemini"`
}

// OpenAIConfig OpenAI 配置
type OpenAIConfig struct {
	APIKey         string `mapstructure:"api_key"`
	BaseURL        string `mapstructure:"base_url"`
	ChatModel      string `mapstructure:"chat_model"`
	EmbeddingModel string `mapstructure:"embedding_model"`
}

// GeminiConfig Google Gemini 配置
type GeminiConfig struct {
	APIKey  string `mapstructure:"api_key"`
	BaseURL string `mapstructure:"base_url"`
	Model   string `mapstructure:"model"`
}

// RagConfig 检索与问答流水线配置
type RagConfig struct {
	// LLM 提供商: openai, gemini
	LLMProvider string `mapstructure:"llm_provider"`

	Chunking    ChunkingConfig    `mapstructure:"chunking"`
	Retrieval   RetrievalConfig   `mapstructure:"retrieval"`
	VectorStore VectorStoreConfig `mapstructure:"vector_store"`
	Cache       CacheConfig       `mapstructure:"cache"`
}

// ChunkingConfig 文档分块配置
type ChunkingConfig struct {
	ChunkSize    int `mapstructure:"chunk_size"`
	ChunkOverlap int `mapstructure:"chunk_overlap"`
	MinChunkSize int `mapstructure:"min_chunk_size"`
}

// RetrievalConfig 检索与置信度门槛配置
type RetrievalConfig struct {
	TopK                int     `mapstructure:"top_k"`
	SimilarityThreshold float64 `mapstructure:"similarity_threshold"`
	RelevanceThreshold  float64 `mapstructure:"relevance_threshold"`
	MaxContextTokens    int     `mapstructure:"max_context_tokens"`
}

// VectorStoreConfig 向量存储配置
type VectorStoreConfig struct {
	// 后端类型: qdrant, pgvector
	Type   string       `mapstructure:"type"`
	Qdrant QdrantConfig `mapstructure:"qdrant"`
}

// QdrantConfig Qdrant 外部向量数据库配置
type QdrantConfig struct {
	Endpoint        string `mapstructure:"endpoint"`
	APIKey          string `mapstructure:"api_key"`
	Collection      string `mapstructure:"collection"`
	VectorDimension int    `mapstructure:"vector_dimension"`
	TimeoutSeconds  int    `mapstructure:"timeout_seconds"`
}

// CacheConfig 向量缓存配置
type CacheConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Prefix  string `mapstructure:"prefix"`
	TTL     string `mapstructure:"ttl"` // 如 "168h"
}

// WorkerConfig 异步任务配置
type WorkerConfig struct {
	Concurrency int `mapstructure:"concurrency"`
}

// Load 加载配置
// env: 环境名称（dev, prod, test）
// configPath: 配置文件路径（可选）
// 配置文件缺失时退化为纯环境变量配置
func Load(env string, configPath string) (*Config, error) {
	v := viper.New()

	if configPath == "" {
		v.SetConfigName(env) // dev.yaml, prod.yaml
		v.AddConfigPath("./config")
		v.AddConfigPath("../config")
		v.AddConfigPath("../../config")
	} else {
		v.SetConfigFile(configPath)
	}

	v.SetConfigType("yaml")

	// 环境变量优先级高于配置文件: APP_DATABASE_HOST
	v.SetEnvPrefix("APP")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configPath != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("读取配置文件失败: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	return &cfg, nil
}

// setDefaults 配置默认值,检索门槛与分块参数的出厂值
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.read_timeout", 30)
	v.SetDefault("server.write_timeout", 120)

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_open_conns", 20)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 3600)

	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.pool_size", 10)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.output_path", "stdout")

	v.SetDefault("ai.openai.chat_model", "gpt-3.5-turbo")
	v.SetDefault("ai.openai.embedding_model", "text-embedding-3-small")
	v.SetDefault("rag.llm_provider", "openai")

	v.SetDefault("rag.chunking.chunk_size", 600)
	v.SetDefault("rag.chunking.chunk_overlap", 150)
	v.SetDefault("rag.chunking.min_chunk_size", 100)

	v.SetDefault("rag.retrieval.top_k", 10)
	v.SetDefault("rag.retrieval.similarity_threshold", 0.15)
	v.SetDefault("rag.retrieval.relevance_threshold", 0.40)
	v.SetDefault("rag.retrieval.max_context_tokens", 2500)

	v.SetDefault("rag.vector_store.type", "pgvector")
	v.SetDefault("rag.vector_store.qdrant.collection", "support_kb_chunks")
	v.SetDefault("rag.vector_store.qdrant.vector_dimension", 1536)
	v.SetDefault("rag.vector_store.qdrant.timeout_seconds", 30)

	v.SetDefault("rag.cache.enabled", false)
	v.SetDefault("rag.cache.prefix", "emb:")
	v.SetDefault("rag.cache.ttl", "168h")

	v.SetDefault("worker.concurrency", 4)
}

// GetDSN 获取数据库连接字符串
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode,
	)
}
