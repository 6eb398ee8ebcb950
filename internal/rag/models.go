package rag

import (
	"time"

	"github.com/pgvector/pgvector-go"
	"gorm.io/datatypes"
)

// KnowledgeDocument 知识库文档记录
type KnowledgeDocument struct {
	ID       string `json:"id" gorm:"primaryKey;size:64"`
	TenantID string `json:"tenantId" gorm:"size:64;not null;index"`
	KBID     string `json:"kbId" gorm:"column:kb_id;size:64;not null;index"`
	UserID   string `json:"userId" gorm:"size:64;not null;index"`

	// 文件信息
	FileName string `json:"fileName" gorm:"size:500;not null"`
	FileType string `json:"fileType" gorm:"size:50;not null"` // pdf, txt, markdown
	FileSize int64  `json:"fileSize"`

	// 解析后的原始文本,异步处理阶段重新分块时使用
	Content string `json:"-" gorm:"type:text"`
	// 页边界序列化结果 (字符偏移 -> 页码),仅 PDF 有值
	PageBoundaries datatypes.JSON `json:"-" gorm:"column:page_boundaries;type:jsonb"`

	// 处理状态: pending, processing, indexed, failed
	Status       string `json:"status" gorm:"size:50;not null;default:pending"`
	ChunkCount   int    `json:"chunkCount" gorm:"default:0"`
	ErrorMessage string `json:"errorMessage" gorm:"type:text"`

	// 时间戳
	CreatedAt time.Time  `json:"createdAt" gorm:"not null;autoCreateTime"`
	UpdatedAt time.Time  `json:"updatedAt" gorm:"not null;autoUpdateTime"`
	DeletedAt *time.Time `json:"deletedAt,omitempty" gorm:"index"`
}

// KnowledgeChunk pgvector 后端的分块存储模型
// 过滤字段(tenant_id/kb_id/user_id 等)提升为独立列,其余元数据放 jsonb
type KnowledgeChunk struct {
	ID         string `gorm:"primaryKey;size:128"`
	TenantID   string `gorm:"size:64;not null;index:idx_chunk_scope,priority:1"`
	KBID       string `gorm:"column:kb_id;size:64;not null;index:idx_chunk_scope,priority:2"`
	UserID     string `gorm:"size:64;not null;index:idx_chunk_scope,priority:3"`
	DocumentID string `gorm:"size:64;index"`
	FileName   string `gorm:"size:500"`

	Content    string `gorm:"type:text;not null"`
	ChunkIndex int    `gorm:"not null"`
	TokenCount int    `gorm:"default:0"`

	Embedding   pgvector.Vector `gorm:"type:vector(1536)"`
	MetadataRaw datatypes.JSON  `gorm:"column:metadata;type:jsonb"`

	CreatedAt time.Time  `gorm:"not null;autoCreateTime"`
	DeletedAt *time.Time `gorm:"index"`
}
