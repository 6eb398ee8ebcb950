package knowledge

import "backend/internal/rag"

// SearchRequest 知识库检索请求
type SearchRequest struct {
	Query string `json:"query" binding:"required,min=1,max=4000"`
	TopK  int    `json:"top_k" binding:"omitempty,min=1,max=50"`
}

// SearchResponse 知识库检索响应
type SearchResponse struct {
	Results     []*rag.RetrievalResult `json:"results"`
	Confidence  float64                `json:"confidence"`
	HasRelevant bool                   `json:"has_relevant"`
}

// DeleteResponse 文档删除响应
type DeleteResponse struct {
	DocumentID    string `json:"document_id"`
	DeletedChunks int64  `json:"deleted_chunks"`
}

// StatsResponse 知识库统计响应
type StatsResponse struct {
	TotalChunks int64    `json:"total_chunks"`
	FileNames   []string `json:"file_names"`
}
