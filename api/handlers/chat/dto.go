package chat

// AskRequest 单次问答请求
type AskRequest struct {
	Query string `json:"query" binding:"required,min=1,max=4000"`
	TopK  int    `json:"top_k" binding:"omitempty,min=1,max=50"`
}

// BatchAskRequest 批量问答请求
type BatchAskRequest struct {
	Queries []AskRequest `json:"queries" binding:"required,min=1,max=20,dive"`
}
