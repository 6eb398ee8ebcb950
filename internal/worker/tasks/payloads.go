package tasks

// 任务类型
const (
	TypeProcessDocument = "kb:process_document"
)

// ProcessDocumentPayload 文档索引任务载荷
type ProcessDocumentPayload struct {
	DocumentID string `json:"document_id"`
}
