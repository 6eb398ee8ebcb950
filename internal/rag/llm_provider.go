package rag

import "context"

// Usage 单次 LLM 调用的 Token 消耗,计费方依赖该记录,拒答时同样上报
type Usage struct {
	PromptTokens     int    `json:"prompt_tokens"`
	CompletionTokens int    `json:"completion_tokens"`
	TotalTokens      int    `json:"total_tokens"`
	ModelUsed        string `json:"model_used"`
}

// LLMProvider 文本生成的统一接口,两个实现:OpenAI(单一固定模型)与
// Gemini(候选模型列表,仅对"模型不可用"类错误逐个回退)
// 调用方只依赖该接口,每个请求每个阶段至多调用一次,不自动重试
type LLMProvider interface {
	GenerateWithUsage(ctx context.Context, systemPrompt, userPrompt string) (string, *Usage, error)
	Name() string
}
