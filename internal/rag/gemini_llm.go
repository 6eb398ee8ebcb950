package rag

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// geminiFallbackModels 主模型不可用时按序尝试的候选模型
var geminiFallbackModels = []string{"gemini-1.5-flash", "gemini-1.5-pro", "gemini-pro"}

// GeminiProvider Google Gemini 文本生成实现
// 主模型遇到"模型不存在/不支持"类错误时按候选列表逐个回退,命中第一个成功的
// 模型为止;其他类型错误不回退,直接向上传播
type GeminiProvider struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewGeminiProvider 创建 Gemini 生成客户端
func NewGeminiProvider(apiKey, model, baseURL string, logger *zap.Logger) (*GeminiProvider, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, NewConfigurationError("Gemini API Key 未配置")
	}
	if model == "" {
		model = "gemini-1.5-flash"
	}
	if baseURL == "" {
		baseURL = "https://generativelanguage.googleapis.com/v1beta"
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &GeminiProvider{
		apiKey:     apiKey,
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		model:      model,
		httpClient: &http.Client{Timeout: 60 * time.Second},
		logger:     logger,
	}, nil
}

// GenerateWithUsage 生成文本并返回 Token 消耗
// Gemini 无独立 system 角色,system 与 user prompt 拼接后发送
func (p *GeminiProvider) GenerateWithUsage(ctx context.Context, systemPrompt, userPrompt string) (string, *Usage, error) {
	fullPrompt := systemPrompt + "\n\n" + userPrompt

	var lastErr error
	for _, model := range p.candidateModels() {
		text, usage, err := p.generateOnce(ctx, model, fullPrompt)
		if err == nil {
			if model != p.model {
				p.logger.Info("Gemini 回退模型成功", zap.String("model", model))
			}
			return text, usage, nil
		}

		if !IsModelUnavailable(err) {
			return "", nil, err
		}
		p.logger.Warn("Gemini 模型不可用,尝试下一个候选",
			zap.String("model", model),
			zap.Error(err),
		)
		lastErr = err
	}

	return "", nil, fmt.Errorf("全部 Gemini 候选模型均不可用: %w", lastErr)
}

// Name 返回提供商名称
func (p *GeminiProvider) Name() string {
	return "gemini"
}

// candidateModels 配置模型优先,候选列表去重后追加
func (p *GeminiProvider) candidateModels() []string {
	models := []string{p.model}
	for _, m := range geminiFallbackModels {
		if m != p.model {
			models = append(models, m)
		}
	}
	return models
}

func (p *GeminiProvider) generateOnce(ctx context.Context, model, prompt string) (string, *Usage, error) {
	reqBody := geminiGenerateRequest{
		Contents: []geminiContent{
			{Parts: []geminiPart{{Text: prompt}}},
		},
		GenerationConfig: geminiGenerationConfig{
			Temperature:     0,
			MaxOutputTokens: 1024,
		},
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return "", nil, fmt.Errorf("序列化请求失败: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent?key=%s", p.baseURL, model, p.apiKey)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", nil, fmt.Errorf("创建 HTTP 请求失败: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return "", nil, &ProviderError{Provider: "gemini", Model: model, Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", nil, &ProviderError{Provider: "gemini", Model: model, Err: err}
	}

	if resp.StatusCode != http.StatusOK {
		provErr := &ProviderError{
			Provider:    "gemini",
			Model:       model,
			Unavailable: isModelUnavailableResponse(resp.StatusCode, respBody),
			Err:         fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(respBody)),
		}
		return "", nil, provErr
	}

	var genResp geminiGenerateResponse
	if err := json.Unmarshal(respBody, &genResp); err != nil {
		return "", nil, &ProviderError{Provider: "gemini", Model: model, Err: fmt.Errorf("解析响应失败: %w", err)}
	}

	if len(genResp.Candidates) == 0 || len(genResp.Candidates[0].Content.Parts) == 0 {
		return "", nil, &ProviderError{Provider: "gemini", Model: model, Err: errEmptyCompletion}
	}

	var sb strings.Builder
	for _, part := range genResp.Candidates[0].Content.Parts {
		sb.WriteString(part.Text)
	}
	text := sb.String()

	usage := &Usage{
		PromptTokens:     genResp.UsageMetadata.PromptTokenCount,
		CompletionTokens: genResp.UsageMetadata.CandidatesTokenCount,
		TotalTokens:      genResp.UsageMetadata.TotalTokenCount,
		ModelUsed:        model,
	}
	// API 未返回用量时按 ≈4 字符/token 估算
	if usage.TotalTokens == 0 {
		usage.PromptTokens = len(prompt) / 4
		usage.CompletionTokens = len(text) / 4
		usage.TotalTokens = usage.PromptTokens + usage.CompletionTokens
	}

	return text, usage, nil
}

// isModelUnavailableResponse 识别"模型不存在/不支持"类错误
func isModelUnavailableResponse(statusCode int, body []byte) bool {
	if statusCode == http.StatusNotFound {
		return true
	}
	bodyLower := strings.ToLower(string(body))
	return strings.Contains(bodyLower, "not found") || strings.Contains(bodyLower, "not supported")
}

// --- Gemini API payloads ---

type geminiGenerateRequest struct {
	Contents         []geminiContent        `json:"contents"`
	GenerationConfig geminiGenerationConfig `json:"generationConfig"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiGenerationConfig struct {
	Temperature     float64 `json:"temperature"`
	MaxOutputTokens int     `json:"maxOutputTokens"`
}

type geminiGenerateResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
	UsageMetadata struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
		TotalTokenCount      int `json:"totalTokenCount"`
	} `json:"usageMetadata"`
}
