package rag

import (
	"context"
	"encoding/json"
	"regexp"
	"strings"

	"backend/internal/metrics"

	"go.uber.org/zap"
)

// VerificationResult 事实校验结果
type VerificationResult struct {
	Pass              bool     `json:"pass"`
	Issues            []string `json:"issues"`
	UnsupportedClaims []string `json:"unsupported_claims"`
	FinalAnswer       string   `json:"final_answer,omitempty"`
	Usage             *Usage   `json:"-"`
}

// VerifierEngine 草稿答案的事实校验引擎,任何解析失败均按否决处理
type VerifierEngine struct {
	llm    LLMProvider
	logger *zap.Logger
}

// NewVerifierEngine 创建校验引擎
func NewVerifierEngine(llm LLMProvider, logger *zap.Logger) *VerifierEngine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &VerifierEngine{llm: llm, logger: logger}
}

// Verify 校验草稿中的每条事实是否被上下文支持,失败一律封闭拒答
func (v *VerifierEngine) Verify(ctx context.Context, draftAnswer, contextText string) *VerificationResult {
	systemPrompt, userPrompt := formatVerifierPrompt(contextText, draftAnswer)

	raw, usage, err := v.llm.GenerateWithUsage(ctx, systemPrompt, userPrompt)
	if err != nil {
		v.logger.Warn("校验模型调用失败,按否决处理", zap.Error(err))
		metrics.VerifierResultsTotal.WithLabelValues("error").Inc()
		return &VerificationResult{
			Pass:   false,
			Issues: []string{"verification unavailable"},
			Usage:  usage,
		}
	}

	result := v.parseResponse(raw)
	result.Usage = usage

	if result.Pass {
		metrics.VerifierResultsTotal.WithLabelValues("pass").Inc()
	} else {
		metrics.VerifierResultsTotal.WithLabelValues("fail").Inc()
	}
	return result
}

// --- 响应解析,逐层降级 ---

var jsonFenceRe = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)\\s*```")

// parseResponse 按层解析校验响应:剥离代码围栏 -> 提取首个配平 JSON 对象 ->
// JSON 解析 -> 关键词启发式,全部失败则默认否决
func (v *VerifierEngine) parseResponse(raw string) *VerificationResult {
	text := strings.TrimSpace(raw)
	if m := jsonFenceRe.FindStringSubmatch(text); m != nil {
		text = strings.TrimSpace(m[1])
	}

	if candidate := extractJSONObject(text); candidate != "" {
		var parsed struct {
			Pass              bool     `json:"pass"`
			Issues            []string `json:"issues"`
			UnsupportedClaims []string `json:"unsupported_claims"`
			FinalAnswer       *string  `json:"final_answer"`
		}
		if err := json.Unmarshal([]byte(candidate), &parsed); err == nil {
			result := &VerificationResult{
				Pass:              parsed.Pass,
				Issues:            parsed.Issues,
				UnsupportedClaims: parsed.UnsupportedClaims,
			}
			if result.Issues == nil {
				result.Issues = []string{}
			}
			if result.UnsupportedClaims == nil {
				result.UnsupportedClaims = []string{}
			}
			if parsed.FinalAnswer != nil {
				result.FinalAnswer = *parsed.FinalAnswer
			}
			return result
		}
	}

	// JSON 解析失败,退化为关键词启发式
	metrics.VerifierParseFallbacks.Inc()
	v.logger.Warn("校验响应非 JSON,启用启发式判定", zap.String("preview", preview(raw, 120)))

	lower := strings.ToLower(text)
	if strings.Contains(lower, `"pass": true`) || strings.Contains(lower, `"pass":true`) {
		return &VerificationResult{Pass: true, Issues: []string{}, UnsupportedClaims: []string{}}
	}
	return &VerificationResult{
		Pass:              false,
		Issues:            []string{"could not parse verification response"},
		UnsupportedClaims: []string{},
	}
}

// extractJSONObject 提取文本中首个花括号配平的 JSON 对象,找不到返回空串
func extractJSONObject(text string) string {
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return ""
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		ch := text[i]
		if escaped {
			escaped = false
			continue
		}
		switch ch {
		case '\\':
			if inString {
				escaped = true
			}
		case '"':
			inString = !inString
		case '{':
			if !inString {
				depth++
			}
		case '}':
			if !inString {
				depth--
				if depth == 0 {
					return text[start : i+1]
				}
			}
		}
	}
	return ""
}

func preview(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
