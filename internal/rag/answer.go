package rag

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"backend/internal/metrics"

	"go.uber.org/zap"
)

const (
	// strictConfidenceThreshold 低于该置信度直接拒答
	strictConfidenceThreshold = 0.30
	// highConfidenceThreshold integration/api 类意图要求的置信度下限
	highConfidenceThreshold = 0.50
)

// 答案状态
const (
	AnswerStateAnswered = "answered"
	AnswerStateRefused  = "refused"
)

// 拒答原因
const (
	RefusalNoContext          = "no_context"
	RefusalLowConfidence      = "low_confidence"
	RefusalIntentGate         = "intent_gate"
	RefusalVerifierFailed     = "verifier_failed"
	RefusalProviderConfigured = "provider_misconfigured"
)

// AnswerRequest 单次问答请求
type AnswerRequest struct {
	Query    string `json:"query"`
	TenantID string `json:"tenant_id"`
	KBID     string `json:"kb_id"`
	UserID   string `json:"user_id"`
	TopK     int    `json:"top_k,omitempty"`
}

// AnswerResult 问答结果,refused 时 Answer 为标准拒答文案。
// EscalationSuggested 提示调用方转人工,VerifierPassed 仅在校验实际执行过时携带
type AnswerResult struct {
	Answer              string          `json:"answer"`
	State               string          `json:"state"`
	RefusalReason       string          `json:"refusal_reason,omitempty"`
	Confidence          float64         `json:"confidence"`
	FromKnowledgeBase   bool            `json:"from_knowledge_base"`
	EscalationSuggested bool            `json:"escalation_suggested"`
	VerifierPassed      *bool           `json:"verifier_passed,omitempty"`
	VerifierIssues      []string        `json:"verifier_issues,omitempty"`
	UnsupportedClaims   []string        `json:"unsupported_claims,omitempty"`
	Intents             []string        `json:"intents"`
	Citations           []*CitationInfo `json:"citations"`
	Usage               *Usage          `json:"usage,omitempty"`
	DurationMs          int64           `json:"duration_ms"`
}

// AnswerPipeline 检索 -> 草稿 -> 校验的封闭式问答流水线
type AnswerPipeline struct {
	retrieval *RetrievalEngine
	verifier  *VerifierEngine
	llm       LLMProvider
	intents   *IntentClassifier
	logger    *zap.Logger
}

// NewAnswerPipeline 创建问答流水线
func NewAnswerPipeline(retrieval *RetrievalEngine, verifier *VerifierEngine, llm LLMProvider, intents *IntentClassifier, logger *zap.Logger) *AnswerPipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AnswerPipeline{
		retrieval: retrieval,
		verifier:  verifier,
		llm:       llm,
		intents:   intents,
		logger:    logger,
	}
}

// Answer 执行完整问答流程,所有门槛不满足时封闭拒答而非猜测
func (p *AnswerPipeline) Answer(ctx context.Context, req *AnswerRequest) (*AnswerResult, error) {
	start := time.Now()

	if strings.TrimSpace(req.Query) == "" {
		return nil, NewValidationError("query", "查询内容不能为空")
	}
	if req.TenantID == "" {
		return nil, NewValidationError("tenant_id", "租户 ID 不能为空")
	}

	detected := p.intents.Detect(req.Query)

	retrieval, err := p.retrieval.Retrieve(ctx, req.Query, req.TenantID, req.KBID, req.UserID, req.TopK)
	if err != nil {
		if IsConfigurationError(err) {
			// 配置缺失按拒答处理,不向上抛 5xx
			p.logger.Error("检索配置缺失", zap.Error(err))
			return p.refuse(detected, 0, RefusalProviderConfigured, nil, start), nil
		}
		return nil, fmt.Errorf("检索失败: %w", err)
	}

	// 门槛 1: 无上下文
	if len(retrieval.Results) == 0 || !retrieval.HasRelevant {
		return p.refuse(detected, retrieval.Confidence, RefusalNoContext, nil, start), nil
	}

	// 门槛 2: 置信度硬下限
	if retrieval.Confidence < strictConfidenceThreshold {
		return p.refuse(detected, retrieval.Confidence, RefusalLowConfidence, nil, start), nil
	}

	// 门槛 3: integration/api 类问题要求高置信度
	if HasIntegrationIntent(req.Query, detected) && retrieval.Confidence < highConfidenceThreshold {
		return p.refuse(detected, retrieval.Confidence, RefusalIntentGate, nil, start), nil
	}

	contextText, citations := p.retrieval.ContextForLLM(retrieval.Results, 0)

	systemPrompt, userPrompt := formatDraftPrompt(contextText, req.Query)
	draft, draftUsage, err := p.llm.GenerateWithUsage(ctx, systemPrompt, userPrompt)
	if err != nil {
		if IsConfigurationError(err) {
			p.logger.Error("生成模型配置缺失", zap.Error(err))
			return p.refuse(detected, retrieval.Confidence, RefusalProviderConfigured, draftUsage, start), nil
		}
		return nil, fmt.Errorf("草稿生成失败: %w", err)
	}
	p.recordUsage(draftUsage)

	verification := p.verifier.Verify(ctx, draft, contextText)
	p.recordUsage(verification.Usage)
	usage := mergeUsage(draftUsage, verification.Usage)

	if !verification.Pass {
		p.logger.Info("校验否决草稿",
			zap.String("tenant_id", req.TenantID),
			zap.Strings("issues", verification.Issues),
			zap.Strings("unsupported_claims", verification.UnsupportedClaims),
		)
		// 校验失败按零置信度拒答,并把问题清单带回给调用方
		result := p.refuse(detected, 0, RefusalVerifierFailed, usage, start)
		result.Answer = noContextResponse + verifierRefusalNote
		result.VerifierPassed = boolPtr(false)
		result.VerifierIssues = verification.Issues
		result.UnsupportedClaims = verification.UnsupportedClaims
		return result, nil
	}

	finalAnswer := draft
	if strings.TrimSpace(verification.FinalAnswer) != "" {
		finalAnswer = verification.FinalAnswer
	}

	cited := extractCitations(finalAnswer, citations)

	metrics.AnswersTotal.WithLabelValues(AnswerStateAnswered).Inc()
	metrics.AnswerDuration.Observe(time.Since(start).Seconds())

	return &AnswerResult{
		Answer:              finalAnswer,
		State:               AnswerStateAnswered,
		Confidence:          retrieval.Confidence,
		FromKnowledgeBase:   true,
		EscalationSuggested: retrieval.Confidence < highConfidenceThreshold,
		VerifierPassed:      boolPtr(true),
		Intents:             detected,
		Citations:           cited,
		Usage:               usage,
		DurationMs:          time.Since(start).Milliseconds(),
	}, nil
}

// refuse 构造标准拒答结果并记录指标
func (p *AnswerPipeline) refuse(intents []string, confidence float64, reason string, usage *Usage, start time.Time) *AnswerResult {
	metrics.AnswersTotal.WithLabelValues(AnswerStateRefused).Inc()
	metrics.RefusalsTotal.WithLabelValues(reason).Inc()
	metrics.AnswerDuration.Observe(time.Since(start).Seconds())

	return &AnswerResult{
		Answer:              noContextResponse,
		State:               AnswerStateRefused,
		RefusalReason:       reason,
		Confidence:          confidence,
		EscalationSuggested: true,
		Intents:             intents,
		Citations:           []*CitationInfo{},
		Usage:               usage,
		DurationMs:          time.Since(start).Milliseconds(),
	}
}

func boolPtr(b bool) *bool { return &b }

func (p *AnswerPipeline) recordUsage(usage *Usage) {
	if usage == nil {
		return
	}
	metrics.LLMTokensTotal.WithLabelValues(usage.ModelUsed, "prompt").Add(float64(usage.PromptTokens))
	metrics.LLMTokensTotal.WithLabelValues(usage.ModelUsed, "completion").Add(float64(usage.CompletionTokens))
}

// mergeUsage 合并草稿与校验两次调用的 token 用量
func mergeUsage(a, b *Usage) *Usage {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	return &Usage{
		PromptTokens:     a.PromptTokens + b.PromptTokens,
		CompletionTokens: a.CompletionTokens + b.CompletionTokens,
		TotalTokens:      a.TotalTokens + b.TotalTokens,
		ModelUsed:        a.ModelUsed,
	}
}

// --- 引用提取 ---

var sourceRefRe = regexp.MustCompile(`\[Source\s*(\d+)\]`)

// extractCitations 从答案文本中提取 [Source N] 引用并映射回检索结果,
// 答案未标注引用但上下文存在时回退为前三条
func extractCitations(answer string, available []*CitationInfo) []*CitationInfo {
	if len(available) == 0 {
		return []*CitationInfo{}
	}

	seen := make(map[int]struct{})
	var cited []*CitationInfo
	for _, m := range sourceRefRe.FindAllStringSubmatch(answer, -1) {
		idx, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		if idx < 1 || idx > len(available) {
			continue
		}
		if _, ok := seen[idx]; ok {
			continue
		}
		seen[idx] = struct{}{}
		cited = append(cited, available[idx-1])
	}

	if len(cited) == 0 {
		limit := 3
		if len(available) < limit {
			limit = len(available)
		}
		cited = append(cited, available[:limit]...)
	}
	return cited
}
