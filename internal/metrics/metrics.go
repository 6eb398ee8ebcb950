package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// 检索指标
var (
	// RetrievalsTotal 检索总数,按租户和是否相关分类
	RetrievalsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "support_rag_retrievals_total",
			Help: "检索总数",
		},
		[]string{"tenant_id", "has_relevant"},
	)

	// RetrievalConfidence 检索置信度分布
	RetrievalConfidence = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "support_rag_retrieval_confidence",
			Help:    "检索置信度分布",
			Buckets: []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1.0},
		},
	)
)

// 回答流水线指标
var (
	// AnswersTotal 回答总数,按终态分类
	AnswersTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "support_rag_answers_total",
			Help: "回答总数",
		},
		[]string{"state"},
	)

	// RefusalsTotal 拒答总数,按拒答原因分类
	RefusalsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "support_rag_refusals_total",
			Help: "拒答总数",
		},
		[]string{"reason"},
	)

	// LLMTokensTotal LLM Token 消耗总数
	LLMTokensTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "support_rag_llm_tokens_total",
			Help: "LLM Token 消耗总数",
		},
		[]string{"model", "kind"},
	)

	// AnswerDuration 单次回答耗时(秒)
	AnswerDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "support_rag_answer_duration_seconds",
			Help:    "单次回答耗时分布",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
	)
)

// 校验器指标
var (
	// VerifierResultsTotal 校验结果总数,按通过/否决分类
	VerifierResultsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "support_rag_verifier_results_total",
			Help: "校验结果总数",
		},
		[]string{"result"},
	)

	// VerifierParseFallbacks 校验器结构化解析失败、走启发式兜底的次数
	// 该值持续偏高说明校验 prompt 或模型需要调整
	VerifierParseFallbacks = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "support_rag_verifier_parse_fallbacks_total",
			Help: "校验响应走启发式解析兜底的次数",
		},
	)
)

// 文档处理指标
var (
	// DocumentsProcessedTotal 文档处理总数,按状态分类
	DocumentsProcessedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "support_rag_documents_processed_total",
			Help: "文档处理总数",
		},
		[]string{"status"},
	)

	// ChunksIndexedTotal 已索引的分块总数
	ChunksIndexedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "support_rag_chunks_indexed_total",
			Help: "已索引分块总数",
		},
	)
)
