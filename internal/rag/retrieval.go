package rag

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"backend/internal/metrics"
)

// 检索调参,经验值而非定律,均可通过 RetrievalOptions 覆盖
const (
	defaultTopK                = 10
	defaultSimilarityThreshold = 0.15
	defaultRelevanceThreshold  = 0.40
	defaultMaxContextTokens    = 2500
	excerptLength              = 200
)

// confidenceWeights 置信度加权平均的权重,头部结果权重递减
var confidenceWeights = []float64{1.0, 0.7, 0.5}

// RetrievalOptions 检索引擎配置
type RetrievalOptions struct {
	TopK                int
	SimilarityThreshold float64
	RelevanceThreshold  float64
	MaxContextTokens    int
}

// RetrievalEngine 组合向量化、过滤检索与意图门控,产出带置信度的结果集
// 过滤条件始终携带 tenant_id/kb_id/user_id,租户隔离在这一层强制执行,
// 不依赖底层存储自身的保证
type RetrievalEngine struct {
	embedding EmbeddingProvider
	store     VectorStore
	intents   *IntentClassifier
	logger    *zap.Logger

	topK                int
	similarityThreshold float64
	relevanceThreshold  float64
	maxContextTokens    int
}

// NewRetrievalEngine 创建检索引擎
func NewRetrievalEngine(embedding EmbeddingProvider, store VectorStore, intents *IntentClassifier, opts RetrievalOptions, logger *zap.Logger) *RetrievalEngine {
	if opts.TopK <= 0 {
		opts.TopK = defaultTopK
	}
	if opts.SimilarityThreshold <= 0 {
		opts.SimilarityThreshold = defaultSimilarityThreshold
	}
	if opts.RelevanceThreshold <= 0 {
		opts.RelevanceThreshold = defaultRelevanceThreshold
	}
	if opts.MaxContextTokens <= 0 {
		opts.MaxContextTokens = defaultMaxContextTokens
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &RetrievalEngine{
		embedding:           embedding,
		store:               store,
		intents:             intents,
		logger:              logger,
		topK:                opts.TopK,
		similarityThreshold: opts.SimilarityThreshold,
		relevanceThreshold:  opts.RelevanceThreshold,
		maxContextTokens:    opts.MaxContextTokens,
	}
}

// Retrieval 一次检索的产出
type Retrieval struct {
	Results     []*RetrievalResult
	Confidence  float64
	HasRelevant bool
}

// Retrieve 检索与问题相关的分块
// 无结果不报错,返回空集 + 置信度 0 + HasRelevant=false
func (e *RetrievalEngine) Retrieve(ctx context.Context, query, tenantID, kbID, userID string, topK int) (*Retrieval, error) {
	if strings.TrimSpace(query) == "" {
		return nil, NewValidationError("query", "查询不能为空")
	}
	if tenantID == "" {
		return nil, NewValidationError("tenant_id", "检索必须携带租户标识")
	}
	if topK <= 0 {
		topK = e.topK
	}

	queryEmbedding, err := e.embedding.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("查询向量化失败: %w", err)
	}

	filter := &ChunkFilter{TenantID: tenantID, KBID: kbID, UserID: userID}
	results, err := e.store.Search(ctx, queryEmbedding, topK, filter)
	if err != nil {
		return nil, fmt.Errorf("向量搜索失败: %w", err)
	}

	if len(results) == 0 {
		e.logger.Warn("检索无结果",
			zap.String("tenant_id", tenantID),
			zap.String("kb_id", kbID),
		)
		return &Retrieval{Results: []*RetrievalResult{}, Confidence: 0, HasRelevant: false}, nil
	}

	confidence := scoreConfidence(results)

	// 阈值过滤;全部被滤掉但原始结果存在时,回退到前 3 条并用普通均值重算置信度,
	// 防止阈值调得过严导致整体不可用
	filtered := make([]*RetrievalResult, 0, len(results))
	for _, r := range results {
		if r.SimilarityScore >= e.similarityThreshold {
			filtered = append(filtered, r)
		}
	}
	if len(filtered) == 0 {
		n := len(results)
		if n > 3 {
			n = 3
		}
		filtered = results[:n]
		sum := 0.0
		for _, r := range filtered {
			sum += r.SimilarityScore
		}
		confidence = sum / float64(n)
		e.logger.Warn("无结果通过相似度阈值,回退使用头部结果",
			zap.Float64("threshold", e.similarityThreshold),
			zap.Int("fallback_count", n),
		)
	}

	// 词面直接匹配门控:集成/API 类问题要求严格匹配,其余意图宽松匹配
	chunkTexts := make([]string, len(filtered))
	for i, r := range filtered {
		chunkTexts[i] = r.Content
	}

	intents := e.intents.Detect(query)
	var directMatch bool
	if HasIntegrationIntent(query, intents) {
		directMatch = e.intents.DirectMatch(query, chunkTexts, e.intents.Keywords(intents))
	} else {
		directMatch = LenientMatch(query, chunkTexts)
	}

	hasRelevant := len(filtered) > 0 && (directMatch || confidence > e.relevanceThreshold)

	metrics.RetrievalsTotal.WithLabelValues(tenantID, boolLabel(hasRelevant)).Inc()
	metrics.RetrievalConfidence.Observe(confidence)

	e.logger.Info("检索完成",
		zap.Int("raw_count", len(results)),
		zap.Int("filtered_count", len(filtered)),
		zap.Float64("confidence", confidence),
		zap.Bool("direct_match", directMatch),
		zap.Bool("has_relevant", hasRelevant),
		zap.Strings("intents", intents),
	)

	return &Retrieval{Results: filtered, Confidence: confidence, HasRelevant: hasRelevant}, nil
}

// scoreConfidence 从头部结果推导置信度
// 前 3 条中最高分 ≥0.4 时直接采用最高分(单个强匹配即可信);
// 否则对前 3 条按 1.0/0.7/0.5 加权平均,避免单个弱匹配被高估
func scoreConfidence(results []*RetrievalResult) float64 {
	if len(results) == 0 {
		return 0
	}

	n := len(results)
	if n > 3 {
		n = 3
	}
	top := results[:n]

	maxScore := 0.0
	for _, r := range top {
		if r.SimilarityScore > maxScore {
			maxScore = r.SimilarityScore
		}
	}
	if maxScore >= 0.4 {
		return maxScore
	}

	weightedSum := 0.0
	totalWeight := 0.0
	for i, r := range top {
		weightedSum += r.SimilarityScore * confidenceWeights[i]
		totalWeight += confidenceWeights[i]
	}
	if totalWeight == 0 {
		return maxScore
	}
	return weightedSum / totalWeight
}

// CitationInfo 上下文构建时生成的引用信息,Index 与 [Source N] 标记一一对应
type CitationInfo struct {
	Index           int     `json:"index"`
	FileName        string  `json:"file_name"`
	ChunkID         string  `json:"chunk_id"`
	PageNumber      int     `json:"page_number,omitempty"`
	SimilarityScore float64 `json:"similarity_score"`
	Excerpt         string  `json:"excerpt"`
}

// ContextForLLM 将检索结果格式化为带 [Source N] 标记的上下文
// 按 ≈4 字符/token 估算累计 token,超出预算后不再纳入更多分块
func (e *RetrievalEngine) ContextForLLM(results []*RetrievalResult, maxTokens int) (string, []*CitationInfo) {
	if len(results) == 0 {
		return "", nil
	}
	if maxTokens <= 0 {
		maxTokens = e.maxContextTokens
	}

	var parts []string
	var citations []*CitationInfo
	currentTokens := 0

	for i, result := range results {
		estimatedTokens := len(result.Content) / 4
		if currentTokens+estimatedTokens > maxTokens {
			e.logger.Info("上下文超出 token 预算,截断", zap.Int("included", i))
			break
		}

		fileName := "Unknown"
		pageNumber := 0
		if result.Metadata != nil {
			if result.Metadata.FileName != "" {
				fileName = result.Metadata.FileName
			}
			pageNumber = result.Metadata.PageNumber
		}

		sourceInfo := fmt.Sprintf("[Source %d: %s]", i+1, fileName)
		if pageNumber > 0 {
			sourceInfo += fmt.Sprintf(" (Page %d)", pageNumber)
		}
		parts = append(parts, sourceInfo+"\n"+result.Content)

		excerpt := result.Content
		if len(excerpt) > excerptLength {
			excerpt = excerpt[:excerptLength] + "..."
		}
		citations = append(citations, &CitationInfo{
			Index:           i + 1,
			FileName:        fileName,
			ChunkID:         result.ChunkID,
			PageNumber:      pageNumber,
			SimilarityScore: result.SimilarityScore,
			Excerpt:         excerpt,
		})

		currentTokens += estimatedTokens
	}

	return strings.Join(parts, "\n\n---\n\n"), citations
}

func boolLabel(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
