package rag

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

// QdrantOptions 初始化 Qdrant 向量存储的配置
type QdrantOptions struct {
	Endpoint            string
	APIKey              string
	Collection          string
	VectorDimension     int
	Distance            string
	TimeoutSeconds      int
	HTTPClient          *http.Client
	SkipCollectionCheck bool
}

// QdrantStore 基于 Qdrant HTTP API 的向量存储实现
// 每个点的 payload 携带完整 ChunkMetadata,过滤条件以 must-match 形式下推
type QdrantStore struct {
	client     *http.Client
	baseURL    string
	apiKey     string
	collection string
	vectorSize int
	distance   string
	skipEnsure bool
	ensureOnce sync.Once
	ensureErr  error
}

// NewQdrantStore 创建 Qdrant 向量存储实例
func NewQdrantStore(opts QdrantOptions) (*QdrantStore, error) {
	baseURL := strings.TrimSpace(opts.Endpoint)
	if baseURL == "" {
		return nil, fmt.Errorf("qdrant endpoint 不能为空")
	}
	baseURL = strings.TrimSuffix(baseURL, "/")

	collection := opts.Collection
	if collection == "" {
		collection = "support_kb_chunks"
	}

	vectorSize := opts.VectorDimension
	if vectorSize <= 0 {
		vectorSize = 1536
	}

	distance := opts.Distance
	if distance == "" {
		distance = "Cosine"
	}

	timeout := opts.TimeoutSeconds
	if timeout <= 0 {
		timeout = 10
	}

	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: time.Duration(timeout) * time.Second}
	}

	store := &QdrantStore{
		client:     client,
		baseURL:    baseURL,
		apiKey:     opts.APIKey,
		collection: collection,
		vectorSize: vectorSize,
		distance:   distance,
		skipEnsure: opts.SkipCollectionCheck,
	}

	if err := store.ensureCollection(context.Background()); err != nil {
		return nil, err
	}

	return store, nil
}

// Upsert 写入或更新一批向量
func (s *QdrantStore) Upsert(ctx context.Context, vectors []*Vector) error {
	if len(vectors) == 0 {
		return nil
	}
	if err := s.ensureCollection(ctx); err != nil {
		return err
	}

	points := make([]qdrantPoint, 0, len(vectors))
	for _, vec := range vectors {
		if vec == nil || vec.Metadata == nil {
			continue
		}
		if vec.Metadata.TenantID == "" {
			return NewValidationError("tenant_id", "向量元数据缺少租户标识")
		}
		if len(vec.Embedding) != s.vectorSize {
			return fmt.Errorf("向量维度不匹配: 期望 %d 实际 %d", s.vectorSize, len(vec.Embedding))
		}

		payload := map[string]any{
			"tenant_id":    vec.Metadata.TenantID,
			"kb_id":        vec.Metadata.KBID,
			"user_id":      vec.Metadata.UserID,
			"file_name":    vec.Metadata.FileName,
			"file_type":    vec.Metadata.FileType,
			"chunk_id":     vec.Metadata.ChunkID,
			"chunk_index":  vec.Metadata.ChunkIndex,
			"total_chunks": vec.Metadata.TotalChunks,
			"token_count":  vec.Metadata.TokenCount,
			"content":      vec.Content,
			"created_at":   vec.Metadata.CreatedAt,
		}
		if vec.Metadata.PageNumber > 0 {
			payload["page_number"] = vec.Metadata.PageNumber
		}
		if vec.Metadata.DocumentID != "" {
			payload["document_id"] = vec.Metadata.DocumentID
		}

		points = append(points, qdrantPoint{
			ID:      vec.ChunkID,
			Vector:  vec.Embedding,
			Payload: payload,
		})
	}

	req := upsertPointsRequest{Points: points}
	var resp qdrantOperationResponse
	if err := s.doRequest(ctx, http.MethodPut, s.pointsURL("?wait=true"), req, &resp); err != nil {
		return err
	}
	if resp.Status != "ok" {
		return fmt.Errorf("qdrant upsert 失败: %s", resp.Error)
	}
	return nil
}

// Search 执行过滤相似度检索
// filter 必须携带租户标识,返回结果按相似度降序,分数截断到 [0,1]
func (s *QdrantStore) Search(ctx context.Context, queryVector []float32, topK int, filter *ChunkFilter) ([]*RetrievalResult, error) {
	if len(queryVector) == 0 {
		return nil, NewValidationError("query_vector", "查询向量不能为空")
	}
	if filter == nil || filter.TenantID == "" {
		return nil, NewValidationError("tenant_id", "检索必须携带租户标识")
	}
	if err := s.ensureCollection(ctx); err != nil {
		return nil, err
	}
	if topK <= 0 {
		topK = 10
	}

	req := searchRequest{
		Vector:      queryVector,
		Limit:       topK,
		WithPayload: true,
		Filter:      mustMatchFilter(filter.Conditions()),
	}

	var resp searchResponse
	if err := s.doRequest(ctx, http.MethodPost, s.collectionPath("/points/search"), req, &resp); err != nil {
		return nil, err
	}
	if resp.Status != "ok" {
		return nil, fmt.Errorf("qdrant search 失败: %s", resp.Error)
	}

	results := make([]*RetrievalResult, 0, len(resp.Result))
	for _, item := range resp.Result {
		meta := metadataFromPayload(item.Payload)
		content, _ := item.Payload["content"].(string)

		score := item.Score
		if score < 0 {
			score = 0
		}
		if score > 1 {
			score = 1
		}

		results = append(results, &RetrievalResult{
			ChunkID:         meta.ChunkID,
			Content:         content,
			Metadata:        meta,
			SimilarityScore: score,
		})
	}

	return results, nil
}

// DeleteByFilter 删除匹配过滤条件的全部向量,返回删除数量
func (s *QdrantStore) DeleteByFilter(ctx context.Context, filter *ChunkFilter) (int64, error) {
	if filter == nil || filter.TenantID == "" {
		return 0, NewValidationError("tenant_id", "删除必须携带租户标识")
	}
	if err := s.ensureCollection(ctx); err != nil {
		return 0, err
	}

	qf := mustMatchFilter(filter.Conditions())

	// Qdrant 删除接口不返回数量,先 count 再删除
	count, err := s.countByFilter(ctx, qf)
	if err != nil {
		return 0, err
	}
	if count == 0 {
		return 0, nil
	}

	req := deletePointsRequest{Filter: qf}
	var resp qdrantOperationResponse
	if err := s.doRequest(ctx, http.MethodPost, s.collectionPath("/points/delete?wait=true"), req, &resp); err != nil {
		return 0, err
	}
	if resp.Status != "ok" {
		return 0, fmt.Errorf("qdrant delete 失败: %s", resp.Error)
	}
	return count, nil
}

// Stats 统计匹配过滤条件的向量数量
func (s *QdrantStore) Stats(ctx context.Context, filter *ChunkFilter) (*VectorStoreStats, error) {
	if err := s.ensureCollection(ctx); err != nil {
		return nil, err
	}

	var qf *qdrantFilter
	if filter != nil {
		qf = mustMatchFilter(filter.Conditions())
	}

	count, err := s.countByFilter(ctx, qf)
	if err != nil {
		return nil, err
	}

	return &VectorStoreStats{TotalChunks: count}, nil
}

// Clear 删除并重建集合
func (s *QdrantStore) Clear(ctx context.Context) error {
	var resp qdrantOperationResponse
	if err := s.doRequest(ctx, http.MethodDelete, s.collectionPath(""), nil, &resp); err != nil {
		return err
	}

	createReq := createCollectionRequest{
		Vectors: qdrantVectorParams{Size: s.vectorSize, Distance: s.distance},
	}
	if err := s.doRequest(ctx, http.MethodPut, s.collectionPath(""), createReq, &resp); err != nil {
		return err
	}
	if resp.Status != "ok" {
		return fmt.Errorf("重建 Qdrant 集合失败: %s", resp.Error)
	}
	return nil
}

// --- 内部辅助 ---

func (s *QdrantStore) countByFilter(ctx context.Context, qf *qdrantFilter) (int64, error) {
	req := countRequest{Filter: qf}
	var resp countResponse
	if err := s.doRequest(ctx, http.MethodPost, s.collectionPath("/points/count"), req, &resp); err != nil {
		return 0, err
	}
	if resp.Status != "ok" {
		return 0, fmt.Errorf("qdrant count 失败: %s", resp.Error)
	}
	return resp.Result.Count, nil
}

func (s *QdrantStore) collectionPath(path string) string {
	return fmt.Sprintf("/collections/%s%s", url.PathEscape(s.collection), path)
}

func (s *QdrantStore) pointsURL(query string) string {
	return fmt.Sprintf("/collections/%s/points%s", url.PathEscape(s.collection), query)
}

func (s *QdrantStore) ensureCollection(ctx context.Context) error {
	if s.skipEnsure {
		return nil
	}
	s.ensureOnce.Do(func() {
		// 先探测集合是否存在
		var resp qdrantOperationResponse
		err := s.doRequest(ctx, http.MethodGet, s.collectionPath(""), nil, &resp)
		if err == nil && resp.Status == "ok" {
			s.ensureErr = nil
			return
		}

		createReq := createCollectionRequest{
			Vectors: qdrantVectorParams{
				Size:     s.vectorSize,
				Distance: s.distance,
			},
		}
		s.ensureErr = s.doRequest(ctx, http.MethodPut, s.collectionPath(""), createReq, &resp)
		if s.ensureErr == nil && resp.Status != "ok" {
			s.ensureErr = fmt.Errorf("创建 Qdrant 集合失败: %s", resp.Error)
		}
	})
	return s.ensureErr
}

func (s *QdrantStore) doRequest(ctx context.Context, method, path string, payload any, dest any) error {
	var bodyReader *bytes.Reader
	if payload != nil {
		buf, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("序列化请求失败: %w", err)
		}
		bodyReader = bytes.NewReader(buf)
	} else {
		bodyReader = bytes.NewReader(nil)
	}

	fullURL := s.baseURL + path
	req, err := http.NewRequestWithContext(ctx, method, fullURL, bodyReader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("api-key", s.apiKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var errBody map[string]any
		_ = json.NewDecoder(resp.Body).Decode(&errBody)
		return fmt.Errorf("qdrant API 错误: %s (%d)", errBody["status"], resp.StatusCode)
	}

	if dest == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(dest)
}

func mustMatchFilter(values map[string]string) *qdrantFilter {
	if len(values) == 0 {
		return nil
	}
	must := make([]fieldCondition, 0, len(values))
	for k, v := range values {
		if v == "" {
			continue
		}
		must = append(must, fieldCondition{
			Key:   k,
			Match: fieldMatch{Value: v},
		})
	}
	if len(must) == 0 {
		return nil
	}
	return &qdrantFilter{Must: must}
}

func metadataFromPayload(payload map[string]any) *ChunkMetadata {
	meta := &ChunkMetadata{
		TenantID:    stringFromPayload(payload, "tenant_id"),
		KBID:        stringFromPayload(payload, "kb_id"),
		UserID:      stringFromPayload(payload, "user_id"),
		FileName:    stringFromPayload(payload, "file_name"),
		FileType:    stringFromPayload(payload, "file_type"),
		ChunkID:     stringFromPayload(payload, "chunk_id"),
		DocumentID:  stringFromPayload(payload, "document_id"),
		CreatedAt:   stringFromPayload(payload, "created_at"),
		ChunkIndex:  toInt(payload["chunk_index"]),
		PageNumber:  toInt(payload["page_number"]),
		TotalChunks: toInt(payload["total_chunks"]),
		TokenCount:  toInt(payload["token_count"]),
	}
	return meta
}

func stringFromPayload(payload map[string]any, key string) string {
	if payload == nil {
		return ""
	}
	if v, ok := payload[key]; ok && v != nil {
		return fmt.Sprint(v)
	}
	return ""
}

func toInt(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case int32:
		return int(n)
	case int64:
		return int(n)
	case float32:
		return int(n)
	case float64:
		return int(n)
	case string:
		var iv int
		fmt.Sscanf(n, "%d", &iv)
		return iv
	default:
		return 0
	}
}

// --- Qdrant API payloads ---

type qdrantVectorParams struct {
	Size     int    `json:"size"`
	Distance string `json:"distance"`
}

type createCollectionRequest struct {
	Vectors qdrantVectorParams `json:"vectors"`
}

type qdrantPoint struct {
	ID      string         `json:"id"`
	Vector  []float32      `json:"vector"`
	Payload map[string]any `json:"payload"`
}

type upsertPointsRequest struct {
	Points []qdrantPoint `json:"points"`
}

type fieldCondition struct {
	Key   string     `json:"key"`
	Match fieldMatch `json:"match"`
}

type fieldMatch struct {
	Value any `json:"value"`
}

type qdrantFilter struct {
	Must []fieldCondition `json:"must,omitempty"`
}

type deletePointsRequest struct {
	Points []string      `json:"points,omitempty"`
	Filter *qdrantFilter `json:"filter,omitempty"`
}

type searchRequest struct {
	Vector      []float32     `json:"vector"`
	Limit       int           `json:"limit"`
	WithPayload bool          `json:"with_payload"`
	Filter      *qdrantFilter `json:"filter,omitempty"`
}

type searchResponse struct {
	Status string              `json:"status"`
	Result []searchResultEntry `json:"result"`
	Error  string              `json:"error"`
}

type searchResultEntry struct {
	ID      any            `json:"id"`
	Score   float64        `json:"score"`
	Payload map[string]any `json:"payload"`
}

type qdrantOperationResponse struct {
	Status string `json:"status"`
	Error  string `json:"error"`
}

type countRequest struct {
	Filter *qdrantFilter `json:"filter,omitempty"`
}

type countResponse struct {
	Status string `json:"status"`
	Result struct {
		Count int64 `json:"count"`
	} `json:"result"`
	Error string `json:"error"`
}
