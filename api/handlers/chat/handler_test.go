package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"backend/internal/rag"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

type stubEmbedding struct{}

func (stubEmbedding) Embed(ctx context.Context, text string) ([]float32, error) {
	return []float32{1, 0, 0}, nil
}

func (s stubEmbedding) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	res := make([][]float32, len(texts))
	for i := range texts {
		res[i] = []float32{1, 0, 0}
	}
	return res, nil
}

func (s stubEmbedding) EmbedQuery(ctx context.Context, query string) ([]float32, error) {
	return s.Embed(ctx, query)
}

func (stubEmbedding) GetModel() string        { return "test-model" }
func (stubEmbedding) GetProviderName() string { return "test-provider" }

type stubVectorStore struct {
	results []*rag.RetrievalResult
}

func (s *stubVectorStore) Upsert(ctx context.Context, vectors []*rag.Vector) error { return nil }

func (s *stubVectorStore) Search(ctx context.Context, queryVector []float32, topK int, filter *rag.ChunkFilter) ([]*rag.RetrievalResult, error) {
	if filter == nil || filter.TenantID == "" {
		return nil, rag.NewValidationError("tenant_id", "检索必须携带租户标识")
	}
	return s.results, nil
}

func (s *stubVectorStore) DeleteByFilter(ctx context.Context, filter *rag.ChunkFilter) (int64, error) {
	return 0, nil
}

func (s *stubVectorStore) Stats(ctx context.Context, filter *rag.ChunkFilter) (*rag.VectorStoreStats, error) {
	return &rag.VectorStoreStats{}, nil
}

func (s *stubVectorStore) Clear(ctx context.Context) error { return nil }

// stubLLM 依据系统提示词区分草稿与校验两类调用
type stubLLM struct{}

func (stubLLM) GenerateWithUsage(ctx context.Context, systemPrompt, userPrompt string) (string, *rag.Usage, error) {
	usage := &rag.Usage{PromptTokens: 100, CompletionTokens: 50, TotalTokens: 150}
	if strings.Contains(systemPrompt, "fact-checker") {
		return `{"pass": true, "issues": [], "unsupported_claims": []}`, usage, nil
	}
	return "Refunds are processed within 30 days [Source 1].", usage, nil
}

func (stubLLM) Name() string { return "stub" }

func newChatTestRouter(store *stubVectorStore) *gin.Engine {
	gin.SetMode(gin.TestMode)

	intents := rag.NewIntentClassifier()
	retrieval := rag.NewRetrievalEngine(stubEmbedding{}, store, intents, rag.RetrievalOptions{}, nil)
	verifier := rag.NewVerifierEngine(stubLLM{}, nil)
	pipeline := rag.NewAnswerPipeline(retrieval, verifier, stubLLM{}, intents, nil)
	handler := NewHandler(pipeline)

	router := gin.New()
	router.Use(func(c *gin.Context) {
		c.Set("tenant_id", "tenant-a")
		c.Set("kb_id", "kb-1")
		c.Set("user_id", "user-1")
	})
	router.POST("/api/chat/ask", handler.Ask)
	router.POST("/api/chat/ask/batch", handler.AskBatch)
	return router
}

func postJSON(t *testing.T, router *gin.Engine, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	buf, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(buf))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestAskReturnsAnsweredResult(t *testing.T) {
	store := &stubVectorStore{results: []*rag.RetrievalResult{
		{
			ChunkID:         "chunk-1",
			Content:         "Refunds are processed within 30 days of purchase.",
			SimilarityScore: 0.9,
			Metadata:        &rag.ChunkMetadata{FileName: "policy.txt"},
		},
	}}
	router := newChatTestRouter(store)

	w := postJSON(t, router, "/api/chat/ask", AskRequest{Query: "what is the refund policy"})
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Success bool              `json:"success"`
		Data    *rag.AnswerResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.True(t, resp.Success)
	require.Equal(t, rag.AnswerStateAnswered, resp.Data.State)
	require.Contains(t, resp.Data.Answer, "[Source 1]")
	require.Len(t, resp.Data.Citations, 1)
}

func TestAskEmptyKnowledgeBaseRefuses(t *testing.T) {
	router := newChatTestRouter(&stubVectorStore{})

	w := postJSON(t, router, "/api/chat/ask", AskRequest{Query: "what is the refund policy"})
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Data *rag.AnswerResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Equal(t, rag.AnswerStateRefused, resp.Data.State)
	require.Equal(t, rag.RefusalNoContext, resp.Data.RefusalReason)
}

func TestAskRejectsMissingQuery(t *testing.T) {
	router := newChatTestRouter(&stubVectorStore{})

	w := postJSON(t, router, "/api/chat/ask", map[string]any{})
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAskBatchPreservesOrder(t *testing.T) {
	store := &stubVectorStore{results: []*rag.RetrievalResult{
		{
			ChunkID:         "chunk-1",
			Content:         "Refunds are processed within 30 days of purchase.",
			SimilarityScore: 0.9,
			Metadata:        &rag.ChunkMetadata{FileName: "policy.txt"},
		},
	}}
	router := newChatTestRouter(store)

	w := postJSON(t, router, "/api/chat/ask/batch", BatchAskRequest{
		Queries: []AskRequest{
			{Query: "what is the refund policy"},
			{Query: "how long does shipping take"},
		},
	})
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Data []*rag.BatchItem `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Data, 2)
	require.Equal(t, 0, resp.Data[0].Index)
	require.Equal(t, 1, resp.Data[1].Index)
	require.NotNil(t, resp.Data[0].Result)
	require.Empty(t, resp.Data[0].Error)
}

func TestAskBatchRejectsEmptyList(t *testing.T) {
	router := newChatTestRouter(&stubVectorStore{})

	w := postJSON(t, router, "/api/chat/ask/batch", BatchAskRequest{Queries: []AskRequest{}})
	require.Equal(t, http.StatusBadRequest, w.Code)
}
