package knowledge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"backend/internal/rag"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
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
	results  []*rag.RetrievalResult
	upserted []*rag.Vector
	deleted  int64
}

func (s *stubVectorStore) Upsert(ctx context.Context, vectors []*rag.Vector) error {
	s.upserted = append(s.upserted, vectors...)
	return nil
}

func (s *stubVectorStore) Search(ctx context.Context, queryVector []float32, topK int, filter *rag.ChunkFilter) ([]*rag.RetrievalResult, error) {
	if filter == nil || filter.TenantID == "" {
		return nil, rag.NewValidationError("tenant_id", "检索必须携带租户标识")
	}
	return s.results, nil
}

func (s *stubVectorStore) DeleteByFilter(ctx context.Context, filter *rag.ChunkFilter) (int64, error) {
	return s.deleted, nil
}

func (s *stubVectorStore) Stats(ctx context.Context, filter *rag.ChunkFilter) (*rag.VectorStoreStats, error) {
	return &rag.VectorStoreStats{TotalChunks: int64(len(s.upserted))}, nil
}

func (s *stubVectorStore) Clear(ctx context.Context) error { return nil }

func newKnowledgeTestRouter(t *testing.T, store *stubVectorStore) (*gin.Engine, *gorm.DB) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:knowledge_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&rag.KnowledgeDocument{}))

	chunker, err := rag.NewChunker(200, 40, 20)
	require.NoError(t, err)

	ingestion := rag.NewIngestionService(db, store, stubEmbedding{}, chunker, nil, nil)
	retrieval := rag.NewRetrievalEngine(stubEmbedding{}, store, rag.NewIntentClassifier(), rag.RetrievalOptions{}, nil)
	handler := NewHandler(ingestion, retrieval)

	router := gin.New()
	router.Use(func(c *gin.Context) {
		c.Set("tenant_id", "tenant-a")
		c.Set("kb_id", "kb-1")
		c.Set("user_id", "user-1")
	})
	router.POST("/api/knowledge/documents", handler.Upload)
	router.GET("/api/knowledge/documents", handler.List)
	router.DELETE("/api/knowledge/documents/:id", handler.Delete)
	router.POST("/api/knowledge/search", handler.Search)
	router.GET("/api/knowledge/stats", handler.Stats)
	return router, db
}

func uploadFile(t *testing.T, router *gin.Engine, fileName, content string) *httptest.ResponseRecorder {
	t.Helper()
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", fileName)
	require.NoError(t, err)
	_, err = part.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/knowledge/documents", &body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func policyText() string {
	return strings.Repeat("Refunds are allowed within thirty days of purchase. ", 30)
}

func TestUploadDocumentAccepted(t *testing.T) {
	store := &stubVectorStore{}
	router, _ := newKnowledgeTestRouter(t, store)

	w := uploadFile(t, router, "refund_policy.txt", policyText())
	require.Equal(t, http.StatusAccepted, w.Code)

	var resp struct {
		Success bool                        `json:"success"`
		Data    *rag.UploadDocumentResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.True(t, resp.Success)
	require.Equal(t, "indexed", resp.Data.Status)
	require.NotEmpty(t, resp.Data.DocumentID)
	require.Len(t, store.upserted, resp.Data.ChunkCount)
}

func TestUploadRejectsUnsupportedExtension(t *testing.T) {
	router, _ := newKnowledgeTestRouter(t, &stubVectorStore{})

	w := uploadFile(t, router, "malware.exe", "binary junk")
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestUploadRejectsMissingFileField(t *testing.T) {
	router, _ := newKnowledgeTestRouter(t, &stubVectorStore{})

	req := httptest.NewRequest(http.MethodPost, "/api/knowledge/documents", strings.NewReader("not multipart"))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListDocumentsAfterUpload(t *testing.T) {
	router, _ := newKnowledgeTestRouter(t, &stubVectorStore{})

	require.Equal(t, http.StatusAccepted, uploadFile(t, router, "faq.md", policyText()).Code)

	req := httptest.NewRequest(http.MethodGet, "/api/knowledge/documents", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Data []*rag.KnowledgeDocument `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Data, 1)
	require.Equal(t, "faq.md", resp.Data[0].FileName)
}

func TestDeleteUnknownDocumentReturnsNotFound(t *testing.T) {
	router, _ := newKnowledgeTestRouter(t, &stubVectorStore{})

	req := httptest.NewRequest(http.MethodDelete, "/api/knowledge/documents/no-such-id", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestDeleteDocumentReturnsChunkCount(t *testing.T) {
	store := &stubVectorStore{deleted: 4}
	router, _ := newKnowledgeTestRouter(t, store)

	w := uploadFile(t, router, "refund_policy.txt", policyText())
	require.Equal(t, http.StatusAccepted, w.Code)
	var uploadResp struct {
		Data *rag.UploadDocumentResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &uploadResp))

	req := httptest.NewRequest(http.MethodDelete, "/api/knowledge/documents/"+uploadResp.Data.DocumentID, nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Data DeleteResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Equal(t, uploadResp.Data.DocumentID, resp.Data.DocumentID)
	require.EqualValues(t, 4, resp.Data.DeletedChunks)
}

func TestSearchReturnsConfidence(t *testing.T) {
	store := &stubVectorStore{results: []*rag.RetrievalResult{
		{
			ChunkID:         "chunk-1",
			Content:         "Refunds are allowed within thirty days of purchase.",
			SimilarityScore: 0.8,
			Metadata:        &rag.ChunkMetadata{FileName: "policy.txt"},
		},
	}}
	router, _ := newKnowledgeTestRouter(t, store)

	body, _ := json.Marshal(SearchRequest{Query: "refund policy"})
	req := httptest.NewRequest(http.MethodPost, "/api/knowledge/search", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Data SearchResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Data.Results, 1)
	require.InDelta(t, 0.8, resp.Data.Confidence, 1e-9)
	require.True(t, resp.Data.HasRelevant)
}

func TestStatsReflectsIndexedChunks(t *testing.T) {
	store := &stubVectorStore{}
	router, _ := newKnowledgeTestRouter(t, store)

	require.Equal(t, http.StatusAccepted, uploadFile(t, router, "refund_policy.txt", policyText()).Code)

	req := httptest.NewRequest(http.MethodGet, "/api/knowledge/stats", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Data StatsResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.EqualValues(t, len(store.upserted), resp.Data.TotalChunks)
}
