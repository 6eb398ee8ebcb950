package rag

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type fakeQueueClient struct {
	docIDs []string
}

func (f *fakeQueueClient) EnqueueProcessDocument(documentID string) error {
	f.docIDs = append(f.docIDs, documentID)
	return nil
}

func (f *fakeQueueClient) Close() error { return nil }

func setupIngestionTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:ingestion_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&KnowledgeDocument{}))
	return db
}

func testDocumentText() string {
	paras := make([]string, 0, 4)
	for i := 0; i < 4; i++ {
		paras = append(paras, strings.Repeat("Refunds are allowed within thirty days of purchase. ", 10))
	}
	return strings.Join(paras, "\n\n")
}

func newTestIngestion(t *testing.T, db *gorm.DB, store *fakeVectorStore, queue *fakeQueueClient) *IngestionService {
	t.Helper()
	chunker, err := NewChunker(200, 40, 20)
	require.NoError(t, err)
	if queue == nil {
		return NewIngestionService(db, store, &fakeEmbeddingProvider{}, chunker, nil, zap.NewNop())
	}
	return NewIngestionService(db, store, &fakeEmbeddingProvider{}, chunker, queue, zap.NewNop())
}

func TestUploadDocumentSynchronous(t *testing.T) {
	ctx := context.Background()
	db := setupIngestionTestDB(t)
	store := &fakeVectorStore{}
	svc := newTestIngestion(t, db, store, nil)

	resp, err := svc.UploadDocument(ctx, &UploadDocumentRequest{
		TenantID: "tenant-a",
		KBID:     "kb-1",
		UserID:   "user-1",
		FileName: "refund_policy.txt",
		FileSize: 1024,
		Reader:   strings.NewReader(testDocumentText()),
	})
	require.NoError(t, err)
	require.Equal(t, "indexed", resp.Status)
	require.Greater(t, resp.ChunkCount, 0)
	require.Len(t, store.upserted, resp.ChunkCount)

	// 每个向量都携带完整的租户元数据
	for i, v := range store.upserted {
		require.Equal(t, "tenant-a", v.Metadata.TenantID)
		require.Equal(t, "kb-1", v.Metadata.KBID)
		require.Equal(t, "user-1", v.Metadata.UserID)
		require.Equal(t, i, v.Metadata.ChunkIndex)
		require.Equal(t, resp.ChunkCount, v.Metadata.TotalChunks)
		require.Equal(t, resp.DocumentID, v.Metadata.DocumentID)
	}
}

func TestUploadDocumentAsyncEnqueues(t *testing.T) {
	ctx := context.Background()
	db := setupIngestionTestDB(t)
	store := &fakeVectorStore{}
	queue := &fakeQueueClient{}
	svc := newTestIngestion(t, db, store, queue)

	resp, err := svc.UploadDocument(ctx, &UploadDocumentRequest{
		TenantID: "tenant-a",
		KBID:     "kb-1",
		UserID:   "user-1",
		FileName: "faq.md",
		Reader:   strings.NewReader(testDocumentText()),
	})
	require.NoError(t, err)
	require.Equal(t, "processing", resp.Status)
	require.Equal(t, []string{resp.DocumentID}, queue.docIDs)
	require.Empty(t, store.upserted)

	// Worker 侧处理后落库
	require.NoError(t, svc.ProcessDocument(ctx, resp.DocumentID))
	require.NotEmpty(t, store.upserted)

	var doc KnowledgeDocument
	require.NoError(t, db.Where("id = ?", resp.DocumentID).First(&doc).Error)
	require.Equal(t, "indexed", doc.Status)
	require.Equal(t, len(store.upserted), doc.ChunkCount)
}

func TestUploadDocumentRejectsUnsupportedType(t *testing.T) {
	db := setupIngestionTestDB(t)
	svc := newTestIngestion(t, db, &fakeVectorStore{}, nil)

	_, err := svc.UploadDocument(context.Background(), &UploadDocumentRequest{
		TenantID: "tenant-a",
		FileName: "virus.exe",
		Reader:   strings.NewReader("binary"),
	})
	require.True(t, IsValidationError(err))
}

func TestUploadDocumentRequiresTenant(t *testing.T) {
	db := setupIngestionTestDB(t)
	svc := newTestIngestion(t, db, &fakeVectorStore{}, nil)

	_, err := svc.UploadDocument(context.Background(), &UploadDocumentRequest{
		FileName: "a.txt",
		Reader:   strings.NewReader("content"),
	})
	require.True(t, IsValidationError(err))
}

func TestDeleteDocumentScopedByTenant(t *testing.T) {
	ctx := context.Background()
	db := setupIngestionTestDB(t)
	store := &fakeVectorStore{deleted: 5}
	svc := newTestIngestion(t, db, store, nil)

	resp, err := svc.UploadDocument(ctx, &UploadDocumentRequest{
		TenantID: "tenant-a",
		KBID:     "kb-1",
		UserID:   "user-1",
		FileName: "policy.txt",
		Reader:   strings.NewReader(testDocumentText()),
	})
	require.NoError(t, err)

	// 其他租户不可见
	_, err = svc.DeleteDocument(ctx, resp.DocumentID, "tenant-b")
	require.True(t, IsValidationError(err))

	deleted, err := svc.DeleteDocument(ctx, resp.DocumentID, "tenant-a")
	require.NoError(t, err)
	require.Equal(t, int64(5), deleted)
	require.Equal(t, "tenant-a", store.lastFilter.TenantID)
	require.Equal(t, resp.DocumentID, store.lastFilter.DocumentID)

	// 软删除后列表不再返回
	docs, err := svc.ListDocuments(ctx, "tenant-a", "kb-1")
	require.NoError(t, err)
	require.Empty(t, docs)
}

func TestListDocumentsScopedByTenantAndKB(t *testing.T) {
	ctx := context.Background()
	db := setupIngestionTestDB(t)
	svc := newTestIngestion(t, db, &fakeVectorStore{}, nil)

	for _, tc := range []struct{ tenant, kb, name string }{
		{"tenant-a", "kb-1", "a1.txt"},
		{"tenant-a", "kb-2", "a2.txt"},
		{"tenant-b", "kb-1", "b1.txt"},
	} {
		_, err := svc.UploadDocument(ctx, &UploadDocumentRequest{
			TenantID: tc.tenant,
			KBID:     tc.kb,
			UserID:   "user-1",
			FileName: tc.name,
			Reader:   strings.NewReader(testDocumentText()),
		})
		require.NoError(t, err)
	}

	docs, err := svc.ListDocuments(ctx, "tenant-a", "kb-1")
	require.NoError(t, err)
	require.Len(t, docs, 1)
	require.Equal(t, "a1.txt", docs[0].FileName)

	docs, err = svc.ListDocuments(ctx, "tenant-a", "")
	require.NoError(t, err)
	require.Len(t, docs, 2)
}
