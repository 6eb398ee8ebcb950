package rag

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestChunker(t *testing.T, size, overlap, min int) *Chunker {
	t.Helper()
	c, err := NewChunker(size, overlap, min)
	require.NoError(t, err)
	return c
}

func TestChunkTextSplitsOnParagraphs(t *testing.T) {
	c := newTestChunker(t, 40, 10, 5)

	text := strings.Join([]string{
		"The refund policy allows refunds within thirty days of purchase. Contact support to start a refund.",
		"Password resets are handled from the account settings page. A reset link expires after one hour.",
		"Billing invoices are generated on the first day of each month. Invoices can be downloaded as PDF.",
	}, "\n\n")

	chunks, err := c.ChunkText(text, nil)
	require.NoError(t, err)
	require.Greater(t, len(chunks), 1)

	for i, chunk := range chunks {
		require.Equal(t, i, chunk.ChunkIndex)
		require.NotEmpty(t, chunk.Content)
		require.Equal(t, c.CountTokens(chunk.Content), chunk.TokenCount)
	}
}

func TestChunkTextOverlapComesFromPreviousChunk(t *testing.T) {
	c := newTestChunker(t, 20, 10, 5)

	text := "First paragraph talks about refunds. Refunds are allowed within thirty days.\n\n" +
		"Second paragraph talks about invoices. Invoices arrive monthly by email."

	chunks, err := c.ChunkText(text, nil)
	require.NoError(t, err)
	require.Len(t, chunks, 2)

	// 第二块以第一块末尾的句子开头
	firstSentences := splitSentences(chunks[0].Content)
	lastSentence := firstSentences[len(firstSentences)-1]
	require.True(t, strings.HasPrefix(chunks[1].Content, lastSentence),
		"chunk %q should start with overlap %q", chunks[1].Content, lastSentence)
}

func TestChunkTextEmptyInput(t *testing.T) {
	c := newTestChunker(t, 600, 150, 100)

	_, err := c.ChunkText("   \n\n  ", nil)
	require.Error(t, err)
	require.True(t, IsValidationError(err))
}

func TestChunkTextDropsTinyTail(t *testing.T) {
	c := newTestChunker(t, 600, 150, 100)

	// 远小于最小分块大小的文本不产出任何分块
	chunks, err := c.ChunkText("too short", nil)
	require.NoError(t, err)
	require.Empty(t, chunks)
}

func TestChunkTextPageNumbers(t *testing.T) {
	c := newTestChunker(t, 20, 0, 5)

	page1 := "Shipping takes three to five business days in most regions of the world."
	page2 := "International shipping can take up to fifteen business days depending on customs."
	text := page1 + "\n\n" + page2
	boundaries := map[int]int{0: 1, len(page1) + 2: 2}

	chunks, err := c.ChunkText(text, boundaries)
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	require.Equal(t, 1, chunks[0].PageNumber)
	require.Equal(t, 2, chunks[1].PageNumber)
}

func TestNewChunkMetadata(t *testing.T) {
	chunk := &Chunk{ChunkIndex: 3, PageNumber: 2, TokenCount: 42}
	meta := NewChunkMetadata(chunk, "tenant-a", "kb-1", "user-1", "faq.pdf", "pdf", 7, "doc-1")

	require.Equal(t, "tenant-a", meta.TenantID)
	require.Equal(t, "kb-1", meta.KBID)
	require.Equal(t, "user-1", meta.UserID)
	require.Equal(t, 3, meta.ChunkIndex)
	require.Equal(t, 7, meta.TotalChunks)
	require.True(t, strings.HasPrefix(meta.ChunkID, "tenant-a_kb-1_faq.pdf_3_"))

	// 随机后缀保证全局唯一
	other := NewChunkMetadata(chunk, "tenant-a", "kb-1", "user-1", "faq.pdf", "pdf", 7, "doc-1")
	require.NotEqual(t, meta.ChunkID, other.ChunkID)
}
