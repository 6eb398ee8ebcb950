package rag

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAnswerBatchPreservesOrder(t *testing.T) {
	store := &fakeVectorStore{results: []*RetrievalResult{
		resultWithScore("Refunds are allowed within 30 days of purchase.", 0.85),
	}}
	llm := &dualLLM{
		draft:   "Refunds within 30 days [Source 1].",
		verdict: passVerdict(),
	}
	p := newTestPipeline(store, llm)

	reqs := []*AnswerRequest{
		{Query: "refund policy question one", TenantID: "tenant-a"},
		{Query: "refund policy question two", TenantID: "tenant-a"},
		{Query: "refund policy question three", TenantID: "tenant-a"},
	}

	items := p.AnswerBatch(context.Background(), reqs)
	require.Len(t, items, 3)
	for i, item := range items {
		require.Equal(t, i, item.Index)
		require.NotNil(t, item.Result)
		require.Empty(t, item.Error)
	}
}

func TestAnswerBatchIsolatesFailures(t *testing.T) {
	store := &fakeVectorStore{results: []*RetrievalResult{
		resultWithScore("Refunds are allowed within 30 days of purchase.", 0.85),
	}}
	llm := &dualLLM{
		draft:   "Refunds within 30 days [Source 1].",
		verdict: passVerdict(),
	}
	p := newTestPipeline(store, llm)

	reqs := []*AnswerRequest{
		{Query: "refund policy", TenantID: "tenant-a"},
		{Query: "", TenantID: "tenant-a"}, // 非法请求
		{Query: "refund policy again", TenantID: "tenant-a"},
	}

	items := p.AnswerBatch(context.Background(), reqs)
	require.Len(t, items, 3)

	require.NotNil(t, items[0].Result)
	require.Empty(t, items[0].Error)

	require.Nil(t, items[1].Result)
	require.NotEmpty(t, items[1].Error)
	require.Equal(t, 1, items[1].Index)

	require.NotNil(t, items[2].Result)
	require.Empty(t, items[2].Error)
}
