package rag

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDetectIntents(t *testing.T) {
	c := NewIntentClassifier()

	require.Contains(t, c.Detect("How do I integrate Shopify with my store?"), IntentIntegration)
	require.Contains(t, c.Detect("Where can I download my invoice?"), "billing")
	require.Equal(t, []string{IntentGeneral}, c.Detect("Hello there"))
}

func TestDetectMatchesWholeWordsOnly(t *testing.T) {
	c := NewIntentClassifier()

	// "rapid" 含 "api" 子串但不是完整单词,不应命中 integration
	intents := c.Detect("The rapid growth of our team")
	require.Equal(t, []string{IntentGeneral}, intents)
}

func TestHasIntegrationIntent(t *testing.T) {
	require.True(t, HasIntegrationIntent("connect my store", []string{IntentIntegration}))
	require.True(t, HasIntegrationIntent("what about the api limits", []string{IntentGeneral}))
	require.False(t, HasIntegrationIntent("refund please", []string{"billing"}))
}

func TestDirectMatchRequiresKeywordAndQueryWords(t *testing.T) {
	c := NewIntentClassifier()
	query := "How to integrate the webhook endpoint?"
	keywords := c.Keywords([]string{IntentIntegration})

	// 同时包含意图关键词和 ≥2 个查询词
	require.True(t, c.DirectMatch(query, []string{
		"To integrate the webhook endpoint, open the developer settings page.",
	}, keywords))

	// 包含关键词但查询词不足
	require.False(t, c.DirectMatch(query, []string{
		"Webhook deliveries are retried three times.",
	}, keywords))

	// 不含任何意图关键词
	require.False(t, c.DirectMatch(query, []string{
		"Refunds are processed within thirty days.",
	}, keywords))

	require.False(t, c.DirectMatch(query, nil, keywords))
}

func TestDirectMatchSingleImportantWord(t *testing.T) {
	c := NewIntentClassifier()

	// 只有一个非停用词时要求该词完整出现
	require.True(t, c.DirectMatch("what is api", []string{"The api reference lists all endpoints."}, nil))
	require.False(t, c.DirectMatch("what is api", []string{"The rapid response team."}, nil))
}

func TestLenientMatch(t *testing.T) {
	require.True(t, LenientMatch("refund policy", []string{"Our refund window is thirty days."}))
	require.False(t, LenientMatch("refund policy", []string{"Shipping takes five days."}))
	require.False(t, LenientMatch("what is the", []string{"anything"}))
}
