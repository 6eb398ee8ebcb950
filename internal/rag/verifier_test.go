package rag

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type scriptedLLM struct {
	responses []string
	err       error
	calls     int
	prompts   []string
}

func (s *scriptedLLM) GenerateWithUsage(ctx context.Context, systemPrompt, userPrompt string) (string, *Usage, error) {
	s.prompts = append(s.prompts, userPrompt)
	if s.err != nil {
		return "", nil, s.err
	}
	resp := s.responses[s.calls%len(s.responses)]
	s.calls++
	return resp, &Usage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15, ModelUsed: "test-llm"}, nil
}

func (s *scriptedLLM) Name() string { return "scripted" }

func TestVerifyParsesFencedJSON(t *testing.T) {
	llm := &scriptedLLM{responses: []string{
		"```json\n{\"pass\": true, \"issues\": [], \"unsupported_claims\": [], \"final_answer\": null}\n```",
	}}
	v := NewVerifierEngine(llm, zap.NewNop())

	result := v.Verify(context.Background(), "draft answer", "context")
	require.True(t, result.Pass)
	require.Empty(t, result.Issues)
	require.Empty(t, result.FinalAnswer)
	require.NotNil(t, result.Usage)
}

func TestVerifyExtractsEmbeddedJSONObject(t *testing.T) {
	llm := &scriptedLLM{responses: []string{
		"Here is my verdict: {\"pass\": false, \"issues\": [\"claim not in context\"], \"unsupported_claims\": [\"30 day refund\"], \"final_answer\": \"corrected\"} hope that helps",
	}}
	v := NewVerifierEngine(llm, zap.NewNop())

	result := v.Verify(context.Background(), "draft", "context")
	require.False(t, result.Pass)
	require.Equal(t, []string{"claim not in context"}, result.Issues)
	require.Equal(t, []string{"30 day refund"}, result.UnsupportedClaims)
	require.Equal(t, "corrected", result.FinalAnswer)
}

func TestVerifyAmbiguousProseFailsClosed(t *testing.T) {
	llm := &scriptedLLM{responses: []string{
		"The answer looks mostly fine to me, though I could not fully check every claim.",
	}}
	v := NewVerifierEngine(llm, zap.NewNop())

	result := v.Verify(context.Background(), "draft", "context")
	require.False(t, result.Pass)
	require.NotEmpty(t, result.Issues)
}

func TestVerifyHeuristicPassMarker(t *testing.T) {
	// 非法 JSON 但明确带 pass:true 标记时,启发式放行
	llm := &scriptedLLM{responses: []string{`verdict -> "pass": true (trailing junk`}}
	v := NewVerifierEngine(llm, zap.NewNop())

	result := v.Verify(context.Background(), "draft", "context")
	require.True(t, result.Pass)
}

func TestVerifyLLMErrorFailsClosed(t *testing.T) {
	llm := &scriptedLLM{err: errors.New("upstream down")}
	v := NewVerifierEngine(llm, zap.NewNop())

	result := v.Verify(context.Background(), "draft", "context")
	require.False(t, result.Pass)
}

func TestExtractJSONObject(t *testing.T) {
	require.Equal(t, `{"a": {"b": 1}}`, extractJSONObject(`prefix {"a": {"b": 1}} suffix`))
	require.Equal(t, `{"s": "brace } in string"}`, extractJSONObject(`{"s": "brace } in string"}`))
	require.Empty(t, extractJSONObject("no object here"))
	require.Empty(t, extractJSONObject(`{"unbalanced": true`))
}
