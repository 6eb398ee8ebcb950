package rag

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// BatchItem 批量问答中单条结果,Error 非空时 Result 为空
type BatchItem struct {
	Index  int           `json:"index"`
	Result *AnswerResult `json:"result,omitempty"`
	Error  string        `json:"error,omitempty"`
}

// AnswerBatch 并发处理一批问答请求,输出顺序与输入一致,
// 单条失败或 panic 不影响其余条目
func (p *AnswerPipeline) AnswerBatch(ctx context.Context, reqs []*AnswerRequest) []*BatchItem {
	items := make([]*BatchItem, len(reqs))

	var wg sync.WaitGroup
	for i, req := range reqs {
		wg.Add(1)
		go func(idx int, r *AnswerRequest) {
			defer wg.Done()
			defer func() {
				if rec := recover(); rec != nil {
					p.logger.Error("批量问答 panic",
						zap.Int("index", idx),
						zap.Any("panic", rec),
					)
					items[idx] = &BatchItem{Index: idx, Error: fmt.Sprintf("internal error: %v", rec)}
				}
			}()

			result, err := p.Answer(ctx, r)
			if err != nil {
				items[idx] = &BatchItem{Index: idx, Error: err.Error()}
				return
			}
			items[idx] = &BatchItem{Index: idx, Result: result}
		}(i, req)
	}
	wg.Wait()

	return items
}
