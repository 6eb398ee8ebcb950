package rag

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkoukk/tiktoken-go"
)

var (
	paragraphSplitRe = regexp.MustCompile(`\n\s*\n`)
	sentenceSplitRe  = regexp.MustCompile(`(?:[.!?])\s+`)
)

// Chunker 文档分块器
// 按段落边界累积文本,按 token 数控制分块大小,相邻分块之间带句子级重叠
type Chunker struct {
	ChunkSize    int // 单个分块的最大 token 数
	ChunkOverlap int // 相邻分块的重叠 token 数
	MinChunkSize int // 分块的最小 token 数,小于该值的尾块被丢弃
	encoding     *tiktoken.Tiktoken
}

// NewChunker 创建分块器,使用 cl100k_base 编码做精确 token 计数
func NewChunker(chunkSize, chunkOverlap, minChunkSize int) (*Chunker, error) {
	if chunkSize <= 0 {
		chunkSize = 600
	}
	if chunkOverlap < 0 {
		chunkOverlap = 0
	}
	if chunkOverlap >= chunkSize {
		chunkOverlap = chunkSize / 4
	}
	if minChunkSize <= 0 {
		minChunkSize = 100
	}

	enc, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		return nil, fmt.Errorf("加载 tiktoken 编码失败: %w", err)
	}

	return &Chunker{
		ChunkSize:    chunkSize,
		ChunkOverlap: chunkOverlap,
		MinChunkSize: minChunkSize,
		encoding:     enc,
	}, nil
}

// Chunk 分块结果,一旦生成不再修改
type Chunk struct {
	Content    string
	ChunkIndex int
	StartChar  int
	EndChar    int
	PageNumber int // 0 表示无页码信息
	TokenCount int
}

// CountTokens 统计文本的 token 数
func (c *Chunker) CountTokens(text string) int {
	return len(c.encoding.Encode(text, nil, nil))
}

// ChunkText 对文本分块
// pageBoundaries: 字符偏移 -> 页码,分块的页码取起始偏移之前最近的页边界
// 单个段落超过 ChunkSize 时仍作为一个超大分块整体输出,不再二次切分
func (c *Chunker) ChunkText(text string, pageBoundaries map[int]int) ([]*Chunk, error) {
	if strings.TrimSpace(text) == "" {
		return nil, NewValidationError("text", "文本不能为空")
	}

	paragraphs := splitParagraphs(text)

	var chunks []*Chunk
	currentChunk := ""
	currentStart := 0
	chunkIndex := 0
	charPosition := 0

	for _, para := range paragraphs {
		paraTokens := c.CountTokens(para)
		currentTokens := c.CountTokens(currentChunk)

		if currentTokens+paraTokens > c.ChunkSize && currentChunk != "" {
			// 关闭当前分块,仅在达到最小大小时输出
			if currentTokens >= c.MinChunkSize {
				chunks = append(chunks, &Chunk{
					Content:    strings.TrimSpace(currentChunk),
					ChunkIndex: chunkIndex,
					StartChar:  currentStart,
					EndChar:    charPosition,
					PageNumber: pageForOffset(pageBoundaries, currentStart),
					TokenCount: currentTokens,
				})
				chunkIndex++
			}

			// 新分块以上一分块末尾的句子作为重叠前缀
			overlap := c.overlapText(currentChunk)
			if overlap != "" {
				currentChunk = overlap + "\n\n" + para
				currentStart = charPosition - len(overlap)
			} else {
				currentChunk = para
				currentStart = charPosition
			}
		} else {
			if currentChunk != "" {
				currentChunk += "\n\n" + para
			} else {
				currentChunk = para
				currentStart = charPosition
			}
		}

		charPosition += len(para) + 2
	}

	// 尾块不足最小大小时丢弃
	if currentChunk != "" {
		if tokens := c.CountTokens(currentChunk); tokens >= c.MinChunkSize {
			chunks = append(chunks, &Chunk{
				Content:    strings.TrimSpace(currentChunk),
				ChunkIndex: chunkIndex,
				StartChar:  currentStart,
				EndChar:    len(text),
				PageNumber: pageForOffset(pageBoundaries, currentStart),
				TokenCount: tokens,
			})
		}
	}

	return chunks, nil
}

// overlapText 从分块末尾逐句向前累积,直到重叠 token 预算用尽
func (c *Chunker) overlapText(text string) string {
	if c.ChunkOverlap <= 0 {
		return ""
	}
	sentences := splitSentences(text)
	if len(sentences) == 0 {
		return ""
	}

	overlap := ""
	tokens := 0
	for i := len(sentences) - 1; i >= 0; i-- {
		sentenceTokens := c.CountTokens(sentences[i])
		if tokens+sentenceTokens > c.ChunkOverlap {
			break
		}
		if overlap == "" {
			overlap = sentences[i]
		} else {
			overlap = sentences[i] + " " + overlap
		}
		tokens += sentenceTokens
	}

	return strings.TrimSpace(overlap)
}

// splitParagraphs 按空行切分段落
func splitParagraphs(text string) []string {
	parts := paragraphSplitRe.Split(text, -1)
	paragraphs := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			paragraphs = append(paragraphs, trimmed)
		}
	}
	return paragraphs
}

// splitSentences 按句末标点切分句子,保留结尾标点
func splitSentences(text string) []string {
	locs := sentenceSplitRe.FindAllStringIndex(text, -1)
	sentences := make([]string, 0, len(locs)+1)
	start := 0
	for _, loc := range locs {
		// loc[0]+1 保留句末标点本身
		if s := strings.TrimSpace(text[start : loc[0]+1]); s != "" {
			sentences = append(sentences, s)
		}
		start = loc[1]
	}
	if s := strings.TrimSpace(text[start:]); s != "" {
		sentences = append(sentences, s)
	}
	return sentences
}

// pageForOffset 取起始偏移之前(含)最近的页边界对应页码
func pageForOffset(pageBoundaries map[int]int, offset int) int {
	if len(pageBoundaries) == 0 {
		return 0
	}
	positions := make([]int, 0, len(pageBoundaries))
	for pos := range pageBoundaries {
		positions = append(positions, pos)
	}
	sort.Ints(positions)

	page := 0
	for _, pos := range positions {
		if pos <= offset {
			page = pageBoundaries[pos]
		} else {
			break
		}
	}
	return page
}

// ChunkMetadata 每个向量携带的元数据
// TenantID 是隔离边界,必须显式提供,绝不从其他字段推断
type ChunkMetadata struct {
	TenantID    string `json:"tenant_id"`
	KBID        string `json:"kb_id"`
	UserID      string `json:"user_id"`
	FileName    string `json:"file_name"`
	FileType    string `json:"file_type"`
	ChunkID     string `json:"chunk_id"`
	ChunkIndex  int    `json:"chunk_index"`
	PageNumber  int    `json:"page_number,omitempty"`
	TotalChunks int    `json:"total_chunks"`
	TokenCount  int    `json:"token_count"`
	DocumentID  string `json:"document_id,omitempty"`
	CreatedAt   string `json:"created_at"`
}

// NewChunkMetadata 为分块生成元数据,ChunkID 全局唯一
func NewChunkMetadata(chunk *Chunk, tenantID, kbID, userID, fileName, fileType string, totalChunks int, documentID string) *ChunkMetadata {
	chunkID := fmt.Sprintf("%s_%s_%s_%d_%s",
		tenantID, kbID, fileName, chunk.ChunkIndex, uuid.New().String()[:8])

	return &ChunkMetadata{
		TenantID:    tenantID,
		KBID:        kbID,
		UserID:      userID,
		FileName:    fileName,
		FileType:    fileType,
		ChunkID:     chunkID,
		ChunkIndex:  chunk.ChunkIndex,
		PageNumber:  chunk.PageNumber,
		TotalChunks: totalChunks,
		TokenCount:  chunk.TokenCount,
		DocumentID:  documentID,
		CreatedAt:   time.Now().UTC().Format(time.RFC3339),
	}
}
