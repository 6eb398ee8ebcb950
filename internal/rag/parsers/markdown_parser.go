package parsers

import (
	"fmt"
	"io"
	"regexp"
	"strings"
)

// MarkdownParser Markdown 解析器,去除语法标记但保留结构
// 支持: .md, .markdown
type MarkdownParser struct{}

// NewMarkdownParser 创建 Markdown 解析器
func NewMarkdownParser() *MarkdownParser {
	return &MarkdownParser{}
}

var (
	mdCodeBlockRe   = regexp.MustCompile("(?s)```.*?```")
	mdInlineCodeRe  = regexp.MustCompile("`([^`]+)`")
	mdHeaderRe      = regexp.MustCompile(`(?m)^#{1,6}\s+(.+)$`)
	mdBoldRe        = regexp.MustCompile(`\*\*([^*]+)\*\*`)
	mdItalicRe      = regexp.MustCompile(`\*([^*]+)\*`)
	mdBoldUnderRe   = regexp.MustCompile(`__([^_]+)__`)
	mdItalicUnderRe = regexp.MustCompile(`_([^_]+)_`)
	mdImageRe       = regexp.MustCompile(`!\[([^\]]*)\]\([^)]+\)`)
	mdLinkRe        = regexp.MustCompile(`\[([^\]]+)\]\([^)]+\)`)
	mdBulletRe      = regexp.MustCompile(`(?m)^[*\-+]\s+`)
	mdOrderedRe     = regexp.MustCompile(`(?m)^\d+\.\s+`)
	multiNewlineRe  = regexp.MustCompile(`\n{3,}`)
)

// Parse 解析 Markdown 文件,标题转为"文本:"形式,列表转为普通行
func (p *MarkdownParser) Parse(reader io.Reader) (*Document, error) {
	content, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("读取文件失败: %w", err)
	}

	text := string(content)
	text = mdCodeBlockRe.ReplaceAllString(text, "")
	text = mdInlineCodeRe.ReplaceAllString(text, "$1")
	text = mdHeaderRe.ReplaceAllString(text, "$1:")
	text = mdBoldRe.ReplaceAllString(text, "$1")
	text = mdItalicRe.ReplaceAllString(text, "$1")
	text = mdBoldUnderRe.ReplaceAllString(text, "$1")
	text = mdItalicUnderRe.ReplaceAllString(text, "$1")
	// 图片先于链接处理,两者语法仅差一个感叹号
	text = mdImageRe.ReplaceAllString(text, "")
	text = mdLinkRe.ReplaceAllString(text, "$1")
	text = mdBulletRe.ReplaceAllString(text, "")
	text = mdOrderedRe.ReplaceAllString(text, "")

	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(line)
	}
	text = strings.Join(lines, "\n")
	text = multiNewlineRe.ReplaceAllString(text, "\n\n")
	text = strings.TrimSpace(text)

	if text == "" {
		return nil, fmt.Errorf("文件内容为空")
	}

	return &Document{Text: text}, nil
}

// SupportedExtensions 支持的文件扩展名
func (p *MarkdownParser) SupportedExtensions() []string {
	return []string{".md", ".markdown"}
}

// CanParse 检查是否可以解析指定扩展名的文件
func (p *MarkdownParser) CanParse(extension string) bool {
	return hasExtension(p.SupportedExtensions(), extension)
}
