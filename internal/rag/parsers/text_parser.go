package parsers

import (
	"fmt"
	"io"
	"strings"
)

// TextParser 纯文本文件解析器
// 支持: .txt
type TextParser struct{}

// NewTextParser 创建文本解析器
func NewTextParser() *TextParser {
	return &TextParser{}
}

// Parse 解析文本文件
func (p *TextParser) Parse(reader io.Reader) (*Document, error) {
	content, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("读取文件失败: %w", err)
	}

	text := strings.TrimSpace(string(content))
	if text == "" {
		return nil, fmt.Errorf("文件内容为空")
	}

	return &Document{Text: text}, nil
}

// SupportedExtensions 支持的文件扩展名
func (p *TextParser) SupportedExtensions() []string {
	return []string{".txt"}
}

// CanParse 检查是否可以解析指定扩展名的文件
func (p *TextParser) CanParse(extension string) bool {
	return hasExtension(p.SupportedExtensions(), extension)
}
