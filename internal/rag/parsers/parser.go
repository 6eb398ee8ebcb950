package parsers

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"
)

// Document 解析后的文档内容
// PageBoundaries: 字符偏移 -> 页码,纯文本格式为空
type Document struct {
	Text           string
	PageBoundaries map[int]int
}

// Parser 文档解析器接口
type Parser interface {
	// Parse 从 reader 读取并抽取文本内容
	Parse(reader io.Reader) (*Document, error)

	// SupportedExtensions 返回支持的扩展名列表 (如 ".txt")
	SupportedExtensions() []string

	// CanParse 判断是否支持指定扩展名
	CanParse(extension string) bool
}

// ParserRegistry 文档解析器注册表
type ParserRegistry struct {
	parsers []Parser
}

// NewParserRegistry 创建注册表并注册默认解析器
func NewParserRegistry() *ParserRegistry {
	r := &ParserRegistry{
		parsers: make([]Parser, 0),
	}

	r.Register(NewTextParser())
	r.Register(NewMarkdownParser())
	r.Register(NewPDFParser())

	return r
}

// Register 注册解析器
func (r *ParserRegistry) Register(p Parser) {
	r.parsers = append(r.parsers, p)
}

// Parse 按扩展名选择解析器并解析文档
func (r *ParserRegistry) Parse(fileName string, reader io.Reader) (*Document, error) {
	ext := strings.ToLower(filepath.Ext(fileName))

	for _, p := range r.parsers {
		if p.CanParse(ext) {
			return p.Parse(reader)
		}
	}

	return nil, fmt.Errorf("不支持的文件类型: %s", ext)
}

// Supported 判断文件名是否有可用解析器
func (r *ParserRegistry) Supported(fileName string) bool {
	ext := strings.ToLower(filepath.Ext(fileName))
	for _, p := range r.parsers {
		if p.CanParse(ext) {
			return true
		}
	}
	return false
}

func hasExtension(extensions []string, extension string) bool {
	extension = strings.ToLower(extension)
	for _, ext := range extensions {
		if ext == extension {
			return true
		}
	}
	return false
}
