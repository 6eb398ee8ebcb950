package parsers

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/dslipak/pdf"
)

// PDFParser PDF 文件解析器,逐页抽取文本并记录页边界
type PDFParser struct{}

// NewPDFParser 创建 PDF 解析器
func NewPDFParser() *PDFParser {
	return &PDFParser{}
}

// Parse 解析 PDF 文件
// pdf.NewReader 需要 ReaderAt,先整体读入内存
func (p *PDFParser) Parse(reader io.Reader) (*Document, error) {
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("读取 PDF 内容失败: %w", err)
	}

	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("打开 PDF 失败: %w", err)
	}

	var buf strings.Builder
	boundaries := make(map[int]int)
	numPages := r.NumPage()

	for i := 1; i <= numPages; i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}

		text, err := page.GetPlainText(nil)
		if err != nil {
			// 单页失败跳过,继续处理其余页面
			continue
		}

		boundaries[buf.Len()] = i
		buf.WriteString(text)
		buf.WriteString("\n")
	}

	content := strings.TrimSpace(buf.String())
	if content == "" {
		return nil, fmt.Errorf("PDF 内容为空或无法解析文本")
	}

	return &Document{Text: content, PageBoundaries: boundaries}, nil
}

// SupportedExtensions 支持的文件扩展名
func (p *PDFParser) SupportedExtensions() []string {
	return []string{".pdf"}
}

// CanParse 检查是否可以解析指定扩展名的文件
func (p *PDFParser) CanParse(extension string) bool {
	return hasExtension(p.SupportedExtensions(), extension)
}
