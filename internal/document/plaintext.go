package document

import (
	"context"
	"fmt"
	"os"
	"strings"
)

// PlainTextExtractor 纯文本解析器
// 换页符 \f 视为分页，没有换页符时整篇作为第1页
type PlainTextExtractor struct{}

// NewPlainTextExtractor 创建一个新的纯文本解析器
func NewPlainTextExtractor() *PlainTextExtractor {
	return &PlainTextExtractor{}
}

// Extract 实现 Extractor 接口
func (p *PlainTextExtractor) Extract(ctx context.Context, filePath string) (*Extraction, error) {
	content, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read text file: %w", err)
	}

	text := strings.ReplaceAll(string(content), "\r\n", "\n")
	if !strings.Contains(text, "\f") {
		return singlePage(text), nil
	}

	parts := strings.Split(text, "\f")
	pages := make(PageText, len(parts))
	for i, part := range parts {
		pages[i+1] = part
	}
	return &Extraction{Pages: pages, PageCount: len(parts)}, nil
}
