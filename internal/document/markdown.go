package document

import (
	"context"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/gomarkdown/markdown/ast"
	"github.com/gomarkdown/markdown/parser"
)

// MarkdownExtractor Markdown文档解析器
// 整篇文档作为第1页，块级元素之间保留空行以便按段落切分
type MarkdownExtractor struct{}

// NewMarkdownExtractor 创建新的Markdown解析器
func NewMarkdownExtractor() *MarkdownExtractor {
	return &MarkdownExtractor{}
}

// Extract 实现 Extractor 接口
func (m *MarkdownExtractor) Extract(ctx context.Context, filePath string) (*Extraction, error) {
	content, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read markdown file: %w", err)
	}
	return singlePage(MarkdownToText(content)), nil
}

var excessBlankLines = regexp.MustCompile(`\n{3,}`)

// MarkdownToText 将Markdown转换为纯文本
func MarkdownToText(content []byte) string {
	extensions := parser.CommonExtensions | parser.AutoHeadingIDs
	doc := parser.NewWithExtensions(extensions).Parse(content)

	var sb strings.Builder
	ast.WalkFunc(doc, func(node ast.Node, entering bool) ast.WalkStatus {
		switch n := node.(type) {
		case *ast.Text:
			if entering {
				sb.Write(n.Literal)
			}
		case *ast.Code:
			if entering {
				sb.Write(n.Literal)
			}
		case *ast.CodeBlock:
			if entering {
				sb.Write(n.Literal)
				sb.WriteString("\n\n")
			}
		case *ast.Softbreak, *ast.Hardbreak:
			if entering {
				sb.WriteString("\n")
			}
		case *ast.ListItem:
			if entering {
				sb.WriteString("- ")
			} else {
				sb.WriteString("\n")
			}
		case *ast.Paragraph:
			// 列表项中的段落不额外插入空行
			if !entering {
				if _, inList := n.Parent.(*ast.ListItem); !inList {
					sb.WriteString("\n\n")
				}
			}
		case *ast.Heading, *ast.List, *ast.BlockQuote, *ast.TableRow:
			if !entering {
				sb.WriteString("\n\n")
			}
		case *ast.TableCell:
			if !entering {
				sb.WriteString(" ")
			}
		}
		return ast.GoToNext
	})

	return strings.TrimSpace(excessBlankLines.ReplaceAllString(sb.String(), "\n\n"))
}
