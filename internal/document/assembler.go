package document

import (
	"sort"
	"strings"
)

// PageText 页码（从1开始）到页面原始文本的映射
type PageText map[int]string

// SortedPages 返回升序排列的页码
func (p PageText) SortedPages() []int {
	pages := make([]int, 0, len(p))
	for page := range p {
		pages = append(pages, page)
	}
	sort.Ints(pages)
	return pages
}

// Chunk 带页码的文本块
type Chunk struct {
	Page int    `json:"page"`
	Text string `json:"text"`
}

// Assembler 按页调用分段器，生成整篇文档的文本块序列
type Assembler struct {
	splitter Splitter
}

// NewAssembler 创建文本块组装器
func NewAssembler(splitter Splitter) *Assembler {
	return &Assembler{splitter: splitter}
}

// NewDefaultAssembler 使用默认分段配置和共享句子切分器创建组装器
func NewDefaultAssembler() *Assembler {
	return NewAssembler(MustNewRecursiveSplitter(DefaultSplitterConfig(), nil))
}

// Assemble 按页码升序切分每一页，空白页跳过
// 每页独立切分，重叠不会跨越页边界
func (a *Assembler) Assemble(pages PageText) []Chunk {
	chunks := make([]Chunk, 0)
	for _, page := range pages.SortedPages() {
		text := pages[page]
		if strings.TrimSpace(text) == "" {
			continue
		}
		for _, piece := range a.splitter.Split(text) {
			chunks = append(chunks, Chunk{Page: page, Text: piece})
		}
	}
	return chunks
}
