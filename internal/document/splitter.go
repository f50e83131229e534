package document

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

// ErrInvalidChunkConfig 分块配置非法
var ErrInvalidChunkConfig = errors.New("invalid chunk config")

const (
	// DefaultMaxChars 默认单块最大字符数
	DefaultMaxChars = 1200
	// DefaultOverlap 默认相邻块重叠字符数
	DefaultOverlap = 300

	chunkSeparator = "\n\n"
)

// SplitterConfig 分段器配置
// 所有长度均按 Unicode 码点计算
type SplitterConfig struct {
	MaxChars int // 单块核心内容的最大字符数
	Overlap  int // 从前一块尾部复制的字符数，0 表示不重叠
}

// DefaultSplitterConfig 返回默认分段器配置
func DefaultSplitterConfig() SplitterConfig {
	return SplitterConfig{
		MaxChars: DefaultMaxChars,
		Overlap:  DefaultOverlap,
	}
}

// Validate 校验配置
// Overlap 大于等于 MaxChars 是合法的
func (c SplitterConfig) Validate() error {
	if c.MaxChars <= 0 {
		return fmt.Errorf("%w: max_chars must be positive, got %d", ErrInvalidChunkConfig, c.MaxChars)
	}
	if c.Overlap < 0 {
		return fmt.Errorf("%w: overlap must not be negative, got %d", ErrInvalidChunkConfig, c.Overlap)
	}
	return nil
}

// MaxChunkLen 输出块的长度上限
func (c SplitterConfig) MaxChunkLen() int {
	return c.MaxChars + c.Overlap
}

// Splitter 文本分段器接口
// 负责将一页文本切分为适合向量化的有序文本块
type Splitter interface {
	// Split 将文本切分为文本块，空白输入返回空切片
	Split(text string) []string
}

// boundaryDetector 边界检测器，将文本块按某一层级的自然边界切开
type boundaryDetector func(text string) []string

var paragraphBreak = regexp.MustCompile(`\n\s*\n`)

// RecursiveSplitter 递归分段器
// 依次尝试段落、行、句子边界，都无法细分时按固定宽度硬切
type RecursiveSplitter struct {
	config    SplitterConfig
	detectors []boundaryDetector
}

// NewRecursiveSplitter 创建递归分段器
// segmenter 为 nil 时使用进程级共享的句子切分器
func NewRecursiveSplitter(config SplitterConfig, segmenter SentenceSegmenter) (*RecursiveSplitter, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if segmenter == nil {
		segmenter = SharedSegmenter()
	}

	return &RecursiveSplitter{
		config: config,
		detectors: []boundaryDetector{
			splitParagraphs,
			splitLines,
			sentenceDetector(segmenter),
		},
	}, nil
}

// MustNewRecursiveSplitter 与 NewRecursiveSplitter 相同，配置无效时 panic
// 仅用于配置在编译期已确定的场景
func MustNewRecursiveSplitter(config SplitterConfig, segmenter SentenceSegmenter) *RecursiveSplitter {
	splitter, err := NewRecursiveSplitter(config, segmenter)
	if err != nil {
		panic(fmt.Sprintf("document: %v", err))
	}
	return splitter
}

// Config 返回分段器配置
func (s *RecursiveSplitter) Config() SplitterConfig {
	return s.config
}

// Split 实现 Splitter 接口
func (s *RecursiveSplitter) Split(text string) []string {
	if strings.TrimSpace(text) == "" {
		return []string{}
	}
	return s.applyOverlap(s.explode(text))
}

// explode 将超长文本块递归切分为不超过 MaxChars 的块
func (s *RecursiveSplitter) explode(block string) []string {
	if utf8.RuneCountInString(block) <= s.config.MaxChars {
		return []string{block}
	}

	for _, detect := range s.detectors {
		if parts := detect(block); len(parts) > 1 {
			return s.groupAndExplode(parts)
		}
	}

	return hardWrap(block, s.config.MaxChars)
}

// groupAndExplode 贪心地把同层级的片段拼接成块，每个块再经 explode 校验
func (s *RecursiveSplitter) groupAndExplode(items []string) []string {
	var out []string
	current := ""
	currentLen := 0

	for _, item := range items {
		itemLen := utf8.RuneCountInString(item)
		if current == "" {
			current, currentLen = item, itemLen
			continue
		}
		if currentLen+len(chunkSeparator)+itemLen <= s.config.MaxChars {
			current += chunkSeparator + item
			currentLen += len(chunkSeparator) + itemLen
			continue
		}
		out = append(out, s.explode(current)...)
		current, currentLen = item, itemLen
	}

	if current != "" {
		out = append(out, s.explode(current)...)
	}
	return out
}

// applyOverlap 为第 i>0 块拼接前一个输出块的尾部
func (s *RecursiveSplitter) applyOverlap(raw []string) []string {
	if s.config.Overlap == 0 || len(raw) <= 1 {
		return raw
	}

	limit := s.config.MaxChunkLen()
	result := make([]string, 0, len(raw))
	for i, chunk := range raw {
		if i == 0 {
			result = append(result, chunk)
			continue
		}
		tail := lastRunes(result[i-1], s.config.Overlap)
		merged := strings.TrimSpace(tail + chunkSeparator + chunk)
		result = append(result, firstRunes(merged, limit))
	}
	return result
}

// splitParagraphs 按空行切分段落
func splitParagraphs(text string) []string {
	parts := trimNonEmpty(paragraphBreak.Split(text, -1))
	if len(parts) == 0 {
		return []string{text}
	}
	return parts
}

// splitLines 按换行切分
func splitLines(text string) []string {
	return trimNonEmpty(strings.Split(text, "\n"))
}

// sentenceDetector 将句子切分器包装为边界检测器
func sentenceDetector(segmenter SentenceSegmenter) boundaryDetector {
	return func(text string) []string {
		return trimNonEmpty(segmenter.Segment(text))
	}
}

// hardWrap 按固定宽度切分，最后一段可以更短
func hardWrap(text string, width int) []string {
	runes := []rune(text)
	result := make([]string, 0, len(runes)/width+1)
	for start := 0; start < len(runes); start += width {
		end := start + width
		if end > len(runes) {
			end = len(runes)
		}
		result = append(result, string(runes[start:end]))
	}
	return result
}

func trimNonEmpty(parts []string) []string {
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			result = append(result, p)
		}
	}
	return result
}

// lastRunes 返回末尾 n 个码点
func lastRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[len(runes)-n:])
}

// firstRunes 返回开头 n 个码点
func firstRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
