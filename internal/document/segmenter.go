package document

import (
	"strings"
	"sync"

	"github.com/neurosnap/sentences"
	"github.com/neurosnap/sentences/english"
	"github.com/sirupsen/logrus"
)

// SentenceSegmenter 句子切分器接口
// 对同一输入必须返回确定的结果
type SentenceSegmenter interface {
	// Segment 将文本块切分为有序的句子序列
	Segment(text string) []string
}

// SegmenterFunc 函数适配器，便于在测试中注入确定性的切分器
type SegmenterFunc func(text string) []string

// Segment 实现 SentenceSegmenter 接口
func (f SegmenterFunc) Segment(text string) []string {
	return f(text)
}

// PunktSegmenter 基于 Punkt 模型的英文句子切分器
type PunktSegmenter struct {
	tokenizer *sentences.DefaultSentenceTokenizer
}

// NewPunktSegmenter 加载英文训练数据并创建切分器
// 加载开销较大，正常情况下应通过 SharedSegmenter 复用
func NewPunktSegmenter() (*PunktSegmenter, error) {
	tokenizer, err := english.NewSentenceTokenizer(nil)
	if err != nil {
		return nil, err
	}
	return &PunktSegmenter{tokenizer: tokenizer}, nil
}

// Segment 实现 SentenceSegmenter 接口
func (p *PunktSegmenter) Segment(text string) []string {
	tokens := p.tokenizer.Tokenize(text)
	result := make([]string, 0, len(tokens))
	for _, s := range tokens {
		result = append(result, s.Text)
	}
	return result
}

var (
	sharedSegmenterOnce sync.Once
	sharedSegmenter     SentenceSegmenter
)

// SharedSegmenter 返回进程级共享的句子切分器
// 首次调用时加载 Punkt 模型，之后不再重新加载；模型加载失败时退化为规则切分器
func SharedSegmenter() SentenceSegmenter {
	sharedSegmenterOnce.Do(func() {
		punkt, err := NewPunktSegmenter()
		if err != nil {
			logrus.WithError(err).Warn("Failed to load punkt sentence model, falling back to rule segmenter")
			sharedSegmenter = NewRuleSegmenter()
			return
		}
		sharedSegmenter = punkt
	})
	return sharedSegmenter
}

// RuleSegmenter 基于标点的简单句子切分器
type RuleSegmenter struct {
	delimiters map[rune]struct{}
}

// NewRuleSegmenter 创建规则切分器，同时识别中英文句末标点
func NewRuleSegmenter() *RuleSegmenter {
	delimiters := make(map[rune]struct{})
	for _, r := range []rune{'.', '!', '?', '；', '。', '！', '？'} {
		delimiters[r] = struct{}{}
	}
	return &RuleSegmenter{delimiters: delimiters}
}

// Segment 实现 SentenceSegmenter 接口
func (r *RuleSegmenter) Segment(text string) []string {
	var result []string
	var current strings.Builder

	for _, char := range text {
		current.WriteRune(char)
		if _, ok := r.delimiters[char]; !ok {
			continue
		}
		if sentence := strings.TrimSpace(current.String()); sentence != "" {
			result = append(result, sentence)
		}
		current.Reset()
	}

	// 末尾没有标点的残句
	if last := strings.TrimSpace(current.String()); last != "" {
		result = append(result, last)
	}
	return result
}
