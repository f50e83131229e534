package llm

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode/utf8"
)

// UnknownAnswer 上下文中找不到答案时的固定回复
const UnknownAnswer = "I don't know based on the document."

// DefaultAnswerTemplate 默认问答提示词模板
// 包含变量：
// {{.Question}} - 用户问题
// {{.Context}} - 检索的上下文
const DefaultAnswerTemplate = `You are a helpful assistant. Answer ONLY using the provided context. If the answer cannot be found in the context, say '` + UnknownAnswer + `'

Question: {{.Question}}

Context:
{{.Context}}

Answer concisely and mention the page numbers where you found the information.`

// DefaultSuggestTemplate 追问建议提示词模板
const DefaultSuggestTemplate = `Given the question '{{.Question}}' and the short context below, suggest 3 follow-up questions as a numbered list.

Context preview:
{{.Context}}

List:`

// SummaryPrefix 摘要提示词前缀
const SummaryPrefix = "Summarize the following document:\n\n"

const (
	contextSeparator  = "\n\n---\n\n"
	maxSuggestions    = 3
	previewRuneLimit  = 300
	defaultSummaryLen = 5
)

// FallbackSuggestions 生成追问失败时使用的默认建议
var FallbackSuggestions = []string{
	"Could you clarify your question?",
	"Do you want a summary?",
	"Which page should I prioritize?",
}

// ErrNothingToSummarize 没有可供摘要的内容
var ErrNothingToSummarize = NewLLMError(ErrCodeInvalidRequest, "nothing to summarize")

// QAConfig 问答配置
type QAConfig struct {
	AnswerTemplate  string        // 回答模板
	SuggestTemplate string        // 追问模板
	MaxTokens       int           // 最大Token数
	Temperature     float32       // 温度参数
	Timeout         time.Duration // 单次调用超时
	SummaryChunks   int           // 摘要使用的文本块数量
}

// DefaultQAConfig 默认问答配置
func DefaultQAConfig() *QAConfig {
	return &QAConfig{
		AnswerTemplate:  DefaultAnswerTemplate,
		SuggestTemplate: DefaultSuggestTemplate,
		MaxTokens:       2048,
		Temperature:     0.2,
		Timeout:         60 * time.Second,
		SummaryChunks:   defaultSummaryLen,
	}
}

// QAOption 问答配置选项函数类型
type QAOption func(*QAConfig)

// WithAnswerTemplate 设置回答模板
func WithAnswerTemplate(template string) QAOption {
	return func(c *QAConfig) {
		c.AnswerTemplate = template
	}
}

// WithQAMaxTokens 设置最大Token数
func WithQAMaxTokens(tokens int) QAOption {
	return func(c *QAConfig) {
		c.MaxTokens = tokens
	}
}

// WithQATemperature 设置温度参数
func WithQATemperature(temp float32) QAOption {
	return func(c *QAConfig) {
		c.Temperature = temp
	}
}

// WithQATimeout 设置请求超时时间
func WithQATimeout(timeout time.Duration) QAOption {
	return func(c *QAConfig) {
		c.Timeout = timeout
	}
}

// WithSummaryChunks 设置摘要使用的文本块数量
func WithSummaryChunks(n int) QAOption {
	return func(c *QAConfig) {
		c.SummaryChunks = n
	}
}

// QA 基于检索上下文的问答、追问建议与摘要
type QA struct {
	client Client
	config *QAConfig
	mu     sync.RWMutex
}

// NewQA 创建问答服务
func NewQA(client Client, opts ...QAOption) *QA {
	cfg := DefaultQAConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	return &QA{client: client, config: cfg}
}

// SummaryChunks 摘要使用的文本块数量
func (q *QA) SummaryChunks() int {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.config.SummaryChunks
}

// Answer 根据上下文和问题生成回答
func (q *QA) Answer(ctx context.Context, question string, contexts []ContextChunk) (*Answer, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, ErrEmptyQuestion
	}
	if len(contexts) == 0 {
		return &Answer{Text: UnknownAnswer, Pages: []int{}}, nil
	}

	q.mu.RLock()
	cfg := *q.config
	q.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	prompt := renderTemplate(cfg.AnswerTemplate, question, formatContext(contexts))
	resp, err := q.client.Generate(ctx, prompt,
		WithGenerateMaxTokens(cfg.MaxTokens),
		WithGenerateTemperature(cfg.Temperature),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to generate answer: %w", err)
	}

	return &Answer{
		Text:    strings.TrimSpace(resp.Text),
		Pages:   collectPages(contexts),
		Sources: contexts,
	}, nil
}

// SuggestQuestions 生成最多3个追问，失败时返回默认建议
func (q *QA) SuggestQuestions(ctx context.Context, question string, contexts []ContextChunk) []string {
	q.mu.RLock()
	cfg := *q.config
	q.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	previews := make([]string, 0, len(contexts))
	for _, c := range contexts {
		previews = append(previews, truncateRunes(c.Text, previewRuneLimit))
	}

	prompt := renderTemplate(cfg.SuggestTemplate, question, strings.Join(previews, "\n"))
	resp, err := q.client.Generate(ctx, prompt, WithGenerateMaxTokens(256))
	if err != nil {
		return fallbackSuggestions()
	}

	suggestions := ParseSuggestions(resp.Text)
	if len(suggestions) == 0 {
		return fallbackSuggestions()
	}
	return suggestions
}

// Summarize 对文档开头的若干文本块生成摘要
func (q *QA) Summarize(ctx context.Context, chunks []string) (string, error) {
	var parts []string
	for _, c := range chunks {
		if strings.TrimSpace(c) != "" {
			parts = append(parts, c)
		}
	}
	if len(parts) == 0 {
		return "", ErrNothingToSummarize
	}

	q.mu.RLock()
	cfg := *q.config
	q.mu.RUnlock()
	if cfg.SummaryChunks > 0 && len(parts) > cfg.SummaryChunks {
		parts = parts[:cfg.SummaryChunks]
	}

	ctx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	resp, err := q.client.Generate(ctx, SummaryPrefix+strings.Join(parts, "\n\n"),
		WithGenerateMaxTokens(cfg.MaxTokens),
		WithGenerateTemperature(cfg.Temperature),
	)
	if err != nil {
		return "", fmt.Errorf("failed to generate summary: %w", err)
	}
	return strings.TrimSpace(resp.Text), nil
}

// SetAnswerTemplate 设置自定义回答模板
func (q *QA) SetAnswerTemplate(template string) *QA {
	q.mu.Lock()
	q.config.AnswerTemplate = template
	q.mu.Unlock()
	return q
}

var listMarker = regexp.MustCompile(`^\s*(?:\d+[.)]|[-*•])\s*`)

// ParseSuggestions 解析编号列表形式的追问
func ParseSuggestions(text string) []string {
	var result []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(listMarker.ReplaceAllString(line, ""))
		line = strings.Trim(line, "*")
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		result = append(result, line)
		if len(result) == maxSuggestions {
			break
		}
	}
	return result
}

// formatContext 格式化上下文，每段标注页码
func formatContext(contexts []ContextChunk) string {
	parts := make([]string, 0, len(contexts))
	for _, c := range contexts {
		parts = append(parts, fmt.Sprintf("[Page %d]\n%s", c.Page, c.Text))
	}
	return strings.Join(parts, contextSeparator)
}

func renderTemplate(template, question, context string) string {
	prompt := strings.ReplaceAll(template, "{{.Question}}", question)
	return strings.ReplaceAll(prompt, "{{.Context}}", context)
}

// collectPages 升序去重的页码
func collectPages(contexts []ContextChunk) []int {
	seen := make(map[int]struct{})
	pages := make([]int, 0, len(contexts))
	for _, c := range contexts {
		if _, ok := seen[c.Page]; ok {
			continue
		}
		seen[c.Page] = struct{}{}
		pages = append(pages, c.Page)
	}
	sort.Ints(pages)
	return pages
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}

func fallbackSuggestions() []string {
	return append([]string(nil), FallbackSuggestions...)
}
