package llm

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// Client 大模型客户端接口
type Client interface {
	// Generate 单轮生成
	Generate(ctx context.Context, prompt string, options ...GenerateOption) (*Response, error)

	// Chat 多轮对话，最后一条消息必须来自用户
	Chat(ctx context.Context, messages []Message, options ...GenerateOption) (*Response, error)

	// Name 返回模型名称
	Name() string
}

// Config 客户端配置，Model 为空时由具体实现选择默认模型
type Config struct {
	APIKey      string
	BaseURL     string // 仅 OpenAI 兼容接口使用
	Model       string
	Timeout     time.Duration // 单次请求超时，重试时重新计时
	MaxRetries  int
	MaxTokens   int
	Temperature float32
	TopP        float32
}

// DefaultConfig 问答场景的默认参数：低温度，回答长度适中
func DefaultConfig() *Config {
	return &Config{
		Timeout:     60 * time.Second,
		MaxRetries:  3,
		MaxTokens:   1024,
		Temperature: 0.2,
		TopP:        0.95,
	}
}

// Option 客户端配置选项
type Option func(*Config)

func WithAPIKey(apiKey string) Option {
	return func(c *Config) { c.APIKey = apiKey }
}

func WithBaseURL(url string) Option {
	return func(c *Config) { c.BaseURL = url }
}

func WithModel(model string) Option {
	return func(c *Config) { c.Model = model }
}

func WithTimeout(timeout time.Duration) Option {
	return func(c *Config) { c.Timeout = timeout }
}

// WithMaxRetries 限流或服务端错误时的重试次数
func WithMaxRetries(retries int) Option {
	return func(c *Config) { c.MaxRetries = retries }
}

func WithMaxTokens(tokens int) Option {
	return func(c *Config) { c.MaxTokens = tokens }
}

func WithTemperature(temp float32) Option {
	return func(c *Config) { c.Temperature = temp }
}

func WithTopP(topP float32) Option {
	return func(c *Config) { c.TopP = topP }
}

// NewConfig 在默认配置上应用选项
func NewConfig(opts ...Option) *Config {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// modelOr 未指定模型时使用提供方的默认模型
func (c *Config) modelOr(defaultModel string) {
	if c.Model == "" {
		c.Model = defaultModel
	}
}

// GenerateOption 单次请求的选项
type GenerateOption func(*GenerateOptions)

// GenerateOptions 单次请求的参数，nil 表示沿用客户端配置
type GenerateOptions struct {
	MaxTokens   *int
	Temperature *float32
	TopP        *float32
	System      string // 系统指令
}

func WithGenerateMaxTokens(tokens int) GenerateOption {
	return func(o *GenerateOptions) { o.MaxTokens = &tokens }
}

func WithGenerateTemperature(temp float32) GenerateOption {
	return func(o *GenerateOptions) { o.Temperature = &temp }
}

func WithGenerateTopP(topP float32) GenerateOption {
	return func(o *GenerateOptions) { o.TopP = &topP }
}

// WithSystem 设置系统指令
func WithSystem(system string) GenerateOption {
	return func(o *GenerateOptions) { o.System = system }
}

// resolveOptions 合并客户端配置和单次请求选项
func resolveOptions(cfg *Config, opts []GenerateOption) GenerateOptions {
	maxTokens, temperature, topP := cfg.MaxTokens, cfg.Temperature, cfg.TopP
	resolved := GenerateOptions{
		MaxTokens:   &maxTokens,
		Temperature: &temperature,
		TopP:        &topP,
	}
	for _, opt := range opts {
		opt(&resolved)
	}
	return resolved
}

// Factory 客户端构造函数
type Factory func(opts ...Option) (Client, error)

var (
	factoriesMu sync.RWMutex
	factories   = map[string]Factory{}
)

// RegisterClient 注册大模型提供方
func RegisterClient(name string, factory Factory) {
	factoriesMu.Lock()
	defer factoriesMu.Unlock()
	factories[name] = factory
}

// Providers 返回已注册的提供方名称
func Providers() []string {
	factoriesMu.RLock()
	defer factoriesMu.RUnlock()
	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// NewClient 按提供方名称创建客户端
func NewClient(name string, opts ...Option) (Client, error) {
	factoriesMu.RLock()
	factory, ok := factories[name]
	factoriesMu.RUnlock()
	if !ok {
		return nil, NewLLMError(ErrCodeInvalidRequest,
			fmt.Sprintf("unknown llm provider %q, available: %v", name, Providers()))
	}
	return factory(opts...)
}
