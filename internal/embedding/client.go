package embedding

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// Client 嵌入模型客户端接口
// 负责将文本转换为向量表示
type Client interface {
	// Embed 生成单条文本的向量表示，用于检索查询
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch 批量生成多条文本的向量表示，用于文档入库
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Name 返回模型名称
	Name() string

	// Dimension 返回向量维度
	Dimension() int
}

// Config 嵌入客户端配置，Model 和 Dimensions 为零值时由具体实现填充
type Config struct {
	APIKey     string
	BaseURL    string // 仅 OpenAI 兼容接口使用
	Model      string
	Timeout    time.Duration
	MaxRetries int // 限流时的重试次数
	Dimensions int
	BatchSize  int // 单次请求的最大文本数
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

func WithMaxRetries(retries int) Option {
	return func(c *Config) { c.MaxRetries = retries }
}

// WithDimensions 指定输出维度，需与向量库维度一致
func WithDimensions(dimensions int) Option {
	return func(c *Config) { c.Dimensions = dimensions }
}

func WithBatchSize(size int) Option {
	return func(c *Config) { c.BatchSize = size }
}

// DefaultConfig 返回与提供方无关的默认参数
func DefaultConfig() *Config {
	return &Config{
		Timeout:    30 * time.Second,
		MaxRetries: 3,
		BatchSize:  100,
	}
}

// NewConfig 在默认配置上应用选项
func NewConfig(opts ...Option) *Config {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// withDefaults 填充提供方的默认模型和维度
func (c *Config) withDefaults(model string, dimensions int) {
	if c.Model == "" {
		c.Model = model
	}
	if c.Dimensions == 0 {
		c.Dimensions = dimensions
	}
}

// Factory 嵌入客户端构造函数
type Factory func(opts ...Option) (Client, error)

var (
	factoriesMu sync.RWMutex
	factories   = map[string]Factory{}
)

// RegisterClient 注册嵌入提供方
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

// NewClient 按提供方名称创建嵌入客户端
func NewClient(name string, opts ...Option) (Client, error) {
	factoriesMu.RLock()
	factory, ok := factories[name]
	factoriesMu.RUnlock()
	if !ok {
		return nil, NewEmbeddingError(ErrCodeInvalidRequest,
			fmt.Sprintf("unknown embedding provider %q, available: %v", name, Providers()))
	}
	return factory(opts...)
}
