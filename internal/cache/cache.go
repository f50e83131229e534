package cache

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

// Cache 字符串键值缓存，问答结果序列化后存入
type Cache interface {
	Get(key string) (value string, found bool, err error)
	Set(key string, value string, ttl time.Duration) error
	Delete(key string) error
	// DeletePrefix 删除所有以 prefix 开头的键
	DeletePrefix(prefix string) error
	Clear() error
}

// Config 缓存配置
type Config struct {
	Type       string // memory 或 redis
	Enabled    bool
	DefaultTTL time.Duration

	// redis
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	KeyPrefix     string // Clear 只清理该前缀下的键

	// memory
	CleanupInterval time.Duration
	PersistPath     string // 快照文件，为空时不落盘
}

// DefaultConfig 返回默认缓存配置
func DefaultConfig() Config {
	return Config{
		Type:            "memory",
		Enabled:         true,
		KeyPrefix:       "pdfqa:",
		DefaultTTL:      24 * time.Hour,
		CleanupInterval: 10 * time.Minute,
	}
}

// Factory 缓存构造函数
type Factory func(config Config) (Cache, error)

var (
	registryMu sync.RWMutex
	registry   = map[string]Factory{}
)

// RegisterCache 注册缓存实现
func RegisterCache(name string, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[name] = factory
}

// NewCache 按类型创建缓存，类型为空时使用内存缓存
func NewCache(config Config) (Cache, error) {
	if config.Type == "" {
		config.Type = "memory"
	}
	registryMu.RLock()
	factory, ok := registry[config.Type]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown cache type: %s", config.Type)
	}
	return factory(config)
}

// GenerateCacheKey 生成以冒号分隔的缓存键
func GenerateCacheKey(prefix string, parts ...string) string {
	if len(parts) == 0 {
		return prefix
	}
	return prefix + ":" + strings.Join(parts, ":")
}
