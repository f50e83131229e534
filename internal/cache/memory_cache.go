package cache

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// MemoryCache 基于 go-cache 的进程内缓存
// 设置了 PersistPath 时启动时加载快照，Close 时写回
type MemoryCache struct {
	cache       *gocache.Cache
	persistPath string
}

// NewMemoryCache 创建内存缓存
func NewMemoryCache(config Config) (Cache, error) {
	ttl := config.DefaultTTL
	if ttl == 0 {
		ttl = 24 * time.Hour
	}
	cleanup := config.CleanupInterval
	if cleanup == 0 {
		cleanup = 10 * time.Minute
	}

	m := &MemoryCache{
		cache:       gocache.New(ttl, cleanup),
		persistPath: config.PersistPath,
	}
	if m.persistPath != "" {
		// 快照中已过期的条目由 go-cache 在读取时忽略
		if err := m.cache.LoadFile(m.persistPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load cache snapshot: %w", err)
		}
	}
	return m, nil
}

func (m *MemoryCache) Get(key string) (string, bool, error) {
	value, found := m.cache.Get(key)
	if !found {
		return "", false, nil
	}
	str, ok := value.(string)
	return str, ok, nil
}

// Set ttl 为 0 时使用默认有效期
func (m *MemoryCache) Set(key string, value string, ttl time.Duration) error {
	if ttl == 0 {
		ttl = gocache.DefaultExpiration
	}
	m.cache.Set(key, value, ttl)
	return nil
}

func (m *MemoryCache) Delete(key string) error {
	m.cache.Delete(key)
	return nil
}

// DeletePrefix 删除一个文档的全部缓存答案时使用
func (m *MemoryCache) DeletePrefix(prefix string) error {
	for key := range m.cache.Items() {
		if strings.HasPrefix(key, prefix) {
			m.cache.Delete(key)
		}
	}
	return nil
}

func (m *MemoryCache) Clear() error {
	m.cache.Flush()
	return nil
}

// Len 未过期的条目数
func (m *MemoryCache) Len() int {
	m.cache.DeleteExpired()
	return m.cache.ItemCount()
}

// Close 写出快照，未设置 PersistPath 时什么也不做
func (m *MemoryCache) Close() error {
	if m.persistPath == "" {
		return nil
	}
	m.cache.DeleteExpired()
	if err := os.MkdirAll(filepath.Dir(m.persistPath), 0755); err != nil {
		return fmt.Errorf("failed to create cache directory: %w", err)
	}
	if err := m.cache.SaveFile(m.persistPath); err != nil {
		return fmt.Errorf("failed to save cache snapshot: %w", err)
	}
	return nil
}

func init() {
	RegisterCache("memory", NewMemoryCache)
}
