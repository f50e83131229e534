package vectordb

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

var (
	ErrDocumentNotFound = errors.New("document not found")
	ErrEmptyVector      = errors.New("empty vector")
	ErrInvalidID        = errors.New("invalid document ID")
	ErrInvalidDimension = errors.New("vector dimension mismatch")
	ErrUnknownType      = errors.New("unknown vector store type")
)

// DefaultTopK 问答时默认召回的文本块数
const DefaultTopK = 5

// Document 一个文本块的向量记录
// FileID 是文档ID，Page 和 Position 与数据库中的文本块一一对应
type Document struct {
	ID        string
	FileID    string
	FileName  string
	Page      int // 从1开始
	Position  int // 文本块在整个文档中的序号
	Text      string
	Vector    []float32
	CreatedAt time.Time
	Metadata  map[string]interface{}
}

// ChunkID 由文档ID和文本块序号生成向量ID
func ChunkID(fileID string, position int) string {
	return fmt.Sprintf("%s_%d", fileID, position)
}

// NewChunkDocument 创建文本块的向量记录
func NewChunkDocument(fileID, fileName string, position, page int, text string, vector []float32) Document {
	return Document{
		ID:        ChunkID(fileID, position),
		FileID:    fileID,
		FileName:  fileName,
		Page:      page,
		Position:  position,
		Text:      text,
		Vector:    vector,
		CreatedAt: time.Now(),
	}
}

// DistanceType 向量距离计算方法
type DistanceType string

const (
	Cosine     DistanceType = "cosine"
	DotProduct DistanceType = "dot"
	Euclidean  DistanceType = "l2"
)

// SearchResult 一条召回结果，Score 越大越相关
type SearchResult struct {
	Document Document
	Score    float32
	Distance float32
}

// SearchFilter 召回条件，零值字段表示不限制
type SearchFilter struct {
	FileIDs    []string
	Pages      []int
	Metadata   map[string]interface{}
	MinScore   float32
	MaxResults int
}

// DefaultSearchFilter 返回只限制召回数量的过滤器
func DefaultSearchFilter() SearchFilter {
	return SearchFilter{MaxResults: DefaultTopK}
}

// Repository 文本块向量的存取接口
type Repository interface {
	Add(doc Document) error
	AddBatch(docs []Document) error
	Get(id string) (Document, error)
	Delete(id string) error
	// DeleteByFileID 删除一个文档的全部文本块，重新处理和删除文档时调用
	DeleteByFileID(fileID string) error
	// Search 按向量相似度召回，结果按 Score 降序
	Search(vector []float32, filter SearchFilter) ([]SearchResult, error)
	Count() (int, error)
	GetDimension() int
	Close() error
}

// Config 向量库配置
type Config struct {
	Type              string // memory、chromem 或 faiss
	Path              string // faiss 索引文件或 chromem 持久化目录，为空时只在内存中
	Collection        string // chromem 集合名
	Dimension         int
	DistanceType      DistanceType
	CreateIfNotExists bool // 索引文件不存在时新建
	InMemory          bool // 忽略 Path
}

// Factory 向量库构造函数
type Factory func(config Config) (Repository, error)

var (
	registryMu sync.RWMutex
	registry   = map[string]Factory{}
)

// RegisterRepository 注册向量库实现，通常在 init 中调用
func RegisterRepository(name string, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[name] = factory
}

// RegisteredTypes 返回当前构建中可用的向量库类型
func RegisteredTypes() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// NewRepository 根据配置创建向量库，Type 为空时使用内存实现
func NewRepository(config Config) (Repository, error) {
	if config.Type == "" {
		config.Type = "memory"
	}
	registryMu.RLock()
	factory, ok := registry[config.Type]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s (available: %v)", ErrUnknownType, config.Type, RegisteredTypes())
	}
	return factory(config)
}
