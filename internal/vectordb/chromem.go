package vectordb

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/philippgille/chromem-go"
)

const (
	defaultCollection = "chunks"

	metaFileID    = "file_id"
	metaFileName  = "file_name"
	metaPage      = "page"
	metaPosition  = "position"
	metaCreatedAt = "created_at"
)

// ErrEmbeddingRequired chromem 集合只接受预先计算好的向量
var ErrEmbeddingRequired = errors.New("chromem collection requires precomputed embeddings")

// ChromemRepository 基于 chromem-go 的向量仓库
// Path 非空时持久化到该目录
type ChromemRepository struct {
	*BaseRepository
	mu         sync.RWMutex
	db         *chromem.DB
	collection *chromem.Collection
}

// NewChromemRepository 创建 chromem 向量仓库
func NewChromemRepository(config Config) (Repository, error) {
	if config.Dimension <= 0 {
		return nil, fmt.Errorf("vector dimension must be positive")
	}

	var db *chromem.DB
	if config.Path != "" && !config.InMemory {
		var err error
		db, err = chromem.NewPersistentDB(config.Path, false)
		if err != nil {
			return nil, fmt.Errorf("failed to open chromem db: %w", err)
		}
	} else {
		db = chromem.NewDB()
	}

	name := config.Collection
	if name == "" {
		name = defaultCollection
	}
	collection, err := db.GetOrCreateCollection(name, nil, rejectEmbedding)
	if err != nil {
		return nil, fmt.Errorf("failed to create chromem collection: %w", err)
	}

	return &ChromemRepository{
		// chromem 只支持余弦相似度
		BaseRepository: NewBaseRepository(config.Dimension, Cosine),
		db:             db,
		collection:     collection,
	}, nil
}

func rejectEmbedding(_ context.Context, _ string) ([]float32, error) {
	return nil, ErrEmbeddingRequired
}

// Add 添加单个文档
func (r *ChromemRepository) Add(doc Document) error {
	return r.AddBatch([]Document{doc})
}

// AddBatch 批量添加文档
func (r *ChromemRepository) AddBatch(docs []Document) error {
	if len(docs) == 0 {
		return nil
	}

	items := make([]chromem.Document, 0, len(docs))
	for _, doc := range docs {
		if doc.ID == "" {
			return ErrInvalidID
		}
		vector, err := r.prepare(doc.Vector)
		if err != nil {
			return fmt.Errorf("invalid vector for document %s: %w", doc.ID, err)
		}
		if doc.CreatedAt.IsZero() {
			doc.CreatedAt = time.Now()
		}
		items = append(items, chromem.Document{
			ID:        doc.ID,
			Metadata:  toChromemMetadata(doc),
			Embedding: vector,
			Content:   doc.Text,
		})
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.collection.AddDocuments(context.Background(), items, 1); err != nil {
		return fmt.Errorf("failed to add documents to chromem: %w", err)
	}
	return nil
}

// Get 获取单个文档
func (r *ChromemRepository) Get(id string) (Document, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	item, err := r.collection.GetByID(context.Background(), id)
	if err != nil {
		return Document{}, ErrDocumentNotFound
	}
	return fromChromem(item.ID, item.Content, item.Metadata, item.Embedding), nil
}

// Delete 删除单个文档
func (r *ChromemRepository) Delete(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	ctx := context.Background()
	if _, err := r.collection.GetByID(ctx, id); err != nil {
		return ErrDocumentNotFound
	}
	if err := r.collection.Delete(ctx, nil, nil, id); err != nil {
		return fmt.Errorf("failed to delete document from chromem: %w", err)
	}
	return nil
}

// DeleteByFileID 删除指定文件的所有段落
func (r *ChromemRepository) DeleteByFileID(fileID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.collection.Count() == 0 {
		return nil
	}
	if err := r.collection.Delete(context.Background(), map[string]string{metaFileID: fileID}, nil); err != nil {
		return fmt.Errorf("failed to delete file from chromem: %w", err)
	}
	return nil
}

// Search 相似度搜索
// chromem 的 where 只支持等值条件，多文件和页码过滤在结果中完成
func (r *ChromemRepository) Search(vector []float32, filter SearchFilter) ([]SearchResult, error) {
	vector, err := r.prepare(vector)
	if err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	total := r.collection.Count()
	if total == 0 {
		return []SearchResult{}, nil
	}

	var where map[string]string
	if len(filter.FileIDs) == 1 {
		where = map[string]string{metaFileID: filter.FileIDs[0]}
	}

	found, err := r.collection.QueryEmbedding(context.Background(), vector, total, where, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to query chromem: %w", err)
	}

	results := make([]SearchResult, 0, len(found))
	for _, item := range found {
		doc := fromChromem(item.ID, item.Content, item.Metadata, item.Embedding)
		if !MatchFilter(doc, filter) {
			continue
		}
		results = append(results, SearchResult{
			Document: doc,
			Score:    item.Similarity,
			Distance: 1 - item.Similarity,
		})
	}
	return TopResults(results, filter), nil
}

// Count 获取文档总数
func (r *ChromemRepository) Count() (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.collection.Count(), nil
}

// Close chromem 持久化模式下每次写入即落盘
func (r *ChromemRepository) Close() error {
	return nil
}

// toChromemMetadata chromem 元数据只支持字符串
func toChromemMetadata(doc Document) map[string]string {
	meta := make(map[string]string, len(doc.Metadata)+5)
	for k, v := range doc.Metadata {
		meta[k] = fmt.Sprint(v)
	}
	meta[metaFileID] = doc.FileID
	meta[metaFileName] = doc.FileName
	meta[metaPage] = strconv.Itoa(doc.Page)
	meta[metaPosition] = strconv.Itoa(doc.Position)
	meta[metaCreatedAt] = doc.CreatedAt.Format(time.RFC3339Nano)
	return meta
}

func fromChromem(id, content string, meta map[string]string, vector []float32) Document {
	doc := Document{
		ID:       id,
		Text:     content,
		Vector:   vector,
		Metadata: make(map[string]interface{}),
	}
	for k, v := range meta {
		switch k {
		case metaFileID:
			doc.FileID = v
		case metaFileName:
			doc.FileName = v
		case metaPage:
			doc.Page, _ = strconv.Atoi(v)
		case metaPosition:
			doc.Position, _ = strconv.Atoi(v)
		case metaCreatedAt:
			doc.CreatedAt, _ = time.Parse(time.RFC3339Nano, v)
		default:
			doc.Metadata[k] = v
		}
	}
	return doc
}

func init() {
	RegisterRepository("chromem", NewChromemRepository)
}
