package vectordb

import (
	"crypto/sha1"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math"
	"runtime"
	"sort"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

const (
	queryCacheTTL      = 10 * time.Minute
	queryCacheCleanup  = 20 * time.Minute
	parallelSearchSize = 1000
)

// MemoryRepository 内存向量仓库实现
// 暴力检索，适用于单个文档规模的数据
type MemoryRepository struct {
	*BaseRepository
	mu           sync.RWMutex
	documents    map[string]Document // 文档ID到文档的映射
	fileToDocIDs map[string][]string // 文件ID到文档ID的映射
	queryCache   *gocache.Cache      // 查询结果缓存，写入时清空
	generation   uint64              // 每次写入加一，持有写锁时修改
}

// NewMemoryRepository 创建内存向量仓库
func NewMemoryRepository(config Config) (Repository, error) {
	if config.Dimension <= 0 {
		return nil, fmt.Errorf("vector dimension must be positive")
	}

	return &MemoryRepository{
		BaseRepository: NewBaseRepository(config.Dimension, config.DistanceType),
		documents:      make(map[string]Document),
		fileToDocIDs:   make(map[string][]string),
		queryCache:     gocache.New(queryCacheTTL, queryCacheCleanup),
	}, nil
}

// Add 添加单个文档到内存仓库
func (r *MemoryRepository) Add(doc Document) error {
	return r.AddBatch([]Document{doc})
}

// AddBatch 批量添加文档，任一文档无效时整批不写入
func (r *MemoryRepository) AddBatch(docs []Document) error {
	if len(docs) == 0 {
		return nil
	}

	prepared := make([]Document, len(docs))
	for i, doc := range docs {
		if doc.ID == "" {
			return ErrInvalidID
		}
		vector, err := r.prepare(doc.Vector)
		if err != nil {
			return fmt.Errorf("invalid vector for document %s: %w", doc.ID, err)
		}
		doc.Vector = vector
		if doc.CreatedAt.IsZero() {
			doc.CreatedAt = time.Now()
		}
		if doc.Metadata == nil {
			doc.Metadata = make(map[string]interface{})
		}
		prepared[i] = doc
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, doc := range prepared {
		if old, exists := r.documents[doc.ID]; exists {
			r.unlinkFile(old.FileID, old.ID)
		}
		r.documents[doc.ID] = doc
		r.fileToDocIDs[doc.FileID] = append(r.fileToDocIDs[doc.FileID], doc.ID)
	}
	r.invalidate()

	return nil
}

// Get 获取单个文档
func (r *MemoryRepository) Get(id string) (Document, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	doc, exists := r.documents[id]
	if !exists {
		return Document{}, ErrDocumentNotFound
	}
	return doc, nil
}

// Delete 删除单个文档
func (r *MemoryRepository) Delete(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	doc, exists := r.documents[id]
	if !exists {
		return ErrDocumentNotFound
	}

	delete(r.documents, id)
	r.unlinkFile(doc.FileID, id)
	r.invalidate()
	return nil
}

// DeleteByFileID 删除指定文件的所有段落
func (r *MemoryRepository) DeleteByFileID(fileID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	docIDs, exists := r.fileToDocIDs[fileID]
	if !exists {
		return nil
	}
	for _, id := range docIDs {
		delete(r.documents, id)
	}
	delete(r.fileToDocIDs, fileID)
	r.invalidate()
	return nil
}

// invalidate 推进写入代数并清空查询缓存，调用方持有写锁
func (r *MemoryRepository) invalidate() {
	r.generation++
	r.queryCache.Flush()
}

// unlinkFile 从文件索引中移除文档，调用方持有写锁
func (r *MemoryRepository) unlinkFile(fileID, id string) {
	ids := r.fileToDocIDs[fileID]
	kept := ids[:0]
	for _, docID := range ids {
		if docID != id {
			kept = append(kept, docID)
		}
	}
	if len(kept) == 0 {
		delete(r.fileToDocIDs, fileID)
		return
	}
	r.fileToDocIDs[fileID] = kept
}

// Search 相似度搜索
func (r *MemoryRepository) Search(vector []float32, filter SearchFilter) ([]SearchResult, error) {
	vector, err := r.prepare(vector)
	if err != nil {
		return nil, err
	}

	key := queryKey(vector, filter)
	if cached, found := r.queryCache.Get(key); found {
		return append([]SearchResult(nil), cached.([]SearchResult)...), nil
	}

	r.mu.RLock()
	candidates := r.candidates(filter)
	gen := r.generation
	r.mu.RUnlock()

	if len(candidates) == 0 {
		return []SearchResult{}, nil
	}

	var results []SearchResult
	if len(candidates) < parallelSearchSize {
		results = r.score(vector, candidates)
	} else {
		results = r.parallelScore(vector, candidates)
	}
	results = TopResults(results, filter)

	r.cacheResults(key, gen, results)
	return results, nil
}

// cacheResults 仅当打分期间没有发生写入时缓存结果
func (r *MemoryRepository) cacheResults(key string, gen uint64, results []SearchResult) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.generation != gen {
		return
	}
	r.queryCache.SetDefault(key, append([]SearchResult(nil), results...))
}

// candidates 收集满足过滤条件的文档，调用方持有读锁
func (r *MemoryRepository) candidates(filter SearchFilter) []Document {
	var docs []Document
	if len(filter.FileIDs) > 0 {
		for _, fileID := range filter.FileIDs {
			for _, id := range r.fileToDocIDs[fileID] {
				if doc, ok := r.documents[id]; ok && MatchFilter(doc, filter) {
					docs = append(docs, doc)
				}
			}
		}
	} else {
		docs = make([]Document, 0, len(r.documents))
		for _, doc := range r.documents {
			if MatchFilter(doc, filter) {
				docs = append(docs, doc)
			}
		}
	}
	// map 遍历无序，按位置排序保证结果稳定
	sort.Slice(docs, func(i, j int) bool {
		if docs[i].FileID != docs[j].FileID {
			return docs[i].FileID < docs[j].FileID
		}
		return docs[i].Position < docs[j].Position
	})
	return docs
}

// score 串行计算得分
func (r *MemoryRepository) score(vector []float32, docs []Document) []SearchResult {
	results := make([]SearchResult, 0, len(docs))
	for _, doc := range docs {
		dist, err := ComputeDistance(vector, doc.Vector, r.distType)
		if err != nil {
			continue
		}
		results = append(results, SearchResult{
			Document: doc,
			Score:    DistanceToScore(dist, r.distType),
			Distance: dist,
		})
	}
	return results
}

// parallelScore 分片并行计算得分
func (r *MemoryRepository) parallelScore(vector []float32, docs []Document) []SearchResult {
	workers := runtime.NumCPU()
	size := (len(docs) + workers - 1) / workers

	parts := make([][]SearchResult, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		start := i * size
		if start >= len(docs) {
			break
		}
		end := start + size
		if end > len(docs) {
			end = len(docs)
		}
		wg.Add(1)
		go func(i, start, end int) {
			defer wg.Done()
			parts[i] = r.score(vector, docs[start:end])
		}(i, start, end)
	}
	wg.Wait()

	results := make([]SearchResult, 0, len(docs))
	for _, part := range parts {
		results = append(results, part...)
	}
	return results
}

// Count 获取文档总数
func (r *MemoryRepository) Count() (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.documents), nil
}

// Close 清空查询缓存
func (r *MemoryRepository) Close() error {
	r.queryCache.Flush()
	return nil
}

// queryKey 由完整查询向量和过滤条件生成缓存键
func queryKey(vector []float32, filter SearchFilter) string {
	h := sha1.New()
	buf := make([]byte, 4)
	for _, v := range vector {
		binary.LittleEndian.PutUint32(buf, math.Float32bits(v))
		h.Write(buf)
	}
	fmt.Fprintf(h, "|%v|%v|%v|%v|%d", filter.FileIDs, filter.Pages, filter.Metadata, filter.MinScore, filter.MaxResults)
	return hex.EncodeToString(h.Sum(nil))
}

func init() {
	RegisterRepository("memory", NewMemoryRepository)
}
