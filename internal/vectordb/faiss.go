//go:build faiss

package vectordb

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/DataIntelligenceCrew/go-faiss"
)

// FaissRepository 基于Faiss扁平索引的向量仓库
// 索引文件旁边保存 .meta.json 记录文档内容和位置映射
type FaissRepository struct {
	*BaseRepository
	mu             sync.RWMutex
	index          faiss.Index
	documents      map[string]Document
	fileToDocIDs   map[string][]string
	positions      []string // 索引位置到文档ID，已删除的位置为空串
	indexPath      string
	metaPath       string
	autoSaveCount  int
	operationCount int
}

// faissMetadata 元数据文件格式
type faissMetadata struct {
	Documents    map[string]Document `json:"documents"`
	FileToDocIDs map[string][]string `json:"file_to_doc_ids"`
	Positions    []string            `json:"positions"`
}

// NewFaissRepository 创建Faiss向量仓库，存在索引文件时加载
func NewFaissRepository(config Config) (Repository, error) {
	if config.Dimension <= 0 {
		return nil, fmt.Errorf("vector dimension must be positive")
	}

	base := NewBaseRepository(config.Dimension, config.DistanceType)
	repo := &FaissRepository{
		BaseRepository: base,
		documents:      make(map[string]Document),
		fileToDocIDs:   make(map[string][]string),
		autoSaveCount:  100,
	}
	if config.Path != "" && !config.InMemory {
		if err := os.MkdirAll(filepath.Dir(config.Path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %v", err)
		}
		repo.indexPath = config.Path
		repo.metaPath = config.Path + ".meta.json"
	}

	if repo.indexPath != "" && fileExists(repo.indexPath) {
		index, err := faiss.ReadIndex(repo.indexPath, 0)
		if err == nil {
			if err := repo.loadMetadata(); err != nil {
				index.Delete()
				return nil, fmt.Errorf("failed to load documents metadata: %v", err)
			}
			repo.index = index
			return repo, nil
		}
		if !config.CreateIfNotExists {
			return nil, fmt.Errorf("failed to read index file: %v", err)
		}
	}

	index, err := createFaissIndex(base.dimension, base.distType)
	if err != nil {
		return nil, fmt.Errorf("failed to create Faiss index: %v", err)
	}
	repo.index = index
	return repo, nil
}

// createFaissIndex 余弦和点积使用内积索引，欧氏距离使用L2索引
func createFaissIndex(dimension int, distType DistanceType) (faiss.Index, error) {
	metric := faiss.MetricL2
	if distType == Cosine || distType == DotProduct {
		metric = faiss.MetricInnerProduct
	}
	return faiss.NewIndexFlat(dimension, metric)
}

// Add 添加单个文档
func (r *FaissRepository) Add(doc Document) error {
	return r.AddBatch([]Document{doc})
}

// AddBatch 批量添加文档
func (r *FaissRepository) AddBatch(docs []Document) error {
	if len(docs) == 0 {
		return nil
	}

	flat := make([]float32, 0, len(docs)*r.dimension)
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
		flat = append(flat, vector...)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.index.Add(flat); err != nil {
		return fmt.Errorf("failed to add vector to index: %v", err)
	}
	for _, doc := range prepared {
		if _, exists := r.documents[doc.ID]; exists {
			r.removeLocked(doc.ID)
		}
		r.documents[doc.ID] = doc
		r.positions = append(r.positions, doc.ID)
		r.fileToDocIDs[doc.FileID] = append(r.fileToDocIDs[doc.FileID], doc.ID)
	}

	r.operationCount += len(prepared)
	if r.operationCount >= r.autoSaveCount {
		if err := r.saveIndex(); err != nil {
			return fmt.Errorf("auto-save failed: %v", err)
		}
		r.operationCount = 0
	}
	return nil
}

// Get 获取单个文档
func (r *FaissRepository) Get(id string) (Document, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	doc, exists := r.documents[id]
	if !exists {
		return Document{}, ErrDocumentNotFound
	}
	return doc, nil
}

// Delete 删除单个文档，索引中的向量保留但不再命中
func (r *FaissRepository) Delete(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.documents[id]; !exists {
		return ErrDocumentNotFound
	}
	r.removeLocked(id)
	r.operationCount++
	return nil
}

// DeleteByFileID 删除指定文件的所有文档
func (r *FaissRepository) DeleteByFileID(fileID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := append([]string(nil), r.fileToDocIDs[fileID]...)
	for _, id := range ids {
		r.removeLocked(id)
	}
	r.operationCount += len(ids)
	return nil
}

// removeLocked 移除文档映射，调用方持有写锁
func (r *FaissRepository) removeLocked(id string) {
	doc, ok := r.documents[id]
	if !ok {
		return
	}
	delete(r.documents, id)
	for i, docID := range r.positions {
		if docID == id {
			r.positions[i] = ""
		}
	}
	ids := r.fileToDocIDs[doc.FileID]
	kept := ids[:0]
	for _, docID := range ids {
		if docID != id {
			kept = append(kept, docID)
		}
	}
	if len(kept) == 0 {
		delete(r.fileToDocIDs, doc.FileID)
	} else {
		r.fileToDocIDs[doc.FileID] = kept
	}
}

// Search 相似度搜索
// 有过滤条件或已删除向量时扩大检索范围，再在结果中过滤
func (r *FaissRepository) Search(vector []float32, filter SearchFilter) ([]SearchResult, error) {
	vector, err := r.prepare(vector)
	if err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	total := int(r.index.Ntotal())
	if len(r.documents) == 0 || total == 0 {
		return []SearchResult{}, nil
	}

	k := filter.MaxResults
	if k <= 0 {
		k = DefaultTopK
	}
	limit := k
	if len(filter.FileIDs) > 0 || len(filter.Pages) > 0 || len(filter.Metadata) > 0 || total > len(r.documents) {
		limit = total
	}
	if limit > total {
		limit = total
	}

	distances, indices, err := r.index.Search(vector, int64(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to search index: %v", err)
	}

	results := make([]SearchResult, 0, k)
	for i, idx := range indices {
		if idx < 0 || int(idx) >= len(r.positions) {
			continue
		}
		doc, ok := r.documents[r.positions[idx]]
		if !ok || !MatchFilter(doc, filter) {
			continue
		}
		dist := distances[i]
		if r.distType == Cosine {
			// 归一化向量的内积即余弦相似度
			dist = 1 - dist
		}
		results = append(results, SearchResult{
			Document: doc,
			Score:    DistanceToScore(dist, r.distType),
			Distance: dist,
		})
	}
	return TopResults(results, SearchFilter{MinScore: filter.MinScore, MaxResults: k}), nil
}

// Count 获取文档总数
func (r *FaissRepository) Count() (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.documents), nil
}

// Close 保存索引并释放资源
func (r *FaissRepository) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.index == nil {
		return nil
	}
	err := r.saveIndex()
	r.index.Delete()
	r.index = nil
	if err != nil {
		return fmt.Errorf("failed to save index on close: %v", err)
	}
	return nil
}

// saveIndex 保存索引和元数据
func (r *FaissRepository) saveIndex() error {
	if r.indexPath == "" {
		return nil
	}
	if err := faiss.WriteIndex(r.index, r.indexPath); err != nil {
		return fmt.Errorf("failed to write index to file: %v", err)
	}

	data, err := json.Marshal(faissMetadata{
		Documents:    r.documents,
		FileToDocIDs: r.fileToDocIDs,
		Positions:    r.positions,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %v", err)
	}
	if err := os.WriteFile(r.metaPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write metadata file: %v", err)
	}
	return nil
}

// loadMetadata 加载元数据
func (r *FaissRepository) loadMetadata() error {
	if !fileExists(r.metaPath) {
		return nil
	}
	data, err := os.ReadFile(r.metaPath)
	if err != nil {
		return fmt.Errorf("failed to read metadata file: %v", err)
	}
	var meta faissMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return fmt.Errorf("failed to unmarshal metadata: %v", err)
	}
	if meta.Documents != nil {
		r.documents = meta.Documents
	}
	if meta.FileToDocIDs != nil {
		r.fileToDocIDs = meta.FileToDocIDs
	}
	r.positions = meta.Positions
	return nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func init() {
	RegisterRepository("faiss", NewFaissRepository)
}
