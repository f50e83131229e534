package vectordb

import (
	"fmt"
	"math"
	"sort"
)

// BaseRepository 各实现共享的向量空间参数
type BaseRepository struct {
	dimension int          // 向量维度
	distType  DistanceType // 距离计算类型
}

// NewBaseRepository 创建基础仓库，未知的距离类型按余弦处理
func NewBaseRepository(dimension int, distType DistanceType) *BaseRepository {
	switch distType {
	case Cosine, DotProduct, Euclidean:
	default:
		distType = Cosine
	}
	return &BaseRepository{
		dimension: dimension,
		distType:  distType,
	}
}

// GetDimension 返回向量维数
func (b *BaseRepository) GetDimension() int {
	return b.dimension
}

// prepare 校验向量并按距离类型预处理
func (b *BaseRepository) prepare(vector []float32) ([]float32, error) {
	if err := ValidateVector(vector, b.dimension); err != nil {
		return nil, err
	}
	if b.distType == Cosine {
		return normalizeVector(vector), nil
	}
	return vector, nil
}

// ComputeDistance 计算两个向量间的距离
func ComputeDistance(v1, v2 []float32, distType DistanceType) (float32, error) {
	if len(v1) != len(v2) {
		return 0, fmt.Errorf("vector dimensions do not match: %d vs %d", len(v1), len(v2))
	}

	switch distType {
	case Cosine:
		return cosineDistance(v1, v2), nil
	case DotProduct:
		return dotProduct(v1, v2), nil
	case Euclidean:
		return euclideanDistance(v1, v2), nil
	default:
		return 0, fmt.Errorf("unsupported distance type: %s", distType)
	}
}

// cosineDistance 计算余弦距离
func cosineDistance(v1, v2 []float32) float32 {
	// 余弦相似度 = 点积 / (||v1|| * ||v2||)
	// 余弦距离 = 1 - 余弦相似度
	dot := dotProduct(v1, v2)
	norm1 := vectorNorm(v1)
	norm2 := vectorNorm(v2)

	if norm1 == 0 || norm2 == 0 {
		return 1.0 // 最大距离
	}

	similarity := dot / (norm1 * norm2)
	// 处理浮点精度问题
	if similarity > 1.0 {
		similarity = 1.0
	}

	return 1.0 - similarity
}

// dotProduct 计算两个向量的点积
func dotProduct(v1, v2 []float32) float32 {
	var dot float32
	for i := 0; i < len(v1); i++ {
		dot += v1[i] * v2[i]
	}
	return dot
}

// euclideanDistance 计算欧几里德距离
func euclideanDistance(v1, v2 []float32) float32 {
	var sum float32
	for i := 0; i < len(v1); i++ {
		d := v1[i] - v2[i]
		sum += d * d
	}
	return float32(math.Sqrt(float64(sum)))
}

// vectorNorm 计算向量的L2范数
func vectorNorm(v []float32) float32 {
	var sum float32
	for _, val := range v {
		sum += val * val
	}
	return float32(math.Sqrt(float64(sum)))
}

// normalizeVector 归一化向量（使其长度为1）
func normalizeVector(v []float32) []float32 {
	norm := vectorNorm(v)
	if norm == 0 {
		return v // 零向量无法归一化
	}

	result := make([]float32, len(v))
	for i, val := range v {
		result[i] = val / norm
	}
	return result
}

// MatchFilter 判断文档是否满足文件、页码和元数据过滤条件
func MatchFilter(doc Document, filter SearchFilter) bool {
	if len(filter.FileIDs) > 0 && !containsString(filter.FileIDs, doc.FileID) {
		return false
	}
	if len(filter.Pages) > 0 && !containsInt(filter.Pages, doc.Page) {
		return false
	}
	return matchMetadata(doc.Metadata, filter.Metadata)
}

// FilterDocuments 根据过滤条件筛选文档
func FilterDocuments(docs []Document, filter SearchFilter) []Document {
	var result []Document
	for _, doc := range docs {
		if MatchFilter(doc, filter) {
			result = append(result, doc)
		}
	}
	return result
}

// matchMetadata 检查文档元数据是否匹配过滤条件
func matchMetadata(docMeta map[string]interface{}, filterMeta map[string]interface{}) bool {
	for key, filterValue := range filterMeta {
		docValue, exists := docMeta[key]
		if !exists || fmt.Sprint(docValue) != fmt.Sprint(filterValue) {
			return false
		}
	}
	return true
}

func containsString(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

func containsInt(list []int, v int) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

// SortSearchResults 按得分降序排序，得分相同时按文档位置升序
func SortSearchResults(results []SearchResult) {
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Document.Position < results[j].Document.Position
	})
}

// TopResults 排序、按最小分数过滤并截取前N个结果
func TopResults(results []SearchResult, filter SearchFilter) []SearchResult {
	kept := results[:0]
	for _, r := range results {
		if r.Score >= filter.MinScore {
			kept = append(kept, r)
		}
	}
	SortSearchResults(kept)
	if filter.MaxResults > 0 && len(kept) > filter.MaxResults {
		kept = kept[:filter.MaxResults]
	}
	return kept
}

// DistanceToScore 将距离转换为评分（0-1之间）
// 不同距离度量需要不同的转换方法
func DistanceToScore(distance float32, distType DistanceType) float32 {
	switch distType {
	case Cosine:
		// 余弦距离: 1 - distance (余弦距离已经是1-相似度)
		return 1 - distance
	case DotProduct:
		// 点积: 对于归一化向量，范围通常在[-1, 1]之间
		// 转换为[0, 1]范围
		return (distance + 1) / 2
	case Euclidean:
		// 欧几里德距离: 使用高斯衰减函数
		// 距离越小，分数越高
		return float32(math.Exp(-float64(distance)))
	default:
		return 0
	}
}

// ValidateVector 验证向量维度和有效性
func ValidateVector(vector []float32, expectedDim int) error {
	if len(vector) == 0 {
		return ErrEmptyVector
	}

	if expectedDim > 0 && len(vector) != expectedDim {
		return fmt.Errorf("%w: expected %d, got %d", ErrInvalidDimension, expectedDim, len(vector))
	}

	return nil
}
