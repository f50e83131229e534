package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

const answerPrefix = "qa"

// CachedAnswer 缓存的问答结果
type CachedAnswer struct {
	Answer      string    `json:"answer"`
	Pages       []int     `json:"pages"`
	Suggestions []string  `json:"suggestions"`
	CreatedAt   time.Time `json:"created_at"`
}

// AnswerCache 按文档和问题缓存问答结果
type AnswerCache struct {
	cache Cache
	ttl   time.Duration
}

// NewAnswerCache 创建问答结果缓存
func NewAnswerCache(c Cache, ttl time.Duration) *AnswerCache {
	return &AnswerCache{cache: c, ttl: ttl}
}

// AnswerKey 问题去除首尾空白并转小写后参与计算
func AnswerKey(documentID, question string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(question))))
	return GenerateCacheKey(answerPrefix, documentID, hex.EncodeToString(sum[:16]))
}

// Get 读取缓存的问答结果
func (a *AnswerCache) Get(documentID, question string) (*CachedAnswer, bool, error) {
	raw, found, err := a.cache.Get(AnswerKey(documentID, question))
	if err != nil || !found {
		return nil, false, err
	}

	var answer CachedAnswer
	if err := json.Unmarshal([]byte(raw), &answer); err != nil {
		// 格式损坏的条目直接丢弃
		_ = a.cache.Delete(AnswerKey(documentID, question))
		return nil, false, nil
	}
	return &answer, true, nil
}

// Put 写入问答结果
func (a *AnswerCache) Put(documentID, question string, answer *CachedAnswer) error {
	if answer.CreatedAt.IsZero() {
		answer.CreatedAt = time.Now()
	}
	data, err := json.Marshal(answer)
	if err != nil {
		return fmt.Errorf("failed to marshal cached answer: %w", err)
	}
	return a.cache.Set(AnswerKey(documentID, question), string(data), a.ttl)
}

// InvalidateDocument 删除文档的全部问答缓存
func (a *AnswerCache) InvalidateDocument(documentID string) error {
	return a.cache.DeletePrefix(GenerateCacheKey(answerPrefix, documentID) + ":")
}
