package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/fyerfyer/pdf-qa/internal/cache"
	"github.com/fyerfyer/pdf-qa/internal/embedding"
	"github.com/fyerfyer/pdf-qa/internal/llm"
	"github.com/fyerfyer/pdf-qa/internal/models"
	"github.com/fyerfyer/pdf-qa/internal/repository"
	"github.com/fyerfyer/pdf-qa/internal/vectordb"
	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"
)

// Source 参与回答的文本块
type Source struct {
	Page  int     `json:"page"`
	Text  string  `json:"text"`
	Score float32 `json:"score"`
}

// ImageRef 回答引用页上的图片
type ImageRef struct {
	Page     int    `json:"page"`
	Path     string `json:"path"`
	MimeType string `json:"mime_type"`
}

// QAResult 一次问答的完整结果
type QAResult struct {
	RecordID    uint       `json:"record_id,omitempty"`
	Answer      string     `json:"answer"`
	Pages       []int      `json:"pages"`
	Sources     []Source   `json:"sources"`
	Images      []ImageRef `json:"images"`
	Suggestions []string   `json:"suggestions"`
	Cached      bool       `json:"cached"`
}

// QAService 问答服务
// 负责协调向量检索和大模型生成答案
type QAService struct {
	embedder    embedding.Client              // 嵌入模型客户端
	vectorDB    vectordb.Repository           // 向量数据库
	qa          *llm.QA                       // 提示词和答案生成
	docs        repository.DocumentRepository // 文档和页面图片
	records     repository.QARecordRepository // 问答记录
	answers     *cache.AnswerCache            // 问答缓存，可为空
	searchLimit int                           // 检索的文本块数
	minScore    float32                       // 最低相似度分数
	logger      *logrus.Logger
}

// QAOption 问答服务配置选项
type QAOption func(*QAService)

// NewQAService 创建问答服务实例
func NewQAService(
	embedder embedding.Client,
	vectorDB vectordb.Repository,
	qa *llm.QA,
	opts ...QAOption,
) *QAService {
	service := &QAService{
		embedder:    embedder,
		vectorDB:    vectorDB,
		qa:          qa,
		searchLimit: vectordb.DefaultTopK,
		logger:      logrus.New(),
	}

	for _, opt := range opts {
		opt(service)
	}

	if service.docs == nil {
		service.docs = repository.NewDocumentRepository()
	}
	if service.records == nil {
		service.records = repository.NewQARecordRepository()
	}
	return service
}

// WithSearchLimit 设置检索数量
func WithSearchLimit(limit int) QAOption {
	return func(s *QAService) {
		if limit > 0 {
			s.searchLimit = limit
		}
	}
}

// WithMinScore 设置最低相似度分数
func WithMinScore(score float32) QAOption {
	return func(s *QAService) {
		s.minScore = score
	}
}

// WithQACache 设置问答结果缓存
func WithQACache(answers *cache.AnswerCache) QAOption {
	return func(s *QAService) {
		s.answers = answers
	}
}

// WithQARepositories 设置文档仓储和问答记录仓储
func WithQARepositories(docs repository.DocumentRepository, records repository.QARecordRepository) QAOption {
	return func(s *QAService) {
		s.docs = docs
		s.records = records
	}
}

// WithQALogger 设置日志记录器
func WithQALogger(logger *logrus.Logger) QAOption {
	return func(s *QAService) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// Ask 针对单个文档回答问题
func (s *QAService) Ask(ctx context.Context, docID, question string) (*QAResult, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, llm.ErrEmptyQuestion
	}

	doc, err := s.docs.WithContext(ctx).GetByID(docID)
	if err != nil {
		return nil, err
	}
	if doc.Status != models.DocStatusCompleted {
		return nil, fmt.Errorf("%w: %s", models.ErrDocumentNotReady, doc.Status)
	}

	log := s.logger.WithFields(logrus.Fields{"doc_id": docID, "question": question})

	if result, ok := s.fromCache(ctx, docID, question); ok {
		log.Debug("Answer served from cache")
		s.record(ctx, docID, question, result)
		return result, nil
	}

	contexts, err := s.retrieve(ctx, docID, question)
	if err != nil {
		return nil, err
	}

	answer, err := s.qa.Answer(ctx, question, contexts)
	if err != nil {
		return nil, err
	}

	result := &QAResult{
		Answer:      answer.Text,
		Pages:       answer.Pages,
		Sources:     make([]Source, 0, len(contexts)),
		Suggestions: s.qa.SuggestQuestions(ctx, question, contexts),
	}
	for _, c := range contexts {
		result.Sources = append(result.Sources, Source{Page: c.Page, Text: c.Text, Score: c.Score})
	}
	result.Images = s.pageImages(ctx, docID, result.Pages)

	if s.answers != nil {
		err := s.answers.Put(docID, question, &cache.CachedAnswer{
			Answer:      result.Answer,
			Pages:       result.Pages,
			Suggestions: result.Suggestions,
		})
		if err != nil {
			log.WithError(err).Warn("Failed to cache answer")
		}
	}
	s.record(ctx, docID, question, result)

	log.WithFields(logrus.Fields{
		"pages":   result.Pages,
		"sources": len(result.Sources),
	}).Info("Question answered")
	return result, nil
}

// retrieve 向量检索与问题最相关的文本块
func (s *QAService) retrieve(ctx context.Context, docID, question string) ([]llm.ContextChunk, error) {
	vector, err := s.embedder.Embed(ctx, question)
	if err != nil {
		return nil, fmt.Errorf("failed to generate embedding: %w", err)
	}

	results, err := s.vectorDB.Search(vector, vectordb.SearchFilter{
		FileIDs:    []string{docID},
		MinScore:   s.minScore,
		MaxResults: s.searchLimit,
	})
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}

	contexts := make([]llm.ContextChunk, 0, len(results))
	for _, r := range results {
		contexts = append(contexts, llm.ContextChunk{
			Page:  r.Document.Page,
			Text:  r.Document.Text,
			Score: r.Score,
		})
	}
	return contexts, nil
}

func (s *QAService) fromCache(ctx context.Context, docID, question string) (*QAResult, bool) {
	if s.answers == nil {
		return nil, false
	}
	cached, found, err := s.answers.Get(docID, question)
	if err != nil {
		s.logger.WithError(err).Warn("Failed to read answer cache")
		return nil, false
	}
	if !found {
		return nil, false
	}
	return &QAResult{
		Answer:      cached.Answer,
		Pages:       cached.Pages,
		Sources:     []Source{},
		Images:      s.pageImages(ctx, docID, cached.Pages),
		Suggestions: cached.Suggestions,
		Cached:      true,
	}, true
}

// pageImages 查询引用页上的图片
func (s *QAService) pageImages(ctx context.Context, docID string, pages []int) []ImageRef {
	refs := []ImageRef{}
	if len(pages) == 0 {
		return refs
	}
	images, err := s.docs.WithContext(ctx).ListPageImages(docID, pages)
	if err != nil {
		s.logger.WithError(err).WithField("doc_id", docID).Warn("Failed to load page images")
		return refs
	}
	for _, img := range images {
		refs = append(refs, ImageRef{Page: img.Page, Path: img.Path, MimeType: img.MimeType})
	}
	return refs
}

// record 保存问答记录，失败只记录日志
func (s *QAService) record(ctx context.Context, docID, question string, result *QAResult) {
	rec := &models.QARecord{
		DocumentID:  docID,
		Question:    question,
		Answer:      result.Answer,
		Pages:       datatypes.JSON(mustJSON(nonNilInts(result.Pages))),
		Suggestions: datatypes.JSON(mustJSON(result.Suggestions)),
		Cached:      result.Cached,
		CreatedAt:   time.Now(),
	}
	if err := s.records.WithContext(ctx).Create(rec); err != nil {
		s.logger.WithError(err).WithField("doc_id", docID).Warn("Failed to save qa record")
		return
	}
	result.RecordID = rec.ID
}

// History 按时间倒序列出文档的问答记录
func (s *QAService) History(ctx context.Context, docID string, offset, limit int) ([]*models.QARecord, int64, error) {
	if _, err := s.docs.WithContext(ctx).GetByID(docID); err != nil {
		return nil, 0, err
	}
	return s.records.WithContext(ctx).ListByDocument(docID, offset, limit)
}

func nonNilInts(v []int) []int {
	if v == nil {
		return []int{}
	}
	return v
}
