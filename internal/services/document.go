package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/fyerfyer/pdf-qa/internal/cache"
	"github.com/fyerfyer/pdf-qa/internal/document"
	"github.com/fyerfyer/pdf-qa/internal/embedding"
	"github.com/fyerfyer/pdf-qa/internal/llm"
	"github.com/fyerfyer/pdf-qa/internal/models"
	"github.com/fyerfyer/pdf-qa/internal/repository"
	"github.com/fyerfyer/pdf-qa/internal/vectordb"
	"github.com/fyerfyer/pdf-qa/pkg/storage"
	"github.com/fyerfyer/pdf-qa/pkg/taskqueue"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"
)

// DocumentService 文档服务
// 负责协调文档提取、分块、向量化和存储
type DocumentService struct {
	storage       storage.Storage               // 文件存储服务
	embedder      embedding.Client              // 嵌入模型客户端
	vectorDB      vectordb.Repository           // 向量数据库
	repo          repository.DocumentRepository // 文档元数据存储
	qaRepo        repository.QARecordRepository // 问答记录
	answers       *cache.AnswerCache            // 问答结果缓存
	statusManager *DocumentStatusManager        // 文档状态管理器
	taskQueue     taskqueue.Queue               // 任务队列
	assembler     *document.Assembler           // 按页分块
	summarizer    *llm.QA                       // 摘要生成
	extractOpts   []document.ExtractOption      // 提取选项
	batchSize     int                           // 单次嵌入请求的文本数
	workers       int                           // 并行嵌入请求数
	timeout       time.Duration                 // 单个文档的处理超时
	logger        *logrus.Logger                // 日志记录器
	wg            sync.WaitGroup                // 后台处理中的文档
}

// DocumentOption 文档服务配置选项
type DocumentOption func(*DocumentService)

// NewDocumentService 创建一个新的文档服务
func NewDocumentService(
	storage storage.Storage,
	embedder embedding.Client,
	vectorDB vectordb.Repository,
	opts ...DocumentOption,
) *DocumentService {
	srv := &DocumentService{
		storage:   storage,
		embedder:  embedder,
		vectorDB:  vectorDB,
		batchSize: 16,
		workers:   4,
		timeout:   10 * time.Minute,
		logger:    logrus.New(),
	}

	for _, opt := range opts {
		opt(srv)
	}

	if srv.repo == nil {
		srv.repo = repository.NewDocumentRepository()
	}
	if srv.qaRepo == nil {
		srv.qaRepo = repository.NewQARecordRepository()
	}
	if srv.statusManager == nil {
		srv.statusManager = NewDocumentStatusManager(srv.repo, srv.logger)
	}
	if srv.assembler == nil {
		srv.assembler = document.NewDefaultAssembler()
	}
	return srv
}

// WithBatchSize 设置批处理大小
func WithBatchSize(size int) DocumentOption {
	return func(s *DocumentService) {
		if size > 0 {
			s.batchSize = size
		}
	}
}

// WithEmbedWorkers 设置并行嵌入请求数
func WithEmbedWorkers(n int) DocumentOption {
	return func(s *DocumentService) {
		if n > 0 {
			s.workers = n
		}
	}
}

// WithTimeout 设置处理超时时间
func WithTimeout(timeout time.Duration) DocumentOption {
	return func(s *DocumentService) {
		if timeout > 0 {
			s.timeout = timeout
		}
	}
}

// WithLogger 设置日志记录器
func WithLogger(logger *logrus.Logger) DocumentOption {
	return func(s *DocumentService) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithDocumentRepository 设置文档仓储
func WithDocumentRepository(repo repository.DocumentRepository) DocumentOption {
	return func(s *DocumentService) {
		s.repo = repo
	}
}

// WithQARecordRepository 设置问答记录仓储，删除文档时一并清理
func WithQARecordRepository(repo repository.QARecordRepository) DocumentOption {
	return func(s *DocumentService) {
		s.qaRepo = repo
	}
}

// WithAnswerCache 设置问答缓存，文档变化时失效
func WithAnswerCache(answers *cache.AnswerCache) DocumentOption {
	return func(s *DocumentService) {
		s.answers = answers
	}
}

// WithStatusManager 设置状态管理器
func WithStatusManager(manager *DocumentStatusManager) DocumentOption {
	return func(s *DocumentService) {
		s.statusManager = manager
	}
}

// WithTaskQueue 设置任务队列，设置后文档经队列异步处理
func WithTaskQueue(queue taskqueue.Queue) DocumentOption {
	return func(s *DocumentService) {
		s.taskQueue = queue
	}
}

// WithAssembler 设置分块组装器
func WithAssembler(assembler *document.Assembler) DocumentOption {
	return func(s *DocumentService) {
		s.assembler = assembler
	}
}

// WithSummarizer 设置生成摘要的问答组件
func WithSummarizer(qa *llm.QA) DocumentOption {
	return func(s *DocumentService) {
		s.summarizer = qa
	}
}

// WithExtractOptions 设置文档提取选项，例如OCR引擎
func WithExtractOptions(opts ...document.ExtractOption) DocumentOption {
	return func(s *DocumentService) {
		s.extractOpts = append(s.extractOpts, opts...)
	}
}

// AsyncEnabled 是否通过任务队列处理文档
func (s *DocumentService) AsyncEnabled() bool {
	return s.taskQueue != nil
}

// StatusManager 返回文档状态管理器
func (s *DocumentService) StatusManager() *DocumentStatusManager {
	return s.statusManager
}

// Upload 保存上传文件并创建文档记录
func (s *DocumentService) Upload(ctx context.Context, r io.Reader, fileName string, tags []string) (*models.Document, error) {
	if !document.IsSupported(fileName) {
		return nil, fmt.Errorf("%w: %s", document.ErrUnsupportedFormat, fileName)
	}

	info, err := s.storage.Save(r, fileName)
	if err != nil {
		return nil, fmt.Errorf("failed to save file: %w", err)
	}

	doc := &models.Document{
		ID:       uuid.New().String(),
		FileName: fileName,
		FilePath: info.Path,
		FileSize: info.Size,
	}
	if len(tags) > 0 {
		doc.Tags = datatypes.JSON(mustJSON(tags))
	}

	if err := s.statusManager.MarkAsUploaded(ctx, doc); err != nil {
		_ = s.storage.Delete(info.Path)
		return nil, fmt.Errorf("failed to create document record: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"doc_id":    doc.ID,
		"file_name": fileName,
		"path":      info.Path,
		"size":      info.Size,
	}).Info("Document uploaded")
	return doc, nil
}

// Submit 安排文档处理
// 配置了任务队列时入队，否则在后台协程中处理，可用 Wait 等待
func (s *DocumentService) Submit(ctx context.Context, docID string) error {
	doc, err := s.statusManager.GetDocument(ctx, docID)
	if err != nil {
		return err
	}
	if doc.Status == models.DocStatusProcessing {
		return fmt.Errorf("document %s: %w: already processing", docID, ErrInvalidTransition)
	}

	if s.AsyncEnabled() {
		_, err := s.ProcessDocumentAsync(ctx, doc)
		return err
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if _, _, err := s.ProcessDocument(context.WithoutCancel(ctx), doc.ID, doc.FilePath); err != nil {
			s.logger.WithError(err).WithField("doc_id", doc.ID).Error("Background document processing failed")
		}
	}()
	return nil
}

// Wait 等待所有后台处理结束
func (s *DocumentService) Wait() {
	s.wg.Wait()
}

// ProcessDocumentAsync 把文档处理任务放入队列，返回任务ID
func (s *DocumentService) ProcessDocumentAsync(ctx context.Context, doc *models.Document) (string, error) {
	if !s.AsyncEnabled() {
		return "", ErrAsyncDisabled
	}

	payload := taskqueue.ProcessDocumentPayload{
		DocumentID: doc.ID,
		FilePath:   doc.FilePath,
		FileName:   doc.FileName,
	}
	taskID, err := s.taskQueue.Enqueue(ctx, taskqueue.TaskProcessDocument, doc.ID, payload)
	if err != nil {
		s.failDocument(ctx, doc.ID, fmt.Sprintf("failed to enqueue processing task: %v", err))
		return "", fmt.Errorf("failed to enqueue processing task: %w", err)
	}

	if err := s.repo.WithContext(ctx).SetTaskID(doc.ID, taskID); err != nil {
		s.logger.WithError(err).Warn("Failed to record task ID")
	}

	s.logger.WithFields(logrus.Fields{
		"doc_id":  doc.ID,
		"task_id": taskID,
	}).Info("Document processing task enqueued")
	return taskID, nil
}

// ProcessDocument 同步处理文档：提取、分块、向量化、入库
// 返回页数和文本块数，失败时文档被标记为 failed
func (s *DocumentService) ProcessDocument(ctx context.Context, docID, filePath string) (int, int, error) {
	if docID == "" {
		return 0, 0, errors.New("document ID cannot be empty")
	}
	if filePath == "" {
		return 0, 0, errors.New("file path cannot be empty")
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	log := s.logger.WithFields(logrus.Fields{"doc_id": docID, "file_path": filePath})
	log.Info("Starting document processing")
	start := time.Now()

	if err := s.statusManager.MarkAsProcessing(ctx, docID); err != nil {
		return 0, 0, fmt.Errorf("failed to mark document as processing: %w", err)
	}

	ext, err := s.extract(ctx, filePath)
	if err != nil {
		return 0, 0, s.fail(ctx, docID, "failed to extract document", err)
	}
	s.savePageImages(ctx, docID, ext.Images)

	s.setStage(ctx, docID, models.StageChunk)
	chunks := s.assembler.Assemble(ext.Pages)
	if len(chunks) == 0 {
		return 0, 0, s.fail(ctx, docID, "failed to chunk document", ErrNoTextExtracted)
	}

	s.setStage(ctx, docID, models.StageEmbed)
	vectors, err := s.embed(ctx, chunks)
	if err != nil {
		return 0, 0, s.fail(ctx, docID, "failed to generate embeddings", err)
	}

	s.setStage(ctx, docID, models.StageIndex)
	if err := s.index(ctx, docID, filePath, chunks, vectors); err != nil {
		return 0, 0, s.fail(ctx, docID, "failed to index chunks", err)
	}

	result := repository.ProcessResult{
		PageCount:  ext.PageCount,
		ChunkCount: len(chunks),
		OCRPages:   ext.OCRPages,
		Tables:     ext.Tables,
	}
	if err := s.statusManager.MarkAsCompleted(ctx, docID, result); err != nil {
		return 0, 0, fmt.Errorf("failed to mark document as completed: %w", err)
	}
	s.invalidateAnswers(docID)

	log.WithFields(logrus.Fields{
		"pages":    ext.PageCount,
		"chunks":   len(chunks),
		"ocr":      len(ext.OCRPages),
		"tables":   len(ext.Tables),
		"duration": time.Since(start).String(),
	}).Info("Document processing completed")
	return ext.PageCount, len(chunks), nil
}

// extract 从存储取出文件并逐页提取文本和图片
func (s *DocumentService) extract(ctx context.Context, filePath string) (*document.Extraction, error) {
	local, release, err := s.storage.LocalPath(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to get file from storage: %w", err)
	}
	defer release()

	opts := make([]document.ExtractOption, 0, len(s.extractOpts)+1)
	opts = append(opts, document.WithExtractLogger(s.logger))
	opts = append(opts, s.extractOpts...)
	extractor, err := document.NewExtractor(filePath, opts...)
	if err != nil {
		return nil, err
	}
	return extractor.Extract(ctx, local)
}

// savePageImages 保存页面图片，单张失败只记录日志
func (s *DocumentService) savePageImages(ctx context.Context, docID string, images []document.PageImage) {
	if len(images) == 0 {
		return
	}

	records := make([]*models.PageImage, 0, len(images))
	for _, img := range images {
		p := storage.PageImagePath(docID, img.FileName())
		info, err := s.storage.Put(p, bytes.NewReader(img.Data), int64(len(img.Data)), "")
		if err != nil {
			s.logger.WithError(err).WithFields(logrus.Fields{
				"doc_id": docID,
				"page":   img.Page,
			}).Warn("Failed to store page image")
			continue
		}
		records = append(records, &models.PageImage{
			Page:     img.Page,
			Path:     info.Path,
			MimeType: info.MimeType,
		})
	}

	if err := s.repo.WithContext(ctx).SavePageImages(docID, records); err != nil {
		s.logger.WithError(err).WithField("doc_id", docID).Warn("Failed to save page image records")
	}
}

// embed 分批并行生成文本块的向量
func (s *DocumentService) embed(ctx context.Context, chunks []document.Chunk) ([][]float32, error) {
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	return embedding.NewBatchProcessor(s.embedder, s.batchSize, s.workers).Process(ctx, texts)
}

// index 写入向量库和文本块表，重新处理时先清掉旧数据
func (s *DocumentService) index(ctx context.Context, docID, filePath string, chunks []document.Chunk, vectors [][]float32) error {
	if len(vectors) != len(chunks) {
		return fmt.Errorf("embedding count mismatch: got %d, want %d", len(vectors), len(chunks))
	}
	if err := s.vectorDB.DeleteByFileID(docID); err != nil {
		return fmt.Errorf("failed to clear old vectors: %w", err)
	}

	fileName := ""
	if doc, err := s.repo.WithContext(ctx).GetByID(docID); err == nil {
		fileName = doc.FileName
	}

	docs := make([]vectordb.Document, len(chunks))
	rows := make([]*models.DocumentChunk, len(chunks))
	for i, c := range chunks {
		docs[i] = vectordb.NewChunkDocument(docID, fileName, i, c.Page, c.Text, vectors[i])
		docs[i].Metadata = map[string]interface{}{"source": filePath}
		rows[i] = &models.DocumentChunk{
			Page:     c.Page,
			Position: i,
			Text:     c.Text,
			VectorID: docs[i].ID,
		}
	}

	if err := s.vectorDB.AddBatch(docs); err != nil {
		return fmt.Errorf("failed to store vectors: %w", err)
	}
	if err := s.repo.WithContext(ctx).SaveChunks(docID, rows); err != nil {
		return fmt.Errorf("failed to save chunks: %w", err)
	}
	return nil
}

// Summarize 返回已完成文档的摘要，首次调用时用前几个文本块生成并保存
// 重新处理会清空摘要，下次调用时重新生成
func (s *DocumentService) Summarize(ctx context.Context, docID string) (string, error) {
	doc, err := s.statusManager.GetDocument(ctx, docID)
	if err != nil {
		return "", err
	}
	if doc.Status != models.DocStatusCompleted {
		return "", fmt.Errorf("%w: %s", models.ErrDocumentNotReady, doc.Status)
	}
	if doc.Summary != "" {
		return doc.Summary, nil
	}
	if s.summarizer == nil {
		return "", ErrSummarizerMissing
	}

	chunks, err := s.repo.WithContext(ctx).ListChunks(docID)
	if err != nil {
		return "", fmt.Errorf("failed to load chunks: %w", err)
	}
	if n := s.summarizer.SummaryChunks(); len(chunks) > n {
		chunks = chunks[:n]
	}
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}

	summary, err := s.summarizer.Summarize(ctx, texts)
	if err != nil {
		return "", err
	}
	if err := s.repo.WithContext(ctx).SetSummary(docID, summary); err != nil {
		s.logger.WithError(err).WithField("doc_id", docID).Warn("Failed to save summary")
	}
	return summary, nil
}

// DeleteDocument 删除文档及其向量、文件、图片、问答记录和任务
func (s *DocumentService) DeleteDocument(ctx context.Context, docID string) error {
	doc, err := s.statusManager.GetDocument(ctx, docID)
	if err != nil {
		return err
	}
	log := s.logger.WithField("doc_id", docID)
	log.Info("Deleting document")

	if err := s.vectorDB.DeleteByFileID(docID); err != nil {
		return fmt.Errorf("failed to delete document vectors: %w", err)
	}

	if err := s.storage.Delete(doc.FilePath); err != nil && !errors.Is(err, storage.ErrNotFound) {
		log.WithError(err).Warn("Failed to delete file from storage")
	}
	if err := s.storage.DeletePrefix(storage.PageImagePrefix(docID)); err != nil {
		log.WithError(err).Warn("Failed to delete page images from storage")
	}

	if err := s.qaRepo.WithContext(ctx).DeleteByDocument(docID); err != nil {
		return fmt.Errorf("failed to delete qa records: %w", err)
	}
	s.invalidateAnswers(docID)

	if s.taskQueue != nil {
		if tasks, err := s.taskQueue.GetTasksByDocument(ctx, docID); err == nil {
			for _, task := range tasks {
				if err := s.taskQueue.DeleteTask(ctx, task.ID); err != nil {
					log.WithError(err).WithField("task_id", task.ID).Warn("Failed to delete document task")
				}
			}
		}
	}

	return s.statusManager.DeleteDocument(ctx, docID)
}

// GetDocument 获取文档
func (s *DocumentService) GetDocument(ctx context.Context, docID string) (*models.Document, error) {
	return s.statusManager.GetDocument(ctx, docID)
}

// ListDocuments 获取文档列表
func (s *DocumentService) ListDocuments(ctx context.Context, offset, limit int, filter repository.ListFilter) ([]*models.Document, int64, error) {
	return s.statusManager.ListDocuments(ctx, offset, limit, filter)
}

// ListChunks 获取文档文本块，page 大于0时只返回该页
func (s *DocumentService) ListChunks(ctx context.Context, docID string, page int) ([]*models.DocumentChunk, error) {
	if _, err := s.statusManager.GetDocument(ctx, docID); err != nil {
		return nil, err
	}
	if page > 0 {
		return s.repo.WithContext(ctx).ListChunksByPages(docID, []int{page})
	}
	return s.repo.WithContext(ctx).ListChunks(docID)
}

// ListPageImages 获取文档页面图片
func (s *DocumentService) ListPageImages(ctx context.Context, docID string, pages []int) ([]*models.PageImage, error) {
	return s.repo.WithContext(ctx).ListPageImages(docID, pages)
}

// GetDocumentTasks 获取文档相关的任务
func (s *DocumentService) GetDocumentTasks(ctx context.Context, docID string) ([]*taskqueue.Task, error) {
	if !s.AsyncEnabled() {
		return nil, ErrAsyncDisabled
	}
	return s.taskQueue.GetTasksByDocument(ctx, docID)
}

// WaitForDocumentProcessing 等待最近一次处理任务结束并检查文档状态
func (s *DocumentService) WaitForDocumentProcessing(ctx context.Context, docID string, timeout time.Duration) error {
	if s.AsyncEnabled() {
		doc, err := s.statusManager.GetDocument(ctx, docID)
		if err != nil {
			return err
		}
		if doc.CurrentTaskID != "" {
			if _, err := s.taskQueue.WaitForTask(ctx, doc.CurrentTaskID, timeout); err != nil {
				return fmt.Errorf("failed to wait for document processing: %w", err)
			}
		}
	} else {
		s.Wait()
	}

	doc, err := s.statusManager.GetDocument(ctx, docID)
	if err != nil {
		return err
	}
	switch doc.Status {
	case models.DocStatusCompleted:
		return nil
	case models.DocStatusFailed:
		return fmt.Errorf("document processing failed: %s", doc.Error)
	default:
		return fmt.Errorf("%w: %s", models.ErrDocumentNotReady, doc.Status)
	}
}

func (s *DocumentService) setStage(ctx context.Context, docID string, stage models.ProcessStage) {
	if err := s.statusManager.SetStage(ctx, docID, stage); err != nil {
		s.logger.WithError(err).WithField("doc_id", docID).Warn("Failed to update document stage")
	}
}

// fail 标记文档失败并返回包装后的错误
func (s *DocumentService) fail(ctx context.Context, docID, msg string, cause error) error {
	err := fmt.Errorf("%s: %w", msg, cause)
	s.failDocument(context.WithoutCancel(ctx), docID, err.Error())
	return err
}

// failDocument 将文档标记为失败状态
func (s *DocumentService) failDocument(ctx context.Context, docID string, errorMsg string) {
	if err := s.statusManager.MarkAsFailed(ctx, docID, errorMsg); err != nil {
		s.logger.WithFields(logrus.Fields{
			"doc_id": docID,
			"error":  err,
		}).Error("Failed to mark document as failed")
	}
}

func (s *DocumentService) invalidateAnswers(docID string) {
	if s.answers == nil {
		return
	}
	if err := s.answers.InvalidateDocument(docID); err != nil {
		s.logger.WithError(err).WithField("doc_id", docID).Warn("Failed to invalidate answer cache")
	}
}
