package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/fyerfyer/pdf-qa/api/middleware"
	"github.com/fyerfyer/pdf-qa/config"
	"github.com/fyerfyer/pdf-qa/internal/cache"
	"github.com/fyerfyer/pdf-qa/internal/database"
	"github.com/fyerfyer/pdf-qa/internal/document"
	"github.com/fyerfyer/pdf-qa/internal/embedding"
	"github.com/fyerfyer/pdf-qa/internal/llm"
	"github.com/fyerfyer/pdf-qa/internal/services"
	"github.com/fyerfyer/pdf-qa/internal/vectordb"
	"github.com/fyerfyer/pdf-qa/pkg/storage"
	"github.com/fyerfyer/pdf-qa/pkg/taskqueue"
	"github.com/sirupsen/logrus"
)

// app 持有一次运行所需的全部组件
type app struct {
	cfg       *config.Config
	logger    *logrus.Logger
	storage   storage.Storage
	vectors   vectordb.Repository
	embedder  embedding.Client
	llmClient llm.Client
	queue     *taskqueue.RedisQueue
	documents *services.DocumentService
	qa        *services.QAService
	closers   []func() error
}

// loadConfig 读取配置并初始化日志
func loadConfig() (*config.Config, *logrus.Logger, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, nil, err
	}
	logger := cfg.NewLogger()
	middleware.SetLogger(logger)
	return cfg, logger, nil
}

// newApp 按配置组装存储、向量库、模型客户端和业务服务
func newApp(cfg *config.Config, logger *logrus.Logger) (_ *app, err error) {
	a := &app{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	if err := database.Setup(cfg.DatabaseParams(), logger); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	a.closers = append(a.closers, database.Close)

	if a.storage, err = storage.NewStorage(cfg.StorageParams()); err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	if a.vectors, err = vectordb.NewRepository(cfg.VectorDBParams()); err != nil {
		return nil, fmt.Errorf("failed to initialize vector database: %w", err)
	}
	a.closers = append(a.closers, a.vectors.Close)

	if a.embedder, err = embedding.NewClient(cfg.Embed.Provider, cfg.EmbeddingOptions()...); err != nil {
		return nil, fmt.Errorf("failed to initialize embedding client: %w", err)
	}
	a.addCloser(a.embedder)

	if a.llmClient, err = llm.NewClient(cfg.LLM.Provider, cfg.LLMOptions()...); err != nil {
		return nil, fmt.Errorf("failed to initialize llm client: %w", err)
	}
	a.addCloser(a.llmClient)

	splitter, err := document.NewRecursiveSplitter(cfg.SplitterParams(), nil)
	if err != nil {
		return nil, err
	}

	qa := llm.NewQA(a.llmClient,
		llm.WithQAMaxTokens(cfg.LLM.MaxTokens),
		llm.WithQATemperature(cfg.LLM.Temperature),
		llm.WithSummaryChunks(cfg.LLM.SummaryChunks),
	)

	docOpts := []services.DocumentOption{
		services.WithLogger(logger),
		services.WithBatchSize(cfg.Embed.BatchSize),
		services.WithEmbedWorkers(cfg.Embed.Workers),
		services.WithTimeout(cfg.Document.Timeout),
		services.WithAssembler(document.NewAssembler(splitter)),
		services.WithSummarizer(qa),
		services.WithExtractOptions(a.extractOptions()...),
	}
	qaOpts := []services.QAOption{
		services.WithQALogger(logger),
		services.WithSearchLimit(cfg.Search.Limit),
		services.WithMinScore(cfg.Search.MinScore),
	}

	if cfg.Cache.Enable {
		c, err := cache.NewCache(cfg.CacheParams())
		if err != nil {
			return nil, fmt.Errorf("failed to initialize cache: %w", err)
		}
		a.addCloser(c)
		answers := cache.NewAnswerCache(c, cfg.Cache.TTL)
		docOpts = append(docOpts, services.WithAnswerCache(answers))
		qaOpts = append(qaOpts, services.WithQACache(answers))
	}

	if cfg.Queue.Enable {
		if a.queue, err = taskqueue.NewRedisQueue(cfg.QueueParams(), logger); err != nil {
			return nil, fmt.Errorf("failed to initialize task queue: %w", err)
		}
		a.closers = append(a.closers, a.queue.Close)
		docOpts = append(docOpts, services.WithTaskQueue(a.queue))
		logger.Info("Document processing will use the task queue")
	}

	a.documents = services.NewDocumentService(a.storage, a.embedder, a.vectors, docOpts...)
	a.qa = services.NewQAService(a.embedder, a.vectors, qa, qaOpts...)
	return a, nil
}

// extractOptions 页面图片和OCR选项
func (a *app) extractOptions() []document.ExtractOption {
	opts := []document.ExtractOption{
		document.WithImages(a.cfg.Document.ExtractImages),
		document.WithTables(a.cfg.Document.ExtractTables),
		document.WithExtractLogger(a.logger),
	}
	if !a.cfg.Document.OCR {
		return opts
	}

	ocrCfg, err := document.LoadOCRConfig()
	if err != nil {
		a.logger.WithError(err).Warn("Invalid OCR settings, OCR disabled")
		return opts
	}
	if !ocrCfg.Enabled {
		return opts
	}
	engine, err := document.NewOCREngine(ocrCfg)
	if errors.Is(err, document.ErrOCRUnavailable) {
		a.logger.Info("OCR support not built in, image-only pages will have no text")
		return opts
	}
	if err != nil {
		a.logger.WithError(err).Warn("Failed to start OCR engine, OCR disabled")
		return opts
	}
	a.closers = append(a.closers, engine.Close)
	return append(opts, document.WithOCR(engine))
}

func (a *app) addCloser(v interface{}) {
	if c, ok := v.(io.Closer); ok {
		a.closers = append(a.closers, c.Close)
	}
}

// Close 按创建的相反顺序释放资源
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.WithError(err).Warn("Failed to release resource")
		}
	}
	a.closers = nil
}
