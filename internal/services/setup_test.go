package services

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"strings"
	"testing"
	"time"

	"github.com/fyerfyer/pdf-qa/internal/cache"
	"github.com/fyerfyer/pdf-qa/internal/database"
	"github.com/fyerfyer/pdf-qa/internal/document"
	"github.com/fyerfyer/pdf-qa/internal/llm"
	"github.com/fyerfyer/pdf-qa/internal/repository"
	"github.com/fyerfyer/pdf-qa/internal/vectordb"
	"github.com/fyerfyer/pdf-qa/pkg/storage"
	"github.com/jung-kurt/gofpdf"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// keywordEmbedder 按关键词出现次数生成向量，结果可预测
type keywordEmbedder struct {
	keywords []string
	fail     error
}

func newKeywordEmbedder() *keywordEmbedder {
	return &keywordEmbedder{keywords: []string{"alpha", "beta", "gamma"}}
}

func (e *keywordEmbedder) vector(text string) []float32 {
	lower := strings.ToLower(text)
	v := make([]float32, len(e.keywords)+1)
	for i, k := range e.keywords {
		v[i] = float32(strings.Count(lower, k)) * 10
	}
	v[len(e.keywords)] = 1
	return v
}

func (e *keywordEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if e.fail != nil {
		return nil, e.fail
	}
	return e.vector(text), nil
}

func (e *keywordEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if e.fail != nil {
		return nil, e.fail
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = e.vector(t)
	}
	return out, nil
}

func (e *keywordEmbedder) Name() string { return "keyword" }
func (e *keywordEmbedder) Dimension() int { return len(e.keywords) + 1 }

// fakeOCR 固定返回识别文本
type fakeOCR struct{ text string }

func (f fakeOCR) Recognize(image []byte) (string, error) { return f.text, nil }
func (f fakeOCR) Close() error { return nil }

type testEnv struct {
	db       *gorm.DB
	docs     repository.DocumentRepository
	records  repository.QARecordRepository
	store    storage.Storage
	vectors  vectordb.Repository
	answers  *cache.AnswerCache
	embedder *keywordEmbedder
	llm      *llm.MockClient
	service  *DocumentService
	qa       *QAService
}

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:services_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, database.AutoMigrate(db))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

func newTestEnv(t *testing.T, opts ...DocumentOption) *testEnv {
	t.Helper()
	db := setupTestDB(t)

	store, err := storage.NewLocalStorage(storage.LocalConfig{Path: t.TempDir()})
	require.NoError(t, err)

	embedder := newKeywordEmbedder()
	vectors, err := vectordb.NewRepository(vectordb.Config{
		Type:         "memory",
		Dimension:    embedder.Dimension(),
		DistanceType: vectordb.Cosine,
	})
	require.NoError(t, err)

	memCache, err := cache.NewMemoryCache(cache.Config{DefaultTTL: time.Hour, CleanupInterval: time.Hour})
	require.NoError(t, err)

	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)

	env := &testEnv{
		db:       db,
		docs:     repository.NewDocumentRepositoryWithDB(db),
		records:  repository.NewQARecordRepositoryWithDB(db),
		store:    store,
		vectors:  vectors,
		answers:  cache.NewAnswerCache(memCache, time.Hour),
		embedder: embedder,
		llm:      llm.NewMockClient(t),
	}

	qa := llm.NewQA(env.llm)
	base := []DocumentOption{
		WithLogger(logger),
		WithDocumentRepository(env.docs),
		WithQARecordRepository(env.records),
		WithAnswerCache(env.answers),
		WithSummarizer(qa),
		WithBatchSize(2),
		WithTimeout(30 * time.Second),
	}
	env.service = NewDocumentService(store, embedder, vectors, append(base, opts...)...)
	env.qa = NewQAService(embedder, vectors, qa,
		WithQARepositories(env.docs, env.records),
		WithQACache(env.answers),
		WithQALogger(logger),
	)
	return env
}

// buildPDF 生成PDF，image 为 true 时在最后一页只放一张图片
func buildPDF(t *testing.T, pages []string, imagePage bool) []byte {
	t.Helper()
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetFont("Arial", "", 12)
	for _, text := range pages {
		pdf.AddPage()
		pdf.MultiCell(0, 10, text, "", "", false)
	}
	if imagePage {
		img := image.NewRGBA(image.Rect(0, 0, 8, 8))
		for x := 0; x < 8; x++ {
			for y := 0; y < 8; y++ {
				img.Set(x, y, color.RGBA{R: uint8(x * 30), G: uint8(y * 30), B: 200, A: 255})
			}
		}
		var buf bytes.Buffer
		require.NoError(t, png.Encode(&buf, img))
		opts := gofpdf.ImageOptions{ImageType: "PNG"}
		pdf.AddPage()
		pdf.RegisterImageOptionsReader("scan", opts, &buf)
		pdf.ImageOptions("scan", 10, 10, 80, 80, false, opts, 0, "")
	}

	var out bytes.Buffer
	require.NoError(t, pdf.Output(&out))
	return out.Bytes()
}

// uploadAndProcess 上传并同步处理文档
func (e *testEnv) uploadAndProcess(t *testing.T, name string, content []byte) string {
	t.Helper()
	ctx := context.Background()
	doc, err := e.service.Upload(ctx, bytes.NewReader(content), name, nil)
	require.NoError(t, err)
	_, _, err = e.service.ProcessDocument(ctx, doc.ID, doc.FilePath)
	require.NoError(t, err)
	return doc.ID
}

// expectGenerate 为包含 marker 的提示词设置固定回复
func (e *testEnv) expectGenerate(marker, reply string) *mock.Call {
	return e.llm.On("Generate", mock.Anything, mock.MatchedBy(func(prompt string) bool {
		return strings.Contains(prompt, marker)
	}), mock.Anything).Return(&llm.Response{Text: reply}, nil)
}

var _ document.OCREngine = fakeOCR{}
