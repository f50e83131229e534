package document

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
)

// ErrUnsupportedFormat 不支持的文档格式
var ErrUnsupportedFormat = errors.New("unsupported document type")

// Extractor 页面文本来源接口
// 负责把文档解析为按页组织的原始文本和图片
type Extractor interface {
	// Extract 解析文件，返回逐页内容
	Extract(ctx context.Context, filePath string) (*Extraction, error)
}

// Extraction 文档解析结果
type Extraction struct {
	Pages     PageText    // 页码到文本
	PageCount int         // 文档总页数
	Images    []PageImage // 页面内嵌图片
	Tables    []Table     // 按页识别出的表格
	OCRPages  []int       // 通过OCR补全文本的页码
}

// ImagesOnPages 返回落在给定页码上的图片
func (e *Extraction) ImagesOnPages(pages ...int) []PageImage {
	wanted := make(map[int]struct{}, len(pages))
	for _, p := range pages {
		wanted[p] = struct{}{}
	}
	var result []PageImage
	for _, img := range e.Images {
		if _, ok := wanted[img.Page]; ok {
			result = append(result, img)
		}
	}
	return result
}

// PageImage 从页面中提取的图片
type PageImage struct {
	Page     int    // 所在页码
	Name     string // 资源名
	FileType string // 扩展名，如 png、jpg
	Data     []byte // 图片内容
}

// FileName 生成图片的存储文件名
func (i PageImage) FileName() string {
	ext := i.FileType
	if ext == "" {
		ext = "png"
	}
	return fmt.Sprintf("page_%d_%s.%s", i.Page, i.Name, ext)
}

// ContentType 表示文档的内容类型
type ContentType string

const (
	// PDF 文档类型
	PDF ContentType = "pdf"
	// Markdown 文档类型
	Markdown ContentType = "markdown"
	// PlainText 纯文本类型
	PlainText ContentType = "plaintext"
	// Unknown 未知类型
	Unknown ContentType = "unknown"
)

// ExtractOptions 解析选项
type ExtractOptions struct {
	OCR           OCREngine      // 页面无文本时使用的OCR引擎，nil 表示不做OCR
	ExtractImages bool           // 是否提取页面图片
	ExtractTables bool           // 是否识别页面表格
	Logger        *logrus.Logger // 日志记录器
}

// ExtractOption 解析选项函数
type ExtractOption func(*ExtractOptions)

// WithOCR 设置OCR引擎
func WithOCR(engine OCREngine) ExtractOption {
	return func(o *ExtractOptions) {
		o.OCR = engine
	}
}

// WithImages 设置是否提取页面图片
func WithImages(enabled bool) ExtractOption {
	return func(o *ExtractOptions) {
		o.ExtractImages = enabled
	}
}

// WithTables 设置是否识别页面表格
func WithTables(enabled bool) ExtractOption {
	return func(o *ExtractOptions) {
		o.ExtractTables = enabled
	}
}

// WithExtractLogger 设置日志记录器
func WithExtractLogger(logger *logrus.Logger) ExtractOption {
	return func(o *ExtractOptions) {
		o.Logger = logger
	}
}

func newExtractOptions(opts ...ExtractOption) ExtractOptions {
	options := ExtractOptions{
		ExtractImages: true,
		ExtractTables: true,
		Logger:        logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(&options)
	}
	return options
}

// NewExtractor 根据文件扩展名创建对应的解析器
func NewExtractor(filePath string, opts ...ExtractOption) (Extractor, error) {
	options := newExtractOptions(opts...)

	switch DetectContentType(filePath) {
	case PDF:
		return NewPDFExtractor(options), nil
	case Markdown:
		return NewMarkdownExtractor(), nil
	case PlainText:
		return NewPlainTextExtractor(), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Ext(filePath))
	}
}

// DetectContentType 根据文件扩展名检测内容类型
func DetectContentType(filePath string) ContentType {
	ext := strings.ToLower(filepath.Ext(filePath))

	switch ext {
	case ".pdf":
		return PDF
	case ".md", ".markdown":
		return Markdown
	case ".txt":
		return PlainText
	default:
		return Unknown
	}
}

// IsSupported 判断文件类型是否可解析
func IsSupported(filePath string) bool {
	return DetectContentType(filePath) != Unknown
}

// ExtractFromReader 将上传内容写入临时文件后解析
// filename 仅用于确定文档类型
func ExtractFromReader(ctx context.Context, r io.Reader, filename string, opts ...ExtractOption) (*Extraction, error) {
	extractor, err := NewExtractor(filename, opts...)
	if err != nil {
		return nil, err
	}

	tmp, err := os.CreateTemp("", "pdfqa-upload-*"+strings.ToLower(filepath.Ext(filename)))
	if err != nil {
		return nil, fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		return nil, fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return nil, fmt.Errorf("failed to close temp file: %w", err)
	}

	return extractor.Extract(ctx, tmpPath)
}

// singlePage 把整段文本包装为只有第1页的解析结果
func singlePage(text string) *Extraction {
	return &Extraction{
		Pages:     PageText{1: text},
		PageCount: 1,
	}
}
