package document

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	pdflib "github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/sirupsen/logrus"
)

// PDFExtractor PDF文档解析器
// 文本按页提取，无文本层的页面可通过OCR识别页面图片补全，表格按文本片段位置识别
type PDFExtractor struct {
	options ExtractOptions
}

// NewPDFExtractor 创建一个新的PDF解析器
func NewPDFExtractor(options ExtractOptions) *PDFExtractor {
	if options.Logger == nil {
		options.Logger = logrus.StandardLogger()
	}
	return &PDFExtractor{options: options}
}

// Extract 实现 Extractor 接口
func (p *PDFExtractor) Extract(ctx context.Context, filePath string) (*Extraction, error) {
	pages, pageCount, err := p.extractText(ctx, filePath)
	if err != nil {
		return nil, err
	}

	result := &Extraction{
		Pages:     pages,
		PageCount: pageCount,
	}

	if p.options.ExtractTables {
		found, err := p.extractTables(ctx, filePath)
		if err != nil {
			// 表格识别失败不影响文本结果
			p.options.Logger.WithFields(logrus.Fields{
				"file":  filePath,
				"error": err.Error(),
			}).Warn("Failed to extract tables from PDF")
		}
		result.Tables = found
	}

	emptyPages := make([]int, 0)
	for _, page := range pages.SortedPages() {
		if strings.TrimSpace(pages[page]) == "" {
			emptyPages = append(emptyPages, page)
		}
	}

	needImages := p.options.ExtractImages || (p.options.OCR != nil && len(emptyPages) > 0)
	if !needImages {
		return result, nil
	}

	images, err := p.extractImages(filePath)
	if err != nil {
		// 图片提取失败不影响文本结果
		p.options.Logger.WithFields(logrus.Fields{
			"file":  filePath,
			"error": err.Error(),
		}).Warn("Failed to extract images from PDF")
	}

	if p.options.OCR != nil && len(emptyPages) > 0 {
		result.OCRPages = p.recognizePages(ctx, result.Pages, emptyPages, images)
	}
	if p.options.ExtractImages {
		result.Images = images
	}

	p.options.Logger.WithFields(logrus.Fields{
		"file":       filePath,
		"page_count": pageCount,
		"images":     len(result.Images),
		"tables":     len(result.Tables),
		"ocr_pages":  len(result.OCRPages),
	}).Debug("PDF extracted")

	return result, nil
}

// extractText 逐页提取文本层
func (p *PDFExtractor) extractText(ctx context.Context, filePath string) (PageText, int, error) {
	f, reader, err := pdflib.Open(filePath)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to open PDF: %w", err)
	}
	defer f.Close()

	pageCount := reader.NumPage()
	pages := make(PageText, pageCount)
	for i := 1; i <= pageCount; i++ {
		if err := ctx.Err(); err != nil {
			return nil, 0, err
		}

		text, err := pageText(reader, i)
		if err != nil {
			p.options.Logger.WithFields(logrus.Fields{
				"file":  filePath,
				"page":  i,
				"error": err.Error(),
			}).Warn("Failed to extract page text, treating page as empty")
			text = ""
		}
		pages[i] = text
	}

	return pages, pageCount, nil
}

// pageText 读取单页文本，库内部的 panic 转换为错误
func pageText(reader *pdflib.Reader, pageNum int) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic while reading page %d: %v", pageNum, r)
		}
	}()

	page := reader.Page(pageNum)
	if page.V.IsNull() {
		return "", nil
	}
	return page.GetPlainText(nil)
}

// extractImages 提取所有页面中的图片
func (p *PDFExtractor) extractImages(filePath string) ([]PageImage, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open PDF: %w", err)
	}
	defer f.Close()

	conf := model.NewDefaultConfiguration()

	var images []PageImage
	digest := func(img model.Image, singleImgPerPage bool, maxPageDigits int) error {
		data, err := io.ReadAll(img)
		if err != nil {
			return fmt.Errorf("failed to read image %s: %w", img.Name, err)
		}
		images = append(images, PageImage{
			Page:     img.PageNr,
			Name:     img.Name,
			FileType: img.FileType,
			Data:     data,
		})
		return nil
	}

	if err := api.ExtractImages(f, nil, digest, conf); err != nil {
		return images, fmt.Errorf("failed to extract images: %w", err)
	}
	return images, nil
}

// recognizePages 对没有文本层的页面做OCR，返回成功补全的页码
func (p *PDFExtractor) recognizePages(ctx context.Context, pages PageText, emptyPages []int, images []PageImage) []int {
	byPage := make(map[int][]PageImage)
	for _, img := range images {
		byPage[img.Page] = append(byPage[img.Page], img)
	}

	var recognized []int
	for _, page := range emptyPages {
		if ctx.Err() != nil {
			break
		}

		var parts []string
		for _, img := range byPage[page] {
			text, err := p.options.OCR.Recognize(img.Data)
			if err != nil {
				p.options.Logger.WithFields(logrus.Fields{
					"page":  page,
					"image": img.Name,
					"error": err.Error(),
				}).Warn("OCR failed")
				continue
			}
			if text = strings.TrimSpace(text); text != "" {
				parts = append(parts, text)
			}
		}

		if len(parts) > 0 {
			pages[page] = strings.Join(parts, "\n")
			recognized = append(recognized, page)
		}
	}
	return recognized
}
