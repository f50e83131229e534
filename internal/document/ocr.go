//go:build ocr

package document

import (
	"fmt"
	"strings"
	"sync"

	"github.com/otiai10/gosseract/v2"
)

// TesseractEngine 基于 Tesseract 的OCR引擎
type TesseractEngine struct {
	mu     sync.Mutex
	client *gosseract.Client
}

// NewOCREngine 创建OCR引擎
func NewOCREngine(cfg OCRConfig) (OCREngine, error) {
	client := gosseract.NewClient()
	if cfg.TessdataPrefix != "" {
		client.TessdataPrefix = cfg.TessdataPrefix
	}
	if err := client.SetLanguage(strings.Split(cfg.Language, "+")...); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to set ocr language: %w", err)
	}
	return &TesseractEngine{client: client}, nil
}

// Recognize 实现 OCREngine 接口
func (e *TesseractEngine) Recognize(image []byte) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.client.SetImageFromBytes(image); err != nil {
		return "", fmt.Errorf("failed to set image: %w", err)
	}
	text, err := e.client.Text()
	if err != nil {
		return "", fmt.Errorf("ocr failed: %w", err)
	}
	return strings.TrimSpace(text), nil
}

// Close 实现 OCREngine 接口
func (e *TesseractEngine) Close() error {
	return e.client.Close()
}
