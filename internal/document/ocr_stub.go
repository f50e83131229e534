//go:build !ocr

package document

// NewOCREngine 未启用 ocr 构建标签时始终返回 ErrOCRUnavailable
func NewOCREngine(cfg OCRConfig) (OCREngine, error) {
	return nil, ErrOCRUnavailable
}
