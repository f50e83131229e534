package document

import (
	"errors"
	"fmt"

	"github.com/caarlos0/env/v10"
)

// ErrOCRUnavailable 当前构建不包含OCR支持
var ErrOCRUnavailable = errors.New("ocr support not compiled in, rebuild with -tags ocr")

// OCREngine OCR引擎接口
type OCREngine interface {
	// Recognize 识别图片中的文字
	Recognize(image []byte) (string, error)
	// Close 释放资源
	Close() error
}

// OCRConfig OCR配置，从环境变量读取
type OCRConfig struct {
	Enabled        bool   `env:"OCR_ENABLED" envDefault:"true"`
	Language       string `env:"OCR_LANGUAGE" envDefault:"eng"`
	TessdataPrefix string `env:"TESSDATA_PREFIX"`
}

// LoadOCRConfig 从环境变量加载OCR配置
func LoadOCRConfig() (OCRConfig, error) {
	var cfg OCRConfig
	if err := env.Parse(&cfg); err != nil {
		return OCRConfig{}, fmt.Errorf("failed to parse ocr config: %w", err)
	}
	return cfg, nil
}
