package extractor

import (
	"context"
	"fmt"
	"time"

	"resume-intake-go/internal/constants"
	"resume-intake-go/internal/logger"

	"github.com/otiai10/gosseract/v2"
	"github.com/rs/zerolog"
)

// OCREngine 图像文字识别边界，便于测试替换
type OCREngine interface {
	// Recognize 对文档内容执行一次OCR识别，返回识别出的文本
	Recognize(ctx context.Context, data []byte) (string, error)
}

// TesseractOCR 基于 gosseract 的OCR实现
type TesseractOCR struct {
	language    string
	tessdataDir string
	timeout     time.Duration
	logger      zerolog.Logger
}

// TesseractOption OCR引擎的配置选项
type TesseractOption func(*TesseractOCR)

// WithOCRLanguage 设置识别语言
func WithOCRLanguage(lang string) TesseractOption {
	return func(t *TesseractOCR) {
		if lang != "" {
			t.language = lang
		}
	}
}

// WithTessdataDir 设置tessdata模型目录
func WithTessdataDir(dir string) TesseractOption {
	return func(t *TesseractOCR) {
		t.tessdataDir = dir
	}
}

// WithOCRTimeout 设置单次识别超时
func WithOCRTimeout(d time.Duration) TesseractOption {
	return func(t *TesseractOCR) {
		if d > 0 {
			t.timeout = d
		}
	}
}

// NewTesseractOCR 创建OCR引擎
func NewTesseractOCR(options ...TesseractOption) *TesseractOCR {
	t := &TesseractOCR{
		language: constants.OCRLanguage,
		timeout:  120 * time.Second,
		logger:   logger.Component("ocr"),
	}
	for _, opt := range options {
		opt(t)
	}
	return t
}

// Recognize 执行一次OCR识别
// gosseract的client不是并发安全的，每次识别创建独立client
func (t *TesseractOCR) Recognize(ctx context.Context, data []byte) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("OCR输入内容为空")
	}

	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	type ocrResult struct {
		text string
		err  error
	}
	resultCh := make(chan ocrResult, 1)

	go func() {
		client := gosseract.NewClient()
		defer client.Close()

		if t.tessdataDir != "" {
			if err := client.SetTessdataPrefix(t.tessdataDir); err != nil {
				resultCh <- ocrResult{err: fmt.Errorf("设置tessdata目录失败: %w", err)}
				return
			}
		}
		if err := client.SetLanguage(t.language); err != nil {
			resultCh <- ocrResult{err: fmt.Errorf("设置OCR语言失败: %w", err)}
			return
		}
		if err := client.SetImageFromBytes(data); err != nil {
			resultCh <- ocrResult{err: fmt.Errorf("加载OCR图像失败: %w", err)}
			return
		}

		text, err := client.Text()
		resultCh <- ocrResult{text: text, err: err}
	}()

	select {
	case <-ctx.Done():
		return "", fmt.Errorf("OCR识别超时: %w", ctx.Err())
	case res := <-resultCh:
		if res.err != nil {
			t.logger.Debug().Err(res.err).Msg("OCR识别失败")
			return "", res.err
		}
		t.logger.Debug().Int("chars", len(res.text)).Msg("OCR识别完成")
		return res.text, nil
	}
}
