package extractor

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"resume-intake-go/internal/logger"

	"code.sajari.com/docconv"
	"github.com/rs/zerolog"
)

// DocconvDOCXExtractor 使用 docconv 提取DOCX的原始文本
type DocconvDOCXExtractor struct {
	logger  zerolog.Logger
	timeout time.Duration
}

// DocconvOption DOCX提取器的配置选项
type DocconvOption func(*DocconvDOCXExtractor)

// WithDOCXTimeout 配置单次解析超时
func WithDOCXTimeout(d time.Duration) DocconvOption {
	return func(e *DocconvDOCXExtractor) {
		if d > 0 {
			e.timeout = d
		}
	}
}

// NewDocconvDOCXExtractor 创建DOCX文本提取器
func NewDocconvDOCXExtractor(options ...DocconvOption) *DocconvDOCXExtractor {
	e := &DocconvDOCXExtractor{
		logger:  logger.Component("docx-extractor"),
		timeout: 30 * time.Second,
	}
	for _, opt := range options {
		opt(e)
	}
	return e
}

// ExtractText 从DOCX字节内容中提取纯文本
func (e *DocconvDOCXExtractor) ExtractText(ctx context.Context, data []byte, uri string) (string, error) {
	startTime := time.Now()

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	type docxResult struct {
		text string
		err  error
	}
	resultCh := make(chan docxResult, 1)

	go func() {
		text, _, err := docconv.ConvertDocx(bytes.NewReader(data))
		resultCh <- docxResult{text: text, err: err}
	}()

	select {
	case <-ctx.Done():
		return "", fmt.Errorf("DOCX解析超时 for URI %s: %w", uri, ctx.Err())
	case res := <-resultCh:
		duration := time.Since(startTime)
		if res.err != nil {
			e.logger.Debug().Err(res.err).Str("uri", uri).Dur("duration", duration).Msg("DOCX提取失败")
			return "", fmt.Errorf("docconv failed for URI %s: %w", uri, res.err)
		}
		e.logger.Debug().Str("uri", uri).Int("chars", len(res.text)).Dur("duration", duration).Msg("DOCX提取完成")
		return res.text, nil
	}
}
