package extractor

import (
	"context"
	"fmt"

	"resume-intake-go/internal/logger"

	"github.com/gen2brain/go-fitz"
	"github.com/rs/zerolog"
)

// PageRasterizer 将PDF按页渲染为位图，供OCR识别
// Tesseract只认位图输入，扫描件PDF必须先经过该边界
type PageRasterizer interface {
	// RenderPages 将PDF逐页渲染为PNG字节，页序与文档一致
	RenderPages(ctx context.Context, pdfData []byte) ([][]byte, error)
}

// 渲染DPI，过低影响识别率，过高拖慢识别速度
const defaultRenderDPI = 300

// FitzRasterizer 基于MuPDF(go-fitz)的页面渲染实现
type FitzRasterizer struct {
	dpi    float64
	logger zerolog.Logger
}

// FitzOption 渲染器的配置选项
type FitzOption func(*FitzRasterizer)

// WithRenderDPI 设置渲染分辨率
func WithRenderDPI(dpi float64) FitzOption {
	return func(f *FitzRasterizer) {
		if dpi > 0 {
			f.dpi = dpi
		}
	}
}

// NewFitzRasterizer 创建页面渲染器
func NewFitzRasterizer(options ...FitzOption) *FitzRasterizer {
	f := &FitzRasterizer{
		dpi:    defaultRenderDPI,
		logger: logger.Component("rasterizer"),
	}
	for _, opt := range options {
		opt(f)
	}
	return f
}

var _ PageRasterizer = (*FitzRasterizer)(nil)

// RenderPages 将PDF逐页渲染为PNG
func (f *FitzRasterizer) RenderPages(ctx context.Context, pdfData []byte) ([][]byte, error) {
	if len(pdfData) == 0 {
		return nil, fmt.Errorf("PDF内容为空")
	}

	doc, err := fitz.NewFromMemory(pdfData)
	if err != nil {
		return nil, fmt.Errorf("打开PDF失败: %w", err)
	}
	defer doc.Close()

	pageCount := doc.NumPage()
	if pageCount == 0 {
		return nil, fmt.Errorf("PDF不含任何页面")
	}

	pages := make([][]byte, 0, pageCount)
	for n := 0; n < pageCount; n++ {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("渲染第%d页时被取消: %w", n+1, err)
		}
		png, err := doc.ImagePNG(n, f.dpi)
		if err != nil {
			return nil, fmt.Errorf("渲染第%d页失败: %w", n+1, err)
		}
		pages = append(pages, png)
	}

	f.logger.Debug().Int("pages", pageCount).Float64("dpi", f.dpi).Msg("PDF页面渲染完成")
	return pages, nil
}
