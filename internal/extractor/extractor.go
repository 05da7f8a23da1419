package extractor

import (
	"context"
	"fmt"
	"strings"

	"resume-intake-go/internal/constants"
	"resume-intake-go/internal/logger"
	"resume-intake-go/internal/pipeline"
	"resume-intake-go/internal/types"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("resume-intake-go/extractor")

// PDFTextParser PDF直接文本提取边界
type PDFTextParser interface {
	ExtractText(ctx context.Context, data []byte, uri string) (string, error)
}

// DOCXTextParser DOCX文本提取边界
type DOCXTextParser interface {
	ExtractText(ctx context.Context, data []byte, uri string) (string, error)
}

// Extractor 组合提取器，按文档类型路由并处理OCR回退
// PDF直接提取内容过短或失败时恰好回退OCR一次，DOCX永不走OCR
type Extractor struct {
	pdf    PDFTextParser
	ocr    OCREngine
	raster PageRasterizer
	docx   DOCXTextParser
	logger zerolog.Logger

	// 直接提取文本低于该字符数视为无效，触发OCR回退
	minDirectChars int
}

// ExtractorOption 组合提取器的配置选项
type ExtractorOption func(*Extractor)

// WithMinDirectChars 设置直接提取的最小有效字符数
func WithMinDirectChars(n int) ExtractorOption {
	return func(e *Extractor) {
		if n > 0 {
			e.minDirectChars = n
		}
	}
}

// WithExtractorLogger 设置日志记录器
func WithExtractorLogger(l zerolog.Logger) ExtractorOption {
	return func(e *Extractor) {
		e.logger = l
	}
}

// WithRasterizer 替换PDF页面渲染器
func WithRasterizer(r PageRasterizer) ExtractorOption {
	return func(e *Extractor) {
		if r != nil {
			e.raster = r
		}
	}
}

// NewExtractor 创建组合提取器
func NewExtractor(pdf PDFTextParser, ocr OCREngine, docx DOCXTextParser, options ...ExtractorOption) *Extractor {
	e := &Extractor{
		pdf:            pdf,
		ocr:            ocr,
		raster:         NewFitzRasterizer(),
		docx:           docx,
		logger:         logger.Component("extractor"),
		minDirectChars: constants.DirectTextMinChars,
	}
	for _, opt := range options {
		opt(e)
	}
	return e
}

var _ pipeline.TextExtractor = (*Extractor)(nil)

// Extract 从简历文档提取纯文本
func (e *Extractor) Extract(ctx context.Context, doc *types.Document) (*types.ExtractedText, error) {
	if doc == nil || len(doc.Content) == 0 {
		return nil, pipeline.NewExtractionError(fileNameOf(doc), "文档内容为空")
	}

	ctx, span := tracer.Start(ctx, "Extractor.Extract")
	defer span.End()
	span.SetAttributes(
		attribute.String("file.name", doc.FileName),
		attribute.String("file.media_type", string(doc.MediaType)),
		attribute.Int("file.size_bytes", len(doc.Content)),
	)

	var result *types.ExtractedText
	var err error

	switch doc.MediaType {
	case types.MediaTypePDF:
		result, err = e.extractPDF(ctx, doc)
	case types.MediaTypeDOCX:
		result, err = e.extractDOCX(ctx, doc)
	default:
		err = pipeline.NewExtractionError(doc.FileName, fmt.Sprintf("不支持的文档类型: %s", doc.MediaType))
	}

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetAttributes(
		attribute.String("extract.provenance", string(result.Provenance)),
		attribute.Int("extract.chars", len(result.Text)),
	)
	span.SetStatus(codes.Ok, "")
	return result, nil
}

// extractPDF 先尝试直接提取，内容过短或失败时回退OCR恰好一次
func (e *Extractor) extractPDF(ctx context.Context, doc *types.Document) (*types.ExtractedText, error) {
	directText, directErr := e.pdf.ExtractText(ctx, doc.Content, doc.FileName)
	trimmed := strings.TrimSpace(directText)

	if directErr == nil && len([]rune(trimmed)) >= e.minDirectChars {
		return &types.ExtractedText{
			Text:       directText,
			Provenance: types.ProvenanceDirect,
		}, nil
	}

	if directErr != nil {
		e.logger.Info().Err(directErr).Str("file", doc.FileName).Msg("PDF直接提取失败，回退OCR")
	} else {
		e.logger.Info().Str("file", doc.FileName).Int("chars", len([]rune(trimmed))).Msg("PDF直接提取文本过短，回退OCR")
	}

	if e.ocr == nil {
		return nil, pipeline.NewExtractionError(doc.FileName, "直接提取无有效文本且OCR引擎未配置")
	}

	// Tesseract不能直接读PDF，先把每一页渲染为位图再识别
	pages, rasterErr := e.raster.RenderPages(ctx, doc.Content)
	if rasterErr != nil {
		return nil, pipeline.NewExtractionError(doc.FileName, fmt.Sprintf("PDF页面渲染失败: %v", rasterErr))
	}

	var pageTexts []string
	for i, page := range pages {
		pageText, ocrErr := e.ocr.Recognize(ctx, page)
		if ocrErr != nil {
			return nil, pipeline.NewExtractionError(doc.FileName, fmt.Sprintf("第%d页OCR回退失败: %v", i+1, ocrErr))
		}
		if trimmedPage := strings.TrimSpace(pageText); trimmedPage != "" {
			pageTexts = append(pageTexts, trimmedPage)
		}
	}

	ocrText := strings.Join(pageTexts, "\n")
	if ocrText == "" {
		return nil, pipeline.NewExtractionError(doc.FileName, "OCR回退未识别出任何文本")
	}

	return &types.ExtractedText{
		Text:       ocrText,
		Provenance: types.ProvenanceOCR,
	}, nil
}

// extractDOCX DOCX只走原始文本提取，不回退OCR
func (e *Extractor) extractDOCX(ctx context.Context, doc *types.Document) (*types.ExtractedText, error) {
	text, err := e.docx.ExtractText(ctx, doc.Content, doc.FileName)
	if err != nil {
		return nil, pipeline.NewExtractionError(doc.FileName, fmt.Sprintf("DOCX提取失败: %v", err))
	}
	if strings.TrimSpace(text) == "" {
		return nil, pipeline.NewExtractionError(doc.FileName, "DOCX文档不含可提取文本")
	}

	return &types.ExtractedText{
		Text:       text,
		Provenance: types.ProvenanceDirect,
	}, nil
}

func fileNameOf(doc *types.Document) string {
	if doc == nil {
		return ""
	}
	return doc.FileName
}
