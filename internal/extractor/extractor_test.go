package extractor

import (
	"context"
	"errors"
	"strings"
	"testing"

	"resume-intake-go/internal/pipeline"
	"resume-intake-go/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeTextParser 可编程的文本提取桩
type fakeTextParser struct {
	text  string
	err   error
	calls int
}

func (f *fakeTextParser) ExtractText(ctx context.Context, data []byte, uri string) (string, error) {
	f.calls++
	return f.text, f.err
}

// fakeOCR 可编程的OCR桩，记录每次收到的图像字节
type fakeOCR struct {
	text   string
	err    error
	calls  int
	inputs [][]byte
}

func (f *fakeOCR) Recognize(ctx context.Context, data []byte) (string, error) {
	f.calls++
	f.inputs = append(f.inputs, data)
	return f.text, f.err
}

// fakeRasterizer 可编程的页面渲染桩
type fakeRasterizer struct {
	pages [][]byte
	err   error
	calls int
}

func (f *fakeRasterizer) RenderPages(ctx context.Context, pdfData []byte) ([][]byte, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if f.pages != nil {
		return f.pages, nil
	}
	return [][]byte{[]byte("page-1.png")}, nil
}

func pdfDoc(content string) *types.Document {
	return &types.Document{
		FileName:  "resume.pdf",
		MediaType: types.MediaTypePDF,
		Content:   []byte(content),
	}
}

func docxDoc() *types.Document {
	return &types.Document{
		FileName:  "resume.docx",
		MediaType: types.MediaTypeDOCX,
		Content:   []byte("docx-bytes"),
	}
}

func TestExtractPDFDirectSuccess(t *testing.T) {
	longText := strings.Repeat("简历内容 resume content ", 20)
	pdf := &fakeTextParser{text: longText}
	ocr := &fakeOCR{text: "should not be used"}

	e := NewExtractor(pdf, ocr, &fakeTextParser{})
	result, err := e.Extract(context.Background(), pdfDoc("pdf-bytes"))

	require.NoError(t, err, "直接提取成功时不应返回错误")
	assert.Equal(t, types.ProvenanceDirect, result.Provenance, "来源应标记为direct")
	assert.Equal(t, longText, result.Text, "应原样返回直接提取的文本")
	assert.Equal(t, 0, ocr.calls, "直接提取成功时不应调用OCR")
}

func TestExtractPDFShortTextFallsBackToOCR(t *testing.T) {
	pdf := &fakeTextParser{text: "太短"}
	ocr := &fakeOCR{text: strings.Repeat("OCR识别出的简历文本 ", 10)}

	e := NewExtractor(pdf, ocr, &fakeTextParser{}, WithRasterizer(&fakeRasterizer{}))
	result, err := e.Extract(context.Background(), pdfDoc("scanned-pdf"))

	require.NoError(t, err, "OCR回退成功时不应返回错误")
	assert.Equal(t, types.ProvenanceOCR, result.Provenance, "回退后来源应标记为ocr")
	assert.Equal(t, 1, ocr.calls, "OCR应恰好被调用一次")
}

func TestExtractPDFDirectErrorFallsBackToOCR(t *testing.T) {
	pdf := &fakeTextParser{err: errors.New("corrupt xref table")}
	ocr := &fakeOCR{text: strings.Repeat("扫描件识别文本 ", 10)}

	e := NewExtractor(pdf, ocr, &fakeTextParser{}, WithRasterizer(&fakeRasterizer{}))
	result, err := e.Extract(context.Background(), pdfDoc("scanned-pdf"))

	require.NoError(t, err, "直接提取失败但OCR成功时不应返回错误")
	assert.Equal(t, types.ProvenanceOCR, result.Provenance)
	assert.Equal(t, 1, ocr.calls, "OCR应恰好被调用一次")
}

func TestExtractPDFOCRFailureIsExtractionError(t *testing.T) {
	pdf := &fakeTextParser{text: ""}
	ocr := &fakeOCR{err: errors.New("tesseract not available")}

	e := NewExtractor(pdf, ocr, &fakeTextParser{}, WithRasterizer(&fakeRasterizer{}))
	result, err := e.Extract(context.Background(), pdfDoc("scanned-pdf"))

	require.Error(t, err, "OCR回退失败时应返回错误")
	assert.Nil(t, result)
	assert.True(t, errors.Is(err, pipeline.ErrExtractionFailed), "错误类别应为提取失败")
	assert.Equal(t, 1, ocr.calls, "OCR失败后不应重试")
}

func TestExtractPDFOCREmptyResultIsExtractionError(t *testing.T) {
	pdf := &fakeTextParser{text: "   "}
	ocr := &fakeOCR{text: "  \n\t  "}

	e := NewExtractor(pdf, ocr, &fakeTextParser{}, WithRasterizer(&fakeRasterizer{}))
	_, err := e.Extract(context.Background(), pdfDoc("blank-scan"))

	require.Error(t, err, "OCR结果为空白时应返回错误")
	assert.True(t, errors.Is(err, pipeline.ErrExtractionFailed))
}

func TestExtractDOCXSuccess(t *testing.T) {
	docx := &fakeTextParser{text: "候选人：张三\n技能：Go, MySQL"}
	ocr := &fakeOCR{}

	e := NewExtractor(&fakeTextParser{}, ocr, docx)
	result, err := e.Extract(context.Background(), docxDoc())

	require.NoError(t, err)
	assert.Equal(t, types.ProvenanceDirect, result.Provenance, "DOCX提取来源应为direct")
	assert.Equal(t, 0, ocr.calls, "DOCX提取不应触碰OCR")
}

func TestExtractDOCXEmptyNeverFallsBackToOCR(t *testing.T) {
	docx := &fakeTextParser{text: ""}
	ocr := &fakeOCR{text: "should never appear"}

	e := NewExtractor(&fakeTextParser{}, ocr, docx)
	result, err := e.Extract(context.Background(), docxDoc())

	require.Error(t, err, "空DOCX应直接返回提取错误")
	assert.Nil(t, result)
	assert.True(t, errors.Is(err, pipeline.ErrExtractionFailed), "错误类别应为提取失败")
	assert.Equal(t, 0, ocr.calls, "DOCX提取失败也绝不回退OCR")
}

func TestExtractEmptyDocument(t *testing.T) {
	e := NewExtractor(&fakeTextParser{}, &fakeOCR{}, &fakeTextParser{})

	_, err := e.Extract(context.Background(), &types.Document{FileName: "empty.pdf", MediaType: types.MediaTypePDF})
	require.Error(t, err, "空内容文档应返回错误")
	assert.True(t, errors.Is(err, pipeline.ErrExtractionFailed))

	_, err = e.Extract(context.Background(), nil)
	require.Error(t, err, "nil文档应返回错误")
}

func TestExtractUnsupportedMediaType(t *testing.T) {
	e := NewExtractor(&fakeTextParser{}, &fakeOCR{}, &fakeTextParser{})

	_, err := e.Extract(context.Background(), &types.Document{
		FileName:  "resume.txt",
		MediaType: types.MediaType("text/plain"),
		Content:   []byte("plain text"),
	})

	require.Error(t, err, "不支持的文档类型应返回错误")
	assert.True(t, errors.Is(err, pipeline.ErrExtractionFailed))
}

func TestExtractPDFOCRReceivesRenderedPagesNotRawPDF(t *testing.T) {
	rawPDF := []byte("%PDF-1.7 raw scanned bytes")
	pageOne := []byte("rendered-page-1.png")
	pageTwo := []byte("rendered-page-2.png")

	pdf := &fakeTextParser{text: ""}
	ocr := &fakeOCR{text: "扫描页识别文本"}
	raster := &fakeRasterizer{pages: [][]byte{pageOne, pageTwo}}

	e := NewExtractor(pdf, ocr, &fakeTextParser{}, WithRasterizer(raster))
	doc := &types.Document{FileName: "scan.pdf", MediaType: types.MediaTypePDF, Content: rawPDF}

	result, err := e.Extract(context.Background(), doc)
	require.NoError(t, err)
	assert.Equal(t, types.ProvenanceOCR, result.Provenance)

	assert.Equal(t, 1, raster.calls, "渲染器应恰好被调用一次")
	require.Equal(t, 2, ocr.calls, "每个渲染页各识别一次")
	assert.Equal(t, pageOne, ocr.inputs[0], "OCR输入应为渲染后的页面位图")
	assert.Equal(t, pageTwo, ocr.inputs[1])
	for _, input := range ocr.inputs {
		assert.NotEqual(t, rawPDF, input, "原始PDF字节绝不直接交给OCR")
	}
	assert.Equal(t, "扫描页识别文本\n扫描页识别文本", result.Text, "多页文本按页序拼接")
}

func TestExtractPDFRasterizeFailureIsExtractionError(t *testing.T) {
	pdf := &fakeTextParser{text: ""}
	ocr := &fakeOCR{text: "should not be reached"}
	raster := &fakeRasterizer{err: errors.New("mupdf: cannot open document")}

	e := NewExtractor(pdf, ocr, &fakeTextParser{}, WithRasterizer(raster))
	result, err := e.Extract(context.Background(), pdfDoc("broken-scan"))

	require.Error(t, err, "页面渲染失败时应返回提取错误")
	assert.Nil(t, result)
	assert.True(t, errors.Is(err, pipeline.ErrExtractionFailed))
	assert.Equal(t, 0, ocr.calls, "渲染失败后不应调用OCR")
}
