package handler

import (
	"context"
	"errors"
	"strings"
	"testing"

	"resume-intake-go/internal/config"
	"resume-intake-go/internal/constants"
	"resume-intake-go/internal/pipeline"
	"resume-intake-go/internal/types"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// trackingReader 记录是否被读取过，用于验证拒绝路径不缓冲文件内容
type trackingReader struct {
	read bool
}

func (r *trackingReader) Read(p []byte) (int, error) {
	r.read = true
	return 0, errors.New("不应读取超限文件的内容")
}

func newUploadTestHandler() *ResumeHandler {
	coord := pipeline.NewBulkUploadCoordinator(
		&pipeline.Components{},
		&pipeline.Settings{Logger: zerolog.Nop()},
	)
	return NewResumeHandler(&config.Config{}, coord, nil)
}

func TestHandleResumeUploadRejectsOversizeFile(t *testing.T) {
	h := newUploadTestHandler()
	reader := &trackingReader{}

	resp, err := h.HandleResumeUpload(context.Background(), reader,
		constants.MaxFileSizeBytes+1, "huge.pdf", string(types.MediaTypePDF), "", "")

	require.Error(t, err, "超过大小上限的上传必须被拒绝")
	assert.Nil(t, resp)
	assert.True(t, errors.Is(err, pipeline.ErrFileRejected), "超限应归类为准入拒绝")
	assert.False(t, reader.read, "拒绝应发生在读取内容之前")
}

func TestResolveMediaTypeFallsBackToExtension(t *testing.T) {
	assert.Equal(t, types.MediaTypePDF, resolveMediaType("resume.PDF", ""))
	assert.Equal(t, types.MediaTypeDOCX, resolveMediaType("resume.docx", "application/octet-stream"))
	assert.Equal(t, types.MediaTypePDF, resolveMediaType("resume.bin", string(types.MediaTypePDF)))
}

func TestHandleResumeUploadWithinLimitPassesSizeCheck(t *testing.T) {
	h := newUploadTestHandler()
	// 大小合法，拒绝只能来自后续的内容校验而非大小检查
	_, err := h.HandleResumeUpload(context.Background(), strings.NewReader(""),
		0, "empty.pdf", string(types.MediaTypePDF), "", "")
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "超过上限", "合法大小不应触发超限拒绝")
}
