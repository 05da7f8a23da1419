package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"resume-intake-go/internal/config"
	"resume-intake-go/internal/constants"
	"resume-intake-go/internal/logger"
	"resume-intake-go/internal/pipeline"
	"resume-intake-go/internal/types"

	"github.com/rs/zerolog"
)

// ResumeHandler 单份简历同步摄入的处理器
type ResumeHandler struct {
	cfg         *config.Config
	coordinator *pipeline.BulkUploadCoordinator
	store       pipeline.ResultStore
	logger      zerolog.Logger
}

// NewResumeHandler 创建简历处理器
func NewResumeHandler(cfg *config.Config, coordinator *pipeline.BulkUploadCoordinator, store pipeline.ResultStore) *ResumeHandler {
	return &ResumeHandler{
		cfg:         cfg,
		coordinator: coordinator,
		store:       store,
		logger:      logger.Component("resume_handler"),
	}
}

// ResumeUploadResponse 同步摄入的响应，携带完整分析结果
type ResumeUploadResponse struct {
	SubmissionUUID string                  `json:"submission_uuid"`
	Status         string                  `json:"status"`
	TextSource     types.Provenance        `json:"text_source"`
	Candidate      *types.CandidateProfile `json:"candidate"`
	Score          *types.ScoreBreakdown   `json:"score"`
}

// HandleResumeUpload 同步处理单份简历：提取、分析、落库后返回完整结果
func (h *ResumeHandler) HandleResumeUpload(ctx context.Context, reader io.Reader, fileSize int64,
	filename string, declaredType string, sourceJobID string, uploaderID string) (*ResumeUploadResponse, error) {

	// 超限文件在读取之前拒绝，避免白白缓冲无效内容
	if fileSize > constants.MaxFileSizeBytes {
		return nil, pipeline.NewAdmissionError(filename,
			fmt.Sprintf("文件大小 %d 字节超过上限 %d 字节", fileSize, constants.MaxFileSizeBytes))
	}

	content, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("读取上传文件内容失败: %w", err)
	}

	doc := &types.Document{
		FileName:  filename,
		MediaType: resolveMediaType(filename, declaredType),
		Content:   content,
	}

	result, err := h.coordinator.IngestSync(ctx, doc, sourceJobID, uploaderID)
	if err != nil {
		return nil, err
	}

	return &ResumeUploadResponse{
		SubmissionUUID: result.SubmissionUUID,
		Status:         result.Status,
		TextSource:     result.TextSource,
		Candidate:      result.Candidate,
		Score:          result.Score,
	}, nil
}

// HandleGetResult 按提交UUID查询单份简历的分析结果
func (h *ResumeHandler) HandleGetResult(ctx context.Context, submissionUUID string) (*ResumeUploadResponse, error) {
	record, err := h.store.GetResult(ctx, submissionUUID)
	if err != nil {
		return nil, fmt.Errorf("分析结果不存在: %s", submissionUUID)
	}

	resp := &ResumeUploadResponse{
		SubmissionUUID: record.SubmissionUUID,
		Status:         record.Status,
		TextSource:     types.Provenance(record.TextSource),
	}
	if len(record.CandidateJSON) > 0 {
		var profile types.CandidateProfile
		if err := json.Unmarshal(record.CandidateJSON, &profile); err == nil {
			resp.Candidate = &profile
		}
	}
	if len(record.ScoreJSON) > 0 {
		var score types.ScoreBreakdown
		if err := json.Unmarshal(record.ScoreJSON, &score); err == nil {
			resp.Score = &score
		}
	}
	return resp, nil
}

// resolveMediaType 优先采用声明的媒体类型，缺省按扩展名推断
func resolveMediaType(filename, declaredType string) types.MediaType {
	switch declaredType {
	case string(types.MediaTypePDF), string(types.MediaTypeDOCX):
		return types.MediaType(declaredType)
	}
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".pdf":
		return types.MediaTypePDF
	case ".docx":
		return types.MediaTypeDOCX
	}
	return types.MediaType(declaredType)
}
