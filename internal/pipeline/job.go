package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"resume-intake-go/internal/constants"
	"resume-intake-go/internal/storage"
	"resume-intake-go/internal/storage/models"
	"resume-intake-go/internal/tracing"
	"resume-intake-go/internal/types"

	"github.com/gofrs/uuid/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("resume-intake-go/pipeline")

// IngestionJob 单份简历的摄入任务
// 阶段单向推进：Pending -> Extracting -> Analyzing -> Persisting -> Succeeded/Failed
type IngestionJob struct {
	SubmissionUUID string
	Document       *types.Document
	JobContext     *types.JobContext
	SourceJobID    string
	BatchID        string
	UploaderID     string

	mu    sync.Mutex
	stage string
}

// NewIngestionJob 创建摄入任务并分配提交UUID
func NewIngestionJob(doc *types.Document, jobCtx *types.JobContext, sourceJobID, batchID, uploaderID string) (*IngestionJob, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("生成提交UUID失败: %w", err)
	}
	return &IngestionJob{
		SubmissionUUID: id.String(),
		Document:       doc,
		JobContext:     jobCtx,
		SourceJobID:    sourceJobID,
		BatchID:        batchID,
		UploaderID:     uploaderID,
		stage:          constants.StagePending,
	}, nil
}

// Stage 返回任务当前阶段
func (j *IngestionJob) Stage() string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.stage
}

func (j *IngestionJob) setStage(stage string) {
	j.mu.Lock()
	j.stage = stage
	j.mu.Unlock()
}

// Ingestor 执行单份简历的完整摄入流程
// 成功时对结果存储恰好写入一次，失败的任务零写入
type Ingestor struct {
	comp *Components
	set  *Settings
}

// NewIngestor 创建摄入执行器，组件和设置由调用方聚合
func NewIngestor(comp *Components, set *Settings) *Ingestor {
	return &Ingestor{comp: comp, set: set}
}

// Run 执行摄入任务
// 返回错误时任务处于Failed终态且没有任何结果存储写入发生
func (ing *Ingestor) Run(ctx context.Context, job *IngestionJob) (*types.IngestionResult, error) {
	if ing.set.JobTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, ing.set.JobTimeout)
		defer cancel()
	}

	ctx, span := tracer.Start(ctx, "Ingestor.Run")
	defer span.End()
	span.SetAttributes(
		attribute.String("submission.uuid", job.SubmissionUUID),
		attribute.String("resume.file", tracing.TruncateString(job.Document.FileName, tracing.DefaultMaxLength)),
	)

	log := ing.set.Logger.With().
		Str("submission_uuid", job.SubmissionUUID).
		Str("file_name", job.Document.FileName).
		Logger()

	result, err := ing.run(ctx, job, &jobArtifacts{})
	if err != nil {
		job.setStage(constants.StageFailed)
		tracing.RecordError(span, err, classifyError(err))
		log.Warn().Err(err).Str("stage", "failed").Msg("简历摄入失败")
		return nil, err
	}

	job.setStage(constants.StageSucceeded)
	span.SetStatus(codes.Ok, "")
	log.Info().
		Float64("ats_score", result.Score.ATSScore).
		Str("text_source", string(result.TextSource)).
		Msg("简历摄入完成")
	return result, nil
}

// jobArtifacts 流程各阶段的中间产物
type jobArtifacts struct {
	originalPath string
	textPath     string
}

func (ing *Ingestor) run(ctx context.Context, job *IngestionJob, art *jobArtifacts) (*types.IngestionResult, error) {
	doc := job.Document

	// 提取阶段
	job.setStage(constants.StageExtracting)
	extracted, err := ing.comp.Extractor.Extract(ctx, doc)
	if err != nil {
		return nil, err
	}

	// 原始文件与提取文本归档，归档不可用视为持久化失败
	if ing.comp.Archiver != nil {
		art.originalPath, err = ing.comp.Archiver.ArchiveOriginal(ctx, job.SubmissionUUID, fileExtOf(doc), doc.Content)
		if err != nil {
			return nil, NewStoreError(doc.FileName, fmt.Sprintf("归档原始文件失败: %v", err))
		}
		art.textPath, err = ing.comp.Archiver.ArchiveText(ctx, job.SubmissionUUID, extracted.Text)
		if err != nil {
			return nil, NewStoreError(doc.FileName, fmt.Sprintf("归档提取文本失败: %v", err))
		}
	}

	// 分析阶段
	job.setStage(constants.StageAnalyzing)
	profile, score, err := ing.comp.Analyzer.Analyze(ctx, extracted.Text, job.JobContext)
	if err != nil {
		return nil, wrapWithFileName(err, doc.FileName)
	}

	// 持久化阶段：分析记录和评分事件在同一事务内落库
	job.setStage(constants.StagePersisting)
	result := &types.IngestionResult{
		SubmissionUUID: job.SubmissionUUID,
		SourceJobID:    job.SourceJobID,
		Candidate:      profile,
		Score:          score,
		RawText:        extracted.Text,
		TextSource:     extracted.Provenance,
		Status:         constants.RecordStatusSubmitted,
		UploaderID:     job.UploaderID,
		CreatedAt:      time.Now(),
	}

	record, err := ing.buildRecord(job, result, art)
	if err != nil {
		return nil, NewStoreError(doc.FileName, fmt.Sprintf("构造分析记录失败: %v", err))
	}
	event, err := ing.buildScoredEvent(job, result)
	if err != nil {
		return nil, NewStoreError(doc.FileName, fmt.Sprintf("构造评分事件失败: %v", err))
	}
	if err := ing.comp.Store.SaveResult(ctx, record, event); err != nil {
		return nil, NewStoreError(doc.FileName, err.Error())
	}

	return result, nil
}

// buildRecord 将摄入结果转换为数据库行
func (ing *Ingestor) buildRecord(job *IngestionJob, result *types.IngestionResult, art *jobArtifacts) (*models.ResumeAnalysis, error) {
	candidateJSON, err := models.StructToJSON(result.Candidate)
	if err != nil {
		return nil, err
	}
	scoreJSON, err := models.StructToJSON(result.Score)
	if err != nil {
		return nil, err
	}

	record := &models.ResumeAnalysis{
		SubmissionUUID:      result.SubmissionUUID,
		OriginalFilename:    job.Document.FileName,
		OriginalFilePathOSS: art.originalPath,
		ParsedTextPathOSS:   art.textPath,
		RawText:             result.RawText,
		TextSource:          string(result.TextSource),
		CandidateJSON:       candidateJSON,
		ScoreJSON:           scoreJSON,
		ATSScore:            &result.Score.ATSScore,
		Confidence:          string(result.Score.Confidence),
		Status:              constants.RecordStatusSubmitted,
		UploaderID:          job.UploaderID,
		PipelineVersion:     ing.set.PipelineVersion,
	}
	if job.SourceJobID != "" {
		record.SourceJobID = &job.SourceJobID
	}
	if job.BatchID != "" {
		record.BatchID = &job.BatchID
	}
	return record, nil
}

// buildScoredEvent 构造评分完成的出箱事件
func (ing *Ingestor) buildScoredEvent(job *IngestionJob, result *types.IngestionResult) (*models.OutboxMessage, error) {
	candidateName := ""
	if result.Candidate != nil {
		candidateName = result.Candidate.Name
	}
	payload := storage.ResumeScoredEvent{
		SubmissionUUID:   result.SubmissionUUID,
		SourceJobID:      job.SourceJobID,
		BatchID:          job.BatchID,
		OriginalFilename: job.Document.FileName,
		CandidateName:    candidateName,
		ATSScore:         result.Score.ATSScore,
		Confidence:       string(result.Score.Confidence),
		TextSource:       string(result.TextSource),
		PipelineVersion:  ing.set.PipelineVersion,
		ScoredAt:         time.Now(),
	}
	body, err := models.StructToJSON(payload)
	if err != nil {
		return nil, err
	}
	return &models.OutboxMessage{
		AggregateID:      result.SubmissionUUID,
		EventType:        constants.EventResumeScored,
		Payload:          string(body),
		TargetExchange:   ing.set.EventsExchange,
		TargetRoutingKey: ing.set.ScoredRoutingKey,
	}, nil
}

// classifyError 将摄入错误映射为链路追踪的错误类型
func classifyError(err error) tracing.ErrorType {
	switch {
	case errors.Is(err, ErrExtractionFailed):
		return tracing.ErrorTypeExtraction
	case errors.Is(err, ErrAnalysisFailed):
		return tracing.ErrorTypeAnalysis
	case errors.Is(err, ErrRemoteFailed):
		return tracing.ErrorTypeRemote
	case errors.Is(err, ErrResolutionFailed):
		return tracing.ErrorTypeResolution
	case errors.Is(err, ErrStoreFailed):
		return tracing.ErrorTypeStore
	case errors.Is(err, ErrFileRejected):
		return tracing.ErrorTypeValidation
	case errors.Is(err, context.DeadlineExceeded):
		return tracing.ErrorTypeTimeout
	}
	return tracing.ErrorType("unknown")
}

// wrapWithFileName 为缺少文件名的错误补充文件名
func wrapWithFileName(err error, fileName string) error {
	var ie *IngestError
	if errors.As(err, &ie) && ie.FileName == "" {
		ie.FileName = fileName
	}
	return err
}

// fileExtOf 按声明的媒体类型推断归档扩展名，文件名后缀仅作兜底
func fileExtOf(doc *types.Document) string {
	switch doc.MediaType {
	case types.MediaTypePDF:
		return ".pdf"
	case types.MediaTypeDOCX:
		return ".docx"
	}
	if ext := strings.ToLower(filepath.Ext(doc.FileName)); ext != "" {
		return ext
	}
	return ".bin"
}
