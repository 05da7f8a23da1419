package main

import (
	"context"
	"encoding/json"

	"resume-intake-go/internal/storage"
	"resume-intake-go/internal/storage/models"
	"resume-intake-go/internal/types"
)

// resultStoreAdapter 把MySQL存储适配为管线的结果持久化边界
type resultStoreAdapter struct {
	db *storage.MySQL
}

func (a *resultStoreAdapter) SaveResult(ctx context.Context, record *models.ResumeAnalysis, event *models.OutboxMessage) error {
	return a.db.SaveAnalysisResult(ctx, record, event)
}

func (a *resultStoreAdapter) GetResult(ctx context.Context, submissionUUID string) (*models.ResumeAnalysis, error) {
	return a.db.GetAnalysisResult(ctx, submissionUUID)
}

func (a *resultStoreAdapter) ListResultsByBatch(ctx context.Context, batchID string) ([]*models.ResumeAnalysis, error) {
	rows, err := a.db.ListAnalysesByBatch(ctx, batchID)
	if err != nil {
		return nil, err
	}
	results := make([]*models.ResumeAnalysis, len(rows))
	for i := range rows {
		results[i] = &rows[i]
	}
	return results, nil
}

// archiverAdapter 把MinIO对象存储适配为管线的文件归档边界
type archiverAdapter struct {
	oss *storage.MinIO
}

func (a *archiverAdapter) ArchiveOriginal(ctx context.Context, submissionUUID string, fileExt string, content []byte) (string, error) {
	return a.oss.UploadOriginalBytes(ctx, submissionUUID, fileExt, content)
}

func (a *archiverAdapter) ArchiveText(ctx context.Context, submissionUUID string, text string) (string, error) {
	return a.oss.UploadExtractedText(ctx, submissionUUID, text)
}

// jobContextAdapter 从岗位表读取岗位上下文供分析器使用
type jobContextAdapter struct {
	db *storage.MySQL
}

func (a *jobContextAdapter) GetJobContext(ctx context.Context, jobID string) (*types.JobContext, error) {
	job, err := a.db.GetJobByID(ctx, jobID)
	if err != nil {
		return nil, err
	}

	var skills []string
	if len(job.RequiredSkillsJSON) > 0 {
		// 技能列表解析失败不阻断分析，岗位标题和描述仍然可用
		_ = json.Unmarshal(job.RequiredSkillsJSON, &skills)
	}

	return &types.JobContext{
		JobID:          job.JobID,
		Title:          job.JobTitle,
		Description:    job.JobDescriptionText,
		RequiredSkills: skills,
	}, nil
}
