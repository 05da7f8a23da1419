package storage

import "time"

// ResumeScoredEvent 简历评分完成事件，经outbox中继发布到resume.scored路由
type ResumeScoredEvent struct {
	SubmissionUUID   string    `json:"submission_uuid"`          // 提交UUID，主键
	SourceJobID      string    `json:"source_job_id,omitempty"`  // 关联岗位ID
	BatchID          string    `json:"batch_id,omitempty"`       // 所属批次ID（单文档同步路径为空）
	OriginalFilename string    `json:"original_filename"`       // 原始文件名
	CandidateName    string    `json:"candidate_name,omitempty"` // 候选人姓名
	ATSScore         float64   `json:"ats_score"`                // 综合评分
	Confidence       string    `json:"confidence"`               // 评分置信度 High/Low
	TextSource       string    `json:"text_source"`              // 文本来源 direct/ocr
	PipelineVersion  string    `json:"pipeline_version"`         // 产出该记录的流水线版本
	ScoredAt         time.Time `json:"scored_at"`                // 评分完成时间
}

// BatchCompletedEvent 批次终结事件，经outbox中继发布到batch.completed路由
type BatchCompletedEvent struct {
	BatchID         string    `json:"batch_id"`                // 批次ID
	SourceJobID     string    `json:"source_job_id,omitempty"` // 关联岗位ID
	Status          string    `json:"status"`                  // 终态 completed/failed
	TotalFiles      int       `json:"total_files"`             // 批次文件总数
	SuccessfulFiles int       `json:"successful_files"`        // 成功数
	FailedFiles     int       `json:"failed_files"`            // 失败数
	Error           string    `json:"error,omitempty"`         // 整批失败时的原因
	CompletedAt     time.Time `json:"completed_at"`            // 终结时间
}
