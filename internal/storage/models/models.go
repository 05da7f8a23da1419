package models

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
)

// Job 岗位信息表
// 本核心只读该表（岗位上下文提供方），写入由外部招聘服务负责
type Job struct {
	JobID              string         `gorm:"type:char(36);primaryKey"`
	JobTitle           string         `gorm:"type:varchar(255);not null"`
	Department         string         `gorm:"type:varchar(255)"`
	Location           string         `gorm:"type:varchar(255)"`
	JobDescriptionText string         `gorm:"type:text;not null"`
	RequiredSkillsJSON datatypes.JSON `gorm:"type:json"`
	Status             string         `gorm:"type:varchar(50);default:'ACTIVE';index:idx_jobs_status"`
	CreatedByUserID    string         `gorm:"type:char(36)"`
	CreatedAt          time.Time      `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6)"`
	UpdatedAt          time.Time      `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6);autoUpdateTime"`
}

func (Job) TableName() string {
	return "jobs"
}

// ResumeAnalysis 简历摄入结果表，每份成功摄入的简历一行
// 状态初始为SUBMITTED，后续流转由外部招聘方操作，本核心只写初始记录
type ResumeAnalysis struct {
	SubmissionUUID      string         `gorm:"type:char(36);primaryKey"`
	SourceJobID         *string        `gorm:"type:char(36);index:idx_ra_source_job_id"`
	BatchID             *string        `gorm:"type:char(36);index:idx_ra_batch_id"` // 单文件同步路径为NULL
	OriginalFilename    string         `gorm:"type:varchar(255)"`
	OriginalFilePathOSS string         `gorm:"type:varchar(1024)"`
	ParsedTextPathOSS   string         `gorm:"type:varchar(1024)"`
	RawText             string         `gorm:"type:mediumtext"`
	TextSource          string         `gorm:"type:varchar(10)"` // direct | ocr
	CandidateJSON       datatypes.JSON `gorm:"type:json"`
	ScoreJSON           datatypes.JSON `gorm:"type:json"`
	ATSScore            *float64       `gorm:"type:double;index:idx_ra_job_score,priority:2"`
	Confidence          string         `gorm:"type:varchar(10)"` // High | Low
	Status              string         `gorm:"type:varchar(50);default:'SUBMITTED';index:idx_ra_status"`
	UploaderID          string         `gorm:"type:varchar(255)"` // 调用方主体，仅做归属
	PipelineVersion     string         `gorm:"type:varchar(50)"`
	CreatedAt           time.Time      `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6)"`
	UpdatedAt           time.Time      `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6);autoUpdateTime"`

	Job *Job `gorm:"foreignKey:SourceJobID;references:JobID;constraint:OnUpdate:CASCADE,OnDelete:SET NULL"`
}

func (ResumeAnalysis) TableName() string {
	return "resume_analyses"
}

// BulkUploadBatch 批量上传批次表
// 运行期计数器由协调器内存维护，终态时落库一次，此后不再变化
type BulkUploadBatch struct {
	BatchID         string         `gorm:"type:char(36);primaryKey"`
	SourceJobID     *string        `gorm:"type:char(36);index:idx_bub_source_job_id"`
	SourceKind      string         `gorm:"type:varchar(20)"` // files | drive_folder
	SourceRef       string         `gorm:"type:varchar(1024)"`
	Status          string         `gorm:"type:varchar(20);index:idx_bub_status"`
	TotalFiles      int            `gorm:"type:int"`
	ProcessedFiles  int            `gorm:"type:int"`
	SuccessfulFiles int            `gorm:"type:int"`
	FailedFiles     int            `gorm:"type:int"`
	FailuresJSON    datatypes.JSON `gorm:"type:json"` // [{file_name, error}]
	ErrorMessage    string         `gorm:"type:text"` // 仅批次级解析失败时填充
	UploaderID      string         `gorm:"type:varchar(255)"`
	CreatedAt       time.Time      `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6)"`
	CompletedAt     *time.Time     `gorm:"type:datetime(6)"`
}

func (BulkUploadBatch) TableName() string {
	return "bulk_upload_batches"
}

// StringToJSON Helper function to convert string to datatypes.JSON
func StringToJSON(s string) datatypes.JSON {
	return datatypes.JSON(s)
}

// MapToJSON Helper function to convert map[string]interface{} to datatypes.JSON
func MapToJSON(m map[string]interface{}) (datatypes.JSON, error) {
	bytes, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return bytes, nil
}

// StructToJSON 将任意可序列化结构转换为 datatypes.JSON
func StructToJSON(v interface{}) (datatypes.JSON, error) {
	bytes, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return bytes, nil
}
