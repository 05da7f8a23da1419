package types

import "time"

// MediaType 表示上传文档的声明类型
type MediaType string

const (
	// MediaTypePDF PDF文档
	MediaTypePDF MediaType = "application/pdf"
	// MediaTypeDOCX Word文档 (OOXML)
	MediaTypeDOCX MediaType = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
)

// Document 一次摄入任务的不可变输入，仅在单个任务的生命周期内存在
type Document struct {
	FileName  string    // 原始文件名
	MediaType MediaType // 声明的媒体类型
	Content   []byte    // 原始字节
}

// Provenance 文本提取路径的来源标记，供下游审计使用
type Provenance string

const (
	// ProvenanceDirect 直接读取文档内嵌文本层
	ProvenanceDirect Provenance = "direct"
	// ProvenanceOCR 经图像光学字符识别得到
	ProvenanceOCR Provenance = "ocr"
)

// ExtractedText 纯文本及其来源标记
type ExtractedText struct {
	Text       string     // 提取出的纯文本
	Provenance Provenance // 提取路径
}

// Confidence 分析结果的置信度标记
// 合成兜底结果必须标记为 Low，与真实模型输出区分
type Confidence string

const (
	// ConfidenceHigh 来自模型的正常解析结果
	ConfidenceHigh Confidence = "High"
	// ConfidenceLow 解析失败后由启发式合成的兜底结果
	ConfidenceLow Confidence = "Low"
)

// JobContext 岗位上下文，由外部岗位服务提供，用于偏置分析
type JobContext struct {
	JobID          string   `json:"job_id"`
	Title          string   `json:"title"`
	Description    string   `json:"description"`
	RequiredSkills []string `json:"required_skills"`
}

// CandidateProfile 模型抽取的候选人结构化画像，所有字段尽力而为，允许缺省
type CandidateProfile struct {
	Name                     string   `json:"name,omitempty"`
	ContactNumber            string   `json:"contact_number,omitempty"`
	EmailAddress             string   `json:"email_address,omitempty"`
	Location                 string   `json:"location,omitempty"`
	Skills                   []string `json:"skills,omitempty"` // 仅技术技能，最多10项
	Education                []string `json:"education,omitempty"`
	WorkExperience           []string `json:"work_experience,omitempty"`
	Certifications           []string `json:"certifications,omitempty"`
	Languages                []string `json:"languages,omitempty"`
	SuggestedResumeCategory  string   `json:"suggested_resume_category,omitempty"`
	RecommendedJobRoles      []string `json:"recommended_job_roles,omitempty"`
	NumberOfJobJumps         *int     `json:"number_of_job_jumps,omitempty"`
	AverageJobDurationMonths *float64 `json:"average_job_duration_months,omitempty"`

	Confidence Confidence `json:"confidence"` // 结果来源标记
}

// SubScores 各评分维度的子分，均在 [0,100]，保留小数精度
type SubScores struct {
	SkillMatch          float64 `json:"skill_match"`
	ExperienceRelevance float64 `json:"experience_relevance"`
	ProjectValidation   float64 `json:"project_validation"`
	AIDetectionPenalty  float64 `json:"ai_detection_penalty"`
	Consistency         float64 `json:"consistency"`
	ResumeQuality       float64 `json:"resume_quality"`
	InterviewPrediction float64 `json:"interview_prediction"`
	CompetitiveFit      float64 `json:"competitive_fit"`
}

// ScoreBreakdown 加权评分结果
// ATSScore 直接取自模型输出且必须始终为数值；TotalConsistent 仅记录
// 它与按固定权重重算的结果是否一致，供展示层参考，核心侧不强制重算
type ScoreBreakdown struct {
	SubScores       SubScores  `json:"sub_scores"`
	ATSScore        float64    `json:"ats_score"`
	Reason          string     `json:"reason"`
	TotalConsistent bool       `json:"total_consistent"`
	Confidence      Confidence `json:"confidence"`
}

// IngestionResult 单份简历成功摄入后持久化的记录
// Status 初始为 STAGE_SUBMITTED，之后由外部协作方（招聘方操作）变更，
// 本核心只负责写入初始记录
type IngestionResult struct {
	SubmissionUUID string            `json:"submission_uuid"`
	SourceJobID    string            `json:"source_job_id"`
	Candidate      *CandidateProfile `json:"candidate"`
	Score          *ScoreBreakdown   `json:"score"`
	RawText        string            `json:"raw_text"`
	TextSource     Provenance        `json:"text_source"`
	Status         string            `json:"status"`
	UploaderID     string            `json:"uploader_id,omitempty"` // 调用方主体，仅用于归属
	CreatedAt      time.Time         `json:"created_at"`
}

// RemoteFolderRef 远程文件夹引用（共享盘链接），批量上传的另一种来源
type RemoteFolderRef struct {
	Link string `json:"link"`
}

// FileFailure 批次内单个文件的失败条目
type FileFailure struct {
	FileName string `json:"file_name"`
	Error    string `json:"error"`
}

// BatchSnapshot 批次进度快照，轮询端点返回的只读视图
// 终态后快照不再变化，重复轮询返回完全相同的内容
type BatchSnapshot struct {
	BatchID         string        `json:"batch_id"`
	Status          string        `json:"status"`
	TotalFiles      int           `json:"total_files"`
	ProcessedFiles  int           `json:"processed_files"`
	SuccessfulFiles int           `json:"successful_files"`
	FailedFiles     int           `json:"failed_files"`
	CurrentFile     string        `json:"current_file,omitempty"`
	Failures        []FileFailure `json:"failures,omitempty"`
	Error           string        `json:"error,omitempty"` // 仅批次级解析失败时填充
}

// BatchResults 终态后可取的批次明细
type BatchResults struct {
	BatchID     string             `json:"batch_id"`
	Total       int                `json:"total"`
	Successful  int                `json:"successful"`
	Failed      int                `json:"failed"`
	FailedFiles []FileFailure      `json:"failed_files"`
	Results     []*IngestionResult `json:"results"`
}
