package constants

const (
	// PipelineVersion 管线版本号，随记录一并落库，便于追踪历史口径
	PipelineVersion = "1.0"

	// DirectTextMinChars 直接提取文本被视为"有实质内容"的最小字符数，
	// 低于该阈值时PDF走OCR兜底
	DirectTextMinChars = 50

	// MaxBatchFiles 单个批次允许的最大文件数
	MaxBatchFiles = 100
	// MaxFileSizeBytes 单个文件允许的最大字节数 (10MiB)
	MaxFileSizeBytes = 10 << 20

	// OCRLanguage OCR识别使用的固定语言模型
	OCRLanguage = "eng"

	// MaxProfileSkills 画像中保留的技术技能上限
	MaxProfileSkills = 10
)

// 单份简历摄入任务的阶段常量
const (
	// StagePending 已入队待调度
	StagePending = "STAGE_PENDING"
	// StageExtracting 文本提取中
	StageExtracting = "STAGE_EXTRACTING"
	// StageAnalyzing 模型分析中
	StageAnalyzing = "STAGE_ANALYZING"
	// StagePersisting 结果持久化中
	StagePersisting = "STAGE_PERSISTING"
	// StageSucceeded 终态：成功，ResultStore有且只有一次写入
	StageSucceeded = "STAGE_SUCCEEDED"
	// StageFailed 终态：失败，ResultStore零写入
	StageFailed = "STAGE_FAILED"
)

// 持久化记录的初始业务状态，后续由外部协作方流转
const (
	// RecordStatusSubmitted 初始状态，本核心只写入该状态
	RecordStatusSubmitted = "SUBMITTED"
)

// 批次状态常量
const (
	// BatchStatusProcessing 批次仍有未完成的文件
	BatchStatusProcessing = "processing"
	// BatchStatusCompleted 终态：processed == total，与单文件失败率无关
	BatchStatusCompleted = "completed"
	// BatchStatusFailed 终态：仅用于调度前的批次级解析失败
	BatchStatusFailed = "failed"
	// BatchStatusCancelling 已请求取消，停止调度新任务，在途任务自然结束
	BatchStatusCancelling = "cancelling"
)

// 出箱事件类型
const (
	// EventResumeScored 单份简历评分完成事件
	EventResumeScored = "resume.scored"
	// EventBatchCompleted 批次到达终态事件
	EventBatchCompleted = "batch.completed"
)
