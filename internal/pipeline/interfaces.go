package pipeline

import (
	"context"
	"time"

	"resume-intake-go/internal/storage/models"
	"resume-intake-go/internal/types"
)

//
// 文本提取相关接口
//

// TextExtractor 文本提取器接口
type TextExtractor interface {
	// Extract 从简历文档提取纯文本，返回文本内容及其来源（直接提取或OCR）
	Extract(ctx context.Context, doc *types.Document) (*types.ExtractedText, error)
}

//
// 结构化分析相关接口
//

// ResumeAnalyzer 简历结构化分析器接口
type ResumeAnalyzer interface {
	// Analyze 对提取后的简历文本做结构化解析和评分
	// jobCtx 可以为nil，表示无岗位上下文的通用评估
	Analyze(ctx context.Context, resumeText string, jobCtx *types.JobContext) (*types.CandidateProfile, *types.ScoreBreakdown, error)
}

//
// 持久化相关接口
//

// ResultStore 分析结果持久化边界
// 每个成功的摄取流程恰好调用一次SaveResult，失败的流程不调用
type ResultStore interface {
	// SaveResult 原子写入分析记录和领域事件
	SaveResult(ctx context.Context, record *models.ResumeAnalysis, event *models.OutboxMessage) error

	// GetResult 按提交UUID读取分析记录
	GetResult(ctx context.Context, submissionUUID string) (*models.ResumeAnalysis, error)

	// ListResultsByBatch 按批次ID读取全部分析记录
	ListResultsByBatch(ctx context.Context, batchID string) ([]*models.ResumeAnalysis, error)
}

//
// 远程文件夹解析相关接口
//

// FolderResolver 远程文件夹解析器接口
type FolderResolver interface {
	// Resolve 将远程文件夹引用展开为可摄取的文档列表
	// 解析失败时整个批次失败，不产生任何单文件失败记录
	Resolve(ctx context.Context, ref *types.RemoteFolderRef) ([]*types.Document, error)
}

//
// 文件归档相关接口
//

// FileArchiver 原始文件与解析文本的对象存储边界
type FileArchiver interface {
	// ArchiveOriginal 归档原始简历文件，返回对象路径
	ArchiveOriginal(ctx context.Context, submissionUUID string, fileExt string, content []byte) (string, error)

	// ArchiveText 归档提取后的纯文本，返回对象路径
	ArchiveText(ctx context.Context, submissionUUID string, text string) (string, error)
}

//
// 批次记录与缓存相关接口
//

// BatchRecorder 批次记录的持久化边界
// 创建时写入一次，终态时落库一次，运行期计数不经过该接口
type BatchRecorder interface {
	CreateBatchRecord(ctx context.Context, batch *models.BulkUploadBatch) error
	// FinalizeBatchRecord 原子写入终态批次记录和批次完成事件
	FinalizeBatchRecord(ctx context.Context, batch *models.BulkUploadBatch, event *models.OutboxMessage) error
	GetBatchRecord(ctx context.Context, batchID string) (*models.BulkUploadBatch, error)
}

// SnapshotCache 批次终态快照与取消标记的缓存边界
type SnapshotCache interface {
	SetBatchSnapshot(ctx context.Context, snapshot *types.BatchSnapshot, ttl time.Duration) error
	GetBatchSnapshot(ctx context.Context, batchID string) (*types.BatchSnapshot, error)
	SetBatchCancelFlag(ctx context.Context, batchID string, ttl time.Duration) error
	IsBatchCancelled(ctx context.Context, batchID string) (bool, error)
}

//
// 岗位上下文相关接口
//

// JobContextProvider 岗位上下文查询边界，岗位数据由外部招聘服务维护
type JobContextProvider interface {
	// GetJobContext 按岗位ID读取岗位上下文，岗位不存在时返回错误
	GetJobContext(ctx context.Context, jobID string) (*types.JobContext, error)
}
