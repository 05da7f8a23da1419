package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"resume-intake-go/internal/constants"
	"resume-intake-go/internal/storage"
	"resume-intake-go/internal/storage/models"
	"resume-intake-go/internal/tracing"
	"resume-intake-go/internal/types"

	"github.com/gofrs/uuid/v5"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Components 聚合批量上传管线的全部功能组件，便于集中管理和测试替换
type Components struct {
	Extractor     TextExtractor      // 文本提取
	Analyzer      ResumeAnalyzer     // 结构化分析与评分
	Store         ResultStore        // 分析结果持久化
	Resolver      FolderResolver     // 远程文件夹解析，可为nil（仅支持直接上传）
	Archiver      FileArchiver       // 对象存储归档，可为nil（跳过归档）
	BatchRecorder BatchRecorder      // 批次记录落库，可为nil（纯内存批次）
	Snapshots     SnapshotCache      // 终态快照与取消标记缓存，可为nil
	JobContexts   JobContextProvider // 岗位上下文查询，可为nil
}

// Settings 纯配置项，不包含任何业务逻辑组件
type Settings struct {
	WorkerCount      int           // 每个批次的并发工作协程数
	QueueCapacity    int           // 批次内部任务队列容量
	JobTimeout       time.Duration // 单份简历端到端超时
	SnapshotTTL      time.Duration // 终态快照缓存过期时间
	EventsExchange   string        // 领域事件交换机
	ScoredRoutingKey string        // 评分完成事件路由键
	BatchRoutingKey  string        // 批次完成事件路由键
	PipelineVersion  string        // 随记录落库的管线版本
	Logger           zerolog.Logger
}

// BatchRequest 批量上传请求，Files 和 Folder 二选一
type BatchRequest struct {
	Files       []*types.Document
	Folder      *types.RemoteFolderRef
	SourceJobID string
	UploaderID  string
}

// batchState 单个批次的运行期状态，计数器仅由持有锁的调用方更新
type batchState struct {
	mu        sync.Mutex
	snapshot  types.BatchSnapshot
	terminal  bool
	cancelled bool

	sourceJobID string
	uploaderID  string
	sourceKind  string
	sourceRef   string
	createdAt   time.Time
	completedAt time.Time
}

func (s *batchState) markCurrent(fileName string) {
	s.mu.Lock()
	if !s.terminal {
		s.snapshot.CurrentFile = fileName
	}
	s.mu.Unlock()
}

// recordSuccess 和 recordFailure 同时推进 processed 与对应计数，
// processed == successful + failed 在任意时刻成立
func (s *batchState) recordSuccess() {
	s.mu.Lock()
	s.snapshot.ProcessedFiles++
	s.snapshot.SuccessfulFiles++
	s.mu.Unlock()
}

func (s *batchState) recordFailure(fileName, errMsg string) {
	s.mu.Lock()
	s.snapshot.ProcessedFiles++
	s.snapshot.FailedFiles++
	s.snapshot.Failures = append(s.snapshot.Failures, types.FileFailure{
		FileName: fileName,
		Error:    errMsg,
	})
	s.mu.Unlock()
}

func (s *batchState) isCancelled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancelled
}

// view 返回快照的深拷贝，终态后内容不再变化
func (s *batchState) view() *types.BatchSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := s.snapshot
	if len(s.snapshot.Failures) > 0 {
		snap.Failures = make([]types.FileFailure, len(s.snapshot.Failures))
		copy(snap.Failures, s.snapshot.Failures)
	}
	return &snap
}

// BulkUploadCoordinator 批量上传协调器
// 每个批次一个有界工作池，进度计数在内存维护，终态时落库一次并缓存快照
type BulkUploadCoordinator struct {
	comp     *Components
	set      *Settings
	ingestor *Ingestor
	logger   zerolog.Logger

	mu      sync.RWMutex
	batches map[string]*batchState
}

// NewBulkUploadCoordinator 创建批量上传协调器
// 这是推荐的构造方法，组件和设置明确分离
func NewBulkUploadCoordinator(comp *Components, set *Settings, opts ...SettingOpt) *BulkUploadCoordinator {
	for _, opt := range opts {
		opt(set)
	}

	if set.WorkerCount <= 0 {
		set.WorkerCount = 5
	}
	if set.QueueCapacity <= 0 {
		set.QueueCapacity = 128
	}
	if set.JobTimeout <= 0 {
		set.JobTimeout = 5 * time.Minute
	}
	if set.SnapshotTTL <= 0 {
		set.SnapshotTTL = constants.BatchSnapshotTTL
	}
	if set.PipelineVersion == "" {
		set.PipelineVersion = constants.PipelineVersion
	}

	return &BulkUploadCoordinator{
		comp:     comp,
		set:      set,
		ingestor: NewIngestor(comp, set),
		logger:   set.Logger.With().Str("component", "coordinator").Logger(),
		batches:  make(map[string]*batchState),
	}
}

// IngestSync 同步摄入单份简历，不产生批次
func (c *BulkUploadCoordinator) IngestSync(ctx context.Context, doc *types.Document, sourceJobID, uploaderID string) (*types.IngestionResult, error) {
	if err := validateDocument(doc); err != nil {
		return nil, err
	}

	jobCtx := c.lookupJobContext(ctx, sourceJobID)
	job, err := NewIngestionJob(doc, jobCtx, sourceJobID, "", uploaderID)
	if err != nil {
		return nil, err
	}
	return c.ingestor.Run(ctx, job)
}

// StartBatch 创建批次并异步开始处理，返回批次ID
// 批次级校验失败（来源非法、超出文件数上限）直接返回错误，不产生批次
func (c *BulkUploadCoordinator) StartBatch(ctx context.Context, req *BatchRequest) (string, error) {
	if req == nil {
		return "", fmt.Errorf("批量上传请求为空")
	}
	hasFiles := len(req.Files) > 0
	hasFolder := req.Folder != nil && req.Folder.Link != ""
	if hasFiles == hasFolder {
		return "", fmt.Errorf("必须且只能提供文件列表或远程文件夹链接之一")
	}
	if hasFiles && len(req.Files) > constants.MaxBatchFiles {
		return "", fmt.Errorf("批次文件数 %d 超过上限 %d", len(req.Files), constants.MaxBatchFiles)
	}
	if hasFolder && c.comp.Resolver == nil {
		return "", fmt.Errorf("远程文件夹上传未启用")
	}

	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("生成批次ID失败: %w", err)
	}
	batchID := id.String()

	state := &batchState{
		snapshot: types.BatchSnapshot{
			BatchID:    batchID,
			Status:     constants.BatchStatusProcessing,
			TotalFiles: len(req.Files),
		},
		sourceJobID: req.SourceJobID,
		uploaderID:  req.UploaderID,
		sourceKind:  "files",
		createdAt:   time.Now(),
	}
	if hasFolder {
		state.sourceKind = "drive_folder"
		state.sourceRef = req.Folder.Link
	}

	if c.comp.BatchRecorder != nil {
		if err := c.comp.BatchRecorder.CreateBatchRecord(ctx, c.buildBatchRow(state)); err != nil {
			return "", fmt.Errorf("创建批次记录失败: %w", err)
		}
	}

	c.mu.Lock()
	c.batches[batchID] = state
	c.mu.Unlock()

	// 批次生命周期独立于提交请求
	go c.runBatch(context.WithoutCancel(ctx), state, req)

	c.logger.Info().
		Str("batch_id", batchID).
		Str("source_kind", state.sourceKind).
		Int("total_files", len(req.Files)).
		Msg("批次已创建")
	return batchID, nil
}

// runBatch 执行批次：解析来源、调度工作池、终态落库
func (c *BulkUploadCoordinator) runBatch(ctx context.Context, state *batchState, req *BatchRequest) {
	batchID := state.snapshot.BatchID
	log := c.logger.With().Str("batch_id", batchID).Logger()

	ctx, span := tracer.Start(ctx, "Coordinator.RunBatch", trace.WithAttributes(
		attribute.String("batch.id", batchID),
		attribute.String("batch.source_kind", state.sourceKind),
	))
	defer span.End()

	docs := req.Files
	if req.Folder != nil && req.Folder.Link != "" {
		resolved, err := c.comp.Resolver.Resolve(ctx, req.Folder)
		if err != nil {
			// 批次级失败：没有任何文件进入调度，失败列表为空
			log.Warn().Err(err).Msg("远程文件夹解析失败，批次终止")
			tracing.RecordError(span, err, tracing.ErrorTypeResolution)
			c.finalizeBatch(ctx, state, constants.BatchStatusFailed, err.Error())
			return
		}
		docs = resolved
		state.mu.Lock()
		state.snapshot.TotalFiles = len(docs)
		state.mu.Unlock()
	}

	jobCtx := c.lookupJobContext(ctx, req.SourceJobID)

	workerCount := c.set.WorkerCount
	if workerCount > len(docs) && len(docs) > 0 {
		workerCount = len(docs)
	}
	jobs := make(chan *types.Document, c.set.QueueCapacity)

	var wg sync.WaitGroup
	for i := 0; i < workerCount; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for doc := range jobs {
				// 已请求取消的批次不再启动新任务，排队中的文件计为失败
				if c.batchCancelled(ctx, state) {
					state.recordFailure(doc.FileName, "批次已取消")
					continue
				}
				c.runOne(ctx, state, doc, jobCtx, req)
			}
		}()
	}

	for _, doc := range docs {
		if c.batchCancelled(ctx, state) {
			state.recordFailure(doc.FileName, "批次已取消")
			continue
		}
		jobs <- doc
	}
	close(jobs)
	wg.Wait()

	snap := state.view()
	span.SetAttributes(
		attribute.Int("batch.total", snap.TotalFiles),
		attribute.Int("batch.successful", snap.SuccessfulFiles),
		attribute.Int("batch.failed", snap.FailedFiles),
	)

	// 终态恒为 completed，单文件失败率不改变批次状态
	c.finalizeBatch(ctx, state, constants.BatchStatusCompleted, "")
}

// runOne 处理批次内单个文件，任何失败只记录为该文件的失败条目
func (c *BulkUploadCoordinator) runOne(ctx context.Context, state *batchState, doc *types.Document, jobCtx *types.JobContext, req *BatchRequest) {
	state.markCurrent(doc.FileName)

	if err := validateDocument(doc); err != nil {
		state.recordFailure(doc.FileName, err.Error())
		return
	}

	job, err := NewIngestionJob(doc, jobCtx, req.SourceJobID, state.snapshot.BatchID, req.UploaderID)
	if err != nil {
		state.recordFailure(doc.FileName, err.Error())
		return
	}

	if _, err := c.ingestor.Run(ctx, job); err != nil {
		tracing.RecordFileFailure(trace.SpanFromContext(ctx), err, classifyError(err), doc.FileName)
		state.recordFailure(doc.FileName, err.Error())
		return
	}
	state.recordSuccess()
}

// finalizeBatch 将批次置为终态：内存快照定格、落库一次、写缓存
func (c *BulkUploadCoordinator) finalizeBatch(ctx context.Context, state *batchState, status, errMsg string) {
	state.mu.Lock()
	if state.terminal {
		state.mu.Unlock()
		return
	}
	state.terminal = true
	state.snapshot.Status = status
	state.snapshot.CurrentFile = ""
	state.snapshot.Error = errMsg
	state.completedAt = time.Now()
	state.mu.Unlock()

	batchID := state.snapshot.BatchID
	log := c.logger.With().Str("batch_id", batchID).Logger()

	if c.comp.BatchRecorder != nil {
		event, err := c.buildBatchEvent(state)
		if err != nil {
			log.Error().Err(err).Msg("构造批次完成事件失败")
			event = nil
		}
		if err := c.comp.BatchRecorder.FinalizeBatchRecord(ctx, c.buildBatchRow(state), event); err != nil {
			log.Error().Err(err).Msg("批次终态落库失败")
		}
	}

	if c.comp.Snapshots != nil {
		if err := c.comp.Snapshots.SetBatchSnapshot(ctx, state.view(), c.set.SnapshotTTL); err != nil {
			log.Warn().Err(err).Msg("批次快照写入缓存失败")
		}
	}

	snap := state.view()
	log.Info().
		Str("status", snap.Status).
		Int("total", snap.TotalFiles).
		Int("successful", snap.SuccessfulFiles).
		Int("failed", snap.FailedFiles).
		Msg("批次到达终态")
}

// GetStatus 返回批次进度快照
// 优先读内存，批次不在本进程时依次回退缓存和数据库
func (c *BulkUploadCoordinator) GetStatus(ctx context.Context, batchID string) (*types.BatchSnapshot, error) {
	c.mu.RLock()
	state, ok := c.batches[batchID]
	c.mu.RUnlock()
	if ok {
		return state.view(), nil
	}

	if c.comp.Snapshots != nil {
		snap, err := c.comp.Snapshots.GetBatchSnapshot(ctx, batchID)
		if err == nil {
			return snap, nil
		}
		if !errors.Is(err, storage.ErrNotFound) {
			c.logger.Warn().Err(err).Str("batch_id", batchID).Msg("读取批次快照缓存失败")
		}
	}

	if c.comp.BatchRecorder != nil {
		row, err := c.comp.BatchRecorder.GetBatchRecord(ctx, batchID)
		if err != nil {
			return nil, fmt.Errorf("批次不存在: %s", batchID)
		}
		return snapshotFromRow(row), nil
	}

	return nil, fmt.Errorf("批次不存在: %s", batchID)
}

// GetResults 返回终态批次的完整结果明细，批次未结束时返回错误
func (c *BulkUploadCoordinator) GetResults(ctx context.Context, batchID string) (*types.BatchResults, error) {
	snap, err := c.GetStatus(ctx, batchID)
	if err != nil {
		return nil, err
	}
	if snap.Status != constants.BatchStatusCompleted && snap.Status != constants.BatchStatusFailed {
		return nil, fmt.Errorf("批次 %s 尚未结束，当前状态: %s", batchID, snap.Status)
	}

	rows, err := c.comp.Store.ListResultsByBatch(ctx, batchID)
	if err != nil {
		return nil, fmt.Errorf("读取批次结果失败: %w", err)
	}

	results := make([]*types.IngestionResult, 0, len(rows))
	for _, row := range rows {
		result, err := resultFromRow(row)
		if err != nil {
			c.logger.Warn().Err(err).
				Str("submission_uuid", row.SubmissionUUID).
				Msg("批次结果记录反序列化失败，已跳过")
			continue
		}
		results = append(results, result)
	}

	return &types.BatchResults{
		BatchID:     batchID,
		Total:       snap.TotalFiles,
		Successful:  snap.SuccessfulFiles,
		Failed:      snap.FailedFiles,
		FailedFiles: snap.Failures,
		Results:     results,
	}, nil
}

// Cancel 请求取消批次：停止调度新任务，在途任务自然结束并可能照常落库
// 终态批次的取消是无操作
func (c *BulkUploadCoordinator) Cancel(ctx context.Context, batchID string) error {
	c.mu.RLock()
	state, ok := c.batches[batchID]
	c.mu.RUnlock()
	if !ok {
		return fmt.Errorf("批次不存在: %s", batchID)
	}

	state.mu.Lock()
	if state.terminal {
		state.mu.Unlock()
		return nil
	}
	state.cancelled = true
	state.snapshot.Status = constants.BatchStatusCancelling
	state.mu.Unlock()

	if c.comp.Snapshots != nil {
		if err := c.comp.Snapshots.SetBatchCancelFlag(ctx, batchID, c.set.SnapshotTTL); err != nil {
			c.logger.Warn().Err(err).Str("batch_id", batchID).Msg("写入取消标记失败")
		}
	}

	c.logger.Info().Str("batch_id", batchID).Msg("批次取消已受理")
	return nil
}

// batchCancelled 综合内存标记和共享缓存判断批次是否被取消
func (c *BulkUploadCoordinator) batchCancelled(ctx context.Context, state *batchState) bool {
	if state.isCancelled() {
		return true
	}
	if c.comp.Snapshots == nil {
		return false
	}
	cancelled, err := c.comp.Snapshots.IsBatchCancelled(ctx, state.snapshot.BatchID)
	if err != nil {
		return false
	}
	if cancelled {
		state.mu.Lock()
		state.cancelled = true
		if !state.terminal {
			state.snapshot.Status = constants.BatchStatusCancelling
		}
		state.mu.Unlock()
	}
	return cancelled
}

// lookupJobContext 查询岗位上下文，岗位缺失仅降级为无上下文评估
func (c *BulkUploadCoordinator) lookupJobContext(ctx context.Context, sourceJobID string) *types.JobContext {
	if sourceJobID == "" || c.comp.JobContexts == nil {
		return nil
	}
	jobCtx, err := c.comp.JobContexts.GetJobContext(ctx, sourceJobID)
	if err != nil {
		c.logger.Warn().Err(err).Str("source_job_id", sourceJobID).Msg("岗位上下文查询失败，按无岗位上下文处理")
		return nil
	}
	return jobCtx
}

// buildBatchRow 将运行期状态转换为数据库行
func (c *BulkUploadCoordinator) buildBatchRow(state *batchState) *models.BulkUploadBatch {
	state.mu.Lock()
	defer state.mu.Unlock()

	row := &models.BulkUploadBatch{
		BatchID:         state.snapshot.BatchID,
		SourceKind:      state.sourceKind,
		SourceRef:       state.sourceRef,
		Status:          state.snapshot.Status,
		TotalFiles:      state.snapshot.TotalFiles,
		ProcessedFiles:  state.snapshot.ProcessedFiles,
		SuccessfulFiles: state.snapshot.SuccessfulFiles,
		FailedFiles:     state.snapshot.FailedFiles,
		ErrorMessage:    state.snapshot.Error,
		UploaderID:      state.uploaderID,
		CreatedAt:       state.createdAt,
	}
	if state.sourceJobID != "" {
		row.SourceJobID = &state.sourceJobID
	}
	if len(state.snapshot.Failures) > 0 {
		if failuresJSON, err := models.StructToJSON(state.snapshot.Failures); err == nil {
			row.FailuresJSON = failuresJSON
		}
	}
	if state.terminal {
		completedAt := state.completedAt
		row.CompletedAt = &completedAt
	}
	return row
}

// buildBatchEvent 构造批次完成的出箱事件
func (c *BulkUploadCoordinator) buildBatchEvent(state *batchState) (*models.OutboxMessage, error) {
	snap := state.view()
	payload := storage.BatchCompletedEvent{
		BatchID:         snap.BatchID,
		SourceJobID:     state.sourceJobID,
		Status:          snap.Status,
		TotalFiles:      snap.TotalFiles,
		SuccessfulFiles: snap.SuccessfulFiles,
		FailedFiles:     snap.FailedFiles,
		Error:           snap.Error,
		CompletedAt:     state.completedAt,
	}
	body, err := models.StructToJSON(payload)
	if err != nil {
		return nil, err
	}
	return &models.OutboxMessage{
		AggregateID:      snap.BatchID,
		EventType:        constants.EventBatchCompleted,
		Payload:          string(body),
		TargetExchange:   c.set.EventsExchange,
		TargetRoutingKey: c.set.BatchRoutingKey,
	}, nil
}

// validateDocument 摄入前的准入校验
func validateDocument(doc *types.Document) error {
	if doc == nil || len(doc.Content) == 0 {
		return NewAdmissionError(fileNameOf(doc), "文件内容为空")
	}
	if len(doc.Content) > constants.MaxFileSizeBytes {
		return NewAdmissionError(doc.FileName, fmt.Sprintf("文件大小 %d 字节超出上限 %d 字节", len(doc.Content), constants.MaxFileSizeBytes))
	}
	switch doc.MediaType {
	case types.MediaTypePDF, types.MediaTypeDOCX:
		return nil
	default:
		return NewAdmissionError(doc.FileName, fmt.Sprintf("不支持的文件类型: %s", doc.MediaType))
	}
}

func fileNameOf(doc *types.Document) string {
	if doc == nil {
		return ""
	}
	return doc.FileName
}

// snapshotFromRow 从数据库行重建进度快照
func snapshotFromRow(row *models.BulkUploadBatch) *types.BatchSnapshot {
	snap := &types.BatchSnapshot{
		BatchID:         row.BatchID,
		Status:          row.Status,
		TotalFiles:      row.TotalFiles,
		ProcessedFiles:  row.ProcessedFiles,
		SuccessfulFiles: row.SuccessfulFiles,
		FailedFiles:     row.FailedFiles,
		Error:           row.ErrorMessage,
	}
	if len(row.FailuresJSON) > 0 {
		_ = json.Unmarshal(row.FailuresJSON, &snap.Failures)
	}
	return snap
}

// resultFromRow 从数据库行重建摄入结果
func resultFromRow(row *models.ResumeAnalysis) (*types.IngestionResult, error) {
	result := &types.IngestionResult{
		SubmissionUUID: row.SubmissionUUID,
		RawText:        row.RawText,
		TextSource:     types.Provenance(row.TextSource),
		Status:         row.Status,
		UploaderID:     row.UploaderID,
		CreatedAt:      row.CreatedAt,
	}
	if row.SourceJobID != nil {
		result.SourceJobID = *row.SourceJobID
	}
	if len(row.CandidateJSON) > 0 {
		var profile types.CandidateProfile
		if err := json.Unmarshal(row.CandidateJSON, &profile); err != nil {
			return nil, fmt.Errorf("候选人画像反序列化失败: %w", err)
		}
		result.Candidate = &profile
	}
	if len(row.ScoreJSON) > 0 {
		var score types.ScoreBreakdown
		if err := json.Unmarshal(row.ScoreJSON, &score); err != nil {
			return nil, fmt.Errorf("评分明细反序列化失败: %w", err)
		}
		result.Score = &score
	}
	return result, nil
}
