package pipeline

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"resume-intake-go/internal/constants"
	"resume-intake-go/internal/storage"
	"resume-intake-go/internal/storage/models"
	"resume-intake-go/internal/types"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

//
// 测试替身
//

// fakeExtractor 按文件名返回预设的提取结果
type fakeExtractor struct {
	mu      sync.Mutex
	results map[string]*types.ExtractedText
	errs    map[string]error
	started chan string   // 非nil时每次调用先发送文件名
	release chan struct{} // 非nil时等待放行
	calls   int
}

func (f *fakeExtractor) Extract(ctx context.Context, doc *types.Document) (*types.ExtractedText, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.started != nil {
		f.started <- doc.FileName
	}
	if f.release != nil {
		<-f.release
	}
	if err, ok := f.errs[doc.FileName]; ok {
		return nil, err
	}
	if r, ok := f.results[doc.FileName]; ok {
		return r, nil
	}
	return &types.ExtractedText{
		Text:       "默认简历文本：五年Go后端开发经验，负责过多个高并发项目。",
		Provenance: types.ProvenanceDirect,
	}, nil
}

func (f *fakeExtractor) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// fakeAnalyzer 按简历文本返回预设的错误，否则返回固定的高置信度结果
type fakeAnalyzer struct {
	mu        sync.Mutex
	errByText map[string]error
	calls     int
}

func (f *fakeAnalyzer) Analyze(ctx context.Context, resumeText string, jobCtx *types.JobContext) (*types.CandidateProfile, *types.ScoreBreakdown, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if err, ok := f.errByText[resumeText]; ok {
		return nil, nil, err
	}
	profile := &types.CandidateProfile{Name: "测试候选人", Confidence: types.ConfidenceHigh}
	score := &types.ScoreBreakdown{
		ATSScore:        80.5,
		Reason:          "综合表现良好",
		TotalConsistent: true,
		Confidence:      types.ConfidenceHigh,
	}
	return profile, score, nil
}

// fakeResultStore 内存结果存储，记录每次写入
type fakeResultStore struct {
	mu      sync.Mutex
	saved   []*models.ResumeAnalysis
	events  []*models.OutboxMessage
	saveErr error
}

func (f *fakeResultStore) SaveResult(ctx context.Context, record *models.ResumeAnalysis, event *models.OutboxMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveErr != nil {
		return f.saveErr
	}
	f.saved = append(f.saved, record)
	f.events = append(f.events, event)
	return nil
}

func (f *fakeResultStore) GetResult(ctx context.Context, submissionUUID string) (*models.ResumeAnalysis, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.saved {
		if r.SubmissionUUID == submissionUUID {
			return r, nil
		}
	}
	return nil, fmt.Errorf("记录不存在: %s", submissionUUID)
}

func (f *fakeResultStore) ListResultsByBatch(ctx context.Context, batchID string) ([]*models.ResumeAnalysis, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.ResumeAnalysis
	for _, r := range f.saved {
		if r.BatchID != nil && *r.BatchID == batchID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeResultStore) saveCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.saved)
}

// fakeResolver 返回预设的文档列表或解析错误
type fakeResolver struct {
	docs []*types.Document
	err  error
}

func (f *fakeResolver) Resolve(ctx context.Context, ref *types.RemoteFolderRef) ([]*types.Document, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.docs, nil
}

// fakeRecorder 内存批次记录器
type fakeRecorder struct {
	mu        sync.Mutex
	created   []*models.BulkUploadBatch
	finalized []*models.BulkUploadBatch
	events    []*models.OutboxMessage
}

func (f *fakeRecorder) CreateBatchRecord(ctx context.Context, batch *models.BulkUploadBatch) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, batch)
	return nil
}

func (f *fakeRecorder) FinalizeBatchRecord(ctx context.Context, batch *models.BulkUploadBatch, event *models.OutboxMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.finalized = append(f.finalized, batch)
	if event != nil {
		f.events = append(f.events, event)
	}
	return nil
}

func (f *fakeRecorder) GetBatchRecord(ctx context.Context, batchID string) (*models.BulkUploadBatch, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.finalized) - 1; i >= 0; i-- {
		if f.finalized[i].BatchID == batchID {
			return f.finalized[i], nil
		}
	}
	for _, b := range f.created {
		if b.BatchID == batchID {
			return b, nil
		}
	}
	return nil, fmt.Errorf("批次记录不存在: %s", batchID)
}

// fakeSnapshots 内存快照缓存
type fakeSnapshots struct {
	mu      sync.Mutex
	snaps   map[string]*types.BatchSnapshot
	cancels map[string]bool
}

func newFakeSnapshots() *fakeSnapshots {
	return &fakeSnapshots{
		snaps:   make(map[string]*types.BatchSnapshot),
		cancels: make(map[string]bool),
	}
}

func (f *fakeSnapshots) SetBatchSnapshot(ctx context.Context, snapshot *types.BatchSnapshot, ttl time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snaps[snapshot.BatchID] = snapshot
	return nil
}

func (f *fakeSnapshots) GetBatchSnapshot(ctx context.Context, batchID string) (*types.BatchSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if snap, ok := f.snaps[batchID]; ok {
		return snap, nil
	}
	return nil, storage.ErrNotFound
}

func (f *fakeSnapshots) SetBatchCancelFlag(ctx context.Context, batchID string, ttl time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancels[batchID] = true
	return nil
}

func (f *fakeSnapshots) IsBatchCancelled(ctx context.Context, batchID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cancels[batchID], nil
}

//
// 测试基座
//

type testHarness struct {
	extractor *fakeExtractor
	analyzer  *fakeAnalyzer
	store     *fakeResultStore
	resolver  *fakeResolver
	recorder  *fakeRecorder
	snapshots *fakeSnapshots
	coord     *BulkUploadCoordinator
}

func newTestHarness(opts ...SettingOpt) *testHarness {
	h := &testHarness{
		extractor: &fakeExtractor{},
		analyzer:  &fakeAnalyzer{},
		store:     &fakeResultStore{},
		resolver:  &fakeResolver{},
		recorder:  &fakeRecorder{},
		snapshots: newFakeSnapshots(),
	}
	comp := &Components{
		Extractor:     h.extractor,
		Analyzer:      h.analyzer,
		Store:         h.store,
		Resolver:      h.resolver,
		BatchRecorder: h.recorder,
		Snapshots:     h.snapshots,
	}
	set := &Settings{
		WorkerCount:      2,
		QueueCapacity:    8,
		JobTimeout:       5 * time.Second,
		SnapshotTTL:      time.Minute,
		EventsExchange:   "resume.events.exchange",
		ScoredRoutingKey: "resume.scored",
		BatchRoutingKey:  "batch.completed",
		Logger:           zerolog.Nop(),
	}
	h.coord = NewBulkUploadCoordinator(comp, set, opts...)
	return h
}

func pdfFile(name string, size int) *types.Document {
	content := make([]byte, size)
	for i := range content {
		content[i] = byte('a' + i%26)
	}
	return &types.Document{FileName: name, MediaType: types.MediaTypePDF, Content: content}
}

// waitTerminal 轮询直至批次到达终态
func waitTerminal(t *testing.T, coord *BulkUploadCoordinator, batchID string) *types.BatchSnapshot {
	t.Helper()
	var snap *types.BatchSnapshot
	require.Eventually(t, func() bool {
		s, err := coord.GetStatus(context.Background(), batchID)
		if err != nil {
			return false
		}
		snap = s
		return s.Status == constants.BatchStatusCompleted || s.Status == constants.BatchStatusFailed
	}, 5*time.Second, 10*time.Millisecond, "批次应在限定时间内到达终态")
	return snap
}

//
// 批次行为测试
//

func TestBatchMixedOutcomes(t *testing.T) {
	h := newTestHarness()

	longText := strings.Repeat("Go后端工程师，负责高并发服务。", 20)
	h.extractor.results = map[string]*types.ExtractedText{
		"resume_a.pdf": {Text: longText, Provenance: types.ProvenanceDirect},
		"resume_b.pdf": {Text: "扫描件经OCR识别出的简历文本，包含项目和工作经历。", Provenance: types.ProvenanceOCR},
		"resume_c.pdf": {Text: "TIMEOUT_MARKER", Provenance: types.ProvenanceDirect},
	}
	h.analyzer.errByText = map[string]error{
		"TIMEOUT_MARKER": NewRemoteError("", "模型调用失败: context deadline exceeded"),
	}

	batchID, err := h.coord.StartBatch(context.Background(), &BatchRequest{
		Files: []*types.Document{
			pdfFile("resume_a.pdf", 1024),
			pdfFile("resume_b.pdf", 1024),
			pdfFile("resume_c.pdf", 1024),
		},
		UploaderID: "hr-01",
	})
	require.NoError(t, err)

	snap := waitTerminal(t, h.coord, batchID)
	assert.Equal(t, constants.BatchStatusCompleted, snap.Status, "部分失败的批次仍应以completed收尾")
	assert.Equal(t, 3, snap.TotalFiles)
	assert.Equal(t, 3, snap.ProcessedFiles)
	assert.Equal(t, 2, snap.SuccessfulFiles)
	assert.Equal(t, 1, snap.FailedFiles)
	assert.Empty(t, snap.CurrentFile, "终态快照不应残留当前文件提示")

	require.Len(t, snap.Failures, 1)
	assert.Equal(t, "resume_c.pdf", snap.Failures[0].FileName)
	assert.Contains(t, snap.Failures[0].Error, "context deadline exceeded", "失败条目应携带超时信息")

	assert.Equal(t, 2, h.store.saveCount(), "仅成功的文件产生结果写入")
}

func TestBatchAllFailedStillCompleted(t *testing.T) {
	h := newTestHarness()
	h.extractor.errs = map[string]error{
		"bad1.pdf": NewExtractionError("bad1.pdf", "页面损坏"),
		"bad2.pdf": NewExtractionError("bad2.pdf", "页面损坏"),
	}

	batchID, err := h.coord.StartBatch(context.Background(), &BatchRequest{
		Files: []*types.Document{pdfFile("bad1.pdf", 512), pdfFile("bad2.pdf", 512)},
	})
	require.NoError(t, err)

	snap := waitTerminal(t, h.coord, batchID)
	assert.Equal(t, constants.BatchStatusCompleted, snap.Status, "全部失败的批次终态仍是completed")
	assert.Equal(t, 2, snap.ProcessedFiles)
	assert.Equal(t, 0, snap.SuccessfulFiles)
	assert.Equal(t, 2, snap.FailedFiles)
	assert.Equal(t, 0, h.store.saveCount(), "失败的文件不应有结果写入")
}

func TestBatchTerminalSnapshotIdempotent(t *testing.T) {
	h := newTestHarness()

	batchID, err := h.coord.StartBatch(context.Background(), &BatchRequest{
		Files: []*types.Document{pdfFile("one.pdf", 256)},
	})
	require.NoError(t, err)

	first := waitTerminal(t, h.coord, batchID)
	second, err := h.coord.GetStatus(context.Background(), batchID)
	require.NoError(t, err)
	assert.Equal(t, first, second, "终态快照重复查询应返回完全相同的内容")
}

func TestBatchResolutionFailureIsBatchLevel(t *testing.T) {
	h := newTestHarness()
	h.resolver.err = NewResolutionError("https://drive.google.com/drive/folders/xyz", "文件夹不可访问")

	batchID, err := h.coord.StartBatch(context.Background(), &BatchRequest{
		Folder: &types.RemoteFolderRef{Link: "https://drive.google.com/drive/folders/xyz"},
	})
	require.NoError(t, err)

	snap := waitTerminal(t, h.coord, batchID)
	assert.Equal(t, constants.BatchStatusFailed, snap.Status, "解析失败是批次级失败")
	assert.NotEmpty(t, snap.Error, "批次级错误信息应填充")
	assert.Empty(t, snap.Failures, "解析失败不产生任何单文件失败条目")
	assert.Equal(t, 0, snap.ProcessedFiles)
	assert.Equal(t, 0, h.extractor.callCount(), "解析失败的批次不应调度任何文件")
}

func TestBatchFromResolvedFolder(t *testing.T) {
	h := newTestHarness()
	h.resolver.docs = []*types.Document{pdfFile("d1.pdf", 256), pdfFile("d2.pdf", 256)}

	batchID, err := h.coord.StartBatch(context.Background(), &BatchRequest{
		Folder: &types.RemoteFolderRef{Link: "https://drive.google.com/drive/folders/abc"},
	})
	require.NoError(t, err)

	snap := waitTerminal(t, h.coord, batchID)
	assert.Equal(t, constants.BatchStatusCompleted, snap.Status)
	assert.Equal(t, 2, snap.TotalFiles, "总数应在解析后确定")
	assert.Equal(t, 2, snap.SuccessfulFiles)
}

func TestBatchAdmissionRejectsOversizeAndUnsupported(t *testing.T) {
	h := newTestHarness()

	oversize := pdfFile("huge.pdf", constants.MaxFileSizeBytes+1)
	unsupported := &types.Document{FileName: "notes.txt", MediaType: "text/plain", Content: []byte("hello")}

	batchID, err := h.coord.StartBatch(context.Background(), &BatchRequest{
		Files: []*types.Document{oversize, unsupported, pdfFile("ok.pdf", 512)},
	})
	require.NoError(t, err)

	snap := waitTerminal(t, h.coord, batchID)
	assert.Equal(t, 3, snap.ProcessedFiles)
	assert.Equal(t, 1, snap.SuccessfulFiles)
	assert.Equal(t, 2, snap.FailedFiles, "超限和不支持类型的文件应计为失败")
}

func TestBatchRejectsTooManyFiles(t *testing.T) {
	h := newTestHarness()

	files := make([]*types.Document, constants.MaxBatchFiles+1)
	for i := range files {
		files[i] = pdfFile(fmt.Sprintf("f%d.pdf", i), 64)
	}
	_, err := h.coord.StartBatch(context.Background(), &BatchRequest{Files: files})
	require.Error(t, err, "超出批次文件数上限应在创建前拒绝")
}

func TestBatchRejectsAmbiguousSource(t *testing.T) {
	h := newTestHarness()

	_, err := h.coord.StartBatch(context.Background(), &BatchRequest{})
	require.Error(t, err, "空请求应被拒绝")

	_, err = h.coord.StartBatch(context.Background(), &BatchRequest{
		Files:  []*types.Document{pdfFile("a.pdf", 64)},
		Folder: &types.RemoteFolderRef{Link: "https://drive.google.com/drive/folders/abc"},
	})
	require.Error(t, err, "同时提供两种来源应被拒绝")
}

func TestBatchCancelStopsScheduling(t *testing.T) {
	h := newTestHarness(WithsetWorkercount(1), WithsetQueuecapacity(1))
	h.extractor.started = make(chan string, 4)
	h.extractor.release = make(chan struct{})

	batchID, err := h.coord.StartBatch(context.Background(), &BatchRequest{
		Files: []*types.Document{
			pdfFile("first.pdf", 256),
			pdfFile("second.pdf", 256),
			pdfFile("third.pdf", 256),
		},
	})
	require.NoError(t, err)

	// 第一个文件进入处理后请求取消
	<-h.extractor.started
	require.NoError(t, h.coord.Cancel(context.Background(), batchID))
	close(h.extractor.release)

	snap := waitTerminal(t, h.coord, batchID)
	assert.Equal(t, constants.BatchStatusCompleted, snap.Status, "取消的批次仍以completed收尾")
	assert.Equal(t, 3, snap.ProcessedFiles)
	assert.Equal(t, 1, snap.SuccessfulFiles, "在途文件应自然完成")
	assert.Equal(t, 2, snap.FailedFiles, "未开始的文件应计为失败")
	for _, failure := range snap.Failures {
		assert.Contains(t, failure.Error, "取消", "取消导致的失败条目应注明原因")
	}
	assert.Equal(t, 1, h.store.saveCount(), "只有完成的在途文件产生写入")
}

func TestCancelAfterTerminalIsNoop(t *testing.T) {
	h := newTestHarness()

	batchID, err := h.coord.StartBatch(context.Background(), &BatchRequest{
		Files: []*types.Document{pdfFile("one.pdf", 128)},
	})
	require.NoError(t, err)
	before := waitTerminal(t, h.coord, batchID)

	require.NoError(t, h.coord.Cancel(context.Background(), batchID))
	after, err := h.coord.GetStatus(context.Background(), batchID)
	require.NoError(t, err)
	assert.Equal(t, before, after, "终态后的取消不应改变快照")
}

func TestGetResultsOnlyAfterTerminal(t *testing.T) {
	h := newTestHarness(WithsetWorkercount(1))
	h.extractor.started = make(chan string, 2)
	h.extractor.release = make(chan struct{})

	batchID, err := h.coord.StartBatch(context.Background(), &BatchRequest{
		Files: []*types.Document{pdfFile("slow.pdf", 256)},
	})
	require.NoError(t, err)

	<-h.extractor.started
	_, err = h.coord.GetResults(context.Background(), batchID)
	require.Error(t, err, "批次未结束时不应提供结果")

	close(h.extractor.release)
	waitTerminal(t, h.coord, batchID)

	results, err := h.coord.GetResults(context.Background(), batchID)
	require.NoError(t, err)
	assert.Equal(t, batchID, results.BatchID)
	assert.Equal(t, 1, results.Successful)
	require.Len(t, results.Results, 1)
	assert.Equal(t, "测试候选人", results.Results[0].Candidate.Name)
	assert.Equal(t, 80.5, results.Results[0].Score.ATSScore)
}

func TestBatchCompletionEventEmitted(t *testing.T) {
	h := newTestHarness()

	batchID, err := h.coord.StartBatch(context.Background(), &BatchRequest{
		Files: []*types.Document{pdfFile("one.pdf", 128)},
	})
	require.NoError(t, err)
	waitTerminal(t, h.coord, batchID)

	h.recorder.mu.Lock()
	defer h.recorder.mu.Unlock()
	require.Len(t, h.recorder.events, 1, "终态应恰好产生一条批次完成事件")
	assert.Equal(t, constants.EventBatchCompleted, h.recorder.events[0].EventType)
	assert.Equal(t, batchID, h.recorder.events[0].AggregateID)
	assert.Equal(t, "batch.completed", h.recorder.events[0].TargetRoutingKey)
}

func TestGetStatusFallsBackToCacheAndDatabase(t *testing.T) {
	h := newTestHarness()

	batchID, err := h.coord.StartBatch(context.Background(), &BatchRequest{
		Files: []*types.Document{pdfFile("one.pdf", 128)},
	})
	require.NoError(t, err)
	memSnap := waitTerminal(t, h.coord, batchID)

	// 模拟进程重启：内存状态丢失，缓存命中
	h.coord.mu.Lock()
	delete(h.coord.batches, batchID)
	h.coord.mu.Unlock()

	cached, err := h.coord.GetStatus(context.Background(), batchID)
	require.NoError(t, err)
	assert.Equal(t, memSnap.Status, cached.Status)
	assert.Equal(t, memSnap.SuccessfulFiles, cached.SuccessfulFiles)

	// 缓存也失效后回退数据库
	h.snapshots.mu.Lock()
	delete(h.snapshots.snaps, batchID)
	h.snapshots.mu.Unlock()

	fromDB, err := h.coord.GetStatus(context.Background(), batchID)
	require.NoError(t, err)
	assert.Equal(t, memSnap.Status, fromDB.Status)
	assert.Equal(t, memSnap.TotalFiles, fromDB.TotalFiles)
}
