package analyzer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"resume-intake-go/internal/constants"
	"resume-intake-go/internal/pipeline"
	"resume-intake-go/internal/types"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockChatModel 按提示词内容路由到评分或画像响应，支持并行调用
type mockChatModel struct {
	mu          sync.Mutex
	scoreResp   string
	profileResp string
	scoreErr    error
	profileErr  error
	calls       int
}

func (m *mockChatModel) Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()

	if len(input) == 0 {
		return nil, errors.New("mock: empty input")
	}
	prompt := input[0].Content
	// 评分提示词包含权重表的 ats_score 字段，画像提示词不包含
	if strings.Contains(prompt, "ats_score") {
		if m.scoreErr != nil {
			return nil, m.scoreErr
		}
		return schema.AssistantMessage(m.scoreResp, nil), nil
	}
	if m.profileErr != nil {
		return nil, m.profileErr
	}
	return schema.AssistantMessage(m.profileResp, nil), nil
}

func (m *mockChatModel) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, fmt.Errorf("streaming not implemented in mockChatModel")
}

func (m *mockChatModel) WithTools(tools []*schema.ToolInfo) (model.ToolCallingChatModel, error) {
	return m, nil
}

func (m *mockChatModel) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

const validScoreJSON = `{
	"Skill Match (Contextual)": {"score": 25.5, "reason": "大部分必备技能匹配"},
	"Experience Relevance & Depth": {"score": 20.0, "reason": "经验相关"},
	"Project & Achievement Validation": {"score": 12.0, "reason": "项目可信"},
	"AI-Generated Resume Detection": {"score": 4.0, "reason": "无明显AI痕迹"},
	"Consistency Check": {"score": 13.0, "reason": "时间线一致"},
	"Resume Quality Score": {"score": 4.5, "reason": "排版良好"},
	"Interview & Behavioral Prediction": {"score": 4.0, "reason": "表现稳定"},
	"Competitive Fit & Market Standing": {"score": 4.0, "reason": "有市场竞争力"},
	"ats_score": 87.0,
	"reason": "综合评价良好"
}`

const validProfileJSON = `{
	"name": "张三",
	"contact_number": "13800138000",
	"email_address": "zhangsan@example.com",
	"location": "上海",
	"skills": ["Go", "MySQL", "Redis"],
	"education": ["某大学 计算机科学 本科"],
	"work_experience": ["某公司 后端工程师 2020-2023"],
	"certifications": [],
	"languages": ["中文", "英语"],
	"suggested_resume_category": "Backend Engineer",
	"recommended_job_roles": ["Go开发工程师"],
	"number_of_job_jumps": 1,
	"average_job_duration_months": 36.0
}`

const sampleResume = `张三
后端工程师，5年Go开发经验。
精通 Go、MySQL、Redis，主导过多个高并发项目（project），有显著 achievement。
邮箱 zhangsan@example.com，电话 13800138000。`

func newTestAnalyzer(m model.ToolCallingChatModel) *StructuredAnalyzer {
	return NewStructuredAnalyzer(m)
}

func TestAnalyzeHappyPath(t *testing.T) {
	mock := &mockChatModel{scoreResp: validScoreJSON, profileResp: validProfileJSON}
	a := newTestAnalyzer(mock)

	profile, score, err := a.Analyze(context.Background(), sampleResume, nil)
	require.NoError(t, err, "正常响应不应返回错误")
	require.NotNil(t, profile)
	require.NotNil(t, score)

	assert.Equal(t, "张三", profile.Name, "应解析出候选人姓名")
	assert.Equal(t, []string{"Go", "MySQL", "Redis"}, profile.Skills)
	assert.Equal(t, types.ConfidenceHigh, profile.Confidence, "正常解析的画像置信度应为High")

	assert.Equal(t, 25.5, score.SubScores.SkillMatch, "子分不应被取整")
	assert.Equal(t, 87.0, score.ATSScore, "总分应取自模型输出")
	assert.True(t, score.TotalConsistent, "子分之和与总分一致时应标记一致")
	assert.Equal(t, types.ConfidenceHigh, score.Confidence)
	assert.Equal(t, 2, mock.callCount(), "应恰好发起两次模型调用")
}

func TestAnalyzeFencedJSONResponse(t *testing.T) {
	mock := &mockChatModel{
		scoreResp:   "```json\n" + validScoreJSON + "\n```",
		profileResp: "好的，解析结果如下：\n```json\n" + validProfileJSON + "\n```",
	}
	a := newTestAnalyzer(mock)

	profile, score, err := a.Analyze(context.Background(), sampleResume, nil)
	require.NoError(t, err, "带代码围栏的响应应被清理后正常解析")
	assert.Equal(t, types.ConfidenceHigh, profile.Confidence)
	assert.Equal(t, types.ConfidenceHigh, score.Confidence)
	assert.Equal(t, 87.0, score.ATSScore)
}

func TestAnalyzeMalformedScoreFallsBackToSynthetic(t *testing.T) {
	mock := &mockChatModel{
		scoreResp:   "抱歉，我无法评分这份简历。",
		profileResp: validProfileJSON,
	}
	a := newTestAnalyzer(mock)

	profile, score, err := a.Analyze(context.Background(), sampleResume, nil)
	require.NoError(t, err, "解析失败应回退合成结果而不是报错")
	require.NotNil(t, score)

	assert.Equal(t, types.ConfidenceLow, score.Confidence, "合成评分置信度必须为Low")
	assert.True(t, score.TotalConsistent, "合成评分中总分即子分之和")
	assert.GreaterOrEqual(t, score.ATSScore, 0.0)
	assert.LessOrEqual(t, score.ATSScore, 100.0)
	// 画像调用正常，不受评分失败影响
	assert.Equal(t, types.ConfidenceHigh, profile.Confidence)
	assert.Equal(t, 2, mock.callCount(), "回退不应触发模型重试")
}

func TestAnalyzeMalformedProfileFallsBackToSynthetic(t *testing.T) {
	mock := &mockChatModel{
		scoreResp:   validScoreJSON,
		profileResp: "not json at all",
	}
	a := newTestAnalyzer(mock)

	profile, score, err := a.Analyze(context.Background(), sampleResume, nil)
	require.NoError(t, err)
	assert.Equal(t, types.ConfidenceLow, profile.Confidence, "合成画像置信度必须为Low")
	assert.Equal(t, "zhangsan@example.com", profile.EmailAddress, "合成画像应从文本提取邮箱")
	assert.Equal(t, types.ConfidenceHigh, score.Confidence)
}

func TestAnalyzeModelErrorIsRemoteError(t *testing.T) {
	mock := &mockChatModel{
		scoreErr:    errors.New("context deadline exceeded"),
		profileResp: validProfileJSON,
	}
	a := newTestAnalyzer(mock)

	profile, score, err := a.Analyze(context.Background(), sampleResume, nil)
	require.Error(t, err, "模型网络层错误必须向上传播")
	assert.Nil(t, profile)
	assert.Nil(t, score)
	assert.True(t, errors.Is(err, pipeline.ErrRemoteFailed), "错误类型应为远程调用失败")
	assert.Equal(t, 2, mock.callCount(), "失败后不应自动重试")
}

func TestAnalyzeEmptyInputIsAnalysisError(t *testing.T) {
	mock := &mockChatModel{scoreResp: validScoreJSON, profileResp: validProfileJSON}
	a := newTestAnalyzer(mock)

	_, _, err := a.Analyze(context.Background(), "   \n\t  ", nil)
	require.Error(t, err, "空白输入应直接拒绝")
	assert.True(t, errors.Is(err, pipeline.ErrAnalysisFailed))
	assert.Equal(t, 0, mock.callCount(), "无效输入不应消耗模型调用")
}

func TestAnalyzeGarbageInputIsAnalysisError(t *testing.T) {
	mock := &mockChatModel{scoreResp: validScoreJSON, profileResp: validProfileJSON}
	a := newTestAnalyzer(mock)

	_, _, err := a.Analyze(context.Background(), "!!! @@@ ### $$$ %%%", nil)
	require.Error(t, err, "不含字母数字的输入应直接拒绝")
	assert.True(t, errors.Is(err, pipeline.ErrAnalysisFailed))
}

func TestAnalyzeSubScoresClampedToRange(t *testing.T) {
	outOfRange := `{
		"Skill Match (Contextual)": {"score": 150.0, "reason": "越界"},
		"Experience Relevance & Depth": {"score": -10.0, "reason": "越界"},
		"Project & Achievement Validation": {"score": 12.0, "reason": ""},
		"AI-Generated Resume Detection": {"score": 4.0, "reason": ""},
		"Consistency Check": {"score": 13.0, "reason": ""},
		"Resume Quality Score": {"score": 4.5, "reason": ""},
		"Interview & Behavioral Prediction": {"score": 4.0, "reason": ""},
		"Competitive Fit & Market Standing": {"score": 4.0, "reason": ""},
		"ats_score": 87.0,
		"reason": "测试"
	}`
	mock := &mockChatModel{scoreResp: outOfRange, profileResp: validProfileJSON}
	a := newTestAnalyzer(mock)

	_, score, err := a.Analyze(context.Background(), sampleResume, nil)
	require.NoError(t, err)
	assert.Equal(t, 100.0, score.SubScores.SkillMatch, "超出上界的子分应截断到100")
	assert.Equal(t, 0.0, score.SubScores.ExperienceRelevance, "低于下界的子分应截断到0")
}

func TestAnalyzeTotalInconsistencyRecorded(t *testing.T) {
	inconsistent := strings.Replace(validScoreJSON, `"ats_score": 87.0`, `"ats_score": 95.0`, 1)
	mock := &mockChatModel{scoreResp: inconsistent, profileResp: validProfileJSON}
	a := newTestAnalyzer(mock)

	_, score, err := a.Analyze(context.Background(), sampleResume, nil)
	require.NoError(t, err)
	assert.Equal(t, 95.0, score.ATSScore, "模型汇报的总分应原样保留")
	assert.False(t, score.TotalConsistent, "总分与子分之和不一致时应如实标记")
}

func TestAnalyzeMissingTotalUsesSubScoreSum(t *testing.T) {
	noTotal := strings.Replace(validScoreJSON, `"ats_score": 87.0,`, ``, 1)
	mock := &mockChatModel{scoreResp: noTotal, profileResp: validProfileJSON}
	a := newTestAnalyzer(mock)

	_, score, err := a.Analyze(context.Background(), sampleResume, nil)
	require.NoError(t, err)
	assert.InDelta(t, 87.0, score.ATSScore, 0.001, "缺失总分时应使用子分之和")
	assert.True(t, score.TotalConsistent)
}

func TestAnalyzeProfileSkillsCappedAtLimit(t *testing.T) {
	overloaded := strings.Replace(validProfileJSON,
		`"skills": ["Go", "MySQL", "Redis"]`,
		`"skills": ["Go", "MySQL", "Redis", "Kafka", "Docker", "Kubernetes", "gRPC", "MongoDB", "Nginx", "Linux", "Git", "CI/CD"]`,
		1)
	mock := &mockChatModel{scoreResp: validScoreJSON, profileResp: overloaded}
	a := newTestAnalyzer(mock)

	profile, _, err := a.Analyze(context.Background(), sampleResume, nil)
	require.NoError(t, err)
	assert.Len(t, profile.Skills, constants.MaxProfileSkills, "技能列表应截断到上限")
	assert.Equal(t, "Go", profile.Skills[0], "截断应保留模型输出的顺序")
	assert.Equal(t, "Linux", profile.Skills[constants.MaxProfileSkills-1])
}

func TestAnalyzeWithJobContext(t *testing.T) {
	mock := &mockChatModel{scoreResp: validScoreJSON, profileResp: validProfileJSON}
	a := newTestAnalyzer(mock)

	jobCtx := &types.JobContext{
		JobID:          "job-001",
		Title:          "高级Go工程师",
		Description:    "负责后端服务开发",
		RequiredSkills: []string{"Go", "MySQL"},
	}
	profile, score, err := a.Analyze(context.Background(), sampleResume, jobCtx)
	require.NoError(t, err, "携带岗位上下文不应改变调用流程")
	assert.NotNil(t, profile)
	assert.NotNil(t, score)
}

func TestSyntheticFallbackIsDeterministic(t *testing.T) {
	jobCtx := &types.JobContext{
		JobID:          "job-002",
		RequiredSkills: []string{"Go", "Kubernetes", "Redis"},
	}

	first := syntheticScore(sampleResume, jobCtx)
	second := syntheticScore(sampleResume, jobCtx)
	assert.Equal(t, first, second, "相同输入的合成评分应完全一致")
	assert.Equal(t, types.ConfidenceLow, first.Confidence)

	p1 := syntheticProfile(sampleResume)
	p2 := syntheticProfile(sampleResume)
	assert.Equal(t, p1, p2, "相同输入的合成画像应完全一致")
}
