package analyzer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"
	"unicode"
	"unicode/utf8"

	"resume-intake-go/internal/constants"
	"resume-intake-go/internal/logger"
	"resume-intake-go/internal/pipeline"
	"resume-intake-go/internal/tracing"
	"resume-intake-go/internal/types"

	"github.com/cloudwego/eino/components/model"
	einoschema "github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("resume-intake-go/analyzer")

// 模型汇报的总分与子分之和的允许偏差
const totalScoreTolerance = 0.01

// StructuredAnalyzer 封装两次模型调用：画像抽取和加权评分。
// 模型输出无法解析时回退启发式合成结果（恰好一次），不向批次传播硬失败。
type StructuredAnalyzer struct {
	llmModel    model.ToolCallingChatModel
	logger      zerolog.Logger
	callTimeout time.Duration
}

// AnalyzerOption 分析器的配置选项
type AnalyzerOption func(*StructuredAnalyzer)

// WithAnalyzerLogger 设置日志记录器
func WithAnalyzerLogger(l zerolog.Logger) AnalyzerOption {
	return func(a *StructuredAnalyzer) {
		a.logger = l
	}
}

// WithCallTimeout 设置单次模型调用的超时上限
func WithCallTimeout(d time.Duration) AnalyzerOption {
	return func(a *StructuredAnalyzer) {
		if d > 0 {
			a.callTimeout = d
		}
	}
}

// NewStructuredAnalyzer 创建分析器
func NewStructuredAnalyzer(llmModel model.ToolCallingChatModel, options ...AnalyzerOption) *StructuredAnalyzer {
	a := &StructuredAnalyzer{
		llmModel:    llmModel,
		logger:      logger.Component("analyzer"),
		callTimeout: 60 * time.Second,
	}
	for _, opt := range options {
		opt(a)
	}
	return a
}

var _ pipeline.ResumeAnalyzer = (*StructuredAnalyzer)(nil)

// criterionScore 评分响应中单个维度的条目
type criterionScore struct {
	Score  float64 `json:"score"`
	Reason string  `json:"reason"`
}

// scoreResponse 评分调用的原始响应结构，键名与提示词中的权重表一致
type scoreResponse struct {
	SkillMatch          criterionScore `json:"Skill Match (Contextual)"`
	ExperienceRelevance criterionScore `json:"Experience Relevance & Depth"`
	ProjectValidation   criterionScore `json:"Project & Achievement Validation"`
	AIDetection         criterionScore `json:"AI-Generated Resume Detection"`
	Consistency         criterionScore `json:"Consistency Check"`
	ResumeQuality       criterionScore `json:"Resume Quality Score"`
	InterviewPrediction criterionScore `json:"Interview & Behavioral Prediction"`
	CompetitiveFit      criterionScore `json:"Competitive Fit & Market Standing"`
	ATSScore            *float64       `json:"ats_score"`
	Reason              string         `json:"reason"`
}

// Analyze 对提取后的简历文本做结构化解析和评分
// 画像和评分两次调用并行执行，任一调用的网络层错误使整体失败，
// 解析层错误则各自回退合成结果
func (a *StructuredAnalyzer) Analyze(ctx context.Context, resumeText string, jobCtx *types.JobContext) (*types.CandidateProfile, *types.ScoreBreakdown, error) {
	if err := validateInput(resumeText); err != nil {
		return nil, nil, err
	}

	ctx, span := tracer.Start(ctx, "StructuredAnalyzer.Analyze")
	defer span.End()
	span.SetAttributes(
		attribute.Int("resume.chars", utf8.RuneCountInString(resumeText)),
		attribute.String("resume.preview", tracing.SafeResumeContent(resumeText)),
	)

	var (
		wg      sync.WaitGroup
		profile *types.CandidateProfile
		score   *types.ScoreBreakdown
	)
	errCh := make(chan error, 2)

	wg.Add(2)
	go func() {
		defer wg.Done()
		p, err := a.extractProfile(ctx, resumeText, jobCtx)
		if err != nil {
			errCh <- err
			return
		}
		profile = p
	}()
	go func() {
		defer wg.Done()
		s, err := a.scoreResume(ctx, resumeText, jobCtx)
		if err != nil {
			errCh <- err
			return
		}
		score = s
	}()
	wg.Wait()
	close(errCh)

	if err := <-errCh; err != nil {
		errType := tracing.ErrorTypeAnalysis
		if errors.Is(err, pipeline.ErrRemoteFailed) {
			errType = tracing.ErrorTypeRemote
		}
		tracing.RecordError(span, err, errType)
		return nil, nil, err
	}

	span.SetAttributes(
		attribute.Float64("score.ats", score.ATSScore),
		attribute.String("score.confidence", string(score.Confidence)),
		attribute.String("profile.confidence", string(profile.Confidence)),
	)
	span.SetStatus(codes.Ok, "")
	return profile, score, nil
}

// extractProfile 画像抽取调用
func (a *StructuredAnalyzer) extractProfile(ctx context.Context, resumeText string, jobCtx *types.JobContext) (*types.CandidateProfile, error) {
	raw, err := a.callModel(ctx, buildProfilePrompt(resumeText, jobCtx))
	if err != nil {
		return nil, err
	}

	jsonStr := extractJSON(cleanModelResponse(raw))
	if jsonStr == "" {
		a.logger.Warn().Msg("画像响应中未找到JSON对象，回退合成画像")
		return syntheticProfile(resumeText), nil
	}
	if !utf8.ValidString(jsonStr) {
		jsonStr = strings.ToValidUTF8(jsonStr, "")
	}

	var profile types.CandidateProfile
	if err := json.Unmarshal([]byte(jsonStr), &profile); err != nil {
		fixed := sanitizeJSON(jsonStr)
		if jsonErr := json.Unmarshal([]byte(fixed), &profile); jsonErr != nil {
			a.logger.Warn().Err(err).Msg("画像JSON解析失败（含修复重试），回退合成画像")
			return syntheticProfile(resumeText), nil
		}
	}

	// 模型偶尔会罗列整份简历的关键词，画像只保留最相关的前几项
	if len(profile.Skills) > constants.MaxProfileSkills {
		profile.Skills = profile.Skills[:constants.MaxProfileSkills]
	}

	profile.Confidence = types.ConfidenceHigh
	return &profile, nil
}

// scoreResume 加权评分调用
func (a *StructuredAnalyzer) scoreResume(ctx context.Context, resumeText string, jobCtx *types.JobContext) (*types.ScoreBreakdown, error) {
	raw, err := a.callModel(ctx, buildScorePrompt(resumeText, jobCtx))
	if err != nil {
		return nil, err
	}

	jsonStr := extractJSON(cleanModelResponse(raw))
	if jsonStr == "" {
		a.logger.Warn().Msg("评分响应中未找到JSON对象，回退合成评分")
		return syntheticScore(resumeText, jobCtx), nil
	}
	if !utf8.ValidString(jsonStr) {
		jsonStr = strings.ToValidUTF8(jsonStr, "")
	}

	var resp scoreResponse
	if err := json.Unmarshal([]byte(jsonStr), &resp); err != nil {
		fixed := sanitizeJSON(jsonStr)
		if jsonErr := json.Unmarshal([]byte(fixed), &resp); jsonErr != nil {
			a.logger.Warn().Err(err).Msg("评分JSON解析失败（含修复重试），回退合成评分")
			return syntheticScore(resumeText, jobCtx), nil
		}
	}

	return buildScoreBreakdown(&resp), nil
}

// buildScoreBreakdown 将原始评分响应转换为领域结构
// 子分截断到[0,100]；模型汇报的总分原样保留，仅记录它与子分之和是否一致
func buildScoreBreakdown(resp *scoreResponse) *types.ScoreBreakdown {
	sub := types.SubScores{
		SkillMatch:          clampScore(resp.SkillMatch.Score),
		ExperienceRelevance: clampScore(resp.ExperienceRelevance.Score),
		ProjectValidation:   clampScore(resp.ProjectValidation.Score),
		AIDetectionPenalty:  clampScore(resp.AIDetection.Score),
		Consistency:         clampScore(resp.Consistency.Score),
		ResumeQuality:       clampScore(resp.ResumeQuality.Score),
		InterviewPrediction: clampScore(resp.InterviewPrediction.Score),
		CompetitiveFit:      clampScore(resp.CompetitiveFit.Score),
	}
	sum := sub.SkillMatch + sub.ExperienceRelevance + sub.ProjectValidation +
		sub.AIDetectionPenalty + sub.Consistency + sub.ResumeQuality +
		sub.InterviewPrediction + sub.CompetitiveFit

	total := sum
	consistent := true
	if resp.ATSScore != nil {
		total = *resp.ATSScore
		consistent = math.Abs(total-sum) <= totalScoreTolerance
	}

	return &types.ScoreBreakdown{
		SubScores:       sub,
		ATSScore:        total,
		Reason:          resp.Reason,
		TotalConsistent: consistent,
		Confidence:      types.ConfidenceHigh,
	}
}

// callModel 执行一次模型调用，网络层错误包装为远程错误，不在本层重试
func (a *StructuredAnalyzer) callModel(ctx context.Context, prompt string) (string, error) {
	if a.llmModel == nil {
		return "", fmt.Errorf("StructuredAnalyzer: llmModel is not initialized")
	}

	ctx, cancel := context.WithTimeout(ctx, a.callTimeout)
	defer cancel()

	messages := []*einoschema.Message{
		einoschema.UserMessage(prompt),
	}

	a.logger.Debug().Str("prompt", tracing.SafePrompt(prompt)).Msg("发起模型调用")

	response, err := a.llmModel.Generate(ctx, messages)
	if err != nil {
		return "", pipeline.NewRemoteError("", fmt.Sprintf("模型调用失败: %v", err))
	}
	if response == nil || response.Content == "" {
		return "", pipeline.NewRemoteError("", "模型返回空响应")
	}
	return response.Content, nil
}

// validateInput 仅在输入完全不可用（空白或不含任何字母数字）时返回分析错误
func validateInput(resumeText string) error {
	trimmed := strings.TrimSpace(resumeText)
	if trimmed == "" {
		return pipeline.NewAnalysisError("", "简历文本为空")
	}
	for _, r := range trimmed {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return nil
		}
	}
	return pipeline.NewAnalysisError("", "简历文本不含有效内容")
}

func clampScore(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
