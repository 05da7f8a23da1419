package analyzer

import (
	"regexp"
	"strings"

	"resume-intake-go/internal/types"
)

// 评分权重固定常量表，与提示词中的权重一一对应
const (
	weightSkillMatch  = 30.0
	weightExperience  = 25.0
	weightProject     = 15.0
	weightAIDetection = 5.0
	weightConsistency = 15.0
	weightQuality     = 5.0
	weightInterview   = 5.0
	weightCompetitive = 5.0
)

var (
	emailRe = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)
	phoneRe = regexp.MustCompile(`\+?[0-9][0-9 ()\-]{7,}[0-9]`)
)

// syntheticScore 在模型输出无法解析为JSON时，基于输入文本的简单启发式
// 合成一份确定性的评分结果。结果必须标记 ConfidenceLow。
func syntheticScore(resumeText string, jobCtx *types.JobContext) *types.ScoreBreakdown {
	lower := strings.ToLower(resumeText)
	lengthFactor := float64(len([]rune(resumeText))) / 2000.0
	if lengthFactor > 1 {
		lengthFactor = 1
	}

	skillFraction := 0.5
	if jobCtx != nil && len(jobCtx.RequiredSkills) > 0 {
		matched := 0
		for _, skill := range jobCtx.RequiredSkills {
			if skill != "" && strings.Contains(lower, strings.ToLower(skill)) {
				matched++
			}
		}
		skillFraction = float64(matched) / float64(len(jobCtx.RequiredSkills))
	}

	keywordFraction := func(keywords ...string) float64 {
		hit := 0
		for _, kw := range keywords {
			if strings.Contains(lower, kw) {
				hit++
			}
		}
		return float64(hit) / float64(len(keywords))
	}

	sub := types.SubScores{
		SkillMatch:          skillFraction * weightSkillMatch,
		ExperienceRelevance: lengthFactor * weightExperience,
		ProjectValidation:   keywordFraction("project", "achievement", "developed", "built") * weightProject,
		AIDetectionPenalty:  0.5 * weightAIDetection,
		Consistency:         lengthFactor * weightConsistency,
		ResumeQuality:       lengthFactor * weightQuality,
		InterviewPrediction: 0.5 * weightInterview,
		CompetitiveFit:      skillFraction * weightCompetitive,
	}

	total := sub.SkillMatch + sub.ExperienceRelevance + sub.ProjectValidation +
		sub.AIDetectionPenalty + sub.Consistency + sub.ResumeQuality +
		sub.InterviewPrediction + sub.CompetitiveFit

	return &types.ScoreBreakdown{
		SubScores:       sub,
		ATSScore:        total,
		Reason:          "Synthetic score derived from heuristic text analysis because the model response could not be parsed.",
		TotalConsistent: true,
		Confidence:      types.ConfidenceLow,
	}
}

// syntheticProfile 在模型输出无法解析为JSON时，用正则启发式抽取
// 能确定拿到的联系信息，其余字段留空。结果必须标记 ConfidenceLow。
func syntheticProfile(resumeText string) *types.CandidateProfile {
	profile := &types.CandidateProfile{
		Confidence: types.ConfidenceLow,
	}

	if email := emailRe.FindString(resumeText); email != "" {
		profile.EmailAddress = email
	}
	if phone := phoneRe.FindString(resumeText); phone != "" {
		profile.ContactNumber = strings.TrimSpace(phone)
	}

	// 第一行非空白文本作为候选姓名，过长则视为段落放弃
	for _, line := range strings.Split(resumeText, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		if len([]rune(trimmed)) <= 60 && !strings.Contains(trimmed, "@") {
			profile.Name = trimmed
		}
		break
	}

	return profile
}
