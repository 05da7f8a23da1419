package analyzer

import (
	"fmt"
	"strings"

	"resume-intake-go/internal/types"
)

// 评分提示词，权重表为固定常量，必须与持久化记录的口径保持一致
const scorePromptTemplate = `You are an advanced, non-repetitive AI-based ATS evaluator. Calculate the ATS score out of 100 using the following weighted criteria. For each, provide a score and a 1-line reason. At the end, provide the total score (sum, max 100) and a brief summary reason.

Criteria and weights:
{
  "Skill Match (Contextual)": 30,
  "Experience Relevance & Depth": 25,
  "Project & Achievement Validation": 15,
  "AI-Generated Resume Detection": 5,
  "Consistency Check": 15,
  "Resume Quality Score": 5,
  "Interview & Behavioral Prediction": 5,
  "Competitive Fit & Market Standing": 5
}

- For Skill Match, Experience Relevance & Depth, Project & Achievement Validation, and Competitive Fit, compare the resume to the job details below.
- For Consistency Check, score only based on the resume: penalize frequent job changes, reward longer tenures.
- For Competitive Fit, judge if the candidate could stand out for this job compared to typical market applicants.
- For AI-Generated Resume Detection, penalize if the resume seems overly generic or AI-written.
- For Resume Quality, judge formatting, clarity, and professionalism.
- For Interview & Behavioral Prediction, estimate how well the candidate might perform in interviews based on the resume.

Return ONLY a JSON object like this (no markdown, no code formatting):
{
  "Skill Match (Contextual)": {"score": number, "reason": string},
  "Experience Relevance & Depth": {"score": number, "reason": string},
  "Project & Achievement Validation": {"score": number, "reason": string},
  "AI-Generated Resume Detection": {"score": number, "reason": string},
  "Consistency Check": {"score": number, "reason": string},
  "Resume Quality Score": {"score": number, "reason": string},
  "Interview & Behavioral Prediction": {"score": number, "reason": string},
  "Competitive Fit & Market Standing": {"score": number, "reason": string},
  "ats_score": number,
  "reason": string
}

Job Details:
%s

Resume Text:
%s
`

// 画像抽取提示词
const profilePromptTemplate = `You are an intelligent resume parser and analyzer.

Parse the resume text below and return a JSON object in the following format (no markdown, no explanation, no code block):

{
  "name": string,
  "contact_number": string,
  "email_address": string,
  "location": string,
  "skills": [string],
  "education": [string],
  "work_experience": [string],
  "certifications": [string],
  "languages": [string],
  "suggested_resume_category": string,
  "recommended_job_roles": [string],
  "number_of_job_jumps": number,
  "average_job_duration_months": number
}

Instructions:
- "skills": Extract and return only the top 10 most relevant technical skills based on frequency and context. Avoid soft skills or generic terms.
- "number_of_job_jumps": Count the number of times the candidate switched jobs. If only one job is listed, return 0.
- "average_job_duration_months": Calculate average job duration in months using available start and end dates. If a job is marked "Present", use the current month.
- Return numerical values for "number_of_job_jumps" and "average_job_duration_months", even if estimation is needed.
- Use float values (e.g., 9.0, 15.5) for "average_job_duration_months".
%s
Resume text:
%s
`

// buildScorePrompt 构建评分提示词，(resumeText, jobCtx) 的纯函数
func buildScorePrompt(resumeText string, jobCtx *types.JobContext) string {
	return fmt.Sprintf(scorePromptTemplate, formatJobDetails(jobCtx), resumeText)
}

// buildProfilePrompt 构建画像抽取提示词
func buildProfilePrompt(resumeText string, jobCtx *types.JobContext) string {
	jobHint := ""
	if jobCtx != nil && jobCtx.Title != "" {
		jobHint = fmt.Sprintf("- The candidate is applying for the position %q; bias \"suggested_resume_category\" and \"recommended_job_roles\" accordingly.\n", jobCtx.Title)
	}
	return fmt.Sprintf(profilePromptTemplate, jobHint, resumeText)
}

func formatJobDetails(jobCtx *types.JobContext) string {
	if jobCtx == nil {
		return "(no job context provided; evaluate the resume on general professional merit)"
	}
	var sb strings.Builder
	if jobCtx.Title != "" {
		sb.WriteString("Title: " + jobCtx.Title + "\n")
	}
	if jobCtx.Description != "" {
		sb.WriteString("Description: " + jobCtx.Description + "\n")
	}
	if len(jobCtx.RequiredSkills) > 0 {
		sb.WriteString("Required Skills: " + strings.Join(jobCtx.RequiredSkills, ", ") + "\n")
	}
	if sb.Len() == 0 {
		return "(no job context provided; evaluate the resume on general professional merit)"
	}
	return sb.String()
}
