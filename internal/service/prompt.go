package service

import (
	"course_assessment_backend/internal/model"
	"course_assessment_backend/pkg/logger"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	"go.uber.org/zap"
)

const promptTemplate = `You are an expert instructional designer creating an audit-ready {assessment_type} assessment.

Course identifiers: {course_ids}

Grounding material (use ONLY this material, do not invent content):
{content_context}

Authoritative competency dataset (map every question to an entry from this dataset):
{kcm_dataset}

Requirements:
- Difficulty: {difficulty_level}
- Output language: {input_language}
- Question counts: {mcq_count} multiple-choice, {ftb_count} fill-in-the-blank, {mtf_count} match-the-following
- Bloom's distribution: {blooms_dist}
- Time to complete: {time_to_complete}
- Priority topics: {priority_topics}
- Additional instructions: {additional_instructions}

Return a single JSON object with exactly two top-level keys:
1. "blueprint": object with keys "summary", "learning_objectives", "competency_map", "time_appropriateness".
2. "questions": object with keys "mcq", "ftb", "mtf", each an array of question objects.

Every question object must carry: "question_id", "question_text", "blooms_level",
"difficulty_level" and a non-null "reasoning" object with
"learning_objective_alignment", "competency_alignment" (with nested "kcm":
{"area", "theme", "sub_theme"}), "justification" and "relevance_percentage" (0-100).
MCQ items additionally carry "options" (array of {"index", "text"}) and
"correct_option_index". FTB items carry "correct_answer". MTF items carry
"pairs" (array of {"left", "right"}, one-to-one, no unmatched entries).`

// PromptBuilder 组装发给生成模型的提示词，能力框架数据集在启动时载入
type PromptBuilder struct {
	kcmDataset string
}

func NewPromptBuilder(kcmDatasetPath string) *PromptBuilder {
	b := &PromptBuilder{kcmDataset: "{}"}
	if kcmDatasetPath == "" {
		return b
	}

	raw, err := os.ReadFile(kcmDatasetPath)
	if err != nil {
		logger.Log.Warn("KCM dataset not loaded, competency mapping will be unconstrained",
			zap.String("path", kcmDatasetPath), zap.Error(err))
		return b
	}
	if !json.Valid(raw) {
		logger.Log.Warn("KCM dataset is not valid JSON, ignoring", zap.String("path", kcmDatasetPath))
		return b
	}
	b.kcmDataset = string(raw)
	return b
}

func (b *PromptBuilder) Build(job *model.AssessmentJob, docs []model.SourceDocument) string {
	cfg := job.Config

	difficulty := cfg.Difficulty
	if difficulty == "" {
		difficulty = "Intermediate"
	}
	language := cfg.Language
	if language == "" {
		language = "English"
	}
	instructions := cfg.Instructions
	if instructions == "" {
		instructions = "None provided"
	}
	timeToComplete := cfg.TimeToComplete
	if timeToComplete == "" {
		timeToComplete = "Not provided (use standard pacing)"
	}
	topics := "None"
	if len(cfg.PriorityTopics) > 0 {
		topics = strings.Join(cfg.PriorityTopics, ", ")
	}

	replacer := strings.NewReplacer(
		"{assessment_type}", string(job.AssessmentType),
		"{course_ids}", strings.Join(job.CourseIDs, ", "),
		"{content_context}", buildContentContext(docs),
		"{kcm_dataset}", b.kcmDataset,
		"{difficulty_level}", difficulty,
		"{input_language}", language,
		"{mcq_count}", fmt.Sprintf("%d", cfg.MCQCount),
		"{ftb_count}", fmt.Sprintf("%d", cfg.FTBCount),
		"{mtf_count}", fmt.Sprintf("%d", cfg.MTFCount),
		"{blooms_dist}", bloomsDistribution(job.AssessmentType, cfg.BloomsWeights),
		"{time_to_complete}", timeToComplete,
		"{priority_topics}", topics,
		"{additional_instructions}", instructions,
	)
	return replacer.Replace(promptTemplate)
}

func buildContentContext(docs []model.SourceDocument) string {
	var sb strings.Builder
	for _, doc := range docs {
		sb.WriteString(fmt.Sprintf("--- %s (%s, course %s) ---\n", doc.Name, doc.Origin, doc.CourseID))
		sb.WriteString(doc.Text)
		sb.WriteString("\n\n")
	}
	return strings.TrimSpace(sb.String())
}

// bloomsDistribution 显式权重优先，否则按测评类型给出默认分布
func bloomsDistribution(t model.AssessmentType, weights map[string]int) string {
	if len(weights) > 0 {
		levels := make([]string, 0, len(weights))
		for level := range weights {
			levels = append(levels, level)
		}
		sort.Strings(levels)
		parts := make([]string, 0, len(levels))
		for _, level := range levels {
			parts = append(parts, fmt.Sprintf("%s: %d%%", level, weights[level]))
		}
		return strings.Join(parts, ", ")
	}

	if t == model.TypeComprehensive {
		return "Apply: 40%, Analyze: 30%, Evaluate: 30%"
	}
	return "Remember: 20%, Understand: 25%, Apply: 25%, Analyze: 20%, Evaluate: 10%"
}
