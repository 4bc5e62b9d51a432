package service

import (
	"bytes"
	"course_assessment_backend/internal/model"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strings"
)

// ExportFormatter 把已通过校验的测评结果导出为 CSV 或规范化 JSON。
// 导出是纯读操作，不改变任务状态
type ExportFormatter struct{}

func NewExportFormatter() *ExportFormatter {
	return &ExportFormatter{}
}

var csvHeaders = []string{
	"question_id",
	"type",
	"question_text",
	"options",
	"correct_answer",
	"blooms_level",
	"difficulty_level",
	"reasoning.learning_objective_alignment",
	"reasoning.competency_alignment.kcm.area",
	"reasoning.competency_alignment.kcm.theme",
	"reasoning.competency_alignment.kcm.sub_theme",
	"reasoning.justification",
	"reasoning.relevance_percentage",
}

// ToCSV 每道题一行，MCQ 选项用竖线拼接，MTF 配对折叠进 options 列
func (e *ExportFormatter) ToCSV(result *model.AssessmentResult) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	if err := writer.Write(csvHeaders); err != nil {
		return nil, err
	}

	for i := range result.Questions.MCQ {
		q := &result.Questions.MCQ[i]
		options := make([]string, 0, len(q.Options))
		for _, opt := range q.Options {
			options = append(options, opt.Text)
		}
		answer := ""
		if q.CorrectOptionIndex != nil {
			answer = fmt.Sprintf("%d", *q.CorrectOptionIndex)
		}
		if err := writer.Write(questionRow(&q.QuestionBase, "mcq", strings.Join(options, " | "), answer)); err != nil {
			return nil, err
		}
	}

	for i := range result.Questions.FTB {
		q := &result.Questions.FTB[i]
		if err := writer.Write(questionRow(&q.QuestionBase, "ftb", "", q.CorrectAnswer)); err != nil {
			return nil, err
		}
	}

	for i := range result.Questions.MTF {
		q := &result.Questions.MTF[i]
		pairs := make([]string, 0, len(q.Pairs))
		for _, pair := range q.Pairs {
			pairs = append(pairs, fmt.Sprintf("%s -> %s", pair.Left, pair.Right))
		}
		if err := writer.Write(questionRow(&q.QuestionBase, "mtf", strings.Join(pairs, "; "), "")); err != nil {
			return nil, err
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func questionRow(base *model.QuestionBase, qType, options, answer string) []string {
	relevance := ""
	objective := ""
	area := ""
	theme := ""
	subTheme := ""
	justification := ""
	if base.Reasoning != nil {
		objective = base.Reasoning.LearningObjectiveAlignment
		area = base.Reasoning.CompetencyAlignment.KCM.Area
		theme = base.Reasoning.CompetencyAlignment.KCM.Theme
		subTheme = base.Reasoning.CompetencyAlignment.KCM.SubTheme
		justification = base.Reasoning.Justification
		if base.Reasoning.RelevancePercentage != nil {
			relevance = fmt.Sprintf("%g", *base.Reasoning.RelevancePercentage)
		}
	}

	return []string{
		base.QuestionID,
		qType,
		base.QuestionText,
		options,
		answer,
		base.BloomsLevel,
		base.DifficultyLevel,
		objective,
		area,
		theme,
		subTheme,
		justification,
		relevance,
	}
}

// ToJSON 规范化缩进输出，字段顺序与落库结构一致
func (e *ExportFormatter) ToJSON(result *model.AssessmentResult) ([]byte, error) {
	return json.MarshalIndent(result, "", "  ")
}
