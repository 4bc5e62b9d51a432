package service

import (
	"course_assessment_backend/internal/model"
	"course_assessment_backend/internal/util"
	"encoding/json"
	"fmt"
	"strings"
)

// ResultValidator 对生成模型的原始输出做结构校验。
// 校验失败的结果一律丢弃，不做任何修补或截断，避免把残缺数据落库
type ResultValidator struct{}

func NewResultValidator() *ResultValidator {
	return &ResultValidator{}
}

var requiredBlueprintKeys = []string{"summary", "learning_objectives", "competency_map", "time_appropriateness"}

func (v *ResultValidator) Validate(raw json.RawMessage) (*model.AssessmentResult, error) {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(raw, &top); err != nil {
		return nil, util.NewSchemaViolation("$", "output is not a JSON object")
	}
	if _, ok := top["blueprint"]; !ok {
		return nil, util.NewSchemaViolation("blueprint", "missing required key")
	}
	if _, ok := top["questions"]; !ok {
		return nil, util.NewSchemaViolation("questions", "missing required key")
	}

	var blueprint map[string]json.RawMessage
	if err := json.Unmarshal(top["blueprint"], &blueprint); err != nil {
		return nil, util.NewSchemaViolation("blueprint", "not a JSON object")
	}
	for _, key := range requiredBlueprintKeys {
		if _, ok := blueprint[key]; !ok {
			return nil, util.NewSchemaViolation("blueprint."+key, "missing required key")
		}
	}

	var sections map[string]json.RawMessage
	if err := json.Unmarshal(top["questions"], &sections); err != nil {
		return nil, util.NewSchemaViolation("questions", "not a JSON object")
	}
	for _, key := range []string{"mcq", "ftb", "mtf"} {
		if _, ok := sections[key]; !ok {
			return nil, util.NewSchemaViolation("questions."+key, "missing required key")
		}
	}

	var questions model.QuestionSet
	if err := json.Unmarshal(top["questions"], &questions); err != nil {
		return nil, util.NewSchemaViolation("questions", err.Error())
	}

	for i := range questions.MCQ {
		if err := validateMCQ(&questions.MCQ[i], fmt.Sprintf("questions.mcq[%d]", i)); err != nil {
			return nil, err
		}
	}
	for i := range questions.FTB {
		if err := validateFTB(&questions.FTB[i], fmt.Sprintf("questions.ftb[%d]", i)); err != nil {
			return nil, err
		}
	}
	for i := range questions.MTF {
		if err := validateMTF(&questions.MTF[i], fmt.Sprintf("questions.mtf[%d]", i)); err != nil {
			return nil, err
		}
	}

	return &model.AssessmentResult{
		Blueprint: top["blueprint"],
		Questions: questions,
	}, nil
}

func validateBase(q *model.QuestionBase, path string) error {
	if strings.TrimSpace(q.QuestionID) == "" {
		return util.NewSchemaViolation(path+".question_id", "must be a non-empty string")
	}
	if strings.TrimSpace(q.QuestionText) == "" {
		return util.NewSchemaViolation(path+".question_text", "must be a non-empty string")
	}
	if strings.TrimSpace(q.BloomsLevel) == "" {
		return util.NewSchemaViolation(path+".blooms_level", "must be a non-empty string")
	}
	return validateReasoning(q.Reasoning, path+".reasoning")
}

// validateReasoning 推理块是审计依据，缺失或相关度越界直接判违规，不做夹取
func validateReasoning(r *model.Reasoning, path string) error {
	if r == nil {
		return util.NewSchemaViolation(path, "must be a non-null object")
	}
	if strings.TrimSpace(r.LearningObjectiveAlignment) == "" {
		return util.NewSchemaViolation(path+".learning_objective_alignment", "must be a non-empty string")
	}
	if strings.TrimSpace(r.Justification) == "" {
		return util.NewSchemaViolation(path+".justification", "must be a non-empty string")
	}
	if r.RelevancePercentage == nil {
		return util.NewSchemaViolation(path+".relevance_percentage", "missing required field")
	}
	if *r.RelevancePercentage < 0 || *r.RelevancePercentage > 100 {
		return util.NewSchemaViolation(path+".relevance_percentage",
			fmt.Sprintf("must be within [0, 100], got %v", *r.RelevancePercentage))
	}
	kcm := r.CompetencyAlignment.KCM
	if strings.TrimSpace(kcm.Area) == "" || strings.TrimSpace(kcm.Theme) == "" || strings.TrimSpace(kcm.SubTheme) == "" {
		return util.NewSchemaViolation(path+".competency_alignment.kcm", "area, theme and sub_theme must all be non-empty")
	}
	return nil
}

var catchAllOptions = map[string]bool{
	"all of the above":  true,
	"none of the above": true,
}

func validateMCQ(q *model.MCQQuestion, path string) error {
	if err := validateBase(&q.QuestionBase, path); err != nil {
		return err
	}
	if len(q.Options) < 2 {
		return util.NewSchemaViolation(path+".options", "must contain at least 2 options")
	}

	seen := make(map[string]bool, len(q.Options))
	catchAll := 0
	for i, opt := range q.Options {
		text := strings.TrimSpace(opt.Text)
		if text == "" {
			return util.NewSchemaViolation(fmt.Sprintf("%s.options[%d].text", path, i), "must be a non-empty string")
		}
		lower := strings.ToLower(text)
		if seen[lower] {
			return util.NewSchemaViolation(fmt.Sprintf("%s.options[%d]", path, i), "duplicate option text: "+text)
		}
		seen[lower] = true
		if catchAllOptions[lower] {
			catchAll++
		}
	}
	if catchAll > 1 {
		return util.NewSchemaViolation(path+".options", "at most one catch-all option is allowed")
	}

	if q.CorrectOptionIndex == nil {
		return util.NewSchemaViolation(path+".correct_option_index", "missing required field")
	}
	for _, opt := range q.Options {
		if opt.Index == *q.CorrectOptionIndex {
			return nil
		}
	}
	return util.NewSchemaViolation(path+".correct_option_index",
		fmt.Sprintf("index %d does not match any option", *q.CorrectOptionIndex))
}

func validateFTB(q *model.FTBQuestion, path string) error {
	if err := validateBase(&q.QuestionBase, path); err != nil {
		return err
	}
	if strings.TrimSpace(q.CorrectAnswer) == "" {
		return util.NewSchemaViolation(path+".correct_answer", "must be a non-empty string")
	}
	return nil
}

func validateMTF(q *model.MTFQuestion, path string) error {
	if err := validateBase(&q.QuestionBase, path); err != nil {
		return err
	}
	if len(q.Pairs) == 0 {
		return util.NewSchemaViolation(path+".pairs", "must contain at least 1 pair")
	}

	lefts := make(map[string]bool, len(q.Pairs))
	rights := make(map[string]bool, len(q.Pairs))
	for i, pair := range q.Pairs {
		left := strings.TrimSpace(pair.Left)
		right := strings.TrimSpace(pair.Right)
		if left == "" || right == "" {
			return util.NewSchemaViolation(fmt.Sprintf("%s.pairs[%d]", path, i), "left and right must be non-empty")
		}
		if lefts[strings.ToLower(left)] {
			return util.NewSchemaViolation(fmt.Sprintf("%s.pairs[%d].left", path, i), "duplicate entry: "+left)
		}
		if rights[strings.ToLower(right)] {
			return util.NewSchemaViolation(fmt.Sprintf("%s.pairs[%d].right", path, i), "duplicate entry: "+right)
		}
		lefts[strings.ToLower(left)] = true
		rights[strings.ToLower(right)] = true
	}
	return nil
}
