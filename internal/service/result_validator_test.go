package service

import (
	"course_assessment_backend/internal/util"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validReasoning() string {
	return `{
		"learning_objective_alignment": "maps to objective 1",
		"competency_alignment": {"kcm": {"area": "A", "theme": "T", "sub_theme": "S"}},
		"justification": "grounded in transcript",
		"relevance_percentage": 90
	}`
}

func validMCQ(id string) string {
	return fmt.Sprintf(`{
		"question_id": %q,
		"question_text": "What is X?",
		"blooms_level": "Apply",
		"difficulty_level": "Intermediate",
		"reasoning": %s,
		"options": [{"index": 0, "text": "alpha"}, {"index": 1, "text": "beta"}],
		"correct_option_index": 1
	}`, id, validReasoning())
}

func validPayload() json.RawMessage {
	return json.RawMessage(fmt.Sprintf(`{
		"blueprint": {
			"summary": "s",
			"learning_objectives": ["o1"],
			"competency_map": {},
			"time_appropriateness": "30 minutes"
		},
		"questions": {
			"mcq": [%s],
			"ftb": [{
				"question_id": "f1",
				"question_text": "Fill ___",
				"blooms_level": "Remember",
				"difficulty_level": "Beginner",
				"reasoning": %s,
				"correct_answer": "value"
			}],
			"mtf": []
		}
	}`, validMCQ("m1"), validReasoning()))
}

func TestValidateAcceptsWellFormedOutput(t *testing.T) {
	result, err := NewResultValidator().Validate(validPayload())
	require.NoError(t, err)
	assert.Equal(t, 2, result.Questions.TotalCount())
	assert.Equal(t, "m1", result.Questions.MCQ[0].QuestionID)
}

func TestValidateRejectsNonObject(t *testing.T) {
	_, err := NewResultValidator().Validate(json.RawMessage(`[1,2]`))
	requireViolationAt(t, err, "$")
}

func TestValidateRejectsMissingBlueprintKey(t *testing.T) {
	raw := json.RawMessage(`{
		"blueprint": {"summary": "s", "learning_objectives": [], "competency_map": {}},
		"questions": {"mcq": [], "ftb": [], "mtf": []}
	}`)
	_, err := NewResultValidator().Validate(raw)
	requireViolationAt(t, err, "blueprint.time_appropriateness")
}

func TestValidateRejectsMissingReasoning(t *testing.T) {
	raw := json.RawMessage(`{
		"blueprint": {"summary": "s", "learning_objectives": [], "competency_map": {}, "time_appropriateness": "x"},
		"questions": {
			"mcq": [],
			"ftb": [{"question_id": "f1", "question_text": "q", "blooms_level": "Remember", "difficulty_level": "Beginner", "correct_answer": "a"}],
			"mtf": []
		}
	}`)
	_, err := NewResultValidator().Validate(raw)
	requireViolationAt(t, err, "questions.ftb[0].reasoning")
}

func TestValidateRejectsOutOfRangeRelevanceWithoutClamping(t *testing.T) {
	reasoning := `{
		"learning_objective_alignment": "x",
		"competency_alignment": {"kcm": {"area": "A", "theme": "T", "sub_theme": "S"}},
		"justification": "y",
		"relevance_percentage": 150
	}`
	raw := json.RawMessage(fmt.Sprintf(`{
		"blueprint": {"summary": "s", "learning_objectives": [], "competency_map": {}, "time_appropriateness": "x"},
		"questions": {
			"mcq": [],
			"ftb": [{"question_id": "f1", "question_text": "q", "blooms_level": "Remember", "difficulty_level": "Beginner", "reasoning": %s, "correct_answer": "a"}],
			"mtf": []
		}
	}`, reasoning))
	_, err := NewResultValidator().Validate(raw)
	requireViolationAt(t, err, "questions.ftb[0].reasoning.relevance_percentage")
}

func TestValidateRejectsMCQViolations(t *testing.T) {
	cases := []struct {
		name     string
		mcq      string
		wantPath string
	}{
		{
			name: "too few options",
			mcq: fmt.Sprintf(`{"question_id": "m1", "question_text": "q", "blooms_level": "Apply", "difficulty_level": "Intermediate",
				"reasoning": %s, "options": [{"index": 0, "text": "only"}], "correct_option_index": 0}`, validReasoning()),
			wantPath: "questions.mcq[0].options",
		},
		{
			name: "duplicate option text",
			mcq: fmt.Sprintf(`{"question_id": "m1", "question_text": "q", "blooms_level": "Apply", "difficulty_level": "Intermediate",
				"reasoning": %s, "options": [{"index": 0, "text": "same"}, {"index": 1, "text": "same"}], "correct_option_index": 0}`, validReasoning()),
			wantPath: "questions.mcq[0].options[1]",
		},
		{
			name: "two catch-all options",
			mcq: fmt.Sprintf(`{"question_id": "m1", "question_text": "q", "blooms_level": "Apply", "difficulty_level": "Intermediate",
				"reasoning": %s, "options": [{"index": 0, "text": "All of the above"}, {"index": 1, "text": "None of the above"}, {"index": 2, "text": "x"}], "correct_option_index": 2}`, validReasoning()),
			wantPath: "questions.mcq[0].options",
		},
		{
			name: "missing correct index",
			mcq: fmt.Sprintf(`{"question_id": "m1", "question_text": "q", "blooms_level": "Apply", "difficulty_level": "Intermediate",
				"reasoning": %s, "options": [{"index": 0, "text": "a"}, {"index": 1, "text": "b"}]}`, validReasoning()),
			wantPath: "questions.mcq[0].correct_option_index",
		},
		{
			name: "correct index out of range",
			mcq: fmt.Sprintf(`{"question_id": "m1", "question_text": "q", "blooms_level": "Apply", "difficulty_level": "Intermediate",
				"reasoning": %s, "options": [{"index": 0, "text": "a"}, {"index": 1, "text": "b"}], "correct_option_index": 5}`, validReasoning()),
			wantPath: "questions.mcq[0].correct_option_index",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			raw := json.RawMessage(fmt.Sprintf(`{
				"blueprint": {"summary": "s", "learning_objectives": [], "competency_map": {}, "time_appropriateness": "x"},
				"questions": {"mcq": [%s], "ftb": [], "mtf": []}
			}`, tc.mcq))
			_, err := NewResultValidator().Validate(raw)
			requireViolationAt(t, err, tc.wantPath)
		})
	}
}

func TestValidateRejectsMTFViolations(t *testing.T) {
	cases := []struct {
		name     string
		pairs    string
		wantPath string
	}{
		{"no pairs", `[]`, "questions.mtf[0].pairs"},
		{"empty side", `[{"left": "", "right": "r"}]`, "questions.mtf[0].pairs[0]"},
		{"duplicate left", `[{"left": "a", "right": "r1"}, {"left": "a", "right": "r2"}]`, "questions.mtf[0].pairs[1].left"},
		{"duplicate right", `[{"left": "a", "right": "r"}, {"left": "b", "right": "r"}]`, "questions.mtf[0].pairs[1].right"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			raw := json.RawMessage(fmt.Sprintf(`{
				"blueprint": {"summary": "s", "learning_objectives": [], "competency_map": {}, "time_appropriateness": "x"},
				"questions": {"mcq": [], "ftb": [], "mtf": [{
					"question_id": "t1", "question_text": "match", "blooms_level": "Analyze", "difficulty_level": "Advanced",
					"reasoning": %s, "pairs": %s
				}]}
			}`, validReasoning(), tc.pairs))
			_, err := NewResultValidator().Validate(raw)
			requireViolationAt(t, err, tc.wantPath)
		})
	}
}

func requireViolationAt(t *testing.T, err error, path string) {
	t.Helper()
	require.Error(t, err)
	var violation *util.SchemaViolationError
	require.True(t, errors.As(err, &violation), "expected a schema violation, got %v", err)
	assert.Equal(t, path, violation.Path)
}
