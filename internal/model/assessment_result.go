package model

import "encoding/json"

// AssessmentResult 校验通过后的模型结构化输出。
// blueprint 部分除必需键外视为不透明 JSON，原样透传
type AssessmentResult struct {
	Blueprint json.RawMessage `json:"blueprint"`
	Questions QuestionSet     `json:"questions"`
}

type QuestionSet struct {
	MCQ []MCQQuestion `json:"mcq"`
	FTB []FTBQuestion `json:"ftb"`
	MTF []MTFQuestion `json:"mtf"`
}

// TotalCount 三种题型的总题数
func (q QuestionSet) TotalCount() int {
	return len(q.MCQ) + len(q.FTB) + len(q.MTF)
}

// QuestionBase 各题型共享字段
type QuestionBase struct {
	QuestionID      string     `json:"question_id"`
	QuestionText    string     `json:"question_text"`
	BloomsLevel     string     `json:"blooms_level"`
	DifficultyLevel string     `json:"difficulty_level"`
	Reasoning       *Reasoning `json:"reasoning"`
}

type MCQOption struct {
	Index int    `json:"index"`
	Text  string `json:"text"`
}

type MCQQuestion struct {
	QuestionBase
	Options            []MCQOption `json:"options"`
	CorrectOptionIndex *int        `json:"correct_option_index"`
}

type FTBQuestion struct {
	QuestionBase
	CorrectAnswer string `json:"correct_answer"`
}

type MTFPair struct {
	Left  string `json:"left"`
	Right string `json:"right"`
}

type MTFQuestion struct {
	QuestionBase
	Pairs []MTFPair `json:"pairs"`
}

// Reasoning 每道题强制携带的论证块，用于审计对齐
type Reasoning struct {
	LearningObjectiveAlignment string              `json:"learning_objective_alignment"`
	CompetencyAlignment        CompetencyAlignment `json:"competency_alignment"`
	Justification              string              `json:"justification"`
	RelevancePercentage        *float64            `json:"relevance_percentage"`
}

// CompetencyAlignment 题目与权威能力框架的映射
type CompetencyAlignment struct {
	KCM KCMRef `json:"kcm"`
}

type KCMRef struct {
	Area     string `json:"area"`
	Theme    string `json:"theme"`
	SubTheme string `json:"sub_theme"`
}
