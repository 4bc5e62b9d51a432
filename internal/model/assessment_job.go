package model

import (
	"encoding/json"
	"time"
)

// JobStatus 任务生命周期状态
type JobStatus string

const (
	StatusPending    JobStatus = "PENDING"
	StatusInProgress JobStatus = "IN_PROGRESS"
	StatusCompleted  JobStatus = "COMPLETED"
	StatusFailed     JobStatus = "FAILED"
)

// IsTerminal 终态不会再被自动流转，只能通过强制重新提交回到 PENDING
func (s JobStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// CanTransitionTo 状态机约束：PENDING → IN_PROGRESS → COMPLETED/FAILED，
// FAILED → PENDING 仅限强制重新提交，不允许跳级
func (s JobStatus) CanTransitionTo(next JobStatus) bool {
	switch s {
	case StatusPending:
		return next == StatusInProgress
	case StatusInProgress:
		return next == StatusCompleted || next == StatusFailed
	case StatusFailed:
		return next == StatusPending
	default:
		return false
	}
}

// AssessmentType 测评类型
type AssessmentType string

const (
	TypePractice      AssessmentType = "practice"
	TypeFinal         AssessmentType = "final"
	TypeComprehensive AssessmentType = "comprehensive"
)

func (t AssessmentType) Valid() bool {
	switch t {
	case TypePractice, TypeFinal, TypeComprehensive:
		return true
	}
	return false
}

// JobConfig 生成配置，在接口边界解析为类型化字段后传入核心
type JobConfig struct {
	Difficulty     string         `json:"difficulty"`
	Language       string         `json:"language"`
	MCQCount       int            `json:"mcqCount"`
	FTBCount       int            `json:"ftbCount"`
	MTFCount       int            `json:"mtfCount"`
	BloomsWeights  map[string]int `json:"bloomsWeights,omitempty"`
	PriorityTopics []string       `json:"priorityTopics,omitempty"`
	Instructions   string         `json:"instructions,omitempty"`
	TimeToComplete string         `json:"timeToComplete,omitempty"`
}

// TotalQuestions 三种题型的请求总数
func (c JobConfig) TotalQuestions() int {
	return c.MCQCount + c.FTBCount + c.MTFCount
}

// swagger:model AssessmentJob
type AssessmentJob struct {
	JobID          string          `gorm:"primaryKey;size:191" json:"jobId"`
	CourseIDs      []string        `gorm:"serializer:json;type:json" json:"courseIds"`
	AssessmentType AssessmentType  `gorm:"size:20;not null" json:"assessmentType"`
	Config         JobConfig       `gorm:"serializer:json;type:json" json:"config"`
	Status         JobStatus       `gorm:"size:20;not null;index" json:"status"`
	Attempt        int             `gorm:"not null;default:1" json:"-"`
	Result         json.RawMessage `gorm:"type:json" json:"result,omitempty"`
	TokenUsage     json.RawMessage `gorm:"type:json" json:"tokenUsage,omitempty"`
	ErrorMessage   string          `gorm:"type:text" json:"error,omitempty"`
	CreatedAt      time.Time       `json:"createdAt"`
	UpdatedAt      time.Time       `json:"updatedAt"`
}

func (AssessmentJob) TableName() string {
	return "assessment_jobs"
}
