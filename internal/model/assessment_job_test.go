package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatusTransitions(t *testing.T) {
	cases := []struct {
		from    JobStatus
		to      JobStatus
		allowed bool
	}{
		{StatusPending, StatusInProgress, true},
		{StatusPending, StatusCompleted, false},
		{StatusPending, StatusFailed, false},
		{StatusInProgress, StatusCompleted, true},
		{StatusInProgress, StatusFailed, true},
		{StatusInProgress, StatusPending, false},
		{StatusCompleted, StatusPending, false},
		{StatusCompleted, StatusInProgress, false},
		{StatusFailed, StatusPending, true},
		{StatusFailed, StatusInProgress, false},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.allowed, tc.from.CanTransitionTo(tc.to),
			"%s -> %s", tc.from, tc.to)
	}
}

func TestIsTerminal(t *testing.T) {
	assert.False(t, StatusPending.IsTerminal())
	assert.False(t, StatusInProgress.IsTerminal())
	assert.True(t, StatusCompleted.IsTerminal())
	assert.True(t, StatusFailed.IsTerminal())
}

func TestAssessmentTypeValid(t *testing.T) {
	assert.True(t, TypePractice.Valid())
	assert.True(t, TypeFinal.Valid())
	assert.True(t, TypeComprehensive.Valid())
	assert.False(t, AssessmentType("quiz").Valid())
	assert.False(t, AssessmentType("").Valid())
}

func TestJobConfigTotalQuestions(t *testing.T) {
	cfg := JobConfig{MCQCount: 10, FTBCount: 5, MTFCount: 3}
	assert.Equal(t, 18, cfg.TotalQuestions())
}
