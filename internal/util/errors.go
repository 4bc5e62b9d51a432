package util

import (
	"errors"
	"fmt"
)

var (
	ErrJobNotFound           = errors.New("job not found")
	ErrInvalidAssessmentType = errors.New("invalid assessment type")
	ErrNoCourseIDs           = errors.New("at least one course id is required")
	ErrResultNotReady        = errors.New("ResultNotReady: assessment result is not available yet")
	ErrNoContentAvailable    = errors.New("NoContentAvailable: no usable grounding text from any source")
	ErrGenerationTimeout     = errors.New("GenerationTimeout: generation call exceeded the configured time limit")
	ErrStoreUnavailable      = errors.New("StoreUnavailable: durable store unreachable")
	ErrIdentityConflict      = errors.New("IdentityConflict: attempt superseded by a forced resubmission")
)

// SchemaViolationError 模型输出不符合约定结构，Path 指向首个违规字段
type SchemaViolationError struct {
	Path   string
	Reason string
}

func (e *SchemaViolationError) Error() string {
	return fmt.Sprintf("SchemaViolation at %s: %s", e.Path, e.Reason)
}

func NewSchemaViolation(path, reason string) *SchemaViolationError {
	return &SchemaViolationError{Path: path, Reason: reason}
}
