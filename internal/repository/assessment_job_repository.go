package repository

import (
	"context"
	"course_assessment_backend/internal/model"
	"course_assessment_backend/internal/util"
	"encoding/json"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type AssessmentJobRepository struct {
	DB *gorm.DB
}

func NewAssessmentJobRepository(db *gorm.DB) *AssessmentJobRepository {
	return &AssessmentJobRepository{DB: db}
}

// CreateOrFetch 原子的"取或建"：两个并发提交竞争同一个新身份时，
// 只有一方真正插入记录，另一方拿到已存在的任务
func (r *AssessmentJobRepository) CreateOrFetch(ctx context.Context, job *model.AssessmentJob) (*model.AssessmentJob, bool, error) {
	res := r.DB.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(job)
	if res.Error != nil {
		return nil, false, fmt.Errorf("%w: %v", util.ErrStoreUnavailable, res.Error)
	}
	if res.RowsAffected > 0 {
		return job, true, nil
	}

	existing, err := r.Find(ctx, job.JobID)
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

func (r *AssessmentJobRepository) Find(ctx context.Context, jobID string) (*model.AssessmentJob, error) {
	var job model.AssessmentJob
	err := r.DB.WithContext(ctx).First(&job, "job_id = ?", jobID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, util.ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", util.ErrStoreUnavailable, err)
	}
	return &job, nil
}

// Reset 失败重提或强制重提：回到 PENDING 并递增 attempt。
// 旧 attempt 的终态写入之后会被 attempt 栅栏丢弃（最后一次强制提交获胜）
func (r *AssessmentJobRepository) Reset(ctx context.Context, jobID string, cfg model.JobConfig) (int, error) {
	attempt := 0
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var job model.AssessmentJob
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&job, "job_id = ?", jobID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return util.ErrJobNotFound
			}
			return err
		}

		job.Status = model.StatusPending
		job.Attempt++
		job.Config = cfg
		job.Result = nil
		job.TokenUsage = nil
		job.ErrorMessage = ""
		attempt = job.Attempt

		return tx.Save(&job).Error
	})
	if err != nil {
		return 0, err
	}
	return attempt, nil
}

// MarkInProgress CAS：仅当仍处于 PENDING 且 attempt 未被强制重提顶替时生效
func (r *AssessmentJobRepository) MarkInProgress(ctx context.Context, jobID string, attempt int) error {
	res := r.DB.WithContext(ctx).Model(&model.AssessmentJob{}).
		Where("job_id = ? AND status = ? AND attempt = ?", jobID, model.StatusPending, attempt).
		Update("status", model.StatusInProgress)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return util.ErrIdentityConflict
	}
	return nil
}

// Complete 结果与终态一次性写入，读者不会看到半成品结果
func (r *AssessmentJobRepository) Complete(ctx context.Context, jobID string, attempt int, result, usage json.RawMessage) error {
	res := r.DB.WithContext(ctx).Model(&model.AssessmentJob{}).
		Where("job_id = ? AND status = ? AND attempt = ?", jobID, model.StatusInProgress, attempt).
		Updates(map[string]interface{}{
			"status":        model.StatusCompleted,
			"result":        []byte(result),
			"token_usage":   []byte(usage),
			"error_message": "",
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return util.ErrIdentityConflict
	}
	return nil
}

// Fail 错误信息按原文记录在任务上
func (r *AssessmentJobRepository) Fail(ctx context.Context, jobID string, attempt int, message string) error {
	res := r.DB.WithContext(ctx).Model(&model.AssessmentJob{}).
		Where("job_id = ? AND status = ? AND attempt = ?", jobID, model.StatusInProgress, attempt).
		Updates(map[string]interface{}{
			"status":        model.StatusFailed,
			"error_message": message,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return util.ErrIdentityConflict
	}
	return nil
}
