package service

import (
	"context"
	"course_assessment_backend/internal/model"
	"course_assessment_backend/internal/util"
	"course_assessment_backend/pkg/logger"
	"course_assessment_backend/pkg/monitoring"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// JobStore 任务表的持久化操作，终态写入带 attempt 栅栏
type JobStore interface {
	CreateOrFetch(ctx context.Context, job *model.AssessmentJob) (*model.AssessmentJob, bool, error)
	Find(ctx context.Context, jobID string) (*model.AssessmentJob, error)
	Reset(ctx context.Context, jobID string, cfg model.JobConfig) (int, error)
	MarkInProgress(ctx context.Context, jobID string, attempt int) error
	Complete(ctx context.Context, jobID string, attempt int, result, usage json.RawMessage) error
	Fail(ctx context.Context, jobID string, attempt int, message string) error
}

// ContentAggregator 聚合课程素材与补充上传
type ContentAggregator interface {
	Aggregate(ctx context.Context, courseIDs []string, uploads []model.SourceDocument) ([]model.SourceDocument, error)
}

// AssessmentGenerator 生成模型调用
type AssessmentGenerator interface {
	Generate(ctx context.Context, prompt string) (json.RawMessage, json.RawMessage, error)
}

// JobLocker 同一任务在多副本间的互斥。持锁失败不等于任务可以丢弃，
// 调用方负责稍后重投
type JobLocker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) bool
	Release(key string)
}

const jobLockKeyPrefix = "assessment_job_lock:"

type redisJobLocker struct {
	rdb *redis.Client
}

func (l *redisJobLocker) Acquire(ctx context.Context, key string, ttl time.Duration) bool {
	ok, err := l.rdb.SetNX(ctx, key, 1, ttl).Result()
	if err != nil {
		logger.Log.Warn("job lock unavailable, proceeding on database guard alone", zap.Error(err))
		return true
	}
	return ok
}

func (l *redisJobLocker) Release(key string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := l.rdb.Del(ctx, key).Err(); err != nil {
		logger.Log.Warn("job lock release failed", zap.String("key", key), zap.Error(err))
	}
}

type generationTask struct {
	job     *model.AssessmentJob
	attempt int
	uploads []model.SourceDocument
}

// SubmitOutcome 提交的处理结果，供接口层决定响应语义
type SubmitOutcome struct {
	Job      *model.AssessmentJob
	Enqueued bool
}

// GenerationService 测评生成的编排核心：任务身份去重、状态机推进、
// 工作池调度和导出。同一身份同时只会有一个有效生成尝试
type GenerationService struct {
	Store     JobStore
	Collector ContentAggregator
	Generator AssessmentGenerator
	Prompt    *PromptBuilder
	Validator *ResultValidator
	Exporter  *ExportFormatter
	Locker    JobLocker

	timeout   time.Duration
	lockRetry time.Duration
	queue     chan generationTask
	wg        sync.WaitGroup
	done      chan struct{}
	mu        sync.RWMutex
	closed    bool
}

func NewGenerationService(
	store JobStore,
	collector ContentAggregator,
	generator AssessmentGenerator,
	prompt *PromptBuilder,
	rdb *redis.Client,
	timeout time.Duration,
	queueSize int,
) *GenerationService {
	if queueSize <= 0 {
		queueSize = 256
	}
	var locker JobLocker
	if rdb != nil {
		locker = &redisJobLocker{rdb: rdb}
	}
	return &GenerationService{
		Store:     store,
		Collector: collector,
		Generator: generator,
		Prompt:    prompt,
		Validator: NewResultValidator(),
		Exporter:  NewExportFormatter(),
		Locker:    locker,
		timeout:   timeout,
		lockRetry: 2 * time.Second,
		queue:     make(chan generationTask, queueSize),
		done:      make(chan struct{}),
	}
}

// Start 启动固定数量的生成工作协程
func (s *GenerationService) Start(workers int) {
	if workers <= 0 {
		workers = 1
	}
	for i := 0; i < workers; i++ {
		s.wg.Add(1)
		go s.worker()
	}
	logger.Log.Info("generation workers started", zap.Int("workers", workers))
}

// Stop 拒绝新任务、排空已入队的任务并等待工作协程退出。
// 队列通道不关闭，关停后的提交被丢弃而不是 panic
func (s *GenerationService) Stop() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	close(s.done)
	s.wg.Wait()
}

// Submit 幂等提交：
//   - 新身份：建 PENDING 记录并入队；
//   - 已有非 FAILED 任务且未强制：原样返回，不触发新的生成；
//   - FAILED 或 force=true：重置为 PENDING、递增 attempt 后重新入队
func (s *GenerationService) Submit(ctx context.Context, courseIDs []string, assessmentType model.AssessmentType, cfg model.JobConfig, uploads []model.SourceDocument, force bool) (*SubmitOutcome, error) {
	if !assessmentType.Valid() {
		return nil, util.ErrInvalidAssessmentType
	}
	normalized := NormalizeCourseIDs(courseIDs)
	if len(normalized) == 0 {
		return nil, util.ErrNoCourseIDs
	}

	jobID := ComputeJobID(normalized, assessmentType)
	candidate := &model.AssessmentJob{
		JobID:          jobID,
		CourseIDs:      normalized,
		AssessmentType: assessmentType,
		Config:         cfg,
		Status:         model.StatusPending,
		Attempt:        1,
	}

	job, created, err := s.Store.CreateOrFetch(ctx, candidate)
	if err != nil {
		return nil, err
	}

	if created {
		s.enqueue(generationTask{job: job, attempt: job.Attempt, uploads: uploads})
		return &SubmitOutcome{Job: job, Enqueued: true}, nil
	}

	if job.Status != model.StatusFailed && !force {
		// 相同身份的重复提交走快速路径，已有任务（含已完成结果）直接复用
		return &SubmitOutcome{Job: job, Enqueued: false}, nil
	}

	attempt, err := s.Store.Reset(ctx, jobID, cfg)
	if err != nil {
		return nil, err
	}
	job, err = s.Store.Find(ctx, jobID)
	if err != nil {
		return nil, err
	}
	s.enqueue(generationTask{job: job, attempt: attempt, uploads: uploads})
	return &SubmitOutcome{Job: job, Enqueued: true}, nil
}

// enqueue 提交不因队列满而阻塞调用方，溢出任务用独立协程兜底投递。
// 服务已关停时直接丢弃
func (s *GenerationService) enqueue(task generationTask) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		logger.Log.Warn("service stopping, dropping generation task",
			zap.String("jobId", task.job.JobID))
		return
	}

	select {
	case s.queue <- task:
	default:
		logger.Log.Warn("generation queue full, dispatching overflow task",
			zap.String("jobId", task.job.JobID))
		go func() {
			select {
			case s.queue <- task:
			case <-s.done:
			}
		}()
	}
}

func (s *GenerationService) worker() {
	defer s.wg.Done()
	for {
		select {
		case task := <-s.queue:
			s.process(task)
		case <-s.done:
			// 关停时排空已入队的任务再退出
			for {
				select {
				case task := <-s.queue:
					s.process(task)
				default:
					return
				}
			}
		}
	}
}

func (s *GenerationService) process(task generationTask) {
	jobID := task.job.JobID
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	// 多副本部署下用 Redis 锁兜底，单副本内靠数据库 CAS 已经足够。
	// 锁被占（旧 attempt 还在跑）时不丢任务，延迟后重新入队，
	// 哪个尝试最终生效由 attempt 栅栏决定
	if s.Locker != nil {
		if !s.Locker.Acquire(ctx, jobLockKeyPrefix+jobID, s.timeout) {
			logger.Log.Info("job lock held elsewhere, requeueing attempt",
				zap.String("jobId", jobID), zap.Int("attempt", task.attempt))
			time.AfterFunc(s.lockRetry, func() { s.enqueue(task) })
			return
		}
		defer s.Locker.Release(jobLockKeyPrefix + jobID)
	}

	if err := s.Store.MarkInProgress(ctx, jobID, task.attempt); err != nil {
		if errors.Is(err, util.ErrIdentityConflict) {
			logger.Log.Info("generation attempt superseded before start, discarding",
				zap.String("jobId", jobID), zap.Int("attempt", task.attempt))
			return
		}
		logger.Log.Error("failed to mark job in progress", zap.String("jobId", jobID), zap.Error(err))
		return
	}

	start := time.Now()
	logger.Log.Info("generation started",
		zap.String("jobId", jobID),
		zap.Int("attempt", task.attempt),
		zap.String("assessmentType", string(task.job.AssessmentType)))

	result, usage, err := s.generate(ctx, task)
	monitoring.JobDuration.WithLabelValues(string(task.job.AssessmentType)).Observe(time.Since(start).Seconds())

	if err != nil {
		s.failJob(jobID, task.attempt, err)
		return
	}

	if err := s.Store.Complete(context.Background(), jobID, task.attempt, result, usage); err != nil {
		if errors.Is(err, util.ErrIdentityConflict) {
			// 被更晚的强制重提顶替，本次结果按约定丢弃
			logger.Log.Info("completed attempt superseded by a forced resubmission, result discarded",
				zap.String("jobId", jobID), zap.Int("attempt", task.attempt))
			monitoring.JobCounter.WithLabelValues("superseded").Inc()
			return
		}
		logger.Log.Error("failed to persist completed job", zap.String("jobId", jobID), zap.Error(err))
		return
	}

	monitoring.JobCounter.WithLabelValues("completed").Inc()
	logger.Log.Info("generation completed",
		zap.String("jobId", jobID),
		zap.Int("attempt", task.attempt),
		zap.Duration("elapsed", time.Since(start)))
}

func (s *GenerationService) generate(ctx context.Context, task generationTask) (json.RawMessage, json.RawMessage, error) {
	docs, err := s.Collector.Aggregate(ctx, task.job.CourseIDs, task.uploads)
	if err != nil {
		return nil, nil, err
	}

	prompt := s.Prompt.Build(task.job, docs)
	raw, usage, err := s.Generator.Generate(ctx, prompt)
	if err != nil {
		return nil, nil, err
	}

	validated, err := s.Validator.Validate(raw)
	if err != nil {
		return nil, nil, err
	}

	result, err := json.Marshal(validated)
	if err != nil {
		return nil, nil, err
	}
	return result, usage, nil
}

func (s *GenerationService) failJob(jobID string, attempt int, cause error) {
	if err := s.Store.Fail(context.Background(), jobID, attempt, cause.Error()); err != nil {
		if errors.Is(err, util.ErrIdentityConflict) {
			logger.Log.Info("failed attempt superseded by a forced resubmission, error discarded",
				zap.String("jobId", jobID), zap.Int("attempt", attempt))
			monitoring.JobCounter.WithLabelValues("superseded").Inc()
			return
		}
		logger.Log.Error("failed to persist job failure", zap.String("jobId", jobID), zap.Error(err))
		return
	}
	monitoring.JobCounter.WithLabelValues("failed").Inc()
	logger.Log.Warn("generation failed", zap.String("jobId", jobID), zap.Int("attempt", attempt), zap.Error(cause))
}

// GetStatus 查询任务当前状态与已有结果
func (s *GenerationService) GetStatus(ctx context.Context, jobID string) (*model.AssessmentJob, error) {
	return s.Store.Find(ctx, jobID)
}

// ExportCSV 仅 COMPLETED 任务可导出，其余状态返回 ErrResultNotReady
func (s *GenerationService) ExportCSV(ctx context.Context, jobID string) ([]byte, error) {
	result, err := s.completedResult(ctx, jobID)
	if err != nil {
		return nil, err
	}
	return s.Exporter.ToCSV(result)
}

func (s *GenerationService) ExportJSON(ctx context.Context, jobID string) ([]byte, error) {
	result, err := s.completedResult(ctx, jobID)
	if err != nil {
		return nil, err
	}
	return s.Exporter.ToJSON(result)
}

func (s *GenerationService) completedResult(ctx context.Context, jobID string) (*model.AssessmentResult, error) {
	job, err := s.Store.Find(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.Status != model.StatusCompleted {
		return nil, util.ErrResultNotReady
	}

	var result model.AssessmentResult
	if err := json.Unmarshal(job.Result, &result); err != nil {
		return nil, err
	}
	return &result, nil
}
