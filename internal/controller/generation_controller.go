package controller

import (
	"course_assessment_backend/internal/model"
	"course_assessment_backend/internal/service"
	"course_assessment_backend/internal/util"
	"course_assessment_backend/pkg/logger"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type GenerationController struct {
	Service   *service.GenerationService
	Collector *service.ContentCollector
	Storage   *service.StorageService
}

func NewGenerationController(svc *service.GenerationService, collector *service.ContentCollector, storage *service.StorageService) *GenerationController {
	return &GenerationController{Service: svc, Collector: collector, Storage: storage}
}

// JobStatusResponse 状态查询响应体
type JobStatusResponse struct {
	JobID          string          `json:"jobId"`
	CourseIDs      []string        `json:"courseIds"`
	AssessmentType string          `json:"assessmentType"`
	Status         string          `json:"status"`
	Result         json.RawMessage `json:"result,omitempty"`
	TokenUsage     json.RawMessage `json:"tokenUsage,omitempty"`
	ErrorMessage   string          `json:"errorMessage,omitempty"`
	CreatedAt      time.Time       `json:"createdAt"`
	UpdatedAt      time.Time       `json:"updatedAt"`
}

func jobResponse(job *model.AssessmentJob) JobStatusResponse {
	return JobStatusResponse{
		JobID:          job.JobID,
		CourseIDs:      job.CourseIDs,
		AssessmentType: string(job.AssessmentType),
		Status:         string(job.Status),
		Result:         job.Result,
		TokenUsage:     job.TokenUsage,
		ErrorMessage:   job.ErrorMessage,
		CreatedAt:      job.CreatedAt,
		UpdatedAt:      job.UpdatedAt,
	}
}

// @Summary 提交测评生成任务
// @Tags 测评生成
// @Accept multipart/form-data
// @Produce json
// @Security BearerAuth
// @Param courseIds formData string true "课程ID，逗号分隔"
// @Param assessmentType formData string true "测评类型 practice/final/comprehensive"
// @Param force formData bool false "强制重新生成"
// @Param difficulty formData string false "难度，默认 Intermediate"
// @Param language formData string false "输出语言，默认 English"
// @Param mcqCount formData int false "选择题数量"
// @Param ftbCount formData int false "填空题数量"
// @Param mtfCount formData int false "连线题数量"
// @Param bloomsWeights formData string false "布卢姆层级权重 JSON"
// @Param priorityTopics formData string false "优先主题，逗号分隔"
// @Param instructions formData string false "附加说明"
// @Param timeToComplete formData string false "预期作答时长"
// @Param files formData file false "补充素材（PDF/VTT/文本）"
// @Success 202 {object} util.Response
// @Router /api/assessments/generate [post]
func (c *GenerationController) Generate(ctx *gin.Context) {
	courseIDs := splitAndTrim(ctx.PostForm("courseIds"))
	if len(courseIDs) == 0 {
		util.BadRequest(ctx, util.ErrNoCourseIDs.Error())
		return
	}

	assessmentType := model.AssessmentType(strings.TrimSpace(ctx.PostForm("assessmentType")))
	if !assessmentType.Valid() {
		util.BadRequest(ctx, util.ErrInvalidAssessmentType.Error())
		return
	}

	cfg, err := parseJobConfig(ctx)
	if err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	force, _ := strconv.ParseBool(ctx.PostForm("force"))

	uploads, err := c.collectUploads(ctx)
	if err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	outcome, err := c.Service.Submit(ctx.Request.Context(), courseIDs, assessmentType, cfg, uploads, force)
	if err != nil {
		switch {
		case errors.Is(err, util.ErrInvalidAssessmentType), errors.Is(err, util.ErrNoCourseIDs):
			util.BadRequest(ctx, err.Error())
		case errors.Is(err, util.ErrStoreUnavailable):
			util.Error(ctx, http.StatusServiceUnavailable, err.Error())
		default:
			util.LogInternalError(ctx, err)
		}
		return
	}

	if outcome.Enqueued {
		util.Accepted(ctx, jobResponse(outcome.Job))
		return
	}
	// 身份相同的重复提交：直接返回已有任务，不触发新的生成
	util.Success(ctx, jobResponse(outcome.Job))
}

// @Summary 查询任务状态
// @Tags 测评生成
// @Produce json
// @Security BearerAuth
// @Param jobId path string true "任务ID"
// @Success 200 {object} util.Response
// @Router /api/assessments/{jobId}/status [get]
func (c *GenerationController) Status(ctx *gin.Context) {
	job, err := c.Service.GetStatus(ctx.Request.Context(), ctx.Param("jobId"))
	if err != nil {
		if errors.Is(err, util.ErrJobNotFound) {
			util.NotFound(ctx)
			return
		}
		util.LogInternalError(ctx, err)
		return
	}
	util.Success(ctx, jobResponse(job))
}

// @Summary 导出测评结果 CSV
// @Tags 测评生成
// @Produce text/csv
// @Security BearerAuth
// @Param jobId path string true "任务ID"
// @Success 200 {file} file
// @Router /api/assessments/{jobId}/export/csv [get]
func (c *GenerationController) ExportCSV(ctx *gin.Context) {
	jobID := ctx.Param("jobId")
	data, err := c.Service.ExportCSV(ctx.Request.Context(), jobID)
	if err != nil {
		c.exportError(ctx, err)
		return
	}

	filename := fmt.Sprintf("%s.csv", jobID)
	c.persistArtifact(ctx, filename, data, "text/csv")
	ctx.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	ctx.Data(http.StatusOK, "text/csv; charset=utf-8", data)
}

// @Summary 导出测评结果 JSON
// @Tags 测评生成
// @Produce json
// @Security BearerAuth
// @Param jobId path string true "任务ID"
// @Success 200 {file} file
// @Router /api/assessments/{jobId}/export/json [get]
func (c *GenerationController) ExportJSON(ctx *gin.Context) {
	jobID := ctx.Param("jobId")
	data, err := c.Service.ExportJSON(ctx.Request.Context(), jobID)
	if err != nil {
		c.exportError(ctx, err)
		return
	}

	filename := fmt.Sprintf("%s.json", jobID)
	c.persistArtifact(ctx, filename, data, "application/json")
	ctx.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	ctx.Data(http.StatusOK, "application/json; charset=utf-8", data)
}

func (c *GenerationController) exportError(ctx *gin.Context, err error) {
	switch {
	case errors.Is(err, util.ErrJobNotFound):
		util.NotFound(ctx)
	case errors.Is(err, util.ErrResultNotReady):
		util.Conflict(ctx, err.Error())
	default:
		util.LogInternalError(ctx, err)
	}
}

// persistArtifact 导出产物顺带归档到对象存储，失败只记日志不影响下载
func (c *GenerationController) persistArtifact(ctx *gin.Context, filename string, data []byte, contentType string) {
	if c.Storage == nil {
		return
	}
	key := "exports/" + filename
	if _, err := c.Storage.UploadBytes(ctx.Request.Context(), key, data, contentType); err != nil {
		logger.Log.Warn("failed to archive export artifact", zap.String("key", key), zap.Error(err))
	}
}

func (c *GenerationController) collectUploads(ctx *gin.Context) ([]model.SourceDocument, error) {
	form, err := ctx.MultipartForm()
	if err != nil {
		if errors.Is(err, http.ErrNotMultipart) {
			return nil, nil
		}
		return nil, err
	}

	var uploads []model.SourceDocument
	for _, fh := range form.File["files"] {
		f, err := fh.Open()
		if err != nil {
			return nil, fmt.Errorf("open upload %s: %w", fh.Filename, err)
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("read upload %s: %w", fh.Filename, err)
		}

		doc, err := c.Collector.NormalizeUpload(fh.Filename, data)
		if err != nil {
			return nil, err
		}
		uploads = append(uploads, doc)

		if c.Storage != nil {
			// 归档键带随机前缀，避免不同提交的同名文件互相覆盖
			key := "materials/" + uuid.New().String() + "_" + fh.Filename
			if _, err := c.Storage.UploadBytes(ctx.Request.Context(), key, data, fh.Header.Get("Content-Type")); err != nil {
				logger.Log.Warn("failed to archive uploaded material", zap.String("key", key), zap.Error(err))
			}
		}
	}
	return uploads, nil
}

func parseJobConfig(ctx *gin.Context) (model.JobConfig, error) {
	cfg := model.JobConfig{
		Difficulty:     ctx.DefaultPostForm("difficulty", "Intermediate"),
		Language:       ctx.DefaultPostForm("language", "English"),
		Instructions:   ctx.PostForm("instructions"),
		TimeToComplete: ctx.PostForm("timeToComplete"),
		PriorityTopics: splitAndTrim(ctx.PostForm("priorityTopics")),
	}

	var err error
	if cfg.MCQCount, err = parseCount(ctx.PostForm("mcqCount"), 10); err != nil {
		return cfg, fmt.Errorf("mcqCount: %w", err)
	}
	if cfg.FTBCount, err = parseCount(ctx.PostForm("ftbCount"), 5); err != nil {
		return cfg, fmt.Errorf("ftbCount: %w", err)
	}
	if cfg.MTFCount, err = parseCount(ctx.PostForm("mtfCount"), 3); err != nil {
		return cfg, fmt.Errorf("mtfCount: %w", err)
	}

	if raw := ctx.PostForm("bloomsWeights"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &cfg.BloomsWeights); err != nil {
			return cfg, fmt.Errorf("bloomsWeights must be a JSON object of level to percentage: %w", err)
		}
	}
	return cfg, nil
}

func parseCount(raw string, fallback int) (int, error) {
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("must be an integer")
	}
	if n < 0 {
		return 0, fmt.Errorf("must be non-negative")
	}
	return n, nil
}

func splitAndTrim(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
