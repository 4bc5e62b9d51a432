package controller

import (
	"course_assessment_backend/internal/util"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
)

type HealthController struct {
	DB    *gorm.DB
	Redis *redis.Client
}

func NewHealthController(db *gorm.DB, rdb *redis.Client) *HealthController {
	return &HealthController{DB: db, Redis: rdb}
}

// @Summary 健康检查
// @Description 检查服务与依赖状态
// @Tags 系统
// @Produce json
// @Success 200 {object} util.Response
// @Router /health [get]
func (c *HealthController) HealthCheck(ctx *gin.Context) {
	components := gin.H{"database": "up", "redis": "up"}
	healthy := true

	sqlDB, err := c.DB.DB()
	if err != nil || sqlDB.Ping() != nil {
		components["database"] = "down"
		healthy = false
	}

	if c.Redis == nil || c.Redis.Ping(ctx.Request.Context()).Err() != nil {
		components["redis"] = "down"
		healthy = false
	}

	if !healthy {
		util.Error(ctx, http.StatusServiceUnavailable, "Dependencies unavailable")
		return
	}

	util.Success(ctx, gin.H{
		"status":     "ok",
		"components": components,
	})
}
