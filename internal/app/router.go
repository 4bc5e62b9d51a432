package app

import (
	"course_assessment_backend/docs"
	"course_assessment_backend/internal/config"
	"course_assessment_backend/internal/middleware"
	"course_assessment_backend/pkg/monitoring"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

func (a *App) registerRoutes(router *gin.Engine, c *controllers, cfg *config.Config) {
	docs.SwaggerInfo.BasePath = "/api"
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler, ginSwagger.URL("/swagger/doc.json")))

	router.GET("/metrics", monitoring.PrometheusHandler())

	// 公共路由(无需鉴权)
	public := router.Group("/api")
	{
		public.GET("/health", c.health.HealthCheck)
	}

	// 测评生成接口
	authGroup := router.Group("/api")
	authGroup.Use(middleware.AuthMiddleware(cfg))
	{
		assessments := authGroup.Group("/assessments")
		{
			assessments.POST("/generate", c.generation.Generate)
			assessments.GET("/:jobId/status", c.generation.Status)
			assessments.GET("/:jobId/export/csv", c.generation.ExportCSV)
			assessments.GET("/:jobId/export/json", c.generation.ExportJSON)
		}
	}
}
