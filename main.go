// @title 课程测评生成服务 API
// @version 1.0
// @description 基于课程素材的测评生成后端服务。

// @host localhost:8080
// @BasePath /api
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

package main

import (
	"course_assessment_backend/internal/app"
	"course_assessment_backend/internal/config"
	"course_assessment_backend/pkg/configwatcher"
	"course_assessment_backend/pkg/logger"
	"log"
)

func main() {
	cfg, err := config.LoadConfig("configs")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	application := app.NewApp(cfg)
	defer logger.Log.Sync()

	// 配置热更新：当前生效项是课程缓存 TTL，连接类配置需重启生效
	go configwatcher.WatchConfig("configs/config.yaml", cfg, func(newCfg interface{}) {
		if updated, ok := newCfg.(*config.Config); ok {
			application.ApplyConfig(updated)
			logger.Log.Info("Config reloaded")
		}
	})

	application.Run()
}
