package app

import (
	"context"
	"course_assessment_backend/internal/config"
	"course_assessment_backend/internal/controller"
	"course_assessment_backend/internal/repository"
	"course_assessment_backend/internal/service"
	"course_assessment_backend/pkg/database"
	"course_assessment_backend/pkg/logger"
	"course_assessment_backend/pkg/monitoring"
	"course_assessment_backend/pkg/security"
	"course_assessment_backend/pkg/tracing"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type App struct {
	Config   *config.Config
	Router   *gin.Engine
	DB       *gorm.DB
	Redis    *redis.Client
	services *services
}

type repositories struct {
	job *repository.AssessmentJobRepository
}

type services struct {
	storage    *service.StorageService
	provider   *service.PlatformCourseProvider
	collector  *service.ContentCollector
	genai      *service.GenAIService
	generation *service.GenerationService
}

type controllers struct {
	generation *controller.GenerationController
	health     *controller.HealthController
}

func (a *App) initRepositories(db *gorm.DB) *repositories {
	return &repositories{
		job: repository.NewAssessmentJobRepository(db),
	}
}

func (a *App) initServices(repos *repositories, cfg *config.Config, rdb *redis.Client) *services {
	s := &services{}

	s.storage = service.NewStorageService(cfg)
	s.provider = service.NewPlatformCourseProvider(cfg.Provider, rdb)
	s.collector = service.NewContentCollector(s.provider)
	s.genai = service.NewGenAIService(cfg.GenAI)
	s.generation = service.NewGenerationService(
		repos.job,
		s.collector,
		s.genai,
		service.NewPromptBuilder(cfg.GenAI.KCMDatasetPath),
		rdb,
		cfg.GenAI.Timeout,
		cfg.Generation.QueueSize,
	)
	s.generation.Start(cfg.Generation.Workers)

	return s
}

func (a *App) initControllers(s *services, db *gorm.DB, rdb *redis.Client) *controllers {
	return &controllers{
		generation: controller.NewGenerationController(s.generation, s.collector, s.storage),
		health:     controller.NewHealthController(db, rdb),
	}
}

func (a *App) setupMiddlewares(router *gin.Engine, cfg *config.Config) {
	router.Use(security.CORS(cfg.CORS.AllowedOrigins))
	router.Use(security.Secure())

	maxRequests := cfg.RateLimit.MaxRequests
	if maxRequests <= 0 {
		maxRequests = 100000
	}
	window := time.Duration(cfg.RateLimit.WindowMinutes) * time.Minute
	if window <= 0 {
		window = time.Minute
	}
	router.Use(security.RateLimiter(maxRequests, window))

	// 分布式追踪中间件
	if cfg.Tracing.Enabled {
		router.Use(tracing.GinMiddleware())
	}

	router.Use(monitoring.MetricsMiddleware())
}

func NewApp(cfg *config.Config) *App {
	logger.InitLogger(cfg)

	logger.Log.Info("Logger initialized successfully")

	db, err := database.InitDB(&cfg.Database)
	if err != nil {
		logger.Log.Fatal("Failed to initialize database", zap.Error(err))
		log.Fatalf("Failed to initialize database: %v", err)
	}

	rdb, err := database.InitRedis(&cfg.Redis)
	if err != nil {
		logger.Log.Fatal("Failed to initialize redis", zap.Error(err))
		log.Fatalf("Failed to initialize redis: %v", err)
	}

	app := &App{
		Config: cfg,
		DB:     db,
		Redis:  rdb,
	}

	repos := app.initRepositories(db)
	services := app.initServices(repos, cfg, rdb)
	app.services = services
	controllers := app.initControllers(services, db, rdb)

	// 监控初始化
	monitoring.Init()

	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.Default()
	app.Router = router

	app.setupMiddlewares(router, cfg)

	if cfg.Tracing.Enabled {
		if _, err := tracing.InitTracer("assessment-generator", cfg.Tracing.CollectorEndpoint); err != nil {
			logger.Log.Fatal("Failed to initialize tracing", zap.Error(err))
		}
	}

	app.registerRoutes(router, controllers, cfg)

	if cfg.Storage.Type == "local" {
		router.Static("/uploads", cfg.Storage.LocalPath)
	}

	return app
}

// ApplyConfig 应用支持热更新的运行期参数，连接类配置需重启生效
func (a *App) ApplyConfig(newCfg *config.Config) {
	a.Config.Provider.CacheTTL = newCfg.Provider.CacheTTL
	if a.services != nil && a.services.provider != nil {
		a.services.provider.SetCacheTTL(newCfg.Provider.CacheTTL)
	}
}

func (a *App) Run() {
	srv := &http.Server{
		Addr:    ":" + a.Config.Server.Port,
		Handler: a.Router,
	}

	// 启动服务器
	go func() {
		log.Printf("Server running on port %s", a.Config.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %s\n", err)
		}
	}()

	// 等待中断信号优雅地关闭服务器（设置5秒的超时时间）
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	// 先停 HTTP 再停工作池：关停窗口内到达的提交不会撞上已关闭的队列
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	// 排空已入队的生成任务，等待在途任务落库
	if a.services != nil && a.services.generation != nil {
		a.services.generation.Stop()
	}

	log.Println("Server exiting")
}
