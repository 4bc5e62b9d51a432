package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	JWT        JWTConfig
	Storage    StorageConfig
	Tracing    TracingConfig `mapstructure:"tracing"`
	Redis      RedisConfig
	GenAI      GenAIConfig      `mapstructure:"genai"`
	Provider   ProviderConfig   `mapstructure:"provider"`
	Generation GenerationConfig `mapstructure:"generation"`
	CORS       CORSConfig       `mapstructure:"cors"`
	RateLimit  RateLimitConfig  `mapstructure:"rate_limit"`
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type RateLimitConfig struct {
	MaxRequests   int `mapstructure:"max_requests"`
	WindowMinutes int `mapstructure:"window_minutes"`
}

// GenAIConfig 外部生成模型（OpenAI 兼容接口）
type GenAIConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	APIKey         string        `mapstructure:"api_key"`
	Model          string        `mapstructure:"model"`
	Timeout        time.Duration `mapstructure:"timeout_seconds"`
	KCMDatasetPath string        `mapstructure:"kcm_dataset_path"`
}

// ProviderConfig 课程内容平台
type ProviderConfig struct {
	SearchURL string        `mapstructure:"search_url"`
	StatsURL  string        `mapstructure:"stats_url"`
	APIKey    string        `mapstructure:"api_key"`
	Timeout   time.Duration `mapstructure:"timeout_seconds"`
	CacheTTL  time.Duration `mapstructure:"cache_ttl_minutes"`
}

// GenerationConfig 生成任务调度
type GenerationConfig struct {
	Workers   int `mapstructure:"workers"`
	QueueSize int `mapstructure:"queue_size"`
}

type ServerConfig struct {
	Port string
	Mode string
}

type DatabaseConfig struct {
	Host      string
	Port      int
	User      string
	Password  string
	DBName    string
	Charset   string
	ParseTime bool
}

type JWTConfig struct {
	Secret     string        `mapstructure:"secret"`
	ExpireTime time.Duration `mapstructure:"expire_hours"`
}

type StorageConfig struct {
	Type          string `mapstructure:"type"`
	LocalPath     string `mapstructure:"local_path"`
	MinioEndpoint string `mapstructure:"minio_endpoint"`
	MinioAccessID string `mapstructure:"minio_access_key"`
	MinioSecret   string `mapstructure:"minio_secret_key"`
	MinioBucket   string `mapstructure:"minio_bucket"`
}

type TracingConfig struct {
	Enabled           bool   `mapstructure:"enabled"`
	CollectorEndpoint string `mapstructure:"collector_endpoint"`
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

func LoadConfig(path string) (*Config, error) {
	viper.AddConfigPath(path)
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	viper.SetEnvPrefix("ASSESSMENT_GEN")
	viper.AutomaticEnv()

	// Database
	viper.BindEnv("database.host", "DATABASE_HOST")
	viper.BindEnv("database.port", "DATABASE_PORT")
	viper.BindEnv("database.user", "DATABASE_USER")
	viper.BindEnv("database.password", "DATABASE_PASSWORD")
	viper.BindEnv("database.dbname", "DATABASE_NAME")

	// JWT
	viper.BindEnv("jwt.secret", "JWT_SECRET")

	// Redis
	viper.BindEnv("redis.host", "REDIS_HOST")
	viper.BindEnv("redis.port", "REDIS_PORT")
	viper.BindEnv("redis.password", "REDIS_PASSWORD")

	// Server
	viper.BindEnv("server.mode", "SERVER_MODE")

	// GenAI
	viper.BindEnv("genai.base_url", "GENAI_BASE_URL")
	viper.BindEnv("genai.api_key", "GENAI_API_KEY")
	viper.BindEnv("genai.model", "GENAI_MODEL")

	// Content provider
	viper.BindEnv("provider.search_url", "PROVIDER_SEARCH_URL")
	viper.BindEnv("provider.stats_url", "PROVIDER_STATS_URL")
	viper.BindEnv("provider.api_key", "PROVIDER_API_KEY")

	// Storage
	viper.BindEnv("storage.type", "STORAGE_TYPE")
	viper.BindEnv("storage.minio_endpoint", "MINIO_ENDPOINT")
	viper.BindEnv("storage.minio_access_key", "MINIO_ACCESS_KEY")
	viper.BindEnv("storage.minio_secret_key", "MINIO_SECRET_KEY")
	viper.BindEnv("storage.minio_bucket", "MINIO_BUCKET")

	// Tracing
	viper.BindEnv("tracing.enabled", "TRACING_ENABLED")
	viper.BindEnv("tracing.collector_endpoint", "TRACING_COLLECTOR_ENDPOINT")

	if err := viper.ReadInConfig(); err != nil {
		return nil, err
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	cfg.JWT.ExpireTime = cfg.JWT.ExpireTime * time.Hour
	cfg.GenAI.Timeout = cfg.GenAI.Timeout * time.Second
	cfg.Provider.Timeout = cfg.Provider.Timeout * time.Second
	cfg.Provider.CacheTTL = cfg.Provider.CacheTTL * time.Minute

	if cfg.GenAI.Timeout <= 0 {
		cfg.GenAI.Timeout = 120 * time.Second
	}
	if cfg.Provider.Timeout <= 0 {
		cfg.Provider.Timeout = 30 * time.Second
	}
	if cfg.Provider.CacheTTL <= 0 {
		cfg.Provider.CacheTTL = time.Hour
	}
	if cfg.Generation.Workers <= 0 {
		cfg.Generation.Workers = 4
	}
	if cfg.Generation.QueueSize <= 0 {
		cfg.Generation.QueueSize = 256
	}

	// 生产环境校验 JWT Secret 强度
	if cfg.Server.Mode == "release" && len(cfg.JWT.Secret) < 32 {
		return nil, fmt.Errorf("JWT secret is too short (%d chars), must be at least 32 characters in release mode", len(cfg.JWT.Secret))
	}

	if cfg.Storage.Type == "local" {
		if _, err := os.Stat(cfg.Storage.LocalPath); os.IsNotExist(err) {
			os.MkdirAll(cfg.Storage.LocalPath, 0755)
		}
	}

	return &cfg, nil
}
