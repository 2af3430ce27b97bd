package config

import (
	"errors"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database DatabaseConfig
	Redis    RedisConfig
	JWT      JWTConfig
	CORS     CORSConfig
	Log      LogConfig
	Uploads  UploadsConfig
	Admin    AdminConfig
	AIReview AIReviewConfig
	Janitor  JanitorConfig
	Cache    CacheConfig
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
}

type JWTConfig struct {
	Secret     string
	Expiration time.Duration
	Issuer     string
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// UploadsConfig governs student image uploads and their on-disk location.
type UploadsConfig struct {
	Enabled        bool
	Dir            string
	MaxImages      int
	MaxImageSizeMB int
	AllowedFormats []string
}

// AdminConfig seeds the bootstrap administrator account.
type AdminConfig struct {
	Username string
	Password string
}

// MaxBodyBytes is the largest accepted upload request body.
func (u UploadsConfig) MaxBodyBytes() int64 {
	if u.MaxImageSizeMB <= 0 {
		return 10 * 1024 * 1024
	}
	// base64 inflates payloads by a third
	return int64(u.MaxImageSizeMB) * 1024 * 1024 * 4 / 3
}

// AIReviewConfig configures the external review endpoint and the review worker pool.
type AIReviewConfig struct {
	Enabled      bool
	APIURL       string
	Model        string
	BaseURL      string
	Action       string
	MaxRetries   int
	RetryDelay   time.Duration
	LoginURL     string
	Username     string
	Password     string
	APIUser      string
	LoginTimeout time.Duration
	ChatTimeout  time.Duration
	Workers      int
	QueueSize    int
}

// JanitorConfig schedules the maintenance sweeps.
type JanitorConfig struct {
	Enabled       bool
	DailySpec     string
	SweepSpec     string
	ReviewTimeout time.Duration
	Timezone      string
}

// CacheConfig toggles Redis backed caching of the student board.
type CacheConfig struct {
	BoardEnabled bool
	BoardTTL     time.Duration
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
	}

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Database = DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
	}

	cfg.Redis = RedisConfig{
		Enabled:  v.GetBool("ENABLE_REDIS"),
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.JWT = JWTConfig{
		Secret:     v.GetString("JWT_SECRET"),
		Expiration: parseDuration(v.GetString("JWT_EXPIRATION"), 12*time.Hour),
		Issuer:     v.GetString("JWT_ISSUER"),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Uploads = UploadsConfig{
		Enabled:        v.GetBool("ENABLE_IMAGE_UPLOAD"),
		Dir:            v.GetString("UPLOAD_DIR"),
		MaxImages:      v.GetInt("MAX_IMAGES_PER_HOMEWORK"),
		MaxImageSizeMB: v.GetInt("MAX_IMAGE_SIZE_MB"),
		AllowedFormats: splitAndTrim(v.GetString("ALLOWED_IMAGE_FORMATS")),
	}

	cfg.Admin = AdminConfig{
		Username: v.GetString("DEFAULT_ADMIN_USERNAME"),
		Password: v.GetString("DEFAULT_ADMIN_PASSWORD"),
	}

	cfg.AIReview = AIReviewConfig{
		Enabled:      v.GetBool("ENABLE_AI_REVIEW"),
		APIURL:       v.GetString("AI_API_URL"),
		Model:        v.GetString("AI_MODEL"),
		BaseURL:      strings.TrimRight(v.GetString("HOMEWORK_BASE_URL"), "/"),
		Action:       v.GetString("AI_REVIEW_ACTION"),
		MaxRetries:   v.GetInt("AI_REVIEW_MAX_RETRIES"),
		RetryDelay:   parseDuration(v.GetString("AI_REVIEW_RETRY_DELAY"), 0),
		LoginURL:     v.GetString("AI_LOGIN_URL"),
		Username:     v.GetString("AI_USERNAME"),
		Password:     v.GetString("AI_PASSWORD"),
		APIUser:      v.GetString("AI_API_USER"),
		LoginTimeout: parseDuration(v.GetString("AI_LOGIN_TIMEOUT"), 10*time.Second),
		ChatTimeout:  parseDuration(v.GetString("AI_CHAT_TIMEOUT"), 60*time.Second),
		Workers:      v.GetInt("REVIEW_WORKERS"),
		QueueSize:    v.GetInt("REVIEW_QUEUE_SIZE"),
	}

	cfg.Janitor = JanitorConfig{
		Enabled:       v.GetBool("ENABLE_JANITOR"),
		DailySpec:     v.GetString("JANITOR_DAILY_SPEC"),
		SweepSpec:     v.GetString("JANITOR_SWEEP_SPEC"),
		ReviewTimeout: parseDuration(v.GetString("REVIEW_TIMEOUT"), 5*time.Minute),
		Timezone:      v.GetString("TIMEZONE"),
	}

	cfg.Cache = CacheConfig{
		BoardEnabled: v.GetBool("ENABLE_BOARD_CACHE"),
		BoardTTL:     parseDuration(v.GetString("BOARD_CACHE_TTL"), 30*time.Second),
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "homework_review")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("ENABLE_REDIS", false)
	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_EXPIRATION", "12h")
	v.SetDefault("JWT_ISSUER", "homework-review-api")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("ENABLE_IMAGE_UPLOAD", false)
	v.SetDefault("UPLOAD_DIR", "./uploads")
	v.SetDefault("MAX_IMAGES_PER_HOMEWORK", 5)
	v.SetDefault("MAX_IMAGE_SIZE_MB", 10)
	v.SetDefault("ALLOWED_IMAGE_FORMATS", "jpg,jpeg,png,gif")
	v.SetDefault("DEFAULT_ADMIN_USERNAME", "admin")
	v.SetDefault("DEFAULT_ADMIN_PASSWORD", "admin123")

	v.SetDefault("ENABLE_AI_REVIEW", false)
	v.SetDefault("AI_API_URL", "https://ack-ai.qinyining.cn/pg/chat/completions")
	v.SetDefault("AI_MODEL", "gpt-4.1-mini")
	v.SetDefault("HOMEWORK_BASE_URL", "https://tmptest.qinyining.cn")
	v.SetDefault("AI_REVIEW_ACTION", "mark_abnormal")
	v.SetDefault("AI_REVIEW_MAX_RETRIES", 3)
	v.SetDefault("AI_REVIEW_RETRY_DELAY", "0s")
	v.SetDefault("AI_LOGIN_URL", "https://qin.qinyining.cn/api/user/login?turnstile=")
	v.SetDefault("AI_USERNAME", "private")
	v.SetDefault("AI_PASSWORD", "password")
	v.SetDefault("AI_API_USER", "2")
	v.SetDefault("AI_LOGIN_TIMEOUT", "10s")
	v.SetDefault("AI_CHAT_TIMEOUT", "60s")
	v.SetDefault("REVIEW_WORKERS", 4)
	v.SetDefault("REVIEW_QUEUE_SIZE", 64)

	v.SetDefault("ENABLE_JANITOR", true)
	v.SetDefault("JANITOR_DAILY_SPEC", "0 0 * * *")
	v.SetDefault("JANITOR_SWEEP_SPEC", "*/5 * * * *")
	v.SetDefault("REVIEW_TIMEOUT", "5m")
	v.SetDefault("TIMEZONE", "Asia/Shanghai")

	v.SetDefault("ENABLE_BOARD_CACHE", false)
	v.SetDefault("BOARD_CACHE_TTL", "30s")
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
