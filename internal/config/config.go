package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string

	// Auth
	JWTSecret string
	TokenTTL  time.Duration

	// Session
	RedisURL   string
	SessionTTL time.Duration

	// Catalog
	CatalogPath   string
	DefaultRegion string

	// Fallback
	GeminiAPIKey  string
	GeminiModel   string
	GeminiTimeout time.Duration

	// Uploads
	UploadDir string

	// Rate Limit（いずれも1分あたりのリクエスト数）
	RateLimitGeneral    int
	RateLimitChat       int
	RateLimitCredential int

	// Link Check
	LinkCheckInterval    time.Duration
	LinkCheckConcurrency int
	LinkCheckTimeout     time.Duration

	// Cleanup
	CleanupRetentionDays int
	CleanupInterval      time.Duration

	// Logging
	LogLevel string

	// Server
	ServerPort        string
	WorkerMetricsPort string

	// CORS
	CORSAllowedOrigin string
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	cfg.JWTSecret = os.Getenv("JWT_SECRET")
	if cfg.JWTSecret == "" {
		missing = append(missing, "JWT_SECRET")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.TokenTTL = getEnvDuration("TOKEN_TTL", 5*time.Hour)
	cfg.RedisURL = getEnvString("REDIS_URL", "")
	cfg.SessionTTL = getEnvDuration("SESSION_TTL", time.Hour)
	cfg.CatalogPath = getEnvString("CATALOG_PATH", "")
	cfg.DefaultRegion = strings.TrimSpace(getEnvString("DEFAULT_REGION", "Kerala"))
	cfg.GeminiAPIKey = getEnvString("GEMINI_API_KEY", "")
	cfg.GeminiModel = getEnvString("GEMINI_MODEL", "gemini-2.0-flash")
	cfg.GeminiTimeout = getEnvDuration("GEMINI_TIMEOUT", 10*time.Second)
	cfg.UploadDir = getEnvString("UPLOAD_DIR", "uploads")
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.RateLimitChat = getEnvInt("RATE_LIMIT_CHAT", 30)
	cfg.RateLimitCredential = getEnvInt("RATE_LIMIT_CREDENTIAL", 10)
	cfg.LinkCheckInterval = getEnvDuration("LINK_CHECK_INTERVAL", 6*time.Hour)
	cfg.LinkCheckConcurrency = getEnvInt("LINK_CHECK_CONCURRENCY", 5)
	cfg.LinkCheckTimeout = getEnvDuration("LINK_CHECK_TIMEOUT", 10*time.Second)
	cfg.CleanupRetentionDays = getEnvInt("CLEANUP_RETENTION_DAYS", 90)
	cfg.CleanupInterval = getEnvDuration("CLEANUP_INTERVAL", 24*time.Hour)
	cfg.LogLevel = getEnvString("LOG_LEVEL", "info")
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.WorkerMetricsPort = getEnvString("WORKER_METRICS_PORT", "9091")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "http://localhost:3000")

	return cfg, nil
}

// GeminiEnabled はフォールバック応答にGeminiを使用するかを返す。
func (c *Config) GeminiEnabled() bool {
	return c.GeminiAPIKey != ""
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
