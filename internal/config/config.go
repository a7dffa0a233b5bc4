package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// 環境名
const (
	EnvProduction  = "production"
	EnvDevelopment = "development"
)

// MaxSessionTTL はセッション有効期間の上限。
// check-sessionのtime_remainingは480分を超えない。
const MaxSessionTTL = 8 * time.Hour

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string

	// Session
	SessionTTL time.Duration

	// Redis（空の場合はログインロックをDBトランザクションのみで行う）
	RedisURL     string
	LoginLockTTL time.Duration

	// Rate Limit（req/min）
	RateLimitGeneral int
	RateLimitLogin   int

	// Password
	BcryptCost int

	// Logging
	LogLevel         string
	LogRetentionDays int

	// Server
	ServerPort string
	AppEnv     string

	// CORS
	CORSAllowedOrigin string
}

// IsProduction は本番環境かどうかを返す。
// 本番では500レスポンスに内部エラーの詳細を含めない。
func (c *Config) IsProduction() bool {
	return c.AppEnv == EnvProduction
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

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.SessionTTL = getEnvDuration("SESSION_TTL", MaxSessionTTL)
	cfg.RedisURL = getEnvString("REDIS_URL", "")
	cfg.LoginLockTTL = getEnvDuration("LOGIN_LOCK_TTL", 10*time.Second)
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.RateLimitLogin = getEnvInt("RATE_LIMIT_LOGIN", 10)
	cfg.BcryptCost = getEnvInt("BCRYPT_COST", 12)
	cfg.LogLevel = getEnvString("LOG_LEVEL", "info")
	cfg.LogRetentionDays = getEnvInt("LOG_RETENTION_DAYS", 90)
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.AppEnv = getEnvString("APP_ENV", EnvProduction)
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "http://localhost:3000")

	if cfg.SessionTTL <= 0 {
		return nil, fmt.Errorf("SESSION_TTL must be positive: %s", cfg.SessionTTL)
	}
	if cfg.SessionTTL > MaxSessionTTL {
		return nil, fmt.Errorf("SESSION_TTL must not exceed %s: %s", MaxSessionTTL, cfg.SessionTTL)
	}
	if cfg.RateLimitGeneral <= 0 || cfg.RateLimitLogin <= 0 {
		return nil, fmt.Errorf("rate limits must be positive: general=%d login=%d", cfg.RateLimitGeneral, cfg.RateLimitLogin)
	}

	return cfg, nil
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
