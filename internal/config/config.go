// Package config 提供应用配置加载。
// 配置来源为环境变量，本地开发可通过 .env 文件注入（可选）。
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// AppConfig 应用基础配置
type AppConfig struct {
	Env             string        // dev | test | prod
	Name            string        // 服务名
	Version         string        // 版本号
	Port            int           // HTTP 监听端口
	RequestTimeout  time.Duration // 单请求超时
	ShutdownTimeout time.Duration // 优雅关闭超时
}

// LogConfig 日志配置
type LogConfig struct {
	Level    string // debug | info | warn | error
	Encoding string // json | console
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	User     string
	Password string
	Host     string
	Port     int
	DBName   string
}

// JWTConfig JWT 令牌配置
type JWTConfig struct {
	Secret          string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
}

// CacheConfig 缓存配置
type CacheConfig struct {
	Enabled bool
	Type    string // redis | memory
	TTL     time.Duration
}

// RedisConfig Redis 连接配置
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// CORSConfig 跨域配置
type CORSConfig struct {
	AllowedOrigins []string
	AllowedMethods []string
	AllowedHeaders []string
}

// MigrationsConfig 数据库迁移配置
type MigrationsConfig struct {
	Dir string
}

// InventoryConfig 库存策略配置
type InventoryConfig struct {
	// StrictDeduction 为 true 时，出库数量超过现存量直接报错；
	// 为 false 时按默认策略将库存钳制到 0 并在结果中上报实际扣减量。
	StrictDeduction bool
	// ExpiringSoonDays 临期药品的预警天数
	ExpiringSoonDays int
}

// RateLimitConfig 结账接口限流配置
type RateLimitConfig struct {
	Enabled bool
	Rate    float64 // 每秒补充令牌数
	Burst   int64   // 桶容量
}

// Config 聚合全部配置段
type Config struct {
	App        AppConfig
	Log        LogConfig
	Database   DatabaseConfig
	JWT        JWTConfig
	Cache      CacheConfig
	Redis      RedisConfig
	CORS       CORSConfig
	Migrations MigrationsConfig
	Inventory  InventoryConfig
	RateLimit  RateLimitConfig
}

// Load 从环境变量加载配置并校验必填项。
// .env 文件不存在时静默忽略。
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		App: AppConfig{
			Env:             getEnv("APP_ENV", "dev"),
			Name:            getEnv("APP_NAME", "pharmacy-server"),
			Version:         getEnv("APP_VERSION", "0.1.0"),
			Port:            getEnvInt("APP_PORT", 8080),
			RequestTimeout:  getEnvDuration("APP_REQUEST_TIMEOUT", 10*time.Second),
			ShutdownTimeout: getEnvDuration("APP_SHUTDOWN_TIMEOUT", 15*time.Second),
		},
		Log: LogConfig{
			Level:    getEnv("LOG_LEVEL", "info"),
			Encoding: getEnv("LOG_ENCODING", "json"),
		},
		Database: DatabaseConfig{
			User:     getEnv("DB_USER", "root"),
			Password: getEnv("DB_PASSWORD", ""),
			Host:     getEnv("DB_HOST", "127.0.0.1"),
			Port:     getEnvInt("DB_PORT", 3306),
			DBName:   getEnv("DB_NAME", "pharmacy"),
		},
		JWT: JWTConfig{
			Secret:          getEnv("JWT_SECRET", ""),
			AccessTokenTTL:  getEnvDuration("JWT_ACCESS_TTL", 15*time.Minute),
			RefreshTokenTTL: getEnvDuration("JWT_REFRESH_TTL", 7*24*time.Hour),
		},
		Cache: CacheConfig{
			Enabled: getEnvBool("CACHE_ENABLED", false),
			Type:    getEnv("CACHE_TYPE", "memory"),
			TTL:     getEnvDuration("CACHE_TTL", 5*time.Minute),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "127.0.0.1"),
			Port:     getEnvInt("REDIS_PORT", 6379),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		CORS: CORSConfig{
			AllowedOrigins: getEnvList("CORS_ALLOWED_ORIGINS", []string{"*"}),
			AllowedMethods: getEnvList("CORS_ALLOWED_METHODS", []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}),
			AllowedHeaders: getEnvList("CORS_ALLOWED_HEADERS", []string{"Authorization", "Content-Type", "X-Request-ID", "Idempotency-Key"}),
		},
		Migrations: MigrationsConfig{
			Dir: getEnv("MIGRATIONS_DIR", "migrations"),
		},
		Inventory: InventoryConfig{
			StrictDeduction:  getEnvBool("INVENTORY_STRICT_DEDUCTION", false),
			ExpiringSoonDays: getEnvInt("INVENTORY_EXPIRING_SOON_DAYS", 30),
		},
		RateLimit: RateLimitConfig{
			Enabled: getEnvBool("RATE_LIMIT_ENABLED", false),
			Rate:    getEnvFloat("RATE_LIMIT_RATE", 50),
			Burst:   int64(getEnvInt("RATE_LIMIT_BURST", 100)),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.JWT.Secret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if c.App.Port <= 0 || c.App.Port > 65535 {
		return fmt.Errorf("invalid APP_PORT: %d", c.App.Port)
	}
	switch c.Log.Encoding {
	case "json", "console":
	default:
		return fmt.Errorf("invalid LOG_ENCODING: %s", c.Log.Encoding)
	}
	return nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getEnvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func getEnvList(key string, def []string) []string {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if s := strings.TrimSpace(p); s != "" {
				out = append(out, s)
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return def
}
