package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
)

type Config struct {
	AppPort string

	BaseURL     string
	UserAgent   string
	HTTPTimeout time.Duration
	CacheTTL    time.Duration

	DBDSN     string
	RedisAddr string

	// 为空表示不启用对应的定时任务
	WarmCronSpec  string
	SweepCronSpec string

	LogLevel string
}

const (
	defaultDSN      = "~/.hn_reader/favorites.db"
	defaultCacheTTL = 300
)

// Load 先加载当前目录的 .env（不存在则忽略），再读取环境变量
func Load() *Config {
	if err := godotenv.Load(); err == nil {
		log.Debug("loaded .env")
	}

	cfg := &Config{
		AppPort:       getEnv("APP_PORT", "9000"),
		BaseURL:       getEnv("HN_BASE_URL", "https://news.ycombinator.com"),
		UserAgent:     getEnv("HN_USER_AGENT", ""),
		HTTPTimeout:   getEnvDuration("HTTP_TIMEOUT", 60*time.Second),
		CacheTTL:      time.Duration(getEnvInt("CACHE_TTL_SECONDS", defaultCacheTTL)) * time.Second,
		DBDSN:         getEnv("DB_DSN", defaultDSN),
		RedisAddr:     getEnv("REDIS_ADDR", ""),
		WarmCronSpec:  getEnvAllowEmpty("WARM_CRON_SPEC", "*/5 * * * *"),
		SweepCronSpec: getEnvAllowEmpty("THREAD_CACHE_SWEEP_SPEC", ""),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
	}

	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = defaultCacheTTL * time.Second
	}

	log.WithFields(log.Fields{
		"port":  cfg.AppPort,
		"base":  cfg.BaseURL,
		"ttl":   cfg.CacheTTL,
		"warm":  cfg.WarmCronSpec,
		"sweep": cfg.SweepCronSpec,
	}).Info("config loaded")
	return cfg
}

// ConfigureLogging 无法识别的级别按 info 处理
func ConfigureLogging(level string) {
	log.SetFormatter(&log.TextFormatter{
		FullTimestamp: true,
	})
	lvl, err := log.ParseLevel(level)
	if err != nil {
		log.WithField("level", level).Warn("unknown log level, using info")
		lvl = log.InfoLevel
	}
	log.SetLevel(lvl)
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// getEnvAllowEmpty 显式设置为空字符串时返回空，用于关闭定时任务
func getEnvAllowEmpty(key, def string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
		log.WithField("key", key).Warn("invalid integer env, using default")
	}
	return def
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
		// 兼容直接写秒数
		if n, err := strconv.Atoi(v); err == nil {
			return time.Duration(n) * time.Second
		}
		log.WithField("key", key).Warn("invalid duration env, using default")
	}
	return def
}

// Now 进程统一的时钟，缓存与本地存储都从这里取时间
func Now() time.Time {
	return time.Now()
}
