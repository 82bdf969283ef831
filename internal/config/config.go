package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config centralizes runtime settings for the API and the distctl client.
type Config struct {
	Port string

	AuthToken string

	DatabaseURL string
	SQLitePath  string

	RedisAddr         string
	RedisPassword     string
	RedisDB           int
	RedisEventsStream string
	RedisEventsMaxLen int64

	EventsBatchSize    int
	EventsBatchFlushMS int

	UploadLockKey        string
	UploadLockTTLMS      int
	UploadMaxBytes       int64
	UploadParseTimeoutMS int
	UploadGatePolicy     string
	UploadGateWaitMS     int

	RosterFile   string
	RosterAgents string
	RosterWatch  bool

	DistributionCacheTTLSeconds int
	DistributionCacheMaxEntries int

	RateLimitRPS   float64
	RateLimitBurst int

	CORSAllowedOrigins []string

	LogLevel string
	LogFile  string
}

func Load() Config {
	return Config{
		Port: getEnv("PORT", "8080"),

		AuthToken: getEnv("API_AUTH_TOKEN", ""),

		DatabaseURL: getEnv("DATABASE_URL", ""),
		SQLitePath:  getEnv("SQLITE_PATH", ""),

		RedisAddr:         getEnv("REDIS_ADDR", ""),
		RedisPassword:     getEnv("REDIS_PASSWORD", ""),
		RedisDB:           getEnvInt("REDIS_DB", 0),
		RedisEventsStream: getEnv("REDIS_EVENTS_STREAM", "distribution_events"),
		RedisEventsMaxLen: int64(getEnvInt("REDIS_EVENTS_MAXLEN", 100000)),

		EventsBatchSize:    getEnvInt("EVENTS_BATCH_SIZE", 32),
		EventsBatchFlushMS: getEnvInt("EVENTS_BATCH_FLUSH_MS", 25),

		UploadLockKey:        getEnv("UPLOAD_LOCK_KEY", "contact-distributor:upload-gate"),
		UploadLockTTLMS:      getEnvInt("UPLOAD_LOCK_TTL_MS", 60000),
		UploadMaxBytes:       int64(getEnvInt("UPLOAD_MAX_BYTES", 10<<20)),
		UploadParseTimeoutMS: getEnvInt("UPLOAD_PARSE_TIMEOUT_MS", 30000),
		UploadGatePolicy:     getEnv("UPLOAD_GATE_POLICY", "reject"),
		UploadGateWaitMS:     getEnvInt("UPLOAD_GATE_WAIT_MS", 15000),

		RosterFile:   getEnv("ROSTER_FILE", ""),
		RosterAgents: getEnv("ROSTER_AGENTS", ""),
		RosterWatch:  getEnvBool("ROSTER_WATCH", true),

		DistributionCacheTTLSeconds: getEnvInt("DISTRIBUTION_CACHE_TTL_SECONDS", 900),
		DistributionCacheMaxEntries: getEnvInt("DISTRIBUTION_CACHE_MAX_ENTRIES", 512),

		RateLimitRPS:   getEnvFloat("RATE_LIMIT_RPS", 20),
		RateLimitBurst: getEnvInt("RATE_LIMIT_BURST", 40),

		CORSAllowedOrigins: getEnvList("CORS_ALLOWED_ORIGINS"),

		LogLevel: getEnv("LOG_LEVEL", "INFO"),
		LogFile:  getEnv("LOG_FILE", ""),
	}
}

func (c Config) UploadLockTTL() time.Duration {
	return time.Duration(c.UploadLockTTLMS) * time.Millisecond
}

func (c Config) UploadParseTimeout() time.Duration {
	return time.Duration(c.UploadParseTimeoutMS) * time.Millisecond
}

func (c Config) UploadGateWait() time.Duration {
	return time.Duration(c.UploadGateWaitMS) * time.Millisecond
}

func (c Config) EventsBatchFlush() time.Duration {
	return time.Duration(c.EventsBatchFlushMS) * time.Millisecond
}

func (c Config) DistributionCacheTTL() time.Duration {
	return time.Duration(c.DistributionCacheTTLSeconds) * time.Second
}

func getEnv(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getEnvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvFloat(key string, fallback float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvBool(key string, fallback bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvList(key string) []string {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	items := make([]string, 0)
	for _, item := range strings.Split(value, ",") {
		trimmed := strings.TrimSpace(item)
		if trimmed != "" {
			items = append(items, trimmed)
		}
	}
	return items
}
