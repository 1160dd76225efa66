package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	Env      string
	HTTP     HTTPConfig
	Redis    RedisConfig
	DB       DBConfig
	Auth     AuthConfig
	Audit    AuditConfig
	EventBus EventBusConfig
}

type HTTPConfig struct {
	Port           string
	RateLimit      string
	AllowedOrigins []string
}

type DBConfig struct {
	DSN string
}

type AuthConfig struct {
	JWTSecret string
}

type AuditConfig struct {
	// StrictSnapshot reads the inventory snapshot and writes the audit run in one transaction.
	StrictSnapshot bool
	MaxUploadBytes int64
}

type EventBusConfig struct {
	Driver  string
	Channel string
	Buffer  int
}

func LoadConfig() Config {
	if err := godotenv.Load(); err != nil {
		GetLogger().Info("No .env file found, using environment variables")
	}

	redisDB, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))
	maxUpload, err := strconv.ParseInt(getEnv("AUDIT_MAX_UPLOAD_BYTES", "10485760"), 10, 64)
	if err != nil || maxUpload <= 0 {
		maxUpload = 10 << 20
	}
	busBuffer, err := strconv.Atoi(getEnv("EVENT_BUS_BUFFER", "64"))
	if err != nil || busBuffer <= 0 {
		busBuffer = 64
	}

	SetLogLevel(getEnv("LOG_LEVEL", "info"))

	return Config{
		Env: getEnv("GO_ENV", "development"),
		HTTP: HTTPConfig{
			Port:           getEnv("HTTP_PORT", "8080"),
			RateLimit:      getEnv("RATE_LIMIT", "60-M"),
			AllowedOrigins: splitAndTrim(getEnv("CORS_ALLOWED_ORIGINS", "")),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       redisDB,
		},
		DB: DBConfig{
			DSN: getEnv("AUDIT_DSN", ""),
		},
		Auth: AuthConfig{
			JWTSecret: getEnv("JWT_SECRET", ""),
		},
		Audit: AuditConfig{
			StrictSnapshot: getEnvBool("AUDIT_STRICT_SNAPSHOT", false),
			MaxUploadBytes: maxUpload,
		},
		EventBus: EventBusConfig{
			Driver:  getEnv("EVENT_BUS", "memory"),
			Channel: getEnv("EVENT_BUS_CHANNEL", "asset-audit:events"),
			Buffer:  busBuffer,
		},
	}
}

func (c Config) IsProduction() bool {
	return strings.EqualFold(c.Env, "production")
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	v, err := strconv.ParseBool(getEnv(key, ""))
	if err != nil {
		return defaultValue
	}
	return v
}

func splitAndTrim(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
