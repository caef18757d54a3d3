package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	ServiceName    string
	ServiceVersion string
	HTTPPort       string
	GRPCPort       string
	APIBaseURL     string // upstream REST backend
	MediaBaseURL   string // prefix of uploaded images / videos
	RedisAddr      string
	NatsUrl        string
	OtelEndpoint   string
	Env            string // "local" or "prod"
	LogLevel       string // overrides the level implied by Env
	CacheTTL       time.Duration
	RequestTimeout time.Duration
	LikesPageSize  int
	CorsOrigins    []string

	// Tracing
	TraceSampleRatio float64

	// Token verification. Without a key, tokens are checked against /auth/me.
	JWTPublicKeyPath string
	JWTSecret        string
}

// LogValue keeps the secret out of the startup log.
func (c Config) LogValue() slog.Value {
	secret := ""
	if c.JWTSecret != "" {
		secret = "[redacted]"
	}
	return slog.GroupValue(
		slog.String("service", c.ServiceName),
		slog.String("env", c.Env),
		slog.String("http_port", c.HTTPPort),
		slog.String("grpc_port", c.GRPCPort),
		slog.String("api_base_url", c.APIBaseURL),
		slog.String("redis_addr", c.RedisAddr),
		slog.String("nats_url", c.NatsUrl),
		slog.Float64("trace_sample_ratio", c.TraceSampleRatio),
		slog.String("jwt_public_key_path", c.JWTPublicKeyPath),
		slog.String("jwt_secret", secret),
	)
}

func Load() Config {
	// A missing .env is fine: the environment wins anyway.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		slog.Warn("Failed to read .env", "error", err)
	}

	return Config{
		ServiceName:    getEnv("SERVICE_NAME", "profile-service"),
		ServiceVersion: getEnv("SERVICE_VERSION", "1.0.0"),
		HTTPPort:       getEnv("HTTP_PORT", "8080"),
		GRPCPort:       getEnv("GRPC_PORT", "50060"),
		APIBaseURL:     getEnv("API_BASE_URL", "http://localhost:5000/api/v1"),
		MediaBaseURL:   getEnv("MEDIA_BASE_URL", "http://localhost:5000/"),
		RedisAddr:      getEnv("REDIS_ADDR", "redis:6379"),
		NatsUrl:        getEnv("NATS_URL", "nats://nats:4222"),
		OtelEndpoint:   getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "jaeger:4317"),
		Env:            getEnv("APP_ENV", "local"),
		LogLevel:       getEnv("LOG_LEVEL", ""),
		CacheTTL:       getEnvDuration("PROFILE_CACHE_TTL", 5*time.Minute),
		RequestTimeout: getEnvDuration("UPSTREAM_TIMEOUT", 10*time.Second),
		LikesPageSize:  getEnvInt("LIKES_PAGE_SIZE", 12),
		CorsOrigins:    strings.Split(getEnv("CORS_ORIGINS", "http://localhost:3000,http://localhost:19006"), ","),

		TraceSampleRatio: getEnvRatio("OTEL_TRACES_SAMPLER_ARG", 1),

		JWTPublicKeyPath: getEnv("JWT_PUBLIC_KEY_PATH", ""),
		JWTSecret:        getEnv("JWT_SECRET", ""),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return strings.TrimSpace(v)
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	n, err := strconv.Atoi(getEnv(key, ""))
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(getEnv(key, ""))
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

// getEnvRatio reads a value in [0, 1].
func getEnvRatio(key string, fallback float64) float64 {
	f, err := strconv.ParseFloat(getEnv(key, ""), 64)
	if err != nil || f < 0 || f > 1 {
		return fallback
	}
	return f
}
