package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Env            string
	Port           int
	AllowedOrigins []string

	DBURL         string
	DBMaxConns    int32
	DBAutoMigrate bool

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	JWTSecret          string
	TokenTTL           time.Duration
	BcryptCost         int
	DeveloperUsernames []string
	GenericLoginErrors bool
	CookieSecure       bool

	// optional developer account created at startup
	SeedDeveloperUsername string
	SeedDeveloperPassword string
	SeedDeveloperName     string

	FeedCacheTTL time.Duration

	RateLimitAuthPerMinute int

	AMQPURL         string
	AMQPNoticeQueue string

	S3Bucket        string
	S3Region        string
	S3Endpoint      string
	S3AccessKey     string
	S3SecretKey     string
	S3PublicBaseURL string
	AvatarURLTTL    time.Duration

	OTelEndpoint    string
	OTelSampleRatio float64
	ServiceName     string

	WorkerConcurrency  int
	WorkerPollInterval time.Duration
	WorkerHealthPort   int
	WorkerLockTTL      time.Duration
}

var ErrMissingJWTSecret = errors.New("JWT_SECRET is required")

// Load reads .env (when present) and the process environment.
func Load() (Config, error) {
	// a missing .env is normal outside local dev
	_ = godotenv.Load()

	env := getEnv("APP_ENV", "dev")

	cfg := Config{
		Env:            env,
		Port:           getEnvInt("PORT", 8080),
		AllowedOrigins: getEnvList("CORS_ALLOWED_ORIGINS", []string{"http://localhost:3000"}),

		DBURL:         getEnv("DATABASE_URL", buildDBURL()),
		DBMaxConns:    int32(getEnvInt("DB_MAX_CONNS", 10)),
		DBAutoMigrate: getEnvBool("DB_AUTO_MIGRATE", env == "dev"),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		JWTSecret:          os.Getenv("JWT_SECRET"),
		TokenTTL:           getEnvDuration("JWT_TTL", 2*time.Hour),
		BcryptCost:         getEnvInt("BCRYPT_COST", 10),
		DeveloperUsernames: getEnvList("DEVELOPER_USERNAMES", nil),
		GenericLoginErrors: getEnvBool("AUTH_GENERIC_LOGIN_ERRORS", false),
		CookieSecure:       getEnvBool("COOKIE_SECURE", env == "prod"),

		SeedDeveloperUsername: getEnv("SEED_DEVELOPER_USERNAME", ""),
		SeedDeveloperPassword: getEnv("SEED_DEVELOPER_PASSWORD", ""),
		SeedDeveloperName:     getEnv("SEED_DEVELOPER_NAME", "Developer"),

		FeedCacheTTL: getEnvDuration("FEED_CACHE_TTL", 30*time.Second),

		RateLimitAuthPerMinute: getEnvInt("RATE_LIMIT_AUTH_PER_MINUTE", 10),

		AMQPURL:         getEnv("AMQP_URL", ""),
		AMQPNoticeQueue: getEnv("AMQP_NOTICE_QUEUE", "forum.notices"),

		S3Bucket:        getEnv("S3_BUCKET", ""),
		S3Region:        getEnv("S3_REGION", "us-east-1"),
		S3Endpoint:      getEnv("S3_ENDPOINT", ""),
		S3AccessKey:     getEnv("S3_ACCESS_KEY", ""),
		S3SecretKey:     getEnv("S3_SECRET_KEY", ""),
		S3PublicBaseURL: getEnv("S3_PUBLIC_BASE_URL", ""),
		AvatarURLTTL:    getEnvDuration("AVATAR_URL_TTL", 15*time.Minute),

		OTelEndpoint:    getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		OTelSampleRatio: getEnvFloat("OTEL_TRACES_SAMPLER_RATIO", 1),
		ServiceName:     getEnv("OTEL_SERVICE_NAME", "forumhub"),

		WorkerConcurrency:  getEnvInt("WORKER_CONCURRENCY", 4),
		WorkerPollInterval: getEnvDuration("WORKER_POLL_INTERVAL", 500*time.Millisecond),
		WorkerHealthPort:   getEnvInt("WORKER_HEALTH_PORT", 8081),
		WorkerLockTTL:      getEnvDuration("WORKER_LOCK_TTL", time.Minute),
	}

	if cfg.JWTSecret == "" {
		return Config{}, ErrMissingJWTSecret
	}

	if cfg.BcryptCost < 4 || cfg.BcryptCost > 31 {
		return Config{}, fmt.Errorf("BCRYPT_COST out of range: %d", cfg.BcryptCost)
	}

	return cfg, nil
}

func buildDBURL() string {
	host := getEnv("DB_HOST", "127.0.0.1")
	port := getEnv("DB_PORT", "5432")
	user := getEnv("DB_USER", "forumhub")
	pass := getEnv("DB_PASSWORD", "forumhub")
	name := getEnv("DB_NAME", "forumhub")
	ssl := getEnv("DB_SSLMODE", "disable")

	return "postgres://" + user + ":" + pass + "@" + host + ":" + port + "/" + name + "?sslmode=" + ssl
}

func WithTimeout(duration time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), duration)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}

	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		num, err := strconv.Atoi(v)
		if err != nil {
			return fallback
		}
		return num
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fallback
		}
		return f
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fallback
		}
		return b
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fallback
		}
		return d
	}
	return fallback
}

// comma separated, blanks dropped
func getEnvList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}

	out := make([]string, 0)
	for _, part := range strings.Split(v, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
