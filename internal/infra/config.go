package infra

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv       string
	Port         string
	DatabaseURL  string
	DBAutoCreate bool

	StorageDriver   string
	StorageDir      string
	StorageBaseURL  string
	MinioEndpoint   string
	MinioAccessKey  string
	MinioSecretKey  string
	MinioBucket     string
	MinioRegion     string
	MinioUseSSL     bool
	MinioPublicURL  string
	PresignTTL      time.Duration
	FalKey          string
	FalBaseURL      string
	ProviderTimeout time.Duration

	CompletionLockTTL time.Duration

	AMQPURL      string
	AMQPExchange string
	GeoIPDBPath  string
	CORSOrigins  []string

	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration
	RateLimitPerMin  int
}

// LoadConfig loads configuration from environment variables and applies defaults where needed.
func LoadConfig() (*Config, error) {
	port := getEnv("PORT", "8080")
	cfg := &Config{
		AppEnv:            getEnv("APP_ENV", "development"),
		Port:              port,
		DatabaseURL:       os.Getenv("DATABASE_URL"),
		DBAutoCreate:      getEnvBool("DB_AUTO_CREATE", false),
		StorageDriver:     strings.ToLower(getEnv("STORAGE_DRIVER", "file")),
		StorageDir:        getEnv("STORAGE_DIR", "./data/objects"),
		StorageBaseURL:    getEnv("STORAGE_BASE_URL", "http://localhost:"+port+"/static"),
		MinioEndpoint:     os.Getenv("MINIO_ENDPOINT"),
		MinioAccessKey:    os.Getenv("MINIO_ACCESS_KEY"),
		MinioSecretKey:    os.Getenv("MINIO_SECRET_KEY"),
		MinioBucket:       getEnv("MINIO_BUCKET", "genstudio"),
		MinioRegion:       getEnv("MINIO_REGION", "us-east-1"),
		MinioUseSSL:       getEnvBool("MINIO_USE_SSL", true),
		MinioPublicURL:    os.Getenv("MINIO_PUBLIC_URL"),
		PresignTTL:        getEnvDuration("PRESIGN_TTL", 15*time.Minute),
		FalKey:            os.Getenv("FAL_KEY"),
		FalBaseURL:        getEnv("FAL_QUEUE_URL", "https://queue.fal.run"),
		ProviderTimeout:   getEnvDuration("PROVIDER_TIMEOUT", 30*time.Second),
		CompletionLockTTL: getEnvDuration("COMPLETION_LOCK_TTL", 60*time.Second),
		AMQPURL:           os.Getenv("AMQP_URL"),
		AMQPExchange:      getEnv("AMQP_EXCHANGE", "genstudio.jobs"),
		GeoIPDBPath:       os.Getenv("GEOIP_DB_PATH"),
		CORSOrigins:       splitList(getEnv("CORS_ALLOWED_ORIGINS", "*")),
		HTTPReadTimeout:   time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 15)),
		HTTPWriteTimeout:  time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 60)),
		HTTPIdleTimeout:   time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
		RateLimitPerMin:   getEnvInt("RATE_LIMIT_PER_MINUTE", 30),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	switch cfg.StorageDriver {
	case "file":
	case "minio":
		if cfg.MinioEndpoint == "" || cfg.MinioAccessKey == "" || cfg.MinioSecretKey == "" {
			return nil, fmt.Errorf("MINIO_ENDPOINT, MINIO_ACCESS_KEY and MINIO_SECRET_KEY are required for the minio driver")
		}
	default:
		return nil, fmt.Errorf("unsupported STORAGE_DRIVER %q", cfg.StorageDriver)
	}
	if cfg.CompletionLockTTL <= 0 {
		return nil, fmt.Errorf("COMPLETION_LOCK_TTL must be positive")
	}

	return cfg, nil
}

// DatabaseDriver reports which store backs DATABASE_URL: "postgres" or "sqlite".
func (c *Config) DatabaseDriver() string {
	if strings.HasPrefix(c.DatabaseURL, "sqlite:") {
		return "sqlite"
	}
	return "postgres"
}

// SQLitePath returns the file path portion of a sqlite: DATABASE_URL.
func (c *Config) SQLitePath() string {
	return strings.TrimPrefix(strings.TrimPrefix(c.DatabaseURL, "sqlite:"), "//")
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

// getEnvDuration accepts Go duration strings ("90s") or bare seconds ("90").
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return fallback
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second
	}
	return fallback
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
