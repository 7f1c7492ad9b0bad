package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	Environment string
	LogLevel    string

	DatabaseURL string
	RedisURL    string

	MinIOEndpoint  string
	MinIOAccessKey string
	MinIOSecretKey string
	MinIOBucket    string
	MinIOUseSSL    bool
	MinIORegion    string

	// CatalogAPIBase is the base URL of the commerce platform admin API.
	// Shop domains are interpolated into it, e.g. https://%s/admin/api/2024-07.
	CatalogAPIBase    string
	CatalogAPIVersion string
	CatalogRPS        float64
	CatalogBurst      int

	WorkerConcurrency  int
	ProductConcurrency int
	JobTimeout         time.Duration
	MaxRetries         int

	MaxImageBytes   int64
	MinImageDim     int
	MaxImageDim     int
	FetchTimeout    time.Duration
	TokenCacheTTL   time.Duration
	VerifyAttempts  int
	VerifyInterval  time.Duration
	ScopeMaxProduct int

	OTLPEndpoint string
}

func Load() (*Config, error) {
	cfg := &Config{}
	var err error

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	cfg.RedisURL = os.Getenv("REDIS_URL")
	if cfg.RedisURL == "" {
		return nil, fmt.Errorf("REDIS_URL is required")
	}

	cfg.MinIOEndpoint = os.Getenv("MINIO_ENDPOINT")
	if cfg.MinIOEndpoint == "" {
		return nil, fmt.Errorf("MINIO_ENDPOINT is required")
	}

	cfg.MinIOAccessKey = os.Getenv("MINIO_ACCESS_KEY")
	if cfg.MinIOAccessKey == "" {
		return nil, fmt.Errorf("MINIO_ACCESS_KEY is required")
	}

	cfg.MinIOSecretKey = os.Getenv("MINIO_SECRET_KEY")
	if cfg.MinIOSecretKey == "" {
		return nil, fmt.Errorf("MINIO_SECRET_KEY is required")
	}

	cfg.MinIOBucket = getEnvString("MINIO_BUCKET", "watermark-archive")
	cfg.MinIOUseSSL = getEnvBool("MINIO_USE_SSL", false)
	cfg.MinIORegion = getEnvString("MINIO_REGION", "us-east-1")

	cfg.CatalogAPIBase = getEnvString("CATALOG_API_BASE", "https://%s/admin/api")
	cfg.CatalogAPIVersion = getEnvString("CATALOG_API_VERSION", "2024-07")
	cfg.CatalogRPS = getEnvFloat("CATALOG_RPS", 2)
	cfg.CatalogBurst = getEnvInt("CATALOG_BURST", 4)

	cfg.WorkerConcurrency = getEnvInt("WORKER_CONCURRENCY", 2)
	cfg.ProductConcurrency = getEnvInt("PRODUCT_CONCURRENCY", 2)
	cfg.JobTimeout, err = getEnvDuration("JOB_TIMEOUT", "60m")
	if err != nil {
		return nil, fmt.Errorf("invalid JOB_TIMEOUT: %w", err)
	}
	cfg.MaxRetries = getEnvInt("MAX_RETRIES", 3)

	cfg.MaxImageBytes = getEnvInt64("MAX_IMAGE_BYTES", 25*1024*1024)
	cfg.MinImageDim = getEnvInt("MIN_IMAGE_DIM", 32)
	cfg.MaxImageDim = getEnvInt("MAX_IMAGE_DIM", 12000)
	cfg.FetchTimeout, err = getEnvDuration("FETCH_TIMEOUT", "60s")
	if err != nil {
		return nil, fmt.Errorf("invalid FETCH_TIMEOUT: %w", err)
	}
	cfg.TokenCacheTTL, err = getEnvDuration("TOKEN_CACHE_TTL", "10m")
	if err != nil {
		return nil, fmt.Errorf("invalid TOKEN_CACHE_TTL: %w", err)
	}
	cfg.VerifyAttempts = getEnvInt("VERIFY_ATTEMPTS", 10)
	cfg.VerifyInterval, err = getEnvDuration("VERIFY_INTERVAL", "3s")
	if err != nil {
		return nil, fmt.Errorf("invalid VERIFY_INTERVAL: %w", err)
	}
	cfg.ScopeMaxProduct = getEnvInt("SCOPE_MAX_PRODUCTS", 5000)

	cfg.OTLPEndpoint = os.Getenv("OTLP_ENDPOINT")

	cfg.Environment = getEnvString("ENVIRONMENT", "development")
	cfg.LogLevel = getEnvString("LOG_LEVEL", "info")

	return cfg, nil
}

func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.ParseInt(value, 10, 64); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key, defaultValue string) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		value = defaultValue
	}
	return time.ParseDuration(value)
}

func (c *Config) Validate() error {
	if c.WorkerConcurrency < 1 {
		return fmt.Errorf("invalid worker concurrency: %d", c.WorkerConcurrency)
	}

	if c.ProductConcurrency < 1 {
		return fmt.Errorf("invalid product concurrency: %d", c.ProductConcurrency)
	}

	if c.MaxImageBytes < 1 {
		return fmt.Errorf("invalid max image bytes: %d", c.MaxImageBytes)
	}

	if c.MinImageDim < 1 || c.MaxImageDim <= c.MinImageDim {
		return fmt.Errorf("invalid image dimension bounds: %d..%d", c.MinImageDim, c.MaxImageDim)
	}

	if c.ScopeMaxProduct < 1 {
		return fmt.Errorf("invalid scope product cap: %d", c.ScopeMaxProduct)
	}

	return nil
}
