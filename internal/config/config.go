package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Addr          string
	DatabaseURL   string
	DBMaxConns    int
	MigrationsDir string
	CORSOrigin    string
	LogLevel      string
	// Redis Configuration
	RedisURL string
	LockTTL  time.Duration
	// Object storage
	MinioEndpoint      string
	MinioAccessKey     string
	MinioSecretKey     string
	MinioUseSSL        bool
	MinioBucket        string
	MinioPublicBaseURL string
	// Collections
	SchemasFile        string
	MaxUploadBytes     int64
	ReorderConcurrency int
}

func Load() Config {
	return Config{
		// Postgres - empty keeps records in memory (development only)
		Addr:          getenv("API_ADDR", ":8787"),
		DatabaseURL:   getenv("DATABASE_URL", ""),
		DBMaxConns:    getenvInt("SITEADMIN_DB_MAX_CONNS", 20),
		MigrationsDir: getenv("SITEADMIN_MIGRATIONS_DIR", "./db/migrations"),
		CORSOrigin:    getenv("SITEADMIN_CORS_ORIGIN", "*"),
		LogLevel:      getenv("SITEADMIN_LOG_LEVEL", "info"),
		// Redis - empty keeps the mutation lock in process
		RedisURL: getenv("REDIS_URL", ""),
		LockTTL:  time.Duration(getenvInt("SITEADMIN_LOCK_TTL_SECONDS", 120)) * time.Second,
		// MinIO - empty endpoint keeps uploads in memory (development only)
		MinioEndpoint:      getenv("MINIO_ENDPOINT", ""),
		MinioAccessKey:     getenv("MINIO_ACCESS_KEY", "siteadmin"),
		MinioSecretKey:     getenv("MINIO_SECRET_KEY", "siteadmin-secret"),
		MinioUseSSL:        getenvBool("MINIO_USE_SSL", false),
		MinioBucket:        getenv("MINIO_BUCKET", "site-assets"),
		MinioPublicBaseURL: getenv("MINIO_PUBLIC_BASE_URL", ""),
		SchemasFile:        getenv("SITEADMIN_SCHEMAS_FILE", ""),
		MaxUploadBytes:     int64(getenvInt("SITEADMIN_MAX_UPLOAD_BYTES", 10<<20)),
		ReorderConcurrency: getenvInt("SITEADMIN_REORDER_CONCURRENCY", 4),
	}
}

func getenv(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvInt(key string, fallback int) int {
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

func getenvBool(key string, fallback bool) bool {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}
