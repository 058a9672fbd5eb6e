// Package config loads notecore's configuration from layered .env files
// and the process environment, following the precedence order
// .env -> .env.{env} -> .env.local (later overrides earlier), the same
// order the original service used for its own env-file loading.
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds every knob named in the external interfaces section.
type Config struct {
	Env string // "development", "production", "test"

	SecretKey string

	HTTPAddr            string
	HTTPMaxBodyBytes    int64
	PostsPerPage        int
	CORSAllowedOrigins  []string
	CORSAllowedMethods  string
	CORSAllowedHeaders  string
	CORSAllowCredentials bool
	CORSMaxAge          int

	DatabasePath string
	IndexPrefix  string

	RetentionDays int

	RateLimitLoginMax      int
	RateLimitLoginWindow   int
	RateLimitRenameTagMax  int
	RateLimitDeleteTagMax  int
	RateLimitRebuildMax    int

	LogType  string // "console" or "file"
	LogLevel string
	LogFile  string
	LogMaxBytes   int64
	LogMaxBackups int

	BackgroundWorkers int
}

// Default returns the baseline configuration before env overlay,
// mirroring the original service's BaseConfig/ProductionConfig defaults.
func Default() Config {
	return Config{
		Env:       "production",
		SecretKey: "",

		HTTPAddr:             "127.0.0.1:8000",
		HTTPMaxBodyBytes:     10 * 1024 * 1024,
		PostsPerPage:         30,
		CORSAllowedOrigins:   []string{"*"},
		CORSAllowedMethods:   "GET, POST, PUT, DELETE, OPTIONS",
		CORSAllowedHeaders:   "Content-Type, Authorization",
		CORSAllowCredentials: false,
		CORSMaxAge:           86400,

		DatabasePath: "notecore.db",
		IndexPrefix:  "fts:",

		RetentionDays: 30,

		RateLimitLoginMax:     10,
		RateLimitLoginWindow:  60,
		RateLimitRenameTagMax: 5,
		RateLimitDeleteTagMax: 1,
		RateLimitRebuildMax:   3,

		LogType:       "console",
		LogLevel:      "INFO",
		LogFile:       filepath.Join("logs", "app.log"),
		LogMaxBytes:   10 * 1024 * 1024,
		LogMaxBackups: 10,

		BackgroundWorkers: 4,
	}
}

// Load reads the layered .env files (if present) into the process
// environment and returns a Config populated from it. env selects which
// .env.{env} file to load; an empty string falls back to NOTECORE_ENV or
// "development".
func Load(env string) (Config, error) {
	if env == "" {
		env = os.Getenv("NOTECORE_ENV")
	}
	if env == "" {
		env = "development"
	}

	if err := loadEnvFile(".env", false); err != nil {
		return Config{}, err
	}

	envFiles := map[string]string{
		"dev":         ".env.dev",
		"development": ".env.dev",
		"prod":        ".env.prod",
		"production":  ".env.prod",
		"test":        ".env.test",
	}
	if f, ok := envFiles[strings.ToLower(env)]; ok {
		if err := loadEnvFile(f, true); err != nil {
			return Config{}, err
		}
	}

	if err := loadEnvFile(".env.local", true); err != nil {
		return Config{}, err
	}

	cfg := Default()
	cfg.Env = env

	cfg.SecretKey = getEnv("SECRET_KEY", cfg.SecretKey)
	cfg.HTTPAddr = getEnv("HTTP_ADDR", cfg.HTTPAddr)
	cfg.HTTPMaxBodyBytes = getEnvInt64("HTTP_MAX_BODY_SIZE", cfg.HTTPMaxBodyBytes)
	cfg.PostsPerPage = getEnvInt("POSTS_PER_PAGE", cfg.PostsPerPage)

	if v, ok := os.LookupEnv("CORS_ALLOWED_ORIGINS"); ok {
		if v == "*" {
			cfg.CORSAllowedOrigins = []string{"*"}
		} else {
			parts := strings.Split(v, ",")
			for i := range parts {
				parts[i] = strings.TrimSpace(parts[i])
			}
			cfg.CORSAllowedOrigins = parts
		}
	}
	cfg.CORSAllowedMethods = getEnv("CORS_ALLOWED_METHODS", cfg.CORSAllowedMethods)
	cfg.CORSAllowedHeaders = getEnv("CORS_ALLOWED_HEADERS", cfg.CORSAllowedHeaders)
	cfg.CORSAllowCredentials = getEnvBool("CORS_ALLOW_CREDENTIALS", cfg.CORSAllowCredentials)
	cfg.CORSMaxAge = getEnvInt("CORS_MAX_AGE", cfg.CORSMaxAge)

	cfg.DatabasePath = getEnv("DATABASE_PATH", cfg.DatabasePath)
	cfg.IndexPrefix = getEnv("INDEX_PREFIX", cfg.IndexPrefix)

	cfg.RetentionDays = getEnvInt("RETENTION_DAYS", cfg.RetentionDays)

	cfg.RateLimitLoginMax = getEnvInt("RATE_LIMIT_LOGIN_MAX", cfg.RateLimitLoginMax)
	cfg.RateLimitLoginWindow = getEnvInt("RATE_LIMIT_LOGIN_WINDOW", cfg.RateLimitLoginWindow)
	cfg.RateLimitRenameTagMax = getEnvInt("RATE_LIMIT_RENAME_TAG_MAX", cfg.RateLimitRenameTagMax)
	cfg.RateLimitDeleteTagMax = getEnvInt("RATE_LIMIT_DELETE_TAG_MAX", cfg.RateLimitDeleteTagMax)
	cfg.RateLimitRebuildMax = getEnvInt("RATE_LIMIT_REBUILD_MAX", cfg.RateLimitRebuildMax)

	cfg.LogType = getEnv("LOG_TYPE", cfg.LogType)
	cfg.LogLevel = getEnv("LOG_LEVEL", cfg.LogLevel)
	cfg.LogFile = getEnv("LOG_FILE", cfg.LogFile)
	cfg.LogMaxBytes = getEnvInt64("LOG_MAX_BYTES", cfg.LogMaxBytes)
	cfg.LogMaxBackups = getEnvInt("LOG_MAX_BACKUPS", cfg.LogMaxBackups)

	cfg.BackgroundWorkers = getEnvInt("BACKGROUND_WORKERS", cfg.BackgroundWorkers)

	if env == "development" {
		cfg.LogType = getEnvOr("LOG_TYPE", "console")
	}
	if env == "production" {
		cfg.LogType = getEnvOr("LOG_TYPE", "file")
		cfg.LogLevel = getEnvOr("LOG_LEVEL", "WARNING")
	}

	return cfg, nil
}

// loadEnvFile loads key=value pairs from path into the process
// environment via godotenv. override controls whether an
// already-set variable is replaced: false calls godotenv.Load, which
// leaves existing variables alone, matching python-dotenv's default
// override=False; true calls godotenv.Overload, matching the layered
// .env.{env} and .env.local files above it in precedence. A missing
// file is not an error, since every layer is optional.
func loadEnvFile(path string, override bool) error {
	var err error
	if override {
		err = godotenv.Overload(path)
	} else {
		err = godotenv.Load(path)
	}
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return fallback
}

func getEnvOr(key, fallback string) string {
	return getEnv(key, fallback)
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvInt64(key string, fallback int64) int64 {
	if v, ok := os.LookupEnv(key); ok {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v, ok := os.LookupEnv(key); ok {
		return strings.EqualFold(v, "true") || v == "1"
	}
	return fallback
}
