package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	ProviderModeLive      = "live"
	ProviderModeSimulated = "simulated"
)

type Config struct {
	DatabaseURL    string
	SslCertPath    string
	AwsAccessKey   string
	AwsSecretKey   string
	AwsRegion      string
	BucketName     string
	S3Endpoint     string
	AIAPIKey       string
	EmbedModel     string
	GenModel       string
	ProviderMode   string
	Port           string
	JWTSecret      string
	AllowedOrigins []string
	LogLevel       string

	// extraction pipeline
	WorkDir        string
	MaxBatchFiles  int
	MaxUploadMB    int
	ExtractWorkers int
	ExtractTimeout time.Duration
	OCRLanguage    string

	MonthlyTokenLimit int
	IndexWorkers      int
}

// LoadConfig loads the environment variables and return config
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		DatabaseURL:    getEnv("DATABASE_URL", ""),
		SslCertPath:    getEnv("SSL_CERT_PATH", ""),
		AwsAccessKey:   getEnv("AWS_ACCESS_KEY", ""),
		AwsSecretKey:   getEnv("AWS_SECRET_KEY", ""),
		AwsRegion:      getEnv("AWS_REGION", "us-east-2"),
		BucketName:     getEnv("BUCKET_NAME", "filora-files"),
		S3Endpoint:     getEnv("S3_ENDPOINT", ""),
		AIAPIKey:       getEnv("GEMINI_API_KEY", ""),
		EmbedModel:     getEnv("EMBED_MODEL", "text-embedding-004"),
		GenModel:       getEnv("GEN_MODEL", "gemini-1.5-flash"),
		ProviderMode:   strings.ToLower(getEnv("PROVIDER_MODE", ProviderModeSimulated)),
		Port:           getEnv("PORT", "8080"),
		JWTSecret:      getEnv("JWT_SECRET", ""),
		AllowedOrigins: getEnvList("ALLOWED_ORIGINS", []string{"http://localhost:5173"}),
		LogLevel:       getEnv("LOG_LEVEL", "info"),

		WorkDir:        getEnv("WORK_DIR", filepath.Join(os.TempDir(), "filora")),
		MaxBatchFiles:  getEnvInt("MAX_BATCH_FILES", 5),
		MaxUploadMB:    getEnvInt("MAX_UPLOAD_MB", 50),
		ExtractWorkers: getEnvInt("EXTRACT_WORKERS", 4),
		ExtractTimeout: getEnvDuration("EXTRACT_TIMEOUT", 2*time.Minute),
		OCRLanguage:    getEnv("OCR_LANGUAGE", "eng"),

		MonthlyTokenLimit: getEnvInt("MONTHLY_TOKEN_LIMIT", 100000),
		IndexWorkers:      getEnvInt("INDEX_WORKERS", 2),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports the first setting that would make startup fail later.
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return errors.New("DATABASE_URL not set")
	}
	if c.JWTSecret == "" {
		return errors.New("JWT_SECRET not set")
	}
	switch c.ProviderMode {
	case ProviderModeLive:
		if c.AIAPIKey == "" {
			return errors.New("PROVIDER_MODE=live requires GEMINI_API_KEY")
		}
	case ProviderModeSimulated:
	default:
		return fmt.Errorf("PROVIDER_MODE must be %q or %q, got %q", ProviderModeLive, ProviderModeSimulated, c.ProviderMode)
	}
	if c.MaxBatchFiles <= 0 {
		return fmt.Errorf("MAX_BATCH_FILES must be positive, got %d", c.MaxBatchFiles)
	}
	if c.ExtractWorkers <= 0 {
		return fmt.Errorf("EXTRACT_WORKERS must be positive, got %d", c.ExtractWorkers)
	}
	return nil
}

// MaxUploadBytes is the request body cap for a whole upload batch.
func (c *Config) MaxUploadBytes() int64 {
	return int64(c.MaxUploadMB) << 20
}

// Helper to read environment variables with a default fallback
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvInt(key string, def int) int {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		fmt.Fprintf(os.Stderr, "WARN: %s=%q not an int, using default %d\n", key, v, def)
		return def
	}
	return n
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		fmt.Fprintf(os.Stderr, "WARN: %s=%q not a duration, using default %s\n", key, v, def)
		return def
	}
	return d
}

// getEnvList splits a comma separated value, dropping blanks.
func getEnvList(key string, def []string) []string {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return def
	}
	return out
}
