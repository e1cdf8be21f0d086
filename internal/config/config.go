package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds runtime configuration values for the evaluation service.
type Config struct {
	AppName string
	AppEnv  string
	AppPort string

	DatabaseURL string
	RedisURL    string
	NATSURL     string

	GitHubToken   string
	GitHubBaseURL string

	S3Endpoint  string
	S3AccessKey string
	S3SecretKey string
	S3Bucket    string
	S3Region    string
	S3UseSSL    bool

	OpenAIAPIKey string
	OpenAIModel  string

	GradeMaxTokens int
	GradeTimeout   time.Duration

	HarvestMaxFileBytes  int64
	HarvestMaxTotalBytes int64
	HarvestConcurrency   int

	StatusTTL time.Duration
}

// HTTPAddress returns the address the HTTP server should listen on.
func (c Config) HTTPAddress() string {
	if strings.HasPrefix(c.AppPort, ":") {
		return c.AppPort
	}

	return fmt.Sprintf(":%s", c.AppPort)
}

// Load reads configuration values from environment variables and optional .env file.
func Load() (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("ARENA")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("app.name", "Arena Evaluation API")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", "8080")
	v.SetDefault("github.base_url", "https://api.github.com")
	v.SetDefault("s3.bucket", "arena-submissions")
	v.SetDefault("s3.region", "us-east-1")
	v.SetDefault("openai.model", "gpt-4o-mini")
	v.SetDefault("grade.max_tokens", 1024)
	v.SetDefault("grade.timeout", "90s")
	v.SetDefault("harvest.max_file_kb", 100)
	v.SetDefault("harvest.max_total_kb", 500)
	v.SetDefault("harvest.concurrency", 4)
	v.SetDefault("status.ttl", "24h")

	gradeTimeout, err := time.ParseDuration(v.GetString("grade.timeout"))
	if err != nil {
		return Config{}, fmt.Errorf("invalid grade timeout: %w", err)
	}

	statusTTL, err := time.ParseDuration(v.GetString("status.ttl"))
	if err != nil {
		return Config{}, fmt.Errorf("invalid status ttl: %w", err)
	}

	cfg := Config{
		AppName:              v.GetString("app.name"),
		AppEnv:               v.GetString("app.env"),
		AppPort:              v.GetString("app.port"),
		DatabaseURL:          v.GetString("database.url"),
		RedisURL:             v.GetString("redis.url"),
		NATSURL:              v.GetString("nats.url"),
		GitHubToken:          v.GetString("github.token"),
		GitHubBaseURL:        v.GetString("github.base_url"),
		S3Endpoint:           v.GetString("s3.endpoint"),
		S3AccessKey:          v.GetString("s3.access_key"),
		S3SecretKey:          v.GetString("s3.secret_key"),
		S3Bucket:             v.GetString("s3.bucket"),
		S3Region:             v.GetString("s3.region"),
		S3UseSSL:             v.GetBool("s3.use_ssl"),
		OpenAIAPIKey:         v.GetString("openai.api_key"),
		OpenAIModel:          v.GetString("openai.model"),
		GradeMaxTokens:       v.GetInt("grade.max_tokens"),
		GradeTimeout:         gradeTimeout,
		HarvestMaxFileBytes:  v.GetInt64("harvest.max_file_kb") * 1024,
		HarvestMaxTotalBytes: v.GetInt64("harvest.max_total_kb") * 1024,
		HarvestConcurrency:   v.GetInt("harvest.concurrency"),
		StatusTTL:            statusTTL,
	}

	if cfg.S3Endpoint == "" {
		return Config{}, fmt.Errorf("object store endpoint must be provided")
	}

	if cfg.HarvestMaxFileBytes <= 0 {
		cfg.HarvestMaxFileBytes = 100 * 1024
	}

	if cfg.HarvestMaxTotalBytes <= 0 {
		cfg.HarvestMaxTotalBytes = 500 * 1024
	}

	if cfg.HarvestConcurrency <= 0 {
		cfg.HarvestConcurrency = 4
	}

	return cfg, nil
}
