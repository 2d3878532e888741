// Package config holds the environment contracts of the two binaries: the
// ETL job runner and the recommendation server.
package config

import (
	"fmt"

	pkgconfig "github.com/ryo-chan-k6/GiftRecommendAPP-MVP-CYCLE-2/pkg/config"
)

// Deployment environments.
const (
	EnvDev  = "dev"
	EnvProd = "prod"
)

// ETLConfig holds all configuration for the ETL job runner.
type ETLConfig struct {
	Env      string `env:"ENV" envDefault:"dev"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	DatabaseURL string `env:"DATABASE_URL,required"`

	// Rakuten commerce API
	RakutenAppID       string `env:"RAKUTEN_APP_ID,required"`
	RakutenAffiliateID string `env:"RAKUTEN_AFFILIATE_ID"`

	// Raw object store (bucket is selected per environment)
	AWSRegion       string `env:"AWS_REGION" envDefault:"ap-northeast-1"`
	S3BucketRawDev  string `env:"S3_BUCKET_RAW_DEV"`
	S3BucketRawProd string `env:"S3_BUCKET_RAW_PROD"`

	// Embedding provider
	OpenAIAPIKey         string `env:"OPENAI_API_KEY"`
	OpenAIEmbeddingModel string `env:"OPENAI_EMBEDDING_MODEL" envDefault:"text-embedding-3-small"`

	// Completion events (disabled when no brokers are configured)
	KafkaBrokers []string `env:"KAFKA_BROKERS" envSeparator:","`

	// Staging apply-version stamp; 0 disables version catch-up
	ApplyVersion int `env:"ETL_APPLY_VERSION" envDefault:"0"`
}

// LoadETL reads the ETL runner configuration from environment variables.
func LoadETL() (*ETLConfig, error) {
	cfg := &ETLConfig{}
	if err := pkgconfig.Load(cfg); err != nil {
		return nil, fmt.Errorf("load etl config: %w", err)
	}
	if err := validateEnv(cfg.Env); err != nil {
		return nil, err
	}
	return cfg, nil
}

// RawBucket returns the raw-payload bucket for the configured environment.
func (c *ETLConfig) RawBucket() (string, error) {
	bucket := c.S3BucketRawDev
	if c.Env == EnvProd {
		bucket = c.S3BucketRawProd
	}
	if bucket == "" {
		return "", fmt.Errorf("no raw bucket configured for env %q", c.Env)
	}
	return bucket, nil
}

// RecoConfig holds all configuration for the recommendation server.
type RecoConfig struct {
	Env      string `env:"ENV" envDefault:"dev"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	HTTPPort int `env:"RECO_HTTP_PORT" envDefault:"8080"`

	DatabaseURL string `env:"DATABASE_URL,required"`

	// Embedding provider
	OpenAIAPIKey         string `env:"OPENAI_API_KEY,required"`
	OpenAIEmbeddingModel string `env:"OPENAI_EMBEDDING_MODEL" envDefault:"text-embedding-3-small"`

	// Context-vector cache (caching is off when the host is empty)
	RedisHost     string `env:"REDIS_HOST"`
	RedisPort     int    `env:"REDIS_PORT" envDefault:"6379"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`
	CacheTTLHours int    `env:"RECO_CACHE_TTL_HOURS" envDefault:"24"`

	// CORS
	AllowedOrigins []string `env:"ALLOWED_ORIGINS" envSeparator:","`

	// Tracing (exporter is off when the endpoint is empty)
	OTLPEndpoint string `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
}

// LoadReco reads the recommendation server configuration from environment
// variables.
func LoadReco() (*RecoConfig, error) {
	cfg := &RecoConfig{}
	if err := pkgconfig.Load(cfg); err != nil {
		return nil, fmt.Errorf("load reco config: %w", err)
	}
	if err := validateEnv(cfg.Env); err != nil {
		return nil, err
	}
	if cfg.HTTPPort < 1 || cfg.HTTPPort > 65535 {
		return nil, fmt.Errorf("invalid HTTP port: %d", cfg.HTTPPort)
	}
	return cfg, nil
}

func validateEnv(env string) error {
	if env != EnvDev && env != EnvProd {
		return fmt.Errorf("invalid env %q: must be dev or prod", env)
	}
	return nil
}
