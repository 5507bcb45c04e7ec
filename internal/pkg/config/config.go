package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

// Stream backends understood by StreamBackend.
const (
	BackendKinesis = "kinesis"
	BackendRedis   = "redis"
)

// Config holds all application configuration.
type Config struct {
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	AWSRegion string `env:"AWS_REGION" envDefault:"us-east-1"`

	StreamName     string `env:"STREAM_NAME" envDefault:"data_pipe"`
	StreamBackend  string `env:"STREAM_BACKEND" envDefault:"kinesis"`
	RedisAddr      string `env:"REDIS_ADDR" envDefault:"redis://localhost:6379/0"`
	RedisDLQStream string `env:"REDIS_DLQ_STREAM" envDefault:"data_pipe_dlq"`
	PostgresURL    string `env:"POSTGRES_URL"`

	WALPath        string `env:"WAL_PATH"`
	WALSegmentSize int64  `env:"WAL_SEGMENT_SIZE_BYTES" envDefault:"104857600"`  // 100MB
	WALMaxDiskSize int64  `env:"WAL_MAX_DISK_SIZE_BYTES" envDefault:"1073741824"` // 1GB

	APIKeyCacheTTL      time.Duration `env:"API_KEY_CACHE_TTL" envDefault:"5m"`
	MaxBatchSize        int64         `env:"MAX_BATCH_SIZE_BYTES" envDefault:"6291456"` // 6MB
	TransformServerAddr string        `env:"TRANSFORM_SERVER_ADDR" envDefault:":8080"`
	AdminServerAddr     string        `env:"ADMIN_SERVER_ADDR" envDefault:":9091"`

	ProducerTimeBudget   time.Duration `env:"PRODUCER_TIME_BUDGET" envDefault:"60s"`
	ProducerSafetyMargin time.Duration `env:"PRODUCER_SAFETY_MARGIN" envDefault:"100ms"`
	ProducerRatePerSec   float64       `env:"PRODUCER_RATE_PER_SEC" envDefault:"0"`
	ProducerAgeMax       int           `env:"PRODUCER_AGE_MAX" envDefault:"99"`

	ConsumerGroup        string        `env:"CONSUMER_GROUP" envDefault:"record-transformers"`
	ConsumerBatchSize    int           `env:"CONSUMER_BATCH_SIZE" envDefault:"500"`
	ConsumerClaimMinIdle time.Duration `env:"CONSUMER_CLAIM_MIN_IDLE" envDefault:"5m"`
	SinkRetryCount       int           `env:"SINK_RETRY_COUNT" envDefault:"3"`
	SinkRetryBackoff     time.Duration `env:"SINK_RETRY_BACKOFF" envDefault:"1s"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	// Attempt to load .env file for local development.
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	switch c.StreamBackend {
	case BackendKinesis, BackendRedis:
	default:
		return fmt.Errorf("unsupported STREAM_BACKEND %q", c.StreamBackend)
	}
	if c.ProducerAgeMax <= 0 {
		return fmt.Errorf("PRODUCER_AGE_MAX must be positive, got %d", c.ProducerAgeMax)
	}
	if c.ConsumerBatchSize <= 0 {
		return fmt.Errorf("CONSUMER_BATCH_SIZE must be positive, got %d", c.ConsumerBatchSize)
	}
	if c.SinkRetryCount <= 0 {
		return fmt.Errorf("SINK_RETRY_COUNT must be positive, got %d", c.SinkRetryCount)
	}
	return nil
}
