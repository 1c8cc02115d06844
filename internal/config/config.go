package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/viper"
)

var ErrInvalidConfig = errors.New("invalid configuration")

type Config struct {
	Port         string
	WorkerPort   string
	RedisURL     string
	DatabaseURL  string
	NatsURL      string
	KafkaBrokers string
	OTLPEndpoint string
	StoreDriver  string
	BrokerDriver string
	API          APIConfig
	Worker       WorkerConfig
	Processors   ProcessorConfig
}

// APIConfig sizes the ingress process.
type APIConfig struct {
	PoolSize    int
	Workers     int
	ReadTimeout time.Duration
}

// WorkerConfig sizes the egress process and tunes payment dispatch.
type WorkerConfig struct {
	PoolSize        int
	Workers         int
	MaxAttempts     int
	BackoffBase     time.Duration
	DefaultTimeout  time.Duration
	FallbackTimeout time.Duration
	MaxRetries      int
}

type ProcessorConfig struct {
	DefaultURL  string
	FallbackURL string
}

var defaults = map[string]any{
	"PORT":                        "3000",
	"WORKER_PORT":                 "9090",
	"REDIS_URL":                   "redis:6379",
	"DATABASE_URL":                "",
	"NATS_URL":                    "nats://nats:4222",
	"KAFKA_BROKERS":               "kafka:9092",
	"OTEL_EXPORTER_OTLP_ENDPOINT": "",
	"STORE_DRIVER":                "redis",
	"BROKER_DRIVER":               "redis",
	"API_REDIS_POOL_SIZE":         10,
	"API_THREAD_POOL_SIZE":        10,
	"API_READ_TIMEOUT_MS":         5000,
	"WORKER_REDIS_POOL_SIZE":      10,
	"WORKER_THREAD_POOL_SIZE":     10,
	"WORKER_MAX_ATTEMPTS":         3,
	"WORKER_BACKOFF_SLEEP_MS":     2,
	"WORKER_DEFAULT_TIMEOUT_MS":   300,
	"WORKER_FALLBACK_TIMEOUT_MS":  100,
	"WORKER_MAX_RETRIES":          3,
	"PROCESSOR_DEFAULT_URL":       "http://payment-processor-default:8080",
	"PROCESSOR_FALLBACK_URL":      "http://payment-processor-fallback:8080",
}

// Load reads the configuration from the environment, falling back to
// defaults for anything unset.
func Load() (*Config, error) {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
		if err := v.BindEnv(key); err != nil {
			return nil, err
		}
	}

	cfg := &Config{
		Port:         v.GetString("PORT"),
		WorkerPort:   v.GetString("WORKER_PORT"),
		RedisURL:     v.GetString("REDIS_URL"),
		DatabaseURL:  v.GetString("DATABASE_URL"),
		NatsURL:      v.GetString("NATS_URL"),
		KafkaBrokers: v.GetString("KAFKA_BROKERS"),
		OTLPEndpoint: v.GetString("OTEL_EXPORTER_OTLP_ENDPOINT"),
		StoreDriver:  v.GetString("STORE_DRIVER"),
		BrokerDriver: v.GetString("BROKER_DRIVER"),
		API: APIConfig{
			PoolSize:    v.GetInt("API_REDIS_POOL_SIZE"),
			Workers:     v.GetInt("API_THREAD_POOL_SIZE"),
			ReadTimeout: millis(v, "API_READ_TIMEOUT_MS"),
		},
		Worker: WorkerConfig{
			PoolSize:        v.GetInt("WORKER_REDIS_POOL_SIZE"),
			Workers:         v.GetInt("WORKER_THREAD_POOL_SIZE"),
			MaxAttempts:     v.GetInt("WORKER_MAX_ATTEMPTS"),
			BackoffBase:     millis(v, "WORKER_BACKOFF_SLEEP_MS"),
			DefaultTimeout:  millis(v, "WORKER_DEFAULT_TIMEOUT_MS"),
			FallbackTimeout: millis(v, "WORKER_FALLBACK_TIMEOUT_MS"),
			MaxRetries:      v.GetInt("WORKER_MAX_RETRIES"),
		},
		Processors: ProcessorConfig{
			DefaultURL:  v.GetString("PROCESSOR_DEFAULT_URL"),
			FallbackURL: v.GetString("PROCESSOR_FALLBACK_URL"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	positive := map[string]int{
		"API_REDIS_POOL_SIZE":     c.API.PoolSize,
		"API_THREAD_POOL_SIZE":    c.API.Workers,
		"WORKER_REDIS_POOL_SIZE":  c.Worker.PoolSize,
		"WORKER_THREAD_POOL_SIZE": c.Worker.Workers,
		"WORKER_MAX_ATTEMPTS":     c.Worker.MaxAttempts,
	}
	for key, value := range positive {
		if value < 1 {
			return fmt.Errorf("%w: %s must be at least 1, got %d", ErrInvalidConfig, key, value)
		}
	}

	if c.Worker.MaxRetries < 0 {
		return fmt.Errorf("%w: WORKER_MAX_RETRIES must not be negative", ErrInvalidConfig)
	}
	if c.Worker.BackoffBase < 0 || c.Worker.DefaultTimeout <= 0 || c.Worker.FallbackTimeout <= 0 {
		return fmt.Errorf("%w: worker timings must be positive", ErrInvalidConfig)
	}

	switch c.StoreDriver {
	case "redis", "postgres":
	default:
		return fmt.Errorf("%w: unknown STORE_DRIVER %q", ErrInvalidConfig, c.StoreDriver)
	}
	if c.StoreDriver == "postgres" && c.DatabaseURL == "" {
		return fmt.Errorf("%w: DATABASE_URL is required for the postgres store", ErrInvalidConfig)
	}

	switch c.BrokerDriver {
	case "redis", "nats", "kafka":
	default:
		return fmt.Errorf("%w: unknown BROKER_DRIVER %q", ErrInvalidConfig, c.BrokerDriver)
	}

	return nil
}

func millis(v *viper.Viper, key string) time.Duration {
	return time.Duration(v.GetInt64(key)) * time.Millisecond
}
