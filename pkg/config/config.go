// Package config loads and validates application configuration from YAML files
// with environment-variable overrides. It provides typed structs for every
// subsystem (Server, Kafka, Results, Redis, Postgres, RateLimit, etc.).
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	Results   ResultsConfig   `yaml:"results"`
	Redis     RedisConfig     `yaml:"redis"`
	Postgres  PostgresConfig  `yaml:"postgres"`
	RateLimit RateLimitConfig `yaml:"rateLimit"`
	Breaker   BreakerConfig   `yaml:"breaker"`
	Logging   LoggingConfig   `yaml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
	// SubmitTimeout bounds one calculate call, publisher retries included.
	SubmitTimeout time.Duration `yaml:"submitTimeout"`
}

// KafkaConfig holds broker endpoints, topic names, the consumer group base
// name and the publisher retry policy.
type KafkaConfig struct {
	BootstrapServers    []string      `yaml:"bootstrapServers"`
	RequestTopic        string        `yaml:"requestTopic"`
	ResponseTopic       string        `yaml:"responseTopic"`
	GroupID             string        `yaml:"groupId"`
	ResponseGroupSuffix string        `yaml:"responseGroupSuffix"`
	RetryCount          int           `yaml:"retryCount"`
	RetryDelayMs        int           `yaml:"retryDelayMs"`
	FetchErrorBackoff   time.Duration `yaml:"fetchErrorBackoff"`
	CommitTimeout       time.Duration `yaml:"commitTimeout"`
}

// RetryDelay returns RetryDelayMs as a time.Duration.
func (k KafkaConfig) RetryDelay() time.Duration {
	return time.Duration(k.RetryDelayMs) * time.Millisecond
}

// ResponseGroupID is the consumer group used on the response topic. It is
// derived from GroupID so the two subscribers never share commit state.
func (k KafkaConfig) ResponseGroupID() string {
	return k.GroupID + k.ResponseGroupSuffix
}

// ResultsConfig controls the result store's long-poll behaviour.
type ResultsConfig struct {
	PollInterval   time.Duration `yaml:"pollInterval"`
	WaitTimeout    time.Duration `yaml:"waitTimeout"`
	MaxWaitTimeout time.Duration `yaml:"maxWaitTimeout"`
}

// RedisConfig holds Redis connection parameters. Redis backs idempotent
// request submission and is optional.
type RedisConfig struct {
	Enabled        bool          `yaml:"enabled"`
	Addr           string        `yaml:"addr"`
	Password       string        `yaml:"password"`
	DB             int           `yaml:"db"`
	PoolSize       int           `yaml:"poolSize"`
	IdempotencyTTL time.Duration `yaml:"idempotencyTTL"`
}

// PostgresConfig holds PostgreSQL connection parameters for the request
// ledger, which is optional.
type PostgresConfig struct {
	Enabled         bool          `yaml:"enabled"`
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	Database        string        `yaml:"database"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	SSLMode         string        `yaml:"sslMode"`
	MaxOpenConns    int           `yaml:"maxOpenConns"`
	MaxIdleConns    int           `yaml:"maxIdleConns"`
	ConnMaxLifetime time.Duration `yaml:"connMaxLifetime"`
}

// DSN returns a lib/pq-compatible data source name.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

// RateLimitConfig controls the per-client token bucket at the HTTP boundary.
type RateLimitConfig struct {
	Enabled           bool          `yaml:"enabled"`
	RequestsPerSecond float64       `yaml:"requestsPerSecond"`
	Burst             int           `yaml:"burst"`
	IdleTTL           time.Duration `yaml:"idleTTL"`
}

// BreakerConfig controls the circuit breaker guarding request publishing.
type BreakerConfig struct {
	FailureThreshold int           `yaml:"failureThreshold"`
	ResetTimeout     time.Duration `yaml:"resetTimeout"`
}

// LoggingConfig controls structured logging level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig controls the Prometheus metrics server.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// Load reads a YAML config file (if provided) and applies environment-variable
// overrides. It returns a Config populated with defaults suitable for a local
// single-node broker for any missing values.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}
	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

// Validate reports every setting that would make the pipeline unusable.
func (c *Config) Validate() error {
	var errs []error
	if len(c.Kafka.BootstrapServers) == 0 {
		errs = append(errs, errors.New("kafka.bootstrapServers must not be empty"))
	}
	if c.Kafka.RequestTopic == "" {
		errs = append(errs, errors.New("kafka.requestTopic is required"))
	}
	if c.Kafka.ResponseTopic == "" {
		errs = append(errs, errors.New("kafka.responseTopic is required"))
	}
	if c.Kafka.RequestTopic != "" && c.Kafka.RequestTopic == c.Kafka.ResponseTopic {
		errs = append(errs, errors.New("kafka.requestTopic and kafka.responseTopic must differ"))
	}
	if c.Kafka.GroupID == "" {
		errs = append(errs, errors.New("kafka.groupId is required"))
	}
	if c.Kafka.ResponseGroupSuffix == "" {
		errs = append(errs, errors.New("kafka.responseGroupSuffix is required"))
	}
	if c.Kafka.RetryCount < 0 {
		errs = append(errs, errors.New("kafka.retryCount must not be negative"))
	}
	if c.Kafka.RetryDelayMs < 0 {
		errs = append(errs, errors.New("kafka.retryDelayMs must not be negative"))
	}
	if c.Results.PollInterval <= 0 {
		errs = append(errs, errors.New("results.pollInterval must be positive"))
	}
	if c.Results.WaitTimeout <= 0 {
		errs = append(errs, errors.New("results.waitTimeout must be positive"))
	}
	if c.Results.MaxWaitTimeout < c.Results.WaitTimeout {
		errs = append(errs, errors.New("results.maxWaitTimeout must be at least results.waitTimeout"))
	}
	if c.Server.WriteTimeout > 0 && c.Server.WriteTimeout <= c.Results.MaxWaitTimeout {
		errs = append(errs, errors.New("server.writeTimeout must exceed results.maxWaitTimeout"))
	}
	return errors.Join(errs...)
}

// defaultConfig returns a Config with defaults for local development.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    75 * time.Second,
			ShutdownTimeout: 15 * time.Second,
			SubmitTimeout:   20 * time.Second,
		},
		Kafka: KafkaConfig{
			BootstrapServers:    []string{"localhost:9092"},
			RequestTopic:        "calculation-requests",
			ResponseTopic:       "calculation-responses",
			GroupID:             "calculator-workers",
			ResponseGroupSuffix: "-responses",
			RetryCount:          3,
			RetryDelayMs:        1000,
			FetchErrorBackoff:   time.Second,
			CommitTimeout:       10 * time.Second,
		},
		Results: ResultsConfig{
			PollInterval:   time.Second,
			WaitTimeout:    30 * time.Second,
			MaxWaitTimeout: 60 * time.Second,
		},
		Redis: RedisConfig{
			Enabled:        false,
			Addr:           "localhost:6379",
			PoolSize:       10,
			IdempotencyTTL: 24 * time.Hour,
		},
		Postgres: PostgresConfig{
			Enabled:         false,
			Host:            "localhost",
			Port:            5432,
			Database:        "calculator",
			User:            "calculator",
			Password:        "localdev",
			SSLMode:         "disable",
			MaxOpenConns:    10,
			MaxIdleConns:    2,
			ConnMaxLifetime: 5 * time.Minute,
		},
		RateLimit: RateLimitConfig{
			Enabled:           true,
			RequestsPerSecond: 50,
			Burst:             100,
			IdleTTL:           10 * time.Minute,
		},
		Breaker: BreakerConfig{
			FailureThreshold: 5,
			ResetTimeout:     30 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
		},
	}
}

// applyEnvOverrides reads CALC_* environment variables and overrides the
// corresponding config fields.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("CALC_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("CALC_KAFKA_BOOTSTRAP_SERVERS"); v != "" {
		cfg.Kafka.BootstrapServers = splitList(v)
	}
	if v := os.Getenv("CALC_KAFKA_REQUEST_TOPIC"); v != "" {
		cfg.Kafka.RequestTopic = v
	}
	if v := os.Getenv("CALC_KAFKA_RESPONSE_TOPIC"); v != "" {
		cfg.Kafka.ResponseTopic = v
	}
	if v := os.Getenv("CALC_KAFKA_GROUP_ID"); v != "" {
		cfg.Kafka.GroupID = v
	}
	if v := os.Getenv("CALC_KAFKA_RETRY_COUNT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Kafka.RetryCount = n
		}
	}
	if v := os.Getenv("CALC_KAFKA_RETRY_DELAY_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Kafka.RetryDelayMs = n
		}
	}
	if v := os.Getenv("CALC_RESULTS_WAIT_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Results.WaitTimeout = d
		}
	}
	if v := os.Getenv("CALC_REDIS_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Redis.Enabled = b
		}
	}
	if v := os.Getenv("CALC_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("CALC_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("CALC_POSTGRES_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Postgres.Enabled = b
		}
	}
	if v := os.Getenv("CALC_POSTGRES_HOST"); v != "" {
		cfg.Postgres.Host = v
	}
	if v := os.Getenv("CALC_POSTGRES_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Postgres.Port = port
		}
	}
	if v := os.Getenv("CALC_POSTGRES_DATABASE"); v != "" {
		cfg.Postgres.Database = v
	}
	if v := os.Getenv("CALC_POSTGRES_USER"); v != "" {
		cfg.Postgres.User = v
	}
	if v := os.Getenv("CALC_POSTGRES_PASSWORD"); v != "" {
		cfg.Postgres.Password = v
	}
	if v := os.Getenv("CALC_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("CALC_LOGGING_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
	if v := os.Getenv("CALC_METRICS_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Metrics.Port = port
		}
	}
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
