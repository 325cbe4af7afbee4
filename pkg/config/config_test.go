package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, []string{"localhost:9092"}, cfg.Kafka.BootstrapServers)
	assert.Equal(t, "calculation-requests", cfg.Kafka.RequestTopic)
	assert.Equal(t, "calculation-responses", cfg.Kafka.ResponseTopic)
	assert.Equal(t, "calculator-workers", cfg.Kafka.GroupID)
	assert.Equal(t, "calculator-workers-responses", cfg.Kafka.ResponseGroupID())
	assert.Equal(t, 3, cfg.Kafka.RetryCount)
	assert.Equal(t, time.Second, cfg.Kafka.RetryDelay())
	assert.Equal(t, time.Second, cfg.Results.PollInterval)
	assert.Equal(t, 30*time.Second, cfg.Results.WaitTimeout)
}

func TestLoadYAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := []byte(`
kafka:
  bootstrapServers: ["broker-1:9092", "broker-2:9092"]
  requestTopic: calc-in
  responseTopic: calc-out
  groupId: calc
  retryCount: 5
  retryDelayMs: 250
results:
  waitTimeout: 10s
logging:
  level: debug
`)
	require.NoError(t, os.WriteFile(path, data, 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, []string{"broker-1:9092", "broker-2:9092"}, cfg.Kafka.BootstrapServers)
	assert.Equal(t, "calc-in", cfg.Kafka.RequestTopic)
	assert.Equal(t, "calc-out", cfg.Kafka.ResponseTopic)
	assert.Equal(t, "calc-responses", cfg.Kafka.ResponseGroupID())
	assert.Equal(t, 5, cfg.Kafka.RetryCount)
	assert.Equal(t, 250*time.Millisecond, cfg.Kafka.RetryDelay())
	assert.Equal(t, 10*time.Second, cfg.Results.WaitTimeout)
	assert.Equal(t, "debug", cfg.Logging.Level)
	// untouched sections keep their defaults
	assert.Equal(t, 8080, cfg.Server.Port)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reading config file")
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("CALC_KAFKA_BOOTSTRAP_SERVERS", "a:9092, b:9092,")
	t.Setenv("CALC_KAFKA_GROUP_ID", "workers")
	t.Setenv("CALC_KAFKA_RETRY_COUNT", "7")
	t.Setenv("CALC_KAFKA_RETRY_DELAY_MS", "20")
	t.Setenv("CALC_REDIS_ENABLED", "true")
	t.Setenv("CALC_SERVER_PORT", "not-a-number")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, []string{"a:9092", "b:9092"}, cfg.Kafka.BootstrapServers)
	assert.Equal(t, "workers-responses", cfg.Kafka.ResponseGroupID())
	assert.Equal(t, 7, cfg.Kafka.RetryCount)
	assert.Equal(t, 20*time.Millisecond, cfg.Kafka.RetryDelay())
	assert.True(t, cfg.Redis.Enabled)
	assert.Equal(t, 8080, cfg.Server.Port, "invalid override is ignored")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"no brokers", func(c *Config) { c.Kafka.BootstrapServers = nil }, "bootstrapServers"},
		{"same topics", func(c *Config) { c.Kafka.ResponseTopic = c.Kafka.RequestTopic }, "must differ"},
		{"negative retries", func(c *Config) { c.Kafka.RetryCount = -1 }, "retryCount"},
		{"zero poll interval", func(c *Config) { c.Results.PollInterval = 0 }, "pollInterval"},
		{"max below default wait", func(c *Config) { c.Results.MaxWaitTimeout = time.Second }, "maxWaitTimeout"},
		{"write timeout cuts long poll", func(c *Config) { c.Results.MaxWaitTimeout = 2 * time.Minute }, "writeTimeout"},
		{"write timeout equals max wait", func(c *Config) { c.Server.WriteTimeout = c.Results.MaxWaitTimeout }, "writeTimeout"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}

	assert.NoError(t, defaultConfig().Validate())
}
