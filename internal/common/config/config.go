// internal/common/config/config.go
package config

import (
	"fmt"
	"time"
)

// Config is the main application configuration struct.
type Config struct {
	App      AppConfig               `mapstructure:"app"`
	Logging  LoggingConfig           `mapstructure:"logging"`
	Compiler CompilerConfig          `mapstructure:"compiler"`
	Camunda  CamundaConfig           `mapstructure:"camunda"`
	Model    ModelConfig             `mapstructure:"model"`
	Reports  ReportsConfig           `mapstructure:"reports"`
	Database DatabaseConfig          `mapstructure:"database"`
	AWS      AWSConfig               `mapstructure:"aws"`
	Workers  map[string]WorkerConfig `mapstructure:"workers"`
	Metrics  MetricsConfig           `mapstructure:"metrics"`
}

// --- Core App/Infrastructure Config ---
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// CompilerConfig drives extraction, schema lookup and the retry policy.
type CompilerConfig struct {
	SchemaDir            string  `mapstructure:"schema_dir"`
	RegistryPath         string  `mapstructure:"registry_path"`
	MaxRetries           int     `mapstructure:"max_retries"`
	BaseDelayMs          int     `mapstructure:"base_delay_ms"`
	Multiplier           float64 `mapstructure:"multiplier"`
	MaxDelayMs           int     `mapstructure:"max_delay_ms"`
	RetryRateLimits      bool    `mapstructure:"retry_rate_limits"`
	AllowArrayRoot       bool    `mapstructure:"allow_array_root"`
	ExplanatoryThreshold int     `mapstructure:"explanatory_threshold"`
	BatchConcurrency     int     `mapstructure:"batch_concurrency"`
}

func (c CompilerConfig) BaseDelay() time.Duration {
	return GetDuration(c.BaseDelayMs)
}

func (c CompilerConfig) MaxDelay() time.Duration {
	return GetDuration(c.MaxDelayMs)
}

type CamundaConfig struct {
	BrokerAddress  string `mapstructure:"broker_address"`
	MaxJobsActive  int    `mapstructure:"max_jobs_active"`
	Timeout        int    `mapstructure:"timeout"`         // milliseconds
	RequestTimeout int    `mapstructure:"request_timeout"` // milliseconds
}

// ModelConfig points at an OpenAI-compatible completions endpoint.
type ModelConfig struct {
	Provider    string  `mapstructure:"provider"`
	BaseURL     string  `mapstructure:"base_url"`
	APIKey      string  `mapstructure:"api_key"`
	Model       string  `mapstructure:"model"`
	TimeoutMs   int     `mapstructure:"timeout_ms"`
	Temperature float64 `mapstructure:"temperature"`
	MaxTokens   int     `mapstructure:"max_tokens"`
}

const (
	SinkMemory        = "memory"
	SinkPostgres      = "postgres"
	SinkRedis         = "redis"
	SinkElasticsearch = "elasticsearch"
)

// ReportsConfig selects where failure reports are persisted.
type ReportsConfig struct {
	Sink           string `mapstructure:"sink"`
	RedisPrefix    string `mapstructure:"redis_prefix"`
	RedisTTLHours  int    `mapstructure:"redis_ttl_hours"`
	ESIndex        string `mapstructure:"es_index"`
	NotifyBlocking bool   `mapstructure:"notify_blocking"`
}

type DatabaseConfig struct {
	Postgres      PostgresConfig      `mapstructure:"postgres"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
	Redis         RedisConfig         `mapstructure:"redis"`
}

type PostgresConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Database       string `mapstructure:"database"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	MaxConnections int    `mapstructure:"max_connections"`
	MaxIdle        int    `mapstructure:"max_idle"`
	SSLMode        string `mapstructure:"sslmode"`
}

// GetDSN returns the PostgreSQL connection string
func (p PostgresConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

type ElasticsearchConfig struct {
	Addresses []string `mapstructure:"addresses"`
	Username  string   `mapstructure:"username"`
	Password  string   `mapstructure:"password"`
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type AWSConfig struct {
	Region      string `mapstructure:"region"`
	SNSTopicARN string `mapstructure:"sns_topic_arn"`
	// SESSender enables email notification to NotifyEmails.
	SESSender    string   `mapstructure:"ses_sender"`
	NotifyEmails []string `mapstructure:"notify_emails"`
}

// WorkerConfig holds the core settings applicable to every worker.
type WorkerConfig struct {
	Enabled       bool `mapstructure:"enabled"`
	MaxJobsActive int  `mapstructure:"max_jobs_active"`
	Timeout       int  `mapstructure:"timeout"`     // milliseconds
	MaxRetries    int  `mapstructure:"max_retries"` // job retries in the engine
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Address string `mapstructure:"address"`
}
