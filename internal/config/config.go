package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// MinPort is the minimum valid port number
	MinPort = 1
	// MaxPort is the maximum valid port number
	MaxPort = 65535
)

// Duration is a time.Duration that unmarshals from yaml scalars like "30s"
// or plain nanosecond integers.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err == nil {
		parsed, perr := time.ParseDuration(s)
		if perr != nil {
			return fmt.Errorf("invalid duration %q: %w", s, perr)
		}
		*d = Duration(parsed)
		return nil
	}

	var n int64
	if err := value.Decode(&n); err != nil {
		return fmt.Errorf("invalid duration value: %w", err)
	}
	*d = Duration(n)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Config represents the complete application configuration
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	RabbitMQ  RabbitMQConfig  `yaml:"rabbitmq"`
	Ledger    LedgerConfig    `yaml:"ledger"`
	Processor ProcessorConfig `yaml:"processor"`
	Poller    PollerConfig    `yaml:"poller"`
	Token     TokenConfig     `yaml:"token"`
	Logging   LoggingConfig   `yaml:"logging"`
	App       AppConfig       `yaml:"app"`
	Worker    WorkerConfig    `yaml:"worker"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            int      `yaml:"port"`
	ReadTimeout     Duration `yaml:"read_timeout"`
	WriteTimeout    Duration `yaml:"write_timeout"`
	IdleTimeout     Duration `yaml:"idle_timeout"`
	ShutdownTimeout Duration `yaml:"shutdown_timeout"`
}

// DatabaseConfig holds PostgreSQL connection configuration
type DatabaseConfig struct {
	Host            string   `yaml:"host"`
	Port            int      `yaml:"port"`
	User            string   `yaml:"user"`
	Password        string   `yaml:"password"`
	Database        string   `yaml:"database"`
	SSLMode         string   `yaml:"sslmode"`
	MaxOpenConns    int      `yaml:"max_open_conns"`
	MaxIdleConns    int      `yaml:"max_idle_conns"`
	ConnMaxLifetime Duration `yaml:"conn_max_lifetime"`
	ConnMaxIdleTime Duration `yaml:"conn_max_idle_time"`
}

// RabbitMQConfig holds RabbitMQ connection and exchange/queue configuration
type RabbitMQConfig struct {
	Host       string           `yaml:"host"`
	Port       int              `yaml:"port"`
	User       string           `yaml:"user"`
	Password   string           `yaml:"password"`
	VHost      string           `yaml:"vhost"`
	Exchange   ExchangeConfig   `yaml:"exchange"`
	Queue      QueueConfig      `yaml:"queue"`
	RoutingKey string           `yaml:"routing_key"`
	Connection ConnectionConfig `yaml:"connection"`
	Publish    PublishConfig    `yaml:"publish"`
	Consumer   ConsumerConfig   `yaml:"consumer"`
}

// ExchangeConfig holds RabbitMQ exchange configuration
type ExchangeConfig struct {
	Name       string `yaml:"name"`
	Type       string `yaml:"type"`
	Durable    bool   `yaml:"durable"`
	AutoDelete bool   `yaml:"auto_delete"`
}

// QueueConfig holds RabbitMQ queue configuration
type QueueConfig struct {
	Name       string `yaml:"name"`
	Durable    bool   `yaml:"durable"`
	AutoDelete bool   `yaml:"auto_delete"`
	Exclusive  bool   `yaml:"exclusive"`
}

// ConnectionConfig holds RabbitMQ connection settings
type ConnectionConfig struct {
	RetryAttempts     int      `yaml:"retry_attempts"`
	RetryInterval     Duration `yaml:"retry_interval"`
	Heartbeat         Duration `yaml:"heartbeat"`
	ConnectionTimeout Duration `yaml:"connection_timeout"`
}

// PublishConfig holds RabbitMQ publish retry settings
type PublishConfig struct {
	RetryAttempts     int      `yaml:"retry_attempts"`
	RetryInterval     Duration `yaml:"retry_interval"`
	BackoffMultiplier float64  `yaml:"backoff_multiplier"`
}

// ConsumerConfig holds RabbitMQ consumer settings
type ConsumerConfig struct {
	PrefetchCount int  `yaml:"prefetch_count"`
	AutoAck       bool `yaml:"auto_ack"`
	Exclusive     bool `yaml:"exclusive"`
}

// LedgerConfig holds Algorand node/indexer endpoints and the fixed payment
// parameters the broker charges for a job.
type LedgerConfig struct {
	AlgodURL      string `yaml:"algod_url"`
	AlgodToken    string `yaml:"algod_token"`
	IndexerURL    string `yaml:"indexer_url"`
	IndexerToken  string `yaml:"indexer_token"`
	Receiver      string `yaml:"receiver"`
	AppID         uint64 `yaml:"app_id"`
	Method        string `yaml:"method"`
	PaymentAmount uint64 `yaml:"payment_amount"`
	FlatFee       uint64 `yaml:"flat_fee"`
}

// ProcessorConfig holds settings for the external compute backend. The API
// key comes from the OPENAI_API_KEY environment variable, never from yaml.
type ProcessorConfig struct {
	Model        string  `yaml:"model"`
	MaxTokens    int     `yaml:"max_tokens"`
	Temperature  float32 `yaml:"temperature"`
	SystemPrompt string  `yaml:"system_prompt"`
}

// PollerConfig holds settings for the recovery poller that re-dispatches
// authorized jobs which never reached a worker.
type PollerConfig struct {
	Interval     Duration `yaml:"interval"`
	ErrorBackoff Duration `yaml:"error_backoff"`
	BatchSize    int      `yaml:"batch_size"`
}

// TokenConfig holds access-token policy settings.
type TokenConfig struct {
	// BindContext requires the client IP and user agent presented at
	// validation time to match the issuance context. Mismatches fail closed.
	BindContext bool `yaml:"bind_context"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level            string `yaml:"level"`
	Format           string `yaml:"format"`
	Output           string `yaml:"output"`
	EnableCaller     bool   `yaml:"enable_caller"`
	EnableStackTrace bool   `yaml:"enable_stack_trace"`
}

// AppConfig holds application metadata
type AppConfig struct {
	Name        string `yaml:"name"`
	Version     string `yaml:"version"`
	Environment string `yaml:"environment"`
}

// WorkerConfig holds worker service configuration
type WorkerConfig struct {
	Concurrency     int      `yaml:"concurrency"`
	JobTimeout      Duration `yaml:"job_timeout"`
	ShutdownTimeout Duration `yaml:"shutdown_timeout"`
}

// Load reads and parses the configuration file
func Load(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return &config, nil
}

// validateShared checks configuration required by both services.
func (c *Config) validateShared() error {
	if c.Database.Host == "" {
		return fmt.Errorf("database host is required")
	}

	if c.Database.Port < MinPort || c.Database.Port > MaxPort {
		return fmt.Errorf("invalid database port: %d (must be between %d and %d)", c.Database.Port, MinPort, MaxPort)
	}

	if c.Database.Database == "" {
		return fmt.Errorf("database name is required")
	}

	if c.RabbitMQ.Host == "" {
		return fmt.Errorf("rabbitmq host is required")
	}

	if c.RabbitMQ.Port < MinPort || c.RabbitMQ.Port > MaxPort {
		return fmt.Errorf("invalid rabbitmq port: %d (must be between %d and %d)", c.RabbitMQ.Port, MinPort, MaxPort)
	}

	if c.RabbitMQ.Exchange.Name == "" {
		return fmt.Errorf("rabbitmq exchange name is required")
	}

	if c.RabbitMQ.Queue.Name == "" {
		return fmt.Errorf("rabbitmq queue name is required")
	}

	return nil
}

// validateLedger checks the payment parameters shared by both services.
func (c *Config) validateLedger() error {
	if c.Ledger.AlgodURL == "" {
		return fmt.Errorf("ledger algod_url is required")
	}

	if c.Ledger.IndexerURL == "" {
		return fmt.Errorf("ledger indexer_url is required")
	}

	if c.Ledger.Receiver == "" {
		return fmt.Errorf("ledger receiver address is required")
	}

	if c.Ledger.AppID == 0 {
		return fmt.Errorf("ledger app_id is required")
	}

	if c.Ledger.Method == "" {
		return fmt.Errorf("ledger method signature is required")
	}

	if c.Ledger.PaymentAmount == 0 {
		return fmt.Errorf("ledger payment_amount must be greater than 0")
	}

	return nil
}

// ValidateAPIConfig checks configuration required by the API service.
func (c *Config) ValidateAPIConfig() error {
	if c.Server.Port < MinPort || c.Server.Port > MaxPort {
		return fmt.Errorf("invalid server port: %d (must be between %d and %d)", c.Server.Port, MinPort, MaxPort)
	}

	if err := c.validateShared(); err != nil {
		return err
	}

	return c.validateLedger()
}

// ValidateWorkerConfig checks configuration required by the worker service.
func (c *Config) ValidateWorkerConfig() error {
	if err := c.validateShared(); err != nil {
		return err
	}

	if c.Worker.Concurrency <= 0 {
		return fmt.Errorf("worker concurrency must be greater than 0")
	}

	if c.Worker.JobTimeout <= 0 {
		return fmt.Errorf("worker job_timeout must be greater than 0")
	}

	if c.Poller.Interval <= 0 {
		return fmt.Errorf("poller interval must be greater than 0")
	}

	if c.Poller.ErrorBackoff <= 0 {
		return fmt.Errorf("poller error_backoff must be greater than 0")
	}

	return nil
}
