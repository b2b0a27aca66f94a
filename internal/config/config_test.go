package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validLedger() LedgerConfig {
	return LedgerConfig{
		AlgodURL:      "https://testnet-api.algonode.cloud",
		IndexerURL:    "https://testnet-idx.algonode.cloud",
		Receiver:      "WAKOSD5LW5FQ5LZZ5AXNWIKGS6QIDMJWCHAMSWV7YRLBD6NYZMLHVNVOOY",
		AppID:         749378614,
		Method:        "pay(pay)void",
		PaymentAmount: 1_000_000,
		FlatFee:       2000,
	}
}

func validAPIConfig() *Config {
	return &Config{
		Server: ServerConfig{Port: 8080},
		Database: DatabaseConfig{
			Host:     "localhost",
			Port:     5432,
			Database: "agent_broker",
		},
		RabbitMQ: RabbitMQConfig{
			Host: "localhost",
			Port: 5672,
			Exchange: ExchangeConfig{
				Name: "jobs.exchange",
			},
			Queue: QueueConfig{
				Name: "jobs.dispatch",
			},
		},
		Ledger: validLedger(),
	}
}

func TestLoad(t *testing.T) {
	tests := []struct {
		name      string
		filePath  string
		wantErr   bool
		errString string
	}{
		{
			name:     "valid config file",
			filePath: "testdata/valid_config.yaml",
			wantErr:  false,
		},
		{
			name:      "non-existent file",
			filePath:  "testdata/nonexistent.yaml",
			wantErr:   true,
			errString: "failed to read config file",
		},
		{
			name:      "malformed yaml",
			filePath:  "testdata/malformed.yaml",
			wantErr:   true,
			errString: "failed to parse config file",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load(tt.filePath)

			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errString)
				assert.Nil(t, cfg)
			} else {
				require.NoError(t, err)
				require.NotNil(t, cfg)

				// Verify some key fields are populated
				assert.Equal(t, 8080, cfg.Server.Port)
				assert.Equal(t, "localhost", cfg.Database.Host)
				assert.Equal(t, 5432, cfg.Database.Port)
				assert.Equal(t, "agent_broker", cfg.Database.Database)
				assert.Equal(t, "jobs.exchange", cfg.RabbitMQ.Exchange.Name)
				assert.Equal(t, "jobs.dispatch", cfg.RabbitMQ.Queue.Name)
				assert.Equal(t, uint64(749378614), cfg.Ledger.AppID)
				assert.Equal(t, uint64(1_000_000), cfg.Ledger.PaymentAmount)
				assert.Equal(t, "pay(pay)void", cfg.Ledger.Method)
				assert.Equal(t, "agent-api-service", cfg.App.Name)
			}
		})
	}
}

func TestDuration_UnmarshalYAML(t *testing.T) {
	cfg, err := Load("testdata/valid_config.yaml")
	require.NoError(t, err)

	assert.Equal(t, 10*time.Second, cfg.Server.ReadTimeout.Std())
	assert.Equal(t, 60*time.Second, cfg.Server.IdleTimeout.Std())
	assert.Equal(t, 5*time.Minute, cfg.Database.ConnMaxLifetime.Std())
	assert.Equal(t, 500*time.Millisecond, cfg.RabbitMQ.Publish.RetryInterval.Std())
	assert.Equal(t, 5*time.Second, cfg.Poller.Interval.Std())
	assert.Equal(t, 10*time.Second, cfg.Poller.ErrorBackoff.Std())
}

func TestConfig_ValidateAPIConfig(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Config)
		wantErr   bool
		errString string
	}{
		{
			name:    "valid config",
			mutate:  func(c *Config) {},
			wantErr: false,
		},
		{
			name:      "invalid server port - too low",
			mutate:    func(c *Config) { c.Server.Port = 0 },
			wantErr:   true,
			errString: "invalid server port",
		},
		{
			name:      "invalid server port - too high",
			mutate:    func(c *Config) { c.Server.Port = 70000 },
			wantErr:   true,
			errString: "invalid server port",
		},
		{
			name:      "empty database host",
			mutate:    func(c *Config) { c.Database.Host = "" },
			wantErr:   true,
			errString: "database host is required",
		},
		{
			name:      "empty database name",
			mutate:    func(c *Config) { c.Database.Database = "" },
			wantErr:   true,
			errString: "database name is required",
		},
		{
			name:      "empty rabbitmq host",
			mutate:    func(c *Config) { c.RabbitMQ.Host = "" },
			wantErr:   true,
			errString: "rabbitmq host is required",
		},
		{
			name:      "empty exchange name",
			mutate:    func(c *Config) { c.RabbitMQ.Exchange.Name = "" },
			wantErr:   true,
			errString: "rabbitmq exchange name is required",
		},
		{
			name:      "empty queue name",
			mutate:    func(c *Config) { c.RabbitMQ.Queue.Name = "" },
			wantErr:   true,
			errString: "rabbitmq queue name is required",
		},
		{
			name:      "missing algod url",
			mutate:    func(c *Config) { c.Ledger.AlgodURL = "" },
			wantErr:   true,
			errString: "ledger algod_url is required",
		},
		{
			name:      "missing indexer url",
			mutate:    func(c *Config) { c.Ledger.IndexerURL = "" },
			wantErr:   true,
			errString: "ledger indexer_url is required",
		},
		{
			name:      "missing receiver",
			mutate:    func(c *Config) { c.Ledger.Receiver = "" },
			wantErr:   true,
			errString: "ledger receiver address is required",
		},
		{
			name:      "zero app id",
			mutate:    func(c *Config) { c.Ledger.AppID = 0 },
			wantErr:   true,
			errString: "ledger app_id is required",
		},
		{
			name:      "zero payment amount",
			mutate:    func(c *Config) { c.Ledger.PaymentAmount = 0 },
			wantErr:   true,
			errString: "ledger payment_amount must be greater than 0",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validAPIConfig()
			tt.mutate(cfg)

			err := cfg.ValidateAPIConfig()

			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errString)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestConfig_ValidateWorkerConfig(t *testing.T) {
	validWorker := func() *Config {
		cfg := validAPIConfig()
		cfg.Worker = WorkerConfig{
			Concurrency: 5,
			JobTimeout:  Duration(5 * time.Minute),
		}
		cfg.Poller = PollerConfig{
			Interval:     Duration(5 * time.Second),
			ErrorBackoff: Duration(10 * time.Second),
			BatchSize:    50,
		}
		return cfg
	}

	tests := []struct {
		name      string
		mutate    func(*Config)
		wantErr   bool
		errString string
	}{
		{
			name:    "valid config",
			mutate:  func(c *Config) {},
			wantErr: false,
		},
		{
			name:      "zero concurrency",
			mutate:    func(c *Config) { c.Worker.Concurrency = 0 },
			wantErr:   true,
			errString: "worker concurrency must be greater than 0",
		},
		{
			name:      "zero job timeout",
			mutate:    func(c *Config) { c.Worker.JobTimeout = 0 },
			wantErr:   true,
			errString: "worker job_timeout must be greater than 0",
		},
		{
			name:      "zero poller interval",
			mutate:    func(c *Config) { c.Poller.Interval = 0 },
			wantErr:   true,
			errString: "poller interval must be greater than 0",
		},
		{
			name:      "zero poller backoff",
			mutate:    func(c *Config) { c.Poller.ErrorBackoff = 0 },
			wantErr:   true,
			errString: "poller error_backoff must be greater than 0",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validWorker()
			tt.mutate(cfg)

			err := cfg.ValidateWorkerConfig()

			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errString)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestLoad_ValidateIntegration(t *testing.T) {
	t.Run("load and validate valid config", func(t *testing.T) {
		cfg, err := Load("testdata/valid_config.yaml")
		require.NoError(t, err)
		require.NotNil(t, cfg)

		require.NoError(t, cfg.ValidateAPIConfig())
		require.NoError(t, cfg.ValidateWorkerConfig())
	})

	t.Run("load config with invalid port", func(t *testing.T) {
		cfg, err := Load("testdata/invalid_port.yaml")
		require.NoError(t, err)
		require.NotNil(t, cfg)

		err = cfg.ValidateAPIConfig()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid server port")
	})

	t.Run("load config with missing database", func(t *testing.T) {
		cfg, err := Load("testdata/missing_database.yaml")
		require.NoError(t, err)
		require.NotNil(t, cfg)

		err = cfg.ValidateAPIConfig()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "database name is required")
	})
}
