package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/nickthelegend/0rca-agent-template/internal/api/handler"
	"github.com/nickthelegend/0rca-agent-template/internal/api/router"
	"github.com/nickthelegend/0rca-agent-template/internal/config"
	"github.com/nickthelegend/0rca-agent-template/internal/ledger"
	"github.com/nickthelegend/0rca-agent-template/internal/metrics"
	"github.com/nickthelegend/0rca-agent-template/internal/payment"
	"github.com/nickthelegend/0rca-agent-template/internal/store"
	"github.com/nickthelegend/0rca-agent-template/internal/token"
	"github.com/nickthelegend/0rca-agent-template/shared/logger"
	"github.com/nickthelegend/0rca-agent-template/shared/postgresql"
	"github.com/nickthelegend/0rca-agent-template/shared/rabbitmq"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables or flags")
	}

	// Parse command-line flags
	defaultConfigPath := os.Getenv("API_SERVICE_CONFIG_PATH")
	if defaultConfigPath == "" {
		defaultConfigPath = "configs/api-service/config.yaml"
	}
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.ValidateAPIConfig(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	// Initialize logger
	appLogger, err := initLogger(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	appLogger.Info("Starting API service",
		slog.String("app", cfg.App.Name),
		slog.String("version", cfg.App.Version),
		slog.String("environment", cfg.App.Environment),
	)

	// Initialize PostgreSQL client
	dbClient, err := initPostgreSQL(&cfg.Database, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}

	appLogger.Info("Database connection established")

	// Initialize the job store and apply the schema
	jobStore := store.New(dbClient, appLogger.Logger)
	if err := jobStore.Migrate(context.Background()); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}

	// Initialize RabbitMQ client
	rabbitClient, err := initRabbitMQ(&cfg.RabbitMQ, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize RabbitMQ: %w", err)
	}

	appLogger.Info("RabbitMQ connection established")

	// Initialize the ledger gateway and payment verifier
	gateway, err := ledger.New(ledgerConfig(&cfg.Ledger), appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize ledger gateway: %w", err)
	}

	verifier := payment.NewVerifier(jobStore, gateway, payment.Expectation{
		Receiver:       cfg.Ledger.Receiver,
		Amount:         cfg.Ledger.PaymentAmount,
		AppID:          cfg.Ledger.AppID,
		MethodSelector: gateway.MethodSelector(),
	}, appLogger.Logger)

	tokens := token.NewIssuer(jobStore, cfg.Token.BindContext, appLogger.Logger)
	brokerMetrics := metrics.New(prometheus.NewRegistry())

	// Initialize router
	r := initRouter(cfg.App.Environment, &handler.Dependencies{
		Logger:   appLogger.Logger,
		Store:    jobStore,
		Gateway:  gateway,
		Verifier: verifier,
		Tokens:   tokens,
		Queue:    rabbitClient,
		Metrics:  brokerMetrics,
	})

	// Create HTTP server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout.Std(),
		WriteTimeout: cfg.Server.WriteTimeout.Std(),
		IdleTimeout:  cfg.Server.IdleTimeout.Std(),
	}

	appLogger.Info("Starting HTTP server",
		slog.String("address", addr),
		slog.Duration("read_timeout", cfg.Server.ReadTimeout.Std()),
		slog.Duration("write_timeout", cfg.Server.WriteTimeout.Std()),
	)

	// Start server in goroutine
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.Error("Server failed to start",
				slog.Any("error", err),
			)
			os.Exit(1)
		}
	}()

	appLogger.Info("API service is running",
		slog.String("address", addr),
	)

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down server...")

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout.Std())

	// Cleanup function to close all resources
	cleanup := func() {
		cancel()
		if dbClient != nil {
			dbClient.Close()
		}
		if rabbitClient != nil {
			rabbitClient.Close()
		}
	}
	defer cleanup()

	if err := srv.Shutdown(ctx); err != nil {
		appLogger.Error("Server forced to shutdown",
			slog.Any("error", err),
		)
		return err
	}

	appLogger.Info("Server shutdown complete")
	return nil
}

// initLogger initializes and configures the application logger
func initLogger(cfg *config.LoggingConfig) (*logger.Logger, error) {
	loggerCfg := &logger.Config{
		Level:        cfg.Level,
		Format:       cfg.Format,
		Output:       cfg.Output,
		EnableSource: cfg.EnableCaller,
		TimeFormat:   time.RFC3339,
	}

	return logger.New(loggerCfg)
}

// initPostgreSQL initializes the PostgreSQL database client
func initPostgreSQL(cfg *config.DatabaseConfig, logger *slog.Logger) (*postgresql.Client, error) {
	dbConfig := &postgresql.Config{
		Host:            cfg.Host,
		Port:            cfg.Port,
		User:            cfg.User,
		Password:        cfg.Password,
		Database:        cfg.Database,
		SSLMode:         cfg.SSLMode,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime.Std(),
		ConnMaxIdleTime: cfg.ConnMaxIdleTime.Std(),
	}

	return postgresql.NewClient(dbConfig, logger)
}

// initRabbitMQ initializes the RabbitMQ client
func initRabbitMQ(cfg *config.RabbitMQConfig, logger *slog.Logger) (*rabbitmq.Client, error) {
	rabbitConfig := &rabbitmq.Config{
		Host:               cfg.Host,
		Port:               cfg.Port,
		User:               cfg.User,
		Password:           cfg.Password,
		VHost:              cfg.VHost,
		ExchangeName:       cfg.Exchange.Name,
		ExchangeType:       cfg.Exchange.Type,
		ExchangeDurable:    cfg.Exchange.Durable,
		ExchangeAutoDelete: cfg.Exchange.AutoDelete,
		QueueName:          cfg.Queue.Name,
		QueueDurable:       cfg.Queue.Durable,
		QueueAutoDelete:    cfg.Queue.AutoDelete,
		QueueExclusive:     cfg.Queue.Exclusive,
		RoutingKey:         cfg.RoutingKey,
		RetryAttempts:      cfg.Connection.RetryAttempts,
		RetryInterval:      cfg.Connection.RetryInterval.Std(),
		Heartbeat:          cfg.Connection.Heartbeat.Std(),
		ConnectionTimeout:  cfg.Connection.ConnectionTimeout.Std(),
		PublishRetries:     cfg.Publish.RetryAttempts,
		PublishRetryDelay:  cfg.Publish.RetryInterval.Std(),
		PublishBackoffMult: cfg.Publish.BackoffMultiplier,
	}

	return rabbitmq.NewClient(rabbitConfig, logger)
}

// ledgerConfig maps the yaml ledger section to the gateway config.
func ledgerConfig(cfg *config.LedgerConfig) ledger.Config {
	return ledger.Config{
		AlgodURL:      cfg.AlgodURL,
		AlgodToken:    cfg.AlgodToken,
		IndexerURL:    cfg.IndexerURL,
		IndexerToken:  cfg.IndexerToken,
		Receiver:      cfg.Receiver,
		AppID:         cfg.AppID,
		Method:        cfg.Method,
		PaymentAmount: cfg.PaymentAmount,
		FlatFee:       cfg.FlatFee,
	}
}

// initRouter initializes the Gin router with all routes and middleware
func initRouter(environment string, deps *handler.Dependencies) *gin.Engine {
	// Set Gin mode based on environment
	if environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	// Setup router
	return router.SetupRouter(deps)
}
