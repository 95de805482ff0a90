// Package config provides configuration structures and validation for the
// invoice ledger services. Values come from defaults, an optional .env file
// and the environment, in that order of precedence.
package config

import (
	"errors"
	"strings"
	"time"
)

// Ledger backends
const (
	BackendFile     = "file"
	BackendPostgres = "postgres"
	BackendMongo    = "mongo"
)

// Config holds the complete application configuration with settings for all components.
// Each field represents a major subsystem's configuration and is validated during
// application startup.
type Config struct {
	Application ApplicationConfig
	Logging     LoggingConfig
	Server      ServerConfig
	Kafka       KafkaConfig
	Postgres    PostgresConfig
	MongoDB     MongoDBConfig
	Ledger      LedgerConfig
	Reporter    ReporterConfig
	WorkerPool  WorkerPoolConfig
}

// ApplicationConfig contains general application configuration
type ApplicationConfig struct {
	Env  string
	Name string
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level string
}

// ServerConfig contains HTTP server configuration settings
type ServerConfig struct {
	Port            int           // Port to listen on
	ShutdownTimeout time.Duration // Grace period for server shutdown
	ReadTimeout     time.Duration // Maximum duration for reading entire request
	WriteTimeout    time.Duration // Maximum duration for writing response
	IdleTimeout     time.Duration // Maximum duration to wait for next request
}

// KafkaConfig contains Kafka configuration
type KafkaConfig struct {
	Brokers           string
	EventTopic        string // Inbound chat events
	NumPartitions     int
	ReplicationFactor int
	ConsumerGroup     string
	MinBytes          int
	MaxBytes          int
	MaxWait           time.Duration
	StartOffset       int64
	DLQTopic          string // Undecodable chat events
	ReportTopic       string // Scheduled totals reports

	HandlerRetryAttempts int           // Attempts per message before it is left uncommitted
	HandlerRetryDelay    time.Duration // Base delay between attempts
}

// PostgresConfig contains PostgreSQL configuration
type PostgresConfig struct {
	URL             string        // Database connection string
	MaxConns        int32         // Maximum number of open connections
	MinConns        int32         // Maximum number of idle connections
	ConnMaxLifetime time.Duration // Maximum lifetime of a connection
	ConnMaxIdleTime time.Duration // Maximum idle time of a connection
	MigrationsPath  string        // Path to migration files
}

// MongoDBConfig contains MongoDB configuration
type MongoDBConfig struct {
	URI             string
	Database        string
	Timeout         time.Duration
	MaxPoolSize     uint64
	MinPoolSize     uint64
	MaxConnIdleTime time.Duration
}

// LedgerConfig selects and locates the ledger store
type LedgerConfig struct {
	Backend  string
	Dir      string // Root directory of the file backend
	TimeZone string
	Location *time.Location // Resolved from TimeZone
}

// ReporterConfig controls the scheduled totals report
type ReporterConfig struct {
	Enabled          bool
	Interval         time.Duration
	Window           string // e.g. "today", "week", "trailing:30"
	GroupBy          string // Comma separated dimensions
	MaxRetryAttempts int
	RetryDelay       time.Duration
}

// GroupByList splits GroupBy into its trimmed, non-empty dimensions
func (c ReporterConfig) GroupByList() []string {
	var dims []string
	for _, d := range strings.Split(c.GroupBy, ",") {
		if d = strings.TrimSpace(d); d != "" {
			dims = append(dims, d)
		}
	}
	return dims
}

// WorkerPoolConfig contains worker pool configuration
type WorkerPoolConfig struct {
	Size int // Maximum number of workers in the pool
}

// validate performs validation of all configuration values. Connection
// settings are only checked for the ledger backend that is selected.
func (c *Config) validate() error {
	var validationErrors []string

	// Validate Server config
	if c.Server.Port <= 0 {
		validationErrors = append(validationErrors, "SERVER_PORT must be greater than 0")
	}
	if c.Server.ShutdownTimeout <= 0 {
		validationErrors = append(validationErrors, "SERVER_SHUTDOWN_TIMEOUT must be greater than 0")
	}
	if c.Server.ReadTimeout <= 0 {
		validationErrors = append(validationErrors, "SERVER_READ_TIMEOUT must be greater than 0")
	}
	if c.Server.WriteTimeout <= 0 {
		validationErrors = append(validationErrors, "SERVER_WRITE_TIMEOUT must be greater than 0")
	}
	if c.Server.IdleTimeout <= 0 {
		validationErrors = append(validationErrors, "SERVER_IDLE_TIMEOUT must be greater than 0")
	}

	// Validate Kafka config
	if len(c.Kafka.Brokers) == 0 {
		validationErrors = append(validationErrors, "KAFKA_BROKERS is required")
	}
	if c.Kafka.EventTopic == "" {
		validationErrors = append(validationErrors, "KAFKA_EVENT_TOPIC is required")
	}
	if c.Kafka.ConsumerGroup == "" {
		validationErrors = append(validationErrors, "KAFKA_CONSUMER_GROUP is required")
	}
	if c.Kafka.MinBytes <= 0 {
		validationErrors = append(validationErrors, "KAFKA_CONSUMER_MIN_BYTES must be greater than 0")
	}
	if c.Kafka.MaxBytes <= 0 {
		validationErrors = append(validationErrors, "KAFKA_CONSUMER_MAX_BYTES must be greater than 0")
	}
	if c.Kafka.MaxWait <= 0 {
		validationErrors = append(validationErrors, "KAFKA_CONSUMER_MAX_WAIT must be greater than 0")
	}
	if c.Kafka.DLQTopic == "" {
		validationErrors = append(validationErrors, "KAFKA_DLQ_TOPIC is required")
	}
	if c.Kafka.HandlerRetryAttempts <= 0 {
		validationErrors = append(validationErrors, "KAFKA_HANDLER_RETRY_ATTEMPTS must be greater than 0")
	}

	// Validate Ledger config
	switch c.Ledger.Backend {
	case BackendFile:
		if c.Ledger.Dir == "" {
			validationErrors = append(validationErrors, "LEDGER_DIR is required for the file backend")
		}
	case BackendPostgres:
		validationErrors = append(validationErrors, c.Postgres.validate()...)
	case BackendMongo:
		validationErrors = append(validationErrors, c.MongoDB.validate()...)
	default:
		validationErrors = append(validationErrors, "LEDGER_BACKEND must be one of file, postgres, mongo")
	}
	if c.Ledger.Location == nil {
		validationErrors = append(validationErrors, "LEDGER_TIME_ZONE must be a valid IANA time zone")
	}

	// Validate Reporter config
	if c.Reporter.Enabled {
		if c.Kafka.ReportTopic == "" {
			validationErrors = append(validationErrors, "KAFKA_REPORT_TOPIC is required when the reporter is enabled")
		}
		if c.Reporter.Interval <= 0 {
			validationErrors = append(validationErrors, "REPORTER_INTERVAL must be greater than 0")
		}
		if c.Reporter.Window == "" {
			validationErrors = append(validationErrors, "REPORTER_WINDOW is required")
		}
		if c.Reporter.MaxRetryAttempts <= 0 {
			validationErrors = append(validationErrors, "REPORTER_MAX_RETRY_ATTEMPTS must be greater than 0")
		}
		if c.Reporter.RetryDelay < 0 {
			validationErrors = append(validationErrors, "REPORTER_RETRY_DELAY must not be negative")
		}
	}

	// Validate WorkerPool config
	if c.WorkerPool.Size <= 0 {
		validationErrors = append(validationErrors, "WORKER_POOL_SIZE must be greater than 0")
	}

	if len(validationErrors) > 0 {
		return errors.New(strings.Join(validationErrors, ", "))
	}

	return nil
}

func (c PostgresConfig) validate() []string {
	var errs []string
	if c.URL == "" {
		errs = append(errs, "POSTGRES_URL is required")
	}
	if c.MaxConns <= 0 {
		errs = append(errs, "POSTGRES_MAX_CONNS must be greater than 0")
	}
	if c.MinConns <= 0 {
		errs = append(errs, "POSTGRES_MIN_CONNS must be greater than 0")
	}
	if c.ConnMaxLifetime <= 0 {
		errs = append(errs, "POSTGRES_MAX_CONN_LIFETIME must be greater than 0")
	}
	if c.ConnMaxIdleTime <= 0 {
		errs = append(errs, "POSTGRES_MAX_CONN_IDLE_TIME must be greater than 0")
	}
	return errs
}

func (c MongoDBConfig) validate() []string {
	var errs []string
	if c.URI == "" {
		errs = append(errs, "MONGO_URI is required")
	}
	if c.Database == "" {
		errs = append(errs, "MONGO_DATABASE is required")
	}
	if c.Timeout <= 0 {
		errs = append(errs, "MONGO_TIMEOUT must be greater than 0")
	}
	if c.MaxPoolSize <= 0 {
		errs = append(errs, "MONGO_MAX_POOL_SIZE must be greater than 0")
	}
	if c.MinPoolSize <= 0 {
		errs = append(errs, "MONGO_MIN_POOL_SIZE must be greater than 0")
	}
	if c.MaxConnIdleTime <= 0 {
		errs = append(errs, "MONGO_MAX_CONN_IDLE_TIME must be greater than 0")
	}
	return errs
}
