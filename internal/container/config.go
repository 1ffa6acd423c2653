// Package container wires the expense approval service together and owns the
// lifecycle of its components.
package container

import (
	"fmt"
	"time"
)

// Config holds all configuration for the Container.
type Config struct {
	Database DatabaseConfig
	Redis    RedisConfig
	Currency CurrencyConfig
	OpenAI   OpenAIConfig
	Workflow WorkflowConfig
	Export   ExportConfig
	Server   ServerConfig
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	// Path to SQLite database file
	Path string

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration

	// BusyTimeout is how long a writer waits for the SQLite write lock
	BusyTimeout time.Duration
}

// RedisConfig holds the rule cache settings. A disabled cache reads rules
// straight from the database.
type RedisConfig struct {
	Enabled  bool
	Addr     string
	Password string
	DB       int
	RuleTTL  time.Duration
}

// CurrencyConfig holds exchange rate and conversion backfill settings.
type CurrencyConfig struct {
	BaseURL  string
	Timeout  time.Duration
	CacheTTL time.Duration

	// MaxAttempts caps how often a failing conversion is retried
	MaxAttempts int

	BackfillInterval  time.Duration
	BackfillBatchSize int
	BackfillTimeout   time.Duration
}

// OpenAIConfig holds receipt scanner settings. An empty APIKey disables scanning.
type OpenAIConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	PromptsPath string
	Categories  []string
}

// WorkflowConfig holds approval workflow settings.
type WorkflowConfig struct {
	// QueryPageSize is the page size used when streaming expense queries
	QueryPageSize int

	// HandlerTimeout bounds each asynchronous event handler
	HandlerTimeout time.Duration

	// MaxInFlightHandlers caps concurrently running asynchronous handlers
	MaxInFlightHandlers int64
}

// ExportConfig holds spreadsheet export settings.
type ExportConfig struct {
	TemplatePath string
	StartRow     int
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host           string
	Port           int
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	MaxUploadBytes int64
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Path:            "data/expenses.db",
			MaxOpenConns:    8,
			MaxIdleConns:    4,
			ConnMaxLifetime: 5 * time.Minute,
			BusyTimeout:     5 * time.Second,
		},
		Redis: RedisConfig{
			Addr:    "localhost:6379",
			RuleTTL: 10 * time.Minute,
		},
		Currency: CurrencyConfig{
			BaseURL:           "https://api.exchangerate-api.com/v4/latest",
			Timeout:           10 * time.Second,
			CacheTTL:          time.Hour,
			MaxAttempts:       5,
			BackfillInterval:  5 * time.Minute,
			BackfillBatchSize: 50,
			BackfillTimeout:   time.Minute,
		},
		OpenAI: OpenAIConfig{
			Model:      "gpt-4o",
			Categories: []string{"Travel", "Meals", "Lodging", "Office Supplies", "Software", "Other"},
		},
		Workflow: WorkflowConfig{
			QueryPageSize:       50,
			HandlerTimeout:      30 * time.Second,
			MaxInFlightHandlers: 64,
		},
		Export: ExportConfig{
			StartRow: 2,
		},
		Server: ServerConfig{
			Host:           "0.0.0.0",
			Port:           8080,
			ReadTimeout:    30 * time.Second,
			WriteTimeout:   60 * time.Second,
			MaxUploadBytes: 10 << 20,
		},
	}
}

// Validate checks that required configuration values are present.
func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.Redis.Enabled && c.Redis.Addr == "" {
		return fmt.Errorf("redis.addr is required when redis is enabled")
	}
	if c.Currency.BaseURL == "" {
		return fmt.Errorf("currency.base_url is required")
	}
	if c.Currency.BackfillInterval <= 0 {
		return fmt.Errorf("currency.backfill_interval must be positive")
	}
	if c.Workflow.QueryPageSize <= 0 {
		return fmt.Errorf("workflow.query_page_size must be positive")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d is out of range", c.Server.Port)
	}
	return nil
}
