// Package config loads service configuration from YAML, an optional .env file
// and environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/subosito/gotenv"
)

// Config holds all application configuration
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Currency CurrencyConfig `mapstructure:"currency"`
	OpenAI   OpenAIConfig   `mapstructure:"openai"`
	Workflow WorkflowConfig `mapstructure:"workflow"`
	Export   ExportConfig   `mapstructure:"export"`
	Logger   LoggerConfig   `mapstructure:"logger"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host           string        `mapstructure:"host"`
	Port           int           `mapstructure:"port"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	MaxUploadBytes int64         `mapstructure:"max_upload_bytes"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path            string        `mapstructure:"path"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	BusyTimeout     time.Duration `mapstructure:"busy_timeout"`
}

// RedisConfig holds rule cache configuration
type RedisConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	RuleTTL  time.Duration `mapstructure:"rule_ttl"`
}

// CurrencyConfig holds exchange rate and backfill configuration
type CurrencyConfig struct {
	BaseURL           string        `mapstructure:"base_url"`
	Timeout           time.Duration `mapstructure:"timeout"`
	CacheTTL          time.Duration `mapstructure:"cache_ttl"`
	MaxAttempts       int           `mapstructure:"max_attempts"`
	BackfillInterval  time.Duration `mapstructure:"backfill_interval"`
	BackfillBatchSize int           `mapstructure:"backfill_batch_size"`
	BackfillTimeout   time.Duration `mapstructure:"backfill_timeout"`
}

// OpenAIConfig holds receipt scanning configuration
type OpenAIConfig struct {
	APIKey      string   `mapstructure:"api_key"`
	BaseURL     string   `mapstructure:"base_url"`
	Model       string   `mapstructure:"model"`
	PromptsPath string   `mapstructure:"prompts_path"`
	Categories  []string `mapstructure:"categories"`
}

// WorkflowConfig holds approval workflow configuration
type WorkflowConfig struct {
	QueryPageSize       int           `mapstructure:"query_page_size"`
	HandlerTimeout      time.Duration `mapstructure:"handler_timeout"`
	MaxInFlightHandlers int64         `mapstructure:"max_in_flight_handlers"`
}

// ExportConfig holds spreadsheet export configuration
type ExportConfig struct {
	TemplatePath string `mapstructure:"template_path"`
	StartRow     int    `mapstructure:"start_row"`
}

// LoggerConfig holds logger configuration
type LoggerConfig struct {
	Level      string `mapstructure:"level"`
	OutputPath string `mapstructure:"output_path"`
	Format     string `mapstructure:"format"`
}

// Load reads configPath, then overlays variables from an optional .env file
// in envPath and the process environment. An empty envPath skips the .env file.
func Load(configPath, envPath string) (*Config, error) {
	if envPath != "" {
		if err := gotenv.Load(envPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load %s: %w", envPath, err)
		}
	}

	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("EXPENSES")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := bindEnvVars(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 60*time.Second)
	v.SetDefault("server.max_upload_bytes", 10<<20)

	v.SetDefault("database.path", "data/expenses.db")
	v.SetDefault("database.max_open_conns", 8)
	v.SetDefault("database.max_idle_conns", 4)
	v.SetDefault("database.conn_max_lifetime", 5*time.Minute)
	v.SetDefault("database.busy_timeout", 5*time.Second)

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.rule_ttl", 10*time.Minute)

	v.SetDefault("currency.base_url", "https://api.exchangerate-api.com/v4/latest")
	v.SetDefault("currency.timeout", 10*time.Second)
	v.SetDefault("currency.cache_ttl", time.Hour)
	v.SetDefault("currency.max_attempts", 5)
	v.SetDefault("currency.backfill_interval", 5*time.Minute)
	v.SetDefault("currency.backfill_batch_size", 50)
	v.SetDefault("currency.backfill_timeout", time.Minute)

	v.SetDefault("openai.model", "gpt-4o")
	v.SetDefault("openai.categories", []string{"Travel", "Meals", "Lodging", "Office Supplies", "Software", "Other"})

	v.SetDefault("workflow.query_page_size", 50)
	v.SetDefault("workflow.handler_timeout", 30*time.Second)
	v.SetDefault("workflow.max_in_flight_handlers", 64)

	v.SetDefault("export.start_row", 2)

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.output_path", "stdout")
	v.SetDefault("logger.format", "json")
}

// bindEnvVars binds the conventional names of secrets and endpoints
func bindEnvVars(v *viper.Viper) error {
	bindings := map[string][]string{
		"openai.api_key":  {"EXPENSES_OPENAI_API_KEY", "OPENAI_API_KEY"},
		"openai.base_url": {"EXPENSES_OPENAI_BASE_URL", "OPENAI_BASE_URL"},
		"redis.addr":      {"EXPENSES_REDIS_ADDR", "REDIS_ADDR"},
		"redis.password":  {"EXPENSES_REDIS_PASSWORD", "REDIS_PASSWORD"},
		"database.path":   {"EXPENSES_DATABASE_PATH", "DATABASE_PATH"},
	}
	for key, envs := range bindings {
		if err := v.BindEnv(append([]string{key}, envs...)...); err != nil {
			return fmt.Errorf("failed to bind %s: %w", key, err)
		}
	}
	return nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d is out of range", c.Server.Port)
	}
	if c.Redis.Enabled && c.Redis.Addr == "" {
		return fmt.Errorf("redis.addr is required when redis is enabled")
	}
	if c.Currency.BaseURL == "" {
		return fmt.Errorf("currency.base_url is required")
	}
	if c.Currency.MaxAttempts <= 0 {
		return fmt.Errorf("currency.max_attempts must be positive")
	}
	if c.Workflow.QueryPageSize <= 0 {
		return fmt.Errorf("workflow.query_page_size must be positive")
	}
	switch c.Logger.Format {
	case "json", "console":
	default:
		return fmt.Errorf("logger.format must be json or console, got %q", c.Logger.Format)
	}
	return nil
}
