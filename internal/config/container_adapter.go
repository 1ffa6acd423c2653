package config

import (
	"github.com/garyjia/expense-approval/internal/container"
)

// ToContainerConfig converts the file-based Config into the container's configuration
func (c *Config) ToContainerConfig() *container.Config {
	return &container.Config{
		Database: container.DatabaseConfig{
			Path:            c.Database.Path,
			MaxOpenConns:    c.Database.MaxOpenConns,
			MaxIdleConns:    c.Database.MaxIdleConns,
			ConnMaxLifetime: c.Database.ConnMaxLifetime,
			BusyTimeout:     c.Database.BusyTimeout,
		},
		Redis: container.RedisConfig{
			Enabled:  c.Redis.Enabled,
			Addr:     c.Redis.Addr,
			Password: c.Redis.Password,
			DB:       c.Redis.DB,
			RuleTTL:  c.Redis.RuleTTL,
		},
		Currency: container.CurrencyConfig{
			BaseURL:           c.Currency.BaseURL,
			Timeout:           c.Currency.Timeout,
			CacheTTL:          c.Currency.CacheTTL,
			MaxAttempts:       c.Currency.MaxAttempts,
			BackfillInterval:  c.Currency.BackfillInterval,
			BackfillBatchSize: c.Currency.BackfillBatchSize,
			BackfillTimeout:   c.Currency.BackfillTimeout,
		},
		OpenAI: container.OpenAIConfig{
			APIKey:      c.OpenAI.APIKey,
			BaseURL:     c.OpenAI.BaseURL,
			Model:       c.OpenAI.Model,
			PromptsPath: c.OpenAI.PromptsPath,
			Categories:  c.OpenAI.Categories,
		},
		Workflow: container.WorkflowConfig{
			QueryPageSize:       c.Workflow.QueryPageSize,
			HandlerTimeout:      c.Workflow.HandlerTimeout,
			MaxInFlightHandlers: c.Workflow.MaxInFlightHandlers,
		},
		Export: container.ExportConfig{
			TemplatePath: c.Export.TemplatePath,
			StartRow:     c.Export.StartRow,
		},
		Server: container.ServerConfig{
			Host:           c.Server.Host,
			Port:           c.Server.Port,
			ReadTimeout:    c.Server.ReadTimeout,
			WriteTimeout:   c.Server.WriteTimeout,
			MaxUploadBytes: c.Server.MaxUploadBytes,
		},
	}
}
