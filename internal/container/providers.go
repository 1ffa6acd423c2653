package container

import (
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/garyjia/expense-approval/internal/application/dispatcher"
	"github.com/garyjia/expense-approval/internal/application/port"
	"github.com/garyjia/expense-approval/internal/application/service"
	"github.com/garyjia/expense-approval/internal/domain/event"
	"github.com/garyjia/expense-approval/internal/infrastructure/cache"
	"github.com/garyjia/expense-approval/internal/infrastructure/export"
	"github.com/garyjia/expense-approval/internal/infrastructure/external/exchangerate"
	"github.com/garyjia/expense-approval/internal/infrastructure/external/openai"
	"github.com/garyjia/expense-approval/internal/infrastructure/persistence/repository"
	"github.com/garyjia/expense-approval/internal/infrastructure/persistence/sqlite"
	"github.com/garyjia/expense-approval/internal/infrastructure/worker"
	"github.com/garyjia/expense-approval/migrations"
	"github.com/garyjia/expense-approval/pkg/database"
)

// Dispatcher subscription names
const (
	conversionHandlerName          = "currency-conversion"
	finalizedConversionHandlerName = "currency-conversion-finalized"
	ruleCacheHandlerName           = "rule-cache-invalidation"
)

// DatabaseBundle holds database-related components.
type DatabaseBundle struct {
	SqlDB          *database.DB
	TransactionMgr *sqlite.DB
}

// CacheBundle holds the rule source and, when enabled, its Redis client.
type CacheBundle struct {
	Client     *redis.Client
	RuleSource port.RuleSource
}

// ExternalBundle holds clients of outside services.
type ExternalBundle struct {
	Converter port.CurrencyConverter
	// Scanner is nil when receipt scanning is disabled
	Scanner  port.ReceiptScanner
	Exporter port.ExpenseExporter
}

// ProvideDatabase opens the database and applies pending migrations.
func ProvideDatabase(cfg *DatabaseConfig, logger *zap.Logger) (*DatabaseBundle, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	sqlDB, err := database.New(database.Config{
		Path:            cfg.Path,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
		BusyTimeout:     cfg.BusyTimeout,
	}, logger)
	if err != nil {
		return nil, err
	}

	applied, err := database.NewMigrator(sqlDB, logger).Run(migrations.FS)
	if err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	logger.Info("Migrations applied", zap.Int("count", applied))

	return &DatabaseBundle{
		SqlDB:          sqlDB,
		TransactionMgr: sqlite.NewDB(sqlDB.DB, logger),
	}, nil
}

// ProvideRepositories creates all repositories over the transaction-aware DB.
func ProvideRepositories(db *sqlite.DB, logger *zap.Logger) (*RepositoryBundle, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	return &RepositoryBundle{
		Company:    repository.NewCompanyRepository(db, logger),
		User:       repository.NewUserRepository(db, logger),
		Rule:       repository.NewRuleRepository(db, logger),
		Expense:    repository.NewExpenseRepository(db, logger),
		Conversion: repository.NewConversionRepository(db, logger),
	}, nil
}

// ProvideCache connects to Redis when enabled and returns the rule source to use.
func ProvideCache(cfg *RedisConfig, rules port.RuleRepository, logger *zap.Logger) (*CacheBundle, error) {
	if cfg == nil {
		return nil, fmt.Errorf("redis config is required")
	}
	if !cfg.Enabled {
		logger.Info("Rule cache disabled, reading rules from the database")
		return &CacheBundle{RuleSource: cache.NewDirectRuleSource(rules)}, nil
	}

	client, err := cache.OpenRedis(cfg.Addr, cfg.Password, cfg.DB)
	if err != nil {
		return nil, err
	}
	logger.Info("Rule cache connected", zap.String("addr", cfg.Addr))
	return &CacheBundle{
		Client:     client,
		RuleSource: cache.NewRuleSource(client, rules, cfg.RuleTTL, logger),
	}, nil
}

// ProvideExternal creates the currency converter, receipt scanner and exporter.
func ProvideExternal(cfg *Config, logger *zap.Logger) (*ExternalBundle, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}

	bundle := &ExternalBundle{
		Converter: exchangerate.NewClient(exchangerate.Config{
			BaseURL:  cfg.Currency.BaseURL,
			Timeout:  cfg.Currency.Timeout,
			CacheTTL: cfg.Currency.CacheTTL,
		}, logger),
		Exporter: export.NewXLSXExporter(export.XLSXConfig{
			TemplatePath: cfg.Export.TemplatePath,
			StartRow:     cfg.Export.StartRow,
		}, logger),
	}

	if cfg.OpenAI.APIKey == "" {
		logger.Info("Receipt scanning disabled: no OpenAI API key configured")
		return bundle, nil
	}

	var prompts *openai.PromptConfig
	if cfg.OpenAI.PromptsPath != "" {
		loaded, err := openai.LoadPrompts(cfg.OpenAI.PromptsPath)
		if err != nil {
			return nil, err
		}
		prompts = loaded
	}
	bundle.Scanner = openai.NewReceiptScanner(openai.Config{
		APIKey:     cfg.OpenAI.APIKey,
		BaseURL:    cfg.OpenAI.BaseURL,
		Model:      cfg.OpenAI.Model,
		Categories: cfg.OpenAI.Categories,
		Prompts:    prompts,
	}, logger)
	return bundle, nil
}

// ProvideDispatcher creates the event dispatcher.
func ProvideDispatcher(cfg *WorkflowConfig, logger *zap.Logger) (dispatcher.Dispatcher, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	opts := []dispatcher.Option{dispatcher.WithLogger(&zapLoggerAdapter{logger: logger})}
	if cfg != nil && cfg.MaxInFlightHandlers > 0 {
		opts = append(opts, dispatcher.WithMaxInFlight(cfg.MaxInFlightHandlers))
	}
	if cfg != nil && cfg.HandlerTimeout > 0 {
		opts = append(opts, dispatcher.WithHandlerTimeout(cfg.HandlerTimeout))
	}
	return dispatcher.NewDispatcher(opts...), nil
}

// ServiceDeps holds dependencies required for creating services.
type ServiceDeps struct {
	Repos      *RepositoryBundle
	TxManager  *sqlite.DB
	Rules      port.RuleSource
	External   *ExternalBundle
	Dispatcher dispatcher.Dispatcher
	Workflow   *WorkflowConfig
	Currency   *CurrencyConfig
	Logger     *zap.Logger
}

// ProvideServices creates all application services and subscribes their event
// handlers: conversion on submitted and finalized expenses, cache invalidation on rule changes.
func ProvideServices(deps *ServiceDeps) (*ServiceBundle, error) {
	if deps == nil {
		return nil, fmt.Errorf("service dependencies are required")
	}
	if deps.Repos == nil || deps.TxManager == nil || deps.Rules == nil || deps.External == nil || deps.Dispatcher == nil {
		return nil, fmt.Errorf("repositories, transaction manager, rule source, external clients and dispatcher are required")
	}

	logger := &zapLoggerAdapter{logger: deps.Logger}
	repos := deps.Repos

	pageSize := 0
	if deps.Workflow != nil {
		pageSize = deps.Workflow.QueryPageSize
	}
	maxAttempts := 0
	if deps.Currency != nil {
		maxAttempts = deps.Currency.MaxAttempts
	}

	workflow := service.NewWorkflowService(service.WorkflowDeps{
		Companies:  repos.Company,
		Users:      repos.User,
		Expenses:   repos.Expense,
		Rules:      deps.Rules,
		Locker:     sqlite.NewExpenseLocker(deps.TxManager, deps.Logger),
		Dispatcher: deps.Dispatcher,
		Logger:     logger,
		PageSize:   pageSize,
	})
	conversion := service.NewConversionService(repos.Company, repos.Expense, repos.Conversion,
		deps.External.Converter, maxAttempts, logger)

	rules := service.NewRuleService(repos.Company, repos.User, repos.Rule, deps.Rules, deps.TxManager, deps.Dispatcher, logger)

	deps.Dispatcher.SubscribeNamed(event.TypeExpenseSubmitted, conversionHandlerName, conversion.HandleSubmitted)
	deps.Dispatcher.SubscribeNamed(event.TypeExpenseFinalized, finalizedConversionHandlerName, conversion.HandleFinalized)
	deps.Dispatcher.SubscribeNamed(event.TypeRulesChanged, ruleCacheHandlerName, rules.HandleRulesChanged)

	return &ServiceBundle{
		Workflow:   workflow,
		Users:      service.NewUserService(repos.Company, repos.User, repos.Rule, deps.TxManager, logger),
		Rules:      rules,
		Conversion: conversion,
		Receipts:   service.NewReceiptService(deps.External.Scanner, logger),
		Export:     service.NewExportService(workflow, repos.User, repos.Conversion, deps.External.Exporter, logger),
	}, nil
}

// ProvideWorkers creates the background workers.
func ProvideWorkers(cfg *CurrencyConfig, conversion service.ConversionService, logger *zap.Logger) (*worker.Manager, error) {
	if cfg == nil {
		return nil, fmt.Errorf("currency config is required")
	}
	if conversion == nil {
		return nil, fmt.Errorf("conversion service is required")
	}

	manager := worker.NewManager(logger)
	manager.Register(worker.NewConversionBackfillWorker(conversion, worker.ConversionBackfillConfig{
		Interval:   cfg.BackfillInterval,
		BatchSize:  cfg.BackfillBatchSize,
		RunTimeout: cfg.BackfillTimeout,
	}, logger))
	return manager, nil
}
