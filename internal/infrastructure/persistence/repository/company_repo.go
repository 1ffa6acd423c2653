package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/garyjia/expense-approval/internal/application/port"
	"github.com/garyjia/expense-approval/internal/domain/entity"
	"github.com/garyjia/expense-approval/internal/infrastructure/persistence/sqlite"
	"go.uber.org/zap"
)

// CompanyRepository implements port.CompanyRepository
type CompanyRepository struct {
	db     *sqlite.DB
	logger *zap.Logger
}

// NewCompanyRepository creates a new company repository
func NewCompanyRepository(db *sqlite.DB, logger *zap.Logger) port.CompanyRepository {
	return &CompanyRepository{db: db, logger: logger}
}

// Create inserts a company and sets its ID
func (r *CompanyRepository) Create(ctx context.Context, c *entity.Company) error {
	now := time.Now().UTC()
	result, err := r.db.Executor(ctx).ExecContext(ctx, `
		INSERT INTO companies (name, base_currency, rule_set_version, created_at, updated_at)
		VALUES (?, ?, 0, ?, ?)
	`, c.Name, c.BaseCurrency, now, now)
	if err != nil {
		r.logger.Error("Failed to create company", zap.Error(err))
		return fmt.Errorf("failed to create company: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	c.ID = id
	c.RuleSetVersion = 0
	c.CreatedAt = now
	c.UpdatedAt = now
	return nil
}

// GetByID retrieves a company
func (r *CompanyRepository) GetByID(ctx context.Context, id int64) (*entity.Company, error) {
	var c entity.Company
	err := r.db.Executor(ctx).QueryRowContext(ctx, `
		SELECT id, name, base_currency, rule_set_version, created_at, updated_at
		FROM companies WHERE id = ?
	`, id).Scan(&c.ID, &c.Name, &c.BaseCurrency, &c.RuleSetVersion, &c.CreatedAt, &c.UpdatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("company", id)
	}
	if err != nil {
		r.logger.Error("Failed to get company", zap.Int64("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get company: %w", err)
	}
	return &c, nil
}

// BumpRuleSetVersion increments the rule-set version and returns the new value
func (r *CompanyRepository) BumpRuleSetVersion(ctx context.Context, id int64) (int64, error) {
	var version int64
	err := r.db.Executor(ctx).QueryRowContext(ctx, `
		UPDATE companies SET rule_set_version = rule_set_version + 1, updated_at = ?
		WHERE id = ?
		RETURNING rule_set_version
	`, time.Now().UTC(), id).Scan(&version)

	if errors.Is(err, sql.ErrNoRows) {
		return 0, notFound("company", id)
	}
	if err != nil {
		r.logger.Error("Failed to bump rule set version", zap.Int64("company_id", id), zap.Error(err))
		return 0, fmt.Errorf("failed to bump rule set version: %w", err)
	}
	return version, nil
}
