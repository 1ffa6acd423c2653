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

const ruleColumns = `id, company_id, name, description, is_manager_approver, approvers_sequence,
	min_approval_percentage, priority, category, min_amount, max_amount, created_at, updated_at`

// RuleRepository implements port.RuleRepository. Approver entries live in
// approval_rule_approvers and are rewritten as a whole on update.
type RuleRepository struct {
	db     *sqlite.DB
	logger *zap.Logger
}

// NewRuleRepository creates a new rule repository
func NewRuleRepository(db *sqlite.DB, logger *zap.Logger) port.RuleRepository {
	return &RuleRepository{db: db, logger: logger}
}

// Create inserts a rule with its approvers
func (r *RuleRepository) Create(ctx context.Context, rule *entity.ApprovalRule) error {
	return r.db.WithTransaction(ctx, func(ctx context.Context) error {
		now := time.Now().UTC()
		result, err := r.db.Executor(ctx).ExecContext(ctx, `
			INSERT INTO approval_rules (company_id, name, description, is_manager_approver, approvers_sequence,
				min_approval_percentage, priority, category, min_amount, max_amount, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, rule.CompanyID, rule.Name, rule.Description,
			boolToInt(rule.IsManagerApprover), boolToInt(rule.ApproversSequence),
			rule.MinApprovalPercentage, rule.Priority, rule.Category,
			rule.MinAmount, rule.MaxAmount, now, now)
		if err != nil {
			r.logger.Error("Failed to create rule", zap.Int64("company_id", rule.CompanyID), zap.Error(err))
			return fmt.Errorf("failed to create rule: %w", err)
		}

		id, err := result.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to get last insert id: %w", err)
		}
		rule.ID = id
		rule.CreatedAt = now
		rule.UpdatedAt = now

		return r.insertApprovers(ctx, rule)
	})
}

// GetByID retrieves a rule with its approvers
func (r *RuleRepository) GetByID(ctx context.Context, id int64) (*entity.ApprovalRule, error) {
	row := r.db.Executor(ctx).QueryRowContext(ctx, `SELECT `+ruleColumns+` FROM approval_rules WHERE id = ?`, id)
	rule, err := scanRule(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("approval rule", id)
	}
	if err != nil {
		r.logger.Error("Failed to get rule", zap.Int64("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get rule: %w", err)
	}

	byRule, err := r.loadApprovers(ctx, `WHERE rule_id = ?`, id)
	if err != nil {
		return nil, err
	}
	rule.Approvers = byRule[id]
	return rule, nil
}

// ListByCompany returns a company's rules in evaluation order (priority, id)
func (r *RuleRepository) ListByCompany(ctx context.Context, companyID int64) ([]*entity.ApprovalRule, error) {
	rows, err := r.db.Executor(ctx).QueryContext(ctx,
		`SELECT `+ruleColumns+` FROM approval_rules WHERE company_id = ? ORDER BY priority, id`, companyID)
	if err != nil {
		r.logger.Error("Failed to list rules", zap.Int64("company_id", companyID), zap.Error(err))
		return nil, fmt.Errorf("failed to list rules: %w", err)
	}
	defer rows.Close()

	var rules []*entity.ApprovalRule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan rule: %w", err)
		}
		rules = append(rules, rule)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(rules) == 0 {
		return rules, nil
	}

	byRule, err := r.loadApprovers(ctx,
		`WHERE rule_id IN (SELECT id FROM approval_rules WHERE company_id = ?)`, companyID)
	if err != nil {
		return nil, err
	}
	for _, rule := range rules {
		rule.Approvers = byRule[rule.ID]
	}
	return rules, nil
}

// Update replaces the rule's fields and approvers
func (r *RuleRepository) Update(ctx context.Context, rule *entity.ApprovalRule) error {
	return r.db.WithTransaction(ctx, func(ctx context.Context) error {
		now := time.Now().UTC()
		result, err := r.db.Executor(ctx).ExecContext(ctx, `
			UPDATE approval_rules SET name = ?, description = ?, is_manager_approver = ?,
				approvers_sequence = ?, min_approval_percentage = ?, priority = ?, category = ?,
				min_amount = ?, max_amount = ?, updated_at = ?
			WHERE id = ?
		`, rule.Name, rule.Description,
			boolToInt(rule.IsManagerApprover), boolToInt(rule.ApproversSequence),
			rule.MinApprovalPercentage, rule.Priority, rule.Category,
			rule.MinAmount, rule.MaxAmount, now, rule.ID)
		if err != nil {
			r.logger.Error("Failed to update rule", zap.Int64("id", rule.ID), zap.Error(err))
			return fmt.Errorf("failed to update rule: %w", err)
		}
		if n, _ := result.RowsAffected(); n == 0 {
			return notFound("approval rule", rule.ID)
		}
		rule.UpdatedAt = now

		if _, err := r.db.Executor(ctx).ExecContext(ctx,
			`DELETE FROM approval_rule_approvers WHERE rule_id = ?`, rule.ID); err != nil {
			return fmt.Errorf("failed to clear approvers: %w", err)
		}
		return r.insertApprovers(ctx, rule)
	})
}

// Delete removes a rule; approvers cascade
func (r *RuleRepository) Delete(ctx context.Context, id int64) error {
	result, err := r.db.Executor(ctx).ExecContext(ctx, `DELETE FROM approval_rules WHERE id = ?`, id)
	if err != nil {
		r.logger.Error("Failed to delete rule", zap.Int64("id", id), zap.Error(err))
		return fmt.Errorf("failed to delete rule: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return notFound("approval rule", id)
	}
	return nil
}

func (r *RuleRepository) insertApprovers(ctx context.Context, rule *entity.ApprovalRule) error {
	for i, a := range rule.Approvers {
		if _, err := r.db.Executor(ctx).ExecContext(ctx, `
			INSERT INTO approval_rule_approvers (rule_id, position, user_id, required, sequence)
			VALUES (?, ?, ?, ?, ?)
		`, rule.ID, i, a.UserID, boolToInt(a.Required), a.Sequence); err != nil {
			return fmt.Errorf("failed to insert approver %d: %w", a.UserID, err)
		}
	}
	return nil
}

func (r *RuleRepository) loadApprovers(ctx context.Context, where string, args ...interface{}) (map[int64][]entity.Approver, error) {
	rows, err := r.db.Executor(ctx).QueryContext(ctx,
		`SELECT rule_id, user_id, required, sequence FROM approval_rule_approvers `+where+` ORDER BY rule_id, position`,
		args...)
	if err != nil {
		return nil, fmt.Errorf("failed to load approvers: %w", err)
	}
	defer rows.Close()

	byRule := make(map[int64][]entity.Approver)
	for rows.Next() {
		var ruleID int64
		var a entity.Approver
		if err := rows.Scan(&ruleID, &a.UserID, &a.Required, &a.Sequence); err != nil {
			return nil, fmt.Errorf("failed to scan approver: %w", err)
		}
		byRule[ruleID] = append(byRule[ruleID], a)
	}
	return byRule, rows.Err()
}

func scanRule(s rowScanner) (*entity.ApprovalRule, error) {
	var rule entity.ApprovalRule
	if err := s.Scan(&rule.ID, &rule.CompanyID, &rule.Name, &rule.Description,
		&rule.IsManagerApprover, &rule.ApproversSequence, &rule.MinApprovalPercentage,
		&rule.Priority, &rule.Category, &rule.MinAmount, &rule.MaxAmount,
		&rule.CreatedAt, &rule.UpdatedAt); err != nil {
		return nil, err
	}
	return &rule, nil
}
