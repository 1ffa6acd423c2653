package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/garyjia/expense-approval/internal/application/port"
	"github.com/garyjia/expense-approval/internal/domain/entity"
	"github.com/garyjia/expense-approval/internal/infrastructure/persistence/sqlite"
	"go.uber.org/zap"
)

const (
	expenseColumns = `id, company_id, submitter_id, amount, currency, category, description,
		expense_date, status, submitted_at, updated_at, version`
	dateLayout      = "2006-01-02"
	defaultPageSize = 50
)

// ExpenseRepository implements port.ExpenseRepository
type ExpenseRepository struct {
	db     *sqlite.DB
	logger *zap.Logger
}

// NewExpenseRepository creates a new expense repository
func NewExpenseRepository(db *sqlite.DB, logger *zap.Logger) port.ExpenseRepository {
	return &ExpenseRepository{db: db, logger: logger}
}

// Create inserts a new expense at version 1. History is expected to be empty.
func (r *ExpenseRepository) Create(ctx context.Context, e *entity.Expense) error {
	if e.SubmittedAt.IsZero() {
		e.SubmittedAt = time.Now().UTC()
	}
	e.UpdatedAt = e.SubmittedAt
	e.Version = 1

	result, err := r.db.Executor(ctx).ExecContext(ctx, `
		INSERT INTO expenses (company_id, submitter_id, amount, currency, category, description,
			expense_date, status, submitted_at, updated_at, version)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, e.CompanyID, e.SubmitterID, e.Amount, e.Currency, e.Category, e.Description,
		e.ExpenseDate.Format(dateLayout), e.Status, e.SubmittedAt.UnixNano(), e.UpdatedAt.UnixNano(), e.Version)
	if err != nil {
		r.logger.Error("Failed to create expense", zap.Int64("submitter_id", e.SubmitterID), zap.Error(err))
		return fmt.Errorf("failed to create expense: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	e.ID = id
	return nil
}

// GetByID retrieves an expense with its history
func (r *ExpenseRepository) GetByID(ctx context.Context, id int64) (*entity.Expense, error) {
	row := r.db.Executor(ctx).QueryRowContext(ctx, `SELECT `+expenseColumns+` FROM expenses WHERE id = ?`, id)
	e, err := scanExpense(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("expense", id)
	}
	if err != nil {
		r.logger.Error("Failed to get expense", zap.Int64("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get expense: %w", err)
	}

	histories, err := r.loadHistory(ctx, []int64{id})
	if err != nil {
		return nil, err
	}
	if h, ok := histories[id]; ok {
		e.History = h
	}
	return e, nil
}

// AppendDecision implements the optimistic version check and history append
func (r *ExpenseRepository) AppendDecision(ctx context.Context, e *entity.Expense, entry entity.HistoryEntry) error {
	return r.db.WithTransaction(ctx, func(ctx context.Context) error {
		exec := r.db.Executor(ctx)

		result, err := exec.ExecContext(ctx, `
			UPDATE expenses SET status = ?, updated_at = ?, version = version + 1
			WHERE id = ? AND version = ?
		`, e.Status, e.UpdatedAt.UnixNano(), e.ID, e.Version)
		if err != nil {
			r.logger.Error("Failed to update expense status", zap.Int64("id", e.ID), zap.Error(err))
			return fmt.Errorf("failed to update expense: %w", err)
		}
		n, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to read rows affected: %w", err)
		}
		if n == 0 {
			r.logger.Warn("Expense version check failed",
				zap.Int64("id", e.ID), zap.Int64("expected_version", e.Version))
			return fmt.Errorf("expense %d at version %d: %w", e.ID, e.Version, entity.ErrConflict)
		}

		if _, err := exec.ExecContext(ctx, `
			INSERT INTO expense_history (expense_id, seq, approver_id, decision, comments, decided_at)
			VALUES (?, ?, ?, ?, ?, ?)
		`, e.ID, entry.Seq, entry.ApproverID, entry.Decision, entry.Comments, entry.DecidedAt.UnixNano()); err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("expense %d history seq %d: %w", e.ID, entry.Seq, entity.ErrConflict)
			}
			return fmt.Errorf("failed to append history: %w", err)
		}

		e.Version++
		return nil
	})
}

// ListPage returns one keyset page, newest first
func (r *ExpenseRepository) ListPage(ctx context.Context, f port.ExpenseFilter) ([]*entity.Expense, error) {
	var (
		conds = []string{"company_id = ?"}
		args  = []interface{}{f.CompanyID}
	)
	if f.SubmitterID != 0 {
		conds = append(conds, "submitter_id = ?")
		args = append(args, f.SubmitterID)
	}
	if f.Status != "" {
		conds = append(conds, "status = ?")
		args = append(args, f.Status)
	}
	if f.After != nil {
		at := f.After.SubmittedAt.UnixNano()
		conds = append(conds, "(submitted_at < ? OR (submitted_at = ? AND id < ?))")
		args = append(args, at, at, f.After.ID)
	}
	limit := f.Limit
	if limit <= 0 {
		limit = defaultPageSize
	}
	args = append(args, limit)

	query := `SELECT ` + expenseColumns + ` FROM expenses WHERE ` + strings.Join(conds, " AND ") +
		` ORDER BY submitted_at DESC, id DESC LIMIT ?`

	rows, err := r.db.Executor(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to list expenses", zap.Int64("company_id", f.CompanyID), zap.Error(err))
		return nil, fmt.Errorf("failed to list expenses: %w", err)
	}
	defer rows.Close()

	var (
		expenses []*entity.Expense
		ids      []int64
	)
	for rows.Next() {
		e, err := scanExpense(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan expense: %w", err)
		}
		expenses = append(expenses, e)
		ids = append(ids, e.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return expenses, nil
	}

	histories, err := r.loadHistory(ctx, ids)
	if err != nil {
		return nil, err
	}
	for _, e := range expenses {
		if h, ok := histories[e.ID]; ok {
			e.History = h
		}
	}
	return expenses, nil
}

func (r *ExpenseRepository) loadHistory(ctx context.Context, ids []int64) (map[int64][]entity.HistoryEntry, error) {
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	rows, err := r.db.Executor(ctx).QueryContext(ctx, `
		SELECT expense_id, seq, approver_id, decision, comments, decided_at
		FROM expense_history WHERE expense_id IN (`+placeholders+`)
		ORDER BY expense_id, seq
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}
	defer rows.Close()

	out := make(map[int64][]entity.HistoryEntry, len(ids))
	for rows.Next() {
		var (
			expenseID int64
			h         entity.HistoryEntry
			decidedAt int64
		)
		if err := rows.Scan(&expenseID, &h.Seq, &h.ApproverID, &h.Decision, &h.Comments, &decidedAt); err != nil {
			return nil, fmt.Errorf("failed to scan history: %w", err)
		}
		h.DecidedAt = time.Unix(0, decidedAt).UTC()
		out[expenseID] = append(out[expenseID], h)
	}
	return out, rows.Err()
}

func scanExpense(s rowScanner) (*entity.Expense, error) {
	var (
		e           entity.Expense
		expenseDate string
		submittedAt int64
		updatedAt   int64
	)
	if err := s.Scan(&e.ID, &e.CompanyID, &e.SubmitterID, &e.Amount, &e.Currency, &e.Category,
		&e.Description, &expenseDate, &e.Status, &submittedAt, &updatedAt, &e.Version); err != nil {
		return nil, err
	}

	d, err := time.Parse(dateLayout, expenseDate)
	if err != nil {
		return nil, fmt.Errorf("invalid expense_date %q: %w", expenseDate, err)
	}
	e.ExpenseDate = d
	e.SubmittedAt = time.Unix(0, submittedAt).UTC()
	e.UpdatedAt = time.Unix(0, updatedAt).UTC()
	e.History = []entity.HistoryEntry{}
	return &e, nil
}
