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

// ConversionRepository implements port.ConversionRepository
type ConversionRepository struct {
	db     *sqlite.DB
	logger *zap.Logger
}

// NewConversionRepository creates a new conversion repository
func NewConversionRepository(db *sqlite.DB, logger *zap.Logger) port.ConversionRepository {
	return &ConversionRepository{db: db, logger: logger}
}

// Upsert writes the conversion row for an expense
func (r *ConversionRepository) Upsert(ctx context.Context, c *entity.ExpenseConversion) error {
	c.UpdatedAt = time.Now().UTC()

	var convertedAt sql.NullInt64
	if c.ConvertedAt != nil {
		convertedAt = sql.NullInt64{Int64: c.ConvertedAt.UnixNano(), Valid: true}
	}

	_, err := r.db.Executor(ctx).ExecContext(ctx, `
		INSERT INTO expense_conversions (expense_id, from_currency, to_currency, original_amount,
			converted_amount, rate, status, attempts, last_error, converted_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (expense_id) DO UPDATE SET
			from_currency = excluded.from_currency,
			to_currency = excluded.to_currency,
			original_amount = excluded.original_amount,
			converted_amount = excluded.converted_amount,
			rate = excluded.rate,
			status = excluded.status,
			attempts = excluded.attempts,
			last_error = excluded.last_error,
			converted_at = excluded.converted_at,
			updated_at = excluded.updated_at
	`, c.ExpenseID, c.FromCurrency, c.ToCurrency, c.OriginalAmount, c.ConvertedAmount, c.Rate,
		c.Status, c.Attempts, c.LastError, convertedAt, c.UpdatedAt.UnixNano())
	if err != nil {
		r.logger.Error("Failed to upsert conversion", zap.Int64("expense_id", c.ExpenseID), zap.Error(err))
		return fmt.Errorf("failed to upsert conversion: %w", err)
	}
	return nil
}

// GetByExpenseID retrieves the conversion of an expense
func (r *ConversionRepository) GetByExpenseID(ctx context.Context, expenseID int64) (*entity.ExpenseConversion, error) {
	var (
		c           entity.ExpenseConversion
		convertedAt sql.NullInt64
		updatedAt   int64
	)
	err := r.db.Executor(ctx).QueryRowContext(ctx, `
		SELECT expense_id, from_currency, to_currency, original_amount, converted_amount, rate,
			status, attempts, last_error, converted_at, updated_at
		FROM expense_conversions WHERE expense_id = ?
	`, expenseID).Scan(&c.ExpenseID, &c.FromCurrency, &c.ToCurrency, &c.OriginalAmount,
		&c.ConvertedAmount, &c.Rate, &c.Status, &c.Attempts, &c.LastError, &convertedAt, &updatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("conversion for expense", expenseID)
	}
	if err != nil {
		r.logger.Error("Failed to get conversion", zap.Int64("expense_id", expenseID), zap.Error(err))
		return nil, fmt.Errorf("failed to get conversion: %w", err)
	}

	if convertedAt.Valid {
		t := time.Unix(0, convertedAt.Int64).UTC()
		c.ConvertedAt = &t
	}
	c.UpdatedAt = time.Unix(0, updatedAt).UTC()
	return &c, nil
}

// ListUnconverted returns expense ids that still need a conversion attempt, oldest first
func (r *ConversionRepository) ListUnconverted(ctx context.Context, maxAttempts, limit int) ([]int64, error) {
	rows, err := r.db.Executor(ctx).QueryContext(ctx, `
		SELECT e.id FROM expenses e
		LEFT JOIN expense_conversions c ON c.expense_id = e.id
		WHERE c.expense_id IS NULL
			OR (c.status <> ? AND c.attempts < ?)
		ORDER BY e.id
		LIMIT ?
	`, entity.ConversionStatusConverted, maxAttempts, limit)
	if err != nil {
		r.logger.Error("Failed to list unconverted expenses", zap.Error(err))
		return nil, fmt.Errorf("failed to list unconverted expenses: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan expense id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
