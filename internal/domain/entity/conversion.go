package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// ExpenseConversion is the advisory base-currency value of an expense.
// It is reporting data only and never feeds approval decisions.
type ExpenseConversion struct {
	ExpenseID       int64           `json:"expense_id"`
	FromCurrency    string          `json:"from_currency"`
	ToCurrency      string          `json:"to_currency"`
	OriginalAmount  decimal.Decimal `json:"original_amount"`
	ConvertedAmount decimal.Decimal `json:"converted_amount"`
	Rate            decimal.Decimal `json:"rate"`
	Status          string          `json:"status"`
	Attempts        int             `json:"attempts"`
	LastError       string          `json:"last_error,omitempty"`
	ConvertedAt     *time.Time      `json:"converted_at,omitempty"`
	UpdatedAt       time.Time       `json:"updated_at"`
}
