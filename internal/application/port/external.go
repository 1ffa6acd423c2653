package port

import (
	"context"
	"io"
	"time"

	"github.com/garyjia/expense-approval/internal/domain/entity"
	"github.com/shopspring/decimal"
)

// CurrencyConverter looks up exchange rates
type CurrencyConverter interface {
	// Rate returns how many units of `to` one unit of `from` buys
	Rate(ctx context.Context, from, to string) (decimal.Decimal, error)
}

// ReceiptFields is the best-effort OCR output for a receipt. Zero values mean "not found".
type ReceiptFields struct {
	Amount      decimal.NullDecimal `json:"amount"`
	Currency    string              `json:"currency,omitempty"`
	Date        *time.Time          `json:"date,omitempty"`
	Description string              `json:"description,omitempty"`
	Category    string              `json:"category,omitempty"`
}

// ReceiptScanner extracts expense fields from a receipt image or PDF
type ReceiptScanner interface {
	Scan(ctx context.Context, content []byte, contentType string) (*ReceiptFields, error)
}

// ExportRow is one expense line of a report
type ExportRow struct {
	Expense       *entity.Expense
	SubmitterName string
	Conversion    *entity.ExpenseConversion
}

// ExpenseExporter renders expense rows into a document
type ExpenseExporter interface {
	ContentType() string
	Export(ctx context.Context, w io.Writer, rows []ExportRow) error
}
