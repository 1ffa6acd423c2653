package service

import (
	"context"
	"errors"
	"strings"

	"github.com/garyjia/expense-approval/internal/application/port"
	"github.com/garyjia/expense-approval/internal/domain/entity"
)

// ErrScanningDisabled is returned when no receipt scanner is configured
var ErrScanningDisabled = errors.New("receipt scanning is disabled")

// Prefill is a draft built from a receipt scan and the user's own values
type Prefill struct {
	Draft     entity.ExpenseDraft `json:"draft"`
	Scanned   *port.ReceiptFields `json:"scanned,omitempty"`
	ScanError string              `json:"scan_error,omitempty"`
}

// ReceiptService pre-fills expense drafts from receipt images
type ReceiptService interface {
	// Prefill scans the receipt and merges the result under the user's values.
	// A failed scan still returns the user's values with ScanError set.
	Prefill(ctx context.Context, content []byte, contentType string, user entity.ExpenseDraft) (*Prefill, error)
}

type receiptServiceImpl struct {
	scanner port.ReceiptScanner
	logger  Logger
}

// NewReceiptService creates a new ReceiptService. A nil scanner disables scanning.
func NewReceiptService(scanner port.ReceiptScanner, logger Logger) ReceiptService {
	return &receiptServiceImpl{scanner: scanner, logger: logger}
}

// Prefill merges OCR output with user-entered values; user values win
func (s *receiptServiceImpl) Prefill(ctx context.Context, content []byte, contentType string, user entity.ExpenseDraft) (*Prefill, error) {
	if s.scanner == nil {
		return nil, ErrScanningDisabled
	}
	if len(content) == 0 {
		return nil, entity.NewValidationError("receipt", "must not be empty")
	}

	out := &Prefill{}
	fields, err := s.scanner.Scan(ctx, content, contentType)
	if err != nil {
		s.logger.Error("Receipt scan failed", "content_type", contentType, "error", err)
		out.ScanError = err.Error()
		fields = &port.ReceiptFields{}
	} else {
		out.Scanned = fields
	}

	out.Draft = mergeDraft(fields, user)
	out.Draft.Normalize()
	return out, nil
}

// mergeDraft starts from the scanned fields and overlays every non-zero user value
func mergeDraft(scanned *port.ReceiptFields, user entity.ExpenseDraft) entity.ExpenseDraft {
	d := entity.ExpenseDraft{
		Currency:    scanned.Currency,
		Category:    scanned.Category,
		Description: scanned.Description,
	}
	if scanned.Amount.Valid {
		d.Amount = scanned.Amount.Decimal
	}
	if scanned.Date != nil {
		d.ExpenseDate = *scanned.Date
	}

	if !user.Amount.IsZero() {
		d.Amount = user.Amount
	}
	if strings.TrimSpace(user.Currency) != "" {
		d.Currency = user.Currency
	}
	if strings.TrimSpace(user.Category) != "" {
		d.Category = user.Category
	}
	if strings.TrimSpace(user.Description) != "" {
		d.Description = user.Description
	}
	if !user.ExpenseDate.IsZero() {
		d.ExpenseDate = user.ExpenseDate
	}
	return d
}
