package entity

import (
	"strings"
	"time"

	"github.com/garyjia/expense-approval/pkg/utils"
	"github.com/shopspring/decimal"
)

// Expense is a submitted claim. It is never deleted and becomes immutable once terminal.
type Expense struct {
	ID          int64           `json:"id"`
	CompanyID   int64           `json:"company_id"`
	SubmitterID int64           `json:"submitter_id"`
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency"`
	Category    string          `json:"category"`
	Description string          `json:"description"`
	ExpenseDate time.Time       `json:"expense_date"`
	Status      ExpenseStatus   `json:"status"`
	History     []HistoryEntry  `json:"history"`
	SubmittedAt time.Time       `json:"submitted_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
	Version     int64           `json:"version"`
}

// ExpenseDraft carries the user-supplied fields of a new expense
type ExpenseDraft struct {
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency"`
	Category    string          `json:"category"`
	Description string          `json:"description"`
	ExpenseDate time.Time       `json:"expense_date"`
}

// Normalize trims free text and upper-cases the currency code
func (d *ExpenseDraft) Normalize() {
	d.Currency = strings.ToUpper(strings.TrimSpace(d.Currency))
	d.Category = utils.SanitizeString(d.Category)
	d.Description = utils.SanitizeString(d.Description)
}

// Validate checks every required draft field
func (d *ExpenseDraft) Validate() error {
	if err := utils.ValidateAmount(d.Amount); err != nil {
		return NewValidationError("amount", err.Error())
	}
	if err := utils.ValidateCurrencyCode(d.Currency); err != nil {
		return NewValidationError("currency", err.Error())
	}
	if d.Category == "" {
		return NewValidationError("category", "must not be empty")
	}
	if d.Description == "" {
		return NewValidationError("description", "must not be empty")
	}
	if d.ExpenseDate.IsZero() {
		return NewValidationError("expense_date", "must be set")
	}
	return nil
}

// IsTerminal reports whether the expense accepts no further decisions
func (e *Expense) IsTerminal() bool {
	return e.Status.IsTerminal()
}

// DecisionBy returns the recorded decision of approverID, if any
func (e *Expense) DecisionBy(approverID int64) (HistoryEntry, bool) {
	for _, h := range e.History {
		if h.ApproverID == approverID {
			return h, true
		}
	}
	return HistoryEntry{}, false
}

// Clone returns a copy whose history can be appended to without aliasing
func (e *Expense) Clone() *Expense {
	c := *e
	c.History = append([]HistoryEntry(nil), e.History...)
	return &c
}
