package entity

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Approver is one configured approver entry of a rule
type Approver struct {
	UserID   int64 `json:"user_id"`
	Required bool  `json:"required"`
	Sequence int   `json:"sequence"`
}

// ApprovalRule is a company's approval policy. Rules are evaluated in
// (Priority, ID) order and the first one whose filters match governs an expense.
type ApprovalRule struct {
	ID                    int64               `json:"id"`
	CompanyID             int64               `json:"company_id"`
	Name                  string              `json:"name"`
	Description           string              `json:"description"`
	IsManagerApprover     bool                `json:"is_manager_approver"`
	ApproversSequence     bool                `json:"approvers_sequence"`
	MinApprovalPercentage int                 `json:"min_approval_percentage"`
	Priority              int                 `json:"priority"`
	Category              string              `json:"category,omitempty"`
	MinAmount             decimal.NullDecimal `json:"min_amount"`
	MaxAmount             decimal.NullDecimal `json:"max_amount"`
	Approvers             []Approver          `json:"approvers"`
	CreatedAt             time.Time           `json:"created_at"`
	UpdatedAt             time.Time           `json:"updated_at"`
}

// Validate checks the structural invariants of the rule. Whether approvers are
// Managers or Admins of the company is checked against the user store by the caller.
func (r *ApprovalRule) Validate() error {
	if strings.TrimSpace(r.Name) == "" {
		return NewValidationError("name", "must not be empty")
	}
	if r.MinApprovalPercentage < 1 || r.MinApprovalPercentage > 100 {
		return NewValidationError("min_approval_percentage", "must be between 1 and 100")
	}
	if !r.IsManagerApprover && len(r.Approvers) == 0 {
		return NewValidationError("approvers", "at least one approver is required when the manager is not an approver")
	}
	if r.MinAmount.Valid && r.MinAmount.Decimal.IsNegative() {
		return NewValidationError("min_amount", "must not be negative")
	}
	if r.MinAmount.Valid && r.MaxAmount.Valid && !r.MaxAmount.Decimal.GreaterThan(r.MinAmount.Decimal) {
		return NewValidationError("max_amount", "must be greater than min_amount")
	}

	seen := make(map[int64]bool, len(r.Approvers))
	for i, a := range r.Approvers {
		if a.UserID <= 0 {
			return NewValidationError("approvers", fmt.Sprintf("entry %d has no user", i))
		}
		if seen[a.UserID] {
			return NewValidationError("approvers", fmt.Sprintf("user %d is listed twice", a.UserID))
		}
		seen[a.UserID] = true

		if r.ApproversSequence && i > 0 && a.Sequence <= r.Approvers[i-1].Sequence {
			return NewValidationError("approvers", "sequence numbers must be unique and strictly increasing")
		}
	}
	return nil
}

// Matches reports whether the rule's optional filters accept the expense.
// The amount range is half-open: [MinAmount, MaxAmount).
func (r *ApprovalRule) Matches(e *Expense) bool {
	if r.Category != "" && !strings.EqualFold(r.Category, e.Category) {
		return false
	}
	if r.MinAmount.Valid && e.Amount.LessThan(r.MinAmount.Decimal) {
		return false
	}
	if r.MaxAmount.Valid && !e.Amount.LessThan(r.MaxAmount.Decimal) {
		return false
	}
	return true
}

// Lists reports whether userID is a configured approver of the rule
func (r *ApprovalRule) Lists(userID int64) bool {
	for _, a := range r.Approvers {
		if a.UserID == userID {
			return true
		}
	}
	return false
}
