package entity

import (
	"time"

	"github.com/garyjia/expense-approval/pkg/utils"
)

// Company owns users, approval rules and expenses. All expenses are converted
// into BaseCurrency for reporting.
type Company struct {
	ID             int64     `json:"id"`
	Name           string    `json:"name"`
	BaseCurrency   string    `json:"base_currency"`
	RuleSetVersion int64     `json:"rule_set_version"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Validate checks the company's own fields
func (c *Company) Validate() error {
	if utils.SanitizeString(c.Name) == "" {
		return NewValidationError("name", "must not be empty")
	}
	if err := utils.ValidateCurrencyCode(c.BaseCurrency); err != nil {
		return NewValidationError("base_currency", err.Error())
	}
	return nil
}
