package entity

import (
	"time"

	"github.com/garyjia/expense-approval/pkg/utils"
)

// User is a member of a company
type User struct {
	ID           int64     `json:"id"`
	CompanyID    int64     `json:"company_id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Role         Role      `json:"role"`
	ManagerID    *int64    `json:"manager_id,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// HasManager reports whether a manager is assigned
func (u *User) HasManager() bool {
	return u.ManagerID != nil
}

// IsManagedBy reports whether managerID is this user's direct manager
func (u *User) IsManagedBy(managerID int64) bool {
	return u.ManagerID != nil && *u.ManagerID == managerID
}

// Validate checks the user's own fields. Manager references are checked by ValidateManager.
func (u *User) Validate() error {
	if utils.SanitizeString(u.Name) == "" {
		return NewValidationError("name", "must not be empty")
	}
	if err := utils.ValidateEmail(u.Email); err != nil {
		return NewValidationError("email", err.Error())
	}
	if !u.Role.IsValid() {
		return NewValidationError("role", "unknown role "+string(u.Role))
	}
	return nil
}

// ValidateManager checks that manager may be assigned as u's manager:
// same company, Manager or Admin role, and not u itself.
func ValidateManager(u, manager *User) error {
	if manager == nil {
		return NewValidationError("manager_id", "manager does not exist")
	}
	if manager.ID == u.ID {
		return NewValidationError("manager_id", "user cannot manage themselves")
	}
	if manager.CompanyID != u.CompanyID {
		return NewValidationError("manager_id", "manager belongs to another company")
	}
	if !manager.Role.CanApprove() {
		return NewValidationError("manager_id", "manager must have role MANAGER or ADMIN")
	}
	return nil
}
