package approval

import (
	"fmt"

	"github.com/garyjia/expense-approval/internal/domain/entity"
)

// Action is something an actor may attempt
type Action string

const (
	ActionView        Action = "view"
	ActionDecide      Action = "decide"
	ActionManageUsers Action = "manage_users"
	ActionManageRules Action = "manage_rules"
)

// Subject is what an action is attempted on. Expense, Submitter and Resolved are
// only needed for expense actions; Resolved may be nil when resolution failed.
type Subject struct {
	CompanyID int64
	Expense   *entity.Expense
	Submitter *entity.User
	Resolved  *ResolvedRule
}

func (s Subject) expenseID() int64 {
	if s.Expense == nil {
		return 0
	}
	return s.Expense.ID
}

// Authorizer is the single authorization predicate used at the API boundary
type Authorizer struct{}

// NewAuthorizer creates an Authorizer
func NewAuthorizer() Authorizer {
	return Authorizer{}
}

// Authorize returns nil when actor may perform action on subject
func (Authorizer) Authorize(actor *entity.User, action Action, subject Subject) error {
	companyID := subject.CompanyID
	if subject.Expense != nil {
		companyID = subject.Expense.CompanyID
	}
	if actor == nil || actor.CompanyID != companyID {
		return fmt.Errorf("%w: %s outside the actor's company", ErrForbidden, action)
	}

	switch action {
	case ActionView:
		if canView(actor, subject) {
			return nil
		}
		return fmt.Errorf("%w: user %d may not view expense %d", ErrForbidden, actor.ID, subject.expenseID())

	case ActionDecide:
		if subject.Resolved == nil || !subject.Resolved.Includes(actor.ID) {
			return fmt.Errorf("%w: user %d, expense %d", ErrNotAnApprover, actor.ID, subject.expenseID())
		}
		return nil

	case ActionManageUsers, ActionManageRules:
		if actor.Role == entity.RoleAdmin {
			return nil
		}
		return fmt.Errorf("%w: %s requires ADMIN", ErrForbidden, action)
	}

	return fmt.Errorf("%w: unknown action %q", ErrForbidden, action)
}

// CanView reports whether actor may read the expense
func (a Authorizer) CanView(actor *entity.User, subject Subject) bool {
	return a.Authorize(actor, ActionView, subject) == nil
}

func canView(actor *entity.User, s Subject) bool {
	if s.Expense == nil {
		return false
	}
	switch {
	case actor.Role == entity.RoleAdmin:
		return true
	case s.Expense.SubmitterID == actor.ID:
		return true
	case s.Submitter != nil && s.Submitter.IsManagedBy(actor.ID):
		return true
	case s.Resolved != nil && s.Resolved.Includes(actor.ID):
		return true
	}
	return false
}
