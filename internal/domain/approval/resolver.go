package approval

import (
	"fmt"
	"sort"

	"github.com/garyjia/expense-approval/internal/domain/entity"
)

// implicitRuleName names the manager-only rule used when no configured rule matches
const implicitRuleName = "manager approval"

// Slot is one concrete approver position of a resolved rule
type Slot struct {
	UserID   int64 `json:"user_id"`
	Required bool  `json:"required"`
	Sequence int   `json:"sequence"`
	Manager  bool  `json:"manager"`
}

// ResolvedRule binds a rule to one expense: the rule plus the ordered approver
// slots it yields for that expense's submitter.
type ResolvedRule struct {
	Rule     *entity.ApprovalRule `json:"rule"`
	Implicit bool                 `json:"implicit"`
	Slots    []Slot               `json:"slots"`
}

// Sequential reports whether approvers must decide in slot order
func (r *ResolvedRule) Sequential() bool {
	return r.Rule.ApproversSequence
}

// Threshold is the minimum approval percentage
func (r *ResolvedRule) Threshold() int {
	return r.Rule.MinApprovalPercentage
}

// Slot returns the slot of userID
func (r *ResolvedRule) Slot(userID int64) (Slot, bool) {
	for _, s := range r.Slots {
		if s.UserID == userID {
			return s, true
		}
	}
	return Slot{}, false
}

// ManagerSlot returns the manager slot when the rule has one
func (r *ResolvedRule) ManagerSlot() (Slot, bool) {
	if len(r.Slots) > 0 && r.Slots[0].Manager {
		return r.Slots[0], true
	}
	return Slot{}, false
}

// Includes reports whether userID holds any slot
func (r *ResolvedRule) Includes(userID int64) bool {
	_, ok := r.Slot(userID)
	return ok
}

// ApproverIDs returns slot user ids in order
func (r *ResolvedRule) ApproverIDs() []int64 {
	ids := make([]int64, len(r.Slots))
	for i, s := range r.Slots {
		ids[i] = s.UserID
	}
	return ids
}

// SelectRule returns the governing rule for the expense: rules are ordered by
// (Priority, ID) and the first whose filters match wins. It returns nil when none match.
func SelectRule(rules []*entity.ApprovalRule, e *entity.Expense) *entity.ApprovalRule {
	ordered := append([]*entity.ApprovalRule(nil), rules...)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].Priority != ordered[j].Priority {
			return ordered[i].Priority < ordered[j].Priority
		}
		return ordered[i].ID < ordered[j].ID
	})

	for _, r := range ordered {
		if r.Matches(e) {
			return r
		}
	}
	return nil
}

// Resolve computes the ResolvedRule of an expense from its submitter and the
// company's rules. It has no side effects and is safe for concurrent use.
func Resolve(e *entity.Expense, submitter *entity.User, rules []*entity.ApprovalRule) (*ResolvedRule, error) {
	rule := SelectRule(rules, e)
	implicit := false
	if rule == nil {
		if !submitter.HasManager() {
			return nil, fmt.Errorf("%w: submitter %d has no manager and no rule matches", ErrNoApplicableRule, submitter.ID)
		}
		rule = &entity.ApprovalRule{
			CompanyID:             e.CompanyID,
			Name:                  implicitRuleName,
			IsManagerApprover:     true,
			MinApprovalPercentage: 100,
		}
		implicit = true
	}

	slots := make([]Slot, 0, len(rule.Approvers)+1)

	var managerID int64
	if rule.IsManagerApprover && submitter.HasManager() && *submitter.ManagerID != submitter.ID {
		managerID = *submitter.ManagerID
		slots = append(slots, Slot{UserID: managerID, Required: true, Manager: true})
	}

	approvers := append([]entity.Approver(nil), rule.Approvers...)
	sort.SliceStable(approvers, func(i, j int) bool {
		return approvers[i].Sequence < approvers[j].Sequence
	})
	for _, a := range approvers {
		if a.UserID == submitter.ID || (managerID != 0 && a.UserID == managerID) {
			continue
		}
		slots = append(slots, Slot{UserID: a.UserID, Required: a.Required, Sequence: a.Sequence})
	}

	if len(slots) == 0 {
		return nil, fmt.Errorf("%w: rule %q has no approvers for submitter %d", ErrNoApplicableRule, rule.Name, submitter.ID)
	}

	return &ResolvedRule{Rule: rule, Implicit: implicit, Slots: slots}, nil
}
