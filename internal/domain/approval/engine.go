package approval

import (
	"context"
	"fmt"
	"time"

	"github.com/garyjia/expense-approval/internal/domain/entity"
	"github.com/garyjia/expense-approval/internal/domain/workflow"
)

// Decision is one approver's input to the engine
type Decision struct {
	ApproverID int64
	Outcome    entity.Decision
	Comments   string
	At         time.Time
}

// Tally summarises the decisions recorded against a resolved rule
type Tally struct {
	Total             int
	Approvals         int
	Rejections        int
	RequiredSatisfied bool
	Veto              bool
	Threshold         int
}

// Percentage is Approvals / Total * 100
func (t Tally) Percentage() float64 {
	if t.Total == 0 {
		return 0
	}
	return float64(t.Approvals) * 100 / float64(t.Total)
}

// ThresholdMet compares in integers so 2 of 3 meets a 66 threshold but not 67
func (t Tally) ThresholdMet() bool {
	return t.Approvals*100 >= t.Threshold*t.Total
}

// Progress describes where an expense stands and who may act next
type Progress struct {
	ExpenseID  int64                `json:"expense_id"`
	Status     entity.ExpenseStatus `json:"status"`
	Approvals  int                  `json:"approvals"`
	Rejections int                  `json:"rejections"`
	Total      int                  `json:"total"`
	Percentage float64              `json:"percentage"`
	Threshold  int                  `json:"threshold"`
	Sequential bool                 `json:"sequential"`
	Awaiting   []int64              `json:"awaiting"`
}

// Result is the outcome of applying a decision
type Result struct {
	Expense      *entity.Expense
	Entry        entity.HistoryEntry
	Transitioned bool
	Progress     Progress
}

type tallyKey struct{}

func tallyFrom(ctx context.Context) Tally {
	t, _ := ctx.Value(tallyKey{}).(Tally)
	return t
}

// Engine applies approver decisions to pending expenses
type Engine struct {
	lifecycle workflow.StateMachineBuilder
}

// NewEngine creates an engine whose lifecycle guards read the current tally
func NewEngine() *Engine {
	return &Engine{
		lifecycle: workflow.NewExpenseLifecycle(workflow.LifecycleGuards{
			Reject: func(ctx context.Context) bool {
				return tallyFrom(ctx).Veto
			},
			Approve: func(ctx context.Context) bool {
				t := tallyFrom(ctx)
				return t.RequiredSatisfied && t.ThresholdMet()
			},
		}),
	}
}

// triggerOrder is the order in which transitions are attempted after a decision
var triggerOrder = []workflow.Trigger{
	workflow.TriggerReject,
	workflow.TriggerApprove,
}

// Apply validates d against the resolved rule and returns the updated expense.
// The input expense is never modified; on error nothing is recorded.
func (eng *Engine) Apply(ctx context.Context, resolved *ResolvedRule, e *entity.Expense, d Decision) (*Result, error) {
	if e.IsTerminal() {
		return nil, fmt.Errorf("%w: expense %d is %s", ErrAlreadyFinalized, e.ID, e.Status)
	}
	if !d.Outcome.IsValid() {
		return nil, entity.NewValidationError("decision", "must be APPROVED or REJECTED")
	}

	slot, ok := resolved.Slot(d.ApproverID)
	if !ok {
		return nil, fmt.Errorf("%w: user %d, expense %d", ErrNotAnApprover, d.ApproverID, e.ID)
	}
	if _, decided := e.DecisionBy(d.ApproverID); decided {
		return nil, fmt.Errorf("%w: user %d, expense %d", ErrDuplicateDecision, d.ApproverID, e.ID)
	}

	if resolved.Sequential() {
		if next, ok := nextInSequence(resolved, e); ok && next.UserID != d.ApproverID {
			return nil, fmt.Errorf("%w: expected user %d, got %d", ErrOutOfSequence, next.UserID, d.ApproverID)
		}
	} else if mgr, ok := resolved.ManagerSlot(); ok && !slot.Manager {
		if _, decided := e.DecisionBy(mgr.UserID); !decided {
			return nil, fmt.Errorf("%w: manager %d has not decided", ErrPrematureDecision, mgr.UserID)
		}
	}

	at := d.At
	if at.IsZero() {
		at = time.Now().UTC()
	}

	updated := e.Clone()
	entry := entity.HistoryEntry{
		Seq:        len(e.History) + 1,
		ApproverID: d.ApproverID,
		Decision:   d.Outcome,
		Comments:   d.Comments,
		DecidedAt:  at,
	}
	updated.History = append(updated.History, entry)
	updated.UpdatedAt = at

	tally := Count(resolved, updated)
	machine := eng.lifecycle.Build(workflow.StatePending)
	guardCtx := context.WithValue(ctx, tallyKey{}, tally)

	transitioned := false
	for _, trigger := range triggerOrder {
		if !machine.CanFire(guardCtx, trigger) {
			continue
		}
		if err := machine.Fire(guardCtx, trigger); err != nil {
			return nil, fmt.Errorf("failed to fire %s: %w", trigger, err)
		}
		transitioned = true
		break
	}
	updated.Status = entity.ExpenseStatus(machine.State())

	return &Result{
		Expense:      updated,
		Entry:        entry,
		Transitioned: transitioned,
		Progress:     eng.Progress(resolved, updated),
	}, nil
}

// Count tallies the recorded decisions that belong to resolved slots
func Count(resolved *ResolvedRule, e *entity.Expense) Tally {
	t := Tally{
		Total:             len(resolved.Slots),
		RequiredSatisfied: true,
		Threshold:         resolved.Threshold(),
	}

	for _, s := range resolved.Slots {
		h, decided := e.DecisionBy(s.UserID)
		switch {
		case !decided:
			if s.Required {
				t.RequiredSatisfied = false
			}
		case h.Decision == entity.DecisionApproved:
			t.Approvals++
		default:
			t.Rejections++
			if s.Required {
				t.RequiredSatisfied = false
			}
			if s.Required || resolved.Sequential() {
				t.Veto = true
			}
		}
	}
	return t
}

// Progress reports the tally and the approvers who may act next
func (eng *Engine) Progress(resolved *ResolvedRule, e *entity.Expense) Progress {
	t := Count(resolved, e)
	p := Progress{
		ExpenseID:  e.ID,
		Status:     e.Status,
		Approvals:  t.Approvals,
		Rejections: t.Rejections,
		Total:      t.Total,
		Percentage: t.Percentage(),
		Threshold:  t.Threshold,
		Sequential: resolved.Sequential(),
		Awaiting:   []int64{},
	}
	if e.IsTerminal() {
		return p
	}

	if resolved.Sequential() {
		if next, ok := nextInSequence(resolved, e); ok {
			p.Awaiting = append(p.Awaiting, next.UserID)
		}
		return p
	}

	if mgr, ok := resolved.ManagerSlot(); ok {
		if _, decided := e.DecisionBy(mgr.UserID); !decided {
			p.Awaiting = append(p.Awaiting, mgr.UserID)
			return p
		}
	}
	for _, s := range resolved.Slots {
		if _, decided := e.DecisionBy(s.UserID); !decided {
			p.Awaiting = append(p.Awaiting, s.UserID)
		}
	}
	return p
}

// MayActNext reports whether userID is among the approvers who may decide now
func (eng *Engine) MayActNext(resolved *ResolvedRule, e *entity.Expense, userID int64) bool {
	for _, id := range eng.Progress(resolved, e).Awaiting {
		if id == userID {
			return true
		}
	}
	return false
}

func nextInSequence(resolved *ResolvedRule, e *entity.Expense) (Slot, bool) {
	for _, s := range resolved.Slots {
		if _, decided := e.DecisionBy(s.UserID); !decided {
			return s, true
		}
	}
	return Slot{}, false
}
