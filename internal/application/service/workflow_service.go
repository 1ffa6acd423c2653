package service

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"time"

	"github.com/garyjia/expense-approval/internal/application/dispatcher"
	"github.com/garyjia/expense-approval/internal/application/port"
	"github.com/garyjia/expense-approval/internal/domain/approval"
	"github.com/garyjia/expense-approval/internal/domain/entity"
	"github.com/garyjia/expense-approval/internal/domain/event"
)

const defaultQueryPageSize = 50

// WorkflowService submits expenses, records approver decisions and answers queries
type WorkflowService interface {
	// Submit validates the draft, checks that an approval rule applies and stores a Pending expense
	Submit(ctx context.Context, submitterID int64, draft entity.ExpenseDraft) (*entity.Expense, error)

	// Decide records one approver decision under the per-expense lock and returns the updated expense
	Decide(ctx context.Context, expenseID, approverID int64, outcome entity.Decision, comments string) (*entity.Expense, error)

	// Query loads one expense with its history
	Query(ctx context.Context, expenseID int64) (*entity.Expense, error)

	// Progress reports approval counts and who may act next
	Progress(ctx context.Context, expenseID int64) (*approval.Progress, error)

	// Authorize checks whether actor may perform action on the expense
	Authorize(ctx context.Context, actorID, expenseID int64, action approval.Action) error

	// QueryForApprover lists the expenses the user oversees, newest first. Every range
	// over the result runs a fresh query.
	QueryForApprover(ctx context.Context, approverID int64, status entity.ExpenseStatus) iter.Seq2[*entity.Expense, error]

	// QueryForSubmitter lists the user's own expenses, newest first
	QueryForSubmitter(ctx context.Context, submitterID int64, status entity.ExpenseStatus) iter.Seq2[*entity.Expense, error]
}

// WorkflowDeps groups the collaborators of the workflow service
type WorkflowDeps struct {
	Companies  port.CompanyRepository
	Users      port.UserRepository
	Expenses   port.ExpenseRepository
	Rules      port.RuleSource
	Locker     port.ExpenseLocker
	Dispatcher dispatcher.Dispatcher
	Logger     Logger
	PageSize   int
}

type workflowServiceImpl struct {
	companies  port.CompanyRepository
	users      port.UserRepository
	expenses   port.ExpenseRepository
	rules      port.RuleSource
	locker     port.ExpenseLocker
	dispatcher dispatcher.Dispatcher
	engine     *approval.Engine
	authz      approval.Authorizer
	logger     Logger
	pageSize   int
}

// NewWorkflowService creates a new WorkflowService
func NewWorkflowService(deps WorkflowDeps) WorkflowService {
	if deps.PageSize <= 0 {
		deps.PageSize = defaultQueryPageSize
	}
	return &workflowServiceImpl{
		companies:  deps.Companies,
		users:      deps.Users,
		expenses:   deps.Expenses,
		rules:      deps.Rules,
		locker:     deps.Locker,
		dispatcher: deps.Dispatcher,
		engine:     approval.NewEngine(),
		authz:      approval.NewAuthorizer(),
		logger:     deps.Logger,
		pageSize:   deps.PageSize,
	}
}

// Submit creates a Pending expense
func (s *workflowServiceImpl) Submit(ctx context.Context, submitterID int64, draft entity.ExpenseDraft) (*entity.Expense, error) {
	draft.Normalize()
	if err := draft.Validate(); err != nil {
		return nil, err
	}

	submitter, err := s.users.GetByID(ctx, submitterID)
	if err != nil {
		return nil, fmt.Errorf("failed to load submitter: %w", err)
	}
	company, err := s.companies.GetByID(ctx, submitter.CompanyID)
	if err != nil {
		return nil, fmt.Errorf("failed to load company: %w", err)
	}

	now := time.Now().UTC()
	e := &entity.Expense{
		CompanyID:   company.ID,
		SubmitterID: submitter.ID,
		Amount:      draft.Amount,
		Currency:    draft.Currency,
		Category:    draft.Category,
		Description: draft.Description,
		ExpenseDate: draft.ExpenseDate,
		Status:      entity.StatusPending,
		History:     []entity.HistoryEntry{},
		SubmittedAt: now,
		UpdatedAt:   now,
	}

	rules, err := s.rules.RulesFor(ctx, company)
	if err != nil {
		return nil, fmt.Errorf("failed to load approval rules: %w", err)
	}
	if _, err := approval.Resolve(e, submitter, rules); err != nil {
		return nil, err
	}

	if err := s.expenses.Create(ctx, e); err != nil {
		s.logger.Error("Failed to create expense", "submitter_id", submitterID, "error", err)
		return nil, err
	}

	s.logger.Info("Expense submitted",
		"expense_id", e.ID,
		"submitter_id", submitterID,
		"amount", e.Amount.String(),
		"currency", e.Currency)

	s.dispatcher.DispatchAsync(ctx, event.NewEvent(event.TypeExpenseSubmitted, company.ID, e.ID, map[string]any{
		event.KeyCurrency: e.Currency,
		event.KeyStatus:   string(e.Status),
	}))

	return e, nil
}

// Decide applies an approver decision
func (s *workflowServiceImpl) Decide(ctx context.Context, expenseID, approverID int64, outcome entity.Decision, comments string) (*entity.Expense, error) {
	var result *approval.Result

	err := s.locker.WithExpenseLock(ctx, expenseID, func(ctx context.Context) error {
		e, err := s.expenses.GetByID(ctx, expenseID)
		if err != nil {
			return err
		}
		// Finalized expenses never reach resolution, so later rule edits cannot change the error.
		if e.IsTerminal() {
			return fmt.Errorf("%w: expense %d is %s", approval.ErrAlreadyFinalized, e.ID, e.Status)
		}
		approver, err := s.users.GetByID(ctx, approverID)
		if err != nil {
			return fmt.Errorf("failed to load approver: %w", err)
		}
		if approver.CompanyID != e.CompanyID {
			return fmt.Errorf("%w: user %d may not decide expense %d", approval.ErrForbidden, approverID, expenseID)
		}

		resolved, submitter, err := s.resolve(ctx, e)
		if err != nil {
			return err
		}
		if err := s.authz.Authorize(approver, approval.ActionDecide, approval.Subject{
			CompanyID: e.CompanyID,
			Expense:   e,
			Submitter: submitter,
			Resolved:  resolved,
		}); err != nil {
			return err
		}

		res, err := s.engine.Apply(ctx, resolved, e, approval.Decision{
			ApproverID: approverID,
			Outcome:    outcome,
			Comments:   comments,
		})
		if err != nil {
			return err
		}

		if err := s.expenses.AppendDecision(ctx, res.Expense, res.Entry); err != nil {
			return err
		}
		result = res
		return nil
	})
	if err != nil {
		s.logger.Error("Decision rejected",
			"expense_id", expenseID,
			"approver_id", approverID,
			"decision", string(outcome),
			"error", err)
		return nil, err
	}

	e := result.Expense
	s.logger.Info("Decision recorded",
		"expense_id", e.ID,
		"approver_id", approverID,
		"decision", string(outcome),
		"status", string(e.Status),
		"approvals", result.Progress.Approvals,
		"total", result.Progress.Total)

	if result.Transitioned {
		s.dispatcher.DispatchAsync(ctx, event.NewEvent(event.TypeExpenseFinalized, e.CompanyID, e.ID, map[string]any{
			event.KeyApproverID: approverID,
			event.KeyDecision:   string(outcome),
			event.KeyStatus:     string(e.Status),
		}))
	}

	return e, nil
}

// Query loads one expense
func (s *workflowServiceImpl) Query(ctx context.Context, expenseID int64) (*entity.Expense, error) {
	return s.expenses.GetByID(ctx, expenseID)
}

// Progress reports where the expense stands against its resolved rule
func (s *workflowServiceImpl) Progress(ctx context.Context, expenseID int64) (*approval.Progress, error) {
	e, err := s.expenses.GetByID(ctx, expenseID)
	if err != nil {
		return nil, err
	}
	resolved, _, err := s.resolve(ctx, e)
	if err != nil {
		return nil, err
	}
	p := s.engine.Progress(resolved, e)
	return &p, nil
}

// Authorize applies the single authorization predicate to an expense
func (s *workflowServiceImpl) Authorize(ctx context.Context, actorID, expenseID int64, action approval.Action) error {
	actor, err := s.users.GetByID(ctx, actorID)
	if err != nil {
		if errors.Is(err, entity.ErrNotFound) {
			return fmt.Errorf("%w: unknown user %d", approval.ErrForbidden, actorID)
		}
		return err
	}
	e, err := s.expenses.GetByID(ctx, expenseID)
	if err != nil {
		return err
	}
	if actor.CompanyID != e.CompanyID {
		// do not reveal that the expense exists
		return fmt.Errorf("expense %d: %w", expenseID, entity.ErrNotFound)
	}

	resolved, submitter, err := s.resolve(ctx, e)
	if err != nil && !errors.Is(err, approval.ErrNoApplicableRule) {
		return err
	}
	return s.authz.Authorize(actor, action, approval.Subject{
		CompanyID: e.CompanyID,
		Expense:   e,
		Submitter: submitter,
		Resolved:  resolved,
	})
}

// resolve binds the expense to its governing rule using the company's current rule set.
// The submitter is returned even when resolution fails.
func (s *workflowServiceImpl) resolve(ctx context.Context, e *entity.Expense) (*approval.ResolvedRule, *entity.User, error) {
	submitter, err := s.users.GetByID(ctx, e.SubmitterID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load submitter: %w", err)
	}
	company, err := s.companies.GetByID(ctx, e.CompanyID)
	if err != nil {
		return nil, submitter, fmt.Errorf("failed to load company: %w", err)
	}
	rules, err := s.rules.RulesFor(ctx, company)
	if err != nil {
		return nil, submitter, fmt.Errorf("failed to load approval rules: %w", err)
	}
	resolved, err := approval.Resolve(e, submitter, rules)
	return resolved, submitter, err
}
