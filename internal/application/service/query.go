package service

import (
	"context"
	"fmt"
	"iter"

	"github.com/garyjia/expense-approval/internal/application/port"
	"github.com/garyjia/expense-approval/internal/domain/approval"
	"github.com/garyjia/expense-approval/internal/domain/entity"
)

// QueryForApprover yields what the user may review: every company expense for an Admin,
// reports' expenses plus expenses whose resolved rule lists them for a Manager, and
// nothing for an Employee. A Manager's own expenses are not included.
func (s *workflowServiceImpl) QueryForApprover(ctx context.Context, approverID int64, status entity.ExpenseStatus) iter.Seq2[*entity.Expense, error] {
	return func(yield func(*entity.Expense, error) bool) {
		approver, err := s.users.GetByID(ctx, approverID)
		if err != nil {
			yield(nil, err)
			return
		}
		if !approver.Role.CanApprove() {
			return
		}
		company, err := s.companies.GetByID(ctx, approver.CompanyID)
		if err != nil {
			yield(nil, err)
			return
		}

		var rules []*entity.ApprovalRule
		if approver.Role != entity.RoleAdmin {
			if rules, err = s.rules.RulesFor(ctx, company); err != nil {
				yield(nil, fmt.Errorf("failed to load approval rules: %w", err))
				return
			}
		}

		submitters := make(map[int64]*entity.User)
		filter := port.ExpenseFilter{CompanyID: company.ID, Status: status}
		for e, err := range s.pages(ctx, filter) {
			if err != nil {
				yield(nil, err)
				return
			}
			if approver.Role != entity.RoleAdmin && e.SubmitterID == approver.ID {
				continue
			}

			submitter, ok := submitters[e.SubmitterID]
			if !ok {
				if submitter, err = s.users.GetByID(ctx, e.SubmitterID); err != nil {
					yield(nil, fmt.Errorf("failed to load submitter: %w", err))
					return
				}
				submitters[e.SubmitterID] = submitter
			}

			subject := approval.Subject{CompanyID: company.ID, Expense: e, Submitter: submitter}
			if approver.Role != entity.RoleAdmin && !submitter.IsManagedBy(approver.ID) {
				// unresolvable expenses simply have no listed approvers
				subject.Resolved, _ = approval.Resolve(e, submitter, rules)
			}
			if !s.authz.CanView(approver, subject) {
				continue
			}
			if !yield(e, nil) {
				return
			}
		}
	}
}

// QueryForSubmitter yields the submitter's own expenses
func (s *workflowServiceImpl) QueryForSubmitter(ctx context.Context, submitterID int64, status entity.ExpenseStatus) iter.Seq2[*entity.Expense, error] {
	return func(yield func(*entity.Expense, error) bool) {
		submitter, err := s.users.GetByID(ctx, submitterID)
		if err != nil {
			yield(nil, err)
			return
		}
		filter := port.ExpenseFilter{CompanyID: submitter.CompanyID, SubmitterID: submitter.ID, Status: status}
		for e, err := range s.pages(ctx, filter) {
			if !yield(e, err) || err != nil {
				return
			}
		}
	}
}

// pages walks the filter with keyset pagination
func (s *workflowServiceImpl) pages(ctx context.Context, filter port.ExpenseFilter) iter.Seq2[*entity.Expense, error] {
	return func(yield func(*entity.Expense, error) bool) {
		filter.Limit = s.pageSize
		for {
			page, err := s.expenses.ListPage(ctx, filter)
			if err != nil {
				yield(nil, fmt.Errorf("failed to list expenses: %w", err))
				return
			}
			for _, e := range page {
				if !yield(e, nil) {
					return
				}
			}
			if len(page) < filter.Limit {
				return
			}
			last := page[len(page)-1]
			filter.After = &port.ExpenseCursor{SubmittedAt: last.SubmittedAt, ID: last.ID}
		}
	}
}

// Collect drains a query sequence into a slice, stopping at the first error
func Collect(seq iter.Seq2[*entity.Expense, error]) ([]*entity.Expense, error) {
	out := []*entity.Expense{}
	for e, err := range seq {
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}
