package port

import (
	"context"
	"time"

	"github.com/garyjia/expense-approval/internal/domain/entity"
)

// Repositories return an error wrapping entity.ErrNotFound for missing records.

// CompanyRepository defines persistence operations for Company
type CompanyRepository interface {
	Create(ctx context.Context, company *entity.Company) error
	GetByID(ctx context.Context, id int64) (*entity.Company, error)
	// BumpRuleSetVersion increments and returns the company's rule-set version
	BumpRuleSetVersion(ctx context.Context, id int64) (int64, error)
}

// UserRepository defines persistence operations for User
type UserRepository interface {
	// Create fails with entity.ErrAlreadyExists when the email is taken
	Create(ctx context.Context, user *entity.User) error
	GetByID(ctx context.Context, id int64) (*entity.User, error)
	GetByEmail(ctx context.Context, email string) (*entity.User, error)
	ListByCompany(ctx context.Context, companyID int64) ([]*entity.User, error)
	ListReports(ctx context.Context, managerID int64) ([]*entity.User, error)
	Update(ctx context.Context, user *entity.User) error
}

// RuleRepository defines persistence operations for ApprovalRule
type RuleRepository interface {
	Create(ctx context.Context, rule *entity.ApprovalRule) error
	GetByID(ctx context.Context, id int64) (*entity.ApprovalRule, error)
	ListByCompany(ctx context.Context, companyID int64) ([]*entity.ApprovalRule, error)
	Update(ctx context.Context, rule *entity.ApprovalRule) error
	Delete(ctx context.Context, id int64) error
}

// ExpenseCursor is a keyset position in (submitted_at DESC, id DESC) order
type ExpenseCursor struct {
	SubmittedAt time.Time
	ID          int64
}

// ExpenseFilter selects one page of expenses, newest first
type ExpenseFilter struct {
	CompanyID   int64
	SubmitterID int64                // 0 means any submitter
	Status      entity.ExpenseStatus // empty means any status
	After       *ExpenseCursor       // exclusive; nil starts from the newest
	Limit       int
}

// ExpenseRepository defines persistence operations for Expense and its history
type ExpenseRepository interface {
	Create(ctx context.Context, expense *entity.Expense) error
	// GetByID loads the expense with its full history
	GetByID(ctx context.Context, id int64) (*entity.Expense, error)
	// AppendDecision stores entry and expense.Status if expense.Version still matches the
	// stored version, then increments expense.Version. Fails with entity.ErrConflict otherwise.
	AppendDecision(ctx context.Context, expense *entity.Expense, entry entity.HistoryEntry) error
	// ListPage returns up to filter.Limit expenses with history, ordered newest first
	ListPage(ctx context.Context, filter ExpenseFilter) ([]*entity.Expense, error)
}

// ConversionRepository defines persistence operations for ExpenseConversion
type ConversionRepository interface {
	Upsert(ctx context.Context, conv *entity.ExpenseConversion) error
	GetByExpenseID(ctx context.Context, expenseID int64) (*entity.ExpenseConversion, error)
	// ListUnconverted returns ids of expenses with no conversion, or a failed one with fewer than maxAttempts
	ListUnconverted(ctx context.Context, maxAttempts, limit int) ([]int64, error)
}

// TransactionManager handles database transactions
type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// ExpenseLocker serializes all mutations of a single expense
type ExpenseLocker interface {
	// WithExpenseLock runs fn while holding the lock for expenseID and inside a write transaction
	WithExpenseLock(ctx context.Context, expenseID int64, fn func(ctx context.Context) error) error
}

// RuleSource returns the approval rules of a company, possibly from a cache
type RuleSource interface {
	RulesFor(ctx context.Context, company *entity.Company) ([]*entity.ApprovalRule, error)
	// Invalidate drops cached rules for the company
	Invalidate(ctx context.Context, companyID int64) error
}
