package approval

import (
	"time"

	"github.com/garyjia/expense-approval/internal/domain/entity"
	"github.com/shopspring/decimal"
)

func ptr(v int64) *int64 { return &v }

func newSubmitter(id int64, managerID *int64) *entity.User {
	return &entity.User{ID: id, CompanyID: 1, Name: "submitter", Role: entity.RoleEmployee, ManagerID: managerID}
}

func newExpense(submitterID int64, amount string) *entity.Expense {
	return &entity.Expense{
		ID:          100,
		CompanyID:   1,
		SubmitterID: submitterID,
		Amount:      decimal.RequireFromString(amount),
		Currency:    "USD",
		Category:    "Travel",
		Description: "Flight",
		ExpenseDate: time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
		Status:      entity.StatusPending,
	}
}
