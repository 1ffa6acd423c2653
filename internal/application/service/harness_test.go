package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/garyjia/expense-approval/internal/application/dispatcher"
	"github.com/garyjia/expense-approval/internal/application/port"
	"github.com/garyjia/expense-approval/internal/domain/entity"
	"github.com/garyjia/expense-approval/internal/domain/event"
	"github.com/garyjia/expense-approval/internal/infrastructure/cache"
	"github.com/garyjia/expense-approval/internal/infrastructure/persistence/repository"
	"github.com/garyjia/expense-approval/internal/infrastructure/persistence/sqlite"
	"github.com/garyjia/expense-approval/internal/infrastructure/persistence/sqlitetest"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

type mockLogger struct{}

func (m *mockLogger) Info(msg string, keysAndValues ...interface{})  {}
func (m *mockLogger) Error(msg string, keysAndValues ...interface{}) {}

// recordingDispatcher implements dispatcher.Dispatcher, keeps every event and runs
// subscribed handlers inline. Handler errors are collected, not returned.
type recordingDispatcher struct {
	mu            sync.Mutex
	events        []*event.Event
	handlers      map[event.Type][]dispatcher.Handler
	handlerErrors []error
}

func (d *recordingDispatcher) Subscribe(t event.Type, h dispatcher.Handler) {
	d.SubscribeNamed(t, "", h)
}

func (d *recordingDispatcher) SubscribeNamed(t event.Type, _ string, h dispatcher.Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.handlers == nil {
		d.handlers = make(map[event.Type][]dispatcher.Handler)
	}
	d.handlers[t] = append(d.handlers[t], h)
}

func (d *recordingDispatcher) Unsubscribe(event.Type, string)                   {}
func (d *recordingDispatcher) ListHandlers(event.Type) []dispatcher.HandlerInfo { return nil }
func (d *recordingDispatcher) Close() error                                     { return nil }

func (d *recordingDispatcher) Dispatch(ctx context.Context, evt *event.Event) error {
	d.mu.Lock()
	d.events = append(d.events, evt)
	handlers := append([]dispatcher.Handler(nil), d.handlers[evt.Type]...)
	d.mu.Unlock()

	for _, h := range handlers {
		if err := h(ctx, evt); err != nil {
			d.mu.Lock()
			d.handlerErrors = append(d.handlerErrors, err)
			d.mu.Unlock()
		}
	}
	return nil
}

func (d *recordingDispatcher) DispatchAsync(ctx context.Context, evt *event.Event) {
	_ = d.Dispatch(ctx, evt)
}

func (d *recordingDispatcher) ofType(t event.Type) []*event.Event {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []*event.Event
	for _, e := range d.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

// harness wires the services over a temp-file SQLite database
type harness struct {
	db          *sqlite.DB
	companies   port.CompanyRepository
	users       port.UserRepository
	rules       port.RuleRepository
	expenses    port.ExpenseRepository
	conversions port.ConversionRepository
	dispatcher  *recordingDispatcher

	workflow WorkflowService
	userSvc  UserService
	ruleSvc  RuleService

	company *entity.Company
	admin   *entity.User
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	db := sqlitetest.Open(t)
	logger := zap.NewNop()

	h := &harness{
		db:          db,
		companies:   repository.NewCompanyRepository(db, logger),
		users:       repository.NewUserRepository(db, logger),
		rules:       repository.NewRuleRepository(db, logger),
		expenses:    repository.NewExpenseRepository(db, logger),
		conversions: repository.NewConversionRepository(db, logger),
		dispatcher:  &recordingDispatcher{},
	}
	source := cache.NewDirectRuleSource(h.rules)

	h.workflow = NewWorkflowService(WorkflowDeps{
		Companies:  h.companies,
		Users:      h.users,
		Expenses:   h.expenses,
		Rules:      source,
		Locker:     sqlite.NewExpenseLocker(db, logger),
		Dispatcher: h.dispatcher,
		Logger:     &mockLogger{},
		PageSize:   2,
	})

	us := NewUserService(h.companies, h.users, h.rules, db, &mockLogger{}).(*userServiceImpl)
	us.hashCost = bcrypt.MinCost
	h.userSvc = us
	h.ruleSvc = NewRuleService(h.companies, h.users, h.rules, source, db, h.dispatcher, &mockLogger{})

	company, admin, err := h.userSvc.Signup(context.Background(), SignupInput{
		CompanyName:  "Acme",
		BaseCurrency: "usd",
		AdminName:    "Ada",
		Email:        "ada@acme.test",
		Password:     "correct horse",
	})
	require.NoError(t, err)
	h.company, h.admin = company, admin
	return h
}

func (h *harness) user(t *testing.T, name string, role entity.Role, managerID *int64) *entity.User {
	t.Helper()
	u, err := h.userSvc.CreateUser(context.Background(), h.admin.ID, CreateUserInput{
		Name:      name,
		Email:     name + "@acme.test",
		Password:  "password123",
		Role:      role,
		ManagerID: managerID,
	})
	require.NoError(t, err)
	return u
}

func (h *harness) rule(t *testing.T, r *entity.ApprovalRule) *entity.ApprovalRule {
	t.Helper()
	created, err := h.ruleSvc.Create(context.Background(), h.admin.ID, r)
	require.NoError(t, err)
	return created
}

func (h *harness) submit(t *testing.T, submitterID int64, amount string) *entity.Expense {
	t.Helper()
	e, err := h.workflow.Submit(context.Background(), submitterID, draft(amount))
	require.NoError(t, err)
	return e
}

func draft(amount string) entity.ExpenseDraft {
	return entity.ExpenseDraft{
		Amount:      decimal.RequireFromString(amount),
		Currency:    "eur",
		Category:    "Travel",
		Description: "Client visit",
		ExpenseDate: time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC),
	}
}

func ptr(v int64) *int64 { return &v }

func decimalFrom(s string) decimal.NullDecimal {
	return decimal.NewNullDecimal(decimal.RequireFromString(s))
}
