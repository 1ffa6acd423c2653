package container

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/garyjia/expense-approval/internal/application/service"
	"github.com/garyjia/expense-approval/internal/domain/entity"
	"github.com/garyjia/expense-approval/internal/domain/event"
)

// rateServer serves a fixed EUR rate table
func rateServer(t *testing.T) *httptest.Server {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"base":  "EUR",
			"rates": map[string]float64{"EUR": 1, "USD": 1.1},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testConfig(t *testing.T) *Config {
	cfg := DefaultConfig()
	cfg.Database.Path = filepath.Join(t.TempDir(), "expenses.db")
	cfg.Currency.BaseURL = rateServer(t).URL
	cfg.Currency.BackfillInterval = time.Hour
	return cfg
}

func TestNewContainer_Validation(t *testing.T) {
	_, err := NewContainer(nil, zap.NewNop())
	assert.Error(t, err)

	_, err = NewContainer(DefaultConfig(), nil)
	assert.Error(t, err)

	cfg := DefaultConfig()
	cfg.Database.Path = ""
	_, err = NewContainer(cfg, zap.NewNop())
	assert.ErrorContains(t, err, "database.path")

	cfg = DefaultConfig()
	cfg.Redis.Enabled = true
	cfg.Redis.Addr = ""
	_, err = NewContainer(cfg, zap.NewNop())
	assert.ErrorContains(t, err, "redis.addr")
}

func TestContainer_Lifecycle(t *testing.T) {
	c, err := NewContainer(testConfig(t), zap.NewNop())
	require.NoError(t, err)

	require.NoError(t, c.Start(context.Background()))
	assert.True(t, c.Ready())
	assert.Error(t, c.Start(context.Background()), "second start")

	health := c.Health(context.Background())
	assert.True(t, health.Overall, "%+v", health.Components)
	assert.NotContains(t, health.Components, "redis")

	handlers := c.Dispatcher().ListHandlers(event.TypeExpenseSubmitted)
	require.Len(t, handlers, 1)
	assert.Equal(t, conversionHandlerName, handlers[0].Name)
	handlers = c.Dispatcher().ListHandlers(event.TypeExpenseFinalized)
	require.Len(t, handlers, 1)
	assert.Equal(t, finalizedConversionHandlerName, handlers[0].Name)
	handlers = c.Dispatcher().ListHandlers(event.TypeRulesChanged)
	require.Len(t, handlers, 1)
	assert.Equal(t, ruleCacheHandlerName, handlers[0].Name)
	assert.Equal(t, 1, c.Workers().Count())

	require.NoError(t, c.Close())
	assert.False(t, c.Ready())
	assert.Error(t, c.Close())
	assert.Error(t, c.Start(context.Background()))
}

func TestContainer_SubmitConvertsAsynchronously(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	cfg := testConfig(t)
	cfg.Redis.Enabled = true
	cfg.Redis.Addr = mr.Addr()

	c, err := NewContainer(cfg, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, c.Start(ctx))
	t.Cleanup(func() { _ = c.Close() })

	assert.True(t, c.Health(ctx).Components["redis"].Healthy)

	svc := c.Services()
	_, admin, err := svc.Users.Signup(ctx, service.SignupInput{
		CompanyName: "Acme", BaseCurrency: "USD", AdminName: "Ada", Email: "ada@acme.test", Password: "password123",
	})
	require.NoError(t, err)
	emp, err := svc.Users.CreateUser(ctx, admin.ID, service.CreateUserInput{
		Name: "Eli", Email: "eli@acme.test", Password: "password123", Role: entity.RoleEmployee, ManagerID: &admin.ID,
	})
	require.NoError(t, err)

	e, err := svc.Workflow.Submit(ctx, emp.ID, entity.ExpenseDraft{
		Amount:      decimal.NewFromInt(100),
		Currency:    "EUR",
		Category:    "Travel",
		Description: "Flight",
		ExpenseDate: time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		conv, err := c.Repositories().Conversion.GetByExpenseID(ctx, e.ID)
		return err == nil && conv.Status == entity.ConversionStatusConverted
	}, 5*time.Second, 20*time.Millisecond)

	conv, err := c.Repositories().Conversion.GetByExpenseID(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, "110.00", conv.ConvertedAmount.StringFixed(2))

	// submit cached the rule list; a rule change drops it through the rules.changed handler
	require.NotEmpty(t, mr.Keys())
	_, err = svc.Rules.Create(ctx, admin.ID, &entity.ApprovalRule{
		Name:                  "admin sign-off",
		MinApprovalPercentage: 100,
		Approvers:             []entity.Approver{{UserID: admin.ID}},
	})
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return len(mr.Keys()) == 0
	}, 5*time.Second, 20*time.Millisecond)

	// the approval path is untouched by conversion
	got, err := svc.Workflow.Decide(ctx, e.ID, admin.ID, entity.DecisionApproved, "")
	require.NoError(t, err)
	assert.Equal(t, entity.StatusApproved, got.Status)
}

func TestContainer_StartFailureReleasesResources(t *testing.T) {
	cfg := testConfig(t)
	cfg.Redis.Enabled = true
	cfg.Redis.Addr = "127.0.0.1:1"

	c, err := NewContainer(cfg, zap.NewNop())
	require.NoError(t, err)

	err = c.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rule cache")
	assert.False(t, c.Ready())
	assert.Nil(t, c.sqlDB)
}

func TestConvertToZapFields(t *testing.T) {
	fields := convertToZapFields("expense_id", int64(7), 42, "skipped", "error", errors.New("boom"), "dangling")
	require.Len(t, fields, 2)
	assert.Equal(t, "expense_id", fields[0].Key)
	assert.Equal(t, "error", fields[1].Key)
}
