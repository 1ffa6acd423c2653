package approval

import (
	"testing"

	"github.com/garyjia/expense-approval/internal/domain/entity"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSelectRule_PriorityThenID(t *testing.T) {
	expense := newExpense(1, "250")
	rules := []*entity.ApprovalRule{
		{ID: 3, Name: "catch-all", Priority: 10},
		{ID: 2, Name: "big travel", Priority: 1, Category: "Travel", MinAmount: decimal.NewNullDecimal(decimal.NewFromInt(1000))},
		{ID: 5, Name: "travel b", Priority: 5, Category: "Travel"},
		{ID: 4, Name: "travel a", Priority: 5, Category: "Travel"},
	}

	got := SelectRule(rules, expense)
	require.NotNil(t, got)
	assert.Equal(t, int64(4), got.ID)

	assert.Equal(t, int64(3), rules[0].ID, "input order must not change")
}

func TestSelectRule_NoMatch(t *testing.T) {
	rules := []*entity.ApprovalRule{{ID: 1, Category: "Meals"}}
	assert.Nil(t, SelectRule(rules, newExpense(1, "10")))
	assert.Nil(t, SelectRule(nil, newExpense(1, "10")))
}

func TestResolve_ImplicitManagerRule(t *testing.T) {
	resolved, err := Resolve(newExpense(1, "10"), newSubmitter(1, ptr(9)), nil)
	require.NoError(t, err)

	assert.True(t, resolved.Implicit)
	assert.Equal(t, 100, resolved.Threshold())
	assert.Equal(t, []Slot{{UserID: 9, Required: true, Manager: true}}, resolved.Slots)
}

func TestResolve_NoManagerNoRule(t *testing.T) {
	_, err := Resolve(newExpense(1, "10"), newSubmitter(1, nil), nil)
	assert.ErrorIs(t, err, ErrNoApplicableRule)
}

func TestResolve_ManagerFirstThenSequence(t *testing.T) {
	rule := &entity.ApprovalRule{
		ID: 1, Name: "finance", IsManagerApprover: true, MinApprovalPercentage: 60,
		Approvers: []entity.Approver{
			{UserID: 30, Sequence: 3},
			{UserID: 20, Required: true, Sequence: 2},
		},
	}

	resolved, err := Resolve(newExpense(1, "10"), newSubmitter(1, ptr(9)), []*entity.ApprovalRule{rule})
	require.NoError(t, err)

	assert.False(t, resolved.Implicit)
	assert.Equal(t, []int64{9, 20, 30}, resolved.ApproverIDs())
	mgr, ok := resolved.ManagerSlot()
	require.True(t, ok)
	assert.True(t, mgr.Required)
}

func TestResolve_ManagerListedAsApproverIsMerged(t *testing.T) {
	rule := &entity.ApprovalRule{
		ID: 1, Name: "r", IsManagerApprover: true, MinApprovalPercentage: 50,
		Approvers: []entity.Approver{{UserID: 9, Sequence: 1}, {UserID: 20, Sequence: 2}},
	}

	resolved, err := Resolve(newExpense(1, "10"), newSubmitter(1, ptr(9)), []*entity.ApprovalRule{rule})
	require.NoError(t, err)
	assert.Equal(t, []int64{9, 20}, resolved.ApproverIDs())
}

func TestResolve_SubmitterExcluded(t *testing.T) {
	rule := &entity.ApprovalRule{
		ID: 1, Name: "r", MinApprovalPercentage: 50,
		Approvers: []entity.Approver{{UserID: 1, Sequence: 1}, {UserID: 20, Sequence: 2}},
	}

	resolved, err := Resolve(newExpense(1, "10"), newSubmitter(1, nil), []*entity.ApprovalRule{rule})
	require.NoError(t, err)
	assert.Equal(t, []int64{20}, resolved.ApproverIDs())
}

func TestResolve_OnlySubmitterListed(t *testing.T) {
	rule := &entity.ApprovalRule{
		ID: 1, Name: "self", MinApprovalPercentage: 50,
		Approvers: []entity.Approver{{UserID: 1, Sequence: 1}},
	}

	_, err := Resolve(newExpense(1, "10"), newSubmitter(1, nil), []*entity.ApprovalRule{rule})
	assert.ErrorIs(t, err, ErrNoApplicableRule)
}

func TestResolve_ManagerApproverWithoutManager(t *testing.T) {
	rule := &entity.ApprovalRule{
		ID: 1, Name: "r", IsManagerApprover: true, MinApprovalPercentage: 100,
		Approvers: []entity.Approver{{UserID: 20, Sequence: 1}},
	}

	resolved, err := Resolve(newExpense(1, "10"), newSubmitter(1, nil), []*entity.ApprovalRule{rule})
	require.NoError(t, err)
	_, ok := resolved.ManagerSlot()
	assert.False(t, ok)
	assert.Equal(t, []int64{20}, resolved.ApproverIDs())
}

func TestResolve_SoleRule(t *testing.T) {
	unfiltered := &entity.ApprovalRule{
		ID: 1, Name: "everything", MinApprovalPercentage: 100,
		Approvers: []entity.Approver{{UserID: 20}},
	}
	filtered := &entity.ApprovalRule{
		ID: 2, Name: "meals only", Category: "Meals", MinApprovalPercentage: 100,
		Approvers: []entity.Approver{{UserID: 20}},
	}

	t.Run("unfiltered rule governs without a manager", func(t *testing.T) {
		resolved, err := Resolve(newExpense(1, "10"), newSubmitter(1, nil), []*entity.ApprovalRule{unfiltered})
		require.NoError(t, err)
		assert.Equal(t, int64(1), resolved.Rule.ID)
		assert.False(t, resolved.Implicit)
	})

	t.Run("filtered rule that does not match falls back to the manager", func(t *testing.T) {
		resolved, err := Resolve(newExpense(1, "10"), newSubmitter(1, ptr(9)), []*entity.ApprovalRule{filtered})
		require.NoError(t, err)
		assert.True(t, resolved.Implicit)
		assert.Equal(t, []int64{9}, resolved.ApproverIDs())
	})

	t.Run("filtered rule that does not match and no manager", func(t *testing.T) {
		_, err := Resolve(newExpense(1, "10"), newSubmitter(1, nil), []*entity.ApprovalRule{filtered})
		assert.ErrorIs(t, err, ErrNoApplicableRule)
	})
}
