package workflow

// LifecycleGuards supplies the conditions under which a pending expense may
// leave the Pending state. A nil guard always passes.
type LifecycleGuards struct {
	Approve GuardFunc
	Reject  GuardFunc
}

// NewExpenseLifecycle returns a builder for the expense lifecycle:
//
//	PENDING --REJECT--> REJECTED
//	PENDING --APPROVE--> APPROVED
//
// APPROVED and REJECTED are terminal. An expense whose approvers have all
// decided without meeting the threshold stays PENDING.
func NewExpenseLifecycle(g LifecycleGuards) StateMachineBuilder {
	b := NewBuilder()
	b.Configure(StatePending).
		PermitIf(TriggerReject, StateRejected, g.Reject).
		PermitIf(TriggerApprove, StateApproved, g.Approve)
	b.Configure(StateApproved)
	b.Configure(StateRejected)
	return b
}
