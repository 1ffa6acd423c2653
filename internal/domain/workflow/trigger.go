package workflow

// Trigger represents an event that can cause a state transition
type Trigger string

const (
	// TriggerApprove fires when the approval threshold and every required approver are satisfied
	TriggerApprove Trigger = "APPROVE"
	// TriggerReject fires on a veto: a required approver rejects, or any rejection in sequential mode
	TriggerReject Trigger = "REJECT"
)

// String returns the string representation of the trigger
func (t Trigger) String() string {
	return string(t)
}
