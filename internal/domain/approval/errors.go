package approval

import "errors"

var (
	// ErrNoApplicableRule is returned when no rule governs an expense and the submitter has no manager,
	// or when the governing rule resolves to an empty approver set
	ErrNoApplicableRule = errors.New("no applicable approval rule")

	// ErrOutOfSequence is returned when a sequential rule receives a decision from anyone but the next approver
	ErrOutOfSequence = errors.New("decision out of sequence")

	// ErrPrematureDecision is returned when another approver decides before the manager on a manager-first rule
	ErrPrematureDecision = errors.New("manager must decide first")

	// ErrDuplicateDecision is returned when an approver decides the same expense twice
	ErrDuplicateDecision = errors.New("approver has already decided")

	// ErrAlreadyFinalized is returned for decisions on an approved or rejected expense
	ErrAlreadyFinalized = errors.New("expense already finalized")

	// ErrNotAnApprover is returned when the decider is not in the resolved approver set
	ErrNotAnApprover = errors.New("user is not an approver for this expense")

	// ErrForbidden is returned when the actor may not perform the action at all
	ErrForbidden = errors.New("forbidden")
)
