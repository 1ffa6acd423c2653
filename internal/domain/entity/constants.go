package entity

// Role is a user's role within a company
type Role string

const (
	RoleEmployee Role = "EMPLOYEE"
	RoleManager  Role = "MANAGER"
	RoleAdmin    Role = "ADMIN"
)

// IsValid reports whether the role is one of the known roles
func (r Role) IsValid() bool {
	switch r {
	case RoleEmployee, RoleManager, RoleAdmin:
		return true
	}
	return false
}

// CanApprove reports whether users with this role may be listed as approvers or act as managers
func (r Role) CanApprove() bool {
	return r == RoleManager || r == RoleAdmin
}

func (r Role) String() string { return string(r) }

// ExpenseStatus is the aggregate approval status of an expense
type ExpenseStatus string

const (
	StatusPending  ExpenseStatus = "PENDING"
	StatusApproved ExpenseStatus = "APPROVED"
	StatusRejected ExpenseStatus = "REJECTED"
)

// IsValid reports whether the status is known
func (s ExpenseStatus) IsValid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected:
		return true
	}
	return false
}

// IsTerminal returns true once no further decisions are accepted
func (s ExpenseStatus) IsTerminal() bool {
	return s == StatusApproved || s == StatusRejected
}

func (s ExpenseStatus) String() string { return string(s) }

// Decision is an individual approver's outcome
type Decision string

const (
	DecisionApproved Decision = "APPROVED"
	DecisionRejected Decision = "REJECTED"
)

// IsValid reports whether the decision is known
func (d Decision) IsValid() bool {
	return d == DecisionApproved || d == DecisionRejected
}

func (d Decision) String() string { return string(d) }

// Conversion status constants
const (
	ConversionStatusPending   = "PENDING"
	ConversionStatusConverted = "CONVERTED"
	ConversionStatusFailed    = "FAILED"
)

// DefaultMinApprovalPercentage is used when a rule is created without a threshold
const DefaultMinApprovalPercentage = 60
