package entity

import "time"

// HistoryEntry is one approver decision. Entries are append-only; Seq starts at 1.
type HistoryEntry struct {
	Seq        int       `json:"seq"`
	ApproverID int64     `json:"approver_id"`
	Decision   Decision  `json:"decision"`
	Comments   string    `json:"comments,omitempty"`
	DecidedAt  time.Time `json:"decided_at"`
}
