package event

import (
	"maps"
	"time"

	"github.com/google/uuid"
)

// Payload keys shared by publishers and handlers
const (
	KeyStatus     = "status"
	KeyApproverID = "approver_id"
	KeyDecision   = "decision"
	KeyCurrency   = "currency"
	KeyVersion    = "rule_set_version"
)

// Event represents a domain event
type Event struct {
	ID            string         `json:"id"`
	Type          Type           `json:"type"`
	CompanyID     int64          `json:"company_id"`
	ExpenseID     int64          `json:"expense_id,omitempty"`
	Payload       map[string]any `json:"payload"`
	Timestamp     time.Time      `json:"timestamp"`
	CorrelationID string         `json:"correlation_id"`
}

// NewEvent creates a new domain event with a fresh id and its own correlation chain
func NewEvent(eventType Type, companyID, expenseID int64, payload map[string]any) *Event {
	id := uuid.NewString()
	return NewEventWithCorrelation(eventType, companyID, expenseID, payload, id)
}

// NewEventWithCorrelation creates an event linked to an existing correlation chain
func NewEventWithCorrelation(eventType Type, companyID, expenseID int64, payload map[string]any, correlationID string) *Event {
	if payload == nil {
		payload = map[string]any{}
	}
	return &Event{
		ID:            uuid.NewString(),
		Type:          eventType,
		CompanyID:     companyID,
		ExpenseID:     expenseID,
		Payload:       payload,
		Timestamp:     time.Now().UTC(),
		CorrelationID: correlationID,
	}
}

// WithPayload returns a copy of the event with key set (the receiver is not modified)
func (e *Event) WithPayload(key string, value any) *Event {
	c := *e
	c.Payload = maps.Clone(e.Payload)
	if c.Payload == nil {
		c.Payload = map[string]any{}
	}
	c.Payload[key] = value
	return &c
}

// GetPayloadString retrieves a string value from the payload
func (e *Event) GetPayloadString(key string) string {
	if str, ok := e.Payload[key].(string); ok {
		return str
	}
	return ""
}

// GetPayloadInt retrieves an int64 value from the payload
func (e *Event) GetPayloadInt(key string) int64 {
	switch v := e.Payload[key].(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case float64:
		return int64(v)
	}
	return 0
}
