package amqp

import (
	"encoding/json"
	"fmt"
	"time"
)

// EventKind names a ledger mutation.
type EventKind string

const (
	TransactionCreated EventKind = "transaction.created"
	TransactionUpdated EventKind = "transaction.updated"
	TransactionDeleted EventKind = "transaction.deleted"
	BudgetUpserted     EventKind = "budget.upserted"
	BudgetDeleted      EventKind = "budget.deleted"
)

// IsValid reports whether k is a known event kind.
func (k EventKind) IsValid() bool {
	switch k {
	case TransactionCreated, TransactionUpdated, TransactionDeleted, BudgetUpserted, BudgetDeleted:
		return true
	default:
		return false
	}
}

// LedgerEvent is a lightweight change notification. Consumers re-read the
// ledger for anything beyond the affected period.
type LedgerEvent struct {
	Kind      EventKind `json:"kind"`
	ID        string    `json:"id"`
	Category  string    `json:"category"`
	Type      string    `json:"type,omitempty"`
	Date      string    `json:"date,omitempty"`
	Month     int       `json:"month"`
	Year      int       `json:"year"`
	Timestamp time.Time `json:"timestamp"`
}

// NewLedgerEvent stamps an event with the current time.
func NewLedgerEvent(kind EventKind, id, category string, month, year int) *LedgerEvent {
	return &LedgerEvent{
		Kind:      kind,
		ID:        id,
		Category:  category,
		Month:     month,
		Year:      year,
		Timestamp: time.Now().UTC(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *LedgerEvent) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// LedgerEventFromJSON parses and checks an event body.
func LedgerEventFromJSON(data []byte) (*LedgerEvent, error) {
	var msg LedgerEvent
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if !msg.Kind.IsValid() {
		return nil, fmt.Errorf("unknown event kind %q", msg.Kind)
	}
	if msg.Month < 0 || msg.Month > 11 {
		return nil, fmt.Errorf("event month %d out of range", msg.Month)
	}
	return &msg, nil
}
