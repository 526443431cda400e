package amqp

import (
	"encoding/json"
	"time"
)

// Event sources for ExpenseEventMessage.
const (
	SourceManual    = "manual"
	SourceRecurring = "recurring"
)

// ExpenseEventMessage notifies downstream consumers (notification senders,
// report builders) that an expense row was written. It carries only
// identifiers and the amount; consumers fetch the full row when needed.
type ExpenseEventMessage struct {
	ID          int64     `json:"id"`
	RecurringID int64     `json:"recurring_id,omitempty"`
	AmountCents int64     `json:"amount_cents"`
	Currency    string    `json:"currency"`
	Source      string    `json:"source"`
	Timestamp   time.Time `json:"timestamp"`
}

// NewExpenseEventMessage creates an event for a freshly written expense.
func NewExpenseEventMessage(id, recurringID, amountCents int64, currency string) *ExpenseEventMessage {
	source := SourceManual
	if recurringID != 0 {
		source = SourceRecurring
	}
	return &ExpenseEventMessage{
		ID:          id,
		RecurringID: recurringID,
		AmountCents: amountCents,
		Currency:    currency,
		Source:      source,
		Timestamp:   time.Now(),
	}
}

// ToJSON converts the message to JSON bytes.
func (m *ExpenseEventMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// ExpenseEventMessageFromJSON creates a message from JSON bytes.
func ExpenseEventMessageFromJSON(data []byte) (*ExpenseEventMessage, error) {
	var msg ExpenseEventMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
