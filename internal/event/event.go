// Package event publishes the notifications other systems consume
package event

import "context"

// Event names
const (
	PositionOpened      = "position.opened"
	PositionClosed      = "position.closed"
	MarginCallTriggered = "margin_call.triggered"
	CommissionPaidOut   = "commission.paid_out"
)

// Publisher delivers an event with a JSON-serializable payload.
// Publishing failures never fail the trade that caused them; callers
// log and move on
type Publisher interface {
	Publish(ctx context.Context, event string, payload interface{}) error
}

// MarginCall is the payload of MarginCallTriggered
type MarginCall struct {
	AccountID   string `json:"account_id"`
	MarginLevel string `json:"margin_level"`
}

// PositionChange is the payload of PositionOpened and PositionClosed
type PositionChange struct {
	PositionID string `json:"position_id"`
	AccountID  string `json:"account_id"`
	Symbol     string `json:"symbol"`
	Status     string `json:"status"`
	Reason     string `json:"reason,omitempty"`
	Profit     string `json:"profit,omitempty"`
}

// Payout is the payload of CommissionPaidOut
type Payout struct {
	BatchID string   `json:"batch_id"`
	Records []string `json:"records"`
	Total   string   `json:"total"`
}

// Noop discards events; used where no broker is configured
type Noop struct{}

// Publish discards the event
func (Noop) Publish(context.Context, string, interface{}) error { return nil }
