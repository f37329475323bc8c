package models

import (
	"encoding/json"
	"time"
)

// EventStatus is the processing state of a ledger record.
type EventStatus string

const (
	EventReceived   EventStatus = "RECEIVED"
	EventProcessing EventStatus = "PROCESSING"
	EventCompleted  EventStatus = "COMPLETED"
	EventFailed     EventStatus = "FAILED"
)

// Terminal reports whether no further transition is allowed.
func (s EventStatus) Terminal() bool {
	return s == EventCompleted || s == EventFailed
}

// EventOutcome is the audit trail attached to a finished record.
type EventOutcome struct {
	Results       []EvaluationResult `json:"results,omitempty"`
	Decision      *Decision          `json:"decision,omitempty"`
	TradeIntentID string             `json:"trade_intent_id,omitempty"`
	OrderRef      string             `json:"order_ref,omitempty"`
	// Hints are indicator values supplied by the caller. Stored, never evaluated.
	Hints map[string]float64 `json:"hints,omitempty"`
}

// EventRecord is one inbound signal and its lifecycle.
type EventRecord struct {
	ID         string          `json:"id"`
	BotID      string          `json:"bot_id"`
	DedupKey   string          `json:"dedup_key,omitempty"`
	Payload    json.RawMessage `json:"payload"`
	Status     EventStatus     `json:"status"`
	IsTest     bool            `json:"is_test"`
	Attempts   int             `json:"attempts"`
	Outcome    *EventOutcome   `json:"outcome,omitempty"`
	Reason     string          `json:"reason,omitempty"`
	Error      string          `json:"error,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
	StartedAt  *time.Time      `json:"started_at,omitempty"`
	FinishedAt *time.Time      `json:"finished_at,omitempty"`
}

// EventResult is the single terminal write for a record.
type EventResult struct {
	Status  EventStatus
	Outcome *EventOutcome
	Reason  string
	Error   string
}

// Completed builds a COMPLETED result.
func Completed(reason string, outcome *EventOutcome) EventResult {
	return EventResult{Status: EventCompleted, Outcome: outcome, Reason: reason}
}

// Failed builds a FAILED result; the reason doubles as the error text when none is given.
func Failed(reason string, err error, outcome *EventOutcome) EventResult {
	r := EventResult{Status: EventFailed, Outcome: outcome, Reason: reason, Error: reason}
	if err != nil {
		r.Error = err.Error()
	}
	return r
}
