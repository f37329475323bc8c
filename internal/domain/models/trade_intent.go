package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// IntentStatus tracks a trade intent until the executor owns it.
type IntentStatus string

const (
	IntentPending   IntentStatus = "PENDING"
	IntentSubmitted IntentStatus = "SUBMITTED"
	IntentDryRun    IntentStatus = "DRY_RUN"
)

// DryRunRef is the order reference stored for test events that skip the executor.
const DryRunRef = "dry-run"

// TradeIntent is the instruction handed to the execution collaborator.
// ID doubles as the broker client order id.
type TradeIntent struct {
	ID         string           `json:"id"`
	BotID      string           `json:"bot_id"`
	EventID    string           `json:"event_id"`
	Symbol     string           `json:"symbol"`
	Side       SignalAction     `json:"side"`
	Quantity   *decimal.Decimal `json:"quantity,omitempty"`
	Price      *decimal.Decimal `json:"price,omitempty"`
	StopLoss   *decimal.Decimal `json:"stop_loss,omitempty"`
	TakeProfit *decimal.Decimal `json:"take_profit,omitempty"`
	Status     IntentStatus     `json:"status"`
	OrderRef   string           `json:"order_ref,omitempty"`
	IsTest     bool             `json:"is_test"`
	CreatedAt  time.Time        `json:"created_at"`
	UpdatedAt  time.Time        `json:"updated_at"`
}
