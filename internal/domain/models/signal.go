package models

import (
	"strings"

	"github.com/shopspring/decimal"
)

// SignalAction is the direction proposed by an inbound alert.
type SignalAction string

const (
	ActionBuy   SignalAction = "buy"
	ActionSell  SignalAction = "sell"
	ActionClose SignalAction = "close"
)

// Direction maps an action to the classification that supports it.
// Close has no indicator direction.
func (a SignalAction) Direction() (Classification, bool) {
	switch a {
	case ActionBuy:
		return ClassBuy, true
	case ActionSell:
		return ClassSell, true
	}
	return "", false
}

// InboundSignal is the JSON body of an alert webhook.
// Numeric fields accept both JSON numbers and numeric strings.
type InboundSignal struct {
	Action     string             `json:"action" validate:"required,oneof=buy sell close"`
	Symbol     string             `json:"symbol" validate:"required,max=64"`
	Quantity   *decimal.Decimal   `json:"quantity,omitempty" validate:"omitempty,gt=0"`
	Price      *decimal.Decimal   `json:"price,omitempty" validate:"omitempty,gt=0"`
	StopLoss   *decimal.Decimal   `json:"stopLoss,omitempty" validate:"omitempty,gt=0"`
	TakeProfit *decimal.Decimal   `json:"takeProfit,omitempty" validate:"omitempty,gt=0"`
	OrderID    string             `json:"orderId,omitempty" validate:"max=128"`
	Message    string             `json:"message,omitempty" validate:"max=2048"`
	Indicators map[string]float64 `json:"indicators,omitempty"`
}

// Normalize lowercases the action so "BUY" and "buy" are the same alert.
func (s *InboundSignal) Normalize() {
	s.Action = strings.ToLower(strings.TrimSpace(s.Action))
	s.Symbol = strings.TrimSpace(s.Symbol)
	s.OrderID = strings.TrimSpace(s.OrderID)
}

// SignalAction returns the typed action.
func (s *InboundSignal) SignalAction() SignalAction { return SignalAction(s.Action) }
