package models

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// BotStatus is the lifecycle state of a bot.
type BotStatus string

const (
	BotStatusActive  BotStatus = "ACTIVE"
	BotStatusPaused  BotStatus = "PAUSED"
	BotStatusStopped BotStatus = "STOPPED"
)

// IsValid reports whether s is a known status.
func (s BotStatus) IsValid() bool {
	switch s {
	case BotStatusActive, BotStatusPaused, BotStatusStopped:
		return true
	}
	return false
}

// Label is the lowercase form used in ledger reasons ("bot is paused").
func (s BotStatus) Label() string { return strings.ToLower(string(s)) }

// SignalMode selects how indicator classifications are combined.
type SignalMode string

const (
	SignalModeAny      SignalMode = "ANY"
	SignalModeAll      SignalMode = "ALL"
	SignalModeMajority SignalMode = "MAJORITY"
	SignalModeCustom   SignalMode = "CUSTOM"
)

// IsValid reports whether m is a known mode.
func (m SignalMode) IsValid() bool {
	switch m {
	case SignalModeAny, SignalModeAll, SignalModeMajority, SignalModeCustom:
		return true
	}
	return false
}

// Bot is the configuration a webhook is evaluated against.
// The secret never leaves the process through JSON.
type Bot struct {
	ID              string            `json:"id"`
	OwnerID         string            `json:"owner_id"`
	Secret          string            `json:"-"`
	Name            string            `json:"name"`
	Symbol          string            `json:"symbol"`
	Timeframe       string            `json:"timeframe"`
	SignalMode      SignalMode        `json:"signal_mode"`
	Status          BotStatus         `json:"status"`
	DefaultQuantity *decimal.Decimal  `json:"default_quantity,omitempty"`
	Indicators      []IndicatorConfig `json:"indicators"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
}

// EnabledIndicators returns the indicators that take part in evaluation, in configured order.
func (b *Bot) EnabledIndicators() []IndicatorConfig {
	out := make([]IndicatorConfig, 0, len(b.Indicators))
	for _, ic := range b.Indicators {
		if ic.Enabled {
			out = append(out, ic)
		}
	}
	return out
}
