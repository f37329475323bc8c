package usecase

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"SignalHook/internal/domain/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const seedYAML = `
bots:
  - id: bot-1
    owner_id: alice
    secret: s3cret
    symbol: BTCUSDT
    timeframe: "60"
    signal_mode: MAJORITY
    default_quantity: "0.01"
    indicators:
      - id: rsi
        type: RSI
        params: {period: 14}
        weight: 2
        buy_signal: {operator: lt, value: 30}
        sell_signal: {operator: gt, value: 70}
      - id: macd
        type: MACD
        enabled: false
        buy_signal: {operator: crosses_above, value: 0, field: histogram}
  - id: bot-2
    owner_id: bob
    secret: other
    symbol: ETHUSDT
`

func TestParseSeed(t *testing.T) {
	bots, err := ParseSeed([]byte(seedYAML))
	require.NoError(t, err)
	require.Len(t, bots, 2)

	assertion := assert.New(t)
	b := bots[0]
	assertion.Equal(models.SignalModeMajority, b.SignalMode)
	assertion.Equal(models.BotStatusActive, b.Status)
	assertion.Equal("1h", b.Timeframe)
	assertion.Equal("0.01", b.DefaultQuantity.String())
	require.Len(t, b.Indicators, 2)
	assertion.Equal(2.0, b.Indicators[0].Weight)
	assertion.True(b.Indicators[0].Enabled)
	assertion.Equal(models.OpLT, b.Indicators[0].BuySignal.Operator)
	assertion.Equal(1.0, b.Indicators[1].Weight)
	assertion.False(b.Indicators[1].Enabled)
	assertion.Equal("histogram", b.Indicators[1].BuySignal.Field)

	assertion.Equal(models.SignalModeAll, bots[1].SignalMode)
	assertion.Nil(bots[1].DefaultQuantity)
}

func TestParseSeedRejects(t *testing.T) {
	cases := map[string]string{
		"missing secret": "bots:\n  - {id: b, owner_id: o, symbol: X}\n",
		"bad mode":       "bots:\n  - {id: b, owner_id: o, secret: s, symbol: X, signal_mode: SOME}\n",
		"bad status":     "bots:\n  - {id: b, owner_id: o, secret: s, symbol: X, status: GONE}\n",
		"bad quantity":   "bots:\n  - {id: b, owner_id: o, secret: s, symbol: X, default_quantity: \"-1\"}\n",
		"bad indicator":  "bots:\n  - {id: b, owner_id: o, secret: s, symbol: X, indicators: [{id: i, type: VWAP}]}\n",
		"not yaml":       "bots: [",
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseSeed([]byte(raw))
			assert.Error(t, err)
		})
	}
}

func TestSeederLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bots.yaml")
	require.NoError(t, os.WriteFile(path, []byte(seedYAML), 0o600))
	store := newMemStore()
	s := NewSeeder(store, newTestRegistry(store), nil)

	n, err := s.LoadFile(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	bot, err := store.GetBot(context.Background(), "bot-2")
	require.NoError(t, err)
	assert.Equal(t, "other", bot.Secret)

	n, err = s.LoadFile(context.Background(), "")
	assert.NoError(t, err)
	assert.Zero(t, n)

	_, err = s.LoadFile(context.Background(), filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
