package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"SignalHook/internal/domain/models"
	domainrepo "SignalHook/internal/domain/repository"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *SQLStore {
	t.Helper()
	ctx := context.Background()
	db, err := OpenDB(ctx, DialectSQLite, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, Migrate(ctx, db, DialectSQLite))
	require.NoError(t, Migrate(ctx, db, DialectSQLite), "migrations must be re-runnable")
	return NewSQLStore(db, DialectSQLite, nil)
}

func seedBot(t *testing.T, s *SQLStore, id string) *models.Bot {
	t.Helper()
	qty := decimal.RequireFromString("0.25")
	b := &models.Bot{
		ID: id, OwnerID: "owner-1", Secret: "s3cret", Name: "trend",
		Symbol: "BTCUSDT", Timeframe: "1h", SignalMode: models.SignalModeMajority, Status: models.BotStatusActive,
		DefaultQuantity: &qty,
		Indicators: []models.IndicatorConfig{{
			ID: "rsi", Type: models.IndicatorRSI, Weight: 1, Enabled: true,
			Params:    map[string]interface{}{"period": float64(14)},
			BuySignal: &models.SignalSpec{Operator: models.OpLT, Value: 30},
		}},
	}
	require.NoError(t, s.UpsertBot(context.Background(), b))
	return b
}

func newEvent(id, botID, dedup string, created time.Time) *models.EventRecord {
	return &models.EventRecord{
		ID: id, BotID: botID, DedupKey: dedup,
		Payload:   json.RawMessage(`{"action":"buy","symbol":"BTCUSDT"}`),
		Status:    models.EventReceived,
		CreatedAt: created,
	}
}

func TestBotRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedBot(t, s, "bot-1")

	got, err := s.GetBot(ctx, "bot-1")
	require.NoError(t, err)

	assertion := assert.New(t)
	assertion.Equal("s3cret", got.Secret)
	assertion.Equal(models.SignalModeMajority, got.SignalMode)
	assertion.Equal("0.25", got.DefaultQuantity.String())
	require.Len(t, got.Indicators, 1)
	assertion.Equal(models.OpLT, got.Indicators[0].BuySignal.Operator)

	got.Status = models.BotStatusPaused
	require.NoError(t, s.UpsertBot(ctx, got))
	again, err := s.GetBot(ctx, "bot-1")
	require.NoError(t, err)
	assertion.Equal(models.BotStatusPaused, again.Status)

	_, err = s.GetBot(ctx, "missing")
	assertion.ErrorIs(err, domainrepo.ErrBotNotFound)
}

func TestAppendEventDedup(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedBot(t, s, "bot-1")
	seedBot(t, s, "bot-2")
	now := time.Now()

	require.NoError(t, s.AppendEvent(ctx, newEvent("e1", "bot-1", "order-7", now)))
	err := s.AppendEvent(ctx, newEvent("e2", "bot-1", "order-7", now))
	assert.ErrorIs(t, err, domainrepo.ErrDuplicate)

	// Same key on another bot is a different signal.
	require.NoError(t, s.AppendEvent(ctx, newEvent("e3", "bot-2", "order-7", now)))
	// Records without a key never collide.
	require.NoError(t, s.AppendEvent(ctx, newEvent("e4", "bot-1", "", now)))
	require.NoError(t, s.AppendEvent(ctx, newEvent("e5", "bot-1", "", now)))

	found, err := s.FindEventByDedupKey(ctx, "bot-1", "order-7")
	require.NoError(t, err)
	assert.Equal(t, "e1", found.ID)

	_, err = s.FindEventByDedupKey(ctx, "bot-1", "order-8")
	assert.ErrorIs(t, err, domainrepo.ErrEventNotFound)
}

func TestEventLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedBot(t, s, "bot-1")
	require.NoError(t, s.AppendEvent(ctx, newEvent("e1", "bot-1", "", time.Now())))

	rec, err := s.MarkProcessing(ctx, "e1")
	require.NoError(t, err)
	assertion := assert.New(t)
	assertion.Equal(models.EventProcessing, rec.Status)
	assertion.Equal(1, rec.Attempts)
	assertion.NotNil(rec.StartedAt)

	rec, err = s.MarkProcessing(ctx, "e1")
	require.NoError(t, err)
	assertion.Equal(2, rec.Attempts)

	outcome := &models.EventOutcome{
		Decision:      &models.Decision{ShouldTrade: true, Action: models.ActionBuy, Mode: models.SignalModeAny},
		TradeIntentID: "ti-1",
		Hints:         map[string]float64{"rsi": 28.5},
	}
	require.NoError(t, s.FinalizeEvent(ctx, "e1", models.Completed("trade intent issued", outcome)))

	err = s.FinalizeEvent(ctx, "e1", models.Failed("late writer", nil, nil))
	assertion.ErrorIs(err, domainrepo.ErrEventFinalized)
	_, err = s.MarkProcessing(ctx, "e1")
	assertion.ErrorIs(err, domainrepo.ErrEventFinalized)

	final, err := s.GetEvent(ctx, "e1")
	require.NoError(t, err)
	assertion.Equal(models.EventCompleted, final.Status)
	assertion.Equal("trade intent issued", final.Reason)
	assertion.NotNil(final.FinishedAt)
	require.NotNil(t, final.Outcome)
	assertion.Equal("ti-1", final.Outcome.TradeIntentID)
	assertion.Equal(28.5, final.Outcome.Hints["rsi"])

	assertion.ErrorIs(s.FinalizeEvent(ctx, "nope", models.Completed("x", nil)), domainrepo.ErrEventNotFound)
	assertion.Error(s.FinalizeEvent(ctx, "e1", models.EventResult{Status: models.EventProcessing}))
}

func TestListEventsAndPending(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedBot(t, s, "bot-1")
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		rec := newEvent(fmt.Sprintf("e%d", i), "bot-1", "", base.Add(time.Duration(i)*time.Minute))
		require.NoError(t, s.AppendEvent(ctx, rec))
	}
	require.NoError(t, s.FinalizeEvent(ctx, "e1", models.Completed("done", nil)))

	assertion := assert.New(t)
	list, err := s.ListEvents(ctx, "bot-1", 3, time.Time{})
	require.NoError(t, err)
	require.Len(t, list, 3)
	assertion.Equal("e4", list[0].ID)
	assertion.Equal("e2", list[2].ID)

	since, err := s.ListEvents(ctx, "bot-1", 50, base.Add(3*time.Minute))
	require.NoError(t, err)
	assertion.Len(since, 2)

	pending, err := s.ListPending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 4)
	assertion.Equal("e0", pending[0].ID)
}

func TestTradeIntents(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedBot(t, s, "bot-1")
	require.NoError(t, s.AppendEvent(ctx, newEvent("e1", "bot-1", "", time.Now())))
	require.NoError(t, s.AppendEvent(ctx, newEvent("e2", "bot-1", "", time.Now())))

	qty := decimal.RequireFromString("1.5")
	in := &models.TradeIntent{
		ID: "ti-1", BotID: "bot-1", EventID: "e1", Symbol: "BTCUSDT", Side: models.ActionBuy,
		Quantity: &qty, Status: models.IntentPending,
	}
	require.NoError(t, s.CreateIntent(ctx, in))

	dup := *in
	dup.ID = "ti-2"
	assert.ErrorIs(t, s.CreateIntent(ctx, &dup), domainrepo.ErrDuplicate)

	require.NoError(t, s.MarkIntentSubmitted(ctx, "ti-1", models.IntentSubmitted, "broker-42"))
	assert.ErrorIs(t, s.MarkIntentSubmitted(ctx, "ti-9", models.IntentSubmitted, "x"), domainrepo.ErrIntentNotFound)

	got, err := s.GetIntentByEventID(ctx, "e1")
	require.NoError(t, err)
	assertion := assert.New(t)
	assertion.Equal("broker-42", got.OrderRef)
	assertion.Equal(models.IntentSubmitted, got.Status)
	assertion.True(got.Quantity.Equal(qty))
	assertion.Nil(got.Price)

	_, err = s.GetIntentByEventID(ctx, "e2")
	assertion.ErrorIs(err, domainrepo.ErrIntentNotFound)

	byEvent, err := s.ListIntentsByEventIDs(ctx, []string{"e1", "e2"})
	require.NoError(t, err)
	assertion.Len(byEvent, 1)
	assertion.Equal("ti-1", byEvent["e1"].ID)

	empty, err := s.ListIntentsByEventIDs(ctx, nil)
	require.NoError(t, err)
	assertion.Empty(empty)
}
