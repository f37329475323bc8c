package usecase

import (
	"context"
	"errors"
	"fmt"

	"SignalHook/internal/domain/models"
	domrepo "SignalHook/internal/domain/repository"
	applogger "SignalHook/pkg/logger"

	"github.com/google/uuid"
)

// TradeIntentIssuer creates at most one intent per event and hands it to the executor.
// Every call for the same event converges on the same intent id.
type TradeIntentIssuer struct {
	intents    domrepo.TradeIntentStore
	executor   domrepo.Executor
	testOrders bool
	l          *applogger.Logger
	newID      func() string
}

// NewTradeIntentIssuer builds an issuer. With testOrders false, test events are
// stored as DRY_RUN and never reach the executor.
func NewTradeIntentIssuer(intents domrepo.TradeIntentStore, executor domrepo.Executor, testOrders bool, l *applogger.Logger) *TradeIntentIssuer {
	if l == nil {
		l = applogger.NewNop()
	}
	return &TradeIntentIssuer{intents: intents, executor: executor, testOrders: testOrders, l: l, newID: uuid.NewString}
}

func (i *TradeIntentIssuer) Issue(ctx context.Context, rec *models.EventRecord, bot *models.Bot, sig *models.InboundSignal) (*models.TradeIntent, error) {
	existing, err := i.intents.GetIntentByEventID(ctx, rec.ID)
	switch {
	case err == nil:
		return i.resume(ctx, existing)
	case !errors.Is(err, domrepo.ErrIntentNotFound):
		return nil, fmt.Errorf("load intent: %w", err)
	}

	in := &models.TradeIntent{
		ID:         i.newID(),
		BotID:      bot.ID,
		EventID:    rec.ID,
		Symbol:     bot.Symbol,
		Side:       sig.SignalAction(),
		Quantity:   sig.Quantity,
		Price:      sig.Price,
		StopLoss:   sig.StopLoss,
		TakeProfit: sig.TakeProfit,
		Status:     models.IntentPending,
		IsTest:     rec.IsTest,
	}
	if in.Quantity == nil {
		in.Quantity = bot.DefaultQuantity
	}

	if err := i.intents.CreateIntent(ctx, in); err != nil {
		if !errors.Is(err, domrepo.ErrDuplicate) {
			return nil, fmt.Errorf("create intent: %w", err)
		}
		winner, err := i.intents.GetIntentByEventID(ctx, rec.ID)
		if err != nil {
			return nil, fmt.Errorf("reload intent: %w", err)
		}
		return i.resume(ctx, winner)
	}
	return i.submit(ctx, in)
}

// resume returns a submitted intent untouched and re-submits one that never got a reference.
func (i *TradeIntentIssuer) resume(ctx context.Context, in *models.TradeIntent) (*models.TradeIntent, error) {
	if in.OrderRef != "" {
		return in, nil
	}
	i.l.Info("re-submitting trade intent", applogger.String("intent_id", in.ID), applogger.String("event_id", in.EventID))
	return i.submit(ctx, in)
}

func (i *TradeIntentIssuer) submit(ctx context.Context, in *models.TradeIntent) (*models.TradeIntent, error) {
	status, ref := models.IntentDryRun, models.DryRunRef
	if !in.IsTest || i.testOrders {
		var err error
		ref, err = i.executor.PlaceOrder(ctx, in)
		if err != nil {
			return nil, fmt.Errorf("place order: %w", err)
		}
		status = models.IntentSubmitted
	}
	if err := i.intents.MarkIntentSubmitted(ctx, in.ID, status, ref); err != nil {
		return nil, fmt.Errorf("mark intent %s: %w", in.ID, err)
	}
	in.Status, in.OrderRef = status, ref
	return in, nil
}
