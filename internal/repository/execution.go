package repository

import (
	"context"
	"fmt"
	"time"

	"SignalHook/internal/domain/models"
	domrepo "SignalHook/internal/domain/repository"
	xhttp "SignalHook/pkg/http"
	applogger "SignalHook/pkg/logger"

	"github.com/shopspring/decimal"
)

// orderMessage is the wire form of a trade intent handed to execution.
type orderMessage struct {
	ClientOrderID string           `json:"client_order_id"`
	BotID         string           `json:"bot_id"`
	EventID       string           `json:"event_id"`
	Symbol        string           `json:"symbol"`
	Side          string           `json:"side"`
	Quantity      *decimal.Decimal `json:"quantity,omitempty"`
	Price         *decimal.Decimal `json:"price,omitempty"`
	StopLoss      *decimal.Decimal `json:"stop_loss,omitempty"`
	TakeProfit    *decimal.Decimal `json:"take_profit,omitempty"`
	Test          bool             `json:"test"`
	CreatedAt     int64            `json:"created_at"`
}

func newOrderMessage(in *models.TradeIntent) orderMessage {
	return orderMessage{
		ClientOrderID: in.ID,
		BotID:         in.BotID,
		EventID:       in.EventID,
		Symbol:        in.Symbol,
		Side:          string(in.Side),
		Quantity:      in.Quantity,
		Price:         in.Price,
		StopLoss:      in.StopLoss,
		TakeProfit:    in.TakeProfit,
		Test:          in.IsTest,
		CreatedAt:     in.CreatedAt.UnixMilli(),
	}
}

type intentPublisher interface {
	PublishWithHeaders(ctx context.Context, topic string, key []byte, value interface{}, headers map[string]string) error
}

// KafkaExecutor publishes intents to an order topic keyed by bot id.
// The intent id is the reference: the downstream executor dedups on it.
type KafkaExecutor struct {
	producer intentPublisher
	topic    string
}

func NewKafkaExecutor(producer intentPublisher, topic string) *KafkaExecutor {
	return &KafkaExecutor{producer: producer, topic: topic}
}

func (e *KafkaExecutor) PlaceOrder(ctx context.Context, in *models.TradeIntent) (string, error) {
	headers := map[string]string{"client_order_id": in.ID, "event_id": in.EventID}
	if err := e.producer.PublishWithHeaders(ctx, e.topic, []byte(in.BotID), newOrderMessage(in), headers); err != nil {
		return "", fmt.Errorf("publish intent %s: %w", in.ID, err)
	}
	return "kafka:" + in.ID, nil
}

// HTTPExecutor posts intents to a broker gateway that answers {"order_ref": "..."}.
type HTTPExecutor struct {
	url    string
	client *xhttp.Client
}

type orderResponse struct {
	OrderRef string `json:"order_ref"`
}

func NewHTTPExecutor(url, apiKey string, timeout time.Duration) *HTTPExecutor {
	opts := []xhttp.ClientOption{xhttp.WithTimeout(timeout)}
	if apiKey != "" {
		opts = append(opts, xhttp.WithDefaultHeader("X-API-Key", apiKey))
	}
	return &HTTPExecutor{url: url, client: xhttp.NewClient(opts...)}
}

func (e *HTTPExecutor) PlaceOrder(ctx context.Context, in *models.TradeIntent) (string, error) {
	var resp orderResponse
	err := e.client.SendAndParse(ctx, &xhttp.RequestOptions{
		Method:  xhttp.MethodPost,
		URL:     e.url,
		Headers: map[string]string{"Idempotency-Key": in.ID},
		Body:    newOrderMessage(in),
	}, &resp)
	if err != nil {
		return "", fmt.Errorf("place order %s: %w", in.ID, err)
	}
	if resp.OrderRef == "" {
		return "", fmt.Errorf("place order %s: empty order reference", in.ID)
	}
	return resp.OrderRef, nil
}

// LogExecutor only logs intents. Used for local runs without a broker.
type LogExecutor struct {
	l *applogger.Logger
}

func NewLogExecutor(l *applogger.Logger) *LogExecutor {
	if l == nil {
		l = applogger.NewNop()
	}
	return &LogExecutor{l: l}
}

func (e *LogExecutor) PlaceOrder(_ context.Context, in *models.TradeIntent) (string, error) {
	fields := []applogger.Field{
		applogger.String("intent_id", in.ID),
		applogger.String("bot_id", in.BotID),
		applogger.String("symbol", in.Symbol),
		applogger.String("side", string(in.Side)),
		applogger.Bool("test", in.IsTest),
	}
	if in.Quantity != nil {
		fields = append(fields, applogger.String("quantity", in.Quantity.String()))
	}
	e.l.Info("trade intent placed", fields...)
	return "log:" + in.ID, nil
}

var (
	_ domrepo.Executor = (*KafkaExecutor)(nil)
	_ domrepo.Executor = (*HTTPExecutor)(nil)
	_ domrepo.Executor = (*LogExecutor)(nil)
)
