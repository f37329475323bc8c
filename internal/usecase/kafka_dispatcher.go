package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	domrepo "SignalHook/internal/domain/repository"
	pkgkafka "SignalHook/pkg/kafka"
	applogger "SignalHook/pkg/logger"
	"SignalHook/pkg/tracing"

	"github.com/segmentio/kafka-go"
)

// dispatchMessage is the record published per accepted event.
type dispatchMessage struct {
	EventID string `json:"event_id"`
	BotID   string `json:"bot_id"`
}

type dispatchPublisher interface {
	PublishWithHeaders(ctx context.Context, topic string, key []byte, value interface{}, headers map[string]string) error
}

// KafkaDispatcher routes events through a topic keyed by bot id, so one
// partition, and therefore one consumer worker, owns each bot.
type KafkaDispatcher struct {
	producer dispatchPublisher
	topic    string
}

func NewKafkaDispatcher(producer dispatchPublisher, topic string) *KafkaDispatcher {
	return &KafkaDispatcher{producer: producer, topic: topic}
}

func (d *KafkaDispatcher) Dispatch(ctx context.Context, botID, eventID string) error {
	var headers map[string]string
	if id := tracing.TraceID(ctx); id != "" {
		headers = map[string]string{"trace_id": id}
	}
	msg := dispatchMessage{EventID: eventID, BotID: botID}
	if err := d.producer.PublishWithHeaders(ctx, d.topic, []byte(botID), msg, headers); err != nil {
		return fmt.Errorf("publish dispatch %s: %w", eventID, err)
	}
	return nil
}

// DispatchHandler consumes the dispatch topic and runs the processor.
type DispatchHandler struct {
	topic   string
	process EventHandler
	metrics domrepo.Metrics
}

func NewDispatchHandler(topic string, process EventHandler, metrics domrepo.Metrics) *DispatchHandler {
	return &DispatchHandler{topic: topic, process: process, metrics: metrics}
}

func (h *DispatchHandler) Topic() string { return h.topic }

func (h *DispatchHandler) Handle(ctx context.Context, b []byte) error {
	var m dispatchMessage
	if err := json.Unmarshal(b, &m); err != nil {
		h.metrics.RecordError("consumer_unmarshal")
		return &pkgkafka.HookError{Code: "ERR_DECODE", Err: err}
	}
	if m.EventID == "" {
		h.metrics.RecordError("consumer_unmarshal")
		return &pkgkafka.HookError{Code: "ERR_DECODE", Err: fmt.Errorf("dispatch message without event_id")}
	}
	return h.process(ctx, m.EventID)
}

// NewDispatchHooks threads the publisher's trace id into the handler context
// and logs slow or failed deliveries.
func NewDispatchHooks(l *applogger.Logger, slow time.Duration) *pkgkafka.HookChain {
	if l == nil {
		l = applogger.NewNop()
	}
	trace := pkgkafka.HookFuncs{
		Before: func(ctx context.Context, _ string, km kafka.Message, data []byte) (context.Context, kafka.Message, []byte, error) {
			ctx = pkgkafka.WithTraceID(ctx, pkgkafka.ExtractTraceID(km))
			return pkgkafka.WithStartTime(ctx, time.Now()), km, data, nil
		},
	}
	logging := pkgkafka.HookFuncs{
		After: func(ctx context.Context, topic string, km kafka.Message, _ []byte, err error) {
			started, ok := ctx.Value(pkgkafka.CtxStartTime).(time.Time)
			if !ok || err != nil {
				return
			}
			if took := time.Since(started); slow > 0 && took > slow {
				traceID, _ := ctx.Value(pkgkafka.CtxTraceID).(string)
				l.Warn("slow dispatch handling",
					applogger.String("topic", topic),
					applogger.Int("partition", km.Partition),
					applogger.String("key", string(km.Key)),
					applogger.String("trace_id", traceID),
					applogger.Duration("took", took),
				)
			}
		},
		Err: func(ctx context.Context, topic string, km kafka.Message, _ []byte, err error) {
			l.Warn("dispatch handling error",
				applogger.String("topic", topic),
				applogger.Int("partition", km.Partition),
				applogger.Int64("offset", km.Offset),
				applogger.Error(err),
			)
		},
	}
	return pkgkafka.NewHookChain(trace, logging)
}

var (
	_ domrepo.Dispatcher      = (*KafkaDispatcher)(nil)
	_ pkgkafka.MessageHandler = (*DispatchHandler)(nil)
)
