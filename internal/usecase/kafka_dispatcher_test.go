package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	pkgkafka "SignalHook/pkg/kafka"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capturedPublish struct {
	topic   string
	key     []byte
	value   interface{}
	headers map[string]string
}

type fakePublisher struct {
	sent []capturedPublish
	err  error
}

func (p *fakePublisher) PublishWithHeaders(_ context.Context, topic string, key []byte, value interface{}, headers map[string]string) error {
	p.sent = append(p.sent, capturedPublish{topic, key, value, headers})
	return p.err
}

func TestKafkaDispatcherKeysByBot(t *testing.T) {
	pub := &fakePublisher{}
	d := NewKafkaDispatcher(pub, "signalhook.dispatch")

	require.NoError(t, d.Dispatch(context.Background(), "bot-1", "e1"))
	require.Len(t, pub.sent, 1)
	assert.Equal(t, "signalhook.dispatch", pub.sent[0].topic)
	assert.Equal(t, []byte("bot-1"), pub.sent[0].key)
	assert.Equal(t, dispatchMessage{EventID: "e1", BotID: "bot-1"}, pub.sent[0].value)
	assert.Nil(t, pub.sent[0].headers)

	pub.err = errors.New("leader not available")
	assert.ErrorContains(t, d.Dispatch(context.Background(), "bot-1", "e2"), "publish dispatch e2")
}

func TestDispatchHandler(t *testing.T) {
	var got []string
	h := NewDispatchHandler("signalhook.dispatch", func(_ context.Context, id string) error {
		got = append(got, id)
		return nil
	}, nopMetrics)
	assert.Equal(t, "signalhook.dispatch", h.Topic())

	b, _ := json.Marshal(dispatchMessage{EventID: "e1", BotID: "bot-1"})
	require.NoError(t, h.Handle(context.Background(), b))
	assert.Equal(t, []string{"e1"}, got)

	var herr *pkgkafka.HookError
	require.ErrorAs(t, h.Handle(context.Background(), []byte("{")), &herr)
	assert.Equal(t, "ERR_DECODE", herr.Code)
	require.ErrorAs(t, h.Handle(context.Background(), []byte(`{"bot_id":"bot-1"}`)), &herr)
}

func TestDispatchHooksCarryTraceID(t *testing.T) {
	chain := NewDispatchHooks(nil, time.Nanosecond)
	km := kafka.Message{Key: []byte("bot-1"), Headers: []kafka.Header{{Key: "trace_id", Value: []byte("abc123")}}}

	ctx, _, _, err := chain.BeforeHandle(context.Background(), "t", km, nil)
	require.NoError(t, err)
	assert.Equal(t, "abc123", ctx.Value(pkgkafka.CtxTraceID))
	_, ok := ctx.Value(pkgkafka.CtxStartTime).(time.Time)
	assert.True(t, ok)

	chain.AfterHandle(ctx, "t", km, nil, nil)
	chain.OnError(ctx, "t", km, nil, errors.New("boom"))
}
