package usecase

import (
	"sync"

	"SignalHook/internal/domain/models"
	streammetrics "SignalHook/internal/service/metrics"
	applogger "SignalHook/pkg/logger"
)

const subscriberBuffer = 32

// EventHub fans ledger updates out to stream subscribers of the same bot.
// Slow subscribers lose frames instead of blocking the pipeline.
type EventHub struct {
	mu     sync.RWMutex
	subs   map[string]map[*subscription]struct{}
	l      *applogger.Logger
	closed bool
}

type subscription struct {
	botID string
	ch    chan *models.EventRecord
	once  sync.Once
}

func NewEventHub(l *applogger.Logger) *EventHub {
	if l == nil {
		l = applogger.NewNop()
	}
	return &EventHub{subs: make(map[string]map[*subscription]struct{}), l: l}
}

// Subscribe returns a channel of updates for botID and a cancel func that closes it.
func (h *EventHub) Subscribe(botID string) (<-chan *models.EventRecord, func()) {
	s := &subscription{botID: botID, ch: make(chan *models.EventRecord, subscriberBuffer)}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		close(s.ch)
		return s.ch, func() {}
	}
	if h.subs[botID] == nil {
		h.subs[botID] = make(map[*subscription]struct{})
	}
	h.subs[botID][s] = struct{}{}
	h.mu.Unlock()
	streammetrics.StreamSubscribers.Inc()

	return s.ch, func() { h.unsubscribe(s) }
}

func (h *EventHub) unsubscribe(s *subscription) {
	h.mu.Lock()
	set := h.subs[s.botID]
	_, ok := set[s]
	if ok {
		delete(set, s)
		if len(set) == 0 {
			delete(h.subs, s.botID)
		}
	}
	h.mu.Unlock()
	if ok {
		streammetrics.StreamSubscribers.Dec()
		s.once.Do(func() { close(s.ch) })
	}
}

// Notify implements EventNotifier. The record is copied so subscribers never share it.
func (h *EventHub) Notify(rec *models.EventRecord) {
	if rec == nil {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for s := range h.subs[rec.BotID] {
		cp := *rec
		select {
		case s.ch <- &cp:
		default:
			streammetrics.StreamDropped.Inc()
			h.l.Debug("stream subscriber lagging, frame dropped",
				applogger.String("bot_id", rec.BotID), applogger.String("event_id", rec.ID))
		}
	}
}

// Close ends every subscription.
func (h *EventHub) Close() {
	h.mu.Lock()
	h.closed = true
	subs := h.subs
	h.subs = make(map[string]map[*subscription]struct{})
	h.mu.Unlock()
	for _, set := range subs {
		for s := range set {
			streammetrics.StreamSubscribers.Dec()
			s.once.Do(func() { close(s.ch) })
		}
	}
}
