package usecase

import (
	"context"
	"errors"
	"sync"
	"time"

	"SignalHook/internal/domain/models"
	domrepo "SignalHook/internal/domain/repository"
	"SignalHook/pkg/cache"
	"SignalHook/pkg/metrics"
)

// memStore is an in-memory BotStore, EventStore and TradeIntentStore.
type memStore struct {
	mu      sync.Mutex
	bots    map[string]models.Bot
	events  map[string]models.EventRecord
	intents map[string]models.TradeIntent // by event id
	order   []string

	botReads int
}

func newMemStore() *memStore {
	return &memStore{
		bots:    make(map[string]models.Bot),
		events:  make(map[string]models.EventRecord),
		intents: make(map[string]models.TradeIntent),
	}
}

func (s *memStore) GetBot(_ context.Context, id string) (*models.Bot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.botReads++
	b, ok := s.bots[id]
	if !ok {
		return nil, domrepo.ErrBotNotFound
	}
	return &b, nil
}

func (s *memStore) UpsertBot(_ context.Context, b *models.Bot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bots[b.ID] = *b
	return nil
}

func (s *memStore) AppendEvent(_ context.Context, rec *models.EventRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec.DedupKey != "" {
		for _, e := range s.events {
			if e.BotID == rec.BotID && e.DedupKey == rec.DedupKey {
				return domrepo.ErrDuplicate
			}
		}
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	rec.UpdatedAt = rec.CreatedAt
	s.events[rec.ID] = *rec
	s.order = append(s.order, rec.ID)
	return nil
}

func (s *memStore) GetEvent(_ context.Context, id string) (*models.EventRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.events[id]
	if !ok {
		return nil, domrepo.ErrEventNotFound
	}
	return &e, nil
}

func (s *memStore) FindEventByDedupKey(_ context.Context, botID, key string) (*models.EventRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.events {
		if e.BotID == botID && e.DedupKey == key {
			return &e, nil
		}
	}
	return nil, domrepo.ErrEventNotFound
}

func (s *memStore) MarkProcessing(_ context.Context, id string) (*models.EventRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.events[id]
	if !ok {
		return nil, domrepo.ErrEventNotFound
	}
	if e.Status.Terminal() {
		return nil, domrepo.ErrEventFinalized
	}
	now := time.Now()
	e.Status, e.UpdatedAt = models.EventProcessing, now
	e.Attempts++
	if e.StartedAt == nil {
		e.StartedAt = &now
	}
	s.events[id] = e
	return &e, nil
}

func (s *memStore) FinalizeEvent(_ context.Context, id string, r models.EventResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.events[id]
	if !ok {
		return domrepo.ErrEventNotFound
	}
	if e.Status.Terminal() {
		return domrepo.ErrEventFinalized
	}
	now := time.Now()
	e.Status, e.Outcome, e.Reason, e.Error, e.FinishedAt = r.Status, r.Outcome, r.Reason, r.Error, &now
	e.UpdatedAt = now
	s.events[id] = e
	return nil
}

func (s *memStore) ListEvents(_ context.Context, botID string, limit int, since time.Time) ([]*models.EventRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.EventRecord
	for i := len(s.order) - 1; i >= 0 && len(out) < limit; i-- {
		e := s.events[s.order[i]]
		if e.BotID == botID && !e.CreatedAt.Before(since) {
			out = append(out, &e)
		}
	}
	return out, nil
}

func (s *memStore) ListPending(_ context.Context, limit int) ([]*models.EventRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.EventRecord
	for _, id := range s.order {
		e := s.events[id]
		if !e.Status.Terminal() && len(out) < limit {
			out = append(out, &e)
		}
	}
	return out, nil
}

func (s *memStore) CreateIntent(_ context.Context, in *models.TradeIntent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.intents[in.EventID]; ok {
		return domrepo.ErrDuplicate
	}
	s.intents[in.EventID] = *in
	return nil
}

func (s *memStore) GetIntentByEventID(_ context.Context, eventID string) (*models.TradeIntent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	in, ok := s.intents[eventID]
	if !ok {
		return nil, domrepo.ErrIntentNotFound
	}
	return &in, nil
}

func (s *memStore) MarkIntentSubmitted(_ context.Context, id string, status models.IntentStatus, ref string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, in := range s.intents {
		if in.ID == id {
			in.Status, in.OrderRef = status, ref
			s.intents[k] = in
			return nil
		}
	}
	return domrepo.ErrIntentNotFound
}

func (s *memStore) ListIntentsByEventIDs(_ context.Context, ids []string) (map[string]*models.TradeIntent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]*models.TradeIntent)
	for _, id := range ids {
		if in, ok := s.intents[id]; ok {
			cp := in
			out[id] = &cp
		}
	}
	return out, nil
}

func (s *memStore) event(id string) models.EventRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.events[id]
}

func (s *memStore) eventCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

func (s *memStore) intentCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.intents)
}

// fakeMarket returns a fixed snapshot or an error.
type fakeMarket struct {
	mu    sync.Mutex
	snap  *models.MarketSnapshot
	err   error
	calls int
}

func (m *fakeMarket) GetSnapshot(_ context.Context, _ string, _ domrepo.Timeframe, _ int) (*models.MarketSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	return m.snap, nil
}

// fakeExecutor fails the first failN calls.
type fakeExecutor struct {
	mu     sync.Mutex
	failN  int
	placed []string
}

func (e *fakeExecutor) PlaceOrder(_ context.Context, in *models.TradeIntent) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.failN > 0 {
		e.failN--
		return "", errors.New("broker unavailable")
	}
	e.placed = append(e.placed, in.ID)
	return "ref-" + in.ID, nil
}

func (e *fakeExecutor) count() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.placed)
}

// syncDispatcher processes inline, standing in for a queue in gateway tests.
type syncDispatcher struct {
	mu    sync.Mutex
	calls []string
	err   error
}

func (d *syncDispatcher) Dispatch(_ context.Context, _ string, eventID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, eventID)
	return d.err
}

// recordingNotifier keeps every notified status per event.
type recordingNotifier struct {
	mu       sync.Mutex
	statuses map[string][]models.EventStatus
}

func (n *recordingNotifier) Notify(rec *models.EventRecord) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.statuses == nil {
		n.statuses = make(map[string][]models.EventStatus)
	}
	n.statuses[rec.ID] = append(n.statuses[rec.ID], rec.Status)
}

// risingSnapshot builds n closes increasing by one, so RSI is 100 and price is above its MAs.
func risingSnapshot(n int) *models.MarketSnapshot {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	s := &models.MarketSnapshot{Symbol: "BTCUSDT", Timeframe: "1h"}
	for i := 0; i < n; i++ {
		c := 100 + float64(i)
		s.Candles = append(s.Candles, models.Candle{
			Bucket: base.Add(time.Duration(i) * time.Hour), Symbol: "BTCUSDT",
			Open: c - 0.5, High: c + 1, Low: c - 1, Close: c, Volume: 10,
		})
	}
	return s
}

func newTestRegistry(store domrepo.BotStore) *BotRegistry {
	return NewBotRegistry(store, cache.NewMemoryCache(), time.Minute, nil)
}

var nopMetrics = metrics.Nop{}
