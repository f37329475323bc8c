package usecase

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	domrepo "SignalHook/internal/domain/repository"
	applogger "SignalHook/pkg/logger"
)

// DropPolicy selects which event loses when a bot queue is full.
type DropPolicy string

const (
	DropNewest DropPolicy = "drop_newest"
	DropOldest DropPolicy = "drop_oldest"
)

var ErrDispatcherStopped = errors.New("dispatcher stopped")

// EventHandler processes one event. Calls for the same bot never overlap.
type EventHandler func(ctx context.Context, eventID string) error

// DropHandler is told about every event evicted by the drop policy.
type DropHandler func(ctx context.Context, botID, eventID string)

// Redispatcher re-queues an event that was already accepted once. A full queue
// returns ErrQueueFull and leaves the event to the recovery sweep; the drop
// policy never applies, so a replay cannot fail a queued event.
type Redispatcher interface {
	Redispatch(ctx context.Context, botID, eventID string) error
}

// DispatcherConfig bounds the per-bot queues.
type DispatcherConfig struct {
	QueueSize   int
	DropPolicy  DropPolicy
	IdleTimeout time.Duration
}

// MemoryDispatcher runs one worker goroutine per bot, created on first use and
// stopped after IdleTimeout without work. Bots never wait on each other.
type MemoryDispatcher struct {
	cfg     DispatcherConfig
	handle  EventHandler
	onDrop  DropHandler
	metrics domrepo.Metrics
	l       *applogger.Logger

	mu     sync.Mutex
	actors map[string]*botActor
	closed bool
	queued atomic.Int64
	// depthMu orders gauge updates so the last write sees the latest count.
	depthMu sync.Mutex

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type botActor struct {
	botID string
	queue chan string
}

func NewMemoryDispatcher(cfg DispatcherConfig, handle EventHandler, onDrop DropHandler, metrics domrepo.Metrics, l *applogger.Logger) *MemoryDispatcher {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 64
	}
	if cfg.DropPolicy == "" {
		cfg.DropPolicy = DropNewest
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = 2 * time.Minute
	}
	if l == nil {
		l = applogger.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &MemoryDispatcher{
		cfg:     cfg,
		handle:  handle,
		onDrop:  onDrop,
		metrics: metrics,
		l:       l,
		actors:  make(map[string]*botActor),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Dispatch enqueues eventID on the bot's queue. With drop_newest a full queue
// rejects the event and returns ErrQueueFull; with drop_oldest the head is evicted.
func (d *MemoryDispatcher) Dispatch(ctx context.Context, botID, eventID string) error {
	d.mu.Lock()
	a, err := d.actorLocked(botID)
	if err != nil {
		d.mu.Unlock()
		return err
	}
	if d.offerLocked(a, eventID) {
		return nil
	}

	if d.cfg.DropPolicy == DropOldest {
		var evicted string
		select {
		case evicted = <-a.queue:
		default:
		}
		// Sends only happen under d.mu, so the slot just freed is still free.
		a.queue <- eventID
		if evicted == "" {
			d.queued.Add(1)
		}
		d.mu.Unlock()
		d.recordDepth()
		if evicted != "" {
			d.drop(ctx, botID, evicted)
		}
		return nil
	}

	d.mu.Unlock()
	d.drop(ctx, botID, eventID)
	return domrepo.ErrQueueFull
}

// Redispatch enqueues eventID only when the bot's queue has room.
func (d *MemoryDispatcher) Redispatch(_ context.Context, botID, eventID string) error {
	d.mu.Lock()
	a, err := d.actorLocked(botID)
	if err != nil {
		d.mu.Unlock()
		return err
	}
	if d.offerLocked(a, eventID) {
		return nil
	}
	d.mu.Unlock()
	return domrepo.ErrQueueFull
}

func (d *MemoryDispatcher) actorLocked(botID string) (*botActor, error) {
	if d.closed {
		return nil, ErrDispatcherStopped
	}
	a := d.actors[botID]
	if a == nil {
		a = &botActor{botID: botID, queue: make(chan string, d.cfg.QueueSize)}
		d.actors[botID] = a
		d.wg.Add(1)
		go d.run(a)
	}
	return a, nil
}

// offerLocked tries a non-blocking send. On success it releases d.mu.
func (d *MemoryDispatcher) offerLocked(a *botActor, eventID string) bool {
	select {
	case a.queue <- eventID:
		d.queued.Add(1)
		d.mu.Unlock()
		d.recordDepth()
		return true
	default:
		return false
	}
}

// redispatch prefers the no-drop path when the dispatcher offers one.
func redispatch(ctx context.Context, d domrepo.Dispatcher, botID, eventID string) error {
	if r, ok := d.(Redispatcher); ok {
		return r.Redispatch(ctx, botID, eventID)
	}
	return d.Dispatch(ctx, botID, eventID)
}

func (d *MemoryDispatcher) recordDepth() {
	d.depthMu.Lock()
	d.metrics.RecordQueueDepth(int(d.queued.Load()))
	d.depthMu.Unlock()
}

func (d *MemoryDispatcher) drop(ctx context.Context, botID, eventID string) {
	d.metrics.RecordDrop(string(d.cfg.DropPolicy))
	d.l.Warn("bot queue full, event dropped",
		applogger.String("bot_id", botID),
		applogger.String("event_id", eventID),
		applogger.String("policy", string(d.cfg.DropPolicy)),
		applogger.Int("queue_size", d.cfg.QueueSize),
	)
	if d.onDrop != nil {
		d.onDrop(context.WithoutCancel(ctx), botID, eventID)
	}
}

func (d *MemoryDispatcher) run(a *botActor) {
	defer d.wg.Done()
	idle := time.NewTimer(d.cfg.IdleTimeout)
	defer idle.Stop()

	for {
		select {
		case <-d.ctx.Done():
			return
		case id := <-a.queue:
			d.queued.Add(-1)
			d.recordDepth()
			if err := d.handle(d.ctx, id); err != nil {
				d.l.Error("event processing failed",
					applogger.String("bot_id", a.botID),
					applogger.String("event_id", id),
					applogger.Error(err),
				)
			}
			if !idle.Stop() {
				select {
				case <-idle.C:
				default:
				}
			}
			idle.Reset(d.cfg.IdleTimeout)
		case <-idle.C:
			d.mu.Lock()
			if len(a.queue) == 0 {
				delete(d.actors, a.botID)
				d.mu.Unlock()
				return
			}
			d.mu.Unlock()
			idle.Reset(d.cfg.IdleTimeout)
		}
	}
}

// ActiveBots returns the number of live workers.
func (d *MemoryDispatcher) ActiveBots() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.actors)
}

// Stop cancels the workers and waits for the in-flight events. Queued events
// stay RECEIVED in the ledger and are picked up by the next recovery sweep.
func (d *MemoryDispatcher) Stop(ctx context.Context) error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
	d.cancel()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

var (
	_ domrepo.Dispatcher = (*MemoryDispatcher)(nil)
	_ Redispatcher       = (*MemoryDispatcher)(nil)
)
