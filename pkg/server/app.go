package server

import (
	"context"
	"database/sql"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"SignalHook/internal/domain/repository"
	"SignalHook/internal/service/ratelimit"
	"SignalHook/internal/usecase"
	"SignalHook/pkg/cache"
	pkgch "SignalHook/pkg/clickhouse"
	"SignalHook/pkg/config"
	xhttp "SignalHook/pkg/http"
	pkgkafka "SignalHook/pkg/kafka"
	applogger "SignalHook/pkg/logger"
	"SignalHook/pkg/tracing"
)

const (
	limiterSweepEvery = time.Minute
	limiterMaxIdle    = 10 * time.Minute
)

// Deps groups everything the application owns. Nil optional clients are skipped.
type Deps struct {
	Config     *config.Config
	Logger     *applogger.Logger
	HTTP       *xhttp.Server
	Processor  *usecase.SignalProcessor
	Dispatcher repository.Dispatcher
	Consumer   *pkgkafka.Consumer
	Hub        *usecase.EventHub
	Seeder     *usecase.Seeder
	Limiter    *ratelimit.Limiter
	Producer   *pkgkafka.Producer
	DB         *sql.DB
	Cache      cache.Service
	ClickHouse *pkgch.Client
	Tracer     *tracing.Tracer
}

// App encapsulates the entire application lifecycle.
type App struct {
	Deps
}

// stopper is implemented by dispatchers that own worker goroutines.
type stopper interface {
	Stop(ctx context.Context) error
}

// New creates a new App instance with all dependencies.
func New(deps Deps) *App {
	if deps.Logger == nil {
		deps.Logger = applogger.NewNop()
	}
	return &App{Deps: deps}
}

// Run starts the application and blocks until interrupted.
func (a *App) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := a.Start(ctx); err != nil {
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	a.Logger.Info("shutdown signal received")
	cancel()
	return a.Shutdown(context.Background())
}

// Start seeds bots, resumes unfinished events and begins serving.
func (a *App) Start(ctx context.Context) error {
	if path := a.Config.Seed.BotsFile; path != "" && a.Seeder != nil {
		n, err := a.Seeder.LoadFile(ctx, path)
		if err != nil {
			a.Logger.Error("seed bots failed", applogger.String("file", path), applogger.Error(err))
			return err
		}
		a.Logger.Info("bots seeded", applogger.String("file", path), applogger.Int("count", n))
	}

	if a.Consumer != nil {
		if err := a.Consumer.Start(); err != nil {
			a.Logger.Error("kafka consumer start error", applogger.Error(err))
			return err
		}
		a.Logger.Info("kafka consumer started", applogger.String("topic", a.Config.Kafka.Topics.Dispatch))
	}

	if a.Processor != nil && a.Dispatcher != nil {
		n, err := a.Processor.RecoverPending(ctx, a.Dispatcher)
		if err != nil {
			a.Logger.Warn("recover pending events", applogger.Error(err))
		} else if n > 0 {
			a.Logger.Info("pending events redispatched", applogger.Int("count", n))
		}
	}

	if err := a.HTTP.Start(); err != nil {
		a.Logger.Error("http server start error", applogger.Error(err))
		return err
	}

	if a.Limiter != nil {
		go a.sweepLimiter(ctx)
	}
	return nil
}

func (a *App) sweepLimiter(ctx context.Context) {
	ticker := time.NewTicker(limiterSweepEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := a.Limiter.Sweep(limiterMaxIdle); n > 0 {
				a.Logger.Debug("rate limit buckets swept", applogger.Int("count", n))
			}
		}
	}
}

// Shutdown stops intake first, then drains workers, then releases clients.
func (a *App) Shutdown(ctx context.Context) error {
	a.Logger.Info("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(ctx, a.HTTP.ShutdownTimeout())
	defer cancel()

	if err := a.HTTP.Stop(shutdownCtx); err != nil {
		a.Logger.Error("http shutdown error", applogger.Error(err))
	}

	if s, ok := a.Dispatcher.(stopper); ok {
		if err := s.Stop(shutdownCtx); err != nil {
			a.Logger.Warn("dispatcher stop error", applogger.Error(err))
		}
	}

	if a.Consumer != nil {
		if err := a.Consumer.Stop(shutdownCtx); err != nil {
			a.Logger.Warn("kafka consumer stop error", applogger.Error(err))
		}
	}

	if a.Hub != nil {
		a.Hub.Close()
	}

	if a.Tracer != nil {
		if err := a.Tracer.Shutdown(shutdownCtx); err != nil {
			a.Logger.Warn("tracer shutdown error", applogger.Error(err))
		}
	}

	a.closeClients()

	a.Logger.Info("shutdown complete")
	a.Logger.RemoveCollector()

	// the log collector may still publish on its way out
	if a.Producer != nil {
		if err := a.Producer.Close(); err != nil {
			a.Logger.Warn("kafka producer close error", applogger.Error(err))
		}
	}
	return nil
}

func (a *App) closeClients() {
	if c, ok := a.Cache.(io.Closer); ok {
		if err := c.Close(); err != nil {
			a.Logger.Warn("cache close error", applogger.Error(err))
		}
	}
	if a.ClickHouse != nil {
		if err := a.ClickHouse.Close(); err != nil {
			a.Logger.Warn("clickhouse close error", applogger.Error(err))
		}
	}
	if a.DB != nil {
		if err := a.DB.Close(); err != nil {
			a.Logger.Warn("database close error", applogger.Error(err))
		}
	}
}
