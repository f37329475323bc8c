package usecase

import (
	"context"
	"errors"
	"fmt"
	"os"

	"SignalHook/internal/domain/models"
	domrepo "SignalHook/internal/domain/repository"
	"SignalHook/internal/services/indicators"
	applogger "SignalHook/pkg/logger"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

type seedFile struct {
	Bots []seedBot `yaml:"bots"`
}

type seedBot struct {
	ID              string          `yaml:"id"`
	OwnerID         string          `yaml:"owner_id"`
	Secret          string          `yaml:"secret"`
	Name            string          `yaml:"name"`
	Symbol          string          `yaml:"symbol"`
	Timeframe       string          `yaml:"timeframe"`
	SignalMode      string          `yaml:"signal_mode"`
	Status          string          `yaml:"status"`
	DefaultQuantity string          `yaml:"default_quantity"`
	Indicators      []seedIndicator `yaml:"indicators"`
}

type seedIndicator struct {
	ID         string                 `yaml:"id"`
	Type       string                 `yaml:"type"`
	Name       string                 `yaml:"name"`
	Params     map[string]interface{} `yaml:"params"`
	Weight     *float64               `yaml:"weight"`
	Enabled    *bool                  `yaml:"enabled"`
	BuySignal  *models.SignalSpec     `yaml:"buy_signal"`
	SellSignal *models.SignalSpec     `yaml:"sell_signal"`
}

// ParseSeed decodes a bots file. Omitted weight means 1.0, omitted enabled means true,
// omitted status means ACTIVE and omitted mode means ALL.
func ParseSeed(b []byte) ([]*models.Bot, error) {
	var f seedFile
	if err := yaml.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("parse seed: %w", err)
	}

	bots := make([]*models.Bot, 0, len(f.Bots))
	for i, sb := range f.Bots {
		bot, err := sb.toBot()
		if err != nil {
			return nil, fmt.Errorf("seed bot #%d (%s): %w", i+1, sb.ID, err)
		}
		bots = append(bots, bot)
	}
	return bots, nil
}

func (sb seedBot) toBot() (*models.Bot, error) {
	if sb.ID == "" || sb.OwnerID == "" || sb.Secret == "" || sb.Symbol == "" {
		return nil, errors.New("id, owner_id, secret and symbol are required")
	}
	bot := &models.Bot{
		ID:         sb.ID,
		OwnerID:    sb.OwnerID,
		Secret:     sb.Secret,
		Name:       sb.Name,
		Symbol:     sb.Symbol,
		Timeframe:  string(domrepo.NormalizeTimeframe(sb.Timeframe)),
		SignalMode: models.SignalMode(sb.SignalMode),
		Status:     models.BotStatus(sb.Status),
	}
	if bot.SignalMode == "" {
		bot.SignalMode = models.SignalModeAll
	}
	if bot.Status == "" {
		bot.Status = models.BotStatusActive
	}
	if !bot.SignalMode.IsValid() {
		return nil, fmt.Errorf("unknown signal_mode %q", sb.SignalMode)
	}
	if !bot.Status.IsValid() {
		return nil, fmt.Errorf("unknown status %q", sb.Status)
	}
	if sb.DefaultQuantity != "" {
		q, err := decimal.NewFromString(sb.DefaultQuantity)
		if err != nil || !q.IsPositive() {
			return nil, fmt.Errorf("default_quantity must be a positive decimal, got %q", sb.DefaultQuantity)
		}
		bot.DefaultQuantity = &q
	}

	for _, si := range sb.Indicators {
		ic := models.IndicatorConfig{
			ID:         si.ID,
			Type:       models.IndicatorType(si.Type),
			Name:       si.Name,
			Params:     si.Params,
			Weight:     1.0,
			Enabled:    true,
			BuySignal:  si.BuySignal,
			SellSignal: si.SellSignal,
		}
		if si.Weight != nil {
			ic.Weight = *si.Weight
		}
		if si.Enabled != nil {
			ic.Enabled = *si.Enabled
		}
		if err := indicators.ValidateConfig(ic); err != nil {
			return nil, err
		}
		bot.Indicators = append(bot.Indicators, ic)
	}
	return bot, nil
}

// Seeder upserts bots from a file and drops their cached copies.
type Seeder struct {
	store    domrepo.BotStore
	registry *BotRegistry
	l        *applogger.Logger
}

func NewSeeder(store domrepo.BotStore, registry *BotRegistry, l *applogger.Logger) *Seeder {
	if l == nil {
		l = applogger.NewNop()
	}
	return &Seeder{store: store, registry: registry, l: l}
}

// LoadFile seeds from path. An empty path is a no-op.
func (s *Seeder) LoadFile(ctx context.Context, path string) (int, error) {
	if path == "" {
		return 0, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read seed file: %w", err)
	}
	bots, err := ParseSeed(b)
	if err != nil {
		return 0, err
	}
	return s.Apply(ctx, bots)
}

func (s *Seeder) Apply(ctx context.Context, bots []*models.Bot) (int, error) {
	for _, b := range bots {
		if err := s.store.UpsertBot(ctx, b); err != nil {
			return 0, fmt.Errorf("seed bot %s: %w", b.ID, err)
		}
		if err := s.registry.Invalidate(ctx, b.ID); err != nil {
			s.l.Warn("seed cache invalidation failed", applogger.String("bot_id", b.ID), applogger.Error(err))
		}
	}
	s.l.Info("bots seeded", applogger.Int("count", len(bots)))
	return len(bots), nil
}
