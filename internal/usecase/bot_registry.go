package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"SignalHook/internal/domain/models"
	domrepo "SignalHook/internal/domain/repository"
	"SignalHook/pkg/cache"
	applogger "SignalHook/pkg/logger"
)

const botCachePrefix = "bot"

// cachedBot carries the secret, which Bot hides from JSON.
type cachedBot struct {
	Bot    *models.Bot `json:"bot"`
	Secret string      `json:"secret"`
}

// BotRegistry is a read-through cache in front of the BotStore.
type BotRegistry struct {
	store domrepo.BotStore
	cache cache.Service
	ttl   time.Duration
	l     *applogger.Logger
}

func NewBotRegistry(store domrepo.BotStore, c cache.Service, ttl time.Duration, l *applogger.Logger) *BotRegistry {
	if l == nil {
		l = applogger.NewNop()
	}
	return &BotRegistry{store: store, cache: c, ttl: ttl, l: l}
}

// Lookup returns the bot or ErrBotNotFound. Cache failures fall back to the store.
func (r *BotRegistry) Lookup(ctx context.Context, botID string) (*models.Bot, error) {
	key := cache.GenerateKey(botCachePrefix, botID)
	if r.cache != nil && r.ttl > 0 {
		var cb cachedBot
		err := r.cache.Get(ctx, key, &cb)
		switch {
		case err == nil && cb.Bot != nil:
			cb.Bot.Secret = cb.Secret
			return cb.Bot, nil
		case err != nil && !errors.Is(err, cache.ErrCacheMiss):
			r.l.Warn("bot cache read failed", applogger.String("bot_id", botID), applogger.Error(err))
		}
	}

	bot, err := r.store.GetBot(ctx, botID)
	if err != nil {
		if errors.Is(err, domrepo.ErrBotNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("lookup bot %s: %w", botID, err)
	}

	if r.cache != nil && r.ttl > 0 {
		if err := r.cache.Set(ctx, key, cachedBot{Bot: bot, Secret: bot.Secret}, r.ttl); err != nil {
			r.l.Warn("bot cache write failed", applogger.String("bot_id", botID), applogger.Error(err))
		}
	}
	return bot, nil
}

// Invalidate drops the cached entry after a mutation.
func (r *BotRegistry) Invalidate(ctx context.Context, botID string) error {
	if r.cache == nil {
		return nil
	}
	return r.cache.Delete(ctx, cache.GenerateKey(botCachePrefix, botID))
}
