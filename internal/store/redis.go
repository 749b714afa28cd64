package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/atmx/pnl-engine/internal/model"
)

const (
	settingsKey = "pnl:settings:default"
	marksKey    = "pnl:marks:all"
)

// CachedStore wraps a primary Store (PostgreSQL) with a Redis read-through
// cache. Writes go to the primary store and invalidate the cache; reads
// check Redis first then fall back to the primary.
//
// The ledger itself is never cached: every replay reads the current ledger.
type CachedStore struct {
	primary Store
	rdb     *redis.Client
	ttl     time.Duration
}

// NewCachedStore creates a cached wrapper around a primary store.
func NewCachedStore(primary Store, rdb *redis.Client, ttl time.Duration) *CachedStore {
	return &CachedStore{
		primary: primary,
		rdb:     rdb,
		ttl:     ttl,
	}
}

// --- Write-through (write to primary, invalidate cache) ---

func (s *CachedStore) ReverseTrade(ctx context.Context, id string) (*model.Trade, error) {
	t, err := s.primary.ReverseTrade(ctx, id)
	if err != nil {
		return nil, err
	}
	s.rdb.Del(ctx, tradeKey(id))
	return t, nil
}

func (s *CachedStore) SaveSettings(ctx context.Context, settings model.Settings) error {
	if err := s.primary.SaveSettings(ctx, settings); err != nil {
		return err
	}
	s.rdb.Del(ctx, settingsKey)
	return nil
}

func (s *CachedStore) UpsertMarkPrices(ctx context.Context, marks []model.MarkPrice) error {
	if err := s.primary.UpsertMarkPrices(ctx, marks); err != nil {
		return err
	}
	s.rdb.Del(ctx, marksKey)
	return nil
}

// --- Read-through (check cache first) ---

func (s *CachedStore) GetTrade(ctx context.Context, id string) (*model.Trade, error) {
	data, err := s.rdb.Get(ctx, tradeKey(id)).Bytes()
	if err == nil {
		var t model.Trade
		if json.Unmarshal(data, &t) == nil {
			return &t, nil
		}
	}

	t, err := s.primary.GetTrade(ctx, id)
	if err != nil {
		return nil, err
	}
	s.set(ctx, tradeKey(id), t)
	return t, nil
}

func (s *CachedStore) GetSettings(ctx context.Context) (model.Settings, error) {
	data, err := s.rdb.Get(ctx, settingsKey).Bytes()
	if err == nil {
		var settings model.Settings
		if json.Unmarshal(data, &settings) == nil {
			return settings, nil
		}
	}

	settings, err := s.primary.GetSettings(ctx)
	if err != nil {
		return model.Settings{}, err
	}
	s.set(ctx, settingsKey, settings)
	return settings, nil
}

func (s *CachedStore) ListMarkPrices(ctx context.Context) ([]model.MarkPrice, error) {
	data, err := s.rdb.Get(ctx, marksKey).Bytes()
	if err == nil {
		var marks []model.MarkPrice
		if json.Unmarshal(data, &marks) == nil {
			return marks, nil
		}
	}

	marks, err := s.primary.ListMarkPrices(ctx)
	if err != nil {
		return nil, err
	}
	s.set(ctx, marksKey, marks)
	return marks, nil
}

// --- Passthrough (not cached) ---

func (s *CachedStore) InsertTrade(ctx context.Context, t *model.Trade) error {
	return s.primary.InsertTrade(ctx, t)
}

func (s *CachedStore) InsertTrades(ctx context.Context, trades []model.Trade) error {
	return s.primary.InsertTrades(ctx, trades)
}

func (s *CachedStore) ListTrades(ctx context.Context, f TradeFilter) ([]model.Trade, error) {
	return s.primary.ListTrades(ctx, f)
}

// --- Cache helpers ---

func (s *CachedStore) set(ctx context.Context, key string, v any) {
	if data, err := json.Marshal(v); err == nil {
		s.rdb.Set(ctx, key, data, s.ttl)
	}
}

func tradeKey(id string) string { return fmt.Sprintf("pnl:trade:%s", id) }
