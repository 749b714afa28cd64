package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/atmx/pnl-engine/internal/model"
)

// MemoryStore implements Store with in-memory maps. Used for testing
// and development. Not suitable for production (no persistence).
type MemoryStore struct {
	mu       sync.RWMutex
	ledger   []model.Trade
	index    map[string]int
	settings *model.Settings
	marks    map[string]model.MarkPrice
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		index: make(map[string]int),
		marks: make(map[string]model.MarkPrice),
	}
}

func (s *MemoryStore) InsertTrade(_ context.Context, t *model.Trade) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.appendLocked(*t)
}

func (s *MemoryStore) InsertTrades(_ context.Context, trades []model.Trade) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[string]bool, len(trades))
	for _, t := range trades {
		if _, ok := s.index[t.ID]; ok || seen[t.ID] {
			return fmt.Errorf("%w: %s", ErrDuplicateTrade, t.ID)
		}
		seen[t.ID] = true
	}
	for _, t := range trades {
		if err := s.appendLocked(t); err != nil {
			return err
		}
	}
	return nil
}

func (s *MemoryStore) appendLocked(t model.Trade) error {
	if _, ok := s.index[t.ID]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateTrade, t.ID)
	}
	s.index[t.ID] = len(s.ledger)
	s.ledger = append(s.ledger, t)
	return nil
}

func (s *MemoryStore) GetTrade(_ context.Context, id string) (*model.Trade, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	i, ok := s.index[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTradeNotFound, id)
	}
	t := s.ledger[i]
	return &t, nil
}

func (s *MemoryStore) ListTrades(_ context.Context, f TradeFilter) ([]model.Trade, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]model.Trade, 0, len(s.ledger))
	for _, t := range s.ledger {
		if f.Status != "" && t.Status != f.Status {
			continue
		}
		if !f.Since.IsZero() && t.Timestamp.Before(f.Since) {
			continue
		}
		result = append(result, t)
	}

	// Stable sort keeps insertion order for equal timestamps.
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].Timestamp.Before(result[j].Timestamp)
	})
	if f.NewestFirst {
		for i, j := 0, len(result)-1; i < j; i, j = i+1, j-1 {
			result[i], result[j] = result[j], result[i]
		}
	}
	if f.Limit > 0 && len(result) > f.Limit {
		result = result[:f.Limit]
	}
	return result, nil
}

func (s *MemoryStore) ReverseTrade(_ context.Context, id string) (*model.Trade, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i, ok := s.index[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTradeNotFound, id)
	}
	if s.ledger[i].Status == model.StatusReversed {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyReversed, id)
	}
	s.ledger[i].Status = model.StatusReversed
	t := s.ledger[i]
	return &t, nil
}

func (s *MemoryStore) GetSettings(_ context.Context) (model.Settings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.settings == nil {
		return model.DefaultSettings(), nil
	}
	return *s.settings, nil
}

func (s *MemoryStore) SaveSettings(_ context.Context, settings model.Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.settings = &settings
	return nil
}

func (s *MemoryStore) UpsertMarkPrices(_ context.Context, marks []model.MarkPrice) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, m := range marks {
		s.marks[m.Key()] = m
	}
	return nil
}

func (s *MemoryStore) ListMarkPrices(_ context.Context) ([]model.MarkPrice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	marks := make([]model.MarkPrice, 0, len(s.marks))
	for _, m := range s.marks {
		marks = append(marks, m)
	}
	sort.Slice(marks, func(i, j int) bool { return marks[i].Key() < marks[j].Key() })
	return marks, nil
}
