// Package store defines the persistence interface for the trade ledger,
// engine settings and mark prices. Implementations include PostgreSQL
// (source of truth), Redis (read-through cache), and in-memory (for testing).
package store

import (
	"context"
	"errors"
	"time"

	"github.com/atmx/pnl-engine/internal/model"
)

var (
	// ErrTradeNotFound is returned when no trade has the requested ID.
	ErrTradeNotFound = errors.New("store: trade not found")

	// ErrDuplicateTrade is returned when a trade ID is already in the ledger.
	ErrDuplicateTrade = errors.New("store: trade already exists")

	// ErrAlreadyReversed is returned when reversing a reversed trade.
	ErrAlreadyReversed = errors.New("store: trade already reversed")
)

// TradeFilter narrows a ledger query. Zero fields do not filter.
type TradeFilter struct {
	Status      model.TradeStatus
	Since       time.Time // inclusive
	Limit       int
	NewestFirst bool
}

// Store is the persistence interface. Trades are returned in ledger order:
// by timestamp, then by insertion order for equal timestamps.
type Store interface {
	// --- Append-only ledger ---

	// InsertTrade appends one trade.
	InsertTrade(ctx context.Context, t *model.Trade) error

	// InsertTrades appends a batch atomically.
	InsertTrades(ctx context.Context, trades []model.Trade) error

	// GetTrade retrieves a trade by ID.
	GetTrade(ctx context.Context, id string) (*model.Trade, error)

	// ListTrades returns trades matching the filter.
	ListTrades(ctx context.Context, f TradeFilter) ([]model.Trade, error)

	// ReverseTrade flips an active trade to reversed and returns it.
	ReverseTrade(ctx context.Context, id string) (*model.Trade, error)

	// --- Settings ---

	// GetSettings returns the saved settings, or the defaults if none.
	GetSettings(ctx context.Context) (model.Settings, error)

	// SaveSettings replaces the saved settings.
	SaveSettings(ctx context.Context, s model.Settings) error

	// --- Marks ---

	// UpsertMarkPrices inserts or replaces marks by (product, contract).
	UpsertMarkPrices(ctx context.Context, marks []model.MarkPrice) error

	// ListMarkPrices returns every stored mark.
	ListMarkPrices(ctx context.Context) ([]model.MarkPrice, error)
}

var (
	_ Store = (*MemoryStore)(nil)
	_ Store = (*PostgresStore)(nil)
	_ Store = (*CachedStore)(nil)
)
