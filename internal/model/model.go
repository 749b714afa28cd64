// Package model defines the core domain types shared across the PnL engine.
// All monetary values use shopspring/decimal, never float64 for money.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// TradeStatus marks whether a ledger entry still counts. Reversed entries are
// soft-deleted and never reach the netting engine.
type TradeStatus string

const (
	StatusActive   TradeStatus = "active"
	StatusReversed TradeStatus = "reversed"
)

// TradeKind distinguishes regular fills from cost-basis adjustments.
type TradeKind string

const (
	KindRegular    TradeKind = "regular"
	KindAdjustment TradeKind = "adjustment"
)

// Trade is an entry in the append-only ledger. Only Status may change after
// creation, and only from active to reversed.
type Trade struct {
	ID        string          `json:"id" db:"id"`
	Timestamp time.Time       `json:"timestamp" db:"timestamp"`
	Trader    string          `json:"trader" db:"trader"`
	Product   string          `json:"product" db:"product"`
	Contract  string          `json:"contract" db:"contract"`
	Quantity  decimal.Decimal `json:"quantity" db:"quantity"` // signed: +buy, -sell
	Price     decimal.Decimal `json:"price" db:"price"`
	Status    TradeStatus     `json:"status" db:"status"`
	Kind      TradeKind       `json:"kind" db:"kind"`
}

// Key returns the composite identity of the position this trade touches.
func (t Trade) Key() PositionKey {
	return PositionKey{Trader: t.Trader, Product: t.Product, Contract: t.Contract}
}

// PositionKey identifies a net position. Compared field by field, so no
// delimiter can make two different keys collide.
type PositionKey struct {
	Trader   string `json:"trader"`
	Product  string `json:"product"`
	Contract string `json:"contract"`
}

// String renders the key for logs and JSON output only.
func (k PositionKey) String() string {
	return k.Trader + "-" + k.Product + "-" + k.Contract
}

// Position is a live net position after a full ledger replay.
type Position struct {
	Key        string          `json:"key"`
	Trader     string          `json:"trader"`
	Product    string          `json:"product"`
	Contract   string          `json:"contract"`
	Quantity   decimal.Decimal `json:"quantity"`    // signed net lots
	TotalValue decimal.Decimal `json:"total_value"` // cost basis, not divided by quantity
	AvgPrice   decimal.Decimal `json:"avg_price"`
	LastUpdate time.Time       `json:"last_update"`
}

// ClosureEntry is one realized closing event. ClosedQuantity is positive when
// a short was closed and negative when a long was closed.
type ClosureEntry struct {
	Date           time.Time       `json:"date"`
	Trader         string          `json:"trader"`
	Product        string          `json:"product"`
	Contract       string          `json:"contract"`
	ClosedQuantity decimal.Decimal `json:"closed_quantity"`
	OpenPrice      decimal.Decimal `json:"open_price"`
	ClosePrice     decimal.Decimal `json:"close_price"`
	RealizedPL     decimal.Decimal `json:"realized_pl"`
	Multiplier     decimal.Decimal `json:"multiplier"`
	Fee            decimal.Decimal `json:"fee"`
}

// Settings is the per-call configuration of the engine and its collaborators.
// It is always passed by value; nothing in the engine keeps a copy.
type Settings struct {
	BrentFeeRate        decimal.Decimal `json:"brent_fee_rate" yaml:"brent_fee_rate"`
	SharedFeeRate       decimal.Decimal `json:"shared_fee_rate" yaml:"shared_fee_rate"`
	TTFMultiplier       decimal.Decimal `json:"ttf_multiplier" yaml:"ttf_multiplier"`
	FXRate              decimal.Decimal `json:"fx_rate" yaml:"fx_rate"`
	InitialRealizedPL   decimal.Decimal `json:"initial_realized_pl" yaml:"initial_realized_pl"`
	ReconciliationBase  decimal.Decimal `json:"reconciliation_base" yaml:"reconciliation_base"`
	ReconciliationOther decimal.Decimal `json:"reconciliation_other" yaml:"reconciliation_other"`
}

// DefaultSettings returns the configuration used when nothing has been saved.
func DefaultSettings() Settings {
	return Settings{
		BrentFeeRate:        decimal.Zero,
		SharedFeeRate:       decimal.Zero,
		TTFMultiplier:       decimal.NewFromInt(3412),
		FXRate:              decimal.RequireFromString("7.13"),
		InitialRealizedPL:   decimal.Zero,
		ReconciliationBase:  decimal.NewFromInt(156170),
		ReconciliationOther: decimal.NewFromInt(45800),
	}
}

// MarkPrice is a mark-to-market reference price. Product is GenericProduct for
// contract-only marks that apply to any product.
type MarkPrice struct {
	Product   string          `json:"product" db:"product"`
	Contract  string          `json:"contract" db:"contract"`
	Price     decimal.Decimal `json:"price" db:"price"`
	UpdatedAt time.Time       `json:"updated_at" db:"updated_at"`
}

// GenericProduct is the product name of product-agnostic marks.
const GenericProduct = "GENERIC"

// Key returns the mark's lookup key in "Product::Contract" form.
func (m MarkPrice) Key() string {
	return m.Product + "::" + m.Contract
}
