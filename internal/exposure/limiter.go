// Package exposure measures net lots per position and per product and
// enforces optional lot limits on new trades.
//
// A desk's positions in one product move together regardless of trader or
// contract month, so the product limit sums absolute exposure across every
// position in that product.
package exposure

import (
	"errors"

	"github.com/shopspring/decimal"

	"github.com/atmx/pnl-engine/internal/model"
)

var (
	// ErrPositionLimitExceeded is returned when a trade would push a single
	// position beyond the per-position maximum.
	ErrPositionLimitExceeded = errors.New("exposure: position lot limit exceeded")

	// ErrProductLimitExceeded is returned when a trade would push the
	// aggregate absolute exposure in its product beyond the product maximum.
	ErrProductLimitExceeded = errors.New("exposure: product lot limit exceeded")
)

// Limiter enforces lot limits. A zero limit disables that check.
type Limiter struct {
	// MaxPerPosition caps |net lots| of one (trader, product, contract).
	MaxPerPosition decimal.Decimal

	// MaxPerProduct caps the sum of |net lots| over all positions in a product.
	MaxPerProduct decimal.Decimal
}

// NewLimiter creates a limiter with the given limits.
func NewLimiter(maxPerPosition, maxPerProduct decimal.Decimal) *Limiter {
	return &Limiter{
		MaxPerPosition: maxPerPosition,
		MaxPerProduct:  maxPerProduct,
	}
}

// Enabled reports whether any limit is set.
func (l *Limiter) Enabled() bool {
	return l != nil && (l.MaxPerPosition.IsPositive() || l.MaxPerProduct.IsPositive())
}

// Exposures returns net lots per position key.
func Exposures(positions []model.Position) map[model.PositionKey]decimal.Decimal {
	out := make(map[model.PositionKey]decimal.Decimal, len(positions))
	for _, p := range positions {
		key := model.PositionKey{Trader: p.Trader, Product: p.Product, Contract: p.Contract}
		out[key] = out[key].Add(p.Quantity)
	}
	return out
}

// CheckLimit validates a trade's lot delta against the current exposures.
// It returns nil if the trade is within limits.
func (l *Limiter) CheckLimit(
	target model.PositionKey,
	delta decimal.Decimal,
	existing map[model.PositionKey]decimal.Decimal,
) error {
	if !l.Enabled() {
		return nil
	}

	// 1. Per-position limit.
	newPosition := existing[target].Add(delta)
	if l.MaxPerPosition.IsPositive() && newPosition.Abs().GreaterThan(l.MaxPerPosition) {
		return ErrPositionLimitExceeded
	}

	// 2. Product aggregate.
	if !l.MaxPerProduct.IsPositive() {
		return nil
	}
	total := newPosition.Abs()
	for key, qty := range existing {
		if key == target || key.Product != target.Product {
			continue
		}
		total = total.Add(qty.Abs())
	}
	if total.GreaterThan(l.MaxPerProduct) {
		return ErrProductLimitExceeded
	}
	return nil
}
