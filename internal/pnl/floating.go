package pnl

import (
	"github.com/shopspring/decimal"

	"github.com/atmx/pnl-engine/internal/fees"
	"github.com/atmx/pnl-engine/internal/model"
)

// MarkSource records which tier of the mark lookup priced a position.
type MarkSource string

const (
	SourceContract MarkSource = "contract" // product + contract mark
	SourceGeneric  MarkSource = "generic"  // product-agnostic contract mark
	SourceAverage  MarkSource = "average"  // no mark, fell back to avg price
)

// MarkBook indexes mark prices by product and contract.
type MarkBook struct {
	prices map[markKey]decimal.Decimal
}

type markKey struct {
	product  string
	contract string
}

// NewMarkBook builds a book from stored marks. Later entries win.
func NewMarkBook(marks []model.MarkPrice) MarkBook {
	b := MarkBook{prices: make(map[markKey]decimal.Decimal, len(marks))}
	for _, m := range marks {
		b.prices[markKey{m.Product, m.Contract}] = m.Price
	}
	return b
}

// Resolve finds the mark for a position, in order:
//  1. the exact product and contract,
//  2. the generic contract,
//  3. the position's own average price.
func (b MarkBook) Resolve(pos model.Position) (decimal.Decimal, MarkSource) {
	if p, ok := b.prices[markKey{pos.Product, pos.Contract}]; ok {
		return p, SourceContract
	}
	if p, ok := b.prices[markKey{model.GenericProduct, pos.Contract}]; ok {
		return p, SourceGeneric
	}
	return pos.AvgPrice, SourceAverage
}

// Len returns the number of marks in the book.
func (b MarkBook) Len() int {
	return len(b.prices)
}

// Floating marks a position to mark, net of the single-sided fee still owed
// on its open lots:
//
//	(mark*qty - total_value) * multiplier - |qty| * multiplier * fee_rate
func Floating(pos model.Position, mark decimal.Decimal, s model.Settings) decimal.Decimal {
	multiplier := fees.Multiplier(pos.Product, s)
	gross := mark.Mul(pos.Quantity).Sub(pos.TotalValue).Mul(multiplier)
	return gross.Sub(fees.HoldingFee(pos.Product, pos.Quantity, s))
}

// FloatingTotal sums Floating over positions, resolving each mark through
// the book.
func FloatingTotal(positions []model.Position, book MarkBook, s model.Settings) decimal.Decimal {
	total := decimal.Zero
	for _, pos := range positions {
		mark, _ := book.Resolve(pos)
		total = total.Add(Floating(pos, mark, s))
	}
	return total
}
