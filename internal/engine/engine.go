// Package engine replays the trade ledger into net positions and realized
// closure events.
//
// Replay is a pure function of the trade snapshot and the settings passed to
// it. Nothing is cached between calls, so identical inputs always produce
// identical output and concurrent callers never share state.
package engine

import (
	"log/slog"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/atmx/pnl-engine/internal/fees"
	"github.com/atmx/pnl-engine/internal/model"
)

// FlatTolerance is the absolute lot size at or below which a position counts
// as flat.
var FlatTolerance = decimal.RequireFromString("0.0001")

// Result is the output of a replay.
type Result struct {
	Positions []model.Position     // live positions, in order of first trade
	History   []model.ClosureEntry // closures, in replay order
}

// positionState is the running state of one key during a replay.
type positionState struct {
	key        model.PositionKey
	quantity   decimal.Decimal
	totalValue decimal.Decimal
	lastUpdate time.Time
}

// avgPrice is total value over quantity, or zero for a flat position.
func (p *positionState) avgPrice() decimal.Decimal {
	if p.quantity.IsZero() {
		return decimal.Zero
	}
	return p.totalValue.Div(p.quantity)
}

// IsFlat reports whether a quantity is within FlatTolerance of zero.
func IsFlat(qty decimal.Decimal) bool {
	return qty.Abs().LessThanOrEqual(FlatTolerance)
}

// ActiveInReplayOrder drops reversed trades and stable-sorts the rest by
// timestamp, so trades sharing a timestamp keep their ledger order.
func ActiveInReplayOrder(trades []model.Trade) []model.Trade {
	active := make([]model.Trade, 0, len(trades))
	for _, t := range trades {
		if t.Status == model.StatusActive {
			active = append(active, t)
		}
	}
	sort.SliceStable(active, func(i, j int) bool {
		return active[i].Timestamp.Before(active[j].Timestamp)
	})
	return active
}

// Replay nets the active trades per (trader, product, contract).
//
// A trade opposing a non-zero position is a closing event when it is a
// regular trade: it realizes PnL on min(|position|, |trade|) lots at the
// position's average price, net of the round-trip fee. Adjustment trades
// never realize PnL and only shift cost basis. A closing trade larger than the
// position flips it; the flipped residual starts with zero cost basis.
func Replay(trades []model.Trade, s model.Settings) Result {
	active := ActiveInReplayOrder(trades)

	states := make(map[model.PositionKey]*positionState)
	var order []model.PositionKey
	var history []model.ClosureEntry

	for _, t := range active {
		key := t.Key()
		pos, ok := states[key]
		if !ok {
			pos = &positionState{key: key}
			states[key] = pos
			order = append(order, key)
		}
		pos.lastUpdate = t.Timestamp

		opposing := !pos.quantity.IsZero() && pos.quantity.Sign()*t.Quantity.Sign() < 0
		if !opposing || t.Kind == model.KindAdjustment {
			pos.totalValue = pos.totalValue.Add(t.Quantity.Mul(t.Price))
			pos.quantity = pos.quantity.Add(t.Quantity)
			continue
		}

		history = append(history, closePosition(pos, t, s))
	}

	positions := make([]model.Position, 0, len(order))
	for _, key := range order {
		pos := states[key]
		if IsFlat(pos.quantity) {
			continue
		}
		positions = append(positions, model.Position{
			Key:        key.String(),
			Trader:     key.Trader,
			Product:    key.Product,
			Contract:   key.Contract,
			Quantity:   pos.quantity,
			TotalValue: pos.totalValue,
			AvgPrice:   pos.avgPrice(),
			LastUpdate: pos.lastUpdate,
		})
	}

	slog.Debug("ledger replayed",
		"trades", len(trades),
		"active", len(active),
		"positions", len(positions),
		"history", len(history),
	)

	return Result{Positions: positions, History: history}
}

// closePosition applies a regular trade that opposes pos and returns the
// realized closure it produces.
func closePosition(pos *positionState, t model.Trade, s model.Settings) model.ClosureEntry {
	multiplier := fees.Multiplier(t.Product, s)

	held := pos.quantity.Abs()
	closeQty := decimal.Min(held, t.Quantity.Abs())
	direction := decimal.NewFromInt(int64(pos.quantity.Sign()))
	avgPrice := pos.avgPrice()

	gross := t.Price.Sub(avgPrice).Mul(closeQty).Mul(direction).Mul(multiplier)
	fee := fees.RoundTripFee(t.Product, closeQty, s)

	entry := model.ClosureEntry{
		Date:           t.Timestamp,
		Trader:         t.Trader,
		Product:        t.Product,
		Contract:       t.Contract,
		ClosedQuantity: closeQty.Mul(direction).Neg(),
		OpenPrice:      avgPrice,
		ClosePrice:     t.Price,
		RealizedPL:     gross.Sub(fee),
		Multiplier:     multiplier,
		Fee:            fee,
	}

	remaining := held.Sub(closeQty)
	if remaining.GreaterThan(FlatTolerance) {
		pos.totalValue = pos.totalValue.Mul(remaining).Div(held)
	} else {
		pos.totalValue = decimal.Zero
	}
	pos.quantity = pos.quantity.Add(t.Quantity)

	return entry
}
