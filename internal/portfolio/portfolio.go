// Package portfolio assembles the reporting view of a ledger: replayed
// positions priced against marks, realized history and the reconciliation
// summary.
package portfolio

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/atmx/pnl-engine/internal/engine"
	"github.com/atmx/pnl-engine/internal/fees"
	"github.com/atmx/pnl-engine/internal/model"
	"github.com/atmx/pnl-engine/internal/pnl"
	"github.com/atmx/pnl-engine/internal/reconcile"
)

// PositionView is a live position with its mark, floating PnL and landed cost.
type PositionView struct {
	model.Position
	Mark        decimal.Decimal `json:"mtm"`
	MarkSource  pnl.MarkSource  `json:"mark_source"`
	FloatingPnL decimal.Decimal `json:"floating_pnl"`
	LandedCost  decimal.Decimal `json:"landed_cost"`
}

// ProductGroup aggregates the positions of one product.
type ProductGroup struct {
	Product       string          `json:"product"`
	Positions     []PositionView  `json:"positions"`
	TotalQuantity decimal.Decimal `json:"total_quantity"`
	TotalFloating decimal.Decimal `json:"total_floating"`
}

// Portfolio is the priced set of live positions.
type Portfolio struct {
	Positions     []PositionView  `json:"positions"`
	Groups        []ProductGroup  `json:"grouped"`
	TotalFloating decimal.Decimal `json:"total_floating"`
	TotalQuantity decimal.Decimal `json:"total_quantity"`
	Count         int             `json:"count"`
}

// Build prices positions through the mark book. Groups keep the order in
// which their product first appears.
func Build(positions []model.Position, book pnl.MarkBook, s model.Settings) Portfolio {
	pf := Portfolio{
		Positions:     make([]PositionView, 0, len(positions)),
		Groups:        []ProductGroup{},
		TotalFloating: decimal.Zero,
		TotalQuantity: decimal.Zero,
	}
	groupIdx := make(map[string]int)

	for _, pos := range positions {
		mark, src := book.Resolve(pos)
		view := PositionView{
			Position:    pos,
			Mark:        mark,
			MarkSource:  src,
			FloatingPnL: pnl.Floating(pos, mark, s),
			LandedCost:  fees.LandedCost(pos.Product, pos.AvgPrice, s),
		}
		pf.Positions = append(pf.Positions, view)
		pf.TotalFloating = pf.TotalFloating.Add(view.FloatingPnL)
		pf.TotalQuantity = pf.TotalQuantity.Add(pos.Quantity)

		i, ok := groupIdx[pos.Product]
		if !ok {
			i = len(pf.Groups)
			groupIdx[pos.Product] = i
			pf.Groups = append(pf.Groups, ProductGroup{
				Product:       pos.Product,
				TotalQuantity: decimal.Zero,
				TotalFloating: decimal.Zero,
			})
		}
		g := &pf.Groups[i]
		g.Positions = append(g.Positions, view)
		g.TotalQuantity = g.TotalQuantity.Add(pos.Quantity)
		g.TotalFloating = g.TotalFloating.Add(view.FloatingPnL)
	}

	pf.Count = len(pf.Positions)
	return pf
}

// Input is everything one snapshot is computed from.
type Input struct {
	Trades   []model.Trade
	Marks    []model.MarkPrice
	Settings model.Settings
	// Since restricts realized totals to closures at or after it and drops
	// the initial carry. Zero means no cutoff.
	Since time.Time
}

// Snapshot is a full recomputation of the book.
type Snapshot struct {
	Portfolio      Portfolio            `json:"portfolio"`
	History        []model.ClosureEntry `json:"history"`
	RealizedTotal  decimal.Decimal      `json:"realized_total"`
	Reconciliation reconcile.Summary    `json:"reconciliation"`
}

// Compute replays the trades and prices the result. Settings travel with the
// input, so concurrent calls with different settings do not interfere.
func Compute(in Input) Snapshot {
	res := engine.Replay(in.Trades, in.Settings)
	pf := Build(res.Positions, pnl.NewMarkBook(in.Marks), in.Settings)
	realized := pnl.RealizedTotal(res.History, in.Settings.InitialRealizedPL, in.Since)

	history := res.History
	if history == nil {
		history = []model.ClosureEntry{}
	}

	return Snapshot{
		Portfolio:      pf,
		History:        history,
		RealizedTotal:  realized,
		Reconciliation: reconcile.Summarize(realized, pf.TotalFloating, in.Settings),
	}
}
