// Package pnl summarizes realized closures and marks open positions to
// market.
package pnl

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/atmx/pnl-engine/internal/model"
)

// DefaultDailyDays is how many days DailyTotals returns when asked for none.
const DefaultDailyDays = 30

// DayTotal is the realized PnL booked on one calendar day (UTC).
type DayTotal struct {
	Day   string          `json:"day"` // YYYY-MM-DD
	Total decimal.Decimal `json:"total"`
}

// RealizedTotal sums realized PnL. With a zero since it returns the initial
// carry plus every closure. With a non-zero since it sums only closures at or
// after since and leaves the carry out, since the carry already reflects the
// history before the cutoff.
func RealizedTotal(history []model.ClosureEntry, initial decimal.Decimal, since time.Time) decimal.Decimal {
	if since.IsZero() {
		total := initial
		for _, h := range history {
			total = total.Add(h.RealizedPL)
		}
		return total
	}

	total := decimal.Zero
	for _, h := range history {
		if !h.Date.Before(since) {
			total = total.Add(h.RealizedPL)
		}
	}
	return total
}

// DailyTotals groups realized PnL by calendar day and returns the most recent
// days first, at most days entries.
func DailyTotals(history []model.ClosureEntry, days int) []DayTotal {
	if days <= 0 {
		days = DefaultDailyDays
	}

	sums := make(map[string]decimal.Decimal)
	for _, h := range history {
		day := h.Date.UTC().Format(time.DateOnly)
		sums[day] = sums[day].Add(h.RealizedPL)
	}

	out := make([]DayTotal, 0, len(sums))
	for day, total := range sums {
		out = append(out, DayTotal{Day: day, Total: total})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Day > out[j].Day })

	if len(out) > days {
		out = out[:days]
	}
	return out
}

// ByTrader sums realized PnL per trader.
func ByTrader(history []model.ClosureEntry) map[string]decimal.Decimal {
	return groupBy(history, func(h model.ClosureEntry) string { return h.Trader })
}

// ByProduct sums realized PnL per product.
func ByProduct(history []model.ClosureEntry) map[string]decimal.Decimal {
	return groupBy(history, func(h model.ClosureEntry) string { return h.Product })
}

func groupBy(history []model.ClosureEntry, key func(model.ClosureEntry) string) map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal)
	for _, h := range history {
		k := key(h)
		out[k] = out[k].Add(h.RealizedPL)
	}
	return out
}
