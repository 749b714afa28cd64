package portfolio

import (
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atmx/pnl-engine/internal/model"
	"github.com/atmx/pnl-engine/internal/pnl"
)

func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

var t0 = time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)

func trade(min int, trader, product, contract string, qty, price float64) model.Trade {
	return model.Trade{
		ID:        trader + product + contract,
		Timestamp: t0.Add(time.Duration(min) * time.Minute),
		Trader:    trader,
		Product:   product,
		Contract:  contract,
		Quantity:  d(qty),
		Price:     d(price),
		Status:    model.StatusActive,
		Kind:      model.KindRegular,
	}
}

func TestBuild_PricesAndGroups(t *testing.T) {
	positions := []model.Position{
		{Key: "W-Brent-2602", Trader: "W", Product: "Brent", Contract: "2602", Quantity: d(6), TotalValue: d(480), AvgPrice: d(80)},
		{Key: "Z-TTF-26Q4", Trader: "Z", Product: "TTF", Contract: "26Q4", Quantity: d(-1), TotalValue: d(-31), AvgPrice: d(31)},
		{Key: "L-Brent-2603", Trader: "L", Product: "Brent", Contract: "2603", Quantity: d(-2), TotalValue: d(-150), AvgPrice: d(75)},
	}
	book := pnl.NewMarkBook([]model.MarkPrice{
		{Product: "Brent", Contract: "2602", Price: d(82)},
		{Product: model.GenericProduct, Contract: "26Q4", Price: d(30)},
	})

	pf := Build(positions, book, model.DefaultSettings())

	require.Equal(t, 3, pf.Count)
	v := pf.Positions[0]
	assert.Equal(t, pnl.SourceContract, v.MarkSource)
	assert.True(t, d(12000).Equal(v.FloatingPnL), "got %s", v.FloatingPnL)
	assert.InDelta(t, (80*0.134+0.46)*7.13/28.3, v.LandedCost.InexactFloat64(), 1e-9)

	ttf := pf.Positions[1]
	assert.Equal(t, pnl.SourceGeneric, ttf.MarkSource)
	// (30*-1 + 31) * 34120000
	assert.True(t, d(34120000).Equal(ttf.FloatingPnL), "got %s", ttf.FloatingPnL)
	assert.True(t, ttf.LandedCost.IsZero())

	unmarked := pf.Positions[2]
	assert.Equal(t, pnl.SourceAverage, unmarked.MarkSource)
	assert.True(t, unmarked.FloatingPnL.IsZero())

	require.Len(t, pf.Groups, 2)
	assert.Equal(t, "Brent", pf.Groups[0].Product)
	assert.Len(t, pf.Groups[0].Positions, 2)
	assert.True(t, d(4).Equal(pf.Groups[0].TotalQuantity))
	assert.True(t, d(12000).Equal(pf.Groups[0].TotalFloating))
	assert.Equal(t, "TTF", pf.Groups[1].Product)

	assert.True(t, d(3).Equal(pf.TotalQuantity))
	assert.True(t, d(34132000).Equal(pf.TotalFloating), "got %s", pf.TotalFloating)
}

func TestBuild_Empty(t *testing.T) {
	pf := Build(nil, pnl.MarkBook{}, model.DefaultSettings())
	assert.Equal(t, 0, pf.Count)
	assert.NotNil(t, pf.Positions)
	assert.NotNil(t, pf.Groups)
	assert.True(t, pf.TotalFloating.IsZero())
}

func TestCompute_ScenarioTTF(t *testing.T) {
	s := model.DefaultSettings()
	snap := Compute(Input{
		Trades:   []model.Trade{trade(0, "Z", "TTF", "2605", 2, 30)},
		Marks:    []model.MarkPrice{{Product: "TTF", Contract: "2605", Price: d(30.1)}},
		Settings: s,
	})

	require.Equal(t, 1, snap.Portfolio.Count)
	// (30.1*2 - 60) * 10000 * 3412
	assert.InDelta(t, 0.2*34120000, snap.Portfolio.TotalFloating.InexactFloat64(), 1e-6)
}

func TestCompute_RealizedAndReconciliation(t *testing.T) {
	s := model.DefaultSettings()
	s.InitialRealizedPL = d(100000)

	in := Input{
		Trades: []model.Trade{
			trade(0, "W", "Brent", "2602", 10, 80),
			trade(1, "W", "Brent", "2602", -4, 85),
		},
		Marks:    []model.MarkPrice{{Product: "Brent", Contract: "2602", Price: d(82)}},
		Settings: s,
	}

	snap := Compute(in)
	require.Len(t, snap.History, 1)
	// carry 100000 + 20000 realized
	assert.True(t, d(120000).Equal(snap.RealizedTotal), "got %s", snap.RealizedTotal)
	// 6 lots marked 82 vs 80
	assert.True(t, d(12000).Equal(snap.Portfolio.TotalFloating))
	// 120000 + 12000 - 156170 - 45800
	assert.True(t, d(-69970).Equal(snap.Reconciliation.NetValue), "got %s", snap.Reconciliation.NetValue)

	in.Since = t0
	filtered := Compute(in)
	assert.True(t, d(20000).Equal(filtered.RealizedTotal), "carry excluded with a cutoff, got %s", filtered.RealizedTotal)
}

func TestCompute_EmptyLedger(t *testing.T) {
	snap := Compute(Input{Settings: model.DefaultSettings()})
	assert.NotNil(t, snap.History)
	assert.Equal(t, 0, snap.Portfolio.Count)
}

func TestCompute_ConcurrentCallsWithDifferentSettings(t *testing.T) {
	trades := []model.Trade{
		trade(0, "Z", "TTF", "2605", 1, 30),
		trade(1, "Z", "TTF", "2605", -1, 31),
	}

	base := model.DefaultSettings()
	doubled := model.DefaultSettings()
	doubled.TTFMultiplier = d(6824)

	want := map[bool]decimal.Decimal{
		false: Compute(Input{Trades: trades, Settings: base}).RealizedTotal,
		true:  Compute(Input{Trades: trades, Settings: doubled}).RealizedTotal,
	}

	var wg sync.WaitGroup
	errs := make(chan string, 100)
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(useDoubled bool) {
			defer wg.Done()
			s := base
			if useDoubled {
				s = doubled
			}
			got := Compute(Input{Trades: trades, Settings: s}).RealizedTotal
			if !got.Equal(want[useDoubled]) {
				errs <- got.String()
			}
		}(i%2 == 0)
	}
	wg.Wait()
	close(errs)

	for e := range errs {
		t.Errorf("cross-call interference: got %s", e)
	}
}
