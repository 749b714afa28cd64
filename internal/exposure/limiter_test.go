package exposure

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/atmx/pnl-engine/internal/model"
)

func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

func key(trader, product, contract string) model.PositionKey {
	return model.PositionKey{Trader: trader, Product: product, Contract: contract}
}

func TestCheckLimit_WithinLimits(t *testing.T) {
	limiter := NewLimiter(d(100), d(500))

	err := limiter.CheckLimit(key("W", "Brent", "2602"), d(10), nil)
	if err != nil {
		t.Errorf("expected no error, got %v", err)
	}
}

func TestCheckLimit_PositionExceeded(t *testing.T) {
	limiter := NewLimiter(d(100), d(500))

	// Existing 95 + new 10 = 105 > 100.
	existing := map[model.PositionKey]decimal.Decimal{
		key("W", "Brent", "2602"): d(95),
	}

	err := limiter.CheckLimit(key("W", "Brent", "2602"), d(10), existing)
	if err != ErrPositionLimitExceeded {
		t.Errorf("expected ErrPositionLimitExceeded, got %v", err)
	}
}

func TestCheckLimit_ReducingTradeAllowed(t *testing.T) {
	limiter := NewLimiter(d(100), d(500))

	// Already over the limit, but selling brings it back toward flat.
	existing := map[model.PositionKey]decimal.Decimal{
		key("W", "Brent", "2602"): d(150),
	}

	if err := limiter.CheckLimit(key("W", "Brent", "2602"), d(-60), existing); err != nil {
		t.Errorf("expected no error, got %v", err)
	}
}

func TestCheckLimit_ShortSideCounts(t *testing.T) {
	limiter := NewLimiter(d(100), decimal.Zero)

	err := limiter.CheckLimit(key("L", "JKM", "2603"), d(-101), nil)
	if err != ErrPositionLimitExceeded {
		t.Errorf("expected ErrPositionLimitExceeded, got %v", err)
	}
}

func TestCheckLimit_ProductAggregate(t *testing.T) {
	limiter := NewLimiter(d(100), d(200))

	// Long and short legs both count toward product exposure.
	existing := map[model.PositionKey]decimal.Decimal{
		key("W", "Brent", "2602"): d(90),
		key("L", "Brent", "2603"): d(-80),
		key("Z", "JKM", "2602"):   d(100),
	}

	err := limiter.CheckLimit(key("D", "Brent", "2604"), d(40), existing)
	if err != ErrProductLimitExceeded {
		t.Errorf("expected ErrProductLimitExceeded, got %v", err)
	}

	// Other products are not counted: 90 + 80 + 30 = 200.
	if err := limiter.CheckLimit(key("D", "Brent", "2604"), d(30), existing); err != nil {
		t.Errorf("expected no error at the limit, got %v", err)
	}
}

func TestCheckLimit_Disabled(t *testing.T) {
	var nilLimiter *Limiter
	if nilLimiter.Enabled() {
		t.Error("nil limiter should be disabled")
	}
	if err := nilLimiter.CheckLimit(key("W", "Brent", "2602"), d(1e6), nil); err != nil {
		t.Errorf("nil limiter should allow everything, got %v", err)
	}

	limiter := NewLimiter(decimal.Zero, decimal.Zero)
	if err := limiter.CheckLimit(key("W", "Brent", "2602"), d(1e6), nil); err != nil {
		t.Errorf("zero limits should allow everything, got %v", err)
	}
}

func TestExposures(t *testing.T) {
	positions := []model.Position{
		{Trader: "W", Product: "Brent", Contract: "2602", Quantity: d(6)},
		{Trader: "L", Product: "Brent", Contract: "2602", Quantity: d(-2)},
	}

	got := Exposures(positions)
	if len(got) != 2 {
		t.Fatalf("expected 2 exposures, got %d", len(got))
	}
	if !got[key("W", "Brent", "2602")].Equal(d(6)) {
		t.Errorf("W exposure = %s", got[key("W", "Brent", "2602")])
	}
	if !got[key("L", "Brent", "2602")].Equal(d(-2)) {
		t.Errorf("L exposure = %s", got[key("L", "Brent", "2602")])
	}
}
