package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/atmx/pnl-engine/internal/model"
)

var t0 = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

func trade(id string, at time.Time, qty float64) model.Trade {
	return model.Trade{
		ID:        id,
		Timestamp: at,
		Trader:    "Alice",
		Product:   "Brent",
		Contract:  "2605",
		Quantity:  decimal.NewFromFloat(qty),
		Price:     decimal.NewFromInt(80),
		Status:    model.StatusActive,
		Kind:      model.KindRegular,
	}
}

func ids(trades []model.Trade) []string {
	out := make([]string, len(trades))
	for i, t := range trades {
		out[i] = t.ID
	}
	return out
}

func equalIDs(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestMemoryStore_ListTradesLedgerOrder(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	// Inserted out of timestamp order; b and c share a timestamp.
	for _, tr := range []model.Trade{
		trade("b", t0.Add(time.Hour), 1),
		trade("a", t0, 1),
		trade("c", t0.Add(time.Hour), 1),
	} {
		tr := tr
		if err := s.InsertTrade(ctx, &tr); err != nil {
			t.Fatal(err)
		}
	}

	got, err := s.ListTrades(ctx, TradeFilter{})
	if err != nil {
		t.Fatal(err)
	}
	if want := []string{"a", "b", "c"}; !equalIDs(ids(got), want) {
		t.Errorf("oldest first: got %v, want %v", ids(got), want)
	}

	got, _ = s.ListTrades(ctx, TradeFilter{NewestFirst: true, Limit: 2})
	if want := []string{"c", "b"}; !equalIDs(ids(got), want) {
		t.Errorf("newest first: got %v, want %v", ids(got), want)
	}
}

func TestMemoryStore_ListTradesFilters(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	_ = s.InsertTrades(ctx, []model.Trade{
		trade("old", t0.Add(-48*time.Hour), 1),
		trade("new", t0, 1),
		trade("gone", t0.Add(time.Hour), 1),
	})
	if _, err := s.ReverseTrade(ctx, "gone"); err != nil {
		t.Fatal(err)
	}

	got, _ := s.ListTrades(ctx, TradeFilter{Status: model.StatusActive})
	if want := []string{"old", "new"}; !equalIDs(ids(got), want) {
		t.Errorf("active: got %v, want %v", ids(got), want)
	}

	got, _ = s.ListTrades(ctx, TradeFilter{Since: t0})
	if want := []string{"new", "gone"}; !equalIDs(ids(got), want) {
		t.Errorf("since: got %v, want %v", ids(got), want)
	}
}

func TestMemoryStore_InsertTradesIsAtomic(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	existing := trade("x", t0, 1)
	_ = s.InsertTrade(ctx, &existing)

	err := s.InsertTrades(ctx, []model.Trade{trade("y", t0, 1), trade("x", t0, 1)})
	if !errors.Is(err, ErrDuplicateTrade) {
		t.Fatalf("expected ErrDuplicateTrade, got %v", err)
	}
	if _, err := s.GetTrade(ctx, "y"); !errors.Is(err, ErrTradeNotFound) {
		t.Error("batch with a duplicate should insert nothing")
	}

	err = s.InsertTrades(ctx, []model.Trade{trade("p", t0, 1), trade("p", t0, 1)})
	if !errors.Is(err, ErrDuplicateTrade) {
		t.Errorf("expected ErrDuplicateTrade within batch, got %v", err)
	}
}

func TestMemoryStore_ReverseTrade(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	tr := trade("r", t0, 2)
	_ = s.InsertTrade(ctx, &tr)

	reversed, err := s.ReverseTrade(ctx, "r")
	if err != nil {
		t.Fatal(err)
	}
	if reversed.Status != model.StatusReversed {
		t.Errorf("expected reversed status, got %s", reversed.Status)
	}

	if _, err := s.ReverseTrade(ctx, "r"); !errors.Is(err, ErrAlreadyReversed) {
		t.Errorf("expected ErrAlreadyReversed, got %v", err)
	}
	if _, err := s.ReverseTrade(ctx, "missing"); !errors.Is(err, ErrTradeNotFound) {
		t.Errorf("expected ErrTradeNotFound, got %v", err)
	}
}

func TestMemoryStore_SettingsDefaultUntilSaved(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	got, _ := s.GetSettings(ctx)
	if !got.TTFMultiplier.Equal(model.DefaultSettings().TTFMultiplier) {
		t.Errorf("expected default TTF multiplier, got %s", got.TTFMultiplier)
	}

	custom := model.DefaultSettings()
	custom.BrentFeeRate = decimal.RequireFromString("0.01")
	_ = s.SaveSettings(ctx, custom)

	got, _ = s.GetSettings(ctx)
	if !got.BrentFeeRate.Equal(custom.BrentFeeRate) {
		t.Errorf("expected saved fee rate, got %s", got.BrentFeeRate)
	}
}

func TestMemoryStore_UpsertMarkPrices(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	_ = s.UpsertMarkPrices(ctx, []model.MarkPrice{
		{Product: "TTF", Contract: "26Q4", Price: decimal.NewFromInt(30), UpdatedAt: t0},
		{Product: "Brent", Contract: "2605", Price: decimal.NewFromInt(80), UpdatedAt: t0},
	})
	_ = s.UpsertMarkPrices(ctx, []model.MarkPrice{
		{Product: "Brent", Contract: "2605", Price: decimal.NewFromInt(82), UpdatedAt: t0.Add(time.Hour)},
	})

	marks, _ := s.ListMarkPrices(ctx)
	if len(marks) != 2 {
		t.Fatalf("expected 2 marks, got %d", len(marks))
	}
	if marks[0].Key() != "Brent::2605" || !marks[0].Price.Equal(decimal.NewFromInt(82)) {
		t.Errorf("expected replaced Brent mark first, got %s = %s", marks[0].Key(), marks[0].Price)
	}
}
