package reconcile

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/atmx/pnl-engine/internal/model"
)

func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

func TestSummarize_DefaultAdjustments(t *testing.T) {
	sum := Summarize(d(250000), d(-12000), model.DefaultSettings())

	// 250000 - 12000 - 156170 - 45800
	assert.True(t, d(36030).Equal(sum.NetValue), "got %s", sum.NetValue)
	assert.True(t, d(156170).Equal(sum.ReconciliationBase))
	assert.True(t, d(45800).Equal(sum.ReconciliationOther))
}

func TestSummarize_ZeroAdjustments(t *testing.T) {
	sum := Summarize(d(10), d(5), model.Settings{})
	assert.True(t, d(15).Equal(sum.NetValue), "got %s", sum.NetValue)
}

func TestCheck_Tolerance(t *testing.T) {
	sum := Summarize(d(1000), decimal.Zero, model.Settings{})

	tests := []struct {
		statement float64
		wantMatch bool
	}{
		{1000, true},
		{1000.99, true},
		{999.01, true},
		{1001, false},
		{999, false},
		{1500, false},
	}
	for _, tt := range tests {
		res := Check(sum, d(tt.statement))
		assert.Equal(t, tt.wantMatch, res.IsMatch, "statement %v", tt.statement)
		assert.True(t, d(tt.statement).Sub(d(1000)).Equal(res.Diff), "diff for %v", tt.statement)
	}
}

func TestCheck_CarriesSummary(t *testing.T) {
	sum := Summarize(d(300000), d(1000), model.DefaultSettings())
	res := Check(sum, d(99030))

	assert.True(t, res.IsMatch)
	assert.True(t, res.Diff.IsZero())
	assert.True(t, d(99030).Equal(res.NetValue))
	assert.True(t, d(300000).Equal(res.RealizedTotal))
}
