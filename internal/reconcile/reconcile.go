// Package reconcile compares the book's net value against an external
// statement.
package reconcile

import (
	"github.com/shopspring/decimal"

	"github.com/atmx/pnl-engine/internal/model"
)

// MatchTolerance is the absolute difference, in native currency units, below
// which a statement matches the book.
var MatchTolerance = decimal.NewFromInt(1)

// Summary is the book side of a reconciliation.
type Summary struct {
	RealizedTotal       decimal.Decimal `json:"realized_total"`
	FloatingTotal       decimal.Decimal `json:"floating_total"`
	ReconciliationBase  decimal.Decimal `json:"reconciliation_base"`
	ReconciliationOther decimal.Decimal `json:"reconciliation_other"`
	NetValue            decimal.Decimal `json:"net_value"`
}

// Result is a summary checked against a statement value.
type Result struct {
	Summary
	StatementValue decimal.Decimal `json:"statement_value"`
	Diff           decimal.Decimal `json:"diff"`
	IsMatch        bool            `json:"is_match"`
}

// Summarize computes realized + floating - base - other.
func Summarize(realized, floating decimal.Decimal, s model.Settings) Summary {
	return Summary{
		RealizedTotal:       realized,
		FloatingTotal:       floating,
		ReconciliationBase:  s.ReconciliationBase,
		ReconciliationOther: s.ReconciliationOther,
		NetValue:            realized.Add(floating).Sub(s.ReconciliationBase).Sub(s.ReconciliationOther),
	}
}

// Check compares a statement value to the summary's net value.
func Check(sum Summary, statement decimal.Decimal) Result {
	diff := statement.Sub(sum.NetValue)
	return Result{
		Summary:        sum,
		StatementValue: statement,
		Diff:           diff,
		IsMatch:        diff.Abs().LessThan(MatchTolerance),
	}
}
