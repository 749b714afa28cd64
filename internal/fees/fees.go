// Package fees maps a product to its contract multiplier and fee rate, and
// computes the landed-cost figure used in position reports.
//
// Every function takes the settings it needs as an argument. Nothing here
// holds state between calls.
package fees

import (
	"github.com/shopspring/decimal"

	"github.com/atmx/pnl-engine/internal/contract"
	"github.com/atmx/pnl-engine/internal/model"
)

var (
	// DefaultMultiplier applies to products missing from BaseMultipliers.
	DefaultMultiplier = decimal.NewFromInt(1000)

	// BaseMultipliers is the contract unit size per product. TTF is further
	// scaled by Settings.TTFMultiplier.
	BaseMultipliers = map[string]decimal.Decimal{
		contract.ProductBrent:    decimal.NewFromInt(1000),
		contract.ProductHenryHub: decimal.NewFromInt(10000),
		contract.ProductJKM:      decimal.NewFromInt(10000),
		contract.ProductTTF:      decimal.NewFromInt(10000),
	}

	two = decimal.NewFromInt(2)
)

// Multiplier returns the effective contract multiplier for a product. The
// saved TTFMultiplier is used as-is, so a zero makes TTF weightless.
func Multiplier(product string, s model.Settings) decimal.Decimal {
	base, ok := BaseMultipliers[product]
	if !ok {
		base = DefaultMultiplier
	}
	if product == contract.ProductTTF {
		return base.Mul(s.TTFMultiplier)
	}
	return base
}

// FeeRate returns the per-unit fee rate. Brent has its own rate; every other
// product shares SharedFeeRate. A zero-valued setting means no fee.
func FeeRate(product string, s model.Settings) decimal.Decimal {
	if product == contract.ProductBrent {
		return s.BrentFeeRate
	}
	return s.SharedFeeRate
}

// RoundTripFee is the double-sided fee charged when lots are closed.
func RoundTripFee(product string, qty decimal.Decimal, s model.Settings) decimal.Decimal {
	return qty.Abs().Mul(Multiplier(product, s)).Mul(two).Mul(FeeRate(product, s))
}

// HoldingFee is the single-sided fee still owed on open lots.
func HoldingFee(product string, qty decimal.Decimal, s model.Settings) decimal.Decimal {
	return qty.Abs().Mul(Multiplier(product, s)).Mul(FeeRate(product, s))
}

var (
	brentSlope    = decimal.RequireFromString("0.134")
	brentConst    = decimal.RequireFromString("0.46")
	henryHubSlope = decimal.RequireFromString("1.15")
	henryHubConst = decimal.RequireFromString("4.5")
	gjPerUnit     = decimal.RequireFromString("28.3")
)

// LandedCost converts an average price to a currency-converted landed cost.
// Only Brent and Henry Hub have a formula; other products return zero.
//
//	Brent:     (avg*0.134 + 0.46) * fx / 28.3
//	Henry Hub: (avg*1.15  + 4.5)  * fx / 28.3
func LandedCost(product string, avgPrice decimal.Decimal, s model.Settings) decimal.Decimal {
	var slope, constant decimal.Decimal
	switch product {
	case contract.ProductBrent:
		slope, constant = brentSlope, brentConst
	case contract.ProductHenryHub:
		slope, constant = henryHubSlope, henryHubConst
	default:
		return decimal.Zero
	}
	return avgPrice.Mul(slope).Add(constant).Mul(s.FXRate).Div(gjPerUnit)
}
