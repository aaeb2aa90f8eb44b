package money

import (
	"github.com/shopspring/decimal"

	"github.com/tringuyen-psa/shopify-shop-sub001/internal/model"
)

// All amounts between calculation and the payment processor are integer
// cents. Decimal conversion happens only at the API/display edge, through
// the helpers here.

var hundred = decimal.NewFromInt(100)

// ToCents converts a decimal dollar amount to integer cents, rounding half
// away from zero once. No arithmetic may happen on the float side of this
// boundary.
func ToCents(dollars decimal.Decimal) int64 {
	return dollars.Mul(hundred).Round(0).IntPart()
}

// FromCents renders integer cents as a two-place decimal dollar amount.
func FromCents(cents int64) decimal.Decimal {
	return decimal.New(cents, -2)
}

// ParseDollars parses a decimal-dollar string (as stored in decimal columns
// or sent by clients) into cents.
func ParseDollars(s string) (int64, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, err
	}
	return ToCents(d), nil
}

// PriceForCycle returns the unit price in cents for the given billing cycle:
// the cycle-specific price when set, otherwise the base price. One-time
// purchases always use the base price.
func PriceForCycle(p *model.Product, cycle string) int64 {
	switch cycle {
	case model.CycleWeekly:
		if p.WeeklyPriceCents != nil {
			return *p.WeeklyPriceCents
		}
	case model.CycleMonthly:
		if p.MonthlyPriceCents != nil {
			return *p.MonthlyPriceCents
		}
	case model.CycleYearly:
		if p.YearlyPriceCents != nil {
			return *p.YearlyPriceCents
		}
	}
	return p.BasePriceCents
}

// PlatformFee computes round(amount * percent / 100) in cents.
func PlatformFee(amountCents int64, feePercent float64) int64 {
	return decimal.NewFromInt(amountCents).
		Mul(decimal.NewFromFloat(feePercent)).
		Div(hundred).
		Round(0).
		IntPart()
}

// Split divides a total into (platformFee, shopRevenue). Revenue is derived
// by subtraction so fee + revenue == total exactly, whatever the rounding
// of the fee.
func Split(totalCents int64, feePercent float64) (feeCents, revenueCents int64) {
	feeCents = PlatformFee(totalCents, feePercent)
	return feeCents, totalCents - feeCents
}
