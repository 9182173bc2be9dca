// Package money holds the fixed-point arithmetic conventions shared by the
// ledger and the interest engine. All monetary values are shopspring decimals;
// floats never enter a calculation. Intermediate values keep full precision,
// rounding to two fractional digits happens only at reporting boundaries.
package money

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Places is the number of fractional digits at reporting boundaries.
const Places = 2

var (
	// Zero is the canonical zero amount.
	Zero = decimal.Zero

	daysPerYear = decimal.NewFromInt(365)
	hundred     = decimal.NewFromInt(100)
)

// ErrInvalidAmount indicates a non-positive or malformed amount.
var ErrInvalidAmount = errors.New("invalid amount (must be > 0)")

// ValidatePositive rejects zero and negative amounts.
func ValidatePositive(amount decimal.Decimal) error {
	if amount.Sign() <= 0 {
		return fmt.Errorf("%w: got %s", ErrInvalidAmount, amount.String())
	}
	return nil
}

// Round snaps an amount to the reporting precision (half-up).
func Round(amount decimal.Decimal) decimal.Decimal {
	return amount.Round(Places)
}

// DailyRate converts an annual percentage rate into a simple daily rate:
// annual / 365 / 100. The result keeps full precision; callers round the
// final interest figure, never the rate.
func DailyRate(annualPercent decimal.Decimal) decimal.Decimal {
	return annualPercent.Div(daysPerYear).Div(hundred)
}

// SimpleInterest computes principal * DailyRate(annualPercent) * days without
// boundary rounding.
func SimpleInterest(principal, annualPercent decimal.Decimal, days int) decimal.Decimal {
	if days <= 0 {
		return decimal.Zero
	}
	return principal.Mul(DailyRate(annualPercent)).Mul(decimal.NewFromInt(int64(days)))
}

// TaxOn computes the withholding tax on an interest figure at the given
// percentage rate. Tax applies to interest only, never to principal.
func TaxOn(interest, taxPercent decimal.Decimal) decimal.Decimal {
	if interest.Sign() <= 0 {
		return decimal.Zero
	}
	return interest.Mul(taxPercent.Div(hundred))
}

// Parse converts a decimal string into an amount, rejecting garbage early so
// handlers can surface a clean validation error.
func Parse(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	return d, nil
}
