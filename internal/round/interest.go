package round

import (
	"time"

	"github.com/shopspring/decimal"

	"wekeza.org/internal/config"
	"wekeza.org/internal/money"
)

func decimalFromInt(n int) decimal.Decimal {
	return decimal.NewFromInt(int64(n))
}

// ProjectedEarnings is the user-facing pre-completion estimate. It
// assumes the full theoretical schedule is followed exactly.
type ProjectedEarnings struct {
	Principal     decimal.Decimal `json:"principal"`
	GrossInterest decimal.Decimal `json:"gross_interest"`
	Tax           decimal.Decimal `json:"tax"`
	NetInterest   decimal.Decimal `json:"net_interest"`
	Total         decimal.Decimal `json:"total"`
}

// ProjectEarnings computes one member's projected marathon earnings:
// the last contribution is held one cycle (end date is one full cycle
// after the last due date), the first is held longest. Intermediate
// values keep full precision; only the reported figures are rounded.
func ProjectEarnings(r Round, rates config.RateSnapshot) ProjectedEarnings {
	cycleDays := r.Frequency.CycleDays()
	totalCycles := r.TotalCycles()

	gross := money.Zero
	for cycle := 1; cycle <= totalCycles; cycle++ {
		daysHeld := (totalCycles - cycle + 1) * cycleDays
		gross = gross.Add(money.SimpleInterest(r.ContributionAmount, r.InterestRate, daysHeld))
	}
	tax := money.TaxOn(gross, rates.TaxRate)
	net := gross.Sub(tax)
	principal := r.ContributionAmount.Mul(decimalFromInt(totalCycles))
	return ProjectedEarnings{
		Principal:     money.Round(principal),
		GrossInterest: money.Round(gross),
		Tax:           money.Round(tax),
		NetInterest:   money.Round(net),
		Total:         money.Round(principal.Add(net)),
	}
}

// AccrueContribution recomputes a completed contribution's escrow days
// and accrued interest as of the given date. Days count from the actual
// payment date, not the due date, since that is when the capital was
// really held. Interest keeps full precision until payout reporting.
func AccrueContribution(c *Contribution, annualRate decimal.Decimal, asOf time.Time) {
	if c.Status != ContribCompleted || c.PaymentDate == nil {
		return
	}
	days := daysBetween(*c.PaymentDate, asOf)
	c.DaysInEscrow = days
	c.InterestAccrued = money.SimpleInterest(c.Amount, annualRate, days)
}

// ActualEarnings is the authoritative reconciliation at completion:
// only contributions actually marked completed count, each with its
// real payment date. A member with zero completed contributions earns
// exactly zero, never the projection.
func ActualEarnings(contributions []Contribution, rates config.RateSnapshot) ProjectedEarnings {
	principal := money.Zero
	gross := money.Zero
	for _, c := range contributions {
		if c.Status != ContribCompleted {
			continue
		}
		principal = principal.Add(c.Amount)
		gross = gross.Add(c.InterestAccrued)
	}
	tax := money.TaxOn(gross, rates.TaxRate)
	net := gross.Sub(tax)
	return ProjectedEarnings{
		Principal:     money.Round(principal),
		GrossInterest: money.Round(gross),
		Tax:           money.Round(tax),
		NetInterest:   money.Round(net),
		Total:         money.Round(principal.Add(net)),
	}
}
