package round

import (
	"time"

	"wekeza.org/internal/ids"
	"wekeza.org/internal/money"
)

// daysBetween returns calendar days from a to b in UTC, floored at
// zero. Time of day never changes the count: escrow days are a date
// difference, not an hour difference.
func daysBetween(a, b time.Time) int {
	d := int(utcMidnight(b).Sub(utcMidnight(a)) / (24 * time.Hour))
	if d < 0 {
		return 0
	}
	return d
}

func utcMidnight(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// BuildContributionSchedule generates every contribution row for an
// activating round: one row per cycle per member, due dates spaced one
// cycle apart starting at start date.
func BuildContributionSchedule(r Round, members []Membership) []Contribution {
	cycleDays := r.Frequency.CycleDays()
	out := make([]Contribution, 0, len(members)*r.TotalCycles())
	for _, m := range members {
		for cycle := 1; cycle <= r.TotalCycles(); cycle++ {
			out = append(out, Contribution{
				ID:              ids.New(),
				RoundID:         r.ID,
				MembershipID:    m.ID,
				MemberID:        m.MemberID,
				Amount:          r.ContributionAmount,
				CycleNumber:     cycle,
				DueDate:         r.StartDate.AddDate(0, 0, (cycle-1)*cycleDays),
				Status:          ContribPending,
				InterestAccrued: money.Zero,
			})
		}
	}
	return out
}

// BuildPayoutSchedule generates the payout rows for an activating
// round. Marathon rounds get one placeholder per member at end date,
// holding the projected amount until completion recalculates it from
// actual contributions. Rotational rounds pay one member per cycle, in
// payout-position order, each receiving the full cycle pool.
func BuildPayoutSchedule(r Round, members []Membership, projected map[string]ProjectedEarnings) []Payout {
	cycleDays := r.Frequency.CycleDays()
	out := make([]Payout, 0, len(members))
	for _, m := range members {
		switch r.PayoutModel {
		case Rotational:
			pool := r.ContributionAmount.Mul(decimalFromInt(r.MaxMembers))
			out = append(out, Payout{
				ID:              ids.New(),
				RoundID:         r.ID,
				MembershipID:    m.ID,
				MemberID:        m.MemberID,
				PayoutCycle:     m.PayoutPosition,
				Amount:          pool,
				PrincipalAmount: pool,
				InterestAmount:  money.Zero,
				ScheduledDate:   r.StartDate.AddDate(0, 0, m.PayoutPosition*cycleDays),
				Status:          PayoutScheduled,
			})
		default:
			proj := projected[m.ID]
			out = append(out, Payout{
				ID:              ids.New(),
				RoundID:         r.ID,
				MembershipID:    m.ID,
				MemberID:        m.MemberID,
				PayoutCycle:     r.TotalCycles(),
				Amount:          proj.Total,
				PrincipalAmount: proj.Principal,
				InterestAmount:  proj.NetInterest,
				ScheduledDate:   r.EndDate,
				Status:          PayoutScheduled,
			})
		}
	}
	return out
}
