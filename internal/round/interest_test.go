package round

import (
	"testing"
	"time"

	"wekeza.org/internal/config"
)

func TestProjectEarningsMonthlyMarathon(t *testing.T) {
	r := Round{
		ContributionAmount: dec("1000.00"),
		Frequency:          Monthly,
		MaxMembers:         3,
		InterestRate:       dec("12.00"),
		PayoutModel:        Marathon,
	}
	rates := config.RateSnapshot{TaxRate: dec("15.00")}

	got := ProjectEarnings(r, rates)
	// Cycles held 90, 60 and 30 days: 180 escrow days on 1000.00 at
	// 12%/365 daily.
	if !got.Principal.Equal(dec("3000.00")) {
		t.Fatalf("principal = %s, want 3000.00", got.Principal)
	}
	if !got.GrossInterest.Equal(dec("59.18")) {
		t.Fatalf("gross = %s, want 59.18", got.GrossInterest)
	}
	if !got.Tax.Equal(dec("8.88")) {
		t.Fatalf("tax = %s, want 8.88", got.Tax)
	}
	if !got.NetInterest.Equal(dec("50.30")) {
		t.Fatalf("net = %s, want 50.30", got.NetInterest)
	}
	if !got.Total.Equal(dec("3050.30")) {
		t.Fatalf("total = %s, want 3050.30", got.Total)
	}
}

func TestActualEarningsIgnoresUncompleted(t *testing.T) {
	rates := config.RateSnapshot{TaxRate: dec("15.00")}
	paid := time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC)
	cs := []Contribution{
		{Amount: dec("1000.00"), Status: ContribCompleted, PaymentDate: &paid, InterestAccrued: dec("29.589041")},
		{Amount: dec("1000.00"), Status: ContribMissed},
		{Amount: dec("1000.00"), Status: ContribPending},
	}
	got := ActualEarnings(cs, rates)
	if !got.Principal.Equal(dec("1000.00")) {
		t.Fatalf("principal = %s, want only the completed cycle", got.Principal)
	}
	if !got.Total.Equal(dec("1025.15")) {
		t.Fatalf("total = %s, want 1025.15", got.Total)
	}
}

func TestActualEarningsAllMissedIsZero(t *testing.T) {
	rates := config.RateSnapshot{TaxRate: dec("15.00")}
	cs := []Contribution{
		{Amount: dec("1000.00"), Status: ContribMissed},
		{Amount: dec("1000.00"), Status: ContribMissed},
	}
	got := ActualEarnings(cs, rates)
	if !got.Principal.IsZero() || !got.GrossInterest.IsZero() || !got.Total.IsZero() {
		t.Fatalf("earnings = %s/%s/%s, want all zero", got.Principal, got.GrossInterest, got.Total)
	}
}

func TestAccrueContributionUsesPaymentDate(t *testing.T) {
	due := time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC)
	paidLate := due.AddDate(0, 0, 10)
	c := Contribution{
		Amount:      dec("1000.00"),
		Status:      ContribCompleted,
		DueDate:     due,
		PaymentDate: &paidLate,
	}
	asOf := due.AddDate(0, 0, 40)
	AccrueContribution(&c, dec("12.00"), asOf)
	// Paid ten days late: capital was held 30 days, not 40.
	if c.DaysInEscrow != 30 {
		t.Fatalf("days in escrow = %d, want 30 from the payment date", c.DaysInEscrow)
	}

	pending := Contribution{Amount: dec("1000.00"), Status: ContribPending, DueDate: due}
	AccrueContribution(&pending, dec("12.00"), asOf)
	if !pending.InterestAccrued.IsZero() {
		t.Fatalf("pending contribution accrued %s", pending.InterestAccrued)
	}
}

func TestAccrueContributionCountsCalendarDays(t *testing.T) {
	paid := time.Date(2025, 1, 2, 6, 0, 0, 0, time.UTC)
	c := Contribution{Amount: dec("1000.00"), Status: ContribCompleted, PaymentDate: &paid}
	// Reconciled at midnight 90 calendar days on: a 06:00 payment time
	// must not shave a day off the escrow count.
	asOf := time.Date(2025, 4, 2, 0, 0, 0, 0, time.UTC)
	AccrueContribution(&c, dec("12.00"), asOf)
	if c.DaysInEscrow != 90 {
		t.Fatalf("days in escrow = %d, want 90 regardless of time of day", c.DaysInEscrow)
	}
}

func TestAccrueContributionBeforePayment(t *testing.T) {
	paid := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	c := Contribution{Amount: dec("1000.00"), Status: ContribCompleted, PaymentDate: &paid}
	AccrueContribution(&c, dec("12.00"), paid.AddDate(0, 0, -5))
	if c.DaysInEscrow != 0 || !c.InterestAccrued.IsZero() {
		t.Fatalf("accrual before payment date = %d days, %s", c.DaysInEscrow, c.InterestAccrued)
	}
}

func TestComputeTrustScore(t *testing.T) {
	cases := []struct {
		name string
		p    Profile
		want int
	}{
		{"no history", Profile{}, DefaultTrustScore},
		{"perfect record", Profile{TotalContributions: 10, CompletedRounds: 2}, 100},
		{"some misses", Profile{TotalContributions: 10, MissedContributions: 2, CompletedRounds: 1}, 72},
		{"all missed", Profile{TotalContributions: 5, MissedContributions: 5}, 0},
		{"rounds only", Profile{CompletedRounds: 3}, 6},
	}
	for _, tc := range cases {
		if got := ComputeTrustScore(tc.p); got != tc.want {
			t.Errorf("%s: score = %d, want %d", tc.name, got, tc.want)
		}
	}
}
