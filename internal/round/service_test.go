package round

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"wekeza.org/internal/config"
	"wekeza.org/internal/kyc"
	"wekeza.org/internal/ledger"
	"wekeza.org/internal/notify"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

type fixture struct {
	svc    *Service
	store  *MemoryStore
	wallet *ledger.InMemory
	now    time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:  NewMemoryStore(),
		wallet: ledger.NewInMemory(),
		now:    time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC),
	}
	rates := func() config.RateSnapshot {
		return config.RateSnapshot{
			DefaultInterestRate:    dec("12.00"),
			TaxRate:                dec("15.00"),
			RotationalModelEnabled: true,
			TakenAt:                f.now,
		}
	}
	f.svc = NewService(f.store, f.wallet, rates, notify.Noop{}, kyc.AllowAll{}).
		WithClock(func() time.Time { return f.now })
	return f
}

func (f *fixture) fund(t *testing.T, memberID, amount string) {
	t.Helper()
	_, err := f.wallet.AddFunds(context.Background(), ledger.MutationInput{
		OwnerID: memberID, Domain: ledger.DomainMain, Amount: dec(amount),
	})
	if err != nil {
		t.Fatalf("fund %s: %v", memberID, err)
	}
}

func (f *fixture) createMarathon(t *testing.T, maxMembers int) Round {
	t.Helper()
	f.fund(t, "creator", "10000.00")
	r, err := f.svc.CreateRound(context.Background(), CreateInput{
		Name:               "office circle",
		CreatorID:          "creator",
		Type:               TypePublic,
		PayoutModel:        Marathon,
		ContributionAmount: dec("1000.00"),
		Frequency:          Monthly,
		MaxMembers:         maxMembers,
	})
	if err != nil {
		t.Fatalf("CreateRound: %v", err)
	}
	return r
}

func (f *fixture) payCycle(t *testing.T, membershipID string, cycle int) Contribution {
	t.Helper()
	ctx := context.Background()
	cs, err := f.store.ListContributions(ctx, ContributionFilter{MembershipID: membershipID})
	if err != nil {
		t.Fatalf("ListContributions: %v", err)
	}
	for _, c := range cs {
		if c.CycleNumber != cycle {
			continue
		}
		f.now = c.DueDate
		paid, err := f.svc.ProcessContribution(ctx, c.ID)
		if err != nil {
			t.Fatalf("ProcessContribution cycle %d: %v", cycle, err)
		}
		return paid
	}
	t.Fatalf("cycle %d not found for membership %s", cycle, membershipID)
	return Contribution{}
}

func TestCreateRoundValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.fund(t, "creator", "5000.00")

	cases := []struct {
		name string
		in   CreateInput
	}{
		{"contribution below floor", CreateInput{
			CreatorID: "creator", Type: TypePrivate, PayoutModel: Marathon,
			ContributionAmount: dec("50.00"), Frequency: Weekly, MaxMembers: 3,
		}},
		{"single seat", CreateInput{
			CreatorID: "creator", Type: TypePrivate, PayoutModel: Marathon,
			ContributionAmount: dec("500.00"), Frequency: Weekly, MaxMembers: 1,
		}},
		{"public rotational", CreateInput{
			CreatorID: "creator", Type: TypePublic, PayoutModel: Rotational,
			ContributionAmount: dec("500.00"), Frequency: Weekly, MaxMembers: 3,
		}},
		{"unknown frequency", CreateInput{
			CreatorID: "creator", Type: TypePrivate, PayoutModel: Marathon,
			ContributionAmount: dec("500.00"), Frequency: "daily", MaxMembers: 3,
		}},
	}
	for _, tc := range cases {
		if _, err := f.svc.CreateRound(ctx, tc.in); !errors.Is(err, ErrValidation) {
			t.Errorf("%s: expected validation error, got %v", tc.name, err)
		}
	}
}

func TestJoinReservesOneContribution(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	r := f.createMarathon(t, 3)

	f.fund(t, "bob", "2500.00")
	m, err := f.svc.JoinRound(ctx, r.ID, "bob")
	if err != nil {
		t.Fatalf("JoinRound: %v", err)
	}
	if !m.LockedAmount.Equal(dec("1000.00")) {
		t.Fatalf("locked = %s, want exactly one contribution", m.LockedAmount)
	}
	mgr, err := f.wallet.GetAccount(ctx, "bob", ledger.DomainMGR)
	if err != nil {
		t.Fatalf("GetAccount: %v", err)
	}
	if !mgr.Locked.Equal(dec("1000.00")) {
		t.Fatalf("mgr locked = %s, want 1000.00", mgr.Locked)
	}

	if _, err := f.svc.JoinRound(ctx, r.ID, "bob"); !errors.Is(err, ErrAlreadyJoined) {
		t.Fatalf("expected already-joined, got %v", err)
	}
}

func TestJoinRejectsLowTrust(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.fund(t, "creator", "5000.00")
	r, err := f.svc.CreateRound(ctx, CreateInput{
		Name: "strict", CreatorID: "creator", Type: TypePrivate, PayoutModel: Marathon,
		ContributionAmount: dec("1000.00"), Frequency: Monthly, MaxMembers: 3,
		MinTrustScore: 60,
	})
	if err == nil {
		t.Fatalf("expected creator below min trust to be rejected, got round %s", r.ID)
	}
	if !errors.Is(err, ErrTrustTooLow) {
		t.Fatalf("expected trust error, got %v", err)
	}
}

func TestAutoStartWhenFull(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	r := f.createMarathon(t, 3)

	f.fund(t, "bob", "2000.00")
	f.fund(t, "carol", "2000.00")
	if _, err := f.svc.JoinRound(ctx, r.ID, "bob"); err != nil {
		t.Fatalf("join bob: %v", err)
	}
	mid, err := f.svc.GetRound(ctx, r.ID)
	if err != nil {
		t.Fatalf("GetRound: %v", err)
	}
	if mid.Status != StatusOpen {
		t.Fatalf("status = %s before last seat, want open", mid.Status)
	}
	if _, err := f.svc.JoinRound(ctx, r.ID, "carol"); err != nil {
		t.Fatalf("join carol: %v", err)
	}

	got, _ := f.svc.GetRound(ctx, r.ID)
	if got.Status != StatusActive {
		t.Fatalf("status = %s after last seat, want active", got.Status)
	}
	wantStart := time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC)
	if !got.StartDate.Equal(wantStart) {
		t.Fatalf("start = %s, want next day %s", got.StartDate, wantStart)
	}
	if !got.EndDate.Equal(wantStart.AddDate(0, 0, 90)) {
		t.Fatalf("end = %s, want start + 90 days", got.EndDate)
	}

	cs, _ := f.store.ListContributions(ctx, ContributionFilter{RoundID: r.ID})
	if len(cs) != 9 {
		t.Fatalf("expected 9 contribution rows (3 members x 3 cycles), got %d", len(cs))
	}
	ps, _ := f.store.ListPayouts(ctx, r.ID)
	if len(ps) != 3 {
		t.Fatalf("expected 3 payout placeholders, got %d", len(ps))
	}
}

func TestManualStartNeedsTwoMembers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	r := f.createMarathon(t, 5)

	if _, err := f.svc.StartRound(ctx, r.ID); !errors.Is(err, ErrNotEnough) {
		t.Fatalf("expected too-few-members error, got %v", err)
	}

	f.fund(t, "bob", "2000.00")
	if _, err := f.svc.JoinRound(ctx, r.ID, "bob"); err != nil {
		t.Fatalf("join bob: %v", err)
	}
	started, err := f.svc.StartRound(ctx, r.ID)
	if err != nil {
		t.Fatalf("StartRound: %v", err)
	}
	if started.Status != StatusActive {
		t.Fatalf("status = %s, want active", started.Status)
	}
}

// Full marathon reconciliation: three members, 1000.00 monthly over
// three cycles at 12% annual. One member pays every cycle on its due
// date, one pays only the first, one pays nothing.
func TestMarathonCompletionReconciliation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	r := f.createMarathon(t, 3)
	f.fund(t, "bob", "1500.00")
	f.fund(t, "carol", "1000.00")
	if _, err := f.svc.JoinRound(ctx, r.ID, "bob"); err != nil {
		t.Fatalf("join bob: %v", err)
	}
	if _, err := f.svc.JoinRound(ctx, r.ID, "carol"); err != nil {
		t.Fatalf("join carol: %v", err)
	}
	active, _ := f.svc.GetRound(ctx, r.ID)

	creatorM, _ := f.store.GetMembershipByMember(ctx, r.ID, "creator")
	bobM, _ := f.store.GetMembershipByMember(ctx, r.ID, "bob")

	// Creator pays all three cycles exactly on schedule.
	for cycle := 1; cycle <= 3; cycle++ {
		f.payCycle(t, creatorM.ID, cycle)
	}
	// Bob pays only the first.
	f.payCycle(t, bobM.ID, 1)
	// Carol pays nothing.

	f.now = active.EndDate.AddDate(0, 0, 1)
	if _, err := f.svc.MarkOverdueMissed(ctx, f.now); err != nil {
		t.Fatalf("MarkOverdueMissed: %v", err)
	}
	if err := f.svc.CompleteRound(ctx, r.ID, active.EndDate); err != nil {
		t.Fatalf("CompleteRound: %v", err)
	}

	// Creator: cycles held 90, 60 and 30 days. 180 total days at
	// 12%/365 daily on 1000.00 gives 59.18 gross interest.
	ps, _ := f.store.ListPayouts(ctx, r.ID)
	byMember := make(map[string]Payout)
	for _, p := range ps {
		byMember[p.MemberID] = p
	}

	creatorPayout := byMember["creator"]
	if !creatorPayout.PrincipalAmount.Equal(dec("3000.00")) {
		t.Fatalf("creator principal = %s, want 3000.00", creatorPayout.PrincipalAmount)
	}
	if !creatorPayout.InterestAmount.Equal(dec("50.30")) {
		t.Fatalf("creator net interest = %s, want 50.30", creatorPayout.InterestAmount)
	}
	if !creatorPayout.Amount.Equal(dec("3050.30")) {
		t.Fatalf("creator payout = %s, want 3050.30", creatorPayout.Amount)
	}
	if creatorPayout.Status != PayoutCompleted {
		t.Fatalf("creator payout status = %s", creatorPayout.Status)
	}

	// Carol contributed nothing: the recalculation must zero the
	// placeholder, not pay the projection.
	carolPayout := byMember["carol"]
	if !carolPayout.Amount.IsZero() || !carolPayout.PrincipalAmount.IsZero() || !carolPayout.InterestAmount.IsZero() {
		t.Fatalf("carol payout = %s/%s/%s, want all zero",
			carolPayout.Amount, carolPayout.PrincipalAmount, carolPayout.InterestAmount)
	}
	if carolPayout.Status != PayoutCompleted {
		t.Fatalf("carol payout status = %s", carolPayout.Status)
	}

	// Bob held one contribution for the full 90 days.
	bobPayout := byMember["bob"]
	if !bobPayout.Amount.Equal(dec("1025.15")) {
		t.Fatalf("bob payout = %s, want 1025.15", bobPayout.Amount)
	}

	stats, err := f.store.GetCompletionStats(ctx, r.ID)
	if err != nil {
		t.Fatalf("GetCompletionStats: %v", err)
	}
	if !stats.ExpectedTotal.Equal(dec("9000.00")) {
		t.Fatalf("expected total = %s, want 9000.00", stats.ExpectedTotal)
	}
	if !stats.ActualTotal.Equal(dec("4000.00")) {
		t.Fatalf("actual total = %s, want 4000.00", stats.ActualTotal)
	}
	if stats.ContributionsMade != 4 || stats.ContributionsTotal != 9 {
		t.Fatalf("contributions = %d/%d, want 4/9", stats.ContributionsMade, stats.ContributionsTotal)
	}
	if !stats.TaxRate.Equal(dec("15.00")) || !stats.InterestRate.Equal(dec("12.00")) {
		t.Fatalf("frozen rates = %s/%s", stats.InterestRate, stats.TaxRate)
	}

	got, _ := f.svc.GetRound(ctx, r.ID)
	if got.Status != StatusCompleted {
		t.Fatalf("round status = %s, want completed", got.Status)
	}

	// Carol's joining reservation must have been released.
	carolMGR, _ := f.wallet.GetAccount(ctx, "carol", ledger.DomainMGR)
	if !carolMGR.Locked.IsZero() {
		t.Fatalf("carol still has %s locked after completion", carolMGR.Locked)
	}
}

func TestCompleteRoundRerunSafe(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	r := f.createMarathon(t, 3)
	f.fund(t, "bob", "1500.00")
	f.fund(t, "carol", "1500.00")
	f.svc.JoinRound(ctx, r.ID, "bob")
	f.svc.JoinRound(ctx, r.ID, "carol")
	active, _ := f.svc.GetRound(ctx, r.ID)

	bobM, _ := f.store.GetMembershipByMember(ctx, r.ID, "bob")
	f.payCycle(t, bobM.ID, 1)

	f.now = active.EndDate
	if err := f.svc.CompleteRound(ctx, r.ID, f.now); err != nil {
		t.Fatalf("CompleteRound: %v", err)
	}
	before, _ := f.wallet.GetAccount(ctx, "bob", ledger.DomainMGR)

	if err := f.svc.CompleteRound(ctx, r.ID, f.now); err != nil {
		t.Fatalf("CompleteRound rerun: %v", err)
	}
	after, _ := f.wallet.GetAccount(ctx, "bob", ledger.DomainMGR)
	if !before.Balance.Equal(after.Balance) {
		t.Fatalf("rerun changed bob's balance: %s -> %s", before.Balance, after.Balance)
	}
}

func TestCancelReleasesReservations(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	r := f.createMarathon(t, 3)
	f.fund(t, "bob", "2000.00")
	if _, err := f.svc.JoinRound(ctx, r.ID, "bob"); err != nil {
		t.Fatalf("join bob: %v", err)
	}

	if err := f.svc.CancelRound(ctx, r.ID); err != nil {
		t.Fatalf("CancelRound: %v", err)
	}
	got, _ := f.svc.GetRound(ctx, r.ID)
	if got.Status != StatusCancelled {
		t.Fatalf("status = %s, want cancelled", got.Status)
	}
	mgr, _ := f.wallet.GetAccount(ctx, "bob", ledger.DomainMGR)
	if !mgr.Locked.IsZero() {
		t.Fatalf("bob still has %s locked after cancellation", mgr.Locked)
	}
	m, _ := f.store.GetMembershipByMember(ctx, r.ID, "bob")
	if m.Status != MemberRemoved {
		t.Fatalf("membership status = %s, want removed", m.Status)
	}
	ps, _ := f.store.ListPayouts(ctx, r.ID)
	if len(ps) != 0 {
		t.Fatalf("cancelled round generated %d payouts", len(ps))
	}
}

func TestMissedContributionLowersTrust(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	r := f.createMarathon(t, 3)
	f.fund(t, "bob", "1500.00")
	f.fund(t, "carol", "1500.00")
	f.svc.JoinRound(ctx, r.ID, "bob")
	f.svc.JoinRound(ctx, r.ID, "carol")
	active, _ := f.svc.GetRound(ctx, r.ID)

	f.now = active.EndDate.AddDate(0, 0, 1)
	missed, err := f.svc.MarkOverdueMissed(ctx, f.now)
	if err != nil {
		t.Fatalf("MarkOverdueMissed: %v", err)
	}
	if missed != 9 {
		t.Fatalf("missed = %d, want all 9", missed)
	}
	p, _ := f.store.GetProfile(ctx, "bob")
	if p.TrustScore != 0 {
		t.Fatalf("trust = %d after missing every cycle, want 0", p.TrustScore)
	}
}

func TestRotationalPayoutSchedule(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.fund(t, "creator", "2000.00")
	r, err := f.svc.CreateRound(ctx, CreateInput{
		Name: "rotating pair", CreatorID: "creator", Type: TypePrivate, PayoutModel: Rotational,
		ContributionAmount: dec("500.00"), Frequency: Weekly, MaxMembers: 2,
	})
	if err != nil {
		t.Fatalf("CreateRound: %v", err)
	}
	f.fund(t, "bob", "2000.00")
	if _, err := f.svc.JoinRound(ctx, r.ID, "bob"); err != nil {
		t.Fatalf("join bob: %v", err)
	}
	active, _ := f.svc.GetRound(ctx, r.ID)
	if active.Status != StatusActive {
		t.Fatalf("status = %s, want active (two seats filled)", active.Status)
	}

	ps, _ := f.store.ListPayouts(ctx, r.ID)
	if len(ps) != 2 {
		t.Fatalf("expected 2 rotational payouts, got %d", len(ps))
	}
	if !ps[0].Amount.Equal(dec("1000.00")) {
		t.Fatalf("cycle pool = %s, want contribution x members", ps[0].Amount)
	}
	if !ps[0].ScheduledDate.Equal(active.StartDate.AddDate(0, 0, 7)) {
		t.Fatalf("first payout at %s, want end of first cycle", ps[0].ScheduledDate)
	}

	// Only the first payout is due at the end of cycle one.
	f.now = active.StartDate.AddDate(0, 0, 7)
	n, err := f.svc.ProcessDuePayouts(ctx, f.now)
	if err != nil {
		t.Fatalf("ProcessDuePayouts: %v", err)
	}
	if n != 1 {
		t.Fatalf("processed = %d, want 1", n)
	}
	first, _ := f.store.GetPayout(ctx, ps[0].ID)
	if first.Status != PayoutCompleted {
		t.Fatalf("first payout status = %s", first.Status)
	}
	second, _ := f.store.GetPayout(ctx, ps[1].ID)
	if second.Status != PayoutScheduled {
		t.Fatalf("second payout status = %s, want still scheduled", second.Status)
	}
}
