package round

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"wekeza.org/internal/config"
	"wekeza.org/internal/ids"
	"wekeza.org/internal/kyc"
	"wekeza.org/internal/ledger"
	"wekeza.org/internal/money"
	"wekeza.org/internal/notify"
)

// Service drives the round lifecycle: membership, activation,
// contribution processing, interest accrual, payouts and completion.
type Service struct {
	store    Store
	wallet   ledger.Service
	rates    func() config.RateSnapshot
	notifier notify.Notifier
	verifier kyc.Verifier
	now      func() time.Time
}

func NewService(store Store, wallet ledger.Service, rates func() config.RateSnapshot, notifier notify.Notifier, verifier kyc.Verifier) *Service {
	return &Service{
		store:    store,
		wallet:   wallet,
		rates:    rates,
		notifier: notifier,
		verifier: verifier,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the service clock. Test use only.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// CreateInput describes a new round.
type CreateInput struct {
	Name               string
	CreatorID          string
	Type               Type
	PayoutModel        PayoutModel
	ContributionAmount decimal.Decimal
	Frequency          Frequency
	MaxMembers         int
	InterestRate       decimal.Decimal
	MinTrustScore      int
}

var minContribution = decimal.NewFromInt(100)

// CreateRound validates and persists a round in the open state, then
// joins the creator as its first member.
func (s *Service) CreateRound(ctx context.Context, in CreateInput) (Round, error) {
	if err := s.verifier.IsVerified(ctx, in.CreatorID); err != nil {
		return Round{}, err
	}
	rates := s.rates()
	if in.ContributionAmount.LessThan(minContribution) {
		return Round{}, fmt.Errorf("%w: contribution amount must be at least %s", ErrValidation, minContribution)
	}
	if in.MaxMembers < 2 || in.MaxMembers > 100 {
		return Round{}, fmt.Errorf("%w: max members must be between 2 and 100", ErrValidation)
	}
	if in.Frequency.CycleDays() == 0 {
		return Round{}, fmt.Errorf("%w: unknown frequency %q", ErrValidation, in.Frequency)
	}
	if in.Type == TypePublic && in.PayoutModel != Marathon {
		return Round{}, fmt.Errorf("%w: public rounds must use the marathon payout model", ErrValidation)
	}
	if in.PayoutModel == Rotational && !rates.RotationalModelEnabled {
		return Round{}, fmt.Errorf("%w: rotational rounds are currently disabled", ErrValidation)
	}
	rate := in.InterestRate
	if rate.Sign() <= 0 {
		rate = rates.DefaultInterestRate
	}

	now := s.now()
	r := Round{
		ID:                 ids.New(),
		Name:               in.Name,
		CreatorID:          in.CreatorID,
		Type:               in.Type,
		PayoutModel:        in.PayoutModel,
		ContributionAmount: in.ContributionAmount,
		Frequency:          in.Frequency,
		MaxMembers:         in.MaxMembers,
		InterestRate:       rate,
		MinTrustScore:      in.MinTrustScore,
		Status:             StatusOpen,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if err := s.store.CreateRound(ctx, r); err != nil {
		return Round{}, err
	}
	if _, err := s.JoinRound(ctx, r.ID, in.CreatorID); err != nil {
		return Round{}, err
	}
	return s.store.GetRound(ctx, r.ID)
}

// JoinRound admits a member into an open round, reserving exactly one
// contribution up front. The round auto-starts the instant the last
// seat fills.
func (s *Service) JoinRound(ctx context.Context, roundID, memberID string) (Membership, error) {
	if err := s.verifier.IsVerified(ctx, memberID); err != nil {
		return Membership{}, err
	}
	r, err := s.store.GetRound(ctx, roundID)
	if err != nil {
		return Membership{}, err
	}
	if r.Status != StatusDraft && r.Status != StatusOpen {
		return Membership{}, ErrNotJoinable
	}
	if r.CurrentMembers >= r.MaxMembers {
		return Membership{}, ErrRoundFull
	}
	if _, err := s.store.GetMembershipByMember(ctx, roundID, memberID); err == nil {
		return Membership{}, ErrAlreadyJoined
	}
	profile, err := s.store.GetProfile(ctx, memberID)
	if err != nil {
		return Membership{}, err
	}
	if profile.TrustScore < r.MinTrustScore {
		return Membership{}, ErrTrustTooLow
	}

	res, err := s.wallet.ReserveContribution(ctx, memberID, r.ContributionAmount, r.ID)
	if err != nil {
		return Membership{}, err
	}

	m := Membership{
		ID:               ids.New(),
		RoundID:          r.ID,
		MemberID:         memberID,
		TrustScoreAtJoin: profile.TrustScore,
		Status:           MemberActive,
		TotalContributed: money.Zero,
		InterestEarned:   money.Zero,
		LockedAmount:     res.Lock.Amount,
		PayoutAmount:     money.Zero,
		JoinedAt:         s.now(),
	}
	if r.PayoutModel == Rotational {
		m.PayoutPosition = r.CurrentMembers + 1
	}
	if err := s.store.CreateMembership(ctx, m); err != nil {
		return Membership{}, err
	}

	r.CurrentMembers++
	r.UpdatedAt = s.now()
	if err := s.store.UpdateRound(ctx, r); err != nil {
		return Membership{}, err
	}

	s.notifier.Notify(ctx, notify.Notification{
		MemberID: memberID,
		Title:    "Joined savings round",
		Message:  fmt.Sprintf("You joined %s. One contribution of %s has been reserved.", r.Name, r.ContributionAmount.StringFixed(2)),
		Category: notify.CategoryRound,
	})

	if r.CurrentMembers == r.MaxMembers {
		if err := s.activate(ctx, r); err != nil {
			return Membership{}, err
		}
	}
	return m, nil
}

// StartRound activates a round manually. At least two members must
// have joined; remaining seats are forfeited.
func (s *Service) StartRound(ctx context.Context, roundID string) (Round, error) {
	r, err := s.store.GetRound(ctx, roundID)
	if err != nil {
		return Round{}, err
	}
	if r.Status != StatusDraft && r.Status != StatusOpen {
		return Round{}, ErrNotJoinable
	}
	if r.CurrentMembers < 2 {
		return Round{}, ErrNotEnough
	}
	if err := s.activate(ctx, r); err != nil {
		return Round{}, err
	}
	return s.store.GetRound(ctx, roundID)
}

// activate flips a round to active: start date is tomorrow, end date
// sits one full cycle after the last contribution so the final payment
// still earns interest. All contribution and payout rows are generated
// up front from the frozen schedule.
func (s *Service) activate(ctx context.Context, r Round) error {
	members, err := s.store.ListMemberships(ctx, r.ID)
	if err != nil {
		return err
	}

	now := s.now()
	start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC).AddDate(0, 0, 1)
	r.StartDate = start
	r.EndDate = start.AddDate(0, 0, r.TotalCycles()*r.Frequency.CycleDays())
	r.Status = StatusActive
	r.UpdatedAt = now

	if err := s.store.CreateContributions(ctx, BuildContributionSchedule(r, members)); err != nil {
		return err
	}

	rates := s.rates()
	projected := make(map[string]ProjectedEarnings, len(members))
	if r.PayoutModel == Marathon {
		proj := ProjectEarnings(r, rates)
		for _, m := range members {
			projected[m.ID] = proj
		}
	}
	if err := s.store.CreatePayouts(ctx, BuildPayoutSchedule(r, members, projected)); err != nil {
		return err
	}
	if err := s.store.UpdateRound(ctx, r); err != nil {
		return err
	}

	for _, m := range members {
		s.notifier.Notify(ctx, notify.Notification{
			MemberID: m.MemberID,
			Title:    "Round started",
			Message:  fmt.Sprintf("%s starts on %s.", r.Name, r.StartDate.Format("2006-01-02")),
			Category: notify.CategoryRound,
		})
	}
	return nil
}

// ProcessContribution pays one pending contribution from the member's
// reserved MGR funds, then makes a best-effort reservation for the
// next cycle. Safe to retry: the wallet call is idempotency-keyed on
// the contribution.
func (s *Service) ProcessContribution(ctx context.Context, contributionID string) (Contribution, error) {
	c, err := s.store.GetContribution(ctx, contributionID)
	if err != nil {
		return Contribution{}, err
	}
	if c.Status == ContribCompleted {
		return c, nil
	}
	if c.Status != ContribPending && c.Status != ContribFailed {
		return Contribution{}, fmt.Errorf("%w: contribution is %s", ErrValidation, c.Status)
	}
	r, err := s.store.GetRound(ctx, c.RoundID)
	if err != nil {
		return Contribution{}, err
	}
	if r.Status != StatusActive {
		return Contribution{}, ErrNotActive
	}
	m, err := s.store.GetMembership(ctx, c.MembershipID)
	if err != nil {
		return Contribution{}, err
	}

	in := ledger.MutationInput{
		OwnerID:        c.MemberID,
		Domain:         ledger.DomainMGR,
		Amount:         c.Amount,
		Type:           ledger.TypeContribution,
		Description:    fmt.Sprintf("contribution cycle %d, round %s", c.CycleNumber, r.Name),
		IdempotencyKey: "contribution-" + c.ID,
		RelatedApp:     "rounds",
		RelatedID:      c.ID,
	}
	tx, err := s.wallet.SpendLocked(ctx, in)
	if errors.Is(err, ledger.ErrInsufficientBalance) {
		// Reservation was never made or was unlocked; fall back to
		// spendable funds.
		tx, err = s.wallet.DeductFunds(ctx, in)
	}
	if err != nil {
		if errors.Is(err, ledger.ErrInsufficientBalance) {
			c.Status = ContribFailed
			if uerr := s.store.UpdateContribution(ctx, c); uerr != nil {
				return Contribution{}, uerr
			}
		}
		return Contribution{}, err
	}

	now := s.now()
	c.Status = ContribCompleted
	c.PaymentDate = &now
	c.TransactionID = tx.ID
	if err := s.store.UpdateContribution(ctx, c); err != nil {
		return Contribution{}, err
	}

	m.TotalContributed = m.TotalContributed.Add(c.Amount)
	m.ContributionsMade++
	m.LockedAmount = m.LockedAmount.Sub(c.Amount)
	if m.LockedAmount.IsNegative() {
		m.LockedAmount = money.Zero
	}
	if err := s.store.UpdateMembership(ctx, m); err != nil {
		return Contribution{}, err
	}

	profile, err := s.store.GetProfile(ctx, c.MemberID)
	if err == nil {
		profile.TotalContributions++
		profile.TrustScore = ComputeTrustScore(profile)
		_ = s.store.UpdateProfile(ctx, profile)
	}

	s.reserveNext(ctx, r, m, c.CycleNumber)

	s.notifier.Notify(ctx, notify.Notification{
		MemberID: c.MemberID,
		Title:    "Contribution received",
		Message:  fmt.Sprintf("Cycle %d contribution of %s to %s completed.", c.CycleNumber, c.Amount.StringFixed(2), r.Name),
		Category: notify.CategoryRound,
	})
	return c, nil
}

// reserveNext locks funds for the following cycle if one exists. Best
// effort: a failed reservation surfaces at the next due date instead.
func (s *Service) reserveNext(ctx context.Context, r Round, m Membership, paidCycle int) {
	if paidCycle >= r.TotalCycles() {
		return
	}
	res, err := s.wallet.ReserveContribution(ctx, m.MemberID, r.ContributionAmount, r.ID)
	if err != nil {
		return
	}
	m.LockedAmount = m.LockedAmount.Add(res.Lock.Amount)
	_ = s.store.UpdateMembership(ctx, m)
}

// MarkOverdueMissed flips contributions still unpaid after their due
// day to missed and applies the trust penalty. A contribution due
// today is not yet overdue; failed payment attempts count as unpaid.
func (s *Service) MarkOverdueMissed(ctx context.Context, asOf time.Time) (int, error) {
	dayStart := time.Date(asOf.Year(), asOf.Month(), asOf.Day(), 0, 0, 0, 0, time.UTC)
	var unpaid []Contribution
	for _, status := range []ContributionStatus{ContribPending, ContribFailed} {
		cs, err := s.store.ListContributions(ctx, ContributionFilter{Status: status, DueBefore: &dayStart})
		if err != nil {
			return 0, err
		}
		unpaid = append(unpaid, cs...)
	}
	missed := 0
	for _, c := range unpaid {
		c.Status = ContribMissed
		if err := s.store.UpdateContribution(ctx, c); err != nil {
			continue
		}
		missed++

		if m, err := s.store.GetMembership(ctx, c.MembershipID); err == nil {
			m.ContributionsMissed++
			_ = s.store.UpdateMembership(ctx, m)
		}
		if p, err := s.store.GetProfile(ctx, c.MemberID); err == nil {
			p.TotalContributions++
			p.MissedContributions++
			p.TrustScore = ComputeTrustScore(p)
			_ = s.store.UpdateProfile(ctx, p)
		}
		s.notifier.Notify(ctx, notify.Notification{
			MemberID: c.MemberID,
			Title:    "Contribution missed",
			Message:  fmt.Sprintf("Cycle %d contribution was not paid by %s.", c.CycleNumber, c.DueDate.Format("2006-01-02")),
			Category: notify.CategoryRound,
		})
	}
	return missed, nil
}

// AccrueInterest recomputes escrow days and accrued interest for every
// completed contribution in active rounds, as of the given date.
func (s *Service) AccrueInterest(ctx context.Context, asOf time.Time) error {
	rounds, err := s.store.ListRounds(ctx, StatusActive, 0)
	if err != nil {
		return err
	}
	for _, r := range rounds {
		if err := s.accrueRound(ctx, r, asOf); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) accrueRound(ctx context.Context, r Round, asOf time.Time) error {
	completed, err := s.store.ListContributions(ctx, ContributionFilter{RoundID: r.ID, Status: ContribCompleted})
	if err != nil {
		return err
	}
	byMembership := make(map[string]decimal.Decimal)
	for _, c := range completed {
		AccrueContribution(&c, r.InterestRate, asOf)
		if err := s.store.UpdateContribution(ctx, c); err != nil {
			return err
		}
		byMembership[c.MembershipID] = byMembership[c.MembershipID].Add(c.InterestAccrued)
	}
	for membershipID, gross := range byMembership {
		m, err := s.store.GetMembership(ctx, membershipID)
		if err != nil {
			continue
		}
		m.InterestEarned = gross
		_ = s.store.UpdateMembership(ctx, m)
	}
	return nil
}

// CompleteRound closes out an exhausted round: marathon payouts are
// recalculated from actual contributions, due payouts are processed,
// residual locks released, the completion snapshot frozen, and member
// records credited. Re-running after a crash is safe: an existing
// snapshot short-circuits, and each payout is checked by status.
func (s *Service) CompleteRound(ctx context.Context, roundID string, asOf time.Time) error {
	r, err := s.store.GetRound(ctx, roundID)
	if err != nil {
		return err
	}
	if r.Status == StatusCompleted {
		return nil
	}
	if r.Status != StatusActive {
		return ErrNotActive
	}
	if _, err := s.store.GetCompletionStats(ctx, roundID); err == nil {
		return nil
	}

	// Rates are captured once and used for the whole completion.
	rates := s.rates()
	if err := s.accrueRound(ctx, r, asOf); err != nil {
		return err
	}

	members, err := s.store.ListMemberships(ctx, roundID)
	if err != nil {
		return err
	}
	payouts, err := s.store.ListPayouts(ctx, roundID)
	if err != nil {
		return err
	}
	payoutByMembership := make(map[string]Payout, len(payouts))
	for _, p := range payouts {
		payoutByMembership[p.MembershipID] = p
	}

	actualTotal := money.Zero
	grossTotal := money.Zero
	contributionsMade := 0
	for _, m := range members {
		contributions, err := s.store.ListContributions(ctx, ContributionFilter{MembershipID: m.ID})
		if err != nil {
			return err
		}
		earned := ActualEarnings(contributions, rates)
		actualTotal = actualTotal.Add(earned.Principal)
		grossTotal = grossTotal.Add(earned.GrossInterest)
		for _, c := range contributions {
			if c.Status == ContribCompleted {
				contributionsMade++
			}
		}

		if r.PayoutModel == Marathon {
			p, ok := payoutByMembership[m.ID]
			if !ok {
				return fmt.Errorf("round %s: payout row missing for membership %s", roundID, m.ID)
			}
			if p.Status == PayoutScheduled {
				p.Amount = earned.Total
				p.PrincipalAmount = earned.Principal
				p.InterestAmount = earned.NetInterest
				if err := s.store.UpdatePayout(ctx, p); err != nil {
					return err
				}
			}
		}
	}

	for _, p := range payouts {
		refreshed, err := s.store.GetPayout(ctx, p.ID)
		if err != nil {
			return err
		}
		if refreshed.Status != PayoutScheduled {
			continue
		}
		if err := s.processPayout(ctx, r, refreshed); err != nil {
			return err
		}
	}

	for _, m := range members {
		if m.LockedAmount.IsPositive() {
			if _, err := s.wallet.UnlockFunds(ctx, m.MemberID, ledger.DomainMGR, m.LockedAmount, "round completed, releasing reservation"); err == nil {
				m.LockedAmount = money.Zero
			}
		}
		m.Status = MemberCompleted
		if err := s.store.UpdateMembership(ctx, m); err != nil {
			return err
		}
		if p, err := s.store.GetProfile(ctx, m.MemberID); err == nil {
			p.CompletedRounds++
			p.TrustScore = ComputeTrustScore(p)
			_ = s.store.UpdateProfile(ctx, p)
		}
	}

	tax := money.TaxOn(grossTotal, rates.TaxRate)
	expected := r.ContributionAmount.Mul(decimalFromInt(r.TotalCycles())).Mul(decimalFromInt(len(members)))
	stats := CompletionStats{
		RoundID:            roundID,
		ExpectedTotal:      money.Round(expected),
		ActualTotal:        money.Round(actualTotal),
		GrossInterest:      money.Round(grossTotal),
		TaxAmount:          money.Round(tax),
		NetInterest:        money.Round(grossTotal.Sub(tax)),
		InterestRate:       r.InterestRate,
		TaxRate:            rates.TaxRate,
		MembersCount:       len(members),
		ContributionsMade:  contributionsMade,
		ContributionsTotal: r.TotalCycles() * len(members),
		CompletedAt:        s.now(),
	}
	if err := s.store.CreateCompletionStats(ctx, stats); err != nil && !errors.Is(err, ErrValidation) {
		return err
	}

	r.Status = StatusCompleted
	r.UpdatedAt = s.now()
	return s.store.UpdateRound(ctx, r)
}

// processPayout credits one member's MGR wallet. Zero-amount payouts
// (a member who contributed nothing) complete without a wallet credit.
func (s *Service) processPayout(ctx context.Context, r Round, p Payout) error {
	p.Status = PayoutProcessing
	if err := s.store.UpdatePayout(ctx, p); err != nil {
		return err
	}

	if p.Amount.IsPositive() {
		tx, err := s.wallet.AddFunds(ctx, ledger.MutationInput{
			OwnerID:        p.MemberID,
			Domain:         ledger.DomainMGR,
			Amount:         p.Amount,
			Type:           ledger.TypePayout,
			Description:    fmt.Sprintf("payout for round %s", r.Name),
			IdempotencyKey: "payout-" + p.ID,
			RelatedApp:     "rounds",
			RelatedID:      p.ID,
		})
		if err != nil {
			p.Status = PayoutFailed
			_ = s.store.UpdatePayout(ctx, p)
			return err
		}
		p.TransactionID = tx.ID
	}

	p.Status = PayoutCompleted
	if err := s.store.UpdatePayout(ctx, p); err != nil {
		return err
	}

	if m, err := s.store.GetMembership(ctx, p.MembershipID); err == nil {
		m.HasReceivedPayout = true
		m.PayoutAmount = p.Amount
		_ = s.store.UpdateMembership(ctx, m)
	}
	s.notifier.Notify(ctx, notify.Notification{
		MemberID: p.MemberID,
		Title:    "Payout processed",
		Message:  fmt.Sprintf("You received %s from %s.", p.Amount.StringFixed(2), r.Name),
		Category: notify.CategoryRound,
	})
	return nil
}

// ProcessDuePayouts pays rotational payouts whose scheduled date has
// arrived in active rounds.
func (s *Service) ProcessDuePayouts(ctx context.Context, asOf time.Time) (int, error) {
	due, err := s.store.ListDuePayouts(ctx, asOf)
	if err != nil {
		return 0, err
	}
	processed := 0
	for _, p := range due {
		r, err := s.store.GetRound(ctx, p.RoundID)
		if err != nil || r.Status != StatusActive || r.PayoutModel != Rotational {
			continue
		}
		if err := s.processPayout(ctx, r, p); err != nil {
			continue
		}
		processed++
	}
	return processed, nil
}

// CancelRound releases every member's reservation and removes the
// memberships. No payouts are generated.
func (s *Service) CancelRound(ctx context.Context, roundID string) error {
	r, err := s.store.GetRound(ctx, roundID)
	if err != nil {
		return err
	}
	if r.Status == StatusCompleted || r.Status == StatusCancelled {
		return fmt.Errorf("%w: round is %s", ErrValidation, r.Status)
	}
	members, err := s.store.ListMemberships(ctx, roundID)
	if err != nil {
		return err
	}
	for _, m := range members {
		if m.LockedAmount.IsPositive() {
			if _, err := s.wallet.UnlockFunds(ctx, m.MemberID, ledger.DomainMGR, m.LockedAmount, "round cancelled"); err == nil {
				m.LockedAmount = money.Zero
			}
		}
		m.Status = MemberRemoved
		if err := s.store.UpdateMembership(ctx, m); err != nil {
			return err
		}
		s.notifier.Notify(ctx, notify.Notification{
			MemberID: m.MemberID,
			Title:    "Round cancelled",
			Message:  fmt.Sprintf("%s was cancelled and your reserved funds were released.", r.Name),
			Category: notify.CategoryRound,
		})
	}
	r.Status = StatusCancelled
	r.UpdatedAt = s.now()
	return s.store.UpdateRound(ctx, r)
}

// CompleteExhaustedRounds finds active rounds whose end date has
// passed and completes them.
func (s *Service) CompleteExhaustedRounds(ctx context.Context, asOf time.Time) (int, error) {
	rounds, err := s.store.ListRounds(ctx, StatusActive, 0)
	if err != nil {
		return 0, err
	}
	completed := 0
	for _, r := range rounds {
		if r.EndDate.After(asOf) {
			continue
		}
		if err := s.CompleteRound(ctx, r.ID, asOf); err != nil {
			continue
		}
		completed++
	}
	return completed, nil
}

// Project returns the user-facing projected earnings for one member of
// a marathon round.
func (s *Service) Project(ctx context.Context, roundID string) (ProjectedEarnings, error) {
	r, err := s.store.GetRound(ctx, roundID)
	if err != nil {
		return ProjectedEarnings{}, err
	}
	return ProjectEarnings(r, s.rates()), nil
}

// GetRound exposes a round for handlers.
func (s *Service) GetRound(ctx context.Context, roundID string) (Round, error) {
	return s.store.GetRound(ctx, roundID)
}

// ListOpenRounds lists joinable public rounds.
func (s *Service) ListOpenRounds(ctx context.Context, limit int) ([]Round, error) {
	rounds, err := s.store.ListRounds(ctx, StatusOpen, limit)
	if err != nil {
		return nil, err
	}
	out := rounds[:0]
	for _, r := range rounds {
		if r.Type == TypePublic {
			out = append(out, r)
		}
	}
	return out, nil
}

// GetCompletionStats exposes the frozen snapshot for reporting.
func (s *Service) GetCompletionStats(ctx context.Context, roundID string) (CompletionStats, error) {
	return s.store.GetCompletionStats(ctx, roundID)
}

// RemindUpcoming notifies members whose next contribution falls due
// within one day. Best effort, like all notifications.
func (s *Service) RemindUpcoming(ctx context.Context, asOf time.Time) (int, error) {
	cutoff := asOf.AddDate(0, 0, 2)
	pending, err := s.store.ListContributions(ctx, ContributionFilter{Status: ContribPending, DueBefore: &cutoff})
	if err != nil {
		return 0, err
	}
	sent := 0
	for _, c := range pending {
		if c.DueDate.Before(asOf) {
			continue
		}
		s.notifier.Notify(ctx, notify.Notification{
			MemberID: c.MemberID,
			Title:    "Contribution due soon",
			Message:  fmt.Sprintf("Cycle %d contribution of %s is due on %s.", c.CycleNumber, c.Amount.StringFixed(2), c.DueDate.Format("2006-01-02")),
			Category: notify.CategoryRound,
		})
		sent++
	}
	return sent, nil
}

// DueContributions lists contributions due on or before the given day.
func (s *Service) DueContributions(ctx context.Context, asOf time.Time) ([]Contribution, error) {
	cutoff := asOf.AddDate(0, 0, 1)
	return s.store.ListContributions(ctx, ContributionFilter{Status: ContribPending, DueBefore: &cutoff})
}
