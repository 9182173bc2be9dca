package goal

import (
	"context"
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

// Service manages savings goals: deposits from the main wallet,
// daily interest accrual and after-tax withdrawal back to it.
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

// CreateInput describes a new goal.
type CreateInput struct {
	OwnerID      string
	Name         string
	Kind         Kind
	Category     Category
	TargetAmount decimal.Decimal
	AnnualRate   decimal.Decimal
	EndDate      *time.Time
}

// Create validates and persists a goal. Fixed goals must carry an end
// date; the annual rate falls back to the configured default.
func (s *Service) Create(ctx context.Context, in CreateInput) (Goal, error) {
	if err := s.verifier.IsVerified(ctx, in.OwnerID); err != nil {
		return Goal{}, err
	}
	if in.Kind != Regular && in.Kind != Fixed {
		return Goal{}, fmt.Errorf("%w: unknown goal kind %q", ErrValidation, in.Kind)
	}
	if in.Kind == Fixed && in.EndDate == nil {
		return Goal{}, fmt.Errorf("%w: fixed goals require an end date", ErrValidation)
	}
	if !in.TargetAmount.IsPositive() {
		return Goal{}, fmt.Errorf("%w: target amount must be positive", ErrValidation)
	}
	category := in.Category
	if category == "" {
		category = Personal
	}
	rate := in.AnnualRate
	if rate.Sign() <= 0 {
		rate = s.rates().DefaultInterestRate
	}

	now := s.now()
	g := Goal{
		ID:           ids.New(),
		OwnerID:      in.OwnerID,
		Name:         in.Name,
		Kind:         in.Kind,
		Category:     category,
		TargetAmount: in.TargetAmount,
		Balance:      money.Zero,
		AnnualRate:   rate,
		StartDate:    now,
		EndDate:      in.EndDate,
		LastAccrual:  now,
		Active:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.store.Create(ctx, g); err != nil {
		return Goal{}, err
	}
	if category == Group {
		if err := s.store.AddMember(ctx, Member{
			GoalID: g.ID, MemberID: in.OwnerID, Contributed: money.Zero, JoinedAt: now,
		}); err != nil {
			return Goal{}, err
		}
	}
	return g, nil
}

// CreateExpress opens a short fixed-term saving and funds it in one
// step. The deposit itself is the target.
func (s *Service) CreateExpress(ctx context.Context, ownerID string, amount decimal.Decimal, days int) (Goal, error) {
	if days <= 0 {
		return Goal{}, fmt.Errorf("%w: express term must be positive", ErrValidation)
	}
	end := s.now().AddDate(0, 0, days)
	g, err := s.Create(ctx, CreateInput{
		OwnerID:      ownerID,
		Name:         fmt.Sprintf("express %d-day saving", days),
		Kind:         Fixed,
		Category:     Express,
		TargetAmount: amount,
		EndDate:      &end,
	})
	if err != nil {
		return Goal{}, err
	}
	return s.Deposit(ctx, g.ID, ownerID, amount)
}

// JoinGroup adds a member to a group goal.
func (s *Service) JoinGroup(ctx context.Context, goalID, memberID string) error {
	if err := s.verifier.IsVerified(ctx, memberID); err != nil {
		return err
	}
	g, err := s.store.Get(ctx, goalID)
	if err != nil {
		return err
	}
	if g.Category != Group {
		return fmt.Errorf("%w: not a group goal", ErrValidation)
	}
	if !g.Active {
		return ErrInactive
	}
	if _, err := s.store.GetMember(ctx, goalID, memberID); err == nil {
		return fmt.Errorf("%w: already a member", ErrValidation)
	}
	return s.store.AddMember(ctx, Member{
		GoalID: goalID, MemberID: memberID, Contributed: money.Zero, JoinedAt: s.now(),
	})
}

// Deposit moves funds from the depositor's main wallet into the goal
// ledger and credits the goal balance.
func (s *Service) Deposit(ctx context.Context, goalID, memberID string, amount decimal.Decimal) (Goal, error) {
	if !amount.IsPositive() {
		return Goal{}, ledger.ErrInvalidAmount
	}
	g, err := s.store.Get(ctx, goalID)
	if err != nil {
		return Goal{}, err
	}
	if !g.Active {
		return Goal{}, ErrInactive
	}
	if g.Category == Group {
		if _, err := s.store.GetMember(ctx, goalID, memberID); err != nil {
			return Goal{}, fmt.Errorf("%w: not a member of this group goal", ErrValidation)
		}
	} else if memberID != g.OwnerID {
		return Goal{}, ErrNotFound
	}

	if _, err := s.wallet.Transfer(ctx, ledger.TransferInput{
		OwnerID:     memberID,
		FromDomain:  ledger.DomainMain,
		ToDomain:    ledger.DomainGoal,
		Amount:      amount,
		Description: fmt.Sprintf("deposit to goal %s", g.Name),
		RelatedApp:  "goals",
		RelatedID:   g.ID,
	}); err != nil {
		return Goal{}, err
	}

	g.Balance = g.Balance.Add(amount)
	g.UpdatedAt = s.now()
	if err := s.store.Update(ctx, g); err != nil {
		return Goal{}, err
	}
	if g.Category == Group {
		if m, err := s.store.GetMember(ctx, goalID, memberID); err == nil {
			m.Contributed = m.Contributed.Add(amount)
			_ = s.store.UpdateMember(ctx, m)
		}
	}
	if g.TargetAmount.IsPositive() && g.Balance.GreaterThanOrEqual(g.TargetAmount) {
		s.notifier.Notify(ctx, notify.Notification{
			MemberID: g.OwnerID,
			Title:    "Goal target reached",
			Message:  fmt.Sprintf("%s has reached its target of %s.", g.Name, g.TargetAmount.StringFixed(2)),
			Category: notify.CategoryGoal,
		})
	}
	return g, nil
}

// AccrueInterest advances every active goal's simple daily interest to
// the given date. Accrued interest lives on the goal until withdrawal
// credits it through the ledger.
func (s *Service) AccrueInterest(ctx context.Context, asOf time.Time) error {
	goals, err := s.store.ListActive(ctx)
	if err != nil {
		return err
	}
	for _, g := range goals {
		days := int(asOf.Sub(g.LastAccrual).Hours() / 24)
		if days <= 0 {
			continue
		}
		g.InterestAccrued = g.InterestAccrued.Add(money.SimpleInterest(g.Balance, g.AnnualRate, days))
		g.LastAccrual = g.LastAccrual.AddDate(0, 0, days)
		g.UpdatedAt = s.now()
		if err := s.store.Update(ctx, g); err != nil {
			return err
		}
	}
	return nil
}

// WithdrawalResult reports what a withdrawal paid out.
type WithdrawalResult struct {
	Goal        Goal            `json:"goal"`
	Principal   decimal.Decimal `json:"principal"`
	NetInterest decimal.Decimal `json:"net_interest"`
	Tax         decimal.Decimal `json:"tax"`
	Total       decimal.Decimal `json:"total"`
}

// Withdraw closes out a goal: interest is brought current, tax is
// withheld on interest only, and principal plus net interest is routed
// back to the owner's main wallet. The goal balance is zeroed and the
// goal deactivated.
func (s *Service) Withdraw(ctx context.Context, goalID, ownerID string) (WithdrawalResult, error) {
	if err := s.verifier.IsVerified(ctx, ownerID); err != nil {
		return WithdrawalResult{}, err
	}
	g, err := s.store.Get(ctx, goalID)
	if err != nil {
		return WithdrawalResult{}, err
	}
	if g.OwnerID != ownerID {
		return WithdrawalResult{}, ErrNotFound
	}
	if !g.Active {
		return WithdrawalResult{}, ErrInactive
	}
	now := s.now()
	if !g.CanWithdraw(now) {
		return WithdrawalResult{}, ErrNotWithdrawable
	}

	if days := int(now.Sub(g.LastAccrual).Hours() / 24); days > 0 {
		g.InterestAccrued = g.InterestAccrued.Add(money.SimpleInterest(g.Balance, g.AnnualRate, days))
		g.LastAccrual = g.LastAccrual.AddDate(0, 0, days)
	}

	rates := s.rates()
	gross := g.InterestAccrued
	tax := money.TaxOn(gross, rates.TaxRate)
	net := money.Round(gross.Sub(tax))
	principal := g.Balance

	if net.IsPositive() {
		if _, err := s.wallet.AddFunds(ctx, ledger.MutationInput{
			OwnerID:        ownerID,
			Domain:         ledger.DomainGoal,
			Amount:         net,
			Type:           ledger.TypeInterest,
			Description:    fmt.Sprintf("net interest on goal %s", g.Name),
			IdempotencyKey: "goal-interest-" + g.ID,
			RelatedApp:     "goals",
			RelatedID:      g.ID,
		}); err != nil {
			return WithdrawalResult{}, err
		}
	}

	total := principal.Add(net)
	if total.IsPositive() {
		if _, err := s.wallet.Transfer(ctx, ledger.TransferInput{
			OwnerID:        ownerID,
			FromDomain:     ledger.DomainGoal,
			ToDomain:       ledger.DomainMain,
			Amount:         total,
			Description:    fmt.Sprintf("withdrawal from goal %s", g.Name),
			IdempotencyKey: "goal-withdrawal-" + g.ID,
			RelatedApp:     "goals",
			RelatedID:      g.ID,
		}); err != nil {
			return WithdrawalResult{}, err
		}
	}

	g.Balance = money.Zero
	g.InterestAccrued = money.Zero
	g.Active = false
	g.UpdatedAt = now
	if err := s.store.Update(ctx, g); err != nil {
		return WithdrawalResult{}, err
	}

	s.notifier.Notify(ctx, notify.Notification{
		MemberID: ownerID,
		Title:    "Goal withdrawn",
		Message:  fmt.Sprintf("%s paid out %s to your main wallet.", g.Name, total.StringFixed(2)),
		Category: notify.CategoryGoal,
	})
	return WithdrawalResult{
		Goal:        g,
		Principal:   money.Round(principal),
		NetInterest: net,
		Tax:         money.Round(tax),
		Total:       money.Round(total),
	}, nil
}

// Get exposes a goal for handlers.
func (s *Service) Get(ctx context.Context, goalID string) (Goal, error) {
	return s.store.Get(ctx, goalID)
}

// ListByOwner lists a member's goals.
func (s *Service) ListByOwner(ctx context.Context, ownerID string) ([]Goal, error) {
	return s.store.ListByOwner(ctx, ownerID)
}
