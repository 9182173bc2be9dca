package goal

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// Kind picks the withdrawal rule for a goal.
type Kind string

const (
	// Regular goals are withdrawable at any time.
	Regular Kind = "regular"
	// Fixed goals unlock once the end date passes or the target is
	// reached, whichever comes first.
	Fixed Kind = "fixed"
)

// Category separates the savings products sharing this engine.
type Category string

const (
	Personal Category = "personal"
	Group    Category = "group"
	Express  Category = "express"
)

// Goal is one savings target with its own balance.
type Goal struct {
	ID              string          `json:"id"`
	OwnerID         string          `json:"owner_id"`
	Name            string          `json:"name"`
	Kind            Kind            `json:"kind"`
	Category        Category        `json:"category"`
	TargetAmount    decimal.Decimal `json:"target_amount"`
	Balance         decimal.Decimal `json:"balance"`
	InterestAccrued decimal.Decimal `json:"interest_accrued"`
	AnnualRate      decimal.Decimal `json:"annual_rate"`
	StartDate       time.Time       `json:"start_date"`
	EndDate         *time.Time      `json:"end_date,omitempty"`
	LastAccrual     time.Time       `json:"last_accrual"`
	Active          bool            `json:"active"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// CanWithdraw applies the type-dependent eligibility rule. For fixed
// goals it is a logical OR: an unexpired end date does not block a
// goal whose target has been reached.
func (g Goal) CanWithdraw(asOf time.Time) bool {
	if !g.Active {
		return false
	}
	if g.Kind == Regular {
		return true
	}
	if g.EndDate != nil && !asOf.Before(*g.EndDate) {
		return true
	}
	return g.TargetAmount.IsPositive() && g.Balance.GreaterThanOrEqual(g.TargetAmount)
}

// Member is one participant in a group goal.
type Member struct {
	GoalID      string          `json:"goal_id"`
	MemberID    string          `json:"member_id"`
	Contributed decimal.Decimal `json:"contributed"`
	JoinedAt    time.Time       `json:"joined_at"`
}

var (
	ErrNotFound        = errors.New("goal: not found")
	ErrValidation      = errors.New("goal: validation failed")
	ErrNotWithdrawable = errors.New("goal: not yet withdrawable")
	ErrInactive        = errors.New("goal: inactive")
)
