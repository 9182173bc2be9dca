package round

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// Type controls who may discover and join a round.
type Type string

const (
	TypePublic  Type = "public"
	TypePrivate Type = "private"
)

// PayoutModel selects how members are paid.
type PayoutModel string

const (
	// Marathon pays every member together at completion.
	Marathon PayoutModel = "marathon"
	// Rotational pays one member per cycle, turn-based. Private only.
	Rotational PayoutModel = "rotational"
)

// Frequency is the contribution cadence.
type Frequency string

const (
	Weekly   Frequency = "weekly"
	Biweekly Frequency = "biweekly"
	Monthly  Frequency = "monthly"
)

// CycleDays returns the length of one contribution cycle.
func (f Frequency) CycleDays() int {
	switch f {
	case Weekly:
		return 7
	case Biweekly:
		return 14
	case Monthly:
		return 30
	}
	return 0
}

// Status is the round lifecycle state.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusOpen      Status = "open"
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

// Round is one savings circle.
type Round struct {
	ID                 string          `json:"id"`
	Name               string          `json:"name"`
	CreatorID          string          `json:"creator_id"`
	Type               Type            `json:"round_type"`
	PayoutModel        PayoutModel     `json:"payout_model"`
	ContributionAmount decimal.Decimal `json:"contribution_amount"`
	Frequency          Frequency       `json:"frequency"`
	MaxMembers         int             `json:"max_members"`
	CurrentMembers     int             `json:"current_members"`
	InterestRate       decimal.Decimal `json:"interest_rate"` // annual percent
	MinTrustScore      int             `json:"min_trust_score"`
	Status             Status          `json:"status"`
	StartDate          time.Time       `json:"start_date,omitempty"`
	EndDate            time.Time       `json:"end_date,omitempty"`
	CreatedAt          time.Time       `json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"`
}

// TotalCycles is one contribution cycle per seat.
func (r Round) TotalCycles() int {
	return r.MaxMembers
}

// MembershipStatus tracks one member's standing in a round.
type MembershipStatus string

const (
	MemberPending   MembershipStatus = "pending"
	MemberActive    MembershipStatus = "active"
	MemberDefaulted MembershipStatus = "defaulted"
	MemberCompleted MembershipStatus = "completed"
	MemberRemoved   MembershipStatus = "removed"
)

// Membership is a member's participation in one round. LockedAmount is
// the just-in-time reservation for the next due contribution only,
// never the full round commitment.
type Membership struct {
	ID                  string           `json:"id"`
	RoundID             string           `json:"round_id"`
	MemberID            string           `json:"member_id"`
	PayoutPosition      int              `json:"payout_position,omitempty"` // rotational only
	TrustScoreAtJoin    int              `json:"trust_score_at_join"`
	Status              MembershipStatus `json:"status"`
	TotalContributed    decimal.Decimal  `json:"total_contributed"`
	InterestEarned      decimal.Decimal  `json:"interest_earned"`
	LockedAmount        decimal.Decimal  `json:"locked_amount"`
	ContributionsMade   int              `json:"contributions_made"`
	ContributionsMissed int              `json:"contributions_missed"`
	HasReceivedPayout   bool             `json:"has_received_payout"`
	PayoutAmount        decimal.Decimal  `json:"payout_amount"`
	JoinedAt            time.Time        `json:"joined_at"`
}

// ContributionStatus is the state of one scheduled payment.
type ContributionStatus string

const (
	ContribPending    ContributionStatus = "pending"
	ContribProcessing ContributionStatus = "processing"
	ContribCompleted  ContributionStatus = "completed"
	ContribFailed     ContributionStatus = "failed"
	ContribMissed     ContributionStatus = "missed"
)

// Contribution is one scheduled payment cycle for one membership.
type Contribution struct {
	ID              string             `json:"id"`
	RoundID         string             `json:"round_id"`
	MembershipID    string             `json:"membership_id"`
	MemberID        string             `json:"member_id"`
	Amount          decimal.Decimal    `json:"amount"`
	CycleNumber     int                `json:"cycle_number"`
	DueDate         time.Time          `json:"due_date"`
	Status          ContributionStatus `json:"status"`
	PaymentDate     *time.Time         `json:"payment_date,omitempty"`
	InterestAccrued decimal.Decimal    `json:"interest_accrued"`
	DaysInEscrow    int                `json:"days_in_escrow"`
	TransactionID   string             `json:"transaction_id,omitempty"`
}

// PayoutStatus is the state of one disbursement.
type PayoutStatus string

const (
	PayoutScheduled  PayoutStatus = "scheduled"
	PayoutProcessing PayoutStatus = "processing"
	PayoutCompleted  PayoutStatus = "completed"
	PayoutFailed     PayoutStatus = "failed"
)

// Payout is one disbursement to one member. For marathon rounds the
// row is a placeholder until completion recalculates it from actual
// contributions.
type Payout struct {
	ID              string          `json:"id"`
	RoundID         string          `json:"round_id"`
	MembershipID    string          `json:"membership_id"`
	MemberID        string          `json:"member_id"`
	PayoutCycle     int             `json:"payout_cycle"`
	Amount          decimal.Decimal `json:"amount"`
	PrincipalAmount decimal.Decimal `json:"principal_amount"`
	InterestAmount  decimal.Decimal `json:"interest_amount"` // net of tax
	ScheduledDate   time.Time       `json:"scheduled_date"`
	Status          PayoutStatus    `json:"status"`
	TransactionID   string          `json:"transaction_id,omitempty"`
}

// CompletionStats is the immutable snapshot frozen exactly once when a
// round completes. Later configuration changes never touch it.
type CompletionStats struct {
	RoundID            string          `json:"round_id"`
	ExpectedTotal      decimal.Decimal `json:"expected_total"`
	ActualTotal        decimal.Decimal `json:"actual_total"`
	GrossInterest      decimal.Decimal `json:"gross_interest"`
	TaxAmount          decimal.Decimal `json:"tax_amount"`
	NetInterest        decimal.Decimal `json:"net_interest"`
	InterestRate       decimal.Decimal `json:"interest_rate"`
	TaxRate            decimal.Decimal `json:"tax_rate"`
	MembersCount       int             `json:"members_count"`
	ContributionsMade  int             `json:"contributions_made"`
	ContributionsTotal int             `json:"contributions_total"`
	CompletedAt        time.Time       `json:"completed_at"`
}

// Profile is a member's savings reputation.
type Profile struct {
	MemberID            string `json:"member_id"`
	TrustScore          int    `json:"trust_score"`
	CompletedRounds     int    `json:"completed_rounds"`
	TotalContributions  int    `json:"total_contributions"`
	MissedContributions int    `json:"missed_contributions"`
}

var (
	ErrNotFound      = errors.New("round: not found")
	ErrValidation    = errors.New("round: validation failed")
	ErrRoundFull     = errors.New("round: no seats left")
	ErrNotJoinable   = errors.New("round: not accepting members")
	ErrAlreadyJoined = errors.New("round: already a member")
	ErrTrustTooLow   = errors.New("round: trust score below round minimum")
	ErrNotActive     = errors.New("round: not active")
	ErrNotEnough     = errors.New("round: needs at least two members to start")
)
