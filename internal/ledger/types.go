package ledger

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"wekeza.org/internal/ids"
)

// Domain identifies which sub-ledger an account belongs to.
type Domain string

const (
	DomainMain Domain = "main"
	DomainMGR  Domain = "mgr"
	DomainGoal Domain = "goal"
)

// Valid reports whether d is a known ledger domain.
func (d Domain) Valid() bool {
	switch d {
	case DomainMain, DomainMGR, DomainGoal:
		return true
	}
	return false
}

// AccountStatus is the lifecycle state of a ledger account.
type AccountStatus string

const (
	AccountActive    AccountStatus = "active"
	AccountFrozen    AccountStatus = "frozen"
	AccountSuspended AccountStatus = "suspended"
	AccountClosed    AccountStatus = "closed"
)

// Account is a per-owner, per-domain balance record.
// Invariant: Balance == Available + Locked at all times.
type Account struct {
	ID        string          `json:"id"`
	OwnerID   string          `json:"owner_id"`
	Domain    Domain          `json:"domain"`
	Currency  string          `json:"currency"`
	Balance   decimal.Decimal `json:"balance"`
	Available decimal.Decimal `json:"available_balance"`
	Locked    decimal.Decimal `json:"locked_balance"`
	Status    AccountStatus   `json:"status"`

	// Lifetime counters, monotonically increasing.
	TotalDeposited decimal.Decimal `json:"total_deposited"`
	TotalWithdrawn decimal.Decimal `json:"total_withdrawn"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TransactionType classifies a balance mutation.
type TransactionType string

const (
	TypeDeposit      TransactionType = "deposit"
	TypeWithdrawal   TransactionType = "withdrawal"
	TypeTransferIn   TransactionType = "transfer_in"
	TypeTransferOut  TransactionType = "transfer_out"
	TypeLock         TransactionType = "lock"
	TypeUnlock       TransactionType = "unlock"
	TypeContribution TransactionType = "contribution"
	TypePayout       TransactionType = "payout"
	TypeInterest     TransactionType = "interest"
	TypeAdjustment   TransactionType = "adjustment"
	TypeReversal     TransactionType = "reversal"
)

// TransactionStatus is the processing state of a transaction row.
type TransactionStatus string

const (
	TxPending    TransactionStatus = "pending"
	TxProcessing TransactionStatus = "processing"
	TxCompleted  TransactionStatus = "completed"
	TxFailed     TransactionStatus = "failed"
	TxReversed   TransactionStatus = "reversed"
)

// Transaction is an immutable append-only ledger record. Status may
// transition after creation; amount and balance snapshots never do.
// Corrections are new reversal rows, not edits.
type Transaction struct {
	ID              string            `json:"id"`
	AccountID       string            `json:"account_id"`
	OwnerID         string            `json:"owner_id"`
	Domain          Domain            `json:"domain"`
	ReferenceNumber string            `json:"reference_number"`
	IdempotencyKey  string            `json:"idempotency_key,omitempty"`
	Type            TransactionType   `json:"transaction_type"`
	Amount          decimal.Decimal   `json:"amount"`
	BalanceBefore   decimal.Decimal   `json:"balance_before"`
	BalanceAfter    decimal.Decimal   `json:"balance_after"`
	Status          TransactionStatus `json:"status"`
	Description     string            `json:"description,omitempty"`
	ExternalReceipt string            `json:"external_receipt,omitempty"`
	RelatedApp      string            `json:"related_app,omitempty"`
	RelatedID       string            `json:"related_id,omitempty"`
	Metadata        map[string]string `json:"metadata,omitempty"`
	Sequence        uint64            `json:"sequence"`
	CreatedAt       time.Time         `json:"created_at"`
}

var (
	ErrNotFound         = errors.New("not found")
	ErrInvalidAmount    = errors.New("invalid amount (must be > 0)")
	ErrAccountNotActive = errors.New("account is not active")
	ErrValidation       = errors.New("validation failed")
	ErrExternalGateway  = errors.New("external gateway failure")

	// ErrInsufficientBalance is the sentinel matched by errors.Is for
	// InsufficientBalanceError values.
	ErrInsufficientBalance = errors.New("insufficient balance")
)

// InsufficientBalanceError reports how much was requested, how much was
// on hand, and the exact shortfall.
type InsufficientBalanceError struct {
	Requested decimal.Decimal
	Available decimal.Decimal
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient balance: requested %s, available %s (short %s)",
		e.Requested.StringFixed(2), e.Available.StringFixed(2), e.Shortfall().StringFixed(2))
}

func (e *InsufficientBalanceError) Is(target error) bool {
	return target == ErrInsufficientBalance
}

// Shortfall returns the amount missing, never negative.
func (e *InsufficientBalanceError) Shortfall() decimal.Decimal {
	s := e.Requested.Sub(e.Available)
	if s.IsNegative() {
		return decimal.Zero
	}
	return s
}

func newID() string {
	return ids.New()
}
