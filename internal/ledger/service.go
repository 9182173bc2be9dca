package ledger

import (
	"context"

	"github.com/shopspring/decimal"
)

// MutationInput carries the parameters shared by the four wallet
// primitives. IdempotencyKey, when set, makes the call safe to retry:
// a repeated key returns the original transaction without touching
// balances.
type MutationInput struct {
	OwnerID         string
	Domain          Domain
	Amount          decimal.Decimal
	Type            TransactionType
	Description     string
	IdempotencyKey  string
	ExternalReceipt string
	RelatedApp      string
	RelatedID       string
	Metadata        map[string]string
}

// TransferInput describes a two-sided move between an owner's
// sub-ledgers. Both sides commit or neither does.
type TransferInput struct {
	OwnerID        string
	FromDomain     Domain
	ToDomain       Domain
	Amount         decimal.Decimal
	Description    string
	IdempotencyKey string
	RelatedApp     string
	RelatedID      string
}

// TransferResult holds both legs of a completed transfer.
type TransferResult struct {
	Out Transaction `json:"out"`
	In  Transaction `json:"in"`
}

// ReservationResult reports how a contribution reservation was funded.
type ReservationResult struct {
	Lock     Transaction     `json:"lock"`
	TopUp    *TransferResult `json:"top_up,omitempty"`
	TopUpAmt decimal.Decimal `json:"top_up_amount"`
}

// Service defines the wallet ledger operations.
type Service interface {
	// GetOrCreateAccount returns the owner's account in the given
	// domain, creating it lazily on first access.
	GetOrCreateAccount(ctx context.Context, ownerID string, domain Domain) (Account, error)
	GetAccount(ctx context.Context, ownerID string, domain Domain) (Account, error)
	SetAccountStatus(ctx context.Context, ownerID string, domain Domain, status AccountStatus) (Account, error)

	// AddFunds credits available balance and the lifetime deposit
	// counter. DeductFunds debits available balance and bumps the
	// lifetime withdrawal counter, failing with ErrInsufficientBalance
	// when available funds do not cover the amount.
	AddFunds(ctx context.Context, in MutationInput) (Transaction, error)
	DeductFunds(ctx context.Context, in MutationInput) (Transaction, error)

	// LockFunds moves amount from available to locked; total balance is
	// unchanged. UnlockFunds is its exact inverse.
	LockFunds(ctx context.Context, ownerID string, domain Domain, amount decimal.Decimal, reason string) (Transaction, error)
	UnlockFunds(ctx context.Context, ownerID string, domain Domain, amount decimal.Decimal, reason string) (Transaction, error)

	// Transfer executes a deduct on the source domain and an add on the
	// destination domain atomically. The destination idempotency key is
	// derived from the source leg's reference so retries cannot
	// double-credit.
	Transfer(ctx context.Context, in TransferInput) (TransferResult, error)

	// ReserveContribution locks amount in the MGR ledger for the next
	// due contribution, auto-topping-up the exact shortfall from the
	// main wallet when the MGR balance alone cannot cover it.
	ReserveContribution(ctx context.Context, ownerID string, amount decimal.Decimal, relatedID string) (ReservationResult, error)

	// SpendLocked consumes previously locked funds (a contribution
	// payment): locked and total balance both decrease.
	SpendLocked(ctx context.Context, in MutationInput) (Transaction, error)

	// Reverse refunds a completed deduction: the original row is marked
	// reversed and a compensating credit is appended.
	Reverse(ctx context.Context, ownerID string, domain Domain, transactionID, reason string) (Transaction, error)

	SetTransactionStatus(ctx context.Context, transactionID string, status TransactionStatus) (Transaction, error)
	GetTransaction(ctx context.Context, transactionID string) (Transaction, error)
	ListTransactions(ctx context.Context, ownerID string, domain Domain, limit int, afterSeq uint64) ([]Transaction, uint64, error)
}
