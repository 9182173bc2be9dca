package ledger

import (
	"context"

	"github.com/shopspring/decimal"

	"wekeza.org/internal/obs"
)

// Instrumented decorates a Service with per-operation metrics. Reads
// pass through uncounted; every mutation is observed with its outcome.
type Instrumented struct {
	Service
}

// Instrument wraps svc with operation counters.
func Instrument(svc Service) Instrumented {
	return Instrumented{Service: svc}
}

func (s Instrumented) AddFunds(ctx context.Context, in MutationInput) (Transaction, error) {
	tx, err := s.Service.AddFunds(ctx, in)
	obs.ObserveLedgerOp(string(in.Domain), "add_funds", err)
	return tx, err
}

func (s Instrumented) DeductFunds(ctx context.Context, in MutationInput) (Transaction, error) {
	tx, err := s.Service.DeductFunds(ctx, in)
	obs.ObserveLedgerOp(string(in.Domain), "deduct_funds", err)
	return tx, err
}

func (s Instrumented) LockFunds(ctx context.Context, ownerID string, domain Domain, amount decimal.Decimal, reason string) (Transaction, error) {
	tx, err := s.Service.LockFunds(ctx, ownerID, domain, amount, reason)
	obs.ObserveLedgerOp(string(domain), "lock_funds", err)
	return tx, err
}

func (s Instrumented) UnlockFunds(ctx context.Context, ownerID string, domain Domain, amount decimal.Decimal, reason string) (Transaction, error) {
	tx, err := s.Service.UnlockFunds(ctx, ownerID, domain, amount, reason)
	obs.ObserveLedgerOp(string(domain), "unlock_funds", err)
	return tx, err
}

func (s Instrumented) SpendLocked(ctx context.Context, in MutationInput) (Transaction, error) {
	tx, err := s.Service.SpendLocked(ctx, in)
	obs.ObserveLedgerOp(string(in.Domain), "spend_locked", err)
	return tx, err
}

func (s Instrumented) Transfer(ctx context.Context, in TransferInput) (TransferResult, error) {
	res, err := s.Service.Transfer(ctx, in)
	obs.ObserveLedgerOp(string(in.FromDomain), "transfer", err)
	return res, err
}

func (s Instrumented) ReserveContribution(ctx context.Context, ownerID string, amount decimal.Decimal, relatedID string) (ReservationResult, error) {
	res, err := s.Service.ReserveContribution(ctx, ownerID, amount, relatedID)
	obs.ObserveLedgerOp(string(DomainMGR), "reserve_contribution", err)
	return res, err
}

func (s Instrumented) Reverse(ctx context.Context, ownerID string, domain Domain, transactionID, reason string) (Transaction, error) {
	tx, err := s.Service.Reverse(ctx, ownerID, domain, transactionID, reason)
	obs.ObserveLedgerOp(string(domain), "reverse", err)
	return tx, err
}
