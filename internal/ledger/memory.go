package ledger

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"wekeza.org/internal/ids"
)

// InMemory implements Service with in-process concurrency safety. It
// backs tests and local development; production uses the Postgres
// store, which carries the same semantics.
type InMemory struct {
	mu       sync.RWMutex
	accts    map[string]*Account  // key: ownerID/domain
	byID     map[string]*Account  // key: account id
	seq      uint64
	txs      []Transaction
	txByID   map[string]int         // tx id -> index in txs
	idem     map[string]Transaction // idemKey -> tx
	currency string
}

// NewInMemory creates a fresh ledger.
func NewInMemory() *InMemory {
	return &InMemory{
		accts:    make(map[string]*Account),
		byID:     make(map[string]*Account),
		txByID:   make(map[string]int),
		idem:     make(map[string]Transaction),
		currency: "KES",
	}
}

func acctKey(ownerID string, domain Domain) string {
	return ownerID + "/" + string(domain)
}

func (s *InMemory) GetOrCreateAccount(ctx context.Context, ownerID string, domain Domain) (Account, error) {
	if ownerID == "" || !domain.Valid() {
		return Account{}, ErrValidation
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.getOrCreateLocked(ownerID, domain), nil
}

func (s *InMemory) getOrCreateLocked(ownerID string, domain Domain) *Account {
	key := acctKey(ownerID, domain)
	if acc, ok := s.accts[key]; ok {
		return acc
	}
	now := time.Now().UTC()
	acc := &Account{
		ID:        newID(),
		OwnerID:   ownerID,
		Domain:    domain,
		Currency:  s.currency,
		Status:    AccountActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.accts[key] = acc
	s.byID[acc.ID] = acc
	return acc
}

func (s *InMemory) GetAccount(ctx context.Context, ownerID string, domain Domain) (Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	acc, ok := s.accts[acctKey(ownerID, domain)]
	if !ok {
		return Account{}, ErrNotFound
	}
	return *acc, nil
}

func (s *InMemory) SetAccountStatus(ctx context.Context, ownerID string, domain Domain, status AccountStatus) (Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	acc, ok := s.accts[acctKey(ownerID, domain)]
	if !ok {
		return Account{}, ErrNotFound
	}
	acc.Status = status
	acc.UpdatedAt = time.Now().UTC()
	return *acc, nil
}

func (s *InMemory) AddFunds(ctx context.Context, in MutationInput) (Transaction, error) {
	if err := validateMutation(in); err != nil {
		return Transaction{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if in.IdempotencyKey != "" {
		if tx, ok := s.idem[in.IdempotencyKey]; ok {
			return tx, nil
		}
	}
	acc := s.getOrCreateLocked(in.OwnerID, in.Domain)
	if acc.Status != AccountActive {
		return Transaction{}, ErrAccountNotActive
	}

	before := acc.Balance
	acc.Balance = acc.Balance.Add(in.Amount)
	acc.Available = acc.Available.Add(in.Amount)
	acc.TotalDeposited = acc.TotalDeposited.Add(in.Amount)
	acc.UpdatedAt = time.Now().UTC()

	return s.appendLocked(acc, in, defaultType(in.Type, TypeDeposit), before, acc.Balance), nil
}

func (s *InMemory) DeductFunds(ctx context.Context, in MutationInput) (Transaction, error) {
	if err := validateMutation(in); err != nil {
		return Transaction{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if in.IdempotencyKey != "" {
		if tx, ok := s.idem[in.IdempotencyKey]; ok {
			return tx, nil
		}
	}
	acc := s.getOrCreateLocked(in.OwnerID, in.Domain)
	if acc.Status != AccountActive {
		return Transaction{}, ErrAccountNotActive
	}
	if acc.Available.LessThan(in.Amount) {
		return Transaction{}, &InsufficientBalanceError{Requested: in.Amount, Available: acc.Available}
	}

	before := acc.Balance
	acc.Balance = acc.Balance.Sub(in.Amount)
	acc.Available = acc.Available.Sub(in.Amount)
	acc.TotalWithdrawn = acc.TotalWithdrawn.Add(in.Amount)
	acc.UpdatedAt = time.Now().UTC()

	return s.appendLocked(acc, in, defaultType(in.Type, TypeWithdrawal), before, acc.Balance), nil
}

func (s *InMemory) LockFunds(ctx context.Context, ownerID string, domain Domain, amount decimal.Decimal, reason string) (Transaction, error) {
	if !amount.IsPositive() {
		return Transaction{}, ErrInvalidAmount
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	acc := s.getOrCreateLocked(ownerID, domain)
	if acc.Status != AccountActive {
		return Transaction{}, ErrAccountNotActive
	}
	if acc.Available.LessThan(amount) {
		return Transaction{}, &InsufficientBalanceError{Requested: amount, Available: acc.Available}
	}

	before := acc.Balance
	acc.Available = acc.Available.Sub(amount)
	acc.Locked = acc.Locked.Add(amount)
	acc.UpdatedAt = time.Now().UTC()

	in := MutationInput{OwnerID: ownerID, Domain: domain, Amount: amount, Description: reason}
	return s.appendLocked(acc, in, TypeLock, before, acc.Balance), nil
}

func (s *InMemory) UnlockFunds(ctx context.Context, ownerID string, domain Domain, amount decimal.Decimal, reason string) (Transaction, error) {
	if !amount.IsPositive() {
		return Transaction{}, ErrInvalidAmount
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	acc, ok := s.accts[acctKey(ownerID, domain)]
	if !ok {
		return Transaction{}, ErrNotFound
	}
	if acc.Locked.LessThan(amount) {
		return Transaction{}, &InsufficientBalanceError{Requested: amount, Available: acc.Locked}
	}

	before := acc.Balance
	acc.Locked = acc.Locked.Sub(amount)
	acc.Available = acc.Available.Add(amount)
	acc.UpdatedAt = time.Now().UTC()

	in := MutationInput{OwnerID: ownerID, Domain: domain, Amount: amount, Description: reason}
	return s.appendLocked(acc, in, TypeUnlock, before, acc.Balance), nil
}

func (s *InMemory) SpendLocked(ctx context.Context, in MutationInput) (Transaction, error) {
	if err := validateMutation(in); err != nil {
		return Transaction{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if in.IdempotencyKey != "" {
		if tx, ok := s.idem[in.IdempotencyKey]; ok {
			return tx, nil
		}
	}
	acc, ok := s.accts[acctKey(in.OwnerID, in.Domain)]
	if !ok {
		return Transaction{}, ErrNotFound
	}
	if acc.Locked.LessThan(in.Amount) {
		return Transaction{}, &InsufficientBalanceError{Requested: in.Amount, Available: acc.Locked}
	}

	before := acc.Balance
	acc.Locked = acc.Locked.Sub(in.Amount)
	acc.Balance = acc.Balance.Sub(in.Amount)
	acc.TotalWithdrawn = acc.TotalWithdrawn.Add(in.Amount)
	acc.UpdatedAt = time.Now().UTC()

	return s.appendLocked(acc, in, defaultType(in.Type, TypeContribution), before, acc.Balance), nil
}

func (s *InMemory) Transfer(ctx context.Context, in TransferInput) (TransferResult, error) {
	if !in.Amount.IsPositive() {
		return TransferResult{}, ErrInvalidAmount
	}
	if !in.FromDomain.Valid() || !in.ToDomain.Valid() || in.FromDomain == in.ToDomain {
		return TransferResult{}, ErrValidation
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transferLocked(in)
}

func (s *InMemory) transferLocked(in TransferInput) (TransferResult, error) {
	if in.IdempotencyKey != "" {
		if out, ok := s.idem[in.IdempotencyKey]; ok {
			inLeg, ok := s.idem[derivedCreditKey(out.ReferenceNumber)]
			if !ok {
				return TransferResult{}, fmt.Errorf("transfer %s: credit leg missing", out.ReferenceNumber)
			}
			return TransferResult{Out: out, In: inLeg}, nil
		}
	}

	src := s.getOrCreateLocked(in.OwnerID, in.FromDomain)
	dst := s.getOrCreateLocked(in.OwnerID, in.ToDomain)
	if src.Status != AccountActive || dst.Status != AccountActive {
		return TransferResult{}, ErrAccountNotActive
	}
	if src.Available.LessThan(in.Amount) {
		return TransferResult{}, &InsufficientBalanceError{Requested: in.Amount, Available: src.Available}
	}

	srcBefore := src.Balance
	src.Balance = src.Balance.Sub(in.Amount)
	src.Available = src.Available.Sub(in.Amount)
	src.TotalWithdrawn = src.TotalWithdrawn.Add(in.Amount)
	src.UpdatedAt = time.Now().UTC()
	out := s.appendLocked(src, MutationInput{
		OwnerID: in.OwnerID, Domain: in.FromDomain, Amount: in.Amount,
		Description: in.Description, IdempotencyKey: in.IdempotencyKey,
		RelatedApp: in.RelatedApp, RelatedID: in.RelatedID,
	}, TypeTransferOut, srcBefore, src.Balance)

	dstBefore := dst.Balance
	dst.Balance = dst.Balance.Add(in.Amount)
	dst.Available = dst.Available.Add(in.Amount)
	dst.TotalDeposited = dst.TotalDeposited.Add(in.Amount)
	dst.UpdatedAt = time.Now().UTC()
	inLeg := s.appendLocked(dst, MutationInput{
		OwnerID: in.OwnerID, Domain: in.ToDomain, Amount: in.Amount,
		Description: in.Description, IdempotencyKey: derivedCreditKey(out.ReferenceNumber),
		RelatedApp: in.RelatedApp, RelatedID: in.RelatedID,
	}, TypeTransferIn, dstBefore, dst.Balance)

	return TransferResult{Out: out, In: inLeg}, nil
}

func (s *InMemory) ReserveContribution(ctx context.Context, ownerID string, amount decimal.Decimal, relatedID string) (ReservationResult, error) {
	if !amount.IsPositive() {
		return ReservationResult{}, ErrInvalidAmount
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	mgr := s.getOrCreateLocked(ownerID, DomainMGR)
	if mgr.Status != AccountActive {
		return ReservationResult{}, ErrAccountNotActive
	}

	var res ReservationResult
	res.TopUpAmt = decimal.Zero
	if mgr.Available.LessThan(amount) {
		shortfall := amount.Sub(mgr.Available)
		main := s.getOrCreateLocked(ownerID, DomainMain)
		if main.Available.LessThan(shortfall) {
			return ReservationResult{}, &InsufficientBalanceError{
				Requested: amount,
				Available: mgr.Available.Add(main.Available),
			}
		}
		topUp, err := s.transferLocked(TransferInput{
			OwnerID:     ownerID,
			FromDomain:  DomainMain,
			ToDomain:    DomainMGR,
			Amount:      shortfall,
			Description: "auto top-up for contribution reservation",
			RelatedApp:  "rounds",
			RelatedID:   relatedID,
		})
		if err != nil {
			return ReservationResult{}, err
		}
		res.TopUp = &topUp
		res.TopUpAmt = shortfall
	}

	before := mgr.Balance
	mgr.Available = mgr.Available.Sub(amount)
	mgr.Locked = mgr.Locked.Add(amount)
	mgr.UpdatedAt = time.Now().UTC()
	res.Lock = s.appendLocked(mgr, MutationInput{
		OwnerID: ownerID, Domain: DomainMGR, Amount: amount,
		Description: "reserve next contribution",
		RelatedApp:  "rounds", RelatedID: relatedID,
	}, TypeLock, before, mgr.Balance)

	return res, nil
}

func (s *InMemory) Reverse(ctx context.Context, ownerID string, domain Domain, transactionID, reason string) (Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx, ok := s.txByID[transactionID]
	if !ok {
		return Transaction{}, ErrNotFound
	}
	orig := &s.txs[idx]
	if orig.OwnerID != ownerID || orig.Domain != domain {
		return Transaction{}, ErrNotFound
	}
	if orig.Status == TxReversed {
		return Transaction{}, fmt.Errorf("%w: transaction already reversed", ErrValidation)
	}
	switch orig.Type {
	case TypeWithdrawal, TypeTransferOut, TypeContribution:
	default:
		return Transaction{}, fmt.Errorf("%w: transaction type %s is not reversible", ErrValidation, orig.Type)
	}

	acc, ok := s.accts[acctKey(ownerID, domain)]
	if !ok {
		return Transaction{}, ErrNotFound
	}

	orig.Status = TxReversed

	before := acc.Balance
	acc.Balance = acc.Balance.Add(orig.Amount)
	acc.Available = acc.Available.Add(orig.Amount)
	acc.UpdatedAt = time.Now().UTC()

	return s.appendLocked(acc, MutationInput{
		OwnerID: ownerID, Domain: domain, Amount: orig.Amount,
		Description: reason,
		RelatedID:   orig.ID,
	}, TypeReversal, before, acc.Balance), nil
}

func (s *InMemory) SetTransactionStatus(ctx context.Context, transactionID string, status TransactionStatus) (Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx, ok := s.txByID[transactionID]
	if !ok {
		return Transaction{}, ErrNotFound
	}
	s.txs[idx].Status = status
	return s.txs[idx], nil
}

func (s *InMemory) GetTransaction(ctx context.Context, transactionID string) (Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	idx, ok := s.txByID[transactionID]
	if !ok {
		return Transaction{}, ErrNotFound
	}
	return s.txs[idx], nil
}

func (s *InMemory) ListTransactions(ctx context.Context, ownerID string, domain Domain, limit int, afterSeq uint64) ([]Transaction, uint64, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var res []Transaction
	var last uint64
	for _, tx := range s.txs {
		if tx.Sequence <= afterSeq {
			continue
		}
		if ownerID != "" && tx.OwnerID != ownerID {
			continue
		}
		if domain != "" && tx.Domain != domain {
			continue
		}
		res = append(res, tx)
		last = tx.Sequence
		if len(res) >= limit {
			break
		}
	}
	return res, last, nil
}

// appendLocked records one transaction row. Callers hold s.mu.
func (s *InMemory) appendLocked(acc *Account, in MutationInput, typ TransactionType, before, after decimal.Decimal) Transaction {
	s.seq++
	tx := Transaction{
		ID:              newID(),
		AccountID:       acc.ID,
		OwnerID:         acc.OwnerID,
		Domain:          acc.Domain,
		ReferenceNumber: ids.Reference("WKTXN"),
		IdempotencyKey:  in.IdempotencyKey,
		Type:            typ,
		Amount:          in.Amount,
		BalanceBefore:   before,
		BalanceAfter:    after,
		Status:          TxCompleted,
		Description:     in.Description,
		ExternalReceipt: in.ExternalReceipt,
		RelatedApp:      in.RelatedApp,
		RelatedID:       in.RelatedID,
		Metadata:        in.Metadata,
		Sequence:        s.seq,
		CreatedAt:       time.Now().UTC(),
	}
	s.txs = append(s.txs, tx)
	s.txByID[tx.ID] = len(s.txs) - 1
	if tx.IdempotencyKey != "" {
		s.idem[tx.IdempotencyKey] = tx
	}
	return tx
}

func validateMutation(in MutationInput) error {
	if in.OwnerID == "" || !in.Domain.Valid() {
		return ErrValidation
	}
	if !in.Amount.IsPositive() {
		return ErrInvalidAmount
	}
	return nil
}

func defaultType(t, fallback TransactionType) TransactionType {
	if t == "" {
		return fallback
	}
	return t
}

// derivedCreditKey ties the credit leg of a transfer to the debit
// leg's reference so a retried transfer cannot double-credit.
func derivedCreditKey(outReference string) string {
	return outReference + ":credit"
}
