package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	_ "github.com/jackc/pgx/v5/stdlib"

	"wekeza.org/internal/ids"
	"wekeza.org/internal/ledger"
)

// Store is the Postgres-backed wallet ledger.
type Store struct {
	db *sql.DB
}

var _ ledger.Service = (*Store)(nil)

func Open(dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	// Tuned pool defaults; adjust under load tests
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(15 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return &Store{db: db}, nil
}

// NewWithDB wraps an existing connection, used by tests.
func NewWithDB(db *sql.DB) *Store { return &Store{db: db} }

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) DB() *sql.DB { return s.db }

const acctCols = `id, owner_id, domain, currency, balance, available, locked, status, total_deposited, total_withdrawn, created_at, updated_at`

const txCols = `id, account_id, owner_id, domain, reference_number, coalesce(idempotency_key,''), transaction_type, amount, balance_before, balance_after, status, coalesce(description,''), coalesce(external_receipt,''), coalesce(related_app,''), coalesce(related_id,''), metadata, sequence, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(r rowScanner) (ledger.Account, error) {
	var a ledger.Account
	err := r.Scan(&a.ID, &a.OwnerID, &a.Domain, &a.Currency, &a.Balance, &a.Available,
		&a.Locked, &a.Status, &a.TotalDeposited, &a.TotalWithdrawn, &a.CreatedAt, &a.UpdatedAt)
	return a, err
}

func scanTx(r rowScanner) (ledger.Transaction, error) {
	var t ledger.Transaction
	var meta []byte
	err := r.Scan(&t.ID, &t.AccountID, &t.OwnerID, &t.Domain, &t.ReferenceNumber,
		&t.IdempotencyKey, &t.Type, &t.Amount, &t.BalanceBefore, &t.BalanceAfter,
		&t.Status, &t.Description, &t.ExternalReceipt, &t.RelatedApp, &t.RelatedID,
		&meta, &t.Sequence, &t.CreatedAt)
	if err != nil {
		return ledger.Transaction{}, err
	}
	if len(meta) > 0 {
		_ = json.Unmarshal(meta, &t.Metadata)
	}
	return t, nil
}

func (s *Store) GetOrCreateAccount(ctx context.Context, ownerID string, domain ledger.Domain) (ledger.Account, error) {
	if ownerID == "" || !domain.Valid() {
		return ledger.Account{}, ledger.ErrValidation
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return ledger.Account{}, err
	}
	defer func() { _ = tx.Rollback() }()

	acc, err := lockAccount(ctx, tx, ownerID, domain)
	if err != nil {
		return ledger.Account{}, err
	}
	if err := tx.Commit(); err != nil {
		return ledger.Account{}, err
	}
	return acc, nil
}

func (s *Store) GetAccount(ctx context.Context, ownerID string, domain ledger.Domain) (ledger.Account, error) {
	row := s.db.QueryRowContext(ctx,
		`select `+acctCols+` from accounts where owner_id=$1 and domain=$2`, ownerID, domain)
	acc, err := scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.Account{}, ledger.ErrNotFound
	}
	return acc, err
}

func (s *Store) SetAccountStatus(ctx context.Context, ownerID string, domain ledger.Domain, status ledger.AccountStatus) (ledger.Account, error) {
	row := s.db.QueryRowContext(ctx, `
		update accounts set status=$3, updated_at=now()
		where owner_id=$1 and domain=$2
		returning `+acctCols, ownerID, domain, status)
	acc, err := scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.Account{}, ledger.ErrNotFound
	}
	return acc, err
}

func (s *Store) AddFunds(ctx context.Context, in ledger.MutationInput) (ledger.Transaction, error) {
	return s.mutate(ctx, in, ledger.TypeDeposit, func(ctx context.Context, tx *sql.Tx, acc ledger.Account) (ledger.Account, error) {
		return applyDelta(ctx, tx, acc.ID, `
			balance = balance + $2,
			available = available + $2,
			total_deposited = total_deposited + $2`, in.Amount)
	})
}

func (s *Store) DeductFunds(ctx context.Context, in ledger.MutationInput) (ledger.Transaction, error) {
	return s.mutate(ctx, in, ledger.TypeWithdrawal, func(ctx context.Context, tx *sql.Tx, acc ledger.Account) (ledger.Account, error) {
		if acc.Available.LessThan(in.Amount) {
			return ledger.Account{}, &ledger.InsufficientBalanceError{Requested: in.Amount, Available: acc.Available}
		}
		return applyDelta(ctx, tx, acc.ID, `
			balance = balance - $2,
			available = available - $2,
			total_withdrawn = total_withdrawn + $2`, in.Amount)
	})
}

func (s *Store) LockFunds(ctx context.Context, ownerID string, domain ledger.Domain, amount decimal.Decimal, reason string) (ledger.Transaction, error) {
	in := ledger.MutationInput{OwnerID: ownerID, Domain: domain, Amount: amount, Description: reason}
	return s.mutate(ctx, in, ledger.TypeLock, func(ctx context.Context, tx *sql.Tx, acc ledger.Account) (ledger.Account, error) {
		if acc.Available.LessThan(amount) {
			return ledger.Account{}, &ledger.InsufficientBalanceError{Requested: amount, Available: acc.Available}
		}
		return applyDelta(ctx, tx, acc.ID, `
			available = available - $2,
			locked = locked + $2`, amount)
	})
}

func (s *Store) UnlockFunds(ctx context.Context, ownerID string, domain ledger.Domain, amount decimal.Decimal, reason string) (ledger.Transaction, error) {
	in := ledger.MutationInput{OwnerID: ownerID, Domain: domain, Amount: amount, Description: reason}
	return s.mutate(ctx, in, ledger.TypeUnlock, func(ctx context.Context, tx *sql.Tx, acc ledger.Account) (ledger.Account, error) {
		if acc.Locked.LessThan(amount) {
			return ledger.Account{}, &ledger.InsufficientBalanceError{Requested: amount, Available: acc.Locked}
		}
		return applyDelta(ctx, tx, acc.ID, `
			available = available + $2,
			locked = locked - $2`, amount)
	})
}

func (s *Store) SpendLocked(ctx context.Context, in ledger.MutationInput) (ledger.Transaction, error) {
	return s.mutate(ctx, in, ledger.TypeContribution, func(ctx context.Context, tx *sql.Tx, acc ledger.Account) (ledger.Account, error) {
		if acc.Locked.LessThan(in.Amount) {
			return ledger.Account{}, &ledger.InsufficientBalanceError{Requested: in.Amount, Available: acc.Locked}
		}
		return applyDelta(ctx, tx, acc.ID, `
			balance = balance - $2,
			locked = locked - $2,
			total_withdrawn = total_withdrawn + $2`, in.Amount)
	})
}

// mutate runs a single-account balance mutation inside a serializable
// transaction: idempotency replay, account row lock, delta update,
// ledger row append.
func (s *Store) mutate(ctx context.Context, in ledger.MutationInput, fallback ledger.TransactionType,
	apply func(context.Context, *sql.Tx, ledger.Account) (ledger.Account, error)) (ledger.Transaction, error) {

	if err := validate(in); err != nil {
		return ledger.Transaction{}, err
	}
	if in.Type == "" {
		in.Type = fallback
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return ledger.Transaction{}, err
	}
	defer func() { _ = tx.Rollback() }()

	if in.IdempotencyKey != "" {
		prior, err := findByIdemKey(ctx, tx, in.IdempotencyKey)
		if err == nil {
			return prior, tx.Commit()
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return ledger.Transaction{}, err
		}
	}

	acc, err := lockAccount(ctx, tx, in.OwnerID, in.Domain)
	if err != nil {
		return ledger.Transaction{}, err
	}
	if acc.Status != ledger.AccountActive {
		return ledger.Transaction{}, ledger.ErrAccountNotActive
	}

	before := acc.Balance
	acc, err = apply(ctx, tx, acc)
	if err != nil {
		return ledger.Transaction{}, err
	}

	out, err := insertTx(ctx, tx, acc, in, before, acc.Balance)
	if err != nil {
		return ledger.Transaction{}, err
	}
	return out, tx.Commit()
}

func (s *Store) Transfer(ctx context.Context, in ledger.TransferInput) (ledger.TransferResult, error) {
	if in.OwnerID == "" || !in.FromDomain.Valid() || !in.ToDomain.Valid() || in.FromDomain == in.ToDomain {
		return ledger.TransferResult{}, ledger.ErrValidation
	}
	if !in.Amount.IsPositive() {
		return ledger.TransferResult{}, ledger.ErrInvalidAmount
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return ledger.TransferResult{}, err
	}
	defer func() { _ = tx.Rollback() }()

	if in.IdempotencyKey != "" {
		out, err := findByIdemKey(ctx, tx, in.IdempotencyKey)
		if err == nil {
			inLeg, err := findByIdemKey(ctx, tx, creditKey(out.ReferenceNumber))
			if err != nil {
				return ledger.TransferResult{}, err
			}
			return ledger.TransferResult{Out: out, In: inLeg}, tx.Commit()
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return ledger.TransferResult{}, err
		}
	}

	res, err := transferLocked(ctx, tx, in)
	if err != nil {
		return ledger.TransferResult{}, err
	}
	return res, tx.Commit()
}

// transferLocked applies both legs on an already-open transaction.
// Accounts are locked in domain order so concurrent transfers between
// the same pair cannot deadlock.
func transferLocked(ctx context.Context, tx *sql.Tx, in ledger.TransferInput) (ledger.TransferResult, error) {
	accs := map[ledger.Domain]ledger.Account{}
	for _, d := range sortedDomains(in.FromDomain, in.ToDomain) {
		acc, err := lockAccount(ctx, tx, in.OwnerID, d)
		if err != nil {
			return ledger.TransferResult{}, err
		}
		if acc.Status != ledger.AccountActive {
			return ledger.TransferResult{}, ledger.ErrAccountNotActive
		}
		accs[d] = acc
	}

	from := accs[in.FromDomain]
	if from.Available.LessThan(in.Amount) {
		return ledger.TransferResult{}, &ledger.InsufficientBalanceError{Requested: in.Amount, Available: from.Available}
	}

	fromAfter, err := applyDelta(ctx, tx, from.ID, `
		balance = balance - $2,
		available = available - $2,
		total_withdrawn = total_withdrawn + $2`, in.Amount)
	if err != nil {
		return ledger.TransferResult{}, err
	}
	to := accs[in.ToDomain]
	toAfter, err := applyDelta(ctx, tx, to.ID, `
		balance = balance + $2,
		available = available + $2,
		total_deposited = total_deposited + $2`, in.Amount)
	if err != nil {
		return ledger.TransferResult{}, err
	}

	outLeg, err := insertTx(ctx, tx, fromAfter, ledger.MutationInput{
		OwnerID: in.OwnerID, Domain: in.FromDomain, Amount: in.Amount,
		Type: ledger.TypeTransferOut, Description: in.Description,
		IdempotencyKey: in.IdempotencyKey, RelatedApp: in.RelatedApp, RelatedID: in.RelatedID,
	}, from.Balance, fromAfter.Balance)
	if err != nil {
		return ledger.TransferResult{}, err
	}
	inLeg, err := insertTx(ctx, tx, toAfter, ledger.MutationInput{
		OwnerID: in.OwnerID, Domain: in.ToDomain, Amount: in.Amount,
		Type: ledger.TypeTransferIn, Description: in.Description,
		IdempotencyKey: creditKey(outLeg.ReferenceNumber), RelatedApp: in.RelatedApp, RelatedID: in.RelatedID,
	}, to.Balance, toAfter.Balance)
	if err != nil {
		return ledger.TransferResult{}, err
	}
	return ledger.TransferResult{Out: outLeg, In: inLeg}, nil
}

func (s *Store) ReserveContribution(ctx context.Context, ownerID string, amount decimal.Decimal, relatedID string) (ledger.ReservationResult, error) {
	if ownerID == "" {
		return ledger.ReservationResult{}, ledger.ErrValidation
	}
	if !amount.IsPositive() {
		return ledger.ReservationResult{}, ledger.ErrInvalidAmount
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return ledger.ReservationResult{}, err
	}
	defer func() { _ = tx.Rollback() }()

	var res ledger.ReservationResult

	// Lock main before mgr to match transferLocked's ordering.
	main, err := lockAccount(ctx, tx, ownerID, ledger.DomainMain)
	if err != nil {
		return ledger.ReservationResult{}, err
	}
	mgr, err := lockAccount(ctx, tx, ownerID, ledger.DomainMGR)
	if err != nil {
		return ledger.ReservationResult{}, err
	}
	if mgr.Status != ledger.AccountActive {
		return ledger.ReservationResult{}, ledger.ErrAccountNotActive
	}

	if mgr.Available.LessThan(amount) {
		shortfall := amount.Sub(mgr.Available)
		if main.Available.LessThan(shortfall) {
			return ledger.ReservationResult{}, &ledger.InsufficientBalanceError{
				Requested: amount,
				Available: mgr.Available.Add(main.Available),
			}
		}
		topUp, err := transferLocked(ctx, tx, ledger.TransferInput{
			OwnerID: ownerID, FromDomain: ledger.DomainMain, ToDomain: ledger.DomainMGR,
			Amount: shortfall, Description: "auto top-up for contribution reservation",
			RelatedApp: "round", RelatedID: relatedID,
		})
		if err != nil {
			return ledger.ReservationResult{}, err
		}
		res.TopUp = &topUp
		res.TopUpAmt = shortfall
		mgr, err = lockAccount(ctx, tx, ownerID, ledger.DomainMGR)
		if err != nil {
			return ledger.ReservationResult{}, err
		}
	}

	before := mgr.Balance
	after, err := applyDelta(ctx, tx, mgr.ID, `
		available = available - $2,
		locked = locked + $2`, amount)
	if err != nil {
		return ledger.ReservationResult{}, err
	}
	lock, err := insertTx(ctx, tx, after, ledger.MutationInput{
		OwnerID: ownerID, Domain: ledger.DomainMGR, Amount: amount,
		Type: ledger.TypeLock, Description: "contribution reservation",
		RelatedApp: "round", RelatedID: relatedID,
	}, before, after.Balance)
	if err != nil {
		return ledger.ReservationResult{}, err
	}
	res.Lock = lock
	return res, tx.Commit()
}

func (s *Store) Reverse(ctx context.Context, ownerID string, domain ledger.Domain, transactionID, reason string) (ledger.Transaction, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return ledger.Transaction{}, err
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(ctx,
		`select `+txCols+` from transactions where id=$1 and owner_id=$2 and domain=$3 for update`,
		transactionID, ownerID, domain)
	orig, err := scanTx(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.Transaction{}, ledger.ErrNotFound
	}
	if err != nil {
		return ledger.Transaction{}, err
	}
	switch orig.Type {
	case ledger.TypeWithdrawal, ledger.TypeTransferOut, ledger.TypeContribution:
	default:
		return ledger.Transaction{}, ledger.ErrValidation
	}
	if orig.Status == ledger.TxReversed {
		return ledger.Transaction{}, ledger.ErrValidation
	}

	acc, err := lockAccount(ctx, tx, ownerID, domain)
	if err != nil {
		return ledger.Transaction{}, err
	}
	before := acc.Balance
	after, err := applyDelta(ctx, tx, acc.ID, `
		balance = balance + $2,
		available = available + $2`, orig.Amount)
	if err != nil {
		return ledger.Transaction{}, err
	}
	if _, err := tx.ExecContext(ctx,
		`update transactions set status=$2 where id=$1`, orig.ID, ledger.TxReversed); err != nil {
		return ledger.Transaction{}, err
	}
	rev, err := insertTx(ctx, tx, after, ledger.MutationInput{
		OwnerID: ownerID, Domain: domain, Amount: orig.Amount,
		Type: ledger.TypeReversal, Description: reason,
		RelatedApp: "ledger", RelatedID: orig.ID,
	}, before, after.Balance)
	if err != nil {
		return ledger.Transaction{}, err
	}
	return rev, tx.Commit()
}

func (s *Store) SetTransactionStatus(ctx context.Context, transactionID string, status ledger.TransactionStatus) (ledger.Transaction, error) {
	row := s.db.QueryRowContext(ctx,
		`update transactions set status=$2 where id=$1 returning `+txCols, transactionID, status)
	t, err := scanTx(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.Transaction{}, ledger.ErrNotFound
	}
	return t, err
}

func (s *Store) GetTransaction(ctx context.Context, transactionID string) (ledger.Transaction, error) {
	row := s.db.QueryRowContext(ctx,
		`select `+txCols+` from transactions where id=$1`, transactionID)
	t, err := scanTx(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.Transaction{}, ledger.ErrNotFound
	}
	return t, err
}

func (s *Store) ListTransactions(ctx context.Context, ownerID string, domain ledger.Domain, limit int, afterSeq uint64) ([]ledger.Transaction, uint64, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		select `+txCols+` from transactions
		where owner_id=$1 and domain=$2 and sequence > $3
		order by sequence asc
		limit $4
	`, ownerID, domain, afterSeq, limit)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var res []ledger.Transaction
	var last uint64
	for rows.Next() {
		t, err := scanTx(rows)
		if err != nil {
			return nil, 0, err
		}
		res = append(res, t)
		last = t.Sequence
	}
	return res, last, rows.Err()
}

// --- helpers ---

// lockAccount creates the account row on first touch, then locks it for
// the remainder of the transaction.
func lockAccount(ctx context.Context, tx *sql.Tx, ownerID string, domain ledger.Domain) (ledger.Account, error) {
	if _, err := tx.ExecContext(ctx, `
		insert into accounts(id, owner_id, domain, currency, status)
		values ($1,$2,$3,'KES','active')
		on conflict (owner_id, domain) do nothing
	`, ids.New(), ownerID, domain); err != nil {
		return ledger.Account{}, err
	}
	row := tx.QueryRowContext(ctx,
		`select `+acctCols+` from accounts where owner_id=$1 and domain=$2 for update`, ownerID, domain)
	acc, err := scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.Account{}, ledger.ErrNotFound
	}
	return acc, err
}

func applyDelta(ctx context.Context, tx *sql.Tx, accountID string, set string, amount decimal.Decimal) (ledger.Account, error) {
	row := tx.QueryRowContext(ctx,
		`update accounts set `+set+`, updated_at=now() where id=$1 returning `+acctCols,
		accountID, amount)
	return scanAccount(row)
}

func findByIdemKey(ctx context.Context, tx *sql.Tx, key string) (ledger.Transaction, error) {
	row := tx.QueryRowContext(ctx,
		`select `+txCols+` from transactions where idempotency_key=$1`, key)
	return scanTx(row)
}

func insertTx(ctx context.Context, tx *sql.Tx, acc ledger.Account, in ledger.MutationInput, before, after decimal.Decimal) (ledger.Transaction, error) {
	var meta []byte
	if len(in.Metadata) > 0 {
		meta, _ = json.Marshal(in.Metadata)
	}
	out := ledger.Transaction{
		ID:              ids.New(),
		AccountID:       acc.ID,
		OwnerID:         in.OwnerID,
		Domain:          in.Domain,
		ReferenceNumber: ids.Reference("WKTXN"),
		IdempotencyKey:  in.IdempotencyKey,
		Type:            in.Type,
		Amount:          in.Amount,
		BalanceBefore:   before,
		BalanceAfter:    after,
		Status:          ledger.TxCompleted,
		Description:     in.Description,
		ExternalReceipt: in.ExternalReceipt,
		RelatedApp:      in.RelatedApp,
		RelatedID:       in.RelatedID,
		Metadata:        in.Metadata,
		CreatedAt:       time.Now().UTC(),
	}
	err := tx.QueryRowContext(ctx, `
		insert into transactions(
			id, account_id, owner_id, domain, reference_number, idempotency_key,
			transaction_type, amount, balance_before, balance_after, status,
			description, external_receipt, related_app, related_id, metadata)
		values ($1,$2,$3,$4,$5,nullif($6,''),$7,$8,$9,$10,$11,nullif($12,''),nullif($13,''),nullif($14,''),nullif($15,''),$16)
		returning sequence
	`, out.ID, out.AccountID, out.OwnerID, out.Domain, out.ReferenceNumber, out.IdempotencyKey,
		out.Type, out.Amount, out.BalanceBefore, out.BalanceAfter, out.Status,
		out.Description, out.ExternalReceipt, out.RelatedApp, out.RelatedID, meta).Scan(&out.Sequence)
	if err != nil {
		return ledger.Transaction{}, err
	}
	return out, nil
}

func validate(in ledger.MutationInput) error {
	if in.OwnerID == "" || !in.Domain.Valid() {
		return ledger.ErrValidation
	}
	if !in.Amount.IsPositive() {
		return ledger.ErrInvalidAmount
	}
	return nil
}

// creditKey ties the credit leg of a transfer to the debit leg so a
// replayed transfer can recover both rows.
func creditKey(outReference string) string {
	return outReference + ":credit"
}

func sortedDomains(a, b ledger.Domain) []ledger.Domain {
	if a <= b {
		return []ledger.Domain{a, b}
	}
	return []ledger.Domain{b, a}
}
