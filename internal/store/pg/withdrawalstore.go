package pg

import (
	"context"
	"database/sql"
	"errors"

	"wekeza.org/internal/ledger"
)

// WithdrawalStore is the Postgres-backed ledger.WithdrawalStore.
type WithdrawalStore struct {
	db *sql.DB
}

var _ ledger.WithdrawalStore = (*WithdrawalStore)(nil)

func NewWithdrawalStore(db *sql.DB) *WithdrawalStore { return &WithdrawalStore{db: db} }

const withdrawalCols = `id, owner_id, amount, phone, status, coalesce(transaction_id,''), coalesce(gateway_receipt,''), coalesce(failure_reason,''), created_at, updated_at`

func scanWithdrawal(r rowScanner) (ledger.PendingWithdrawal, error) {
	var w ledger.PendingWithdrawal
	err := r.Scan(&w.ID, &w.OwnerID, &w.Amount, &w.Phone, &w.Status, &w.TransactionID,
		&w.GatewayReceipt, &w.FailureReason, &w.CreatedAt, &w.UpdatedAt)
	return w, err
}

func (s *WithdrawalStore) CreateWithdrawal(ctx context.Context, w ledger.PendingWithdrawal) error {
	_, err := s.db.ExecContext(ctx, `
		insert into pending_withdrawals (id, owner_id, amount, phone, status, transaction_id,
			gateway_receipt, failure_reason, created_at, updated_at)
		values ($1,$2,$3,$4,$5,nullif($6,''),nullif($7,''),nullif($8,''),$9,$10)`,
		w.ID, w.OwnerID, w.Amount, w.Phone, w.Status, w.TransactionID,
		w.GatewayReceipt, w.FailureReason, w.CreatedAt, w.UpdatedAt)
	return err
}

func (s *WithdrawalStore) GetWithdrawal(ctx context.Context, id string) (ledger.PendingWithdrawal, error) {
	row := s.db.QueryRowContext(ctx,
		`select `+withdrawalCols+` from pending_withdrawals where id=$1`, id)
	w, err := scanWithdrawal(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.PendingWithdrawal{}, ledger.ErrNotFound
	}
	return w, err
}

func (s *WithdrawalStore) UpdateWithdrawal(ctx context.Context, w ledger.PendingWithdrawal) error {
	res, err := s.db.ExecContext(ctx, `
		update pending_withdrawals set status=$2, transaction_id=nullif($3,''),
			gateway_receipt=nullif($4,''), failure_reason=nullif($5,''), updated_at=$6
		where id=$1`,
		w.ID, w.Status, w.TransactionID, w.GatewayReceipt, w.FailureReason, w.UpdatedAt)
	return requireRow(res, err, ledger.ErrNotFound)
}

func (s *WithdrawalStore) ListWithdrawals(ctx context.Context, status ledger.WithdrawalStatus, limit int) ([]ledger.PendingWithdrawal, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		select `+withdrawalCols+` from pending_withdrawals
		where ($1 = '' or status = $1)
		order by created_at
		limit $2`, status, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ledger.PendingWithdrawal
	for rows.Next() {
		w, err := scanWithdrawal(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, rows.Err()
}
