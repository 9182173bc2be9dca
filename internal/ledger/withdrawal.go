package ledger

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"wekeza.org/internal/auth"
	"wekeza.org/internal/kyc"
	"wekeza.org/internal/notify"
)

// AutoApproveThreshold is the largest withdrawal that proceeds without
// operator approval once the password is confirmed.
var AutoApproveThreshold = decimal.NewFromInt(2000)

// WithdrawalStatus tracks a pending withdrawal through its approval
// and disbursement steps.
type WithdrawalStatus string

const (
	WithdrawalAwaitingPassword WithdrawalStatus = "awaiting_password"
	WithdrawalPendingApproval  WithdrawalStatus = "pending_approval"
	WithdrawalProcessing       WithdrawalStatus = "processing"
	WithdrawalCompleted        WithdrawalStatus = "completed"
	WithdrawalFailed           WithdrawalStatus = "failed"
	WithdrawalRejected         WithdrawalStatus = "rejected"
	WithdrawalRefunded         WithdrawalStatus = "refunded"
)

// PendingWithdrawal is a withdrawal request. No funds move until the
// password is confirmed and, above the threshold, an operator
// approves.
type PendingWithdrawal struct {
	ID             string           `json:"id"`
	OwnerID        string           `json:"owner_id"`
	Amount         decimal.Decimal  `json:"amount"`
	Phone          string           `json:"phone_number"`
	Status         WithdrawalStatus `json:"status"`
	TransactionID  string           `json:"transaction_id,omitempty"`
	GatewayReceipt string           `json:"gateway_receipt,omitempty"`
	FailureReason  string           `json:"failure_reason,omitempty"`
	CreatedAt      time.Time        `json:"created_at"`
	UpdatedAt      time.Time        `json:"updated_at"`
}

var (
	ErrWrongPassword   = errors.New("withdrawal: password verification failed")
	ErrBadWithdrawalOp = errors.New("withdrawal: operation not allowed in current status")
)

// Disburser sends approved funds out through the payment gateway.
type Disburser interface {
	Disburse(ctx context.Context, amount decimal.Decimal, phone string) (receipt string, err error)
}

// PasswordSource resolves a member's stored password hash.
type PasswordSource interface {
	PasswordHash(ctx context.Context, memberID string) (string, error)
}

// WithdrawalStore persists pending withdrawals.
type WithdrawalStore interface {
	CreateWithdrawal(ctx context.Context, w PendingWithdrawal) error
	GetWithdrawal(ctx context.Context, id string) (PendingWithdrawal, error)
	UpdateWithdrawal(ctx context.Context, w PendingWithdrawal) error
	ListWithdrawals(ctx context.Context, status WithdrawalStatus, limit int) ([]PendingWithdrawal, error)
}

// MemoryWithdrawalStore is the in-process WithdrawalStore.
type MemoryWithdrawalStore struct {
	mu sync.RWMutex
	m  map[string]PendingWithdrawal
}

func NewMemoryWithdrawalStore() *MemoryWithdrawalStore {
	return &MemoryWithdrawalStore{m: make(map[string]PendingWithdrawal)}
}

func (s *MemoryWithdrawalStore) CreateWithdrawal(ctx context.Context, w PendingWithdrawal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[w.ID] = w
	return nil
}

func (s *MemoryWithdrawalStore) GetWithdrawal(ctx context.Context, id string) (PendingWithdrawal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	w, ok := s.m[id]
	if !ok {
		return PendingWithdrawal{}, ErrNotFound
	}
	return w, nil
}

func (s *MemoryWithdrawalStore) UpdateWithdrawal(ctx context.Context, w PendingWithdrawal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.m[w.ID]; !ok {
		return ErrNotFound
	}
	s.m[w.ID] = w
	return nil
}

func (s *MemoryWithdrawalStore) ListWithdrawals(ctx context.Context, status WithdrawalStatus, limit int) ([]PendingWithdrawal, error) {
	if limit <= 0 {
		limit = 100
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []PendingWithdrawal
	for _, w := range s.m {
		if status != "" && w.Status != status {
			continue
		}
		out = append(out, w)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// WithdrawalService drives a withdrawal from request through password
// confirmation and approval to the gateway disbursement. The gateway
// call happens after the debit commits;
// a gateway failure leaves the request failed with the funds deducted
// until an operator refunds them.
type WithdrawalService struct {
	wallet    Service
	store     WithdrawalStore
	disburser Disburser
	passwords PasswordSource
	verifier  kyc.Verifier
	notifier  notify.Notifier
	now       func() time.Time
}

func NewWithdrawalService(wallet Service, store WithdrawalStore, disburser Disburser, passwords PasswordSource, verifier kyc.Verifier, notifier notify.Notifier) *WithdrawalService {
	return &WithdrawalService{
		wallet:    wallet,
		store:     store,
		disburser: disburser,
		passwords: passwords,
		verifier:  verifier,
		notifier:  notifier,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Request opens a withdrawal in the awaiting-password state. No funds
// move yet; the available balance is only checked for a fast answer.
func (s *WithdrawalService) Request(ctx context.Context, ownerID string, amount decimal.Decimal, phone string) (PendingWithdrawal, error) {
	if err := s.verifier.IsVerified(ctx, ownerID); err != nil {
		return PendingWithdrawal{}, err
	}
	if !amount.IsPositive() {
		return PendingWithdrawal{}, ErrInvalidAmount
	}
	acc, err := s.wallet.GetOrCreateAccount(ctx, ownerID, DomainMain)
	if err != nil {
		return PendingWithdrawal{}, err
	}
	if acc.Available.LessThan(amount) {
		return PendingWithdrawal{}, &InsufficientBalanceError{Requested: amount, Available: acc.Available}
	}

	now := s.now()
	w := PendingWithdrawal{
		ID:        newID(),
		OwnerID:   ownerID,
		Amount:    amount,
		Phone:     phone,
		Status:    WithdrawalAwaitingPassword,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.CreateWithdrawal(ctx, w); err != nil {
		return PendingWithdrawal{}, err
	}
	return w, nil
}

// ConfirmPassword verifies the member's password. At or under the
// threshold the withdrawal executes immediately; above it the request
// parks for operator approval.
func (s *WithdrawalService) ConfirmPassword(ctx context.Context, id, password string) (PendingWithdrawal, error) {
	w, err := s.store.GetWithdrawal(ctx, id)
	if err != nil {
		return PendingWithdrawal{}, err
	}
	if w.Status != WithdrawalAwaitingPassword {
		return PendingWithdrawal{}, ErrBadWithdrawalOp
	}
	hash, err := s.passwords.PasswordHash(ctx, w.OwnerID)
	if err != nil {
		return PendingWithdrawal{}, err
	}
	if err := auth.VerifyPassword(hash, password); err != nil {
		return PendingWithdrawal{}, ErrWrongPassword
	}

	if w.Amount.GreaterThan(AutoApproveThreshold) {
		w.Status = WithdrawalPendingApproval
		w.UpdatedAt = s.now()
		if err := s.store.UpdateWithdrawal(ctx, w); err != nil {
			return PendingWithdrawal{}, err
		}
		s.notifier.Notify(ctx, notify.Notification{
			MemberID: w.OwnerID,
			Title:    "Withdrawal pending approval",
			Message:  fmt.Sprintf("Your withdrawal of %s is awaiting operator approval.", w.Amount.StringFixed(2)),
			Category: notify.CategoryWallet,
		})
		return w, nil
	}
	return s.execute(ctx, w)
}

// Approve releases a parked withdrawal. Operator action.
func (s *WithdrawalService) Approve(ctx context.Context, id string) (PendingWithdrawal, error) {
	w, err := s.store.GetWithdrawal(ctx, id)
	if err != nil {
		return PendingWithdrawal{}, err
	}
	if w.Status != WithdrawalPendingApproval {
		return PendingWithdrawal{}, ErrBadWithdrawalOp
	}
	return s.execute(ctx, w)
}

// Reject refuses a parked withdrawal. No funds ever moved.
func (s *WithdrawalService) Reject(ctx context.Context, id, reason string) (PendingWithdrawal, error) {
	w, err := s.store.GetWithdrawal(ctx, id)
	if err != nil {
		return PendingWithdrawal{}, err
	}
	if w.Status != WithdrawalPendingApproval && w.Status != WithdrawalAwaitingPassword {
		return PendingWithdrawal{}, ErrBadWithdrawalOp
	}
	w.Status = WithdrawalRejected
	w.FailureReason = reason
	w.UpdatedAt = s.now()
	if err := s.store.UpdateWithdrawal(ctx, w); err != nil {
		return PendingWithdrawal{}, err
	}
	s.notifier.Notify(ctx, notify.Notification{
		MemberID: w.OwnerID,
		Title:    "Withdrawal rejected",
		Message:  fmt.Sprintf("Your withdrawal of %s was rejected: %s", w.Amount.StringFixed(2), reason),
		Category: notify.CategoryWallet,
	})
	return w, nil
}

// execute deducts the funds, then calls the gateway. The debit is
// idempotency-keyed on the withdrawal so a retried execution cannot
// double-deduct.
func (s *WithdrawalService) execute(ctx context.Context, w PendingWithdrawal) (PendingWithdrawal, error) {
	tx, err := s.wallet.DeductFunds(ctx, MutationInput{
		OwnerID:        w.OwnerID,
		Domain:         DomainMain,
		Amount:         w.Amount,
		Type:           TypeWithdrawal,
		Description:    "withdrawal to " + w.Phone,
		IdempotencyKey: "withdrawal-" + w.ID,
		RelatedApp:     "wallet",
		RelatedID:      w.ID,
	})
	if err != nil {
		return PendingWithdrawal{}, err
	}
	w.TransactionID = tx.ID
	w.Status = WithdrawalProcessing
	w.UpdatedAt = s.now()
	if err := s.store.UpdateWithdrawal(ctx, w); err != nil {
		return PendingWithdrawal{}, err
	}

	receipt, err := s.disburser.Disburse(ctx, w.Amount, w.Phone)
	if err != nil {
		// Terminal failure: the request is left failed with the funds
		// deducted, pending an explicit operator refund. The gateway
		// error never propagates into ledger state.
		w.Status = WithdrawalFailed
		w.FailureReason = err.Error()
		w.UpdatedAt = s.now()
		if uerr := s.store.UpdateWithdrawal(ctx, w); uerr != nil {
			return PendingWithdrawal{}, uerr
		}
		_, _ = s.wallet.SetTransactionStatus(ctx, tx.ID, TxFailed)
		s.notifier.Notify(ctx, notify.Notification{
			MemberID: w.OwnerID,
			Title:    "Withdrawal failed",
			Message:  fmt.Sprintf("Your withdrawal of %s could not be sent. Support will follow up.", w.Amount.StringFixed(2)),
			Category: notify.CategoryWallet,
		})
		return w, nil
	}

	w.GatewayReceipt = receipt
	w.Status = WithdrawalCompleted
	w.UpdatedAt = s.now()
	if err := s.store.UpdateWithdrawal(ctx, w); err != nil {
		return PendingWithdrawal{}, err
	}
	s.notifier.Notify(ctx, notify.Notification{
		MemberID: w.OwnerID,
		Title:    "Withdrawal sent",
		Message:  fmt.Sprintf("%s was sent to %s.", w.Amount.StringFixed(2), w.Phone),
		Category: notify.CategoryWallet,
	})
	return w, nil
}

// Refund restores a failed withdrawal's funds through the reversal
// mechanism. Operator action.
func (s *WithdrawalService) Refund(ctx context.Context, id string) (PendingWithdrawal, error) {
	w, err := s.store.GetWithdrawal(ctx, id)
	if err != nil {
		return PendingWithdrawal{}, err
	}
	if w.Status != WithdrawalFailed {
		return PendingWithdrawal{}, ErrBadWithdrawalOp
	}
	if _, err := s.wallet.Reverse(ctx, w.OwnerID, DomainMain, w.TransactionID, "refund of failed withdrawal "+w.ID); err != nil {
		return PendingWithdrawal{}, err
	}
	w.Status = WithdrawalRefunded
	w.UpdatedAt = s.now()
	if err := s.store.UpdateWithdrawal(ctx, w); err != nil {
		return PendingWithdrawal{}, err
	}
	s.notifier.Notify(ctx, notify.Notification{
		MemberID: w.OwnerID,
		Title:    "Withdrawal refunded",
		Message:  fmt.Sprintf("%s from your failed withdrawal was returned to your wallet.", w.Amount.StringFixed(2)),
		Category: notify.CategoryWallet,
	})
	return w, nil
}

// Get exposes one pending withdrawal.
func (s *WithdrawalService) Get(ctx context.Context, id string) (PendingWithdrawal, error) {
	return s.store.GetWithdrawal(ctx, id)
}

// ListPendingApproval lists withdrawals waiting on an operator.
func (s *WithdrawalService) ListPendingApproval(ctx context.Context, limit int) ([]PendingWithdrawal, error) {
	return s.store.ListWithdrawals(ctx, WithdrawalPendingApproval, limit)
}
