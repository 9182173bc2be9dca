package ledger

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func mustAdd(t *testing.T, s *InMemory, owner string, domain Domain, amount string) Transaction {
	t.Helper()
	tx, err := s.AddFunds(context.Background(), MutationInput{
		OwnerID: owner, Domain: domain, Amount: dec(amount),
	})
	if err != nil {
		t.Fatalf("AddFunds(%s): %v", amount, err)
	}
	return tx
}

func checkAccount(t *testing.T, acc Account, balance, available, locked string) {
	t.Helper()
	if !acc.Balance.Equal(dec(balance)) {
		t.Fatalf("balance = %s, want %s", acc.Balance, balance)
	}
	if !acc.Available.Equal(dec(available)) {
		t.Fatalf("available = %s, want %s", acc.Available, available)
	}
	if !acc.Locked.Equal(dec(locked)) {
		t.Fatalf("locked = %s, want %s", acc.Locked, locked)
	}
	if !acc.Balance.Equal(acc.Available.Add(acc.Locked)) {
		t.Fatalf("invariant broken: balance %s != available %s + locked %s", acc.Balance, acc.Available, acc.Locked)
	}
}

func TestLockReducesSpendableFunds(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()
	mustAdd(t, s, "u1", DomainMain, "1000.00")

	if _, err := s.LockFunds(ctx, "u1", DomainMain, dec("300.00"), "reserve"); err != nil {
		t.Fatalf("LockFunds: %v", err)
	}
	acc, err := s.GetAccount(ctx, "u1", DomainMain)
	if err != nil {
		t.Fatalf("GetAccount: %v", err)
	}
	checkAccount(t, acc, "1000.00", "700.00", "300.00")

	_, err = s.DeductFunds(ctx, MutationInput{OwnerID: "u1", Domain: DomainMain, Amount: dec("800.00")})
	if !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected insufficient balance, got %v", err)
	}
	var ib *InsufficientBalanceError
	if !errors.As(err, &ib) {
		t.Fatalf("expected InsufficientBalanceError, got %T", err)
	}
	if !ib.Shortfall().Equal(dec("100.00")) {
		t.Fatalf("shortfall = %s, want 100.00", ib.Shortfall())
	}
}

func TestLockUnlockRoundTrip(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()
	mustAdd(t, s, "u1", DomainMain, "500.00")

	if _, err := s.LockFunds(ctx, "u1", DomainMain, dec("200.00"), "reserve"); err != nil {
		t.Fatalf("LockFunds: %v", err)
	}
	if _, err := s.UnlockFunds(ctx, "u1", DomainMain, dec("200.00"), "release"); err != nil {
		t.Fatalf("UnlockFunds: %v", err)
	}
	acc, _ := s.GetAccount(ctx, "u1", DomainMain)
	checkAccount(t, acc, "500.00", "500.00", "0")
}

func TestAddFundsIdempotent(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()
	in := MutationInput{
		OwnerID: "u1", Domain: DomainMain, Amount: dec("250.00"),
		IdempotencyKey: "mpesa-deposit-ABC123",
	}
	first, err := s.AddFunds(ctx, in)
	if err != nil {
		t.Fatalf("AddFunds: %v", err)
	}
	second, err := s.AddFunds(ctx, in)
	if err != nil {
		t.Fatalf("AddFunds replay: %v", err)
	}
	if first.ID != second.ID {
		t.Fatalf("replay created a new transaction: %s vs %s", first.ID, second.ID)
	}
	acc, _ := s.GetAccount(ctx, "u1", DomainMain)
	checkAccount(t, acc, "250.00", "250.00", "0")

	txs, _, err := s.ListTransactions(ctx, "u1", DomainMain, 10, 0)
	if err != nil {
		t.Fatalf("ListTransactions: %v", err)
	}
	if len(txs) != 1 {
		t.Fatalf("expected exactly one transaction row, got %d", len(txs))
	}
}

func TestTransferConservation(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()
	mustAdd(t, s, "u1", DomainMain, "1000.00")

	res, err := s.Transfer(ctx, TransferInput{
		OwnerID: "u1", FromDomain: DomainMain, ToDomain: DomainMGR,
		Amount: dec("400.00"), IdempotencyKey: "xfer-1",
	})
	if err != nil {
		t.Fatalf("Transfer: %v", err)
	}
	if res.Out.Type != TypeTransferOut || res.In.Type != TypeTransferIn {
		t.Fatalf("unexpected leg types: %s / %s", res.Out.Type, res.In.Type)
	}

	main, _ := s.GetAccount(ctx, "u1", DomainMain)
	mgr, _ := s.GetAccount(ctx, "u1", DomainMGR)
	checkAccount(t, main, "600.00", "600.00", "0")
	checkAccount(t, mgr, "400.00", "400.00", "0")
	if !main.Balance.Add(mgr.Balance).Equal(dec("1000.00")) {
		t.Fatalf("transfer did not conserve funds: %s + %s", main.Balance, mgr.Balance)
	}

	// Retried transfer with the same key must not move money again.
	replay, err := s.Transfer(ctx, TransferInput{
		OwnerID: "u1", FromDomain: DomainMain, ToDomain: DomainMGR,
		Amount: dec("400.00"), IdempotencyKey: "xfer-1",
	})
	if err != nil {
		t.Fatalf("Transfer replay: %v", err)
	}
	if replay.Out.ID != res.Out.ID || replay.In.ID != res.In.ID {
		t.Fatal("replay minted new transactions")
	}
	main, _ = s.GetAccount(ctx, "u1", DomainMain)
	checkAccount(t, main, "600.00", "600.00", "0")
}

func TestTransferRejectsSameDomain(t *testing.T) {
	s := NewInMemory()
	_, err := s.Transfer(context.Background(), TransferInput{
		OwnerID: "u1", FromDomain: DomainMain, ToDomain: DomainMain, Amount: dec("10.00"),
	})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestReserveContributionTopsUpShortfall(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()
	mustAdd(t, s, "u1", DomainMain, "900.00")
	mustAdd(t, s, "u1", DomainMGR, "300.00")

	res, err := s.ReserveContribution(ctx, "u1", dec("1000.00"), "round-1")
	if err != nil {
		t.Fatalf("ReserveContribution: %v", err)
	}
	if res.TopUp == nil {
		t.Fatal("expected an auto top-up")
	}
	if !res.TopUpAmt.Equal(dec("700.00")) {
		t.Fatalf("top-up = %s, want exactly the shortfall 700.00", res.TopUpAmt)
	}

	main, _ := s.GetAccount(ctx, "u1", DomainMain)
	mgr, _ := s.GetAccount(ctx, "u1", DomainMGR)
	checkAccount(t, main, "200.00", "200.00", "0")
	checkAccount(t, mgr, "1000.00", "0", "1000.00")
}

func TestReserveContributionInsufficientAcrossBoth(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()
	mustAdd(t, s, "u1", DomainMain, "100.00")
	mustAdd(t, s, "u1", DomainMGR, "200.00")

	_, err := s.ReserveContribution(ctx, "u1", dec("1000.00"), "round-1")
	var ib *InsufficientBalanceError
	if !errors.As(err, &ib) {
		t.Fatalf("expected InsufficientBalanceError, got %v", err)
	}
	if !ib.Shortfall().Equal(dec("700.00")) {
		t.Fatalf("shortfall = %s, want 700.00 across both wallets", ib.Shortfall())
	}

	// Failed reservation must leave both ledgers untouched.
	main, _ := s.GetAccount(ctx, "u1", DomainMain)
	mgr, _ := s.GetAccount(ctx, "u1", DomainMGR)
	checkAccount(t, main, "100.00", "100.00", "0")
	checkAccount(t, mgr, "200.00", "200.00", "0")
}

func TestSpendLockedConsumesReservation(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()
	mustAdd(t, s, "u1", DomainMGR, "1000.00")
	if _, err := s.LockFunds(ctx, "u1", DomainMGR, dec("1000.00"), "reserve"); err != nil {
		t.Fatalf("LockFunds: %v", err)
	}

	tx, err := s.SpendLocked(ctx, MutationInput{
		OwnerID: "u1", Domain: DomainMGR, Amount: dec("1000.00"),
	})
	if err != nil {
		t.Fatalf("SpendLocked: %v", err)
	}
	if tx.Type != TypeContribution {
		t.Fatalf("type = %s, want contribution", tx.Type)
	}
	acc, _ := s.GetAccount(ctx, "u1", DomainMGR)
	checkAccount(t, acc, "0", "0", "0")
}

func TestReverseRestoresAvailable(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()
	mustAdd(t, s, "u1", DomainMain, "500.00")
	debit, err := s.DeductFunds(ctx, MutationInput{
		OwnerID: "u1", Domain: DomainMain, Amount: dec("200.00"),
	})
	if err != nil {
		t.Fatalf("DeductFunds: %v", err)
	}

	rev, err := s.Reverse(ctx, "u1", DomainMain, debit.ID, "gateway disbursement failed")
	if err != nil {
		t.Fatalf("Reverse: %v", err)
	}
	if rev.Type != TypeReversal {
		t.Fatalf("type = %s, want reversal", rev.Type)
	}
	acc, _ := s.GetAccount(ctx, "u1", DomainMain)
	checkAccount(t, acc, "500.00", "500.00", "0")

	orig, _ := s.GetTransaction(ctx, debit.ID)
	if orig.Status != TxReversed {
		t.Fatalf("original status = %s, want reversed", orig.Status)
	}
	if _, err := s.Reverse(ctx, "u1", DomainMain, debit.ID, "again"); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected second reversal to be rejected, got %v", err)
	}
}

func TestFrozenAccountRejectsMutations(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()
	mustAdd(t, s, "u1", DomainMain, "100.00")
	if _, err := s.SetAccountStatus(ctx, "u1", DomainMain, AccountFrozen); err != nil {
		t.Fatalf("SetAccountStatus: %v", err)
	}
	if _, err := s.AddFunds(ctx, MutationInput{OwnerID: "u1", Domain: DomainMain, Amount: dec("10.00")}); !errors.Is(err, ErrAccountNotActive) {
		t.Fatalf("expected account-not-active, got %v", err)
	}
}

func TestConcurrentDeposits(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()
	const n = 50

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.AddFunds(ctx, MutationInput{
				OwnerID: "u1", Domain: DomainMain, Amount: dec("100.00"),
			}); err != nil {
				t.Errorf("AddFunds: %v", err)
			}
		}()
	}
	wg.Wait()

	acc, err := s.GetAccount(ctx, "u1", DomainMain)
	if err != nil {
		t.Fatalf("GetAccount: %v", err)
	}
	want := dec("100.00").Mul(decimal.NewFromInt(n))
	if !acc.Balance.Equal(want) {
		t.Fatalf("balance = %s, want %s (lost update)", acc.Balance, want)
	}
	txs, _, _ := s.ListTransactions(ctx, "u1", DomainMain, 1000, 0)
	if len(txs) != n {
		t.Fatalf("expected %d transaction rows, got %d", n, len(txs))
	}
}

func TestBalanceSnapshotsAreConsistent(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()
	mustAdd(t, s, "u1", DomainMain, "100.00")
	tx := mustAdd(t, s, "u1", DomainMain, "50.00")
	if !tx.BalanceBefore.Equal(dec("100.00")) || !tx.BalanceAfter.Equal(dec("150.00")) {
		t.Fatalf("snapshots = %s -> %s, want 100.00 -> 150.00", tx.BalanceBefore, tx.BalanceAfter)
	}

	debit, err := s.DeductFunds(ctx, MutationInput{OwnerID: "u1", Domain: DomainMain, Amount: dec("30.00")})
	if err != nil {
		t.Fatalf("DeductFunds: %v", err)
	}
	if !debit.BalanceBefore.Equal(dec("150.00")) || !debit.BalanceAfter.Equal(dec("120.00")) {
		t.Fatalf("snapshots = %s -> %s, want 150.00 -> 120.00", debit.BalanceBefore, debit.BalanceAfter)
	}
}
