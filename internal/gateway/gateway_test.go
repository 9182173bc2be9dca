package gateway

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"wekeza.org/internal/ledger"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestDepositCallbackIdempotent(t *testing.T) {
	ctx := context.Background()
	wallet := ledger.NewInMemory()
	p := NewDepositProcessor(wallet)

	cb := DepositCallback{
		MemberID: "u1",
		Amount:   dec("750.00"),
		Receipt:  "SBC12345",
		Phone:    "254700000001",
	}
	first, err := p.Process(ctx, cb)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if first.ExternalReceipt != "SBC12345" {
		t.Fatalf("receipt = %s", first.ExternalReceipt)
	}

	// The gateway redelivers; the receipt key must stop a double credit.
	second, err := p.Process(ctx, cb)
	if err != nil {
		t.Fatalf("Process redelivery: %v", err)
	}
	if first.ID != second.ID {
		t.Fatal("redelivered callback minted a new transaction")
	}
	acc, _ := wallet.GetAccount(ctx, "u1", ledger.DomainMain)
	if !acc.Balance.Equal(dec("750.00")) {
		t.Fatalf("balance = %s, want a single credit of 750.00", acc.Balance)
	}
}

func TestDepositCallbackRequiresReceipt(t *testing.T) {
	p := NewDepositProcessor(ledger.NewInMemory())
	_, err := p.Process(context.Background(), DepositCallback{MemberID: "u1", Amount: dec("10.00")})
	if !errors.Is(err, ledger.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestDisburseRetriesServerErrors(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"receipt":"OUT777","status":"ok"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 2*time.Second)
	c.backoff = time.Millisecond
	receipt, err := c.Disburse(context.Background(), dec("100.00"), "254700000001")
	if err != nil {
		t.Fatalf("Disburse: %v", err)
	}
	if receipt != "OUT777" {
		t.Fatalf("receipt = %s", receipt)
	}
	if calls != 3 {
		t.Fatalf("calls = %d, want 3", calls)
	}
}

func TestDisburseDoesNotRetryRejections(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 2*time.Second)
	c.backoff = time.Millisecond
	_, err := c.Disburse(context.Background(), dec("100.00"), "254700000001")
	if !errors.Is(err, ErrDisbursementFailed) {
		t.Fatalf("expected disbursement failure, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("calls = %d, a terminal rejection must not be retried", calls)
	}
}
