package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"wekeza.org/internal/auth"
	"wekeza.org/internal/config"
	"wekeza.org/internal/gateway"
	"wekeza.org/internal/goal"
	"wekeza.org/internal/kyc"
	"wekeza.org/internal/ledger"
	"wekeza.org/internal/notify"
	"wekeza.org/internal/round"
	"wekeza.org/internal/stream"
)

type fakeDisburser struct{}

func (fakeDisburser) Disburse(ctx context.Context, amount decimal.Decimal, phone string) (string, error) {
	return "GW-TEST", nil
}

type fakePasswords struct{}

func (fakePasswords) PasswordHash(ctx context.Context, memberID string) (string, error) {
	if memberID == "ghost" {
		return "", ledger.ErrNotFound
	}
	return auth.HashPassword("correct horse")
}

func (fakePasswords) Roles(ctx context.Context, memberID string) ([]string, error) {
	if memberID == "op-1" {
		return []string{auth.RoleMember, auth.RoleOperator}, nil
	}
	return []string{auth.RoleMember}, nil
}

func testRates() config.RateSnapshot {
	return config.RateSnapshot{
		DefaultInterestRate:    decimal.RequireFromString("12"),
		TaxRate:                decimal.RequireFromString("15"),
		RotationalModelEnabled: true,
	}
}

func newTestAPI(t *testing.T) (*API, ledger.Service) {
	t.Helper()
	t.Setenv("WEKEZA_AUTH_SECRET", "handler-test-secret")
	auth.ResetSecretForTests()
	t.Cleanup(auth.ResetSecretForTests)

	wallet := ledger.NewInMemory()
	verifier := kyc.AllowAll{}
	notifier := notify.Noop{}
	withdrawals := ledger.NewWithdrawalService(
		wallet, ledger.NewMemoryWithdrawalStore(), fakeDisburser{}, fakePasswords{}, verifier, notifier)
	rounds := round.NewService(round.NewMemoryStore(), wallet, testRates, notifier, verifier)
	goals := goal.NewService(goal.NewMemoryStore(), wallet, testRates, notifier, verifier)

	api := New(Options{
		Version:     "test",
		Wallet:      wallet,
		Withdrawals: withdrawals,
		Rounds:      rounds,
		Goals:       goals,
		Deposits:    gateway.NewDepositProcessor(wallet),
		Stream:      stream.New(),
		Credentials: fakePasswords{},
	})
	return api, wallet
}

func bearerFor(t *testing.T, memberID string, roles ...string) string {
	t.Helper()
	if len(roles) == 0 {
		roles = []string{auth.RoleMember}
	}
	token, err := auth.GenerateToken(memberID, roles, tokenTTL)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	return "Bearer " + token
}

func doJSON(t *testing.T, h http.Handler, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set(authHeader, token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealthzIsPublic(t *testing.T) {
	api, _ := newTestAPI(t)
	rec := doJSON(t, api.Handler(), http.MethodGet, "/healthz", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["service"] != "wekeza-api" {
		t.Fatalf("unexpected service name: %v", body["service"])
	}
}

func TestWalletEndpointsRequireToken(t *testing.T) {
	api, _ := newTestAPI(t)
	rec := doJSON(t, api.Handler(), http.MethodGet, "/v1/wallet/accounts", "", "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestTransferBetweenDomains(t *testing.T) {
	api, wallet := newTestAPI(t)
	if _, err := wallet.AddFunds(context.Background(), ledger.MutationInput{
		OwnerID: "alice", Domain: ledger.DomainMain,
		Amount: decimal.RequireFromString("500.00"),
	}); err != nil {
		t.Fatalf("seed funds: %v", err)
	}
	token := bearerFor(t, "alice")

	body := `{"from_domain":"main","to_domain":"mgr","amount":"200.00","idempotency_key":"tr-1"}`
	rec := doJSON(t, api.Handler(), http.MethodPost, "/v1/wallet/transfer", token, body)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var res ledger.TransferResult
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode transfer result: %v", err)
	}
	if res.Out.Type != ledger.TypeTransferOut || res.In.Type != ledger.TypeTransferIn {
		t.Fatalf("unexpected legs: %s / %s", res.Out.Type, res.In.Type)
	}

	// Replay with the same key returns the original legs and moves no money.
	rec = doJSON(t, api.Handler(), http.MethodPost, "/v1/wallet/transfer", token, body)
	if rec.Code != http.StatusCreated {
		t.Fatalf("replay: expected 201, got %d", rec.Code)
	}
	var replay ledger.TransferResult
	if err := json.Unmarshal(rec.Body.Bytes(), &replay); err != nil {
		t.Fatalf("decode replay: %v", err)
	}
	if replay.Out.ReferenceNumber != res.Out.ReferenceNumber {
		t.Fatalf("replay produced a new transaction")
	}
	acc, err := wallet.GetAccount(context.Background(), "alice", ledger.DomainMain)
	if err != nil {
		t.Fatalf("GetAccount: %v", err)
	}
	if !acc.Balance.Equal(decimal.RequireFromString("300.00")) {
		t.Fatalf("expected main balance 300.00, got %s", acc.Balance)
	}
}

func TestTransferInsufficientIsConflict(t *testing.T) {
	api, _ := newTestAPI(t)
	token := bearerFor(t, "bob")
	body := `{"from_domain":"main","to_domain":"mgr","amount":"50.00"}`
	rec := doJSON(t, api.Handler(), http.MethodPost, "/v1/wallet/transfer", token, body)
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestDepositCallbackIsIdempotent(t *testing.T) {
	api, wallet := newTestAPI(t)
	body := `{"member_id":"carol","amount":"750.00","receipt":"SBC12345","phone_number":"+254700000002"}`

	for i := 0; i < 2; i++ {
		rec := doJSON(t, api.Handler(), http.MethodPost, "/v1/callbacks/mpesa", "", body)
		if rec.Code != http.StatusOK {
			t.Fatalf("callback %d: expected 200, got %d: %s", i, rec.Code, rec.Body.String())
		}
	}

	acc, err := wallet.GetAccount(context.Background(), "carol", ledger.DomainMain)
	if err != nil {
		t.Fatalf("GetAccount: %v", err)
	}
	if !acc.Balance.Equal(decimal.RequireFromString("750.00")) {
		t.Fatalf("redelivered callback double-credited: %s", acc.Balance)
	}
}

func TestUnknownRoundIsNotFound(t *testing.T) {
	api, _ := newTestAPI(t)
	token := bearerFor(t, "alice")
	rec := doJSON(t, api.Handler(), http.MethodGet, "/v1/rounds/nope", token, "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestCreateAndJoinRoundOverHTTP(t *testing.T) {
	api, wallet := newTestAPI(t)
	for _, owner := range []string{"alice", "bob"} {
		if _, err := wallet.AddFunds(context.Background(), ledger.MutationInput{
			OwnerID: owner, Domain: ledger.DomainMain,
			Amount: decimal.RequireFromString("5000.00"),
		}); err != nil {
			t.Fatalf("seed %s: %v", owner, err)
		}
	}

	creator := bearerFor(t, "alice")
	body := `{"name":"office circle","round_type":"private","payout_model":"marathon","contribution_amount":"1000.00","frequency":"weekly","max_members":3}`
	rec := doJSON(t, api.Handler(), http.MethodPost, "/v1/rounds", creator, body)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create round: expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var rd round.Round
	if err := json.Unmarshal(rec.Body.Bytes(), &rd); err != nil {
		t.Fatalf("decode round: %v", err)
	}

	rec = doJSON(t, api.Handler(), http.MethodPost, "/v1/rounds/"+rd.ID+"/join", bearerFor(t, "bob"), "")
	if rec.Code != http.StatusCreated {
		t.Fatalf("join round: expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	// Joining twice is a conflict.
	rec = doJSON(t, api.Handler(), http.MethodPost, "/v1/rounds/"+rd.ID+"/join", bearerFor(t, "bob"), "")
	if rec.Code != http.StatusConflict {
		t.Fatalf("rejoin: expected 409, got %d", rec.Code)
	}
}

func TestWithdrawalOperatorGate(t *testing.T) {
	api, wallet := newTestAPI(t)
	if _, err := wallet.AddFunds(context.Background(), ledger.MutationInput{
		OwnerID: "alice", Domain: ledger.DomainMain,
		Amount: decimal.RequireFromString("10000.00"),
	}); err != nil {
		t.Fatalf("seed funds: %v", err)
	}
	member := bearerFor(t, "alice")

	rec := doJSON(t, api.Handler(), http.MethodPost, "/v1/wallet/withdrawals", member,
		`{"amount":"5000.00","phone_number":"+254700000001"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("request withdrawal: expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var wd ledger.PendingWithdrawal
	if err := json.Unmarshal(rec.Body.Bytes(), &wd); err != nil {
		t.Fatalf("decode withdrawal: %v", err)
	}

	rec = doJSON(t, api.Handler(), http.MethodPost, "/v1/wallet/withdrawals/"+wd.ID+"/password", member,
		`{"password":"correct horse"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("confirm password: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	// Members cannot approve their own withdrawals.
	rec = doJSON(t, api.Handler(), http.MethodPost, "/v1/wallet/withdrawals/"+wd.ID+"/approve", member, "")
	if rec.Code != http.StatusForbidden {
		t.Fatalf("member approve: expected 403, got %d", rec.Code)
	}

	operator := bearerFor(t, "ops-1", auth.RoleOperator)
	rec = doJSON(t, api.Handler(), http.MethodPost, "/v1/wallet/withdrawals/"+wd.ID+"/approve", operator, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("operator approve: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var approved ledger.PendingWithdrawal
	if err := json.Unmarshal(rec.Body.Bytes(), &approved); err != nil {
		t.Fatalf("decode approved: %v", err)
	}
	if approved.Status != ledger.WithdrawalCompleted {
		t.Fatalf("expected completed withdrawal, got %s", approved.Status)
	}
}
