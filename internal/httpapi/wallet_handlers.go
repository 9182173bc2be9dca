package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"wekeza.org/internal/auth"
	"wekeza.org/internal/gateway"
	"wekeza.org/internal/ledger"
	"wekeza.org/internal/stream"
)

var (
	errAmountRequired  = errors.New("amount is required")
	errAmountInvalid   = errors.New("amount must be a positive decimal")
	errIdemKeyMismatch = errors.New("Idempotency-Key header and body value must match")
	errIdemKeyTooLong  = errors.New("Idempotency-Key too long")
	errLimitInvalid    = errors.New("limit must be between 1 and 1000")
)

type transferRequest struct {
	FromDomain     string `json:"from_domain"`
	ToDomain       string `json:"to_domain"`
	Amount         string `json:"amount"`
	Description    string `json:"description"`
	IdempotencyKey string `json:"idempotency_key"`
}

type withdrawalRequest struct {
	Amount string `json:"amount"`
	Phone  string `json:"phone_number"`
}

type passwordRequest struct {
	Password string `json:"password"`
}

type rejectRequest struct {
	Reason string `json:"reason"`
}

type listTransactionsResponse struct {
	Items     []ledger.Transaction `json:"items"`
	NextAfter uint64               `json:"next_after"`
	AsOf      time.Time            `json:"as_of"`
}

func (a *API) handleAccounts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	ownerID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return
	}

	out := map[string]ledger.Account{}
	for _, d := range []ledger.Domain{ledger.DomainMain, ledger.DomainMGR, ledger.DomainGoal} {
		acc, err := a.wallet.GetOrCreateAccount(r.Context(), ownerID, d)
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		out[string(d)] = acc
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *API) handleAccountResource(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	ownerID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return
	}
	domain := ledger.Domain(strings.TrimPrefix(r.URL.Path, "/v1/wallet/accounts/"))
	if !domain.Valid() {
		writeError(w, r, http.StatusNotFound, "unknown wallet domain")
		return
	}
	acc, err := a.wallet.GetOrCreateAccount(r.Context(), ownerID, domain)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, acc)
}

func (a *API) handleTransactions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	ownerID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return
	}
	domain := ledger.Domain(r.URL.Query().Get("domain"))
	if domain == "" {
		domain = ledger.DomainMain
	}
	if !domain.Valid() {
		writeError(w, r, http.StatusBadRequest, "unknown wallet domain")
		return
	}
	limit, err := parsePositiveInt(r.URL.Query().Get("limit"), 100, 1, 1000)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	var after uint64
	if raw := strings.TrimSpace(r.URL.Query().Get("after")); raw != "" {
		after, err = strconv.ParseUint(raw, 10, 64)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "after must be a non-negative integer")
			return
		}
	}

	items, next, err := a.wallet.ListTransactions(r.Context(), ownerID, domain, limit, after)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, listTransactionsResponse{
		Items:     items,
		NextAfter: next,
		AsOf:      time.Now().UTC(),
	})
}

func (a *API) handleTransfer(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	ownerID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return
	}
	var req transferRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	idem, err := idempotencyKey(r, req.IdempotencyKey)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	res, err := a.wallet.Transfer(r.Context(), ledger.TransferInput{
		OwnerID:        ownerID,
		FromDomain:     ledger.Domain(req.FromDomain),
		ToDomain:       ledger.Domain(req.ToDomain),
		Amount:         amount,
		Description:    req.Description,
		IdempotencyKey: idem,
	})
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	if idem != "" {
		w.Header().Set("Idempotency-Key", idem)
	}

	if a.stream != nil {
		a.stream.Publish(stream.FromTransaction(res.Out))
	}
	a.publish(r.Context(), "wallet.transfer", ownerID, map[string]string{
		"from_domain": req.FromDomain,
		"to_domain":   req.ToDomain,
		"amount":      amount.StringFixed(2),
		"reference":   res.Out.ReferenceNumber,
	})
	a.audit(r.Context(), "wallet.transfer.execute", "transaction", res.Out.ID, map[string]string{
		"from_domain": req.FromDomain,
		"to_domain":   req.ToDomain,
		"amount":      amount.StringFixed(2),
	})

	writeJSON(w, http.StatusCreated, res)
}

func (a *API) handleWithdrawalsCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		a.requestWithdrawal(w, r)
	case http.MethodGet:
		a.listPendingWithdrawals(w, r)
	default:
		methodNotAllowed(w, r, http.MethodPost, http.MethodGet)
	}
}

func (a *API) requestWithdrawal(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return
	}
	var req withdrawalRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	wd, err := a.withdrawals.Request(r.Context(), ownerID, amount, req.Phone)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	a.audit(r.Context(), "wallet.withdrawal.request", "withdrawal", wd.ID, map[string]string{
		"amount": amount.StringFixed(2),
	})
	w.Header().Set("Location", "/v1/wallet/withdrawals/"+wd.ID)
	writeJSON(w, http.StatusCreated, wd)
}

// listPendingWithdrawals is the operator queue of amounts above the
// auto-approve threshold.
func (a *API) listPendingWithdrawals(w http.ResponseWriter, r *http.Request) {
	if !operator(r) {
		writeError(w, r, http.StatusForbidden, "operator role required")
		return
	}
	limit, err := parsePositiveInt(r.URL.Query().Get("limit"), 100, 1, 1000)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	items, err := a.withdrawals.ListPendingApproval(r.Context(), limit)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (a *API) handleWithdrawalResource(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/v1/wallet/withdrawals/")
	id, action, _ := strings.Cut(path, "/")
	if id == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}

	switch action {
	case "":
		if r.Method != http.MethodGet {
			methodNotAllowed(w, r, http.MethodGet)
			return
		}
		wd, err := a.withdrawals.Get(r.Context(), id)
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, wd)
	case "password":
		if r.Method != http.MethodPost {
			methodNotAllowed(w, r, http.MethodPost)
			return
		}
		var req passwordRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		wd, err := a.withdrawals.ConfirmPassword(r.Context(), id, req.Password)
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		a.audit(r.Context(), "wallet.withdrawal.password_confirmed", "withdrawal", wd.ID, nil)
		writeJSON(w, http.StatusOK, wd)
	case "approve":
		a.decideWithdrawal(w, r, id, "approve")
	case "reject":
		a.decideWithdrawal(w, r, id, "reject")
	case "refund":
		a.decideWithdrawal(w, r, id, "refund")
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}

func (a *API) decideWithdrawal(w http.ResponseWriter, r *http.Request, id, action string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	if !operator(r) {
		writeError(w, r, http.StatusForbidden, "operator role required")
		return
	}

	var (
		wd  ledger.PendingWithdrawal
		err error
	)
	switch action {
	case "approve":
		wd, err = a.withdrawals.Approve(r.Context(), id)
	case "reject":
		var req rejectRequest
		if derr := decodeJSON(w, r, &req); derr != nil {
			writeError(w, r, http.StatusBadRequest, derr.Error())
			return
		}
		wd, err = a.withdrawals.Reject(r.Context(), id, req.Reason)
	case "refund":
		wd, err = a.withdrawals.Refund(r.Context(), id)
	}
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	a.audit(r.Context(), "wallet.withdrawal."+action, "withdrawal", wd.ID, map[string]string{
		"status": string(wd.Status),
	})
	writeJSON(w, http.StatusOK, wd)
}

// handleDepositCallback takes the mobile money IPN. The receipt number
// doubles as the idempotency key, so redelivery is harmless.
func (a *API) handleDepositCallback(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var cb gateway.DepositCallback
	if err := decodeJSON(w, r, &cb); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	tx, err := a.deposits.Process(r.Context(), cb)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	if a.stream != nil {
		a.stream.Publish(stream.FromTransaction(tx))
	}
	a.publish(r.Context(), "wallet.deposit", cb.MemberID, map[string]string{
		"amount":  cb.Amount.StringFixed(2),
		"receipt": cb.Receipt,
	})
	writeJSON(w, http.StatusOK, tx)
}

func operator(r *http.Request) bool {
	ctx := r.Context()
	return auth.HasRole(ctx, auth.RoleOperator) || auth.HasRole(ctx, auth.RoleAdmin)
}

func parseAmount(raw string) (decimal.Decimal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return decimal.Zero, errAmountRequired
	}
	amount, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, errAmountInvalid
	}
	if !amount.IsPositive() {
		return decimal.Zero, errAmountInvalid
	}
	return amount, nil
}

func idempotencyKey(r *http.Request, bodyKey string) (string, error) {
	idem := strings.TrimSpace(r.Header.Get("Idempotency-Key"))
	bodyKey = strings.TrimSpace(bodyKey)
	if bodyKey != "" {
		if idem == "" {
			idem = bodyKey
		} else if idem != bodyKey {
			return "", errIdemKeyMismatch
		}
	}
	if len(idem) > 128 {
		return "", errIdemKeyTooLong
	}
	return idem, nil
}

func parsePositiveInt(raw string, def, min, max int) (int, error) {
	if strings.TrimSpace(raw) == "" {
		return def, nil
	}
	val, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errLimitInvalid
	}
	if val < min || val > max {
		return 0, errLimitInvalid
	}
	return val, nil
}
