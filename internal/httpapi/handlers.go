package httpapi

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"wekeza.org/internal/audit"
	"wekeza.org/internal/events"
	"wekeza.org/internal/gateway"
	"wekeza.org/internal/goal"
	"wekeza.org/internal/kyc"
	"wekeza.org/internal/ledger"
	"wekeza.org/internal/obs"
	"wekeza.org/internal/round"
	"wekeza.org/internal/stream"
)

// ReadyProbe reports whether the service can take traffic (for example
// a DB ping).
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// Options wires the HTTP layer to the domain services.
type Options struct {
	Ready       ReadyProbe
	Version     string
	Wallet      ledger.Service
	Withdrawals *ledger.WithdrawalService
	Rounds      *round.Service
	Goals       *goal.Service
	Deposits    *gateway.DepositProcessor
	Events      events.Publisher
	Stream      *stream.Stream
	Credentials Credentials
}

// API is the HTTP layer.
type API struct {
	mux         *http.ServeMux
	readyProbe  ReadyProbe
	version     string
	wallet      ledger.Service
	withdrawals *ledger.WithdrawalService
	rounds      *round.Service
	goals       *goal.Service
	deposits    *gateway.DepositProcessor
	events      events.Publisher
	stream      *stream.Stream
	credentials Credentials
}

func New(opts Options) *API {
	a := &API{
		mux:         http.NewServeMux(),
		readyProbe:  opts.Ready,
		version:     opts.Version,
		wallet:      opts.Wallet,
		withdrawals: opts.Withdrawals,
		rounds:      opts.Rounds,
		goals:       opts.Goals,
		deposits:    opts.Deposits,
		events:      opts.Events,
		stream:      opts.Stream,
		credentials: opts.Credentials,
	}
	if a.events == nil {
		a.events = events.Noop{}
	}

	// health/ready/info
	a.mux.HandleFunc("/healthz", a.Healthz)
	a.mux.HandleFunc("/readyz", a.Ready)
	a.mux.HandleFunc("/v1/info", a.Info)

	// Prometheus metrics
	a.mux.Handle("/metrics", obs.Handler())

	a.mux.HandleFunc("/v1/auth/token", a.handleAuthToken)

	a.mux.HandleFunc("/v1/wallet/accounts", a.handleAccounts)
	a.mux.HandleFunc("/v1/wallet/accounts/", a.handleAccountResource)
	a.mux.HandleFunc("/v1/wallet/transactions", a.handleTransactions)
	a.mux.HandleFunc("/v1/wallet/transfer", a.handleTransfer)
	a.mux.HandleFunc("/v1/wallet/withdrawals", a.handleWithdrawalsCollection)
	a.mux.HandleFunc("/v1/wallet/withdrawals/", a.handleWithdrawalResource)

	a.mux.HandleFunc("/v1/rounds", a.handleRoundsCollection)
	a.mux.HandleFunc("/v1/rounds/", a.handleRoundResource)

	a.mux.HandleFunc("/v1/goals", a.handleGoalsCollection)
	a.mux.HandleFunc("/v1/goals/express", a.handleExpressGoal)
	a.mux.HandleFunc("/v1/goals/", a.handleGoalResource)

	a.mux.HandleFunc("/v1/callbacks/mpesa", a.handleDepositCallback)

	a.mux.HandleFunc("/v1/stream", a.Stream)

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	return a
}

// Handler returns the instrumented, authenticated handler chain.
func (a *API) Handler() http.Handler {
	return obs.Instrument(a.withAuth(a.mux))
}

// --- Handlers ---

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "wekeza-api",
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.readyProbe.Check(r.Context()); err != nil {
		obs.SetReady(false)
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	obs.SetReady(true)
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}

func (a *API) Info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    "wekeza-api",
		"time":    time.Now().UTC().Format(time.RFC3339),
		"version": a.version,
	})
}

func (a *API) audit(ctx context.Context, event, entity, id string, meta map[string]string) {
	fields := map[string]any{
		"entity":    entity,
		"entity_id": id,
	}
	for k, v := range meta {
		fields[k] = v
	}
	_ = audit.LogEvent(ctx, event, fields)
}

func (a *API) publish(ctx context.Context, eventType, memberID string, fields map[string]string) {
	_ = a.events.Publish(ctx, events.Event{
		Type:       eventType,
		OccurredAt: time.Now().UTC(),
		MemberID:   memberID,
		Fields:     fields,
	})
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	payload := map[string]any{
		"error": msg,
	}
	if rid := RequestIDFromContext(r.Context()); rid != "" {
		payload["request_id"] = rid
	}
	writeJSON(w, code, payload)
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request, allowed ...string) {
	w.Header().Set("Allow", strings.Join(allowed, ", "))
	writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	reader := http.MaxBytesReader(w, r.Body, 1<<20)
	defer reader.Close()
	dec := json.NewDecoder(reader)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("unexpected data after JSON body")
		}
		return err
	}
	return nil
}

// handleDomainError maps service errors onto HTTP statuses. Validation
// problems are the caller's fault, balance and lifecycle conflicts are
// 409, gateway trouble is 502.
func handleDomainError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ledger.ErrInvalidAmount),
		errors.Is(err, ledger.ErrValidation),
		errors.Is(err, round.ErrValidation),
		errors.Is(err, goal.ErrValidation):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, kyc.ErrNotVerified),
		errors.Is(err, round.ErrTrustTooLow),
		errors.Is(err, ledger.ErrWrongPassword):
		writeError(w, r, http.StatusForbidden, err.Error())
	case errors.Is(err, ledger.ErrInsufficientBalance),
		errors.Is(err, ledger.ErrAccountNotActive),
		errors.Is(err, ledger.ErrBadWithdrawalOp),
		errors.Is(err, round.ErrRoundFull),
		errors.Is(err, round.ErrNotJoinable),
		errors.Is(err, round.ErrAlreadyJoined),
		errors.Is(err, round.ErrNotActive),
		errors.Is(err, round.ErrNotEnough),
		errors.Is(err, goal.ErrNotWithdrawable),
		errors.Is(err, goal.ErrInactive):
		writeError(w, r, http.StatusConflict, err.Error())
	case errors.Is(err, ledger.ErrNotFound),
		errors.Is(err, round.ErrNotFound),
		errors.Is(err, goal.ErrNotFound):
		writeError(w, r, http.StatusNotFound, err.Error())
	case errors.Is(err, ledger.ErrExternalGateway):
		writeError(w, r, http.StatusBadGateway, err.Error())
	default:
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}
