package httpapi

import (
	"net/http"
	"strings"
	"time"

	"wekeza.org/internal/auth"
	"wekeza.org/internal/round"
)

type createRoundRequest struct {
	Name          string `json:"name"`
	Type          string `json:"round_type"`
	PayoutModel   string `json:"payout_model"`
	Amount        string `json:"contribution_amount"`
	Frequency     string `json:"frequency"`
	MaxMembers    int    `json:"max_members"`
	InterestRate  string `json:"interest_rate"`
	MinTrustScore int    `json:"min_trust_score"`
}

func (a *API) handleRoundsCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		a.createRound(w, r)
	case http.MethodGet:
		a.listOpenRounds(w, r)
	default:
		methodNotAllowed(w, r, http.MethodPost, http.MethodGet)
	}
}

func (a *API) createRound(w http.ResponseWriter, r *http.Request) {
	creatorID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return
	}
	var req createRoundRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	in := round.CreateInput{
		Name:               strings.TrimSpace(req.Name),
		CreatorID:          creatorID,
		Type:               round.Type(req.Type),
		PayoutModel:        round.PayoutModel(req.PayoutModel),
		ContributionAmount: amount,
		Frequency:          round.Frequency(req.Frequency),
		MaxMembers:         req.MaxMembers,
		MinTrustScore:      req.MinTrustScore,
	}
	if raw := strings.TrimSpace(req.InterestRate); raw != "" {
		in.InterestRate, err = parseAmount(raw)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
	}

	rd, err := a.rounds.CreateRound(r.Context(), in)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	a.publish(r.Context(), "round.created", creatorID, map[string]string{
		"round_id":     rd.ID,
		"payout_model": string(rd.PayoutModel),
	})
	a.audit(r.Context(), "round.create", "round", rd.ID, map[string]string{
		"amount":    amount.StringFixed(2),
		"frequency": string(rd.Frequency),
	})
	w.Header().Set("Location", "/v1/rounds/"+rd.ID)
	writeJSON(w, http.StatusCreated, rd)
}

func (a *API) listOpenRounds(w http.ResponseWriter, r *http.Request) {
	limit, err := parsePositiveInt(r.URL.Query().Get("limit"), 100, 1, 1000)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	items, err := a.rounds.ListOpenRounds(r.Context(), limit)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (a *API) handleRoundResource(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/v1/rounds/")
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
		rd, err := a.rounds.GetRound(r.Context(), id)
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, rd)
	case "join":
		a.joinRound(w, r, id)
	case "start":
		a.startRound(w, r, id)
	case "cancel":
		a.cancelRound(w, r, id)
	case "stats":
		if r.Method != http.MethodGet {
			methodNotAllowed(w, r, http.MethodGet)
			return
		}
		stats, err := a.rounds.GetCompletionStats(r.Context(), id)
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, stats)
	case "projection":
		if r.Method != http.MethodGet {
			methodNotAllowed(w, r, http.MethodGet)
			return
		}
		proj, err := a.rounds.Project(r.Context(), id)
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, proj)
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}

func (a *API) joinRound(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	memberID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return
	}
	m, err := a.rounds.JoinRound(r.Context(), id, memberID)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	a.publish(r.Context(), "round.joined", memberID, map[string]string{
		"round_id": id,
	})
	a.audit(r.Context(), "round.join", "round", id, map[string]string{
		"membership_id": m.ID,
	})
	writeJSON(w, http.StatusCreated, m)
}

// startRound is for the creator who wants to begin before all seats
// are taken; a full round starts on its own.
func (a *API) startRound(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return
	}
	rd, err := a.rounds.GetRound(r.Context(), id)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	if rd.CreatorID != userID && !operator(r) {
		writeError(w, r, http.StatusForbidden, "only the round creator can start it")
		return
	}
	rd, err = a.rounds.StartRound(r.Context(), id)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	a.audit(r.Context(), "round.start", "round", id, map[string]string{
		"start_date": rd.StartDate.Format(time.RFC3339),
	})
	writeJSON(w, http.StatusOK, rd)
}

func (a *API) cancelRound(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return
	}
	rd, err := a.rounds.GetRound(r.Context(), id)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	if rd.CreatorID != userID && !operator(r) {
		writeError(w, r, http.StatusForbidden, "only the round creator can cancel it")
		return
	}
	if err := a.rounds.CancelRound(r.Context(), id); err != nil {
		handleDomainError(w, r, err)
		return
	}
	a.audit(r.Context(), "round.cancel", "round", id, nil)
	w.WriteHeader(http.StatusNoContent)
}
