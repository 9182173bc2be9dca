package httpapi

import (
	"net/http"
	"strings"
	"time"

	"wekeza.org/internal/auth"
	"wekeza.org/internal/goal"
)

type createGoalRequest struct {
	Name         string `json:"name"`
	Kind         string `json:"kind"`
	Category     string `json:"category"`
	TargetAmount string `json:"target_amount"`
	AnnualRate   string `json:"annual_rate"`
	EndDate      string `json:"end_date"`
}

type expressGoalRequest struct {
	Amount string `json:"amount"`
	Days   int    `json:"days"`
}

type goalDepositRequest struct {
	Amount string `json:"amount"`
}

func (a *API) handleGoalsCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		a.createGoal(w, r)
	case http.MethodGet:
		a.listGoals(w, r)
	default:
		methodNotAllowed(w, r, http.MethodPost, http.MethodGet)
	}
}

func (a *API) createGoal(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return
	}
	var req createGoalRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	target, err := parseAmount(req.TargetAmount)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	in := goal.CreateInput{
		OwnerID:      ownerID,
		Name:         strings.TrimSpace(req.Name),
		Kind:         goal.Kind(req.Kind),
		Category:     goal.Category(req.Category),
		TargetAmount: target,
	}
	if raw := strings.TrimSpace(req.AnnualRate); raw != "" {
		in.AnnualRate, err = parseAmount(raw)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
	}
	if raw := strings.TrimSpace(req.EndDate); raw != "" {
		end, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "end_date must be RFC 3339")
			return
		}
		in.EndDate = &end
	}

	g, err := a.goals.Create(r.Context(), in)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	a.audit(r.Context(), "goal.create", "goal", g.ID, map[string]string{
		"kind":     string(g.Kind),
		"category": string(g.Category),
	})
	w.Header().Set("Location", "/v1/goals/"+g.ID)
	writeJSON(w, http.StatusCreated, g)
}

// handleExpressGoal funds a fixed-term goal from the main wallet in a
// single step.
func (a *API) handleExpressGoal(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	ownerID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return
	}
	var req expressGoalRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	g, err := a.goals.CreateExpress(r.Context(), ownerID, amount, req.Days)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	a.audit(r.Context(), "goal.create_express", "goal", g.ID, map[string]string{
		"amount": amount.StringFixed(2),
	})
	w.Header().Set("Location", "/v1/goals/"+g.ID)
	writeJSON(w, http.StatusCreated, g)
}

func (a *API) listGoals(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return
	}
	items, err := a.goals.ListByOwner(r.Context(), ownerID)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (a *API) handleGoalResource(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/v1/goals/")
	id, action, _ := strings.Cut(path, "/")
	if id == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	memberID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return
	}

	switch action {
	case "":
		if r.Method != http.MethodGet {
			methodNotAllowed(w, r, http.MethodGet)
			return
		}
		g, err := a.goals.Get(r.Context(), id)
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, g)
	case "deposit":
		if r.Method != http.MethodPost {
			methodNotAllowed(w, r, http.MethodPost)
			return
		}
		var req goalDepositRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		amount, err := parseAmount(req.Amount)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		g, err := a.goals.Deposit(r.Context(), id, memberID, amount)
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		a.publish(r.Context(), "goal.deposit", memberID, map[string]string{
			"goal_id": id,
			"amount":  amount.StringFixed(2),
		})
		writeJSON(w, http.StatusOK, g)
	case "withdraw":
		if r.Method != http.MethodPost {
			methodNotAllowed(w, r, http.MethodPost)
			return
		}
		res, err := a.goals.Withdraw(r.Context(), id, memberID)
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		a.publish(r.Context(), "goal.withdraw", memberID, map[string]string{
			"goal_id": id,
			"total":   res.Total.StringFixed(2),
		})
		a.audit(r.Context(), "goal.withdraw", "goal", id, map[string]string{
			"total": res.Total.StringFixed(2),
		})
		writeJSON(w, http.StatusOK, res)
	case "join":
		if r.Method != http.MethodPost {
			methodNotAllowed(w, r, http.MethodPost)
			return
		}
		if err := a.goals.JoinGroup(r.Context(), id, memberID); err != nil {
			handleDomainError(w, r, err)
			return
		}
		a.audit(r.Context(), "goal.join", "goal", id, nil)
		w.WriteHeader(http.StatusNoContent)
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}
