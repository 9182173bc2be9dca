package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"wekeza.org/internal/audit"
	"wekeza.org/internal/auth"
	"wekeza.org/internal/ledger"
)

// Credentials resolves a member's stored password hash and the roles
// granted to them. Token issuance never takes roles from the request.
type Credentials interface {
	PasswordHash(ctx context.Context, memberID string) (string, error)
	Roles(ctx context.Context, memberID string) ([]string, error)
}

type tokenRequest struct {
	MemberID string `json:"member_id"`
	Password string `json:"password"`
}

type tokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

const tokenTTL = 15 * time.Minute

func (a *API) handleAuthToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	if a.credentials == nil {
		writeError(w, r, http.StatusServiceUnavailable, "authentication is not configured")
		return
	}

	var req tokenRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	memberID := strings.TrimSpace(req.MemberID)
	if memberID == "" {
		writeError(w, r, http.StatusBadRequest, "member_id is required")
		return
	}
	if req.Password == "" {
		writeError(w, r, http.StatusBadRequest, "password is required")
		return
	}

	hash, err := a.credentials.PasswordHash(r.Context(), memberID)
	if errors.Is(err, ledger.ErrNotFound) || errors.Is(err, ledger.ErrAccountNotActive) {
		writeError(w, r, http.StatusForbidden, "invalid credentials")
		return
	}
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "credential lookup failed")
		return
	}
	if err := auth.VerifyPassword(hash, req.Password); err != nil {
		_ = audit.LogEvent(r.Context(), "auth.token.denied", map[string]any{
			"member_id": memberID,
		})
		writeError(w, r, http.StatusForbidden, "invalid credentials")
		return
	}

	roles, err := a.credentials.Roles(r.Context(), memberID)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "credential lookup failed")
		return
	}
	if len(roles) == 0 {
		roles = []string{auth.RoleMember}
	}

	token, err := auth.GenerateToken(memberID, roles, tokenTTL)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "token generation failed")
		return
	}

	expiresAt := time.Now().UTC().Add(tokenTTL)
	_ = audit.LogEvent(r.Context(), "auth.token.issued", map[string]any{
		"member_id":  memberID,
		"roles":      roles,
		"expires_at": expiresAt.Format(time.RFC3339),
	})

	writeJSON(w, http.StatusOK, tokenResponse{
		Token:     token,
		ExpiresAt: expiresAt,
	})
}
