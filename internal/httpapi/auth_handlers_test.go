package httpapi

import (
	"encoding/json"
	"net/http"
	"testing"

	"wekeza.org/internal/auth"
)

func TestTokenRequiresPassword(t *testing.T) {
	api, _ := newTestAPI(t)
	rec := doJSON(t, api.Handler(), http.MethodPost, "/v1/auth/token", "",
		`{"member_id":"alice"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without a password, got %d", rec.Code)
	}
}

func TestTokenRejectsWrongPassword(t *testing.T) {
	api, _ := newTestAPI(t)
	rec := doJSON(t, api.Handler(), http.MethodPost, "/v1/auth/token", "",
		`{"member_id":"alice","password":"wrong"}`)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for a wrong password, got %d", rec.Code)
	}
}

func TestTokenUnknownMemberIsForbidden(t *testing.T) {
	api, _ := newTestAPI(t)
	rec := doJSON(t, api.Handler(), http.MethodPost, "/v1/auth/token", "",
		`{"member_id":"ghost","password":"correct horse"}`)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for an unknown member, got %d", rec.Code)
	}
}

func TestTokenRolesComeFromDirectory(t *testing.T) {
	api, _ := newTestAPI(t)

	// Clients cannot ask for roles; unknown fields are rejected.
	rec := doJSON(t, api.Handler(), http.MethodPost, "/v1/auth/token", "",
		`{"member_id":"alice","password":"correct horse","roles":["operator"]}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for a roles field in the request, got %d", rec.Code)
	}

	rec = doJSON(t, api.Handler(), http.MethodPost, "/v1/auth/token", "",
		`{"member_id":"alice","password":"correct horse"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp tokenResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	claims, err := auth.ParseAndValidate(resp.Token)
	if err != nil {
		t.Fatalf("ParseAndValidate: %v", err)
	}
	if len(claims.Roles) != 1 || claims.Roles[0] != auth.RoleMember {
		t.Fatalf("member token roles = %v, want only member", claims.Roles)
	}

	rec = doJSON(t, api.Handler(), http.MethodPost, "/v1/auth/token", "",
		`{"member_id":"op-1","password":"correct horse"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for the operator, got %d", rec.Code)
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	claims, err = auth.ParseAndValidate(resp.Token)
	if err != nil {
		t.Fatalf("ParseAndValidate: %v", err)
	}
	if !hasRole(claims.Roles, auth.RoleOperator) {
		t.Fatalf("operator token roles = %v, want operator from the directory", claims.Roles)
	}
}

func hasRole(roles []string, want string) bool {
	for _, r := range roles {
		if r == want {
			return true
		}
	}
	return false
}
