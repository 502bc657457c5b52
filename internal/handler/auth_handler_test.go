package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/mtkocz/AdLands-sub002/internal/auth"
)

func TestDevLoginIssuesValidToken(t *testing.T) {
	jwtMgr := auth.NewJWTManager("test-secret")
	h := NewAuthHandler(jwtMgr)

	req := httptest.NewRequest(http.MethodGet, "/auth/dev?playerId=tester", nil)
	rec := httptest.NewRecorder()
	h.DevLogin(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	claims, err := jwtMgr.ValidateToken(resp.Token)
	if err != nil {
		t.Fatalf("issued token should validate: %v", err)
	}
	if claims.PlayerID != "tester" {
		t.Errorf("player id = %q, want tester", claims.PlayerID)
	}
}

func TestDevLoginRequiresPlayerID(t *testing.T) {
	h := NewAuthHandler(auth.NewJWTManager("test-secret"))

	req := httptest.NewRequest(http.MethodGet, "/auth/dev", nil)
	rec := httptest.NewRecorder()
	h.DevLogin(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}
