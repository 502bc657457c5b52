package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/mtkocz/AdLands-sub002/internal/auth"
	"github.com/mtkocz/AdLands-sub002/internal/gateway"
	"github.com/mtkocz/AdLands-sub002/internal/service"
	"github.com/mtkocz/AdLands-sub002/pkg/sphere"
)

// newAdminFixture builds a running world behind the admin routes. The
// claimable tile is picked before the loop starts; after that all world
// access goes through the command inbox.
func newAdminFixture(t *testing.T) (http.Handler, string, int) {
	t.Helper()
	m := sphere.GenerateMesh(10, 12)
	g := sphere.BuildAdjacency(m.Tiles)
	sphere.MarkPortalBorders(m.Tiles, g)
	part := sphere.NewPartition(m.Tiles, g)
	gw := gateway.New(part)
	hub := NewHub()
	world := service.NewWorld(m, gw, hub, nil, nil, 20)
	if err := world.Bootstrap(context.Background()); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}

	tile := -1
	for i := range part.Tiles() {
		if part.ClusterOf(i) == sphere.BackgroundClusterID {
			tile = i
			break
		}
	}
	if tile < 0 {
		t.Fatal("no background tile available")
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go world.Run(ctx)

	jwtMgr := auth.NewJWTManager("test-secret")
	token, err := jwtMgr.GenerateToken("operator")
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}

	admin := NewAdminHandler(world, jwtMgr)
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/sponsors", admin.ClaimSponsor)
	mux.HandleFunc("DELETE /api/v1/sponsors/{id}", admin.RemoveSponsor)
	mux.HandleFunc("POST /api/v1/world/scramble", admin.Scramble)
	return mux, token, tile
}

func claimBody(tile int) string {
	return `{"sponsorId":"acme","tiles":[` + strconv.Itoa(tile) + `],"visual":{"color":"#b7410e","pattern":"solid"},"holdMs":60000}`
}

func doClaim(t *testing.T, mux http.Handler, token string, tile int) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/sponsors", strings.NewReader(claimBody(tile)))
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func TestAdminClaimSponsor(t *testing.T) {
	mux, token, tile := newAdminFixture(t)

	rec := doClaim(t, mux, token, tile)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		ClusterID int `json:"clusterId"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.ClusterID == sphere.BackgroundClusterID {
		t.Error("sponsor cluster must not be the background cluster")
	}

	// A duplicate sponsor id is rejected.
	if rec := doClaim(t, mux, token, tile); rec.Code != http.StatusConflict {
		t.Errorf("duplicate claim status = %d, want 409", rec.Code)
	}
}

func TestAdminRemoveSponsor(t *testing.T) {
	mux, token, tile := newAdminFixture(t)

	if rec := doClaim(t, mux, token, tile); rec.Code != http.StatusCreated {
		t.Fatalf("claim status = %d", rec.Code)
	}

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/sponsors/acme", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("remove status = %d", rec.Code)
	}

	// Commands are processed in order on the world loop, so a re-claim of
	// the same sponsor id succeeds only if the removal went through.
	if rec := doClaim(t, mux, token, tile); rec.Code != http.StatusCreated {
		t.Errorf("re-claim after removal status = %d, body = %s", rec.Code, rec.Body.String())
	}
}

func TestAdminRequiresToken(t *testing.T) {
	mux, _, _ := newAdminFixture(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/world/scramble", strings.NewReader(`{"seed":1}`))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/api/v1/world/scramble", strings.NewReader(`{"seed":1}`))
	req.Header.Set("Authorization", "Bearer not-a-jwt")
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("garbage token status = %d, want 401", rec.Code)
	}
}
