package handler

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/mtkocz/AdLands-sub002/internal/auth"
	"github.com/mtkocz/AdLands-sub002/internal/protocol"
	"github.com/mtkocz/AdLands-sub002/internal/service"
)

// AdminHandler exposes the sponsor and world management surface. These
// are operator endpoints, not player-facing ones; they feed commands
// into the world loop and wait for the reply where one exists.
type AdminHandler struct {
	world  *service.World
	jwtMgr *auth.JWTManager
}

// NewAdminHandler creates an AdminHandler.
func NewAdminHandler(world *service.World, jwtMgr *auth.JWTManager) *AdminHandler {
	return &AdminHandler{world: world, jwtMgr: jwtMgr}
}

func (h *AdminHandler) authorize(w http.ResponseWriter, r *http.Request) bool {
	token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	if token == "" {
		writeError(w, http.StatusUnauthorized, "missing authorization token")
		return false
	}
	if _, err := h.jwtMgr.ValidateToken(token); err != nil {
		writeError(w, http.StatusUnauthorized, "invalid or expired token")
		return false
	}
	return true
}

type claimSponsorRequest struct {
	SponsorID  string                 `json:"sponsorId"`
	Tiles      []int                  `json:"tiles"`
	Visual     protocol.ClusterVisual `json:"visual"`
	HoldMillis int64                  `json:"holdMs"`
}

// ClaimSponsor handles POST /sponsors.
func (h *AdminHandler) ClaimSponsor(w http.ResponseWriter, r *http.Request) {
	if !h.authorize(w, r) {
		return
	}
	var req claimSponsorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.SponsorID == "" || len(req.Tiles) == 0 {
		writeError(w, http.StatusBadRequest, "sponsorId and tiles are required")
		return
	}

	reply := make(chan service.ClaimResult, 1)
	h.world.Inbox <- service.ClaimSponsor{
		SponsorID: req.SponsorID,
		Tiles:     req.Tiles,
		Visual:    req.Visual,
		Hold:      time.Duration(req.HoldMillis) * time.Millisecond,
		Reply:     reply,
	}
	res := <-reply
	if !res.OK {
		writeError(w, http.StatusConflict, "claim rejected: no claimable tiles or sponsor already exists")
		return
	}
	log.Info().Str("sponsorId", req.SponsorID).Int("clusterId", res.ClusterID).Msg("Sponsor claimed")
	writeJSON(w, http.StatusCreated, map[string]any{"clusterId": res.ClusterID})
}

// RemoveSponsor handles DELETE /sponsors/{id}.
func (h *AdminHandler) RemoveSponsor(w http.ResponseWriter, r *http.Request) {
	if !h.authorize(w, r) {
		return
	}
	id := r.PathValue("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "sponsor id is required")
		return
	}
	h.world.Inbox <- service.RemoveSponsor{SponsorID: id}
	writeJSON(w, http.StatusAccepted, map[string]any{"status": "removal queued"})
}

type scrambleRequest struct {
	Seed int64 `json:"seed"`
}

// Scramble handles POST /world/scramble.
func (h *AdminHandler) Scramble(w http.ResponseWriter, r *http.Request) {
	if !h.authorize(w, r) {
		return
	}
	var req scrambleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	h.world.Inbox <- service.Scramble{Seed: req.Seed}
	writeJSON(w, http.StatusAccepted, map[string]any{"status": "scramble queued"})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Error().Err(err).Msg("Failed to encode response")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
