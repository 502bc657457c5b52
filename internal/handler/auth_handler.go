package handler

import (
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/mtkocz/AdLands-sub002/internal/auth"
)

// AuthHandler issues access tokens. There is no account system; a
// player is whoever holds a token for that player id.
type AuthHandler struct {
	jwtMgr *auth.JWTManager
}

// NewAuthHandler creates an AuthHandler.
func NewAuthHandler(jwtMgr *auth.JWTManager) *AuthHandler {
	return &AuthHandler{jwtMgr: jwtMgr}
}

// DevLogin handles GET /auth/dev — issues a token for the given player id.
func (h *AuthHandler) DevLogin(w http.ResponseWriter, r *http.Request) {
	playerID := r.URL.Query().Get("playerId")
	if playerID == "" {
		writeError(w, http.StatusBadRequest, "playerId is required")
		return
	}
	token, err := h.jwtMgr.GenerateToken(playerID)
	if err != nil {
		log.Error().Err(err).Str("playerId", playerID).Msg("Failed to generate token")
		writeError(w, http.StatusInternalServerError, "failed to generate token")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}
