package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/caldera-labs/plume/middleware"
	"github.com/caldera-labs/plume/store"
)

// AuthHandler implements the /api/auth/* surface.
type AuthHandler struct {
	auth        *middleware.AuthMiddleware
	appPassword string
	store       *store.Store
	logger      zerolog.Logger
}

// NewAuthHandler builds an AuthHandler.
func NewAuthHandler(auth *middleware.AuthMiddleware, appPassword string, st *store.Store, logger zerolog.Logger) *AuthHandler {
	return &AuthHandler{auth: auth, appPassword: appPassword, store: st, logger: logger}
}

type loginRequest struct {
	Password string `json:"password"`
}

type loginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Login validates the request password and issues a signed token.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if !middleware.CheckPassword(req.Password, h.appPassword) {
		writeError(w, http.StatusUnauthorized, "invalid password")
		return
	}

	token, _, expiresAt := h.auth.IssueToken()
	writeJSON(w, http.StatusOK, loginResponse{Token: token, ExpiresAt: expiresAt})
}

// Logout blacklists the caller's token id, taken from the request
// context populated by AuthMiddleware.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	tokenID := middleware.TokenIDFromContext(r.Context())
	if tokenID == "" {
		writeError(w, http.StatusUnauthorized, "no authenticated token")
		return
	}
	if err := h.store.BlacklistToken(r.Context(), tokenID); err != nil {
		h.logger.Error().Err(err).Msg("failed to blacklist token")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// Me reports whether the request reached this handler as an
// authenticated caller (AuthMiddleware already rejected anything else).
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"authenticated": true})
}
