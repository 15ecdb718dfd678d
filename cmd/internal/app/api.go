package app

import (
	"crypto/hmac"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"beacon/cmd/internal/relay"
	"beacon/cmd/security/token"
)

// apiHandler serves the chat-platform-facing intake endpoints.
type apiHandler struct {
	log      *slog.Logger
	registry *relay.Registry
	secret   []byte
	botKey   string
}

func newAPIHandler(log *slog.Logger, registry *relay.Registry, secret []byte, botKey string) *apiHandler {
	return &apiHandler{log: log, registry: registry, secret: secret, botKey: botKey}
}

// Register mounts the intake routes.
func (h *apiHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /v1/ask", h.handleAsk)
	mux.HandleFunc("POST /v1/token", h.handleMint)
}

type askRequest struct {
	InteractionToken string `json:"interactionToken"`
	AppID            string `json:"appId"`
	Question         string `json:"question"`
	UserID           string `json:"userId"`
	GuildID          string `json:"guildId,omitempty"`
	ChannelID        string `json:"channelId,omitempty"`
}

type mintRequest struct {
	UserID   string `json:"userId"`
	Username string `json:"username,omitempty"`
}

// handleAsk forwards a user command to the desktop client.
//
// 202 forwarded | 503 APP_OFFLINE | 409 TOKEN_IN_FLIGHT | 502 FORWARD_FAILED.
// The offline outcome is immediate and non-blocking so the integration can
// message the end user promptly.
func (h *apiHandler) handleAsk(w http.ResponseWriter, r *http.Request) {
	if !h.authorized(r) {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "UNAUTHORIZED"})
		return
	}

	var req askRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "BAD_REQUEST"})
		return
	}

	if strings.TrimSpace(req.InteractionToken) == "" ||
		strings.TrimSpace(req.AppID) == "" ||
		strings.TrimSpace(req.Question) == "" ||
		strings.TrimSpace(req.UserID) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "MISSING_FIELDS"})
		return
	}
	if utf8.RuneCountInString(req.Question) > relay.MaxQuestionChars {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "QUESTION_TOO_LONG"})
		return
	}

	actor := h.registry.GetOrCreate(req.UserID)
	err := actor.Forward(r.Context(), relay.AskRequest{
		InteractionToken: req.InteractionToken,
		AppID:            req.AppID,
		Question:         req.Question,
		UserID:           req.UserID,
		GuildID:          req.GuildID,
		ChannelID:        req.ChannelID,
	})

	switch {
	case errors.Is(err, relay.ErrAppOffline):
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "APP_OFFLINE"})
	case errors.Is(err, relay.ErrTokenInFlight):
		writeJSON(w, http.StatusConflict, map[string]string{"error": "TOKEN_IN_FLIGHT"})
	case err != nil:
		h.log.Warn("api.ask.forward.fail", "user_id", req.UserID, "err", err)
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": "FORWARD_FAILED"})
	default:
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "forwarded"})
	}
}

// handleMint issues a session token for a user. Callable only by the holder
// of the bot key, i.e. the integration that already authenticated the user
// against the chat platform.
func (h *apiHandler) handleMint(w http.ResponseWriter, r *http.Request) {
	if !h.authorized(r) {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "UNAUTHORIZED"})
		return
	}

	var req mintRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4<<10)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "BAD_REQUEST"})
		return
	}
	if strings.TrimSpace(req.UserID) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "MISSING_USER_ID"})
		return
	}

	now := time.Now().UTC()
	tok, err := token.Mint(req.UserID, req.Username, h.secret, now)
	if err != nil {
		h.log.Error("api.token.mint.fail", "err", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "MINT_FAILED"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"token":     tok,
		"expiresAt": now.Add(token.DefaultTTL).Unix(),
	})
}

func (h *apiHandler) authorized(r *http.Request) bool {
	if h.botKey == "" {
		return false
	}
	got := strings.TrimSpace(r.Header.Get("Authorization"))
	want := "Bot " + h.botKey
	return hmac.Equal([]byte(got), []byte(want))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
