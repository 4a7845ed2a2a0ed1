package handler

import (
	"net/http"

	"github.com/rs/zerolog"

	"github.com/mealdrop/mealdrop/internal/api/response"
	"github.com/mealdrop/mealdrop/internal/realtime"
)

// WSHandler upgrades authenticated requests onto the realtime hub.
type WSHandler struct {
	hub    *realtime.Hub
	logger zerolog.Logger
}

// NewWSHandler creates a new WSHandler.
func NewWSHandler(hub *realtime.Hub, logger zerolog.Logger) *WSHandler {
	return &WSHandler{hub: hub, logger: logger}
}

// Connect handles GET /v1/ws. Identity comes from the verified token; the
// hub takes over the connection after the upgrade.
func (h *WSHandler) Connect(w http.ResponseWriter, r *http.Request) {
	userID := GetUserID(r.Context())
	if userID == "" {
		response.Unauthorized(w, r, "authentication required")
		return
	}

	if err := h.hub.ServeConn(w, r, userID, GetUserRole(r.Context())); err != nil {
		// The upgrader has already written its own error response.
		h.logger.Warn().Err(err).Str("user_id", userID).Msg("websocket upgrade failed")
	}
}
