package handler

import (
	"errors"
	"net/http"

	"github.com/mealdrop/mealdrop/internal/api/models"
	"github.com/mealdrop/mealdrop/internal/api/response"
	"github.com/mealdrop/mealdrop/internal/user"
)

// MeHandler handles the authenticated account endpoint.
type MeHandler struct {
	users *user.Service
}

// NewMeHandler creates a new MeHandler.
func NewMeHandler(users *user.Service) *MeHandler {
	return &MeHandler{users: users}
}

// GetMe handles GET /v1/me - the caller's account summary.
func (h *MeHandler) GetMe(w http.ResponseWriter, r *http.Request) {
	u, err := h.users.Get(r.Context(), GetUserID(r.Context()))
	if err != nil {
		if errors.Is(err, user.ErrUserNotFound) {
			response.NotFound(w, r, "user not found")
			return
		}
		response.InternalError(w, r, "failed to load user")
		return
	}

	response.JSON(w, r, http.StatusOK, models.Me{
		UserID:    u.ID,
		Name:      u.Name,
		Role:      string(u.Role),
		CreatedAt: models.Timestamp(u.CreatedAt),
	})
}
