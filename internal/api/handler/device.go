package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/mealdrop/mealdrop/internal/api/models"
	"github.com/mealdrop/mealdrop/internal/api/response"
	"github.com/mealdrop/mealdrop/internal/device"
	"github.com/mealdrop/mealdrop/internal/push"
)

// DeviceHandler handles push-token endpoints.
type DeviceHandler struct {
	devices    *device.Service
	dispatcher *push.Dispatcher
	logger     zerolog.Logger
}

// NewDeviceHandler creates a new DeviceHandler. dispatcher may be nil; the
// ping endpoint then reports zero deliveries.
func NewDeviceHandler(devices *device.Service, dispatcher *push.Dispatcher, logger zerolog.Logger) *DeviceHandler {
	return &DeviceHandler{devices: devices, dispatcher: dispatcher, logger: logger}
}

// RegisterDevice handles POST /v1/devices - register or reactivate a token.
func (h *DeviceHandler) RegisterDevice(w http.ResponseWriter, r *http.Request) {
	var input models.DeviceRegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		response.BadRequest(w, r, "invalid JSON body", nil)
		return
	}
	if input.Token == "" {
		response.BadRequest(w, r, "token is required", []models.FieldError{
			{Field: "token", Message: "must not be empty", Code: "required"},
		})
		return
	}

	deviceType := device.DeviceType(input.DeviceType)
	switch deviceType {
	case device.DeviceTypeIOS, device.DeviceTypeAndroid, device.DeviceTypeWeb:
	case "":
		deviceType = device.DeviceTypeIOS
	default:
		response.BadRequest(w, r, "unknown device type", []models.FieldError{
			{Field: "deviceType", Message: "must be ios, android or web", Code: "oneof"},
		})
		return
	}

	userID := GetUserID(r.Context())
	token, created, err := h.devices.Register(r.Context(), userID, GetUserRole(r.Context()), device.RegisterInput{
		Token:      input.Token,
		DeviceType: deviceType,
	})
	if err != nil {
		h.logger.Error().Err(err).Str("user_id", userID).Msg("failed to register device token")
		response.InternalError(w, r, "failed to register device token")
		return
	}

	body := models.DeviceRegisterResponse{Device: deviceView(token), Created: created}
	if created {
		response.Created(w, r, "", body)
		return
	}
	response.JSON(w, r, http.StatusOK, body)
}

// UnregisterDevice handles DELETE /v1/devices/{token} - deactivate on logout.
func (h *DeviceHandler) UnregisterDevice(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")
	if token == "" {
		response.BadRequest(w, r, "token is required", nil)
		return
	}

	err := h.devices.Unregister(r.Context(), GetUserID(r.Context()), token)
	switch {
	case err == nil:
		response.NoContent(w, r)
	case errors.Is(err, device.ErrTokenNotFound):
		// Unregistering an unknown token is not an error worth surfacing to
		// a logging-out client.
		response.NoContent(w, r)
	case errors.Is(err, device.ErrNotTokenOwner):
		response.Forbidden(w, r, "token belongs to another user")
	default:
		h.logger.Error().Err(err).Msg("failed to unregister device token")
		response.InternalError(w, r, "failed to unregister device token")
	}
}

// PingDevice handles PATCH /v1/devices/{token}/ping - send a test
// notification through the dispatcher to one specific token.
func (h *DeviceHandler) PingDevice(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")
	if token == "" {
		response.BadRequest(w, r, "token is required", nil)
		return
	}

	userID := GetUserID(r.Context())
	t, err := h.devices.GetOwned(r.Context(), userID, token)
	switch {
	case errors.Is(err, device.ErrTokenNotFound):
		response.NotFound(w, r, "unknown device token")
		return
	case errors.Is(err, device.ErrNotTokenOwner):
		response.Forbidden(w, r, "token belongs to another user")
		return
	case err != nil:
		h.logger.Error().Err(err).Msg("failed to load device token")
		response.InternalError(w, r, "failed to load device token")
		return
	}

	if h.dispatcher == nil {
		response.JSON(w, r, http.StatusOK, models.DevicePingResponse{})
		return
	}

	result, err := h.dispatcher.SendToDevices(r.Context(), []*device.Token{t}, "TEST", push.Payload{})
	if err != nil {
		h.logger.Error().Err(err).Str("user_id", userID).Msg("device ping failed")
		response.InternalError(w, r, "failed to dispatch test notification")
		return
	}

	response.JSON(w, r, http.StatusOK, models.DevicePingResponse{
		SuccessCount: result.SuccessCount,
		FailureCount: result.FailureCount,
	})
}

func deviceView(t *device.Token) models.Device {
	view := models.Device{
		TokenLast4: t.TokenLast4(),
		DeviceType: string(t.DeviceType),
		IsActive:   t.IsActive,
		CreatedAt:  models.Timestamp(t.CreatedAt),
		UpdatedAt:  models.Timestamp(t.UpdatedAt),
	}
	if t.LastUsedAt != nil {
		ts := models.Timestamp(*t.LastUsedAt)
		view.LastUsedAt = &ts
	}
	return view
}
