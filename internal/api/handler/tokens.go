package handler

import (
	"encoding/json"
	"net/http"

	"github.com/buildingpulse/push-fanout/internal/api/respond"
	"github.com/buildingpulse/push-fanout/internal/auth"
)

// maxTokenLength bounds stored device tokens.
const maxTokenLength = 512

var deviceTypes = map[string]bool{"": true, "ios": true, "android": true, "web": true}

// PushTokenRequest registers or removes a device token for the caller.
type PushTokenRequest struct {
	Token      string `json:"token" example:"ExponentPushToken[xxxxxxxxxxxxxxxxxxxxxx]"`
	DeviceType string `json:"device_type,omitempty" example:"ios"`
}

// callerID authenticates the request and returns the caller's user ID. On
// failure the response has already been written.
func (h *Handler) callerID(w http.ResponseWriter, r *http.Request) (string, bool) {
	credential, err := auth.BearerToken(r.Header.Get("Authorization"))
	if err != nil {
		respond.WriteError(w, http.StatusUnauthorized, "UNAUTHENTICATED", "Missing Authorization header")
		return "", false
	}
	userID, err := h.verifier.Verify(r.Context(), credential)
	if err != nil {
		h.writeError(w, r, err)
		return "", false
	}
	return userID, true
}

func decodeTokenRequest(w http.ResponseWriter, r *http.Request) (PushTokenRequest, bool) {
	var req PushTokenRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.WriteError(w, http.StatusBadRequest, "INVALID_JSON", "Invalid JSON")
		return req, false
	}
	if req.Token == "" || len(req.Token) > maxTokenLength {
		respond.WriteError(w, http.StatusBadRequest, "INVALID_TOKEN", "token is required")
		return req, false
	}
	return req, true
}

// RegisterPushToken stores a device token for the caller.
// @Summary Register a device push token
// @Description Upserts the caller's device token; registering the same token twice updates its device type.
// @Tags tokens
// @Accept json
// @Security BearerAuth
// @Param request body PushTokenRequest true "Device token"
// @Success 204
// @Failure 400 {object} respond.ErrorResponse
// @Failure 401 {object} respond.ErrorResponse
// @Failure 500 {object} respond.ErrorResponse
// @Router /api/v1/push-tokens [post]
func (h *Handler) RegisterPushToken(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.callerID(w, r)
	if !ok {
		return
	}
	req, ok := decodeTokenRequest(w, r)
	if !ok {
		return
	}
	if !deviceTypes[req.DeviceType] {
		respond.WriteError(w, http.StatusBadRequest, "INVALID_DEVICE_TYPE", "device_type must be ios, android or web")
		return
	}

	if err := h.tokens.RegisterToken(r.Context(), userID, req.Token, req.DeviceType); err != nil {
		h.logger.Error("register push token failed", "user_id", userID, "error", err)
		respond.WriteError(w, http.StatusInternalServerError, "STORAGE_FAILED", "Could not store token")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// UnregisterPushToken removes a device token for the caller.
// @Summary Unregister a device push token
// @Description Deletes the caller's device token. Unknown tokens are ignored.
// @Tags tokens
// @Accept json
// @Security BearerAuth
// @Param request body PushTokenRequest true "Device token"
// @Success 204
// @Failure 400 {object} respond.ErrorResponse
// @Failure 401 {object} respond.ErrorResponse
// @Failure 500 {object} respond.ErrorResponse
// @Router /api/v1/push-tokens [delete]
func (h *Handler) UnregisterPushToken(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.callerID(w, r)
	if !ok {
		return
	}
	req, ok := decodeTokenRequest(w, r)
	if !ok {
		return
	}

	if err := h.tokens.UnregisterToken(r.Context(), userID, req.Token); err != nil {
		h.logger.Error("unregister push token failed", "user_id", userID, "error", err)
		respond.WriteError(w, http.StatusInternalServerError, "STORAGE_FAILED", "Could not remove token")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
