package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/buildingpulse/push-fanout/internal/api/respond"
	"github.com/buildingpulse/push-fanout/internal/auth"
	"github.com/buildingpulse/push-fanout/internal/fanout"
)

// SendPushRequest is the inbound body of the send-push operation.
type SendPushRequest struct {
	Type          string         `json:"type" example:"issue_created"`
	BuildingID    string         `json:"building_id"`
	Title         string         `json:"title"`
	Body          string         `json:"body"`
	Data          map[string]any `json:"data,omitempty"`
	ExcludeUserID string         `json:"exclude_user_id,omitempty"`
}

func (b SendPushRequest) toRequest() (fanout.Request, error) {
	if b.Type == "" || b.BuildingID == "" || b.Title == "" || b.Body == "" {
		return fanout.Request{}, fmt.Errorf("%w: type, building_id, title and body are required", fanout.ErrMalformedRequest)
	}
	category, err := fanout.ParseCategory(b.Type)
	if err != nil {
		return fanout.Request{}, err
	}
	return fanout.Request{
		Category:      category,
		BuildingID:    b.BuildingID,
		Title:         b.Title,
		Body:          b.Body,
		Payload:       b.Data,
		ExcludeUserID: b.ExcludeUserID,
	}, nil
}

// SendPush fans a building event out to its members' devices.
// @Summary Send a building push notification
// @Description Verifies the caller, checks building membership and role, and delivers the notification to every opted-in device in the building in batches of at most 100. Partial upstream failures are reported per batch with status 200.
// @Tags push
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body SendPushRequest true "Notification"
// @Success 200 {object} fanout.Summary
// @Failure 400 {object} respond.ErrorResponse
// @Failure 401 {object} respond.ErrorResponse
// @Failure 403 {object} respond.ErrorResponse
// @Failure 405 {object} respond.ErrorResponse
// @Failure 500 {object} respond.ErrorResponse
// @Router /api/v1/send-push [post]
func (h *Handler) SendPush(w http.ResponseWriter, r *http.Request) {
	credential, err := auth.BearerToken(r.Header.Get("Authorization"))
	if err != nil {
		respond.WriteError(w, http.StatusUnauthorized, "UNAUTHENTICATED", "Missing Authorization header")
		return
	}

	var body SendPushRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		respond.WriteError(w, http.StatusBadRequest, "INVALID_JSON", "Invalid JSON")
		return
	}

	req, err := body.toRequest()
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	// Delivery to the building continues if the caller hangs up.
	summary, err := h.sender.Send(context.WithoutCancel(r.Context()), credential, req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	respond.WriteJSONObject(w, http.StatusOK, summary)
}
