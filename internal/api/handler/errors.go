package handler

import (
	"errors"
	"net/http"

	"github.com/buildingpulse/push-fanout/internal/api/respond"
	"github.com/buildingpulse/push-fanout/internal/fanout"
)

// writeError maps a fan-out failure onto its HTTP status and error code.
// Backend details are logged, never returned.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, fanout.ErrMalformedRequest):
		respond.WriteErrorDetail(w, http.StatusBadRequest, "INVALID_REQUEST", "Missing required fields", err.Error())
	case errors.Is(err, fanout.ErrUnauthenticated):
		respond.WriteError(w, http.StatusUnauthorized, "UNAUTHENTICATED", "Invalid user token")
	case errors.Is(err, fanout.ErrProfileNotFound):
		respond.WriteError(w, http.StatusForbidden, "PROFILE_NOT_FOUND", "Caller profile not found")
	case errors.Is(err, fanout.ErrBuildingMismatch):
		respond.WriteError(w, http.StatusForbidden, "NOT_IN_BUILDING", "Caller not in building")
	case errors.Is(err, fanout.ErrInsufficientRole):
		respond.WriteError(w, http.StatusForbidden, "COMMITTEE_ONLY", "Committee only")
	case errors.Is(err, fanout.ErrResolutionFailed):
		h.logger.Error("recipient resolution failed", "path", r.URL.Path, "error", err)
		respond.WriteError(w, http.StatusInternalServerError, "RESOLUTION_FAILED", "Could not resolve recipients")
	default:
		h.logger.Error("request failed", "path", r.URL.Path, "error", err)
		respond.WriteError(w, http.StatusInternalServerError, "INTERNAL", "Internal error")
	}
}
