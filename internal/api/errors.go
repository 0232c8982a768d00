package api

import (
	"errors"
	"net/http"

	"github.com/sipdeck/sipdeck/internal/call"
)

// callErrorStatus translates a call controller sentinel into an HTTP status
// and a stable machine-readable error code. The controller never sees HTTP;
// this is the only place its errors take on a wire shape.
func callErrorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, call.ErrAlreadyInCall):
		return http.StatusConflict, "already_in_call"
	case errors.Is(err, call.ErrNoActiveCall):
		return http.StatusNotFound, "no_active_call"
	case errors.Is(err, call.ErrInvalidStateTransition):
		return http.StatusConflict, "invalid_state_transition"
	case errors.Is(err, call.ErrInvalidDestination):
		return http.StatusBadRequest, "invalid_destination"
	case errors.Is(err, call.ErrInvalidDtmf):
		return http.StatusBadRequest, "invalid_dtmf"
	case errors.Is(err, call.ErrEngineTimeout):
		return http.StatusGatewayTimeout, "engine_timeout"
	case errors.Is(err, call.ErrEngineFailure):
		return http.StatusBadGateway, "engine_failure"
	default:
		return http.StatusInternalServerError, "internal error"
	}
}

// writeCallError writes the mapped error response for a controller failure.
func writeCallError(w http.ResponseWriter, err error) {
	status, code := callErrorStatus(err)
	writeError(w, status, code)
}
