package api

import (
	"log/slog"
	"net/http"
)

// makeCallRequest is the JSON request body for POST /api/v1/call/make.
type makeCallRequest struct {
	Destination string `json:"destination"`
}

// makeCallResponse is the JSON response for a successfully placed call.
type makeCallResponse struct {
	SessionID string `json:"session_id"`
}

// handleMakeCall handles POST /api/v1/call/make. Places an outbound call
// and returns the session ID. The line is single-slot: a second call while
// one is active returns 409.
func (s *Server) handleMakeCall(w http.ResponseWriter, r *http.Request) {
	var req makeCallRequest
	if errMsg := readJSON(r, &req); errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}
	if errMsg := validateRequiredStringLen("destination", req.Destination, maxDestinationLen); errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}

	id, err := s.phone.Dial(r.Context(), req.Destination)
	if err != nil {
		writeCallError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, makeCallResponse{SessionID: id})
}

// handleAnswer handles POST /api/v1/call/answer.
func (s *Server) handleAnswer(w http.ResponseWriter, r *http.Request) {
	if err := s.phone.Answer(r.Context()); err != nil {
		writeCallError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "answered"})
}

// handleHangup handles POST /api/v1/call/hangup. Hanging up is idempotent:
// an idle line is still a 200.
func (s *Server) handleHangup(w http.ResponseWriter, r *http.Request) {
	if err := s.phone.Hangup(r.Context()); err != nil {
		slog.Error("hangup failed", "error", err)
		writeCallError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "idle"})
}

// handleHold handles POST /api/v1/call/hold.
func (s *Server) handleHold(w http.ResponseWriter, r *http.Request) {
	if err := s.phone.Hold(r.Context()); err != nil {
		writeCallError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "on_hold"})
}

// handleResume handles POST /api/v1/call/resume.
func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	if err := s.phone.Resume(r.Context()); err != nil {
		writeCallError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "resumed"})
}

// handleMute handles POST /api/v1/call/mute.
func (s *Server) handleMute(w http.ResponseWriter, r *http.Request) {
	if err := s.phone.Mute(r.Context()); err != nil {
		writeCallError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "muted"})
}

// handleUnmute handles POST /api/v1/call/unmute.
func (s *Server) handleUnmute(w http.ResponseWriter, r *http.Request) {
	if err := s.phone.Unmute(r.Context()); err != nil {
		writeCallError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "unmuted"})
}

// dtmfRequest is the JSON request body for POST /api/v1/call/dtmf.
type dtmfRequest struct {
	Digits string `json:"digits"`
}

// handleDTMF handles POST /api/v1/call/dtmf. Sends DTMF digits on the
// established call.
func (s *Server) handleDTMF(w http.ResponseWriter, r *http.Request) {
	var req dtmfRequest
	if errMsg := readJSON(r, &req); errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}
	if req.Digits == "" {
		writeError(w, http.StatusBadRequest, "digits is required")
		return
	}

	if err := s.phone.SendDTMF(r.Context(), req.Digits); err != nil {
		writeCallError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "sent"})
}

// handleCallStatus handles GET /api/v1/call/status. Returns a snapshot of
// the call slot; an idle line is {"active": false, "registered": ...}.
func (s *Server) handleCallStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.phone.Status())
}
