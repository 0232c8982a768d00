package api

import (
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/sipdeck/sipdeck/internal/database"
)

// handleListHistory handles GET /api/v1/history. Supports limit/offset
// pagination plus direction, search (remote URI substring), start_date and
// end_date filters.
func (s *Server) handleListHistory(w http.ResponseWriter, r *http.Request) {
	pg, errMsg := parsePagination(r)
	if errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}

	q := r.URL.Query()
	direction := q.Get("direction")
	if direction != "" && direction != "inbound" && direction != "outbound" {
		writeError(w, http.StatusBadRequest, "direction must be inbound or outbound")
		return
	}

	filter := database.CallListFilter{
		Limit:     pg.Limit,
		Offset:    pg.Offset,
		Search:    q.Get("search"),
		Direction: direction,
		StartDate: q.Get("start_date"),
		EndDate:   q.Get("end_date"),
	}

	calls, total, err := s.history.List(r.Context(), filter)
	if err != nil {
		slog.Error("failed to list call history", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusOK, PaginatedResponse{
		Items:  calls,
		Total:  total,
		Limit:  pg.Limit,
		Offset: pg.Offset,
	})
}

// handleGetHistory handles GET /api/v1/history/{id}.
func (s *Server) handleGetHistory(w http.ResponseWriter, r *http.Request) {
	id, ok := parseIDParam(w, r)
	if !ok {
		return
	}

	rec, err := s.history.GetByID(r.Context(), id)
	if err != nil {
		slog.Error("failed to get call record", "error", err, "id", id)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if rec == nil {
		writeError(w, http.StatusNotFound, "call record not found")
		return
	}

	writeJSON(w, http.StatusOK, rec)
}

// handleDeleteHistory handles DELETE /api/v1/history/{id}. The recording
// file, if any, is removed together with the row.
func (s *Server) handleDeleteHistory(w http.ResponseWriter, r *http.Request) {
	id, ok := parseIDParam(w, r)
	if !ok {
		return
	}

	rec, err := s.history.GetByID(r.Context(), id)
	if err != nil {
		slog.Error("failed to get call record", "error", err, "id", id)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if rec == nil {
		writeError(w, http.StatusNotFound, "call record not found")
		return
	}

	if err := s.history.Delete(r.Context(), id); err != nil {
		slog.Error("failed to delete call record", "error", err, "id", id)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	if rec.RecordingFile != "" {
		if err := os.Remove(rec.RecordingFile); err != nil && !os.IsNotExist(err) {
			slog.Warn("failed to remove recording file",
				"path", rec.RecordingFile, "error", err)
		}
	}

	slog.Info("call record deleted", "id", id)
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// handleDownloadRecording handles GET /api/v1/history/{id}/recording.
// Streams the WAV file for the call.
func (s *Server) handleDownloadRecording(w http.ResponseWriter, r *http.Request) {
	id, ok := parseIDParam(w, r)
	if !ok {
		return
	}

	rec, err := s.history.GetByID(r.Context(), id)
	if err != nil {
		slog.Error("failed to get call record", "error", err, "id", id)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if rec == nil {
		writeError(w, http.StatusNotFound, "call record not found")
		return
	}
	if rec.RecordingFile == "" {
		writeError(w, http.StatusNotFound, "call has no recording")
		return
	}

	f, err := os.Open(rec.RecordingFile)
	if err != nil {
		if os.IsNotExist(err) {
			writeError(w, http.StatusNotFound, "recording file no longer exists")
			return
		}
		slog.Error("failed to open recording", "path", rec.RecordingFile, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		slog.Error("failed to stat recording", "path", rec.RecordingFile, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	w.Header().Set("Content-Type", "audio/wav")
	w.Header().Set("Content-Disposition",
		`attachment; filename="`+filepath.Base(rec.RecordingFile)+`"`)
	http.ServeContent(w, r, filepath.Base(rec.RecordingFile), stat.ModTime(), f)
}

// parseIDParam reads the {id} chi URL parameter as an int64. Writes a 400
// and returns false on bad input.
func parseIDParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid id")
		return 0, false
	}
	return id, true
}
