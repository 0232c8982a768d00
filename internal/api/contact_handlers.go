package api

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/sipdeck/sipdeck/internal/database/models"
)

// contactRequest is the JSON request body for creating or updating a contact.
type contactRequest struct {
	Name  string `json:"name"`
	URI   string `json:"uri"`
	Phone string `json:"phone"`
	Email string `json:"email"`
	Notes string `json:"notes"`
}

// validate returns an error message for the first invalid field, "" when OK.
func (req *contactRequest) validate() string {
	if errMsg := validateRequiredStringLen("name", req.Name, maxNameLen); errMsg != "" {
		return errMsg
	}
	if errMsg := validateSIPURI("uri", req.URI); errMsg != "" {
		return errMsg
	}
	if errMsg := validatePhone("phone", req.Phone); errMsg != "" {
		return errMsg
	}
	if errMsg := validateEmail("email", req.Email); errMsg != "" {
		return errMsg
	}
	return validateStringLen("notes", req.Notes, maxNotesLen)
}

// handleListContacts handles GET /api/v1/contacts.
func (s *Server) handleListContacts(w http.ResponseWriter, r *http.Request) {
	contacts, err := s.contacts.List(r.Context())
	if err != nil {
		slog.Error("failed to list contacts", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, contacts)
}

// handleCreateContact handles POST /api/v1/contacts. A duplicate URI is a 409.
func (s *Server) handleCreateContact(w http.ResponseWriter, r *http.Request) {
	var req contactRequest
	if errMsg := readJSON(r, &req); errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}
	if errMsg := req.validate(); errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}

	existing, err := s.contacts.GetByURI(r.Context(), req.URI)
	if err != nil {
		slog.Error("failed to check contact uri", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if existing != nil {
		writeError(w, http.StatusConflict, "a contact with this uri already exists")
		return
	}

	contact := &models.Contact{
		Name:  strings.TrimSpace(req.Name),
		URI:   req.URI,
		Phone: req.Phone,
		Email: req.Email,
		Notes: req.Notes,
	}
	if err := s.contacts.Create(r.Context(), contact); err != nil {
		slog.Error("failed to create contact", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	slog.Info("contact created", "id", contact.ID, "uri", contact.URI)
	writeJSON(w, http.StatusCreated, contact)
}

// handleGetContact handles GET /api/v1/contacts/{id}.
func (s *Server) handleGetContact(w http.ResponseWriter, r *http.Request) {
	id, ok := parseIDParam(w, r)
	if !ok {
		return
	}

	contact, err := s.contacts.GetByID(r.Context(), id)
	if err != nil {
		slog.Error("failed to get contact", "error", err, "id", id)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if contact == nil {
		writeError(w, http.StatusNotFound, "contact not found")
		return
	}

	writeJSON(w, http.StatusOK, contact)
}

// handleUpdateContact handles PUT /api/v1/contacts/{id}.
func (s *Server) handleUpdateContact(w http.ResponseWriter, r *http.Request) {
	id, ok := parseIDParam(w, r)
	if !ok {
		return
	}

	var req contactRequest
	if errMsg := readJSON(r, &req); errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}
	if errMsg := req.validate(); errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}

	contact, err := s.contacts.GetByID(r.Context(), id)
	if err != nil {
		slog.Error("failed to get contact", "error", err, "id", id)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if contact == nil {
		writeError(w, http.StatusNotFound, "contact not found")
		return
	}

	// The new URI must not belong to a different contact.
	if req.URI != contact.URI {
		existing, err := s.contacts.GetByURI(r.Context(), req.URI)
		if err != nil {
			slog.Error("failed to check contact uri", "error", err)
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		if existing != nil {
			writeError(w, http.StatusConflict, "a contact with this uri already exists")
			return
		}
	}

	contact.Name = strings.TrimSpace(req.Name)
	contact.URI = req.URI
	contact.Phone = req.Phone
	contact.Email = req.Email
	contact.Notes = req.Notes

	if err := s.contacts.Update(r.Context(), contact); err != nil {
		slog.Error("failed to update contact", "error", err, "id", id)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusOK, contact)
}

// handleDeleteContact handles DELETE /api/v1/contacts/{id}.
func (s *Server) handleDeleteContact(w http.ResponseWriter, r *http.Request) {
	id, ok := parseIDParam(w, r)
	if !ok {
		return
	}

	contact, err := s.contacts.GetByID(r.Context(), id)
	if err != nil {
		slog.Error("failed to get contact", "error", err, "id", id)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if contact == nil {
		writeError(w, http.StatusNotFound, "contact not found")
		return
	}

	if err := s.contacts.Delete(r.Context(), id); err != nil {
		slog.Error("failed to delete contact", "error", err, "id", id)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	slog.Info("contact deleted", "id", id)
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}
