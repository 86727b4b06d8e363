package handler

import (
	"encoding/json"
	"net/http"

	"econscour/internal/model"
	"econscour/internal/session"
	"econscour/pkg/apierror"
	"econscour/pkg/response"
)

// SettingsHandler reads and writes viewer settings.
type SettingsHandler struct {
	session *session.Controller
}

// NewSettingsHandler creates a settings handler.
func NewSettingsHandler(s *session.Controller) *SettingsHandler {
	return &SettingsHandler{session: s}
}

// Get handles GET /api/v1/settings
func (h *SettingsHandler) Get(w http.ResponseWriter, r *http.Request) {
	s, err := h.session.Settings(r.Context(), r.URL.Query().Get("profile"))
	if err != nil {
		writeError(w, err)
		return
	}
	response.OK(w, s)
}

// Put handles PUT /api/v1/settings. Fields missing from the body keep their
// default value.
func (h *SettingsHandler) Put(w http.ResponseWriter, r *http.Request) {
	s := model.DefaultSettings()
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&s); err != nil {
		response.Error(w, apierror.BadRequest("invalid JSON"))
		return
	}

	profile := r.URL.Query().Get("profile")
	if err := h.session.SaveSettings(r.Context(), profile, s); err != nil {
		writeError(w, err)
		return
	}
	response.OK(w, s)
}
