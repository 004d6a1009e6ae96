package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/JakeFAU/pagewatch/internal/scheduler"
	"github.com/JakeFAU/pagewatch/internal/settings"
)

type settingRequest struct {
	Value string `json:"value"`
}

func (s *Server) getSettings(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{"settings": s.deps.Settings.All(r.Context())})
}

func (s *Server) putSetting(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	var req settingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if msg, ok := validSetting(key, req.Value); !ok {
		s.writeError(w, http.StatusBadRequest, msg)
		return
	}
	if err := s.deps.Settings.Set(r.Context(), key, req.Value); err != nil {
		s.writeStoreError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"key": key, "value": req.Value})
}

// validSetting rejects values the well-known keys cannot use. Unknown keys are
// stored as given.
func validSetting(key, value string) (string, bool) {
	switch key {
	case settings.KeyCheckIntervalMinutes:
		n, err := strconv.Atoi(value)
		if err != nil {
			return "check_interval_minutes must be an integer", false
		}
		if _, ok := scheduler.ValidateInterval(n); !ok {
			return "check_interval_minutes must be between 1 and 1440", false
		}
	case settings.KeyNotificationsEnabled:
		if _, err := strconv.ParseBool(value); err != nil {
			return "notifications_enabled must be a boolean", false
		}
	}
	return "", true
}
