package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/JakeFAU/pagewatch/internal/monitor"
)

type createTargetRequest struct {
	URL                  string `json:"url" validate:"required,http_url"`
	Name                 string `json:"name" validate:"max=200"`
	CheckIntervalMinutes int    `json:"check_interval_minutes" validate:"omitempty,min=1,max=1440"`
	Enabled              *bool  `json:"enabled"`
}

type updateTargetRequest struct {
	URL                  *string `json:"url" validate:"omitempty,http_url"`
	Name                 *string `json:"name" validate:"omitempty,max=200"`
	CheckIntervalMinutes *int    `json:"check_interval_minutes" validate:"omitempty,min=0,max=1440"`
	Enabled              *bool   `json:"enabled"`
}

type stateResponse struct {
	TargetID string           `json:"target_id"`
	State    monitor.JobState `json:"state"`
	Since    string           `json:"since,omitempty"`
}

func (s *Server) listTargets(w http.ResponseWriter, r *http.Request) {
	enabledOnly := r.URL.Query().Get("enabled") == "true"
	targets, err := s.deps.Store.ListTargets(r.Context(), enabledOnly)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	if targets == nil {
		targets = []monitor.Target{}
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"targets": targets})
}

func (s *Server) createTarget(w http.ResponseWriter, r *http.Request) {
	var req createTargetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if err := s.validate.Struct(req); err != nil {
		s.writeError(w, http.StatusBadRequest, validationMessage(err))
		return
	}
	id, err := s.deps.IDs.NewID()
	if err != nil {
		s.writeStoreError(w, fmt.Errorf("generate target id: %w", err))
		return
	}
	target := monitor.Target{
		ID:                   id,
		URL:                  req.URL,
		Name:                 req.Name,
		Enabled:              req.Enabled == nil || *req.Enabled,
		CheckIntervalMinutes: req.CheckIntervalMinutes,
		CreatedAt:            s.deps.Clock.Now(),
	}
	if target.Name == "" {
		target.Name = req.URL
	}
	if err := s.deps.Store.CreateTarget(r.Context(), target); err != nil {
		s.writeStoreError(w, err)
		return
	}
	s.logger.Info("target created", zap.String("target_id", target.ID), zap.String("url", target.URL))
	s.writeJSON(w, http.StatusCreated, target)
}

func (s *Server) getTarget(w http.ResponseWriter, r *http.Request) {
	target, err := s.deps.Store.GetTarget(r.Context(), chi.URLParam(r, "target_id"))
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, target)
}

func (s *Server) updateTarget(w http.ResponseWriter, r *http.Request) {
	var req updateTargetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if err := s.validate.Struct(req); err != nil {
		s.writeError(w, http.StatusBadRequest, validationMessage(err))
		return
	}
	target, err := s.deps.Store.GetTarget(r.Context(), chi.URLParam(r, "target_id"))
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	if req.URL != nil {
		target.URL = *req.URL
	}
	if req.Name != nil {
		target.Name = *req.Name
	}
	if req.CheckIntervalMinutes != nil {
		target.CheckIntervalMinutes = *req.CheckIntervalMinutes
	}
	if req.Enabled != nil {
		target.Enabled = *req.Enabled
	}
	if err := s.deps.Store.UpdateTarget(r.Context(), target); err != nil {
		s.writeStoreError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, target)
}

func (s *Server) checkTarget(w http.ResponseWriter, r *http.Request) {
	targetID := chi.URLParam(r, "target_id")
	if err := s.deps.Checker.TriggerTarget(r.Context(), targetID); err != nil {
		s.writeStoreError(w, err)
		return
	}
	s.writeJSON(w, http.StatusAccepted, map[string]string{
		"target_id": targetID,
		"state":     string(monitor.StateQueued),
	})
}

func (s *Server) listChecks(w http.ResponseWriter, r *http.Request) {
	targetID, limit, ok := s.historyParams(w, r)
	if !ok {
		return
	}
	checks, err := s.deps.Store.ListChecks(r.Context(), targetID, limit)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	if checks == nil {
		checks = []monitor.CheckAttempt{}
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"checks": checks})
}

func (s *Server) listVerdicts(w http.ResponseWriter, r *http.Request) {
	targetID, limit, ok := s.historyParams(w, r)
	if !ok {
		return
	}
	verdicts, err := s.deps.Store.ListVerdicts(r.Context(), targetID, limit)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	if verdicts == nil {
		verdicts = []monitor.Verdict{}
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"verdicts": verdicts})
}

// historyParams resolves the target and limit, writing the error response
// itself when either is invalid.
func (s *Server) historyParams(w http.ResponseWriter, r *http.Request) (string, int, bool) {
	limit, err := parseLimit(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return "", 0, false
	}
	targetID := chi.URLParam(r, "target_id")
	if _, err := s.deps.Store.GetTarget(r.Context(), targetID); err != nil {
		s.writeStoreError(w, err)
		return "", 0, false
	}
	return targetID, limit, true
}

func (s *Server) targetState(w http.ResponseWriter, r *http.Request) {
	targetID := chi.URLParam(r, "target_id")
	if _, err := s.deps.Store.GetTarget(r.Context(), targetID); err != nil {
		s.writeStoreError(w, err)
		return
	}
	info := s.deps.States.State(targetID)
	resp := stateResponse{TargetID: targetID, State: info.State}
	if !info.Since.IsZero() {
		resp.Since = info.Since.UTC().Format(time.RFC3339)
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		parts = append(parts, fmt.Sprintf("%s failed %s", strings.ToLower(fe.Field()), fe.Tag()))
	}
	return strings.Join(parts, "; ")
}
