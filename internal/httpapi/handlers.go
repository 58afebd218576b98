package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"draftflow/pkg/proto"
	"draftflow/pkg/workflow"
)

const maxBodySize = 1 << 20 // 1MB

// CreateProjectRequest is the body for POST /projects.
type CreateProjectRequest struct {
	Title         string `json:"title"`
	Pipeline      string `json:"pipeline"`
	CanSkipPhases bool   `json:"can_skip_phases"`
}

// TransitionRequest is the body for POST /projects/{id}/transition.
type TransitionRequest struct {
	Phase          string `json:"phase"`
	SkipValidation bool   `json:"skip_validation"`
	ExpectedFrom   string `json:"expected_from"`
}

// SkipRequest is the body for POST /projects/{id}/skip.
type SkipRequest struct {
	Phase string `json:"phase"`
}

// InvokeAgentRequest is the body for POST /projects/{id}/agent.
type InvokeAgentRequest struct {
	Content          string            `json:"content"`
	StylePreferences map[string]string `json:"style_preferences,omitempty"`
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	defer r.Body.Close()

	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeFail(w, http.StatusBadRequest, proto.CodeValidation, fmt.Sprintf("invalid request body: %v", err))
		return false
	}
	return true
}

func (s *Server) handleCreateProject() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateProjectRequest
		if !decodeBody(w, r, &req) {
			return
		}
		state, err := s.deps.Orchestrator.CreateProject(r.Context(), ownerID(r), req.Title, req.Pipeline, req.CanSkipPhases)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, proto.OK(state))
	}
}

func (s *Server) handleGetState() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		state, err := s.deps.Orchestrator.GetState(r.Context(), ownerID(r), chi.URLParam(r, "projectID"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeOK(w, state)
	}
}

func (s *Server) handleTransition() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req TransitionRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if req.Phase == "" {
			writeFail(w, http.StatusBadRequest, proto.CodeValidation, "phase is required")
			return
		}
		opts := workflow.TransitionOptions{
			SkipValidation: req.SkipValidation,
			ExpectedFrom:   proto.PhaseType(req.ExpectedFrom),
		}
		state, err := s.deps.Orchestrator.TransitionToPhase(r.Context(), ownerID(r), chi.URLParam(r, "projectID"), proto.PhaseType(req.Phase), opts)
		if err != nil {
			writeError(w, err)
			return
		}
		writeOK(w, state)
	}
}

func (s *Server) handleNext() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		state, err := s.deps.Orchestrator.MoveToNextPhase(r.Context(), ownerID(r), chi.URLParam(r, "projectID"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeOK(w, state)
	}
}

func (s *Server) handlePrevious() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		state, err := s.deps.Orchestrator.MoveToPreviousPhase(r.Context(), ownerID(r), chi.URLParam(r, "projectID"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeOK(w, state)
	}
}

func (s *Server) handleSkip() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req SkipRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if req.Phase == "" {
			writeFail(w, http.StatusBadRequest, proto.CodeValidation, "phase is required")
			return
		}
		state, err := s.deps.Orchestrator.SkipToPhase(r.Context(), ownerID(r), chi.URLParam(r, "projectID"), proto.PhaseType(req.Phase))
		if err != nil {
			writeError(w, err)
			return
		}
		writeOK(w, state)
	}
}

func (s *Server) handleComplete() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		state, err := s.deps.Orchestrator.CompleteCurrentPhase(r.Context(), ownerID(r), chi.URLParam(r, "projectID"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeOK(w, state)
	}
}

func (s *Server) handleInvokeAgent() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req InvokeAgentRequest
		if !decodeBody(w, r, &req) {
			return
		}
		resp, err := s.deps.Orchestrator.InvokeAgent(r.Context(), ownerID(r), chi.URLParam(r, "projectID"), req.Content, req.StylePreferences)
		if err != nil {
			writeError(w, err)
			return
		}
		writeOK(w, resp)
	}
}

func (s *Server) handlePipelines() http.HandlerFunc {
	type pipelineInfo struct {
		Name   string            `json:"name"`
		Phases []proto.PhaseType `json:"phases"`
	}
	return func(w http.ResponseWriter, _ *http.Request) {
		var out []pipelineInfo
		for _, name := range workflow.PipelineNames() {
			p, _ := workflow.PipelineByName(name)
			out = append(out, pipelineInfo{Name: p.Name, Phases: p.Phases})
		}
		writeOK(w, out)
	}
}

func (s *Server) handleUsage() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.deps.Metrics == nil {
			writeFail(w, http.StatusServiceUnavailable, proto.CodeInternal, "metrics backend not configured")
			return
		}
		projectID := chi.URLParam(r, "projectID")

		// Ownership check before reaching into the metrics backend.
		if _, err := s.deps.Orchestrator.GetState(r.Context(), ownerID(r), projectID); err != nil {
			writeError(w, err)
			return
		}

		totals, err := s.deps.Metrics.GetProjectMetrics(r.Context(), projectID)
		if err != nil {
			writeError(w, err)
			return
		}
		byAgent, err := s.deps.Metrics.GetProjectMetricsByAgent(r.Context(), projectID)
		if err != nil {
			writeError(w, err)
			return
		}
		writeOK(w, map[string]any{
			"totals":   totals,
			"by_agent": byAgent,
		})
	}
}
