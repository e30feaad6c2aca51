package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/yangwenmai/casefill/internal/gate"
	"github.com/yangwenmai/casefill/internal/model"
	"github.com/yangwenmai/casefill/internal/store"
	"github.com/yangwenmai/casefill/internal/worker"
	"github.com/yangwenmai/casefill/internal/workflow"
)

// caseResponse is the status view of a case.
type caseResponse struct {
	model.WorkflowContext
	Job string `json:"job,omitempty"`
}

// latest loads the newest checkpoint of the case in the path. It writes the
// error response and returns false when there is none.
func (s *Server) latest(w http.ResponseWriter, r *http.Request) (model.WorkflowContext, bool) {
	id := caseID(r)
	wc, found, err := s.flow.Latest(r.Context(), id)
	if err != nil {
		s.log.Error("load checkpoint", zap.String("case_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load case")
		return wc, false
	}
	if found != store.Found {
		writeError(w, http.StatusNotFound, "case not found")
		return wc, false
	}
	return wc, true
}

func (s *Server) enqueue(w http.ResponseWriter, j worker.Job) bool {
	err := s.queue.Enqueue(j)
	switch {
	case err == nil:
		return true
	case errors.Is(err, worker.ErrBusy):
		writeError(w, http.StatusConflict, "case already has a job in progress")
	case errors.Is(err, worker.ErrQueueFull):
		writeError(w, http.StatusServiceUnavailable, "job queue is full, retry later")
	default:
		writeError(w, http.StatusInternalServerError, "failed to queue job")
	}
	return false
}

// ---------------------------------------------------------------------------
// POST /api/cases
// ---------------------------------------------------------------------------

type startRequest struct {
	CaseID string `json:"case_id"`
}

func (s *Server) handleStartCase(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	req.CaseID = strings.TrimSpace(req.CaseID)
	if req.CaseID == "" {
		writeError(w, http.StatusBadRequest, "case_id is required")
		return
	}
	if !s.enqueue(w, worker.Job{Kind: worker.KindStart, CaseID: req.CaseID}) {
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{
		"case_id": req.CaseID,
		"job":     string(worker.KindStart),
	})
}

// ---------------------------------------------------------------------------
// GET /api/cases/{caseID}
// ---------------------------------------------------------------------------

func (s *Server) handleGetCase(w http.ResponseWriter, r *http.Request) {
	wc, ok := s.latest(w, r)
	if !ok {
		return
	}
	resp := caseResponse{WorkflowContext: wc}
	if k, busy := s.queue.Active(wc.CaseID); busy {
		resp.Job = string(k)
	}
	writeJSON(w, http.StatusOK, resp)
}

// ---------------------------------------------------------------------------
// GET /api/cases/{caseID}/runs
// ---------------------------------------------------------------------------

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := s.store.ListRuns(r.Context(), caseID(r))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list runs")
		return
	}
	writeJSON(w, http.StatusOK, runs)
}

// ---------------------------------------------------------------------------
// GET /api/cases/{caseID}/fields
// ---------------------------------------------------------------------------

func (s *Server) handleFields(w http.ResponseWriter, r *http.Request) {
	wc, ok := s.latest(w, r)
	if !ok {
		return
	}
	if wc.Phase != model.PhaseWaitingForInput {
		writeError(w, http.StatusConflict, "case is not waiting for input")
		return
	}
	writeJSON(w, http.StatusOK, gate.Present(wc.Descriptors))
}

// ---------------------------------------------------------------------------
// POST /api/cases/{caseID}/inputs
// ---------------------------------------------------------------------------

type inputsRequest struct {
	Inputs map[string]string `json:"inputs"`
}

type validationResponse struct {
	Error   string   `json:"error"`
	Missing []string `json:"missing,omitempty"`
	Invalid []string `json:"invalid,omitempty"`
}

func (s *Server) handleSubmitInputs(w http.ResponseWriter, r *http.Request) {
	var req inputsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	wc, ok := s.latest(w, r)
	if !ok {
		return
	}

	next, err := s.flow.Submit(r.Context(), wc, req.Inputs)
	var (
		ve *gate.ValidationError
		te *workflow.TransitionError
	)
	switch {
	case errors.As(err, &ve):
		writeJSON(w, http.StatusUnprocessableEntity, validationResponse{Error: ve.Error(), Missing: ve.Missing, Invalid: ve.Invalid})
		return
	case errors.As(err, &te):
		writeError(w, http.StatusConflict, "case is not waiting for input")
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, "failed to accept inputs")
		return
	}

	if !s.enqueue(w, worker.Job{Kind: worker.KindContinue, CaseID: next.CaseID}) {
		return
	}
	writeJSON(w, http.StatusAccepted, caseResponse{WorkflowContext: next, Job: string(worker.KindContinue)})
}

// ---------------------------------------------------------------------------
// POST /api/cases/{caseID}/continue
// ---------------------------------------------------------------------------

func (s *Server) handleContinue(w http.ResponseWriter, r *http.Request) {
	wc, ok := s.latest(w, r)
	if !ok {
		return
	}
	if wc.Phase != model.PhaseContinuing {
		writeError(w, http.StatusConflict, "only continuing cases can be resumed")
		return
	}
	if !s.enqueue(w, worker.Job{Kind: worker.KindContinue, CaseID: wc.CaseID}) {
		return
	}
	writeJSON(w, http.StatusAccepted, caseResponse{WorkflowContext: wc, Job: string(worker.KindContinue)})
}

// ---------------------------------------------------------------------------
// POST /api/cases/{caseID}/reset
// ---------------------------------------------------------------------------

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	wc, ok := s.latest(w, r)
	if !ok {
		return
	}
	if _, busy := s.queue.Active(wc.CaseID); busy {
		writeError(w, http.StatusConflict, "case already has a job in progress")
		return
	}
	next, err := s.flow.Reset(r.Context(), wc)
	var te *workflow.TransitionError
	if errors.As(err, &te) {
		writeError(w, http.StatusConflict, "only failed cases can be reset")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to reset case")
		return
	}
	writeJSON(w, http.StatusOK, next)
}

// ---------------------------------------------------------------------------
// GET /api/cases/{caseID}/artifacts?category=
// ---------------------------------------------------------------------------

func (s *Server) handleArtifacts(w http.ResponseWriter, r *http.Request) {
	wc, ok := s.latest(w, r)
	if !ok {
		return
	}
	categories := model.Categories
	if c := r.URL.Query().Get("category"); c != "" {
		cat := model.Category(c)
		if !cat.Valid() {
			writeError(w, http.StatusBadRequest, "unknown category")
			return
		}
		categories = []model.Category{cat}
	}

	cs := s.store.Case(wc.CaseID, wc.Namespace)
	out := []model.ArtifactInfo{}
	for _, cat := range categories {
		infos, err := cs.List(r.Context(), cat, "")
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to list artifacts")
			return
		}
		out = append(out, infos...)
	}
	writeJSON(w, http.StatusOK, out)
}
