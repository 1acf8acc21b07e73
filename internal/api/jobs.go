package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"bookforge/internal/jobstore"
	"bookforge/internal/reassembly"
)

func (s *Server) handleReassemble(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req ReassembleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.SessionID) == "" {
		s.writeError(w, http.StatusBadRequest, "sessionId is required")
		return
	}

	jobID, err := s.orch.Start(reassembly.Request{
		SessionID: req.SessionID,
		OutputDir: req.OutputDir,
		Metadata:  req.Metadata,
		Sink:      s.hub,
	})
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusAccepted, ReassembleResponse{JobID: jobID})
}

func (s *Server) handleJobs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if s.records == nil {
		s.writeJSON(w, http.StatusOK, JobListResponse{Jobs: nil})
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	jobs, err := s.records.List(r.Context(), limit)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, JobListResponse{Jobs: jobs})
}

func (s *Server) handleJob(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/jobs/")
	jobID, action, _ := strings.Cut(rest, "/")
	if jobID == "" {
		s.writeError(w, http.StatusNotFound, "job not found")
		return
	}

	switch {
	case action == "" && r.Method == http.MethodGet:
		s.getJob(w, r, jobID)
	case action == "events" && r.Method == http.MethodGet:
		s.getJobEvents(w, r, jobID)
	case action == "stop" && r.Method == http.MethodPost:
		s.stopJob(w, jobID)
	default:
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *Server) getJob(w http.ResponseWriter, r *http.Request, jobID string) {
	if s.records == nil {
		s.writeError(w, http.StatusNotFound, "job not found")
		return
	}
	job, err := s.records.GetByID(r.Context(), jobID)
	if errors.Is(err, jobstore.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "job not found")
		return
	}
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, JobResponse{Job: job})
}

func (s *Server) getJobEvents(w http.ResponseWriter, r *http.Request, jobID string) {
	if !s.hub.Known(jobID) {
		s.writeError(w, http.StatusNotFound, "job not found")
		return
	}
	query := r.URL.Query()
	after, _ := strconv.ParseUint(query.Get("after"), 10, 64)
	limit, _ := strconv.Atoi(query.Get("limit"))
	events, next := s.hub.Events(jobID, after, limit)
	s.writeJSON(w, http.StatusOK, EventsResponse{Events: events, Next: next})
}

func (s *Server) stopJob(w http.ResponseWriter, jobID string) {
	if !s.orch.Stop(jobID) {
		s.writeError(w, http.StatusNotFound, "job not running")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]bool{"stopped": true})
}
