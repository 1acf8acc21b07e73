package api

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"strings"

	"bookforge/internal/session"
)

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	sessions, err := s.sessions.Scan(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, SessionListResponse{Sessions: sessions})
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/sessions/")
	sessionID, action, _ := strings.Cut(rest, "/")
	if sessionID == "" {
		s.writeError(w, http.StatusNotFound, "session not found")
		return
	}

	switch {
	case action == "" && r.Method == http.MethodGet:
		s.getSession(w, sessionID)
	case action == "" && r.Method == http.MethodDelete:
		s.deleteSession(w, sessionID)
	case action == "metadata" && r.Method == http.MethodPost:
		s.saveSessionMetadata(w, r, sessionID)
	default:
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *Server) getSession(w http.ResponseWriter, sessionID string) {
	sess, err := s.sessions.Get(sessionID)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if sess == nil {
		s.writeError(w, http.StatusNotFound, "session not found")
		return
	}
	s.writeJSON(w, http.StatusOK, SessionResponse{Session: sess})
}

func (s *Server) deleteSession(w http.ResponseWriter, sessionID string) {
	removed, err := s.sessions.Delete(sessionID)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !removed {
		s.writeError(w, http.StatusNotFound, "session not found")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]bool{"deleted": true})
}

func (s *Server) saveSessionMetadata(w http.ResponseWriter, r *http.Request, sessionID string) {
	var req MetadataRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	cover, err := coverInput(req)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.sessions.SaveMetadata(sessionID, req.Metadata, cover); err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.getSession(w, sessionID)
}

func coverInput(req MetadataRequest) (*session.CoverInput, error) {
	switch {
	case req.CoverBase64 != "":
		data, err := base64.StdEncoding.DecodeString(req.CoverBase64)
		if err != nil {
			return nil, err
		}
		return &session.CoverInput{Data: data, Ext: req.CoverExt}, nil
	case req.CoverSourcePath != "":
		return &session.CoverInput{SourcePath: req.CoverSourcePath, Ext: req.CoverExt}, nil
	}
	return nil, nil
}
