package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"bookforge/internal/config"
	"bookforge/internal/logging"
	"bookforge/internal/reassembly"
	"bookforge/internal/session"
)

func writeTestSession(t *testing.T, root, id string) {
	t.Helper()
	processDir := filepath.Join(root, id, "a1b2c3d4e5f6")
	fragmentDir := filepath.Join(processDir, filepath.FromSlash(session.FragmentSubdir))
	if err := os.MkdirAll(fragmentDir, 0o755); err != nil {
		t.Fatalf("mkdir session: %v", err)
	}
	state := map[string]any{
		"total_sentences": 2,
		"chapters": []map[string]any{
			{"chapter_num": 1, "sentence_start": 0, "sentence_end": 1, "sentence_count": 2},
		},
		"chapter_titles":   []string{"Only"},
		"metadata":         map[string]any{"title": "A Book", "creator": "An Author", "language": "en", "published": "2021"},
		"source_epub_path": "/books/a.epub",
	}
	data, err := json.Marshal(state)
	if err != nil {
		t.Fatalf("marshal state: %v", err)
	}
	if err := os.WriteFile(filepath.Join(processDir, session.StateFileName), data, 0o644); err != nil {
		t.Fatalf("write state: %v", err)
	}
	for _, name := range []string{"0.flac", "1.flac"} {
		if err := os.WriteFile(filepath.Join(fragmentDir, name), []byte("flac"), 0o644); err != nil {
			t.Fatalf("write fragment: %v", err)
		}
	}
}

func newTestServer(t *testing.T, token string) *Server {
	t.Helper()
	sessionRoot := t.TempDir()
	writeTestSession(t, sessionRoot, "session-abc")

	cfg := config.Default()
	cfg.Paths.SessionDir = sessionRoot
	cfg.Paths.OutputDir = t.TempDir()
	cfg.Paths.APIToken = token

	sessions := session.NewStore(sessionRoot, nil, logging.NewNop())
	orch := reassembly.New(&cfg, sessions, logging.NewNop())
	return NewServer(&cfg, sessions, orch, nil, NewHub(), func() DaemonStatus {
		return DaemonStatus{Running: true, PID: 123}
	}, logging.NewNop())
}

func doRequest(t *testing.T, srv *Server, method, path, body, token string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func TestStatusEndpoint(t *testing.T) {
	srv := newTestServer(t, "")
	rec := doRequest(t, srv, http.MethodGet, "/api/status", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var status DaemonStatus
	if err := json.Unmarshal(rec.Body.Bytes(), &status); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if !status.Running || status.PID != 123 {
		t.Fatalf("unexpected status payload: %+v", status)
	}
}

func TestBearerAuth(t *testing.T) {
	srv := newTestServer(t, "secret")

	if rec := doRequest(t, srv, http.MethodGet, "/api/status", "", ""); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}
	if rec := doRequest(t, srv, http.MethodGet, "/api/status", "", "wrong"); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 with wrong token, got %d", rec.Code)
	}
	if rec := doRequest(t, srv, http.MethodGet, "/api/status", "", "secret"); rec.Code != http.StatusOK {
		t.Fatalf("expected 200 with token, got %d", rec.Code)
	}
}

func TestSessionEndpoints(t *testing.T) {
	srv := newTestServer(t, "")

	rec := doRequest(t, srv, http.MethodGet, "/api/sessions", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("list sessions: expected 200, got %d", rec.Code)
	}
	var list SessionListResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(list.Sessions) != 1 || list.Sessions[0].SessionID != "session-abc" {
		t.Fatalf("unexpected session list: %+v", list.Sessions)
	}

	rec = doRequest(t, srv, http.MethodGet, "/api/sessions/session-abc", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("get session: expected 200, got %d", rec.Code)
	}
	rec = doRequest(t, srv, http.MethodGet, "/api/sessions/session-nope", "", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("get missing session: expected 404, got %d", rec.Code)
	}

	rec = doRequest(t, srv, http.MethodPost, "/api/sessions/session-abc/metadata",
		`{"metadata":{"narrator":"A Narrator"}}`, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("save metadata: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var updated SessionResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &updated); err != nil {
		t.Fatalf("decode session: %v", err)
	}
	if updated.Session.Metadata.Narrator != "A Narrator" {
		t.Fatalf("expected narrator persisted, got %+v", updated.Session.Metadata)
	}

	rec = doRequest(t, srv, http.MethodDelete, "/api/sessions/session-abc", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("delete session: expected 200, got %d", rec.Code)
	}
	rec = doRequest(t, srv, http.MethodDelete, "/api/sessions/session-abc", "", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("double delete: expected 404, got %d", rec.Code)
	}
}

func TestReassembleValidation(t *testing.T) {
	srv := newTestServer(t, "")

	rec := doRequest(t, srv, http.MethodPost, "/api/reassemble", `{}`, "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing sessionId, got %d", rec.Code)
	}
	rec = doRequest(t, srv, http.MethodPost, "/api/reassemble", `{"sessionId":"session-nope"}`, "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown session, got %d", rec.Code)
	}
}

func TestJobEndpointsWithoutHistory(t *testing.T) {
	srv := newTestServer(t, "")

	rec := doRequest(t, srv, http.MethodGet, "/api/jobs", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("list jobs: expected 200, got %d", rec.Code)
	}
	rec = doRequest(t, srv, http.MethodGet, "/api/jobs/nope", "", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("get unknown job: expected 404, got %d", rec.Code)
	}
	rec = doRequest(t, srv, http.MethodGet, "/api/jobs/nope/events", "", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("events for unknown job: expected 404, got %d", rec.Code)
	}
	rec = doRequest(t, srv, http.MethodPost, "/api/jobs/nope/stop", "", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("stop unknown job: expected 404, got %d", rec.Code)
	}
}
