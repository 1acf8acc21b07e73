package session

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"bookforge/internal/logging"
)

// writeSession lays out a minimal on-disk session and returns its process dir.
func writeSession(t *testing.T, root, id string, state map[string]any, fragments ...string) string {
	t.Helper()
	processDir := filepath.Join(root, id, "a1b2c3d4e5f6")
	if err := os.MkdirAll(processDir, 0o755); err != nil {
		t.Fatalf("mkdir session: %v", err)
	}
	data, err := json.Marshal(state)
	if err != nil {
		t.Fatalf("marshal state: %v", err)
	}
	if err := os.WriteFile(filepath.Join(processDir, StateFileName), data, 0o644); err != nil {
		t.Fatalf("write state: %v", err)
	}
	writeFragments(t, filepath.Join(processDir, filepath.FromSlash(FragmentSubdir)), fragments...)
	return processDir
}

func twoChapterState(total int) map[string]any {
	return map[string]any{
		"total_sentences": total,
		"chapters": []map[string]any{
			{"chapter_num": 1, "sentence_start": 0, "sentence_end": 4, "sentence_count": 5},
			{"chapter_num": 2, "sentence_start": 5, "sentence_end": 9, "sentence_count": 5},
		},
		"chapter_titles":   []string{"Opening", "Closing"},
		"metadata":         map[string]any{"title": "A Book", "creator": "An Author", "language": "en-us", "published": "2021"},
		"source_epub_path": "/books/a.epub",
	}
}

func TestGetComputesCompletion(t *testing.T) {
	root := t.TempDir()
	fragments := make([]string, 0, 10)
	// First chapter rendered under the legacy one-based scheme, second under
	// the bare-number scheme.
	for _, name := range []string{"sentence_00001.flac", "sentence_00002.flac", "sentence_00003.flac", "sentence_00004.flac", "sentence_00005.flac", "5.flac", "6.flac", "7.flac", "8.flac", "9.flac"} {
		fragments = append(fragments, name)
	}
	writeSession(t, root, "session-abc123", twoChapterState(10), fragments...)

	store := NewStore(root, nil, logging.NewNop())
	sess, err := store.Get("session-abc123")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if sess == nil {
		t.Fatal("session not found")
	}
	if sess.CompletedSentences != 10 {
		t.Errorf("completed = %d, want 10", sess.CompletedSentences)
	}
	if sess.PercentComplete != 100 {
		t.Errorf("percent = %d, want 100", sess.PercentComplete)
	}
	if len(sess.Chapters) != 2 {
		t.Fatalf("chapters = %d, want 2", len(sess.Chapters))
	}
	if sess.Chapters[0].CompletedCount != 5 || sess.Chapters[1].CompletedCount != 5 {
		t.Errorf("chapter completion = %d/%d, want 5/5",
			sess.Chapters[0].CompletedCount, sess.Chapters[1].CompletedCount)
	}
	if sess.Chapters[0].Title != "Opening" {
		t.Errorf("chapter title = %q", sess.Chapters[0].Title)
	}
	if sess.Metadata.Language != "en-US" {
		t.Errorf("language not canonicalized: %q", sess.Metadata.Language)
	}
}

func TestGetDoesNotDoubleCountOverlappingSchemes(t *testing.T) {
	root := t.TempDir()
	// Index 0 exists under both naming conventions.
	writeSession(t, root, "session-dup", twoChapterState(10), "0.flac", "sentence_00001.flac")

	store := NewStore(root, nil, logging.NewNop())
	sess, err := store.Get("session-dup")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if sess.CompletedSentences != 1 {
		t.Errorf("completed = %d, want 1 (no double counting)", sess.CompletedSentences)
	}
	if sess.PercentComplete != 10 {
		t.Errorf("percent = %d, want 10", sess.PercentComplete)
	}
}

func TestPercentZeroTotal(t *testing.T) {
	if got := percent(0, 0); got != 0 {
		t.Errorf("percent(0,0) = %d", got)
	}
	if got := percent(3, 0); got != 0 {
		t.Errorf("percent(3,0) = %d", got)
	}
	if got := percent(1, 3); got != 33 {
		t.Errorf("percent(1,3) = %d, want 33", got)
	}
	if got := percent(2, 3); got != 67 {
		t.Errorf("percent(2,3) = %d, want 67", got)
	}
}

func TestScanSkipsSessionsWithoutFragments(t *testing.T) {
	root := t.TempDir()
	writeSession(t, root, "session-ready", twoChapterState(10), "0.flac")

	// Mid-creation session: state file present, no fragment directory yet.
	partial := filepath.Join(root, "session-partial", "deadbeef0000")
	if err := os.MkdirAll(partial, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	data, _ := json.Marshal(twoChapterState(10))
	if err := os.WriteFile(filepath.Join(partial, StateFileName), data, 0o644); err != nil {
		t.Fatalf("write state: %v", err)
	}

	// Unrelated directory that does not match the naming convention.
	if err := os.MkdirAll(filepath.Join(root, "tmp-scratch"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	store := NewStore(root, nil, logging.NewNop())
	sessions, err := store.Scan(context.Background())
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(sessions) != 1 {
		t.Fatalf("got %d sessions, want 1", len(sessions))
	}
	if sessions[0].SessionID != "session-ready" {
		t.Errorf("unexpected session %q", sessions[0].SessionID)
	}
}

func TestScanPrefersPrimaryOverCached(t *testing.T) {
	root := t.TempDir()
	project := t.TempDir()
	writeSession(t, root, "session-shared", twoChapterState(10), "0.flac")
	cacheRoot := filepath.Join(project, ".bookforge", "tts-sessions")
	writeSession(t, cacheRoot, "session-shared", twoChapterState(10), "0.flac")
	writeSession(t, cacheRoot, "session-cachedonly", twoChapterState(10), "0.flac")

	store := NewStore(root, []string{project}, logging.NewNop())
	sessions, err := store.Scan(context.Background())
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(sessions) != 2 {
		t.Fatalf("got %d sessions, want 2", len(sessions))
	}
	bySource := map[string]Source{}
	for _, sess := range sessions {
		bySource[sess.SessionID] = sess.Source
	}
	if bySource["session-shared"] != SourcePrimary {
		t.Errorf("shared session should come from primary store, got %q", bySource["session-shared"])
	}
	if bySource["session-cachedonly"] != SourceCached {
		t.Errorf("cached session source = %q", bySource["session-cachedonly"])
	}
}

func TestScanSortsNewestFirst(t *testing.T) {
	root := t.TempDir()
	writeSession(t, root, "session-old", twoChapterState(10), "0.flac")
	writeSession(t, root, "session-new", twoChapterState(10), "0.flac")

	past := time.Now().Add(-48 * time.Hour)
	for _, path := range []string{
		filepath.Join(root, "session-old"),
		filepath.Join(root, "session-old", "a1b2c3d4e5f6"),
	} {
		if err := os.Chtimes(path, past, past); err != nil {
			t.Fatalf("chtimes: %v", err)
		}
	}

	store := NewStore(root, nil, logging.NewNop())
	sessions, err := store.Scan(context.Background())
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(sessions) != 2 {
		t.Fatalf("got %d sessions", len(sessions))
	}
	if sessions[0].SessionID != "session-new" {
		t.Errorf("expected newest first, got %q", sessions[0].SessionID)
	}
}

func TestLegacyChapterIndexFallback(t *testing.T) {
	root := t.TempDir()
	state := map[string]any{
		"total_sentences": 6,
		"chapter_titles":  []string{"One", "Two"},
		"metadata":        map[string]any{"title": "Legacy", "creator": "X", "language": "en"},
	}
	processDir := writeSession(t, root, "session-legacy", state, "0.flac", "1.flac", "2.flac", "3.flac")
	ranges, _ := json.Marshal([][]int{{0, 2}, {3, 5}})
	if err := os.WriteFile(filepath.Join(processDir, legacyChapterFile), ranges, 0o644); err != nil {
		t.Fatalf("write legacy index: %v", err)
	}

	store := NewStore(root, nil, logging.NewNop())
	sess, err := store.Get("session-legacy")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(sess.Chapters) != 2 {
		t.Fatalf("chapters = %d, want 2", len(sess.Chapters))
	}
	if sess.Chapters[0].CompletedCount != 3 || sess.Chapters[1].CompletedCount != 1 {
		t.Errorf("chapter completion = %d/%d, want 3/1",
			sess.Chapters[0].CompletedCount, sess.Chapters[1].CompletedCount)
	}
	if sess.Chapters[1].Title != "Two" {
		t.Errorf("legacy title = %q", sess.Chapters[1].Title)
	}
}

func TestDeleteIdempotent(t *testing.T) {
	root := t.TempDir()
	writeSession(t, root, "session-gone", twoChapterState(10), "0.flac")

	store := NewStore(root, nil, logging.NewNop())
	removed, err := store.Delete("session-gone")
	if err != nil || !removed {
		t.Fatalf("first delete = (%v, %v)", removed, err)
	}
	removed, err = store.Delete("session-gone")
	if err != nil {
		t.Fatalf("second delete errored: %v", err)
	}
	if removed {
		t.Error("second delete should report false")
	}
}

func TestSaveMetadataPreservesEngineFields(t *testing.T) {
	root := t.TempDir()
	state := twoChapterState(10)
	state["engine_private"] = map[string]any{"voice": "af_sky", "speed": 1.25}
	processDir := writeSession(t, root, "session-meta", state, "0.flac")

	store := NewStore(root, nil, logging.NewNop())
	err := store.SaveMetadata("session-meta", ExtendedMetadata{
		Author:           "Override Author",
		Narrator:         "A Narrator",
		Language:         "EN-GB",
		ExcludedChapters: []int{2},
	}, nil)
	if err != nil {
		t.Fatalf("save: %v", err)
	}

	raw, err := os.ReadFile(filepath.Join(processDir, StateFileName))
	if err != nil {
		t.Fatalf("read state: %v", err)
	}
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(raw, &doc); err != nil {
		t.Fatalf("parse state: %v", err)
	}
	if _, ok := doc["engine_private"]; !ok {
		t.Error("engine-owned key dropped on rewrite")
	}
	if _, ok := doc["total_sentences"]; !ok {
		t.Error("total_sentences dropped on rewrite")
	}

	sess, err := store.Get("session-meta")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if sess.Metadata.Author != "Override Author" {
		t.Errorf("author = %q", sess.Metadata.Author)
	}
	if sess.Metadata.Title != "A Book" {
		t.Errorf("engine title should survive when not overridden, got %q", sess.Metadata.Title)
	}
	if sess.Metadata.Language != "en-GB" {
		t.Errorf("language = %q, want en-GB", sess.Metadata.Language)
	}
	if !sess.Chapters[1].Excluded {
		t.Error("chapter 2 should be excluded")
	}
	if sess.Chapters[0].Excluded {
		t.Error("chapter 1 should not be excluded")
	}
}

func TestSaveMetadataMergesAcrossCalls(t *testing.T) {
	root := t.TempDir()
	writeSession(t, root, "session-merge", twoChapterState(10), "0.flac")

	store := NewStore(root, nil, logging.NewNop())
	if err := store.SaveMetadata("session-merge", ExtendedMetadata{Narrator: "First"}, nil); err != nil {
		t.Fatalf("save narrator: %v", err)
	}
	if err := store.SaveMetadata("session-merge", ExtendedMetadata{Genre: "Fiction"}, nil); err != nil {
		t.Fatalf("save genre: %v", err)
	}

	sess, err := store.Get("session-merge")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if sess.Metadata.Narrator != "First" {
		t.Errorf("narrator lost on second save: %q", sess.Metadata.Narrator)
	}
	if sess.Metadata.Genre != "Fiction" {
		t.Errorf("genre = %q", sess.Metadata.Genre)
	}
}

func TestSaveMetadataMaterializesCover(t *testing.T) {
	root := t.TempDir()
	writeSession(t, root, "session-cover", twoChapterState(10), "0.flac")

	store := NewStore(root, nil, logging.NewNop())
	err := store.SaveMetadata("session-cover", ExtendedMetadata{}, &CoverInput{Data: []byte("png-bytes"), Ext: "png"})
	if err != nil {
		t.Fatalf("save: %v", err)
	}

	coverPath := filepath.Join(root, "session-cover", "cover.png")
	data, err := os.ReadFile(coverPath)
	if err != nil {
		t.Fatalf("cover not materialized: %v", err)
	}
	if string(data) != "png-bytes" {
		t.Errorf("cover contents = %q", data)
	}

	sess, err := store.Get("session-cover")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if sess.Metadata.CoverPath != coverPath {
		t.Errorf("cover path = %q, want %q", sess.Metadata.CoverPath, coverPath)
	}
}

func TestGetUnknownSession(t *testing.T) {
	store := NewStore(t.TempDir(), nil, logging.NewNop())
	sess, err := store.Get("session-missing")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if sess != nil {
		t.Error("expected nil for unknown session")
	}
}
