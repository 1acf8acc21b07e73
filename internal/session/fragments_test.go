package session

import (
	"os"
	"path/filepath"
	"testing"
)

func writeFragments(t *testing.T, dir string, names ...string) {
	t.Helper()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir fragments: %v", err)
	}
	for _, name := range names {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("flac"), 0o644); err != nil {
			t.Fatalf("write fragment %s: %v", name, err)
		}
	}
}

func TestFragmentIndexNamingSchemes(t *testing.T) {
	cases := []struct {
		name string
		idx  int
		ok   bool
	}{
		{"0.flac", 0, true},
		{"17.flac", 17, true},
		{"sentence_00001.flac", 0, true},
		{"sentence_00018.flac", 17, true},
		{"sentence_0.flac", 0, false}, // one-based scheme starts at 1
		{"-1.flac", 0, false},
		{"cover.jpg", 0, false},
		{"17.wav", 0, false},
		{"notes.txt", 0, false},
	}
	for _, tc := range cases {
		idx, ok := fragmentIndex(tc.name)
		if ok != tc.ok || (ok && idx != tc.idx) {
			t.Errorf("fragmentIndex(%q) = (%d, %v), want (%d, %v)", tc.name, idx, ok, tc.idx, tc.ok)
		}
	}
}

func TestListFragmentIndicesUnionsSchemes(t *testing.T) {
	dir := t.TempDir()
	// Index 1 is present under both schemes and must count once.
	writeFragments(t, dir, "0.flac", "1.flac", "sentence_00002.flac", "sentence_00004.flac")

	indices, err := ListFragmentIndices(dir)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	want := map[int]struct{}{0: {}, 1: {}, 3: {}}
	if len(indices) != len(want) {
		t.Fatalf("got %d indices, want %d (%v)", len(indices), len(want), indices)
	}
	for idx := range want {
		if _, ok := indices[idx]; !ok {
			t.Errorf("missing index %d", idx)
		}
	}
}

func TestListFragmentIndicesMissingDir(t *testing.T) {
	_, err := ListFragmentIndices(filepath.Join(t.TempDir(), "absent"))
	if !os.IsNotExist(err) {
		t.Errorf("expected not-exist error, got %v", err)
	}
}

func TestCountInRange(t *testing.T) {
	indices := map[int]struct{}{0: {}, 1: {}, 4: {}, 5: {}, 9: {}}
	cases := []struct {
		start, end, want int
	}{
		{0, 4, 3},
		{5, 9, 2},
		{2, 3, 0},
		{9, 9, 1},
		{5, 4, 0}, // inverted range
	}
	for _, tc := range cases {
		if got := countInRange(indices, tc.start, tc.end); got != tc.want {
			t.Errorf("countInRange(%d, %d) = %d, want %d", tc.start, tc.end, got, tc.want)
		}
	}
}
