package session

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// FragmentSubdir is the engine's per-sentence audio fragment directory,
// relative to a session's process directory.
const FragmentSubdir = "chapters/sentences"

const legacyFragmentPrefix = "sentence_"

// ListFragmentIndices lists the rendered sentence fragments under dir and
// returns the set of zero-based sentence indices present. Two naming schemes
// coexist on disk: bare zero-based numbers ("17.flac") and one-based
// zero-padded names ("sentence_00018.flac"). Both refer to the same sentence
// and must not be double-counted.
func ListFragmentIndices(dir string) (map[int]struct{}, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	indices := make(map[int]struct{}, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if idx, ok := fragmentIndex(entry.Name()); ok {
			indices[idx] = struct{}{}
		}
	}
	return indices, nil
}

// fragmentIndex parses a fragment filename into its zero-based sentence
// index. Unrecognized names are ignored by the caller.
func fragmentIndex(name string) (int, bool) {
	ext := strings.ToLower(filepath.Ext(name))
	if ext != ".flac" {
		return 0, false
	}
	stem := name[:len(name)-len(ext)]
	if rest, ok := strings.CutPrefix(stem, legacyFragmentPrefix); ok {
		n, err := strconv.Atoi(rest)
		if err != nil || n < 1 {
			return 0, false
		}
		return n - 1, true
	}
	n, err := strconv.Atoi(stem)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

// countInRange returns how many indices fall inside [start, end].
func countInRange(indices map[int]struct{}, start, end int) int {
	if end < start {
		return 0
	}
	// Iterate the smaller side: the fragment set once, or the range once.
	if end-start+1 < len(indices) {
		count := 0
		for i := start; i <= end; i++ {
			if _, ok := indices[i]; ok {
				count++
			}
		}
		return count
	}
	count := 0
	for idx := range indices {
		if idx >= start && idx <= end {
			count++
		}
	}
	return count
}
