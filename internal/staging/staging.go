// Package staging manages per-job scratch directories nested inside the
// output directory, so the final commit is a same-filesystem rename and a
// concurrently syncing file watcher never observes partial output.
package staging

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"bookforge/internal/fileutil"
)

// dirPrefix names job staging directories. The leading dot keeps them out of
// casual directory listings of the output folder.
const dirPrefix = ".bookforge-staging-"

// Dir returns the staging directory path for a job inside outputDir.
func Dir(outputDir, jobID string) string {
	return filepath.Join(outputDir, dirPrefix+jobID)
}

// Create makes the staging directory for a job, discarding any leftover from
// a previous run of the same job ID.
func Create(outputDir, jobID string) (string, error) {
	dir := Dir(outputDir, jobID)
	if err := os.RemoveAll(dir); err != nil && !os.IsNotExist(err) {
		return "", fmt.Errorf("clear stale staging: %w", err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create staging: %w", err)
	}
	return dir, nil
}

// Discard removes a staging directory and everything in it.
func Discard(dir string) error {
	if dir == "" {
		return nil
	}
	if err := os.RemoveAll(dir); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("discard staging: %w", err)
	}
	return nil
}

// Commit atomically promotes every file in stagingDir into outputDir.
// Pre-existing output files with the same extension as a staged file are
// removed first, then each staged file is renamed in, then the emptied
// staging directory is removed. Renames stay on one filesystem because the
// staging directory lives inside outputDir.
func Commit(stagingDir, outputDir string) error {
	entries, err := os.ReadDir(stagingDir)
	if err != nil {
		return fmt.Errorf("read staging: %w", err)
	}

	staged := make([]string, 0, len(entries))
	extensions := make(map[string]struct{})
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		staged = append(staged, entry.Name())
		if ext := strings.ToLower(filepath.Ext(entry.Name())); ext != "" {
			extensions[ext] = struct{}{}
		}
	}

	if err := removeConflicting(outputDir, extensions); err != nil {
		return err
	}

	for _, name := range staged {
		src := filepath.Join(stagingDir, name)
		dst := filepath.Join(outputDir, name)
		if err := fileutil.MoveFile(src, dst); err != nil {
			return fmt.Errorf("commit %s: %w", name, err)
		}
	}

	if err := os.Remove(stagingDir); err != nil && !os.IsNotExist(err) {
		// Leftover non-file entries keep the directory alive; sweep them.
		if rmErr := os.RemoveAll(stagingDir); rmErr != nil {
			return fmt.Errorf("remove staging: %w", rmErr)
		}
	}
	return nil
}

// removeConflicting deletes output files whose extension matches a staged
// file, so the committed artifacts are the only ones of their kind.
func removeConflicting(outputDir string, extensions map[string]struct{}) error {
	if len(extensions) == 0 {
		return nil
	}
	entries, err := os.ReadDir(outputDir)
	if err != nil {
		return fmt.Errorf("read output dir: %w", err)
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if strings.HasPrefix(entry.Name(), dirPrefix) {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if _, ok := extensions[ext]; !ok {
			continue
		}
		if err := os.Remove(filepath.Join(outputDir, entry.Name())); err != nil {
			return fmt.Errorf("remove conflicting %s: %w", entry.Name(), err)
		}
	}
	return nil
}
