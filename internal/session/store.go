package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"bookforge/internal/fileutil"
	"bookforge/internal/logging"
)

// sessionDirPrefix is the naming convention for session directories under
// the primary root and project caches.
const sessionDirPrefix = "session-"

// cachedSessionsSubdir is the fixed nested path under a linked project that
// holds cached session copies.
var cachedSessionsSubdir = filepath.Join(".bookforge", "tts-sessions")

// errNotResumable marks a session directory that is present but not yet
// complete enough to resume (mid-creation by the engine). Scan skips these
// silently.
var errNotResumable = errors.New("session not resumable")

// Store discovers and mutates TTS sessions on disk. All reads are safe to
// run concurrently with active reassembly jobs.
type Store struct {
	root         string
	projectRoots []string
	logger       *slog.Logger
}

// NewStore constructs a session store rooted at the primary session
// directory, with optional linked project directories whose cached copies
// are also scanned.
func NewStore(root string, projectRoots []string, logger *slog.Logger) *Store {
	return &Store{
		root:         root,
		projectRoots: append([]string{}, projectRoots...),
		logger:       logging.NewComponentLogger(logger, "session-store"),
	}
}

type candidate struct {
	id            string
	dir           string
	source        Source
	linkedProject string
}

// Scan enumerates every resumable session under the primary root and the
// project caches, newest first. Sessions present in both locations are
// reported once, preferring the primary copy.
func (s *Store) Scan(ctx context.Context) ([]*Session, error) {
	candidates, err := s.collectCandidates()
	if err != nil {
		return nil, err
	}

	sessions := make([]*Session, len(candidates))
	var wg sync.WaitGroup
	for i, cand := range candidates {
		wg.Add(1)
		go func(i int, cand candidate) {
			defer wg.Done()
			if ctx.Err() != nil {
				return
			}
			sess, err := s.load(cand)
			if err != nil {
				if !errors.Is(err, errNotResumable) {
					s.logger.Warn("skipping unreadable session",
						logging.String(logging.FieldSessionID, cand.id),
						logging.Error(err),
					)
				}
				return
			}
			sessions[i] = sess
		}(i, cand)
	}
	wg.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	result := make([]*Session, 0, len(sessions))
	for _, sess := range sessions {
		if sess != nil {
			result = append(result, sess)
		}
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].ModifiedAt.After(result[j].ModifiedAt)
	})
	return result, nil
}

func (s *Store) collectCandidates() ([]candidate, error) {
	seen := make(map[string]struct{})
	var candidates []candidate

	entries, err := os.ReadDir(s.root)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("read session root: %w", err)
	}
	for _, entry := range entries {
		if !entry.IsDir() || !isSessionDirName(entry.Name()) {
			continue
		}
		seen[entry.Name()] = struct{}{}
		candidates = append(candidates, candidate{
			id:     entry.Name(),
			dir:    filepath.Join(s.root, entry.Name()),
			source: SourcePrimary,
		})
	}

	for _, project := range s.projectRoots {
		cacheDir := filepath.Join(project, cachedSessionsSubdir)
		entries, err := os.ReadDir(cacheDir)
		if err != nil {
			continue
		}
		for _, entry := range entries {
			if !entry.IsDir() || !isSessionDirName(entry.Name()) {
				continue
			}
			if _, ok := seen[entry.Name()]; ok {
				continue
			}
			seen[entry.Name()] = struct{}{}
			candidates = append(candidates, candidate{
				id:            entry.Name(),
				dir:           filepath.Join(cacheDir, entry.Name()),
				source:        SourceCached,
				linkedProject: project,
			})
		}
	}
	return candidates, nil
}

// Get resolves one session directly by ID without a full scan. Returns nil
// when the session does not exist or is not resumable.
func (s *Store) Get(sessionID string) (*Session, error) {
	cand, ok := s.locate(sessionID)
	if !ok {
		return nil, nil
	}
	sess, err := s.load(cand)
	if err != nil {
		if errors.Is(err, errNotResumable) {
			return nil, nil
		}
		return nil, err
	}
	return sess, nil
}

// Delete recursively removes the session directory. Returns false when no
// such session exists; a missing target is not an error.
func (s *Store) Delete(sessionID string) (bool, error) {
	cand, ok := s.locate(sessionID)
	if !ok {
		return false, nil
	}
	if err := os.RemoveAll(cand.dir); err != nil {
		return false, fmt.Errorf("delete session %s: %w", sessionID, err)
	}
	s.logger.Info("deleted session", logging.String(logging.FieldSessionID, sessionID))
	return true, nil
}

// CoverInput supplies a cover image either as raw bytes or as a source file
// to copy. Ext is the target extension including the dot; it defaults to
// the source file's extension or ".jpg" for inline bytes.
type CoverInput struct {
	Data       []byte
	SourcePath string
	Ext        string
}

// SaveMetadata merges fields into the session's persisted extended metadata
// and optionally materializes a cover image into the session directory. The
// state file is rewritten exactly once, after the full merged document has
// been assembled in memory.
func (s *Store) SaveMetadata(sessionID string, fields ExtendedMetadata, cover *CoverInput) error {
	cand, ok := s.locate(sessionID)
	if !ok {
		return fmt.Errorf("session %s: %w", sessionID, os.ErrNotExist)
	}
	processDir, err := findProcessDir(cand.dir)
	if err != nil {
		return fmt.Errorf("session %s: %w", sessionID, err)
	}

	if cover != nil {
		coverName, err := materializeCover(cand.dir, cover)
		if err != nil {
			return fmt.Errorf("session %s: write cover: %w", sessionID, err)
		}
		fields.CoverPath = coverName
	}
	if fields.Language != "" {
		fields.Language = NormalizeLanguage(fields.Language)
	}

	state, err := readStateFile(processDir)
	if err != nil {
		return fmt.Errorf("session %s: %w", sessionID, err)
	}
	merged := mergeExtended(state.BookForge, fields)
	if err := writeExtended(processDir, merged); err != nil {
		return fmt.Errorf("session %s: %w", sessionID, err)
	}
	s.logger.Info("saved session metadata", logging.String(logging.FieldSessionID, sessionID))
	return nil
}

func (s *Store) locate(sessionID string) (candidate, bool) {
	if !isSessionDirName(sessionID) {
		return candidate{}, false
	}
	primary := filepath.Join(s.root, sessionID)
	if dirExists(primary) {
		return candidate{id: sessionID, dir: primary, source: SourcePrimary}, true
	}
	for _, project := range s.projectRoots {
		cached := filepath.Join(project, cachedSessionsSubdir, sessionID)
		if dirExists(cached) {
			return candidate{id: sessionID, dir: cached, source: SourceCached, linkedProject: project}, true
		}
	}
	return candidate{}, false
}

func (s *Store) load(cand candidate) (*Session, error) {
	dirInfo, err := os.Stat(cand.dir)
	if err != nil {
		return nil, err
	}

	processDir, err := findProcessDir(cand.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, errNotResumable
		}
		return nil, err
	}

	fragmentsDir := filepath.Join(processDir, filepath.FromSlash(FragmentSubdir))
	indices, err := ListFragmentIndices(fragmentsDir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, errNotResumable
		}
		return nil, err
	}

	state, err := readStateFile(processDir)
	if err != nil {
		return nil, err
	}

	stateChapters := state.Chapters
	if len(stateChapters) == 0 {
		legacy, err := readLegacyChapters(processDir)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
		stateChapters = legacy
	}

	excluded := make(map[int]struct{})
	if state.BookForge != nil {
		for _, num := range state.BookForge.ExcludedChapters {
			excluded[num] = struct{}{}
		}
	}

	chapters := make([]Chapter, 0, len(stateChapters))
	for i, sc := range stateChapters {
		chapter := Chapter{
			ChapterNum:    sc.ChapterNum,
			SentenceStart: sc.SentenceStart,
			SentenceEnd:   sc.SentenceEnd,
			SentenceCount: sc.SentenceCount,
		}
		if chapter.ChapterNum == 0 {
			chapter.ChapterNum = i + 1
		}
		if chapter.SentenceCount == 0 && sc.SentenceEnd >= sc.SentenceStart {
			chapter.SentenceCount = sc.SentenceEnd - sc.SentenceStart + 1
		}
		if i < len(state.ChapterTitles) {
			chapter.Title = state.ChapterTitles[i]
		}
		if chapter.Title == "" {
			chapter.Title = fmt.Sprintf("Chapter %d", chapter.ChapterNum)
		}
		chapter.CompletedCount = countInRange(indices, sc.SentenceStart, sc.SentenceEnd)
		_, chapter.Excluded = excluded[chapter.ChapterNum]
		chapters = append(chapters, chapter)
	}

	completed := len(indices)
	sess := &Session{
		SessionID:          cand.id,
		SessionDir:         cand.dir,
		ProcessDir:         processDir,
		TotalSentences:     state.TotalSentences,
		CompletedSentences: completed,
		PercentComplete:    percent(completed, state.TotalSentences),
		Chapters:           chapters,
		Metadata:           buildMetadata(state, cand.dir),
		SourceEpubPath:     state.SourceEpubPath,
		CreatedAt:          dirInfo.ModTime(),
		ModifiedAt:         latestModTime(dirInfo.ModTime(), processDir),
		Source:             cand.source,
		LinkedProjectPath:  cand.linkedProject,
	}
	return sess, nil
}

// buildMetadata overlays user edits from the bookforge namespace onto the
// engine-written metadata.
func buildMetadata(state *stateFile, sessionDir string) Metadata {
	meta := Metadata{
		Title:    state.Metadata.Title,
		Author:   state.Metadata.Creator,
		Language: NormalizeLanguage(state.Metadata.Language),
		Year:     state.Metadata.Published,
	}
	ext := state.BookForge
	if ext == nil {
		return meta
	}
	overlay := func(dst *string, src string) {
		if strings.TrimSpace(src) != "" {
			*dst = src
		}
	}
	overlay(&meta.Title, ext.Title)
	overlay(&meta.Author, ext.Author)
	if ext.Language != "" {
		meta.Language = NormalizeLanguage(ext.Language)
	}
	overlay(&meta.Year, ext.Year)
	overlay(&meta.Narrator, ext.Narrator)
	overlay(&meta.Series, ext.Series)
	overlay(&meta.SeriesNumber, ext.SeriesNumber)
	overlay(&meta.Genre, ext.Genre)
	overlay(&meta.Description, ext.Description)
	overlay(&meta.OutputFilename, ext.OutputFilename)
	if ext.CoverPath != "" {
		meta.CoverPath = filepath.Join(sessionDir, ext.CoverPath)
	}
	return meta
}

// findProcessDir locates the content-hashed process directory: the first
// subdirectory of a session dir that contains a state file.
func findProcessDir(sessionDir string) (string, error) {
	entries, err := os.ReadDir(sessionDir)
	if err != nil {
		return "", err
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		candidate := filepath.Join(sessionDir, entry.Name())
		if _, err := os.Stat(filepath.Join(candidate, StateFileName)); err == nil {
			return candidate, nil
		}
	}
	return "", os.ErrNotExist
}

func materializeCover(sessionDir string, cover *CoverInput) (string, error) {
	ext := strings.ToLower(strings.TrimSpace(cover.Ext))
	if ext == "" {
		if cover.SourcePath != "" {
			ext = strings.ToLower(filepath.Ext(cover.SourcePath))
		}
		if ext == "" {
			ext = ".jpg"
		}
	}
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	name := "cover" + ext
	target := filepath.Join(sessionDir, name)
	switch {
	case len(cover.Data) > 0:
		if err := os.WriteFile(target, cover.Data, 0o644); err != nil {
			return "", err
		}
	case cover.SourcePath != "":
		if err := fileutil.CopyFile(cover.SourcePath, target); err != nil {
			return "", err
		}
	default:
		return "", errors.New("cover input has neither data nor source path")
	}
	return name, nil
}

func isSessionDirName(name string) bool {
	return strings.HasPrefix(name, sessionDirPrefix) && len(name) > len(sessionDirPrefix)
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

func latestModTime(base time.Time, processDir string) time.Time {
	info, err := os.Stat(processDir)
	if err != nil {
		return base
	}
	if info.ModTime().After(base) {
		return info.ModTime()
	}
	return base
}
