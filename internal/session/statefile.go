package session

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/text/language"
)

// StateFileName is the engine's session state file inside a process directory.
const StateFileName = "state.json"

// legacyChapterFile holds chapter sentence ranges for sessions written before
// the engine folded them into the state file.
const legacyChapterFile = "chapter_sentences.json"

// extendedNamespace is the application-owned key inside the state file. The
// engine round-trips unknown keys, so everything bookforge writes lives here.
const extendedNamespace = "bookforge_metadata"

type stateFile struct {
	TotalSentences int               `json:"total_sentences"`
	Chapters       []stateChapter    `json:"chapters"`
	ChapterTitles  []string          `json:"chapter_titles"`
	Metadata       engineMetadata    `json:"metadata"`
	SourceEpubPath string            `json:"source_epub_path"`
	BookForge      *ExtendedMetadata `json:"bookforge_metadata"`
}

type stateChapter struct {
	ChapterNum    int `json:"chapter_num"`
	SentenceStart int `json:"sentence_start"`
	SentenceEnd   int `json:"sentence_end"`
	SentenceCount int `json:"sentence_count"`
}

type engineMetadata struct {
	Title     string `json:"title"`
	Creator   string `json:"creator"`
	Language  string `json:"language"`
	Published string `json:"published"`
}

// ExtendedMetadata is the user-editable metadata bookforge persists under its
// own state-file namespace. Zero-valued fields are treated as unset on merge.
type ExtendedMetadata struct {
	Title            string `json:"title,omitempty"`
	Author           string `json:"author,omitempty"`
	Language         string `json:"language,omitempty"`
	Year             string `json:"year,omitempty"`
	Narrator         string `json:"narrator,omitempty"`
	Series           string `json:"series,omitempty"`
	SeriesNumber     string `json:"series_number,omitempty"`
	Genre            string `json:"genre,omitempty"`
	Description      string `json:"description,omitempty"`
	OutputFilename   string `json:"output_filename,omitempty"`
	CoverPath        string `json:"cover_path,omitempty"`
	ExcludedChapters []int  `json:"excluded_chapters,omitempty"`
}

func readStateFile(processDir string) (*stateFile, error) {
	data, err := os.ReadFile(filepath.Join(processDir, StateFileName))
	if err != nil {
		return nil, err
	}
	var state stateFile
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("parse %s: %w", StateFileName, err)
	}
	return &state, nil
}

// readLegacyChapters loads the pre-state-file chapter index: an array of
// [sentence_start, sentence_end] pairs, one per chapter, in chapter order.
func readLegacyChapters(processDir string) ([]stateChapter, error) {
	data, err := os.ReadFile(filepath.Join(processDir, legacyChapterFile))
	if err != nil {
		return nil, err
	}
	var ranges [][]int
	if err := json.Unmarshal(data, &ranges); err != nil {
		return nil, fmt.Errorf("parse %s: %w", legacyChapterFile, err)
	}
	chapters := make([]stateChapter, 0, len(ranges))
	for i, r := range ranges {
		if len(r) < 2 {
			continue
		}
		chapters = append(chapters, stateChapter{
			ChapterNum:    i + 1,
			SentenceStart: r[0],
			SentenceEnd:   r[1],
			SentenceCount: r[1] - r[0] + 1,
		})
	}
	return chapters, nil
}

// mergeExtended overlays user-supplied fields onto existing extended
// metadata, leaving untouched fields intact.
func mergeExtended(existing *ExtendedMetadata, fields ExtendedMetadata) ExtendedMetadata {
	merged := ExtendedMetadata{}
	if existing != nil {
		merged = *existing
	}
	overlay := func(dst *string, src string) {
		if strings.TrimSpace(src) != "" {
			*dst = strings.TrimSpace(src)
		}
	}
	overlay(&merged.Title, fields.Title)
	overlay(&merged.Author, fields.Author)
	overlay(&merged.Language, fields.Language)
	overlay(&merged.Year, fields.Year)
	overlay(&merged.Narrator, fields.Narrator)
	overlay(&merged.Series, fields.Series)
	overlay(&merged.SeriesNumber, fields.SeriesNumber)
	overlay(&merged.Genre, fields.Genre)
	overlay(&merged.Description, fields.Description)
	overlay(&merged.OutputFilename, fields.OutputFilename)
	overlay(&merged.CoverPath, fields.CoverPath)
	if fields.ExcludedChapters != nil {
		merged.ExcludedChapters = append([]int{}, fields.ExcludedChapters...)
	}
	return merged
}

// writeExtended rewrites the state file with the bookforge namespace replaced
// by merged, preserving every engine-owned field byte-for-byte at the JSON
// value level. The full document is assembled in memory before any write so
// a partial failure cannot corrupt the file.
func writeExtended(processDir string, merged ExtendedMetadata) error {
	statePath := filepath.Join(processDir, StateFileName)
	data, err := os.ReadFile(statePath)
	if err != nil {
		return err
	}
	var document map[string]json.RawMessage
	if err := json.Unmarshal(data, &document); err != nil {
		return fmt.Errorf("parse %s: %w", StateFileName, err)
	}
	encoded, err := json.Marshal(merged)
	if err != nil {
		return fmt.Errorf("encode extended metadata: %w", err)
	}
	document[extendedNamespace] = encoded
	out, err := json.MarshalIndent(document, "", "  ")
	if err != nil {
		return fmt.Errorf("encode state file: %w", err)
	}
	return os.WriteFile(statePath, out, 0o644)
}

// NormalizeLanguage canonicalizes a BCP 47 language tag, returning the input
// unchanged when it does not parse.
func NormalizeLanguage(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return value
	}
	tag, err := language.Parse(value)
	if err != nil {
		return value
	}
	return tag.String()
}
