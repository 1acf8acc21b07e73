package session

import (
	"math"
	"time"
)

// Source identifies where a session was discovered.
type Source string

const (
	SourcePrimary Source = "primary-store"
	SourceCached  Source = "cached-copy"
)

// Chapter is one chapter's sentence range and completion state.
type Chapter struct {
	ChapterNum     int    `json:"chapterNum"`
	Title          string `json:"title"`
	SentenceStart  int    `json:"sentenceStart"`
	SentenceEnd    int    `json:"sentenceEnd"`
	SentenceCount  int    `json:"sentenceCount"`
	CompletedCount int    `json:"completedCount"`
	Excluded       bool   `json:"excluded"`
}

// Metadata carries the merged book metadata for a session: engine-written
// fields overlaid with user edits from the bookforge namespace.
type Metadata struct {
	Title          string `json:"title"`
	Author         string `json:"author"`
	Language       string `json:"language"`
	CoverPath      string `json:"coverPath,omitempty"`
	Year           string `json:"year,omitempty"`
	Narrator       string `json:"narrator,omitempty"`
	Series         string `json:"series,omitempty"`
	SeriesNumber   string `json:"seriesNumber,omitempty"`
	Genre          string `json:"genre,omitempty"`
	Description    string `json:"description,omitempty"`
	OutputFilename string `json:"outputFilename,omitempty"`
}

// Session aggregates one TTS run's on-disk state.
type Session struct {
	SessionID          string    `json:"sessionId"`
	SessionDir         string    `json:"sessionDir"`
	ProcessDir         string    `json:"processDir"`
	TotalSentences     int       `json:"totalSentences"`
	CompletedSentences int       `json:"completedSentences"`
	PercentComplete    int       `json:"percentComplete"`
	Chapters           []Chapter `json:"chapters"`
	Metadata           Metadata  `json:"metadata"`
	SourceEpubPath     string    `json:"sourceEpubPath,omitempty"`
	CreatedAt          time.Time `json:"createdAt"`
	ModifiedAt         time.Time `json:"modifiedAt"`
	Source             Source    `json:"source"`
	LinkedProjectPath  string    `json:"linkedProjectPath,omitempty"`
}

// percent computes round(completed/total*100), with zero totals mapping to 0.
func percent(completed, total int) int {
	if total <= 0 {
		return 0
	}
	return int(math.Round(float64(completed) / float64(total) * 100))
}
