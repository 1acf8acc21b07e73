// Package metatag applies audiobook metadata tags to a finished container
// with whichever external tagging tool is installed. Tagging is best effort:
// a missing tool or a failed run never fails the job that produced the file.
package metatag

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"bookforge/internal/config"
	"bookforge/internal/logging"
	"bookforge/internal/services"
)

// Tags carries the fields written onto the container.
type Tags struct {
	Title        string
	Author       string
	Narrator     string
	Series       string
	SeriesNumber string
	Genre        string
	Year         string
	Description  string
	CoverPath    string
}

// Executor abstracts command execution for testability.
type Executor interface {
	Run(ctx context.Context, binary string, args []string) (output string, err error)
}

type execRunner struct{}

func (execRunner) Run(ctx context.Context, binary string, args []string) (string, error) {
	out, err := exec.CommandContext(ctx, binary, args...).CombinedOutput() //nolint:gosec
	return string(out), err
}

type tagger struct {
	name      string
	binary    string
	buildArgs func(outputPath string, tags Tags) []string
}

// Applier selects and drives the tagging tool.
type Applier struct {
	tool     string
	timeout  time.Duration
	exec     Executor
	lookPath func(string) (string, error)
	logger   *slog.Logger
}

// Option configures the applier.
type Option func(*Applier)

// WithExecutor injects a custom executor (primarily for tests).
func WithExecutor(exec Executor) Option {
	return func(a *Applier) {
		if exec != nil {
			a.exec = exec
		}
	}
}

// WithLookPath injects a custom binary prober (primarily for tests).
func WithLookPath(lookPath func(string) (string, error)) Option {
	return func(a *Applier) {
		if lookPath != nil {
			a.lookPath = lookPath
		}
	}
}

// New constructs an applier from configuration.
func New(cfg config.Metadata, logger *slog.Logger, opts ...Option) *Applier {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	applier := &Applier{
		tool:     strings.TrimSpace(cfg.Tool),
		timeout:  timeout,
		exec:     execRunner{},
		lookPath: exec.LookPath,
		logger:   logging.NewComponentLogger(logger, "metatag"),
	}
	for _, opt := range opts {
		opt(applier)
	}
	return applier
}

// Apply tags outputPath with the configured tool. Returns nil when tagging
// is disabled or no tool is installed. A tool failure is returned wrapped as
// an external-tool error so the caller can log it without failing the job;
// context cancellation is returned as-is.
func (a *Applier) Apply(ctx context.Context, outputPath string, tags Tags) error {
	selected := a.resolve()
	if selected == nil {
		a.logger.Debug("no tagging tool available, skipping metadata")
		return nil
	}

	args := selected.buildArgs(outputPath, normalize(tags))
	runCtx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	attrs := []any{
		logging.String("tool", selected.name),
		logging.String("output", outputPath),
	}
	if jobID, ok := services.JobIDFromContext(ctx); ok {
		attrs = append(attrs, logging.String(logging.FieldJobID, jobID))
	}
	a.logger.Info("applying metadata tags", attrs...)
	output, err := a.exec.Run(runCtx, selected.binary, args)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if runCtx.Err() == context.DeadlineExceeded {
			return services.Wrap(services.ErrTimeout, "metadata", "tag",
				fmt.Sprintf("%s timed out after %s", selected.name, a.timeout), nil)
		}
		return services.Wrap(services.ErrExternalTool, "metadata", "tag",
			fmt.Sprintf("%s failed: %s", selected.name, tail(output, 512)), err)
	}
	return nil
}

// resolve picks the tagger for the configured tool name, probing the PATH
// in preference order when set to auto.
func (a *Applier) resolve() *tagger {
	switch a.tool {
	case "none":
		return nil
	case "tone":
		return a.probe(toneTagger)
	case "m4b-tool":
		return a.probe(m4bToolTagger)
	default: // auto
		if t := a.probe(toneTagger); t != nil {
			return t
		}
		return a.probe(m4bToolTagger)
	}
}

func (a *Applier) probe(t tagger) *tagger {
	resolved, err := a.lookPath(t.binary)
	if err != nil {
		return nil
	}
	t.binary = resolved
	return &t
}

var toneTagger = tagger{
	name:   "tone",
	binary: "tone",
	buildArgs: func(outputPath string, tags Tags) []string {
		args := []string{"tag", outputPath}
		appendFlag(&args, "--meta-title", tags.Title)
		appendFlag(&args, "--meta-artist", tags.Author)
		appendFlag(&args, "--meta-narrator", tags.Narrator)
		appendFlag(&args, "--meta-genre", tags.Genre)
		appendFlag(&args, "--meta-publishing-date", tags.Year)
		appendFlag(&args, "--meta-description", tags.Description)
		appendFlag(&args, "--meta-cover-file", tags.CoverPath)
		if tags.Series != "" {
			appendFlag(&args, "--meta-movement-name", tags.Series)
			appendFlag(&args, "--meta-movement", tags.SeriesNumber)
		}
		return args
	},
}

var m4bToolTagger = tagger{
	name:   "m4b-tool",
	binary: "m4b-tool",
	buildArgs: func(outputPath string, tags Tags) []string {
		args := []string{"meta", outputPath}
		appendFlag(&args, "--name", tags.Title)
		appendFlag(&args, "--artist", tags.Author)
		appendFlag(&args, "--writer", tags.Narrator)
		appendFlag(&args, "--genre", tags.Genre)
		appendFlag(&args, "--year", tags.Year)
		appendFlag(&args, "--description", tags.Description)
		appendFlag(&args, "--cover", tags.CoverPath)
		if tags.Series != "" {
			appendFlag(&args, "--series", tags.Series)
			appendFlag(&args, "--series-part", tags.SeriesNumber)
		}
		return args
	},
}

func appendFlag(args *[]string, flag, value string) {
	if strings.TrimSpace(value) == "" {
		return
	}
	*args = append(*args, flag, value)
}

var genreCaser = cases.Title(language.English)

// normalize tidies free-form fields before they hit the container.
func normalize(tags Tags) Tags {
	tags.Title = strings.TrimSpace(tags.Title)
	tags.Author = strings.TrimSpace(tags.Author)
	tags.Narrator = strings.TrimSpace(tags.Narrator)
	tags.Genre = genreCaser.String(strings.TrimSpace(tags.Genre))
	tags.Year = strings.TrimSpace(tags.Year)
	tags.Description = strings.TrimSpace(tags.Description)
	return tags
}

func tail(s string, max int) string {
	s = strings.TrimSpace(s)
	if len(s) <= max {
		return s
	}
	return s[len(s)-max:]
}
