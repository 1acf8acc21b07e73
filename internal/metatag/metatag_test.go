package metatag

import (
	"context"
	"errors"
	"strings"
	"testing"

	"bookforge/internal/config"
	"bookforge/internal/logging"
	"bookforge/internal/services"
)

type fakeExecutor struct {
	binary string
	args   []string
	output string
	err    error
	calls  int
}

func (f *fakeExecutor) Run(_ context.Context, binary string, args []string) (string, error) {
	f.calls++
	f.binary = binary
	f.args = args
	return f.output, f.err
}

func lookPathWith(available ...string) func(string) (string, error) {
	return func(name string) (string, error) {
		for _, candidate := range available {
			if candidate == name {
				return "/usr/bin/" + name, nil
			}
		}
		return "", errors.New("not found")
	}
}

func newApplier(cfg config.Metadata, exec *fakeExecutor, available ...string) *Applier {
	return New(cfg, logging.NewNop(),
		WithExecutor(exec),
		WithLookPath(lookPathWith(available...)))
}

func TestApplyPrefersToneWhenAuto(t *testing.T) {
	exec := &fakeExecutor{}
	applier := newApplier(config.Metadata{Tool: "auto", TimeoutSeconds: 10}, exec, "tone", "m4b-tool")

	err := applier.Apply(context.Background(), "/out/book.m4b", Tags{Title: "A Title", Author: "An Author"})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if exec.binary != "/usr/bin/tone" {
		t.Fatalf("expected tone to be preferred, got %q", exec.binary)
	}
	joined := strings.Join(exec.args, " ")
	if !strings.HasPrefix(joined, "tag /out/book.m4b") {
		t.Fatalf("unexpected tone invocation: %q", joined)
	}
	if !strings.Contains(joined, "--meta-title A Title") {
		t.Fatalf("expected title flag, got %q", joined)
	}
}

func TestApplyFallsBackToM4BTool(t *testing.T) {
	exec := &fakeExecutor{}
	applier := newApplier(config.Metadata{Tool: "auto", TimeoutSeconds: 10}, exec, "m4b-tool")

	if err := applier.Apply(context.Background(), "/out/book.m4b", Tags{Title: "A Title"}); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if exec.binary != "/usr/bin/m4b-tool" {
		t.Fatalf("expected m4b-tool fallback, got %q", exec.binary)
	}
	if exec.args[0] != "meta" {
		t.Fatalf("expected meta subcommand, got %q", exec.args[0])
	}
}

func TestApplySkipsWhenNoToolInstalled(t *testing.T) {
	exec := &fakeExecutor{}
	applier := newApplier(config.Metadata{Tool: "auto", TimeoutSeconds: 10}, exec)

	if err := applier.Apply(context.Background(), "/out/book.m4b", Tags{Title: "A Title"}); err != nil {
		t.Fatalf("missing tool must be a silent skip, got %v", err)
	}
	if exec.calls != 0 {
		t.Fatalf("expected no executions, got %d", exec.calls)
	}
}

func TestApplySkipsWhenDisabled(t *testing.T) {
	exec := &fakeExecutor{}
	applier := newApplier(config.Metadata{Tool: "none", TimeoutSeconds: 10}, exec, "tone")

	if err := applier.Apply(context.Background(), "/out/book.m4b", Tags{Title: "A Title"}); err != nil {
		t.Fatalf("disabled tool must be a silent skip, got %v", err)
	}
	if exec.calls != 0 {
		t.Fatalf("expected no executions, got %d", exec.calls)
	}
}

func TestApplyWrapsToolFailure(t *testing.T) {
	exec := &fakeExecutor{output: "tone: cannot write tags", err: errors.New("exit status 1")}
	applier := newApplier(config.Metadata{Tool: "tone", TimeoutSeconds: 10}, exec, "tone")

	err := applier.Apply(context.Background(), "/out/book.m4b", Tags{Title: "A Title"})
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected external-tool error, got %v", err)
	}
	if !strings.Contains(err.Error(), "cannot write tags") {
		t.Fatalf("expected tool output in error, got %v", err)
	}
}

func TestApplyReturnsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	exec := &fakeExecutor{err: ctx.Err()}
	applier := newApplier(config.Metadata{Tool: "tone", TimeoutSeconds: 10}, exec, "tone")

	err := applier.Apply(ctx, "/out/book.m4b", Tags{Title: "A Title"})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context cancellation to pass through, got %v", err)
	}
}

func TestNormalizeGenreAndSeriesFlags(t *testing.T) {
	exec := &fakeExecutor{}
	applier := newApplier(config.Metadata{Tool: "tone", TimeoutSeconds: 10}, exec, "tone")

	err := applier.Apply(context.Background(), "/out/book.m4b", Tags{
		Title:        "A Title",
		Genre:        "science fiction",
		Series:       "The Saga",
		SeriesNumber: "2",
	})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	joined := strings.Join(exec.args, " ")
	if !strings.Contains(joined, "--meta-genre Science Fiction") {
		t.Fatalf("expected title-cased genre, got %q", joined)
	}
	if !strings.Contains(joined, "--meta-movement-name The Saga") || !strings.Contains(joined, "--meta-movement 2") {
		t.Fatalf("expected series flags, got %q", joined)
	}
}
