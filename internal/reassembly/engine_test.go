package reassembly

import (
	"strings"
	"testing"

	"bookforge/internal/config"
	"bookforge/internal/session"
)

func TestEngineCommandNative(t *testing.T) {
	cfg := config.Engine{Device: "cpu", TTSEngine: "kokoro"}
	sess := &session.Session{
		SessionID:      "session-abc",
		SessionDir:     "/data/session-abc",
		SourceEpubPath: "/books/a.epub",
	}

	spec, translate := engineCommand(cfg, sess, "/out/.bookforge-staging-j1", "en-US")
	if spec.Binary == "wsl.exe" {
		t.Fatal("native session must not be bridged through WSL")
	}
	if spec.Args[0] != "/books/a.epub" {
		t.Fatalf("expected epub as first argument, got %q", spec.Args[0])
	}
	joined := strings.Join(spec.Args, " ")
	for _, want := range []string{
		"--output /out/.bookforge-staging-j1",
		"--session session-abc",
		"--session-dir /data/session-abc",
		"--device cpu",
		"--engine kokoro",
		"--assemble-only",
		"--no-split",
		"--lang en-US",
	} {
		if !strings.Contains(joined, want) {
			t.Fatalf("missing %q in args %q", want, joined)
		}
	}
	if got := translate("/out/book.m4b"); got != "/out/book.m4b" {
		t.Fatalf("native translation must be identity, got %q", got)
	}
}

func TestEngineCommandWSLBridge(t *testing.T) {
	cfg := config.Engine{Device: "cuda", TTSEngine: "kokoro", WSLDistro: "Ubuntu", Binary: "audiblez"}
	sess := &session.Session{
		SessionID:      "session-abc",
		SessionDir:     `\\wsl$\Ubuntu\home\user\session-abc`,
		SourceEpubPath: `C:\Books\a.epub`,
	}

	spec, translate := engineCommand(cfg, sess, `\\wsl$\Ubuntu\home\user\out\.bookforge-staging-j1`, "en-US")
	if spec.Binary != "wsl.exe" {
		t.Fatalf("expected wsl.exe bridge, got %q", spec.Binary)
	}
	joined := strings.Join(spec.Args, " ")
	if !strings.HasPrefix(joined, "-d Ubuntu -- bash -lc ") {
		t.Fatalf("unexpected bridge invocation: %q", joined)
	}
	command := spec.Args[len(spec.Args)-1]
	if !strings.Contains(command, "/mnt/c/Books/a.epub") {
		t.Fatalf("expected translated epub path in %q", command)
	}
	if !strings.Contains(command, "/home/user/session-abc") {
		t.Fatalf("expected translated session dir in %q", command)
	}
	if strings.Contains(command, `\\wsl$`) || strings.Contains(command, `C:\`) {
		t.Fatalf("untranslated Windows path leaked into %q", command)
	}

	if got := translate("/home/user/out/book.m4b"); got != `\\wsl$\Ubuntu\home\user\out\book.m4b` {
		t.Fatalf("expected UNC translation of engine-reported path, got %q", got)
	}
}

func TestWSLEngineBinaryAvoidsHostPaths(t *testing.T) {
	tests := []struct {
		name   string
		binary string
		want   string
	}{
		{"unset falls back to the command name", "", "audiblez"},
		{"bare command passes through", "audiblez", "audiblez"},
		{"posix override passes through", "/home/user/.local/bin/audiblez", "/home/user/.local/bin/audiblez"},
		{"windows override is translated to its mount", `C:\Tools\audiblez.exe`, "/mnt/c/Tools/audiblez.exe"},
		{"unc override is translated to its native form", `\\wsl$\Ubuntu\usr\local\bin\audiblez`, "/usr/local/bin/audiblez"},
	}
	for _, tt := range tests {
		cfg := config.Engine{Binary: tt.binary}
		if got := wslEngineBinary(cfg); got != tt.want {
			t.Fatalf("%s: wslEngineBinary(%q) = %q, want %q", tt.name, tt.binary, got, tt.want)
		}
	}
}

func TestShellQuote(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"plain", "plain"},
		{"", "''"},
		{"with space", "'with space'"},
		{"it's", `'it'\''s'`},
	}
	for _, tt := range tests {
		if got := shellQuote(tt.in); got != tt.want {
			t.Fatalf("shellQuote(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
