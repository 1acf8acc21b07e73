package main

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"bookforge/internal/config"
	"bookforge/internal/logging"
	"bookforge/internal/session"
)

// quietLogger suppresses routine store chatter during read-only commands.
func quietLogger() (*slog.Logger, error) {
	return logging.New(logging.Options{
		Level:       "warn",
		Format:      "console",
		OutputPaths: []string{"stderr"},
	})
}

func consoleLogger(cfg *config.Config) (*slog.Logger, error) {
	return logging.New(logging.Options{
		Level:       cfg.Logging.Level,
		Format:      "console",
		OutputPaths: []string{"stderr"},
	})
}

func openSessionStore(cfg *config.Config, logger *slog.Logger) *session.Store {
	return session.NewStore(cfg.Paths.SessionDir, cfg.Paths.ProjectDirs, logger)
}

func formatTimestamp(ts time.Time) string {
	if ts.IsZero() {
		return "-"
	}
	return ts.Local().Format("2006-01-02 15:04")
}

func orDash(value string) string {
	if strings.TrimSpace(value) == "" {
		return "-"
	}
	return value
}

func truncate(value string, limit int) string {
	if limit <= 3 || len(value) <= limit {
		return value
	}
	return value[:limit-3] + "..."
}

func formatPercent(value int) string {
	return fmt.Sprintf("%d%%", value)
}
