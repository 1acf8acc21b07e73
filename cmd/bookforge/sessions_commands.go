package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"bookforge/internal/session"
)

func newSessionsCommand(ctx *commandContext) *cobra.Command {
	sessionsCmd := &cobra.Command{
		Use:   "sessions",
		Short: "Inspect and manage TTS sessions",
	}

	sessionsCmd.AddCommand(newSessionsListCommand(ctx))
	sessionsCmd.AddCommand(newSessionsShowCommand(ctx))
	sessionsCmd.AddCommand(newSessionsDeleteCommand(ctx))
	sessionsCmd.AddCommand(newSessionsSetMetaCommand(ctx))

	return sessionsCmd
}

func newSessionsListCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List discovered sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := quietLogger()
			if err != nil {
				return err
			}

			sessions, err := openSessionStore(cfg, logger).Scan(cmd.Context())
			if err != nil {
				return fmt.Errorf("scan sessions: %w", err)
			}

			out := cmd.OutOrStdout()
			if jsonOutput {
				encoder := json.NewEncoder(out)
				encoder.SetIndent("", "  ")
				return encoder.Encode(sessions)
			}

			if len(sessions) == 0 {
				fmt.Fprintln(out, "No sessions found")
				return nil
			}

			rows := make([][]string, 0, len(sessions))
			for _, sess := range sessions {
				rows = append(rows, []string{
					sess.SessionID,
					truncate(orDash(sess.Metadata.Title), 40),
					truncate(orDash(sess.Metadata.Author), 30),
					formatPercent(sess.PercentComplete),
					fmt.Sprintf("%d/%d", sess.CompletedSentences, sess.TotalSentences),
					string(sess.Source),
					formatTimestamp(sess.ModifiedAt),
				})
			}
			fmt.Fprintln(out, renderTable(
				[]string{"SESSION", "TITLE", "AUTHOR", "DONE", "SENTENCES", "SOURCE", "MODIFIED"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignLeft, alignLeft},
			))
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Emit JSON instead of a table")
	return cmd
}

func newSessionsShowCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "show <session-id>",
		Short: "Show one session in detail",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := quietLogger()
			if err != nil {
				return err
			}

			sess, err := openSessionStore(cfg, logger).Get(args[0])
			if err != nil {
				return fmt.Errorf("load session: %w", err)
			}
			if sess == nil {
				return fmt.Errorf("session %s not found", args[0])
			}

			out := cmd.OutOrStdout()
			if jsonOutput {
				encoder := json.NewEncoder(out)
				encoder.SetIndent("", "  ")
				return encoder.Encode(sess)
			}

			fmt.Fprintf(out, "Session:   %s\n", sess.SessionID)
			fmt.Fprintf(out, "Directory: %s\n", sess.SessionDir)
			fmt.Fprintf(out, "Source:    %s\n", sess.Source)
			fmt.Fprintf(out, "Title:     %s\n", orDash(sess.Metadata.Title))
			fmt.Fprintf(out, "Author:    %s\n", orDash(sess.Metadata.Author))
			fmt.Fprintf(out, "Narrator:  %s\n", orDash(sess.Metadata.Narrator))
			fmt.Fprintf(out, "Language:  %s\n", orDash(sess.Metadata.Language))
			if sess.Metadata.Series != "" {
				fmt.Fprintf(out, "Series:    %s %s\n", sess.Metadata.Series, sess.Metadata.SeriesNumber)
			}
			fmt.Fprintf(out, "Progress:  %s (%d of %d sentences)\n",
				formatPercent(sess.PercentComplete), sess.CompletedSentences, sess.TotalSentences)
			if sess.SourceEpubPath != "" {
				fmt.Fprintf(out, "EPUB:      %s\n", sess.SourceEpubPath)
			}

			if len(sess.Chapters) > 0 {
				rows := make([][]string, 0, len(sess.Chapters))
				for _, ch := range sess.Chapters {
					state := formatPercent(chapterPercent(ch))
					if ch.Excluded {
						state = "excluded"
					}
					rows = append(rows, []string{
						fmt.Sprintf("%d", ch.ChapterNum),
						truncate(orDash(ch.Title), 50),
						fmt.Sprintf("%d-%d", ch.SentenceStart, ch.SentenceEnd),
						fmt.Sprintf("%d/%d", ch.CompletedCount, ch.SentenceCount),
						state,
					})
				}
				fmt.Fprintln(out)
				fmt.Fprintln(out, renderTable(
					[]string{"CH", "TITLE", "SENTENCES", "DONE", "STATE"},
					rows,
					[]columnAlignment{alignRight, alignLeft, alignLeft, alignRight, alignRight},
				))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Emit JSON instead of text")
	return cmd
}

func chapterPercent(ch session.Chapter) int {
	if ch.SentenceCount <= 0 {
		return 0
	}
	return ch.CompletedCount * 100 / ch.SentenceCount
}

func newSessionsDeleteCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <session-id>",
		Short: "Delete a session and its fragments",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := quietLogger()
			if err != nil {
				return err
			}

			removed, err := openSessionStore(cfg, logger).Delete(args[0])
			if err != nil {
				return fmt.Errorf("delete session: %w", err)
			}
			if !removed {
				return fmt.Errorf("session %s not found", args[0])
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted session %s\n", args[0])
			return nil
		},
	}
}

func newSessionsSetMetaCommand(ctx *commandContext) *cobra.Command {
	var fields session.ExtendedMetadata
	var coverPath string

	cmd := &cobra.Command{
		Use:   "set-meta <session-id>",
		Short: "Override book metadata for a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := quietLogger()
			if err != nil {
				return err
			}

			var cover *session.CoverInput
			if strings.TrimSpace(coverPath) != "" {
				cover = &session.CoverInput{SourcePath: coverPath}
			}

			store := openSessionStore(cfg, logger)
			if err := store.SaveMetadata(args[0], fields, cover); err != nil {
				return fmt.Errorf("save metadata: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Updated metadata for session %s\n", args[0])
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&fields.Title, "title", "", "Book title")
	flags.StringVar(&fields.Author, "author", "", "Author name")
	flags.StringVar(&fields.Narrator, "narrator", "", "Narrator name")
	flags.StringVar(&fields.Language, "language", "", "Language code, e.g. en-us")
	flags.StringVar(&fields.Year, "year", "", "Publication year")
	flags.StringVar(&fields.Series, "series", "", "Series name")
	flags.StringVar(&fields.SeriesNumber, "series-number", "", "Position within the series")
	flags.StringVar(&fields.Genre, "genre", "", "Genre")
	flags.StringVar(&fields.Description, "description", "", "Book description")
	flags.StringVar(&fields.OutputFilename, "output-filename", "", "Base name for the finished audiobook")
	flags.IntSliceVar(&fields.ExcludedChapters, "exclude-chapters", nil, "Chapter numbers to exclude from assembly")
	flags.StringVar(&coverPath, "cover", "", "Path to a cover image to attach")

	return cmd
}
