package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"bookforge/internal/jobstore"
	"bookforge/internal/logging"
	"bookforge/internal/metatag"
	"bookforge/internal/progress"
	"bookforge/internal/reassembly"
	"bookforge/internal/session"
)

func newReassembleCommand(ctx *commandContext) *cobra.Command {
	var outputDir string
	var fields session.ExtendedMetadata
	var coverPath string

	cmd := &cobra.Command{
		Use:   "reassemble <session-id>",
		Short: "Assemble a session into an audiobook in the foreground",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := consoleLogger(cfg)
			if err != nil {
				return err
			}

			signalCtx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			records, err := jobstore.Open(cfg)
			if err != nil {
				return fmt.Errorf("open job store: %w", err)
			}
			defer records.Close()

			sessions := openSessionStore(cfg, logger)
			orch := reassembly.New(cfg, sessions, logger,
				reassembly.WithRecorder(records),
				reassembly.WithTagger(metatag.New(cfg.Metadata, logger)),
			)
			defer func() {
				shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancelShutdown()
				if err := orch.Shutdown(shutdownCtx); err != nil {
					logger.Warn("orchestrator shutdown", logging.Error(err))
				}
			}()

			var cover *session.CoverInput
			if strings.TrimSpace(coverPath) != "" {
				cover = &session.CoverInput{SourcePath: coverPath}
			}

			sampler := logging.NewProgressSampler(5)
			done := make(chan progress.Event, 1)
			sink := progress.SinkFunc(func(event progress.Event) {
				switch event.Phase {
				case progress.PhaseComplete, progress.PhaseError:
					select {
					case done <- event:
					default:
					}
				default:
					if sampler.ShouldLog(float64(event.Percentage), string(event.Phase)) {
						attrs := []any{
							logging.String(logging.FieldPhase, string(event.Phase)),
							logging.Int("percent", event.Percentage),
						}
						if event.TotalChapters > 0 {
							attrs = append(attrs,
								logging.Int("chapter", event.CurrentChapter),
								logging.Int("total_chapters", event.TotalChapters))
						}
						if event.ETASeconds > 0 {
							attrs = append(attrs, logging.Int("eta_seconds", event.ETASeconds))
						}
						logger.Info("reassembly progress", attrs...)
					}
				}
			})

			jobID, err := orch.Start(reassembly.Request{
				SessionID: args[0],
				OutputDir: outputDir,
				Metadata:  fields,
				Cover:     cover,
				Sink:      sink,
			})
			if err != nil {
				return fmt.Errorf("start reassembly: %w", err)
			}
			logger.Info("reassembly started",
				logging.String(logging.FieldJobID, jobID),
				logging.String(logging.FieldSessionID, args[0]))

			select {
			case <-signalCtx.Done():
				logger.Info("cancelling reassembly", logging.String(logging.FieldJobID, jobID))
				orch.Stop(jobID)
				<-done
				return context.Canceled
			case event := <-done:
				if event.Phase == progress.PhaseError {
					return errors.New(event.Error)
				}
				fmt.Fprintln(cmd.OutOrStdout(), event.Message)
				return nil
			}
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&outputDir, "output-dir", "o", "", "Directory for the finished audiobook (defaults to output_dir)")
	flags.StringVar(&fields.Title, "title", "", "Override the book title")
	flags.StringVar(&fields.OutputFilename, "output-filename", "", "Base name for the finished audiobook")
	flags.IntSliceVar(&fields.ExcludedChapters, "exclude-chapters", nil, "Chapter numbers to exclude from assembly")
	flags.StringVar(&coverPath, "cover", "", "Path to a cover image to attach")

	return cmd
}
