package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"bookforge/internal/jobstore"
)

func newJobsCommand(ctx *commandContext) *cobra.Command {
	var limit int
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "List recorded reassembly jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			records, err := jobstore.Open(cfg)
			if err != nil {
				return fmt.Errorf("open job store: %w", err)
			}
			defer records.Close()

			jobs, err := records.List(cmd.Context(), limit)
			if err != nil {
				return fmt.Errorf("list jobs: %w", err)
			}

			out := cmd.OutOrStdout()
			if jsonOutput {
				encoder := json.NewEncoder(out)
				encoder.SetIndent("", "  ")
				return encoder.Encode(jobs)
			}

			if len(jobs) == 0 {
				fmt.Fprintln(out, "No jobs recorded")
				return nil
			}

			rows := make([][]string, 0, len(jobs))
			for _, job := range jobs {
				detail := job.OutputPath
				if job.Error != "" {
					detail = job.Error
				}
				rows = append(rows, []string{
					job.ID,
					job.SessionID,
					string(job.Status),
					job.Phase,
					formatPercent(job.Percentage),
					truncate(orDash(detail), 60),
					formatTimestamp(job.CreatedAt),
				})
			}
			fmt.Fprintln(out, renderTable(
				[]string{"JOB", "SESSION", "STATUS", "PHASE", "DONE", "OUTPUT / ERROR", "CREATED"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignLeft, alignLeft},
			))
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of jobs to show")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Emit JSON instead of a table")
	return cmd
}
