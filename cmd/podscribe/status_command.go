package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"podscribe/internal/ledger"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var limit int
	var runID string

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show recent pipeline runs and their outcomes",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			led, err := ledger.Open(cfg.Paths.DataDir)
			if err != nil {
				return err
			}
			defer func() { _ = led.Close() }()

			out := cmd.OutOrStdout()
			if runID != "" {
				outcomes, err := led.RunOutcomes(cmd.Context(), runID)
				if err != nil {
					return err
				}
				if len(outcomes) == 0 {
					fmt.Fprintf(out, "No outcomes recorded for run %s\n", runID)
					return nil
				}
				rows := make([][]string, 0, len(outcomes))
				for _, outcome := range outcomes {
					document := ""
					if outcome.Document {
						document = "yes"
					}
					rows = append(rows, []string{
						outcome.PodcastID,
						outcome.EpisodeID,
						outcome.Title,
						outcome.State,
						document,
						outcome.Reason,
					})
				}
				fmt.Fprintln(out, renderTable(runOutcomeColumns, rows))
				return nil
			}

			runs, err := led.RecentRuns(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if len(runs) == 0 {
				fmt.Fprintln(out, "No runs recorded yet")
				return nil
			}
			rows := make([][]string, 0, len(runs))
			for _, run := range runs {
				finished := "running"
				if run.Finished {
					finished = run.FinishedAt.Local().Format("2006-01-02 15:04:05")
				}
				status := "ok"
				if run.Error != "" {
					status = run.Error
				}
				rows = append(rows, []string{
					run.ID,
					run.StartedAt.Local().Format("2006-01-02 15:04:05"),
					finished,
					strconv.Itoa(run.Episodes),
					strconv.Itoa(run.Documents),
					strconv.Itoa(run.Failures),
					status,
				})
			}
			fmt.Fprintln(out, renderTable(recentRunColumns, rows))
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "Number of recent runs to show")
	cmd.Flags().StringVar(&runID, "run", "", "Show per-episode outcomes for one run")
	return cmd
}
