package main

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"

	"podscribe/internal/ledger"
	"podscribe/internal/logging"
	"podscribe/internal/pipeline"
	"podscribe/internal/podcastapi"
	"podscribe/internal/services/tongyi"
	"podscribe/internal/storage"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run one transcription pass over all configured podcasts",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			logger, err := logging.New(logging.Options{
				Level:  cfg.Logging.Level,
				Format: cfg.Logging.Format,
				OutputPaths: []string{
					"stderr",
					filepath.Join(cfg.Paths.LogDir, "podscribe.log"),
				},
			})
			if err != nil {
				return fmt.Errorf("configure logging: %w", err)
			}

			store, err := storage.NewStore(cfg.Paths.DataDir, logger)
			if err != nil {
				return err
			}
			source, err := podcastapi.NewClient(cfg.PodcastAPI, logger)
			if err != nil {
				return err
			}
			registry, err := tongyi.NewClient(cfg.Tongyi, logger)
			if err != nil {
				return err
			}
			led, err := ledger.Open(cfg.Paths.DataDir)
			if err != nil {
				return err
			}
			defer func() { _ = led.Close() }()

			runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			result, err := pipeline.New(cfg, store, source, registry, led, logger).Run(runCtx)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			rows := make([][]string, 0, len(result.Podcasts))
			for _, podcast := range result.Podcasts {
				status := "ok"
				if podcast.Err != nil {
					status = podcast.Err.Error()
				}
				rows = append(rows, []string{
					podcast.PID,
					podcast.Name,
					strconv.Itoa(podcast.Episodes),
					strconv.Itoa(podcast.Eligible),
					strconv.Itoa(podcast.Documents),
					status,
				})
			}
			fmt.Fprintln(out, renderTable(runResultColumns, rows))
			fmt.Fprintf(out, "Run %s produced %d transcript document(s)\n", result.RunID, result.Documents())
			if result.Failed() {
				return fmt.Errorf("one or more podcasts failed; see log for details")
			}
			return nil
		},
	}
}
