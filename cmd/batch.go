package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tanq16/chunkget/internal/output"
	"github.com/tanq16/chunkget/internal/scheduler"
	"github.com/tanq16/chunkget/internal/utils"
)

func newBatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "batch [YAML_FILE]",
		Short: "Download every {link, op} entry of a YAML file",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			log := utils.GetLogger("batch")
			entries, err := utils.ReadDownloadList(args[0])
			if err != nil {
				output.PrintError(fmt.Sprintf("Failed to read batch file: %v", err))
				os.Exit(1)
			}
			if len(entries) == 0 {
				output.PrintError("No entries found in the batch file")
				os.Exit(1)
			}
			settings := cfg.DownloadSettings()
			if cfg.Workers*settings.Connections > utils.MaxConnections {
				settings.Connections = max(utils.MaxConnections/cfg.Workers, 1)
				log.Debug().Int("connections", settings.Connections).Msg("Reduced connections per download")
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			jobs := scheduler.NewJobs(entries, settings)
			outputMgr := output.NewManager(os.Stdout, output.IsTerminal(os.Stdout))
			if err := scheduler.Run(ctx, jobs, cfg.Workers, settings, newRegistry(ctx), outputMgr); err != nil {
				log.Debug().Err(err).Msg("Batch completed with failures")
				output.PrintError("Encountered failed download(s)")
				os.Exit(1)
			}
		},
	}
}
