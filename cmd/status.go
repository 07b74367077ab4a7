package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tanq16/chunkget/internal/engine"
	"github.com/tanq16/chunkget/internal/output"
	"github.com/tanq16/chunkget/internal/utils"
)

func newStatusCmd() *cobra.Command {
	var total int64
	cmd := &cobra.Command{
		Use:   "status [URL]",
		Short: "Show the saved chunk status of an interrupted download",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			url := args[0]
			dest := outputPath
			if dest == "" {
				dest = utils.InferOutputPath(url)
			}
			cacheDir := engine.CacheDir(dest, url)
			states, err := engine.LoadStatus(cacheDir)
			if err != nil {
				output.PrintError(fmt.Sprintf("Cannot read status: %v", err))
				os.Exit(1)
			}
			if states == nil {
				output.PrintInfo(fmt.Sprintf("No saved status for %s in %s", url, cacheDir))
				return
			}
			var chunks []engine.ChunkSpec
			if total > 0 {
				chunks = engine.Partition(len(states), total)
			}
			output.PrintHeader(fmt.Sprintf("%s %s %s", url, output.StyleSymbols["arrow"], dest))
			fmt.Println(output.StatusTable(states, chunks))
			var cached int64
			finished := 0
			for _, st := range states {
				cached += st.CachedSize
				if st.Finished {
					finished++
				}
			}
			output.PrintDetail(fmt.Sprintf("%d of %d chunks finished, %s cached", finished, len(states), output.FormatSize(cached)))
		},
	}
	cmd.Flags().Int64Var(&total, "size", 0, "Total size in bytes, to show chunk ranges")
	return cmd
}
