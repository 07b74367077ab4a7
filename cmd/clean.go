package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tanq16/chunkget/internal/output"
	"github.com/tanq16/chunkget/internal/utils"
)

func newCleanCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clean [path]",
		Short: "Remove cached chunks next to the given output path",
		Args:  cobra.MaximumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			dir := "."
			if len(args) > 0 {
				dir = utils.CleanTarget(args[0])
			}
			if err := utils.Clean(dir); err != nil {
				output.PrintError(fmt.Sprintf("Error cleaning up cache: %v", err))
				os.Exit(1)
			}
			output.PrintSuccess("Cache cleaned up")
		},
	}
}
