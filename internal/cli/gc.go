package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var gcCmd = &cobra.Command{
	Use:   "gc",
	Short: "Remove chunks no manifest references anymore",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		repo, err := openRepository()
		if err != nil {
			return err
		}
		defer repo.Close()

		result, err := repo.CollectGarbage()
		if err != nil {
			return err
		}
		fmt.Printf("removed %d chunks, reclaimed %d bytes\n", result.RemovedChunks, result.ReclaimedBytes)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(gcCmd)
}
