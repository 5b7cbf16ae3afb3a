package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dxforge/forge/pkg/chunk"
)

var restoreOutput string

var restoreCmd = &cobra.Command{
	Use:   "restore <manifest-id>",
	Short: "Reassemble the file a manifest describes",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		manifestID, err := chunk.ParseHash(args[0])
		if err != nil {
			return fmt.Errorf("bad manifest id: %w", err)
		}

		repo, err := openRepository()
		if err != nil {
			return err
		}
		defer repo.Close()

		out := os.Stdout
		if restoreOutput != "" {
			f, err := os.Create(restoreOutput)
			if err != nil {
				return err
			}
			defer f.Close()
			out = f
		}
		return repo.Restore(manifestID, out)
	},
}

func init() {
	restoreCmd.Flags().StringVarP(&restoreOutput, "output", "o", "", "write to file instead of stdout")
	rootCmd.AddCommand(restoreCmd)
}
