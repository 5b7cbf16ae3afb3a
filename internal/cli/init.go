package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dxforge/forge/pkg/forge"
)

var initCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Create an empty forge repository",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := "."
		if len(args) == 1 {
			path = args[0]
		}
		if path == "." {
			wd, err := os.Getwd()
			if err != nil {
				return err
			}
			path = wd
		}

		repo, err := forge.Init(path)
		if err != nil {
			return err
		}
		defer repo.Close()

		fmt.Printf("Initialized empty forge repository in %s\n", repo.Root)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}
