package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dxforge/forge/pkg/forge"
)

var checkoutCmd = &cobra.Command{
	Use:   "checkout <branch|commit-id>",
	Short: "Move HEAD to a branch or detach it at a commit",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		repo, err := openRepository()
		if err != nil {
			return err
		}
		defer repo.Close()

		head, err := repo.Checkout(args[0])
		if err != nil {
			return err
		}

		switch head.Kind {
		case forge.HeadDetached:
			fmt.Printf("HEAD detached at %s\n", head.Commit)
		default:
			fmt.Printf("Switched to branch %s (%s)\n", head.Branch, head.Commit)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(checkoutCmd)
}
