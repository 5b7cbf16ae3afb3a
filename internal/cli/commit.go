package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dxforge/forge/pkg/chunk"
)

var commitMessage string

var commitCmd = &cobra.Command{
	Use:   "commit <manifest-id>",
	Short: "Record a manifest as a commit on the current branch",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		manifestID, err := chunk.ParseHash(args[0])
		if err != nil {
			return fmt.Errorf("bad manifest id: %w", err)
		}
		if commitMessage == "" {
			return fmt.Errorf("a commit message is required (-m)")
		}

		repo, err := openRepository()
		if err != nil {
			return err
		}
		defer repo.Close()

		// The manifest must exist locally before it can be committed.
		if _, err := repo.ReadManifest(manifestID); err != nil {
			return err
		}

		author := toolConfig.Author.Email
		if toolConfig.Author.Name != "" {
			author = fmt.Sprintf("%s <%s>", toolConfig.Author.Name, toolConfig.Author.Email)
		}

		id, err := repo.Commit(manifestID, commitMessage, author)
		if err != nil {
			return err
		}
		fmt.Printf("committed %s\n", id)
		return nil
	},
}

func init() {
	commitCmd.Flags().StringVarP(&commitMessage, "message", "m", "", "commit message")
	rootCmd.AddCommand(commitCmd)
}
