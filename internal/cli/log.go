package cli

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var logCmd = &cobra.Command{
	Use:   "log",
	Short: "Show the commit history of the current HEAD",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		repo, err := openRepository()
		if err != nil {
			return err
		}
		defer repo.Close()

		entries, err := repo.Log()
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			fmt.Println("no commits yet")
			return nil
		}

		yellow := color.New(color.FgYellow)
		for _, entry := range entries {
			yellow.Printf("commit %s\n", entry.ID)
			fmt.Printf("Author: %s\n", entry.Record.Author)
			fmt.Printf("Date:   %s\n", entry.Record.Time.Format("Mon Jan 2 15:04:05 2006 -0700"))
			fmt.Printf("Manifest: %s\n\n", entry.Record.Manifest)
			fmt.Printf("    %s\n\n", entry.Record.Message)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(logCmd)
}
