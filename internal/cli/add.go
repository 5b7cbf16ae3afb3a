package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/dxforge/forge/pkg/forge"
)

var addQuiet bool

var addCmd = &cobra.Command{
	Use:   "add <file>...",
	Short: "Chunk files into the repository and print their manifest ids",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		repo, err := openRepository()
		if err != nil {
			return err
		}
		defer repo.Close()

		for _, path := range args {
			result, err := addFile(repo, path)
			if err != nil {
				return fmt.Errorf("add %s: %w", path, err)
			}
			fmt.Printf("%s  %s  (%d new chunks, %d deduplicated, %d bytes stored)\n",
				result.ManifestID, path, result.NewChunks, result.DedupChunks, result.StoredBytes)
		}
		return nil
	},
}

func addFile(repo *forge.Repository, path string) (*forge.IngestResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}

	var src io.Reader = f
	if !addQuiet {
		bar := progressbar.NewOptions64(info.Size(),
			progressbar.OptionSetDescription(fmt.Sprintf("Adding %s", path)),
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionShowBytes(true),
			progressbar.OptionSetWidth(50),
			progressbar.OptionThrottle(65),
			progressbar.OptionOnCompletion(func() {
				fmt.Fprint(os.Stderr, "\n")
			}),
		)
		src = io.TeeReader(f, bar)
	}

	return repo.Ingest(src, path)
}

func init() {
	addCmd.Flags().BoolVarP(&addQuiet, "quiet", "q", false, "suppress progress output")
	rootCmd.AddCommand(addCmd)
}
