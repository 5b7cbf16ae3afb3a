package cli

import (
	"bytes"
	"fmt"
	"mime"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/dxforge/forge/pkg/auth"
	"github.com/dxforge/forge/pkg/chunk"
	"github.com/dxforge/forge/pkg/config"
	"github.com/dxforge/forge/pkg/mirror"
)

var (
	mirrorPolicy   string
	mirrorBackends []string
	mirrorForce    bool
)

var mirrorCmd = &cobra.Command{
	Use:   "mirror <manifest-id>",
	Short: "Replicate a manifest's content to the configured backends",
	Long: `Reassemble the file a manifest describes and upload it to the
selected mirror backends concurrently. Success is judged against the
configured policy; backends that already hold the manifest are skipped
unless --force is given.`,
	Args: cobra.ExactArgs(1),
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

		manifest, err := repo.ReadManifest(manifestID)
		if err != nil {
			return err
		}

		var payload bytes.Buffer
		if err := repo.Restore(manifestID, &payload); err != nil {
			return err
		}

		store, err := auth.OpenStore(filepath.Join(repo.Root, "auth.db"))
		if err != nil {
			return err
		}
		defer store.Close()

		journal, err := mirror.OpenJournal(filepath.Join(repo.Root, "mirror-journal"))
		if err != nil {
			return err
		}
		defer journal.Close()

		mirrorCfg := toolConfig.Mirror
		if mirrorPolicy != "" {
			mirrorCfg.Policy = mirrorPolicy
		}
		if len(mirrorBackends) > 0 {
			mirrorCfg.Backends = mirrorBackends
		}

		registry, err := config.BuildRegistry(store, mirrorCfg)
		if err != nil {
			return err
		}
		orch, policy, err := config.BuildOrchestrator(mirrorCfg, journal)
		if err != nil {
			return err
		}

		meta := mirror.Metadata{
			ID:        manifestID.String(),
			Filename:  filepath.Base(manifest.Path),
			MediaType: mediaTypeFor(manifest.Path),
			Size:      manifest.Size,
		}

		selected, skipped, err := selectBackends(registry, journal, mirrorCfg.Backends, store, manifestID)
		if err != nil {
			return err
		}
		for _, name := range skipped {
			fmt.Printf("  = %s already holds %s\n", name, manifestID)
		}
		if len(selected) == 0 {
			fmt.Println("nothing to do")
			return nil
		}

		results, pushErr := orch.Push(cmd.Context(), payload.Bytes(), meta, selected, policy)
		printMirrorSummary(results)
		return pushErr
	},
}

// selectBackends resolves the backend list: the explicit selection, or
// every backend with stored credentials. Backends whose journal entry
// already covers the manifest are skipped unless --force.
func selectBackends(registry *mirror.Registry, journal *mirror.Journal, names []string, store *auth.Store, manifestID chunk.Hash) ([]mirror.Backend, []string, error) {
	if len(names) == 0 {
		stored, err := store.List()
		if err != nil {
			return nil, nil, err
		}
		names = stored
	}

	var selected []mirror.Backend
	var skipped []string
	for _, name := range names {
		backend, ok := registry.Get(name)
		if !ok {
			return nil, nil, fmt.Errorf("unknown backend %q", name)
		}
		if !mirrorForce {
			if _, held, err := journal.Lookup(name, manifestID.String()); err != nil {
				return nil, nil, err
			} else if held {
				skipped = append(skipped, name)
				continue
			}
		}
		selected = append(selected, backend)
	}
	return selected, skipped, nil
}

func printMirrorSummary(results []mirror.Result) {
	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)
	for _, r := range results {
		if r.Err != nil {
			yellow.Printf("  ⚠ %s: %v\n", r.Backend, r.Err)
		} else {
			green.Printf("  ✓ %s: %s\n", r.Backend, r.Target.Key)
		}
	}
}

func mediaTypeFor(path string) string {
	if mt := mime.TypeByExtension(filepath.Ext(path)); mt != "" {
		return mt
	}
	return "application/octet-stream"
}

func init() {
	mirrorCmd.Flags().StringVar(&mirrorPolicy, "policy", "", "success policy: all, any or quorum:<n>")
	mirrorCmd.Flags().StringSliceVar(&mirrorBackends, "backends", nil, "backends to push to (default: all with stored credentials)")
	mirrorCmd.Flags().BoolVar(&mirrorForce, "force", false, "push even to backends that already hold the manifest")
	rootCmd.AddCommand(mirrorCmd)
}
