package cli

import (
	"fmt"
	"path/filepath"
	"slices"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/dxforge/forge/internal/prompt"
	"github.com/dxforge/forge/pkg/auth"
	"github.com/dxforge/forge/pkg/mirror/backends"
)

// freeBackends are the services with free tiers, targeted by the
// all-free batch flow. R2 is excluded because it needs a paid account.
var freeBackends = []string{
	"dropbox", "gdrive", "github", "mega",
	"pinterest", "sketchfab", "soundcloud", "youtube",
}

var authToken string

var authCmd = &cobra.Command{
	Use:   "auth <backend>|all-free|list",
	Short: "Store mirror backend credentials",
	Long: `Store credentials for a mirror backend in the repository's
credential database. Each backend has its own flow: token paste for
PAT and API-key services, OAuth2 token paste for Google and Dropbox
style services, email and password for MEGA, and the four connection
fields for S3-compatible storage.

"auth all-free" walks every free-tier backend in one sitting; a failed
or skipped backend never aborts the rest. With --token the given value
is stored directly and no prompt runs.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		repo, err := openRepository()
		if err != nil {
			return err
		}
		defer repo.Close()

		store, err := auth.OpenStore(filepath.Join(repo.Root, "auth.db"))
		if err != nil {
			return err
		}
		defer store.Close()

		switch args[0] {
		case "list":
			return listCredentials(store)
		case "all-free":
			if authToken != "" {
				return fmt.Errorf("--token applies to a single backend")
			}
			return authAllFree(store)
		default:
			return authOne(store, args[0], authToken)
		}
	},
}

// authOne stores credentials for one backend. A non-empty token skips
// the interactive flow and is stored as the bundle's access token.
func authOne(store *auth.Store, backend, token string) error {
	if !slices.Contains(backends.Names, backend) {
		return fmt.Errorf("unknown backend %q (known: %v)", backend, backends.Names)
	}

	var bundle auth.TokenBundle
	if token != "" {
		bundle = auth.TokenBundle{AccessToken: token}
	} else {
		var err error
		bundle, err = prompt.ForBackend(backend)
		if err != nil {
			return err
		}
	}
	if err := store.Save(backend, bundle); err != nil {
		return err
	}
	color.Green("✓ credentials stored for %s", backend)
	return nil
}

// authAllFree runs every free backend's flow independently and prints
// a summary at the end.
func authAllFree(store *auth.Store) error {
	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)

	type outcome struct {
		backend string
		err     error
	}
	var outcomes []outcome

	for _, backend := range freeBackends {
		proceed, err := prompt.Confirm(fmt.Sprintf("Configure %s", backend))
		if err != nil {
			return err
		}
		if !proceed {
			outcomes = append(outcomes, outcome{backend, fmt.Errorf("skipped")})
			continue
		}
		err = authOne(store, backend, "")
		outcomes = append(outcomes, outcome{backend, err})
	}

	fmt.Println("\nSummary:")
	for _, o := range outcomes {
		if o.err == nil {
			green.Printf("  ✓ %s\n", o.backend)
		} else {
			yellow.Printf("  ⚠ %s: %v\n", o.backend, o.err)
		}
	}
	return nil
}

func listCredentials(store *auth.Store) error {
	names, err := store.List()
	if err != nil {
		return err
	}
	if len(names) == 0 {
		fmt.Println("no stored credentials")
		return nil
	}
	for _, name := range names {
		fmt.Println(name)
	}
	return nil
}

func init() {
	authCmd.Flags().StringVar(&authToken, "token", "", "store the given token without prompting")
	rootCmd.AddCommand(authCmd)
}
