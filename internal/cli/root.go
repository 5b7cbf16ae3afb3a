// Package cli implements the forge command tree.
package cli

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/dxforge/forge/internal/logger"
	"github.com/dxforge/forge/pkg/config"
	"github.com/dxforge/forge/pkg/forge"
)

var (
	configPath string
	toolConfig *config.Config
)

// rootCmd is the base command when called without subcommands.
var rootCmd = &cobra.Command{
	Use:   "forge",
	Short: "Forge - content-addressed asset repository with multi-backend mirroring",
	Long: `Forge versions large binary assets in a local content-addressed
repository and replicates them to remote services such as object
storage and media platforms.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		toolConfig = cfg
		logger.SetLevel(cfg.Logging.Level)
		return nil
	},
}

// Execute runs the command tree.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		logger.Error("%v", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default $XDG_CONFIG_HOME/forge/config.yaml)")
}

// openRepository discovers the repository from the working directory.
func openRepository() (*forge.Repository, error) {
	wd, err := os.Getwd()
	if err != nil {
		return nil, err
	}
	return forge.Discover(wd)
}
