// Root command for the cascade CLI.
package main

import (
	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/cascade/internal/paths"
)

// Exit codes.
const (
	exitSuccess   = 0
	exitUserError = 1
	exitSysError  = 2
)

// Global flag values.
var (
	flagConfigDir string
	flagDataDir   string
	flagJSON      bool
)

// cliConfig holds the chain definition loaded from config.yaml.
// Set by PersistentPreRunE so all subcommands can use it.
var cliConfig *chainConfig

var rootCmd = &cobra.Command{
	Use:     "cascade",
	Short:   "Cascade navigates a chain of related records",
	Version: version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		configDir, err := resolveConfigDir()
		if err != nil {
			return err
		}
		cfg, err := loadConfig(configDir)
		if err != nil {
			return err
		}
		cliConfig = cfg
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfigDir, "config-dir", "", "configuration directory (default: $(CWD)/.cascade)")
	rootCmd.PersistentFlags().StringVar(&flagDataDir, "data-dir", "", "data directory (default: $(CWD)/.cascade-db)")
	rootCmd.PersistentFlags().BoolVar(&flagJSON, "json", false, "output as JSON")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(seedCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(selectCmd)
	rootCmd.AddCommand(firstCmd)
	rootCmd.AddCommand(lastCmd)
	rootCmd.AddCommand(nextCmd)
	rootCmd.AddCommand(prevCmd)
	rootCmd.AddCommand(newCmd)
}

// resolveDataDir returns the data directory following the precedence chain:
// --data-dir flag > config.yaml data_dir > CASCADE_DATA_DIR env > default.
func resolveDataDir() (string, error) {
	configured := ""
	if cliConfig != nil {
		configured = cliConfig.DataDir
	}
	return paths.ResolveDataDir(flagDataDir, configured)
}

// resolveConfigDir returns the configuration directory following the
// precedence chain: --config-dir flag > CASCADE_CONFIG_DIR env > default.
func resolveConfigDir() (string, error) {
	return paths.ResolveConfigDir(flagConfigDir)
}
