// Package commands implements the atlasfs command line.
package commands

import (
	"github.com/spf13/cobra"
)

var (
	// Version information injected at build time.
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"

	// Global flags.
	cfgFile string
)

var rootCmd = &cobra.Command{
	Use:   "atlasfs",
	Short: "atlasfs - directory lifecycle command server",
	Long: `atlasfs accepts binary-encoded directory commands over TCP, applies them
to a local filesystem root, records outcomes in a key-value store and
broadcasts deletions to WebSocket subscribers.

Use "atlasfs [command] --help" for more information about a command.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command. Called once by main.main().
func Execute() error {
	return rootCmd.Execute()
}

// GetRootCmd returns the root command for testing purposes.
func GetRootCmd() *cobra.Command {
	return rootCmd
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $XDG_CONFIG_HOME/atlasfs/config.yaml)")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(sendCmd)
	rootCmd.AddCommand(dumpCmd)
	rootCmd.AddCommand(configCmd)

	rootCmd.CompletionOptions.DisableDefaultCmd = true
}

// GetConfigFile returns the config file path from the global flag.
func GetConfigFile() string {
	return cfgFile
}
