package commands

import (
	"fmt"

	"github.com/marmos91/atlasfs/pkg/config"
	"github.com/spf13/cobra"
)

var initForce bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a sample configuration file",
	Long: `Initialize a sample atlasfs configuration file populated with defaults.

By default, the configuration file is created at $XDG_CONFIG_HOME/atlasfs/config.yaml.
Use --config to specify a custom path. A .toml extension selects TOML output.

Examples:
  # Initialize with default location
  atlasfs init

  # Initialize a TOML file at a custom path
  atlasfs init --config /etc/atlasfs/config.toml

  # Force overwrite existing config
  atlasfs init --force`,
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "Force overwrite existing config file")
}

func runInit(cmd *cobra.Command, args []string) error {
	configFile := GetConfigFile()

	var configPath string
	var err error

	if configFile != "" {
		configPath, err = config.InitConfigToPath(configFile, initForce)
	} else {
		configPath, err = config.InitConfig(initForce)
	}
	if err != nil {
		return fmt.Errorf("failed to initialize config: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Configuration file created at: %s\n", configPath)
	fmt.Fprintln(out, "\nNext steps:")
	fmt.Fprintln(out, "  1. Edit the configuration file to customize your setup")
	fmt.Fprintln(out, "  2. Start the server with: atlasfs start")
	fmt.Fprintf(out, "  3. Or specify custom config: atlasfs start --config %s\n", configPath)
	return nil
}
