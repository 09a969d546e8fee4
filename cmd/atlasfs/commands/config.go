package commands

import (
	"github.com/marmos91/atlasfs/pkg/config"
	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration management",
	Long: `Inspect atlasfs configuration.

Use 'atlasfs init' to create a new configuration file.`,
}

var showFormat string

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Display the effective configuration",
	Long: `Display the configuration atlasfs would run with, after merging the
config file, ATLASFS_* environment overrides and defaults.

Examples:
  # Show as YAML
  atlasfs config show

  # Show as TOML
  atlasfs config show --format toml`,
	RunE: runConfigShow,
}

func init() {
	showCmd.Flags().StringVarP(&showFormat, "format", "f", config.FormatYAML, "Output format (yaml|toml)")
	configCmd.AddCommand(showCmd)
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(GetConfigFile())
	if err != nil {
		return err
	}

	data, err := config.Marshal(cfg, showFormat)
	if err != nil {
		return err
	}

	_, err = cmd.OutOrStdout().Write(data)
	return err
}
