package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/Aman-CERP/mediadex/internal/config"
	"github.com/Aman-CERP/mediadex/internal/output"
)

func newConfigCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration",
		Long: `Manage mediadex configuration.

Configuration precedence (lowest to highest):
  1. Built-in defaults
  2. User config (~/.config/mediadex/config.yaml)
  3. Project config (.mediadex.yaml)
  4. Environment variables (MEDIADEX_*)`,
		Example: `  # Create the user config with defaults
  mediadex config init

  # Show the effective configuration
  mediadex config show`,
	}

	cmd.AddCommand(newConfigInitCmd())
	cmd.AddCommand(newConfigShowCmd(opts))
	cmd.AddCommand(newConfigPathCmd())
	return cmd
}

func newConfigInitCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create the user configuration file",
		Long: `Write the default configuration to ~/.config/mediadex/config.yaml
(or $XDG_CONFIG_HOME/mediadex/config.yaml). An existing file is kept
unless --force is given, in which case it is backed up first.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := output.New(cmd.OutOrStdout())
			if config.UserConfigExists() && !force {
				out.Warning("User configuration already exists")
				out.Statusf("📁", "Location: %s", config.GetUserConfigPath())
				out.Status("💡", "Use --force to overwrite it (a backup is kept)")
				return nil
			}

			path, backup, err := config.InitUserConfig(force)
			if err != nil {
				return err
			}
			out.Success("Created user configuration")
			out.Statusf("📁", "Location: %s", path)
			if backup != "" {
				out.Statusf("💾", "Backup: %s", backup)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite the existing configuration")
	return cmd
}

func newConfigShowCmd(opts *globalOptions) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), cfg)
			}
			data, err := yaml.Marshal(cfg)
			if err != nil {
				return fmt.Errorf("failed to encode config: %w", err)
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func newConfigPathCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print the user config file path",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), config.GetUserConfigPath())
			return nil
		},
	}
}
