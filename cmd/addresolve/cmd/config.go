package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/Aman-CERP/addresolve/configs"
	"github.com/Aman-CERP/addresolve/internal/config"
	"github.com/Aman-CERP/addresolve/internal/output"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration",
		Long: `Manage the addresolve configuration.

Configuration precedence (lowest to highest):
  1. Hardcoded defaults
  2. User config (~/.config/addresolve/config.yaml)
  3. Project config (.addresolve.yaml)
  4. Environment variables (ADDRESOLVE_*)`,
		Example: `  # Create user config from template
  addresolve config init

  # Show effective configuration (merged from all sources)
  addresolve config show

  # Print user config file path
  addresolve config path`,
	}

	cmd.AddCommand(newConfigInitCmd())
	cmd.AddCommand(newConfigShowCmd())
	cmd.AddCommand(newConfigPathCmd())

	return cmd
}

func newConfigInitCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create user configuration file",
		Long: `Create the user configuration file from a template.

The file is created at ~/.config/addresolve/config.yaml
(or $XDG_CONFIG_HOME/addresolve/config.yaml if XDG_CONFIG_HOME is set).

With --force an existing file is backed up, then rewritten with your
settings kept and any new options filled in with defaults.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runConfigInit(cmd, force)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Upgrade an existing configuration (a backup is kept)")

	return cmd
}

func newConfigShowCmd() *cobra.Command {
	var (
		jsonOutput bool
		source     string
	)

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show effective configuration",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runConfigShow(cmd, jsonOutput, source)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	cmd.Flags().StringVar(&source, "source", "merged", "Config source: merged, user, defaults")

	return cmd
}

func newConfigPathCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print user config file path",
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := fmt.Fprintln(cmd.OutOrStdout(), config.GetUserConfigPath())
			return err
		},
	}
}

func runConfigInit(cmd *cobra.Command, force bool) error {
	out := output.New(cmd.OutOrStdout())
	configPath := config.GetUserConfigPath()

	if config.UserConfigExists() {
		if !force {
			out.Warning("User configuration already exists")
			out.Statusf("📁", "Location: %s", configPath)
			out.Newline()
			out.Status("💡", "Use --force to upgrade with new defaults (preserves your settings)")
			return nil
		}
		return runConfigUpgrade(out, configPath)
	}

	if err := os.MkdirAll(config.GetUserConfigDir(), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(configPath, []byte(configs.UserConfigTemplate), 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	out.Success("Created user configuration")
	out.Statusf("📁", "Location: %s", configPath)
	out.Newline()
	out.Status("📋", "Next steps:")
	out.Status("", "  1. Set providers.stored.path and/or providers.dictionary.path")
	out.Status("", "  2. Set providers.geocoder.endpoint to enable the geocoder")
	out.Status("", "  3. Run 'addresolve config show' to verify")
	return nil
}

// runConfigUpgrade backs up the user config and rewrites it over current defaults.
func runConfigUpgrade(out *output.Writer, configPath string) error {
	backupPath, err := config.BackupUserConfig()
	if err != nil {
		return fmt.Errorf("failed to backup config: %w", err)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return fmt.Errorf("failed to read user config: %w", err)
	}
	cfg := config.NewConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse user config: %w", err)
	}
	if err := cfg.WriteYAML(configPath); err != nil {
		return fmt.Errorf("failed to write upgraded config: %w", err)
	}

	out.Success("Configuration upgraded")
	out.Statusf("📁", "Location: %s", configPath)
	out.Statusf("💾", "Backup: %s", backupPath)
	return nil
}

func runConfigShow(cmd *cobra.Command, jsonOutput bool, source string) error {
	out := output.New(cmd.OutOrStdout())

	var (
		cfg        *config.Config
		sourceDesc string
	)
	switch source {
	case "merged":
		var err error
		cfg, err = loadConfig()
		if err != nil {
			return err
		}
		sourceDesc = "merged (defaults + user + project + env)"
		if configFile != "" {
			sourceDesc = fmt.Sprintf("file (%s) + env", configFile)
		}

	case "user":
		configPath := config.GetUserConfigPath()
		if !config.UserConfigExists() {
			out.Warning("No user configuration file found")
			out.Statusf("📁", "Expected at: %s", configPath)
			out.Status("💡", "Run 'addresolve config init' to create one")
			return nil
		}
		data, err := os.ReadFile(configPath)
		if err != nil {
			return fmt.Errorf("failed to read user config: %w", err)
		}
		cfg = config.NewConfig()
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("failed to parse user config: %w", err)
		}
		sourceDesc = fmt.Sprintf("user (%s)", configPath)

	case "defaults":
		cfg = config.NewConfig()
		sourceDesc = "defaults (hardcoded)"

	default:
		return fmt.Errorf("invalid source: %s (use: merged, user, defaults)", source)
	}

	if jsonOutput {
		data, err := json.MarshalIndent(cfg, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal config: %w", err)
		}
		_, err = fmt.Fprintln(cmd.OutOrStdout(), string(data))
		return err
	}

	out.Statusf("📋", "Configuration source: %s", sourceDesc)
	out.Newline()

	// the API key is never printed
	shown := *cfg
	if shown.Providers.Geocoder.APIKey != "" {
		shown.Providers.Geocoder.APIKey = "********"
	}
	data, err := yaml.Marshal(&shown)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return err
}
