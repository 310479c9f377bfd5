package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/aristath/grantwriter/internal/config"
)

func (a *app) newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect or create configuration",
		Long: `Inspect or create configuration.

Configuration is stored at ~/.grantwriter/config.json.
Project-specific overrides can be placed in .grantwriter/config.json.`,
	}

	show := &cobra.Command{
		Use:     "show",
		Short:   "Print the merged configuration",
		Args:    cobra.NoArgs,
		PreRunE: a.bindFlags,
		RunE:    a.showConfig,
	}
	show.Flags().String("format", "json", "Output format: json or yaml")

	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write a new configuration file",
		Long: `Write a new configuration file.

On a terminal, a form asks for the process, the providers and the run
deadline. With --defaults, or when input is not a terminal, the built-in
defaults are written as they are.`,
		Args:    cobra.NoArgs,
		PreRunE: a.bindFlags,
		RunE:    a.initConfig,
	}
	initCmd.Flags().Bool("project", false, "Write .grantwriter/config.json in the current directory")
	initCmd.Flags().Bool("force", false, "Overwrite an existing file")
	initCmd.Flags().Bool("defaults", false, "Write the defaults without asking")

	cmd.AddCommand(show, initCmd)
	return cmd
}

func (a *app) showConfig(cmd *cobra.Command, _ []string) error {
	cfg, err := a.loadConfig()
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	switch format := a.v.GetString("format"); format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(cfg)
	case "yaml", "yml":
		// Round-trip through JSON so YAML keys match the config file keys.
		data, err := json.Marshal(cfg)
		if err != nil {
			return err
		}
		var doc map[string]any
		if err := json.Unmarshal(data, &doc); err != nil {
			return err
		}
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(doc); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("unknown config format %q", format)
	}
}

func (a *app) initConfig(cmd *cobra.Command, _ []string) error {
	path := config.ProjectPath()
	if !a.v.GetBool("project") {
		var err error
		if path, err = config.GlobalPath(); err != nil {
			return err
		}
	}

	if _, err := os.Stat(path); err == nil && !a.v.GetBool("force") {
		return fmt.Errorf("%s already exists (use --force to overwrite)", path)
	}
	cfg := config.DefaultConfig()
	if !a.v.GetBool("defaults") && isTerminal(cmd.InOrStdin()) {
		ch, err := askChoices(cmd.Context(), cfg, cmd.InOrStdin(), cmd.OutOrStdout())
		if err != nil {
			return err
		}
		if err := applyChoices(cfg, ch); err != nil {
			return err
		}
	}
	if err := config.Save(cfg, path); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
	return nil
}
