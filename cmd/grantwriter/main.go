// Command grantwriter drafts grant proposals by running a pipeline of
// model-backed agents over an organization's background and RFP documents.
package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/aristath/grantwriter/internal/config"
	"github.com/aristath/grantwriter/internal/logging"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// app carries state shared by all subcommands.
type app struct {
	v *viper.Viper
}

func newRootCmd() *cobra.Command {
	a := &app{v: viper.New()}
	a.v.SetEnvPrefix("GRANTWRITER")
	a.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	a.v.AutomaticEnv()

	root := &cobra.Command{
		Use:   "grantwriter",
		Short: "Draft grant proposals with a pipeline of AI agents",
		Long: `grantwriter runs five specialist agents over your organization's
background and the RFP documents: document ingestion, RFP analysis, proposal
writing, budget preparation and quality review. Each agent builds on the
output of the ones before it, and the reviewed proposal is the final
deliverable.

Configuration is read from ~/.grantwriter/config.json and
.grantwriter/config.json; every flag can also be set through a GRANTWRITER_*
environment variable (e.g. GRANTWRITER_LOG_LEVEL=debug).`,
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "Additional config file merged over the default locations")
	root.PersistentFlags().String("log-level", "", "Log level: debug, info, warn, error (default from config)")
	root.PersistentFlags().Bool("log-pretty", false, "Human-readable log output")
	a.v.BindPFlags(root.PersistentFlags())

	root.AddCommand(
		a.newRunCmd(),
		a.newHistoryCmd(),
		a.newShowCmd(),
		a.newConfigCmd(),
	)
	return root
}

// bindFlags makes the executing command's flags visible through viper, so
// environment variables fill in flags the user did not pass. Binding
// happens at run time because subcommands share flag names.
func (a *app) bindFlags(cmd *cobra.Command, _ []string) error {
	return a.v.BindPFlags(cmd.Flags())
}

// loadConfig loads the layered configuration plus the --config file.
func (a *app) loadConfig() (*config.GrantwriterConfig, error) {
	cfg, err := config.LoadDefault()
	if err != nil {
		return nil, err
	}
	if path := a.v.GetString("config"); path != "" {
		if err := config.MergeFile(cfg, path); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// setupLogging configures the global logger from config, letting the
// log flags win when given.
func (a *app) setupLogging(cfg config.LogConfig, w io.Writer) error {
	level, pretty := cfg.Level, cfg.Pretty
	if a.v.IsSet("log-level") {
		level = a.v.GetString("log-level")
	}
	if a.v.IsSet("log-pretty") {
		pretty = a.v.GetBool("log-pretty")
	}
	if err := logging.Setup(level, pretty, w); err != nil {
		return fmt.Errorf("invalid log level %q: %w", level, err)
	}
	return nil
}
