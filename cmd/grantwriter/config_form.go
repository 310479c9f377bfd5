package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/mattn/go-isatty"

	"github.com/aristath/grantwriter/internal/agent"
	"github.com/aristath/grantwriter/internal/config"
	"github.com/aristath/grantwriter/internal/orchestrator"
)

// initChoices are the settings `config init` asks for.
type initChoices struct {
	Process         string
	AgentProvider   string // every task role
	ManagerProvider string // the hierarchical manager
	Deadline        string // empty means no deadline
}

// defaultChoices reads the current answers out of cfg.
func defaultChoices(cfg *config.GrantwriterConfig) initChoices {
	ch := initChoices{
		Process:         cfg.Pipeline.Process,
		AgentProvider:   cfg.Agents[agent.RoleProposalWriting.String()].Provider,
		ManagerProvider: cfg.Agents[agent.RoleProjectManager.String()].Provider,
	}
	if d := cfg.Pipeline.Deadline.Duration; d > 0 {
		ch.Deadline = d.String()
	}
	return ch
}

func validateDeadline(s string) error {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	d, err := time.ParseDuration(strings.TrimSpace(s))
	if err != nil {
		return fmt.Errorf("not a duration: %q", s)
	}
	if d < 0 {
		return errors.New("deadline must not be negative")
	}
	return nil
}

// applyChoices writes ch into cfg. The manager role keeps its own provider;
// every other agent gets AgentProvider.
func applyChoices(cfg *config.GrantwriterConfig, ch initChoices) error {
	process, err := orchestrator.ParseProcess(ch.Process)
	if err != nil {
		return err
	}
	for _, p := range []string{ch.AgentProvider, ch.ManagerProvider} {
		if _, ok := cfg.Providers[p]; !ok {
			return fmt.Errorf("unknown provider %q", p)
		}
	}
	if err := validateDeadline(ch.Deadline); err != nil {
		return err
	}

	cfg.Pipeline.Process = string(process)
	manager := agent.RoleProjectManager.String()
	for name, ac := range cfg.Agents {
		want := ch.AgentProvider
		if name == manager {
			want = ch.ManagerProvider
		}
		if ac.Provider != want {
			ac.Provider = want
			ac.Model = "" // a model override belongs to the old provider
		}
		cfg.Agents[name] = ac
	}
	cfg.Pipeline.Deadline = config.Duration{}
	if s := strings.TrimSpace(ch.Deadline); s != "" {
		d, _ := time.ParseDuration(s)
		cfg.Pipeline.Deadline = config.Duration{Duration: d}
	}
	return nil
}

func providerNames(cfg *config.GrantwriterConfig) []string {
	names := make([]string, 0, len(cfg.Providers))
	for name := range cfg.Providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func newInitForm(ch *initChoices, providers []string) *huh.Form {
	return huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Key("process").
				Title("Process").
				Description("Hierarchical runs let the manager take over delegated tasks.").
				Options(
					huh.NewOption("Sequential", string(orchestrator.ProcessSequential)),
					huh.NewOption("Hierarchical", string(orchestrator.ProcessHierarchical)),
				).
				Value(&ch.Process),
		).Title("Pipeline"),

		huh.NewGroup(
			huh.NewSelect[string]().
				Key("agentProvider").
				Title("Agent Provider").
				Options(huh.NewOptions(providers...)...).
				Value(&ch.AgentProvider),
			huh.NewSelect[string]().
				Key("managerProvider").
				Title("Manager Provider").
				Options(huh.NewOptions(providers...)...).
				Value(&ch.ManagerProvider),
		).Title("Providers"),

		huh.NewGroup(
			huh.NewInput().
				Key("deadline").
				Title("Run Deadline").
				Placeholder("e.g. 30m, empty for none").
				Validate(validateDeadline).
				Value(&ch.Deadline),
		).Title("Limits"),
	).WithTheme(huh.ThemeCharm())
}

// isTerminal reports whether r is an interactive terminal.
func isTerminal(r io.Reader) bool {
	f, ok := r.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// askChoices runs the init form on in/out and returns the answers.
func askChoices(ctx context.Context, cfg *config.GrantwriterConfig, in io.Reader, out io.Writer) (initChoices, error) {
	ch := defaultChoices(cfg)
	form := newInitForm(&ch, providerNames(cfg)).WithInput(in).WithOutput(out)
	if err := form.RunWithContext(ctx); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			return ch, errors.New("config init aborted")
		}
		return ch, err
	}
	return ch, nil
}
