package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/fatih/color"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/aristath/grantwriter/internal/backend"
	"github.com/aristath/grantwriter/internal/config"
	"github.com/aristath/grantwriter/internal/document"
	"github.com/aristath/grantwriter/internal/events"
	"github.com/aristath/grantwriter/internal/orchestrator"
	"github.com/aristath/grantwriter/internal/persistence"
	"github.com/aristath/grantwriter/internal/report"
	"github.com/aristath/grantwriter/internal/scheduler"
	"github.com/aristath/grantwriter/internal/telemetry"
	"github.com/aristath/grantwriter/internal/tui"
)

// dryRunProvider replaces every configured provider under --dry-run.
const dryRunProvider = "echo"

func (a *app) newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the proposal pipeline",
		Long: `Run the proposal pipeline for one organization.

The pipeline ingests the given documents, analyzes the RFP, writes the
proposal, prepares a budget and reviews the result. Rate-limited model calls
are retried with exponential backoff. The final output is written to stdout
(or --out) in the chosen format.

Use --dry-run to exercise the pipeline offline: every agent answers with a
deterministic echo of its task.`,
		Example: `  grantwriter run --org "Acme Foundation" --background "Youth literacy programs" \
    --budget 50000 --doc rfp.pdf --doc annual-report.txt --format markdown --out proposal.md`,
		Args:    cobra.NoArgs,
		PreRunE: a.bindFlags,
		RunE:    a.runPipeline,
	}

	f := cmd.Flags()
	f.String("org", "", "Organization name (required)")
	f.String("background", "", "Organization background (required)")
	f.Int64("budget", 0, "Total budget in whole currency units (omit to let the agents derive it)")
	f.StringSlice("doc", nil, "Document to ingest (repeatable)")
	f.String("format", "text", "Output format: text, markdown, json, yaml, csv")
	f.String("out", "", "Write the output to this file instead of stdout")
	f.String("archive", "", "SQLite database to archive the finished run in")
	f.String("metrics-file", "", "Write Prometheus metrics for the run to this textfile")
	f.String("process", "", "Task assignment: sequential or hierarchical (default from config)")
	f.Duration("deadline", 0, "Overall run deadline, e.g. 30m (default from config)")
	f.Bool("tui", false, "Show a live terminal UI while the run executes")
	f.Bool("dry-run", false, "Use the offline echo backend for every agent")
	return cmd
}

func (a *app) runPipeline(cmd *cobra.Command, _ []string) error {
	format, err := report.ParseFormat(a.v.GetString("format"))
	if err != nil {
		return err
	}

	cfg, err := a.loadConfig()
	if err != nil {
		return err
	}
	if p := a.v.GetString("process"); p != "" {
		cfg.Pipeline.Process = p
	}
	if a.v.IsSet("deadline") {
		cfg.Pipeline.Deadline = config.Duration{Duration: a.v.GetDuration("deadline")}
	}

	useTUI := a.v.GetBool("tui")
	logOut, closeLog, err := logDestination(cfg.Log, useTUI, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer closeLog()
	if err := a.setupLogging(cfg.Log, logOut); err != nil {
		return err
	}

	// Create signal-aware context for graceful shutdown
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Create ProcessManager for subprocess tracking
	pm := backend.NewProcessManager()

	provider := ""
	if a.v.GetBool("dry-run") {
		provider = dryRunProvider
	}
	models, closeModels, err := cfg.Models(pm, provider)
	if err != nil {
		return err
	}
	defer closeModels()

	plan, err := cfg.Plan()
	if err != nil {
		return err
	}
	profiles, err := cfg.Profiles()
	if err != nil {
		return err
	}
	process, manager, err := cfg.Process()
	if err != nil {
		return err
	}

	docs, err := document.FromPaths(a.v.GetStringSlice("doc"))
	if err != nil {
		return err
	}
	var tools document.Factory
	if len(docs) > 0 {
		index, err := document.NewIndex(ctx, cfg.IndexOptions())
		if err != nil {
			return err
		}
		defer index.Close()
		tools = index
	}

	bus := events.NewBus()
	defer bus.Close()

	sinks := telemetry.Multi{telemetry.NewLogSink(log.Logger), events.NewBusSink(bus)}
	var metrics *telemetry.PrometheusSink
	if a.v.GetString("metrics-file") != "" {
		metrics = telemetry.NewPrometheusSink()
		sinks = append(sinks, metrics)
	}

	var breakers *orchestrator.CircuitBreakerRegistry
	if cfg.Breaker.Threshold > 0 {
		breakers = orchestrator.NewCircuitBreakerRegistry(cfg.BreakerSettings())
	}

	runner, err := orchestrator.NewRunner(orchestrator.Config{
		Plan:     plan,
		Profiles: profiles,
		Models:   models,
		Tools:    tools,
		Invoker:  orchestrator.NewInvoker(cfg.RetryPolicy(), breakers, sinks),
		Bus:      bus,
		Deadline: cfg.Pipeline.Deadline.Duration,
		Process:  process,
		Manager:  manager,
	})
	if err != nil {
		return err
	}

	req := orchestrator.Request{
		OrgName:    a.v.GetString("org"),
		Background: a.v.GetString("background"),
		Documents:  docs,
	}
	if a.v.IsSet("budget") {
		budget := a.v.GetInt64("budget")
		req.TotalBudget = &budget
	}

	var out *report.FinalOutput
	var runErr error
	if useTUI {
		out, runErr = runWithTUI(ctx, runner, req, bus)
	} else {
		out, runErr = runWithProgress(ctx, runner, req, bus, cmd.ErrOrStderr())
	}

	// Kill all tracked subprocesses if the run was interrupted
	if ctx.Err() != nil {
		if err := pm.KillAll(); err != nil {
			log.Warn().Err(err).Msg("killing subprocesses")
		}
	}

	if out == nil {
		return runErr
	}

	if metrics != nil {
		if err := metrics.WriteTextfile(a.v.GetString("metrics-file")); err != nil {
			log.Warn().Err(err).Msg("writing metrics textfile")
		}
	}
	if path := a.v.GetString("archive"); path != "" {
		if err := archiveRun(context.WithoutCancel(ctx), path, out); err != nil {
			log.Warn().Err(err).Str("archive", path).Msg("archiving run")
		}
	}

	if err := writeOutput(cmd.OutOrStdout(), a.v.GetString("out"), out, format); err != nil {
		return err
	}
	printSummary(cmd.ErrOrStderr(), out)
	return runErr
}

// runWithProgress runs the pipeline while printing task progress lines.
func runWithProgress(ctx context.Context, runner *orchestrator.Runner, req orchestrator.Request,
	bus *events.Bus, w io.Writer) (*report.FinalOutput, error) {

	sub := bus.SubscribeAll(0)
	done := make(chan struct{})
	go func() {
		defer close(done)
		printProgress(w, sub)
	}()

	out, err := runner.RunPipeline(ctx, req)
	bus.Close()
	<-done
	return out, err
}

// runWithTUI runs the pipeline and the terminal UI together. Quitting the
// UI cancels a run that is still in progress.
func runWithTUI(ctx context.Context, runner *orchestrator.Runner, req orchestrator.Request,
	bus *events.Bus) (*report.FinalOutput, error) {

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	p := tea.NewProgram(tui.New(bus), tea.WithAltScreen(), tea.WithContext(ctx))

	var (
		out    *report.FinalOutput
		runErr error
	)
	var g errgroup.Group
	g.Go(func() error {
		defer cancel()
		_, err := p.Run()
		if errors.Is(err, tea.ErrProgramKilled) {
			// Signal or cancellation, reported through the run itself
			return nil
		}
		return err
	})
	g.Go(func() error {
		out, runErr = runner.RunPipeline(ctx, req)
		bus.Close()
		return nil
	})

	if err := g.Wait(); err != nil {
		return out, fmt.Errorf("terminal UI: %w", err)
	}
	return out, runErr
}

// logDestination picks where logs go. The TUI owns the terminal, so its
// logs go to the configured file or nowhere.
func logDestination(cfg config.LogConfig, useTUI bool, stderr io.Writer) (io.Writer, func(), error) {
	if !useTUI {
		return stderr, func() {}, nil
	}
	if cfg.File == "" {
		return io.Discard, func() {}, nil
	}
	f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, nil, fmt.Errorf("opening log file: %w", err)
	}
	return f, func() { f.Close() }, nil
}

func archiveRun(ctx context.Context, path string, out *report.FinalOutput) error {
	store, err := persistence.NewSQLiteStore(ctx, path)
	if err != nil {
		return err
	}
	defer store.Close()
	return store.SaveRun(ctx, out)
}

func writeOutput(stdout io.Writer, path string, out *report.FinalOutput, format report.Format) error {
	if path == "" {
		return report.Write(stdout, out, format)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating output file: %w", err)
	}
	if err := report.Write(f, out, format); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// printProgress prints one line per task event until the subscription
// closes.
func printProgress(w io.Writer, sub <-chan events.Event) {
	started := color.New(color.FgCyan)
	retry := color.New(color.FgYellow)
	for e := range sub {
		switch e := e.(type) {
		case events.TaskStartedEvent:
			who := e.Role
			if e.ExecutedBy != "" && e.ExecutedBy != e.Role {
				who += " via " + e.ExecutedBy
			}
			started.Fprintf(w, "▶ %s", e.ID)
			fmt.Fprintf(w, " (%s)\n", who)
		case events.TaskAttemptEvent:
			if e.Err != nil {
				retry.Fprintf(w, "  attempt %d of %s: %s\n", e.Attempt, e.ID, e.Outcome)
			}
		case events.TaskCompletedEvent:
			fmt.Fprintf(w, "%s %s in %s\n", color.GreenString("✓"), e.ID, e.Duration.Round(time.Millisecond))
		case events.TaskFailedEvent:
			fmt.Fprintf(w, "%s %s failed (%s) after %d attempt(s): %v\n", color.RedString("✗"), e.ID, e.Kind, e.Attempts, e.Err)
		}
	}
}

func printSummary(w io.Writer, out *report.FinalOutput) {
	var status string
	switch out.Status {
	case scheduler.RunSucceeded.String():
		status = color.GreenString(out.Status)
	case scheduler.RunPartiallyFailed.String():
		status = color.YellowString(out.Status)
	default:
		status = color.RedString(out.Status)
	}
	fmt.Fprintf(w, "\nRun %s %s", out.RunID, status)
	if out.Reason != "" {
		fmt.Fprintf(w, ": %s", out.Reason)
	}
	fmt.Fprintln(w)
}
