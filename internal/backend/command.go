package backend

import (
	"context"
	"fmt"
	"os"
	"regexp"
	"strings"
)

const promptPlaceholder = "{prompt}"

var rateLimitText = regexp.MustCompile(`(?i)rate[ _-]?limit|too many requests|\b429\b|overloaded`)

// CommandAdapter runs a local model CLI once per call. The prompt replaces
// any "{prompt}" argument, or is written to stdin when there is none. The
// answer is read from stdout.
type CommandAdapter struct {
	name    string
	command string
	args    []string
	model   string
	workDir string
	procMgr *ProcessManager
}

// NewCommandAdapter creates a new command backend adapter.
// The ProcessManager is optional - if nil, subprocesses won't be tracked.
func NewCommandAdapter(cfg Config, procMgr *ProcessManager) (*CommandAdapter, error) {
	if cfg.Command == "" {
		return nil, fmt.Errorf("provider %s: command backend requires a command", cfg.Name)
	}

	workDir := cfg.WorkDir
	if workDir == "" {
		var err error
		workDir, err = os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get working directory: %w", err)
		}
	}

	return &CommandAdapter{
		name:    cfg.Name,
		command: cfg.Command,
		args:    cfg.Args,
		model:   cfg.Model,
		workDir: workDir,
		procMgr: procMgr,
	}, nil
}

func (a *CommandAdapter) Name() string { return a.name }

// Close is a no-op (subprocess-per-invocation model).
func (a *CommandAdapter) Close() error { return nil }

// Send executes the CLI with the grounded prompt.
func (a *CommandAdapter) Send(ctx context.Context, req Request) (Response, error) {
	user, err := groundedInstructions(ctx, req)
	if err != nil {
		return Response{}, &CallError{Provider: a.name, Kind: KindOther, Err: err}
	}
	prompt := fullPrompt(systemPrompt(req), user)

	args, viaStdin := a.buildArgs(prompt)
	cmd := groupCommand(ctx, a.command, args...)
	cmd.Dir = a.workDir
	if viaStdin {
		cmd.Stdin = strings.NewReader(prompt)
	}

	res, err := runProcess(ctx, cmd, a.procMgr)
	if err != nil {
		return Response{}, a.classify(err, res.Stderr)
	}

	content := strings.TrimSpace(string(res.Stdout))
	if content == "" {
		return Response{}, &CallError{
			Provider: a.name,
			Kind:     KindServer,
			Err:      fmt.Errorf("%s produced no output (stderr: %s)", a.command, tail(res.Stderr, stderrTail)),
		}
	}
	return Response{Content: content}, nil
}

// buildArgs substitutes the prompt into the configured arguments and adds
// the model flag. The second result reports whether the prompt must be
// written to stdin instead.
func (a *CommandAdapter) buildArgs(prompt string) ([]string, bool) {
	args := make([]string, 0, len(a.args)+2)
	viaStdin := true
	for _, arg := range a.args {
		if arg == promptPlaceholder {
			args = append(args, prompt)
			viaStdin = false
			continue
		}
		args = append(args, arg)
	}

	// Add optional model override
	if a.model != "" {
		args = append(args, "--model", a.model)
	}
	return args, viaStdin
}

func (a *CommandAdapter) classify(err error, stderr []byte) error {
	ce := wrapError(a.name, err, 0).(*CallError)
	if ce.Kind == KindTransport {
		ce.Kind = KindServer
		if rateLimitText.Match(stderr) {
			ce.Kind = KindRateLimited
		}
	}
	return ce
}
