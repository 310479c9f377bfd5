package backend

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"sync"
	"syscall"
	"time"
)

const (
	// pipeGrace bounds how long Wait keeps draining output after the model
	// CLI exits or is cancelled, in case a grandchild still holds the pipes.
	pipeGrace = 2 * time.Second

	stderrTail = 512
)

// processResult is what one model CLI invocation produced.
type processResult struct {
	Stdout  []byte
	Stderr  []byte
	Elapsed time.Duration
}

// groupCommand prepares a model CLI invocation in its own process group.
// Cancelling ctx kills the whole group, not just the leader, so helper
// processes spawned by the CLI do not outlive the call.
func groupCommand(ctx context.Context, name string, args ...string) *exec.Cmd {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error { return killGroup(cmd) }
	cmd.WaitDelay = pipeGrace
	return cmd
}

// runProcess runs cmd to completion and collects its output. A non-nil
// ProcessManager tracks the process while it runs. Output is collected
// even when the command fails.
func runProcess(ctx context.Context, cmd *exec.Cmd, pm *ProcessManager) (processResult, error) {
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return processResult{}, fmt.Errorf("starting %s: %w", cmd.Path, err)
	}
	if pm != nil {
		pm.Track(cmd)
		defer pm.Untrack(cmd)
	}

	waitErr := cmd.Wait()
	res := processResult{Stdout: stdout.Bytes(), Stderr: stderr.Bytes(), Elapsed: time.Since(start)}

	switch {
	case waitErr == nil:
		return res, nil
	case ctx.Err() != nil:
		return res, fmt.Errorf("%s interrupted after %s: %w", cmd.Path, res.Elapsed.Round(time.Millisecond), ctx.Err())
	case len(res.Stderr) > 0:
		return res, fmt.Errorf("%s failed: %w (stderr: %s)", cmd.Path, waitErr, tail(res.Stderr, stderrTail))
	default:
		return res, fmt.Errorf("%s failed: %w", cmd.Path, waitErr)
	}
}

func tail(b []byte, n int) string {
	b = bytes.TrimSpace(b)
	if len(b) <= n {
		return string(b)
	}
	return "..." + string(b[len(b)-n:])
}

// killGroup sends SIGKILL to cmd's process group. A group that already
// exited is not an error.
func killGroup(cmd *exec.Cmd) error {
	if cmd.Process == nil {
		return errors.New("process not started")
	}
	err := syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	if errors.Is(err, syscall.ESRCH) {
		return nil
	}
	return err
}

// ProcessManager tracks the model CLI processes of a run so shutdown can
// kill them all. The CLI calls KillAll once its signal context is done.
type ProcessManager struct {
	mu    sync.Mutex
	procs map[int]*exec.Cmd
}

func NewProcessManager() *ProcessManager {
	return &ProcessManager{procs: make(map[int]*exec.Cmd)}
}

// Track registers a started process. Unstarted commands are ignored.
func (pm *ProcessManager) Track(cmd *exec.Cmd) {
	if cmd.Process == nil {
		return
	}
	pm.mu.Lock()
	pm.procs[cmd.Process.Pid] = cmd
	pm.mu.Unlock()
}

func (pm *ProcessManager) Untrack(cmd *exec.Cmd) {
	if cmd.Process == nil {
		return
	}
	pm.mu.Lock()
	delete(pm.procs, cmd.Process.Pid)
	pm.mu.Unlock()
}

// KillAll kills the process group of every tracked process.
func (pm *ProcessManager) KillAll() error {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	var errs []error
	for pid, cmd := range pm.procs {
		if err := killGroup(cmd); err != nil {
			errs = append(errs, fmt.Errorf("killing process group %d: %w", pid, err))
		}
	}
	return errors.Join(errs...)
}

// Count returns the number of tracked processes.
func (pm *ProcessManager) Count() int {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	return len(pm.procs)
}
