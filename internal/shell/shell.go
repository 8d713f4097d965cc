// Package shell adapts shell commands into scheduler tasks. Its Result is
// the rc-bearing object the scheduler's return-code classification
// unwraps at the boundary.
package shell

import (
	"bytes"
	"context"
	"errors"
	"os/exec"

	"github.com/maxkimambo/taskman/internal/taskmanager"
)

// Result is the outcome of a shell command.
type Result struct {
	Command  string
	ExitCode int
	Stdout   string
	Stderr   string
	TimedOut bool
	Aborted  bool
}

// RC maps the command outcome into the scheduler's return-code set: a
// deadline maps to timeout, cancellation to aborted, exit status zero to
// okay, anything else to failure.
func (r *Result) RC() taskmanager.RC {
	switch {
	case r.TimedOut:
		return taskmanager.RCTimeout
	case r.Aborted:
		return taskmanager.RCAborted
	case r.ExitCode == 0:
		return taskmanager.RCOkay
	default:
		return taskmanager.RCFailure
	}
}

// Run executes command through the shell, honoring ctx cancellation. A
// command that starts but exits non-zero is not an error; the Result
// carries the classification. An error is returned only when the command
// could not be run at all.
func Run(ctx context.Context, command string) (*Result, error) {
	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	res := &Result{
		Command: command,
		Stdout:  stdout.String(),
		Stderr:  stderr.String(),
	}

	switch ctx.Err() {
	case context.DeadlineExceeded:
		res.TimedOut = true
		res.ExitCode = -1
		return res, nil
	case context.Canceled:
		res.Aborted = true
		res.ExitCode = -1
		return res, nil
	}

	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return nil, err
		}
		res.ExitCode = exitErr.ExitCode()
	}
	return res, nil
}

// CommandTask builds a scheduler task that runs a shell command. Killing
// the task cancels the command's context, which terminates the process.
func CommandTask(name, command string, opts ...taskmanager.TaskOption) *taskmanager.Task {
	return taskmanager.NewTask(name, func(ctx context.Context, shared *taskmanager.SharedContext) (interface{}, error) {
		res, err := Run(ctx, command)
		if err != nil {
			return nil, err
		}
		if shared != nil {
			shared.Set(name, res)
		}
		return res, nil
	}, opts...)
}
