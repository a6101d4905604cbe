// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package shell runs external commands on behalf of the charm hooks and the
// remote task runner. A command is always an argument list; nothing is ever
// handed to "sh -c" for interpretation.
package shell

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"

	"github.com/juju/errors"
	"github.com/juju/loggo"
	"github.com/kballard/go-shellquote"
)

var logger = loggo.GetLogger("django.shell")

// Command describes a single process invocation.
type Command struct {
	// Args holds the program name followed by its arguments.
	Args []string

	// Dir is the working directory. Empty means the caller's.
	Dir string

	// Env holds extra KEY=VALUE pairs added to the inherited environment.
	Env []string

	// Stdin, if not nil, is fed to the process.
	Stdin []byte
}

// String returns the command line quoted as a POSIX shell would need it.
// It is only used for logging and for remote execution over ssh.
func (c Command) String() string {
	return shellquote.Join(c.Args...)
}

// Result holds the outcome of a command that ran to completion.
type Result struct {
	Stdout []byte
	Stderr []byte
	Code   int
}

// Output returns stdout followed by stderr.
func (r *Result) Output() []byte {
	out := append([]byte(nil), r.Stdout...)
	return append(out, r.Stderr...)
}

// Runner runs commands.
type Runner interface {
	// Run runs the command to completion. A non-zero exit status is
	// reported through Result.Code; the error is reserved for commands
	// that could not be run at all.
	Run(ctx context.Context, command Command) (*Result, error)
}

// NewRunner returns a Runner that executes commands on the local host.
func NewRunner() Runner {
	return execRunner{}
}

type execRunner struct{}

// Run implements Runner.
func (execRunner) Run(ctx context.Context, command Command) (*Result, error) {
	if len(command.Args) == 0 {
		return nil, errors.NotValidf("empty command")
	}
	cmd := exec.CommandContext(ctx, command.Args[0], command.Args[1:]...)
	cmd.Dir = command.Dir
	if len(command.Env) > 0 {
		cmd.Env = append(os.Environ(), command.Env...)
	}
	if command.Stdin != nil {
		cmd.Stdin = bytes.NewReader(command.Stdin)
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	result := &Result{
		Stdout: stdout.Bytes(),
		Stderr: stderr.Bytes(),
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		result.Code = exitErr.ExitCode()
		return result, nil
	} else if err != nil {
		return nil, errors.Annotatef(err, "running %s", command)
	}
	return result, nil
}

// ExitError is returned when a command exits with a non-zero status.
type ExitError struct {
	Args   []string
	Code   int
	Output []byte
}

// Error implements error.
func (e *ExitError) Error() string {
	return fmt.Sprintf("%s: exit status %d", shellquote.Join(e.Args...), e.Code)
}

// ExitCode returns the exit status carried by err, if any error in its
// chain is an *ExitError.
func ExitCode(err error) (int, bool) {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code, true
	}
	return 0, false
}

// Run logs the command, runs it and returns the result. A non-zero exit
// status is logged together with the command's output and returned as an
// *ExitError; callers are expected to give up on the hook when they see it.
func Run(ctx context.Context, runner Runner, command Command) (*Result, error) {
	logger.Debugf("running %s", command)
	result, err := runner.Run(ctx, command)
	if err != nil {
		return nil, errors.Trace(err)
	}
	if result.Code != 0 {
		output := result.Output()
		logger.Errorf("status=%d, output=%s", result.Code, output)
		return result, &ExitError{
			Args:   command.Args,
			Code:   result.Code,
			Output: output,
		}
	}
	return result, nil
}

// RunAllowFail is Run for commands whose failure must not stop the hook.
// A non-zero exit status is logged as a warning and only reported through
// the result.
func RunAllowFail(ctx context.Context, runner Runner, command Command) (*Result, error) {
	logger.Debugf("running %s", command)
	result, err := runner.Run(ctx, command)
	if err != nil {
		return nil, errors.Trace(err)
	}
	if result.Code != 0 {
		logger.Warningf("%s exited with status %d (ignored), output=%s", command, result.Code, result.Output())
	}
	return result, nil
}

// Output runs the command built from args and returns its stdout.
func Output(ctx context.Context, runner Runner, args ...string) ([]byte, error) {
	result, err := Run(ctx, runner, Command{Args: args})
	if err != nil {
		return nil, errors.Trace(err)
	}
	return result.Stdout, nil
}
