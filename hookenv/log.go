// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package hookenv

import (
	"context"
	"fmt"
	"os"

	"github.com/juju/loggo"

	"github.com/juju/django-charm/internal/shell"
)

// Log sends a message to the unit log through juju-log.
func (e *Env) Log(ctx context.Context, level loggo.Level, message string) error {
	return jujuLog(ctx, e.runner, level, message)
}

func jujuLog(ctx context.Context, runner shell.Runner, level loggo.Level, message string) error {
	// The runner is used directly: shell.Run logs, and the log ends up here.
	result, err := runner.Run(ctx, shell.Command{
		Args: []string{"juju-log", "-l", level.String(), message},
	})
	if err != nil {
		return err
	}
	if result.Code != 0 {
		return &shell.ExitError{Args: []string{"juju-log"}, Code: result.Code, Output: result.Output()}
	}
	return nil
}

// JujuLogWriter is a loggo.Writer that forwards log entries to the unit
// log. Entries that cannot be delivered are written to stderr.
type JujuLogWriter struct {
	runner shell.Runner
}

// NewJujuLogWriter returns a writer delivering entries through runner.
func NewJujuLogWriter(runner shell.Runner) *JujuLogWriter {
	return &JujuLogWriter{runner: runner}
}

// Write implements loggo.Writer.
func (w *JujuLogWriter) Write(entry loggo.Entry) {
	message := fmt.Sprintf("%s %s", entry.Module, entry.Message)
	if err := jujuLog(context.Background(), w.runner, entry.Level, message); err != nil {
		fmt.Fprintf(os.Stderr, "%s %s: %s (juju-log: %v)\n", entry.Level, entry.Module, entry.Message, err)
	}
}
