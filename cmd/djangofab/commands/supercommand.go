// Copyright 2013-2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package commands implements djangofab, which runs maintenance tasks
// over ssh against the units of a deployed Django application.
package commands

import (
	"fmt"
	"os"
	"runtime"

	"github.com/juju/cmd/v3"
	"github.com/juju/loggo"

	"github.com/juju/django-charm/internal/fabric"
	"github.com/juju/django-charm/internal/shell"
)

const (
	// StartupLoggingConfigEnvKey configures logging before the command
	// line is parsed.
	StartupLoggingConfigEnvKey = "DJANGOFAB_STARTUP_LOGGING_CONFIG"

	// LoggingConfigEnvKey holds the default logging configuration.
	LoggingConfigEnvKey = "DJANGOFAB_LOGGING_CONFIG"
)

func init() {
	// If the environment key is empty, ConfigureLoggers returns nil and does
	// nothing.
	err := loggo.ConfigureLoggers(os.Getenv(StartupLoggingConfigEnvKey))
	if err != nil {
		fmt.Fprintf(os.Stderr, "ERROR parsing %s: %s\n\n", StartupLoggingConfigEnvKey, err)
	}
}

var logger = loggo.GetLogger("django.cmd.djangofab")

const superDoc = `
djangofab runs maintenance tasks against the units of a Django
application deployed with the django charm.

Roles are read from "juju status": every application is a role made of
the public addresses of its units, and every unit is a role of its own.
Tasks that need the project layout read it from "juju config".
`

// Runtime holds what the commands use to reach the model and its hosts.
type Runtime struct {
	// Local runs the juju client.
	Local shell.Runner

	// Dialer returns the function connecting to hosts.
	Dialer func(fabric.DialConfig) fabric.DialFunc
}

// DefaultRuntime runs juju locally and connects to hosts over ssh.
func DefaultRuntime() Runtime {
	return Runtime{
		Local:  shell.NewRunner(),
		Dialer: fabric.SSHDialer,
	}
}

// NewSuperCommand returns the djangofab super command with every task
// registered.
func NewSuperCommand(rt Runtime) *cmd.SuperCommand {
	super := cmd.NewSuperCommand(cmd.SuperCommandParams{
		Name:    "djangofab",
		Doc:     superDoc,
		Purpose: "run maintenance tasks against django units",
		Log: &cmd.Log{
			DefaultConfig: os.Getenv(LoggingConfigEnvKey),
		},
		NotifyRun: runNotifier,
	})
	super.Register(newRolesCommand(rt))
	for _, c := range taskCommands(rt) {
		super.Register(c)
	}
	return super
}

func runNotifier(name string) {
	logger.Infof("running %s [%s %s]", name, runtime.Compiler, runtime.Version())
}
