// Copyright 2012-2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package main

import (
	"os"
	"path/filepath"
	"runtime"

	"github.com/juju/clock"
	"github.com/juju/cmd/v3"
	"github.com/juju/loggo"

	"github.com/juju/django-charm/internal/ownership"
	"github.com/juju/django-charm/internal/shell"
)

var logger = loggo.GetLogger("django.cmd.djangohooks")

const (
	// exit_err is the value that is returned when the hook binary is run
	// in an invalid way.
	exit_err = 2
	// exit_panic is returned after an unhandled panic.
	exit_panic = 3
)

func main() {
	os.Exit(Main(os.Args))
}

// Main runs the binary with args and returns the exit code.
func Main(args []string) int {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			buf = buf[:runtime.Stack(buf, false)]
			logger.Criticalf("unhandled panic: %v\n%s", r, buf)
			os.Exit(exit_panic)
		}
	}()

	ctx, err := cmd.DefaultContext()
	if err != nil {
		cmd.WriteError(os.Stderr, err)
		os.Exit(exit_err)
	}

	hook := newHookCommand(hookDeps{
		runner:     shell.NewRunner(),
		owners:     ownership.NewResolver(),
		clock:      clock.WallClock,
		getenv:     os.Getenv,
		executable: os.Executable,
	})
	hook.invokedAs(filepath.Base(args[0]))
	return cmd.Main(hook, ctx, args[1:])
}
