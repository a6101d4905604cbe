// Copyright 2012-2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package main

import (
	"os"
	"runtime"

	"github.com/juju/cmd/v3"
	"github.com/juju/loggo"

	"github.com/juju/django-charm/cmd/djangofab/commands"
)

var logger = loggo.GetLogger("django.cmd.djangofab")

const (
	// exit_err is the value that is returned when the user has run
	// djangofab in an invalid way.
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
	return cmd.Main(commands.NewSuperCommand(commands.DefaultRuntime()), ctx, args[1:])
}
