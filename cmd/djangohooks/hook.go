// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/juju/clock"
	"github.com/juju/cmd/v3"
	"github.com/juju/errors"
	"github.com/juju/gnuflag"
	"github.com/juju/loggo"

	"github.com/juju/django-charm/charm"
	"github.com/juju/django-charm/hookenv"
	"github.com/juju/django-charm/internal/config"
	"github.com/juju/django-charm/internal/hooks"
	"github.com/juju/django-charm/internal/ownership"
	"github.com/juju/django-charm/internal/provisioner"
	"github.com/juju/django-charm/internal/shell"
	"github.com/juju/django-charm/internal/templates"
	"github.com/juju/django-charm/internal/unitstate"
)

// binaryName is the name the hook binary is installed under. Hooks are
// symlinks to it, named after the hook they implement.
const binaryName = "djangohooks"

// hookLoggingConfig is applied when running inside a hook context. Every
// command is logged at DEBUG before it runs; juju-log and the model's
// logging-config decide what is kept.
const hookLoggingConfig = "<root>=DEBUG"

const hookDoc = `
djangohooks runs one hook of the django charm. The hook is named by the
name the binary was invoked under, so that hooks/<hook> may be a symlink
to it, or by its first argument when invoked as djangohooks.

The hook reads the charm configuration and relation data through the
hook tools, so it must run in a hook context.

With --build-charm the binary instead lays out a deployable charm in the
given directory: metadata.yaml, config.yaml, templates/, a copy of itself
at hooks/djangohooks and one hooks/<hook> symlink per hook.
`

type hookDeps struct {
	runner shell.Runner
	owners ownership.Resolver
	clock  clock.Clock
	getenv func(string) string

	// executable returns the path of the running binary.
	executable func() (string, error)
}

type hookCommand struct {
	cmd.CommandBase
	hookDeps

	hookName  string
	fixedName bool
	listHooks bool
	buildDir  string
}

func newHookCommand(deps hookDeps) *hookCommand {
	return &hookCommand{hookDeps: deps}
}

// invokedAs records the name the binary was run under. Any name other
// than the binary's own is taken to be the hook name.
func (c *hookCommand) invokedAs(name string) {
	if name == binaryName {
		return
	}
	c.hookName = name
	c.fixedName = true
}

// Info implements cmd.Command.
func (c *hookCommand) Info() *cmd.Info {
	return &cmd.Info{
		Name:    binaryName,
		Args:    "<hook>",
		Purpose: "run a django charm hook",
		Doc:     hookDoc,
	}
}

// SetFlags implements cmd.Command.
func (c *hookCommand) SetFlags(f *gnuflag.FlagSet) {
	c.CommandBase.SetFlags(f)
	f.BoolVar(&c.listHooks, "list-hooks", false, "list the hooks the charm implements")
	f.StringVar(&c.buildDir, "build-charm", "", "lay out a deployable charm in this directory")
}

// Init implements cmd.Command.
func (c *hookCommand) Init(args []string) error {
	if c.listHooks && c.buildDir != "" {
		return errors.New("--list-hooks and --build-charm are mutually exclusive")
	}
	if c.listHooks || c.buildDir != "" || c.fixedName {
		return cmd.CheckEmpty(args)
	}
	if len(args) == 0 {
		return errors.New("no hook specified")
	}
	c.hookName, args = args[0], args[1:]
	return cmd.CheckEmpty(args)
}

// Run implements cmd.Command.
func (c *hookCommand) Run(ctx *cmd.Context) error {
	if c.listHooks {
		meta, err := charm.Metadata()
		if err != nil {
			return errors.Trace(err)
		}
		for _, name := range hooks.HookNames(meta) {
			fmt.Fprintln(ctx.Stdout, name)
		}
		return nil
	}
	if c.buildDir != "" {
		executable, err := c.executable()
		if err != nil {
			return errors.Trace(err)
		}
		names, err := buildCharm(c.buildDir, executable)
		if err != nil {
			return errors.Trace(err)
		}
		ctx.Infof("charm written to %s with %d hooks", c.buildDir, len(names))
		return nil
	}

	event, err := hooks.ParseEvent(c.hookName)
	if errors.Is(err, hooks.ErrUnknownHook) {
		fmt.Fprintf(ctx.Stderr, "Unknown hook %s\n", c.hookName)
		return cmd.ErrSilent
	} else if err != nil {
		return errors.Trace(err)
	}

	hookCtx := hookenv.ContextFromEnv(c.getenv)
	if err := hookCtx.Validate(); err != nil {
		return errors.Annotate(err, "reading hook context")
	}
	if hookCtx.InHook() {
		if _, err := loggo.ReplaceDefaultWriter(hookenv.NewJujuLogWriter(c.runner)); err != nil {
			return errors.Trace(err)
		}
		if err := loggo.ConfigureLoggers(hookLoggingConfig); err != nil {
			return errors.Trace(err)
		}
	}

	stdCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err = c.runHook(stdCtx, hookCtx, event)
	if code, ok := shell.ExitCode(err); ok {
		logger.Errorf("%s hook failed: %v", event, err)
		return cmd.NewRcPassthroughError(code)
	}
	return errors.Trace(err)
}

func (c *hookCommand) runHook(ctx context.Context, hookCtx hookenv.Context, event hooks.Event) error {
	env := hookenv.NewEnv(hookCtx, c.runner)
	settings, err := env.ConfigGet(ctx)
	if errors.Is(err, errors.NotFound) {
		logger.Infof("no charm configuration available, nothing to do for %s", event)
		return nil
	} else if err != nil {
		return errors.Trace(err)
	}

	schema, err := charm.Options()
	if err != nil {
		return errors.Trace(err)
	}
	unit, err := config.Resolve(schema, settings, hookCtx.UnitName, hookCtx.CharmDir)
	if err != nil {
		return errors.Trace(err)
	}
	installer := &templates.Installer{
		Renderer: templates.NewRenderer(filepath.Join(hookCtx.CharmDir, "templates"), charm.Templates()),
		Owners:   c.owners,
	}
	p, err := provisioner.New(provisioner.Config{
		Runner:    c.runner,
		Owners:    c.owners,
		Templates: installer,
		Clock:     c.clock,
		HomeDir:   c.getenv("HOME"),
	})
	if err != nil {
		return errors.Trace(err)
	}
	r, err := hooks.NewReconciler(hooks.Config{
		Unit:        unit,
		Env:         env,
		Provisioner: p,
		Installer:   installer,
		Runner:      c.runner,
		Clock:       c.clock,
		StatePath:   unitstate.Path(hookCtx.CharmDir),
	})
	if err != nil {
		return errors.Trace(err)
	}
	return errors.Trace(r.Handle(ctx, event))
}
