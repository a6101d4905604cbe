// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package commands

import (
	"github.com/juju/cmd/v3"
	"github.com/juju/errors"

	"github.com/juju/django-charm/internal/fabric"
)

const unlimited = -1

func newTaskCommand(rt Runtime, info cmd.Info, minArgs, maxArgs int, needsConfig bool, build taskBuilder) *taskCommand {
	return &taskCommand{
		hostCommand: hostCommand{rt: rt},
		info:        info,
		minArgs:     minArgs,
		maxArgs:     maxArgs,
		needsConfig: needsConfig,
		build:       build,
	}
}

func taskCommands(rt Runtime) []cmd.Command {
	return []cmd.Command{
		newTaskCommand(rt, cmd.Info{
			Name:    "apt-install",
			Args:    "<package> ...",
			Purpose: "install distro packages",
		}, 1, unlimited, false, func(_ *cmd.Context, _ *fabric.RoleConfig, args []string) (fabric.Task, error) {
			return fabric.AptInstall(args...), nil
		}),
		newTaskCommand(rt, cmd.Info{
			Name:    "apt-update",
			Purpose: "refresh the package index",
		}, 0, 0, false, func(*cmd.Context, *fabric.RoleConfig, []string) (fabric.Task, error) {
			return fabric.AptUpdate(), nil
		}),
		newTaskCommand(rt, cmd.Info{
			Name:    "apt-dist-upgrade",
			Purpose: "upgrade every installed package",
		}, 0, 0, false, func(*cmd.Context, *fabric.RoleConfig, []string) (fabric.Task, error) {
			return fabric.AptDistUpgrade(), nil
		}),
		newTaskCommand(rt, cmd.Info{
			Name:    "apt-install-r",
			Args:    "<file> ...",
			Purpose: "install the distro packages listed in project files",
			Doc: `
Each file is read from the project directory. Packages are separated by
white space; anything after a # is ignored.
`,
		}, 1, unlimited, true, func(_ *cmd.Context, rc *fabric.RoleConfig, args []string) (fabric.Task, error) {
			return fabric.AptInstallRequirements(rc, args...), nil
		}),
		newTaskCommand(rt, cmd.Info{
			Name:    "pip-install",
			Args:    "<package> ...",
			Purpose: "install pip packages",
		}, 1, unlimited, false, func(_ *cmd.Context, _ *fabric.RoleConfig, args []string) (fabric.Task, error) {
			return fabric.PipInstall(args...), nil
		}),
		newTaskCommand(rt, cmd.Info{
			Name:    "pip-install-r",
			Purpose: "install the configured pip requirement files",
		}, 0, 0, true, func(_ *cmd.Context, rc *fabric.RoleConfig, _ []string) (fabric.Task, error) {
			return fabric.PipInstallRequirements(rc), nil
		}),
		newTaskCommand(rt, cmd.Info{
			Name:    "adduser",
			Args:    "<username>",
			Purpose: "add a user without a password",
		}, 1, 1, false, func(_ *cmd.Context, _ *fabric.RoleConfig, args []string) (fabric.Task, error) {
			return fabric.AddUser(args[0]), nil
		}),
		newTaskCommand(rt, cmd.Info{
			Name:    "ssh-add-key",
			Args:    "<public key file> [<username>]",
			Purpose: "authorize a public key",
			Doc: `
The key is added to the authorized keys of username, or of the login
user when no username is given. Use - to read the key from stdin.
`,
		}, 1, 2, false, readKeyTask),
		newTaskCommand(rt, cmd.Info{
			Name:    "pull",
			Purpose: "update the project source and reload the wsgi server",
		}, 0, 0, true, func(_ *cmd.Context, rc *fabric.RoleConfig, _ []string) (fabric.Task, error) {
			return fabric.Pull(rc), nil
		}),
		newTaskCommand(rt, cmd.Info{
			Name:    "reload",
			Purpose: "reload the wsgi server",
		}, 0, 0, false, func(*cmd.Context, *fabric.RoleConfig, []string) (fabric.Task, error) {
			return fabric.Reload(), nil
		}),
		newTaskCommand(rt, cmd.Info{
			Name:    "manage",
			Args:    "<command> [<arg> ...]",
			Purpose: "run a django-admin command",
		}, 1, unlimited, true, func(_ *cmd.Context, rc *fabric.RoleConfig, args []string) (fabric.Task, error) {
			return fabric.Manage(rc, args...), nil
		}),
		newTaskCommand(rt, cmd.Info{
			Name:    "migrate",
			Args:    "[<arg> ...]",
			Purpose: "run django-admin migrate",
		}, 0, unlimited, true, func(_ *cmd.Context, rc *fabric.RoleConfig, args []string) (fabric.Task, error) {
			return fabric.Migrate(rc, args...), nil
		}),
		newTaskCommand(rt, cmd.Info{
			Name:    "syncdb",
			Args:    "[<arg> ...]",
			Purpose: "run django-admin syncdb",
		}, 0, unlimited, true, func(_ *cmd.Context, rc *fabric.RoleConfig, args []string) (fabric.Task, error) {
			return fabric.SyncDB(rc, args...), nil
		}),
		newTaskCommand(rt, cmd.Info{
			Name:    "collectstatic",
			Args:    "[<arg> ...]",
			Purpose: "run django-admin collectstatic",
		}, 0, unlimited, true, func(_ *cmd.Context, rc *fabric.RoleConfig, args []string) (fabric.Task, error) {
			return fabric.CollectStatic(rc, args...), nil
		}),
		newTaskCommand(rt, cmd.Info{
			Name:    "delete-pyc",
			Purpose: "delete compiled python files from the project",
		}, 0, 0, true, func(_ *cmd.Context, rc *fabric.RoleConfig, _ []string) (fabric.Task, error) {
			return fabric.DeletePyc(rc), nil
		}),
	}
}

func readKeyTask(ctx *cmd.Context, _ *fabric.RoleConfig, args []string) (fabric.Task, error) {
	keyFile := cmd.FileVar{}
	keyFile.SetStdin()
	if err := keyFile.Set(args[0]); err != nil {
		return nil, errors.Trace(err)
	}
	key, err := keyFile.Read(ctx)
	if err != nil {
		return nil, errors.Annotate(err, "reading public key")
	}
	var username string
	if len(args) > 1 {
		username = args[1]
	}
	return fabric.SSHAddKey(string(key), username), nil
}
