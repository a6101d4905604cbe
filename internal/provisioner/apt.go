// Copyright 2012-2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package provisioner

import (
	"context"

	"github.com/juju/errors"
	"github.com/juju/retry"

	"github.com/juju/django-charm/internal/shell"
)

// CorePackages are installed on every Django unit.
var CorePackages = []string{
	"python3-django",
	"python3-pil",
	"python3-docutils",
	"python3-psycopg2",
	"python3-pip",
	"python3-tz",
	"mercurial",
	"git",
	"subversion",
	"bzr",
	"postgresql-client",
}

// This is the default apt-get command used in cloud-init, the various settings
// mean that apt won't actually block waiting for a prompt from the user.
var aptGetCommand = []string{
	"apt-get", "--option=Dpkg::Options::=--force-confold",
	"--option=Dpkg::options::=--force-unsafe-io", "--assume-yes", "--quiet",
}

// aptGetEnvOptions are options we need to pass to apt-get to not have it
// prompt the user.
var aptGetEnvOptions = []string{"DEBIAN_FRONTEND=noninteractive"}

// AptGetCommand returns the command running "apt-get <args>"
// non-interactively.
func AptGetCommand(args ...string) shell.Command {
	cmdArgs := append([]string(nil), aptGetCommand...)
	cmdArgs = append(cmdArgs, args...)
	return shell.Command{
		Args: cmdArgs,
		Env:  append([]string(nil), aptGetEnvOptions...),
	}
}

// AptInstall runs 'apt-get install packages' for the packages listed here.
func (p *Provisioner) AptInstall(ctx context.Context, packages ...string) error {
	if len(packages) == 0 {
		return nil
	}
	logger.Infof("installing %v", packages)
	_, err := shell.Run(ctx, p.config.Runner, AptGetCommand(append([]string{"install"}, packages...)...))
	return errors.Trace(err)
}

// InstallCorePackages installs CorePackages. The package index may be
// locked by another process at this point, so failures are retried at a
// fixed interval. The last failure is returned once the attempts run out.
func (p *Provisioner) InstallCorePackages(ctx context.Context) error {
	err := retry.Call(retry.CallArgs{
		Func: func() error {
			return p.AptInstall(ctx, CorePackages...)
		},
		IsFatalError: func(err error) bool {
			return ctx.Err() != nil
		},
		NotifyFunc: func(err error, attempt int) {
			logger.Warningf("installing core packages failed (attempt %d of %d): %v",
				attempt, p.config.RetryAttempts, err)
		},
		Attempts: p.config.RetryAttempts,
		Delay:    p.config.RetryDelay,
		Clock:    p.config.Clock,
		Stop:     ctx.Done(),
	})
	if err != nil {
		return errors.Annotate(retry.LastError(err), "installing core packages")
	}
	return nil
}
