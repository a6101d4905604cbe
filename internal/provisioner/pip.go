// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package provisioner

import (
	"context"
	"path/filepath"

	"github.com/juju/errors"

	"github.com/juju/django-charm/internal/shell"
)

// PipInstall installs each package with its own pip run, so that one
// bad name does not hide which package failed.
func (p *Provisioner) PipInstall(ctx context.Context, packages ...string) error {
	for _, pkg := range packages {
		if _, err := shell.Run(ctx, p.config.Runner, shell.Command{
			Args: []string{"pip3", "install", pkg},
		}); err != nil {
			return errors.Annotatef(err, "installing pip package %q", pkg)
		}
	}
	return nil
}

// PipInstallRequirements installs a requirements file. pip runs in the
// file's directory so relative entries resolve.
func (p *Provisioner) PipInstallRequirements(ctx context.Context, path string) error {
	_, err := shell.Run(ctx, p.config.Runner, shell.Command{
		Args: []string{"pip3", "install", "-r", path},
		Dir:  filepath.Dir(path),
	})
	return errors.Annotatef(err, "installing requirements from %s", path)
}
