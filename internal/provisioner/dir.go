// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package provisioner

import (
	"os"

	"github.com/juju/errors"

	"github.com/juju/django-charm/internal/ownership"
)

// EnsureDirectory creates path if needed and gives it the ownership and
// mode in perm. The owner and group are resolved before anything is
// created.
func (p *Provisioner) EnsureDirectory(path string, perm ownership.Perm) error {
	uid, gid, err := p.config.Owners.Resolve(perm.Owner, perm.Group)
	if err != nil {
		return errors.Annotatef(err, "creating %s", path)
	}
	if err := os.MkdirAll(path, perm.Mode); err != nil {
		return errors.Trace(err)
	}
	if err := os.Chown(path, uid, gid); err != nil {
		return errors.Trace(err)
	}
	return errors.Trace(os.Chmod(path, perm.Mode))
}
