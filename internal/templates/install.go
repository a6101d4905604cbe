// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package templates

import (
	"os"
	"strings"

	"github.com/juju/errors"
	"github.com/juju/utils/v4"

	"github.com/juju/django-charm/internal/ownership"
)

// Banner precedes every block appended to an existing file.
const Banner = "# Added by the django charm"

// Installer writes rendered templates to disk.
type Installer struct {
	Renderer *Renderer
	Owners   ownership.Resolver
}

// InstallFile replaces dest with content, owned and moded as perm says.
// The owner and group must exist.
func (i *Installer) InstallFile(content, dest string, perm ownership.Perm) error {
	uid, gid, err := i.Owners.Resolve(perm.Owner, perm.Group)
	if err != nil {
		return errors.Annotatef(err, "installing %s", dest)
	}
	if err := utils.AtomicWriteFile(dest, []byte(content), perm.Mode); err != nil {
		return errors.Annotatef(err, "installing %s", dest)
	}
	if err := os.Chown(dest, uid, gid); err != nil {
		return errors.Annotatef(err, "installing %s", dest)
	}
	logger.Debugf("installed %s", dest)
	return nil
}

// InstallTemplate renders the named template and installs it at dest.
func (i *Installer) InstallTemplate(name string, bindings Bindings, dest string, perm ownership.Perm) error {
	content, err := i.Renderer.Render(name, bindings)
	if err != nil {
		return errors.Trace(err)
	}
	return errors.Trace(i.InstallFile(content, dest, perm))
}

// AppendTemplate renders the named template and appends it to dest,
// creating dest if needed. Nothing is written when dest already contains
// the rendered content. It reports whether dest was changed.
func (i *Installer) AppendTemplate(name string, bindings Bindings, dest string, perm ownership.Perm) (bool, error) {
	content, err := i.Renderer.Render(name, bindings)
	if err != nil {
		return false, errors.Trace(err)
	}
	changed, err := i.AppendContent(content, dest, perm)
	return changed, errors.Trace(err)
}

// AppendContent appends content to dest unless dest already contains it.
func (i *Installer) AppendContent(content, dest string, perm ownership.Perm) (bool, error) {
	existing, err := os.ReadFile(dest)
	if err != nil && !os.IsNotExist(err) {
		return false, errors.Trace(err)
	}
	if strings.Contains(string(existing), content) {
		logger.Debugf("%s already up to date", dest)
		return false, nil
	}
	uid, gid, err := i.Owners.Resolve(perm.Owner, perm.Group)
	if err != nil {
		return false, errors.Annotatef(err, "appending to %s", dest)
	}

	var block strings.Builder
	if len(existing) > 0 && !strings.HasSuffix(string(existing), "\n") {
		block.WriteString("\n")
	}
	block.WriteString(Banner + "\n")
	block.WriteString(content)

	f, err := os.OpenFile(dest, os.O_WRONLY|os.O_APPEND|os.O_CREATE, perm.Mode)
	if err != nil {
		return false, errors.Trace(err)
	}
	if _, err := f.WriteString(block.String()); err != nil {
		_ = f.Close()
		return false, errors.Annotatef(err, "appending to %s", dest)
	}
	if err := f.Chown(uid, gid); err != nil {
		_ = f.Close()
		return false, errors.Annotatef(err, "appending to %s", dest)
	}
	if err := f.Close(); err != nil {
		return false, errors.Annotatef(err, "appending to %s", dest)
	}
	logger.Debugf("appended to %s", dest)
	return true, nil
}
