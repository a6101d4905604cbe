// Copyright 2013-2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package main

import (
	"os"
	"path/filepath"

	"github.com/juju/errors"
	"github.com/juju/utils/v4"

	"github.com/juju/django-charm/charm"
	"github.com/juju/django-charm/internal/hooks"
)

// buildCharm lays out a deployable charm in dir: the embedded charm
// files, the hook binary at hooks/djangohooks and one hooks/<name>
// symlink to it per hook. It returns the hook names linked.
func buildCharm(dir, executable string) ([]string, error) {
	meta, err := charm.Metadata()
	if err != nil {
		return nil, errors.Trace(err)
	}
	if err := charm.WriteFiles(dir); err != nil {
		return nil, errors.Annotate(err, "writing charm files")
	}
	hooksDir := filepath.Join(dir, "hooks")
	if err := os.MkdirAll(hooksDir, 0755); err != nil {
		return nil, errors.Trace(err)
	}
	binary, err := os.ReadFile(executable)
	if err != nil {
		return nil, errors.Annotate(err, "reading hook binary")
	}
	if err := utils.AtomicWriteFile(filepath.Join(hooksDir, binaryName), binary, 0755); err != nil {
		return nil, errors.Annotate(err, "installing hook binary")
	}
	names := hooks.HookNames(meta)
	for _, name := range names {
		if err := replaceSymlink(binaryName, filepath.Join(hooksDir, name)); err != nil {
			return nil, errors.Annotatef(err, "linking hook %s", name)
		}
	}
	return names, nil
}

// replaceSymlink points link at target, replacing whatever link was there.
func replaceSymlink(target, link string) error {
	tmp := link + ".tmp"
	if err := os.Remove(tmp); err != nil && !os.IsNotExist(err) {
		return errors.Trace(err)
	}
	if err := os.Symlink(target, tmp); err != nil {
		return errors.Trace(err)
	}
	return errors.Trace(os.Rename(tmp, link))
}
