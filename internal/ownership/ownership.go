// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package ownership maps user and group names to the numeric ids the
// file-system calls need.
package ownership

import (
	"os"
	"os/user"
	"strconv"

	"github.com/juju/errors"
)

// Resolver resolves an owner and group name pair to numeric ids.
type Resolver interface {
	Resolve(owner, group string) (uid, gid int, err error)
}

// Perm describes the ownership and mode a file or directory must have.
type Perm struct {
	Owner string
	Group string
	Mode  os.FileMode
}

// NewResolver returns a Resolver backed by the host's user and group
// databases.
func NewResolver() Resolver {
	return hostResolver{}
}

type hostResolver struct{}

// Resolve implements Resolver. Unknown names are reported as NotFound.
func (hostResolver) Resolve(owner, group string) (int, int, error) {
	u, err := user.Lookup(owner)
	if _, ok := err.(user.UnknownUserError); ok {
		return -1, -1, errors.NotFoundf("user %q", owner)
	} else if err != nil {
		return -1, -1, errors.Annotatef(err, "looking up user %q", owner)
	}
	g, err := user.LookupGroup(group)
	if _, ok := err.(user.UnknownGroupError); ok {
		return -1, -1, errors.NotFoundf("group %q", group)
	} else if err != nil {
		return -1, -1, errors.Annotatef(err, "looking up group %q", group)
	}
	uid, err := strconv.Atoi(u.Uid)
	if err != nil {
		return -1, -1, errors.Annotatef(err, "user %q has non-numeric uid %q", owner, u.Uid)
	}
	gid, err := strconv.Atoi(g.Gid)
	if err != nil {
		return -1, -1, errors.Annotatef(err, "group %q has non-numeric gid %q", group, g.Gid)
	}
	return uid, gid, nil
}

// Chown resolves perm's owner and group and applies them to path.
func Chown(resolver Resolver, path string, perm Perm) error {
	uid, gid, err := resolver.Resolve(perm.Owner, perm.Group)
	if err != nil {
		return errors.Trace(err)
	}
	return errors.Trace(os.Chown(path, uid, gid))
}
