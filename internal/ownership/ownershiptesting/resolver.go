// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package ownershiptesting

import (
	"os"

	"github.com/juju/errors"
	"github.com/juju/testing"
)

// CurrentUserResolver resolves every name in Known to the ids of the
// process running the tests, so that chown calls succeed without root.
// Any other name is NotFound.
type CurrentUserResolver struct {
	*testing.Stub
	Known map[string]bool
}

// NewCurrentUserResolver returns a resolver that knows the given names.
func NewCurrentUserResolver(names ...string) *CurrentUserResolver {
	known := make(map[string]bool)
	for _, name := range names {
		known[name] = true
	}
	return &CurrentUserResolver{
		Stub:  &testing.Stub{},
		Known: known,
	}
}

// Resolve implements ownership.Resolver.
func (r *CurrentUserResolver) Resolve(owner, group string) (int, int, error) {
	r.MethodCall(r, "Resolve", owner, group)
	if err := r.NextErr(); err != nil {
		return -1, -1, err
	}
	if !r.Known[owner] {
		return -1, -1, errors.NotFoundf("user %q", owner)
	}
	if !r.Known[group] {
		return -1, -1, errors.NotFoundf("group %q", group)
	}
	return os.Getuid(), os.Getgid(), nil
}
