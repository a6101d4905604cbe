// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package hookenv

import (
	"context"
	"fmt"
	"strings"

	"github.com/juju/errors"

	"github.com/juju/django-charm/internal/shell"
)

// UnitGet returns a setting of the local unit, such as "private-address".
func (e *Env) UnitGet(ctx context.Context, key string) (string, error) {
	out, err := shell.Output(ctx, e.runner, "unit-get", key)
	if err != nil {
		return "", errors.Annotatef(err, "unit-get %s", key)
	}
	return strings.TrimSpace(string(out)), nil
}

// OpenPort exposes a TCP port of the unit.
func (e *Env) OpenPort(ctx context.Context, port int) error {
	return e.port(ctx, "open-port", port)
}

// ClosePort stops exposing a TCP port of the unit.
func (e *Env) ClosePort(ctx context.Context, port int) error {
	return e.port(ctx, "close-port", port)
}

func (e *Env) port(ctx context.Context, tool string, port int) error {
	if port <= 0 || port > 65535 {
		return errors.NotValidf("port %d", port)
	}
	_, err := shell.Run(ctx, e.runner, shell.Command{
		Args: []string{tool, fmt.Sprintf("%d/tcp", port)},
	})
	return errors.Trace(err)
}
