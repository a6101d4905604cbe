// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package commands

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/juju/ansiterm"
	"github.com/juju/cmd/v3"
	"github.com/juju/errors"
	"github.com/juju/gnuflag"

	"github.com/juju/django-charm/internal/fabric"
)

const rolesDoc = `
List the roles of the current model and the hosts in each.
`

type rolesCommand struct {
	cmd.CommandBase
	rt  Runtime
	out cmd.Output
}

func newRolesCommand(rt Runtime) *rolesCommand {
	return &rolesCommand{rt: rt}
}

// Info implements cmd.Command.
func (c *rolesCommand) Info() *cmd.Info {
	return &cmd.Info{
		Name:    "roles",
		Purpose: "list roles and their hosts",
		Doc:     rolesDoc,
	}
}

// SetFlags implements cmd.Command.
func (c *rolesCommand) SetFlags(f *gnuflag.FlagSet) {
	c.CommandBase.SetFlags(f)
	c.out.AddFlags(f, "tabular", map[string]cmd.Formatter{
		"yaml":    cmd.FormatYaml,
		"json":    cmd.FormatJson,
		"tabular": formatRolesTabular,
	})
}

// Init implements cmd.Command.
func (c *rolesCommand) Init(args []string) error {
	return cmd.CheckEmpty(args)
}

// Run implements cmd.Command.
func (c *rolesCommand) Run(ctx *cmd.Context) error {
	roles, err := fabric.LoadRoles(context.Background(), c.rt.Local)
	if err != nil {
		return errors.Trace(err)
	}
	return c.out.Write(ctx, map[string][]string(roles))
}

// formatRolesTabular writes one line per role, in natural order.
func formatRolesTabular(writer io.Writer, value interface{}) error {
	roles, ok := value.(map[string][]string)
	if !ok {
		return errors.Errorf("expected value of type %T, got %T", roles, value)
	}
	tw := ansiterm.NewTabWriter(writer, 0, 1, 1, ' ', 0)
	print := func(values ...string) {
		fmt.Fprintln(tw, strings.Join(values, "\t"))
	}
	print("ROLE", "HOSTS")
	for _, name := range fabric.Roles(roles).Names() {
		print(name, strings.Join(roles[name], ","))
	}
	return tw.Flush()
}
