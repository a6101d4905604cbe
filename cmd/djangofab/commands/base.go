// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package commands

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/juju/cmd/v3"
	"github.com/juju/errors"
	"github.com/juju/gnuflag"

	"github.com/juju/django-charm/internal/fabric"
)

// defaultKeyFiles are offered, when they exist, if no identity is given.
var defaultKeyFiles = []string{"id_ed25519", "id_ecdsa", "id_rsa"}

// hostCommand holds the flags shared by the commands that log in to the
// hosts of a role.
type hostCommand struct {
	cmd.CommandBase
	rt Runtime

	role       string
	user       string
	port       int
	identities string
	knownHosts string
	insecure   bool
}

// SetFlags implements cmd.Command.
func (c *hostCommand) SetFlags(f *gnuflag.FlagSet) {
	c.CommandBase.SetFlags(f)
	f.StringVar(&c.role, "R", "", "role (application or unit) to run against")
	f.StringVar(&c.role, "role", "", "")
	f.StringVar(&c.user, "u", fabric.DefaultUser, "user to log in as")
	f.StringVar(&c.user, "user", fabric.DefaultUser, "")
	f.IntVar(&c.port, "port", fabric.DefaultPort, "ssh port of the hosts")
	f.StringVar(&c.identities, "i", "", "comma separated private key files")
	f.StringVar(&c.knownHosts, "known-hosts", "", "known hosts file (default ~/.ssh/known_hosts)")
	f.BoolVar(&c.insecure, "insecure-ignore-host-key", false, "do not verify host keys")
}

func (c *hostCommand) checkRole() error {
	if c.role == "" {
		return errors.New("no role specified")
	}
	return nil
}

func (c *hostCommand) dialConfig() fabric.DialConfig {
	config := fabric.DialConfig{
		User:                  c.user,
		Port:                  c.port,
		KnownHostsFile:        c.knownHosts,
		InsecureIgnoreHostKey: c.insecure,
	}
	for _, path := range strings.Split(c.identities, ",") {
		if path = strings.TrimSpace(path); path != "" {
			config.KeyFiles = append(config.KeyFiles, path)
		}
	}
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return config
	}
	sshDir := filepath.Join(home, ".ssh")
	if config.KnownHostsFile == "" {
		config.KnownHostsFile = filepath.Join(sshDir, "known_hosts")
	}
	if len(config.KeyFiles) == 0 {
		for _, name := range defaultKeyFiles {
			path := filepath.Join(sshDir, name)
			if _, err := os.Stat(path); err == nil {
				config.KeyFiles = append(config.KeyFiles, path)
			}
		}
	}
	return config
}

// taskBuilder builds the task of a command once the role is known. rc
// is only set for commands that need the role's configuration.
type taskBuilder func(ctx *cmd.Context, rc *fabric.RoleConfig, args []string) (fabric.Task, error)

// taskCommand runs one task against every host of a role.
type taskCommand struct {
	hostCommand

	info        cmd.Info
	minArgs     int
	maxArgs     int
	needsConfig bool
	build       taskBuilder

	args []string
}

// Info implements cmd.Command.
func (c *taskCommand) Info() *cmd.Info {
	info := c.info
	return &info
}

// Init implements cmd.Command.
func (c *taskCommand) Init(args []string) error {
	if err := c.checkRole(); err != nil {
		return errors.Trace(err)
	}
	if len(args) < c.minArgs {
		return errors.Errorf("expected %s", c.info.Args)
	}
	if c.maxArgs >= 0 && len(args) > c.maxArgs {
		return cmd.CheckEmpty(args[c.maxArgs:])
	}
	c.args = args
	return nil
}

// Run implements cmd.Command.
func (c *taskCommand) Run(ctx *cmd.Context) error {
	stdCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	roles, err := fabric.LoadRoles(stdCtx, c.rt.Local)
	if err != nil {
		return errors.Trace(err)
	}
	hosts, err := roles.Hosts(c.role)
	if err != nil {
		return errors.Trace(err)
	}
	var rc *fabric.RoleConfig
	if c.needsConfig {
		if rc, err = fabric.LoadConfig(stdCtx, c.rt.Local, c.role); err != nil {
			return errors.Trace(err)
		}
	}
	task, err := c.build(ctx, rc, c.args)
	if err != nil {
		return errors.Trace(err)
	}
	executor := &fabric.Executor{Dial: c.rt.Dialer(c.dialConfig())}
	if err := executor.Run(stdCtx, hosts, task); err != nil {
		return errors.Annotatef(err, "%s", c.info.Name)
	}
	ctx.Infof("%s done on %d host(s)", c.info.Name, len(hosts))
	return nil
}
