// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package fabric

import (
	"context"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/juju/errors"

	"github.com/juju/django-charm/internal/provisioner"
	"github.com/juju/django-charm/internal/shell"
)

// Remote is a host tasks run against.
type Remote interface {
	shell.Runner

	// Address returns the address of the host.
	Address() string

	// Append adds content to a file on the host unless it is already
	// there, and reports whether the file changed.
	Append(path, content string, mode os.FileMode) (bool, error)

	// Close releases the connection to the host.
	Close() error
}

// Task is one unit of work run against a single host.
type Task func(ctx context.Context, host Remote) error

// GunicornService is the init script reloaded after a pull.
var GunicornService = "gunicorn"

// djangoAdminCommands are looked up on the host, in order.
var djangoAdminCommands = []string{"django-admin.py", "django-admin"}

func run(ctx context.Context, host Remote, command shell.Command) (*shell.Result, error) {
	result, err := shell.Run(ctx, host, command)
	return result, errors.Annotatef(err, "[%s]", host.Address())
}

// sudo runs command as root. The extra environment is passed through
// env(1) after sudo, which would drop it otherwise.
func sudo(command shell.Command) shell.Command {
	args := []string{"sudo"}
	if len(command.Env) > 0 {
		args = append(args, "env")
		args = append(args, command.Env...)
	}
	return shell.Command{
		Args:  append(args, command.Args...),
		Dir:   command.Dir,
		Stdin: command.Stdin,
	}
}

// AptInstall installs distro packages.
func AptInstall(packages ...string) Task {
	return func(ctx context.Context, host Remote) error {
		if len(packages) == 0 {
			return nil
		}
		_, err := run(ctx, host, sudo(provisioner.AptGetCommand(append([]string{"install"}, packages...)...)))
		return errors.Trace(err)
	}
}

// AptUpdate refreshes the package index.
func AptUpdate() Task {
	return func(ctx context.Context, host Remote) error {
		_, err := run(ctx, host, sudo(provisioner.AptGetCommand("update")))
		return errors.Trace(err)
	}
}

// AptDistUpgrade upgrades every installed package.
func AptDistUpgrade() Task {
	return func(ctx context.Context, host Remote) error {
		_, err := run(ctx, host, sudo(provisioner.AptGetCommand("dist-upgrade")))
		return errors.Trace(err)
	}
}

// AptInstallRequirements installs the packages listed in the given files,
// relative to the project directory. Entries are separated by white
// space and anything after a # is ignored.
func AptInstallRequirements(rc *RoleConfig, files ...string) Task {
	return func(ctx context.Context, host Remote) error {
		for _, file := range files {
			result, err := run(ctx, host, shell.Command{
				Args: []string{"cat", file},
				Dir:  rc.ProjectDir(),
			})
			if err != nil {
				return errors.Annotatef(err, "reading %s", file)
			}
			packages := requirementList(string(result.Stdout))
			if err := AptInstall(packages...)(ctx, host); err != nil {
				return errors.Trace(err)
			}
		}
		return nil
	}
}

func requirementList(content string) []string {
	var items []string
	for _, line := range strings.Split(content, "\n") {
		if i := strings.Index(line, "#"); i >= 0 {
			line = line[:i]
		}
		items = append(items, strings.Fields(line)...)
	}
	return items
}

// PipInstall installs pip packages.
func PipInstall(packages ...string) Task {
	return func(ctx context.Context, host Remote) error {
		if len(packages) == 0 {
			return nil
		}
		_, err := run(ctx, host, sudo(shell.Command{
			Args: append([]string{"pip3", "install"}, packages...),
		}))
		return errors.Trace(err)
	}
}

// PipInstallRequirements installs the requirement files the application
// is configured with.
func PipInstallRequirements(rc *RoleConfig) Task {
	return func(ctx context.Context, host Remote) error {
		for _, file := range rc.Options.RequirementFiles() {
			if _, err := run(ctx, host, sudo(shell.Command{
				Args: []string{"pip3", "install", "-r", file},
				Dir:  rc.ProjectDir(),
			})); err != nil {
				return errors.Trace(err)
			}
		}
		return nil
	}
}

// AddUser creates a user without a password.
func AddUser(username string) Task {
	return func(ctx context.Context, host Remote) error {
		_, err := run(ctx, host, sudo(shell.Command{
			Args: []string{"adduser", username, "--disabled-password", "--gecos", ""},
		}))
		return errors.Trace(err)
	}
}

// SSHAddKey authorizes a public key for username, or for the login user
// when username is empty.
func SSHAddKey(publicKey, username string) Task {
	return func(ctx context.Context, host Remote) error {
		sshDir := ".ssh"
		if username != "" {
			sshDir = path.Join("/home", username, ".ssh")
		}
		if _, err := run(ctx, host, shell.Command{Args: []string{"mkdir", "-p", sshDir}}); err != nil {
			return errors.Trace(err)
		}
		if _, err := host.Append(path.Join(sshDir, "authorized_keys"), publicKey, 0600); err != nil {
			return errors.Annotatef(err, "[%s] adding key", host.Address())
		}
		if username == "" {
			return nil
		}
		_, err := run(ctx, host, sudo(shell.Command{
			Args: []string{"chown", "-R", username + ":" + username, sshDir},
		}))
		return errors.Trace(err)
	}
}

// PullCommand returns the command updating a checkout made with vcs from
// reposURL.
func PullCommand(vcs, reposURL string) (shell.Command, error) {
	kind, err := provisioner.ParseVCS(vcs, reposURL)
	if err != nil {
		return shell.Command{}, errors.Trace(err)
	}
	switch kind {
	case provisioner.VCSBazaar:
		return shell.Command{Args: []string{"bzr", "pull", reposURL}}, nil
	case provisioner.VCSGit:
		return shell.Command{Args: []string{"git", "pull", reposURL}}, nil
	case provisioner.VCSMercurial:
		return shell.Command{Args: []string{"hg", "pull", "-u", reposURL}}, nil
	case provisioner.VCSSubversion:
		return shell.Command{Args: []string{"svn", "up"}}, nil
	}
	return shell.Command{}, errors.Annotatef(provisioner.ErrUnknownVCS, "cannot pull project started without a repository")
}

// Pull updates the project source, removes stale bytecode and reloads
// the wsgi server.
func Pull(rc *RoleConfig) Task {
	return func(ctx context.Context, host Remote) error {
		command, err := PullCommand(rc.Options.VCS, rc.Options.ReposURL)
		if err != nil {
			return errors.Trace(err)
		}
		command.Dir = rc.Paths.CloneDir
		if _, err := run(ctx, host, command); err != nil {
			return errors.Trace(err)
		}
		if err := DeletePyc(rc)(ctx, host); err != nil {
			return errors.Trace(err)
		}
		return errors.Trace(Reload()(ctx, host))
	}
}

// Reload reloads the wsgi server.
func Reload() Task {
	return func(ctx context.Context, host Remote) error {
		_, err := run(ctx, host, sudo(shell.Command{
			Args: []string{"invoke-rc.d", GunicornService, "reload"},
		}))
		return errors.Trace(err)
	}
}

// Manage runs a django-admin command against the project's settings.
func Manage(rc *RoleConfig, args ...string) Task {
	return func(ctx context.Context, host Remote) error {
		if len(args) == 0 {
			return errors.NotValidf("empty management command")
		}
		adminCmd, err := findDjangoAdmin(ctx, host)
		if err != nil {
			return errors.Trace(err)
		}
		projectDir := rc.ProjectDir()
		command := append([]string{adminCmd}, args...)
		command = append(command,
			"--pythonpath="+filepath.Dir(projectDir),
			"--settings="+filepath.Base(projectDir)+".settings",
		)
		env, err := rc.Options.EnvironmentExtra()
		if err != nil {
			return errors.Trace(err)
		}
		_, err = run(ctx, host, shell.Command{Args: command, Env: env})
		return errors.Trace(err)
	}
}

// Migrate runs the migrate management command.
func Migrate(rc *RoleConfig, params ...string) Task {
	return Manage(rc, append([]string{"migrate", "--noinput"}, params...)...)
}

// SyncDB runs the syncdb management command.
func SyncDB(rc *RoleConfig, params ...string) Task {
	return Manage(rc, append([]string{"syncdb", "--noinput"}, params...)...)
}

// CollectStatic runs the collectstatic management command.
func CollectStatic(rc *RoleConfig, params ...string) Task {
	return Manage(rc, append([]string{"collectstatic", "--noinput"}, params...)...)
}

// DeletePyc removes compiled python files from the project source.
func DeletePyc(rc *RoleConfig) Task {
	return func(ctx context.Context, host Remote) error {
		_, err := run(ctx, host, shell.Command{
			Args: []string{"find", ".", "-name", "*.pyc", "-delete"},
			Dir:  rc.ProjectDir(),
		})
		return errors.Trace(err)
	}
}

func findDjangoAdmin(ctx context.Context, host Remote) (string, error) {
	for _, name := range djangoAdminCommands {
		result, err := shell.RunAllowFail(ctx, host, shell.Command{Args: []string{"which", name}})
		if err != nil {
			return "", errors.Trace(err)
		}
		if result.Code == 0 {
			if found := strings.TrimSpace(string(result.Stdout)); found != "" {
				return found, nil
			}
		}
	}
	return "", errors.NotFoundf("[%s] django-admin", host.Address())
}
