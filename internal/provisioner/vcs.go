// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package provisioner

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/juju/errors"

	"github.com/juju/django-charm/internal/ownership"
	"github.com/juju/django-charm/internal/shell"
)

// ErrUnknownVCS is returned for a version control tag that is not
// supported.
const ErrUnknownVCS = errors.ConstError("unknown version control")

// VCS identifies how the project source is obtained.
type VCS int

const (
	// VCSNone starts a new project with django-admin.
	VCSNone VCS = iota
	VCSMercurial
	VCSGit
	VCSBazaar
	VCSSubversion
)

func (v VCS) String() string {
	switch v {
	case VCSNone:
		return "none"
	case VCSMercurial:
		return "mercurial"
	case VCSGit:
		return "git"
	case VCSBazaar:
		return "bazaar"
	case VCSSubversion:
		return "subversion"
	}
	return "unknown"
}

// ParseVCS maps the vcs option to a VCS. An empty tag is only valid
// without a repository URL.
func ParseVCS(tag, reposURL string) (VCS, error) {
	switch strings.TrimSpace(tag) {
	case "":
		if reposURL == "" {
			return VCSNone, nil
		}
	case "hg", "mercurial":
		return VCSMercurial, nil
	case "git", "git-core":
		return VCSGit, nil
	case "bzr", "bazaar":
		return VCSBazaar, nil
	case "svn", "subversion":
		return VCSSubversion, nil
	}
	return 0, errors.Annotatef(ErrUnknownVCS, "vcs %q, repos_url %q", tag, reposURL)
}

// Checkout describes where the project source comes from and where it
// goes.
type Checkout struct {
	// VCS is the raw vcs option.
	VCS      string
	ReposURL string
	Branch   string
	Dest     string

	// ProjectName, TemplateURL and TemplateExtension are used when a new
	// project is started.
	ProjectName       string
	TemplateURL       string
	TemplateExtension string

	// Owner and Group own a new project.
	Owner string
	Group string
}

// Commands returns the commands obtaining the source, in order.
func (co Checkout) Commands() ([]shell.Command, error) {
	vcs, err := ParseVCS(co.VCS, co.ReposURL)
	if err != nil {
		return nil, errors.Trace(err)
	}
	var args []string
	switch vcs {
	case VCSNone:
		args = []string{"django-admin", "startproject"}
		if co.TemplateURL != "" {
			args = append(args, "--template", co.TemplateURL)
		}
		if co.TemplateExtension != "" {
			args = append(args, "--extension", co.TemplateExtension)
		}
		args = append(args, co.ProjectName, co.Dest)
		return []shell.Command{
			{Args: args},
			{Args: []string{"chown", "-R", co.Owner + ":" + co.Group, co.Dest}},
		}, nil
	case VCSMercurial:
		args = []string{"hg", "clone", co.ReposURL, co.Dest}
	case VCSGit:
		args = []string{"git", "clone", co.ReposURL}
		if co.Branch != "" {
			args = append(args, "-b", co.Branch)
		}
		args = append(args, co.Dest)
	case VCSBazaar:
		args = []string{"bzr", "branch", co.ReposURL, co.Dest}
	case VCSSubversion:
		args = []string{"svn", "co", co.ReposURL, co.Dest}
	}
	return []shell.Command{{Args: args}}, nil
}

// EnsureSourceCheckout obtains the project source unless Dest already
// holds something.
func (p *Provisioner) EnsureSourceCheckout(ctx context.Context, co Checkout) error {
	commands, err := co.Commands()
	if err != nil {
		return errors.Trace(err)
	}
	if populated, err := nonEmptyDir(co.Dest); err != nil {
		return errors.Trace(err)
	} else if populated {
		logger.Infof("%s already populated, skipping checkout", co.Dest)
		return nil
	}

	vcs, _ := ParseVCS(co.VCS, co.ReposURL)
	if vcs == VCSNone {
		logger.Infof("no version control, starting project %q", co.ProjectName)
		if err := p.EnsureDirectory(co.Dest, ownership.Perm{
			Owner: co.Owner,
			Group: co.Group,
			Mode:  0755,
		}); err != nil {
			return errors.Trace(err)
		}
	} else if err := os.MkdirAll(filepath.Dir(co.Dest), 0755); err != nil {
		return errors.Trace(err)
	}
	for _, command := range commands {
		if _, err := shell.Run(ctx, p.config.Runner, command); err != nil {
			return errors.Annotatef(err, "checking out %s source", vcs)
		}
	}
	return nil
}

func nonEmptyDir(path string) (bool, error) {
	entries, err := os.ReadDir(path)
	if os.IsNotExist(err) {
		return false, nil
	} else if err != nil {
		return false, errors.Trace(err)
	}
	return len(entries) > 0, nil
}
