// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package provisioner

import (
	"net/url"
	"path/filepath"

	"github.com/juju/errors"

	"github.com/juju/django-charm/internal/ownership"
	"github.com/juju/django-charm/internal/templates"
)

// NetrcPerm is the ownership of the hook user's ~/.netrc.
var NetrcPerm = ownership.Perm{Owner: "root", Group: "root", Mode: 0600}

// WriteNetrc stores repository credentials in ~/.netrc. A URL without a
// host is logged and skipped. It reports whether the file was written.
func (p *Provisioner) WriteNetrc(reposURL, username, password string) (bool, error) {
	u, err := url.Parse(reposURL)
	if err != nil || u.Host == "" {
		logger.Errorf("cannot write repository credentials: no host in URL %q", reposURL)
		return false, nil
	}
	if p.config.HomeDir == "" {
		return false, errors.NotValidf("empty home directory")
	}
	err = p.config.Templates.InstallTemplate("netrc.tmpl", templates.Bindings{
		"repos_domain":   u.Hostname(),
		"repos_username": username,
		"repos_password": password,
	}, filepath.Join(p.config.HomeDir, ".netrc"), NetrcPerm)
	if err != nil {
		return false, errors.Trace(err)
	}
	return true, nil
}
