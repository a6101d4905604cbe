// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package fabric runs maintenance tasks over ssh against the units of a
// deployed Django application. Hosts are grouped into roles taken from
// the model status: every application is a role holding the public
// addresses of its units, and every unit is a role of its own.
package fabric

import (
	"context"

	"github.com/juju/errors"
	"github.com/juju/loggo"
	"github.com/juju/names/v5"
	"github.com/juju/naturalsort"
	"gopkg.in/yaml.v2"

	"github.com/juju/django-charm/charm"
	"github.com/juju/django-charm/internal/config"
	"github.com/juju/django-charm/internal/shell"
)

var logger = loggo.GetLogger("django.fabric")

// JujuCommand is the juju client used to read the model.
var JujuCommand = "juju"

// status holds the parts of "juju status --format=yaml" the roles are
// built from. Older clients report applications as services.
type status struct {
	Applications map[string]applicationStatus `yaml:"applications"`
	Services     map[string]applicationStatus `yaml:"services"`
}

type applicationStatus struct {
	Units map[string]unitStatus `yaml:"units"`
}

type unitStatus struct {
	PublicAddress string `yaml:"public-address"`
}

// Roles maps role names to the addresses of their hosts.
type Roles map[string][]string

// ParseStatus builds the roles from the YAML output of juju status.
// Units without a public address are skipped.
func ParseStatus(data []byte) (Roles, error) {
	var st status
	if err := yaml.Unmarshal(data, &st); err != nil {
		return nil, errors.Annotate(err, "cannot parse status")
	}
	applications := st.Applications
	if len(applications) == 0 {
		applications = st.Services
	}
	roles := make(Roles)
	for appName, app := range applications {
		unitNames := make([]string, 0, len(app.Units))
		for unitName := range app.Units {
			unitNames = append(unitNames, unitName)
		}
		naturalsort.Sort(unitNames)
		for _, unitName := range unitNames {
			address := app.Units[unitName].PublicAddress
			if address == "" {
				logger.Debugf("unit %s has no public address", unitName)
				continue
			}
			roles[appName] = append(roles[appName], address)
			roles[unitName] = append(roles[unitName], address)
		}
	}
	return roles, nil
}

// Names returns the role names in natural order.
func (r Roles) Names() []string {
	roleNames := make([]string, 0, len(r))
	for name := range r {
		roleNames = append(roleNames, name)
	}
	naturalsort.Sort(roleNames)
	return roleNames
}

// Hosts returns the hosts of a role.
func (r Roles) Hosts(role string) ([]string, error) {
	hosts, ok := r[role]
	if !ok || len(hosts) == 0 {
		return nil, errors.NotFoundf("role %q", role)
	}
	return hosts, nil
}

// LoadRoles reads the roles from the current model.
func LoadRoles(ctx context.Context, runner shell.Runner) (Roles, error) {
	out, err := shell.Output(ctx, runner, JujuCommand, "status", "--format=yaml")
	if err != nil {
		return nil, errors.Annotate(err, "reading model status")
	}
	return ParseStatus(out)
}

// RoleConfig is the charm configuration of the application behind a
// role, with the paths derived from it.
type RoleConfig struct {
	Application string
	Options     config.Options
	Paths       config.Paths
}

// ProjectDir is the Django project directory on the role's hosts.
func (rc *RoleConfig) ProjectDir() string {
	return rc.Paths.WorkingDir
}

// applicationConfig holds the parts of "juju config <app> --format=yaml"
// the role configuration is built from. Older clients spell the key
// "setting".
type applicationConfig struct {
	Settings map[string]settingValue `yaml:"settings"`
	Setting  map[string]settingValue `yaml:"setting"`
}

type settingValue struct {
	Value interface{} `yaml:"value"`
}

// ParseConfig builds the configuration of a role from the YAML output of
// juju config. Unset options take the charm defaults.
func ParseConfig(role string, data []byte) (*RoleConfig, error) {
	application := role
	if names.IsValidUnit(role) {
		var err error
		if application, err = names.UnitApplication(role); err != nil {
			return nil, errors.Trace(err)
		}
	}
	var appConfig applicationConfig
	if err := yaml.Unmarshal(data, &appConfig); err != nil {
		return nil, errors.Annotatef(err, "cannot parse config of %q", application)
	}
	values := appConfig.Settings
	if len(values) == 0 {
		values = appConfig.Setting
	}
	settings := make(charm.Settings)
	for key, setting := range values {
		settings[key] = setting.Value
	}

	schema, err := charm.Options()
	if err != nil {
		return nil, errors.Trace(err)
	}
	coerced, err := schema.Coerce(settings)
	if err != nil {
		return nil, errors.Annotatef(err, "config of %q", application)
	}
	opts, err := config.DecodeOptions(coerced)
	if err != nil {
		return nil, errors.Trace(err)
	}
	return &RoleConfig{
		Application: application,
		Options:     opts,
		Paths:       config.NewPaths(opts, application),
	}, nil
}

// LoadConfig reads the configuration of the application behind role.
func LoadConfig(ctx context.Context, runner shell.Runner, role string) (*RoleConfig, error) {
	application := role
	if names.IsValidUnit(role) {
		application, _ = names.UnitApplication(role)
	}
	out, err := shell.Output(ctx, runner, JujuCommand, "config", application, "--format=yaml")
	if err != nil {
		return nil, errors.Annotatef(err, "reading config of %q", application)
	}
	return ParseConfig(role, out)
}
