// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package provisioner installs what a Django unit needs on its machine:
// distro and pip packages, the project source and its directories.
package provisioner

import (
	"time"

	"github.com/juju/clock"
	"github.com/juju/errors"
	"github.com/juju/loggo"

	"github.com/juju/django-charm/internal/ownership"
	"github.com/juju/django-charm/internal/shell"
	"github.com/juju/django-charm/internal/templates"
)

var logger = loggo.GetLogger("django.provisioner")

const (
	// DefaultRetryAttempts is how often the core package install is
	// attempted before the hook gives up.
	DefaultRetryAttempts = 24

	// DefaultRetryDelay is the pause between two core package install
	// attempts.
	DefaultRetryDelay = 10 * time.Second
)

// Config holds the dependencies of a Provisioner.
type Config struct {
	Runner    shell.Runner
	Owners    ownership.Resolver
	Templates *templates.Installer
	Clock     clock.Clock

	// RetryAttempts and RetryDelay bound the core package install loop.
	// Zero values mean the defaults.
	RetryAttempts int
	RetryDelay    time.Duration

	// HomeDir is the home directory of the user running the hooks.
	HomeDir string
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.Runner == nil {
		return errors.NotValidf("nil Runner")
	}
	if c.Owners == nil {
		return errors.NotValidf("nil Owners")
	}
	if c.Templates == nil {
		return errors.NotValidf("nil Templates")
	}
	if c.Clock == nil {
		return errors.NotValidf("nil Clock")
	}
	if c.RetryAttempts < 0 {
		return errors.NotValidf("negative RetryAttempts")
	}
	if c.RetryDelay < 0 {
		return errors.NotValidf("negative RetryDelay")
	}
	return nil
}

// Provisioner performs the machine level steps of the hooks.
type Provisioner struct {
	config Config
}

// New returns a Provisioner for the given configuration.
func New(config Config) (*Provisioner, error) {
	if err := config.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	if config.RetryAttempts == 0 {
		config.RetryAttempts = DefaultRetryAttempts
	}
	if config.RetryDelay == 0 {
		config.RetryDelay = DefaultRetryDelay
	}
	return &Provisioner{config: config}, nil
}
